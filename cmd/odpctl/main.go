package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"

	"github.com/arnavshah/odp-scheduler-go/internal/cli"
	"github.com/arnavshah/odp-scheduler-go/pkg/app"
	"github.com/arnavshah/odp-scheduler-go/pkg/config"
	"github.com/arnavshah/odp-scheduler-go/pkg/logger"
)

var CLI struct {
	Version  kong.VersionFlag
	LogLevel string `help:"Log level." default:"warn" enum:"debug,info,warn,error"`

	Doctor     cli.DoctorCmd     `cmd:"" help:"Check database, scheduling state and integrity."`
	Integrity  cli.IntegrityCmd  `cmd:"" help:"Report orphaned scheduled events."`
	Schedule   cli.ScheduleCmd   `cmd:"" help:"Place or move an order."`
	Unschedule cli.UnscheduleCmd `cmd:"" help:"Return an order to the backlog."`
	Availability struct {
		Set  cli.AvailabilitySetCmd  `cmd:"" help:"Mark an hour range unavailable over a date range."`
		Show cli.AvailabilityShowCmd `cmd:"" help:"Show unavailable hours of a machine day."`
	} `cmd:"" help:"Manage machine availability."`
	Keyring struct {
		Set    cli.KeyringSetCmd    `cmd:"" help:"Store the database connection string in the OS keyring."`
		Delete cli.KeyringDeleteCmd `cmd:"" help:"Remove the stored connection string."`
	} `cmd:"" help:"Manage keyring credentials."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("odpctl"),
		kong.Description("Operations tool for the ODP production scheduler"),
		kong.UsageOnError(),
		kong.Vars{"version": "v1.0.0"},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	appCtx := &cli.Context{
		Ctx: ctx,
		Out: os.Stdout,
		Open: func(ctx context.Context) (*app.App, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			cfg.LogLevel = CLI.LogLevel
			log, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
			if err != nil {
				return nil, err
			}
			return app.New(ctx, cfg, log)
		},
	}
	defer appCtx.Close()

	if err := kctx.Run(appCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		appCtx.Close()
		os.Exit(1)
	}
}
