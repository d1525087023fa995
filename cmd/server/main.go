package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/arnavshah/odp-scheduler-go/pkg/app"
	"github.com/arnavshah/odp-scheduler-go/pkg/config"
	"github.com/arnavshah/odp-scheduler-go/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		charmlog.Fatal("invalid configuration", "err", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		charmlog.Warn("log file unavailable, logging to stderr only", "err", err)
		log = charmlog.Default()
	}

	if cfg.GinMode == "" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(cfg.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("could not start", "err", err)
	}
	defer a.Close()

	if err := a.EnsureOperator(ctx); err != nil {
		log.Error("could not create default operator", "err", err)
	}

	a.Runner.Start(ctx)
	defer a.Runner.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "timezone", cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("could not run server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}
