package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
	"github.com/arnavshah/odp-scheduler-go/internal/scheduler"
	"github.com/arnavshah/odp-scheduler-go/pkg/config"
)

type IntegrityCmd struct {
	Cleanup bool `help:"Unschedule every order whose event references something missing."`
}

func (cmd *IntegrityCmd) Run(ctx *Context) error {
	a, err := ctx.App()
	if err != nil {
		return err
	}
	report, err := a.Validator.Check(ctx.Ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, report.Format())
	if report.Clean() || !cmd.Cleanup {
		return nil
	}

	res, err := a.Validator.Remediate(ctx.Ctx, report)
	if err != nil {
		return err
	}
	for _, id := range res.Unscheduled {
		ctx.ok("unscheduled " + id)
	}
	for _, id := range res.Skipped {
		ctx.warn("skipped "+id, "order is past scheduling")
	}
	for _, id := range res.Moved {
		ctx.warn("kept "+id, "order was moved after the check")
	}
	return nil
}

type ScheduleCmd struct {
	Order   string `arg:"" help:"Order id or ODP number."`
	Machine string `arg:"" help:"Machine id or name."`
	Start   string `arg:"" help:"Start time, RFC 3339 or YYYY-MM-DDTHH:MM in the configured time zone."`
}

func (cmd *ScheduleCmd) Run(ctx *Context) error {
	a, err := ctx.App()
	if err != nil {
		return err
	}
	start, err := parseStart(cmd.Start, a.Engine.Location())
	if err != nil {
		return err
	}
	o, err := resolveOrder(a, cmd.Order)
	if err != nil {
		return err
	}

	if o.IsScheduled() {
		o, err = a.Engine.Reschedule(ctx.Ctx, o.ID, cmd.Machine, start)
	} else {
		o, err = a.Engine.Schedule(ctx.Ctx, o.ID, cmd.Machine, start)
	}
	var vf *scheduler.ValidationFailure
	if errors.As(err, &vf) {
		for _, reason := range vf.Reasons {
			ctx.fail("rejected", errors.New(reason))
		}
		return fmt.Errorf("order %s cannot be placed", cmd.Order)
	}
	if err != nil {
		return err
	}
	ctx.ok(fmt.Sprintf("%s scheduled %s to %s", o.OrderNumber,
		o.ScheduledStartTime.In(a.Engine.Location()).Format(time.RFC3339),
		o.ScheduledEndTime.In(a.Engine.Location()).Format(time.RFC3339)))
	return nil
}

func parseStart(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start %q", s)
	}
	return t, nil
}

type UnscheduleCmd struct {
	Order string `arg:"" help:"Order id or ODP number."`
}

func (cmd *UnscheduleCmd) Run(ctx *Context) error {
	a, err := ctx.App()
	if err != nil {
		return err
	}
	o, err := resolveOrder(a, cmd.Order)
	if err != nil {
		return err
	}
	if _, err := a.Engine.Unschedule(ctx.Ctx, o.ID); err != nil {
		return err
	}
	ctx.ok(o.OrderNumber + " returned to the backlog")
	return nil
}

type AvailabilitySetCmd struct {
	Machine string `arg:"" help:"Machine id or name."`
	From    string `arg:"" help:"First date, YYYY-MM-DD."`
	To      string `arg:"" help:"Last date, YYYY-MM-DD."`
	Hours   string `arg:"" help:"Hour range FROM-TO, end exclusive, e.g. 8-12."`
}

func (cmd *AvailabilitySetCmd) Run(ctx *Context) error {
	a, err := ctx.App()
	if err != nil {
		return err
	}
	loc := a.Engine.Location()
	from, err := time.ParseInLocation(models.DateLayout, cmd.From, loc)
	if err != nil {
		return fmt.Errorf("invalid from date %q", cmd.From)
	}
	to, err := time.ParseInLocation(models.DateLayout, cmd.To, loc)
	if err != nil {
		return fmt.Errorf("invalid to date %q", cmd.To)
	}
	lo, hi, err := parseHourRange(cmd.Hours)
	if err != nil {
		return err
	}

	records, err := a.Engine.MarkUnavailable(ctx.Ctx, cmd.Machine, from, to, scheduler.HourRange{From: lo, To: hi})
	if err != nil {
		return err
	}
	for _, rec := range records {
		ctx.ok(fmt.Sprintf("%s unavailable hours %v", rec.Date, []int(rec.UnavailableHours)))
	}
	return nil
}

type AvailabilityShowCmd struct {
	Machine string `arg:"" help:"Machine id or name."`
	Date    string `arg:"" help:"Date, YYYY-MM-DD."`
}

func (cmd *AvailabilityShowCmd) Run(ctx *Context) error {
	a, err := ctx.App()
	if err != nil {
		return err
	}
	date, err := time.ParseInLocation(models.DateLayout, cmd.Date, a.Engine.Location())
	if err != nil {
		return fmt.Errorf("invalid date %q", cmd.Date)
	}
	hours, err := a.Engine.Availability(ctx.Ctx, cmd.Machine, date)
	if err != nil {
		return err
	}
	if len(hours) == 0 {
		ctx.ok(cmd.Date + " fully available")
		return nil
	}
	ctx.warn(fmt.Sprintf("%s unavailable hours %v", cmd.Date, hours), "")
	return nil
}

type KeyringSetCmd struct {
	DSN string `arg:"" help:"Postgres connection string."`
}

func (cmd *KeyringSetCmd) Run(ctx *Context) error {
	if err := config.SetConnectionString(cmd.DSN); err != nil {
		return err
	}
	ctx.ok("connection string stored in the system keyring")
	return nil
}

type KeyringDeleteCmd struct{}

func (cmd *KeyringDeleteCmd) Run(ctx *Context) error {
	if err := config.DeleteConnectionString(); err != nil {
		return err
	}
	ctx.ok("connection string removed from the system keyring")
	return nil
}
