package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
	"github.com/arnavshah/odp-scheduler-go/internal/scheduler"
	"github.com/arnavshah/odp-scheduler-go/pkg/app"
	"github.com/arnavshah/odp-scheduler-go/pkg/database"
)

type DoctorCmd struct{}

func (cmd *DoctorCmd) Run(ctx *Context) error {
	fmt.Fprintln(ctx.Out, "Running diagnostics...")
	fmt.Fprintln(ctx.Out)

	a, err := ctx.App()
	if err != nil {
		ctx.fail("Database reachable", err)
		return errors.New("one or more health checks failed")
	}

	hasError := false
	check := func(label string, err error) {
		if err != nil {
			ctx.fail(label, err)
			hasError = true
			return
		}
		ctx.ok(label)
	}

	check("Database reachable", database.Ping(a.DB))
	check("Scheduling fields consistent", checkProjection(a))

	report, err := a.Validator.Check(ctx.Ctx)
	switch {
	case err != nil:
		check("Integrity", err)
	case report.Clean():
		ctx.ok("Integrity")
	default:
		ctx.warn("Integrity", report.Format())
	}

	check("Clock/timezone", checkClock(a))

	fmt.Fprintln(ctx.Out)
	if hasError {
		fmt.Fprintln(ctx.Out, "Diagnostics completed with errors.")
		return errors.New("one or more health checks failed")
	}
	fmt.Fprintln(ctx.Out, "All diagnostics passed!")
	return nil
}

// checkProjection verifies the status rule on every order and that no two
// events on one machine overlap.
func checkProjection(a *app.App) error {
	store := a.Engine.Store()
	for _, o := range store.Orders() {
		if !o.SchedulingConsistent() {
			return fmt.Errorf("order %s has inconsistent scheduling fields", o.OrderNumber)
		}
	}
	for _, m := range store.Machines() {
		events := store.EventsForMachine(m.ID)
		var latest models.ScheduledEvent
		// Sorted by start, so comparing with the latest-ending earlier event is enough.
		for i := 1; i < len(events); i++ {
			if i == 1 || events[i-1].EndTime.After(latest.EndTime) {
				latest = events[i-1]
			}
			cur := events[i]
			if scheduler.Overlap(latest.StartTime, latest.EndTime, cur.StartTime, cur.EndTime) {
				return fmt.Errorf("orders %s and %s overlap on %s", latest.OrderID, cur.OrderID, m.Name)
			}
		}
	}
	return nil
}

func checkClock(a *app.App) error {
	if time.Now().Year() < 2020 {
		return errors.New("system clock looks wrong")
	}
	if a.Engine.Location() == nil {
		return errors.New("no time zone configured")
	}
	return nil
}
