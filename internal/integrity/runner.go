package integrity

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the periodic check every quarter of an hour.
const DefaultSchedule = "@every 15m"

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Schedule is a cron spec or descriptor. Empty means DefaultSchedule.
	Schedule string
	// AutoClean remediates every non-clean report. Otherwise reports are only
	// logged and notified.
	AutoClean bool
	// AfterRemediate is called once orders were changed, typically to
	// refresh the scheduling projection.
	AfterRemediate func(context.Context) error
	// OnReport sees every successful check, for example to export gauges.
	OnReport func(Report)
	Timeout  time.Duration
	Logger   *log.Logger
}

// Runner checks integrity on start and then on a cron schedule.
type Runner struct {
	validator *Validator
	opts      RunnerOptions
	cron      *cron.Cron
	logger    *log.Logger

	mu   sync.Mutex
	last Report
}

// NewRunner parses the schedule and prepares a runner.
func NewRunner(v *Validator, opts RunnerOptions) (*Runner, error) {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	r := &Runner{validator: v, opts: opts, cron: cron.New(), logger: logger}
	if _, err := r.cron.AddFunc(opts.Schedule, r.tick); err != nil {
		return nil, fmt.Errorf("integrity: invalid schedule %q: %w", opts.Schedule, err)
	}
	return r, nil
}

// Start runs one check synchronously and starts the scheduler.
func (r *Runner) Start(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("startup integrity check failed", "err", err)
	}
	r.cron.Start()
}

// Stop halts the schedule and waits for a running check to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// Last returns the most recent report.
func (r *Runner) Last() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.Timeout)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("scheduled integrity check failed", "err", err)
	}
}

// RunOnce checks and, when configured, remediates.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	report, err := r.validator.Check(ctx)
	if err != nil {
		return Report{}, err
	}
	r.mu.Lock()
	r.last = report
	r.mu.Unlock()
	if r.opts.OnReport != nil {
		r.opts.OnReport(report)
	}

	if report.Clean() || !r.opts.AutoClean {
		return report, nil
	}
	res, err := r.validator.Remediate(ctx, report)
	if err != nil {
		return report, err
	}
	r.logger.Info("integrity remediated", "unscheduled", len(res.Unscheduled), "skipped", len(res.Skipped), "moved", len(res.Moved))
	if len(res.Unscheduled) > 0 && r.opts.AfterRemediate != nil {
		if err := r.opts.AfterRemediate(ctx); err != nil {
			return report, err
		}
	}
	return report, nil
}
