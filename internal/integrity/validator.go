package integrity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
)

// Catalog is the part of the persistence gateway the validator needs.
type Catalog interface {
	ListMachines(ctx context.Context) ([]models.Machine, error)
	ListOrders(ctx context.Context) ([]models.ProductionOrder, error)
	UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (models.ProductionOrder, error)
}

// Notifier receives the integrity summary after each check.
type Notifier interface {
	Notify(n models.Notification)
}

// Unscheduler clears an order's placement only while it still matches seen,
// returning an error wrapping models.ErrPlacementChanged otherwise.
type Unscheduler interface {
	UnscheduleIfPlaced(ctx context.Context, seen models.ProductionOrder) (models.ProductionOrder, error)
}

// Validator runs integrity checks against the live catalogs.
type Validator struct {
	catalog     Catalog
	notifier    Notifier
	unscheduler Unscheduler
	logger      *log.Logger
	now         func() time.Time
}

// NewValidator returns a validator. notifier and logger may be nil.
func NewValidator(catalog Catalog, notifier Notifier, logger *log.Logger) *Validator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Validator{catalog: catalog, notifier: notifier, logger: logger, now: time.Now}
}

// WithUnscheduler routes remediation writes through u instead of writing
// the catalog directly.
func (v *Validator) WithUnscheduler(u Unscheduler) *Validator {
	v.unscheduler = u
	return v
}

// Check derives events from the order catalog and reports dangling
// references. It never writes.
func (v *Validator) Check(ctx context.Context) (Report, error) {
	machines, orders, err := v.load(ctx)
	if err != nil {
		return Report{}, err
	}
	events := make([]models.ScheduledEvent, 0, len(orders))
	for _, o := range orders {
		if ev, ok := o.Event(); ok {
			events = append(events, ev)
		}
	}
	return v.report(snapshot(DetectOrphans(machines, orders, events), orders)), nil
}

// CheckEvents validates an externally supplied event list, such as one kept
// by an older client, against the live catalogs.
func (v *Validator) CheckEvents(ctx context.Context, events []models.ScheduledEvent) (Report, error) {
	machines, orders, err := v.load(ctx)
	if err != nil {
		return Report{}, err
	}
	return v.report(snapshot(DetectOrphans(machines, orders, events), orders)), nil
}

func snapshot(r Report, orders []models.ProductionOrder) Report {
	flagged := make(map[string]struct{})
	for _, ev := range r.OrphanMachineEvents {
		flagged[ev.OrderID] = struct{}{}
	}
	for _, id := range r.InconsistentOrders {
		flagged[id] = struct{}{}
	}
	r.Seen = make(map[string]models.ProductionOrder, len(flagged))
	for _, o := range orders {
		if _, ok := flagged[o.ID]; ok {
			r.Seen[o.ID] = o
		}
	}
	return r
}

func (v *Validator) load(ctx context.Context) ([]models.Machine, []models.ProductionOrder, error) {
	machines, err := v.catalog.ListMachines(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("integrity: list machines: %w", err)
	}
	orders, err := v.catalog.ListOrders(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("integrity: list orders: %w", err)
	}
	return machines, orders, nil
}

func (v *Validator) report(r Report) Report {
	if r.Clean() {
		v.logger.Debug("integrity check clean", "events", r.EventCount)
	} else {
		v.logger.Warn("integrity issues found",
			"orphan_events", r.OrphanEventCount(),
			"missing_machines", r.MissingMachineKeys,
			"inconsistent_orders", len(r.InconsistentOrders))
	}
	if v.notifier != nil {
		n := r.Notification()
		n.ID = uuid.NewString()
		n.At = v.now().UTC()
		v.notifier.Notify(n)
	}
	return r
}

// Remediation lists the orders whose scheduling fields were cleared.
type Remediation struct {
	Unscheduled []string `json:"unscheduled"`
	Skipped     []string `json:"skipped"`
	// Moved orders changed placement after the check and were kept.
	Moved []string `json:"moved"`
}

// Remediate clears the scheduling fields of every order still present that
// the report flags, which is the same as forcing an unschedule. Orders the
// scheduler does not manage (in progress, completed) are skipped, and orders
// whose placement changed since the check are reported as moved. It stops at
// the first write error and returns what was done so far.
func (v *Validator) Remediate(ctx context.Context, r Report) (Remediation, error) {
	_, orders, err := v.load(ctx)
	if err != nil {
		return Remediation{}, err
	}
	byID := make(map[string]models.ProductionOrder, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}

	targets := make([]string, 0, len(r.OrphanOrderEvents)+len(r.OrphanMachineEvents)+len(r.InconsistentOrders))
	seen := make(map[string]struct{})
	add := func(id string) {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			targets = append(targets, id)
		}
	}
	for _, ev := range r.OrphanOrderEvents {
		add(ev.OrderID)
	}
	for _, ev := range r.OrphanMachineEvents {
		add(ev.OrderID)
	}
	for _, id := range r.InconsistentOrders {
		add(id)
	}

	res := Remediation{Unscheduled: []string{}, Skipped: []string{}, Moved: []string{}}
	for _, id := range targets {
		o, ok := byID[id]
		if !ok {
			continue
		}
		if o.Status != models.OrderScheduled && o.Status != models.OrderNotScheduled {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		if prev, flagged := r.Seen[id]; flagged && !prev.SamePlacement(o) {
			res.Moved = append(res.Moved, id)
			v.logger.Info("order moved since check, kept", "order", o.OrderNumber)
			continue
		}
		err := v.unschedule(ctx, o)
		if errors.Is(err, models.ErrPlacementChanged) {
			res.Moved = append(res.Moved, id)
			v.logger.Info("order moved since check, kept", "order", o.OrderNumber)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("integrity: unschedule order %s: %w", id, err)
		}
		res.Unscheduled = append(res.Unscheduled, id)
		v.logger.Info("cleared orphaned schedule", "order", o.OrderNumber)
	}
	return res, nil
}

func (v *Validator) unschedule(ctx context.Context, o models.ProductionOrder) error {
	if v.unscheduler != nil {
		_, err := v.unscheduler.UnscheduleIfPlaced(ctx, o)
		return err
	}
	if _, err := v.catalog.UpdateOrder(ctx, o.ID, models.UnschedulePatch()); err != nil {
		return err
	}
	if v.notifier != nil {
		v.notifier.Notify(models.Notification{
			ID:      uuid.NewString(),
			Type:    models.NotificationUnscheduled,
			OrderID: o.ID,
			At:      v.now().UTC(),
		})
	}
	return nil
}
