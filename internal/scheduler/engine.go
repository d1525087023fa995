package scheduler

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
	"github.com/arnavshah/odp-scheduler-go/internal/timegrid"
)

// Options configures an Engine. Zero values select no-op collaborators, UTC
// and time.Now.
type Options struct {
	Notifier Notifier
	Recorder Recorder
	Logger   *log.Logger
	// Location is used to split ranges into calendar days for availability
	// and to resolve drop targets.
	Location *time.Location
	Now      func() time.Time
}

// Engine validates and applies schedule, unschedule and reschedule commands.
type Engine struct {
	gw       Gateway
	store    *Store
	avail    *AvailabilityIndex
	notifier Notifier
	recorder Recorder
	logger   *log.Logger
	loc      *time.Location
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
	machines map[string]*sync.Mutex

	// gate is held shared by mutations from validation until the result is
	// folded into the store, and exclusively by Refresh, so a rebuild never
	// uses a catalog read that predates an accepted write.
	gate sync.RWMutex
}

// NewEngine wires an engine to its gateway and projection.
func NewEngine(gw Gateway, store *Store, opts Options) *Engine {
	e := &Engine{
		gw:       gw,
		store:    store,
		avail:    NewAvailabilityIndex(),
		notifier: opts.Notifier,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		loc:      opts.Location,
		now:      opts.Now,
		inflight: make(map[string]struct{}),
		machines: make(map[string]*sync.Mutex),
	}
	if e.store == nil {
		e.store = NewStore()
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard)
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Store returns the projection the engine reads from.
func (e *Engine) Store() *Store { return e.store }

// Location returns the time zone used for calendar days.
func (e *Engine) Location() *time.Location { return e.loc }

// Refresh reloads both catalogs and rebuilds the projection.
func (e *Engine) Refresh(ctx context.Context) error {
	e.gate.Lock()
	defer e.gate.Unlock()

	machines, err := e.gw.ListMachines(ctx)
	if err != nil {
		return &PersistenceFailure{Op: "list machines", Err: err}
	}
	orders, err := e.gw.ListOrders(ctx)
	if err != nil {
		return &PersistenceFailure{Op: "list orders", Err: err}
	}
	e.store.Rebuild(machines, orders)
	e.logger.Debug("projection rebuilt", "machines", len(machines), "orders", len(orders))
	return nil
}

// Schedule places a backlog order on a machine starting at start.
func (e *Engine) Schedule(ctx context.Context, orderID, machineID string, start time.Time) (models.ProductionOrder, error) {
	updated, err := e.schedule(ctx, orderID, machineID, start)
	e.finish("schedule", orderID, err)
	return updated, err
}

func (e *Engine) schedule(ctx context.Context, orderID, machineID string, start time.Time) (models.ProductionOrder, error) {
	release, err := e.acquire(orderID)
	if err != nil {
		return models.ProductionOrder{}, err
	}
	defer release()
	e.gate.RLock()
	defer e.gate.RUnlock()

	order, ok := e.store.Order(orderID)
	if !ok {
		return models.ProductionOrder{}, precondition(orderID, ErrOrderNotFound)
	}
	switch order.Status {
	case models.OrderNotScheduled:
	case models.OrderScheduled:
		return models.ProductionOrder{}, precondition(orderID, ErrAlreadyScheduled)
	default:
		return models.ProductionOrder{}, precondition(orderID, ErrStatusLocked)
	}
	machine, ok := e.store.Machine(machineID)
	if !ok {
		return models.ProductionOrder{}, precondition(orderID, ErrMachineNotFound)
	}
	defer e.lockMachines(machine.ID)()

	version := e.store.Version(orderID)
	end, err := e.validate(ctx, order, machine, start, "")
	if err != nil {
		return models.ProductionOrder{}, err
	}
	updated, err := e.write(ctx, "schedule", orderID, models.SchedulePatch(machine.ID, start, end), version)
	if err != nil {
		return models.ProductionOrder{}, err
	}
	e.emit(models.NotificationScheduled, orderID)
	return updated, nil
}

// Unschedule returns a scheduled order to the backlog.
func (e *Engine) Unschedule(ctx context.Context, orderID string) (models.ProductionOrder, error) {
	updated, err := e.unschedule(ctx, orderID)
	e.finish("unschedule", orderID, err)
	return updated, err
}

func (e *Engine) unschedule(ctx context.Context, orderID string) (models.ProductionOrder, error) {
	release, err := e.acquire(orderID)
	if err != nil {
		return models.ProductionOrder{}, err
	}
	defer release()
	e.gate.RLock()
	defer e.gate.RUnlock()

	order, ok := e.store.Order(orderID)
	if !ok {
		return models.ProductionOrder{}, precondition(orderID, ErrOrderNotFound)
	}
	if err := requireScheduled(order); err != nil {
		return models.ProductionOrder{}, err
	}

	version := e.store.Version(orderID)
	updated, err := e.write(ctx, "unschedule", orderID, models.UnschedulePatch(), version)
	if err != nil {
		return models.ProductionOrder{}, err
	}
	e.emit(models.NotificationUnscheduled, orderID)
	return updated, nil
}

// Reschedule moves a scheduled order to a new machine and start time with a
// single write. When the target fails validation the order keeps its current
// placement.
func (e *Engine) Reschedule(ctx context.Context, orderID, machineID string, start time.Time) (models.ProductionOrder, error) {
	updated, err := e.reschedule(ctx, orderID, machineID, start)
	e.finish("reschedule", orderID, err)
	return updated, err
}

func (e *Engine) reschedule(ctx context.Context, orderID, machineID string, start time.Time) (models.ProductionOrder, error) {
	release, err := e.acquire(orderID)
	if err != nil {
		return models.ProductionOrder{}, err
	}
	defer release()
	e.gate.RLock()
	defer e.gate.RUnlock()

	order, ok := e.store.Order(orderID)
	if !ok {
		return models.ProductionOrder{}, precondition(orderID, ErrOrderNotFound)
	}
	if err := requireScheduled(order); err != nil {
		return models.ProductionOrder{}, err
	}
	machine, ok := e.store.Machine(machineID)
	if !ok {
		return models.ProductionOrder{}, precondition(orderID, ErrMachineNotFound)
	}
	held := []string{machine.ID}
	if order.ScheduledMachineID != nil {
		if current, ok := e.store.Machine(*order.ScheduledMachineID); ok {
			held = append(held, current.ID)
		}
	}
	defer e.lockMachines(held...)()

	version := e.store.Version(orderID)
	end, err := e.validate(ctx, order, machine, start, orderID)
	if err != nil {
		return models.ProductionOrder{}, err
	}
	updated, err := e.write(ctx, "reschedule", orderID, models.SchedulePatch(machine.ID, start, end), version)
	if err != nil {
		return models.ProductionOrder{}, err
	}
	e.emit(models.NotificationRescheduled, orderID)
	return updated, nil
}

// UnscheduleIfPlaced clears the placement of an order only while it still
// equals the one in seen. Integrity remediation uses it so an order moved
// after the check is left alone. Orders with incomplete scheduling fields are
// cleared too.
func (e *Engine) UnscheduleIfPlaced(ctx context.Context, seen models.ProductionOrder) (models.ProductionOrder, error) {
	updated, err := e.unscheduleIfPlaced(ctx, seen)
	e.finish("unschedule", seen.ID, err)
	return updated, err
}

func (e *Engine) unscheduleIfPlaced(ctx context.Context, seen models.ProductionOrder) (models.ProductionOrder, error) {
	release, err := e.acquire(seen.ID)
	if err != nil {
		return models.ProductionOrder{}, fmt.Errorf("%w: %w", models.ErrPlacementChanged, err)
	}
	defer release()
	e.gate.RLock()
	defer e.gate.RUnlock()

	order, ok := e.store.Order(seen.ID)
	if !ok {
		return models.ProductionOrder{}, precondition(seen.ID, fmt.Errorf("%w: %w", models.ErrPlacementChanged, ErrOrderNotFound))
	}
	if !order.SamePlacement(seen) {
		return models.ProductionOrder{}, precondition(seen.ID, models.ErrPlacementChanged)
	}
	if order.Status != models.OrderScheduled && order.Status != models.OrderNotScheduled {
		return models.ProductionOrder{}, precondition(seen.ID, ErrStatusLocked)
	}

	version := e.store.Version(seen.ID)
	updated, err := e.write(ctx, "unschedule", seen.ID, models.UnschedulePatch(), version)
	if err != nil {
		return models.ProductionOrder{}, err
	}
	e.emit(models.NotificationUnscheduled, seen.ID)
	return updated, nil
}

func requireScheduled(order models.ProductionOrder) error {
	switch order.Status {
	case models.OrderScheduled:
		return nil
	case models.OrderNotScheduled:
		return precondition(order.ID, ErrNotScheduled)
	default:
		return precondition(order.ID, ErrStatusLocked)
	}
}

// DropOnSlot resolves a drop on the grid cell at hour:minute of day. A backlog
// order is scheduled, a scheduled order is rescheduled.
func (e *Engine) DropOnSlot(ctx context.Context, orderID, machineID string, day time.Time, hour, minute int) (models.ProductionOrder, error) {
	slot, err := timegrid.SlotIndex(hour, minute)
	if err != nil {
		return models.ProductionOrder{}, precondition(orderID, fmt.Errorf("%w: %v", ErrInvalidSlot, err))
	}
	y, m, d := day.Date()
	start, err := timegrid.SlotStart(time.Date(y, m, d, 0, 0, 0, 0, e.loc), slot)
	if err != nil {
		return models.ProductionOrder{}, precondition(orderID, fmt.Errorf("%w: %v", ErrInvalidSlot, err))
	}

	if order, ok := e.store.Order(orderID); ok && order.IsScheduled() {
		return e.Reschedule(ctx, orderID, machineID, start)
	}
	return e.Schedule(ctx, orderID, machineID, start)
}

// DropOnPool returns an order to the backlog.
func (e *Engine) DropOnPool(ctx context.Context, orderID string) (models.ProductionOrder, error) {
	return e.Unschedule(ctx, orderID)
}

// CommandKind names a planner command.
type CommandKind string

const (
	CommandDropOnSlot CommandKind = "drop_on_slot"
	CommandDropOnPool CommandKind = "drop_on_pool"
)

// Command is a gesture-free planner request.
type Command struct {
	Kind      CommandKind `json:"kind"`
	OrderID   string      `json:"orderId"`
	MachineID string      `json:"machineId,omitempty"`
	Day       time.Time   `json:"day,omitempty"`
	Hour      int         `json:"hour,omitempty"`
	Minute    int         `json:"minute,omitempty"`
}

// Dispatch runs one command.
func (e *Engine) Dispatch(ctx context.Context, cmd Command) (models.ProductionOrder, error) {
	switch cmd.Kind {
	case CommandDropOnSlot:
		return e.DropOnSlot(ctx, cmd.OrderID, cmd.MachineID, cmd.Day, cmd.Hour, cmd.Minute)
	case CommandDropOnPool:
		return e.DropOnPool(ctx, cmd.OrderID)
	default:
		return models.ProductionOrder{}, fmt.Errorf("scheduler: unknown command %q", cmd.Kind)
	}
}

// Compatibility checks an order against a machine by id.
func (e *Engine) Compatibility(orderID, machineID string) (Compatibility, error) {
	order, ok := e.store.Order(orderID)
	if !ok {
		return Compatibility{}, precondition(orderID, ErrOrderNotFound)
	}
	machine, ok := e.store.Machine(machineID)
	if !ok {
		return Compatibility{}, precondition(orderID, ErrMachineNotFound)
	}
	return CheckCompatibility(&machine, &order), nil
}

// Availability returns the unavailable hours of a machine on a date.
func (e *Engine) Availability(ctx context.Context, machineID string, date time.Time) ([]int, error) {
	machine, ok := e.store.Machine(machineID)
	if !ok {
		return nil, precondition("", ErrMachineNotFound)
	}
	if err := e.loadAvailability(ctx, machine.ID, date); err != nil {
		return nil, err
	}
	return e.avail.Unavailable(machine.ID, date), nil
}

// MarkUnavailable blocks hours r on every date of the inclusive range
// [from, to] and persists each touched date.
func (e *Engine) MarkUnavailable(ctx context.Context, machineID string, from, to time.Time, r HourRange) ([]models.AvailabilityRecord, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	machine, ok := e.store.Machine(machineID)
	if !ok {
		return nil, precondition("", ErrMachineNotFound)
	}
	defer e.lockMachines(machine.ID)()
	from, to = e.day(from), e.day(to)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if err := e.loadAvailability(ctx, machine.ID, d); err != nil {
			return nil, err
		}
	}
	records, err := e.avail.SetUnavailable(machine.ID, from, to, r)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		date, err := time.ParseInLocation(models.DateLayout, rec.Date, e.loc)
		if err != nil {
			return nil, err
		}
		if err := e.gw.SetAvailability(ctx, machine.ID, date, rec.UnavailableHours); err != nil {
			return nil, &PersistenceFailure{Op: "set availability", Err: err}
		}
	}
	e.logger.Info("availability updated", "machine", machine.Name, "from", from.Format(models.DateLayout),
		"to", to.Format(models.DateLayout), "hours", r.Hours())
	return records, nil
}

func (e *Engine) day(t time.Time) time.Time {
	y, m, d := t.In(e.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.loc)
}

func (e *Engine) loadAvailability(ctx context.Context, machineID string, date time.Time) error {
	hours, err := e.gw.GetAvailability(ctx, machineID, date)
	if err != nil {
		return &PersistenceFailure{Op: "get availability", Err: err}
	}
	e.avail.Put(machineID, date, hours)
	return nil
}

// validate runs every placement rule and returns the computed end time. All
// failing rules are reported together. ignore names an order whose own event
// does not count as an overlap.
func (e *Engine) validate(ctx context.Context, order models.ProductionOrder, machine models.Machine, start time.Time, ignore string) (time.Time, error) {
	reasons := CheckCompatibility(&machine, &order).Reasons
	end := start.Add(order.DurationTime())
	if !end.After(start) {
		reasons = append(reasons, "order duration must be greater than zero")
		return end, &ValidationFailure{OrderID: order.ID, Reasons: reasons}
	}

	for _, day := range timegrid.CoveredHours(start, end, e.loc) {
		if err := e.loadAvailability(ctx, machine.ID, day.Date); err != nil {
			return end, err
		}
		if blocked := e.avail.Blocked(machine.ID, day.Date, day.Hours); len(blocked) > 0 {
			reasons = append(reasons, fmt.Sprintf("machine %s is unavailable on %s at hours %v",
				machine.Name, day.Date.Format(models.DateLayout), blocked))
		}
	}

	for _, ev := range e.store.EventsForMachine(machine.ID) {
		if ev.OrderID == ignore || !Overlap(start, end, ev.StartTime, ev.EndTime) {
			continue
		}
		label := ev.OrderID
		if other, ok := e.store.Order(ev.OrderID); ok {
			label = other.OrderNumber
		}
		reasons = append(reasons, fmt.Sprintf("overlaps order %s on machine %s from %s to %s",
			label, machine.Name, ev.StartTime.UTC().Format(time.RFC3339), ev.EndTime.UTC().Format(time.RFC3339)))
	}

	if len(reasons) > 0 {
		return end, &ValidationFailure{OrderID: order.ID, Reasons: reasons}
	}
	return end, nil
}

// write persists a patch and folds the result into the projection unless the
// order moved on while the call was in flight. A persisted write is folded in
// even when the caller went away, since later placements validate against it.
func (e *Engine) write(ctx context.Context, op, orderID string, patch models.OrderPatch, version uint64) (models.ProductionOrder, error) {
	updated, err := e.gw.UpdateOrder(ctx, orderID, patch)
	if err != nil {
		return models.ProductionOrder{}, &PersistenceFailure{Op: op, OrderID: orderID, Err: err}
	}
	if ctx.Err() != nil {
		e.logger.Warn("caller gone after write", "op", op, "order", orderID)
	}
	if !e.store.ApplyIfCurrent(updated, version) {
		e.logger.Warn("stale result discarded", "op", op, "order", orderID, "version", version)
	}
	return updated, nil
}

func (e *Engine) acquire(orderID string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[orderID]; busy {
		return nil, precondition(orderID, ErrOperationInProgress)
	}
	e.inflight[orderID] = struct{}{}
	return func() {
		e.mu.Lock()
		delete(e.inflight, orderID)
		e.mu.Unlock()
	}, nil
}

// lockMachines locks the given machines in id order and returns the unlock.
// Holding a machine lock from validation to write keeps two orders from
// claiming the same free range.
func (e *Engine) lockMachines(ids ...string) func() {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	e.mu.Lock()
	locks := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		l, ok := e.machines[id]
		if !ok {
			l = new(sync.Mutex)
			e.machines[id] = l
		}
		locks = append(locks, l)
	}
	e.mu.Unlock()

	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (e *Engine) emit(t models.NotificationType, orderID string) {
	e.notifier.Notify(models.Notification{
		ID:      uuid.NewString(),
		Type:    t,
		OrderID: orderID,
		At:      e.now().UTC(),
	})
}

func (e *Engine) finish(op, orderID string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = ErrorKind(err)
		e.logger.Warn("mutation rejected", "op", op, "order", orderID, "kind", outcome, "err", err)
	} else {
		e.logger.Info("mutation applied", "op", op, "order", orderID)
	}
	e.recorder.ObserveMutation(op, outcome)
}
