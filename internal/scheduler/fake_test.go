package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
)

// memGateway is an in-memory Gateway for engine tests.
type memGateway struct {
	mu           sync.Mutex
	machines     []models.Machine
	orders       map[string]models.ProductionOrder
	ids          []string
	availability map[string][]int
	updates      int

	// beforeUpdate runs inside UpdateOrder before the patch is applied.
	beforeUpdate func()
	updateErr    error
}

func newMemGateway(machines []models.Machine, orders ...models.ProductionOrder) *memGateway {
	g := &memGateway{
		machines:     machines,
		orders:       make(map[string]models.ProductionOrder),
		availability: make(map[string][]int),
	}
	for _, o := range orders {
		g.orders[o.ID] = o
		g.ids = append(g.ids, o.ID)
	}
	return g
}

func (g *memGateway) ListMachines(context.Context) ([]models.Machine, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.machines), nil
}

func (g *memGateway) ListOrders(context.Context) ([]models.ProductionOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.ProductionOrder, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, g.orders[id])
	}
	return out, nil
}

func (g *memGateway) UpdateOrder(_ context.Context, id string, patch models.OrderPatch) (models.ProductionOrder, error) {
	if g.beforeUpdate != nil {
		g.beforeUpdate()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateErr != nil {
		return models.ProductionOrder{}, g.updateErr
	}
	o, ok := g.orders[id]
	if !ok {
		return models.ProductionOrder{}, errors.New("record not found")
	}
	patch.ApplyTo(&o)
	g.orders[id] = o
	g.updates++
	return o, nil
}

func (g *memGateway) GetAvailability(_ context.Context, machineID string, date time.Time) ([]int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.availability[machineID+"/"+date.Format(models.DateLayout)]), nil
}

func (g *memGateway) SetAvailability(_ context.Context, machineID string, date time.Time, hours []int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.availability[machineID+"/"+date.Format(models.DateLayout)] = slices.Clone(hours)
	return nil
}

// set replaces an order as another client would.
func (g *memGateway) set(o models.ProductionOrder) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.orders[o.ID]; !ok {
		return errors.New("record not found")
	}
	g.orders[o.ID] = o
	return nil
}

func (g *memGateway) order(id string) models.ProductionOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.orders[id]
}

func ptr[T any](v T) *T { return &v }

func printingMachine(id, name string, maxWidth float64) models.Machine {
	return models.Machine{
		ID:              id,
		Name:            name,
		WorkCenter:      models.WorkCenterZanica,
		Department:      models.DepartmentPrinting,
		MachineType:     models.MachineTypeFlexo,
		Status:          models.MachineActive,
		MaxWebWidth:     ptr(maxWidth),
		SetupTime:       ptr(0.5),
		ChangeoverColor: ptr(0.25),
	}
}

func backlogOrder(id, number string, width, hours float64) models.ProductionOrder {
	return models.ProductionOrder{
		ID:          id,
		OrderNumber: number,
		BagWidth:    width,
		BagHeight:   300,
		BagStep:     10,
		Department:  models.DepartmentPrinting,
		Quantity:    1000,
		Duration:    hours,
		Status:      models.OrderNotScheduled,
	}
}

func scheduledOrder(id, number, machineID string, start time.Time, hours float64) models.ProductionOrder {
	o := backlogOrder(id, number, 400, hours)
	end := start.Add(time.Duration(hours * float64(time.Hour)))
	o.ScheduledMachineID = &machineID
	o.ScheduledStartTime = &start
	o.ScheduledEndTime = &end
	o.Status = models.OrderScheduled
	return o
}

type recordedNotifications struct {
	mu  sync.Mutex
	got []models.Notification
}

func (r *recordedNotifications) Notify(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordedNotifications) types() []models.NotificationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NotificationType, 0, len(r.got))
	for _, n := range r.got {
		out = append(out, n.Type)
	}
	return out
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingRecorder) ObserveMutation(op, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	c.outcomes[op+"/"+outcome]++
}
