package database

import (
	"context"
	"fmt"

	"github.com/arnavshah/odp-scheduler-go/internal/integrity"
	"github.com/arnavshah/odp-scheduler-go/internal/models"
	"github.com/google/uuid"
)

// InvalidError wraps catalog validation failures.
type InvalidError struct {
	Err error
}

func (e *InvalidError) Error() string { return "invalid record: " + e.Err.Error() }

// Unwrap exposes the validation error.
func (e *InvalidError) Unwrap() error { return e.Err }

// ErrorKind labels the error for logs and HTTP mapping.
func (e *InvalidError) ErrorKind() string { return "invalid" }

// CreateMachine validates and inserts a machine.
func (g *Gateway) CreateMachine(ctx context.Context, m models.Machine) (models.Machine, error) {
	if m.Status == "" {
		m.Status = models.MachineActive
	}
	if err := m.Validate(); err != nil {
		return models.Machine{}, &InvalidError{Err: err}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := g.DB.WithContext(ctx).Create(&m).Error; err != nil {
		return models.Machine{}, err
	}
	return m, nil
}

// GetMachine returns a machine by id.
func (g *Gateway) GetMachine(ctx context.Context, id string) (models.Machine, error) {
	var m models.Machine
	if err := g.DB.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return models.Machine{}, notFound(err, "machine", id)
	}
	return m, nil
}

// UpdateMachineStatus changes the operating status of a machine.
func (g *Gateway) UpdateMachineStatus(ctx context.Context, id string, status models.MachineStatus) (models.Machine, error) {
	if !status.Valid() {
		return models.Machine{}, &InvalidError{Err: fmt.Errorf("unknown machine status %q", status)}
	}
	m, err := g.GetMachine(ctx, id)
	if err != nil {
		return models.Machine{}, err
	}
	if err := g.DB.WithContext(ctx).Model(&m).Update("status", status).Error; err != nil {
		return models.Machine{}, err
	}
	m.Status = status
	return m, nil
}

// DeleteMachine removes a machine. Orders still scheduled on it become
// orphans for the integrity check to report.
func (g *Gateway) DeleteMachine(ctx context.Context, id string) error {
	res := g.DB.WithContext(ctx).Delete(&models.Machine{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: machine %s", ErrNotFound, id)
	}
	return nil
}

// ListPhases returns every phase ordered by name.
func (g *Gateway) ListPhases(ctx context.Context) ([]models.Phase, error) {
	var phases []models.Phase
	if err := g.DB.WithContext(ctx).Order("name").Find(&phases).Error; err != nil {
		return nil, err
	}
	return phases, nil
}

// CreatePhase inserts a phase.
func (g *Gateway) CreatePhase(ctx context.Context, p models.Phase) (models.Phase, error) {
	if p.Name == "" {
		return models.Phase{}, &InvalidError{Err: fmt.Errorf("name is required")}
	}
	if !p.Department.Valid() {
		return models.Phase{}, &InvalidError{Err: fmt.Errorf("unknown department %q", p.Department)}
	}
	if p.SetupTime < 0 || p.Speed < 0 {
		return models.Phase{}, &InvalidError{Err: fmt.Errorf("setup_time and speed must be >= 0")}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := g.DB.WithContext(ctx).Create(&p).Error; err != nil {
		return models.Phase{}, err
	}
	return p, nil
}

// CreateOrder inserts a new order into the backlog. Scheduling fields are
// ignored: only the scheduler writes them.
func (g *Gateway) CreateOrder(ctx context.Context, o models.ProductionOrder) (models.ProductionOrder, error) {
	o.ScheduledMachineID = nil
	o.ScheduledStartTime = nil
	o.ScheduledEndTime = nil
	o.Status = models.OrderNotScheduled
	if err := o.Validate(); err != nil {
		return models.ProductionOrder{}, &InvalidError{Err: err}
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if err := g.DB.WithContext(ctx).Create(&o).Error; err != nil {
		return models.ProductionOrder{}, err
	}
	return o, nil
}

// GetOrder returns an order by id.
func (g *Gateway) GetOrder(ctx context.Context, id string) (models.ProductionOrder, error) {
	var o models.ProductionOrder
	if err := g.DB.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return models.ProductionOrder{}, notFound(err, "order", id)
	}
	return o, nil
}

// DeleteOrder removes an order. Scheduled orders are rejected with
// *integrity.OrderScheduledError. The status condition is part of the DELETE
// itself, so an order scheduled after the check is never removed.
func (g *Gateway) DeleteOrder(ctx context.Context, id string) error {
	o, err := g.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if err := integrity.EnsureDeletable(o); err != nil {
		return err
	}
	res := g.DB.WithContext(ctx).
		Where("id = ? AND status <> ?", id, models.OrderScheduled).
		Delete(&models.ProductionOrder{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	o, err = g.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if err := integrity.EnsureDeletable(o); err != nil {
		return err
	}
	return fmt.Errorf("delete order %s: no rows removed", id)
}
