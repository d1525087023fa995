package database

import (
	"context"
	"errors"
	"time"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gateway is the gorm backed persistence gateway. The same code serves the
// local SQLite store and a remote Postgres.
type Gateway struct {
	DB *gorm.DB
}

// NewGateway wraps an open connection.
func NewGateway(db *gorm.DB) *Gateway {
	return &Gateway{DB: db}
}

// ListMachines returns every machine ordered by name.
func (g *Gateway) ListMachines(ctx context.Context) ([]models.Machine, error) {
	var machines []models.Machine
	if err := g.DB.WithContext(ctx).Order("name").Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

// ListOrders returns every order, oldest first.
func (g *Gateway) ListOrders(ctx context.Context) ([]models.ProductionOrder, error) {
	var orders []models.ProductionOrder
	if err := g.DB.WithContext(ctx).Order("created_at, order_number").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrder applies a partial update by column name. Nil values are
// written as NULL.
func (g *Gateway) UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (models.ProductionOrder, error) {
	var order models.ProductionOrder
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, "id = ?", id).Error; err != nil {
			return notFound(err, "order", id)
		}
		if err := tx.Model(&order).Updates(map[string]any(patch)).Error; err != nil {
			return err
		}
		return tx.First(&order, "id = ?", id).Error
	})
	if err != nil {
		return models.ProductionOrder{}, err
	}
	return order, nil
}

// GetAvailability returns the unavailable hours of a machine on a date. A
// missing record means fully available.
func (g *Gateway) GetAvailability(ctx context.Context, machineID string, date time.Time) ([]int, error) {
	var rec models.AvailabilityRecord
	err := g.DB.WithContext(ctx).
		Where("machine_id = ? AND date = ?", machineID, date.Format(models.DateLayout)).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []int{}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.UnavailableHours.Normalize(), nil
}

// SetAvailability replaces the unavailable hours of a machine on a date.
func (g *Gateway) SetAvailability(ctx context.Context, machineID string, date time.Time, hours []int) error {
	// Use OnConflict for a single-query upsert (supported by both Postgres and SQLite)
	return g.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "machine_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"unavailable_hours", "updated_at"}),
	}).Create(&models.AvailabilityRecord{
		MachineID:        machineID,
		Date:             date.Format(models.DateLayout),
		UnavailableHours: models.Hours(hours).Normalize(),
	}).Error
}

// ListAvailability returns the records of a machine between two dates,
// inclusive.
func (g *Gateway) ListAvailability(ctx context.Context, machineID string, from, to time.Time) ([]models.AvailabilityRecord, error) {
	var recs []models.AvailabilityRecord
	err := g.DB.WithContext(ctx).
		Where("machine_id = ? AND date >= ? AND date <= ?", machineID, from.Format(models.DateLayout), to.Format(models.DateLayout)).
		Order("date").
		Find(&recs).Error
	return recs, err
}
