// Package scheduler places production orders onto machine time ranges. The
// order catalog is the only source of scheduling state: events are derived
// from it by Store and every change goes through Gateway.UpdateOrder.
package scheduler

import (
	"context"
	"time"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
)

// Gateway is the persistence contract the engine consumes. Implementations
// may be local or remote and may block.
type Gateway interface {
	ListMachines(ctx context.Context) ([]models.Machine, error)
	ListOrders(ctx context.Context) ([]models.ProductionOrder, error)
	// UpdateOrder applies a partial update; nil values clear columns.
	UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (models.ProductionOrder, error)
	GetAvailability(ctx context.Context, machineID string, date time.Time) ([]int, error)
	SetAvailability(ctx context.Context, machineID string, date time.Time, hours []int) error
}

// Notifier receives notifications for the rendering layer.
type Notifier interface {
	Notify(n models.Notification)
}

// Recorder observes the outcome of mutating operations.
type Recorder interface {
	ObserveMutation(operation, outcome string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(models.Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n models.Notification) { f(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(models.Notification) {}

type nopRecorder struct{}

func (nopRecorder) ObserveMutation(string, string) {}

// Overlap checks if two half-open time ranges overlap
func Overlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
