// Package integrity cross-checks the machine catalog, the order catalog and
// the scheduled events for references that no longer resolve.
package integrity

import (
	"fmt"
	"slices"
	"strings"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
)

// Report lists every dangling reference found by DetectOrphans. An event can
// appear in both orphan lists.
type Report struct {
	EventCount          int                     `json:"eventCount"`
	OrphanOrderEvents   []models.ScheduledEvent `json:"orphanOrderEvents"`
	OrphanMachineEvents []models.ScheduledEvent `json:"orphanMachineEvents"`
	// MissingMachineKeys are machine references used by events but absent
	// from the catalog, as opposed to malformed events.
	MissingMachineKeys []string `json:"missingMachineKeys"`
	// InconsistentOrders break the all-set-iff-SCHEDULED rule on their
	// scheduling fields.
	InconsistentOrders []string `json:"inconsistentOrders"`

	// Seen holds each flagged order as the catalog had it when the check
	// ran. Remediation leaves alone any order that changed since.
	Seen map[string]models.ProductionOrder `json:"-"`
}

// Clean reports whether nothing was flagged.
func (r Report) Clean() bool {
	return len(r.OrphanOrderEvents) == 0 && len(r.OrphanMachineEvents) == 0 && len(r.InconsistentOrders) == 0
}

// OrphanEventCount counts distinct events in either orphan list.
func (r Report) OrphanEventCount() int {
	return len(r.orphanIDs())
}

// OrphanMachineCount counts missing machine references.
func (r Report) OrphanMachineCount() int {
	return len(r.MissingMachineKeys)
}

func (r Report) orphanIDs() map[string]struct{} {
	ids := eventIDs(r.OrphanOrderEvents)
	for _, ev := range r.OrphanMachineEvents {
		ids[ev.ID] = struct{}{}
	}
	return ids
}

// Notification summarises the report for the rendering layer.
func (r Report) Notification() models.Notification {
	return models.Notification{
		Type:               models.NotificationIntegrity,
		OrphanEventCount:   r.OrphanEventCount(),
		OrphanMachineCount: r.OrphanMachineCount(),
	}
}

// Format renders the report for terminals and logs.
func (r Report) Format() string {
	if r.Clean() {
		return fmt.Sprintf("%d events checked, no issues found", r.EventCount)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d events checked, %d orphaned\n", r.EventCount, r.OrphanEventCount())
	for _, ev := range r.OrphanOrderEvents {
		fmt.Fprintf(&b, "  - %s: order %s does not exist\n", ev.ID, ev.OrderID)
	}
	for _, ev := range r.OrphanMachineEvents {
		fmt.Fprintf(&b, "  - %s: machine %s does not exist\n", ev.ID, ev.MachineID)
	}
	if len(r.MissingMachineKeys) > 0 {
		fmt.Fprintf(&b, "missing machines: %s\n", strings.Join(r.MissingMachineKeys, ", "))
	}
	if len(r.InconsistentOrders) > 0 {
		fmt.Fprintf(&b, "orders with inconsistent scheduling fields: %s\n", strings.Join(r.InconsistentOrders, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// DetectOrphans flags events whose order or machine is missing. A machine
// reference resolves when it matches either a machine id or a display key.
func DetectOrphans(machines []models.Machine, orders []models.ProductionOrder, events []models.ScheduledEvent) Report {
	machineKeys := make(map[string]struct{}, 2*len(machines))
	for _, m := range machines {
		machineKeys[m.ID] = struct{}{}
		machineKeys[m.DisplayKey()] = struct{}{}
	}
	orderIDs := make(map[string]struct{}, len(orders))
	report := Report{
		EventCount:          len(events),
		OrphanOrderEvents:   []models.ScheduledEvent{},
		OrphanMachineEvents: []models.ScheduledEvent{},
		MissingMachineKeys:  []string{},
		InconsistentOrders:  []string{},
	}
	for _, o := range orders {
		orderIDs[o.ID] = struct{}{}
		if !o.SchedulingConsistent() {
			report.InconsistentOrders = append(report.InconsistentOrders, o.ID)
		}
	}

	for _, ev := range events {
		if _, ok := orderIDs[ev.OrderID]; !ok {
			report.OrphanOrderEvents = append(report.OrphanOrderEvents, ev)
		}
		if _, ok := machineKeys[ev.MachineID]; !ok {
			report.OrphanMachineEvents = append(report.OrphanMachineEvents, ev)
			if !slices.Contains(report.MissingMachineKeys, ev.MachineID) {
				report.MissingMachineKeys = append(report.MissingMachineKeys, ev.MachineID)
			}
		}
	}
	slices.Sort(report.MissingMachineKeys)
	return report
}

// CleanupCounts is the number of events removed per category. Total counts
// each removed event once.
type CleanupCounts struct {
	OrderOrphans   int `json:"orderOrphans"`
	MachineOrphans int `json:"machineOrphans"`
	Total          int `json:"total"`
}

// Cleanup drops every event listed in the report and keeps the rest in order.
func Cleanup(events []models.ScheduledEvent, report Report) ([]models.ScheduledEvent, CleanupCounts) {
	byOrder := eventIDs(report.OrphanOrderEvents)
	byMachine := eventIDs(report.OrphanMachineEvents)
	var counts CleanupCounts
	retained := make([]models.ScheduledEvent, 0, len(events))
	for _, ev := range events {
		_, orderGone := byOrder[ev.ID]
		_, machineGone := byMachine[ev.ID]
		if orderGone {
			counts.OrderOrphans++
		}
		if machineGone {
			counts.MachineOrphans++
		}
		if orderGone || machineGone {
			counts.Total++
			continue
		}
		retained = append(retained, ev)
	}
	return retained, counts
}

func eventIDs(events []models.ScheduledEvent) map[string]struct{} {
	ids := make(map[string]struct{}, len(events))
	for _, ev := range events {
		ids[ev.ID] = struct{}{}
	}
	return ids
}

// OrderScheduledError rejects deleting an order that still occupies a machine.
type OrderScheduledError struct {
	OrderID     string
	OrderNumber string
}

func (e *OrderScheduledError) Error() string {
	return fmt.Sprintf("order %s is scheduled; unschedule it before deleting", e.OrderNumber)
}

// ErrorKind labels the error for logs and HTTP mapping.
func (e *OrderScheduledError) ErrorKind() string { return "order_scheduled" }

// EnsureDeletable is checked before any order delete is attempted.
func EnsureDeletable(order models.ProductionOrder) error {
	if order.IsScheduled() || order.ScheduledMachineID != nil {
		return &OrderScheduledError{OrderID: order.ID, OrderNumber: order.OrderNumber}
	}
	return nil
}
