package models

import (
	"errors"
	"time"
)

// ErrPlacementChanged is returned by conditional writes when the order no
// longer has the scheduling state the caller saw.
var ErrPlacementChanged = errors.New("order placement changed")

// Persisted column names of the order scheduling state.
const (
	FieldScheduledMachineID = "scheduled_machine_id"
	FieldScheduledStartTime = "scheduled_start_time"
	FieldScheduledEndTime   = "scheduled_end_time"
	FieldStatus             = "status"
	FieldColor              = "color"
)

// OrderPatch is a partial order update keyed by column name. A nil value
// clears the column.
type OrderPatch map[string]any

// SchedulePatch places an order on machineID for [start, end).
func SchedulePatch(machineID string, start, end time.Time) OrderPatch {
	start, end = start.UTC(), end.UTC()
	return OrderPatch{
		FieldScheduledMachineID: machineID,
		FieldScheduledStartTime: start,
		FieldScheduledEndTime:   end,
		FieldStatus:             string(OrderScheduled),
	}
}

// UnschedulePatch returns an order to the backlog.
func UnschedulePatch() OrderPatch {
	return OrderPatch{
		FieldScheduledMachineID: nil,
		FieldScheduledStartTime: nil,
		FieldScheduledEndTime:   nil,
		FieldStatus:             string(OrderNotScheduled),
	}
}

// ApplyTo copies the patch onto an in-memory order. Unknown keys are ignored.
func (p OrderPatch) ApplyTo(o *ProductionOrder) {
	for key, value := range p {
		switch key {
		case FieldScheduledMachineID:
			o.ScheduledMachineID = stringPtr(value)
		case FieldScheduledStartTime:
			o.ScheduledStartTime = timePtr(value)
		case FieldScheduledEndTime:
			o.ScheduledEndTime = timePtr(value)
		case FieldStatus:
			switch v := value.(type) {
			case string:
				o.Status = OrderStatus(v)
			case OrderStatus:
				o.Status = v
			}
		case FieldColor:
			if v, ok := value.(string); ok {
				o.Color = v
			}
		}
	}
}

func stringPtr(v any) *string {
	switch s := v.(type) {
	case string:
		return &s
	case *string:
		if s == nil {
			return nil
		}
		c := *s
		return &c
	}
	return nil
}

func timePtr(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		if t == nil {
			return nil
		}
		c := *t
		return &c
	}
	return nil
}
