package models

import "time"

// NotificationType identifies what happened.
type NotificationType string

const (
	NotificationScheduled   NotificationType = "scheduled"
	NotificationUnscheduled NotificationType = "unscheduled"
	NotificationRescheduled NotificationType = "rescheduled"
	NotificationIntegrity   NotificationType = "integrity"
)

// Notification is pushed to the rendering layer after a successful mutation
// or an integrity check.
type Notification struct {
	ID                 string           `json:"id"`
	Type               NotificationType `json:"type"`
	OrderID            string           `json:"orderId,omitempty"`
	OrphanEventCount   int              `json:"orphanEventCount"`
	OrphanMachineCount int              `json:"orphanMachineCount"`
	At                 time.Time        `json:"at"`
}
