package models

import (
	"time"

	domain "github.com/arnavshah/odp-scheduler-go/internal/models"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ScheduleRequest places a backlog order, or moves a scheduled one.
type ScheduleRequest struct {
	OrderID   string    `json:"orderId" binding:"required"`
	MachineID string    `json:"machineId" binding:"required"`
	Start     time.Time `json:"start" binding:"required"`
}

// OrderRequest names a single order.
type OrderRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

// DropSlotRequest is a drop on the grid cell at hour:minute of day.
type DropSlotRequest struct {
	OrderID   string `json:"orderId" binding:"required"`
	MachineID string `json:"machineId" binding:"required"`
	Day       string `json:"day" binding:"required"` // YYYY-MM-DD
	Hour      int    `json:"hour"`
	Minute    int    `json:"minute"`
}

// CompatibilityRequest asks whether an order fits a machine.
type CompatibilityRequest struct {
	OrderID   string `json:"orderId" binding:"required"`
	MachineID string `json:"machineId" binding:"required"`
}

// AvailabilityRequest marks hours [FromHour, ToHour) unavailable on every
// day between From and To inclusive.
type AvailabilityRequest struct {
	From     string `json:"from" binding:"required"`
	To       string `json:"to" binding:"required"`
	FromHour int    `json:"fromHour"`
	ToHour   int    `json:"toHour"`
}

// MachineStatusRequest changes a machine's operating status.
type MachineStatusRequest struct {
	Status domain.MachineStatus `json:"status" binding:"required"`
}

// KeyRequest is the body of POST /admin/keys
type KeyRequest struct {
	Name string `json:"name" binding:"required"`
	// Signed issues an HMAC key derived from the master secret instead of a
	// random stored key.
	Signed bool `json:"signed"`
}

// EventsRequest carries an event list kept outside the order catalog.
type EventsRequest struct {
	Events  []domain.ScheduledEvent `json:"events"`
	Cleanup bool                    `json:"cleanup"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// AvailabilityResponse lists the unavailable hours of one machine day.
type AvailabilityResponse struct {
	MachineID        string `json:"machineId"`
	Date             string `json:"date"`
	UnavailableHours []int  `json:"unavailableHours"`
}

// CleanupResponse summarises an integrity cleanup.
type CleanupResponse struct {
	Unscheduled []string `json:"unscheduled"`
	Skipped     []string `json:"skipped"`
	Moved       []string `json:"moved"`
	Message     string   `json:"message"`
}
