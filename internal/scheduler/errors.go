package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOrderNotFound is returned when the order is not in the catalog.
	ErrOrderNotFound = errors.New("scheduler: order not found")
	// ErrMachineNotFound is returned when the machine is not in the catalog.
	ErrMachineNotFound = errors.New("scheduler: machine not found")
	// ErrAlreadyScheduled is returned when scheduling an order that already occupies a machine.
	ErrAlreadyScheduled = errors.New("scheduler: order is already scheduled")
	// ErrNotScheduled is returned when unscheduling or moving an order that is in the backlog.
	ErrNotScheduled = errors.New("scheduler: order is not scheduled")
	// ErrStatusLocked is returned for orders past scheduling (in progress, completed).
	ErrStatusLocked = errors.New("scheduler: order status is not managed by the scheduler")
	// ErrInvalidSlot is returned for drop targets outside the day grid.
	ErrInvalidSlot = errors.New("scheduler: invalid slot")
	// ErrOperationInProgress is returned when another mutation on the same order has not finished.
	ErrOperationInProgress = errors.New("scheduler: operation already in progress for order")
)

// ValidationFailure reports why a placement was rejected. No state changed.
type ValidationFailure struct {
	OrderID string
	Reasons []string
}

// Error implements the error interface.
func (v *ValidationFailure) Error() string {
	if v == nil {
		return ""
	}
	if len(v.Reasons) == 0 {
		return "scheduler: validation failed"
	}
	return fmt.Sprintf("scheduler: validation failed for order %s: %s", v.OrderID, strings.Join(v.Reasons, "; "))
}

// PreconditionFailure wraps one of the precondition sentinels. No state changed.
type PreconditionFailure struct {
	OrderID string
	Err     error
}

// Error implements the error interface.
func (p *PreconditionFailure) Error() string {
	if p.OrderID == "" {
		return p.Err.Error()
	}
	return fmt.Sprintf("%v (order %s)", p.Err, p.OrderID)
}

// Unwrap exposes the sentinel.
func (p *PreconditionFailure) Unwrap() error { return p.Err }

// PersistenceFailure wraps a gateway error. The engine never retries.
type PersistenceFailure struct {
	Op      string
	OrderID string
	Err     error
}

// Error implements the error interface.
func (p *PersistenceFailure) Error() string {
	if p.OrderID == "" {
		return fmt.Sprintf("scheduler: %s: persistence failed: %v", p.Op, p.Err)
	}
	return fmt.Sprintf("scheduler: %s order %s: persistence failed: %v", p.Op, p.OrderID, p.Err)
}

// Unwrap exposes the gateway error.
func (p *PersistenceFailure) Unwrap() error { return p.Err }

func precondition(orderID string, err error) error {
	return &PreconditionFailure{OrderID: orderID, Err: err}
}

// ErrorKind maps engine errors to a stable label for logs and metrics.
// Errors from other packages can take part by implementing ErrorKind() string.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var kinded interface{ ErrorKind() string }
	if errors.As(err, &kinded) {
		return kinded.ErrorKind()
	}
	var vf *ValidationFailure
	if errors.As(err, &vf) {
		return "validation"
	}
	switch {
	case errors.Is(err, ErrOperationInProgress):
		return "in_progress"
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrMachineNotFound):
		return "not_found"
	}
	var pf *PreconditionFailure
	if errors.As(err, &pf) {
		return "precondition"
	}
	var perr *PersistenceFailure
	if errors.As(err, &perr) {
		return "persistence"
	}
	return "unexpected"
}
