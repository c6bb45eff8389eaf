package order

import (
	"fmt"

	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/apperr"
)

// ErrOrderNotFound matches any missing-order error via errors.Is.
var ErrOrderNotFound = &apperr.NotFoundError{Resource: "order"}

func notFound(id int64) error {
	return &apperr.NotFoundError{Resource: "order", ID: id}
}

// InvalidTransitionError is returned when a requested status change is not
// allowed from the order's current status. Concurrent is set when the status
// was valid when checked but another request changed it before the update.
type InvalidTransitionError struct {
	OrderID    int64
	From       Status
	To         Status
	Concurrent bool
}

func (e *InvalidTransitionError) Error() string {
	if e.Concurrent {
		return fmt.Sprintf("order %d was concurrently changed to %s: cannot transition to %s", e.OrderID, e.From, e.To)
	}
	return fmt.Sprintf("order %d: invalid status transition from %s to %s", e.OrderID, e.From, e.To)
}

// StatusConflictError is returned by Repository.UpdateStatus when the stored
// status no longer matches the expected one.
type StatusConflictError struct {
	OrderID int64
	Current Status
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("order %d status is %s", e.OrderID, e.Current)
}
