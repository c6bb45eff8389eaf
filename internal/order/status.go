package order

import (
	"fmt"
)

// Status is the lifecycle state of an order. The zero value is not a valid
// status, so an unset field never passes as Pending.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusApproved
	StatusCompleted
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusPending:   "Pending",
	StatusApproved:  "Approved",
	StatusCompleted: "Completed",
	StatusCancelled: "Cancelled",
}

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusPending, StatusApproved, StatusCompleted, StatusCancelled}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether an order in status s may move to next.
//
//	Pending  -> Approved | Completed | Cancelled
//	Approved -> Completed | Cancelled
//
// Completed and Cancelled are terminal. Staying in the same status is not a
// transition.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusCompleted || next == StatusCancelled
	case StatusApproved:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// ParseStatus accepts exactly the four status names.
func ParseStatus(s string) (Status, error) {
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown order status %q", s)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid order status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
