package queue

import "fmt"

// ValidationError rejects malformed input with field detail.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// InvalidTransitionError names both ends of an illegal status change.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// AllocationError means the allocator cannot guarantee a unique, correctly
// formatted ticket number. It is never silently recovered from.
type AllocationError struct {
	ServiceID string
	Sequence  int64
	Reason    string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("ticket number allocation failed for service %s (sequence %d): %s", e.ServiceID, e.Sequence, e.Reason)
}
