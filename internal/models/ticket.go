package models

import "time"

type Ticket struct {
	TicketID       string     `json:"ticket_id"`
	TicketNumber   string     `json:"ticket_number"`
	ServiceID      string     `json:"service_id"`
	PractitionerID *string    `json:"practitioner_id,omitempty"`
	PatientName    string     `json:"patient_name"`
	Priority       bool       `json:"priority"`
	Status         string     `json:"status"`
	Note           string     `json:"note,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CalledAt       *time.Time `json:"called_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

const (
	StatusWaiting   = "WAITING"
	StatusCalled    = "CALLED"
	StatusInService = "IN_SERVICE"
	StatusCompleted = "COMPLETED"
	StatusNoShow    = "NO_SHOW"
	StatusCancelled = "CANCELLED"
)

// Statuses lists every ticket status in lifecycle order.
func Statuses() []string {
	return []string{
		StatusWaiting,
		StatusCalled,
		StatusInService,
		StatusCompleted,
		StatusNoShow,
		StatusCancelled,
	}
}

func IsValidStatus(status string) bool {
	switch status {
	case StatusWaiting, StatusCalled, StatusInService, StatusCompleted, StatusNoShow, StatusCancelled:
		return true
	}
	return false
}
