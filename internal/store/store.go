package store

import (
	"context"
	"time"

	"clinicq/ticket-service/internal/models"
)

// DayFormat is the date key used for per-day ticket numbering and filters.
const DayFormat = "2006-01-02"

// TicketFilter narrows ListTickets. Empty fields match everything.
type TicketFilter struct {
	ServiceID      string
	PractitionerID string
	Status         string
	Day            string // DayFormat date of created_at
}

// StatusUpdate is a conditional status change: the row is updated only while
// its status still equals FromStatus. Timestamp pointers are applied when
// non-nil; CalledAt is set-once (ignored if the column is already set).
type StatusUpdate struct {
	TicketID    string
	FromStatus  string
	ToStatus    string
	CalledAt    *time.Time
	CompletedAt *time.Time
	Note        string
}

type StatusCount struct {
	ServiceID   string `json:"service_id"`
	ServiceCode string `json:"service_code"`
	ServiceName string `json:"service_name"`
	Status      string `json:"status"`
	Count       int    `json:"count"`
}

// TicketStore is the persistence contract the queue engine requires.
//
// NextSequence must be atomic per (serviceID, day): concurrent callers for
// the same key receive distinct consecutive values starting at 1.
// UpdateTicketStatus must be a single conditional update; when it matches no
// row it returns ErrTicketNotFound for a missing ticket and ErrConflict when
// the ticket exists but its status moved since FromStatus was observed.
type TicketStore interface {
	InsertTicket(ctx context.Context, ticket models.Ticket) error
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]models.Ticket, error)
	UpdateTicketStatus(ctx context.Context, update StatusUpdate) (models.Ticket, error)
	NextSequence(ctx context.Context, serviceID, day string) (int64, error)
	LatestCalled(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error)
	TicketCounts(ctx context.Context, serviceID string, from, to time.Time) ([]StatusCount, error)
	ListTicketEvents(ctx context.Context, ticketID string) ([]TicketEvent, error)
}

// ServiceDirectory is the read-only lookup of service points and
// practitioners used to validate creation and allocation requests.
type ServiceDirectory interface {
	GetServicePoint(ctx context.Context, serviceID string) (models.ServicePoint, error)
	GetPractitioner(ctx context.Context, practitionerID string) (models.Practitioner, error)
}
