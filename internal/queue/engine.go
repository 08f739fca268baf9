// Package queue implements the ticket lifecycle engine: collision-free
// ticket numbering per service point per day, the status state machine,
// exactly-once call-next dispatch, wait estimation, and status aggregation.
// Persistence and directory lookups are injected through the store
// contracts; the engine holds no global state.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"clinicq/ticket-service/internal/models"
	"clinicq/ticket-service/internal/store"

	"github.com/google/uuid"
)

const (
	defaultAvgServiceMinutes = 15
	defaultCallNextRetries   = 5

	minPatientNameLen = 2
	maxPatientNameLen = 100
)

type Options struct {
	AvgServiceMinutes int
	CallNextRetries   int
}

type Engine struct {
	tickets    store.TicketStore
	directory  store.ServiceDirectory
	allocator  *NumberAllocator
	dispatcher *Dispatcher
	estimator  *WaitEstimator
	stats      *StatsAggregator
}

func NewEngine(tickets store.TicketStore, directory store.ServiceDirectory, options Options) *Engine {
	retries := options.CallNextRetries
	if retries <= 0 {
		retries = defaultCallNextRetries
	}
	return &Engine{
		tickets:    tickets,
		directory:  directory,
		allocator:  NewNumberAllocator(tickets, directory),
		dispatcher: NewDispatcher(tickets, retries),
		estimator:  NewWaitEstimator(tickets, directory, options.AvgServiceMinutes),
		stats:      NewStatsAggregator(tickets),
	}
}

type CreateTicketInput struct {
	ServiceID      string
	PractitionerID string
	PatientName    string
	Priority       bool
}

// CreateTicket validates the request, reserves the next number for the
// service point's daily sequence, and persists a WAITING ticket.
func (e *Engine) CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error) {
	name := strings.TrimSpace(input.PatientName)
	if length := utf8.RuneCountInString(name); length < minPatientNameLen || length > maxPatientNameLen {
		return models.Ticket{}, &ValidationError{
			Field:   "patient_name",
			Message: fmt.Sprintf("must be %d-%d characters", minPatientNameLen, maxPatientNameLen),
		}
	}

	var practitionerID *string
	if input.PractitionerID != "" {
		practitioner, err := e.directory.GetPractitioner(ctx, input.PractitionerID)
		if err != nil {
			return models.Ticket{}, err
		}
		if !practitioner.Active {
			return models.Ticket{}, store.ErrPractitionerInactive
		}
		if practitioner.ServiceID != input.ServiceID {
			return models.Ticket{}, store.ErrPractitionerMismatch
		}
		practitionerID = &practitioner.PractitionerID
	}

	createdAt := time.Now().UTC()
	allocated, err := e.allocator.Allocate(ctx, input.ServiceID, createdAt)
	if err != nil {
		return models.Ticket{}, err
	}

	ticket := models.Ticket{
		TicketID:       uuid.NewString(),
		TicketNumber:   allocated.Number,
		ServiceID:      input.ServiceID,
		PractitionerID: practitionerID,
		PatientName:    name,
		Priority:       input.Priority,
		Status:         models.StatusWaiting,
		CreatedAt:      createdAt,
	}
	if err := e.tickets.InsertTicket(ctx, ticket); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (e *Engine) CallNext(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error) {
	return e.dispatcher.CallNext(ctx, serviceID, practitionerID)
}

func (e *Engine) CurrentlyCalled(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error) {
	return e.dispatcher.CurrentlyCalled(ctx, serviceID, practitionerID)
}

// Transition applies one validated status change as a conditional update.
// A lost race surfaces as store.ErrConflict; the caller decides whether to
// re-fetch and retry.
func (e *Engine) Transition(ctx context.Context, ticketID, target, note string) (models.Ticket, error) {
	if !models.IsValidStatus(target) {
		return models.Ticket{}, &ValidationError{Field: "status", Message: "unknown status " + target}
	}

	ticket, err := e.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !CanTransition(ticket.Status, target) {
		return models.Ticket{}, &InvalidTransitionError{From: ticket.Status, To: target}
	}

	update := store.StatusUpdate{
		TicketID:   ticketID,
		FromStatus: ticket.Status,
		ToStatus:   target,
		Note:       note,
	}
	now := time.Now().UTC()
	switch target {
	case models.StatusCalled:
		update.CalledAt = &now
	case models.StatusCompleted:
		update.CompletedAt = &now
	}
	return e.tickets.UpdateTicketStatus(ctx, update)
}

func (e *Engine) Estimate(ctx context.Context, ticketID string) (Estimate, error) {
	return e.estimator.Estimate(ctx, ticketID)
}

func (e *Engine) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	return e.tickets.GetTicket(ctx, ticketID)
}

func (e *Engine) ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
	return e.tickets.ListTickets(ctx, filter)
}

func (e *Engine) Counts(ctx context.Context, serviceID string, from, to time.Time) (Stats, error) {
	return e.stats.Counts(ctx, serviceID, from, to)
}

func (e *Engine) TicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error) {
	if _, err := e.tickets.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return e.tickets.ListTicketEvents(ctx, ticketID)
}
