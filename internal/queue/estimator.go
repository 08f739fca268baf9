package queue

import (
	"context"

	"clinicq/ticket-service/internal/models"
	"clinicq/ticket-service/internal/store"
)

type Estimate struct {
	Position   int `json:"position"`
	ETAMinutes int `json:"eta_minutes"`
}

// WaitEstimator computes a WAITING ticket's queue position and ETA. Position
// counts the tickets the dispatcher would actually call first, under the
// selector's exact ordering; an estimate that ignored the priority flag
// would disagree with real call order.
type WaitEstimator struct {
	tickets           store.TicketStore
	directory         store.ServiceDirectory
	defaultAvgMinutes int
}

func NewWaitEstimator(tickets store.TicketStore, directory store.ServiceDirectory, defaultAvgMinutes int) *WaitEstimator {
	if defaultAvgMinutes <= 0 {
		defaultAvgMinutes = defaultAvgServiceMinutes
	}
	return &WaitEstimator{
		tickets:           tickets,
		directory:         directory,
		defaultAvgMinutes: defaultAvgMinutes,
	}
}

func (e *WaitEstimator) Estimate(ctx context.Context, ticketID string) (Estimate, error) {
	ticket, err := e.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return Estimate{}, err
	}
	if ticket.Status != models.StatusWaiting {
		return Estimate{}, store.ErrInvalidState
	}

	waiting, err := e.tickets.ListTickets(ctx, store.TicketFilter{
		ServiceID: ticket.ServiceID,
		Status:    models.StatusWaiting,
	})
	if err != nil {
		return Estimate{}, err
	}

	position := 1
	for _, other := range waiting {
		if other.TicketID == ticket.TicketID {
			continue
		}
		if Precedes(other, ticket) {
			position++
		}
	}

	avg := e.defaultAvgMinutes
	if service, err := e.directory.GetServicePoint(ctx, ticket.ServiceID); err == nil && service.AvgServiceMinutes > 0 {
		avg = service.AvgServiceMinutes
	}

	return Estimate{Position: position, ETAMinutes: position * avg}, nil
}
