package queue

import (
	"context"

	"clinicq/ticket-service/internal/models"
	"clinicq/ticket-service/internal/store"
)

// Selector chooses the next eligible WAITING ticket without mutating
// anything. Its ordering is the single source of truth for queue precedence;
// the estimator reuses it so positions always agree with dispatch order.
type Selector struct {
	tickets store.TicketStore
}

func NewSelector(tickets store.TicketStore) *Selector {
	return &Selector{tickets: tickets}
}

// SelectNext returns the best candidate for the service point. With a
// practitioner filter, unassigned tickets remain eligible alongside that
// practitioner's own.
func (s *Selector) SelectNext(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error) {
	waiting, err := s.tickets.ListTickets(ctx, store.TicketFilter{
		ServiceID: serviceID,
		Status:    models.StatusWaiting,
	})
	if err != nil {
		return models.Ticket{}, false, err
	}

	var best models.Ticket
	found := false
	for _, ticket := range waiting {
		if !eligible(ticket, practitionerID) {
			continue
		}
		if !found || Precedes(ticket, best) {
			best = ticket
			found = true
		}
	}
	return best, found, nil
}

func eligible(ticket models.Ticket, practitionerID string) bool {
	if practitionerID == "" {
		return true
	}
	return ticket.PractitionerID == nil || *ticket.PractitionerID == practitionerID
}

// Precedes reports whether a is served before b: priority tickets first,
// then registration time, then ticket number as the deterministic tiebreak.
func Precedes(a, b models.Ticket) bool {
	if a.Priority != b.Priority {
		return a.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.TicketNumber < b.TicketNumber
}
