package queue

import (
	"context"
	"errors"
	"time"

	"clinicq/ticket-service/internal/models"
	"clinicq/ticket-service/internal/store"
)

// Dispatcher composes the selector and the conditional WAITING→CALLED update
// into one logically atomic call-next. Losing the conditional update means
// another terminal won the same ticket; the dispatcher re-selects against
// the remaining queue up to maxRetries before surfacing the conflict.
type Dispatcher struct {
	selector   *Selector
	tickets    store.TicketStore
	maxRetries int
}

func NewDispatcher(tickets store.TicketStore, maxRetries int) *Dispatcher {
	return &Dispatcher{
		selector:   NewSelector(tickets),
		tickets:    tickets,
		maxRetries: maxRetries,
	}
}

// CallNext returns the dispatched ticket, or found=false when no eligible
// ticket is waiting. No two concurrent calls ever win the same ticket.
func (d *Dispatcher) CallNext(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error) {
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		candidate, found, err := d.selector.SelectNext(ctx, serviceID, practitionerID)
		if err != nil {
			return models.Ticket{}, false, err
		}
		if !found {
			return models.Ticket{}, false, nil
		}

		calledAt := time.Now().UTC()
		ticket, err := d.tickets.UpdateTicketStatus(ctx, store.StatusUpdate{
			TicketID:   candidate.TicketID,
			FromStatus: models.StatusWaiting,
			ToStatus:   models.StatusCalled,
			CalledAt:   &calledAt,
		})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return models.Ticket{}, false, err
		}
		return ticket, true, nil
	}
	return models.Ticket{}, false, store.ErrConflict
}

// CurrentlyCalled is the read-only display lookup: the most recently called
// or in-service ticket for the service point.
func (d *Dispatcher) CurrentlyCalled(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error) {
	return d.tickets.LatestCalled(ctx, serviceID, practitionerID)
}
