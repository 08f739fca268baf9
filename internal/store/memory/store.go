// Package memory provides a mutex-guarded TicketStore and ServiceDirectory
// backed by maps. It honors the same contracts as the postgres store
// (atomic per-key sequences, conditional status updates, hash-chained ticket
// events) and backs the engine tests and DB-less runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"clinicq/ticket-service/internal/models"
	"clinicq/ticket-service/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	tickets       map[string]models.Ticket
	numbers       map[string]struct{}
	sequences     map[string]int64
	events        map[string][]store.TicketEvent
	services      map[string]models.ServicePoint
	practitioners map[string]models.Practitioner
}

func NewStore() *Store {
	return &Store{
		tickets:       make(map[string]models.Ticket),
		numbers:       make(map[string]struct{}),
		sequences:     make(map[string]int64),
		events:        make(map[string][]store.TicketEvent),
		services:      make(map[string]models.ServicePoint),
		practitioners: make(map[string]models.Practitioner),
	}
}

// AddServicePoint seeds the directory. Existing entries are replaced, so
// tests can flip the active flag.
func (s *Store) AddServicePoint(service models.ServicePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[service.ServiceID] = service
}

func (s *Store) AddPractitioner(practitioner models.Practitioner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.practitioners[practitioner.PractitionerID] = practitioner
}

func (s *Store) GetServicePoint(ctx context.Context, serviceID string) (models.ServicePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	service, ok := s.services[serviceID]
	if !ok {
		return models.ServicePoint{}, store.ErrServiceNotFound
	}
	return service, nil
}

func (s *Store) GetPractitioner(ctx context.Context, practitionerID string) (models.Practitioner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	practitioner, ok := s.practitioners[practitionerID]
	if !ok {
		return models.Practitioner{}, store.ErrPractitionerNotFound
	}
	return practitioner, nil
}

func (s *Store) InsertTicket(ctx context.Context, ticket models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.numbers[ticket.TicketNumber]; exists {
		return store.ErrDuplicateTicketNumber
	}
	s.tickets[ticket.TicketID] = ticket
	s.numbers[ticket.TicketNumber] = struct{}{}
	return s.appendEvent(ticket, store.EventCreated)
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Store) ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tickets []models.Ticket
	for _, ticket := range s.tickets {
		if !matches(ticket, filter) {
			continue
		}
		tickets = append(tickets, ticket)
	}
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
		}
		return tickets[i].TicketNumber < tickets[j].TicketNumber
	})
	return tickets, nil
}

func matches(ticket models.Ticket, filter store.TicketFilter) bool {
	if filter.ServiceID != "" && ticket.ServiceID != filter.ServiceID {
		return false
	}
	if filter.PractitionerID != "" {
		if ticket.PractitionerID == nil || *ticket.PractitionerID != filter.PractitionerID {
			return false
		}
	}
	if filter.Status != "" && ticket.Status != filter.Status {
		return false
	}
	if filter.Day != "" && ticket.CreatedAt.UTC().Format(store.DayFormat) != filter.Day {
		return false
	}
	return true
}

func (s *Store) UpdateTicketStatus(ctx context.Context, update store.StatusUpdate) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[update.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if ticket.Status != update.FromStatus {
		return models.Ticket{}, store.ErrConflict
	}

	ticket.Status = update.ToStatus
	if update.CalledAt != nil && ticket.CalledAt == nil {
		calledAt := *update.CalledAt
		ticket.CalledAt = &calledAt
	}
	if update.CompletedAt != nil {
		completedAt := *update.CompletedAt
		ticket.CompletedAt = &completedAt
	}
	if update.Note != "" {
		ticket.Note = update.Note
	}
	s.tickets[update.TicketID] = ticket

	if err := s.appendEvent(ticket, store.EventTypeForStatus(update.ToStatus)); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) NextSequence(ctx context.Context, serviceID, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := serviceID + "|" + day
	s.sequences[key]++
	return s.sequences[key], nil
}

func (s *Store) LatestCalled(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest models.Ticket
	found := false
	for _, ticket := range s.tickets {
		if ticket.ServiceID != serviceID {
			continue
		}
		if ticket.Status != models.StatusCalled && ticket.Status != models.StatusInService {
			continue
		}
		if practitionerID != "" {
			if ticket.PractitionerID == nil || *ticket.PractitionerID != practitionerID {
				continue
			}
		}
		if ticket.CalledAt == nil {
			continue
		}
		if !found || ticket.CalledAt.After(*latest.CalledAt) {
			latest = ticket
			found = true
		}
	}
	return latest, found, nil
}

func (s *Store) TicketCounts(ctx context.Context, serviceID string, from, to time.Time) ([]store.StatusCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		serviceID string
		status    string
	}
	counts := make(map[key]int)
	for _, ticket := range s.tickets {
		if serviceID != "" && ticket.ServiceID != serviceID {
			continue
		}
		if !from.IsZero() && ticket.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && ticket.CreatedAt.After(to) {
			continue
		}
		counts[key{ticket.ServiceID, ticket.Status}]++
	}

	var result []store.StatusCount
	for k, count := range counts {
		row := store.StatusCount{ServiceID: k.serviceID, Status: k.status, Count: count}
		if service, ok := s.services[k.serviceID]; ok {
			row.ServiceCode = service.Code
			row.ServiceName = service.Name
		}
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ServiceID != result[j].ServiceID {
			return result[i].ServiceID < result[j].ServiceID
		}
		return result[i].Status < result[j].Status
	})
	return result, nil
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[ticketID]
	out := make([]store.TicketEvent, len(events))
	copy(out, events)
	return out, nil
}

// appendEvent extends the ticket's hash chain; callers hold the write lock.
func (s *Store) appendEvent(ticket models.Ticket, eventType string) error {
	payload, err := store.EncodeEventPayload(ticket)
	if err != nil {
		return err
	}
	chain := s.events[ticket.TicketID]
	prev := ""
	if len(chain) > 0 {
		prev = chain[len(chain)-1].Hash
	}
	seq := len(chain) + 1
	createdAt := time.Now().UTC()
	s.events[ticket.TicketID] = append(chain, store.TicketEvent{
		TicketID:  ticket.TicketID,
		TicketSeq: seq,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: createdAt,
		PrevHash:  prev,
		Hash:      store.ComputeTicketEventHash(prev, ticket.TicketID, eventType, payload, createdAt, seq),
	})
	return nil
}
