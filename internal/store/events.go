package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"clinicq/ticket-service/internal/models"
)

// Ticket event types recorded by the stores.
const (
	EventCreated   = "ticket.created"
	EventCalled    = "ticket.called"
	EventInService = "ticket.in_service"
	EventCompleted = "ticket.completed"
	EventNoShow    = "ticket.no_show"
	EventCancelled = "ticket.cancelled"
)

// TicketEvent is one link of a per-ticket hash chain. Hash covers the
// previous hash, identity, payload, and timestamp, so any rewrite of history
// breaks the chain.
type TicketEvent struct {
	TicketID  string          `json:"ticket_id"`
	TicketSeq int             `json:"ticket_seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

type eventPayload struct {
	TicketID       string     `json:"ticket_id"`
	TicketNumber   string     `json:"ticket_number"`
	ServiceID      string     `json:"service_id"`
	PractitionerID *string    `json:"practitioner_id"`
	PatientName    string     `json:"patient_name"`
	Priority       bool       `json:"priority"`
	Status         string     `json:"status"`
	Note           string     `json:"note"`
	CreatedAt      *time.Time `json:"created_at"`
	CalledAt       *time.Time `json:"called_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// EventTypeForStatus maps a ticket status to the event recorded on entering it.
func EventTypeForStatus(status string) string {
	switch status {
	case models.StatusCalled:
		return EventCalled
	case models.StatusInService:
		return EventInService
	case models.StatusCompleted:
		return EventCompleted
	case models.StatusNoShow:
		return EventNoShow
	case models.StatusCancelled:
		return EventCancelled
	default:
		return EventCreated
	}
}

// EncodeEventPayload serializes a ticket snapshot for its event record.
func EncodeEventPayload(ticket models.Ticket) (json.RawMessage, error) {
	createdAt := ticket.CreatedAt
	return json.Marshal(eventPayload{
		TicketID:       ticket.TicketID,
		TicketNumber:   ticket.TicketNumber,
		ServiceID:      ticket.ServiceID,
		PractitionerID: ticket.PractitionerID,
		PatientName:    ticket.PatientName,
		Priority:       ticket.Priority,
		Status:         ticket.Status,
		Note:           ticket.Note,
		CreatedAt:      &createdAt,
		CalledAt:       ticket.CalledAt,
		CompletedAt:    ticket.CompletedAt,
	})
}

func ComputeTicketEventHash(prevHash, ticketID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, ticketID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyTicketEvents recomputes the chain and reports the first broken link,
// or -1 when the chain is intact.
func VerifyTicketEvents(events []TicketEvent) int {
	prev := ""
	for i, event := range events {
		if event.PrevHash != prev {
			return i
		}
		if ComputeTicketEventHash(prev, event.TicketID, event.Type, event.Payload, event.CreatedAt, event.TicketSeq) != event.Hash {
			return i
		}
		prev = event.Hash
	}
	return -1
}

// RehydrateTicket folds an event chain back into the ticket's latest state.
func RehydrateTicket(events []TicketEvent) (models.Ticket, error) {
	var ticket models.Ticket
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload eventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.Ticket{}, err
		}
		if payload.TicketID != "" {
			ticket.TicketID = payload.TicketID
		}
		if payload.TicketNumber != "" {
			ticket.TicketNumber = payload.TicketNumber
		}
		if payload.ServiceID != "" {
			ticket.ServiceID = payload.ServiceID
		}
		if payload.PractitionerID != nil {
			ticket.PractitionerID = payload.PractitionerID
		}
		if payload.PatientName != "" {
			ticket.PatientName = payload.PatientName
		}
		if payload.Status != "" {
			ticket.Status = payload.Status
		}
		if payload.Note != "" {
			ticket.Note = payload.Note
		}
		ticket.Priority = ticket.Priority || payload.Priority
		if payload.CreatedAt != nil {
			ticket.CreatedAt = *payload.CreatedAt
		}
		if payload.CalledAt != nil {
			ticket.CalledAt = payload.CalledAt
		}
		if payload.CompletedAt != nil {
			ticket.CompletedAt = payload.CompletedAt
		}
	}
	return ticket, nil
}
