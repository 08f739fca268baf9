package store

import (
	"testing"
	"time"

	"clinicq/ticket-service/internal/models"
)

func chainEvents(t *testing.T, ticket models.Ticket, statuses []string) []TicketEvent {
	t.Helper()
	var events []TicketEvent
	prev := ""
	base := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	for i, status := range statuses {
		ticket.Status = status
		payload, err := EncodeEventPayload(ticket)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		eventType := EventTypeForStatus(status)
		if i == 0 {
			eventType = EventCreated
		}
		createdAt := base.Add(time.Duration(i) * time.Minute)
		seq := i + 1
		event := TicketEvent{
			TicketID:  ticket.TicketID,
			TicketSeq: seq,
			Type:      eventType,
			Payload:   payload,
			CreatedAt: createdAt,
			PrevHash:  prev,
			Hash:      ComputeTicketEventHash(prev, ticket.TicketID, eventType, payload, createdAt, seq),
		}
		events = append(events, event)
		prev = event.Hash
	}
	return events
}

func TestVerifyTicketEventsIntactChain(t *testing.T) {
	ticket := models.Ticket{
		TicketID:     "t1",
		TicketNumber: "UM-20250615-001",
		ServiceID:    "svc-um",
		PatientName:  "Budi Santoso",
		CreatedAt:    time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC),
	}
	events := chainEvents(t, ticket, []string{
		models.StatusWaiting,
		models.StatusCalled,
		models.StatusInService,
		models.StatusCompleted,
	})

	if i := VerifyTicketEvents(events); i != -1 {
		t.Fatalf("intact chain reported broken at %d", i)
	}
	if i := VerifyTicketEvents(nil); i != -1 {
		t.Fatalf("empty chain reported broken at %d", i)
	}
}

func TestVerifyTicketEventsDetectsTampering(t *testing.T) {
	ticket := models.Ticket{
		TicketID:     "t1",
		TicketNumber: "UM-20250615-001",
		ServiceID:    "svc-um",
		PatientName:  "Budi Santoso",
		CreatedAt:    time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC),
	}
	events := chainEvents(t, ticket, []string{
		models.StatusWaiting,
		models.StatusCalled,
		models.StatusInService,
	})

	tampered := make([]TicketEvent, len(events))
	copy(tampered, events)
	tampered[1].Payload = []byte(`{"patient_name":"Seseorang Lain"}`)
	if i := VerifyTicketEvents(tampered); i != 1 {
		t.Fatalf("payload tamper detected at %d, want 1", i)
	}

	copy(tampered, events)
	tampered[2].PrevHash = "0000"
	if i := VerifyTicketEvents(tampered); i != 2 {
		t.Fatalf("broken link detected at %d, want 2", i)
	}

	// Dropping a middle event severs the chain at the splice point.
	spliced := []TicketEvent{events[0], events[2]}
	if i := VerifyTicketEvents(spliced); i != 1 {
		t.Fatalf("spliced chain detected at %d, want 1", i)
	}
}

func TestRehydrateTicket(t *testing.T) {
	calledAt := time.Date(2025, 6, 15, 8, 30, 0, 0, time.UTC)
	completedAt := time.Date(2025, 6, 15, 8, 45, 0, 0, time.UTC)
	ticket := models.Ticket{
		TicketID:     "t1",
		TicketNumber: "UM-20250615-001",
		ServiceID:    "svc-um",
		PatientName:  "Budi Santoso",
		Priority:     true,
		CreatedAt:    time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC),
	}

	waiting := ticket
	waiting.Status = models.StatusWaiting
	called := waiting
	called.Status = models.StatusCalled
	called.CalledAt = &calledAt
	completed := called
	completed.Status = models.StatusCompleted
	completed.CompletedAt = &completedAt

	var events []TicketEvent
	for i, snapshot := range []models.Ticket{waiting, called, completed} {
		payload, err := EncodeEventPayload(snapshot)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		events = append(events, TicketEvent{
			TicketID:  snapshot.TicketID,
			TicketSeq: i + 1,
			Type:      EventTypeForStatus(snapshot.Status),
			Payload:   payload,
			CreatedAt: snapshot.CreatedAt,
		})
	}

	got, err := RehydrateTicket(events)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Fatalf("status %q, want COMPLETED", got.Status)
	}
	if got.TicketNumber != ticket.TicketNumber || got.PatientName != ticket.PatientName || !got.Priority {
		t.Fatalf("rehydrated ticket %+v", got)
	}
	if got.CalledAt == nil || !got.CalledAt.Equal(calledAt) {
		t.Fatalf("CalledAt %v, want %v", got.CalledAt, calledAt)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completedAt) {
		t.Fatalf("CompletedAt %v, want %v", got.CompletedAt, completedAt)
	}
}
