package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinicq/ticket-service/internal/models"
	"clinicq/ticket-service/internal/queue"
	"clinicq/ticket-service/internal/store"
)

const testTicketID = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"

type fakeEngine struct {
	createFn     func(ctx context.Context, input queue.CreateTicketInput) (models.Ticket, error)
	callNextFn   func(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error)
	currentFn    func(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error)
	transitionFn func(ctx context.Context, ticketID, target, note string) (models.Ticket, error)
	estimateFn   func(ctx context.Context, ticketID string) (queue.Estimate, error)
	getFn        func(ctx context.Context, ticketID string) (models.Ticket, error)
	listFn       func(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error)
	countsFn     func(ctx context.Context, serviceID string, from, to time.Time) (queue.Stats, error)
	eventsFn     func(ctx context.Context, ticketID string) ([]store.TicketEvent, error)
}

func (f fakeEngine) CreateTicket(ctx context.Context, input queue.CreateTicketInput) (models.Ticket, error) {
	if f.createFn == nil {
		return models.Ticket{}, nil
	}
	return f.createFn(ctx, input)
}

func (f fakeEngine) CallNext(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error) {
	if f.callNextFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.callNextFn(ctx, serviceID, practitionerID)
}

func (f fakeEngine) CurrentlyCalled(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error) {
	if f.currentFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.currentFn(ctx, serviceID, practitionerID)
}

func (f fakeEngine) Transition(ctx context.Context, ticketID, target, note string) (models.Ticket, error) {
	if f.transitionFn == nil {
		return models.Ticket{}, nil
	}
	return f.transitionFn(ctx, ticketID, target, note)
}

func (f fakeEngine) Estimate(ctx context.Context, ticketID string) (queue.Estimate, error) {
	if f.estimateFn == nil {
		return queue.Estimate{}, nil
	}
	return f.estimateFn(ctx, ticketID)
}

func (f fakeEngine) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if f.getFn == nil {
		return models.Ticket{}, nil
	}
	return f.getFn(ctx, ticketID)
}

func (f fakeEngine) ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, filter)
}

func (f fakeEngine) Counts(ctx context.Context, serviceID string, from, to time.Time) (queue.Stats, error) {
	if f.countsFn == nil {
		return queue.Stats{}, nil
	}
	return f.countsFn(ctx, serviceID, from, to)
}

func (f fakeEngine) TicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error) {
	if f.eventsFn == nil {
		return nil, nil
	}
	return f.eventsFn(ctx, ticketID)
}

func TestCreateTicketSuccess(t *testing.T) {
	engine := fakeEngine{
		createFn: func(ctx context.Context, input queue.CreateTicketInput) (models.Ticket, error) {
			return models.Ticket{
				TicketID:     testTicketID,
				TicketNumber: "UM-20250615-001",
				ServiceID:    input.ServiceID,
				PatientName:  input.PatientName,
				Status:       models.StatusWaiting,
				CreatedAt:    time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	h := NewHandler(engine)

	body, _ := json.Marshal(map[string]interface{}{
		"service_id":   "svc-um",
		"patient_name": "Budi Santoso",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}

	var ticket models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ticket.TicketNumber != "UM-20250615-001" || ticket.Status != models.StatusWaiting {
		t.Fatalf("unexpected ticket response: %+v", ticket)
	}
}

func TestCreateTicketMissingFields(t *testing.T) {
	h := NewHandler(fakeEngine{})

	body, _ := json.Marshal(map[string]string{"service_id": "svc-um"})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCreateTicketUnknownField(t *testing.T) {
	h := NewHandler(fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader([]byte(`{"service_id":"svc-um","patient_name":"Budi","extra":true}`)))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCreateTicketNameTooShort(t *testing.T) {
	engine := fakeEngine{
		createFn: func(ctx context.Context, input queue.CreateTicketInput) (models.Ticket, error) {
			return models.Ticket{}, &queue.ValidationError{Field: "patient_name", Message: "must be 2-100 characters"}
		},
	}
	h := NewHandler(engine)

	body, _ := json.Marshal(map[string]string{"service_id": "svc-um", "patient_name": "J"})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCreateTicketInactiveService(t *testing.T) {
	engine := fakeEngine{
		createFn: func(ctx context.Context, input queue.CreateTicketInput) (models.Ticket, error) {
			return models.Ticket{}, store.ErrServiceInactive
		},
	}
	h := NewHandler(engine)

	body, _ := json.Marshal(map[string]string{"service_id": "svc-um", "patient_name": "Budi Santoso"})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}

	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error.Code != "service_inactive" {
		t.Fatalf("error code %q, want service_inactive", errResp.Error.Code)
	}
}

func TestListTicketsFilters(t *testing.T) {
	var got store.TicketFilter
	engine := fakeEngine{
		listFn: func(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
			got = filter
			return []models.Ticket{{TicketID: testTicketID}}, nil
		},
	}
	h := NewHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets?service_id=svc-um&status=WAITING&day=2025-06-15", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if got.ServiceID != "svc-um" || got.Status != "WAITING" || got.Day != "2025-06-15" {
		t.Fatalf("filter not forwarded: %+v", got)
	}
}

func TestListTicketsRejectsBadFilters(t *testing.T) {
	h := NewHandler(fakeEngine{})

	for _, target := range []string{
		"/api/tickets?status=PARKED",
		"/api/tickets?day=15-06-2025",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		resp := httptest.NewRecorder()
		h.Routes().ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", target, resp.Code)
		}
	}
}

func TestCallNextSuccess(t *testing.T) {
	engine := fakeEngine{
		callNextFn: func(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error) {
			return models.Ticket{TicketID: testTicketID, Status: models.StatusCalled}, true, nil
		},
	}
	h := NewHandler(engine)

	body, _ := json.Marshal(map[string]string{"service_id": "svc-um"})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/actions/call-next", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	engine := fakeEngine{
		callNextFn: func(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error) {
			return models.Ticket{}, false, nil
		},
	}
	h := NewHandler(engine)

	body, _ := json.Marshal(map[string]string{"service_id": "svc-um"})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/actions/call-next", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}

	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error.Code != "queue_empty" {
		t.Fatalf("error code %q, want queue_empty", errResp.Error.Code)
	}
}

func TestTicketActionRoutes(t *testing.T) {
	cases := []struct {
		action string
		target string
	}{
		{"start", models.StatusInService},
		{"complete", models.StatusCompleted},
		{"cancel", models.StatusCancelled},
		{"no-show", models.StatusNoShow},
	}

	for _, tt := range cases {
		var gotTarget string
		engine := fakeEngine{
			transitionFn: func(ctx context.Context, ticketID, target, note string) (models.Ticket, error) {
				gotTarget = target
				return models.Ticket{TicketID: ticketID, Status: target}, nil
			},
		}
		h := NewHandler(engine)

		req := httptest.NewRequest(http.MethodPost, "/api/tickets/"+testTicketID+"/actions/"+tt.action, nil)
		resp := httptest.NewRecorder()
		h.Routes().ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("action %s: expected status 200, got %d", tt.action, resp.Code)
		}
		if gotTarget != tt.target {
			t.Fatalf("action %s mapped to %q, want %q", tt.action, gotTarget, tt.target)
		}
	}
}

func TestTicketActionUnknown(t *testing.T) {
	h := NewHandler(fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/"+testTicketID+"/actions/recall", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestTicketActionInvalidTransition(t *testing.T) {
	engine := fakeEngine{
		transitionFn: func(ctx context.Context, ticketID, target, note string) (models.Ticket, error) {
			return models.Ticket{}, &queue.InvalidTransitionError{From: models.StatusCompleted, To: models.StatusCompleted}
		},
	}
	h := NewHandler(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/"+testTicketID+"/actions/complete", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestGetTicketNotFound(t *testing.T) {
	engine := fakeEngine{
		getFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
			return models.Ticket{}, store.ErrTicketNotFound
		},
	}
	h := NewHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/"+testTicketID, nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestGetTicketRejectsNonUUID(t *testing.T) {
	h := NewHandler(fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/not-a-uuid", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestWaitingTime(t *testing.T) {
	engine := fakeEngine{
		estimateFn: func(ctx context.Context, ticketID string) (queue.Estimate, error) {
			return queue.Estimate{Position: 2, ETAMinutes: 30}, nil
		},
	}
	h := NewHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/"+testTicketID+"/waiting-time", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var estimate queue.Estimate
	if err := json.NewDecoder(resp.Body).Decode(&estimate); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if estimate.Position != 2 || estimate.ETAMinutes != 30 {
		t.Fatalf("unexpected estimate: %+v", estimate)
	}
}

func TestWaitingTimeNonWaiting(t *testing.T) {
	engine := fakeEngine{
		estimateFn: func(ctx context.Context, ticketID string) (queue.Estimate, error) {
			return queue.Estimate{}, store.ErrInvalidState
		},
	}
	h := NewHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/"+testTicketID+"/waiting-time", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestCurrentTicketNoContent(t *testing.T) {
	h := NewHandler(fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/current?service_id=svc-um", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
}

func TestDisplaySnapshot(t *testing.T) {
	engine := fakeEngine{
		currentFn: func(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error) {
			return models.Ticket{TicketID: testTicketID, Status: models.StatusCalled}, true, nil
		},
		listFn: func(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
			return []models.Ticket{{TicketID: "t2"}, {TicketID: "t3"}}, nil
		},
	}
	h := NewHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/display?service_id=svc-um", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var display displayResponse
	if err := json.NewDecoder(resp.Body).Decode(&display); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if display.Current == nil || display.Current.TicketID != testTicketID {
		t.Fatalf("current ticket missing: %+v", display)
	}
	if len(display.Waiting) != 2 {
		t.Fatalf("waiting list %d entries, want 2", len(display.Waiting))
	}
}

func TestStatsRange(t *testing.T) {
	var gotFrom, gotTo time.Time
	engine := fakeEngine{
		countsFn: func(ctx context.Context, serviceID string, from, to time.Time) (queue.Stats, error) {
			gotFrom, gotTo = from, to
			return queue.Stats{Total: 4}, nil
		},
	}
	h := NewHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/stats?service_id=svc-um&from=2025-06-15&to=2025-06-16", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if gotFrom.IsZero() || gotTo.IsZero() || gotTo.Before(gotFrom) {
		t.Fatalf("range not forwarded: from=%v to=%v", gotFrom, gotTo)
	}
}

func TestStatsRejectsInvertedRange(t *testing.T) {
	h := NewHandler(fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/stats?from=2025-06-16&to=2025-06-15", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := NewHandler(fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestRateLimiterThrottlesIP(t *testing.T) {
	h := NewHandler(fakeEngine{})
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 2})
	routes := limiter.Middleware(h.Routes())

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		resp := httptest.NewRecorder()
		routes.ServeHTTP(resp, req)
		last = resp.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 after burst, got %d", last)
	}
}
