package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"clinicq/ticket-service/internal/models"
	"clinicq/ticket-service/internal/queue"
	"clinicq/ticket-service/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Engine is the queue surface the handler needs. *queue.Engine satisfies it;
// tests plug in a fake.
type Engine interface {
	CreateTicket(ctx context.Context, input queue.CreateTicketInput) (models.Ticket, error)
	CallNext(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error)
	CurrentlyCalled(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error)
	Transition(ctx context.Context, ticketID, target, note string) (models.Ticket, error)
	Estimate(ctx context.Context, ticketID string) (queue.Estimate, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error)
	Counts(ctx context.Context, serviceID string, from, to time.Time) (queue.Stats, error)
	TicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error)
}

type Handler struct {
	engine Engine
}

func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/tickets/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/tickets/current", h.handleCurrentTicket)
	mux.HandleFunc("/api/tickets/", h.handleTicketSubroutes)
	mux.HandleFunc("/api/display", h.handleDisplay)
	mux.HandleFunc("/api/stats", h.handleStats)
	return mux
}

type createTicketRequest struct {
	ServiceID      string `json:"service_id" validate:"required"`
	PractitionerID string `json:"practitioner_id"`
	PatientName    string `json:"patient_name" validate:"required"`
	Priority       bool   `json:"priority"`
}

type callNextRequest struct {
	ServiceID      string `json:"service_id" validate:"required"`
	PractitionerID string `json:"practitioner_id"`
}

type actionRequest struct {
	Note string `json:"note"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateTicket(w, r)
	case http.MethodGet:
		h.handleListTickets(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.PractitionerID = strings.TrimSpace(req.PractitionerID)
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id and patient_name are required")
		return
	}

	ticket, err := h.engine.CreateTicket(r.Context(), queue.CreateTicketInput{
		ServiceID:      req.ServiceID,
		PractitionerID: req.PractitionerID,
		PatientName:    req.PatientName,
		Priority:       req.Priority,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleListTickets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.TicketFilter{
		ServiceID:      strings.TrimSpace(query.Get("service_id")),
		PractitionerID: strings.TrimSpace(query.Get("practitioner_id")),
		Status:         strings.TrimSpace(query.Get("status")),
		Day:            strings.TrimSpace(query.Get("day")),
	}

	if filter.Status != "" && !models.IsValidStatus(filter.Status) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown status filter")
		return
	}
	if filter.Day != "" {
		if _, err := time.Parse(store.DayFormat, filter.Day); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "day must be YYYY-MM-DD")
			return
		}
	}

	tickets, err := h.engine.ListTickets(r.Context(), filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.PractitionerID = strings.TrimSpace(req.PractitionerID)
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}

	ticket, found, err := h.engine.CallNext(r.Context(), req.ServiceID, req.PractitionerID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !found {
		writeError(w, http.StatusConflict, "queue_empty", "no tickets waiting")
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCurrentTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	practitionerID := strings.TrimSpace(r.URL.Query().Get("practitioner_id"))
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}

	ticket, found, err := h.engine.CurrentlyCalled(r.Context(), serviceID, practitionerID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketSubroutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1:
		h.handleGetTicket(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "waiting-time":
		h.handleWaitingTime(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "events":
		h.handleTicketEvents(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions":
		h.handleTicketAction(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}

	ticket, err := h.engine.GetTicket(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleWaitingTime(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}

	estimate, err := h.engine.Estimate(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

func (h *Handler) handleTicketEvents(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}

	events, err := h.engine.TicketEvents(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if events == nil {
		events = []store.TicketEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// actionTargets maps the action path segment onto the status it requests.
var actionTargets = map[string]string{
	"start":    models.StatusInService,
	"complete": models.StatusCompleted,
	"cancel":   models.StatusCancelled,
	"no-show":  models.StatusNoShow,
}

func (h *Handler) handleTicketAction(w http.ResponseWriter, r *http.Request, ticketID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}

	target, ok := actionTargets[action]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// The body is optional; an empty body means no note.
	var req actionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	ticket, err := h.engine.Transition(r.Context(), ticketID, target, strings.TrimSpace(req.Note))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

type displayResponse struct {
	Current *models.Ticket  `json:"current"`
	Waiting []models.Ticket `json:"waiting"`
}

// handleDisplay backs the waiting-room screen: the ticket being served plus
// the waiting list, refreshed by plain polling.
func (h *Handler) handleDisplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}

	response := displayResponse{Waiting: []models.Ticket{}}

	current, found, err := h.engine.CurrentlyCalled(r.Context(), serviceID, "")
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if found {
		response.Current = &current
	}

	waiting, err := h.engine.ListTickets(r.Context(), store.TicketFilter{
		ServiceID: serviceID,
		Status:    models.StatusWaiting,
		Day:       time.Now().UTC().Format(store.DayFormat),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if waiting != nil {
		response.Waiting = waiting
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	serviceID := strings.TrimSpace(query.Get("service_id"))

	var from, to time.Time
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		parsed, err := parseTimeParam(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "from must be RFC3339 or YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		parsed, err := parseTimeParam(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "to must be RFC3339 or YYYY-MM-DD")
			return
		}
		to = parsed
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		writeError(w, http.StatusBadRequest, "invalid_request", "to must not precede from")
		return
	}

	stats, err := h.engine.Counts(r.Context(), serviceID, from, to)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseTimeParam(raw string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, nil
	}
	return time.Parse(store.DayFormat, raw)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	var validationErr *queue.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "invalid_request", validationErr.Error()
	}
	var transitionErr *queue.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		return http.StatusConflict, "invalid_transition", transitionErr.Error()
	}

	switch {
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found", "service point not found"
	case errors.Is(err, store.ErrServiceInactive):
		return http.StatusBadRequest, "service_inactive", "service point is not accepting tickets"
	case errors.Is(err, store.ErrPractitionerNotFound):
		return http.StatusNotFound, "practitioner_not_found", "practitioner not found"
	case errors.Is(err, store.ErrPractitionerInactive):
		return http.StatusBadRequest, "practitioner_inactive", "practitioner is not available"
	case errors.Is(err, store.ErrPractitionerMismatch):
		return http.StatusBadRequest, "practitioner_mismatch", "practitioner does not belong to this service point"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict", "ticket was updated concurrently"
	case errors.Is(err, store.ErrDuplicateTicketNumber):
		return http.StatusConflict, "duplicate_number", "ticket number already issued"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
