// internal/events/handlers.go
package events

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ispnexus/webhook-service/pkg/api"
	cV "github.com/ispnexus/webhook-service/pkg/validator"
)

type Handlers struct {
	service   *Service
	validator *validator.Validate
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{
		service:   service,
		validator: cV.GetValidator(),
	}
}

// EmitEventHandler is the integration point business services call to
// publish an event. Returns as soon as the event row is durable.
func (h *Handlers) EmitEventHandler(w http.ResponseWriter, r *http.Request) {
	var req EmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	if req.Origin.SourceIP == "" {
		req.Origin.SourceIP = r.RemoteAddr
	}

	result, err := h.service.Emit(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrUnknownEventType) {
			api.WriteBadRequestResponse(w, err.Error())
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusCreated, result)
}

// ListEventsHandler returns the event audit trail
func (h *Handlers) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	req := ListEventsRequest{
		EventType: r.URL.Query().Get("event_type"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			req.Limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			req.Offset = o
		}
	}

	eventList, err := h.service.List(r.Context(), req)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"events": eventList,
		"total":  len(eventList),
	})
}

// GetEventHandler returns one event by id
func (h *Handlers) GetEventHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "eventId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid event ID")
		return
	}

	event, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			api.WriteNotFoundResponse(w, "Event not found")
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, event)
}
