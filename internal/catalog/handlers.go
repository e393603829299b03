// internal/catalog/handlers.go
package catalog

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

// RegisterEventTypeHandler adds a new event type to the catalog
func (h *Handlers) RegisterEventTypeHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterEventTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	eventType, err := h.service.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			api.WriteConflictResponse(w, "event type already registered")
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusCreated, eventType)
}

// ListEventTypesHandler returns registered event types
func (h *Handlers) ListEventTypesHandler(w http.ResponseWriter, r *http.Request) {
	req := ListEventTypesRequest{
		Category: r.URL.Query().Get("category"),
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
	if r.URL.Query().Get("include_inactive") == "true" {
		req.IncludeInactive = true
	}

	eventTypes, err := h.service.List(r.Context(), req)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"event_types": eventTypes,
		"total":       len(eventTypes),
	})
}

// DeactivateEventTypeHandler retires an event type
func (h *Handlers) DeactivateEventTypeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "eventTypeId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid event type ID")
		return
	}

	if err := h.service.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			api.WriteNotFoundResponse(w, "Event type not found")
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Event type deactivated",
	})
}
