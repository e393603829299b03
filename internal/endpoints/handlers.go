// internal/endpoints/handlers.go
package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ispnexus/webhook-service/internal/catalog"
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

// CreateEndpointHandler registers a new webhook endpoint
func (h *Handlers) CreateEndpointHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	endpoint, err := h.service.Create(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			api.WriteBadRequestResponse(w, err.Error())
		case errors.Is(err, catalog.ErrNotFound):
			api.WriteBadRequestResponse(w, "unknown event type in subscriptions")
		default:
			api.WriteInternalErrorResponse(w, err.Error())
		}
		return
	}

	api.WriteSuccessResponse(w, http.StatusCreated, endpoint)
}

// ListEndpointsHandler returns registered webhook endpoints
func (h *Handlers) ListEndpointsHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	endpoints, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"webhooks": endpoints,
		"total":    len(endpoints),
	})
}

// GetEndpointHandler returns one webhook endpoint with its subscriptions and filters
func (h *Handlers) GetEndpointHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.endpointID(w, r)
	if !ok {
		return
	}

	endpoint, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	subscriptions, err := h.service.ListSubscriptions(r.Context(), id)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	filterRules, err := h.service.ListFilters(r.Context(), id)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"webhook":       endpoint,
		"subscriptions": subscriptions,
		"filters":       filterRules,
	})
}

// UpdateEndpointHandler applies a partial update to an endpoint
func (h *Handlers) UpdateEndpointHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.endpointID(w, r)
	if !ok {
		return
	}

	var req UpdateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	endpoint, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, endpoint)
}

// DeleteEndpointHandler removes an endpoint and its owned configuration
func (h *Handlers) DeleteEndpointHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.endpointID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Webhook endpoint deleted",
	})
}

// SubscribeHandler subscribes the endpoint to an event type
func (h *Handlers) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.endpointID(w, r)
	if !ok {
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	if err := h.service.SubscribeByName(r.Context(), id, req.EventType); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			api.WriteNotFoundResponse(w, "Event type not found")
			return
		}
		h.writeServiceError(w, err)
		return
	}

	api.WriteSuccessResponse(w, http.StatusCreated, map[string]interface{}{
		"message":    "Subscribed",
		"event_type": req.EventType,
	})
}

// UnsubscribeHandler removes an event type subscription
func (h *Handlers) UnsubscribeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.endpointID(w, r)
	if !ok {
		return
	}

	eventType := chi.URLParam(r, "eventType")
	if err := h.service.UnsubscribeByName(r.Context(), id, eventType); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			api.WriteNotFoundResponse(w, "Event type not found")
			return
		}
		h.writeServiceError(w, err)
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Unsubscribed",
	})
}

// AddSecretHandler stores a new signing secret, optionally rotating old ones
func (h *Handlers) AddSecretHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.endpointID(w, r)
	if !ok {
		return
	}

	var req AddSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	secret, err := h.service.AddSecret(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	api.WriteSuccessResponse(w, http.StatusCreated, secret)
}

// AddFilterHandler attaches a filter rule to the endpoint
func (h *Handlers) AddFilterHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.endpointID(w, r)
	if !ok {
		return
	}

	var req AddFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	rule, err := h.service.AddFilter(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			api.WriteBadRequestResponse(w, err.Error())
			return
		}
		h.writeServiceError(w, err)
		return
	}

	api.WriteSuccessResponse(w, http.StatusCreated, rule)
}

// RemoveFilterHandler deletes a filter rule
func (h *Handlers) RemoveFilterHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.endpointID(w, r)
	if !ok {
		return
	}

	filterID, err := uuid.Parse(chi.URLParam(r, "filterId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid filter ID")
		return
	}

	if err := h.service.RemoveFilter(r.Context(), id, filterID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Filter removed",
	})
}

func (h *Handlers) endpointID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "webhookId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid webhook ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		api.WriteNotFoundResponse(w, "Webhook endpoint not found")
	case errors.Is(err, ErrValidation):
		api.WriteBadRequestResponse(w, err.Error())
	default:
		api.WriteInternalErrorResponse(w, err.Error())
	}
}

func parsePagination(r *http.Request) (int, int) {
	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}
