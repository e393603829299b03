// internal/delivery/handlers.go
package delivery

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ispnexus/webhook-service/internal/endpoints"
	"github.com/ispnexus/webhook-service/pkg/api"
)

type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// GetDeliveryHandler returns one delivery with its current state
func (h *Handlers) GetDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.deliveryID(w, r)
	if !ok {
		return
	}

	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, d)
}

// ListDeliveriesHandler returns deliveries filtered by endpoint, event or status
func (h *Handlers) ListDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	req := ListDeliveriesRequest{
		Status: r.URL.Query().Get("status"),
	}
	if raw := r.URL.Query().Get("endpoint_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			api.WriteBadRequestResponse(w, "invalid endpoint_id")
			return
		}
		req.EndpointID = id
	}
	if raw := r.URL.Query().Get("event_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			api.WriteBadRequestResponse(w, "invalid event_id")
			return
		}
		req.EventID = id
	}
	req.Limit, req.Offset = parsePagination(r)

	deliveries, err := h.service.List(r.Context(), req)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"deliveries": deliveries,
		"total":      len(deliveries),
	})
}

// ListAttemptsHandler returns the append-only attempt log for one delivery
func (h *Handlers) ListAttemptsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.deliveryID(w, r)
	if !ok {
		return
	}

	attempts, err := h.service.Attempts(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"attempts": attempts,
		"total":    len(attempts),
	})
}

// RetryDeliveryHandler re-arms a non-delivered delivery for an immediate attempt
func (h *Handlers) RetryDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.deliveryID(w, r)
	if !ok {
		return
	}

	d, err := h.service.Retry(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			api.WriteNotFoundResponse(w, "delivery not found")
			return
		}
		api.WriteConflictResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, d)
}

// EndpointDeliveriesHandler returns deliveries for one webhook endpoint
func (h *Handlers) EndpointDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	endpointID, ok := h.urlUUID(w, r, "webhookId")
	if !ok {
		return
	}

	req := ListDeliveriesRequest{
		EndpointID: endpointID,
		Status:     r.URL.Query().Get("status"),
	}
	req.Limit, req.Offset = parsePagination(r)

	deliveries, err := h.service.List(r.Context(), req)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"deliveries": deliveries,
		"total":      len(deliveries),
	})
}

// EndpointStatsHandler returns per-status delivery counts for one endpoint
func (h *Handlers) EndpointStatsHandler(w http.ResponseWriter, r *http.Request) {
	endpointID, ok := h.urlUUID(w, r, "webhookId")
	if !ok {
		return
	}

	stats, err := h.service.EndpointStats(r.Context(), endpointID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, stats)
}

// TestEndpointHandler fires a synthetic signed test event at the endpoint
func (h *Handlers) TestEndpointHandler(w http.ResponseWriter, r *http.Request) {
	endpointID, ok := h.urlUUID(w, r, "webhookId")
	if !ok {
		return
	}

	result, err := h.service.SendTest(r.Context(), endpointID)
	if err != nil {
		switch {
		case errors.Is(err, endpoints.ErrNotFound):
			api.WriteNotFoundResponse(w, "webhook endpoint not found")
		case errors.Is(err, endpoints.ErrSecretNotFound):
			api.WriteConflictResponse(w, "endpoint has no active signing secret")
		default:
			api.WriteInternalErrorResponse(w, err.Error())
		}
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, result)
}

func (h *Handlers) deliveryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return h.urlUUID(w, r, "deliveryId")
}

func (h *Handlers) urlUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		api.WriteBadRequestResponse(w, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		api.WriteNotFoundResponse(w, "delivery not found")
	case errors.Is(err, endpoints.ErrNotFound):
		api.WriteNotFoundResponse(w, "webhook endpoint not found")
	default:
		api.WriteInternalErrorResponse(w, err.Error())
	}
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
