package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Basic Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Use(s.contentTypeMiddleware)

	r.Get("/health", s.healthHandler)
	r.Get("/health/db", s.healthDBHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Emission surface for business services (API key)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware.ServiceKeyMiddleware)

			r.Post("/events", s.eventHandlers.EmitEventHandler)
		})

		// Management surface (admin bearer token)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware.AdminAuthMiddleware)

			// Event audit trail
			r.Get("/events", s.eventHandlers.ListEventsHandler)
			r.Get("/events/{eventId}", s.eventHandlers.GetEventHandler)

			// Event catalog
			r.Post("/event-types", s.catalogHandlers.RegisterEventTypeHandler)
			r.Get("/event-types", s.catalogHandlers.ListEventTypesHandler)
			r.Delete("/event-types/{eventTypeId}", s.catalogHandlers.DeactivateEventTypeHandler)

			// Webhook endpoint registry
			r.Post("/webhooks", s.endpointHandlers.CreateEndpointHandler)
			r.Get("/webhooks", s.endpointHandlers.ListEndpointsHandler)
			r.Get("/webhooks/{webhookId}", s.endpointHandlers.GetEndpointHandler)
			r.Put("/webhooks/{webhookId}", s.endpointHandlers.UpdateEndpointHandler)
			r.Delete("/webhooks/{webhookId}", s.endpointHandlers.DeleteEndpointHandler)

			// Subscriptions, secrets, filters
			r.Post("/webhooks/{webhookId}/subscriptions", s.endpointHandlers.SubscribeHandler)
			r.Delete("/webhooks/{webhookId}/subscriptions/{eventType}", s.endpointHandlers.UnsubscribeHandler)
			r.Post("/webhooks/{webhookId}/secrets", s.endpointHandlers.AddSecretHandler)
			r.Post("/webhooks/{webhookId}/filters", s.endpointHandlers.AddFilterHandler)
			r.Delete("/webhooks/{webhookId}/filters/{filterId}", s.endpointHandlers.RemoveFilterHandler)

			// Delivery visibility and operator actions
			r.Post("/webhooks/{webhookId}/test", s.deliveryHandlers.TestEndpointHandler)
			r.Get("/webhooks/{webhookId}/deliveries", s.deliveryHandlers.EndpointDeliveriesHandler)
			r.Get("/webhooks/{webhookId}/stats", s.deliveryHandlers.EndpointStatsHandler)
			r.Get("/deliveries", s.deliveryHandlers.ListDeliveriesHandler)
			r.Get("/deliveries/{deliveryId}", s.deliveryHandlers.GetDeliveryHandler)
			r.Get("/deliveries/{deliveryId}/attempts", s.deliveryHandlers.ListAttemptsHandler)
			r.Post("/deliveries/{deliveryId}/retry", s.deliveryHandlers.RetryDeliveryHandler)
		})
	})

	return r
}
