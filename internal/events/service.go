// internal/events/service.go
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ispnexus/webhook-service/internal/catalog"
	"github.com/ispnexus/webhook-service/internal/endpoints"
	"github.com/ispnexus/webhook-service/internal/filters"
	"github.com/ispnexus/webhook-service/internal/metrics"
)

// Scheduler creates the delivery row for one (event, endpoint) pair that
// passed filtering. Implemented by the delivery service.
type Scheduler interface {
	Schedule(ctx context.Context, event Event, endpoint endpoints.Endpoint, eventTypeMaxAttempts int) error
}

type Service struct {
	repo      Repository
	catalog   *catalog.Service
	registry  *endpoints.Service
	evaluator *filters.Evaluator
	scheduler Scheduler
	logger    zerolog.Logger
}

func NewService(
	repo Repository,
	catalogService *catalog.Service,
	registry *endpoints.Service,
	evaluator *filters.Evaluator,
	scheduler Scheduler,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		catalog:   catalogService,
		registry:  registry,
		evaluator: evaluator,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Emit persists the event and fans it out to subscribed endpoints. The
// event row is always created before fan-out runs; once it is durable,
// fan-out problems are logged but never returned to the emitter. Unknown
// event types fail loudly with ErrUnknownEventType.
func (s *Service) Emit(ctx context.Context, req EmitRequest) (EmitResult, error) {
	eventType, err := s.catalog.Resolve(ctx, req.EventType)
	if err != nil {
		return EmitResult{}, fmt.Errorf("%w: %q", ErrUnknownEventType, req.EventType)
	}

	event, err := s.repo.Insert(ctx, Event{
		EventTypeID:   eventType.ID,
		EventTypeName: eventType.Name,
		Payload:       req.Payload,
		Metadata:      req.Metadata,
		Origin:        req.Origin,
	})
	if err != nil {
		return EmitResult{}, err
	}
	metrics.EventsEmitted.WithLabelValues(event.EventTypeName).Inc()

	matched, created := s.fanOut(ctx, event, eventType)

	if err := s.repo.MarkProcessed(ctx, event.ID); err != nil {
		s.logger.Error().Err(err).
			Str("event_id", event.ID.String()).
			Msg("failed to mark event processed")
	} else {
		event.Processed = true
	}

	s.logger.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventTypeName).
		Int("matched_endpoints", matched).
		Int("deliveries_created", created).
		Msg("event emitted")

	return EmitResult{
		Event:             event,
		MatchedEndpoints:  matched,
		DeliveriesCreated: created,
	}, nil
}

// fanOut selects subscribed endpoints, applies their filters, and schedules
// one delivery per match. A failure on one endpoint never blocks the others.
func (s *Service) fanOut(ctx context.Context, event Event, eventType catalog.EventType) (matched, created int) {
	subscribers, err := s.registry.Subscribers(ctx, eventType.ID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("event_id", event.ID.String()).
			Msg("failed to load subscribers for fan-out")
		return 0, 0
	}

	if len(subscribers) == 0 {
		return 0, 0
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		// non-object payloads are legal; filters simply see no fields
		payload = map[string]interface{}{}
	}

	for _, endpoint := range subscribers {
		rules, err := s.registry.ListFilters(ctx, endpoint.ID)
		if err != nil {
			s.logger.Error().Err(err).
				Str("event_id", event.ID.String()).
				Str("endpoint_id", endpoint.ID.String()).
				Msg("failed to load filters, skipping endpoint")
			continue
		}

		if !s.evaluator.Matches(payload, rules, endpoint.Conjunction()) {
			continue
		}
		matched++

		if err := s.scheduler.Schedule(ctx, event, endpoint, eventType.DefaultMaxAttempts); err != nil {
			s.logger.Error().Err(err).
				Str("event_id", event.ID.String()).
				Str("endpoint_id", endpoint.ID.String()).
				Msg("failed to schedule delivery")
			continue
		}
		created++
	}

	return matched, created
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Event, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListEventsRequest) ([]Event, error) {
	return s.repo.List(ctx, req)
}
