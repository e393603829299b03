// internal/catalog/service.go
package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Register adds a new event type to the catalog. Fails with ErrDuplicate
// when the name is already registered. Referenced event types are never
// mutated afterwards; retiring one is a soft deactivate.
func (s *Service) Register(ctx context.Context, req RegisterEventTypeRequest) (EventType, error) {
	et := EventType{
		Name:               req.Name,
		Category:           req.Category,
		Description:        req.Description,
		PayloadSchema:      req.PayloadSchema,
		AuthRequired:       true,
		DefaultMaxAttempts: req.DefaultMaxAttempts,
	}

	if et.Category == "" {
		et.Category = DefaultCategory
	}
	if req.AuthRequired != nil {
		et.AuthRequired = *req.AuthRequired
	}
	if et.DefaultMaxAttempts <= 0 {
		et.DefaultMaxAttempts = DefaultMaxAttempts
	}

	created, err := s.repo.Insert(ctx, et)
	if err != nil {
		return EventType{}, err
	}

	s.logger.Info().
		Str("event_type", created.Name).
		Str("category", created.Category).
		Msg("event type registered")

	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (EventType, error) {
	return s.repo.GetByID(ctx, id)
}

// Resolve looks up an active event type by name. Unknown or deactivated
// names fail with ErrNotFound; there is no fallback type.
func (s *Service) Resolve(ctx context.Context, name string) (EventType, error) {
	et, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return EventType{}, err
	}
	if !et.Active {
		return EventType{}, fmt.Errorf("%w: %q is deactivated", ErrNotFound, name)
	}
	return et, nil
}

func (s *Service) List(ctx context.Context, req ListEventTypesRequest) ([]EventType, error) {
	return s.repo.List(ctx, req)
}

// Deactivate retires an event type without touching historical events.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Info().Str("event_type_id", id.String()).Msg("event type deactivated")
	return nil
}
