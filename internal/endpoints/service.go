// internal/endpoints/service.go
package endpoints

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ispnexus/webhook-service/internal/catalog"
	"github.com/ispnexus/webhook-service/internal/filters"
)

type Service struct {
	repo    Repository
	catalog *catalog.Service
	logger  zerolog.Logger
}

func NewService(repo Repository, catalogService *catalog.Service, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalogService,
		logger:  logger,
	}
}

// Create registers a new endpoint with its initial signing secret and
// optional event subscriptions.
func (s *Service) Create(ctx context.Context, req CreateEndpointRequest) (Endpoint, error) {
	if err := validateURL(req.URL); err != nil {
		return Endpoint{}, err
	}

	ep := Endpoint{
		URL:                req.URL,
		HTTPMethod:         defaultString(req.HTTPMethod, DefaultHTTPMethod),
		ContentType:        defaultString(req.ContentType, DefaultContentType),
		Headers:            req.Headers,
		SignatureAlgorithm: defaultString(req.SignatureAlgorithm, AlgorithmHMACSHA256),
		SignatureEncoding:  defaultString(req.SignatureEncoding, EncodingHex),
		VerifyTLS:          true,
		TimeoutSeconds:     defaultInt(req.TimeoutSeconds, DefaultTimeoutSeconds),
		RetryStrategy:      defaultString(req.RetryStrategy, RetryExponential),
		MaxAttempts:        defaultInt(req.MaxAttempts, DefaultMaxAttempts),
		RetryDelaySeconds:  defaultInt(req.RetryDelaySeconds, DefaultRetryDelay),
		Status:             StatusActive,
		RateLimitPerMinute: req.RateLimitPerMinute,
		RateLimitPerHour:   req.RateLimitPerHour,
		FilterConjunction:  defaultString(req.FilterConjunction, string(filters.ConjunctionAll)),
		Description:        req.Description,
	}
	if req.VerifyTLS != nil {
		ep.VerifyTLS = *req.VerifyTLS
	}
	if ep.RetryStrategy == RetryNone {
		// "none" never retries, regardless of the configured ceiling
		ep.MaxAttempts = 1
	}

	created, err := s.repo.InsertEndpoint(ctx, ep)
	if err != nil {
		return Endpoint{}, err
	}

	_, err = s.repo.InsertSecret(ctx, Secret{
		EndpointID:  created.ID,
		Name:        "default",
		SecretValue: req.Secret,
		Algorithm:   created.SignatureAlgorithm,
	})
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to store endpoint secret: %w", err)
	}

	for _, eventType := range req.EventTypes {
		if err := s.SubscribeByName(ctx, created.ID, eventType); err != nil {
			return Endpoint{}, err
		}
	}

	s.logger.Info().
		Str("endpoint_id", created.ID.String()).
		Str("url", created.URL).
		Int("event_types", len(req.EventTypes)).
		Msg("webhook endpoint created")

	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Endpoint, error) {
	return s.repo.GetEndpoint(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Endpoint, error) {
	return s.repo.ListEndpoints(ctx, limit, offset)
}

// Update applies the non-nil fields of the request to the stored endpoint.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateEndpointRequest) (Endpoint, error) {
	ep, err := s.repo.GetEndpoint(ctx, id)
	if err != nil {
		return Endpoint{}, err
	}

	if req.URL != nil {
		if err := validateURL(*req.URL); err != nil {
			return Endpoint{}, err
		}
		ep.URL = *req.URL
	}
	if req.HTTPMethod != nil {
		ep.HTTPMethod = *req.HTTPMethod
	}
	if req.ContentType != nil {
		ep.ContentType = *req.ContentType
	}
	if req.Headers != nil {
		ep.Headers = req.Headers
	}
	if req.TimeoutSeconds != nil {
		ep.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.RetryStrategy != nil {
		ep.RetryStrategy = *req.RetryStrategy
		if ep.RetryStrategy == RetryNone {
			ep.MaxAttempts = 1
		}
	}
	if req.MaxAttempts != nil && ep.RetryStrategy != RetryNone {
		ep.MaxAttempts = *req.MaxAttempts
	}
	if req.RetryDelaySeconds != nil {
		ep.RetryDelaySeconds = *req.RetryDelaySeconds
	}
	if req.RateLimitPerMinute != nil {
		ep.RateLimitPerMinute = *req.RateLimitPerMinute
	}
	if req.RateLimitPerHour != nil {
		ep.RateLimitPerHour = *req.RateLimitPerHour
	}
	if req.FilterConjunction != nil {
		ep.FilterConjunction = *req.FilterConjunction
	}
	if req.Status != nil {
		ep.Status = *req.Status
	}
	if req.Description != nil {
		ep.Description = *req.Description
	}

	return s.repo.UpdateEndpoint(ctx, ep)
}

// Delete removes the endpoint and, by cascade, its secrets, filters,
// subscriptions and rate-limit windows.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteEndpoint(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("endpoint_id", id.String()).Msg("webhook endpoint deleted")
	return nil
}

// SubscribeByName subscribes the endpoint to an event type by catalog name.
// Event types registered with auth_required carry sensitive payloads and
// may only go to HTTPS endpoints with TLS verification on.
func (s *Service) SubscribeByName(ctx context.Context, endpointID uuid.UUID, eventTypeName string) error {
	eventType, err := s.catalog.Resolve(ctx, eventTypeName)
	if err != nil {
		return err
	}

	if eventType.AuthRequired {
		ep, err := s.repo.GetEndpoint(ctx, endpointID)
		if err != nil {
			return err
		}
		if !strings.HasPrefix(ep.URL, "https://") || !ep.VerifyTLS {
			return fmt.Errorf("%w: event type %q requires HTTPS delivery with TLS verification",
				ErrValidation, eventTypeName)
		}
	}

	return s.repo.Subscribe(ctx, endpointID, eventType.ID)
}

func (s *Service) UnsubscribeByName(ctx context.Context, endpointID uuid.UUID, eventTypeName string) error {
	eventType, err := s.catalog.Resolve(ctx, eventTypeName)
	if err != nil {
		return err
	}
	return s.repo.Unsubscribe(ctx, endpointID, eventType.ID)
}

func (s *Service) ListSubscriptions(ctx context.Context, endpointID uuid.UUID) ([]Subscription, error) {
	return s.repo.ListSubscriptions(ctx, endpointID)
}

// AddSecret stores a new signing secret. With Rotate set, existing secrets
// are deactivated first; deliveries already signed keep their historical
// signatures.
func (s *Service) AddSecret(ctx context.Context, endpointID uuid.UUID, req AddSecretRequest) (Secret, error) {
	ep, err := s.repo.GetEndpoint(ctx, endpointID)
	if err != nil {
		return Secret{}, err
	}

	if req.Rotate {
		if err := s.repo.DeactivateSecrets(ctx, endpointID); err != nil {
			return Secret{}, err
		}
	}

	secret := Secret{
		EndpointID:  endpointID,
		Name:        defaultString(req.Name, "default"),
		SecretValue: req.Secret,
		Algorithm:   defaultString(req.Algorithm, ep.SignatureAlgorithm),
		ExpiresAt:   req.ExpiresAt,
	}

	created, err := s.repo.InsertSecret(ctx, secret)
	if err != nil {
		return Secret{}, err
	}

	s.logger.Info().
		Str("endpoint_id", endpointID.String()).
		Bool("rotated", req.Rotate).
		Msg("endpoint secret added")

	return created, nil
}

// ActiveSecret returns the newest active, non-expired secret for signing.
func (s *Service) ActiveSecret(ctx context.Context, endpointID uuid.UUID) (Secret, error) {
	secrets, err := s.repo.ListSecrets(ctx, endpointID)
	if err != nil {
		return Secret{}, err
	}
	now := time.Now()
	for _, secret := range secrets {
		if secret.Eligible(now) {
			return secret, nil
		}
	}
	return Secret{}, ErrSecretNotFound
}

// AddFilter attaches a predicate rule to the endpoint.
func (s *Service) AddFilter(ctx context.Context, endpointID uuid.UUID, req AddFilterRequest) (filters.Rule, error) {
	operator := filters.Operator(req.Operator)
	if !filters.IsValidOperator(operator) {
		return filters.Rule{}, fmt.Errorf("%w: unsupported operator %q", ErrValidation, req.Operator)
	}

	rule := filters.Rule{
		EndpointID:     endpointID,
		FieldPath:      req.FieldPath,
		Operator:       operator,
		Value:          req.Value,
		Values:         req.Values,
		IncludeOnMatch: true,
	}
	if req.IncludeOnMatch != nil {
		rule.IncludeOnMatch = *req.IncludeOnMatch
	}

	return s.repo.InsertFilter(ctx, rule)
}

func (s *Service) RemoveFilter(ctx context.Context, endpointID, filterID uuid.UUID) error {
	return s.repo.DeleteFilter(ctx, endpointID, filterID)
}

func (s *Service) ListFilters(ctx context.Context, endpointID uuid.UUID) ([]filters.Rule, error) {
	return s.repo.ListFilters(ctx, endpointID)
}

// Subscribers returns active endpoints subscribed to the event type.
func (s *Service) Subscribers(ctx context.Context, eventTypeID uuid.UUID) ([]Endpoint, error) {
	return s.repo.ListSubscribers(ctx, eventTypeID)
}

// Conjunction exposes the endpoint's filter combination policy.
func (ep Endpoint) Conjunction() filters.Conjunction {
	return filtersConjunction(ep.FilterConjunction)
}

func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	return s.repo.SetStatus(ctx, id, status)
}

func (s *Service) RecordDeliveryOutcome(ctx context.Context, id uuid.UUID, success bool) error {
	return s.repo.IncrementCounters(ctx, id, success)
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed URL", ErrValidation)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: URL scheme must be http or https", ErrValidation)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: URL host is required", ErrValidation)
	}
	return nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
