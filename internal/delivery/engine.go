// internal/delivery/engine.go
package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ispnexus/webhook-service/internal/endpoints"
	"github.com/ispnexus/webhook-service/internal/events"
	"github.com/ispnexus/webhook-service/internal/metrics"
)

// Config carries the delivery knobs the engine cannot derive from the
// endpoint itself.
type Config struct {
	SignatureHeader string
	TimestampHeader string
	UserAgent       string
	DefaultTimeout  time.Duration
	RetryDelay      time.Duration
}

// Service executes scheduled deliveries: it signs the canonical event body,
// performs the HTTP attempt, records the attempt row, and advances the
// delivery state machine.
type Service struct {
	repo     Repository
	eventsDB events.Repository
	registry *endpoints.Service
	cfg      Config
	logger   zerolog.Logger

	client         *http.Client
	insecureClient *http.Client

	// Injectable clock for tests.
	now func() time.Time
}

func NewService(repo Repository, eventsDB events.Repository, registry *endpoints.Service, cfg Config, logger zerolog.Logger) *Service {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Minute
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = "X-Webhook-Signature"
	}
	if cfg.TimestampHeader == "" {
		cfg.TimestampHeader = "X-Webhook-Timestamp"
	}

	insecureTransport := http.DefaultTransport.(*http.Transport).Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &Service{
		repo:           repo,
		eventsDB:       eventsDB,
		registry:       registry,
		cfg:            cfg,
		logger:         logger,
		client:         &http.Client{},
		insecureClient: &http.Client{Transport: insecureTransport},
		now:            time.Now,
	}
}

// Schedule creates the pending delivery row for one (event, endpoint) pair.
// Implements the emitter's fan-out contract. The attempt budget is the
// endpoint's, tightened by the event type's default when that is stricter.
func (s *Service) Schedule(ctx context.Context, event events.Event, endpoint endpoints.Endpoint, eventTypeMaxAttempts int) error {
	maxAttempts := endpoint.MaxAttempts
	if eventTypeMaxAttempts > 0 && eventTypeMaxAttempts < maxAttempts {
		maxAttempts = eventTypeMaxAttempts
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	_, err := s.repo.Insert(ctx, Delivery{
		EventID:     event.ID,
		EndpointID:  endpoint.ID,
		MaxAttempts: maxAttempts,
		ScheduledAt: s.now(),
	})
	if err != nil {
		return err
	}

	metrics.DeliveriesCreated.Inc()
	return nil
}

// Process executes one claimed delivery end to end. It is safe to call for
// a delivery whose endpoint or event has since been deleted; the delivery
// is failed rather than retried forever.
func (s *Service) Process(ctx context.Context, d Delivery) {
	logger := s.logger.With().
		Str("delivery_id", d.ID.String()).
		Str("endpoint_id", d.EndpointID.String()).
		Logger()

	endpoint, err := s.registry.Get(ctx, d.EndpointID)
	if err != nil {
		s.failConfig(ctx, d, "endpoint no longer exists", logger)
		return
	}

	event, err := s.eventsDB.GetByID(ctx, d.EventID)
	if err != nil {
		s.failConfig(ctx, d, "event no longer exists", logger)
		return
	}

	secret, err := s.registry.ActiveSecret(ctx, d.EndpointID)
	if err != nil {
		if errors.Is(err, endpoints.ErrSecretNotFound) {
			s.failConfig(ctx, d, "no active signing secret", logger)
			return
		}
		logger.Error().Err(err).Msg("failed to load signing secret; will retry on next claim")
		return
	}

	if deferred := s.deferIfRateLimited(ctx, d, endpoint, logger); deferred {
		return
	}

	body, err := event.CanonicalBytes()
	if err != nil {
		s.failConfig(ctx, d, fmt.Sprintf("cannot serialize event envelope: %v", err), logger)
		return
	}

	outcome := s.attempt(ctx, d, endpoint, event, secret, body)

	if _, err := s.repo.InsertAttempt(ctx, outcome.attempt); err != nil {
		logger.Error().Err(err).Msg("failed to record delivery attempt")
	}
	metrics.AttemptDuration.Observe(float64(outcome.attempt.DurationMs) / 1000)

	if outcome.success {
		metrics.AttemptsTotal.WithLabelValues("success").Inc()
		if err := s.repo.MarkDelivered(ctx, d.ID, *outcome.attempt.ResponseStatus); err != nil {
			logger.Error().Err(err).Msg("failed to mark delivery delivered")
			return
		}
		if err := s.registry.RecordDeliveryOutcome(ctx, d.EndpointID, true); err != nil {
			logger.Error().Err(err).Msg("failed to bump endpoint success counter")
		}
		metrics.DeliveriesCompleted.WithLabelValues(StatusDelivered).Inc()
		logger.Info().
			Int("attempt", outcome.attempt.AttemptNumber).
			Int("status_code", *outcome.attempt.ResponseStatus).
			Msg("delivery succeeded")
		return
	}

	metrics.AttemptsTotal.WithLabelValues(*outcome.attempt.ErrorType).Inc()

	attemptNumber := outcome.attempt.AttemptNumber
	var nextRetryAt *time.Time
	if attemptNumber < d.MaxAttempts && endpoint.RetryStrategy != endpoints.RetryNone {
		baseDelay := time.Duration(endpoint.RetryDelaySeconds) * time.Second
		if baseDelay <= 0 {
			baseDelay = s.cfg.RetryDelay
		}
		next := s.now().Add(NextRetryDelay(endpoint.RetryStrategy, baseDelay, attemptNumber))
		nextRetryAt = &next
	}

	errMsg := ""
	if outcome.attempt.ErrorMessage != nil {
		errMsg = *outcome.attempt.ErrorMessage
	}
	if err := s.repo.MarkFailedAttempt(ctx, d.ID, outcome.attempt.ResponseStatus, errMsg, nextRetryAt); err != nil {
		logger.Error().Err(err).Msg("failed to record delivery failure")
		return
	}

	if nextRetryAt == nil {
		if err := s.registry.RecordDeliveryOutcome(ctx, d.EndpointID, false); err != nil {
			logger.Error().Err(err).Msg("failed to bump endpoint failure counter")
		}
		metrics.DeliveriesCompleted.WithLabelValues(StatusAbandoned).Inc()
		logger.Warn().
			Int("attempts", attemptNumber).
			Str("error", errMsg).
			Msg("delivery abandoned after exhausting attempts")
		return
	}

	logger.Info().
		Int("attempt", attemptNumber).
		Time("next_retry_at", *nextRetryAt).
		Str("error", errMsg).
		Msg("delivery attempt failed; retry scheduled")
}

func (s *Service) failConfig(ctx context.Context, d Delivery, reason string, logger zerolog.Logger) {
	if err := s.repo.MarkConfigFailure(ctx, d.ID, reason); err != nil {
		logger.Error().Err(err).Msg("failed to mark delivery failed")
		return
	}
	if err := s.registry.RecordDeliveryOutcome(ctx, d.EndpointID, false); err != nil &&
		!errors.Is(err, endpoints.ErrNotFound) {
		logger.Error().Err(err).Msg("failed to bump endpoint failure counter")
	}
	metrics.DeliveriesCompleted.WithLabelValues(StatusFailed).Inc()
	logger.Warn().Str("reason", reason).Msg("delivery failed: endpoint not deliverable")
}

// deferIfRateLimited enforces the endpoint's fixed-window limits. The
// counter is shared through the database, so the check holds across
// workers and restarts. A deferred delivery keeps its attempt budget.
func (s *Service) deferIfRateLimited(ctx context.Context, d Delivery, endpoint endpoints.Endpoint, logger zerolog.Logger) bool {
	type window struct {
		unit  string
		limit int
		width time.Duration
	}

	now := s.now()
	for _, w := range []window{
		{"minute", endpoint.RateLimitPerMinute, time.Minute},
		{"hour", endpoint.RateLimitPerHour, time.Hour},
	} {
		if w.limit <= 0 {
			continue
		}
		windowStart := now.Truncate(w.width)
		count, err := s.repo.IncrementRateWindow(ctx, d.EndpointID, w.unit, windowStart)
		if err != nil {
			logger.Error().Err(err).Msg("failed to check rate limit; proceeding with attempt")
			return false
		}
		if count > w.limit {
			until := windowStart.Add(w.width)
			if err := s.repo.Defer(ctx, d.ID, until); err != nil {
				logger.Error().Err(err).Msg("failed to defer rate-limited delivery")
				return true
			}
			metrics.RateLimitDeferrals.Inc()
			logger.Info().
				Str("window", w.unit).
				Time("deferred_until", until).
				Msg("delivery deferred by endpoint rate limit")
			return true
		}
	}
	return false
}

type attemptOutcome struct {
	success bool
	attempt Attempt
}

func (s *Service) attempt(ctx context.Context, d Delivery, endpoint endpoints.Endpoint, event events.Event, secret endpoints.Secret, body []byte) attemptOutcome {
	started := s.now()
	timestamp := started.Unix()

	attempt := Attempt{
		DeliveryID:    d.ID,
		AttemptNumber: d.AttemptCount + 1,
		RequestURL:    endpoint.URL,
		RequestBody:   bodySnippet(body),
		StartedAt:     started,
	}

	signature, err := Sign(endpoint.SignatureAlgorithm, endpoint.SignatureEncoding, secret.SecretValue, timestamp, body)
	if err != nil {
		attempt.FinishedAt = s.now()
		return failedAttempt(attempt, ErrorConnection, fmt.Sprintf("cannot sign payload: %v", err))
	}

	timeout := time.Duration(endpoint.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, endpoint.HTTPMethod, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		attempt.FinishedAt = s.now()
		return failedAttempt(attempt, ErrorConnection, fmt.Sprintf("cannot build request: %v", err))
	}

	req.Header.Set("Content-Type", endpoint.ContentType)
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	for name, value := range endpoint.Headers {
		req.Header.Set(name, value)
	}
	// Signature headers win over custom headers on collision.
	req.Header.Set(s.cfg.SignatureHeader, signature)
	req.Header.Set(s.cfg.TimestampHeader, fmt.Sprintf("%d", timestamp))
	req.Header.Set("X-Webhook-Event", event.EventTypeName)
	req.Header.Set("X-Webhook-Delivery", d.ID.String())

	attempt.RequestHeaders = headerSnapshot(req.Header)

	resp, err := s.httpClient(endpoint.VerifyTLS).Do(req)
	finished := s.now()
	attempt.FinishedAt = finished
	attempt.DurationMs = finished.Sub(started).Milliseconds()

	if err != nil {
		return failedAttempt(attempt, classifyError(err), err.Error())
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	attempt.ResponseStatus = &status
	attempt.ResponseHeaders = headerSnapshot(resp.Header)

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnapshot))
	respBody := string(snippet)
	attempt.ResponseBody = &respBody

	if status >= 200 && status < 300 {
		attempt.Success = true
		return attemptOutcome{success: true, attempt: attempt}
	}

	msg := fmt.Sprintf("endpoint returned HTTP %d", status)
	return failedAttempt(attempt, ErrorHTTP, msg)
}

func failedAttempt(attempt Attempt, errorType, errorMessage string) attemptOutcome {
	attempt.Success = false
	attempt.ErrorType = &errorType
	attempt.ErrorMessage = &errorMessage
	if attempt.DurationMs == 0 {
		attempt.DurationMs = attempt.FinishedAt.Sub(attempt.StartedAt).Milliseconds()
	}
	return attemptOutcome{success: false, attempt: attempt}
}

func (s *Service) httpClient(verifyTLS bool) *http.Client {
	if verifyTLS {
		return s.client
	}
	return s.insecureClient
}

func bodySnippet(body []byte) string {
	if len(body) > maxBodySnapshot {
		body = body[:maxBodySnapshot]
	}
	return string(body)
}

func headerSnapshot(h http.Header) json.RawMessage {
	flat := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			flat[name] = values[0]
		}
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func classifyError(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorDNS
	}

	var certErr *tls.CertificateVerificationError
	var hostErr x509.HostnameError
	var authErr x509.UnknownAuthorityError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) || errors.As(err, &authErr) {
		return ErrorSSL
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}

	return ErrorConnection
}

// Retry re-arms a stuck or abandoned delivery for an immediate attempt.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (Delivery, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Delivery{}, err
	}
	if d.Status == StatusDelivered {
		return Delivery{}, fmt.Errorf("delivery %s already delivered", id)
	}
	return s.repo.ResetForRetry(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Delivery, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListDeliveriesRequest) ([]Delivery, error) {
	return s.repo.List(ctx, req)
}

func (s *Service) Attempts(ctx context.Context, deliveryID uuid.UUID) ([]Attempt, error) {
	if _, err := s.repo.GetByID(ctx, deliveryID); err != nil {
		return nil, err
	}
	return s.repo.ListAttempts(ctx, deliveryID)
}

func (s *Service) EndpointStats(ctx context.Context, endpointID uuid.UUID) (EndpointStats, error) {
	return s.repo.Stats(ctx, endpointID)
}

// TestResult reports the outcome of a synthetic test delivery. Nothing is
// persisted; the request goes out signed exactly like a real delivery.
type TestResult struct {
	Success    bool   `json:"success"`
	StatusCode *int   `json:"status_code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	ErrorType  string `json:"error_type,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SendTest fires a webhook.test event at the endpoint and reports the
// outcome without creating delivery or attempt rows.
func (s *Service) SendTest(ctx context.Context, endpointID uuid.UUID) (TestResult, error) {
	endpoint, err := s.registry.Get(ctx, endpointID)
	if err != nil {
		return TestResult{}, err
	}
	secret, err := s.registry.ActiveSecret(ctx, endpointID)
	if err != nil {
		return TestResult{}, err
	}

	event := events.Event{
		ID:            uuid.New(),
		EventTypeName: "webhook.test",
		Payload:       json.RawMessage(`{"message":"test delivery"}`),
		OccurredAt:    s.now(),
	}
	body, err := event.CanonicalBytes()
	if err != nil {
		return TestResult{}, err
	}

	synthetic := Delivery{ID: uuid.New(), EndpointID: endpointID}
	outcome := s.attempt(ctx, synthetic, endpoint, event, secret, body)

	result := TestResult{
		Success:    outcome.success,
		StatusCode: outcome.attempt.ResponseStatus,
		DurationMs: outcome.attempt.DurationMs,
	}
	if outcome.attempt.ErrorType != nil {
		result.ErrorType = *outcome.attempt.ErrorType
	}
	if outcome.attempt.ErrorMessage != nil {
		result.Error = *outcome.attempt.ErrorMessage
	}
	return result, nil
}
