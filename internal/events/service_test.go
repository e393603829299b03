// internal/events/service_test.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ispnexus/webhook-service/internal/catalog"
	"github.com/ispnexus/webhook-service/internal/endpoints"
	"github.com/ispnexus/webhook-service/internal/filters"
	"github.com/ispnexus/webhook-service/internal/metrics"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Insert(ctx context.Context, event Event) (Event, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(Event), args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (Event, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Event), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, req ListEventsRequest) ([]Event, error) {
	args := m.Called(ctx, req)
	return args.Get(0).([]Event), args.Error(1)
}

func (m *MockRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// recordingScheduler captures Schedule calls; optionally failing for one
// endpoint to prove per-endpoint isolation.
type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []uuid.UUID
	failFor   uuid.UUID
}

func (r *recordingScheduler) Schedule(ctx context.Context, event Event, endpoint endpoints.Endpoint, eventTypeMaxAttempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if endpoint.ID == r.failFor {
		return errors.New("scheduler unavailable")
	}
	r.scheduled = append(r.scheduled, endpoint.ID)
	return nil
}

type stubCatalogRepo struct {
	catalog.Repository
	eventType catalog.EventType
}

func (s *stubCatalogRepo) GetByName(ctx context.Context, name string) (catalog.EventType, error) {
	if name != s.eventType.Name {
		return catalog.EventType{}, catalog.ErrNotFound
	}
	return s.eventType, nil
}

// stubEndpointRepo serves subscribers and their filter rules.
type stubEndpointRepo struct {
	endpoints.Repository
	subscribers []endpoints.Endpoint
	rules       map[uuid.UUID][]filters.Rule
}

func (s *stubEndpointRepo) ListSubscribers(ctx context.Context, eventTypeID uuid.UUID) ([]endpoints.Endpoint, error) {
	return s.subscribers, nil
}

func (s *stubEndpointRepo) ListFilters(ctx context.Context, endpointID uuid.UUID) ([]filters.Rule, error) {
	return s.rules[endpointID], nil
}

type emitterFixture struct {
	repo      *MockRepository
	scheduler *recordingScheduler
	epRepo    *stubEndpointRepo
	eventType catalog.EventType
	service   *Service
}

func newEmitterFixture(subscribers []endpoints.Endpoint, rules map[uuid.UUID][]filters.Rule) *emitterFixture {
	eventType := catalog.EventType{
		ID:                 uuid.New(),
		Name:               "billing.invoice.paid",
		Active:             true,
		DefaultMaxAttempts: 5,
	}

	repo := new(MockRepository)
	scheduler := &recordingScheduler{}
	epRepo := &stubEndpointRepo{subscribers: subscribers, rules: rules}

	catalogService := catalog.NewService(&stubCatalogRepo{eventType: eventType}, zerolog.Nop())
	registry := endpoints.NewService(epRepo, catalogService, zerolog.Nop())

	service := NewService(repo, catalogService, registry, filters.NewEvaluator(), scheduler, zerolog.Nop())

	return &emitterFixture{
		repo:      repo,
		scheduler: scheduler,
		epRepo:    epRepo,
		eventType: eventType,
		service:   service,
	}
}

func activeEndpoint() endpoints.Endpoint {
	return endpoints.Endpoint{
		ID:                uuid.New(),
		URL:               "https://receiver.example.com/hooks",
		Status:            endpoints.StatusActive,
		MaxAttempts:       5,
		FilterConjunction: "all",
	}
}

func emitRequest() EmitRequest {
	return EmitRequest{
		EventType: "billing.invoice.paid",
		Payload:   json.RawMessage(`{"invoice_id":"inv-1","amount":49.99,"plan":"fiber_100"}`),
	}
}

func TestEmitUnknownEventTypeFailsLoudly(t *testing.T) {
	f := newEmitterFixture(nil, nil)

	_, err := f.service.Emit(context.Background(), EmitRequest{
		EventType: "no.such_event",
		Payload:   json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, ErrUnknownEventType)
	f.repo.AssertNotCalled(t, "Insert")
}

func TestEmitPersistsEventAndFansOut(t *testing.T) {
	ep1 := activeEndpoint()
	ep2 := activeEndpoint()
	f := newEmitterFixture([]endpoints.Endpoint{ep1, ep2}, nil)

	eventID := uuid.New()
	f.repo.On("Insert", mock.Anything, mock.MatchedBy(func(e Event) bool {
		return e.EventTypeName == "billing.invoice.paid" && e.EventTypeID == f.eventType.ID
	})).Return(Event{ID: eventID, EventTypeName: "billing.invoice.paid"}, nil)
	f.repo.On("MarkProcessed", mock.Anything, eventID).Return(nil)

	result, err := f.service.Emit(context.Background(), emitRequest())
	require.NoError(t, err)

	assert.Equal(t, 2, result.MatchedEndpoints)
	assert.Equal(t, 2, result.DeliveriesCreated)
	assert.True(t, result.Event.Processed)
	assert.ElementsMatch(t, []uuid.UUID{ep1.ID, ep2.ID}, f.scheduler.scheduled)
	f.repo.AssertExpectations(t)
}

func TestEmitAppliesEndpointFilters(t *testing.T) {
	matching := activeEndpoint()
	excluded := activeEndpoint()

	rules := map[uuid.UUID][]filters.Rule{
		excluded.ID: {{
			FieldPath:      "plan",
			Operator:       filters.OpEquals,
			Value:          "cable_50",
			IncludeOnMatch: true,
			Active:         true,
		}},
	}
	f := newEmitterFixture([]endpoints.Endpoint{matching, excluded}, rules)

	eventID := uuid.New()
	f.repo.On("Insert", mock.Anything, mock.Anything).Return(Event{ID: eventID}, nil)
	f.repo.On("MarkProcessed", mock.Anything, eventID).Return(nil)

	result, err := f.service.Emit(context.Background(), emitRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, result.MatchedEndpoints)
	assert.Equal(t, []uuid.UUID{matching.ID}, f.scheduler.scheduled)
}

func TestEmitSchedulerFailureDoesNotBlockOthers(t *testing.T) {
	ep1 := activeEndpoint()
	ep2 := activeEndpoint()
	f := newEmitterFixture([]endpoints.Endpoint{ep1, ep2}, nil)
	f.scheduler.failFor = ep1.ID

	eventID := uuid.New()
	f.repo.On("Insert", mock.Anything, mock.Anything).Return(Event{ID: eventID}, nil)
	f.repo.On("MarkProcessed", mock.Anything, eventID).Return(nil)

	result, err := f.service.Emit(context.Background(), emitRequest())
	require.NoError(t, err, "fan-out failures never surface to the emitter")

	assert.Equal(t, 2, result.MatchedEndpoints)
	assert.Equal(t, 1, result.DeliveriesCreated)
	assert.Equal(t, []uuid.UUID{ep2.ID}, f.scheduler.scheduled)
}

func TestEmitNoSubscribers(t *testing.T) {
	f := newEmitterFixture(nil, nil)

	eventID := uuid.New()
	f.repo.On("Insert", mock.Anything, mock.Anything).Return(Event{ID: eventID}, nil)
	f.repo.On("MarkProcessed", mock.Anything, eventID).Return(nil)

	result, err := f.service.Emit(context.Background(), emitRequest())
	require.NoError(t, err, "an event with no subscribers is still persisted")
	assert.Zero(t, result.DeliveriesCreated)
	f.repo.AssertExpectations(t)
}

func TestEmitNonObjectPayloadStillFansOut(t *testing.T) {
	ep := activeEndpoint()
	f := newEmitterFixture([]endpoints.Endpoint{ep}, nil)

	eventID := uuid.New()
	f.repo.On("Insert", mock.Anything, mock.Anything).Return(Event{ID: eventID}, nil)
	f.repo.On("MarkProcessed", mock.Anything, eventID).Return(nil)

	_, err := f.service.Emit(context.Background(), EmitRequest{
		EventType: "billing.invoice.paid",
		Payload:   json.RawMessage(`[1,2,3]`),
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ep.ID}, f.scheduler.scheduled)
}

func TestEmitCountsEmittedEvents(t *testing.T) {
	f := newEmitterFixture(nil, nil)

	eventID := uuid.New()
	f.repo.On("Insert", mock.Anything, mock.Anything).
		Return(Event{ID: eventID, EventTypeName: "billing.invoice.paid"}, nil)
	f.repo.On("MarkProcessed", mock.Anything, eventID).Return(nil)

	counter := metrics.EventsEmitted.WithLabelValues("billing.invoice.paid")
	before := promtestutil.ToFloat64(counter)

	_, err := f.service.Emit(context.Background(), emitRequest())
	require.NoError(t, err)

	assert.Equal(t, before+1, promtestutil.ToFloat64(counter))
}

func TestCanonicalBytesEnvelope(t *testing.T) {
	event := Event{
		ID:            uuid.New(),
		EventTypeName: "ticket.created",
		Payload:       json.RawMessage(`{"ticket_id":"t-9"}`),
	}

	raw, err := event.CanonicalBytes()
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, event.ID.String(), envelope.EventID)
	assert.Equal(t, "ticket.created", envelope.EventType)
	assert.JSONEq(t, `{"ticket_id":"t-9"}`, string(envelope.Payload))
}
