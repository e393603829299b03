// internal/catalog/service_test.go
package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Insert(ctx context.Context, et EventType) (EventType, error) {
	args := m.Called(ctx, et)
	return args.Get(0).(EventType), args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (EventType, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(EventType), args.Error(1)
}

func (m *MockRepository) GetByName(ctx context.Context, name string) (EventType, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(EventType), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, req ListEventTypesRequest) ([]EventType, error) {
	args := m.Called(ctx, req)
	return args.Get(0).([]EventType), args.Error(1)
}

func (m *MockRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

func TestRegisterAppliesDefaults(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zerolog.Nop())

	repo.On("Insert", mock.Anything, mock.MatchedBy(func(et EventType) bool {
		return et.Category == DefaultCategory &&
			et.AuthRequired &&
			et.DefaultMaxAttempts == DefaultMaxAttempts
	})).Return(EventType{ID: uuid.New(), Name: "billing.invoice.paid"}, nil)

	_, err := service.Register(context.Background(), RegisterEventTypeRequest{
		Name: "billing.invoice.paid",
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRegisterKeepsExplicitValues(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zerolog.Nop())

	authRequired := false
	repo.On("Insert", mock.Anything, mock.MatchedBy(func(et EventType) bool {
		return et.Category == "billing" &&
			!et.AuthRequired &&
			et.DefaultMaxAttempts == 7
	})).Return(EventType{ID: uuid.New()}, nil)

	_, err := service.Register(context.Background(), RegisterEventTypeRequest{
		Name:               "billing.invoice.overdue",
		Category:           "billing",
		AuthRequired:       &authRequired,
		DefaultMaxAttempts: 7,
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRegisterDuplicateName(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zerolog.Nop())

	repo.On("Insert", mock.Anything, mock.Anything).Return(EventType{}, ErrDuplicate)

	_, err := service.Register(context.Background(), RegisterEventTypeRequest{
		Name: "billing.invoice.paid",
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestResolveActiveEventType(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zerolog.Nop())

	expected := EventType{ID: uuid.New(), Name: "ticket.created", Active: true}
	repo.On("GetByName", mock.Anything, "ticket.created").Return(expected, nil)

	et, err := service.Resolve(context.Background(), "ticket.created")
	require.NoError(t, err)
	assert.Equal(t, expected.ID, et.ID)
}

func TestResolveUnknownName(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zerolog.Nop())

	repo.On("GetByName", mock.Anything, "no.such_event").Return(EventType{}, ErrNotFound)

	_, err := service.Resolve(context.Background(), "no.such_event")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveDeactivatedNameFailsLoudly(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zerolog.Nop())

	repo.On("GetByName", mock.Anything, "service.suspended").
		Return(EventType{ID: uuid.New(), Name: "service.suspended", Active: false}, nil)

	_, err := service.Resolve(context.Background(), "service.suspended")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeactivate(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zerolog.Nop())

	id := uuid.New()
	repo.On("SetActive", mock.Anything, id, false).Return(nil)

	require.NoError(t, service.Deactivate(context.Background(), id))
	repo.AssertExpectations(t)
}
