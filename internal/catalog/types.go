// internal/catalog/types.go
package catalog

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("event type not found")
	ErrDuplicate = errors.New("event type already registered")
)

// EventType is a registered class of business occurrence, e.g.
// "customer.created" or "billing.invoice.paid".
type EventType struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Category           string          `json:"category"`
	Description        string          `json:"description"`
	PayloadSchema      json.RawMessage `json:"payload_schema,omitempty"`
	AuthRequired       bool            `json:"auth_required"`
	DefaultMaxAttempts int             `json:"default_max_attempts"`
	Active             bool            `json:"active"`
	CreatedAt          time.Time       `json:"created_at"`
}

// RegisterEventTypeRequest is the admin request to add a catalog entry.
type RegisterEventTypeRequest struct {
	Name               string          `json:"name" validate:"required,event_type_name,max=255"`
	Category           string          `json:"category" validate:"omitempty,max=100"`
	Description        string          `json:"description" validate:"omitempty,max=1000"`
	PayloadSchema      json.RawMessage `json:"payload_schema,omitempty"`
	AuthRequired       *bool           `json:"auth_required,omitempty"`
	DefaultMaxAttempts int             `json:"default_max_attempts" validate:"omitempty,gte=1,lte=20"`
}

// ListEventTypesRequest filters catalog listings.
type ListEventTypesRequest struct {
	Category        string
	IncludeInactive bool
	Limit           int
	Offset          int
}

const (
	DefaultCategory    = "general"
	DefaultMaxAttempts = 5
)
