// internal/events/types.go
package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("event not found")
	// ErrUnknownEventType is returned when Emit is called with a name that
	// is not in the catalog. There is no fallback event type; emitters must
	// register their types first.
	ErrUnknownEventType = errors.New("unknown event type")
)

// Origin records who or what triggered the event.
type Origin struct {
	UserID     string `json:"user_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	SourceIP   string `json:"source_ip,omitempty"`
}

// Event is the immutable audit record of something that happened. One event
// fans out to zero or many deliveries; the row itself is created exactly
// once and only the processed flag is ever flipped afterwards.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	EventTypeID   uuid.UUID       `json:"event_type_id"`
	EventTypeName string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	Origin        Origin          `json:"origin"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Processed     bool            `json:"processed"`
}

// Envelope is the JSON body delivered to webhook endpoints. EventID is the
// stable dedup key for receivers; delivery is at-least-once.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// CanonicalBytes returns the exact bytes that are signed and sent. Receivers
// verify the signature over the raw request body, so the same serialization
// must be used for signing and transmission.
func (e Event) CanonicalBytes() ([]byte, error) {
	return json.Marshal(Envelope{
		EventID:    e.ID.String(),
		EventType:  e.EventTypeName,
		OccurredAt: e.OccurredAt.UTC(),
		Payload:    e.Payload,
	})
}

// EmitRequest is the API surface business services call to publish an event.
type EmitRequest struct {
	EventType string          `json:"event_type" validate:"required,event_type_name"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Origin    Origin          `json:"origin"`
}

// EmitResult reports what Emit persisted and scheduled. Delivery failures
// never surface here; the event row is the durability boundary.
type EmitResult struct {
	Event             Event `json:"event"`
	MatchedEndpoints  int   `json:"matched_endpoints"`
	DeliveriesCreated int   `json:"deliveries_created"`
}

type ListEventsRequest struct {
	EventType string
	Limit     int
	Offset    int
}
