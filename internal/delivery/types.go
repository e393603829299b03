// internal/delivery/types.go
package delivery

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("delivery not found")

// Delivery status state machine:
//
//	pending -> delivered
//	pending -> retrying -> ... -> delivered | abandoned
//	pending -> failed            (non-retryable configuration error)
//
// delivered, abandoned and failed are terminal.
const (
	StatusPending   = "pending"
	StatusRetrying  = "retrying"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// Attempt error classification. Diagnostic only; control flow cares about
// the success boolean.
const (
	ErrorTimeout    = "timeout"
	ErrorConnection = "connection_error"
	ErrorSSL        = "ssl_error"
	ErrorDNS        = "dns_error"
	ErrorHTTP       = "http_error"
)

// Delivery is one attempt-tracked unit of work pushing one event to one
// endpoint.
type Delivery struct {
	ID             uuid.UUID  `json:"id"`
	EventID        uuid.UUID  `json:"event_id"`
	EndpointID     uuid.UUID  `json:"endpoint_id"`
	Status         string     `json:"status"`
	AttemptCount   int        `json:"attempt_count"`
	MaxAttempts    int        `json:"max_attempts"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	ClaimedUntil   *time.Time `json:"-"`
	LastStatusCode *int       `json:"last_status_code,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Terminal reports whether the delivery can never be attempted again.
func (d Delivery) Terminal() bool {
	return d.Status == StatusDelivered || d.Status == StatusAbandoned || d.Status == StatusFailed
}

// Attempt is the append-only record of a single HTTP try.
type Attempt struct {
	ID              uuid.UUID       `json:"id"`
	DeliveryID      uuid.UUID       `json:"delivery_id"`
	AttemptNumber   int             `json:"attempt_number"`
	RequestURL      string          `json:"request_url"`
	RequestHeaders  json.RawMessage `json:"request_headers,omitempty"`
	RequestBody     string          `json:"request_body,omitempty"`
	ResponseStatus  *int            `json:"response_status,omitempty"`
	ResponseHeaders json.RawMessage `json:"response_headers,omitempty"`
	ResponseBody    *string         `json:"response_body,omitempty"`
	DurationMs      int64           `json:"duration_ms"`
	ErrorType       *string         `json:"error_type,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	Success         bool            `json:"success"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}

// EndpointStats summarizes delivery history for one endpoint.
type EndpointStats struct {
	EndpointID           uuid.UUID `json:"endpoint_id"`
	Pending              int64     `json:"pending"`
	Retrying             int64     `json:"retrying"`
	Delivered            int64     `json:"delivered"`
	Failed               int64     `json:"failed"`
	Abandoned            int64     `json:"abandoned"`
	SuccessfulDeliveries int64     `json:"successful_deliveries"`
	FailedDeliveries     int64     `json:"failed_deliveries"`
}

// Response body and header snapshots are truncated to keep attempt rows
// bounded.
const maxBodySnapshot = 2048

type ListDeliveriesRequest struct {
	EndpointID uuid.UUID
	EventID    uuid.UUID
	Status     string
	Limit      int
	Offset     int
}
