// internal/endpoints/types.go
package endpoints

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ispnexus/webhook-service/internal/filters"
)

var (
	ErrNotFound       = errors.New("webhook endpoint not found")
	ErrSecretNotFound = errors.New("no active signing secret for endpoint")
	ErrValidation     = errors.New("invalid endpoint configuration")
)

// Endpoint status lifecycle. Inactive and disabled endpoints receive no new
// deliveries; in-flight retries still complete or abandon normally.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDisabled = "disabled"
	StatusFailed   = "failed"
)

// Signature algorithms computed over the canonical payload bytes.
const (
	AlgorithmHMACSHA256 = "hmac-sha256"
	AlgorithmHMACSHA512 = "hmac-sha512"
	AlgorithmHMACSHA1   = "hmac-sha1"
)

const (
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

// Retry strategies for failed deliveries.
const (
	RetryExponential = "exponential"
	RetryLinear      = "linear"
	RetryFixed       = "fixed"
	RetryImmediate   = "immediate"
	RetryNone        = "none"
)

// Endpoint is a registered external HTTP receiver.
type Endpoint struct {
	ID                 uuid.UUID         `json:"id"`
	URL                string            `json:"url"`
	HTTPMethod         string            `json:"http_method"`
	ContentType        string            `json:"content_type"`
	Headers            map[string]string `json:"headers,omitempty"`
	SignatureAlgorithm string            `json:"signature_algorithm"`
	SignatureEncoding  string            `json:"signature_encoding"`
	VerifyTLS          bool              `json:"verify_tls"`
	TimeoutSeconds     int               `json:"timeout_seconds"`
	RetryStrategy      string            `json:"retry_strategy"`
	MaxAttempts        int               `json:"max_attempts"`
	RetryDelaySeconds  int               `json:"retry_delay_seconds"`
	Status             string            `json:"status"`
	RateLimitPerMinute int               `json:"rate_limit_per_minute"`
	RateLimitPerHour   int               `json:"rate_limit_per_hour"`
	FilterConjunction  string            `json:"filter_conjunction"`
	Description        string            `json:"description,omitempty"`

	SuccessfulDeliveries int64 `json:"successful_deliveries"`
	FailedDeliveries     int64 `json:"failed_deliveries"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Secret is signing material for one endpoint. Rotation deactivates the old
// secret and adds a new one; historical attempt signatures are never
// recomputed.
type Secret struct {
	ID          uuid.UUID  `json:"id"`
	EndpointID  uuid.UUID  `json:"endpoint_id"`
	Name        string     `json:"name"`
	SecretValue string     `json:"-"`
	Algorithm   string     `json:"algorithm"`
	Active      bool       `json:"active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Eligible reports whether the secret may sign new deliveries.
func (s Secret) Eligible(now time.Time) bool {
	if !s.Active {
		return false
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Subscription links an endpoint to an event type it receives.
type Subscription struct {
	EndpointID  uuid.UUID `json:"endpoint_id"`
	EventTypeID uuid.UUID `json:"event_type_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateEndpointRequest struct {
	URL                string            `json:"url" validate:"required,url,max=2048"`
	HTTPMethod         string            `json:"http_method" validate:"omitempty,oneof=POST PUT PATCH"`
	ContentType        string            `json:"content_type" validate:"omitempty,max=255"`
	Headers            map[string]string `json:"headers,omitempty"`
	Secret             string            `json:"secret" validate:"required,min=16,max=128"`
	SignatureAlgorithm string            `json:"signature_algorithm" validate:"omitempty,oneof=hmac-sha256 hmac-sha512 hmac-sha1"`
	SignatureEncoding  string            `json:"signature_encoding" validate:"omitempty,oneof=hex base64"`
	VerifyTLS          *bool             `json:"verify_tls,omitempty"`
	TimeoutSeconds     int               `json:"timeout_seconds" validate:"omitempty,gte=1,lte=300"`
	RetryStrategy      string            `json:"retry_strategy" validate:"omitempty,oneof=exponential linear fixed immediate none"`
	MaxAttempts        int               `json:"max_attempts" validate:"omitempty,gte=1,lte=20"`
	RetryDelaySeconds  int               `json:"retry_delay_seconds" validate:"omitempty,gte=1,lte=86400"`
	RateLimitPerMinute int               `json:"rate_limit_per_minute" validate:"omitempty,gte=0"`
	RateLimitPerHour   int               `json:"rate_limit_per_hour" validate:"omitempty,gte=0"`
	FilterConjunction  string            `json:"filter_conjunction" validate:"omitempty,oneof=all any"`
	Description        string            `json:"description" validate:"omitempty,max=1000"`
	EventTypes         []string          `json:"event_types,omitempty" validate:"omitempty,dive,event_type_name"`
}

type UpdateEndpointRequest struct {
	URL                *string           `json:"url,omitempty" validate:"omitempty,url,max=2048"`
	HTTPMethod         *string           `json:"http_method,omitempty" validate:"omitempty,oneof=POST PUT PATCH"`
	ContentType        *string           `json:"content_type,omitempty" validate:"omitempty,max=255"`
	Headers            map[string]string `json:"headers,omitempty"`
	TimeoutSeconds     *int              `json:"timeout_seconds,omitempty" validate:"omitempty,gte=1,lte=300"`
	RetryStrategy      *string           `json:"retry_strategy,omitempty" validate:"omitempty,oneof=exponential linear fixed immediate none"`
	MaxAttempts        *int              `json:"max_attempts,omitempty" validate:"omitempty,gte=1,lte=20"`
	RetryDelaySeconds  *int              `json:"retry_delay_seconds,omitempty" validate:"omitempty,gte=1,lte=86400"`
	RateLimitPerMinute *int              `json:"rate_limit_per_minute,omitempty" validate:"omitempty,gte=0"`
	RateLimitPerHour   *int              `json:"rate_limit_per_hour,omitempty" validate:"omitempty,gte=0"`
	FilterConjunction  *string           `json:"filter_conjunction,omitempty" validate:"omitempty,oneof=all any"`
	Status             *string           `json:"status,omitempty" validate:"omitempty,oneof=active inactive disabled"`
	Description        *string           `json:"description,omitempty" validate:"omitempty,max=1000"`
}

type AddSecretRequest struct {
	Name      string     `json:"name" validate:"omitempty,max=100"`
	Secret    string     `json:"secret" validate:"required,min=16,max=128"`
	Algorithm string     `json:"algorithm" validate:"omitempty,oneof=hmac-sha256 hmac-sha512 hmac-sha1"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// Rotate deactivates all existing secrets for the endpoint.
	Rotate bool `json:"rotate"`
}

type AddFilterRequest struct {
	FieldPath      string   `json:"field_path" validate:"required_unless=Operator expression,omitempty,max=512"`
	Operator       string   `json:"operator" validate:"required"`
	Value          string   `json:"value,omitempty"`
	Values         []string `json:"values,omitempty"`
	IncludeOnMatch *bool    `json:"include_on_match,omitempty"`
}

type SubscribeRequest struct {
	EventType string `json:"event_type" validate:"required,event_type_name"`
}

// Defaults applied by Create when the request leaves a knob unset.
const (
	DefaultHTTPMethod     = "POST"
	DefaultContentType    = "application/json"
	DefaultTimeoutSeconds = 30
	DefaultMaxAttempts    = 5
	DefaultRetryDelay     = 60
)

// filtersConjunction converts the stored column value.
func filtersConjunction(value string) filters.Conjunction {
	if value == string(filters.ConjunctionAny) {
		return filters.ConjunctionAny
	}
	return filters.ConjunctionAll
}
