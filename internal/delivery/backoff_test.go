// internal/delivery/backoff_test.go
package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ispnexus/webhook-service/internal/endpoints"
)

func TestNextRetryDelay(t *testing.T) {
	tests := []struct {
		name         string
		strategy     string
		baseDelay    time.Duration
		attemptCount int
		expected     time.Duration
	}{
		{
			name:         "exponential first retry uses base delay",
			strategy:     endpoints.RetryExponential,
			baseDelay:    time.Minute,
			attemptCount: 1,
			expected:     time.Minute,
		},
		{
			name:         "exponential doubles per attempt",
			strategy:     endpoints.RetryExponential,
			baseDelay:    time.Minute,
			attemptCount: 4,
			expected:     8 * time.Minute,
		},
		{
			name:         "exponential caps at six hours",
			strategy:     endpoints.RetryExponential,
			baseDelay:    time.Hour,
			attemptCount: 10,
			expected:     maxBackoff,
		},
		{
			name:         "linear scales with attempt count",
			strategy:     endpoints.RetryLinear,
			baseDelay:    30 * time.Second,
			attemptCount: 3,
			expected:     90 * time.Second,
		},
		{
			name:         "linear caps at six hours",
			strategy:     endpoints.RetryLinear,
			baseDelay:    time.Hour,
			attemptCount: 100,
			expected:     maxBackoff,
		},
		{
			name:         "fixed ignores attempt count",
			strategy:     endpoints.RetryFixed,
			baseDelay:    45 * time.Second,
			attemptCount: 7,
			expected:     45 * time.Second,
		},
		{
			name:         "immediate retries without waiting",
			strategy:     endpoints.RetryImmediate,
			baseDelay:    time.Minute,
			attemptCount: 2,
			expected:     0,
		},
		{
			name:         "unknown strategy falls back to base delay",
			strategy:     "jittered",
			baseDelay:    time.Minute,
			attemptCount: 3,
			expected:     time.Minute,
		},
		{
			name:         "zero base delay defaults to one minute",
			strategy:     endpoints.RetryFixed,
			baseDelay:    0,
			attemptCount: 1,
			expected:     time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRetryDelay(tt.strategy, tt.baseDelay, tt.attemptCount)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNextRetryDelayMonotonicExponential(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		delay := NextRetryDelay(endpoints.RetryExponential, time.Minute, attempt)
		assert.GreaterOrEqual(t, delay, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, maxBackoff)
		prev = delay
	}
}
