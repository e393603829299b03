// internal/delivery/backoff.go
package delivery

import (
	"time"

	"github.com/ispnexus/webhook-service/internal/endpoints"
)

// maxBackoff caps exponential growth so a long retry ladder stays within
// an operable window.
const maxBackoff = 6 * time.Hour

// NextRetryDelay computes the wait before the next attempt, given the
// number of attempts already made. attemptCount is at least 1 when called
// (a retry is only scheduled after a failed attempt).
func NextRetryDelay(strategy string, baseDelay time.Duration, attemptCount int) time.Duration {
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if attemptCount < 1 {
		attemptCount = 1
	}

	switch strategy {
	case endpoints.RetryExponential:
		delay := baseDelay
		for i := 1; i < attemptCount; i++ {
			delay *= 2
			if delay >= maxBackoff {
				return maxBackoff
			}
		}
		return delay
	case endpoints.RetryLinear:
		delay := baseDelay * time.Duration(attemptCount)
		if delay > maxBackoff {
			return maxBackoff
		}
		return delay
	case endpoints.RetryFixed:
		return baseDelay
	case endpoints.RetryImmediate:
		return 0
	case endpoints.RetryNone:
		// never reached: "none" pins max attempts to 1
		return 0
	default:
		return baseDelay
	}
}
