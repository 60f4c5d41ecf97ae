package generation

import (
	"math/rand/v2"
	"time"
)

// calculateBackoff returns exponential backoff with jitter. Base delay is
// doubled each attempt, capped at 30 seconds, with random jitter of up to
// 25% in either direction.
func calculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// Cap attempt to avoid overflow in the bit shift
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	// A non-positive base delay leaves nothing to jitter
	if backoff <= 0 {
		return 0
	}
	half := int64(backoff) / 2
	if half == 0 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(half)) - backoff/4
	return backoff + jitter
}
