package webhook

import (
	"math/rand/v2"
	"time"
)

// Delays between attempts. Maintenance runs are short-lived, so the whole
// schedule stays well under a minute.
var retryDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

const (
	// DefaultMaxAttempts is the default number of delivery attempts per event.
	DefaultMaxAttempts = 4

	// JitterFactor is the ±percentage of jitter applied to delays.
	JitterFactor = 0.2
)

// NextRetryDelay returns the delay after the given 0-indexed failed attempt,
// with ±20% jitter.
func NextRetryDelay(attemptCount int) time.Duration {
	attemptCount = min(max(attemptCount, 0), len(retryDelays)-1)
	base := retryDelays[attemptCount]

	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange
	return time.Duration(float64(base) + jitter)
}

// IsExhausted returns true if max attempts have been reached.
func IsExhausted(attemptCount, maxAttempts int) bool {
	return attemptCount >= maxAttempts
}
