package remote

import "time"

// Retry defaults.
const (
	DefaultAttempts     = 5
	DefaultInitialDelay = 2 * time.Second
)

// Backoff is a doubling delay schedule.
type Backoff struct {
	Attempts int
	Initial  time.Duration
}

// DefaultBackoff returns the default schedule: 5 attempts, 2s doubling.
func DefaultBackoff() Backoff {
	return Backoff{Attempts: DefaultAttempts, Initial: DefaultInitialDelay}
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return b.Initial << (attempt - 1)
}
