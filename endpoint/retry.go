package endpoint

import "time"

// Defaults for RetryPolicy when the caller leaves fields zero.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// RetryPolicy decides whether another reconnect attempt is allowed and how
// long to wait before it. The delay grows linearly with the attempt number:
// attempt 1 waits one BaseDelay, attempt 2 waits two, and so on.
type RetryPolicy struct {
	// MaxAttempts is the retry budget for one reconnection episode.
	// Zero means DefaultMaxAttempts.
	MaxAttempts int

	// BaseDelay is the backoff unit. Zero means DefaultBaseDelay.
	BaseDelay time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// Next is consulted with the number of attempts already made in the current
// episode. It returns the delay before the next attempt and whether that
// attempt is authorized at all. Once made >= MaxAttempts the episode is
// exhausted and ok is false.
func (p RetryPolicy) Next(made int) (delay time.Duration, ok bool) {
	if made >= p.MaxAttempts {
		return 0, false
	}
	return time.Duration(made+1) * p.BaseDelay, true
}
