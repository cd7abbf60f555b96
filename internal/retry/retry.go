// Package retry implements the shared backoff policy applied on rate
// limiting and transient failures. Exhausting the attempt budget is a soft
// failure: the caller resolves the operation as done with no data instead
// of surfacing an error, so one throttled asset never stalls the pipeline.
package retry

import "time"

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 15 * time.Second
	DefaultMaxDelay    = 60 * time.Second
)

// Policy holds the configured retry limits.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the policy used when the caller supplies none.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}

	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}

	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}

	return p
}

// ShouldRetry reports whether another attempt is allowed after the given
// completed attempt count, and how long to wait before it. A Retry-After
// duration supplied by the server is honored verbatim; otherwise the delay
// doubles from BaseDelay per attempt, capped at MaxDelay.
func (p Policy) ShouldRetry(attempt int, retryAfter time.Duration) (bool, time.Duration) {
	p = p.withDefaults()

	if attempt >= p.MaxAttempts {
		return false, 0
	}

	if retryAfter > 0 {
		return true, retryAfter
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay

			break
		}
	}

	return true, delay
}

// State tracks per-operation retry progress. The attempt counter only ever
// increases; NextAttempt gates when the owner may re-issue the request.
type State struct {
	Attempts    int
	NextAttempt time.Time
}

// RecordAttempt bumps the attempt counter and, when the policy still allows
// a retry, computes the next eligible retry time. Returns false once the
// attempt budget is exhausted.
func (s *State) RecordAttempt(p Policy, now time.Time, retryAfter time.Duration) bool {
	s.Attempts++

	retry, delay := p.ShouldRetry(s.Attempts, retryAfter)
	if !retry {
		return false
	}

	s.NextAttempt = now.Add(delay)

	return true
}

// Eligible reports whether the next attempt may start.
func (s *State) Eligible(now time.Time) bool {
	return !now.Before(s.NextAttempt)
}
