package transfer

import (
	"context"
	"net/http"
	"time"

	"github.com/openretro/scraper/internal/logctx"
	"github.com/openretro/scraper/internal/retry"
	"github.com/openretro/scraper/internal/work"
)

// Retrying drives one logical request through as many Transfer attempts as
// the retry policy allows. Rate-limited responses re-issue after the
// mandated delay; exhausting the attempt budget resolves to a soft failure
// (done, no data) rather than an error, so one throttled request never
// aborts the pipeline.
type Retrying struct {
	client *http.Client
	pool   *work.Pool
	opts   Options
	policy retry.Policy

	// retryTransient also re-issues after request-level network failures.
	// Providers enable this; HTTP error bodies other than 429 never retry.
	retryTransient bool

	now func() time.Time

	state retry.State
	cur   *Transfer
	done  bool
	soft  bool
	final Status
}

// NewRetrying prepares a retried request. Nothing runs until Update.
func NewRetrying(client *http.Client, pool *work.Pool, opts Options, policy retry.Policy, retryTransient bool) *Retrying {
	return &Retrying{
		client:         client,
		pool:           pool,
		opts:           opts,
		policy:         policy,
		retryTransient: retryTransient,
		now:            time.Now,
	}
}

// Update advances the request by at most one step. Never blocks.
func (r *Retrying) Update(ctx context.Context) {
	if r.done {
		return
	}

	if r.cur == nil {
		if !r.state.Eligible(r.now()) {
			return
		}

		t := New(r.client, r.opts)
		if !t.Start(r.pool) {
			// All workers busy; try again next tick.
			return
		}

		r.cur = t

		return
	}

	status := r.cur.Status()
	if status == StatusInProgress {
		return
	}

	logger := logctx.LoggerFromContext(ctx).With("url", r.opts.URL)

	switch status {
	case StatusSuccess:
		r.resolve(status, false)
	case StatusRateLimited:
		if !r.state.RecordAttempt(r.policy, r.now(), r.cur.RetryAfter()) {
			logger.Warn("retry budget exhausted, giving up", "attempts", r.state.Attempts)
			r.resolve(status, true)

			return
		}

		logger.Debug("rate limited, will retry", "attempts", r.state.Attempts)

		if m := r.opts.Metrics; m != nil {
			m.RecordRetry("rate_limited")
		}

		r.cur = nil
	case StatusOtherError:
		if r.retryTransient && r.cur.Transient() {
			if !r.state.RecordAttempt(r.policy, r.now(), 0) {
				logger.Warn("retry budget exhausted after network failures", "attempts", r.state.Attempts)
				r.resolve(status, true)

				return
			}

			logger.Debug("transient network failure, will retry", "attempts", r.state.Attempts, "err", r.cur.Err())

			if m := r.opts.Metrics; m != nil {
				m.RecordRetry("transient_error")
			}

			r.cur = nil

			return
		}

		r.resolve(status, false)
	default:
		// NotFound and I/O errors are terminal, never retried.
		r.resolve(status, false)
	}
}

func (r *Retrying) resolve(status Status, soft bool) {
	r.done = true
	r.soft = soft
	r.final = status

	if soft {
		r.cur = nil
	}
}

// Done reports whether no further attempts will run.
func (r *Retrying) Done() bool {
	return r.done
}

// Soft reports a terminal no-data outcome: the retry budget ran out.
func (r *Retrying) Soft() bool {
	return r.soft
}

// Final returns the status of the deciding attempt. Only meaningful once
// Done.
func (r *Retrying) Final() Status {
	return r.final
}

// Result returns the successful transfer, or nil for any other outcome.
func (r *Retrying) Result() *Transfer {
	if r.done && !r.soft && r.final == StatusSuccess {
		return r.cur
	}

	return nil
}

// Progress returns the completion percentage of the attempt in flight, or
// -1 when no attempt is running or the size is unknown.
func (r *Retrying) Progress() int {
	if r.cur == nil {
		return -1
	}

	return r.cur.ProgressPercent()
}

// Err returns the terminal error of the deciding attempt.
func (r *Retrying) Err() error {
	if r.cur == nil {
		return nil
	}

	return r.cur.Err()
}

// Cancel aborts the active attempt and stops any further ones.
func (r *Retrying) Cancel() {
	if r.cur != nil {
		r.cur.Cancel()
	}

	if !r.done {
		r.resolve(StatusOtherError, false)
	}
}
