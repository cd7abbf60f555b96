package transfer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openretro/scraper/internal/retry"
	"github.com/openretro/scraper/internal/work"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitTerminal(t *testing.T, tr *Transfer) Status {
	t.Helper()

	require.Eventually(t, func() bool {
		return tr.Status() != StatusInProgress
	}, 5*time.Second, 5*time.Millisecond)

	return tr.Status()
}

func newPool(t *testing.T) *work.Pool {
	t.Helper()

	pool := work.NewPool(context.Background(), 2)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Close(ctx)
	})

	return pool
}

func TestTransfer_BuffersBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	tr := New(ts.Client(), Options{URL: ts.URL})
	require.True(t, tr.Start(newPool(t)))

	assert.Equal(t, StatusSuccess, waitTerminal(t, tr))
	assert.Equal(t, []byte(`{"ok":true}`), tr.Body())
	assert.Equal(t, "application/json", tr.ContentType())
}

func TestTransfer_StreamsToFile(t *testing.T) {
	payload := []byte("file contents here")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	target := filepath.Join(t.TempDir(), "sub", "out.png")

	tr := New(ts.Client(), Options{URL: ts.URL, OutputPath: target})
	require.True(t, tr.Start(newPool(t)))

	assert.Equal(t, StatusSuccess, waitTerminal(t, tr))
	assert.Nil(t, tr.Body())

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestTransfer_TerminalStatuses(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		expect     Status
	}{
		{"not found", http.StatusNotFound, StatusNotFound},
		{"server error", http.StatusInternalServerError, StatusOtherError},
		{"forbidden", http.StatusForbidden, StatusOtherError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer ts.Close()

			tr := New(ts.Client(), Options{URL: ts.URL})
			require.True(t, tr.Start(newPool(t)))

			assert.Equal(t, tt.expect, waitTerminal(t, tr))
			assert.False(t, tr.Transient())
		})
	}
}

func TestTransfer_RateLimited(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	tr := New(ts.Client(), Options{URL: ts.URL})
	require.True(t, tr.Start(newPool(t)))

	assert.Equal(t, StatusRateLimited, waitTerminal(t, tr))
	assert.Equal(t, 2*time.Second, tr.RetryAfter())
}

func TestTransfer_NetworkFailureIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // connection refused

	tr := New(http.DefaultClient, Options{URL: ts.URL})
	require.True(t, tr.Start(newPool(t)))

	assert.Equal(t, StatusOtherError, waitTerminal(t, tr))
	assert.True(t, tr.Transient())
}

func TestTransfer_HeaderFunc(t *testing.T) {
	var got atomic.Value

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
	}))
	defer ts.Close()

	tr := New(ts.Client(), Options{
		URL: ts.URL,
		HeaderFunc: func(ctx context.Context) (http.Header, error) {
			h := http.Header{}
			h.Set("Authorization", "Bearer tok-123")

			return h, nil
		},
	})
	require.True(t, tr.Start(newPool(t)))

	assert.Equal(t, StatusSuccess, waitTerminal(t, tr))
	assert.Equal(t, "Bearer tok-123", got.Load())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 15*time.Second, parseRetryAfter("15"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.InDelta(t, (30 * time.Second).Seconds(), d.Seconds(), 2)
}

// pump drives a Retrying request from the test goroutine the way the poll
// loop would, advancing a fake clock between ticks.
func pump(t *testing.T, r *Retrying, advance func()) {
	t.Helper()

	require.Eventually(t, func() bool {
		r.Update(context.Background())
		advance()

		return r.Done()
	}, 10*time.Second, 2*time.Millisecond)
}

func TestRetrying_HonorsRetryAfter(t *testing.T) {
	var hits atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	now := time.Now()

	r := NewRetrying(ts.Client(), newPool(t), Options{URL: ts.URL}, retry.DefaultPolicy(), false)
	r.now = func() time.Time { return now }

	// First attempt resolves to rate-limited.
	require.Eventually(t, func() bool {
		r.Update(context.Background())

		return hits.Load() == 1 && r.cur == nil
	}, 5*time.Second, 2*time.Millisecond)

	// Before the mandated delay no new request is issued.
	for i := 0; i < 10; i++ {
		r.Update(context.Background())
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())

	// After the delay the request is re-issued and succeeds.
	now = now.Add(2*time.Second + time.Millisecond)
	pump(t, r, func() {})

	assert.False(t, r.Soft())
	assert.Equal(t, StatusSuccess, r.Final())
	require.NotNil(t, r.Result())
	assert.Equal(t, []byte("ok"), r.Result().Body())
	assert.Equal(t, int32(2), hits.Load())
}

func TestRetrying_ExhaustionIsSoftFailure(t *testing.T) {
	var hits atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	now := time.Now()

	r := NewRetrying(ts.Client(), newPool(t), Options{URL: ts.URL}, retry.DefaultPolicy(), false)
	r.now = func() time.Time { return now }

	pump(t, r, func() { now = now.Add(2 * time.Minute) })

	// Five consecutive 429s exceed the attempt budget: done with no data,
	// not an error.
	assert.True(t, r.Soft())
	assert.Nil(t, r.Result())
	assert.Equal(t, int32(retry.DefaultMaxAttempts), hits.Load())
}

type fakeMetrics struct {
	transfers atomic.Int32
	active    atomic.Int32
	retries   atomic.Int32
}

func (m *fakeMetrics) RecordTransfer(status string) { m.transfers.Add(1) }
func (m *fakeMetrics) IncrementActiveTransfers()    { m.active.Add(1) }
func (m *fakeMetrics) DecrementActiveTransfers()    { m.active.Add(-1) }
func (m *fakeMetrics) RecordRetry(reason string)    { m.retries.Add(1) }

func TestRetrying_ReportsMetrics(t *testing.T) {
	var hits atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	metrics := &fakeMetrics{}
	now := time.Now()

	r := NewRetrying(ts.Client(), newPool(t), Options{URL: ts.URL, Metrics: metrics}, retry.DefaultPolicy(), false)
	r.now = func() time.Time { return now }

	pump(t, r, func() { now = now.Add(2 * time.Second) })

	assert.Equal(t, StatusSuccess, r.Final())
	assert.Equal(t, int32(1), metrics.retries.Load())

	// The deciding attempt reports from its worker goroutine.
	require.Eventually(t, func() bool {
		return metrics.transfers.Load() == 2 && metrics.active.Load() == 0
	}, 5*time.Second, 5*time.Millisecond, "one rate-limited attempt plus one success, active balanced")
}

func TestRetrying_NotFoundNeverRetries(t *testing.T) {
	var hits atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	now := time.Now()

	r := NewRetrying(ts.Client(), newPool(t), Options{URL: ts.URL}, retry.DefaultPolicy(), true)
	r.now = func() time.Time { return now }

	pump(t, r, func() { now = now.Add(2 * time.Minute) })

	assert.False(t, r.Soft())
	assert.Equal(t, StatusNotFound, r.Final())
	assert.Equal(t, int32(1), hits.Load())
}

func TestRetrying_TransientRetry(t *testing.T) {
	// Point at a closed server so every attempt fails at the dial.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	now := time.Now()

	r := NewRetrying(http.DefaultClient, newPool(t), Options{URL: ts.URL}, retry.Policy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Minute}, true)
	r.now = func() time.Time { return now }

	pump(t, r, func() { now = now.Add(time.Minute) })

	assert.True(t, r.Soft())
	assert.Equal(t, StatusOtherError, r.Final())
}
