// Package transfer performs single HTTP request/response cycles for the
// scraping pipeline. A Transfer runs on a background worker and exposes its
// terminal status to a polling caller; it never blocks the poll goroutine.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openretro/scraper/internal/logctx"
	"github.com/openretro/scraper/internal/transfer/progress"
	"github.com/openretro/scraper/internal/work"
	"golang.org/x/time/rate"
)

const dirPerm = 0755

// Status is the terminal disposition of a transfer. RateLimited is kept
// distinct from OtherError because it feeds the retry policy instead of
// failing the owning operation.
type Status int

const (
	StatusInProgress Status = iota
	StatusSuccess
	StatusRateLimited
	StatusNotFound
	StatusIOError
	StatusOtherError
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusSuccess:
		return "success"
	case StatusRateLimited:
		return "rate_limited"
	case StatusNotFound:
		return "not_found"
	case StatusIOError:
		return "io_error"
	case StatusOtherError:
		return "other_error"
	default:
		return "unknown"
	}
}

// Metrics receives transfer lifecycle events. Implementations must be safe
// for concurrent use; a nil Metrics disables recording.
type Metrics interface {
	RecordTransfer(status string)
	IncrementActiveTransfers()
	DecrementActiveTransfers()
	RecordRetry(reason string)
}

// Options describes one HTTP request cycle.
type Options struct {
	URL    string
	Method string
	Header http.Header

	// HeaderFunc, when set, is resolved on the worker goroutine right
	// before the request is issued and merged over Header. This is where
	// blocking credential lookups belong; they must never run on the
	// polling goroutine.
	HeaderFunc func(ctx context.Context) (http.Header, error)

	Body []byte

	// OutputPath streams the response body directly to this file instead
	// of buffering it in memory.
	OutputPath string

	// Limiter throttles request issuing per provider. Waiting happens on
	// the worker goroutine.
	Limiter *rate.Limiter

	Metrics Metrics
}

// Transfer is one in-flight HTTP request cycle. Create with New, hand to a
// worker pool with Start, then poll Status until terminal.
type Transfer struct {
	opts   Options
	client *http.Client

	received atomic.Int64
	total    atomic.Int64

	mu          sync.Mutex
	status      Status
	err         error
	transient   bool
	retryAfter  time.Duration
	body        []byte
	contentType string
	httpStatus  int
	cancel      context.CancelFunc
	cancelled   bool
}

// New prepares a transfer; nothing runs until Start.
func New(client *http.Client, opts Options) *Transfer {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}

	return &Transfer{opts: opts, client: client}
}

// Start submits the transfer to the pool. It returns false without side
// effects when every worker is busy; the caller retries on a later tick.
func (t *Transfer) Start(pool *work.Pool) bool {
	return pool.TrySubmit(t.run)
}

// Status returns the current lifecycle state. Once terminal it never
// changes.
func (t *Transfer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status
}

// Err returns the terminal error, if any.
func (t *Transfer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.err
}

// Transient reports whether a StatusOtherError outcome was a request-level
// network failure (dial, TLS, reset) rather than an HTTP error response.
// Callers may retry those; 4xx/5xx bodies they must not.
func (t *Transfer) Transient() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.transient
}

// RetryAfter returns the server-mandated wait after a 429, zero when the
// header was absent or unparsable.
func (t *Transfer) RetryAfter() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.retryAfter
}

// Body returns the buffered response body. Nil when the transfer streamed
// to a file or has not succeeded.
func (t *Transfer) Body() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.body
}

// ContentType returns the response Content-Type header of a successful
// transfer.
func (t *Transfer) ContentType() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.contentType
}

// HTTPStatus returns the response status code, zero when the request never
// got a response.
func (t *Transfer) HTTPStatus() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.httpStatus
}

// ProgressPercent returns download progress 0-100, or -1 while the content
// length is unknown.
func (t *Transfer) ProgressPercent() int {
	total := t.total.Load()
	if total <= 0 {
		return -1
	}

	pct := int(t.received.Load() * 100 / total)
	if pct > 100 {
		pct = 100
	}

	return pct
}

// Cancel aborts the in-flight request. A partially written output file is
// left on disk; a future overwrite-enabled retry can replace it.
func (t *Transfer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelled = true

	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Transfer) run(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx).With("url", t.opts.URL)

	if m := t.opts.Metrics; m != nil {
		m.IncrementActiveTransfers()

		defer func() {
			m.DecrementActiveTransfers()
			m.RecordTransfer(t.Status().String())
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		t.resolveError(StatusOtherError, context.Canceled, false)

		return
	}

	t.cancel = cancel
	t.mu.Unlock()

	if t.opts.Limiter != nil {
		if err := t.opts.Limiter.Wait(ctx); err != nil {
			t.resolveError(StatusOtherError, err, false)

			return
		}
	}

	req, err := t.buildRequest(ctx)
	if err != nil {
		t.resolveError(StatusOtherError, err, false)

		return
	}

	resp, err := t.client.Do(req)
	if err != nil {
		logger.Debug("request failed", "err", err)
		t.resolveError(StatusOtherError, err, true)

		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		logger.Debug("rate limited", "retry_after", retryAfter.String())
		t.resolveRateLimited(retryAfter)

		return
	case resp.StatusCode == http.StatusNotFound:
		t.resolveError(StatusNotFound, &NetworkError{Operation: "fetch", StatusCode: resp.StatusCode, APIMessage: resp.Status}, false)

		return
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		t.resolveError(StatusOtherError, &NetworkError{Operation: "fetch", StatusCode: resp.StatusCode, APIMessage: resp.Status}, false)

		return
	}

	t.total.Store(resp.ContentLength)

	if t.opts.OutputPath != "" {
		if err := t.streamToFile(resp, logger); err != nil {
			t.resolveError(StatusIOError, err, false)

			return
		}

		t.resolveSuccess(nil, resp)

		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.resolveError(StatusIOError, fmt.Errorf("failed to read response body: %w", err), false)

		return
	}

	t.resolveSuccess(body, resp)
}

func (t *Transfer) buildRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(t.opts.Body) > 0 {
		body = bytes.NewReader(t.opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, t.opts.Method, t.opts.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range t.opts.Header {
		req.Header[k] = v
	}

	if t.opts.HeaderFunc != nil {
		extra, err := t.opts.HeaderFunc(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to build request headers: %w", err)
		}

		for k, v := range extra {
			req.Header[k] = v
		}
	}

	return req, nil
}

func (t *Transfer) streamToFile(resp *http.Response, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(t.opts.OutputPath), dirPerm); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	out, err := os.Create(t.opts.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	defer out.Close()

	progressInterval := int64(256 * 1024)
	progressCb := func(written, total int64) {
		t.received.Store(written)

		if total > 0 {
			logger.Debug("download progress",
				"target", t.opts.OutputPath,
				"downloaded", humanize.Bytes(uint64(written)),
				"total", humanize.Bytes(uint64(total)))
		} else {
			logger.Debug("download progress",
				"target", t.opts.OutputPath,
				"downloaded", humanize.Bytes(uint64(written)))
		}
	}

	pr := progress.NewReader(resp.Body, resp.ContentLength, progressInterval, progressCb)

	written, err := io.Copy(out, pr)
	if err != nil {
		// The partial file stays on disk; an interrupted stream can be
		// resumed by a future overwrite-enabled retry.
		return fmt.Errorf("failed to stream body: %w", err)
	}

	t.received.Store(written)
	logger.Info("saved file", "target", t.opts.OutputPath, "size", humanize.Bytes(uint64(written)))

	return nil
}

func (t *Transfer) resolveSuccess(body []byte, resp *http.Response) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusInProgress {
		return
	}

	t.status = StatusSuccess
	t.body = body
	t.contentType = resp.Header.Get("Content-Type")
	t.httpStatus = resp.StatusCode
}

func (t *Transfer) resolveRateLimited(retryAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusInProgress {
		return
	}

	t.status = StatusRateLimited
	t.retryAfter = retryAfter
	t.httpStatus = http.StatusTooManyRequests
	t.err = &RateLimitError{Operation: "fetch", RetryAfter: retryAfter}
}

func (t *Transfer) resolveError(status Status, err error, transient bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusInProgress {
		return
	}

	t.status = status
	t.err = err
	t.transient = transient

	if ne, ok := err.(*NetworkError); ok {
		t.httpStatus = ne.StatusCode
	}
}

// parseRetryAfter accepts both the delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}

		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(v); err == nil {
		d := time.Until(at)
		if d < 0 {
			return 0
		}

		return d
	}

	return 0
}
