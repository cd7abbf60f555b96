package telemetry

import (
	"net/http"
	"time"

	"github.com/openretro/scraper/internal/logctx"
)

// LoggingTransport is an http.RoundTripper that logs every outbound
// request with a level picked from the response status. Wrap it around the
// instrumented transport so logs and spans see the same requests.
type LoggingTransport struct {
	Base http.RoundTripper
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	ctx := req.Context()
	logger := logctx.LoggerFromContext(ctx)
	start := time.Now()

	resp, err := base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		logger.ErrorContext(ctx, "http request failed",
			"method", req.Method,
			"host", req.URL.Host,
			"duration_ms", duration.Milliseconds(),
			"err", err,
		)

		return nil, err
	}

	attrs := []any{
		"method", req.Method,
		"host", req.URL.Host,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	}

	switch {
	case resp.StatusCode >= 500:
		logger.ErrorContext(ctx, "http request completed", attrs...)
	case resp.StatusCode >= 400:
		logger.WarnContext(ctx, "http request completed", attrs...)
	default:
		logger.DebugContext(ctx, "http request completed", attrs...)
	}

	return resp, nil
}
