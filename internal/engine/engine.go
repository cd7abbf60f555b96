// Package engine wires the scraping pipeline together: one shared HTTP
// client and worker pool, a provider registry with per-provider credential
// sources and rate limits, and factories for search sessions and asset
// resolvers. The engine never blocks its caller; everything it hands out
// is advanced by polling.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/openretro/scraper/internal/assets"
	"github.com/openretro/scraper/internal/config"
	"github.com/openretro/scraper/internal/credentials"
	"github.com/openretro/scraper/internal/media"
	"github.com/openretro/scraper/internal/provider"
	"github.com/openretro/scraper/internal/provider/gamesdb"
	"github.com/openretro/scraper/internal/provider/igdb"
	"github.com/openretro/scraper/internal/retry"
	"github.com/openretro/scraper/internal/scrape"
	"github.com/openretro/scraper/internal/telemetry"
	"github.com/openretro/scraper/internal/work"
)

// Options configures an Engine. The journal and telemetry are optional.
type Options struct {
	Config    *config.Config
	Journal   assets.Journal
	Telemetry *telemetry.Telemetry
}

// Engine is the shared infrastructure of the pipeline.
type Engine struct {
	cfg     *config.Config
	client  *http.Client
	pool    *work.Pool
	reg     *provider.Registry
	envs    map[string]provider.Env
	journal assets.Journal
	tel     *telemetry.Telemetry
}

// userAgentTransport stamps every outbound request. Providers require an
// identifying agent string.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}

	return t.base.RoundTrip(req)
}

// New builds an engine and registers every provider the configuration
// carries credentials for. Providers without credentials are left out
// rather than registered broken.
func New(ctx context.Context, opts Options) (*Engine, error) {
	cfg := opts.Config

	transport := otelhttp.NewTransport(&telemetry.LoggingTransport{
		Base: &userAgentTransport{agent: cfg.UserAgent, base: http.DefaultTransport},
	})

	e := &Engine{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		pool:    work.NewPool(ctx, cfg.MaxWorkers),
		reg:     provider.NewRegistry(),
		envs:    make(map[string]provider.Env),
		journal: opts.Journal,
		tel:     opts.Telemetry,
	}

	if cfg.IGDB.ClientID != "" {
		creds := credentials.NewOAuthSource(cfg.IGDB.ClientID, cfg.IGDB.ClientSecret, igdb.TokenURL, nil)
		if err := e.RegisterProvider(igdb.New(""), creds, cfg.IGDB.RequestsPerSecond); err != nil {
			return nil, err
		}
	}

	if cfg.GamesDB.APIKey != "" {
		creds := credentials.StaticSource{Key: cfg.GamesDB.APIKey}
		if err := e.RegisterProvider(gamesdb.New(""), creds, cfg.GamesDB.RequestsPerSecond); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// RegisterProvider adds a provider with its own credential source and rate
// limit. The limiter and credentials are shared by every request against
// that provider.
func (e *Engine) RegisterProvider(desc *provider.Descriptor, creds credentials.Source, requestsPerSecond float64) error {
	if err := e.reg.Register(desc); err != nil {
		return err
	}

	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	env := provider.Env{
		Client:  e.client,
		Pool:    e.pool,
		Limiter: limiter,
		Retry:   e.retryPolicy(),
		Creds:   creds,
	}

	// A nil *Telemetry must stay a nil interface.
	if e.tel != nil {
		env.Metrics = e.tel
	}

	e.envs[desc.Name] = env

	return nil
}

// Providers lists the registered provider names, sorted.
func (e *Engine) Providers() []string {
	return e.reg.Names()
}

// InvalidateCredentials discards the cached credential of one provider so
// the next request re-authenticates.
func (e *Engine) InvalidateCredentials(name string) {
	if env, ok := e.envs[name]; ok && env.Creds != nil {
		env.Creds.Invalidate()
	}
}

// Search starts a scrape of one game against a registered provider.
func (e *Engine) Search(providerName string, query scrape.Query) (*scrape.Session, error) {
	desc, ok := e.reg.Get(providerName)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}

	return scrape.NewSession(e.envs[providerName], desc, query), nil
}

// ResolveAssets starts downloading a record's remote media. The record's
// provider rate limit applies when the record names a registered provider.
func (e *Engine) ResolveAssets(rec *media.GameRecord, overwrite bool) *assets.Resolver {
	var limiter *rate.Limiter
	if env, ok := e.envs[recordProvider(rec)]; ok {
		limiter = env.Limiter
	}

	opts := assets.Options{
		MediaRoot: e.cfg.MediaDir,
		Overwrite: overwrite,
		MaxWidth:  e.cfg.Image.MaxWidth,
		MaxHeight: e.cfg.Image.MaxHeight,
		Client:    e.client,
		Pool:      e.pool,
		Limiter:   limiter,
		Retry:     e.retryPolicy(),
		Journal:   e.journal,
	}

	if e.tel != nil {
		opts.Metrics = e.tel
	}

	return assets.NewResolver(rec, opts)
}

// Close tears the worker pool down and waits for in-flight jobs, or for
// ctx to expire.
func (e *Engine) Close(ctx context.Context) error {
	return e.pool.Close(ctx)
}

func (e *Engine) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: e.cfg.Retry.MaxAttempts,
		BaseDelay:   e.cfg.Retry.BaseDelay,
		MaxDelay:    e.cfg.Retry.MaxDelay,
	}
}

// recordProvider extracts the provider name from a record ID of the form
// "provider:1234".
func recordProvider(rec *media.GameRecord) string {
	if i := strings.IndexByte(rec.ID, ':'); i > 0 {
		return rec.ID[:i]
	}

	return ""
}
