package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openretro/scraper/internal/async"
	"github.com/openretro/scraper/internal/credentials"
	"github.com/openretro/scraper/internal/logctx"
	"github.com/openretro/scraper/internal/media"
	"github.com/openretro/scraper/internal/transfer"
)

// Kind selects which step of the provider protocol a request performs.
type Kind int

const (
	KindNameSearch Kind = iota
	KindDetailFetch
	KindArtworkFetch
)

func (k Kind) String() string {
	switch k {
	case KindNameSearch:
		return "name_search"
	case KindDetailFetch:
		return "detail_fetch"
	case KindArtworkFetch:
		return "artwork_fetch"
	default:
		return "unknown"
	}
}

// MalformedPayloadError marks a provider response the parser rejected. It
// is logged and downgraded to an empty result, never propagated as an
// operation error, so one bad payload cannot abort a multi-candidate
// search.
type MalformedPayloadError struct {
	Provider string
	Step     Kind
	Err      error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload from %s: %v", e.Step, e.Provider, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}

// Request is one logical step of a provider protocol. It drives at most
// one transfer at a time and parses the payload into provider-agnostic
// results. Poll with Update until Status is terminal.
type Request struct {
	kind Kind
	desc *Descriptor
	env  Env
	call Call
	id   string

	// baseRecord is enriched in place by an artwork fetch.
	baseRecord *media.GameRecord

	tr         *transfer.Retrying
	status     async.Status
	errMsg     string
	candidates []Candidate
	records    []*media.GameRecord
}

// NewNameSearch prepares a ranked-candidate search. The raw title is
// sanitized here; sanitization is part of the request contract because
// provider query parsers are fragile to unescaped quotes and symbols.
func NewNameSearch(env Env, desc *Descriptor, rawTitle string) *Request {
	return &Request{
		kind: KindNameSearch,
		desc: desc,
		env:  env,
		call: desc.Search(SanitizeQuery(rawTitle)),
	}
}

// NewDetailFetch prepares a detail lookup for one candidate identifier.
func NewDetailFetch(env Env, desc *Descriptor, id string) *Request {
	return &Request{
		kind: KindDetailFetch,
		desc: desc,
		env:  env,
		call: desc.Detail(id),
		id:   id,
	}
}

// NewArtworkFetch prepares the secondary artwork lookup for a record.
// Returns false when the provider has no such step or the record has no
// provider identifier.
func NewArtworkFetch(env Env, desc *Descriptor, rec *media.GameRecord) (*Request, bool) {
	if desc.Artwork == nil || rec == nil || rec.ID == "" {
		return nil, false
	}

	call, ok := desc.Artwork(rec.ID)
	if !ok {
		return nil, false
	}

	return &Request{
		kind:       KindArtworkFetch,
		desc:       desc,
		env:        env,
		call:       call,
		baseRecord: rec,
	}, true
}

// Update advances the request by at most one step. Non-blocking; a no-op
// once terminal.
func (r *Request) Update(ctx context.Context) {
	if r.status.Terminal() {
		return
	}

	if r.tr == nil {
		r.tr = transfer.NewRetrying(r.env.Client, r.env.Pool, transfer.Options{
			URL:        r.call.URL,
			Method:     r.call.Method,
			Header:     r.call.Header,
			Body:       r.call.Body,
			HeaderFunc: r.headerFunc(),
			Limiter:    r.env.Limiter,
			Metrics:    r.env.Metrics,
		}, r.env.Retry, true)
	}

	r.tr.Update(ctx)

	if !r.tr.Done() {
		return
	}

	r.resolve(ctx)
}

// headerFunc resolves credentials on the worker goroutine, where blocking
// is allowed, and merges the provider's auth headers over the call's own.
func (r *Request) headerFunc() func(ctx context.Context) (http.Header, error) {
	if r.desc.Headers == nil {
		return nil
	}

	return func(ctx context.Context) (http.Header, error) {
		tok := credentials.Token{}

		if r.env.Creds != nil {
			var err error

			tok, err = r.env.Creds.Token(ctx)
			if err != nil {
				return nil, &transfer.AuthenticationError{Provider: r.desc.Name, Err: err}
			}
		}

		return r.desc.Headers(tok), nil
	}
}

func (r *Request) resolve(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx).With("provider", r.desc.Name, "step", r.kind.String())

	outcome := "success"

	switch {
	case r.tr.Soft():
		// Retry budget exhausted: no data, not an error.
		logger.Warn("request gave up after retries, resolving empty")
		r.status = async.StatusDone
		outcome = "soft_fail"
	case r.tr.Final() == transfer.StatusSuccess:
		r.parse(ctx)
	case r.tr.Final() == transfer.StatusNotFound:
		logger.Debug("provider returned not found, resolving empty")
		r.status = async.StatusDone
		outcome = "not_found"
	default:
		r.status = async.StatusError
		outcome = "error"

		if err := r.tr.Err(); err != nil {
			r.errMsg = StripHTML(err.Error())
		} else {
			r.errMsg = "request failed"
		}
	}

	if r.env.Metrics != nil {
		r.env.Metrics.RecordProviderRequest(r.desc.Name, r.kind.String(), outcome)
	}
}

func (r *Request) parse(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx).With("provider", r.desc.Name, "step", r.kind.String())
	payload := r.tr.Result().Body()

	switch r.kind {
	case KindNameSearch:
		candidates, err := r.desc.ParseSearch(payload)
		if err != nil {
			logger.Warn("discarding malformed payload", "err", &MalformedPayloadError{Provider: r.desc.Name, Step: r.kind, Err: err})
			r.status = async.StatusDone

			return
		}

		r.candidates = candidates
	case KindDetailFetch:
		rec, err := r.desc.ParseDetail(payload, r.id)
		if err != nil {
			logger.Warn("discarding malformed payload", "err", &MalformedPayloadError{Provider: r.desc.Name, Step: r.kind, Err: err})
			r.status = async.StatusDone

			return
		}

		if rec != nil {
			r.records = append(r.records, rec)
		}
	case KindArtworkFetch:
		if err := r.desc.ParseArtwork(payload, r.baseRecord); err != nil {
			logger.Warn("discarding malformed payload", "err", &MalformedPayloadError{Provider: r.desc.Name, Step: r.kind, Err: err})
		}
	}

	r.status = async.StatusDone
}

// Status returns the request lifecycle state.
func (r *Request) Status() async.Status {
	return r.status
}

// ErrorMessage returns the markup-stripped failure message, empty unless
// Status is error.
func (r *Request) ErrorMessage() string {
	return r.errMsg
}

// Kind returns which protocol step this request performs.
func (r *Request) Kind() Kind {
	return r.kind
}

// Candidates returns the ranked hits of a finished name search.
func (r *Request) Candidates() []Candidate {
	return r.candidates
}

// Records returns the normalized results of a finished detail fetch.
func (r *Request) Records() []*media.GameRecord {
	return r.records
}

// Cancel aborts the active transfer and freezes the request.
func (r *Request) Cancel() {
	if r.tr != nil {
		r.tr.Cancel()
	}

	if !r.status.Terminal() {
		r.status = async.StatusError
		r.errMsg = "cancelled"
	}
}
