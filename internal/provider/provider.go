// Package provider abstracts over external metadata catalogs. A provider
// is registered as data plus functions (a Descriptor) rather than a type
// hierarchy: base URL, a header builder, per-step call builders, and
// response parsers. Requests against any provider share one poll-driven
// state machine.
package provider

import (
	"net/http"

	"github.com/openretro/scraper/internal/credentials"
	"github.com/openretro/scraper/internal/media"
	"github.com/openretro/scraper/internal/retry"
	"github.com/openretro/scraper/internal/transfer"
	"github.com/openretro/scraper/internal/work"
	"golang.org/x/time/rate"
)

// Metrics receives protocol-step and transfer events. A nil Metrics
// disables recording.
type Metrics interface {
	transfer.Metrics
	RecordProviderRequest(provider, step, status string)
}

// Candidate is one ranked hit from a name search.
type Candidate struct {
	ID   string
	Name string
}

// Call is one prepared HTTP step of a provider protocol.
type Call struct {
	URL    string
	Method string
	Body   []byte
	Header http.Header
}

// Descriptor declares how to speak one provider's protocol. Adding a
// provider means filling in this struct and registering it.
type Descriptor struct {
	Name    string
	BaseURL string

	// Headers builds the auth headers for every call. An empty token means
	// "not yet authenticated" and must not be treated as an error.
	Headers func(tok credentials.Token) http.Header

	// Search builds the name-search step for an already sanitized query.
	Search func(query string) Call

	// Detail builds the detail-fetch step for a candidate identifier.
	Detail func(id string) Call

	// Artwork builds the secondary artwork lookup, when the provider has
	// one; ok=false skips the step.
	Artwork func(id string) (Call, bool)

	// ParseSearch extracts ranked candidates from a search payload.
	ParseSearch func(payload []byte) ([]Candidate, error)

	// ParseDetail turns a detail payload into a normalized record. An
	// empty (nil, nil) return means the provider had no usable data.
	ParseDetail func(payload []byte, id string) (*media.GameRecord, error)

	// ParseArtwork merges a secondary artwork payload into the record.
	ParseArtwork func(payload []byte, rec *media.GameRecord) error
}

// Env bundles what a request needs to perform transfers. The credential
// source is injected per provider; there are no process-wide singletons.
type Env struct {
	Client  *http.Client
	Pool    *work.Pool
	Limiter *rate.Limiter
	Retry   retry.Policy
	Creds   credentials.Source
	Metrics Metrics
}
