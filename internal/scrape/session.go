// Package scrape drives the multi-step search protocol for one game: a
// name search, then detail fetches of ranked candidates strictly in order
// until one yields a usable record, then an optional secondary artwork
// lookup. The session is a non-blocking state machine advanced by polling.
package scrape

import (
	"context"
	"fmt"

	"github.com/openretro/scraper/internal/async"
	"github.com/openretro/scraper/internal/logctx"
	"github.com/openretro/scraper/internal/media"
	"github.com/openretro/scraper/internal/provider"
)

// Error codes surfaced by a failed session. A failed search ("no results")
// is reported distinctly from transport failures.
const (
	CodeNoResults    = "no_results"
	CodeSearchFailed = "search_failed"
	CodeCancelled    = "cancelled"
)

type phase int

const (
	phaseSearching phase = iota
	phaseFetchingDetails
	phaseFetchingArtwork
)

// Query identifies the game being scraped.
type Query struct {
	// Title is the raw display title; sanitization happens inside the
	// name-search request.
	Title string

	// GamePath is the local game file, used to derive media file names
	// when the provider assigns no identifier.
	GamePath string
}

// Session owns the request queue for one game. It exclusively owns its
// accumulated results until Status reports done, at which point ownership
// passes to the caller.
type Session struct {
	env   provider.Env
	desc  *provider.Descriptor
	query Query

	phase      phase
	cur        *provider.Request
	candidates []provider.Candidate
	idx        int

	results []*media.GameRecord
	status  async.Status
	errCode string
	errMsg  string
}

// NewSession starts a scrape of one game against one provider. The first
// Update issues the name search.
func NewSession(env provider.Env, desc *provider.Descriptor, query Query) *Session {
	return &Session{
		env:   env,
		desc:  desc,
		query: query,
		cur:   provider.NewNameSearch(env, desc, query.Title),
	}
}

// Update advances the session by at most one step. Never blocks; a no-op
// once terminal.
func (s *Session) Update(ctx context.Context) {
	if s.status.Terminal() {
		return
	}

	s.cur.Update(ctx)

	if !s.cur.Status().Terminal() {
		return
	}

	switch s.phase {
	case phaseSearching:
		s.finishSearch(ctx)
	case phaseFetchingDetails:
		s.finishDetail(ctx)
	case phaseFetchingArtwork:
		// Artwork enriched the accepted record in place; failures were
		// already downgraded inside the request.
		s.resolveDone()
	}
}

func (s *Session) finishSearch(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx).With("provider", s.desc.Name, "title", s.query.Title)

	if s.cur.Status() == async.StatusError {
		s.resolveError(CodeSearchFailed, s.cur.ErrorMessage())

		return
	}

	s.candidates = s.cur.Candidates()
	if len(s.candidates) == 0 {
		logger.Info("search yielded no candidates")
		s.resolveError(CodeNoResults, fmt.Sprintf("no results for %s", provider.SanitizeQuery(s.query.Title)))

		return
	}

	logger.Debug("search finished", "candidate_count", len(s.candidates))

	s.phase = phaseFetchingDetails
	s.idx = 0
	s.cur = provider.NewDetailFetch(s.env, s.desc, s.candidates[0].ID)
}

func (s *Session) finishDetail(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx).With("provider", s.desc.Name, "title", s.query.Title)

	// A failed or empty detail fetch is not an error: try the next ranked
	// candidate. Only exhaustion with nothing accumulated becomes one.
	if s.cur.Status() == async.StatusDone {
		for _, rec := range s.cur.Records() {
			if !rec.HasName() {
				// A nameless record is a failed candidate, not data.
				continue
			}

			// First success wins; remaining candidates are abandoned.
			rec.GamePath = s.query.GamePath
			s.results = append(s.results, rec)
			logger.Info("accepted candidate",
				"candidate", s.candidates[s.idx].ID,
				"candidate_index", s.idx,
				"name", rec.Title)
			s.startArtwork(rec)

			return
		}
	}

	s.idx++
	if s.idx < len(s.candidates) {
		logger.Debug("candidate yielded no usable record, trying next", "candidate_index", s.idx)
		s.cur = provider.NewDetailFetch(s.env, s.desc, s.candidates[s.idx].ID)

		return
	}

	// Every candidate exhausted without a usable record.
	s.resolveError(CodeNoResults, fmt.Sprintf("no results for %s", provider.SanitizeQuery(s.query.Title)))
}

func (s *Session) startArtwork(rec *media.GameRecord) {
	req, ok := provider.NewArtworkFetch(s.env, s.desc, rec)
	if !ok {
		s.resolveDone()

		return
	}

	s.phase = phaseFetchingArtwork
	s.cur = req
}

func (s *Session) resolveDone() {
	s.status = async.StatusDone
	s.cur = nil
}

func (s *Session) resolveError(code, msg string) {
	s.status = async.StatusError
	s.errCode = code
	s.errMsg = provider.StripHTML(msg)
	s.cur = nil
}

// Status returns the session lifecycle state.
func (s *Session) Status() async.Status {
	return s.status
}

// Results returns the accumulated records. Ownership passes to the caller
// once Status reports done.
func (s *Session) Results() []*media.GameRecord {
	return s.results
}

// ErrorCode returns the machine-readable failure class, empty unless
// Status is error.
func (s *Session) ErrorCode() string {
	return s.errCode
}

// ErrorMessage returns the markup-stripped failure message.
func (s *Session) ErrorMessage() string {
	return s.errMsg
}

// CandidateIndex returns the index of the candidate currently (or last)
// fetched.
func (s *Session) CandidateIndex() int {
	return s.idx
}

// Provider returns the provider this session scrapes against.
func (s *Session) Provider() string {
	return s.desc.Name
}

// Cancel aborts the active request and freezes the session.
func (s *Session) Cancel() {
	if s.cur != nil {
		s.cur.Cancel()
	}

	if !s.status.Terminal() {
		s.resolveError(CodeCancelled, "cancelled")
	}
}
