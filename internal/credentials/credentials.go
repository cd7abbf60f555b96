// Package credentials supplies provider API credentials to requests. A
// Source is handed to each provider request at construction; there are no
// package-level globals. Token acquisition may block, so it only ever runs
// on worker goroutines, and the result is cached for the process lifetime
// until explicitly invalidated.
package credentials

import (
	"context"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Token is what a provider request needs to authenticate one HTTP call.
type Token struct {
	AccessToken string
	ClientID    string
	APIKey      string
}

// Empty reports whether the token carries no credential at all. Providers
// treat an empty token as "not yet authenticated", not as an error.
func (t Token) Empty() bool {
	return t.AccessToken == "" && t.APIKey == ""
}

// Source yields the current credential for a provider. Implementations
// must be safe for concurrent use by many in-flight requests.
type Source interface {
	// Token returns the cached credential, fetching it on first use. The
	// fetch happens at most once until Invalidate is called.
	Token(ctx context.Context) (Token, error)

	// Invalidate discards the cached credential so the next Token call
	// fetches a fresh one.
	Invalidate()
}

// OAuthSource caches an OAuth2 client-credentials token (the flow used by
// catalog services fronted by an identity service, e.g. client-id plus
// client-secret exchanged for a bearer token).
type OAuthSource struct {
	conf *clientcredentials.Config

	mu  sync.Mutex
	src oauth2.TokenSource
}

// NewOAuthSource builds a source for the client-credentials grant at
// tokenURL.
func NewOAuthSource(clientID, clientSecret, tokenURL string, params map[string][]string) *OAuthSource {
	return &OAuthSource{
		conf: &clientcredentials.Config{
			ClientID:       clientID,
			ClientSecret:   clientSecret,
			TokenURL:       tokenURL,
			EndpointParams: params,
		},
	}
}

func (s *OAuthSource) Token(ctx context.Context) (Token, error) {
	s.mu.Lock()
	if s.src == nil {
		// oauth2.ReuseTokenSource caches until expiry, so the network
		// round trip happens once per process (or per invalidation).
		s.src = s.conf.TokenSource(ctx)
	}
	src := s.src
	s.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return Token{}, err
	}

	return Token{AccessToken: tok.AccessToken, ClientID: s.conf.ClientID}, nil
}

func (s *OAuthSource) Invalidate() {
	s.mu.Lock()
	s.src = nil
	s.mu.Unlock()
}

// StaticSource serves a fixed API key for providers without a token
// exchange. Invalidate is a no-op.
type StaticSource struct {
	Key      string
	ClientID string
}

func (s StaticSource) Token(ctx context.Context) (Token, error) {
	return Token{APIKey: s.Key, ClientID: s.ClientID}, nil
}

func (s StaticSource) Invalidate() {}
