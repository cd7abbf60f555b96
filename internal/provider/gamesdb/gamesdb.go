// Package gamesdb implements the descriptor for a TheGamesDB-style
// catalog: JSON request bodies authenticated with an API key header, and
// responses wrapped in an envelope echoing a success flag and a data
// payload keyed by the requested identifier.
package gamesdb

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openretro/scraper/internal/credentials"
	"github.com/openretro/scraper/internal/media"
	"github.com/openretro/scraper/internal/provider"
)

const (
	Name           = "gamesdb"
	DefaultBaseURL = "https://api.thegamesdb.net/v1"

	searchLimit = 20
)

// New builds the provider descriptor. An empty baseURL selects the public
// API; tests point it at a local server.
func New(baseURL string) *provider.Descriptor {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &provider.Descriptor{
		Name:    Name,
		BaseURL: baseURL,
		Headers: headers,
		Search: func(query string) provider.Call {
			body, _ := json.Marshal(map[string]any{
				"name": query,
				"max":  searchLimit,
			})

			return provider.Call{
				URL:    baseURL + "/games/search",
				Method: http.MethodPost,
				Body:   body,
				Header: jsonHeader(),
			}
		},
		Detail: func(id string) provider.Call {
			body, _ := json.Marshal(map[string]any{
				"id":     gameID(id),
				"fields": "overview,players,genres,developers,publishers,release_date,boxart,media",
			})

			return provider.Call{
				URL:    baseURL + "/games/byid",
				Method: http.MethodPost,
				Body:   body,
				Header: jsonHeader(),
			}
		},
		// The detail payload already carries every asset slot this catalog
		// has; there is no secondary artwork lookup.
		Artwork:     nil,
		ParseSearch: parseSearch,
		ParseDetail: parseDetail,
	}
}

func jsonHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")

	return h
}

func headers(tok credentials.Token) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")

	if tok.APIKey != "" {
		h.Set("X-API-Key", tok.APIKey)
	}

	return h
}

// gameID strips the "gamesdb:" prefix from a qualified identifier.
func gameID(id string) string {
	if rest, ok := strings.CutPrefix(id, Name+":"); ok {
		return rest
	}

	return id
}

type searchEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Games []struct {
			ID   json.Number `json:"id"`
			Name string      `json:"name"`
		} `json:"games"`
	} `json:"data"`
}

func parseSearch(payload []byte) ([]provider.Candidate, error) {
	var env searchEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decoding search payload: %w", err)
	}

	if !env.Success {
		return nil, nil
	}

	candidates := make([]provider.Candidate, 0, len(env.Data.Games))
	for _, g := range env.Data.Games {
		if g.ID.String() == "" {
			continue
		}

		candidates = append(candidates, provider.Candidate{
			ID:   Name + ":" + g.ID.String(),
			Name: g.Name,
		})
	}

	return candidates, nil
}

type detailGame struct {
	Name        string      `json:"name"`
	Overview    string      `json:"overview"`
	Players     json.Number `json:"players"`
	ReleaseDate string      `json:"release_date"`
	Genres      []string    `json:"genres"`
	Developers  []string    `json:"developers"`
	Publishers  []string    `json:"publishers"`
	Boxart      struct {
		Front string `json:"front"`
		Back  string `json:"back"`
	} `json:"boxart"`
	Media struct {
		Fanart     string `json:"fanart"`
		Screenshot string `json:"screenshot"`
		Clearlogo  string `json:"clearlogo"`
		Video      string `json:"video"`
		Manual     string `json:"manual"`
	} `json:"media"`
}

type detailEnvelope struct {
	Success bool       `json:"success"`
	Data    detailGame `json:"data"`
}

// parseDetail decodes the per-identifier envelope. The response object is
// keyed by the identifier that was requested, echoing it back.
func parseDetail(payload []byte, id string) (*media.GameRecord, error) {
	var envelopes map[string]detailEnvelope
	if err := json.Unmarshal(payload, &envelopes); err != nil {
		return nil, fmt.Errorf("decoding detail payload: %w", err)
	}

	env, ok := envelopes[gameID(id)]
	if !ok || !env.Success {
		return nil, nil
	}

	g := env.Data

	rec := &media.GameRecord{
		ID:          Name + ":" + gameID(id),
		Title:       g.Name,
		Description: g.Overview,
		Genres:      g.Genres,
		Developers:  g.Developers,
		Publishers:  g.Publishers,
	}

	if g.Players.String() != "" {
		rec.Players = g.Players.String()
	}

	if g.ReleaseDate != "" {
		if at, err := time.Parse("2006-01-02", g.ReleaseDate); err == nil {
			rec.ReleaseDate = at
		}
	}

	rec.SetAsset(media.KindCover, g.Boxart.Front, extOf(g.Boxart.Front))
	rec.SetAsset(media.KindBoxBack, g.Boxart.Back, extOf(g.Boxart.Back))
	rec.SetAsset(media.KindFanArt, g.Media.Fanart, extOf(g.Media.Fanart))
	rec.SetAsset(media.KindScreenshot, g.Media.Screenshot, extOf(g.Media.Screenshot))
	rec.SetAsset(media.KindMarquee, g.Media.Clearlogo, extOf(g.Media.Clearlogo))
	rec.SetAsset(media.KindVideo, g.Media.Video, "")
	rec.SetAsset(media.KindManual, g.Media.Manual, ".pdf")

	return rec, nil
}

// extOf guesses the extension from the URL path, empty when there is none.
func extOf(url string) string {
	if url == "" {
		return ""
	}

	slash := strings.LastIndexByte(url, '/')
	dot := strings.LastIndexByte(url, '.')

	if dot <= slash {
		return ""
	}

	ext := url[dot:]
	if q := strings.IndexByte(ext, '?'); q >= 0 {
		ext = ext[:q]
	}

	return strings.ToLower(ext)
}
