// Package igdb implements the descriptor for an IGDB-style catalog: a
// free-text query language POSTed to per-entity endpoints, authenticated
// with a client ID plus OAuth bearer token, answering with JSON arrays.
package igdb

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openretro/scraper/internal/credentials"
	"github.com/openretro/scraper/internal/media"
	"github.com/openretro/scraper/internal/provider"
)

const (
	Name           = "igdb"
	DefaultBaseURL = "https://api.igdb.com/v4"

	// TokenURL is the identity service endpoint for the client-credentials
	// exchange.
	TokenURL = "https://id.twitch.tv/oauth2/token"

	searchLimit = 10
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
			body := fmt.Sprintf("search %q; fields id,name; limit %d;", query, searchLimit)

			return provider.Call{
				URL:    baseURL + "/games",
				Method: http.MethodPost,
				Body:   []byte(body),
			}
		},
		Detail: func(id string) provider.Call {
			body := fmt.Sprintf(
				"fields name,summary,first_release_date,genres.name,game_modes.name,"+
					"involved_companies.company.name,involved_companies.developer,involved_companies.publisher,"+
					"cover.url,screenshots.url,artworks.url,videos.video_id; where id = %s;",
				numericID(id))

			return provider.Call{
				URL:    baseURL + "/games",
				Method: http.MethodPost,
				Body:   []byte(body),
			}
		},
		Artwork: func(id string) (provider.Call, bool) {
			body := fmt.Sprintf("fields url; where game = %s; limit 5;", numericID(id))

			return provider.Call{
				URL:    baseURL + "/artworks",
				Method: http.MethodPost,
				Body:   []byte(body),
			}, true
		},
		ParseSearch:  parseSearch,
		ParseDetail:  parseDetail,
		ParseArtwork: parseArtwork,
	}
}

func headers(tok credentials.Token) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")

	// An empty token means authentication has not completed yet; the
	// request proceeds unauthenticated and the server's verdict decides.
	if tok.ClientID != "" {
		h.Set("Client-ID", tok.ClientID)
	}

	if tok.AccessToken != "" {
		h.Set("Authorization", "Bearer "+tok.AccessToken)
	}

	return h
}

// numericID strips the "igdb:" prefix from a qualified identifier.
func numericID(id string) string {
	if rest, ok := strings.CutPrefix(id, Name+":"); ok {
		return rest
	}

	return id
}

type searchHit struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func parseSearch(payload []byte) ([]provider.Candidate, error) {
	var hits []searchHit
	if err := json.Unmarshal(payload, &hits); err != nil {
		return nil, fmt.Errorf("decoding search payload: %w", err)
	}

	candidates := make([]provider.Candidate, 0, len(hits))
	for _, h := range hits {
		if h.ID == 0 {
			continue
		}

		candidates = append(candidates, provider.Candidate{
			ID:   Name + ":" + strconv.FormatInt(h.ID, 10),
			Name: h.Name,
		})
	}

	return candidates, nil
}

type detailGame struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Summary          string `json:"summary"`
	FirstReleaseDate int64  `json:"first_release_date"`
	Genres           []struct {
		Name string `json:"name"`
	} `json:"genres"`
	GameModes []struct {
		Name string `json:"name"`
	} `json:"game_modes"`
	InvolvedCompanies []struct {
		Company struct {
			Name string `json:"name"`
		} `json:"company"`
		Developer bool `json:"developer"`
		Publisher bool `json:"publisher"`
	} `json:"involved_companies"`
	Cover       *imageRef  `json:"cover"`
	Screenshots []imageRef `json:"screenshots"`
	Artworks    []imageRef `json:"artworks"`
	Videos      []struct {
		VideoID string `json:"video_id"`
	} `json:"videos"`
}

type imageRef struct {
	URL string `json:"url"`
}

func parseDetail(payload []byte, id string) (*media.GameRecord, error) {
	var games []detailGame
	if err := json.Unmarshal(payload, &games); err != nil {
		return nil, fmt.Errorf("decoding detail payload: %w", err)
	}

	if len(games) == 0 {
		return nil, nil
	}

	g := games[0]

	rec := &media.GameRecord{
		ID:          Name + ":" + strconv.FormatInt(g.ID, 10),
		Title:       g.Name,
		Description: g.Summary,
	}

	if g.ID == 0 {
		rec.ID = id
	}

	if g.FirstReleaseDate > 0 {
		rec.ReleaseDate = time.Unix(g.FirstReleaseDate, 0).UTC()
	}

	for _, genre := range g.Genres {
		rec.Genres = append(rec.Genres, genre.Name)
	}

	for _, c := range g.InvolvedCompanies {
		switch {
		case c.Developer:
			rec.Developers = append(rec.Developers, c.Company.Name)
		case c.Publisher:
			rec.Publishers = append(rec.Publishers, c.Company.Name)
		}
	}

	if len(g.GameModes) > 0 {
		modes := make([]string, 0, len(g.GameModes))
		for _, m := range g.GameModes {
			modes = append(modes, m.Name)
		}

		rec.Players = strings.Join(modes, ", ")
	}

	if g.Cover != nil {
		rec.SetAsset(media.KindCover, imageURL(g.Cover.URL, "t_cover_big"), ".jpg")
		rec.SetAsset(media.KindThumbnail, imageURL(g.Cover.URL, "t_thumb"), ".jpg")
	}

	if len(g.Screenshots) > 0 {
		rec.SetAsset(media.KindScreenshot, imageURL(g.Screenshots[0].URL, "t_720p"), ".jpg")
	}

	if len(g.Artworks) > 0 {
		rec.SetAsset(media.KindFanArt, imageURL(g.Artworks[0].URL, "t_1080p"), ".jpg")
	}

	if len(g.Videos) > 0 && g.Videos[0].VideoID != "" {
		rec.SetAsset(media.KindVideo, "https://www.youtube.com/watch?v="+g.Videos[0].VideoID, "")
	}

	return rec, nil
}

// parseArtwork fills the fanart slot from the secondary artworks lookup
// when the detail response had none.
func parseArtwork(payload []byte, rec *media.GameRecord) error {
	var arts []imageRef
	if err := json.Unmarshal(payload, &arts); err != nil {
		return fmt.Errorf("decoding artwork payload: %w", err)
	}

	if _, have := rec.Assets[media.KindFanArt]; have {
		return nil
	}

	if len(arts) > 0 && arts[0].URL != "" {
		rec.SetAsset(media.KindFanArt, imageURL(arts[0].URL, "t_1080p"), ".jpg")
	}

	return nil
}

// imageURL normalizes the protocol-relative thumbnail URLs the API returns
// and switches them to the requested size class.
func imageURL(raw, size string) string {
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	return strings.Replace(raw, "t_thumb", size, 1)
}
