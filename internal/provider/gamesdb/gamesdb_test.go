package gamesdb

import (
	"encoding/json"
	"testing"

	"github.com/openretro/scraper/internal/credentials"
	"github.com/openretro/scraper/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCall(t *testing.T) {
	d := New("http://example.test/v1")

	call := d.Search("Final Quest")
	assert.Equal(t, "http://example.test/v1/games/search", call.URL)
	assert.Equal(t, "POST", call.Method)
	assert.Equal(t, "application/json", call.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(call.Body, &body))
	assert.Equal(t, "Final Quest", body["name"])
}

func TestHeaders(t *testing.T) {
	h := headers(credentials.Token{APIKey: "key-1"})
	assert.Equal(t, "key-1", h.Get("X-API-Key"))

	h = headers(credentials.Token{})
	assert.Empty(t, h.Get("X-API-Key"))
}

func TestParseSearch(t *testing.T) {
	payload := `{"success": true, "data": {"games": [
		{"id": 7, "name": "Final Quest"},
		{"id": 8, "name": "Final Quest II"}
	]}}`

	candidates, err := parseSearch([]byte(payload))
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "gamesdb:7", candidates[0].ID)
	assert.Equal(t, "Final Quest", candidates[0].Name)
}

func TestParseSearch_Unsuccessful(t *testing.T) {
	candidates, err := parseSearch([]byte(`{"success": false}`))
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestParseSearch_Malformed(t *testing.T) {
	_, err := parseSearch([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestParseDetail(t *testing.T) {
	payload := `{"7": {"success": true, "data": {
		"name": "Final Quest",
		"overview": "<p>An epic quest.</p>",
		"players": 2,
		"release_date": "1994-03-18",
		"genres": ["RPG"],
		"developers": ["Quest Soft"],
		"publishers": ["Big Pub"],
		"boxart": {"front": "http://img.example/box/7-front.jpg", "back": "http://img.example/box/7-back.jpg"},
		"media": {
			"fanart": "http://img.example/fan/7.jpg",
			"screenshot": "http://img.example/shots/7.png",
			"clearlogo": "http://img.example/logo/7.png",
			"video": "http://img.example/video/7.mp4",
			"manual": "http://img.example/manual/7.pdf"
		}
	}}}`

	rec, err := parseDetail([]byte(payload), "gamesdb:7")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "gamesdb:7", rec.ID)
	assert.Equal(t, "Final Quest", rec.Title)
	assert.Equal(t, "2", rec.Players)
	assert.Equal(t, 1994, rec.ReleaseDate.Year())
	assert.Equal(t, []string{"RPG"}, rec.Genres)

	assert.Equal(t, "http://img.example/box/7-front.jpg", rec.Assets[media.KindCover].URL)
	assert.Equal(t, ".jpg", rec.Assets[media.KindCover].Format)
	assert.Equal(t, "http://img.example/box/7-back.jpg", rec.Assets[media.KindBoxBack].URL)
	assert.Equal(t, "http://img.example/shots/7.png", rec.Assets[media.KindScreenshot].URL)
	assert.Equal(t, ".png", rec.Assets[media.KindScreenshot].Format)
	assert.Equal(t, "http://img.example/logo/7.png", rec.Assets[media.KindMarquee].URL)
	assert.Equal(t, "http://img.example/video/7.mp4", rec.Assets[media.KindVideo].URL)
	assert.Equal(t, "http://img.example/manual/7.pdf", rec.Assets[media.KindManual].URL)
}

func TestParseDetail_MissingOrFailed(t *testing.T) {
	rec, err := parseDetail([]byte(`{"9": {"success": true, "data": {"name": "x"}}}`), "gamesdb:7")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = parseDetail([]byte(`{"7": {"success": false}}`), "gamesdb:7")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestExtOf(t *testing.T) {
	assert.Equal(t, ".jpg", extOf("http://h/a/b.jpg"))
	assert.Equal(t, ".png", extOf("http://h/a/B.PNG?size=big"))
	assert.Equal(t, "", extOf("http://h/a/noext"))
	assert.Equal(t, "", extOf(""))
}
