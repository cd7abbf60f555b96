package media

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSaveAsPath(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		kind   AssetKind
		ext    string
		expect string
	}{
		{"cover with explicit ext", "igdb:123", KindCover, ".jpg", filepath.Join("media", "covers", "igdb_123-cover.jpg")},
		{"ext without dot", "igdb:123", KindCover, "png", filepath.Join("media", "covers", "igdb_123-cover.png")},
		{"default ext", "igdb:123", KindVideo, "", filepath.Join("media", "videos", "igdb_123-video.mp4")},
		{"uppercase ext lowered", "x", KindScreenshot, ".PNG", filepath.Join("media", "screenshots", "x-image.png")},
		{"spaces collapse", "Speed  Racer", KindMarquee, ".png", filepath.Join("media", "marquees", "Speed_Racer-marquee.png")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, SaveAsPath("media", tt.id, tt.kind, tt.ext))
		})
	}
}

func TestSaveAsPath_Deterministic(t *testing.T) {
	a := SaveAsPath("media", "igdb:55", KindFanArt, ".jpg")
	b := SaveAsPath("media", "igdb:55", KindFanArt, ".jpg")
	assert.Equal(t, a, b)
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		expect string
	}{
		{"plain", "mygame", "mygame"},
		{"path separators dropped", "a/b\\c", "abc"},
		{"whitespace collapsed", "Speed   Racer  Deluxe", "Speed_Racer_Deluxe"},
		{"unsafe punctuation dropped", `ga<me>:"na|me?*`, "game_name"},
		{"leading dots trimmed", "..hidden", "hidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, SanitizeFileName(tt.in))
		})
	}
}

func TestSanitizeFileName_NeverEmpty(t *testing.T) {
	for _, in := range []string{"", "///", "???", "  "} {
		out := SanitizeFileName(in)
		assert.NotEmpty(t, out, "input %q", in)
	}
}

func TestSanitizeFileName_Bounded(t *testing.T) {
	out := SanitizeFileName(strings.Repeat("a", 500))
	assert.LessOrEqual(t, len(out), maxBaseNameLen)
}

func TestFileID(t *testing.T) {
	withID := &GameRecord{ID: "igdb:9", GamePath: "/roms/snes/game.sfc"}
	assert.Equal(t, "igdb:9", FileID(withID))

	noID := &GameRecord{GamePath: "/roms/snes/Super Game (USA).sfc"}
	assert.Equal(t, "Super Game (USA)", FileID(noID))
}

func TestAssetKindPolicies(t *testing.T) {
	for _, k := range Kinds {
		assert.NotEmpty(t, k.Subfolder(), k.String())
		assert.NotEmpty(t, k.Suffix(), k.String())
		assert.True(t, strings.HasPrefix(k.DefaultExt(), "."), k.String())
	}

	// Kinds stored as delivered, never rescaled.
	for _, k := range []AssetKind{KindVideo, KindFanArt, KindManual, KindMap, KindBezel, KindMagazine, KindBoxBack} {
		assert.False(t, k.Resizable(), k.String())
	}

	assert.True(t, KindCover.Resizable())
	assert.True(t, KindScreenshot.Resizable())
}
