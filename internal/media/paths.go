package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const maxBaseNameLen = 120

// SaveAsPath computes the deterministic on-disk location for an asset:
// <mediaRoot>/<kind subfolder>/<sanitized id>-<kind suffix><ext>.
// The identifier should be the game's provider-specific ID; callers fall
// back to the game file name when no provider ID is known. An empty ext
// selects the kind's default extension.
func SaveAsPath(mediaRoot string, id string, kind AssetKind, ext string) string {
	if ext == "" {
		ext = kind.DefaultExt()
	}

	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	base := SanitizeFileName(id)
	name := fmt.Sprintf("%s-%s%s", base, kind.Suffix(), strings.ToLower(ext))

	return filepath.Join(mediaRoot, kind.Subfolder(), name)
}

// FileID returns the identifier used to name media files for a record:
// the provider ID when present, otherwise the game file's base name.
func FileID(r *GameRecord) string {
	if r.ID != "" {
		return r.ID
	}

	base := filepath.Base(r.GamePath)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SanitizeFileName makes an arbitrary identifier safe to use as a file
// name: path-unsafe characters are dropped, whitespace runs collapse to a
// single underscore, the result is bounded in length and never empty.
func SanitizeFileName(s string) string {
	var b strings.Builder

	lastUnderscore := false

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
			lastUnderscore = false
		case r == ':':
			// Provider IDs use "provider:1234"; keep both halves legible.
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "._")
	if len(out) > maxBaseNameLen {
		out = out[:maxBaseNameLen]
		out = strings.Trim(out, "._")
	}

	if out == "" {
		out = fmt.Sprintf("asset_%d", time.Now().Unix())
	}

	return out
}
