package media

import "time"

// RemoteAsset is a downloadable asset located at a provider.
type RemoteAsset struct {
	URL string
	// Format is the declared or URL-guessed file extension, including the
	// leading dot. May be empty when the provider gives no hint.
	Format string
}

// GameRecord is provider-agnostic game metadata produced by parsing a
// provider response. A record is owned by the search session that produced
// it until the session reports done, at which point ownership passes to
// the caller.
type GameRecord struct {
	// ID is the provider-specific identifier, prefixed with the provider
	// name (e.g. "igdb:1942").
	ID          string
	Title       string
	Description string
	ReleaseDate time.Time
	Developers  []string
	Publishers  []string
	Genres      []string
	Players     string
	Rating      float64

	// GamePath is the local path of the game file this record describes.
	// Used to derive a media file name when the provider ID is empty.
	GamePath string

	// Assets maps each kind to its remote location. Resolvers clear
	// entries they skip or resolve.
	Assets map[AssetKind]RemoteAsset

	// LocalPaths maps each kind to the resolved on-disk asset.
	LocalPaths map[AssetKind]string
}

// SetAsset records a remote asset location, allocating the map on first use.
func (r *GameRecord) SetAsset(kind AssetKind, url, format string) {
	if url == "" {
		return
	}

	if r.Assets == nil {
		r.Assets = make(map[AssetKind]RemoteAsset)
	}

	r.Assets[kind] = RemoteAsset{URL: url, Format: format}
}

// SetLocalPath records the resolved on-disk location for an asset kind.
func (r *GameRecord) SetLocalPath(kind AssetKind, path string) {
	if r.LocalPaths == nil {
		r.LocalPaths = make(map[AssetKind]string)
	}

	r.LocalPaths[kind] = path
}

// ClearAsset drops the remote location for a kind so it is never fetched
// again within this session.
func (r *GameRecord) ClearAsset(kind AssetKind) {
	delete(r.Assets, kind)
}

// HasName reports whether the record carries the one field a usable result
// must have.
func (r *GameRecord) HasName() bool {
	return r != nil && r.Title != ""
}
