package storage

import (
	"context"
	"time"
)

// AssetRecord represents one downloaded media file.
type AssetRecord struct {
	GameID       string
	Kind         string
	URL          string
	LocalPath    string
	DownloadedAt string
}

// AssetReadRepository reads the download journal.
type AssetReadRepository interface {
	GetAssets(ctx context.Context) ([]AssetRecord, error)
	GetAssetsOlderThan(ctx context.Context, cutoff time.Time) ([]AssetRecord, error)
}

// AssetWriteRepository records and forgets downloads.
type AssetWriteRepository interface {
	TrackAsset(ctx context.Context, rec AssetRecord) error
	ForgetAsset(ctx context.Context, gameID, kind string) error
}
