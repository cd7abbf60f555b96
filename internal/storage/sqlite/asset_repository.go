package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/openretro/scraper/internal/storage"
)

// AssetRepository stores the download journal in SQLite.
type AssetRepository struct {
	db *sql.DB
}

func NewAssetRepository(dbConn *sql.DB) *AssetRepository {
	return &AssetRepository{db: dbConn}
}

// TrackAsset upserts a journal row keyed by (game_id, kind). A re-download
// replaces the previous row.
func (r *AssetRepository) TrackAsset(ctx context.Context, rec storage.AssetRecord) error {
	downloadedAt := rec.DownloadedAt
	if downloadedAt == "" {
		downloadedAt = time.Now().Format(time.RFC3339)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (game_id, kind, url, local_path, downloaded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(game_id, kind) DO UPDATE SET
			url = excluded.url,
			local_path = excluded.local_path,
			downloaded_at = excluded.downloaded_at
	`, rec.GameID, rec.Kind, rec.URL, rec.LocalPath, downloadedAt)

	return err
}

// ForgetAsset drops the journal row for one asset.
func (r *AssetRepository) ForgetAsset(ctx context.Context, gameID, kind string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE game_id = ? AND kind = ?`, gameID, kind)

	return err
}

// GetAssets returns every journaled download.
func (r *AssetRepository) GetAssets(ctx context.Context) ([]storage.AssetRecord, error) {
	return r.query(ctx, `SELECT game_id, kind, url, local_path, downloaded_at FROM assets`)
}

// GetAssetsOlderThan returns downloads journaled before cutoff.
func (r *AssetRepository) GetAssetsOlderThan(ctx context.Context, cutoff time.Time) ([]storage.AssetRecord, error) {
	return r.query(ctx,
		`SELECT game_id, kind, url, local_path, downloaded_at FROM assets WHERE downloaded_at < ?`,
		cutoff.Format(time.RFC3339))
}

func (r *AssetRepository) query(ctx context.Context, q string, args ...any) ([]storage.AssetRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.AssetRecord

	for rows.Next() {
		var rec storage.AssetRecord

		var url, localPath sql.NullString

		if err := rows.Scan(&rec.GameID, &rec.Kind, &url, &localPath, &rec.DownloadedAt); err != nil {
			return nil, err
		}

		rec.URL = url.String
		rec.LocalPath = localPath.String

		records = append(records, rec)
	}

	return records, rows.Err()
}
