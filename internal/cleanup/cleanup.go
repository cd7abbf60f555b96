// Package cleanup prunes downloaded media past its retention period, using
// the journal as the source of truth for what was written and when.
package cleanup

import (
	"context"
	"os"
	"time"

	"github.com/openretro/scraper/internal/logctx"
	"github.com/openretro/scraper/internal/storage"
)

// Repository is the slice of the journal cleanup needs.
type Repository interface {
	GetAssetsOlderThan(ctx context.Context, cutoff time.Time) ([]storage.AssetRecord, error)
	ForgetAsset(ctx context.Context, gameID, kind string) error
}

// DeleteExpiredAssets removes media files journaled before now-keepDuration
// and forgets their journal rows. Files already gone are just forgotten.
func DeleteExpiredAssets(ctx context.Context, repo Repository, keepDuration time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	cutoff := time.Now().Add(-keepDuration)

	expired, err := repo.GetAssetsOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, rec := range expired {
		if rec.LocalPath != "" {
			if err := os.Remove(rec.LocalPath); err != nil && !os.IsNotExist(err) {
				logger.Error("failed to delete expired asset", "file", rec.LocalPath, "err", err)

				return err
			}
		}

		if err := repo.ForgetAsset(ctx, rec.GameID, rec.Kind); err != nil {
			logger.Error("failed to forget expired asset", "game_id", rec.GameID, "kind", rec.Kind, "err", err)

			return err
		}

		logger.Info("deleted expired asset", "game_id", rec.GameID, "kind", rec.Kind, "file", rec.LocalPath)
	}

	return nil
}
