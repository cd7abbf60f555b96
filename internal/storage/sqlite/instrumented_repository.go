package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/openretro/scraper/internal/storage"
	"github.com/openretro/scraper/internal/telemetry"
)

// InstrumentedAssetRepository wraps AssetRepository with telemetry.
type InstrumentedAssetRepository struct {
	repo      *AssetRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedAssetRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedAssetRepository {
	return &InstrumentedAssetRepository{
		repo:      NewAssetRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedAssetRepository) TrackAsset(ctx context.Context, rec storage.AssetRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "track_asset", func(ctx context.Context) error {
		return r.repo.TrackAsset(ctx, rec)
	})
}

func (r *InstrumentedAssetRepository) ForgetAsset(ctx context.Context, gameID, kind string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "forget_asset", func(ctx context.Context) error {
		return r.repo.ForgetAsset(ctx, gameID, kind)
	})
}

func (r *InstrumentedAssetRepository) GetAssets(ctx context.Context) ([]storage.AssetRecord, error) {
	var result []storage.AssetRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "get_assets", func(ctx context.Context) error {
		result, err = r.repo.GetAssets(ctx)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedAssetRepository) GetAssetsOlderThan(ctx context.Context, cutoff time.Time) ([]storage.AssetRecord, error) {
	var result []storage.AssetRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "get_assets_older_than", func(ctx context.Context) error {
		result, err = r.repo.GetAssetsOlderThan(ctx, cutoff)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
