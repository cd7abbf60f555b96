package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openretro/scraper/internal/storage"
)

func newRepo(t *testing.T) *AssetRepository {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewAssetRepository(db)
}

func TestAssetRepository_TrackAndGet(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.TrackAsset(ctx, storage.AssetRecord{
		GameID:    "igdb:1942",
		Kind:      "cover",
		URL:       "https://img.example/cover.jpg",
		LocalPath: "/media/covers/igdb_1942-cover.jpg",
	}))

	records, err := repo.GetAssets(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "igdb:1942", records[0].GameID)
	assert.Equal(t, "cover", records[0].Kind)
	assert.Equal(t, "/media/covers/igdb_1942-cover.jpg", records[0].LocalPath)
	assert.NotEmpty(t, records[0].DownloadedAt)
}

func TestAssetRepository_TrackUpsertsOnRedownload(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.TrackAsset(ctx, storage.AssetRecord{
		GameID: "igdb:7", Kind: "cover", LocalPath: "/media/covers/old.jpg",
	}))
	require.NoError(t, repo.TrackAsset(ctx, storage.AssetRecord{
		GameID: "igdb:7", Kind: "cover", LocalPath: "/media/covers/new.jpg",
	}))

	records, err := repo.GetAssets(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "/media/covers/new.jpg", records[0].LocalPath)
}

func TestAssetRepository_GetAssetsOlderThan(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour).Format(time.RFC3339)

	require.NoError(t, repo.TrackAsset(ctx, storage.AssetRecord{
		GameID: "igdb:1", Kind: "cover", DownloadedAt: old,
	}))
	require.NoError(t, repo.TrackAsset(ctx, storage.AssetRecord{
		GameID: "igdb:2", Kind: "cover",
	}))

	expired, err := repo.GetAssetsOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "igdb:1", expired[0].GameID)
}

func TestAssetRepository_ForgetAsset(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.TrackAsset(ctx, storage.AssetRecord{GameID: "igdb:1", Kind: "cover"}))
	require.NoError(t, repo.TrackAsset(ctx, storage.AssetRecord{GameID: "igdb:1", Kind: "screenshot"}))

	require.NoError(t, repo.ForgetAsset(ctx, "igdb:1", "cover"))

	records, err := repo.GetAssets(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "screenshot", records[0].Kind)
}
