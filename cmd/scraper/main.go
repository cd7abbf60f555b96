package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/openretro/scraper/internal/async"
	"github.com/openretro/scraper/internal/cleanup"
	"github.com/openretro/scraper/internal/config"
	"github.com/openretro/scraper/internal/engine"
	"github.com/openretro/scraper/internal/logctx"
	"github.com/openretro/scraper/internal/media"
	"github.com/openretro/scraper/internal/notifier"
	"github.com/openretro/scraper/internal/scrape"
	"github.com/openretro/scraper/internal/storage"
	"github.com/openretro/scraper/internal/storage/sqlite"
	"github.com/openretro/scraper/internal/telemetry"
)

const version = "1.0.0"

func main() {
	providerFlag := flag.String("provider", "", "provider to scrape against (default: first registered)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger := slog.New(handler).With("run_id", uuid.New().String())
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("scraper starting...", "log_level", cfg.LogLevel, "system", cfg.SystemName)

	if err := run(logctx.WithLogger(ctx, logger), cfg, *providerFlag, flag.Args()); err != nil {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, providerName string, gamePaths []string) error {
	logger := logctx.LoggerFromContext(ctx)

	if len(gamePaths) == 0 {
		return fmt.Errorf("no game files given")
	}

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "scraper",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to start telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Journal
	database, err := sqlite.InitDB(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedAssetRepository(database, tel)

	// =========================================================================
	// Start Engine
	eng, err := engine.New(ctx, engine.Options{
		Config:    cfg,
		Journal:   journalAdapter{repo: repo},
		Telemetry: tel,
	})
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer closeCancel()

		if err := eng.Close(closeCtx); err != nil {
			logger.Error("failed to close engine cleanly", "err", err)
		}
	}()

	providers := eng.Providers()
	if len(providers) == 0 {
		return fmt.Errorf("no provider credentials configured")
	}

	if providerName == "" {
		providerName = providers[0]
	}

	// =========================================================================
	// Start Notification
	var notif notifier.Notifier
	if cfg.WebhookURL != "" {
		notif = &notifier.WebhookNotifier{WebhookURL: cfg.WebhookURL}
	}

	// =========================================================================
	// Start Cleanup
	setupCleanup(ctx, repo, cfg, tel)

	logger.Info("scraping games...",
		"provider", providerName,
		"media_dir", cfg.MediaDir,
		"games", len(gamePaths),
	)

	// =========================================================================
	// Start Main Loop
	for _, gamePath := range gamePaths {
		if err := scrapeGame(ctx, eng, tel, notif, cfg, providerName, gamePath); err != nil {
			return err
		}
	}

	return nil
}

// scrapeGame runs one game through search and asset resolution, polling
// both state machines on the configured interval.
func scrapeGame(ctx context.Context, eng *engine.Engine, tel *telemetry.Telemetry, notif notifier.Notifier, cfg *config.Config, providerName, gamePath string) error {
	logger := logctx.LoggerFromContext(ctx).With("game", gamePath)

	title := strings.TrimSuffix(filepath.Base(gamePath), filepath.Ext(gamePath))

	session, err := eng.Search(providerName, scrape.Query{Title: title, GamePath: gamePath})
	if err != nil {
		return err
	}

	start := time.Now()

	if err := poll(ctx, cfg.PollInterval, session); err != nil {
		session.Cancel()

		return err
	}

	tel.RecordSearch(providerName, session.Status().String(), time.Since(start))

	if session.Status() == async.StatusError {
		logger.Warn("scrape failed",
			"code", session.ErrorCode(),
			"message", session.ErrorMessage())
		notify(ctx, notif, tel, "❌ Scrape failed for "+title+": "+session.ErrorMessage())

		return nil
	}

	for _, rec := range session.Results() {
		if !rec.HasName() {
			continue
		}

		logger.Info("scraped", "title", rec.Title, "id", rec.ID)

		resolver := eng.ResolveAssets(rec, cfg.OverwriteMedia)
		if err := poll(ctx, cfg.PollInterval, resolver); err != nil {
			resolver.Cancel()

			return err
		}

		logger.Info("assets resolved",
			"resolved", resolver.Resolved(),
			"failed", resolver.Failed())
		notify(ctx, notif, tel, "✅ Scraped "+rec.Title+" ("+rec.ID+")")
	}

	return nil
}

// poll drives one operation to a terminal state on the configured tick.
func poll(ctx context.Context, interval time.Duration, op async.Operation) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			op.Update(ctx)

			if op.Status().Terminal() {
				return nil
			}
		}
	}
}

func notify(ctx context.Context, notif notifier.Notifier, tel *telemetry.Telemetry, content string) {
	if notif == nil {
		return
	}

	if err := notif.Notify(ctx, content); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to send notification", "err", err)
		tel.RecordSystemError("notifier", "webhook_failed")
	}
}

// journalAdapter lets the asset resolver write through the storage layer.
type journalAdapter struct {
	repo storage.AssetWriteRepository
}

func (j journalAdapter) RecordDownload(ctx context.Context, gameID string, kind media.AssetKind, url, localPath string) error {
	return j.repo.TrackAsset(ctx, storage.AssetRecord{
		GameID:    gameID,
		Kind:      kind.String(),
		URL:       url,
		LocalPath: localPath,
	})
}

func setupCleanup(ctx context.Context, repo storage.AssetReadRepository, cfg *config.Config, tel *telemetry.Telemetry) {
	if cfg.KeepMediaFor <= 0 {
		return
	}

	logger := logctx.LoggerFromContext(ctx)

	go func() {
		cleanupTicker := time.NewTicker(cfg.CleanupInterval)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down.")

				return
			case <-cleanupTicker.C:
				if repo, ok := repo.(cleanup.Repository); ok {
					if err := cleanup.DeleteExpiredAssets(ctx, repo, cfg.KeepMediaFor); err != nil {
						logger.Error("failed to delete expired assets", "err", err)
						tel.RecordSystemError("cleanup", "sweep_failed")
					}
				}
			}
		}
	}()
}
