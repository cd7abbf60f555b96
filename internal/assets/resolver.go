// Package assets downloads the remote media of a scraped game record to
// their deterministic on-disk locations, one asset at a time. The resolver
// is a poll-driven state machine like the rest of the pipeline: each
// Update advances the current download by at most one step and never
// blocks the caller.
package assets

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/openretro/scraper/internal/async"
	"github.com/openretro/scraper/internal/logctx"
	"github.com/openretro/scraper/internal/media"
	"github.com/openretro/scraper/internal/retry"
	"github.com/openretro/scraper/internal/transfer"
	"github.com/openretro/scraper/internal/work"
)

// Journal records finished downloads so later cleanup runs know what was
// written and when.
type Journal interface {
	RecordDownload(ctx context.Context, gameID string, kind media.AssetKind, url, localPath string) error
}

// Metrics receives per-asset download events. A nil Metrics disables
// recording.
type Metrics interface {
	transfer.Metrics
	RecordDownload(kind, status string, duration time.Duration)
	IncrementActiveDownloads()
	DecrementActiveDownloads()
}

// Options configures a Resolver.
type Options struct {
	MediaRoot string

	// Overwrite re-downloads assets whose target file already exists.
	// When false, an existing file resolves the asset locally and its
	// remote URL is cleared so it is never fetched again this session.
	Overwrite bool

	// MaxWidth and MaxHeight bound resizable image kinds. Zero disables
	// rescaling.
	MaxWidth  int
	MaxHeight int

	Client  *http.Client
	Pool    *work.Pool
	Limiter *rate.Limiter
	Retry   retry.Policy

	// Journal is optional; a nil journal skips recording.
	Journal Journal

	Metrics Metrics
}

type task struct {
	kind  media.AssetKind
	asset media.RemoteAsset
	path  string
}

// Resolver works through a record's remote assets sequentially, in the
// canonical kind order. Individual download failures are logged and
// skipped; only cancellation makes the resolver resolve to an error.
type Resolver struct {
	opts Options
	rec  *media.GameRecord

	queue    []task
	idx      int
	cur      *transfer.Retrying
	curStart time.Time

	status   async.Status
	resolved int
	failed   int
}

// NewResolver plans the downloads for a record. Assets are enumerated in
// canonical kind order; kinds without a remote URL are not queued.
func NewResolver(rec *media.GameRecord, opts Options) *Resolver {
	r := &Resolver{opts: opts, rec: rec}

	id := media.FileID(rec)

	for _, kind := range media.Kinds {
		asset, ok := rec.Assets[kind]
		if !ok || asset.URL == "" {
			continue
		}

		ext := asset.Format
		if ext == "" {
			ext = urlExt(asset.URL)
		}

		r.queue = append(r.queue, task{
			kind:  kind,
			asset: asset,
			path:  media.SaveAsPath(opts.MediaRoot, id, kind, ext),
		})
	}

	if len(r.queue) == 0 {
		r.status = async.StatusDone
	}

	return r
}

// Update advances the resolver by at most one step. Never blocks; a no-op
// once terminal.
func (r *Resolver) Update(ctx context.Context) {
	if r.status.Terminal() {
		return
	}

	if r.cur == nil {
		if !r.startNext(ctx) {
			return
		}
	}

	r.cur.Update(ctx)

	if !r.cur.Done() {
		return
	}

	r.finishCurrent(ctx)
}

// startNext queues up the next pending download, skipping assets already
// on disk. Returns false when the resolver went terminal instead.
func (r *Resolver) startNext(ctx context.Context) bool {
	logger := logctx.LoggerFromContext(ctx)

	for r.idx < len(r.queue) {
		t := r.queue[r.idx]

		if !r.opts.Overwrite {
			// Zero-byte leftovers from an interrupted stream do not count as
			// resolved; those get re-downloaded.
			if info, err := os.Stat(t.path); err == nil && info.Size() > 0 {
				logger.Debug("asset already on disk, skipping download",
					"kind", t.kind.String(),
					"path", t.path)
				r.rec.SetLocalPath(t.kind, t.path)
				r.rec.ClearAsset(t.kind)
				r.resolved++
				r.idx++

				continue
			}
		}

		r.cur = transfer.NewRetrying(r.opts.Client, r.opts.Pool, transfer.Options{
			URL:        t.asset.URL,
			Method:     http.MethodGet,
			OutputPath: t.path,
			Limiter:    r.opts.Limiter,
			Metrics:    r.opts.Metrics,
		}, r.opts.Retry, true)
		r.curStart = time.Now()

		if r.opts.Metrics != nil {
			r.opts.Metrics.IncrementActiveDownloads()
		}

		return true
	}

	r.status = async.StatusDone

	return false
}

func (r *Resolver) finishCurrent(ctx context.Context) {
	t := r.queue[r.idx]
	logger := logctx.LoggerFromContext(ctx).With("kind", t.kind.String(), "url", t.asset.URL)

	cur := r.cur
	r.cur = nil
	r.idx++

	if r.opts.Metrics != nil {
		r.opts.Metrics.DecrementActiveDownloads()
	}

	// A failed asset never fails the whole record: log, drop the URL so
	// the session does not retry it, move on.
	if cur.Final() != transfer.StatusSuccess {
		logger.Warn("asset download failed, skipping",
			"status", cur.Final().String(),
			"soft", cur.Soft(),
			"err", cur.Err())
		r.rec.ClearAsset(t.kind)
		r.failed++

		if r.opts.Metrics != nil {
			r.opts.Metrics.RecordDownload(t.kind.String(), cur.Final().String(), time.Since(r.curStart))
		}

		return
	}

	finalPath := r.finalizePath(logger.With("path", t.path), t, cur.Result().ContentType())

	if t.kind.Resizable() && r.opts.MaxWidth > 0 && r.opts.MaxHeight > 0 {
		if err := shrinkImage(finalPath, r.opts.MaxWidth, r.opts.MaxHeight); err != nil {
			// The original download stays usable; rescaling is best effort.
			logger.Warn("image rescale failed, keeping original", "path", finalPath, "err", err)
		}
	}

	r.rec.SetLocalPath(t.kind, finalPath)
	r.rec.ClearAsset(t.kind)
	r.resolved++

	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordDownload(t.kind.String(), "success", time.Since(r.curStart))
	}

	if r.opts.Journal != nil {
		if err := r.opts.Journal.RecordDownload(ctx, media.FileID(r.rec), t.kind, t.asset.URL, finalPath); err != nil {
			logger.Warn("failed to journal download", "err", err)
		}
	}

	logger.Info("asset resolved", "path", finalPath)
}

// finalizePath corrects the file extension when the response content type
// contradicts the guessed one, renaming the downloaded file in place.
func (r *Resolver) finalizePath(logger *slog.Logger, t task, contentType string) string {
	ext := extForContentType(contentType)
	if ext == "" || strings.EqualFold(ext, filepath.Ext(t.path)) {
		return t.path
	}

	corrected := strings.TrimSuffix(t.path, filepath.Ext(t.path)) + ext
	if err := os.Rename(t.path, corrected); err != nil {
		return t.path
	}

	logger.Debug("corrected asset extension from content type",
		"content_type", contentType,
		"corrected", corrected)

	return corrected
}

// Status returns the resolver lifecycle state.
func (r *Resolver) Status() async.Status {
	return r.status
}

// ErrorMessage returns the failure message, empty unless Status is error.
// The only terminal error a resolver reports is cancellation; individual
// download failures are skipped over instead.
func (r *Resolver) ErrorMessage() string {
	if r.status == async.StatusError {
		return "cancelled"
	}

	return ""
}

// CurrentItem labels the asset being downloaded, empty when idle.
func (r *Resolver) CurrentItem() string {
	if r.cur == nil || r.idx >= len(r.queue) {
		return ""
	}

	return r.queue[r.idx].kind.String()
}

// Progress returns the completion percentage of the download in flight, or
// -1 when idle or the size is unknown.
func (r *Resolver) Progress() int {
	if r.cur == nil {
		return -1
	}

	return r.cur.Progress()
}

// Resolved returns how many assets ended up on disk, including skipped
// pre-existing files.
func (r *Resolver) Resolved() int {
	return r.resolved
}

// Failed returns how many downloads were given up on.
func (r *Resolver) Failed() int {
	return r.failed
}

// Cancel aborts the active download and freezes the resolver.
func (r *Resolver) Cancel() {
	if r.cur != nil {
		r.cur.Cancel()
		r.cur = nil

		if r.opts.Metrics != nil {
			r.opts.Metrics.DecrementActiveDownloads()
			r.opts.Metrics.RecordDownload(r.queue[r.idx].kind.String(), "cancelled", time.Since(r.curStart))
		}
	}

	if !r.status.Terminal() {
		r.status = async.StatusError
	}
}

func urlExt(rawURL string) string {
	// Query strings and fragments are not part of the file name.
	trimmed := rawURL
	for _, sep := range []string{"?", "#"} {
		if i := strings.Index(trimmed, sep); i >= 0 {
			trimmed = trimmed[:i]
		}
	}

	return strings.ToLower(path.Ext(trimmed))
}

func extForContentType(contentType string) string {
	ct := contentType
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}

	switch strings.ToLower(strings.TrimSpace(ct)) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	default:
		return ""
	}
}
