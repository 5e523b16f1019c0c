package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/commentmap/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventBatchUpdated     = "batch.updated"
	EventBatchDeleted     = "batch.deleted"
	EventDocumentReloaded = "document.reloaded"
)

const debounceDelay = 200 * time.Millisecond

// EventCallback is called after an index change. name is the batch name,
// or the document path for document events.
type EventCallback func(kind string, name string)

// Target is the owner of the index that the watcher drives. Implementations
// serialise both calls with their other writers and report the resulting
// changes themselves.
type Target interface {
	// Sync reconciles the index with the inbox.
	Sync(ctx context.Context, force bool) (*SyncReport, error)
	// ReloadDocument re-reads the document export and, when it changed,
	// re-enriches every batch. It reports whether the document changed.
	ReloadDocument(ctx context.Context) (bool, error)
}

// Watch starts an fsnotify watcher on the inbox directory and, when docPath
// is set, on the directory holding the document export. It processes change
// events until ctx is cancelled.
//
// Bursts of events are debounced into one pass. A changed document goes
// through target.ReloadDocument, which re-enriches everything; changed
// batches trigger a regular target.Sync.
func Watch(ctx context.Context, target Target, inboxDir, docPath string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	inboxAbs, err := filepath.Abs(inboxDir)
	if err != nil {
		return err
	}
	if err := w.Add(inboxAbs); err != nil {
		return err
	}

	var docAbs string
	if docPath != "" {
		if docAbs, err = filepath.Abs(docPath); err != nil {
			return err
		}
		// Watch the parent: editors and atomic writers replace the file.
		if dir := filepath.Dir(docAbs); dir != inboxAbs {
			if err := w.Add(dir); err != nil {
				return err
			}
		}
	}

	logger.Info("watcher: started", slog.String("inbox", inboxAbs), slog.String("document", docAbs))

	var (
		timer         *time.Timer
		timerCh       <-chan time.Time
		syncPending   bool
		reloadPending bool
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounceDelay)
			timerCh = timer.C
		} else {
			timer.Reset(debounceDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			reloaded := false
			if reloadPending {
				reloadPending = false
				changed, err := target.ReloadDocument(ctx)
				if err != nil {
					logger.Warn("watcher: document reload failed", slog.String("error", err.Error()))
				}
				reloaded = changed
			}
			// A reload already re-enriched every batch.
			if syncPending && !reloaded {
				if _, err := target.Sync(ctx, false); err != nil {
					logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
				}
			}
			syncPending = false

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			path := filepath.Clean(ev.Name)

			switch {
			case docAbs != "" && path == docAbs:
				reloadPending = true
				schedule()
			case filepath.Dir(path) == inboxAbs && storage.ValidName(filepath.Base(path)):
				logger.Debug("watcher: batch event", slog.String("batch", filepath.Base(path)), slog.String("op", ev.Op.String()))
				syncPending = true
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
