package index

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/commentmap/internal/models"
	"github.com/starford/commentmap/internal/storage"
)

// Enricher annotates a batch of comments using a wider context set.
type Enricher interface {
	Enrich(comments, context []models.RawComment) []models.EnrichedComment
}

// SyncReport describes what a Sync pass changed.
type SyncReport struct {
	RunID    string
	Updated  []string // batches new or changed on disk
	Removed  []string // batches gone from disk
	Invalid  []string // batches that could not be read or decoded
	Enriched int      // batches re-enriched and stored
}

// Changed reports whether the pass touched the index.
func (r *SyncReport) Changed() bool {
	return len(r.Updated) > 0 || len(r.Removed) > 0 || r.Enriched > 0
}

type decodedBatch struct {
	meta     models.BatchMeta
	comments []models.RawComment
}

// Sync brings the index up to date with the inbox:
//   - batches removed from disk are deleted from the index
//   - when any batch is new or changed, or force is set, every batch is
//     re-enriched, because a reply in one batch may inherit from a parent
//     in another
//
// The context for each batch is the union of all readable batches.
func Sync(db *DB, store storage.Provider, enricher Enricher, logger *slog.Logger, force bool) (*SyncReport, error) {
	report := &SyncReport{RunID: uuid.NewString()}

	metas, err := store.List()
	if err != nil {
		return nil, err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return nil, err
	}

	var (
		batches []decodedBatch
		context []models.RawComment
	)
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Name] = struct{}{}

		data, err := store.Read(m.Name)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("batch", m.Name), slog.String("error", err.Error()))
			report.Invalid = append(report.Invalid, m.Name)
			continue
		}
		comments, err := storage.DecodeBatch(data)
		if err != nil {
			logger.Warn("sync: decode failed", slog.String("batch", m.Name), slog.String("error", err.Error()))
			report.Invalid = append(report.Invalid, m.Name)
			continue
		}
		if checksums[m.Name] != m.Checksum {
			report.Updated = append(report.Updated, m.Name)
		}
		batches = append(batches, decodedBatch{meta: m, comments: comments})
		context = append(context, comments...)
	}

	// Remove stale entries.
	for name := range checksums {
		if _, ok := disk[name]; ok {
			continue
		}
		if err := db.DeleteBatch(name); err != nil {
			logger.Warn("sync: delete failed", slog.String("batch", name), slog.String("error", err.Error()))
			continue
		}
		report.Removed = append(report.Removed, name)
		logger.Debug("sync: removed stale", slog.String("batch", name))
	}

	if !force && len(report.Updated) == 0 && len(report.Removed) == 0 {
		return report, nil
	}

	now := time.Now()
	for _, b := range batches {
		enriched := enricher.Enrich(b.comments, context)
		row := BatchRow{Name: b.meta.Name, Checksum: b.meta.Checksum, RunID: report.RunID, EnrichedAt: now}
		if err := db.ReplaceBatch(row, enriched); err != nil {
			logger.Warn("sync: store failed", slog.String("batch", b.meta.Name), slog.String("error", err.Error()))
			continue
		}
		report.Enriched++
		logger.Debug("sync: enriched", slog.String("batch", b.meta.Name), slog.Int("comments", len(enriched)))
	}

	logger.Info("sync: complete",
		slog.String("run_id", report.RunID),
		slog.Int("updated", len(report.Updated)),
		slog.Int("removed", len(report.Removed)),
		slog.Int("invalid", len(report.Invalid)),
		slog.Int("enriched", report.Enriched))
	return report, nil
}
