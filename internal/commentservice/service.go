// Package commentservice coordinates the comment inbox, the design document,
// hierarchy resolution and the comment index.
package commentservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/starford/commentmap/internal/apperr"
	"github.com/starford/commentmap/internal/checksum"
	"github.com/starford/commentmap/internal/doctree"
	"github.com/starford/commentmap/internal/enrich"
	"github.com/starford/commentmap/internal/hierarchy"
	"github.com/starford/commentmap/internal/index"
	"github.com/starford/commentmap/internal/models"
	"github.com/starford/commentmap/internal/storage"
)

// BatchDetail is the full representation of a stored batch.
type BatchDetail struct {
	Name       string                   `json:"name"`
	Checksum   string                   `json:"checksum"`
	RunID      string                   `json:"run_id"`
	EnrichedAt time.Time                `json:"enriched_at"`
	Comments   []models.EnrichedComment `json:"comments"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used by the service and its enricher.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithFallbackLabel sets the frame name given to unplaced comments.
func WithFallbackLabel(label string) Option {
	return func(s *Service) { s.fallback = label }
}

// WithMaxDepth bounds ancestor walks during resolution.
func WithMaxDepth(n int) Option {
	return func(s *Service) { s.maxDepth = n }
}

// WithEvents registers a callback for changes made through the service.
func WithEvents(cb index.EventCallback) Option {
	return func(s *Service) { s.events = cb }
}

// WithEnricherWrapper decorates the enricher used by Enrich and Sync,
// e.g. to record metrics.
func WithEnricherWrapper(wrap func(index.Enricher) index.Enricher) Option {
	return func(s *Service) { s.wrap = wrap }
}

// Service coordinates storage, document, enrichment and index operations.
type Service struct {
	store    storage.Provider
	db       *index.DB
	docs     *doctree.Store
	wrap     func(index.Enricher) index.Enricher
	logger   *slog.Logger
	events   index.EventCallback
	fallback string
	maxDepth int

	// syncMu serialises document reloads and inbox writes with the sync
	// pass that follows them.
	syncMu sync.Mutex
}

// NewService creates a comment service. Every operation reads the document
// snapshot current when it starts, so a reload is picked up without
// rebuilding the service.
func NewService(store storage.Provider, db *index.DB, docs *doctree.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		db:       db,
		docs:     docs,
		logger:   slog.Default(),
		fallback: models.DefaultFallbackLabel,
		maxDepth: hierarchy.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) resolverFor(tree *doctree.Tree) *hierarchy.Resolver {
	return hierarchy.New(tree, hierarchy.WithMaxDepth(s.maxDepth))
}

// enricherFor returns an enricher that resolves every anchor against tree.
func (s *Service) enricherFor(tree *doctree.Tree) index.Enricher {
	var e index.Enricher = enrich.New(s.resolverFor(tree),
		enrich.WithFallbackLabel(s.fallback),
		enrich.WithLogger(s.logger))
	if s.wrap != nil {
		e = s.wrap(e)
	}
	return e
}

// Enrich annotates comments against the current document without touching
// the index. A nil context enriches comments against themselves.
func (s *Service) Enrich(_ context.Context, comments, contextSet []models.RawComment) []models.EnrichedComment {
	return s.enricherFor(s.docs.Tree()).Enrich(comments, contextSet)
}

// ResolveNode returns the frame and ancestor path of a document node.
func (s *Service) ResolveNode(_ context.Context, nodeID string) (*models.HierarchyResult, error) {
	return s.resolverFor(s.docs.Tree()).Resolve(nodeID)
}

// ListComments returns indexed comments matching f and the total match count.
func (s *Service) ListComments(_ context.Context, f index.CommentFilter) ([]models.EnrichedComment, int, error) {
	return s.db.ListComments(f)
}

// Thread returns one thread, top-level comment first.
func (s *Service) Thread(_ context.Context, threadID string) ([]models.EnrichedComment, error) {
	return s.db.Thread(threadID)
}

// Frames returns comment counts grouped by top frame.
func (s *Service) Frames(_ context.Context) ([]index.FrameGroup, error) {
	return s.db.Frames(s.fallback)
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// ListBatches returns every indexed batch.
func (s *Service) ListBatches(_ context.Context) ([]index.BatchRow, error) {
	return s.db.ListBatches()
}

// GetBatch returns a stored batch with its enriched comments.
func (s *Service) GetBatch(_ context.Context, name string) (*BatchDetail, error) {
	if !storage.ValidName(name) {
		return nil, apperr.ErrNotFound
	}
	row, err := s.db.GetBatch(name)
	if err != nil {
		return nil, err
	}
	comments, err := s.db.BatchComments(name)
	if err != nil {
		return nil, err
	}
	return &BatchDetail{
		Name:       row.Name,
		Checksum:   row.Checksum,
		RunID:      row.RunID,
		EnrichedAt: row.EnrichedAt,
		Comments:   comments,
	}, nil
}

// PutBatch writes a batch to the inbox and re-enriches the index. When
// ifMatch is non-empty it must match the stored checksum; a non-empty
// ifMatch against a missing batch is a conflict. created reports whether the
// batch was new.
func (s *Service) PutBatch(ctx context.Context, name string, content []byte, ifMatch string) (detail *BatchDetail, created bool, err error) {
	if !storage.ValidName(name) {
		return nil, false, fmt.Errorf("%w: bad name %q", apperr.ErrInvalidBatch, name)
	}
	if _, err := storage.DecodeBatch(content); err != nil {
		return nil, false, err
	}

	s.syncMu.Lock()
	existing, readErr := s.store.Read(name)
	switch {
	case readErr == nil:
		if !checksum.Matches(ifMatch, checksum.Sum(existing)) {
			s.syncMu.Unlock()
			return nil, false, apperr.ErrConflict
		}
	case errors.Is(readErr, os.ErrNotExist):
		if ifMatch != "" && ifMatch != "*" {
			s.syncMu.Unlock()
			return nil, false, apperr.ErrConflict
		}
		created = true
	default:
		s.syncMu.Unlock()
		return nil, false, readErr
	}

	if err := s.store.Write(name, content); err != nil {
		s.syncMu.Unlock()
		return nil, false, err
	}
	_, err = s.syncLocked(false)
	s.syncMu.Unlock()
	if err != nil {
		return nil, false, err
	}

	detail, err = s.GetBatch(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return detail, created, nil
}

// DeleteBatch removes a batch from the inbox and the index.
func (s *Service) DeleteBatch(_ context.Context, name string) error {
	if !storage.ValidName(name) {
		return apperr.ErrNotFound
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if err := s.store.Delete(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	_, err := s.syncLocked(false)
	return err
}

// Document describes the loaded design document.
func (s *Service) Document(_ context.Context) doctree.Summary {
	return s.docs.Summary()
}

// ReplaceDocument swaps in a new document export and, when it differs from
// the current one, re-enriches every batch.
func (s *Service) ReplaceDocument(_ context.Context, data []byte) (doctree.Summary, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	changed, err := s.docs.Replace(data)
	if err != nil {
		return doctree.Summary{}, err
	}
	if changed {
		s.notify(index.EventDocumentReloaded, s.docs.Path())
		if _, err := s.syncLocked(true); err != nil {
			return doctree.Summary{}, err
		}
	}
	return s.docs.Summary(), nil
}

// ReloadDocument re-reads the document export from disk and, when it
// differs from the current one, re-enriches every batch. It reports whether
// the document changed.
func (s *Service) ReloadDocument(_ context.Context) (bool, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	changed, err := s.docs.Load()
	if err != nil || !changed {
		return false, err
	}
	s.logger.Info("document reloaded", slog.Int("nodes", s.docs.Tree().Len()))
	s.notify(index.EventDocumentReloaded, s.docs.Path())
	_, err = s.syncLocked(true)
	return true, err
}

// Sync reconciles the index with the inbox.
func (s *Service) Sync(_ context.Context, force bool) (*index.SyncReport, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.syncLocked(force)
}

func (s *Service) syncLocked(force bool) (*index.SyncReport, error) {
	report, err := index.Sync(s.db, s.store, s.enricherFor(s.docs.Tree()), s.logger, force)
	if err != nil {
		return nil, err
	}
	for _, name := range report.Updated {
		s.notify(index.EventBatchUpdated, name)
	}
	for _, name := range report.Removed {
		s.notify(index.EventBatchDeleted, name)
	}
	return report, nil
}

func (s *Service) notify(kind, name string) {
	if s.events != nil {
		s.events(kind, name)
	}
}
