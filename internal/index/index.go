package index

import "github.com/starford/commentmap/internal/models"

// CommentIndex defines the interface for enriched comment storage.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type CommentIndex interface {
	ReplaceBatch(b BatchRow, comments []models.EnrichedComment) error
	DeleteBatch(name string) error
	GetBatch(name string) (*BatchRow, error)
	BatchComments(name string) ([]models.EnrichedComment, error)
	ListBatches() ([]BatchRow, error)
	AllChecksums() (map[string]string, error)
	ListComments(f CommentFilter) ([]models.EnrichedComment, int, error)
	Thread(threadID string) ([]models.EnrichedComment, error)
	Frames(fallbackLabel string) ([]FrameGroup, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies CommentIndex at compile time.
var _ CommentIndex = (*DB)(nil)
