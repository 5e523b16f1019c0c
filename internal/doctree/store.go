package doctree

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/starford/commentmap/internal/apperr"
	"github.com/starford/commentmap/internal/checksum"
	"github.com/starford/commentmap/internal/models"
	"github.com/starford/commentmap/internal/storage"
)

// Summary describes the currently loaded document.
type Summary struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Nodes    int           `json:"nodes"`
	Pages    []models.Node `json:"pages"`
	Checksum string        `json:"checksum"`
	LoadedAt time.Time     `json:"loaded_at"`
}

// Store holds the current Tree and swaps it on reload. Until a document is
// loaded every lookup misses, so enrichment degrades to fallback labels
// instead of failing.
type Store struct {
	path string

	mu       sync.RWMutex
	tree     *Tree
	checksum string
	loadedAt time.Time
}

// NewStore creates an empty store backed by the export at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// NewStoreWithTree creates a store preloaded with t and no backing file.
func NewStoreWithTree(t *Tree) *Store {
	return &Store{tree: t, loadedAt: time.Now()}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads and decodes the backing file. It reports whether the content
// changed since the previous load.
func (s *Store) Load() (bool, error) {
	if s.path == "" {
		return false, fmt.Errorf("doctree: no document path configured")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("doctree: read %s: %w", s.path, err)
	}
	return s.swap(data)
}

// Replace decodes data, persists it to the backing file and makes it current.
func (s *Store) Replace(data []byte) (bool, error) {
	if _, err := Decode(bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("%w: %v", apperr.ErrInvalidDoc, err)
	}
	if s.path != "" {
		if err := storage.WriteFileAtomic(s.path, data); err != nil {
			return false, fmt.Errorf("doctree: persist: %w", err)
		}
	}
	return s.swap(data)
}

func (s *Store) swap(data []byte) (bool, error) {
	cs := checksum.Sum(data)

	s.mu.RLock()
	unchanged := s.tree != nil && s.checksum == cs
	s.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	t, err := Decode(bytes.NewReader(data))
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.tree = t
	s.checksum = cs
	s.loadedAt = time.Now()
	s.mu.Unlock()
	return true, nil
}

// Tree returns the current snapshot, or nil before the first load. A
// snapshot is never modified, so one walk over it sees a single version.
func (s *Store) Tree() *Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree
}

// Summary describes the current snapshot.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := s.tree.Pages()
	if pages == nil {
		pages = []models.Node{}
	}
	return Summary{
		Name:     s.tree.Name(),
		Path:     s.path,
		Nodes:    s.tree.Len(),
		Pages:    pages,
		Checksum: s.checksum,
		LoadedAt: s.loadedAt,
	}
}
