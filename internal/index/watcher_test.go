package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/commentmap/internal/doctree"
	"github.com/starford/commentmap/internal/storage"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(kind, name string) {
	l.mu.Lock()
	l.events = append(l.events, kind+":"+name)
	l.mu.Unlock()
}

func (l *eventLog) has(want string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == want {
			return true
		}
	}
	return false
}

// indexTarget drives the index directly under one lock, resolving each
// pass against a single document snapshot.
type indexTarget struct {
	mu    sync.Mutex
	db    *DB
	store storage.Provider
	tree  *doctree.Tree
	docs  *doctree.Store
	cb    EventCallback
	syncs int
}

func (x *indexTarget) Sync(_ context.Context, force bool) (*SyncReport, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.syncLocked(force)
}

func (x *indexTarget) ReloadDocument(_ context.Context) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	changed, err := x.docs.Load()
	if err != nil || !changed {
		return false, err
	}
	x.emit(EventDocumentReloaded, x.docs.Path())
	_, err = x.syncLocked(true)
	return true, err
}

func (x *indexTarget) syncLocked(force bool) (*SyncReport, error) {
	x.syncs++
	tree := x.tree
	if x.docs != nil {
		tree = x.docs.Tree()
	}
	report, err := Sync(x.db, x.store, testEnricher(tree), discard, force)
	if err != nil {
		return nil, err
	}
	for _, name := range report.Updated {
		x.emit(EventBatchUpdated, name)
	}
	for _, name := range report.Removed {
		x.emit(EventBatchDeleted, name)
	}
	return report, nil
}

func (x *indexTarget) emit(kind, name string) {
	if x.cb != nil {
		x.cb(kind, name)
	}
}

func (x *indexTarget) syncCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.syncs
}

const docV1 = `{"name": "Doc", "document": {"id": "0:0", "name": "Document", "type": "DOCUMENT", "children": [
  {"id": "0:1", "name": "Page", "type": "PAGE", "children": [
    {"id": "10:0", "name": "Hero", "type": "FRAME", "children": [{"id": "10:1", "name": "Title", "type": "TEXT"}]}
  ]}
]}}`

const docV2 = `{"name": "Doc", "document": {"id": "0:0", "name": "Document", "type": "DOCUMENT", "children": [
  {"id": "0:1", "name": "Page", "type": "PAGE", "children": [
    {"id": "20:0", "name": "Landing", "type": "FRAME", "children": [{"id": "10:1", "name": "Title", "type": "TEXT"}]}
  ]}
]}}`

func TestWatcher_NewBatchIndexed(t *testing.T) {
	dir, store := inboxEnv(t)
	db := testDB(t)
	log := &eventLog{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := &indexTarget{db: db, store: store, tree: sampleTree(), cb: log.add}
	go Watch(ctx, target, dir, "", discard)
	time.Sleep(100 * time.Millisecond)

	writeBatch(t, dir, "new.json", batchParents)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetBatch("new.json")
		return err == nil
	}, "new batch not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return log.has(EventBatchUpdated + ":new.json")
	}, "expected batch.updated event for new.json")
}

func TestWatcher_DeletedBatchRemoved(t *testing.T) {
	dir, store := inboxEnv(t)
	db := testDB(t)
	log := &eventLog{}
	target := &indexTarget{db: db, store: store, tree: sampleTree(), cb: log.add}
	writeBatch(t, dir, "gone.json", batchParents)
	if _, err := target.Sync(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, target, dir, "", discard)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(dir, "gone.json"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetBatch("gone.json")
		return err != nil
	}, "deleted batch still indexed")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return log.has(EventBatchDeleted + ":gone.json")
	}, "expected batch.deleted event for gone.json")
}

func TestWatcher_IgnoresForeignFiles(t *testing.T) {
	dir, store := inboxEnv(t)
	db := testDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := &indexTarget{db: db, store: store, tree: sampleTree()}
	go Watch(ctx, target, dir, "", discard)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a batch"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, ".hidden.json"), []byte("[]"), 0o644)

	time.Sleep(500 * time.Millisecond)
	batches, _ := db.ListBatches()
	if len(batches) != 0 {
		t.Errorf("foreign files indexed: %+v", batches)
	}
	if n := target.syncCount(); n != 0 {
		t.Errorf("foreign files triggered %d syncs", n)
	}
}

func TestWatcher_DocumentReloadReenriches(t *testing.T) {
	dir, store := inboxEnv(t)
	db := testDB(t)
	docDir := t.TempDir()
	docPath := filepath.Join(docDir, "design.json")
	if err := os.WriteFile(docPath, []byte(docV1), 0o644); err != nil {
		t.Fatal(err)
	}
	docs := doctree.NewStore(docPath)
	if _, err := docs.Load(); err != nil {
		t.Fatal(err)
	}
	log := &eventLog{}
	target := &indexTarget{db: db, store: store, docs: docs, cb: log.add}
	writeBatch(t, dir, "a.json", batchParents)
	if _, err := target.Sync(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, target, dir, docPath, discard)
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(docPath, []byte(docV2), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		got, _, _ := db.ListComments(CommentFilter{Batch: "a.json"})
		return len(got) == 1 && got[0].FrameName == "Landing"
	}, "comment not re-enriched after document change")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return log.has(EventDocumentReloaded + ":" + docPath)
	}, "expected document.reloaded event")
}

func TestWatcher_DocumentAndBatchChangeSyncOnce(t *testing.T) {
	dir, store := inboxEnv(t)
	db := testDB(t)
	docPath := filepath.Join(t.TempDir(), "design.json")
	if err := os.WriteFile(docPath, []byte(docV1), 0o644); err != nil {
		t.Fatal(err)
	}
	docs := doctree.NewStore(docPath)
	if _, err := docs.Load(); err != nil {
		t.Fatal(err)
	}
	target := &indexTarget{db: db, store: store, docs: docs}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, target, dir, docPath, discard)
	time.Sleep(100 * time.Millisecond)

	writeBatch(t, dir, "a.json", batchParents)
	if err := os.WriteFile(docPath, []byte(docV2), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		got, _, _ := db.ListComments(CommentFilter{Batch: "a.json"})
		return len(got) == 1 && got[0].FrameName == "Landing"
	}, "batch not indexed against the reloaded document")
	time.Sleep(2 * debounceDelay)
	if n := target.syncCount(); n != 1 {
		t.Errorf("syncs = %d, want one pass covering both changes", n)
	}
}
