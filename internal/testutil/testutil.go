// Package testutil provides shared test helpers for inboxes, documents and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/commentmap/internal/doctree"
	"github.com/starford/commentmap/internal/index"
	"github.com/starford/commentmap/internal/models"
	"github.com/starford/commentmap/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "commentmap-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInbox creates a temporary inbox directory with a storage.Provider.
func TestInbox(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteBatch writes a raw batch file into an inbox directory.
func WriteBatch(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// SampleDocument is a small export with a section, a frame and nested layers:
//
//	Page 1 (0:1)
//	  Checkout SECTION (1:0)
//	    Cart FRAME (1:1)
//	      Summary GROUP (1:2)
//	        Total TEXT (1:3)
//	  Hero FRAME (2:0)
//	    Title TEXT (2:1)
//	  Sticker RECTANGLE (3:0)
const SampleDocument = `{
  "name": "Checkout flows",
  "document": {"id": "0:0", "name": "Document", "type": "DOCUMENT", "children": [
    {"id": "0:1", "name": "Page 1", "type": "CANVAS", "children": [
      {"id": "1:0", "name": "Checkout", "type": "SECTION", "children": [
        {"id": "1:1", "name": "Cart", "type": "FRAME", "children": [
          {"id": "1:2", "name": "Summary", "type": "GROUP", "children": [
            {"id": "1:3", "name": "Total", "type": "TEXT"}
          ]}
        ]}
      ]},
      {"id": "2:0", "name": "Hero", "type": "FRAME", "children": [
        {"id": "2:1", "name": "Title", "type": "TEXT"}
      ]},
      {"id": "3:0", "name": "Sticker", "type": "RECTANGLE"}
    ]}
  ]}
}`

// SampleTree returns SampleDocument as a preloaded tree.
func SampleTree() *doctree.Tree {
	return doctree.FromNodes("Checkout flows", []models.Node{
		{ID: "0:0", Name: "Document", Type: models.NodeTypeDocument},
		{ID: "0:1", Name: "Page 1", Type: models.NodeTypeCanvas, ParentID: "0:0"},
		{ID: "1:0", Name: "Checkout", Type: models.NodeTypeSection, ParentID: "0:1"},
		{ID: "1:1", Name: "Cart", Type: models.NodeTypeFrame, ParentID: "1:0"},
		{ID: "1:2", Name: "Summary", Type: models.NodeTypeGroup, ParentID: "1:1"},
		{ID: "1:3", Name: "Total", Type: "TEXT", ParentID: "1:2"},
		{ID: "2:0", Name: "Hero", Type: models.NodeTypeFrame, ParentID: "0:1"},
		{ID: "2:1", Name: "Title", Type: "TEXT", ParentID: "2:0"},
		{ID: "3:0", Name: "Sticker", Type: "RECTANGLE", ParentID: "0:1"},
	})
}

// TestDocument writes SampleDocument to a temp file and returns a loaded store.
func TestDocument(t *testing.T) *doctree.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "design.json")
	if err := os.WriteFile(path, []byte(SampleDocument), 0o644); err != nil {
		t.Fatal(err)
	}
	docs := doctree.NewStore(path)
	if _, err := docs.Load(); err != nil {
		t.Fatal(err)
	}
	return docs
}

// SampleBatch holds a comment on Total, a reply to it, an orphan reply and a
// comment on a node missing from SampleDocument.
const SampleBatch = `[
  {"id": "100", "message": "Total is misaligned", "created_at": "2024-05-01T10:00:00Z",
   "resolved_at": null, "user": {"handle": "ana", "img_url": "https://img/ana.png"},
   "client_meta": {"node_id": "1:3", "node_offset": {"x": 4, "y": 8}}, "order_id": "1"},
  {"id": "101", "message": "Fixed in v2", "created_at": "2024-05-01T11:00:00Z",
   "resolved_at": "2024-05-02T09:00:00Z", "user": {"handle": "bo", "img_url": ""},
   "parent_id": "100"},
  {"id": "102", "message": "What about this?", "created_at": "2024-05-01T12:00:00Z",
   "resolved_at": null, "user": {"handle": "cy", "img_url": ""}, "parent_id": "999"},
  {"id": "103", "message": "Hero headline copy", "created_at": "2024-05-01T13:00:00Z",
   "resolved_at": null, "user": {"handle": "ana", "img_url": ""},
   "client_meta": {"node_offset": {"node_id": "2:1", "x": 1, "y": 2}}},
  {"id": "104", "message": "Deleted layer", "created_at": "2024-05-01T14:00:00Z",
   "resolved_at": null, "user": {"handle": "bo", "img_url": ""},
   "client_meta": {"node_id": "77:7"}}
]`
