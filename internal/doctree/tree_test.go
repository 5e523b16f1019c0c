package doctree

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/commentmap/internal/models"
)

const fileExport = `{
  "name": "Checkout flows",
  "lastModified": "2024-05-01T10:00:00Z",
  "document": {
    "id": "0:0", "name": "Document", "type": "DOCUMENT",
    "children": [
      {"id": "0:1", "name": "Page 1", "type": "CANVAS", "children": [
        {"id": "1:0", "name": "Checkout", "type": "SECTION", "children": [
          {"id": "1:1", "name": "Cart", "type": "FRAME", "absoluteBoundingBox": {"x": 0}, "children": [
            {"id": "1:2", "name": "Total", "type": "TEXT"}
          ]}
        ]}
      ]},
      {"id": "0:2", "name": "Archive", "type": "CANVAS", "children": []}
    ]
  }
}`

const yamlRoot = `
id: "0:0"
name: Plugin dump
type: DOCUMENT
children:
  - id: "0:1"
    name: Page
    type: PAGE
    children:
      - id: "2:0"
        name: Hero
        type: FRAME
`

func TestDecode_FileExport(t *testing.T) {
	tree, err := Decode(strings.NewReader(fileExport))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tree.Name() != "Checkout flows" {
		t.Errorf("name = %q", tree.Name())
	}
	if tree.Len() != 6 {
		t.Errorf("len = %d, want 6", tree.Len())
	}
	n, ok := tree.NodeByID("1:2")
	if !ok {
		t.Fatal("1:2 missing")
	}
	if n.ParentID != "1:1" || n.Type != "TEXT" {
		t.Errorf("node = %+v", n)
	}
	if pages := tree.Pages(); len(pages) != 2 || pages[0].Name != "Page 1" {
		t.Errorf("pages = %+v", pages)
	}
}

func TestDecode_YAMLBareRoot(t *testing.T) {
	tree, err := Decode(strings.NewReader(yamlRoot))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tree.Name() != "Plugin dump" {
		t.Errorf("name = %q", tree.Name())
	}
	n, ok := tree.NodeByID("2:0")
	if !ok || n.ParentID != "0:1" {
		t.Errorf("node = %+v ok = %v", n, ok)
	}
}

func TestDecode_Errors(t *testing.T) {
	for _, in := range []string{`{"document": {"name": "no id"}}`, `{not json`, ``} {
		if _, err := Decode(strings.NewReader(in)); err == nil {
			t.Errorf("Decode(%q) should fail", in)
		}
	}
}

func TestDecode_DuplicateIDsKeepFirst(t *testing.T) {
	in := `{"id":"0:0","type":"DOCUMENT","children":[
		{"id":"0:1","type":"PAGE","children":[{"id":"9:9","name":"first","type":"FRAME"}]},
		{"id":"0:2","type":"PAGE","children":[{"id":"9:9","name":"second","type":"FRAME"}]}
	]}`
	tree, err := Decode(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := tree.NodeByID("9:9"); n.Name != "first" || n.ParentID != "0:1" {
		t.Errorf("node = %+v", n)
	}
}

func TestNilTreeLookups(t *testing.T) {
	var tree *Tree
	if _, ok := tree.NodeByID("1:1"); ok {
		t.Error("nil tree should miss")
	}
	if tree.Len() != 0 || tree.Name() != "" || tree.Pages() != nil {
		t.Error("nil tree should be empty")
	}
}

func TestFromNodes(t *testing.T) {
	tree := FromNodes("mock", []models.Node{
		{ID: "0:0", Type: models.NodeTypeDocument},
		{ID: "0:1", Type: models.NodeTypePage, ParentID: "0:0"},
		{ID: "0:1", Name: "dup", Type: models.NodeTypePage, ParentID: "0:0"},
		{ID: "1:1", Type: models.NodeTypeFrame, ParentID: "0:1"},
	})
	if tree.Len() != 3 || len(tree.Pages()) != 1 {
		t.Errorf("len = %d pages = %d", tree.Len(), len(tree.Pages()))
	}
}

func TestStore_LoadAndReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "document.json")
	if err := os.WriteFile(path, []byte(fileExport), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path)
	if _, ok := s.Tree().NodeByID("1:1"); ok {
		t.Error("empty store should miss")
	}
	changed, err := s.Load()
	if err != nil || !changed {
		t.Fatalf("Load = %v, %v", changed, err)
	}
	if _, ok := s.Tree().NodeByID("1:1"); !ok {
		t.Error("1:1 should resolve after load")
	}
	changed, err = s.Load()
	if err != nil || changed {
		t.Errorf("reload of identical file = %v, %v; want unchanged", changed, err)
	}

	changed, err = s.Replace([]byte(yamlRoot))
	if err != nil || !changed {
		t.Fatalf("Replace = %v, %v", changed, err)
	}
	if _, ok := s.Tree().NodeByID("1:1"); ok {
		t.Error("old node should be gone after replace")
	}
	onDisk, _ := os.ReadFile(path)
	if string(onDisk) != yamlRoot {
		t.Error("replace should persist the new export")
	}
	if sum := s.Summary(); sum.Name != "Plugin dump" || sum.Nodes != 3 || sum.Checksum == "" {
		t.Errorf("summary = %+v", sum)
	}
}

func TestStore_ReplaceRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "document.json")
	s := NewStore(path)
	if _, err := s.Replace([]byte(`{"document":{}}`)); err == nil {
		t.Fatal("invalid export should be rejected")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid export should not be written")
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	if _, err := s.Load(); err == nil {
		t.Error("expected error")
	}
	if s.Summary().Nodes != 0 {
		t.Error("summary of empty store should report no nodes")
	}
}
