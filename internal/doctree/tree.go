// Package doctree keeps a design document resident in memory and serves
// node lookups for hierarchy resolution.
package doctree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/starford/commentmap/internal/models"
)

// rawNode mirrors a node of a design-file export. Unknown fields are ignored.
type rawNode struct {
	ID       string     `json:"id" yaml:"id"`
	Name     string     `json:"name" yaml:"name"`
	Type     string     `json:"type" yaml:"type"`
	Children []*rawNode `json:"children" yaml:"children"`
}

// rawFile is the envelope of a full file export.
type rawFile struct {
	Name     string   `json:"name" yaml:"name"`
	Document *rawNode `json:"document" yaml:"document"`
}

// Tree is an immutable, indexed snapshot of a document.
type Tree struct {
	name  string
	root  string
	nodes map[string]models.Node
	pages []models.Node
}

// Decode reads a document export. Both the file envelope
// ({"name": ..., "document": {...}}) and a bare root node are accepted,
// as JSON or YAML.
func Decode(r io.Reader) (*Tree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("doctree: read: %w", err)
	}
	unmarshal := yaml.Unmarshal
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		unmarshal = json.Unmarshal
	}

	var file rawFile
	if err := unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("doctree: decode: %w", err)
	}
	root := file.Document
	if root == nil {
		root = &rawNode{}
		if err := unmarshal(data, root); err != nil {
			return nil, fmt.Errorf("doctree: decode: %w", err)
		}
	}
	if root.ID == "" {
		return nil, fmt.Errorf("doctree: decode: document root has no id")
	}

	t := &Tree{name: file.Name, root: root.ID, nodes: make(map[string]models.Node)}
	if t.name == "" {
		t.name = root.Name
	}
	t.add(root, "")
	return t, nil
}

// FromNodes builds a tree from flat nodes whose ParentID links are already
// set. The first node without a parent becomes the root.
func FromNodes(name string, nodes []models.Node) *Tree {
	t := &Tree{name: name, nodes: make(map[string]models.Node, len(nodes))}
	for _, n := range nodes {
		if _, dup := t.nodes[n.ID]; dup || n.ID == "" {
			continue
		}
		t.nodes[n.ID] = n
		if !n.HasParent() && t.root == "" {
			t.root = n.ID
		}
		if n.IsPage() {
			t.pages = append(t.pages, n)
		}
	}
	return t
}

// add indexes n and its subtree. Duplicate ids keep the first occurrence.
func (t *Tree) add(n *rawNode, parentID string) {
	if n == nil || n.ID == "" {
		return
	}
	if _, dup := t.nodes[n.ID]; dup {
		return
	}
	node := models.Node{ID: n.ID, Name: n.Name, Type: n.Type, ParentID: parentID}
	t.nodes[n.ID] = node
	if node.IsPage() {
		t.pages = append(t.pages, node)
	}
	for _, child := range n.Children {
		t.add(child, n.ID)
	}
}

// NodeByID returns the node with the given id.
func (t *Tree) NodeByID(id string) (models.Node, bool) {
	if t == nil {
		return models.Node{}, false
	}
	n, ok := t.nodes[id]
	return n, ok
}

// Name returns the document name.
func (t *Tree) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Len returns the number of indexed nodes.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// Pages returns the page nodes in document order.
func (t *Tree) Pages() []models.Node {
	if t == nil {
		return nil
	}
	out := make([]models.Node, len(t.pages))
	copy(out, t.pages)
	return out
}
