// Package hierarchy resolves a document node to its chain of containing
// frames, sections and groups below the owning page.
package hierarchy

import (
	"fmt"
	"slices"

	"github.com/starford/commentmap/internal/apperr"
	"github.com/starford/commentmap/internal/models"
)

// DefaultMaxDepth bounds the upward walk. Real documents nest a few dozen
// levels at most.
const DefaultMaxDepth = 256

// NodeLookup gives read access to the document tree.
type NodeLookup interface {
	NodeByID(id string) (models.Node, bool)
}

// LookupFunc adapts a plain function to NodeLookup.
type LookupFunc func(id string) (models.Node, bool)

// NodeByID calls f(id).
func (f LookupFunc) NodeByID(id string) (models.Node, bool) {
	return f(id)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth overrides DefaultMaxDepth. Non-positive values are ignored.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// Resolver walks parent links from an anchor node up to its page.
type Resolver struct {
	nodes    NodeLookup
	maxDepth int
}

// New creates a Resolver reading from nodes.
func New(nodes NodeLookup, opts ...Option) *Resolver {
	r := &Resolver{nodes: nodes, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the hierarchy of the node with the given id.
//
// The returned error always wraps apperr.ErrNodeNotFound: the node may be
// absent (deleted, on another page, malformed id) or the walk may have hit
// a cycle, the depth bound, or a panicking lookup.
func (r *Resolver) Resolve(nodeID string) (res *models.HierarchyResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("hierarchy: resolve %q: lookup panicked: %v: %w", nodeID, p, apperr.ErrNodeNotFound)
		}
	}()

	if nodeID == "" || r.nodes == nil {
		return nil, fmt.Errorf("hierarchy: resolve %q: %w", nodeID, apperr.ErrNodeNotFound)
	}
	node, ok := r.nodes.NodeByID(nodeID)
	if !ok {
		return nil, fmt.Errorf("hierarchy: resolve %q: %w", nodeID, apperr.ErrNodeNotFound)
	}

	chain, err := r.ancestors(node)
	if err != nil {
		return nil, err
	}

	res = &models.HierarchyResult{
		FrameName: node.Name,
		FrameID:   node.ID,
		Hierarchy: []models.AncestorRecord{},
	}
	if len(chain) > 0 {
		res.FrameName = chain[0].Name
		res.FrameID = chain[0].ID
		res.Hierarchy = append(chain, node.Record())
	}
	return res, nil
}

// ancestors collects the containers above node, stopping below the page
// (or document root), and returns them outermost first. The anchor itself
// is not included.
func (r *Resolver) ancestors(node models.Node) ([]models.AncestorRecord, error) {
	var chain []models.AncestorRecord
	seen := map[string]struct{}{node.ID: {}}

	cur := node
	for cur.HasParent() {
		parent, ok := r.nodes.NodeByID(cur.ParentID)
		if !ok || parent.IsPage() || parent.Type == models.NodeTypeDocument {
			break
		}
		if _, dup := seen[parent.ID]; dup {
			return nil, fmt.Errorf("hierarchy: resolve %q: parent cycle at %q: %w", node.ID, parent.ID, apperr.ErrNodeNotFound)
		}
		if len(chain) >= r.maxDepth {
			return nil, fmt.Errorf("hierarchy: resolve %q: deeper than %d: %w", node.ID, r.maxDepth, apperr.ErrNodeNotFound)
		}
		seen[parent.ID] = struct{}{}
		chain = append(chain, parent.Record())
		cur = parent
	}

	slices.Reverse(chain)
	return chain, nil
}
