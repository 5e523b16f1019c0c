// Package enrich annotates comments with the frame, ancestor chain and
// thread they belong to.
//
// Enrichment runs in two strictly sequential stages. BuildParentMap
// resolves every top-level comment of the context set; Annotate then
// resolves each comment of the batch on its own anchor, or inherits its
// parent's placement when it has none. Replies may appear before their
// parent in either input, so the parent map must be complete before
// Annotate starts.
package enrich

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/starford/commentmap/internal/models"
)

// Resolver maps an anchor node id to its hierarchy.
type Resolver interface {
	Resolve(nodeID string) (*models.HierarchyResult, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(nodeID string) (*models.HierarchyResult, error)

// Resolve calls f(nodeID).
func (f ResolverFunc) Resolve(nodeID string) (*models.HierarchyResult, error) {
	return f(nodeID)
}

// Placement is where a comment sits in the document.
type Placement struct {
	NodeID    *string
	FrameName string
	FrameID   *string
	Hierarchy []models.AncestorRecord
}

// Resolved reports whether the placement points at a live frame.
func (p Placement) Resolved() bool {
	return p.FrameID != nil
}

func (p Placement) clone() Placement {
	p.Hierarchy = slices.Clone(p.Hierarchy)
	if p.Hierarchy == nil {
		p.Hierarchy = []models.AncestorRecord{}
	}
	return p
}

// ParentMap holds the placement of each anchored top-level comment, keyed
// by comment id.
type ParentMap map[string]Placement

// Option configures an Enricher.
type Option func(*Enricher)

// WithFallbackLabel sets the frame label used for unresolved comments.
func WithFallbackLabel(label string) Option {
	return func(e *Enricher) {
		if label != "" {
			e.fallback = label
		}
	}
}

// WithLogger sets the logger used for per-comment diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// Enricher runs the two-stage enrichment. It holds no per-run state and is
// safe for concurrent use if its Resolver is.
type Enricher struct {
	resolver Resolver
	fallback string
	logger   *slog.Logger
}

// New creates an Enricher resolving anchors through r.
func New(r Resolver, opts ...Option) *Enricher {
	e := &Enricher{
		resolver: r,
		fallback: models.DefaultFallbackLabel,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich annotates comments. context supplies the parents replies may
// inherit from and may be a superset of comments; nil means comments.
// The result has the same length and order as comments.
func (e *Enricher) Enrich(comments, context []models.RawComment) []models.EnrichedComment {
	if context == nil {
		context = comments
	}
	return e.Annotate(comments, e.BuildParentMap(context))
}

// BuildParentMap resolves every top-level comment in context that carries
// an anchor. Comments without an anchor get no entry.
func (e *Enricher) BuildParentMap(context []models.RawComment) ParentMap {
	parents := make(ParentMap)
	for _, c := range context {
		if c.HasParent() {
			continue
		}
		nodeID, ok := c.AnchorNodeID()
		if !ok {
			continue
		}
		parents[c.ID] = e.locate(c.ID, nodeID)
	}
	return parents
}

// Annotate produces the enriched form of each comment using parents for
// replies that carry no anchor of their own. Inputs are not modified.
func (e *Enricher) Annotate(comments []models.RawComment, parents ParentMap) []models.EnrichedComment {
	out := make([]models.EnrichedComment, len(comments))
	var resolved, inherited, unresolved int

	for i, c := range comments {
		var p Placement
		if nodeID, ok := c.AnchorNodeID(); ok {
			p = e.locate(c.ID, nodeID)
		} else if parent, ok := parents[c.Thread()]; ok && c.HasParent() {
			p = parent.clone()
			inherited++
		} else {
			p = e.unresolved()
		}
		if p.Resolved() {
			resolved++
		} else {
			unresolved++
		}

		out[i] = models.EnrichedComment{
			RawComment:     c,
			FrameName:      p.FrameName,
			FrameID:        p.FrameID,
			ResolvedNodeID: p.NodeID,
			Hierarchy:      p.Hierarchy,
			ThreadID:       c.Thread(),
			IsReply:        c.HasParent(),
		}
	}

	e.logger.Debug("enrich: batch annotated",
		slog.Int("comments", len(comments)),
		slog.Int("parents", len(parents)),
		slog.Int("resolved", resolved),
		slog.Int("inherited", inherited),
		slog.Int("unresolved", unresolved))
	return out
}

func (e *Enricher) unresolved() Placement {
	return Placement{FrameName: e.fallback, Hierarchy: []models.AncestorRecord{}}
}

// locate resolves nodeID for one comment. Any resolver failure, including a
// panic, degrades to the fallback placement.
func (e *Enricher) locate(commentID, nodeID string) (p Placement) {
	p = e.unresolved()
	id := nodeID
	p.NodeID = &id

	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("enrich: resolver panicked",
				slog.String("comment_id", commentID),
				slog.String("node_id", nodeID),
				slog.String("panic", fmt.Sprint(r)))
			p = e.unresolved()
			p.NodeID = &id
		}
	}()

	if e.resolver == nil {
		return p
	}
	res, err := e.resolver.Resolve(nodeID)
	if err != nil || res == nil {
		attrs := []any{slog.String("comment_id", commentID), slog.String("node_id", nodeID)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		e.logger.Debug("enrich: anchor unresolved", attrs...)
		return p
	}

	frameID := res.FrameID
	p.FrameName = res.FrameName
	p.FrameID = &frameID
	p.Hierarchy = slices.Clone(res.Hierarchy)
	if p.Hierarchy == nil {
		p.Hierarchy = []models.AncestorRecord{}
	}
	return p
}
