// Package models defines the domain types for commentmap.
package models

// Node type tags the resolver distinguishes. The set is open; anything not
// listed here is treated as a generic container or leaf.
const (
	NodeTypeDocument = "DOCUMENT"
	NodeTypePage     = "PAGE"
	NodeTypeCanvas   = "CANVAS" // pages are tagged CANVAS in REST file exports
	NodeTypeFrame    = "FRAME"
	NodeTypeSection  = "SECTION"
	NodeTypeGroup    = "GROUP"
)

// Node is one element of the design document tree.
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	ParentID string `json:"parent_id,omitempty"`
}

// HasParent reports whether the node references a parent.
func (n Node) HasParent() bool {
	return n.ParentID != ""
}

// IsPage reports whether the node is a page.
func (n Node) IsPage() bool {
	return n.Type == NodeTypePage || n.Type == NodeTypeCanvas
}

// Record snapshots the node as an AncestorRecord.
func (n Node) Record() AncestorRecord {
	return AncestorRecord{Name: n.Name, ID: n.ID, Type: n.Type}
}

// AncestorRecord is one container on the path from an anchor node up to,
// but not including, its owning page.
type AncestorRecord struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Type string `json:"type"`
}

// HierarchyResult is the resolved position of a node in the document.
// Hierarchy is ordered outermost container first.
type HierarchyResult struct {
	FrameName string           `json:"frameName"`
	FrameID   string           `json:"frameId"`
	Hierarchy []AncestorRecord `json:"hierarchy"`
}
