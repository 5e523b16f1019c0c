package models

import "encoding/json"

// DefaultFallbackLabel is the frame label given to comments whose anchor
// cannot be resolved.
const DefaultFallbackLabel = "Other"

// User is the author of a comment as reported by the comment source.
type User struct {
	Handle string `json:"handle,omitempty"`
	ImgURL string `json:"img_url,omitempty"`

	src map[string]json.RawMessage
}

var userKeys = []string{"handle", "img_url"}

type userFields User

// UnmarshalJSON keeps the source members alongside the typed fields.
func (u *User) UnmarshalJSON(data []byte) error {
	var f userFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	src, err := members(data)
	if err != nil {
		return err
	}
	f.src = src
	*u = User(f)
	return nil
}

// MarshalJSON writes the typed fields over the members received from the
// source.
func (u User) MarshalJSON() ([]byte, error) {
	return mergeMembers(u.src, userKeys, userFields(u))
}

// NodeOffset pins a comment at an offset inside a node.
type NodeOffset struct {
	NodeID *string  `json:"node_id,omitempty"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
}

// ClientMeta is the placement metadata attached to a comment. Members the
// source sends beyond these fields, such as stable_path, are kept.
type ClientMeta struct {
	NodeID     *string     `json:"node_id,omitempty"`
	NodeOffset *NodeOffset `json:"node_offset,omitempty"`
	X          *float64    `json:"x,omitempty"`
	Y          *float64    `json:"y,omitempty"`

	src map[string]json.RawMessage
}

var clientMetaKeys = []string{"node_id", "node_offset", "x", "y"}

type clientMetaFields ClientMeta

// UnmarshalJSON keeps the source members alongside the typed fields.
func (m *ClientMeta) UnmarshalJSON(data []byte) error {
	var f clientMetaFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	src, err := members(data)
	if err != nil {
		return err
	}
	f.src = src
	*m = ClientMeta(f)
	return nil
}

// MarshalJSON writes the typed fields over the members received from the
// source.
func (m ClientMeta) MarshalJSON() ([]byte, error) {
	return mergeMembers(m.src, clientMetaKeys, clientMetaFields(m))
}

// RawComment is a comment as delivered by the comment source. Field names
// follow the source's wire contract. Encoding a decoded comment reproduces
// every member the source sent, including ones not modelled here, and never
// adds members the source left out.
type RawComment struct {
	ID         string          `json:"id"`
	Message    string          `json:"message,omitempty"`
	CreatedAt  string          `json:"created_at,omitempty"`
	ResolvedAt *string         `json:"resolved_at,omitempty"`
	User       *User           `json:"user,omitempty"`
	ClientMeta *ClientMeta     `json:"client_meta,omitempty"`
	ParentID   *string         `json:"parent_id,omitempty"`
	OrderID    json.RawMessage `json:"order_id,omitempty"`

	src map[string]json.RawMessage
}

var commentKeys = []string{
	"id", "message", "created_at", "resolved_at",
	"user", "client_meta", "parent_id", "order_id",
}

type commentFields RawComment

// UnmarshalJSON keeps the source members alongside the typed fields.
func (c *RawComment) UnmarshalJSON(data []byte) error {
	var f commentFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	src, err := members(data)
	if err != nil {
		return err
	}
	f.src = src
	*c = RawComment(f)
	return nil
}

// MarshalJSON writes the typed fields over the members received from the
// source.
func (c RawComment) MarshalJSON() ([]byte, error) {
	return mergeMembers(c.src, commentKeys, commentFields(c))
}

// AuthorHandle returns the author's handle, or "" when the source sent no
// user.
func (c RawComment) AuthorHandle() string {
	if c.User == nil {
		return ""
	}
	return c.User.Handle
}

// AnchorNodeID returns the node the comment is pinned to. The direct
// client_meta.node_id wins over client_meta.node_offset.node_id.
func (c RawComment) AnchorNodeID() (string, bool) {
	if c.ClientMeta == nil {
		return "", false
	}
	if id := c.ClientMeta.NodeID; id != nil && *id != "" {
		return *id, true
	}
	if off := c.ClientMeta.NodeOffset; off != nil && off.NodeID != nil && *off.NodeID != "" {
		return *off.NodeID, true
	}
	return "", false
}

// HasParent reports whether the comment is a reply. The comment API sends
// an empty parent_id on top-level comments, so empty counts as absent.
func (c RawComment) HasParent() bool {
	return c.ParentID != nil && *c.ParentID != ""
}

// Thread returns the id of the thread the comment belongs to.
func (c RawComment) Thread() string {
	if c.HasParent() {
		return *c.ParentID
	}
	return c.ID
}

// EnrichedComment is a RawComment annotated with its structural context.
// It encodes as the source comment with the enrichment members added.
type EnrichedComment struct {
	RawComment
	FrameName      string           `json:"frameName"`
	FrameID        *string          `json:"frameId"`
	ResolvedNodeID *string          `json:"resolvedNodeId"`
	Hierarchy      []AncestorRecord `json:"hierarchy"`
	ThreadID       string           `json:"threadId"`
	IsReply        bool             `json:"isReply"`
}

// enrichment holds the members EnrichedComment adds to the source comment.
type enrichment struct {
	FrameName      string           `json:"frameName"`
	FrameID        *string          `json:"frameId"`
	ResolvedNodeID *string          `json:"resolvedNodeId"`
	Hierarchy      []AncestorRecord `json:"hierarchy"`
	ThreadID       string           `json:"threadId"`
	IsReply        bool             `json:"isReply"`
}

var enrichmentKeys = []string{"frameName", "frameId", "resolvedNodeId", "hierarchy", "threadId", "isReply"}

// MarshalJSON encodes the source comment and sets the enrichment members on
// top of it.
func (c EnrichedComment) MarshalJSON() ([]byte, error) {
	base, err := c.RawComment.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out, err := members(base)
	if err != nil {
		return nil, err
	}
	extra, err := json.Marshal(enrichment{
		FrameName:      c.FrameName,
		FrameID:        c.FrameID,
		ResolvedNodeID: c.ResolvedNodeID,
		Hierarchy:      c.Hierarchy,
		ThreadID:       c.ThreadID,
		IsReply:        c.IsReply,
	})
	if err != nil {
		return nil, err
	}
	add, err := members(extra)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = make(map[string]json.RawMessage, len(add))
	}
	for k, v := range add {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the enrichment members from the source comment so
// that a stored comment re-encodes exactly as it was written.
func (c *EnrichedComment) UnmarshalJSON(data []byte) error {
	var e enrichment
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	m, err := members(data)
	if err != nil {
		return err
	}
	for _, k := range enrichmentKeys {
		delete(m, k)
	}
	base, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var raw RawComment
	if err := raw.UnmarshalJSON(base); err != nil {
		return err
	}
	*c = EnrichedComment{
		RawComment:     raw,
		FrameName:      e.FrameName,
		FrameID:        e.FrameID,
		ResolvedNodeID: e.ResolvedNodeID,
		Hierarchy:      e.Hierarchy,
		ThreadID:       e.ThreadID,
		IsReply:        e.IsReply,
	}
	return nil
}

// Ungrouped reports whether the comment has no resolved frame.
func (c EnrichedComment) Ungrouped() bool {
	return c.FrameID == nil
}
