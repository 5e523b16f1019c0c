package enrich

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/starford/commentmap/internal/apperr"
	"github.com/starford/commentmap/internal/hierarchy"
	"github.com/starford/commentmap/internal/models"
)

func strp(s string) *string { return &s }

func anchored(id, nodeID string) models.RawComment {
	return models.RawComment{
		ID:         id,
		Message:    "comment " + id,
		ClientMeta: &models.ClientMeta{NodeID: strp(nodeID)},
	}
}

func reply(id, parentID string) models.RawComment {
	return models.RawComment{ID: id, Message: "reply " + id, ParentID: strp(parentID)}
}

// heroResolver resolves "10:1" under the Hero frame and nothing else.
func heroResolver() ResolverFunc {
	return func(nodeID string) (*models.HierarchyResult, error) {
		if nodeID != "10:1" {
			return nil, apperr.ErrNodeNotFound
		}
		return &models.HierarchyResult{
			FrameName: "Hero",
			FrameID:   "10:0",
			Hierarchy: []models.AncestorRecord{{Name: "Hero", ID: "10:0", Type: "FRAME"}},
		}, nil
	}
}

func TestEnrich_EndToEndExample(t *testing.T) {
	comments := []models.RawComment{
		{ID: "1", Message: "A", ClientMeta: &models.ClientMeta{NodeID: strp("10:1")}},
		{ID: "2", Message: "B", ParentID: strp("1")},
	}
	out := New(heroResolver()).Enrich(comments, comments)

	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].FrameName != "Hero" || out[0].ThreadID != "1" || out[0].IsReply {
		t.Errorf("comment 1 = %+v", out[0])
	}
	if out[1].FrameName != "Hero" || out[1].ThreadID != "1" || !out[1].IsReply {
		t.Errorf("comment 2 = %+v", out[1])
	}
	if out[1].Message != "B" {
		t.Errorf("message = %q, want B", out[1].Message)
	}
}

func TestEnrich_ReplyInheritsParentPlacement(t *testing.T) {
	comments := []models.RawComment{anchored("1", "10:1"), reply("2", "1")}
	out := New(heroResolver()).Enrich(comments, nil)

	parent, child := out[0], out[1]
	if child.FrameName != parent.FrameName {
		t.Errorf("frameName = %q, want %q", child.FrameName, parent.FrameName)
	}
	if child.FrameID == nil || *child.FrameID != *parent.FrameID {
		t.Errorf("frameId = %v, want %v", child.FrameID, *parent.FrameID)
	}
	if child.ResolvedNodeID == nil || *child.ResolvedNodeID != "10:1" {
		t.Errorf("resolvedNodeId = %v, want 10:1", child.ResolvedNodeID)
	}
	if !reflect.DeepEqual(child.Hierarchy, parent.Hierarchy) {
		t.Errorf("hierarchy = %+v, want %+v", child.Hierarchy, parent.Hierarchy)
	}
}

func TestEnrich_ReplyBeforeParent(t *testing.T) {
	comments := []models.RawComment{reply("2", "1"), anchored("1", "10:1")}
	out := New(heroResolver()).Enrich(comments, nil)
	if out[0].FrameName != "Hero" {
		t.Errorf("reply listed before its parent got %q, want Hero", out[0].FrameName)
	}
}

func TestEnrich_ParentOnlyInContext(t *testing.T) {
	ctx := []models.RawComment{anchored("1", "10:1"), reply("2", "1")}
	batch := []models.RawComment{reply("2", "1")}

	out := New(heroResolver()).Enrich(batch, ctx)
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	if out[0].FrameName != "Hero" || out[0].ThreadID != "1" {
		t.Errorf("out = %+v", out[0])
	}
}

func TestEnrich_FallbackWhenParentAbsent(t *testing.T) {
	comments := []models.RawComment{reply("2", "missing")}
	out := New(heroResolver()).Enrich(comments, nil)

	got := out[0]
	if got.FrameName != models.DefaultFallbackLabel {
		t.Errorf("frameName = %q, want %q", got.FrameName, models.DefaultFallbackLabel)
	}
	if got.FrameID != nil || got.ResolvedNodeID != nil {
		t.Errorf("frameId/resolvedNodeId = %v/%v, want nil", got.FrameID, got.ResolvedNodeID)
	}
	if got.Hierarchy == nil || len(got.Hierarchy) != 0 {
		t.Errorf("hierarchy = %#v, want empty", got.Hierarchy)
	}
	if got.ThreadID != "missing" || !got.IsReply {
		t.Errorf("thread = %q reply = %v", got.ThreadID, got.IsReply)
	}
}

func TestEnrich_FallbackWhenParentAnchorless(t *testing.T) {
	comments := []models.RawComment{{ID: "1", Message: "canvas pin"}, reply("2", "1")}
	out := New(heroResolver()).Enrich(comments, nil)
	for i, c := range out {
		if c.FrameName != models.DefaultFallbackLabel || c.FrameID != nil {
			t.Errorf("out[%d] = %+v, want fallback", i, c)
		}
	}
}

func TestEnrich_MissingNode(t *testing.T) {
	comments := []models.RawComment{anchored("1", "nonexistent-id"), reply("2", "1")}
	out := New(heroResolver(), WithFallbackLabel("Unsorted")).Enrich(comments, nil)

	for i, c := range out {
		if c.FrameName != "Unsorted" {
			t.Errorf("out[%d].frameName = %q, want Unsorted", i, c.FrameName)
		}
		if c.FrameID != nil {
			t.Errorf("out[%d].frameId = %v, want nil", i, *c.FrameID)
		}
		if c.ResolvedNodeID == nil || *c.ResolvedNodeID != "nonexistent-id" {
			t.Errorf("out[%d].resolvedNodeId = %v, want the anchor id", i, c.ResolvedNodeID)
		}
	}
}

func TestEnrich_NodeOffsetFallback(t *testing.T) {
	c := models.RawComment{
		ID:         "1",
		ClientMeta: &models.ClientMeta{NodeOffset: &models.NodeOffset{NodeID: strp("10:1")}},
	}
	out := New(heroResolver()).Enrich([]models.RawComment{c}, nil)
	if out[0].FrameName != "Hero" {
		t.Errorf("frameName = %q, want Hero", out[0].FrameName)
	}
}

func TestEnrich_DirectNodeIDWinsOverOffset(t *testing.T) {
	c := models.RawComment{
		ID: "1",
		ClientMeta: &models.ClientMeta{
			NodeID:     strp("10:1"),
			NodeOffset: &models.NodeOffset{NodeID: strp("nonexistent-id")},
		},
	}
	out := New(heroResolver()).Enrich([]models.RawComment{c}, nil)
	if out[0].FrameName != "Hero" {
		t.Errorf("frameName = %q, want Hero", out[0].FrameName)
	}
}

func TestEnrich_ReplyWithOwnAnchorResolvesItself(t *testing.T) {
	ctx := []models.RawComment{anchored("1", "nonexistent-id")}
	r := reply("2", "1")
	r.ClientMeta = &models.ClientMeta{NodeID: strp("10:1")}

	out := New(heroResolver()).Enrich([]models.RawComment{r}, ctx)
	if out[0].FrameName != "Hero" || out[0].ThreadID != "1" || !out[0].IsReply {
		t.Errorf("out = %+v", out[0])
	}
}

func TestEnrich_EmptyParentIDIsTopLevel(t *testing.T) {
	c := anchored("7", "10:1")
	c.ParentID = strp("")
	out := New(heroResolver()).Enrich([]models.RawComment{c}, nil)
	if out[0].IsReply || out[0].ThreadID != "7" {
		t.Errorf("thread = %q reply = %v", out[0].ThreadID, out[0].IsReply)
	}
}

func TestEnrich_Invariants(t *testing.T) {
	comments := []models.RawComment{
		anchored("1", "10:1"),
		reply("2", "1"),
		{ID: "3"},
		reply("4", "3"),
		anchored("5", "nope"),
		reply("6", "5"),
		reply("7", "elsewhere"),
	}
	out := New(heroResolver()).Enrich(comments, nil)

	if len(out) != len(comments) {
		t.Fatalf("len = %d, want %d", len(out), len(comments))
	}
	for i, c := range comments {
		got := out[i]
		if got.ID != c.ID {
			t.Errorf("out[%d].id = %q, want %q", i, got.ID, c.ID)
		}
		wantThread := c.ID
		if c.ParentID != nil {
			wantThread = *c.ParentID
		}
		if got.ThreadID != wantThread {
			t.Errorf("out[%d].threadId = %q, want %q", i, got.ThreadID, wantThread)
		}
		if got.IsReply != (c.ParentID != nil) {
			t.Errorf("out[%d].isReply = %v", i, got.IsReply)
		}
	}
}

func TestEnrich_DoesNotMutateInput(t *testing.T) {
	comments := []models.RawComment{anchored("1", "10:1"), reply("2", "1")}
	before, _ := json.Marshal(comments)

	out := New(heroResolver()).Enrich(comments, nil)
	out[1].Hierarchy[0].Name = "changed"

	after, _ := json.Marshal(comments)
	if string(before) != string(after) {
		t.Errorf("input mutated:\nbefore %s\nafter  %s", before, after)
	}
	if out[0].Hierarchy[0].Name != "Hero" {
		t.Error("reply hierarchy aliases parent hierarchy")
	}
}

func TestEnrich_PanickingResolverDegrades(t *testing.T) {
	boom := ResolverFunc(func(string) (*models.HierarchyResult, error) {
		panic("lookup exploded")
	})
	comments := []models.RawComment{anchored("1", "10:1"), anchored("2", "10:2")}
	out := New(boom).Enrich(comments, nil)
	if len(out) != 2 {
		t.Fatalf("len = %d", len(out))
	}
	for _, c := range out {
		if c.FrameName != models.DefaultFallbackLabel {
			t.Errorf("frameName = %q", c.FrameName)
		}
	}
}

func TestBuildParentMap_OmitsAnchorlessAndReplies(t *testing.T) {
	ctx := []models.RawComment{
		anchored("1", "10:1"),
		{ID: "2"},
		reply("3", "1"),
		anchored("4", "nope"),
	}
	pm := New(heroResolver()).BuildParentMap(ctx)

	if len(pm) != 2 {
		t.Fatalf("len(parents) = %d, want 2", len(pm))
	}
	if !pm["1"].Resolved() {
		t.Error("parent 1 should be resolved")
	}
	p4, ok := pm["4"]
	if !ok {
		t.Fatal("unresolvable anchored parent should still have an entry")
	}
	if p4.Resolved() || p4.FrameName != models.DefaultFallbackLabel {
		t.Errorf("parent 4 = %+v", p4)
	}
}

func TestEnrich_WithHierarchyResolver(t *testing.T) {
	tree := hierarchy.LookupFunc(func(id string) (models.Node, bool) {
		nodes := map[string]models.Node{
			"0:1": {ID: "0:1", Name: "Page", Type: models.NodeTypePage},
			"1:0": {ID: "1:0", Name: "Section", Type: models.NodeTypeSection, ParentID: "0:1"},
			"1:1": {ID: "1:1", Name: "Frame", Type: models.NodeTypeFrame, ParentID: "1:0"},
			"1:2": {ID: "1:2", Name: "Group", Type: models.NodeTypeGroup, ParentID: "1:1"},
			"1:3": {ID: "1:3", Name: "Button", Type: "INSTANCE", ParentID: "1:2"},
		}
		n, ok := nodes[id]
		return n, ok
	})
	out := New(hierarchy.New(tree)).Enrich([]models.RawComment{anchored("1", "1:3"), reply("2", "1")}, nil)

	want := []string{"1:0", "1:1", "1:2", "1:3"}
	for _, c := range out {
		if c.FrameName != "Section" {
			t.Errorf("frameName = %q, want Section", c.FrameName)
		}
		var ids []string
		for _, a := range c.Hierarchy {
			ids = append(ids, a.ID)
		}
		if !reflect.DeepEqual(ids, want) {
			t.Errorf("hierarchy ids = %v, want %v", ids, want)
		}
	}
}

func TestEnrich_JSONShape(t *testing.T) {
	out := New(heroResolver()).Enrich([]models.RawComment{reply("2", "gone")}, nil)
	data, err := json.Marshal(out[0])
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "message", "parent_id", "frameName", "frameId", "resolvedNodeId", "hierarchy", "threadId", "isReply"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if m["frameId"] != nil {
		t.Errorf("frameId = %v, want null", m["frameId"])
	}
	if h, ok := m["hierarchy"].([]any); !ok || len(h) != 0 {
		t.Errorf("hierarchy = %v, want []", m["hierarchy"])
	}
}

func TestEnrich_NilResolver(t *testing.T) {
	out := New(nil).Enrich([]models.RawComment{anchored("1", "10:1")}, nil)
	if out[0].FrameName != models.DefaultFallbackLabel {
		t.Errorf("frameName = %q", out[0].FrameName)
	}
}

func TestResolverFunc_PropagatesError(t *testing.T) {
	f := ResolverFunc(func(string) (*models.HierarchyResult, error) { return nil, apperr.ErrNodeNotFound })
	if _, err := f.Resolve("x"); !errors.Is(err, apperr.ErrNodeNotFound) {
		t.Errorf("err = %v", err)
	}
}
