package hierarchy

import (
	"errors"
	"reflect"
	"testing"

	"github.com/starford/commentmap/internal/apperr"
	"github.com/starford/commentmap/internal/models"
)

type mapTree map[string]models.Node

func (m mapTree) NodeByID(id string) (models.Node, bool) {
	n, ok := m[id]
	return n, ok
}

func sampleTree() mapTree {
	nodes := []models.Node{
		{ID: "0:0", Name: "Document", Type: models.NodeTypeDocument},
		{ID: "0:1", Name: "Page 1", Type: models.NodeTypePage, ParentID: "0:0"},
		{ID: "1:0", Name: "Checkout", Type: models.NodeTypeSection, ParentID: "0:1"},
		{ID: "1:1", Name: "Cart", Type: models.NodeTypeFrame, ParentID: "1:0"},
		{ID: "1:2", Name: "Summary", Type: models.NodeTypeGroup, ParentID: "1:1"},
		{ID: "1:3", Name: "Total", Type: "TEXT", ParentID: "1:2"},
		{ID: "2:0", Name: "Hero", Type: models.NodeTypeFrame, ParentID: "0:1"},
		{ID: "2:1", Name: "Loose shape", Type: "RECTANGLE", ParentID: "0:1"},
	}
	m := make(mapTree, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return m
}

func TestResolve_NestedOrdering(t *testing.T) {
	r := New(sampleTree())
	res, err := r.Resolve("1:3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []models.AncestorRecord{
		{Name: "Checkout", ID: "1:0", Type: models.NodeTypeSection},
		{Name: "Cart", ID: "1:1", Type: models.NodeTypeFrame},
		{Name: "Summary", ID: "1:2", Type: models.NodeTypeGroup},
		{Name: "Total", ID: "1:3", Type: "TEXT"},
	}
	if !reflect.DeepEqual(res.Hierarchy, want) {
		t.Errorf("hierarchy = %+v, want %+v", res.Hierarchy, want)
	}
	if res.FrameName != "Checkout" || res.FrameID != "1:0" {
		t.Errorf("frame = %q/%q, want Checkout/1:0", res.FrameName, res.FrameID)
	}
}

func TestResolve_DirectPageChild(t *testing.T) {
	r := New(sampleTree())
	res, err := r.Resolve("2:0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Hierarchy) != 0 {
		t.Errorf("hierarchy = %+v, want empty", res.Hierarchy)
	}
	if res.Hierarchy == nil {
		t.Error("hierarchy should be an empty slice, not nil")
	}
	if res.FrameName != "Hero" || res.FrameID != "2:0" {
		t.Errorf("frame = %q/%q, want Hero/2:0", res.FrameName, res.FrameID)
	}
}

func TestResolve_LoosePageLevelNodeIsItsOwnFrame(t *testing.T) {
	res, err := New(sampleTree()).Resolve("2:1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.FrameName != "Loose shape" {
		t.Errorf("frameName = %q, want Loose shape", res.FrameName)
	}
}

func TestResolve_OneLevelBelowFrame(t *testing.T) {
	tree := sampleTree()
	tree["2:5"] = models.Node{ID: "2:5", Name: "CTA", Type: "INSTANCE", ParentID: "2:0"}
	res, err := New(tree).Resolve("2:5")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.FrameName != "Hero" {
		t.Errorf("frameName = %q, want Hero", res.FrameName)
	}
	if len(res.Hierarchy) != 2 || res.Hierarchy[1].ID != "2:5" {
		t.Errorf("hierarchy = %+v, want [Hero CTA]", res.Hierarchy)
	}
}

func TestResolve_NotFound(t *testing.T) {
	r := New(sampleTree())
	for _, id := range []string{"nonexistent-id", "", "::"} {
		res, err := r.Resolve(id)
		if !errors.Is(err, apperr.ErrNodeNotFound) {
			t.Errorf("Resolve(%q) err = %v, want ErrNodeNotFound", id, err)
		}
		if res != nil {
			t.Errorf("Resolve(%q) = %+v, want nil", id, res)
		}
	}
}

func TestResolve_NilLookup(t *testing.T) {
	if _, err := New(nil).Resolve("1:1"); !errors.Is(err, apperr.ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestResolve_DanglingParentStopsWalk(t *testing.T) {
	tree := mapTree{
		"5:1": {ID: "5:1", Name: "Orphan frame", Type: models.NodeTypeFrame, ParentID: "gone"},
		"5:2": {ID: "5:2", Name: "Child", Type: "TEXT", ParentID: "5:1"},
	}
	res, err := New(tree).Resolve("5:2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.FrameID != "5:1" {
		t.Errorf("frameId = %q, want 5:1", res.FrameID)
	}
}

func TestResolve_CycleIsNotFound(t *testing.T) {
	tree := mapTree{
		"a": {ID: "a", Name: "A", Type: models.NodeTypeFrame, ParentID: "b"},
		"b": {ID: "b", Name: "B", Type: models.NodeTypeFrame, ParentID: "a"},
	}
	if _, err := New(tree).Resolve("a"); !errors.Is(err, apperr.ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestResolve_DepthBound(t *testing.T) {
	tree := mapTree{
		"0": {ID: "0", Name: "Page", Type: models.NodeTypePage},
		"1": {ID: "1", Name: "F1", Type: models.NodeTypeFrame, ParentID: "0"},
		"2": {ID: "2", Name: "F2", Type: models.NodeTypeFrame, ParentID: "1"},
		"3": {ID: "3", Name: "F3", Type: models.NodeTypeFrame, ParentID: "2"},
		"4": {ID: "4", Name: "Leaf", Type: "TEXT", ParentID: "3"},
	}
	if _, err := New(tree, WithMaxDepth(2)).Resolve("4"); !errors.Is(err, apperr.ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
	if _, err := New(tree, WithMaxDepth(3)).Resolve("4"); err != nil {
		t.Errorf("depth 3 should resolve: %v", err)
	}
}

func TestResolve_PanickingLookup(t *testing.T) {
	lookup := LookupFunc(func(id string) (models.Node, bool) {
		panic("boom")
	})
	res, err := New(lookup).Resolve("1:1")
	if !errors.Is(err, apperr.ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
	if res != nil {
		t.Errorf("res = %+v, want nil", res)
	}
}

func TestResolve_CanvasTypedPage(t *testing.T) {
	tree := mapTree{
		"0:1": {ID: "0:1", Name: "Page", Type: models.NodeTypeCanvas},
		"3:0": {ID: "3:0", Name: "Onboarding", Type: models.NodeTypeFrame, ParentID: "0:1"},
		"3:1": {ID: "3:1", Name: "Step", Type: "TEXT", ParentID: "3:0"},
	}
	res, err := New(tree).Resolve("3:1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.FrameName != "Onboarding" || len(res.Hierarchy) != 2 {
		t.Errorf("res = %+v", res)
	}
}
