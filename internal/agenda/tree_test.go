package agenda

import (
	"errors"
	"testing"

	"pgregory.net/rapid"

	"oneloop/internal/domain"
)

var questions = []string{
	"What important meetings are happening this week?",
	"Is there anything that needs to be shared with the wider team?",
	"Where do you need my help/assistance?",
}

func TestSeedStandardQuestionsIdempotent(t *testing.T) {
	tr := NewTree(DefaultMaxDepth)
	if !tr.SeedStandardQuestions(questions) {
		t.Fatal("first seed should add questions")
	}
	if tr.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tr.Len())
	}
	if tr.SeedStandardQuestions(questions) {
		t.Fatal("second seed should be a no-op")
	}
	if tr.Len() != 3 {
		t.Fatalf("Len after reseed = %d, want 3", tr.Len())
	}
	for _, fp := range tr.Flatten() {
		if !fp.Point.IsStandardQuestion {
			t.Errorf("point %q not marked as standard question", fp.Point.Text)
		}
	}
}

func TestSeedSkippedWhenAnyQuestionPresent(t *testing.T) {
	tr := NewTree(DefaultMaxDepth)
	tr.AddRoot(questions[1])
	if tr.SeedStandardQuestions(questions) {
		t.Fatal("seed should be skipped when a root already matches a question")
	}
	if tr.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tr.Len())
	}
}

func TestAddChildDepthCap(t *testing.T) {
	tr := NewTree(DefaultMaxDepth)
	id := tr.AddRoot("root")
	for i := 0; i < DefaultMaxDepth-1; i++ {
		next, err := tr.AddChild(id, "child")
		if err != nil {
			t.Fatalf("AddChild at depth %d: %v", i+2, err)
		}
		id = next
	}
	if _, err := tr.AddChild(id, "too deep"); !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("AddChild past cap = %v, want ErrDepthExceeded", err)
	}
}

func TestAddChildUnknownParent(t *testing.T) {
	tr := NewTree(DefaultMaxDepth)
	if _, err := tr.AddChild("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AddChild = %v, want ErrNotFound", err)
	}
}

func TestRemoveSubtree(t *testing.T) {
	tr := NewTree(DefaultMaxDepth)
	root := tr.AddRoot("root")
	mid, _ := tr.AddChild(root, "mid")
	leaf, _ := tr.AddChild(mid, "leaf")
	sibling, _ := tr.AddChild(root, "sibling")

	if err := tr.Remove(mid); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	for _, id := range []string{mid, leaf} {
		if _, ok := tr.Find(id); ok {
			t.Errorf("point %s still findable after subtree removal", id)
		}
	}
	if _, ok := tr.Find(sibling); !ok {
		t.Error("sibling lost by unrelated removal")
	}
	if err := tr.Remove(mid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove = %v, want ErrNotFound", err)
	}
	if tr.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tr.Len())
	}
}

func TestFlattenPreOrder(t *testing.T) {
	tr := NewTree(DefaultMaxDepth)
	a := tr.AddRoot("a")
	b := tr.AddRoot("b")
	a1, _ := tr.AddChild(a, "a1")
	a2, _ := tr.AddChild(a, "a2")
	a1x, _ := tr.AddChild(a1, "a1x")

	want := []string{a, a1, a1x, a2, b}
	flat := tr.Flatten()
	if len(flat) != len(want) {
		t.Fatalf("Flatten returned %d points, want %d", len(flat), len(want))
	}
	for i, id := range want {
		if flat[i].Point.ID != id {
			t.Errorf("flat[%d].ID = %s, want %s", i, flat[i].Point.ID, id)
		}
	}
	depths := []int{1, 2, 3, 2, 1}
	for i, d := range depths {
		if flat[i].Depth != d {
			t.Errorf("flat[%d].Depth = %d, want %d", i, flat[i].Depth, d)
		}
	}
}

func TestCountCompletedIncludesNested(t *testing.T) {
	tr := NewTree(DefaultMaxDepth)
	root := tr.AddRoot("root")
	child, _ := tr.AddChild(root, "child")
	grand, _ := tr.AddChild(child, "grand")
	other := tr.AddRoot("other")

	for _, id := range []string{root, grand, other} {
		if err := tr.ToggleCompleted(id); err != nil {
			t.Fatalf("toggle %s: %v", id, err)
		}
	}
	if got := tr.CountCompleted(); got != 3 {
		t.Fatalf("CountCompleted = %d, want 3", got)
	}
	if err := tr.ToggleCompleted(grand); err != nil {
		t.Fatal(err)
	}
	if got := tr.CountCompleted(); got != 2 {
		t.Fatalf("CountCompleted after untoggle = %d, want 2", got)
	}
}

func TestUpdateTextVerbatim(t *testing.T) {
	tr := NewTree(DefaultMaxDepth)
	id := tr.AddRoot("original")
	if err := tr.UpdateText(id, ""); err != nil {
		t.Fatalf("UpdateText: %v", err)
	}
	p, _ := tr.Find(id)
	if p.Text != "" {
		t.Fatalf("Text = %q, want empty", p.Text)
	}
}

func TestLoadRebuildsNesting(t *testing.T) {
	points := []domain.DiscussionPoint{
		{ID: "p1", Text: "one", Children: []domain.DiscussionPoint{
			{ID: "p1a", Text: "one-a", Completed: true},
		}},
		{ID: "p2", Text: "two"},
	}
	tr := Load(points, DefaultMaxDepth)
	if tr.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tr.Len())
	}
	p, ok := tr.Find("p1")
	if !ok || len(p.Children) != 1 || p.Children[0].ID != "p1a" {
		t.Fatalf("nested child not restored: %+v", p)
	}
	round := tr.Points()
	if len(round) != 2 || round[0].ID != "p1" || round[1].ID != "p2" {
		t.Fatalf("Points() lost root order: %+v", round)
	}
}

// TestProperty01_FlattenFindsEveryPoint verifies that every added point shows
// up exactly once in the pre-order walk and is findable by id.
func TestProperty01_FlattenFindsEveryPoint(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tr := NewTree(DefaultMaxDepth)
		var ids []string
		n := rapid.IntRange(1, 30).Draw(rt, "num_points")
		for i := 0; i < n; i++ {
			if len(ids) == 0 || rapid.Bool().Draw(rt, "as_root") {
				ids = append(ids, tr.AddRoot(rapid.StringMatching(`[a-z ]{1,12}`).Draw(rt, "text")))
				continue
			}
			parent := rapid.SampledFrom(ids).Draw(rt, "parent")
			id, err := tr.AddChild(parent, rapid.StringMatching(`[a-z ]{1,12}`).Draw(rt, "text"))
			if errors.Is(err, ErrDepthExceeded) {
				continue
			}
			if err != nil {
				rt.Fatalf("AddChild: %v", err)
			}
			ids = append(ids, id)
		}

		seen := map[string]int{}
		for _, fp := range tr.Flatten() {
			seen[fp.Point.ID]++
		}
		if len(seen) != len(ids) {
			rt.Fatalf("Flatten has %d unique points, added %d", len(seen), len(ids))
		}
		for _, id := range ids {
			if seen[id] != 1 {
				rt.Fatalf("point %s appears %d times in Flatten", id, seen[id])
			}
			if _, ok := tr.Find(id); !ok {
				rt.Fatalf("point %s not findable", id)
			}
		}
	})
}

// TestProperty02_ToggleTwiceRestoresCompletion verifies toggle is an
// involution for every point.
func TestProperty02_ToggleTwiceRestoresCompletion(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tr := NewTree(DefaultMaxDepth)
		var ids []string
		n := rapid.IntRange(1, 15).Draw(rt, "num_points")
		for i := 0; i < n; i++ {
			id := tr.AddRoot("p")
			if rapid.Bool().Draw(rt, "pre_toggle") {
				_ = tr.ToggleCompleted(id)
			}
			ids = append(ids, id)
		}
		before := map[string]bool{}
		for _, fp := range tr.Flatten() {
			before[fp.Point.ID] = fp.Point.Completed
		}
		target := rapid.SampledFrom(ids).Draw(rt, "target")
		_ = tr.ToggleCompleted(target)
		_ = tr.ToggleCompleted(target)
		for _, fp := range tr.Flatten() {
			if fp.Point.Completed != before[fp.Point.ID] {
				rt.Fatalf("point %s completion changed by double toggle", fp.Point.ID)
			}
		}
	})
}

// TestProperty03_RemoveDropsWholeSubtree verifies that removal never leaves
// orphaned descendants in the index.
func TestProperty03_RemoveDropsWholeSubtree(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tr := NewTree(DefaultMaxDepth)
		root := tr.AddRoot("root")
		ids := []string{root}
		n := rapid.IntRange(1, 20).Draw(rt, "num_points")
		for i := 0; i < n; i++ {
			parent := rapid.SampledFrom(ids).Draw(rt, "parent")
			id, err := tr.AddChild(parent, "c")
			if errors.Is(err, ErrDepthExceeded) {
				continue
			}
			ids = append(ids, id)
		}
		target := rapid.SampledFrom(ids).Draw(rt, "target")
		sub, _ := tr.Find(target)
		removed := collectIDs(sub)
		if err := tr.Remove(target); err != nil {
			rt.Fatalf("Remove: %v", err)
		}
		for _, id := range removed {
			if _, ok := tr.Find(id); ok {
				rt.Fatalf("descendant %s survived subtree removal", id)
			}
		}
		if tr.Len() != len(ids)-len(removed) {
			rt.Fatalf("Len = %d, want %d", tr.Len(), len(ids)-len(removed))
		}
	})
}

func collectIDs(p domain.DiscussionPoint) []string {
	out := []string{p.ID}
	for _, c := range p.Children {
		out = append(out, collectIDs(c)...)
	}
	return out
}
