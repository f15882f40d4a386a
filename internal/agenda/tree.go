// Package agenda holds the discussion-point tree for one meeting: a mutable,
// depth-capped tree of agenda items with an id index for O(1) lookup.
//
// A Tree is exclusively owned by one meeting session and is not safe for
// concurrent use on its own; the session serializes access.
package agenda

import (
	"errors"

	"github.com/google/uuid"

	"oneloop/internal/domain"
)

var (
	ErrNotFound      = errors.New("discussion point not found")
	ErrDepthExceeded = errors.New("maximum nesting depth exceeded")
)

// DefaultMaxDepth counts levels including the root.
const DefaultMaxDepth = 4

type node struct {
	point    domain.DiscussionPoint
	parent   *node
	children []*node
	depth    int
}

type Tree struct {
	maxDepth int
	roots    []*node
	index    map[string]*node
}

func NewTree(maxDepth int) *Tree {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}
	return &Tree{maxDepth: maxDepth, index: map[string]*node{}}
}

// Load rebuilds a tree from persisted points. Points nested deeper than the
// depth cap are kept as loaded; the cap applies to new children only.
func Load(points []domain.DiscussionPoint, maxDepth int) *Tree {
	t := NewTree(maxDepth)
	for _, p := range points {
		t.attach(p, nil)
	}
	return t
}

func (t *Tree) attach(p domain.DiscussionPoint, parent *node) {
	n := &node{parent: parent, depth: 1}
	if parent != nil {
		n.depth = parent.depth + 1
	}
	n.point = p
	children := p.Children
	n.point.Children = nil
	if parent == nil {
		t.roots = append(t.roots, n)
	} else {
		parent.children = append(parent.children, n)
	}
	if n.point.ID == "" {
		n.point.ID = uuid.New().String()
	}
	t.index[n.point.ID] = n
	for _, c := range children {
		t.attach(c, n)
	}
}

// AddRoot appends a new root point and returns its id.
func (t *Tree) AddRoot(text string) string {
	n := &node{depth: 1, point: domain.DiscussionPoint{
		ID:                 uuid.New().String(),
		Text:               text,
		AddedDuringMeeting: true,
	}}
	t.roots = append(t.roots, n)
	t.index[n.point.ID] = n
	return n.point.ID
}

// AddChild appends a child under parentID and returns the new id.
func (t *Tree) AddChild(parentID, text string) (string, error) {
	parent, ok := t.index[parentID]
	if !ok {
		return "", ErrNotFound
	}
	if parent.depth >= t.maxDepth {
		return "", ErrDepthExceeded
	}
	n := &node{parent: parent, depth: parent.depth + 1, point: domain.DiscussionPoint{
		ID:   uuid.New().String(),
		Text: text,
	}}
	parent.children = append(parent.children, n)
	t.index[n.point.ID] = n
	return n.point.ID, nil
}

// ToggleCompleted flips completion of one point; children are unaffected.
func (t *Tree) ToggleCompleted(id string) error {
	n, ok := t.index[id]
	if !ok {
		return ErrNotFound
	}
	n.point.Completed = !n.point.Completed
	return nil
}

// UpdateText replaces the text verbatim, empty string included.
func (t *Tree) UpdateText(id, text string) error {
	n, ok := t.index[id]
	if !ok {
		return ErrNotFound
	}
	n.point.Text = text
	return nil
}

// LinkRoadmap attaches a roadmap item reference to a point; an empty id
// clears the link.
func (t *Tree) LinkRoadmap(id, roadmapID string) error {
	n, ok := t.index[id]
	if !ok {
		return ErrNotFound
	}
	if roadmapID == "" {
		n.point.LinkedRoadmapID = nil
	} else {
		n.point.LinkedRoadmapID = &roadmapID
	}
	return nil
}

// Remove deletes the point and its whole subtree. Removing an id twice fails
// the second time with ErrNotFound, which callers treat as non-fatal.
func (t *Tree) Remove(id string) error {
	n, ok := t.index[id]
	if !ok {
		return ErrNotFound
	}
	t.dropFromIndex(n)
	if n.parent == nil {
		t.roots = removeNode(t.roots, n)
	} else {
		n.parent.children = removeNode(n.parent.children, n)
	}
	return nil
}

func removeNode(list []*node, target *node) []*node {
	for i, n := range list {
		if n == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (t *Tree) dropFromIndex(n *node) {
	delete(t.index, n.point.ID)
	for _, c := range n.children {
		t.dropFromIndex(c)
	}
}

// Find returns a snapshot of the point including its subtree.
func (t *Tree) Find(id string) (domain.DiscussionPoint, bool) {
	n, ok := t.index[id]
	if !ok {
		return domain.DiscussionPoint{}, false
	}
	return snapshot(n), true
}

// SeedStandardQuestions appends the canned questions as standard-question
// roots. Seeding is idempotent per meeting: if any existing root text already
// matches one of the questions, nothing is added. Reports whether it seeded.
func (t *Tree) SeedStandardQuestions(questions []string) bool {
	canned := map[string]bool{}
	for _, q := range questions {
		canned[q] = true
	}
	for _, r := range t.roots {
		if canned[r.point.Text] {
			return false
		}
	}
	for _, q := range questions {
		n := &node{depth: 1, point: domain.DiscussionPoint{
			ID:                 uuid.New().String(),
			Text:               q,
			IsStandardQuestion: true,
		}}
		t.roots = append(t.roots, n)
		t.index[n.point.ID] = n
	}
	return true
}

func snapshot(n *node) domain.DiscussionPoint {
	p := n.point
	p.Children = make([]domain.DiscussionPoint, 0, len(n.children))
	for _, c := range n.children {
		p.Children = append(p.Children, snapshot(c))
	}
	if len(p.Children) == 0 {
		p.Children = nil
	}
	return p
}

// Points returns the nested persisted form: roots in insertion order, each
// carrying its subtree.
func (t *Tree) Points() []domain.DiscussionPoint {
	points := make([]domain.DiscussionPoint, 0, len(t.roots))
	for _, r := range t.roots {
		points = append(points, snapshot(r))
	}
	return points
}

// FlatPoint is one row of the pre-order rendering sequence.
type FlatPoint struct {
	Point domain.DiscussionPoint
	Depth int
}

// Flatten returns the whole tree pre-order, depth-first, preserving sibling
// insertion order. Children are omitted from each row's Point.
func (t *Tree) Flatten() []FlatPoint {
	var out []FlatPoint
	var walk func(n *node)
	walk = func(n *node) {
		p := n.point
		p.Children = nil
		out = append(out, FlatPoint{Point: p, Depth: n.depth})
		for _, c := range n.children {
			walk(c)
		}
	}
	for _, r := range t.roots {
		walk(r)
	}
	return out
}

// CountCompleted counts completed points across the entire tree, nested
// children included.
func (t *Tree) CountCompleted() int {
	count := 0
	for _, n := range t.index {
		if n.point.Completed {
			count++
		}
	}
	return count
}

// CountCompletedStandard counts completed standard-question roots.
func (t *Tree) CountCompletedStandard() int {
	count := 0
	for _, r := range t.roots {
		if r.point.IsStandardQuestion && r.point.Completed {
			count++
		}
	}
	return count
}

// Len reports the total number of points in the tree.
func (t *Tree) Len() int {
	return len(t.index)
}
