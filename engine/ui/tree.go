package ui

import (
	"fmt"

	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

// NodeID indexes a widget in a Tree.
type NodeID int32

const InvalidNode NodeID = -1

type WidgetKind int

const (
	/** @brief Groups children; draws nothing itself. */
	WidgetContainer WidgetKind = iota
	/** @brief A solid coloured rectangle. */
	WidgetPanel
	/** @brief A string laid out with a font atlas. */
	WidgetText
)

/**
 * @brief One of the nine reference points of a rectangle. Used both for the
 * point of the parent a widget is attached to (anchor) and for the point of
 * the widget placed there (alignment).
 */
type Anchor int

const (
	AnchorTopLeft Anchor = iota
	AnchorTopCenter
	AnchorTopRight
	AnchorCenterLeft
	AnchorCenter
	AnchorCenterRight
	AnchorBottomLeft
	AnchorBottomCenter
	AnchorBottomRight
)

// factors returns the relative position of the anchor inside a rectangle.
func (a Anchor) factors() math.Vec2 {
	return math.NewVec2(float32(int(a)%3)*0.5, float32(int(a)/3)*0.5)
}

/**
 * @brief A UI element. Offsets and sizes are in framebuffer pixels, x to the
 * right and y down. A zero size component takes the parent's extent.
 */
type Widget struct {
	Kind   WidgetKind
	Name   string
	Anchor Anchor
	Align  Anchor
	Offset math.Vec2
	Size   math.Vec2
	Colour metadata.Colour
	Hidden bool

	Text     string
	FontSize float32
	Font     metadata.GlyphSource
}

type node struct {
	widget      Widget
	parent      NodeID
	firstChild  NodeID
	lastChild   NodeID
	nextSibling NodeID
	alive       bool
}

/**
 * @brief An arena backed widget tree. Nodes link to their parent, first
 * child and next sibling; sibling order is the draw order.
 */
type Tree struct {
	nodes []node
	free  []NodeID
	root  NodeID
}

// NewTree creates a tree holding a full screen root container.
func NewTree() *Tree {
	t := &Tree{}
	t.root = t.alloc(Widget{Kind: WidgetContainer, Name: "root"}, InvalidNode)
	return t
}

func (t *Tree) Root() NodeID {
	return t.root
}

func (t *Tree) alloc(w Widget, parent NodeID) NodeID {
	n := node{
		widget:      w,
		parent:      parent,
		firstChild:  InvalidNode,
		lastChild:   InvalidNode,
		nextSibling: InvalidNode,
		alive:       true,
	}
	if l := len(t.free); l > 0 {
		id := t.free[l-1]
		t.free = t.free[:l-1]
		t.nodes[id] = n
		return id
	}
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes) && t.nodes[id].alive
}

/**
 * @brief Appends a widget as the last child of parent.
 * @param parent The parent node.
 * @param w The widget.
 * @return The id of the new node.
 */
func (t *Tree) Add(parent NodeID, w Widget) (NodeID, error) {
	if !t.valid(parent) {
		return InvalidNode, fmt.Errorf("ui: parent node %d does not exist", parent)
	}
	if w.Kind == WidgetText && w.Font == nil {
		return InvalidNode, fmt.Errorf("ui: text widget '%s' has no font", w.Name)
	}
	id := t.alloc(w, parent)
	p := &t.nodes[parent]
	if p.lastChild == InvalidNode {
		p.firstChild = id
	} else {
		t.nodes[p.lastChild].nextSibling = id
	}
	p.lastChild = id
	return id, nil
}

// Remove unlinks the node and frees its whole subtree. The root stays.
func (t *Tree) Remove(id NodeID) error {
	if !t.valid(id) || id == t.root {
		return fmt.Errorf("ui: cannot remove node %d", id)
	}
	parent := &t.nodes[t.nodes[id].parent]
	prev := InvalidNode
	for c := parent.firstChild; c != id; c = t.nodes[c].nextSibling {
		prev = c
	}
	next := t.nodes[id].nextSibling
	if prev == InvalidNode {
		parent.firstChild = next
	} else {
		t.nodes[prev].nextSibling = next
	}
	if parent.lastChild == id {
		parent.lastChild = prev
	}
	t.freeSubtree(id)
	return nil
}

func (t *Tree) freeSubtree(id NodeID) {
	for c := t.nodes[id].firstChild; c != InvalidNode; {
		next := t.nodes[c].nextSibling
		t.freeSubtree(c)
		c = next
	}
	t.nodes[id] = node{}
	t.free = append(t.free, id)
}

// Widget returns the widget of id for in-place modification.
func (t *Tree) Widget(id NodeID) (*Widget, bool) {
	if !t.valid(id) {
		return nil, false
	}
	return &t.nodes[id].widget, true
}

func (t *Tree) Parent(id NodeID) NodeID {
	if !t.valid(id) {
		return InvalidNode
	}
	return t.nodes[id].parent
}

// Children returns the children of id in draw order.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.valid(id) {
		return nil
	}
	var out []NodeID
	for c := t.nodes[id].firstChild; c != InvalidNode; c = t.nodes[c].nextSibling {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live nodes, root included.
func (t *Tree) Len() int {
	return len(t.nodes) - len(t.free)
}

/**
 * @brief Visits the tree in pre-order. Returning false from fn skips the
 * subtree of the visited node.
 */
func (t *Tree) Walk(fn func(id NodeID, w *Widget) bool) {
	t.walk(t.root, fn)
}

func (t *Tree) walk(id NodeID, fn func(id NodeID, w *Widget) bool) {
	if !fn(id, &t.nodes[id].widget) {
		return
	}
	for c := t.nodes[id].firstChild; c != InvalidNode; c = t.nodes[c].nextSibling {
		t.walk(c, fn)
	}
}
