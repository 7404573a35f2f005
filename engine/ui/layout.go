package ui

import (
	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

// Rect is an axis aligned rectangle in framebuffer pixels, y down.
type Rect struct {
	Min math.Vec2
	Max math.Vec2
}

func (r Rect) Empty() bool {
	return r.Max.X <= r.Min.X || r.Max.Y <= r.Min.Y
}

func (r Rect) Size() math.Vec2 {
	return r.Max.Sub(r.Min)
}

func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		Min: math.NewVec2(math.Max(r.Min.X, o.Min.X), math.Max(r.Min.Y, o.Min.Y)),
		Max: math.NewVec2(math.Min(r.Max.X, o.Max.X), math.Min(r.Max.Y, o.Max.Y)),
	}
}

// baseliner is implemented by fonts that know where the baseline sits below
// the top of a line.
type baseliner interface {
	Baseline(size float32) float32
}

/**
 * @brief Resolves a widget tree into the UI draw stream of a frame. Vertex
 * storage is owned by the layout and reused; the commands it emits are valid
 * until the next Build.
 */
type Layout struct {
	vertices []metadata.UIVertex
	width    float32
	height   float32
}

func NewLayout() *Layout {
	return &Layout{}
}

/**
 * @brief Walks the tree in pre-order and appends one command per visible
 * panel or text widget to out. The order of the commands is the z-order.
 *
 * @param t The widget tree.
 * @param width The framebuffer width in pixels.
 * @param height The framebuffer height in pixels.
 * @param out The frame's UI stream; it is reset first.
 */
func (l *Layout) Build(t *Tree, width, height uint32, out *metadata.UIRenderData) {
	out.Reset()
	l.vertices = l.vertices[:0]
	if width == 0 || height == 0 {
		return
	}
	l.width, l.height = float32(width), float32(height)
	screen := Rect{Max: math.NewVec2(l.width, l.height)}
	l.visit(t, t.Root(), screen, screen, out)
}

func (l *Layout) visit(t *Tree, id NodeID, parent, clip Rect, out *metadata.UIRenderData) {
	n := &t.nodes[id]
	w := &n.widget
	if w.Hidden {
		return
	}
	rect := parent
	if id != t.Root() {
		rect = Resolve(w, parent)
	}
	clipped := rect.Intersect(clip)
	if clipped.Empty() {
		return
	}

	switch w.Kind {
	case WidgetPanel:
		l.panel(clipped, w.Colour, out)
	case WidgetText:
		l.text(w, rect, clipped, out)
	}

	for c := n.firstChild; c != InvalidNode; c = t.nodes[c].nextSibling {
		l.visit(t, c, rect, clipped, out)
	}
}

/**
 * @brief Computes the pixel rectangle of a widget inside its parent. The
 * alignment point of the widget lands on the anchor point of the parent,
 * moved by the offset.
 */
func Resolve(w *Widget, parent Rect) Rect {
	size := w.Size
	ps := parent.Size()
	if size.X == 0 {
		size.X = ps.X
	}
	if size.Y == 0 {
		size.Y = ps.Y
	}
	af := w.Anchor.factors()
	pf := w.Align.factors()
	anchor := math.NewVec2(parent.Min.X+af.X*ps.X, parent.Min.Y+af.Y*ps.Y)
	min := anchor.Add(w.Offset).Sub(math.NewVec2(pf.X*size.X, pf.Y*size.Y))
	return Rect{Min: min, Max: min.Add(size)}
}

// ndc maps a pixel position to normalized device coordinates. Vulkan's clip
// space has y pointing down like the framebuffer.
func (l *Layout) ndc(p math.Vec2) math.Vec2 {
	return math.NewVec2(p.X/l.width*2-1, p.Y/l.height*2-1)
}

func (l *Layout) panel(r Rect, colour metadata.Colour, out *metadata.UIRenderData) {
	start := len(l.vertices)
	l.vertices = append(l.vertices, metadata.NDCQuad(l.ndc(r.Min), l.ndc(r.Max), math.Vec2{}, math.Vec2{}, colour)...)
	out.Panel(l.vertices[start:len(l.vertices):len(l.vertices)], colour)
}

func (l *Layout) text(w *Widget, rect, clip Rect, out *metadata.UIRenderData) {
	if w.Text == "" || w.Font == nil {
		return
	}
	size := w.FontSize
	if size <= 0 {
		size = rect.Size().Y
	}
	baseline := w.Font.LineHeight(size)
	if b, ok := w.Font.(baseliner); ok {
		baseline = b.Baseline(size)
	}
	origin := math.NewVec2(rect.Min.X, rect.Min.Y+baseline)

	start := len(l.vertices)
	for _, g := range w.Font.LayoutText(w.Text, size) {
		// glyph coordinates are y up from the baseline
		gr := Rect{
			Min: math.NewVec2(origin.X+g.Min.X, origin.Y-g.Max.Y),
			Max: math.NewVec2(origin.X+g.Max.X, origin.Y-g.Min.Y),
		}
		uvMin, uvMax, ok := clipGlyph(gr, clip, g.UVMin, g.UVMax)
		if !ok {
			continue
		}
		c := gr.Intersect(clip)
		l.vertices = append(l.vertices, metadata.NDCQuad(l.ndc(c.Min), l.ndc(c.Max), uvMin, uvMax, w.Colour)...)
	}
	if len(l.vertices) == start {
		core.LogDebug("ui: text widget '%s' is fully clipped", w.Name)
		return
	}
	out.Text(l.vertices[start:len(l.vertices):len(l.vertices)], w.Colour, w.Font.Atlas())
}

/**
 * @brief Clips a glyph rectangle and moves its texture coordinates by the
 * same fraction so the visible part of the glyph keeps its texels.
 */
func clipGlyph(g, clip Rect, uvMin, uvMax math.Vec2) (math.Vec2, math.Vec2, bool) {
	c := g.Intersect(clip)
	if c.Empty() {
		return math.Vec2{}, math.Vec2{}, false
	}
	size := g.Size()
	du := uvMax.X - uvMin.X
	dv := uvMax.Y - uvMin.Y
	outMin := math.NewVec2(
		uvMin.X+(c.Min.X-g.Min.X)/size.X*du,
		uvMin.Y+(c.Min.Y-g.Min.Y)/size.Y*dv,
	)
	outMax := math.NewVec2(
		uvMax.X-(g.Max.X-c.Max.X)/size.X*du,
		uvMax.Y-(g.Max.Y-c.Max.Y)/size.Y*dv,
	)
	return outMin, outMax, true
}
