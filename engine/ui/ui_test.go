package ui

import (
	"testing"

	"github.com/fzipp/bmfont"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

var red = metadata.Colour{X: 1, W: 1}

// boxFont lays every rune out as a size x size box with the full atlas.
type boxFont struct{}

func (boxFont) Atlas() metadata.TextureHandle {
	return metadata.TextureHandle{Index: 3, Generation: 1, Kind: metadata.ResourceKindTexture}
}

func (boxFont) LineHeight(size float32) float32 { return size }

func (boxFont) LayoutText(text string, size float32) []metadata.Glyph {
	var out []metadata.Glyph
	for i := range text {
		x := float32(i) * size
		out = append(out, metadata.Glyph{
			Min: math.NewVec2(x, 0), Max: math.NewVec2(x+size, size),
			UVMin: math.NewVec2(0, 0), UVMax: math.NewVec2(1, 1),
		})
	}
	return out
}

func assertVec2(t *testing.T, expected, actual math.Vec2) {
	t.Helper()
	assert.InDelta(t, expected.X, actual.X, 1e-5)
	assert.InDelta(t, expected.Y, actual.Y, 1e-5)
}

func TestTreeAddRemove(t *testing.T) {
	tree := NewTree()
	a, err := tree.Add(tree.Root(), Widget{Kind: WidgetPanel, Name: "a"})
	require.NoError(t, err)
	b, err := tree.Add(tree.Root(), Widget{Kind: WidgetPanel, Name: "b"})
	require.NoError(t, err)
	child, err := tree.Add(a, Widget{Kind: WidgetContainer})
	require.NoError(t, err)

	assert.Equal(t, []NodeID{a, b}, tree.Children(tree.Root()))
	assert.Equal(t, a, tree.Parent(child))
	assert.Equal(t, 4, tree.Len())

	require.NoError(t, tree.Remove(a))
	assert.Equal(t, []NodeID{b}, tree.Children(tree.Root()))
	assert.Equal(t, 2, tree.Len())
	_, ok := tree.Widget(child)
	assert.False(t, ok)

	// freed slots are reused and appended after the remaining siblings
	c, err := tree.Add(tree.Root(), Widget{Kind: WidgetPanel, Name: "c"})
	require.NoError(t, err)
	assert.Equal(t, []NodeID{b, c}, tree.Children(tree.Root()))

	assert.Error(t, tree.Remove(tree.Root()))
	_, err = tree.Add(child, Widget{})
	assert.Error(t, err)
	_, err = tree.Add(tree.Root(), Widget{Kind: WidgetText})
	assert.Error(t, err)
}

func TestResolveAnchors(t *testing.T) {
	parent := Rect{Min: math.NewVec2(100, 100), Max: math.NewVec2(300, 200)}
	tests := []struct {
		name   string
		w      Widget
		expect Rect
	}{
		{"top left", Widget{Size: math.NewVec2(10, 10)}, Rect{math.NewVec2(100, 100), math.NewVec2(110, 110)}},
		{"centre", Widget{Anchor: AnchorCenter, Align: AnchorCenter, Size: math.NewVec2(20, 10)}, Rect{math.NewVec2(190, 145), math.NewVec2(210, 155)}},
		{"bottom right inset", Widget{Anchor: AnchorBottomRight, Align: AnchorBottomRight, Offset: math.NewVec2(-5, -5), Size: math.NewVec2(10, 10)}, Rect{math.NewVec2(285, 185), math.NewVec2(295, 195)}},
		{"fill", Widget{}, parent},
		{"top centre", Widget{Anchor: AnchorTopCenter, Align: AnchorTopCenter, Size: math.NewVec2(50, 0)}, Rect{math.NewVec2(175, 100), math.NewVec2(225, 200)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resolve(&tt.w, parent)
			assertVec2(t, tt.expect.Min, r.Min)
			assertVec2(t, tt.expect.Max, r.Max)
		})
	}
}

func TestLayoutCentredPanel(t *testing.T) {
	tree := NewTree()
	_, err := tree.Add(tree.Root(), Widget{
		Kind: WidgetPanel, Anchor: AnchorCenter, Align: AnchorCenter,
		Size: math.NewVec2(400, 300), Colour: red,
	})
	require.NoError(t, err)

	var out metadata.UIRenderData
	NewLayout().Build(tree, 800, 600, &out)
	require.Len(t, out.Commands, 1)
	cmd := out.Commands[0]
	assert.Equal(t, metadata.UICommandPanel, cmd.Kind)
	assert.Equal(t, red, cmd.Colour)
	require.Len(t, cmd.Vertices, 6)
	assertVec2(t, math.NewVec2(-0.5, -0.5), cmd.Vertices[0].Position)
	assertVec2(t, math.NewVec2(0.5, 0.5), cmd.Vertices[2].Position)
}

func TestLayoutClipsChildrenToParent(t *testing.T) {
	tree := NewTree()
	parent, err := tree.Add(tree.Root(), Widget{Kind: WidgetPanel, Size: math.NewVec2(100, 100)})
	require.NoError(t, err)
	_, err = tree.Add(parent, Widget{Kind: WidgetPanel, Offset: math.NewVec2(50, 50), Size: math.NewVec2(100, 100)})
	require.NoError(t, err)
	_, err = tree.Add(parent, Widget{Kind: WidgetPanel, Offset: math.NewVec2(200, 0), Size: math.NewVec2(10, 10)})
	require.NoError(t, err)

	var out metadata.UIRenderData
	NewLayout().Build(tree, 800, 600, &out)
	// the second child lies outside its parent and is dropped
	require.Len(t, out.Commands, 2)
	child := out.Commands[1].Vertices
	assertVec2(t, math.NewVec2(50.0/800*2-1, 50.0/600*2-1), child[0].Position)
	assertVec2(t, math.NewVec2(100.0/800*2-1, 100.0/600*2-1), child[2].Position)
}

func TestLayoutZOrderAndVisibility(t *testing.T) {
	tree := NewTree()
	a, err := tree.Add(tree.Root(), Widget{Kind: WidgetPanel, Name: "a"})
	require.NoError(t, err)
	_, err = tree.Add(a, Widget{Kind: WidgetText, Name: "b", Text: "hi", FontSize: 16, Font: boxFont{}})
	require.NoError(t, err)
	hidden, err := tree.Add(tree.Root(), Widget{Kind: WidgetContainer, Hidden: true})
	require.NoError(t, err)
	_, err = tree.Add(hidden, Widget{Kind: WidgetPanel})
	require.NoError(t, err)
	_, err = tree.Add(tree.Root(), Widget{Kind: WidgetPanel, Name: "c"})
	require.NoError(t, err)

	var out metadata.UIRenderData
	l := NewLayout()
	l.Build(tree, 640, 480, &out)
	require.Len(t, out.Commands, 3)
	assert.Equal(t, metadata.UICommandPanel, out.Commands[0].Kind)
	assert.Equal(t, metadata.UICommandText, out.Commands[1].Kind)
	assert.Len(t, out.Commands[1].Vertices, 12)
	assert.Equal(t, boxFont{}.Atlas(), out.Commands[1].Atlas)
	assert.Equal(t, metadata.UICommandPanel, out.Commands[2].Kind)

	// a zero sized framebuffer produces nothing
	l.Build(tree, 0, 480, &out)
	assert.Empty(t, out.Commands)
}

func TestLayoutClipsGlyphUVs(t *testing.T) {
	tree := NewTree()
	_, err := tree.Add(tree.Root(), Widget{
		Kind: WidgetText, Text: "ab", FontSize: 10, Font: boxFont{},
		Size: math.NewVec2(5, 20),
	})
	require.NoError(t, err)

	var out metadata.UIRenderData
	NewLayout().Build(tree, 100, 100, &out)
	require.Len(t, out.Commands, 1)
	v := out.Commands[0].Vertices
	// only the left half of the first glyph is visible
	require.Len(t, v, 6)
	assertVec2(t, math.NewVec2(0, 0), v[0].Texcoord)
	assertVec2(t, math.NewVec2(0.5, 1), v[2].Texcoord)
	assertVec2(t, math.NewVec2(-0.9, -0.8), v[2].Position)
}

func testDescriptor() *bmfont.Descriptor {
	return &bmfont.Descriptor{
		Info:   bmfont.Info{Face: "test", Size: 32},
		Common: bmfont.Common{LineHeight: 32, Base: 26, ScaleW: 256, ScaleH: 256},
		Chars: map[rune]bmfont.Char{
			'A': {ID: 'A', X: 10, Y: 20, Width: 16, Height: 20, XOffset: 1, YOffset: 6, XAdvance: 18},
			'V': {ID: 'V', X: 30, Y: 20, Width: 16, Height: 20, XOffset: 1, YOffset: 6, XAdvance: 18},
			' ': {ID: ' ', XAdvance: 8},
		},
		Kerning: map[bmfont.CharPair]bmfont.Kerning{
			{First: 'A', Second: 'V'}: {Amount: -2},
		},
	}
}

func TestBitmapFontLayout(t *testing.T) {
	font, err := NewBitmapFont(testDescriptor(), metadata.TextureHandle{Index: 1, Generation: 1, Kind: metadata.ResourceKindTexture})
	require.NoError(t, err)

	glyphs := font.LayoutText("AV", 32)
	require.Len(t, glyphs, 2)
	assertVec2(t, math.NewVec2(1, 0), glyphs[0].Min)
	assertVec2(t, math.NewVec2(17, 20), glyphs[0].Max)
	assertVec2(t, math.NewVec2(10.0/256, 20.0/256), glyphs[0].UVMin)
	assertVec2(t, math.NewVec2(26.0/256, 40.0/256), glyphs[0].UVMax)
	// kerning pulls V two pixels closer
	assert.InDelta(t, 17, glyphs[1].Min.X, 1e-5)

	half := font.LayoutText("A A\nA", 16)
	require.Len(t, half, 3)
	assert.InDelta(t, 0.5+13, half[1].Min.X, 1e-5)
	assert.InDelta(t, -16, half[2].Min.Y, 1e-5)

	assert.InDelta(t, 13, font.Baseline(16), 1e-5)
	assert.Equal(t, math.NewVec2(36, 64), font.MeasureText("AV\nA", 32))
	assert.Empty(t, font.LayoutText("?", 32))
}

func TestNewBitmapFontValidation(t *testing.T) {
	_, err := NewBitmapFont(nil, metadata.TextureHandle{})
	assert.Error(t, err)
	desc := testDescriptor()
	desc.Common.LineHeight = 0
	_, err = NewBitmapFont(desc, metadata.TextureHandle{})
	assert.Error(t, err)
}
