package metadata

import "github.com/spaghettifunk/anima-render/engine/math"

/**
 * @brief A UI vertex in normalized device coordinates.
 */
type UIVertex struct {
	Position math.Vec2
	Texcoord math.Vec2
	Colour   math.Vec4
}

type UICommandKind int

const (
	UICommandPanel UICommandKind = iota
	UICommandText
)

/**
 * @brief One entry of the UI stream. Panels carry position only vertices
 * (Texcoord is ignored); text carries position and texcoord per vertex.
 * Vertices form a triangle list.
 */
type UIRenderCommand struct {
	Kind     UICommandKind
	Vertices []UIVertex
	Colour   Colour
	Atlas    TextureHandle
}

/**
 * @brief Ordered UI draw stream; the order is the z-order.
 */
type UIRenderData struct {
	Commands []UIRenderCommand
}

func (u *UIRenderData) Reset() {
	u.Commands = u.Commands[:0]
}

func (u *UIRenderData) Panel(vertices []UIVertex, colour Colour) {
	u.Commands = append(u.Commands, UIRenderCommand{Kind: UICommandPanel, Vertices: vertices, Colour: colour})
}

func (u *UIRenderData) Text(vertices []UIVertex, colour Colour, atlas TextureHandle) {
	u.Commands = append(u.Commands, UIRenderCommand{Kind: UICommandText, Vertices: vertices, Colour: colour, Atlas: atlas})
}

// NDCQuad returns the two triangles covering a rectangle.
func NDCQuad(min, max math.Vec2, uvMin, uvMax math.Vec2, colour Colour) []UIVertex {
	return []UIVertex{
		{Position: min, Texcoord: uvMin, Colour: colour},
		{Position: math.Vec2{X: max.X, Y: min.Y}, Texcoord: math.Vec2{X: uvMax.X, Y: uvMin.Y}, Colour: colour},
		{Position: max, Texcoord: uvMax, Colour: colour},
		{Position: min, Texcoord: uvMin, Colour: colour},
		{Position: max, Texcoord: uvMax, Colour: colour},
		{Position: math.Vec2{X: min.X, Y: max.Y}, Texcoord: math.Vec2{X: uvMin.X, Y: uvMax.Y}, Colour: colour},
	}
}
