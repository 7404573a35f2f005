package metadata

import "github.com/spaghettifunk/anima-render/engine/math"

// MaxLights is the compile time bound on lights uploaded per frame.
const MaxLights = 16

// Colour is an RGBA colour in linear space.
type Colour = math.Vec4

/**
 * @brief The camera a frame is rendered from.
 */
type Camera struct {
	View       math.Mat4
	Projection math.Mat4
	Position   math.Vec3
	Near       float32
	Far        float32
	Aspect     float32
	/** @brief Overrides the configured clear colour when set. */
	ClearColor *Colour
}

// NewPerspectiveCamera builds a camera at position looking at target.
func NewPerspectiveCamera(position, target math.Vec3, fovRadians, aspect, near, far float32) Camera {
	return Camera{
		View:       math.NewMat4LookAt(position, target, math.NewVec3Up()),
		Projection: math.NewMat4Perspective(fovRadians, aspect, near, far),
		Position:   position,
		Near:       near,
		Far:        far,
		Aspect:     aspect,
	}
}

func (c *Camera) ViewProjection() math.Mat4 {
	return c.View.Mul(c.Projection)
}

func (c *Camera) Frustum() math.Frustum {
	return math.NewFrustumFromMatrix(c.ViewProjection())
}

// Depth returns the distance of p in front of the camera along the view axis.
func (c *Camera) Depth(p math.Vec3) float32 {
	return -p.Transform(c.View).Z
}

// Right and Up return the camera axes in world space.
func (c *Camera) Right() math.Vec3 {
	return math.Vec3{X: c.View.Data[0], Y: c.View.Data[4], Z: c.View.Data[8]}
}

func (c *Camera) Up() math.Vec3 {
	return math.Vec3{X: c.View.Data[1], Y: c.View.Data[5], Z: c.View.Data[9]}
}

func (c *Camera) Forward() math.Vec3 {
	return math.Vec3{X: -c.View.Data[2], Y: -c.View.Data[6], Z: -c.View.Data[10]}
}

type LightType int

const (
	LightDirectional LightType = iota
	LightPoint
	LightSpot
)

/**
 * @brief A light. Only the fields of its Type are meaningful:
 * Directional uses Direction; Point uses Position and Range; Spot uses all,
 * with Inner and Outer cone angles in radians.
 */
type Light struct {
	Type      LightType
	Position  math.Vec3
	Direction math.Vec3
	Colour    math.Vec3
	Intensity float32
	Range     float32
	Inner     float32
	Outer     float32
}

func NewDirectionalLight(direction, colour math.Vec3, intensity float32) Light {
	return Light{Type: LightDirectional, Direction: direction.Normalize(), Colour: colour, Intensity: intensity}
}

func NewPointLight(position, colour math.Vec3, intensity, rng float32) Light {
	return Light{Type: LightPoint, Position: position, Colour: colour, Intensity: intensity, Range: rng}
}

func NewSpotLight(position, direction, colour math.Vec3, intensity, rng, inner, outer float32) Light {
	return Light{
		Type: LightSpot, Position: position, Direction: direction.Normalize(), Colour: colour,
		Intensity: intensity, Range: rng, Inner: inner, Outer: outer,
	}
}

/**
 * @brief One drawable entity of the frame. Lives for one frame.
 */
type RenderableObject struct {
	Entity    uint64
	Mesh      MeshHandle
	Material  MaterialHandle
	Transform math.Mat4
	WorldAABB math.Extents3D
	Tint      Colour
}

type BillboardOrientation int

const (
	/** @brief Faces the camera plane. */
	OrientScreenAligned BillboardOrientation = iota
	/** @brief Stretched along the screen projection of the velocity. */
	OrientVelocityAligned
	/** @brief Rotates around Axis only, facing the camera as much as it can. */
	OrientWorldAxisAligned
)

/**
 * @brief A camera facing quad. Lives for one frame.
 */
type BillboardQuad struct {
	Position    math.Vec3
	Size        math.Vec2
	Colour      Colour
	Texture     TextureHandle
	Orientation BillboardOrientation
	Axis        math.Vec3
	Velocity    math.Vec3
	Blend       BlendMode
	UV          math.Vec4
}

/**
 * @brief A glyph laid out by a font atlas, in units of the requested size
 * with the origin on the baseline of the first character.
 */
type Glyph struct {
	Min   math.Vec2
	Max   math.Vec2
	UVMin math.Vec2
	UVMax math.Vec2
}

// GlyphSource lays out strings against a font atlas texture.
type GlyphSource interface {
	Atlas() TextureHandle
	LayoutText(text string, size float32) []Glyph
	LineHeight(size float32) float32
}

/**
 * @brief Text placed in the world, drawn as camera facing glyph quads.
 */
type WorldText struct {
	Position math.Vec3
	Text     string
	Height   float32
	Colour   Colour
	Font     GlyphSource
	Additive bool
}
