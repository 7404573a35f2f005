package renderer

import (
	"unsafe"

	"github.com/chewxy/math32"

	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

/**
 * @brief One light as the shaders read it (std140, four vec4).
 */
type LightUniform struct {
	/** @brief xyz position, w light type. */
	PositionType math.Vec4
	/** @brief xyz direction, w range. */
	DirectionRange math.Vec4
	/** @brief rgb colour, a intensity. */
	ColourIntensity math.Vec4
	/** @brief x cos(inner), y cos(outer). */
	Cone math.Vec4
}

/**
 * @brief The set 0 uniform block shared by every pipeline. The layout
 * matches `GlobalUniforms` in the shaders under assets/shaders.
 */
type GlobalUniforms struct {
	View           math.Mat4
	Projection     math.Mat4
	CameraPosition math.Vec4
	/** @brief rgb ambient colour, a intensity. */
	Ambient    math.Vec4
	LightCount uint32
	_          [3]uint32
	Lights     [metadata.MaxLights]LightUniform
}

// the block must fit the per-slot uniform buffer
var _ [metadata.GlobalUniformSize - unsafe.Sizeof(GlobalUniforms{})]byte

/**
 * @brief Fills the uniform block for a frame. Lights beyond maxLights (and
 * beyond the compile time bound) are ignored; callers select them first.
 */
func (g *GlobalUniforms) Pack(cam *metadata.Camera, lights []metadata.Light, ambient metadata.Colour, maxLights int) {
	*g = GlobalUniforms{
		View:           cam.View,
		Projection:     cam.Projection,
		CameraPosition: cam.Position.ToVec4(1),
		Ambient:        ambient,
	}
	n := max(0, min(len(lights), maxLights, metadata.MaxLights))
	for i := 0; i < n; i++ {
		l := &lights[i]
		g.Lights[i] = LightUniform{
			PositionType:    l.Position.ToVec4(float32(l.Type)),
			DirectionRange:  l.Direction.ToVec4(l.Range),
			ColourIntensity: l.Colour.ToVec4(l.Intensity),
		}
		if l.Type == metadata.LightSpot {
			g.Lights[i].Cone = math.NewVec4(math32.Cos(l.Inner), math32.Cos(l.Outer), 0, 0)
		}
	}
	g.LightCount = uint32(n)
}

// Bytes returns the block as it is copied into the uniform buffer.
func (g *GlobalUniforms) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(g)), unsafe.Sizeof(*g))
}
