package metadata

import "github.com/spaghettifunk/anima-render/engine/math"

/** @brief How a material treats the alpha channel. */
type AlphaMode int

const (
	AlphaOpaque AlphaMode = iota
	/** @brief Fragments below Cutoff are discarded. */
	AlphaMasked
	AlphaBlended
)

func (a AlphaMode) String() string {
	switch a {
	case AlphaOpaque:
		return "opaque"
	case AlphaMasked:
		return "masked"
	case AlphaBlended:
		return "blended"
	}
	return "unknown"
}

// Pass returns the queue bucket the alpha mode alone requires.
func (a AlphaMode) Pass() Pass {
	switch a {
	case AlphaMasked:
		return PassMasked
	case AlphaBlended:
		return PassTransparent
	}
	return PassOpaque
}

/**
 * @brief Per-material constants, laid out for a std140 uniform block.
 */
type MaterialParams struct {
	DiffuseColour math.Vec4
	Emissive      math.Vec4
	Metallic      float32
	Roughness     float32
	AlphaCutoff   float32
	Shininess     float32
}

func DefaultMaterialParams() MaterialParams {
	return MaterialParams{
		DiffuseColour: math.Vec4{X: 1, Y: 1, Z: 1, W: 1},
		Roughness:     0.5,
		AlphaCutoff:   0.5,
		Shininess:     32,
	}
}

/**
 * @brief Everything needed to create a material.
 */
type MaterialDescriptor struct {
	Name     string
	Pipeline PipelineKind
	Alpha    AlphaMode
	Params   MaterialParams
	Textures []TextureHandle
}

/**
 * @brief A GPU resident material.
 */
type Material struct {
	Name      string
	Pipeline  PipelineHandle
	Kind      PipelineKind
	Alpha     AlphaMode
	Params    MaterialParams
	Textures  []TextureHandle
	Set       DescriptorSetID
	UBOSlot   uint32
	UBOOffset uint64
}

// Pass returns the bucket the material is drawn in.
func (m *Material) Pass(priority RenderPriority) Pass {
	p := priority.Pass()
	if a := m.Alpha.Pass(); a > p {
		return a
	}
	return p
}
