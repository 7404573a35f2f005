package metadata

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	FaceCullModeNone FaceCullMode = iota
	FaceCullModeFront
	FaceCullModeBack
	FaceCullModeFrontAndBack
)

type PolygonMode int

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
)

/** @brief Blend equation of a pipeline. */
type BlendMode int

const (
	BlendModeNone BlendMode = iota
	/** @brief src*alpha + dst*(1-alpha). */
	BlendModeAlpha
	/** @brief src*alpha + dst. */
	BlendModeAdditive
)

type DepthState struct {
	Test  bool
	Write bool
}

type DepthBias struct {
	Enabled  bool
	Constant float32
	Slope    float32
}

/**
 * @brief Orders pipelines into passes. The order of the values is the
 * order in which the passes are recorded.
 */
type RenderPriority int

const (
	PriorityOpaque RenderPriority = iota
	PriorityMasked
	PriorityTransparent
	PriorityBillboard
	PriorityWorldText
	PriorityOverlay

	// OpaqueMax is the highest priority still recorded in the opaque pass.
	OpaqueMax = PriorityOpaque
)

/** @brief A render pass bucket of the queue. */
type Pass int

const (
	PassOpaque Pass = iota
	PassMasked
	PassTransparent
	PassBillboard
	PassWorldText
	PassUIOverlay
	PassCount
)

func (p Pass) String() string {
	switch p {
	case PassOpaque:
		return "opaque"
	case PassMasked:
		return "masked"
	case PassTransparent:
		return "transparent"
	case PassBillboard:
		return "billboard"
	case PassWorldText:
		return "world-text"
	case PassUIOverlay:
		return "ui-overlay"
	}
	return "unknown"
}

// Pass returns the pass a priority is recorded in.
func (p RenderPriority) Pass() Pass {
	if p < PriorityOpaque {
		return PassOpaque
	}
	if p > PriorityOverlay {
		return PassUIOverlay
	}
	return Pass(p)
}

/** @brief Built-in pipeline families materials pick from. */
type PipelineKind int

const (
	PipelineStandardPBR PipelineKind = iota
	PipelineUnlit
	PipelineTransparent
	PipelineBillboard
	PipelineBillboardAdditive
	PipelineText
	PipelineTextAdditive
	PipelineUIPanel
	PipelineUIText
)

func (k PipelineKind) String() string {
	switch k {
	case PipelineStandardPBR:
		return "standard_pbr"
	case PipelineUnlit:
		return "unlit"
	case PipelineTransparent:
		return "transparent"
	case PipelineBillboard:
		return "billboard"
	case PipelineBillboardAdditive:
		return "billboard_additive"
	case PipelineText:
		return "text"
	case PipelineTextAdditive:
		return "text_additive"
	case PipelineUIPanel:
		return "ui_panel"
	case PipelineUIText:
		return "ui_text"
	}
	return "unknown"
}

/**
 * @brief A fixed combination of shaders and fixed-function state. Immutable.
 */
type PipelineVariant struct {
	Name           string
	Kind           PipelineKind
	VertexShader   string
	FragmentShader string
	Depth          DepthState
	Blend          BlendMode
	CullMode       FaceCullMode
	PolygonMode    PolygonMode
	DepthBias      DepthBias
	Priority       RenderPriority
	Layout         VertexLayout
	/** @brief Whether the pipeline reads per-instance data from binding 1. */
	Instanced bool
	/** @brief Number of combined image samplers in the material set. */
	Samplers int
}

/**
 * @brief A GPU resident pipeline.
 */
type Pipeline struct {
	Variant PipelineVariant
	ID      PipelineID
}

// DefaultPipelineVariants returns the variants created at startup, one per kind.
func DefaultPipelineVariants() []PipelineVariant {
	return []PipelineVariant{
		{
			Name: "standard_pbr", Kind: PipelineStandardPBR,
			VertexShader: "standard.vert", FragmentShader: "standard.frag",
			Depth: DepthState{Test: true, Write: true}, CullMode: FaceCullModeBack,
			Priority: PriorityOpaque, Layout: VertexLayoutStandard, Instanced: true, Samplers: 1,
		},
		{
			Name: "unlit", Kind: PipelineUnlit,
			VertexShader: "standard.vert", FragmentShader: "unlit.frag",
			Depth: DepthState{Test: true, Write: true}, CullMode: FaceCullModeBack,
			Priority: PriorityOpaque, Layout: VertexLayoutStandard, Instanced: true, Samplers: 1,
		},
		{
			Name: "transparent", Kind: PipelineTransparent,
			VertexShader: "standard.vert", FragmentShader: "standard.frag",
			Depth: DepthState{Test: true}, Blend: BlendModeAlpha, CullMode: FaceCullModeNone,
			Priority: PriorityTransparent, Layout: VertexLayoutStandard, Instanced: true, Samplers: 1,
		},
		{
			Name: "billboard", Kind: PipelineBillboard,
			VertexShader: "billboard.vert", FragmentShader: "billboard.frag",
			Depth: DepthState{Test: true}, Blend: BlendModeAlpha, CullMode: FaceCullModeNone,
			Priority: PriorityBillboard, Layout: VertexLayoutStandard, Instanced: true, Samplers: 1,
		},
		{
			Name: "billboard_additive", Kind: PipelineBillboardAdditive,
			VertexShader: "billboard.vert", FragmentShader: "billboard.frag",
			Depth: DepthState{Test: true}, Blend: BlendModeAdditive, CullMode: FaceCullModeNone,
			Priority: PriorityBillboard, Layout: VertexLayoutStandard, Instanced: true, Samplers: 1,
		},
		{
			Name: "text", Kind: PipelineText,
			VertexShader: "billboard.vert", FragmentShader: "text.frag",
			Depth: DepthState{Test: true, Write: true}, CullMode: FaceCullModeNone,
			Priority: PriorityWorldText, Layout: VertexLayoutStandard, Instanced: true, Samplers: 1,
		},
		{
			Name: "text_additive", Kind: PipelineTextAdditive,
			VertexShader: "billboard.vert", FragmentShader: "text.frag",
			Depth: DepthState{Test: true}, Blend: BlendModeAdditive, CullMode: FaceCullModeNone,
			Priority: PriorityWorldText, Layout: VertexLayoutStandard, Instanced: true, Samplers: 1,
		},
		{
			Name: "ui_panel", Kind: PipelineUIPanel,
			VertexShader: "ui.vert", FragmentShader: "ui_panel.frag",
			Blend: BlendModeAlpha, CullMode: FaceCullModeNone,
			Priority: PriorityOverlay, Layout: VertexLayoutUI,
		},
		{
			Name: "ui_text", Kind: PipelineUIText,
			VertexShader: "ui.vert", FragmentShader: "ui_text.frag",
			Blend: BlendModeAlpha, CullMode: FaceCullModeNone,
			Priority: PriorityOverlay, Layout: VertexLayoutUI, Samplers: 1,
		},
	}
}
