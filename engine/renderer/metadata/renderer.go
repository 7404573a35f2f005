package metadata

import (
	"time"

	"github.com/spaghettifunk/anima-render/engine/math"
)

// MaxFramesInFlight bounds the size of the frame slot ring.
const MaxFramesInFlight = 3

// RenderableSource yields renderables lazily. Returning false from yield stops the walk.
type RenderableSource func(yield func(RenderableObject) bool)

/**
 * @brief The per-frame root aggregate handed to the renderer. It is borrowed:
 * the caller keeps it alive until RenderFrame returns.
 */
type RenderFrameData struct {
	Camera      Camera
	Lights      []Light
	Renderables []RenderableObject
	/** @brief Optional; visited after Renderables when set. */
	Source     RenderableSource
	Billboards []BillboardQuad
	WorldTexts []WorldText
	UI         UIRenderData
	/** @brief Ambient light colour, rgb + intensity. */
	Ambient Colour
}

// Reset truncates every list, keeping the backing arrays for reuse.
func (d *RenderFrameData) Reset() {
	d.Lights = d.Lights[:0]
	d.Renderables = d.Renderables[:0]
	d.Source = nil
	d.Billboards = d.Billboards[:0]
	d.WorldTexts = d.WorldTexts[:0]
	d.UI.Reset()
}

// EachRenderable visits the list, then the source.
func (d *RenderFrameData) EachRenderable(fn func(RenderableObject) bool) {
	for _, r := range d.Renderables {
		if !fn(r) {
			return
		}
	}
	if d.Source != nil {
		d.Source(fn)
	}
}

/**
 * @brief Per-instance data read by instanced pipelines from vertex binding 1.
 */
type InstanceData struct {
	Model  math.Mat4
	Colour math.Vec4
	/** @brief Texture rectangle: u0, v0, u1, v1. */
	UVRect math.Vec4
}

var FullUVRect = math.Vec4{X: 0, Y: 0, Z: 1, W: 1}

/**
 * @brief A run of draws sharing pipeline, material and mesh, issued as one
 * instanced call. UI batches use FirstVertex/VertexCount instead of a mesh.
 */
type RenderBatch struct {
	Pass          Pass
	Pipeline      PipelineHandle
	Material      MaterialHandle
	Mesh          MeshHandle
	FirstInstance uint32
	InstanceCount uint32
	Instances     []InstanceData
	FirstVertex   uint32
	VertexCount   uint32
}

/**
 * @brief The ordered output of the queue builder.
 */
type RenderQueue struct {
	Batches    []RenderBatch
	Instances  []InstanceData
	UIVertices []UIVertex
	Culled     int
	Dropped    int
}

func (q *RenderQueue) Reset() {
	q.Batches = q.Batches[:0]
	q.Instances = q.Instances[:0]
	q.UIVertices = q.UIVertices[:0]
	q.Culled = 0
	q.Dropped = 0
}

// PassBatches returns the batches of one pass, in order.
func (q *RenderQueue) PassBatches(p Pass) []RenderBatch {
	var out []RenderBatch
	for _, b := range q.Batches {
		if b.Pass == p {
			out = append(out, b)
		}
	}
	return out
}

/**
 * @brief Diagnostics returned for every rendered frame.
 */
type FrameStats struct {
	Frame         uint64
	Batches       int
	DrawCalls     int
	Instances     int
	PipelineBinds int
	MaterialBinds int
	MeshBinds     int
	Culled        int
	Dropped       int
	Lights        int
	CPUTime       time.Duration
	AverageMS     float64
	FPS           float64
	Recreated     bool
}
