package renderer

import (
	"encoding/binary"
	"errors"
	gomath "math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/headless"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-render/engine/systems"
)

var clearBlue = metadata.Colour{X: 0.1, Y: 0.2, Z: 0.6, W: 1}

type fixture struct {
	r      *Renderer
	be     *headless.Backend
	rs     *systems.ResourceSystem
	window *headless.Window

	cube        metadata.MeshHandle
	sphere      metadata.MeshHandle
	opaque      metadata.MaterialHandle
	transparent metadata.MaterialHandle
}

func newFixture(t *testing.T, frames, maxLights int) *fixture {
	t.Helper()
	f := &fixture{be: headless.New(), window: headless.NewWindow(800, 600)}
	require.NoError(t, f.be.Initialize(f.window, metadata.BackendConfig{
		Width: 800, Height: 600, FramesInFlight: frames, MaxInstances: 1024, MaxUIVertices: 1024,
	}))
	var err error
	f.rs, err = systems.NewResourceSystem(systems.ResourceSystemConfig{FramesInFlight: frames, MaxMaterials: 16}, f.be, nil)
	require.NoError(t, err)
	require.NoError(t, f.rs.Initialize())
	f.r = New(RendererConfig{
		MaxLights: maxLights, ClearColour: clearBlue, MaxInstances: 1024, MaxUIVertices: 1024,
	}, f.be, f.window, f.rs)

	v, i := systems.GenerateCube(1, 1, 1, 1, 1)
	f.cube, err = f.rs.UploadGeometry("cube", v, i)
	require.NoError(t, err)
	v, i = systems.GenerateSphere(0.5, 8, 12)
	f.sphere, err = f.rs.UploadGeometry("sphere", v, i)
	require.NoError(t, err)
	params := metadata.DefaultMaterialParams()
	f.opaque, err = f.rs.CreateMaterial(metadata.MaterialDescriptor{Name: "opaque", Pipeline: metadata.PipelineStandardPBR, Params: params})
	require.NoError(t, err)
	f.transparent, err = f.rs.CreateMaterial(metadata.MaterialDescriptor{
		Name: "glass", Pipeline: metadata.PipelineTransparent, Alpha: metadata.AlphaBlended, Params: params,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) frame(eye math.Vec3) *metadata.RenderFrameData {
	return &metadata.RenderFrameData{
		Camera: metadata.NewPerspectiveCamera(eye, math.NewVec3Zero(), math.DegToRad(60), 800.0/600.0, 0.1, 100),
	}
}

func (f *fixture) object(t *testing.T, mesh metadata.MeshHandle, material metadata.MaterialHandle, pos math.Vec3) metadata.RenderableObject {
	t.Helper()
	m, err := f.rs.Mesh(mesh)
	require.NoError(t, err)
	model := math.NewMat4Translation(pos)
	return metadata.RenderableObject{Mesh: mesh, Material: material, Transform: model, WorldAABB: m.LocalAABB.Transform(model)}
}

func (f *fixture) pipelineID(t *testing.T, kind metadata.PipelineKind) metadata.PipelineID {
	t.Helper()
	h, ok := f.rs.BuiltinPipeline(kind)
	require.True(t, ok)
	p, err := f.rs.Pipeline(h)
	require.NoError(t, err)
	return p.ID
}

func ops(cmds []headless.Command, op headless.Op) []headless.Command {
	var out []headless.Command
	for _, c := range cmds {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func float32At(data []byte, offset int) float32 {
	return gomath.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
}

func TestRenderEmptyScene(t *testing.T) {
	f := newFixture(t, 2, 0)
	stats, err := f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	require.NoError(t, err)

	assert.Zero(t, stats.DrawCalls)
	assert.Equal(t, uint64(0), stats.Frame)
	assert.Equal(t, 1, f.be.Submits)
	assert.Equal(t, 1, f.be.Presents)

	cmds := f.be.LastFrame()
	require.Len(t, cmds, 3)
	assert.Equal(t, headless.OpBeginRenderPass, cmds[0].Op)
	assert.Equal(t, clearBlue, cmds[0].Clear)
	assert.Equal(t, headless.OpBindDescriptorSet, cmds[1].Op)
	assert.Equal(t, uint32(0), cmds[1].Set)
	assert.Equal(t, headless.OpEndRenderPass, cmds[2].Op)
}

func TestRenderSingleCube(t *testing.T) {
	f := newFixture(t, 2, 0)
	data := f.frame(math.NewVec3(0, 0, 10))
	data.Renderables = append(data.Renderables, f.object(t, f.cube, f.opaque, math.NewVec3(1, 2, 0)))

	stats, err := f.r.RenderFrame(data)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DrawCalls)
	assert.Equal(t, 1, stats.Instances)

	draws := ops(f.be.LastFrame(), headless.OpDrawIndexed)
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(36), draws[0].Count)
	assert.Equal(t, uint32(1), draws[0].InstanceCount)

	// the model matrix is the first instance; its translation sits in row 3
	instances := f.be.BufferData(f.be.FrameResources(0).Instances)
	assert.Equal(t, float32(1), float32At(instances, 12*4))
	assert.Equal(t, float32(2), float32At(instances, 13*4))
}

func TestRenderHundredSpheresInOneDraw(t *testing.T) {
	f := newFixture(t, 2, 0)
	data := f.frame(math.NewVec3(0, 0, 30))
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			pos := math.NewVec3(float32(x)-4.5, float32(y)-4.5, 0)
			data.Renderables = append(data.Renderables, f.object(t, f.sphere, f.opaque, pos))
		}
	}
	stats, err := f.r.RenderFrame(data)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DrawCalls)
	assert.Equal(t, 1, stats.MeshBinds)
	assert.Zero(t, stats.Culled)

	draws := ops(f.be.LastFrame(), headless.OpDrawIndexed)
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(100), draws[0].InstanceCount)
	assert.Equal(t, uint32(0), draws[0].FirstInstance)
}

func TestRenderMixedOpaqueAndTransparent(t *testing.T) {
	f := newFixture(t, 2, 0)
	sphere, err := f.rs.Mesh(f.sphere)
	require.NoError(t, err)

	data := f.frame(math.NewVec3(0, 0, 10))
	data.Renderables = append(data.Renderables,
		f.object(t, f.cube, f.transparent, math.NewVec3(1, 0, 3)),
		f.object(t, f.sphere, f.transparent, math.NewVec3(0, 0, 0)),
		f.object(t, f.cube, f.opaque, math.NewVec3(-3, 0, 0)),
		f.object(t, f.cube, f.transparent, math.NewVec3(-1, 0, -5)),
	)
	stats, err := f.r.RenderFrame(data)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.DrawCalls)
	assert.Equal(t, 2, stats.PipelineBinds)

	cmds := f.be.LastFrame()
	pipelines := ops(cmds, headless.OpBindPipeline)
	require.Len(t, pipelines, 2)
	assert.Equal(t, f.pipelineID(t, metadata.PipelineStandardPBR), pipelines[0].Pipeline)
	assert.Equal(t, f.pipelineID(t, metadata.PipelineTransparent), pipelines[1].Pipeline)

	// opaque first, then transparent far to near
	var counts []uint32
	for _, d := range ops(cmds, headless.OpDrawIndexed) {
		counts = append(counts, d.Count)
	}
	assert.Equal(t, []uint32{36, 36, sphere.IndexCount, 36}, counts)
}

func TestRenderUIAfter3D(t *testing.T) {
	f := newFixture(t, 2, 0)
	data := f.frame(math.NewVec3(0, 0, 10))
	data.Renderables = append(data.Renderables, f.object(t, f.cube, f.opaque, math.NewVec3Zero()))
	red := metadata.Colour{X: 1, W: 1}
	data.UI.Panel(metadata.NDCQuad(math.NewVec2(-0.5, -0.5), math.NewVec2(0.5, 0.5), math.Vec2{}, math.Vec2{}, red), red)

	stats, err := f.r.RenderFrame(data)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DrawCalls)

	cmds := f.be.LastFrame()
	lastIndexed, lastDraw, lastPipeline := -1, -1, -1
	for i, c := range cmds {
		switch c.Op {
		case headless.OpDrawIndexed:
			lastIndexed = i
		case headless.OpDraw:
			lastDraw = i
			assert.Equal(t, uint32(6), c.Count)
		case headless.OpBindPipeline:
			lastPipeline = i
		}
	}
	require.NotEqual(t, -1, lastDraw)
	assert.Greater(t, lastDraw, lastIndexed)
	assert.Equal(t, f.pipelineID(t, metadata.PipelineUIPanel), cmds[lastPipeline].Pipeline)

	ui := f.be.BufferData(f.be.FrameResources(0).UIVertices)
	stride := int(unsafe.Sizeof(metadata.UIVertex{}))
	assert.Equal(t, float32(-0.5), float32At(ui, 0))
	// colour follows position and texcoord
	assert.Equal(t, float32(1), float32At(ui, 16))
	assert.Equal(t, float32(0.5), float32At(ui, 2*stride))
}

func TestRenderResizeBetweenFrames(t *testing.T) {
	f := newFixture(t, 2, 0)
	_, err := f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	require.NoError(t, err)

	f.window.Resize(1024, 768)
	f.r.Resize(1024, 768)
	stats, err := f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	require.NoError(t, err)
	assert.True(t, stats.Recreated)
	assert.Equal(t, 1, f.be.Recreations)
	w, h := f.be.SwapchainExtent()
	assert.Equal(t, uint32(1024), w)
	assert.Equal(t, uint32(768), h)

	stats, err = f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	require.NoError(t, err)
	assert.False(t, stats.Recreated)
}

func TestRenderOutOfDateSwapchain(t *testing.T) {
	f := newFixture(t, 2, 0)

	f.be.FailPresent = core.NewError(core.KindSwapchainOutOfDate, core.StagePresent, nil)
	_, err := f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	require.NoError(t, err)
	assert.True(t, f.r.Synchronizer().RecreatePending())

	stats, err := f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	require.NoError(t, err)
	assert.True(t, stats.Recreated)

	f.be.FailAcquire = core.NewError(core.KindSwapchainOutOfDate, core.StageAcquire, nil)
	frame := f.r.Synchronizer().Frame()
	stats, err = f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	assert.True(t, errors.Is(err, core.ErrSwapchainOutOfDate))
	assert.True(t, errors.Is(err, core.ErrFrameDropped))
	assert.True(t, stats.Recreated)
	assert.Equal(t, frame, f.r.Synchronizer().Frame())
	assert.Equal(t, 2, f.be.Recreations)

	_, err = f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	require.NoError(t, err)
}

func TestRenderFramesInFlightBound(t *testing.T) {
	for _, frames := range []int{1, 2, 3} {
		f := newFixture(t, frames, 0)
		for i := 0; i < 10; i++ {
			data := f.frame(math.NewVec3(0, 0, 10))
			data.Renderables = append(data.Renderables, f.object(t, f.cube, f.opaque, math.NewVec3Zero()))
			stats, err := f.r.RenderFrame(data)
			require.NoError(t, err)
			assert.Equal(t, uint64(i), stats.Frame)
		}
		assert.Equal(t, frames, f.be.MaxOutstanding, "frames in flight %d", frames)
		assert.Equal(t, int64(9-frames), f.r.Synchronizer().Completed())
	}
}

func TestRenderCapsLights(t *testing.T) {
	f := newFixture(t, 2, 4)
	data := f.frame(math.NewVec3(0, 0, 10))
	for i := 0; i < 10; i++ {
		data.Lights = append(data.Lights, metadata.NewPointLight(math.NewVec3(float32(10-i), 0, 10), math.NewVec3One(), 1, 20))
	}
	stats, err := f.r.RenderFrame(data)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Lights)
	assert.Len(t, data.Lights, 10)

	globals := f.be.BufferData(f.be.FrameResources(0).Globals)
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(globals[160:]))
	// nearest light first
	assert.Equal(t, float32(1), float32At(globals, 176))
	assert.Equal(t, float32(metadata.LightPoint), float32At(globals, 176+12))
}

func TestRenderUploadsLightsInPriorityOrder(t *testing.T) {
	f := newFixture(t, 2, 0)
	data := f.frame(math.NewVec3(0, 0, 10))
	data.Lights = []metadata.Light{
		metadata.NewPointLight(math.NewVec3(50, 0, 0), math.NewVec3One(), 1, 100),
		metadata.NewPointLight(math.NewVec3(1, 0, 0), math.NewVec3One(), 1, 100),
		metadata.NewDirectionalLight(math.NewVec3(0, -1, 0), math.NewVec3One(), 1),
	}
	stats, err := f.r.RenderFrame(data)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Lights)

	globals := f.be.BufferData(f.be.FrameResources(0).Globals)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(globals[160:]))
	const stride = 64
	assert.Equal(t, float32(metadata.LightDirectional), float32At(globals, 176+12))
	assert.Equal(t, float32(1), float32At(globals, 176+stride))
	assert.Equal(t, float32(50), float32At(globals, 176+2*stride))
}

func TestExecutorLogsStaleHandlesPerFrame(t *testing.T) {
	f := newFixture(t, 1, 0)
	require.NoError(t, f.rs.Release(f.cube.Handle()))
	pe := NewPassExecutor(f.be, f.rs, clearBlue, 4)
	pipeline, ok := f.rs.BuiltinPipeline(metadata.PipelineStandardPBR)
	require.True(t, ok)
	queue := &metadata.RenderQueue{Batches: []metadata.RenderBatch{
		{Pass: metadata.PassOpaque, Pipeline: pipeline, Material: f.opaque, Mesh: f.cube, InstanceCount: 1},
		{Pass: metadata.PassOpaque, Pipeline: pipeline, Material: f.opaque, Mesh: f.cube, InstanceCount: 1},
	}}
	cam := f.frame(math.NewVec3(0, 0, 10)).Camera

	for frame := uint64(0); frame < 2; frame++ {
		require.NoError(t, f.be.Recorder(0).Begin())
		stats, err := pe.Execute(FrameToken{Frame: frame}, &cam, nil, metadata.Colour{}, queue)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Skipped)
		assert.Len(t, pe.logged, 1, "frame %d", frame)
	}

	require.NoError(t, f.be.Recorder(0).Begin())
	_, err := pe.Execute(FrameToken{Frame: 2}, &cam, nil, metadata.Colour{}, &metadata.RenderQueue{})
	require.NoError(t, err)
	assert.Empty(t, pe.logged)
}

func TestRenderMinimizedDropsFrame(t *testing.T) {
	f := newFixture(t, 2, 0)
	f.window.SetMinimized(true)
	_, err := f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	assert.True(t, errors.Is(err, core.ErrFrameDropped))
	assert.Zero(t, f.be.Submits)

	f.window.SetMinimized(false)
	_, err = f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	require.NoError(t, err)
	assert.Equal(t, 1, f.be.Submits)
}

func TestRenderRecordingFailureDropsFrame(t *testing.T) {
	f := newFixture(t, 2, 0)
	rec := f.be.Recorder(f.r.NextSlot()).(*headless.Recorder)
	rec.FailEnd = errors.New("command buffer lost")

	_, err := f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	assert.True(t, errors.Is(err, core.ErrFrameDropped))
	assert.Equal(t, core.StageRecord, err.(*core.EngineError).Stage)
	assert.Zero(t, f.be.Submits)
	assert.Equal(t, 1, f.be.ManualSignals)

	for i := 0; i < 3; i++ {
		_, err = f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.be.Submits)
}

func TestRenderShutdown(t *testing.T) {
	f := newFixture(t, 2, 0)
	_, err := f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	require.NoError(t, err)

	f.r.RequestShutdown()
	_, err = f.r.RenderFrame(f.frame(math.NewVec3(0, 0, 10)))
	assert.True(t, errors.Is(err, core.ErrShuttingDown))
	assert.True(t, core.IsFatal(err))

	require.NoError(t, f.r.Shutdown())
	assert.Zero(t, f.be.Outstanding())
	buffers, textures, pipelines, sets := f.be.Live()
	assert.Zero(t, buffers)
	assert.Zero(t, textures)
	assert.Zero(t, pipelines)
	assert.Zero(t, sets)
}
