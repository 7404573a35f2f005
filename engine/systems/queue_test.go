package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

type queueFixture struct {
	rs          *ResourceSystem
	cube        metadata.MeshHandle
	sphere      metadata.MeshHandle
	opaque      metadata.MaterialHandle
	opaque2     metadata.MaterialHandle
	transparent metadata.MaterialHandle
	camera      metadata.Camera
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	rs, _ := newTestRegistry(t, 2)
	f := &queueFixture{rs: rs}
	var err error

	v, i := GenerateCube(1, 1, 1, 1, 1)
	f.cube, err = rs.UploadGeometry("cube", v, i)
	require.NoError(t, err)
	v, i = GenerateSphere(0.5, 8, 12)
	f.sphere, err = rs.UploadGeometry("sphere", v, i)
	require.NoError(t, err)

	params := metadata.DefaultMaterialParams()
	f.opaque, err = rs.CreateMaterial(metadata.MaterialDescriptor{Name: "a", Pipeline: metadata.PipelineStandardPBR, Params: params})
	require.NoError(t, err)
	f.opaque2, err = rs.CreateMaterial(metadata.MaterialDescriptor{Name: "b", Pipeline: metadata.PipelineStandardPBR, Params: params})
	require.NoError(t, err)
	f.transparent, err = rs.CreateMaterial(metadata.MaterialDescriptor{
		Name: "glass", Pipeline: metadata.PipelineTransparent, Alpha: metadata.AlphaBlended, Params: params,
	})
	require.NoError(t, err)

	f.camera = metadata.NewPerspectiveCamera(math.NewVec3(0, 0, 10), math.NewVec3Zero(), math.DegToRad(60), 1, 0.1, 100)
	return f
}

func (f *queueFixture) object(t *testing.T, mesh metadata.MeshHandle, material metadata.MaterialHandle, pos math.Vec3) metadata.RenderableObject {
	t.Helper()
	m, err := f.rs.Mesh(mesh)
	require.NoError(t, err)
	model := math.NewMat4Translation(pos)
	return metadata.RenderableObject{
		Mesh:      mesh,
		Material:  material,
		Transform: model,
		WorldAABB: m.LocalAABB.Transform(model),
	}
}

func (f *queueFixture) builder(maxInstances int) *QueueBuilder {
	return NewQueueBuilder(QueueBuilderConfig{MaxInstances: maxInstances, MaxUIVertices: 1024}, f.rs, nil)
}

func TestQueueEmptyScene(t *testing.T) {
	f := newQueueFixture(t)
	var q metadata.RenderQueue
	f.builder(64).Build(&metadata.RenderFrameData{Camera: f.camera}, &q)
	assert.Empty(t, q.Batches)
	assert.Empty(t, q.Instances)
	assert.Zero(t, q.Culled)
	assert.Zero(t, q.Dropped)
}

func TestQueueCoalescesIdenticalObjects(t *testing.T) {
	f := newQueueFixture(t)
	data := &metadata.RenderFrameData{Camera: f.camera}
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			pos := math.NewVec3(float32(x)-4.5, float32(y)-4.5, 0)
			data.Renderables = append(data.Renderables, f.object(t, f.sphere, f.opaque, pos))
		}
	}
	var q metadata.RenderQueue
	f.builder(1024).Build(data, &q)

	require.Len(t, q.Batches, 1)
	b := q.Batches[0]
	assert.Equal(t, metadata.PassOpaque, b.Pass)
	assert.Equal(t, uint32(100), b.InstanceCount)
	assert.Equal(t, uint32(0), b.FirstInstance)
	assert.Len(t, b.Instances, 100)
}

func TestQueueOrdersPassesAndSortsOpaqueByState(t *testing.T) {
	f := newQueueFixture(t)
	data := &metadata.RenderFrameData{Camera: f.camera}
	data.Renderables = append(data.Renderables,
		f.object(t, f.cube, f.transparent, math.NewVec3(0, 0, 3)),
		f.object(t, f.cube, f.opaque2, math.NewVec3(1, 0, 0)),
		f.object(t, f.cube, f.transparent, math.NewVec3(0, 0, -5)),
		f.object(t, f.cube, f.opaque, math.NewVec3(-1, 0, 0)),
		f.object(t, f.cube, f.transparent, math.NewVec3(0, 1, 0)),
		f.object(t, f.cube, f.opaque2, math.NewVec3(2, 0, 0)),
	)
	var q metadata.RenderQueue
	f.builder(64).Build(data, &q)

	require.Len(t, q.Batches, 3)
	assert.Equal(t, metadata.PassOpaque, q.Batches[0].Pass)
	assert.Equal(t, f.opaque, q.Batches[0].Material)
	assert.Equal(t, f.opaque2, q.Batches[1].Material)
	assert.Equal(t, uint32(2), q.Batches[1].InstanceCount)

	// identical transparent neighbours share a draw, instances back to front
	transparent := q.PassBatches(metadata.PassTransparent)
	require.Len(t, transparent, 1)
	z := []float32{}
	for _, inst := range transparent[0].Instances {
		z = append(z, inst.Model.Translation().Z)
	}
	assert.Equal(t, []float32{-5, 0, 3}, z)

	for i := 1; i < len(q.Batches); i++ {
		assert.LessOrEqual(t, q.Batches[i-1].Pass, q.Batches[i].Pass)
	}
}

func TestQueueTransparentDepthOrder(t *testing.T) {
	f := newQueueFixture(t)
	data := &metadata.RenderFrameData{Camera: f.camera}
	for _, z := range []float32{1, -3, 4, 0, -2} {
		data.Renderables = append(data.Renderables, f.object(t, f.cube, f.transparent, math.NewVec3(0, 0, z)))
	}
	var q metadata.RenderQueue
	f.builder(64).Build(data, &q)

	prev := float32(math.K_INFINITY)
	for _, b := range q.PassBatches(metadata.PassTransparent) {
		for _, inst := range b.Instances {
			d := f.camera.Depth(inst.Model.Translation())
			assert.LessOrEqual(t, d, prev)
			prev = d
		}
	}
}

func TestQueueCullsOutsideFrustum(t *testing.T) {
	f := newQueueFixture(t)
	data := &metadata.RenderFrameData{Camera: f.camera}
	data.Renderables = append(data.Renderables,
		f.object(t, f.cube, f.opaque, math.NewVec3(0, 0, 0)),
		f.object(t, f.cube, f.opaque, math.NewVec3(0, 0, 50)),
		f.object(t, f.cube, f.opaque, math.NewVec3(100, 0, 0)),
	)
	var q metadata.RenderQueue
	f.builder(64).Build(data, &q)

	assert.Equal(t, 2, q.Culled)
	require.Len(t, q.Batches, 1)
	assert.Equal(t, uint32(1), q.Batches[0].InstanceCount)
}

func TestQueueSourceCallback(t *testing.T) {
	f := newQueueFixture(t)
	obj := f.object(t, f.cube, f.opaque, math.NewVec3Zero())
	data := &metadata.RenderFrameData{Camera: f.camera}
	data.Source = func(yield func(metadata.RenderableObject) bool) {
		for i := 0; i < 3; i++ {
			if !yield(obj) {
				return
			}
		}
	}
	var q metadata.RenderQueue
	f.builder(64).Build(data, &q)
	require.Len(t, q.Batches, 1)
	assert.Equal(t, uint32(3), q.Batches[0].InstanceCount)
}

func TestQueueDropsStaleAndMismatchedDraws(t *testing.T) {
	f := newQueueFixture(t)
	stale, err := f.rs.CreateMaterial(metadata.MaterialDescriptor{Pipeline: metadata.PipelineUnlit, Params: metadata.DefaultMaterialParams()})
	require.NoError(t, err)
	require.NoError(t, f.rs.Release(stale.Handle()))

	points, err := f.rs.UploadMesh(metadata.MeshData{
		Name:     "points",
		Vertices: metadata.AsBytes([]math.Vec3{{X: 0}, {X: 1}, {Y: 1}}),
		Indices:  []uint32{0, 1, 2},
		Layout:   metadata.VertexLayoutPosition,
	})
	require.NoError(t, err)

	data := &metadata.RenderFrameData{Camera: f.camera}
	data.Renderables = append(data.Renderables,
		f.object(t, f.cube, stale, math.NewVec3Zero()),
		f.object(t, f.cube, stale, math.NewVec3(1, 0, 0)),
		f.object(t, points, f.opaque, math.NewVec3Zero()),
		f.object(t, f.cube, f.opaque, math.NewVec3Zero()),
	)
	var q metadata.RenderQueue
	f.builder(64).Build(data, &q)

	assert.Equal(t, 3, q.Dropped)
	require.Len(t, q.Batches, 1)
	assert.Equal(t, f.opaque, q.Batches[0].Material)
}

func TestQueueInstanceArenaOverflow(t *testing.T) {
	f := newQueueFixture(t)
	data := &metadata.RenderFrameData{Camera: f.camera}
	for i := 0; i < 5; i++ {
		data.Renderables = append(data.Renderables, f.object(t, f.cube, f.opaque, math.NewVec3(float32(i)-2, 0, 0)))
	}
	var q metadata.RenderQueue
	f.builder(3).Build(data, &q)

	assert.Equal(t, 2, q.Dropped)
	require.Len(t, q.Batches, 1)
	assert.Equal(t, uint32(3), q.Batches[0].InstanceCount)
	assert.Len(t, q.Instances, 3)
}

func TestQueueBillboardsGroupByBlend(t *testing.T) {
	f := newQueueFixture(t)
	data := &metadata.RenderFrameData{Camera: f.camera}
	data.Billboards = []metadata.BillboardQuad{
		{Position: math.NewVec3(0, 0, 2), Size: math.NewVec2(1, 1), Colour: math.NewVec4(1, 1, 1, 1), Blend: metadata.BlendModeAdditive},
		{Position: math.NewVec3(0, 0, 1), Size: math.NewVec2(1, 1), Colour: math.NewVec4(1, 1, 1, 1)},
		{Position: math.NewVec3(0, 0, -4), Size: math.NewVec2(1, 1), Colour: math.NewVec4(1, 1, 1, 1)},
		{Position: math.NewVec3(0, 0, 60), Size: math.NewVec2(1, 1), Colour: math.NewVec4(1, 1, 1, 1)},
	}
	var q metadata.RenderQueue
	f.builder(64).Build(data, &q)

	assert.Equal(t, 1, q.Culled)
	bb := q.PassBatches(metadata.PassBillboard)
	require.Len(t, bb, 2)
	assert.Equal(t, uint32(2), bb[0].InstanceCount)
	assert.Equal(t, float32(-4), bb[0].Instances[0].Model.Translation().Z)
	assert.Equal(t, float32(1), bb[0].Instances[1].Model.Translation().Z)
	assert.Equal(t, uint32(1), bb[1].InstanceCount)
	assert.Equal(t, f.rs.QuadMesh(), bb[0].Mesh)
}

type fixedFont struct {
	atlas metadata.TextureHandle
}

func (ff fixedFont) Atlas() metadata.TextureHandle { return ff.atlas }

func (ff fixedFont) LineHeight(size float32) float32 { return size }

func (ff fixedFont) LayoutText(text string, size float32) []metadata.Glyph {
	glyphs := make([]metadata.Glyph, 0, len(text))
	for i, r := range text {
		if r == ' ' {
			continue
		}
		x := float32(i) * size * 0.5
		glyphs = append(glyphs, metadata.Glyph{
			Min: math.NewVec2(x, 0), Max: math.NewVec2(x+size*0.5, size),
			UVMin: math.NewVec2(0, 0), UVMax: math.NewVec2(0.1, 0.1),
		})
	}
	return glyphs
}

func TestQueueWorldTextGlyphs(t *testing.T) {
	f := newQueueFixture(t)
	atlas, err := f.rs.UploadTexture(make([]byte, 16), metadata.TextureDescription{Name: "font", Width: 4, Height: 4, Format: metadata.TextureFormatR8})
	require.NoError(t, err)

	data := &metadata.RenderFrameData{Camera: f.camera}
	data.Renderables = append(data.Renderables, f.object(t, f.cube, f.opaque, math.NewVec3Zero()))
	data.WorldTexts = []metadata.WorldText{{Position: math.NewVec3(0, 2, 0), Text: "hi u", Height: 0.5, Colour: math.NewVec4(1, 1, 1, 1), Font: fixedFont{atlas}}}
	var q metadata.RenderQueue
	f.builder(64).Build(data, &q)

	text := q.PassBatches(metadata.PassWorldText)
	require.Len(t, text, 1)
	assert.Equal(t, uint32(3), text[0].InstanceCount)
	assert.Equal(t, float32(0.1), text[0].Instances[0].UVRect.Z)
	assert.Equal(t, metadata.PassWorldText, q.Batches[len(q.Batches)-1].Pass)
}

func TestQueueUIAfter3D(t *testing.T) {
	f := newQueueFixture(t)
	atlas, err := f.rs.UploadTexture(make([]byte, 16), metadata.TextureDescription{Name: "font", Width: 4, Height: 4, Format: metadata.TextureFormatR8})
	require.NoError(t, err)

	white := math.NewVec4(1, 1, 1, 1)
	quad := metadata.NDCQuad(math.NewVec2(-1, -1), math.NewVec2(-0.5, -0.5), math.Vec2{}, math.Vec2{}, white)
	data := &metadata.RenderFrameData{Camera: f.camera}
	data.Renderables = append(data.Renderables, f.object(t, f.cube, f.opaque, math.NewVec3Zero()))
	data.UI.Panel(quad, white)
	data.UI.Panel(quad, white)
	data.UI.Text(quad, white, atlas)
	var q metadata.RenderQueue
	f.builder(64).Build(data, &q)

	require.Len(t, q.Batches, 3)
	assert.Equal(t, metadata.PassOpaque, q.Batches[0].Pass)
	panel, text := q.Batches[1], q.Batches[2]
	assert.Equal(t, metadata.PassUIOverlay, panel.Pass)
	assert.Equal(t, uint32(0), panel.FirstVertex)
	assert.Equal(t, uint32(12), panel.VertexCount)
	assert.Equal(t, uint32(12), text.FirstVertex)
	assert.Equal(t, uint32(6), text.VertexCount)
	assert.Len(t, q.UIVertices, 18)
	assert.NotEqual(t, panel.Material, text.Material)
}
