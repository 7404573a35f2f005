package systems

import (
	"encoding/binary"
	"errors"
	gomath "math"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/headless"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

func newTestRegistry(t *testing.T, frames int) (*ResourceSystem, *headless.Backend) {
	t.Helper()
	be := headless.New()
	require.NoError(t, be.Initialize(nil, metadata.BackendConfig{
		Width: 800, Height: 600, FramesInFlight: frames, MaxInstances: 1024, MaxUIVertices: 1024,
	}))
	rs, err := NewResourceSystem(ResourceSystemConfig{FramesInFlight: frames, MaxMaterials: 64}, be, nil)
	require.NoError(t, err)
	require.NoError(t, rs.Initialize())
	return rs, be
}

func whitePixels(w, h int) []byte {
	p := make([]byte, w*h*4)
	for i := range p {
		p[i] = 255
	}
	return p
}

func TestResourceSystemInitialize(t *testing.T) {
	rs, _ := newTestRegistry(t, 2)
	s := rs.Stats()
	assert.Equal(t, len(metadata.DefaultPipelineVariants()), s.Pipelines)
	assert.Equal(t, 1, s.Meshes)
	assert.Equal(t, 1, s.Textures)

	quad, err := rs.Mesh(rs.QuadMesh())
	require.NoError(t, err)
	assert.Equal(t, uint32(6), quad.IndexCount)
	assert.Equal(t, metadata.VertexLayoutStandard, quad.Layout)

	_, ok := rs.BuiltinPipeline(metadata.PipelineBillboardAdditive)
	assert.True(t, ok)
}

func TestResourceSystemRejectsBadConfig(t *testing.T) {
	_, err := NewResourceSystem(ResourceSystemConfig{FramesInFlight: 4, MaxMaterials: 8}, headless.New(), nil)
	assert.True(t, errors.Is(err, core.ErrInitializationFailure))
	_, err = NewResourceSystem(ResourceSystemConfig{FramesInFlight: 2}, headless.New(), nil)
	assert.Error(t, err)
}

func TestUploadMeshComputesBounds(t *testing.T) {
	rs, _ := newTestRegistry(t, 2)
	vertices, indices := GenerateCube(2, 2, 2, 1, 1)
	h, err := rs.UploadGeometry("cube", vertices, indices)
	require.NoError(t, err)

	mesh, err := rs.Mesh(h)
	require.NoError(t, err)
	assert.Equal(t, uint32(36), mesh.IndexCount)
	assert.Equal(t, uint32(24), mesh.VertexCount)
	assert.True(t, mesh.LocalAABB.Min.Compare(math.NewVec3(-1, -1, -1), 1e-6))
	assert.True(t, mesh.LocalAABB.Max.Compare(math.NewVec3(1, 1, 1), 1e-6))
}

func TestUploadMeshUsesDeviceLocalBuffers(t *testing.T) {
	rs, be := newTestRegistry(t, 2)
	before := be.StagedUploads
	vertices, indices := GenerateCube(1, 1, 1, 1, 1)
	h, err := rs.UploadGeometry("cube", vertices, indices)
	require.NoError(t, err)
	assert.Equal(t, before+2, be.StagedUploads)

	mesh, err := rs.Mesh(h)
	require.NoError(t, err)
	usage, ok := be.BufferUsage(mesh.VertexBuffer)
	require.True(t, ok)
	assert.True(t, usage.DeviceLocal())
	usage, ok = be.BufferUsage(mesh.IndexBuffer)
	require.True(t, ok)
	assert.True(t, usage.DeviceLocal())

	// per-frame buffers are rewritten every frame and stay host visible
	res := be.FrameResources(0)
	for _, id := range []metadata.BufferID{res.Globals, res.Instances, res.UIVertices} {
		usage, ok := be.BufferUsage(id)
		require.True(t, ok)
		assert.False(t, usage.DeviceLocal(), "buffer %d", id)
	}
}

func TestUploadMeshInvalidLayout(t *testing.T) {
	rs, _ := newTestRegistry(t, 2)

	_, err := rs.UploadMesh(metadata.MeshData{Name: "short", Vertices: make([]byte, 5), Layout: metadata.VertexLayoutStandard})
	assert.True(t, errors.Is(err, core.ErrInvalidLayout))

	vertices, indices := GenerateCube(1, 1, 1, 1, 1)
	indices[0] = uint32(len(vertices))
	_, err = rs.UploadGeometry("broken", vertices, indices)
	assert.True(t, errors.Is(err, core.ErrInvalidLayout))

	_, err = rs.UploadMesh(metadata.MeshData{Name: "nolayout", Vertices: make([]byte, 32)})
	assert.True(t, errors.Is(err, core.ErrInvalidLayout))
}

func TestUploadTexturePixelMismatch(t *testing.T) {
	rs, _ := newTestRegistry(t, 2)
	_, err := rs.UploadTexture(make([]byte, 10), metadata.TextureDescription{Name: "bad", Width: 2, Height: 2})
	assert.True(t, errors.Is(err, core.ErrInvalidLayout))

	h, err := rs.UploadTexture(whitePixels(4, 4), metadata.TextureDescription{Name: "ok", Width: 4, Height: 4, GenerateMips: true})
	require.NoError(t, err)
	tex, err := rs.Texture(h)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), tex.MipLevels)
}

func TestUploadPropagatesOutOfMemory(t *testing.T) {
	rs, be := newTestRegistry(t, 2)
	be.FailCreate = core.NewError(core.KindOutOfDeviceMemory, core.StageUpload, errors.New("heap exhausted"))
	vertices, indices := GenerateQuad(1, 1)
	_, err := rs.UploadGeometry("quad2", vertices, indices)
	assert.True(t, errors.Is(err, core.ErrOutOfDeviceMemory))
}

func TestReleaseDefersDestructionUntilFramesComplete(t *testing.T) {
	const frames = 2
	rs, be := newTestRegistry(t, frames)
	vertices, indices := GenerateCube(1, 1, 1, 1, 1)
	h, err := rs.UploadGeometry("cube", vertices, indices)
	require.NoError(t, err)
	mesh, err := rs.Mesh(h)
	require.NoError(t, err)
	vb := mesh.VertexBuffer

	rs.BeginFrame(5, 3)
	require.NoError(t, rs.Release(h.Handle()))

	// stale at once
	_, err = rs.Mesh(h)
	assert.True(t, errors.Is(err, core.ErrStaleHandle))
	assert.Error(t, rs.Release(h.Handle()))

	// frame 5 may still be executing until frame 5+F-1 has completed
	rs.BeginFrame(6, 4)
	assert.Equal(t, 1, rs.Stats().Pending)
	rs.FrameCompleted(5)
	assert.Equal(t, 1, rs.Stats().Pending)
	assert.NotContains(t, be.Destroyed, "buffer:"+strconv.FormatUint(uint64(vb), 10))

	rs.FrameCompleted(6)
	assert.Equal(t, 0, rs.Stats().Pending)
	assert.Contains(t, be.Destroyed, "buffer:"+strconv.FormatUint(uint64(vb), 10))

	// the slot is reused under a new generation
	h2, err := rs.UploadGeometry("cube2", vertices, indices)
	require.NoError(t, err)
	assert.Equal(t, h.Index, h2.Index)
	assert.NotEqual(t, h.Generation, h2.Generation)
	_, err = rs.Mesh(h)
	assert.True(t, errors.Is(err, core.ErrStaleHandle))
}

func TestReleaseSingleFrameInFlight(t *testing.T) {
	rs, _ := newTestRegistry(t, 1)
	h, err := rs.UploadTexture(whitePixels(2, 2), metadata.TextureDescription{Name: "t", Width: 2, Height: 2})
	require.NoError(t, err)
	rs.BeginFrame(3, 2)
	require.NoError(t, rs.Release(h.Handle()))
	assert.Equal(t, 1, rs.Stats().Pending)
	rs.FrameCompleted(3)
	assert.Equal(t, 0, rs.Stats().Pending)
}

func TestNeverIssuedHandleIsStale(t *testing.T) {
	rs, _ := newTestRegistry(t, 2)
	_, err := rs.Material(metadata.MaterialHandle{Index: 40, Generation: 1, Kind: metadata.ResourceKindMaterial})
	assert.True(t, errors.Is(err, core.ErrStaleHandle))
	_, err = rs.Get(metadata.Handle{})
	assert.True(t, errors.Is(err, core.ErrStaleHandle))
}

func TestCreateMaterialWritesParameterBlock(t *testing.T) {
	rs, be := newTestRegistry(t, 2)
	params := metadata.DefaultMaterialParams()
	params.DiffuseColour = math.NewVec4(0.25, 0.5, 0.75, 1)
	h, err := rs.CreateMaterial(metadata.MaterialDescriptor{Name: "red", Pipeline: metadata.PipelineStandardPBR, Params: params})
	require.NoError(t, err)

	m, err := rs.Material(h)
	require.NoError(t, err)
	assert.Equal(t, metadata.PassOpaque, m.Pass(metadata.PriorityOpaque))
	assert.Equal(t, uint64(m.UBOSlot)*materialUBOStride, m.UBOOffset)

	data := be.BufferData(rs.materialUBO)
	x := gomath.Float32frombits(binary.LittleEndian.Uint32(data[m.UBOOffset:]))
	y := gomath.Float32frombits(binary.LittleEndian.Uint32(data[m.UBOOffset+4:]))
	assert.Equal(t, float32(0.25), x)
	assert.Equal(t, float32(0.5), y)
}

func TestUpdateMaterialParamsRewritesBlock(t *testing.T) {
	rs, be := newTestRegistry(t, 2)
	h, err := rs.CreateMaterial(metadata.MaterialDescriptor{Name: "m", Pipeline: metadata.PipelineUnlit, Params: metadata.DefaultMaterialParams()})
	require.NoError(t, err)

	params := metadata.DefaultMaterialParams()
	params.DiffuseColour = math.NewVec4(0.5, 0, 0, 1)
	params.AlphaCutoff = 0.9
	require.NoError(t, rs.UpdateMaterialParams(h, params))

	m, err := rs.Material(h)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), m.Params.DiffuseColour.X)
	assert.Equal(t, float32(0), m.Params.AlphaCutoff, "cutoff only applies to masked materials")

	data := be.BufferData(rs.materialUBO)
	x := gomath.Float32frombits(binary.LittleEndian.Uint32(data[m.UBOOffset:]))
	assert.Equal(t, float32(0.5), x)

	require.NoError(t, rs.Release(h.Handle()))
	assert.Error(t, rs.UpdateMaterialParams(h, params))
}

func TestCreateMaterialValidation(t *testing.T) {
	rs, _ := newTestRegistry(t, 2)
	a, err := rs.UploadTexture(whitePixels(2, 2), metadata.TextureDescription{Name: "a", Width: 2, Height: 2})
	require.NoError(t, err)
	b, err := rs.UploadTexture(whitePixels(2, 2), metadata.TextureDescription{Name: "b", Width: 2, Height: 2})
	require.NoError(t, err)

	tests := []struct {
		name string
		desc metadata.MaterialDescriptor
		want error
	}{
		{"too many textures", metadata.MaterialDescriptor{Pipeline: metadata.PipelineStandardPBR, Textures: []metadata.TextureHandle{a, b}}, core.ErrInvalidLayout},
		{"blended on opaque pipeline", metadata.MaterialDescriptor{Pipeline: metadata.PipelineStandardPBR, Alpha: metadata.AlphaBlended}, core.ErrInvalidLayout},
		{"unknown pipeline", metadata.MaterialDescriptor{Pipeline: metadata.PipelineKind(99)}, core.ErrInvalidLayout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rs.CreateMaterial(tt.desc)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	require.NoError(t, rs.Release(b.Handle()))
	_, err = rs.CreateMaterial(metadata.MaterialDescriptor{Pipeline: metadata.PipelineStandardPBR, Textures: []metadata.TextureHandle{b}})
	assert.True(t, errors.Is(err, core.ErrStaleHandle))

	h, err := rs.CreateMaterial(metadata.MaterialDescriptor{Pipeline: metadata.PipelineTransparent, Alpha: metadata.AlphaBlended, Textures: []metadata.TextureHandle{a}})
	require.NoError(t, err)
	m, err := rs.Material(h)
	require.NoError(t, err)
	assert.Equal(t, metadata.PassTransparent, m.Pass(metadata.PriorityTransparent))
}

func TestMaterialSlotsAreRecycled(t *testing.T) {
	be := headless.New()
	require.NoError(t, be.Initialize(nil, metadata.BackendConfig{Width: 8, Height: 8, FramesInFlight: 1, MaxInstances: 8, MaxUIVertices: 8}))
	rs, err := NewResourceSystem(ResourceSystemConfig{FramesInFlight: 1, MaxMaterials: 2}, be, nil)
	require.NoError(t, err)
	require.NoError(t, rs.Initialize())

	desc := metadata.MaterialDescriptor{Pipeline: metadata.PipelineUnlit, Params: metadata.DefaultMaterialParams()}
	m1, err := rs.CreateMaterial(desc)
	require.NoError(t, err)
	_, err = rs.CreateMaterial(desc)
	require.NoError(t, err)
	_, err = rs.CreateMaterial(desc)
	assert.True(t, errors.Is(err, core.ErrOutOfDeviceMemory))

	rs.BeginFrame(1, 0)
	require.NoError(t, rs.Release(m1.Handle()))
	rs.FrameCompleted(1)
	_, err = rs.CreateMaterial(desc)
	assert.NoError(t, err)
}

func TestBuiltinMaterialsAreCachedAndPurged(t *testing.T) {
	rs, _ := newTestRegistry(t, 2)
	m1, err := rs.BillboardMaterial(metadata.BlendModeAlpha, metadata.TextureHandle{})
	require.NoError(t, err)
	m2, err := rs.BillboardMaterial(metadata.BlendModeAlpha, metadata.TextureHandle{})
	require.NoError(t, err)
	assert.Equal(t, m1, m2)

	add, err := rs.BillboardMaterial(metadata.BlendModeAdditive, metadata.TextureHandle{})
	require.NoError(t, err)
	assert.NotEqual(t, m1, add)

	tex, err := rs.UploadTexture(whitePixels(2, 2), metadata.TextureDescription{Name: "spark", Width: 2, Height: 2})
	require.NoError(t, err)
	textured, err := rs.BillboardMaterial(metadata.BlendModeAlpha, tex)
	require.NoError(t, err)

	require.NoError(t, rs.Release(tex.Handle()))
	_, err = rs.Material(textured)
	assert.True(t, errors.Is(err, core.ErrStaleHandle))
	_, err = rs.BillboardMaterial(metadata.BlendModeAlpha, tex)
	assert.True(t, errors.Is(err, core.ErrStaleHandle))

	ui, err := rs.UIMaterial(metadata.TextureHandle{})
	require.NoError(t, err)
	m, err := rs.Material(ui)
	require.NoError(t, err)
	assert.Equal(t, metadata.PipelineUIPanel, m.Kind)
}

func TestReloadPipelineKeepsHandles(t *testing.T) {
	rs, be := newTestRegistry(t, 2)
	h, ok := rs.BuiltinPipeline(metadata.PipelineBillboard)
	require.True(t, ok)
	before, err := rs.Pipeline(h)
	require.NoError(t, err)
	oldID := before.ID

	rs.BeginFrame(10, 8)
	n, err := rs.ReloadPipeline("billboard.frag")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	after, err := rs.Pipeline(h)
	require.NoError(t, err)
	assert.NotEqual(t, oldID, after.ID)
	assert.Equal(t, 2, rs.Stats().Pending)

	rs.FrameCompleted(11)
	assert.Contains(t, be.Destroyed, "pipeline:"+strconv.FormatUint(uint64(oldID), 10))
}

func TestEnqueueUploadFromWorkers(t *testing.T) {
	rs, _ := newTestRegistry(t, 2)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var handles []metadata.Handle
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rs.EnqueueUpload(UploadRequest{
				Texture: &metadata.TextureData{Pixels: whitePixels(2, 2), Description: metadata.TextureDescription{Width: 2, Height: 2}},
				OnComplete: func(h metadata.Handle, err error) {
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						handles = append(handles, h)
					}
				},
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, rs.PendingUploads())

	rs.BeginFrame(1, -1)
	assert.Equal(t, 0, rs.PendingUploads())
	require.Len(t, handles, 4)
	for _, h := range handles {
		_, err := rs.Texture(metadata.TextureHandle(h))
		assert.NoError(t, err)
	}
}

func TestShutdownDestroysEverything(t *testing.T) {
	const frames = 2
	rs, be := newTestRegistry(t, frames)
	_, err := rs.BillboardMaterial(metadata.BlendModeAlpha, metadata.TextureHandle{})
	require.NoError(t, err)
	rs.Shutdown()

	buffers, textures, pipelines, sets := be.Live()
	// only the per-slot frame buffers of the backend remain
	assert.Equal(t, 3*frames, buffers)
	assert.Zero(t, textures)
	assert.Zero(t, pipelines)
	assert.Zero(t, sets)
}
