package systems

import (
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"
	"sync"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-render/engine/containers"
	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

// materialUBOStride keeps every material block aligned for dynamic offsets.
const materialUBOStride = 256

/** @brief The configuration for the resource system */
type ResourceSystemConfig struct {
	/** @brief Resources released at frame M are destroyed once frame M+FramesInFlight-1 completed. */
	FramesInFlight int
	/** @brief Number of material parameter blocks in the material uniform buffer. */
	MaxMaterials uint32
}

type pendingRelease struct {
	handle  metadata.Handle
	frame   uint64
	destroy func()
}

type builtinKey struct {
	kind    metadata.PipelineKind
	texture metadata.TextureHandle
}

// RegistryStats counts live and pending resources.
type RegistryStats struct {
	Meshes    int
	Textures  int
	Materials int
	Pipelines int
	Pending   int
	Destroyed int
}

/**
 * @brief The single owner of every GPU resource. Hands out generational
 * handles and defers destruction until no frame in flight can use a resource.
 */
type ResourceSystem struct {
	config  ResourceSystemConfig
	backend metadata.Backend
	shaders metadata.ShaderSource

	mu        sync.Mutex
	frame     uint64
	completed int64
	destroyed int

	meshes    *resourcePool[metadata.Mesh]
	textures  *resourcePool[metadata.Texture]
	materials *resourcePool[metadata.Material]
	pipelines *resourcePool[metadata.Pipeline]
	pending   *containers.RingQueue[pendingRelease]

	uploadMu sync.Mutex
	uploads  []UploadRequest

	materialUBO metadata.BufferID
	uboSlots    *core.IdentifierPool

	builtinPipelines map[metadata.PipelineKind]metadata.PipelineHandle
	builtinMaterials map[builtinKey]metadata.MaterialHandle
	defaultTexture   metadata.TextureHandle
	quad             metadata.MeshHandle
}

func NewResourceSystem(config ResourceSystemConfig, backend metadata.Backend, shaders metadata.ShaderSource) (*ResourceSystem, error) {
	if config.FramesInFlight < 1 || config.FramesInFlight > metadata.MaxFramesInFlight {
		err := fmt.Errorf("func NewResourceSystem - FramesInFlight must be in [1,%d], got %d", metadata.MaxFramesInFlight, config.FramesInFlight)
		core.LogError(err.Error())
		return nil, core.NewInitializationFailure(core.StageRegistry, err)
	}
	if config.MaxMaterials == 0 {
		err := fmt.Errorf("func NewResourceSystem - config.MaxMaterials must be > 0")
		core.LogError(err.Error())
		return nil, core.NewInitializationFailure(core.StageRegistry, err)
	}
	return &ResourceSystem{
		config:           config,
		backend:          backend,
		shaders:          shaders,
		completed:        -1,
		meshes:           newResourcePool[metadata.Mesh](metadata.ResourceKindMesh, 256),
		textures:         newResourcePool[metadata.Texture](metadata.ResourceKindTexture, 256),
		materials:        newResourcePool[metadata.Material](metadata.ResourceKindMaterial, 256),
		pipelines:        newResourcePool[metadata.Pipeline](metadata.ResourceKindPipeline, 16),
		pending:          containers.NewGrowableRingQueue[pendingRelease](64),
		uboSlots:         core.NewIdentifierPool(int(config.MaxMaterials)),
		builtinPipelines: make(map[metadata.PipelineKind]metadata.PipelineHandle),
		builtinMaterials: make(map[builtinKey]metadata.MaterialHandle),
	}, nil
}

// Initialize creates the material uniform buffer, the default texture, the
// built-in pipelines and the unit quad.
func (rs *ResourceSystem) Initialize() error {
	ubo, err := rs.backend.CreateBuffer(metadata.BufferUsageUniform, uint64(rs.config.MaxMaterials)*materialUBOStride)
	if err != nil {
		core.LogError("failed to create the material uniform buffer: %s", err)
		return core.NewInitializationFailure(core.StageRegistry, err)
	}
	rs.materialUBO = ubo

	white := []byte{255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255}
	rs.defaultTexture, err = rs.UploadTexture(white, metadata.TextureDescription{
		Name: "default", Width: 2, Height: 2, Format: metadata.TextureFormatRGBA8, Filter: metadata.TextureFilterNearest,
	})
	if err != nil {
		return core.NewInitializationFailure(core.StageRegistry, err)
	}

	for _, variant := range metadata.DefaultPipelineVariants() {
		h, err := rs.CreatePipeline(variant)
		if err != nil {
			return core.NewInitializationFailure(core.StagePipeline, err)
		}
		rs.builtinPipelines[variant.Kind] = h
	}

	vertices, indices := GenerateQuad(1, 1)
	rs.quad, err = rs.UploadGeometry("quad", vertices, indices)
	if err != nil {
		return core.NewInitializationFailure(core.StageRegistry, err)
	}
	core.LogInfo("resource system initialized with %d pipelines", len(rs.builtinPipelines))
	return nil
}

// BeginFrame records the frame being built, destroys resources whose last
// possible use has completed and drains the upload queue. completed is the
// newest frame known to have finished on the GPU, -1 if none.
func (rs *ResourceSystem) BeginFrame(frame uint64, completed int64) {
	rs.mu.Lock()
	rs.frame = frame
	rs.collect(completed)
	rs.mu.Unlock()

	rs.drainUploads()
}

// FrameCompleted destroys resources whose last possible use has completed.
func (rs *ResourceSystem) FrameCompleted(completed int64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.collect(completed)
}

func (rs *ResourceSystem) collect(completed int64) {
	if completed > rs.completed {
		rs.completed = completed
	}
	lag := int64(rs.config.FramesInFlight - 1)
	for !rs.pending.IsEmpty() {
		next, _ := rs.pending.Peek()
		if int64(next.frame)+lag > rs.completed {
			return
		}
		_, _ = rs.pending.Dequeue()
		next.destroy()
		rs.destroyed++
	}
}

// UploadMesh copies vertex and index data into device local buffers.
func (rs *ResourceSystem) UploadMesh(data metadata.MeshData) (metadata.MeshHandle, error) {
	stride := data.Layout.Stride()
	if stride == 0 {
		return metadata.MeshHandle{}, rs.layoutError("mesh %q has unknown vertex layout", data.Name)
	}
	if len(data.Vertices) == 0 || len(data.Vertices)%stride != 0 {
		return metadata.MeshHandle{}, rs.layoutError("mesh %q: %d vertex bytes is not a multiple of the %s stride %d", data.Name, len(data.Vertices), data.Layout, stride)
	}
	vertexCount := uint32(len(data.Vertices) / stride)
	if data.Topology == metadata.TopologyTriangleList && len(data.Indices)%3 != 0 {
		return metadata.MeshHandle{}, rs.layoutError("mesh %q: %d indices do not form triangles", data.Name, len(data.Indices))
	}
	for _, idx := range data.Indices {
		if idx >= vertexCount {
			return metadata.MeshHandle{}, rs.layoutError("mesh %q: index %d out of range (%d vertices)", data.Name, idx, vertexCount)
		}
	}

	aabb := math.NewExtents3DEmpty()
	if data.LocalAABB != nil {
		aabb = *data.LocalAABB
	} else if data.Layout != metadata.VertexLayoutUI {
		aabb = positionsAABB(data.Vertices, stride, data.Layout.PositionOffset())
	}

	name := data.Name
	if name == "" {
		name = uuid.NewString()
	}

	vb, err := rs.backend.CreateBuffer(metadata.BufferUsageVertex, uint64(len(data.Vertices)))
	if err != nil {
		return metadata.MeshHandle{}, rs.uploadError(name, err)
	}
	if err := rs.backend.UploadBuffer(vb, 0, data.Vertices); err != nil {
		rs.backend.DestroyBuffer(vb)
		return metadata.MeshHandle{}, rs.uploadError(name, err)
	}

	var ib metadata.BufferID
	if len(data.Indices) > 0 {
		ib, err = rs.backend.CreateBuffer(metadata.BufferUsageIndex, uint64(len(data.Indices)*4))
		if err == nil {
			err = rs.backend.UploadBuffer(ib, 0, metadata.AsBytes(data.Indices))
		}
		if err != nil {
			if ib != 0 {
				rs.backend.DestroyBuffer(ib)
			}
			rs.backend.DestroyBuffer(vb)
			return metadata.MeshHandle{}, rs.uploadError(name, err)
		}
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	h := rs.meshes.insert(metadata.Mesh{
		Name:         name,
		VertexBuffer: vb,
		IndexBuffer:  ib,
		VertexCount:  vertexCount,
		IndexCount:   uint32(len(data.Indices)),
		Topology:     data.Topology,
		Layout:       data.Layout,
		LocalAABB:    aabb,
	})
	return metadata.MeshHandle(h), nil
}

// UploadGeometry uploads standard layout vertices.
func (rs *ResourceSystem) UploadGeometry(name string, vertices []metadata.Vertex3D, indices []uint32) (metadata.MeshHandle, error) {
	return rs.UploadMesh(metadata.MeshData{
		Name:     name,
		Vertices: metadata.AsBytes(vertices),
		Indices:  indices,
		Layout:   metadata.VertexLayoutStandard,
	})
}

// UploadTexture copies pixels into a sampled image, generating mips on request.
func (rs *ResourceSystem) UploadTexture(pixels []byte, desc metadata.TextureDescription) (metadata.TextureHandle, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return metadata.TextureHandle{}, rs.layoutError("texture %q has zero size", desc.Name)
	}
	expected := int(desc.Width) * int(desc.Height) * desc.Format.BytesPerPixel()
	if len(pixels) != expected {
		return metadata.TextureHandle{}, rs.layoutError("texture %q: expected %d bytes of pixels, got %d", desc.Name, expected, len(pixels))
	}
	if desc.Name == "" {
		desc.Name = uuid.NewString()
	}
	img, err := rs.backend.CreateTexture(desc, pixels)
	if err != nil {
		return metadata.TextureHandle{}, rs.uploadError(desc.Name, err)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	h := rs.textures.insert(metadata.Texture{Description: desc, Image: img, MipLevels: desc.MipLevels()})
	return metadata.TextureHandle(h), nil
}

// CreatePipeline loads the variant shaders and builds the pipeline.
func (rs *ResourceSystem) CreatePipeline(variant metadata.PipelineVariant) (metadata.PipelineHandle, error) {
	desc, err := rs.pipelineDescription(variant)
	if err != nil {
		return metadata.PipelineHandle{}, err
	}
	id, err := rs.backend.CreatePipeline(desc)
	if err != nil {
		core.LogError("failed to create pipeline '%s': %s", variant.Name, err)
		return metadata.PipelineHandle{}, core.NewError(core.KindOf(err), core.StagePipeline, err)
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	h := rs.pipelines.insert(metadata.Pipeline{Variant: variant, ID: id})
	return metadata.PipelineHandle(h), nil
}

func (rs *ResourceSystem) pipelineDescription(variant metadata.PipelineVariant) (metadata.PipelineDescription, error) {
	desc := metadata.PipelineDescription{Variant: variant}
	if rs.shaders == nil {
		return desc, nil
	}
	var err error
	if desc.VertexCode, err = rs.shaders.LoadShader(variant.VertexShader); err != nil {
		core.LogError("failed to load shader '%s': %s", variant.VertexShader, err)
		return desc, core.NewInitializationFailure(core.StagePipeline, err)
	}
	if desc.FragmentCode, err = rs.shaders.LoadShader(variant.FragmentShader); err != nil {
		core.LogError("failed to load shader '%s': %s", variant.FragmentShader, err)
		return desc, core.NewInitializationFailure(core.StagePipeline, err)
	}
	return desc, nil
}

// ReloadPipeline rebuilds every pipeline using the named shader. Handles
// stay valid; the previous backend pipelines go through the release queue.
func (rs *ResourceSystem) ReloadPipeline(shader string) (int, error) {
	rs.mu.Lock()
	var targets []metadata.Handle
	rs.pipelines.each(func(h metadata.Handle, p *metadata.Pipeline) {
		if p.Variant.VertexShader == shader || p.Variant.FragmentShader == shader {
			targets = append(targets, h)
		}
	})
	rs.mu.Unlock()

	for _, h := range targets {
		rs.mu.Lock()
		p, err := rs.pipelines.get(h)
		if err != nil {
			rs.mu.Unlock()
			continue
		}
		variant := p.Variant
		rs.mu.Unlock()

		desc, err := rs.pipelineDescription(variant)
		if err != nil {
			return 0, err
		}
		id, err := rs.backend.CreatePipeline(desc)
		if err != nil {
			core.LogError("failed to rebuild pipeline '%s': %s", variant.Name, err)
			return 0, core.NewError(core.KindOf(err), core.StagePipeline, err)
		}

		rs.mu.Lock()
		if p, err := rs.pipelines.get(h); err == nil {
			old := p.ID
			p.ID = id
			rs.enqueue(metadata.Handle{}, func() { rs.backend.DestroyPipeline(old) })
		} else {
			rs.backend.DestroyPipeline(id)
		}
		rs.mu.Unlock()
		core.LogInfo("pipeline '%s' reloaded", variant.Name)
	}
	return len(targets), nil
}

// BuiltinPipeline returns the pipeline created at startup for kind.
func (rs *ResourceSystem) BuiltinPipeline(kind metadata.PipelineKind) (metadata.PipelineHandle, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	h, ok := rs.builtinPipelines[kind]
	return h, ok
}

// CreateMaterial writes the parameter block into a UBO slot and binds the
// textures into a descriptor set of the material's pipeline.
func (rs *ResourceSystem) CreateMaterial(desc metadata.MaterialDescriptor) (metadata.MaterialHandle, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.createMaterial(desc)
}

func (rs *ResourceSystem) createMaterial(desc metadata.MaterialDescriptor) (metadata.MaterialHandle, error) {
	ph, ok := rs.builtinPipelines[desc.Pipeline]
	if !ok {
		return metadata.MaterialHandle{}, rs.layoutError("material %q: no pipeline for kind %s", desc.Name, desc.Pipeline)
	}
	pipeline, err := rs.pipelines.get(ph.Handle())
	if err != nil {
		return metadata.MaterialHandle{}, err
	}
	variant := pipeline.Variant
	if len(desc.Textures) > variant.Samplers {
		return metadata.MaterialHandle{}, rs.layoutError("material %q: %d textures but pipeline '%s' has %d samplers", desc.Name, len(desc.Textures), variant.Name, variant.Samplers)
	}
	if desc.Alpha == metadata.AlphaBlended && variant.Blend == metadata.BlendModeNone {
		return metadata.MaterialHandle{}, rs.layoutError("material %q: blended alpha needs a blending pipeline, '%s' does not blend", desc.Name, variant.Name)
	}

	images := make([]metadata.ImageID, 0, variant.Samplers)
	for _, th := range desc.Textures {
		tex, err := rs.textures.get(th.Handle())
		if err != nil {
			core.LogError("material %q references a stale texture %s", desc.Name, th.Handle())
			return metadata.MaterialHandle{}, err
		}
		images = append(images, tex.Image)
	}
	for len(images) < variant.Samplers {
		tex, err := rs.textures.get(rs.defaultTexture.Handle())
		if err != nil {
			return metadata.MaterialHandle{}, err
		}
		images = append(images, tex.Image)
	}

	if rs.uboSlots.Available() == 0 && rs.uboSlots.Len() >= int(rs.config.MaxMaterials) {
		err := fmt.Errorf("material %q: all %d material slots are in use", desc.Name, rs.config.MaxMaterials)
		core.LogError(err.Error())
		return metadata.MaterialHandle{}, core.NewError(core.KindOutOfDeviceMemory, core.StageRegistry, err)
	}
	slot := rs.uboSlots.Acquire()
	offset := uint64(slot.Index) * materialUBOStride
	params := desc.Params
	if desc.Alpha != metadata.AlphaMasked {
		params.AlphaCutoff = 0
	}
	block := metadata.AsBytes([]metadata.MaterialParams{params})
	if err := rs.backend.UploadBuffer(rs.materialUBO, offset, block); err != nil {
		_ = rs.uboSlots.Release(slot)
		return metadata.MaterialHandle{}, rs.uploadError(desc.Name, err)
	}
	set, err := rs.backend.CreateMaterialSet(pipeline.ID, rs.materialUBO, offset, uint64(len(block)), images)
	if err != nil {
		_ = rs.uboSlots.Release(slot)
		return metadata.MaterialHandle{}, rs.uploadError(desc.Name, err)
	}

	name := desc.Name
	if name == "" {
		name = uuid.NewString()
	}
	h := rs.materials.insert(metadata.Material{
		Name:      name,
		Pipeline:  ph,
		Kind:      desc.Pipeline,
		Alpha:     desc.Alpha,
		Params:    params,
		Textures:  append([]metadata.TextureHandle(nil), desc.Textures...),
		Set:       set,
		UBOSlot:   slot.Index,
		UBOOffset: offset,
	})
	return metadata.MaterialHandle(h), nil
}

/**
 * @brief Rewrites the parameter block of a live material in place. No frame
 * reading the block may be in flight.
 */
func (rs *ResourceSystem) UpdateMaterialParams(h metadata.MaterialHandle, params metadata.MaterialParams) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	m, err := rs.materials.get(h.Handle())
	if err != nil {
		return err
	}
	if m.Alpha != metadata.AlphaMasked {
		params.AlphaCutoff = 0
	}
	block := metadata.AsBytes([]metadata.MaterialParams{params})
	if err := rs.backend.UploadBuffer(rs.materialUBO, m.UBOOffset, block); err != nil {
		return rs.uploadError(m.Name, err)
	}
	m.Params = params
	return nil
}

// BillboardMaterial returns the cached material for billboards of a blend
// mode and texture. A zero texture selects the default white texture.
func (rs *ResourceSystem) BillboardMaterial(blend metadata.BlendMode, texture metadata.TextureHandle) (metadata.MaterialHandle, error) {
	kind := metadata.PipelineBillboard
	if blend == metadata.BlendModeAdditive {
		kind = metadata.PipelineBillboardAdditive
	}
	return rs.builtinMaterial(kind, texture, metadata.AlphaBlended)
}

// TextMaterial returns the cached material for world text using atlas.
func (rs *ResourceSystem) TextMaterial(atlas metadata.TextureHandle, additive bool) (metadata.MaterialHandle, error) {
	if additive {
		return rs.builtinMaterial(metadata.PipelineTextAdditive, atlas, metadata.AlphaBlended)
	}
	return rs.builtinMaterial(metadata.PipelineText, atlas, metadata.AlphaMasked)
}

// UIMaterial returns the cached material for UI panels (zero atlas) or text.
func (rs *ResourceSystem) UIMaterial(atlas metadata.TextureHandle) (metadata.MaterialHandle, error) {
	if atlas.IsZero() {
		return rs.builtinMaterial(metadata.PipelineUIPanel, atlas, metadata.AlphaBlended)
	}
	return rs.builtinMaterial(metadata.PipelineUIText, atlas, metadata.AlphaBlended)
}

func (rs *ResourceSystem) builtinMaterial(kind metadata.PipelineKind, texture metadata.TextureHandle, alpha metadata.AlphaMode) (metadata.MaterialHandle, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	key := builtinKey{kind: kind, texture: texture}
	if h, ok := rs.builtinMaterials[key]; ok && rs.materials.alive(h.Handle()) {
		return h, nil
	}
	desc := metadata.MaterialDescriptor{
		Name:     fmt.Sprintf("%s:%s", kind, texture.Handle()),
		Pipeline: kind,
		Alpha:    alpha,
		Params:   metadata.DefaultMaterialParams(),
	}
	if !texture.IsZero() {
		desc.Textures = []metadata.TextureHandle{texture}
	}
	h, err := rs.createMaterial(desc)
	if err != nil {
		return metadata.MaterialHandle{}, err
	}
	rs.builtinMaterials[key] = h
	return h, nil
}

// QuadMesh is a unit quad in the XY plane facing +Z, used by billboards and text.
func (rs *ResourceSystem) QuadMesh() metadata.MeshHandle {
	return rs.quad
}

func (rs *ResourceSystem) DefaultTexture() metadata.TextureHandle {
	return rs.defaultTexture
}

// Release makes h stale immediately and destroys the resource once every
// frame that could reference it has completed.
func (rs *ResourceSystem) Release(h metadata.Handle) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.release(h)
}

func (rs *ResourceSystem) release(h metadata.Handle) error {
	switch h.Kind {
	case metadata.ResourceKindMesh:
		mesh, err := rs.meshes.retire(h)
		if err != nil {
			return err
		}
		rs.enqueue(h, func() {
			rs.backend.DestroyBuffer(mesh.VertexBuffer)
			if mesh.IndexBuffer != 0 {
				rs.backend.DestroyBuffer(mesh.IndexBuffer)
			}
			rs.meshes.recycle(h.Index)
		})
	case metadata.ResourceKindTexture:
		tex, err := rs.textures.retire(h)
		if err != nil {
			return err
		}
		for key, mh := range rs.builtinMaterials {
			if key.texture.Handle() == h {
				delete(rs.builtinMaterials, key)
				_ = rs.release(mh.Handle())
			}
		}
		rs.enqueue(h, func() {
			rs.backend.DestroyTexture(tex.Image)
			rs.textures.recycle(h.Index)
		})
	case metadata.ResourceKindMaterial:
		mat, err := rs.materials.retire(h)
		if err != nil {
			return err
		}
		rs.enqueue(h, func() {
			rs.backend.DestroyMaterialSet(mat.Set)
			if id, ok := rs.uboSlots.Current(mat.UBOSlot); ok {
				_ = rs.uboSlots.Release(id)
			}
			rs.materials.recycle(h.Index)
		})
	case metadata.ResourceKindPipeline:
		p, err := rs.pipelines.retire(h)
		if err != nil {
			return err
		}
		if rs.builtinPipelines[p.Variant.Kind] == metadata.PipelineHandle(h) {
			delete(rs.builtinPipelines, p.Variant.Kind)
		}
		rs.enqueue(h, func() {
			rs.backend.DestroyPipeline(p.ID)
			rs.pipelines.recycle(h.Index)
		})
	default:
		return core.NewStaleHandle(core.StageRegistry, h.String())
	}
	return nil
}

// enqueue must be called with mu held.
func (rs *ResourceSystem) enqueue(h metadata.Handle, destroy func()) {
	_ = rs.pending.Enqueue(pendingRelease{handle: h, frame: rs.frame, destroy: destroy})
}

// Get returns a pointer to the resource behind h: *Mesh, *Texture, *Material or *Pipeline.
func (rs *ResourceSystem) Get(h metadata.Handle) (interface{}, error) {
	switch h.Kind {
	case metadata.ResourceKindMesh:
		return rs.Mesh(metadata.MeshHandle(h))
	case metadata.ResourceKindTexture:
		return rs.Texture(metadata.TextureHandle(h))
	case metadata.ResourceKindMaterial:
		return rs.Material(metadata.MaterialHandle(h))
	case metadata.ResourceKindPipeline:
		return rs.Pipeline(metadata.PipelineHandle(h))
	}
	return nil, core.NewStaleHandle(core.StageRegistry, h.String())
}

func (rs *ResourceSystem) Mesh(h metadata.MeshHandle) (*metadata.Mesh, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.meshes.get(h.Handle())
}

func (rs *ResourceSystem) Texture(h metadata.TextureHandle) (*metadata.Texture, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.textures.get(h.Handle())
}

func (rs *ResourceSystem) Material(h metadata.MaterialHandle) (*metadata.Material, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.materials.get(h.Handle())
}

func (rs *ResourceSystem) Pipeline(h metadata.PipelineHandle) (*metadata.Pipeline, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.pipelines.get(h.Handle())
}

// MaterialTexturesAlive reports whether every texture of the material is live.
func (rs *ResourceSystem) MaterialTexturesAlive(m *metadata.Material) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, t := range m.Textures {
		if !rs.textures.alive(t.Handle()) {
			return false
		}
	}
	return true
}

func (rs *ResourceSystem) Stats() RegistryStats {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	s := RegistryStats{Pending: rs.pending.Len(), Destroyed: rs.destroyed}
	rs.meshes.each(func(metadata.Handle, *metadata.Mesh) { s.Meshes++ })
	rs.textures.each(func(metadata.Handle, *metadata.Texture) { s.Textures++ })
	rs.materials.each(func(metadata.Handle, *metadata.Material) { s.Materials++ })
	rs.pipelines.each(func(metadata.Handle, *metadata.Pipeline) { s.Pipelines++ })
	return s
}

// Shutdown destroys every resource. The device must be idle.
func (rs *ResourceSystem) Shutdown() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var live []metadata.Handle
	rs.materials.each(func(h metadata.Handle, _ *metadata.Material) { live = append(live, h) })
	rs.meshes.each(func(h metadata.Handle, _ *metadata.Mesh) { live = append(live, h) })
	rs.textures.each(func(h metadata.Handle, _ *metadata.Texture) { live = append(live, h) })
	rs.pipelines.each(func(h metadata.Handle, _ *metadata.Pipeline) { live = append(live, h) })
	for _, h := range live {
		_ = rs.release(h)
	}
	for !rs.pending.IsEmpty() {
		p, _ := rs.pending.Dequeue()
		p.destroy()
		rs.destroyed++
	}
	if rs.materialUBO != 0 {
		rs.backend.DestroyBuffer(rs.materialUBO)
		rs.materialUBO = 0
	}
	rs.builtinMaterials = make(map[builtinKey]metadata.MaterialHandle)
	core.LogInfo("resource system shut down")
}

func (rs *ResourceSystem) layoutError(format string, args ...interface{}) error {
	err := core.NewInvalidLayout(core.StageRegistry, fmt.Sprintf(format, args...))
	core.LogError(err.Error())
	return err
}

func (rs *ResourceSystem) uploadError(name string, err error) error {
	core.LogError("upload of '%s' failed: %s", name, err)
	if errors.Is(err, core.ErrOutOfDeviceMemory) {
		return err
	}
	return core.NewError(core.KindOf(err), core.StageUpload, fmt.Errorf("%s: %w", name, err))
}

func positionsAABB(vertices []byte, stride, offset int) math.Extents3D {
	aabb := math.NewExtents3DEmpty()
	for base := 0; base+stride <= len(vertices); base += stride {
		p := vertices[base+offset:]
		aabb = aabb.Expand(math.Vec3{
			X: gomath.Float32frombits(binary.LittleEndian.Uint32(p[0:4])),
			Y: gomath.Float32frombits(binary.LittleEndian.Uint32(p[4:8])),
			Z: gomath.Float32frombits(binary.LittleEndian.Uint32(p[8:12])),
		})
	}
	return aabb
}
