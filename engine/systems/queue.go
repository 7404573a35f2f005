package systems

import (
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-render/engine/containers"
	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

// RenderResources is the part of the resource system the queue builder reads.
type RenderResources interface {
	Mesh(h metadata.MeshHandle) (*metadata.Mesh, error)
	Material(h metadata.MaterialHandle) (*metadata.Material, error)
	Pipeline(h metadata.PipelineHandle) (*metadata.Pipeline, error)
	MaterialTexturesAlive(m *metadata.Material) bool
	BillboardMaterial(blend metadata.BlendMode, texture metadata.TextureHandle) (metadata.MaterialHandle, error)
	TextMaterial(atlas metadata.TextureHandle, additive bool) (metadata.MaterialHandle, error)
	UIMaterial(atlas metadata.TextureHandle) (metadata.MaterialHandle, error)
	QuadMesh() metadata.MeshHandle
}

/** @brief The configuration for the queue builder */
type QueueBuilderConfig struct {
	/** @brief Capacity of the instance arena of one frame. */
	MaxInstances int
	/** @brief Capacity of the UI vertex stream of one frame. */
	MaxUIVertices int
}

// queueEntry is one instance waiting to be sorted into a batch.
type queueEntry struct {
	pass     metadata.Pass
	pipeline metadata.PipelineHandle
	material metadata.MaterialHandle
	mesh     metadata.MeshHandle
	blend    metadata.BlendMode
	depth    float32
	order    int
	instance metadata.InstanceData
}

/**
 * @brief Culls the frame data against the camera frustum, sorts what is left
 * into pass buckets and coalesces identical neighbours into instanced batches.
 */
type QueueBuilder struct {
	config    QueueBuilderConfig
	resources RenderResources
	index     SpatialIndex

	objects   []metadata.RenderableObject
	bounds    []math.Extents3D
	entries   []queueEntry
	instances *containers.Arena[metadata.InstanceData]
	logged    map[metadata.Handle]struct{}
}

func NewQueueBuilder(config QueueBuilderConfig, resources RenderResources, index SpatialIndex) *QueueBuilder {
	if config.MaxInstances <= 0 {
		config.MaxInstances = 65536
	}
	if config.MaxUIVertices <= 0 {
		config.MaxUIVertices = 65536
	}
	if index == nil {
		index = NewLinearIndex()
	}
	return &QueueBuilder{
		config:    config,
		resources: resources,
		index:     index,
		instances: containers.NewArena[metadata.InstanceData](config.MaxInstances),
		logged:    make(map[metadata.Handle]struct{}),
	}
}

/**
 * @brief Builds the render queue of a frame into out. The batches and
 * instances of out are valid until the next call.
 *
 * @param data The frame data.
 * @param out The queue to fill. It is reset first.
 */
func (qb *QueueBuilder) Build(data *metadata.RenderFrameData, out *metadata.RenderQueue) {
	out.Reset()
	qb.instances.Reset()
	qb.entries = qb.entries[:0]
	clear(qb.logged)

	cam := &data.Camera
	frustum := cam.Frustum()

	qb.objects = qb.objects[:0]
	qb.bounds = qb.bounds[:0]
	data.EachRenderable(func(r metadata.RenderableObject) bool {
		qb.objects = append(qb.objects, r)
		qb.bounds = append(qb.bounds, r.WorldAABB)
		return true
	})
	qb.index.Rebuild(qb.bounds)
	visible := 0
	qb.index.QueryFrustum(&frustum, func(i int) bool {
		visible++
		qb.addRenderable(cam, &qb.objects[i], out)
		return true
	})
	out.Culled += len(qb.objects) - visible

	for i := range data.Billboards {
		qb.addBillboard(cam, &frustum, &data.Billboards[i], out)
	}
	for i := range data.WorldTexts {
		qb.addWorldText(cam, &frustum, &data.WorldTexts[i], out)
	}

	slices.SortStableFunc(qb.entries, compareEntries)
	qb.batch(out)
	qb.buildUI(&data.UI, out)
}

func (qb *QueueBuilder) addRenderable(cam *metadata.Camera, r *metadata.RenderableObject, out *metadata.RenderQueue) {
	mesh, err := qb.resources.Mesh(r.Mesh)
	if err != nil {
		qb.drop(r.Mesh.Handle(), out, "renderable %d has a stale mesh %s", r.Entity, r.Mesh.Handle())
		return
	}
	material, err := qb.resources.Material(r.Material)
	if err != nil {
		qb.drop(r.Material.Handle(), out, "renderable %d has a stale material %s", r.Entity, r.Material.Handle())
		return
	}
	if !qb.resources.MaterialTexturesAlive(material) {
		qb.drop(r.Material.Handle(), out, "material '%s' references a released texture", material.Name)
		return
	}
	pipeline, err := qb.resources.Pipeline(material.Pipeline)
	if err != nil {
		qb.drop(material.Pipeline.Handle(), out, "material '%s' has a stale pipeline %s", material.Name, material.Pipeline.Handle())
		return
	}
	if mesh.Layout != pipeline.Variant.Layout {
		qb.drop(r.Mesh.Handle(), out, "mesh '%s' has layout %s but pipeline '%s' expects %s",
			mesh.Name, mesh.Layout, pipeline.Variant.Name, pipeline.Variant.Layout)
		return
	}

	centre := r.Transform.Translation()
	if !r.WorldAABB.IsEmpty() {
		centre = r.WorldAABB.Center()
	}
	tint := r.Tint
	if tint == (metadata.Colour{}) {
		tint = metadata.Colour{X: 1, Y: 1, Z: 1, W: 1}
	}
	qb.entries = append(qb.entries, queueEntry{
		pass:     material.Pass(pipeline.Variant.Priority),
		pipeline: material.Pipeline,
		material: r.Material,
		mesh:     r.Mesh,
		depth:    cam.Depth(centre),
		order:    len(qb.entries),
		instance: metadata.InstanceData{Model: r.Transform, Colour: tint, UVRect: metadata.FullUVRect},
	})
}

func (qb *QueueBuilder) addBillboard(cam *metadata.Camera, frustum *math.Frustum, b *metadata.BillboardQuad, out *metadata.RenderQueue) {
	radius := b.Size.Length() * 0.5
	if !frustum.IntersectsSphere(b.Position, radius) {
		out.Culled++
		return
	}
	blend := b.Blend
	if blend != metadata.BlendModeAdditive {
		blend = metadata.BlendModeAlpha
	}
	mh, err := qb.resources.BillboardMaterial(blend, b.Texture)
	if err != nil {
		qb.drop(b.Texture.Handle(), out, "billboard texture %s is not usable: %s", b.Texture.Handle(), err)
		return
	}
	material, err := qb.resources.Material(mh)
	if err != nil {
		qb.drop(mh.Handle(), out, "billboard material %s is stale", mh.Handle())
		return
	}
	qb.entries = append(qb.entries, queueEntry{
		pass:     metadata.PassBillboard,
		pipeline: material.Pipeline,
		material: mh,
		mesh:     qb.resources.QuadMesh(),
		blend:    blend,
		depth:    cam.Depth(b.Position),
		order:    len(qb.entries),
		instance: metadata.InstanceData{Model: BillboardModel(b, cam), Colour: b.Colour, UVRect: BillboardUV(b)},
	})
}

func (qb *QueueBuilder) addWorldText(cam *metadata.Camera, frustum *math.Frustum, t *metadata.WorldText, out *metadata.RenderQueue) {
	if t.Font == nil || t.Text == "" {
		return
	}
	height := t.Height
	if height <= 0 {
		height = 1
	}
	atlas := t.Font.Atlas()
	mh, err := qb.resources.TextMaterial(atlas, t.Additive)
	if err != nil {
		qb.drop(atlas.Handle(), out, "font atlas %s is not usable: %s", atlas.Handle(), err)
		return
	}
	material, err := qb.resources.Material(mh)
	if err != nil {
		qb.drop(mh.Handle(), out, "text material %s is stale", mh.Handle())
		return
	}
	blend := metadata.BlendModeNone
	if t.Additive {
		blend = metadata.BlendModeAdditive
	}

	right, up := cam.Right(), cam.Up()
	toCamera := cam.Forward().Neg()
	depth := cam.Depth(t.Position)
	for _, g := range t.Font.LayoutText(t.Text, height) {
		size := g.Max.Sub(g.Min)
		if size.X <= 0 || size.Y <= 0 {
			continue
		}
		mid := g.Min.Add(g.Max).MulScalar(0.5)
		centre := t.Position.Add(right.MulScalar(mid.X)).Add(up.MulScalar(mid.Y))
		if !frustum.IntersectsSphere(centre, size.Length()*0.5) {
			out.Culled++
			continue
		}
		qb.entries = append(qb.entries, queueEntry{
			pass:     metadata.PassWorldText,
			pipeline: material.Pipeline,
			material: mh,
			mesh:     qb.resources.QuadMesh(),
			blend:    blend,
			depth:    depth,
			order:    len(qb.entries),
			instance: metadata.InstanceData{
				Model:  math.NewMat4Basis(right.MulScalar(size.X), up.MulScalar(size.Y), toCamera, centre),
				Colour: t.Colour,
				UVRect: math.Vec4{X: g.UVMin.X, Y: g.UVMin.Y, Z: g.UVMax.X, W: g.UVMax.Y},
			},
		})
	}
}

// compareEntries orders entries by pass, then by the ordering rule of the pass.
func compareEntries(a, b queueEntry) int {
	if a.pass != b.pass {
		return int(a.pass) - int(b.pass)
	}
	switch a.pass {
	case metadata.PassTransparent:
		return compareDepthDesc(a, b)
	case metadata.PassBillboard:
		if a.blend != b.blend {
			return int(a.blend) - int(b.blend)
		}
		if c := compareHandle(a.material.Handle(), b.material.Handle()); c != 0 {
			return c
		}
		if a.blend == metadata.BlendModeAlpha {
			return compareDepthDesc(a, b)
		}
		return a.order - b.order
	case metadata.PassWorldText:
		return compareHandle(a.material.Handle(), b.material.Handle())
	}
	if c := compareHandle(a.pipeline.Handle(), b.pipeline.Handle()); c != 0 {
		return c
	}
	if c := compareHandle(a.material.Handle(), b.material.Handle()); c != 0 {
		return c
	}
	return compareHandle(a.mesh.Handle(), b.mesh.Handle())
}

func compareDepthDesc(a, b queueEntry) int {
	switch {
	case a.depth > b.depth:
		return -1
	case a.depth < b.depth:
		return 1
	}
	return 0
}

func compareHandle(a, b metadata.Handle) int {
	if a.Index != b.Index {
		return int(a.Index) - int(b.Index)
	}
	return int(a.Generation) - int(b.Generation)
}

// batch packs sorted entries into the instance arena, merging neighbours
// that share pipeline, material and mesh.
func (qb *QueueBuilder) batch(out *metadata.RenderQueue) {
	overflow := false
	for i := range qb.entries {
		e := &qb.entries[i]
		offset, ok := qb.instances.Push(e.instance)
		if !ok {
			out.Dropped++
			overflow = true
			continue
		}
		if n := len(out.Batches); n > 0 {
			last := &out.Batches[n-1]
			if last.Pass == e.pass && last.Pipeline == e.pipeline && last.Material == e.material &&
				last.Mesh == e.mesh && int(last.FirstInstance+last.InstanceCount) == offset {
				last.InstanceCount++
				continue
			}
		}
		out.Batches = append(out.Batches, metadata.RenderBatch{
			Pass:          e.pass,
			Pipeline:      e.pipeline,
			Material:      e.material,
			Mesh:          e.mesh,
			FirstInstance: uint32(offset),
			InstanceCount: 1,
		})
	}
	if overflow {
		core.LogWarn("instance arena full (%d instances), dropped %d draws", qb.instances.Cap(), out.Dropped)
	}
	out.Instances = qb.instances.Items()
	for i := range out.Batches {
		b := &out.Batches[i]
		b.Instances = out.Instances[b.FirstInstance : b.FirstInstance+b.InstanceCount]
	}
}

// buildUI appends the UI stream in command order. Neighbouring commands
// drawn with the same material share a batch.
func (qb *QueueBuilder) buildUI(ui *metadata.UIRenderData, out *metadata.RenderQueue) {
	for i := range ui.Commands {
		cmd := &ui.Commands[i]
		if len(cmd.Vertices) == 0 {
			continue
		}
		atlas := metadata.TextureHandle{}
		if cmd.Kind == metadata.UICommandText {
			atlas = cmd.Atlas
			if atlas.IsZero() {
				qb.drop(atlas.Handle(), out, "ui text command %d has no atlas", i)
				continue
			}
		}
		mh, err := qb.resources.UIMaterial(atlas)
		if err != nil {
			qb.drop(atlas.Handle(), out, "ui atlas %s is not usable: %s", atlas.Handle(), err)
			continue
		}
		material, err := qb.resources.Material(mh)
		if err != nil {
			qb.drop(mh.Handle(), out, "ui material %s is stale", mh.Handle())
			continue
		}
		if len(out.UIVertices)+len(cmd.Vertices) > qb.config.MaxUIVertices {
			out.Dropped++
			core.LogWarn("ui vertex buffer full (%d vertices), dropped command %d", qb.config.MaxUIVertices, i)
			continue
		}
		first := uint32(len(out.UIVertices))
		for _, v := range cmd.Vertices {
			if cmd.Kind == metadata.UICommandPanel {
				v.Texcoord = math.Vec2{}
			}
			if v.Colour == (math.Vec4{}) {
				v.Colour = cmd.Colour
			}
			out.UIVertices = append(out.UIVertices, v)
		}
		count := uint32(len(cmd.Vertices))

		if n := len(out.Batches); n > 0 {
			last := &out.Batches[n-1]
			if last.Pass == metadata.PassUIOverlay && last.Material == mh && last.FirstVertex+last.VertexCount == first {
				last.VertexCount += count
				continue
			}
		}
		out.Batches = append(out.Batches, metadata.RenderBatch{
			Pass:        metadata.PassUIOverlay,
			Pipeline:    material.Pipeline,
			Material:    mh,
			FirstVertex: first,
			VertexCount: count,
		})
	}
}

// drop counts a skipped draw and logs it once per handle per frame.
func (qb *QueueBuilder) drop(h metadata.Handle, out *metadata.RenderQueue, format string, args ...interface{}) {
	out.Dropped++
	if _, seen := qb.logged[h]; seen {
		return
	}
	qb.logged[h] = struct{}{}
	core.LogWarn(format, args...)
}
