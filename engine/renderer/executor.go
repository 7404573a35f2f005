package renderer

import (
	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

// ExecutorResources resolves the handles of a queue at record time.
type ExecutorResources interface {
	Mesh(h metadata.MeshHandle) (*metadata.Mesh, error)
	Material(h metadata.MaterialHandle) (*metadata.Material, error)
	Pipeline(h metadata.PipelineHandle) (*metadata.Pipeline, error)
}

// ExecuteStats counts what one frame recorded.
type ExecuteStats struct {
	DrawCalls     int
	Instances     int
	PipelineBinds int
	MaterialBinds int
	MeshBinds     int
	Skipped       int
	Lights        int
}

const (
	globalSet   = 0
	materialSet = 1

	vertexBinding   = 0
	instanceBinding = 1
)

/**
 * @brief Records a built render queue into the command recorder of a frame
 * slot. Passes are recorded in queue order inside one render pass; binds are
 * only issued when the bound object changes.
 */
type PassExecutor struct {
	backend   metadata.Backend
	resources ExecutorResources
	clear     metadata.Colour
	maxLights int

	globals GlobalUniforms
	logged  map[metadata.Handle]struct{}

	pipeline       metadata.PipelineID
	set            metadata.DescriptorSetID
	mesh           metadata.MeshHandle
	instancesBound bool
	uiBound        bool
}

func NewPassExecutor(backend metadata.Backend, resources ExecutorResources, clearColour metadata.Colour, maxLights int) *PassExecutor {
	if maxLights <= 0 || maxLights > metadata.MaxLights {
		maxLights = metadata.MaxLights
	}
	return &PassExecutor{
		backend:   backend,
		resources: resources,
		clear:     clearColour,
		maxLights: maxLights,
		logged:    make(map[metadata.Handle]struct{}),
	}
}

func (pe *PassExecutor) SetClearColour(c metadata.Colour) {
	pe.clear = c
}

func (pe *PassExecutor) resetBinds() {
	pe.pipeline = 0
	pe.set = 0
	pe.mesh = metadata.MeshHandle{}
	pe.instancesBound = false
	pe.uiBound = false
}

/**
 * @brief Uploads the frame's uniforms, instances and UI vertices into the
 * slot buffers and records every batch of the queue.
 *
 * @param token The frame being recorded.
 * @param cam The frame camera.
 * @param lights The selected lights, at most maxLights are used.
 * @param ambient The ambient colour.
 * @param queue The built queue.
 * @return The recording counters. Errors are FrameDropped and leave the
 * recorder in an undefined state; the caller drops the frame.
 */
func (pe *PassExecutor) Execute(token FrameToken, cam *metadata.Camera, lights []metadata.Light, ambient metadata.Colour, queue *metadata.RenderQueue) (ExecuteStats, error) {
	var stats ExecuteStats
	res := pe.backend.FrameResources(token.Slot)
	clear(pe.logged)

	pe.globals.Pack(cam, lights, ambient, pe.maxLights)
	stats.Lights = int(pe.globals.LightCount)
	if err := pe.backend.UploadBuffer(res.Globals, 0, pe.globals.Bytes()); err != nil {
		return stats, core.NewFrameDropped(core.StageRecord, "global uniform upload failed", err)
	}
	if len(queue.Instances) > 0 {
		if err := pe.backend.UploadBuffer(res.Instances, 0, metadata.AsBytes(queue.Instances)); err != nil {
			return stats, core.NewFrameDropped(core.StageRecord, "instance upload failed", err)
		}
	}
	if len(queue.UIVertices) > 0 {
		if err := pe.backend.UploadBuffer(res.UIVertices, 0, metadata.AsBytes(queue.UIVertices)); err != nil {
			return stats, core.NewFrameDropped(core.StageRecord, "ui vertex upload failed", err)
		}
	}

	clearColour := pe.clear
	if cam.ClearColor != nil {
		clearColour = *cam.ClearColor
	}
	rec := pe.backend.Recorder(token.Slot)
	if err := rec.BeginRenderPass(token.Image, clearColour, 1.0); err != nil {
		return stats, core.NewFrameDropped(core.StageRecord, "begin render pass failed", err)
	}
	pe.resetBinds()
	rec.BindDescriptorSet(globalSet, res.GlobalSet)

	for i := range queue.Batches {
		b := &queue.Batches[i]
		if b.Pass == metadata.PassUIOverlay {
			pe.recordUI(rec, b, res, &stats)
		} else {
			pe.recordBatch(rec, b, res, &stats)
		}
	}

	rec.EndRenderPass()
	if err := rec.End(); err != nil {
		return stats, core.NewFrameDropped(core.StageRecord, "recording failed", err)
	}
	return stats, nil
}

// bindMaterial binds the pipeline and material set of a batch when they
// differ from the bound ones.
func (pe *PassExecutor) bindMaterial(rec metadata.CommandRecorder, b *metadata.RenderBatch, stats *ExecuteStats) bool {
	pipeline, err := pe.resources.Pipeline(b.Pipeline)
	if err != nil {
		pe.skip(b.Pipeline.Handle(), stats, err)
		return false
	}
	material, err := pe.resources.Material(b.Material)
	if err != nil {
		pe.skip(b.Material.Handle(), stats, err)
		return false
	}
	if pipeline.ID != pe.pipeline {
		rec.BindPipeline(pipeline.ID)
		pe.pipeline = pipeline.ID
		stats.PipelineBinds++
	}
	if material.Set != pe.set {
		rec.BindDescriptorSet(materialSet, material.Set)
		pe.set = material.Set
		stats.MaterialBinds++
	}
	return true
}

func (pe *PassExecutor) recordBatch(rec metadata.CommandRecorder, b *metadata.RenderBatch, res metadata.FrameResources, stats *ExecuteStats) {
	mesh, err := pe.resources.Mesh(b.Mesh)
	if err != nil {
		pe.skip(b.Mesh.Handle(), stats, err)
		return
	}
	if !pe.bindMaterial(rec, b, stats) {
		return
	}
	if !pe.instancesBound {
		rec.BindVertexBuffer(instanceBinding, res.Instances, 0)
		pe.instancesBound = true
	}
	if b.Mesh != pe.mesh {
		rec.BindVertexBuffer(vertexBinding, mesh.VertexBuffer, 0)
		if mesh.IndexCount > 0 {
			rec.BindIndexBuffer(mesh.IndexBuffer, 0)
		}
		pe.mesh = b.Mesh
		pe.uiBound = false
		stats.MeshBinds++
	}
	if mesh.IndexCount > 0 {
		rec.DrawIndexed(mesh.IndexCount, b.InstanceCount, 0, 0, b.FirstInstance)
	} else {
		rec.Draw(mesh.VertexCount, b.InstanceCount, 0, b.FirstInstance)
	}
	stats.DrawCalls++
	stats.Instances += int(b.InstanceCount)
}

func (pe *PassExecutor) recordUI(rec metadata.CommandRecorder, b *metadata.RenderBatch, res metadata.FrameResources, stats *ExecuteStats) {
	if !pe.bindMaterial(rec, b, stats) {
		return
	}
	if !pe.uiBound {
		rec.BindVertexBuffer(vertexBinding, res.UIVertices, 0)
		pe.uiBound = true
		pe.mesh = metadata.MeshHandle{}
	}
	rec.Draw(b.VertexCount, 1, b.FirstVertex, 0)
	stats.DrawCalls++
}

// skip drops one draw whose handle went stale after the queue was built.
func (pe *PassExecutor) skip(h metadata.Handle, stats *ExecuteStats, err error) {
	stats.Skipped++
	if _, seen := pe.logged[h]; seen {
		return
	}
	pe.logged[h] = struct{}{}
	core.LogWarn("skipping draw with %s: %s", h, err)
}
