package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

/**
 * @brief Records one frame slot into its primary command buffer. Bind calls
 * that name unknown ids are skipped and reported by End, so a frame that
 * raced a resource destruction is dropped instead of crashing the driver.
 */
type Recorder struct {
	backend       *VulkanBackend
	commandBuffer *VulkanCommandBuffer
	// layout of the bound pipeline, the base layout before any bind
	layout vk.PipelineLayout
	err    error
}

var _ metadata.CommandRecorder = (*Recorder)(nil)

var errNotRecording = errors.New("command buffer is not recording")

func (r *Recorder) fail(err error) {
	if r.err == nil {
		r.err = core.NewStaleHandle(core.StageRecord, err.Error())
	}
}

func (r *Recorder) Begin() error {
	if r.commandBuffer.State != COMMAND_BUFFER_STATE_READY {
		return fmt.Errorf("command buffer in state %d cannot begin", r.commandBuffer.State)
	}
	r.err = nil
	r.layout = r.backend.baseLayout
	return r.commandBuffer.Begin(true, false, false)
}

func (r *Recorder) BeginRenderPass(imageIndex uint32, clear metadata.Colour, depth float32) error {
	if r.commandBuffer.State != COMMAND_BUFFER_STATE_RECORDING {
		return errNotRecording
	}
	context := r.backend.context
	if int(imageIndex) >= len(context.Swapchain.Framebuffers) {
		return core.NewError(core.KindSwapchainOutOfDate, core.StageRecord, fmt.Errorf("no framebuffer for image %d", imageIndex))
	}
	framebuffer := context.Swapchain.Framebuffers[imageIndex]
	handle := r.commandBuffer.Handle

	viewport := vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(framebuffer.Width),
		Height:   float32(framebuffer.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: framebuffer.Width, Height: framebuffer.Height},
	}
	vk.CmdSetViewport(handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(handle, 0, 1, []vk.Rect2D{scissor})

	context.MainRenderpass.RenderpassBegin(r.commandBuffer, framebuffer, clear, depth)
	return nil
}

func (r *Recorder) BindPipeline(id metadata.PipelineID) {
	pipeline, ok := r.backend.pipeline(id)
	if !ok {
		r.fail(fmt.Errorf("bind of unknown pipeline %d", id))
		return
	}
	pipeline.Bind(r.commandBuffer, vk.PipelineBindPointGraphics)
	r.layout = pipeline.PipelineLayout
}

func (r *Recorder) BindDescriptorSet(set uint32, id metadata.DescriptorSetID) {
	handle, ok := r.backend.descriptorSet(id)
	if !ok {
		r.fail(fmt.Errorf("bind of unknown descriptor set %d", id))
		return
	}
	if set != globalSetIndex && r.layout == r.backend.baseLayout {
		r.fail(fmt.Errorf("descriptor set %d bound before any pipeline", set))
		return
	}
	vk.CmdBindDescriptorSets(r.commandBuffer.Handle, vk.PipelineBindPointGraphics, r.layout,
		set, 1, []vk.DescriptorSet{handle}, 0, nil)
}

func (r *Recorder) BindVertexBuffer(binding uint32, id metadata.BufferID, offset uint64) {
	buffer, ok := r.backend.buffer(id)
	if !ok {
		r.fail(fmt.Errorf("bind of unknown vertex buffer %d", id))
		return
	}
	vk.CmdBindVertexBuffers(r.commandBuffer.Handle, binding, 1,
		[]vk.Buffer{buffer.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (r *Recorder) BindIndexBuffer(id metadata.BufferID, offset uint64) {
	buffer, ok := r.backend.buffer(id)
	if !ok {
		r.fail(fmt.Errorf("bind of unknown index buffer %d", id))
		return
	}
	vk.CmdBindIndexBuffer(r.commandBuffer.Handle, buffer.Handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (r *Recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if r.err != nil {
		return
	}
	vk.CmdDrawIndexed(r.commandBuffer.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (r *Recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if r.err != nil {
		return
	}
	vk.CmdDraw(r.commandBuffer.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (r *Recorder) EndRenderPass() {
	if r.commandBuffer.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		r.backend.context.MainRenderpass.RenderpassEnd(r.commandBuffer)
	}
}

func (r *Recorder) End() error {
	switch r.commandBuffer.State {
	case COMMAND_BUFFER_STATE_RECORDING:
	case COMMAND_BUFFER_STATE_IN_RENDER_PASS:
		return errors.New("render pass is still open")
	default:
		return errNotRecording
	}
	if err := r.commandBuffer.End(); err != nil {
		return err
	}
	return r.err
}

func (r *Recorder) Reset() error {
	r.err = nil
	r.layout = r.backend.baseLayout
	if r.commandBuffer.State == COMMAND_BUFFER_STATE_READY {
		return nil
	}
	return r.commandBuffer.Reset()
}
