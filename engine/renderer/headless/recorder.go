package headless

import (
	"errors"

	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

type Op int

const (
	OpBeginRenderPass Op = iota
	OpBindPipeline
	OpBindDescriptorSet
	OpBindVertexBuffer
	OpBindIndexBuffer
	OpDrawIndexed
	OpDraw
	OpEndRenderPass
)

func (o Op) String() string {
	switch o {
	case OpBeginRenderPass:
		return "begin_render_pass"
	case OpBindPipeline:
		return "bind_pipeline"
	case OpBindDescriptorSet:
		return "bind_descriptor_set"
	case OpBindVertexBuffer:
		return "bind_vertex_buffer"
	case OpBindIndexBuffer:
		return "bind_index_buffer"
	case OpDrawIndexed:
		return "draw_indexed"
	case OpDraw:
		return "draw"
	case OpEndRenderPass:
		return "end_render_pass"
	}
	return "unknown"
}

// Command is one recorded call. Only the fields of its Op are set.
type Command struct {
	Op            Op
	Image         uint32
	Clear         metadata.Colour
	Pipeline      metadata.PipelineID
	Set           uint32
	DescriptorSet metadata.DescriptorSetID
	Binding       uint32
	Buffer        metadata.BufferID
	Offset        uint64
	Count         uint32
	InstanceCount uint32
	First         uint32
	FirstInstance uint32
}

// Recorder records commands of one frame slot.
type Recorder struct {
	Commands  []Command
	recording bool
	inPass    bool
	// FailEnd is returned once by the next End.
	FailEnd error
}

var (
	errNotRecording = errors.New("recorder is not recording")
	errOpenPass     = errors.New("render pass is still open")
)

func (r *Recorder) Begin() error {
	if r.recording {
		return errors.New("recorder is already recording")
	}
	r.Commands = r.Commands[:0]
	r.recording = true
	return nil
}

func (r *Recorder) BeginRenderPass(imageIndex uint32, clear metadata.Colour, depth float32) error {
	if !r.recording {
		return errNotRecording
	}
	if r.inPass {
		return errors.New("render pass already begun")
	}
	r.inPass = true
	r.Commands = append(r.Commands, Command{Op: OpBeginRenderPass, Image: imageIndex, Clear: clear})
	return nil
}

func (r *Recorder) BindPipeline(id metadata.PipelineID) {
	r.Commands = append(r.Commands, Command{Op: OpBindPipeline, Pipeline: id})
}

func (r *Recorder) BindDescriptorSet(set uint32, id metadata.DescriptorSetID) {
	r.Commands = append(r.Commands, Command{Op: OpBindDescriptorSet, Set: set, DescriptorSet: id})
}

func (r *Recorder) BindVertexBuffer(binding uint32, id metadata.BufferID, offset uint64) {
	r.Commands = append(r.Commands, Command{Op: OpBindVertexBuffer, Binding: binding, Buffer: id, Offset: offset})
}

func (r *Recorder) BindIndexBuffer(id metadata.BufferID, offset uint64) {
	r.Commands = append(r.Commands, Command{Op: OpBindIndexBuffer, Buffer: id, Offset: offset})
}

func (r *Recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	r.Commands = append(r.Commands, Command{
		Op: OpDrawIndexed, Count: indexCount, InstanceCount: instanceCount, First: firstIndex, FirstInstance: firstInstance,
	})
}

func (r *Recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.Commands = append(r.Commands, Command{
		Op: OpDraw, Count: vertexCount, InstanceCount: instanceCount, First: firstVertex, FirstInstance: firstInstance,
	})
}

func (r *Recorder) EndRenderPass() {
	r.inPass = false
	r.Commands = append(r.Commands, Command{Op: OpEndRenderPass})
}

func (r *Recorder) End() error {
	if !r.recording {
		return errNotRecording
	}
	if r.inPass {
		return errOpenPass
	}
	r.recording = false
	return take(&r.FailEnd)
}

func (r *Recorder) Reset() error {
	r.Commands = r.Commands[:0]
	r.recording = false
	r.inPass = false
	return nil
}

// Count returns the number of recorded commands with op.
func (r *Recorder) Count(op Op) int {
	return CountOps(r.Commands, op)
}

// CountOps returns the number of commands with op.
func CountOps(cmds []Command, op Op) int {
	n := 0
	for _, c := range cmds {
		if c.Op == op {
			n++
		}
	}
	return n
}
