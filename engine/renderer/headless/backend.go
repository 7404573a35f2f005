// Package headless implements a GPU-less backend that records every call.
// It stands in for Vulkan in tests and on CI machines without a GPU.
package headless

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

// ImageCount is the number of swapchain images the backend pretends to own.
const ImageCount = 3

type buffer struct {
	usage metadata.BufferUsage
	data  []byte
}

type materialSet struct {
	pipeline metadata.PipelineID
	uniform  metadata.BufferID
	offset   uint64
	textures []metadata.ImageID
}

type slot struct {
	resources metadata.FrameResources
	recorder  *Recorder
	// submitted is true between Submit/SignalFence and the next completed wait.
	submitted bool
	signalled bool
	acquired  bool
	image     uint32
}

/**
 * @brief A backend that keeps resources in memory and records commands.
 * Submitted work completes when its fence is waited on. Failures can be
 * injected for the next call of each frame operation.
 */
type Backend struct {
	mu     sync.Mutex
	config metadata.BackendConfig
	nextID uint64

	buffers   map[metadata.BufferID]*buffer
	textures  map[metadata.ImageID]metadata.TextureDescription
	pipelines map[metadata.PipelineID]metadata.PipelineDescription
	sets      map[metadata.DescriptorSetID]materialSet

	slots     []slot
	width     uint32
	height    uint32
	nextImage uint32

	// FailAcquire, FailPresent, FailSubmit and FailWait are returned once by
	// the next call of the matching operation, then cleared.
	FailAcquire error
	FailPresent error
	FailSubmit  error
	FailWait    error
	// FailCreate is returned by every resource creation while set.
	FailCreate error

	Submits        int
	Presents       int
	// StagedUploads counts writes to device local buffers, which the Vulkan
	// backend routes through a staging copy.
	StagedUploads  int
	ManualSignals  int
	Recreations    int
	MaxOutstanding int
	Destroyed      []string
	Frames         [][]Command
	initialized    bool
}

func New() *Backend {
	return &Backend{
		buffers:   make(map[metadata.BufferID]*buffer),
		textures:  make(map[metadata.ImageID]metadata.TextureDescription),
		pipelines: make(map[metadata.PipelineID]metadata.PipelineDescription),
		sets:      make(map[metadata.DescriptorSetID]materialSet),
	}
}

func (b *Backend) Initialize(window metadata.Window, config metadata.BackendConfig) error {
	if config.FramesInFlight < 1 || config.FramesInFlight > metadata.MaxFramesInFlight {
		return core.NewInitializationFailure(core.StageDevice, fmt.Errorf("frames in flight %d out of range", config.FramesInFlight))
	}
	b.config = config
	b.width, b.height = config.Width, config.Height
	if window != nil {
		b.width, b.height = window.FramebufferSize()
	}
	b.slots = make([]slot, config.FramesInFlight)
	instanceSize := uint64(unsafe.Sizeof(metadata.InstanceData{}))
	uiSize := uint64(unsafe.Sizeof(metadata.UIVertex{}))
	for i := range b.slots {
		globals, err := b.CreateBuffer(metadata.BufferUsageUniform, metadata.GlobalUniformSize)
		if err != nil {
			return core.NewInitializationFailure(core.StageDevice, err)
		}
		instances, err := b.CreateBuffer(metadata.BufferUsageInstance, max(1, uint64(config.MaxInstances))*instanceSize)
		if err != nil {
			return core.NewInitializationFailure(core.StageDevice, err)
		}
		ui, err := b.CreateBuffer(metadata.BufferUsageStream, max(1, uint64(config.MaxUIVertices))*uiSize)
		if err != nil {
			return core.NewInitializationFailure(core.StageDevice, err)
		}
		b.slots[i] = slot{
			resources: metadata.FrameResources{
				Globals:    globals,
				GlobalSet:  metadata.DescriptorSetID(b.id()),
				Instances:  instances,
				UIVertices: ui,
			},
			recorder: &Recorder{},
		}
	}
	b.initialized = true
	core.LogInfo("headless backend initialized (%dx%d, %d frames in flight)", b.width, b.height, config.FramesInFlight)
	return nil
}

func (b *Backend) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.slots {
		delete(b.buffers, s.resources.Globals)
		delete(b.buffers, s.resources.Instances)
		delete(b.buffers, s.resources.UIVertices)
	}
	b.slots = nil
	b.initialized = false
}

func (b *Backend) id() uint64 {
	b.nextID++
	return b.nextID
}

func (b *Backend) CreateBuffer(usage metadata.BufferUsage, size uint64) (metadata.BufferID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailCreate != nil {
		return 0, b.FailCreate
	}
	id := metadata.BufferID(b.id())
	b.buffers[id] = &buffer{usage: usage, data: make([]byte, size)}
	return id, nil
}

func (b *Backend) UploadBuffer(id metadata.BufferID, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.buffers[id]
	if !ok {
		return fmt.Errorf("upload to unknown buffer %d", id)
	}
	if offset+uint64(len(data)) > uint64(len(buf.data)) {
		return core.NewError(core.KindOutOfDeviceMemory, core.StageUpload,
			fmt.Errorf("upload of %d bytes at %d overflows buffer %d of %d bytes", len(data), offset, id, len(buf.data)))
	}
	copy(buf.data[offset:], data)
	if buf.usage.DeviceLocal() {
		b.StagedUploads++
	}
	return nil
}

func (b *Backend) DestroyBuffer(id metadata.BufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, id)
	b.Destroyed = append(b.Destroyed, fmt.Sprintf("buffer:%d", id))
}

func (b *Backend) CreateTexture(desc metadata.TextureDescription, pixels []byte) (metadata.ImageID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailCreate != nil {
		return 0, b.FailCreate
	}
	id := metadata.ImageID(b.id())
	b.textures[id] = desc
	return id, nil
}

func (b *Backend) DestroyTexture(id metadata.ImageID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.textures, id)
	b.Destroyed = append(b.Destroyed, fmt.Sprintf("texture:%d", id))
}

func (b *Backend) CreatePipeline(desc metadata.PipelineDescription) (metadata.PipelineID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailCreate != nil {
		return 0, b.FailCreate
	}
	id := metadata.PipelineID(b.id())
	b.pipelines[id] = desc
	return id, nil
}

func (b *Backend) DestroyPipeline(id metadata.PipelineID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pipelines, id)
	b.Destroyed = append(b.Destroyed, fmt.Sprintf("pipeline:%d", id))
}

func (b *Backend) CreateMaterialSet(pipeline metadata.PipelineID, uniform metadata.BufferID, offset, size uint64, textures []metadata.ImageID) (metadata.DescriptorSetID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailCreate != nil {
		return 0, b.FailCreate
	}
	if _, ok := b.pipelines[pipeline]; !ok {
		return 0, fmt.Errorf("material set for unknown pipeline %d", pipeline)
	}
	for _, t := range textures {
		if _, ok := b.textures[t]; !ok {
			return 0, fmt.Errorf("material set references unknown image %d", t)
		}
	}
	id := metadata.DescriptorSetID(b.id())
	b.sets[id] = materialSet{pipeline: pipeline, uniform: uniform, offset: offset, textures: append([]metadata.ImageID(nil), textures...)}
	return id, nil
}

func (b *Backend) DestroyMaterialSet(id metadata.DescriptorSetID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sets, id)
	b.Destroyed = append(b.Destroyed, fmt.Sprintf("set:%d", id))
}

func (b *Backend) FramesInFlight() int {
	return len(b.slots)
}

func (b *Backend) FrameResources(slot int) metadata.FrameResources {
	return b.slots[slot].resources
}

// WaitForFence completes the work submitted on slot.
func (b *Backend) WaitForFence(slot int, timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := take(&b.FailWait); err != nil {
		return err
	}
	s := &b.slots[slot]
	s.submitted = false
	s.signalled = true
	return nil
}

func (b *Backend) ResetFence(slot int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[slot].signalled = false
	return nil
}

func (b *Backend) SignalFence(slot int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.slots[slot]
	s.acquired = false
	s.submitted = true
	b.ManualSignals++
	b.trackOutstanding()
	return nil
}

func (b *Backend) AcquireNextImage(slot int, timeout time.Duration) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// a suboptimal swapchain still hands out an image
	err := take(&b.FailAcquire)
	if err != nil && core.KindOf(err) != core.KindSwapchainSuboptimal {
		return 0, err
	}
	s := &b.slots[slot]
	if s.submitted {
		return 0, fmt.Errorf("acquire on slot %d while its previous frame is in flight", slot)
	}
	s.image = b.nextImage
	s.acquired = true
	b.nextImage = (b.nextImage + 1) % ImageCount
	return s.image, err
}

func (b *Backend) Recorder(slot int) metadata.CommandRecorder {
	return b.slots[slot].recorder
}

func (b *Backend) Submit(slot int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := take(&b.FailSubmit); err != nil {
		return err
	}
	s := &b.slots[slot]
	if !s.acquired {
		return fmt.Errorf("submit on slot %d without an acquired image", slot)
	}
	if s.recorder.recording {
		return fmt.Errorf("submit on slot %d while still recording", slot)
	}
	s.submitted = true
	b.Submits++
	b.Frames = append(b.Frames, append([]Command(nil), s.recorder.Commands...))
	b.trackOutstanding()
	return nil
}

func (b *Backend) Present(slot int, imageIndex uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.slots[slot]
	s.acquired = false
	if err := take(&b.FailPresent); err != nil {
		return err
	}
	b.Presents++
	return nil
}

func (b *Backend) RecreateSwapchain(width, height uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.slots {
		if s.submitted {
			return errors.New("swapchain recreated while frames are in flight")
		}
	}
	b.width, b.height = width, height
	b.Recreations++
	return nil
}

func (b *Backend) SwapchainExtent() (uint32, uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

// WaitIdle completes all submitted work.
func (b *Backend) WaitIdle() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.slots {
		b.slots[i].submitted = false
		b.slots[i].signalled = true
	}
	return nil
}

func (b *Backend) trackOutstanding() {
	n := 0
	for _, s := range b.slots {
		if s.submitted {
			n++
		}
	}
	if n > b.MaxOutstanding {
		b.MaxOutstanding = n
	}
}

// BufferData returns a copy of the contents of a buffer.
func (b *Backend) BufferData(id metadata.BufferID) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[id]; ok {
		return append([]byte(nil), buf.data...)
	}
	return nil
}

// BufferUsage returns the usage a live buffer was created with.
func (b *Backend) BufferUsage(id metadata.BufferID) (metadata.BufferUsage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[id]; ok {
		return buf.usage, true
	}
	return 0, false
}

// Live returns the number of live buffers, textures, pipelines and sets.
func (b *Backend) Live() (buffers, textures, pipelines, sets int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffers), len(b.textures), len(b.pipelines), len(b.sets)
}

// Outstanding returns the number of slots with unfinished submissions.
func (b *Backend) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.slots {
		if s.submitted {
			n++
		}
	}
	return n
}

// LastFrame returns the commands of the most recent submission.
func (b *Backend) LastFrame() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Frames) == 0 {
		return nil
	}
	return b.Frames[len(b.Frames)-1]
}

func take(err *error) error {
	e := *err
	*err = nil
	return e
}
