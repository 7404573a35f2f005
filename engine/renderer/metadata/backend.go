package metadata

import "time"

// Opaque ids of backend objects. Zero is never a valid id.
type (
	BufferID        uint64
	ImageID         uint64
	PipelineID      uint64
	DescriptorSetID uint64
)

type BufferUsage int

const (
	BufferUsageVertex BufferUsage = iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageInstance
	// BufferUsageStream is vertex data rewritten by the CPU every frame.
	BufferUsageStream
)

// DeviceLocal reports whether buffers of this usage live in device local
// memory and are filled through a staging copy.
func (u BufferUsage) DeviceLocal() bool {
	return u == BufferUsageVertex || u == BufferUsageIndex
}

type PresentMode int

const (
	PresentModeFIFO PresentMode = iota
	PresentModeMailbox
)

type BackendConfig struct {
	ApplicationName string
	Width           uint32
	Height          uint32
	FramesInFlight  int
	PresentMode     PresentMode
	MSAASamples     uint32
	Validation      bool
	MaxInstances    uint32
	MaxUIVertices   uint32
}

// PipelineDescription is a variant together with its SPIR-V code.
type PipelineDescription struct {
	Variant      PipelineVariant
	VertexCode   []uint32
	FragmentCode []uint32
}

// GlobalUniformSize is the size of the per-slot global uniform buffer.
const GlobalUniformSize = 2048

// FrameResources are the per-slot buffers every frame writes into.
type FrameResources struct {
	Globals    BufferID
	GlobalSet  DescriptorSetID
	Instances  BufferID
	UIVertices BufferID
}

/**
 * @brief The window backend consumed by the frame synchronizer.
 */
type Window interface {
	// CreateSurface creates a presentation surface for the given API instance.
	CreateSurface(instance interface{}) (uintptr, error)
	FramebufferSize() (width, height uint32)
	PollEvents()
	IsMinimized() bool
	RequiredInstanceExtensions() []string
}

/**
 * @brief The GPU operations the renderer needs. Every resource creation and
 * destruction goes through the resource registry; frame operations are
 * driven by the frame synchronizer and the pass executor.
 */
type Backend interface {
	Initialize(window Window, config BackendConfig) error
	Shutdown()

	CreateBuffer(usage BufferUsage, size uint64) (BufferID, error)
	UploadBuffer(id BufferID, offset uint64, data []byte) error
	DestroyBuffer(id BufferID)
	CreateTexture(desc TextureDescription, pixels []byte) (ImageID, error)
	DestroyTexture(id ImageID)
	CreatePipeline(desc PipelineDescription) (PipelineID, error)
	DestroyPipeline(id PipelineID)
	CreateMaterialSet(pipeline PipelineID, uniform BufferID, offset, size uint64, textures []ImageID) (DescriptorSetID, error)
	DestroyMaterialSet(id DescriptorSetID)

	FramesInFlight() int
	FrameResources(slot int) FrameResources
	WaitForFence(slot int, timeout time.Duration) error
	ResetFence(slot int) error
	// SignalFence signals the slot fence without recording work, consuming
	// the image-available semaphore of an acquired image.
	SignalFence(slot int) error
	AcquireNextImage(slot int, timeout time.Duration) (uint32, error)
	Recorder(slot int) CommandRecorder
	// Submit waits on image-available at the colour output stage and signals
	// render-finished and the slot fence.
	Submit(slot int) error
	// Present waits on render-finished.
	Present(slot int, imageIndex uint32) error
	RecreateSwapchain(width, height uint32) error
	SwapchainExtent() (width, height uint32)
	WaitIdle() error
}

/**
 * @brief Records GPU commands for one frame slot.
 */
type CommandRecorder interface {
	Begin() error
	BeginRenderPass(imageIndex uint32, clear Colour, depth float32) error
	BindPipeline(id PipelineID)
	BindDescriptorSet(set uint32, id DescriptorSetID)
	BindVertexBuffer(binding uint32, id BufferID, offset uint64)
	BindIndexBuffer(id BufferID, offset uint64)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	EndRenderPass()
	End() error
	Reset() error
}
