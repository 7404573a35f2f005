package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type frameSlot struct {
	commandBuffer  *VulkanCommandBuffer
	recorder       *Recorder
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
	inFlight       *VulkanFence
	resources      metadata.FrameResources
	acquired       bool
	imageIndex     uint32
}

/**
 * @brief The Vulkan implementation of metadata.Backend. One render pass
 * draws into the swapchain image of the frame; every buffer is host
 * visible and persistently mapped.
 */
type VulkanBackend struct {
	context  *VulkanContext
	config   metadata.BackendConfig
	window   metadata.Window
	locks    *VulkanLockPool
	uploader *uploadContext

	descriptors *VulkanDescriptors
	baseLayout  vk.PipelineLayout

	nextID atomic.Uint64
	// resource maps are read by the recorders and written by the registry
	mu        sync.RWMutex
	buffers   map[metadata.BufferID]*VulkanBuffer
	textures  map[metadata.ImageID]*VulkanTexture
	pipelines map[metadata.PipelineID]*VulkanPipeline
	sets      map[metadata.DescriptorSetID]vk.DescriptorSet

	slots []*frameSlot
}

var _ metadata.Backend = (*VulkanBackend)(nil)

func New() *VulkanBackend {
	return &VulkanBackend{
		context:   &VulkanContext{},
		locks:     NewVulkanLockPool(),
		buffers:   make(map[metadata.BufferID]*VulkanBuffer),
		textures:  make(map[metadata.ImageID]*VulkanTexture),
		pipelines: make(map[metadata.PipelineID]*VulkanPipeline),
		sets:      make(map[metadata.DescriptorSetID]vk.DescriptorSet),
	}
}

func (vb *VulkanBackend) id() uint64 {
	return vb.nextID.Add(1)
}

func (vb *VulkanBackend) Initialize(window metadata.Window, config metadata.BackendConfig) error {
	if config.FramesInFlight < 1 || config.FramesInFlight > metadata.MaxFramesInFlight {
		return core.NewInitializationFailure(core.StageDevice, fmt.Errorf("frames in flight %d out of range", config.FramesInFlight))
	}
	if config.MSAASamples > 1 {
		core.LogWarn("MSAA x%d requested, multisampling is not supported and stays off", config.MSAASamples)
	}
	vb.config = config
	vb.window = window

	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return core.NewInitializationFailure(core.StagePlatform, fmt.Errorf("GetInstanceProcAddress is nil"))
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return core.NewInitializationFailure(core.StageInstance, err)
	}

	// TODO: custom allocator.
	vb.context.Allocator = nil
	vb.context.FramebufferWidth, vb.context.FramebufferHeight = window.FramebufferSize()

	if err := vb.createInstance(window, config); err != nil {
		return err
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateSurface(vb.context.Instance)
	if err != nil {
		return core.NewInitializationFailure(core.StagePlatform, err)
	}
	vb.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(vb.context); err != nil {
		return err
	}
	vb.locks.SetQueueFamily(uint32(vb.context.Device.GraphicsQueueIndex))
	vb.locks.SetQueueFamily(uint32(vb.context.Device.PresentQueueIndex))

	if vb.uploader, err = newUploadContext(vb.context, vb.locks); err != nil {
		return core.NewInitializationFailure(core.StageUpload, err)
	}

	// Swapchain
	sc, err := SwapchainCreate(vb.context, vb.context.FramebufferWidth, vb.context.FramebufferHeight, config.PresentMode)
	if err != nil {
		return core.NewInitializationFailure(core.StageSwapchain, err)
	}
	vb.context.Swapchain = sc

	rp, err := RenderpassCreate(vb.context, sc.ImageFormat.Format, vb.context.Device.DepthFormat)
	if err != nil {
		return core.NewInitializationFailure(core.StageRenderpass, err)
	}
	vb.context.MainRenderpass = rp

	if err := sc.RegenerateFramebuffers(vb.context, rp); err != nil {
		return core.NewInitializationFailure(core.StageSwapchain, err)
	}
	vb.context.ImagesInFlight = make([]*VulkanFence, sc.ImageCount)

	if vb.descriptors, err = DescriptorsCreate(vb.context, config.FramesInFlight); err != nil {
		return core.NewInitializationFailure(core.StagePipeline, err)
	}
	if vb.baseLayout, err = NewBaseLayout(vb.context, vb.descriptors.GlobalLayout); err != nil {
		return core.NewInitializationFailure(core.StagePipeline, err)
	}

	if err := vb.createFrameSlots(config); err != nil {
		return core.NewInitializationFailure(core.StageDevice, err)
	}

	core.LogInfo("Vulkan backend initialized (%dx%d, %d frames in flight).",
		sc.Extent.Width, sc.Extent.Height, config.FramesInFlight)
	return nil
}

func (vb *VulkanBackend) createInstance(window metadata.Window, config metadata.BackendConfig) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(config.ApplicationName),
		PEngineName:        VulkanSafeString("Anima Render"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := append([]string(nil), window.RequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	validation := config.Validation
	if validation {
		available, err := instanceLayers()
		if err != nil {
			return core.NewInitializationFailure(core.StageInstance, err)
		}
		if available[validationLayer] {
			layers = append(layers, validationLayer)
			requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
			core.LogInfo("Validation layers enabled.")
		} else {
			core.LogWarn("Validation requested but %s is missing, continuing without it.", validationLayer)
			validation = false
		}
	}
	for _, extension := range requiredExtensions {
		core.LogDebug("Required extension: %s", extension)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, vb.context.Allocator, &instance); res != vk.Success {
		return core.NewInitializationFailure(core.StageInstance, resultError(res, core.StageInstance, "vkCreateInstance"))
	}
	vb.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return core.NewInitializationFailure(core.StageInstance, err)
	}
	core.LogInfo("Vulkan Instance created.")

	if validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogWarn("vk.CreateDebugReportCallback failed with %s", err)
		} else {
			vb.context.debugMessenger = dbg
			core.LogDebug("Vulkan debugger created.")
		}
	}
	return nil
}

func instanceLayers() (map[string]bool, error) {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return nil, resultError(res, core.StageInstance, "vkEnumerateInstanceLayerProperties")
	}
	properties := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, properties); res != vk.Success {
		return nil, resultError(res, core.StageInstance, "vkEnumerateInstanceLayerProperties")
	}
	names := make(map[string]bool, count)
	for i := range properties {
		properties[i].Deref()
		names[cString(properties[i].LayerName[:])] = true
	}
	return names, nil
}

func (vb *VulkanBackend) createFrameSlots(config metadata.BackendConfig) error {
	instanceSize := uint64(unsafe.Sizeof(metadata.InstanceData{}))
	uiSize := uint64(unsafe.Sizeof(metadata.UIVertex{}))
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}

	vb.slots = make([]*frameSlot, config.FramesInFlight)
	for i := range vb.slots {
		slot := &frameSlot{}
		vb.slots[i] = slot

		cb, err := NewVulkanCommandBuffer(vb.context, vb.context.Device.GraphicsCommandPool, true)
		if err != nil {
			return err
		}
		slot.commandBuffer = cb
		slot.recorder = &Recorder{backend: vb, commandBuffer: cb, layout: vb.baseLayout}

		if res := vk.CreateSemaphore(vb.context.Device.LogicalDevice, &semaphoreCreateInfo, vb.context.Allocator, &slot.imageAvailable); res != vk.Success {
			return resultError(res, core.StageDevice, "vkCreateSemaphore")
		}
		if res := vk.CreateSemaphore(vb.context.Device.LogicalDevice, &semaphoreCreateInfo, vb.context.Allocator, &slot.renderFinished); res != vk.Success {
			return resultError(res, core.StageDevice, "vkCreateSemaphore")
		}
		// Created signalled so the first wait on every slot returns at once.
		if slot.inFlight, err = NewFence(vb.context, true); err != nil {
			return err
		}

		globals, err := vb.CreateBuffer(metadata.BufferUsageUniform, metadata.GlobalUniformSize)
		if err != nil {
			return err
		}
		instances, err := vb.CreateBuffer(metadata.BufferUsageInstance, max(1, uint64(config.MaxInstances))*instanceSize)
		if err != nil {
			return err
		}
		ui, err := vb.CreateBuffer(metadata.BufferUsageStream, max(1, uint64(config.MaxUIVertices))*uiSize)
		if err != nil {
			return err
		}
		globalBuffer, _ := vb.buffer(globals)
		set, err := vb.descriptors.AllocateGlobal(vb.context, globalBuffer)
		if err != nil {
			return err
		}
		setID := metadata.DescriptorSetID(vb.id())
		vb.mu.Lock()
		vb.sets[setID] = set
		vb.mu.Unlock()

		slot.resources = metadata.FrameResources{
			Globals:    globals,
			GlobalSet:  setID,
			Instances:  instances,
			UIVertices: ui,
		}
	}
	core.LogDebug("%d frame slots created.", len(vb.slots))
	return nil
}

func (vb *VulkanBackend) Shutdown() {
	if vb.context.Device == nil || vb.context.Device.LogicalDevice == nil {
		vb.destroyInstance()
		return
	}
	vk.DeviceWaitIdle(vb.context.Device.LogicalDevice)
	context := vb.context

	// Destroy in the opposite order of creation.
	for _, slot := range vb.slots {
		if slot.imageAvailable != vk.NullSemaphore {
			vk.DestroySemaphore(context.Device.LogicalDevice, slot.imageAvailable, context.Allocator)
		}
		if slot.renderFinished != vk.NullSemaphore {
			vk.DestroySemaphore(context.Device.LogicalDevice, slot.renderFinished, context.Allocator)
		}
		if slot.inFlight != nil {
			slot.inFlight.FenceDestroy(context)
		}
		if slot.commandBuffer != nil {
			slot.commandBuffer.Free(context, context.Device.GraphicsCommandPool)
		}
	}
	vb.slots = nil
	context.ImagesInFlight = nil

	vb.mu.Lock()
	for id, pipeline := range vb.pipelines {
		pipeline.Destroy(context)
		delete(vb.pipelines, id)
	}
	for id, texture := range vb.textures {
		texture.Destroy(context)
		delete(vb.textures, id)
	}
	for id, buffer := range vb.buffers {
		buffer.Destroy(context)
		delete(vb.buffers, id)
	}
	// freed with the pool
	vb.sets = make(map[metadata.DescriptorSetID]vk.DescriptorSet)
	vb.mu.Unlock()

	if vb.baseLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(context.Device.LogicalDevice, vb.baseLayout, context.Allocator)
		vb.baseLayout = vk.NullPipelineLayout
	}
	if vb.descriptors != nil {
		vb.descriptors.Destroy(context)
	}
	if context.MainRenderpass != nil {
		context.MainRenderpass.RenderpassDestroy(context)
	}
	if context.Swapchain != nil {
		context.Swapchain.SwapchainDestroy(context)
	}
	if vb.uploader != nil {
		vb.uploader.destroy()
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(context)
	vb.destroyInstance()
}

func (vb *VulkanBackend) destroyInstance() {
	context := vb.context
	if context.Instance == nil {
		return
	}
	core.LogDebug("Destroying Vulkan surface...")
	if context.Surface != vk.NullSurface {
		vk.DestroySurface(context.Instance, context.Surface, context.Allocator)
		context.Surface = vk.NullSurface
	}
	if context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(context.Instance, context.debugMessenger, context.Allocator)
		context.debugMessenger = vk.NullDebugReportCallback
	}
	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(context.Instance, context.Allocator)
	context.Instance = nil
}

func (vb *VulkanBackend) buffer(id metadata.BufferID) (*VulkanBuffer, bool) {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	b, ok := vb.buffers[id]
	return b, ok
}

func (vb *VulkanBackend) pipeline(id metadata.PipelineID) (*VulkanPipeline, bool) {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	p, ok := vb.pipelines[id]
	return p, ok
}

func (vb *VulkanBackend) descriptorSet(id metadata.DescriptorSetID) (vk.DescriptorSet, bool) {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	s, ok := vb.sets[id]
	return s, ok
}

func (vb *VulkanBackend) CreateBuffer(usage metadata.BufferUsage, size uint64) (metadata.BufferID, error) {
	buffer, err := BufferCreate(vb.context, usage, size)
	if err != nil {
		return 0, err
	}
	id := metadata.BufferID(vb.id())
	vb.mu.Lock()
	vb.buffers[id] = buffer
	vb.mu.Unlock()
	return id, nil
}

func (vb *VulkanBackend) UploadBuffer(id metadata.BufferID, offset uint64, data []byte) error {
	buffer, ok := vb.buffer(id)
	if !ok {
		return fmt.Errorf("upload to unknown buffer %d", id)
	}
	return buffer.Upload(vb.context, vb.uploader, offset, data)
}

func (vb *VulkanBackend) DestroyBuffer(id metadata.BufferID) {
	vb.mu.Lock()
	buffer, ok := vb.buffers[id]
	delete(vb.buffers, id)
	vb.mu.Unlock()
	if ok {
		buffer.Destroy(vb.context)
	}
}

func (vb *VulkanBackend) CreateTexture(desc metadata.TextureDescription, pixels []byte) (metadata.ImageID, error) {
	if _, ok := textureFormats[desc.Format]; !ok {
		return 0, core.NewInvalidLayout(core.StageUpload, fmt.Sprintf("texture '%s' has an unknown format", desc.Name))
	}
	want := int(desc.Width) * int(desc.Height) * desc.Format.BytesPerPixel()
	if len(pixels) != want || want == 0 {
		return 0, core.NewInvalidLayout(core.StageUpload,
			fmt.Sprintf("texture '%s' needs %d bytes of pixels, got %d", desc.Name, want, len(pixels)))
	}
	texture, err := TextureCreate(vb.context, vb.uploader, desc, pixels)
	if err != nil {
		return 0, err
	}
	id := metadata.ImageID(vb.id())
	vb.mu.Lock()
	vb.textures[id] = texture
	vb.mu.Unlock()
	return id, nil
}

func (vb *VulkanBackend) DestroyTexture(id metadata.ImageID) {
	vb.mu.Lock()
	texture, ok := vb.textures[id]
	delete(vb.textures, id)
	vb.mu.Unlock()
	if ok {
		texture.Destroy(vb.context)
	}
}

func (vb *VulkanBackend) CreatePipeline(desc metadata.PipelineDescription) (metadata.PipelineID, error) {
	var pipeline *VulkanPipeline
	err := vb.locks.SafeCall(PipelineManagement, func() error {
		materialLayout, err := vb.descriptorLayout(desc.Variant.Samplers)
		if err != nil {
			return err
		}

		vertex, err := NewShaderStage(vb.context, desc.Variant.VertexShader, desc.VertexCode, vk.ShaderStageVertexBit)
		if err != nil {
			return err
		}
		defer vertex.Destroy(vb.context)
		fragment, err := NewShaderStage(vb.context, desc.Variant.FragmentShader, desc.FragmentCode, vk.ShaderStageFragmentBit)
		if err != nil {
			return err
		}
		defer fragment.Destroy(vb.context)

		pipeline, err = NewGraphicsPipeline(vb.context, &VulkanPipelineConfig{
			Renderpass:           vb.context.MainRenderpass,
			Variant:              desc.Variant,
			DescriptorSetLayouts: []vk.DescriptorSetLayout{vb.descriptors.GlobalLayout, materialLayout},
			Stages: []vk.PipelineShaderStageCreateInfo{
				vertex.ShaderStageCreateInfo,
				fragment.ShaderStageCreateInfo,
			},
		})
		if err != nil {
			return err
		}
		pipeline.MaterialLayout = materialLayout
		return nil
	})
	if err != nil {
		return 0, err
	}
	id := metadata.PipelineID(vb.id())
	vb.mu.Lock()
	vb.pipelines[id] = pipeline
	vb.mu.Unlock()
	return id, nil
}

// descriptorLayout returns the cached material layout for samplers.
func (vb *VulkanBackend) descriptorLayout(samplers int) (vk.DescriptorSetLayout, error) {
	var layout vk.DescriptorSetLayout
	err := vb.locks.SafeCall(DescriptorManagement, func() error {
		var err error
		layout, err = vb.descriptors.MaterialLayout(vb.context, samplers)
		return err
	})
	return layout, err
}

func (vb *VulkanBackend) DestroyPipeline(id metadata.PipelineID) {
	vb.mu.Lock()
	pipeline, ok := vb.pipelines[id]
	delete(vb.pipelines, id)
	vb.mu.Unlock()
	if ok {
		pipeline.Destroy(vb.context)
	}
}

func (vb *VulkanBackend) CreateMaterialSet(pipelineID metadata.PipelineID, uniformID metadata.BufferID, offset, size uint64, textureIDs []metadata.ImageID) (metadata.DescriptorSetID, error) {
	vb.mu.RLock()
	pipeline, ok := vb.pipelines[pipelineID]
	uniform, uniformOK := vb.buffers[uniformID]
	textures := make([]*VulkanTexture, 0, len(textureIDs))
	for _, tid := range textureIDs {
		if texture, found := vb.textures[tid]; found {
			textures = append(textures, texture)
		}
	}
	vb.mu.RUnlock()

	switch {
	case !ok:
		return 0, fmt.Errorf("material set for unknown pipeline %d", pipelineID)
	case !uniformOK:
		return 0, fmt.Errorf("material set for unknown uniform buffer %d", uniformID)
	case len(textures) != len(textureIDs):
		return 0, fmt.Errorf("material set references an unknown image")
	case len(textures) != pipeline.Variant.Samplers:
		return 0, core.NewInvalidLayout(core.StagePipeline,
			fmt.Sprintf("pipeline '%s' takes %d textures, got %d", pipeline.Variant.Name, pipeline.Variant.Samplers, len(textures)))
	}

	var set vk.DescriptorSet
	err := vb.locks.SafeCall(DescriptorManagement, func() error {
		var err error
		set, err = vb.descriptors.AllocateMaterial(vb.context, pipeline.MaterialLayout, uniform, offset, size, textures)
		return err
	})
	if err != nil {
		return 0, err
	}
	id := metadata.DescriptorSetID(vb.id())
	vb.mu.Lock()
	vb.sets[id] = set
	vb.mu.Unlock()
	return id, nil
}

func (vb *VulkanBackend) DestroyMaterialSet(id metadata.DescriptorSetID) {
	vb.mu.Lock()
	set, ok := vb.sets[id]
	delete(vb.sets, id)
	vb.mu.Unlock()
	if ok {
		_ = vb.locks.SafeCall(DescriptorManagement, func() error {
			vb.descriptors.Free(vb.context, set)
			return nil
		})
	}
}

func (vb *VulkanBackend) FramesInFlight() int {
	return len(vb.slots)
}

func (vb *VulkanBackend) FrameResources(slot int) metadata.FrameResources {
	return vb.slots[slot].resources
}

func (vb *VulkanBackend) WaitForFence(slot int, timeout time.Duration) error {
	return vb.slots[slot].inFlight.FenceWait(vb.context, timeout)
}

func (vb *VulkanBackend) ResetFence(slot int) error {
	return vb.slots[slot].inFlight.FenceReset(vb.context)
}

/**
 * @brief Signals the slot fence with an empty submission. An acquired image
 * has its image-available semaphore consumed by the submission; the image
 * itself is not presented.
 */
func (vb *VulkanBackend) SignalFence(slot int) error {
	s := vb.slots[slot]
	submitInfo := vk.SubmitInfo{SType: vk.StructureTypeSubmitInfo}
	if s.acquired {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{s.imageAvailable}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)}
		vb.context.ImagesInFlight[s.imageIndex] = nil
		core.LogDebug("slot %d releases image %d unpresented", slot, s.imageIndex)
	}
	if err := s.inFlight.FenceReset(vb.context); err != nil {
		return err
	}
	err := vb.locks.SafeQueueCall(uint32(vb.context.Device.GraphicsQueueIndex), func() error {
		return resultError(vk.QueueSubmit(vb.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, s.inFlight.Handle),
			core.StageSubmit, "vkQueueSubmit")
	})
	s.acquired = false
	return err
}

func (vb *VulkanBackend) AcquireNextImage(slot int, timeout time.Duration) (uint32, error) {
	s := vb.slots[slot]
	imageIndex, err := vb.context.Swapchain.SwapchainAcquireNextImageIndex(vb.context, timeout, s.imageAvailable)
	if err != nil && core.KindOf(err) != core.KindSwapchainSuboptimal {
		return 0, err
	}

	// Make sure the previous frame is not using this image (i.e. its fence is being waited on)
	if previous := vb.context.ImagesInFlight[imageIndex]; previous != nil && previous != s.inFlight {
		if werr := previous.FenceWait(vb.context, timeout); werr != nil {
			return 0, werr
		}
	}
	// Mark the image fence as in-use by this frame.
	vb.context.ImagesInFlight[imageIndex] = s.inFlight

	s.acquired = true
	s.imageIndex = imageIndex
	return imageIndex, err
}

func (vb *VulkanBackend) Recorder(slot int) metadata.CommandRecorder {
	return vb.slots[slot].recorder
}

func (vb *VulkanBackend) Submit(slot int) error {
	s := vb.slots[slot]
	if !s.acquired {
		return fmt.Errorf("submit on slot %d without an acquired image", slot)
	}
	if s.commandBuffer.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
		return fmt.Errorf("submit on slot %d while the command buffer is in state %d", slot, s.commandBuffer.State)
	}

	submitInfo := vk.SubmitInfo{
		SType: vk.StructureTypeSubmitInfo,
		// Command buffer(s) to be executed.
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{s.commandBuffer.Handle},
		// The semaphore(s) to be signaled when the queue is complete.
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{s.renderFinished},
		// Wait semaphore ensures that the operation cannot begin until the image is available.
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{s.imageAvailable},
		// VK_PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT_BIT prevents subsequent colour attachment
		// writes from executing until the semaphore signals (i.e. one frame is presented at a time)
		PWaitDstStageMask: []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
	}

	err := vb.locks.SafeQueueCall(uint32(vb.context.Device.GraphicsQueueIndex), func() error {
		return resultError(vk.QueueSubmit(vb.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, s.inFlight.Handle),
			core.StageSubmit, "vkQueueSubmit")
	})
	if err != nil {
		return err
	}
	s.commandBuffer.UpdateSubmitted()
	return nil
}

func (vb *VulkanBackend) Present(slot int, imageIndex uint32) error {
	s := vb.slots[slot]
	s.acquired = false
	return vb.locks.SafeQueueCall(uint32(vb.context.Device.PresentQueueIndex), func() error {
		return vb.context.Swapchain.SwapchainPresent(vb.context.Device.PresentQueue, s.renderFinished, imageIndex)
	})
}

/**
 * @brief Rebuilds the swapchain and its framebuffers. Pipelines use a
 * dynamic viewport, and the render pass only depends on formats, so both
 * survive.
 */
func (vb *VulkanBackend) RecreateSwapchain(width, height uint32) error {
	return vb.locks.SafeCall(SwapchainManagement, func() error {
		if err := vb.WaitIdle(); err != nil {
			return err
		}
		context := vb.context
		sc, err := context.Swapchain.SwapchainRecreate(context, width, height, vb.config.PresentMode)
		if err != nil {
			return err
		}
		context.Swapchain = sc
		if sc.ImageFormat.Format != context.MainRenderpass.ColorFormat {
			return core.NewInitializationFailure(core.StageSwapchain, fmt.Errorf("surface format changed on recreation"))
		}
		if err := sc.RegenerateFramebuffers(context, context.MainRenderpass); err != nil {
			return err
		}
		// Clear these out just in case.
		context.ImagesInFlight = make([]*VulkanFence, sc.ImageCount)
		context.FramebufferWidth, context.FramebufferHeight = sc.Extent.Width, sc.Extent.Height
		return nil
	})
}

func (vb *VulkanBackend) SwapchainExtent() (uint32, uint32) {
	if vb.context.Swapchain == nil {
		return 0, 0
	}
	return vb.context.Swapchain.Extent.Width, vb.context.Swapchain.Extent.Height
}

func (vb *VulkanBackend) WaitIdle() error {
	res := vk.DeviceWaitIdle(vb.context.Device.LogicalDevice)
	if res != vk.Success {
		return resultError(res, core.StageShutdown, "vkDeviceWaitIdle")
	}
	// every fence submitted so far has signalled
	for _, s := range vb.slots {
		if !s.inFlight.IsSignaled {
			s.inFlight.IsSignaled = vk.GetFenceStatus(vb.context.Device.LogicalDevice, s.inFlight.Handle) == vk.Success
		}
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
