package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	PresentMode vk.PresentMode
	Extent      vk.Extent2D
	Handle      vk.Swapchain
	ImageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView

	DepthAttachment *VulkanImage

	// framebuffers used for on-screen rendering.
	Framebuffers []*VulkanFramebuffer
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

func SwapchainCreate(context *VulkanContext, width, height uint32, mode metadata.PresentMode) (*VulkanSwapchain, error) {
	return createSwapchain(context, width, height, mode, vk.NullSwapchain)
}

/**
 * @brief Builds a new swapchain from the old one and destroys the old one.
 * The device must be idle.
 */
func (vs *VulkanSwapchain) SwapchainRecreate(context *VulkanContext, width, height uint32, mode metadata.PresentMode) (*VulkanSwapchain, error) {
	// the surface may have changed since the last query
	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface, &context.Device.SwapchainSupport); err != nil {
		return nil, err
	}
	fresh, err := createSwapchain(context, width, height, mode, vs.Handle)
	vs.destroySwapchain(context)
	return fresh, err
}

func (vs *VulkanSwapchain) SwapchainDestroy(context *VulkanContext) {
	vs.destroySwapchain(context)
}

/**
 * @brief Acquires the next image, signalling imageAvailableSemaphore. A
 * suboptimal swapchain still returns a usable index together with a
 * KindSwapchainSuboptimal error.
 */
func (vs *VulkanSwapchain) SwapchainAcquireNextImageIndex(context *VulkanContext, timeout time.Duration, imageAvailableSemaphore vk.Semaphore) (uint32, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(context.Device.LogicalDevice, vs.Handle, uint64(timeout.Nanoseconds()), imageAvailableSemaphore, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success:
		return imageIndex, nil
	case vk.Suboptimal:
		return imageIndex, resultError(result, core.StageAcquire, "vkAcquireNextImageKHR")
	}
	return 0, resultError(result, core.StageAcquire, "vkAcquireNextImageKHR")
}

// SwapchainPresent returns the image to the swapchain once renderCompleteSemaphore is signalled.
func (vs *VulkanSwapchain) SwapchainPresent(presentQueue vk.Queue, renderCompleteSemaphore vk.Semaphore, presentImageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderCompleteSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{presentImageIndex},
		PResults:           nil,
	}
	return resultError(vk.QueuePresent(presentQueue, &presentInfo), core.StagePresent, "vkQueuePresentKHR")
}

// RegenerateFramebuffers builds one framebuffer per swapchain image, sharing the depth attachment.
func (vs *VulkanSwapchain) RegenerateFramebuffers(context *VulkanContext, renderpass *VulkanRenderpass) error {
	vs.destroyFramebuffers(context)
	vs.Framebuffers = make([]*VulkanFramebuffer, 0, vs.ImageCount)
	for i := uint32(0); i < vs.ImageCount; i++ {
		attachments := []vk.ImageView{vs.Views[i], vs.DepthAttachment.View}
		framebuffer, err := FramebufferCreate(context, renderpass, vs.Extent.Width, vs.Extent.Height, attachments)
		if err != nil {
			return err
		}
		vs.Framebuffers = append(vs.Framebuffers, framebuffer)
	}
	return nil
}

func choosePresentMode(support *VulkanSwapchainSupportInfo, mode metadata.PresentMode) vk.PresentMode {
	if mode != metadata.PresentModeMailbox {
		return vk.PresentModeFifo
	}
	for _, available := range support.PresentModes {
		if available == vk.PresentModeMailbox {
			return available
		}
	}
	// FIFO is always available.
	core.LogWarn("mailbox present mode unavailable, falling back to FIFO")
	return vk.PresentModeFifo
}

func clampExtent(value, low, high uint32) uint32 {
	return max(low, min(value, high))
}

func createSwapchain(context *VulkanContext, width, height uint32, mode metadata.PresentMode, old vk.Swapchain) (*VulkanSwapchain, error) {
	support := &context.Device.SwapchainSupport
	if len(support.Formats) == 0 {
		return nil, core.NewError(core.KindInitializationFailure, core.StageSwapchain, fmt.Errorf("surface reports no formats"))
	}
	swapchain := &VulkanSwapchain{}

	// Choose a swap surface format.
	swapchain.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			break
		}
	}
	swapchain.PresentMode = choosePresentMode(support, mode)

	// Swapchain extent
	capabilities := support.Capabilities
	swapchain.Extent = vk.Extent2D{Width: width, Height: height}
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		swapchain.Extent = capabilities.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	swapchain.Extent.Width = clampExtent(swapchain.Extent.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	swapchain.Extent.Height = clampExtent(swapchain.Extent.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)
	if swapchain.Extent.Width == 0 || swapchain.Extent.Height == 0 {
		return nil, core.NewError(core.KindSwapchainOutOfDate, core.StageSwapchain, fmt.Errorf("surface has a zero extent"))
	}

	imageCount := max(capabilities.MinImageCount+1, defaultImageCount)
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchain.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      swapchain.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	// Setup the queue family indices
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	device := context.Device.LogicalDevice
	var swapchainHandle vk.Swapchain
	if res := vk.CreateSwapchain(device, &swapchainCreateInfo, context.Allocator, &swapchainHandle); res != vk.Success {
		return nil, resultError(res, core.StageSwapchain, "vkCreateSwapchainKHR")
	}
	swapchain.Handle = swapchainHandle

	// Images
	if res := vk.GetSwapchainImages(device, swapchain.Handle, &swapchain.ImageCount, nil); res != vk.Success {
		swapchain.destroySwapchain(context)
		return nil, resultError(res, core.StageSwapchain, "vkGetSwapchainImagesKHR")
	}
	swapchain.Images = make([]vk.Image, swapchain.ImageCount)
	if res := vk.GetSwapchainImages(device, swapchain.Handle, &swapchain.ImageCount, swapchain.Images); res != vk.Success {
		swapchain.destroySwapchain(context)
		return nil, resultError(res, core.StageSwapchain, "vkGetSwapchainImagesKHR")
	}

	// Views
	swapchain.Views = make([]vk.ImageView, swapchain.ImageCount)
	for i := range swapchain.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    swapchain.Images[i],
			ViewType: vk.ImageViewType2d,
			Format:   swapchain.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		if res := vk.CreateImageView(device, &viewInfo, context.Allocator, &swapchain.Views[i]); res != vk.Success {
			swapchain.destroySwapchain(context)
			return nil, resultError(res, core.StageSwapchain, "vkCreateImageView")
		}
	}

	// Depth resources
	if context.Device.DepthFormat == vk.FormatUndefined && !DeviceDetectDepthFormat(context.Device) {
		swapchain.destroySwapchain(context)
		return nil, core.NewInitializationFailure(core.StageSwapchain, fmt.Errorf("no supported depth format"))
	}
	depthAttachment, err := ImageCreate(
		context,
		vk.ImageType2d,
		swapchain.Extent.Width,
		swapchain.Extent.Height,
		1,
		context.Device.DepthFormat,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		swapchain.destroySwapchain(context)
		return nil, err
	}
	swapchain.DepthAttachment = depthAttachment

	core.LogInfo("Swapchain created (%dx%d, %d images).", swapchain.Extent.Width, swapchain.Extent.Height, swapchain.ImageCount)
	return swapchain, nil
}

func (vs *VulkanSwapchain) destroyFramebuffers(context *VulkanContext) {
	for _, framebuffer := range vs.Framebuffers {
		framebuffer.FramebufferDestroy(context)
	}
	vs.Framebuffers = nil
}

func (vs *VulkanSwapchain) destroySwapchain(context *VulkanContext) {
	vs.destroyFramebuffers(context)
	if vs.DepthAttachment != nil {
		vs.DepthAttachment.ImageDestroy(context)
		vs.DepthAttachment = nil
	}

	// Only destroy the views, not the images, since those are owned by the swapchain and are thus
	// destroyed when it is.
	for _, view := range vs.Views {
		if view != vk.NullImageView {
			vk.DestroyImageView(context.Device.LogicalDevice, view, context.Allocator)
		}
	}
	vs.Views = nil
	vs.Images = nil

	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}
