package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

type VulkanImage struct {
	Handle    vk.Image
	Memory    vk.DeviceMemory
	View      vk.ImageView
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    vk.Format
}

/**
 * @brief Creates a device local image, optionally with a view.
 */
func ImageCreate(
	context *VulkanContext,
	imageType vk.ImageType,
	width, height, mipLevels uint32,
	format vk.Format,
	tiling vk.ImageTiling,
	usage vk.ImageUsageFlags,
	memoryFlags vk.MemoryPropertyFlags,
	createView bool,
	viewAspectFlags vk.ImageAspectFlags,
) (*VulkanImage, error) {
	device := context.Device.LogicalDevice
	outImage := &VulkanImage{Width: width, Height: height, MipLevels: max(1, mipLevels), Format: format}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imageType,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     outImage.MipLevels,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	if res := vk.CreateImage(device, &imageCreateInfo, context.Allocator, &outImage.Handle); res != vk.Success {
		return nil, resultError(res, core.StageUpload, "vkCreateImage")
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, outImage.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType, err := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, memoryFlags)
	if err != nil {
		outImage.ImageDestroy(context)
		return nil, core.NewError(core.KindOutOfDeviceMemory, core.StageUpload, err)
	}
	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}
	if res := vk.AllocateMemory(device, &memoryAllocateInfo, context.Allocator, &outImage.Memory); res != vk.Success {
		outImage.ImageDestroy(context)
		return nil, resultError(res, core.StageUpload, "vkAllocateMemory")
	}
	// TODO: configurable memory offset once images are suballocated.
	if res := vk.BindImageMemory(device, outImage.Handle, outImage.Memory, 0); res != vk.Success {
		outImage.ImageDestroy(context)
		return nil, resultError(res, core.StageUpload, "vkBindImageMemory")
	}

	if createView {
		if err := outImage.ImageViewCreate(context, format, viewAspectFlags); err != nil {
			outImage.ImageDestroy(context)
			return nil, err
		}
	}
	return outImage, nil
}

func (vi *VulkanImage) ImageViewCreate(context *VulkanContext, format vk.Format, aspectFlags vk.ImageAspectFlags) error {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    vi.Handle,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFlags,
			BaseMipLevel:   0,
			LevelCount:     vi.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &vi.View); res != vk.Success {
		return resultError(res, core.StageUpload, "vkCreateImageView")
	}
	return nil
}

// transition records a layout change of mip levels [baseMip, baseMip+levels).
func (vi *VulkanImage) transition(cb *VulkanCommandBuffer, oldLayout, newLayout vk.ImageLayout, baseMip, levels uint32) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               vi.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   baseMip,
			LevelCount:     levels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var srcStage, dstStage vk.PipelineStageFlagBits
	switch {
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage, dstStage = vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit
	case oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutTransferSrcOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferReadBit)
		srcStage, dstStage = vk.PipelineStageTransferBit, vk.PipelineStageTransferBit
	case oldLayout == vk.ImageLayoutTransferSrcOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferReadBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage, dstStage = vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit
	default:
		// transfer destination to shader read
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage, dstStage = vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit
	}

	vk.CmdPipelineBarrier(cb.Handle,
		vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (vi *VulkanImage) copyFromBuffer(cb *VulkanCommandBuffer, buffer *VulkanBuffer) {
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{Width: vi.Width, Height: vi.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cb.Handle, buffer.Handle, vi.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

// generateMips blits every level from the previous one and leaves all
// levels in shader read layout. Level 0 must hold the pixels in transfer
// destination layout.
func (vi *VulkanImage) generateMips(cb *VulkanCommandBuffer) {
	w, h := int32(vi.Width), int32(vi.Height)
	for level := uint32(1); level < vi.MipLevels; level++ {
		vi.transition(cb, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal, level-1, 1)

		nw, nh := max(1, w/2), max(1, h/2)
		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), MipLevel: level - 1, LayerCount: 1,
			},
			SrcOffsets: [2]vk.Offset3D{{}, {X: w, Y: h, Z: 1}},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), MipLevel: level, LayerCount: 1,
			},
			DstOffsets: [2]vk.Offset3D{{}, {X: nw, Y: nh, Z: 1}},
		}
		vk.CmdBlitImage(cb.Handle,
			vi.Handle, vk.ImageLayoutTransferSrcOptimal,
			vi.Handle, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageBlit{blit}, vk.FilterLinear)

		vi.transition(cb, vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal, level-1, 1)
		w, h = nw, nh
	}
	vi.transition(cb, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal, vi.MipLevels-1, 1)
}

func (vi *VulkanImage) ImageDestroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if vi.View != vk.NullImageView {
		vk.DestroyImageView(device, vi.View, context.Allocator)
		vi.View = vk.NullImageView
	}
	if vi.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, vi.Memory, context.Allocator)
		vi.Memory = vk.NullDeviceMemory
	}
	if vi.Handle != vk.NullImage {
		vk.DestroyImage(device, vi.Handle, context.Allocator)
		vi.Handle = vk.NullImage
	}
}

/**
 * @brief A sampled image together with its sampler.
 */
type VulkanTexture struct {
	Image   *VulkanImage
	Sampler vk.Sampler
}

var textureFormats = map[metadata.TextureFormat]vk.Format{
	metadata.TextureFormatRGBA8:     vk.FormatR8g8b8a8Unorm,
	metadata.TextureFormatRGBA8SRGB: vk.FormatR8g8b8a8Srgb,
	metadata.TextureFormatR8:        vk.FormatR8Unorm,
}

var samplerAddressModes = map[metadata.TextureWrap]vk.SamplerAddressMode{
	metadata.TextureWrapRepeat:         vk.SamplerAddressModeRepeat,
	metadata.TextureWrapClampToEdge:    vk.SamplerAddressModeClampToEdge,
	metadata.TextureWrapMirroredRepeat: vk.SamplerAddressModeMirroredRepeat,
}

/**
 * @brief Uploads pixels into a new sampled image through a staging buffer,
 * generating the mip chain with blits when requested and supported.
 */
func TextureCreate(context *VulkanContext, uploader *uploadContext, desc metadata.TextureDescription, pixels []byte) (*VulkanTexture, error) {
	format := textureFormats[desc.Format]
	levels := desc.MipLevels()
	if levels > 1 && !context.Device.SupportsLinearBlit(format) {
		core.LogWarn("texture '%s': format does not support linear blits, mips disabled", desc.Name)
		levels = 1
	}

	staging, err := StagingBufferCreate(context, uint64(len(pixels)))
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(context)
	if err := staging.LoadData(0, pixels); err != nil {
		return nil, err
	}

	usage := vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit)
	if levels > 1 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	image, err := ImageCreate(context, vk.ImageType2d, desc.Width, desc.Height, levels, format,
		vk.ImageTilingOptimal, usage, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true, vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return nil, err
	}

	err = uploader.submit(func(cb *VulkanCommandBuffer) {
		image.transition(cb, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal, 0, levels)
		image.copyFromBuffer(cb, staging)
		if levels > 1 {
			image.generateMips(cb)
		} else {
			image.transition(cb, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal, 0, 1)
		}
	})
	if err != nil {
		image.ImageDestroy(context)
		return nil, err
	}

	filter := vk.FilterLinear
	mipmapMode := vk.SamplerMipmapModeLinear
	if desc.Filter == metadata.TextureFilterNearest {
		filter = vk.FilterNearest
		mipmapMode = vk.SamplerMipmapModeNearest
	}
	addressMode, ok := samplerAddressModes[desc.Wrap]
	if !ok {
		addressMode = vk.SamplerAddressModeRepeat
	}
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		AddressModeU:            addressMode,
		AddressModeV:            addressMode,
		AddressModeW:            addressMode,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           16,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              mipmapMode,
		MinLod:                  0,
		MaxLod:                  float32(levels),
	}
	if !context.Device.anisotropy {
		samplerInfo.AnisotropyEnable = vk.False
		samplerInfo.MaxAnisotropy = 1
	}

	texture := &VulkanTexture{Image: image}
	if res := vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &texture.Sampler); res != vk.Success {
		image.ImageDestroy(context)
		return nil, resultError(res, core.StageUpload, "vkCreateSampler")
	}
	return texture, nil
}

func (vt *VulkanTexture) Destroy(context *VulkanContext) {
	if vt.Sampler != vk.NullSampler {
		vk.DestroySampler(context.Device.LogicalDevice, vt.Sampler, context.Allocator)
		vt.Sampler = vk.NullSampler
	}
	if vt.Image != nil {
		vt.Image.ImageDestroy(context)
	}
}
