package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

/**
 * @brief A GPU buffer. Mesh vertex and index data lives in device local
 * memory and is filled through a staging copy; per-frame data (uniforms,
 * instances, UI vertices) stays host visible and persistently mapped.
 */
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Usage  metadata.BufferUsage
	mapped unsafe.Pointer
}

var bufferUsages = map[metadata.BufferUsage]vk.BufferUsageFlagBits{
	metadata.BufferUsageVertex:   vk.BufferUsageVertexBufferBit | vk.BufferUsageTransferDstBit,
	metadata.BufferUsageIndex:    vk.BufferUsageIndexBufferBit | vk.BufferUsageTransferDstBit,
	metadata.BufferUsageUniform:  vk.BufferUsageUniformBufferBit,
	metadata.BufferUsageInstance: vk.BufferUsageVertexBufferBit,
	metadata.BufferUsageStream:   vk.BufferUsageVertexBufferBit,
}

const hostMemory = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit

func BufferCreate(context *VulkanContext, usage metadata.BufferUsage, size uint64) (*VulkanBuffer, error) {
	flags, ok := bufferUsages[usage]
	if !ok {
		return nil, fmt.Errorf("unknown buffer usage %d", usage)
	}
	properties := vk.MemoryPropertyFlags(hostMemory)
	if usage.DeviceLocal() {
		properties = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	}
	return bufferCreate(context, vk.BufferUsageFlags(flags), properties, size, usage)
}

// StagingBufferCreate makes a transfer source buffer.
func StagingBufferCreate(context *VulkanContext, size uint64) (*VulkanBuffer, error) {
	return bufferCreate(context, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), vk.MemoryPropertyFlags(hostMemory), size, 0)
}

func bufferCreate(context *VulkanContext, flags vk.BufferUsageFlags, properties vk.MemoryPropertyFlags, size uint64, usage metadata.BufferUsage) (*VulkanBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer of zero size")
	}
	device := context.Device.LogicalDevice
	buffer := &VulkanBuffer{Size: size, Usage: usage}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       flags,
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(device, &bufferInfo, context.Allocator, &buffer.Handle); res != vk.Success {
		return nil, resultError(res, core.StageUpload, "vkCreateBuffer")
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer.Handle, &memReqs)
	memReqs.Deref()

	memoryType, err := context.FindMemoryIndex(memReqs.MemoryTypeBits, properties)
	if err != nil {
		vk.DestroyBuffer(device, buffer.Handle, context.Allocator)
		return nil, core.NewError(core.KindOutOfDeviceMemory, core.StageUpload, err)
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryType,
	}
	if res := vk.AllocateMemory(device, &allocInfo, context.Allocator, &buffer.Memory); res != vk.Success {
		vk.DestroyBuffer(device, buffer.Handle, context.Allocator)
		return nil, resultError(res, core.StageUpload, "vkAllocateMemory")
	}
	if res := vk.BindBufferMemory(device, buffer.Handle, buffer.Memory, 0); res != vk.Success {
		buffer.Destroy(context)
		return nil, resultError(res, core.StageUpload, "vkBindBufferMemory")
	}
	if properties&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) == 0 {
		return buffer, nil
	}
	if res := vk.MapMemory(device, buffer.Memory, 0, vk.DeviceSize(size), 0, &buffer.mapped); res != vk.Success {
		buffer.Destroy(context)
		return nil, resultError(res, core.StageUpload, "vkMapMemory")
	}
	return buffer, nil
}

/**
 * @brief Writes data at offset. Mapped buffers are written directly; device
 * local ones get a staging buffer and a vkCmdCopyBuffer that completes
 * before Upload returns.
 */
func (vb *VulkanBuffer) Upload(context *VulkanContext, uploader *uploadContext, offset uint64, data []byte) error {
	if vb.mapped != nil {
		return vb.LoadData(offset, data)
	}
	if err := vb.checkRange(offset, len(data)); err != nil || len(data) == 0 {
		return err
	}
	staging, err := StagingBufferCreate(context, uint64(len(data)))
	if err != nil {
		return err
	}
	defer staging.Destroy(context)
	if err := staging.LoadData(0, data); err != nil {
		return err
	}
	return uploader.submit(func(cb *VulkanCommandBuffer) {
		region := vk.BufferCopy{
			SrcOffset: 0,
			DstOffset: vk.DeviceSize(offset),
			Size:      vk.DeviceSize(len(data)),
		}
		vk.CmdCopyBuffer(cb.Handle, staging.Handle, vb.Handle, 1, []vk.BufferCopy{region})
	})
}

func (vb *VulkanBuffer) checkRange(offset uint64, n int) error {
	if offset+uint64(n) > vb.Size {
		return core.NewError(core.KindOutOfDeviceMemory, core.StageUpload,
			fmt.Errorf("upload of %d bytes at %d overflows a buffer of %d bytes", n, offset, vb.Size))
	}
	return nil
}

/**
 * @brief Copies data into a mapped buffer at offset.
 */
func (vb *VulkanBuffer) LoadData(offset uint64, data []byte) error {
	if err := vb.checkRange(offset, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if vb.mapped == nil {
		return fmt.Errorf("buffer is not host visible")
	}
	dst := unsafe.Slice((*byte)(vb.mapped), vb.Size)
	copy(dst[offset:], data)
	return nil
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if vb.mapped != nil {
		vk.UnmapMemory(device, vb.Memory)
		vb.mapped = nil
	}
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, vb.Memory, context.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, vb.Handle, context.Allocator)
		vb.Handle = vk.NullBuffer
	}
	vb.Size = 0
}
