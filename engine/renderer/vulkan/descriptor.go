package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-render/engine/core"
)

/**
 * @brief Owns the descriptor pool and the set layouts shared by every
 * pipeline. Set 0 holds the per-frame globals (binding 0, a uniform buffer).
 * Set 1 holds a material: its uniform block at binding 0 followed by one
 * combined image sampler per texture.
 */
type VulkanDescriptors struct {
	Pool         vk.DescriptorPool
	GlobalLayout vk.DescriptorSetLayout
	// material layouts keyed by sampler count
	materialLayouts map[int]vk.DescriptorSetLayout
}

func DescriptorsCreate(context *VulkanContext, framesInFlight int) (*VulkanDescriptors, error) {
	descriptors := &VulkanDescriptors{materialLayouts: make(map[int]vk.DescriptorSetLayout)}

	globalBinding := vk.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
	}
	layout, err := createSetLayout(context, []vk.DescriptorSetLayoutBinding{globalBinding})
	if err != nil {
		return nil, err
	}
	descriptors.GlobalLayout = layout

	sets := uint32(framesInFlight) + VULKAN_MAX_MATERIAL_COUNT
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: sets},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: VULKAN_MAX_MATERIAL_COUNT * VULKAN_MAX_MATERIAL_SAMPLERS},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       sets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool); res != vk.Success {
		descriptors.Destroy(context)
		return nil, resultError(res, core.StagePipeline, "vkCreateDescriptorPool")
	}
	descriptors.Pool = pool
	return descriptors, nil
}

func createSetLayout(context *VulkanContext, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &layout); res != vk.Success {
		return vk.NullDescriptorSetLayout, resultError(res, core.StagePipeline, "vkCreateDescriptorSetLayout")
	}
	return layout, nil
}

// MaterialLayout returns the set 1 layout for a material with samplers textures.
func (vd *VulkanDescriptors) MaterialLayout(context *VulkanContext, samplers int) (vk.DescriptorSetLayout, error) {
	if samplers < 0 || samplers > VULKAN_MAX_MATERIAL_SAMPLERS {
		return vk.NullDescriptorSetLayout, core.NewInvalidLayout(core.StagePipeline,
			fmt.Sprintf("%d samplers, at most %d are supported", samplers, VULKAN_MAX_MATERIAL_SAMPLERS))
	}
	if layout, ok := vd.materialLayouts[samplers]; ok {
		return layout, nil
	}
	bindings := []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
	}}
	for i := 0; i < samplers; i++ {
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i + 1),
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		})
	}
	layout, err := createSetLayout(context, bindings)
	if err != nil {
		return vk.NullDescriptorSetLayout, err
	}
	vd.materialLayouts[samplers] = layout
	return layout, nil
}

func (vd *VulkanDescriptors) allocate(context *VulkanContext, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     vd.Pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocInfo, &set); res != vk.Success {
		return vk.NullDescriptorSet, resultError(res, core.StagePipeline, "vkAllocateDescriptorSets")
	}
	return set, nil
}

// AllocateGlobal allocates a set 0 pointing at the whole of uniform.
func (vd *VulkanDescriptors) AllocateGlobal(context *VulkanContext, uniform *VulkanBuffer) (vk.DescriptorSet, error) {
	set, err := vd.allocate(context, vd.GlobalLayout)
	if err != nil {
		return set, err
	}
	writeUniform(context, set, uniform, 0, uniform.Size)
	return set, nil
}

// AllocateMaterial allocates a set 1 for the uniform range and textures.
func (vd *VulkanDescriptors) AllocateMaterial(context *VulkanContext, layout vk.DescriptorSetLayout, uniform *VulkanBuffer, offset, size uint64, textures []*VulkanTexture) (vk.DescriptorSet, error) {
	set, err := vd.allocate(context, layout)
	if err != nil {
		return set, err
	}
	writeUniform(context, set, uniform, offset, size)
	if len(textures) > 0 {
		writes := make([]vk.WriteDescriptorSet, len(textures))
		for i, texture := range textures {
			writes[i] = vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      uint32(i + 1),
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
				PImageInfo: []vk.DescriptorImageInfo{{
					Sampler:     texture.Sampler,
					ImageView:   texture.Image.View,
					ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				}},
			}
		}
		vk.UpdateDescriptorSets(context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	}
	return set, nil
}

func writeUniform(context *VulkanContext, set vk.DescriptorSet, uniform *VulkanBuffer, offset, size uint64) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: uniform.Handle,
			Offset: vk.DeviceSize(offset),
			Range:  vk.DeviceSize(size),
		}},
	}
	vk.UpdateDescriptorSets(context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

func (vd *VulkanDescriptors) Free(context *VulkanContext, set vk.DescriptorSet) {
	if set != vk.NullDescriptorSet {
		vk.FreeDescriptorSets(context.Device.LogicalDevice, vd.Pool, 1, &set)
	}
}

func (vd *VulkanDescriptors) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if vd.Pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(device, vd.Pool, context.Allocator)
		vd.Pool = vk.NullDescriptorPool
	}
	for samplers, layout := range vd.materialLayouts {
		vk.DestroyDescriptorSetLayout(device, layout, context.Allocator)
		delete(vd.materialLayouts, samplers)
	}
	if vd.GlobalLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(device, vd.GlobalLayout, context.Allocator)
		vd.GlobalLayout = vk.NullDescriptorSetLayout
	}
}
