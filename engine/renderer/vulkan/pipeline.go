package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
	/** @brief The layout of descriptor set 1. */
	MaterialLayout vk.DescriptorSetLayout
	Variant        metadata.PipelineVariant
}

type VulkanPipelineConfig struct {
	Renderpass *VulkanRenderpass
	Variant    metadata.PipelineVariant
	/** @brief An array of descriptor set layouts, set 0 first. */
	DescriptorSetLayouts []vk.DescriptorSetLayout
	Stages               []vk.PipelineShaderStageCreateInfo
}

var (
	vertex3DStride = uint32(unsafe.Sizeof(metadata.Vertex3D{}))
	uiVertexStride = uint32(unsafe.Sizeof(metadata.UIVertex{}))
	instanceStride = uint32(unsafe.Sizeof(metadata.InstanceData{}))
)

/**
 * @brief Vertex input for a layout. Instanced pipelines read the model
 * matrix columns, colour and uv rectangle from binding 1 at locations 3..8.
 */
func vertexInput(layout metadata.VertexLayout, instanced bool) ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription) {
	var bindings []vk.VertexInputBindingDescription
	var attributes []vk.VertexInputAttributeDescription

	attribute := func(location, binding uint32, format vk.Format, offset uint32) {
		attributes = append(attributes, vk.VertexInputAttributeDescription{
			Location: location, Binding: binding, Format: format, Offset: offset,
		})
	}

	switch layout {
	case metadata.VertexLayoutStandard:
		bindings = append(bindings, vk.VertexInputBindingDescription{Binding: vertexBindingIndex, Stride: vertex3DStride, InputRate: vk.VertexInputRateVertex})
		attribute(0, vertexBindingIndex, vk.FormatR32g32b32Sfloat, 0)  // position
		attribute(1, vertexBindingIndex, vk.FormatR32g32b32Sfloat, 12) // normal
		attribute(2, vertexBindingIndex, vk.FormatR32g32Sfloat, 24)    // texcoord
	case metadata.VertexLayoutPosition:
		bindings = append(bindings, vk.VertexInputBindingDescription{Binding: vertexBindingIndex, Stride: 12, InputRate: vk.VertexInputRateVertex})
		attribute(0, vertexBindingIndex, vk.FormatR32g32b32Sfloat, 0)
	case metadata.VertexLayoutUI:
		bindings = append(bindings, vk.VertexInputBindingDescription{Binding: vertexBindingIndex, Stride: uiVertexStride, InputRate: vk.VertexInputRateVertex})
		attribute(0, vertexBindingIndex, vk.FormatR32g32Sfloat, 0)
		attribute(1, vertexBindingIndex, vk.FormatR32g32Sfloat, 8)
		attribute(2, vertexBindingIndex, vk.FormatR32g32b32a32Sfloat, 16)
	}

	if instanced {
		bindings = append(bindings, vk.VertexInputBindingDescription{Binding: instanceBindingIndex, Stride: instanceStride, InputRate: vk.VertexInputRateInstance})
		for column := uint32(0); column < 4; column++ {
			attribute(3+column, instanceBindingIndex, vk.FormatR32g32b32a32Sfloat, column*16)
		}
		attribute(7, instanceBindingIndex, vk.FormatR32g32b32a32Sfloat, 64) // colour
		attribute(8, instanceBindingIndex, vk.FormatR32g32b32a32Sfloat, 80) // uv rect
	}
	return bindings, attributes
}

func blendAttachment(mode metadata.BlendMode) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	switch mode {
	case metadata.BlendModeAlpha:
		state.BlendEnable = vk.True
	case metadata.BlendModeAdditive:
		state.BlendEnable = vk.True
		state.DstColorBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOne
	}
	return state
}

func cullMode(mode metadata.FaceCullMode) vk.CullModeFlags {
	switch mode {
	case metadata.FaceCullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case metadata.FaceCullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.FaceCullModeFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

func NewGraphicsPipeline(context *VulkanContext, config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	variant := config.Variant
	outPipeline := &VulkanPipeline{Variant: variant}

	// Viewport and scissor are dynamic, so a resize never rebuilds pipelines.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                cullMode(variant.CullMode),
		// projections flip Y, so right handed CCW meshes stay CCW
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if variant.PolygonMode == metadata.PolygonModeLine {
		if context.Device.Features.FillModeNonSolid == vk.True {
			rasterizerCreateInfo.PolygonMode = vk.PolygonModeLine
		} else {
			core.LogWarn("pipeline '%s': wireframe unsupported by the device, using fill", variant.Name)
		}
	}
	if variant.DepthBias.Enabled {
		rasterizerCreateInfo.DepthBiasEnable = vk.True
		rasterizerCreateInfo.DepthBiasConstantFactor = variant.DepthBias.Constant
		rasterizerCreateInfo.DepthBiasSlopeFactor = variant.DepthBias.Slope
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.False,
		DepthWriteEnable:      vk.False,
		DepthCompareOp:        vk.CompareOpLessOrEqual,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
	}
	if variant.Depth.Test {
		depthStencil.DepthTestEnable = vk.True
	}
	if variant.Depth.Write {
		depthStencil.DepthWriteEnable = vk.True
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment(variant.Blend)},
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input
	bindings, attributes := vertexInput(variant.Layout, variant.Instanced)
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Pipeline layout
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(config.DescriptorSetLayouts)),
		PSetLayouts:    config.DescriptorSetLayouts,
	}
	var pPipelineLayout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(context.Device.LogicalDevice, &pipelineLayoutCreateInfo, context.Allocator, &pPipelineLayout); res != vk.Success {
		return nil, resultError(res, core.StagePipeline, "vkCreatePipelineLayout")
	}
	outPipeline.PipelineLayout = pPipelineLayout

	// Pipeline create
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(config.Stages)),
		PStages:             config.Stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              outPipeline.PipelineLayout,
		RenderPass:          config.Renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, context.Allocator, pPipelines); !VulkanResultIsSuccess(res) {
		outPipeline.Destroy(context)
		return nil, resultError(res, core.StagePipeline, "vkCreateGraphicsPipelines")
	}
	outPipeline.Handle = pPipelines[0]

	core.LogDebug("Graphics pipeline '%s' created.", variant.Name)
	return outPipeline, nil
}

/**
 * @brief Creates a layout with only the global set, used to bind set 0
 * before any pipeline is bound. Every pipeline layout starts with the same
 * set 0 layout, so the binding stays valid across pipeline binds.
 */
func NewBaseLayout(context *VulkanContext, globalLayout vk.DescriptorSetLayout) (vk.PipelineLayout, error) {
	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{globalLayout},
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(context.Device.LogicalDevice, &info, context.Allocator, &layout); res != vk.Success {
		return vk.NullPipelineLayout, resultError(res, core.StagePipeline, "vkCreatePipelineLayout")
	}
	return layout, nil
}

func (pipeline *VulkanPipeline) Destroy(context *VulkanContext) {
	if pipeline.Handle != vk.NullPipeline {
		vk.DestroyPipeline(context.Device.LogicalDevice, pipeline.Handle, context.Allocator)
		pipeline.Handle = vk.NullPipeline
	}
	if pipeline.PipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(context.Device.LogicalDevice, pipeline.PipelineLayout, context.Allocator)
		pipeline.PipelineLayout = vk.NullPipelineLayout
	}
}

func (pipeline *VulkanPipeline) Bind(commandBuffer *VulkanCommandBuffer, bindPoint vk.PipelineBindPoint) {
	vk.CmdBindPipeline(commandBuffer.Handle, bindPoint, pipeline.Handle)
}
