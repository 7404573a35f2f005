package vulkan

/**
 * @brief Max number of material descriptor sets alive at once.
 */
const VULKAN_MAX_MATERIAL_COUNT uint32 = 1024

/**
 * @brief Max number of combined image samplers in one material set.
 */
const VULKAN_MAX_MATERIAL_SAMPLERS = 4

// Descriptor set indices shared with the shaders.
const (
	globalSetIndex   = 0
	materialSetIndex = 1
)

// Vertex buffer bindings shared with the shaders.
const (
	vertexBindingIndex   = 0
	instanceBindingIndex = 1
)

const defaultImageCount = 3
