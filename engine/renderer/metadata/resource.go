package metadata

import "fmt"

/** @brief The kinds of GPU resources owned by the resource registry. */
type ResourceKind uint8

const (
	ResourceKindNone ResourceKind = iota
	ResourceKindMesh
	ResourceKindTexture
	ResourceKindMaterial
	ResourceKindPipeline
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceKindMesh:
		return "mesh"
	case ResourceKindTexture:
		return "texture"
	case ResourceKindMaterial:
		return "material"
	case ResourceKindPipeline:
		return "pipeline"
	}
	return "none"
}

/**
 * @brief An opaque, generationally versioned identifier of a registry owned
 * resource. The zero value never refers to a resource.
 */
type Handle struct {
	Index      uint32
	Generation uint32
	Kind       ResourceKind
}

func (h Handle) IsZero() bool {
	return h.Generation == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%s#%d.%d", h.Kind, h.Index, h.Generation)
}

type MeshHandle Handle

func (h MeshHandle) Handle() Handle { return Handle(h) }
func (h MeshHandle) IsZero() bool   { return h.Generation == 0 }

type TextureHandle Handle

func (h TextureHandle) Handle() Handle { return Handle(h) }
func (h TextureHandle) IsZero() bool   { return h.Generation == 0 }

type MaterialHandle Handle

func (h MaterialHandle) Handle() Handle { return Handle(h) }
func (h MaterialHandle) IsZero() bool   { return h.Generation == 0 }

type PipelineHandle Handle

func (h PipelineHandle) Handle() Handle { return Handle(h) }
func (h PipelineHandle) IsZero() bool   { return h.Generation == 0 }
