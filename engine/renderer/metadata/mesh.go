package metadata

import (
	"unsafe"

	"github.com/spaghettifunk/anima-render/engine/math"
)

/** @brief Identifies how vertex data is laid out in a vertex buffer. */
type VertexLayout uint8

const (
	VertexLayoutNone VertexLayout = iota
	/** @brief Position, normal, texture coordinate. See Vertex3D. */
	VertexLayoutStandard
	/** @brief Position only. */
	VertexLayoutPosition
	/** @brief NDC position, texture coordinate, colour. See UIVertex. */
	VertexLayoutUI
)

func (l VertexLayout) String() string {
	switch l {
	case VertexLayoutStandard:
		return "standard"
	case VertexLayoutPosition:
		return "position"
	case VertexLayoutUI:
		return "ui"
	}
	return "none"
}

// Stride returns the size in bytes of one vertex, 0 for unknown layouts.
func (l VertexLayout) Stride() int {
	switch l {
	case VertexLayoutStandard:
		return int(unsafe.Sizeof(Vertex3D{}))
	case VertexLayoutPosition:
		return int(unsafe.Sizeof(math.Vec3{}))
	case VertexLayoutUI:
		return int(unsafe.Sizeof(UIVertex{}))
	}
	return 0
}

// PositionOffset is the byte offset of the position inside a vertex.
func (l VertexLayout) PositionOffset() int {
	return 0
}

/**
 * @brief Represents a single vertex in 3D space.
 */
type Vertex3D struct {
	Position math.Vec3
	Normal   math.Vec3
	Texcoord math.Vec2
}

/** @brief Primitive topology used to assemble vertices. */
type Topology uint8

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
)

/**
 * @brief A GPU resident mesh. Immutable once uploaded.
 */
type Mesh struct {
	Name         string
	VertexBuffer BufferID
	IndexBuffer  BufferID
	VertexCount  uint32
	IndexCount   uint32
	Topology     Topology
	Layout       VertexLayout
	LocalAABB    math.Extents3D
}

// MeshData is what a mesh loader produces.
type MeshData struct {
	Name      string
	Vertices  []byte
	Indices   []uint32
	Layout    VertexLayout
	Topology  Topology
	LocalAABB *math.Extents3D
}

// AsBytes reinterprets a slice of plain values as raw bytes.
func AsBytes[T any](vertices []T) []byte {
	if len(vertices) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(vertices[0])) * len(vertices)
	return unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), size)
}
