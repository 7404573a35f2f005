package systems

import "github.com/spaghettifunk/anima-render/engine/math"

// SpatialIndex answers visibility queries over the bounds of one frame.
type SpatialIndex interface {
	// Rebuild replaces the indexed bounds. Indices passed to visit refer to
	// positions in bounds.
	Rebuild(bounds []math.Extents3D)
	// QueryFrustum calls visit for every bound intersecting f, in index
	// order, until visit returns false.
	QueryFrustum(f *math.Frustum, visit func(index int) bool)
}

// LinearIndex tests every bound against the frustum. Empty bounds are
// never culled.
type LinearIndex struct {
	bounds []math.Extents3D
}

func NewLinearIndex() *LinearIndex {
	return &LinearIndex{}
}

func (li *LinearIndex) Rebuild(bounds []math.Extents3D) {
	li.bounds = bounds
}

func (li *LinearIndex) QueryFrustum(f *math.Frustum, visit func(index int) bool) {
	for i, b := range li.bounds {
		if !b.IsEmpty() && !f.IntersectsAABB(b) {
			continue
		}
		if !visit(i) {
			return
		}
	}
}
