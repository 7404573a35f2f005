package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testFrustum() Frustum {
	view := NewMat4LookAt(NewVec3(0, 0, 5), NewVec3Zero(), NewVec3Up())
	proj := NewMat4Perspective(DegToRad(60), 1, 0.1, 100)
	return NewFrustumFromMatrix(view.Mul(proj))
}

func TestFrustumPlanesAreNormalized(t *testing.T) {
	f := testFrustum()
	for i, p := range f.Planes {
		assert.InDelta(t, 1.0, p.Normal.Length(), eps, "plane %d", i)
	}
	// the camera looks down -z, so the near plane normal points that way
	assert.InDelta(t, -1.0, f.Planes[PlaneNear].Normal.Z, eps)
	assert.InDelta(t, 4.9, f.Planes[PlaneNear].Distance(NewVec3Zero()), 1e-3)
}

func TestFrustumAABB(t *testing.T) {
	f := testFrustum()
	unit := func(c Vec3) Extents3D {
		return NewExtents3DFromCenter(c, NewVec3(0.5, 0.5, 0.5))
	}

	tests := []struct {
		name    string
		box     Extents3D
		visible bool
	}{
		{"origin", unit(NewVec3Zero()), true},
		{"behind camera", unit(NewVec3(0, 0, 10)), false},
		{"beyond far plane", unit(NewVec3(0, 0, -200)), false},
		{"far left", unit(NewVec3(-50, 0, 0)), false},
		{"far right", unit(NewVec3(50, 0, 0)), false},
		{"above", unit(NewVec3(0, 50, 0)), false},
		{"below", unit(NewVec3(0, -50, 0)), false},
		{"straddling the left plane", unit(NewVec3(-3.3, 0, 0)), true},
		{"enclosing the camera", NewExtents3DFromCenter(NewVec3(0, 0, 5), NewVec3(100, 100, 100)), true},
		{"outside near a corner", unit(NewVec3(-7, 7, -2)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.visible, f.IntersectsAABB(tt.box))
		})
	}
}

func TestFrustumSphere(t *testing.T) {
	f := testFrustum()
	assert.True(t, f.IntersectsSphere(NewVec3Zero(), 1))
	assert.False(t, f.IntersectsSphere(NewVec3(0, 0, 20), 1))
}
