package math

// Plane is the set of points p where Normal·p + D = 0. Points with a
// positive distance are on the inner side.
type Plane struct {
	Normal Vec3
	D      float32
}

func (p Plane) Distance(point Vec3) float32 {
	return p.Normal.Dot(point) + p.D
}

func (p Plane) normalized() Plane {
	l := p.Normal.Length()
	if l <= K_FLOAT_EPSILON {
		return p
	}
	return Plane{Normal: p.Normal.MulScalar(1 / l), D: p.D / l}
}

const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// Frustum holds the six inward facing planes of a view volume and its
// eight world space corners.
type Frustum struct {
	Planes  [6]Plane
	Corners [8]Vec3
}

// NewFrustumFromMatrix extracts normalized planes from a view-projection
// matrix (Gribb/Hartmann). With row vectors clip = v * M, so each plane is a
// sum or difference of the fourth column and one of the others. The matrix
// maps into Vulkan clip space: y grows downwards and the near plane is z = 0.
func NewFrustumFromMatrix(m Mat4) Frustum {
	d := &m.Data
	col := func(j int) Vec4 {
		return Vec4{d[j], d[4+j], d[8+j], d[12+j]}
	}
	c0, c1, c2, c3 := col(0), col(1), col(2), col(3)
	plane := func(a, b Vec4, sign float32) Plane {
		return Plane{
			Normal: Vec3{a.X + sign*b.X, a.Y + sign*b.Y, a.Z + sign*b.Z},
			D:      a.W + sign*b.W,
		}.normalized()
	}

	f := Frustum{}
	f.Planes[PlaneLeft] = plane(c3, c0, 1)
	f.Planes[PlaneRight] = plane(c3, c0, -1)
	f.Planes[PlaneTop] = plane(c3, c1, 1)
	f.Planes[PlaneBottom] = plane(c3, c1, -1)
	f.Planes[PlaneNear] = plane(Vec4{}, c2, 1)
	f.Planes[PlaneFar] = plane(c3, c2, -1)

	inv := m.Inverse()
	for i := 0; i < 8; i++ {
		ndc := Vec4{-1, -1, 0, 1}
		if i&1 != 0 {
			ndc.X = 1
		}
		if i&2 != 0 {
			ndc.Y = 1
		}
		if i&4 != 0 {
			ndc.Z = 1
		}
		w := ndc.Transform(inv)
		if w.W != 0 {
			f.Corners[i] = Vec3{w.X / w.W, w.Y / w.W, w.Z / w.W}
		}
	}
	return f
}

// IntersectsAABB reports whether the box is at least partly inside. For each
// plane only the corner furthest along the plane normal is tested.
func (f Frustum) IntersectsAABB(e Extents3D) bool {
	for _, p := range f.Planes {
		corner := e.Min
		if p.Normal.X >= 0 {
			corner.X = e.Max.X
		}
		if p.Normal.Y >= 0 {
			corner.Y = e.Max.Y
		}
		if p.Normal.Z >= 0 {
			corner.Z = e.Max.Z
		}
		if p.Distance(corner) < 0 {
			return false
		}
	}
	// boxes near the frustum edges can pass every plane while lying outside;
	// reject them when all frustum corners are beyond one face of the box.
	outside := [6]int{}
	for _, c := range f.Corners {
		if c.X > e.Max.X {
			outside[0]++
		}
		if c.X < e.Min.X {
			outside[1]++
		}
		if c.Y > e.Max.Y {
			outside[2]++
		}
		if c.Y < e.Min.Y {
			outside[3]++
		}
		if c.Z > e.Max.Z {
			outside[4]++
		}
		if c.Z < e.Min.Z {
			outside[5]++
		}
	}
	for _, n := range outside {
		if n == 8 {
			return false
		}
	}
	return true
}

// IntersectsSphere reports whether the sphere is at least partly inside.
func (f Frustum) IntersectsSphere(center Vec3, radius float32) bool {
	for _, p := range f.Planes {
		if p.Distance(center) < -radius {
			return false
		}
	}
	return true
}
