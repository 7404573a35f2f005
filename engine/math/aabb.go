package math

// NewExtents3DEmpty returns inverted extents ready to be grown with Expand.
func NewExtents3DEmpty() Extents3D {
	return Extents3D{
		Min: Vec3{K_INFINITY, K_INFINITY, K_INFINITY},
		Max: Vec3{-K_INFINITY, -K_INFINITY, -K_INFINITY},
	}
}

// NewExtents3DFromCenter builds a box of the given half size around center.
func NewExtents3DFromCenter(center, halfSize Vec3) Extents3D {
	return Extents3D{Min: center.Sub(halfSize), Max: center.Add(halfSize)}
}

// Expand grows the box to include p.
func (e Extents3D) Expand(p Vec3) Extents3D {
	e.Min = Vec3{Min(e.Min.X, p.X), Min(e.Min.Y, p.Y), Min(e.Min.Z, p.Z)}
	e.Max = Vec3{Max(e.Max.X, p.X), Max(e.Max.Y, p.Y), Max(e.Max.Z, p.Z)}
	return e
}

func (e Extents3D) IsEmpty() bool {
	return e.Min.X > e.Max.X || e.Min.Y > e.Max.Y || e.Min.Z > e.Max.Z
}

func (e Extents3D) Center() Vec3 {
	return e.Min.Add(e.Max).MulScalar(0.5)
}

func (e Extents3D) HalfSize() Vec3 {
	return e.Max.Sub(e.Min).MulScalar(0.5)
}

// Transform returns the axis-aligned box enclosing e after m is applied.
func (e Extents3D) Transform(m Mat4) Extents3D {
	if e.IsEmpty() {
		return e
	}
	out := NewExtents3DEmpty()
	for i := 0; i < 8; i++ {
		corner := Vec3{e.Min.X, e.Min.Y, e.Min.Z}
		if i&1 != 0 {
			corner.X = e.Max.X
		}
		if i&2 != 0 {
			corner.Y = e.Max.Y
		}
		if i&4 != 0 {
			corner.Z = e.Max.Z
		}
		out = out.Expand(corner.Transform(m))
	}
	return out
}
