package math

func TransformIdentity() Transform {
	return Transform{Rotation: NewQuatIdentity(), Scale: NewVec3One()}
}

func TransformFromPosition(position Vec3) Transform {
	t := TransformIdentity()
	t.Position = position
	return t
}

func TransformFromPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) Transform {
	return Transform{Position: position, Rotation: rotation, Scale: scale}
}

func (t Transform) Translate(translation Vec3) Transform {
	t.Position = t.Position.Add(translation)
	return t
}

func (t Transform) Rotate(rotation Quaternion) Transform {
	t.Rotation = t.Rotation.Mul(rotation)
	return t
}

// Matrix composes scale, then rotation, then translation.
func (t Transform) Matrix() Mat4 {
	scale := t.Scale
	if scale == (Vec3{}) {
		scale = NewVec3One()
	}
	rotation := t.Rotation
	if rotation == (Quaternion{}) {
		rotation = NewQuatIdentity()
	}
	return NewMat4Scale(scale).Mul(rotation.ToMat4()).Mul(NewMat4Translation(t.Position))
}
