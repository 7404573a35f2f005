package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

/**
 * @brief a 4x4 matrix stored row by row. Vectors are treated as rows and
 * multiplied on the left, so translation lives in Data[12..14] and
 * a.Mul(b) applies a first, then b.
 */
type Mat4 struct {
	Data [16]float32
}

/**
 * @brief Represents the extents of a 2d object.
 */
type Extents2D struct {
	Min Vec2
	Max Vec2
}

/**
 * @brief Represents the extents of a 3d object, an axis-aligned bounding box.
 */
type Extents3D struct {
	Min Vec3
	Max Vec3
}

// Transform is a position/rotation/scale triple.
type Transform struct {
	Position Vec3
	Rotation Quaternion
	Scale    Vec3
}
