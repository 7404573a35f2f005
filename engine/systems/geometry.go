package systems

import (
	"github.com/chewxy/math32"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

/**
 * @brief Generates a quad in the XY plane facing +Z, centred on the origin.
 * Texture coordinates have v pointing down.
 *
 * @param width The width of the quad. Defaults to one when zero.
 * @param height The height of the quad. Defaults to one when zero.
 * @return The vertices and the indices of two triangles.
 */
func GenerateQuad(width, height float32) ([]metadata.Vertex3D, []uint32) {
	if width == 0 {
		width = 1
	}
	if height == 0 {
		height = 1
	}
	hw, hh := width*0.5, height*0.5
	normal := math.NewVec3(0, 0, 1)
	vertices := []metadata.Vertex3D{
		{Position: math.NewVec3(-hw, -hh, 0), Normal: normal, Texcoord: math.NewVec2(0, 1)},
		{Position: math.NewVec3(hw, hh, 0), Normal: normal, Texcoord: math.NewVec2(1, 0)},
		{Position: math.NewVec3(-hw, hh, 0), Normal: normal, Texcoord: math.NewVec2(0, 0)},
		{Position: math.NewVec3(hw, -hh, 0), Normal: normal, Texcoord: math.NewVec2(1, 1)},
	}
	return vertices, []uint32{0, 1, 2, 0, 3, 1}
}

/**
 * @brief Generates a plane in the XZ plane facing +Y, split in segments.
 *
 * @param width The overall width of the plane along x. Must be non-zero.
 * @param depth The overall depth of the plane along z. Must be non-zero.
 * @param xSegmentCount The number of segments along the x-axis. Must be non-zero.
 * @param zSegmentCount The number of segments along the z-axis. Must be non-zero.
 * @param tileX The number of times the texture tiles along x. Must be non-zero.
 * @param tileY The number of times the texture tiles along z. Must be non-zero.
 */
func GeneratePlane(width, depth float32, xSegmentCount, zSegmentCount uint32, tileX, tileY float32) ([]metadata.Vertex3D, []uint32) {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1.0
	}
	if xSegmentCount < 1 {
		core.LogWarn("xSegmentCount must be a positive number. Defaulting to one.")
		xSegmentCount = 1
	}
	if zSegmentCount < 1 {
		core.LogWarn("zSegmentCount must be a positive number. Defaulting to one.")
		zSegmentCount = 1
	}
	if tileX == 0 {
		tileX = 1.0
	}
	if tileY == 0 {
		tileY = 1.0
	}

	vertices := make([]metadata.Vertex3D, xSegmentCount*zSegmentCount*4)
	indices := make([]uint32, xSegmentCount*zSegmentCount*6)

	segWidth := width / float32(xSegmentCount)
	segDepth := depth / float32(zSegmentCount)
	halfWidth := width * 0.5
	halfDepth := depth * 0.5
	up := math.NewVec3(0, 1, 0)
	for z := uint32(0); z < zSegmentCount; z++ {
		for x := uint32(0); x < xSegmentCount; x++ {
			minX := (float32(x) * segWidth) - halfWidth
			minZ := (float32(z) * segDepth) - halfDepth
			maxX := minX + segWidth
			maxZ := minZ + segDepth
			minU := (float32(x) / float32(xSegmentCount)) * tileX
			minV := (float32(z) / float32(zSegmentCount)) * tileY
			maxU := (float32(x+1) / float32(xSegmentCount)) * tileX
			maxV := (float32(z+1) / float32(zSegmentCount)) * tileY

			vOffset := ((z * xSegmentCount) + x) * 4
			vertices[vOffset+0] = metadata.Vertex3D{Position: math.NewVec3(minX, 0, maxZ), Normal: up, Texcoord: math.NewVec2(minU, maxV)}
			vertices[vOffset+1] = metadata.Vertex3D{Position: math.NewVec3(maxX, 0, minZ), Normal: up, Texcoord: math.NewVec2(maxU, minV)}
			vertices[vOffset+2] = metadata.Vertex3D{Position: math.NewVec3(minX, 0, minZ), Normal: up, Texcoord: math.NewVec2(minU, minV)}
			vertices[vOffset+3] = metadata.Vertex3D{Position: math.NewVec3(maxX, 0, maxZ), Normal: up, Texcoord: math.NewVec2(maxU, maxV)}

			iOffset := ((z * xSegmentCount) + x) * 6
			indices[iOffset+0] = vOffset + 0
			indices[iOffset+1] = vOffset + 1
			indices[iOffset+2] = vOffset + 2
			indices[iOffset+3] = vOffset + 0
			indices[iOffset+4] = vOffset + 3
			indices[iOffset+5] = vOffset + 1
		}
	}
	return vertices, indices
}

// cubeFaces lists, per face, the outward normal and the four corners as
// signs of the half extents, in the order min-min, max-max, min-max, max-min.
var cubeFaces = [6]struct {
	normal  math.Vec3
	corners [4]math.Vec3
}{
	// front
	{math.Vec3{Z: 1}, [4]math.Vec3{{X: -1, Y: -1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: 1}, {X: 1, Y: -1, Z: 1}}},
	// back
	{math.Vec3{Z: -1}, [4]math.Vec3{{X: 1, Y: -1, Z: -1}, {X: -1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: -1}, {X: -1, Y: -1, Z: -1}}},
	// left
	{math.Vec3{X: -1}, [4]math.Vec3{{X: -1, Y: -1, Z: -1}, {X: -1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: -1}, {X: -1, Y: -1, Z: 1}}},
	// right
	{math.Vec3{X: 1}, [4]math.Vec3{{X: 1, Y: -1, Z: 1}, {X: 1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: 1}, {X: 1, Y: -1, Z: -1}}},
	// bottom
	{math.Vec3{Y: -1}, [4]math.Vec3{{X: 1, Y: -1, Z: 1}, {X: -1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: -1}, {X: -1, Y: -1, Z: 1}}},
	// top
	{math.Vec3{Y: 1}, [4]math.Vec3{{X: -1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: -1}, {X: -1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: 1}}},
}

/**
 * @brief Generates a box centred on the origin: 24 vertices, 36 indices.
 *
 * @param width The extent along x. Defaults to one when zero.
 * @param height The extent along y. Defaults to one when zero.
 * @param depth The extent along z. Defaults to one when zero.
 * @param tileX The number of times the texture tiles across a face on x.
 * @param tileY The number of times the texture tiles across a face on y.
 */
func GenerateCube(width, height, depth, tileX, tileY float32) ([]metadata.Vertex3D, []uint32) {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if height == 0 {
		core.LogWarn("Height must be nonzero. Defaulting to one.")
		height = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1
	}
	if tileX == 0 {
		tileX = 1.0
	}
	if tileY == 0 {
		tileY = 1.0
	}

	half := math.NewVec3(width*0.5, height*0.5, depth*0.5)
	uvs := [4]math.Vec2{{X: 0, Y: 0}, {X: tileX, Y: tileY}, {X: 0, Y: tileY}, {X: tileX, Y: 0}}

	vertices := make([]metadata.Vertex3D, 0, 24)
	indices := make([]uint32, 0, 36)
	for i, face := range cubeFaces {
		for c, corner := range face.corners {
			vertices = append(vertices, metadata.Vertex3D{
				Position: corner.Mul(half),
				Normal:   face.normal,
				Texcoord: uvs[c],
			})
		}
		v := uint32(i * 4)
		indices = append(indices, v+0, v+1, v+2, v+0, v+3, v+1)
	}
	return vertices, indices
}

/**
 * @brief Generates a UV sphere centred on the origin.
 *
 * @param radius The radius of the sphere. Defaults to one when zero.
 * @param rings The number of horizontal bands, at least 2.
 * @param sectors The number of vertical slices, at least 3.
 */
func GenerateSphere(radius float32, rings, sectors uint32) ([]metadata.Vertex3D, []uint32) {
	if radius == 0 {
		radius = 1
	}
	if rings < 2 {
		rings = 2
	}
	if sectors < 3 {
		sectors = 3
	}

	vertices := make([]metadata.Vertex3D, 0, (rings+1)*(sectors+1))
	for i := uint32(0); i <= rings; i++ {
		phi := math.K_PI * float32(i) / float32(rings)
		sinPhi, cosPhi := math32.Sincos(phi)
		for j := uint32(0); j <= sectors; j++ {
			theta := 2 * math.K_PI * float32(j) / float32(sectors)
			sinTheta, cosTheta := math32.Sincos(theta)
			normal := math.NewVec3(sinPhi*cosTheta, cosPhi, sinPhi*sinTheta)
			vertices = append(vertices, metadata.Vertex3D{
				Position: normal.MulScalar(radius),
				Normal:   normal,
				Texcoord: math.NewVec2(float32(j)/float32(sectors), float32(i)/float32(rings)),
			})
		}
	}

	indices := make([]uint32, 0, rings*sectors*6)
	for i := uint32(0); i < rings; i++ {
		for j := uint32(0); j < sectors; j++ {
			k1 := i*(sectors+1) + j
			k2 := k1 + sectors + 1
			if i != 0 {
				indices = append(indices, k1, k1+1, k2)
			}
			if i != rings-1 {
				indices = append(indices, k1+1, k2+1, k2)
			}
		}
	}
	return vertices, indices
}

// GenerateNormals replaces every vertex normal with the average of the
// normals of the triangles sharing it.
func GenerateNormals(vertices []metadata.Vertex3D, indices []uint32) {
	accum := make([]math.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		e1 := vertices[i1].Position.Sub(vertices[i0].Position)
		e2 := vertices[i2].Position.Sub(vertices[i0].Position)
		n := e1.Cross(e2)
		accum[i0] = accum[i0].Add(n)
		accum[i1] = accum[i1].Add(n)
		accum[i2] = accum[i2].Add(n)
	}
	for i := range vertices {
		if accum[i].LengthSquared() > 0 {
			vertices[i].Normal = accum[i].Normalize()
		}
	}
}

// GeometryExtents returns the bounding box of the vertex positions.
func GeometryExtents(vertices []metadata.Vertex3D) math.Extents3D {
	e := math.NewExtents3DEmpty()
	for _, v := range vertices {
		e = e.Expand(v.Position)
	}
	return e
}
