package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

func TestGenerateCube(t *testing.T) {
	vertices, indices := GenerateCube(2, 4, 6, 1, 1)
	assert.Len(t, vertices, 24)
	assert.Len(t, indices, 36)

	e := GeometryExtents(vertices)
	assert.True(t, e.Min.Compare(math.NewVec3(-1, -2, -3), 1e-6))
	assert.True(t, e.Max.Compare(math.NewVec3(1, 2, 3), 1e-6))

	// every triangle winds counter-clockwise seen from outside
	for i := 0; i < len(indices); i += 3 {
		a, b, c := vertices[indices[i]], vertices[indices[i+1]], vertices[indices[i+2]]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		assert.Greater(t, n.Dot(a.Normal), float32(0), "triangle %d", i/3)
	}
}

func TestGenerateSphere(t *testing.T) {
	vertices, indices := GenerateSphere(2, 6, 8)
	assert.Len(t, vertices, 7*9)
	assert.Equal(t, 0, len(indices)%3)
	for _, v := range vertices {
		assert.InDelta(t, 2, v.Position.Length(), 1e-4)
	}
	for i := 0; i < len(indices); i += 3 {
		a, b, c := vertices[indices[i]], vertices[indices[i+1]], vertices[indices[i+2]]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		centre := a.Position.Add(b.Position).Add(c.Position)
		assert.Greater(t, n.Dot(centre), float32(0), "triangle %d faces inward", i/3)
	}
}

func TestGeneratePlaneFacesUp(t *testing.T) {
	vertices, indices := GeneratePlane(10, 10, 2, 3, 1, 1)
	assert.Len(t, vertices, 2*3*4)
	assert.Len(t, indices, 2*3*6)
	for i := 0; i < len(indices); i += 3 {
		a, b, c := vertices[indices[i]], vertices[indices[i+1]], vertices[indices[i+2]]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		assert.Greater(t, n.Y, float32(0))
	}
}

func TestGenerateNormals(t *testing.T) {
	vertices, indices := GenerateQuad(1, 1)
	for i := range vertices {
		vertices[i].Normal = math.Vec3{}
	}
	GenerateNormals(vertices, indices)
	for _, v := range vertices {
		assert.True(t, v.Normal.Compare(math.NewVec3(0, 0, 1), 1e-6))
	}
}

func TestCubeFacesTowardsCameraAreFrontFacing(t *testing.T) {
	vertices, indices := GenerateCube(1, 1, 1, 1, 1)
	eye := math.NewVec3(3, 4, 5)
	cam := metadata.NewPerspectiveCamera(eye, math.NewVec3Zero(), math.DegToRad(60), 1, 0.1, 100)
	vp := cam.ViewProjection()

	front := 0
	for i := 0; i < len(indices); i += 3 {
		var sum float32
		for k := 0; k < 3; k++ {
			a := ndc(vertices[indices[i+k]].Position, vp)
			b := ndc(vertices[indices[i+(k+1)%3]].Position, vp)
			sum += a.X*b.Y - b.X*a.Y
		}
		// rasterizer area in framebuffer orientation; positive passes back face culling
		facing := -0.5*sum > 0
		normal := vertices[indices[i]].Normal
		assert.Equal(t, normal.Dot(eye) > 0, facing, "triangle %d normal %v", i/3, normal)
		if facing {
			front++
		}
	}
	assert.Equal(t, 6, front)
}

func ndc(p math.Vec3, m math.Mat4) math.Vec2 {
	c := math.Vec4{X: p.X, Y: p.Y, Z: p.Z, W: 1}.Transform(m)
	return math.Vec2{X: c.X / c.W, Y: c.Y / c.W}
}
