package systems

import (
	"github.com/spaghettifunk/anima-render/engine/ecs"
	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

const billboardEpsilon = 1e-6

/**
 * @brief Computes the model matrix of a billboard quad for the camera. The
 * unit quad is scaled by Size and oriented so its +Z face looks at the viewer.
 *
 * @param q The billboard.
 * @param cam The camera the frame is rendered from.
 * @return The instance model matrix.
 */
func BillboardModel(q *metadata.BillboardQuad, cam *metadata.Camera) math.Mat4 {
	right, up := cam.Right(), cam.Up()
	toCamera := cam.Forward().Neg()

	switch q.Orientation {
	case metadata.OrientVelocityAligned:
		// velocity projected on the camera plane
		forward := cam.Forward()
		v := q.Velocity.Sub(forward.MulScalar(q.Velocity.Dot(forward)))
		if v.LengthSquared() > billboardEpsilon {
			up = v.Normalize()
			right = up.Cross(toCamera).Normalize()
		}
	case metadata.OrientWorldAxisAligned:
		axis := q.Axis
		if axis.LengthSquared() <= billboardEpsilon {
			axis = math.NewVec3Up()
		}
		up = axis.Normalize()
		toCamera = cam.Position.Sub(q.Position)
		r := up.Cross(toCamera)
		if r.LengthSquared() > billboardEpsilon {
			right = r.Normalize()
		}
		toCamera = right.Cross(up)
	}

	return math.NewMat4Basis(
		right.MulScalar(q.Size.X),
		up.MulScalar(q.Size.Y),
		toCamera,
		q.Position,
	)
}

// BillboardUV returns the texture rectangle of q, the full texture when unset.
func BillboardUV(q *metadata.BillboardQuad) math.Vec4 {
	if q.UV == (math.Vec4{}) {
		return metadata.FullUVRect
	}
	return q.UV
}

// appendTrail turns the live segments of a trail into velocity aligned quads
// that fade out with age.
func appendTrail(out []metadata.BillboardQuad, t *ecs.TrailEmitter) []metadata.BillboardQuad {
	for i := range t.Segments {
		s := &t.Segments[i]
		if !s.Alive {
			continue
		}
		colour := t.Colour
		if t.Lifetime > 0 {
			colour.W *= math.Clamp(1-s.Age/t.Lifetime, 0, 1)
		}
		length := t.Length
		if length == 0 {
			length = t.Width
		}
		out = append(out, metadata.BillboardQuad{
			Position:    s.Position,
			Size:        math.NewVec2(t.Width, length),
			Colour:      colour,
			Texture:     t.Texture,
			Orientation: metadata.OrientVelocityAligned,
			Velocity:    s.Velocity,
			Blend:       t.Blend,
		})
	}
	return out
}
