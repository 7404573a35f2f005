package ecs

import (
	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

// Transform places an entity in the world.
type Transform struct {
	math.Transform
}

func NewTransform(position math.Vec3) Transform {
	return Transform{math.TransformFromPosition(position)}
}

// Renderable draws a mesh with a material.
type Renderable struct {
	Mesh      metadata.MeshHandle
	Material  metadata.MaterialHandle
	LocalAABB math.Extents3D
	Tint      metadata.Colour
}

type LifecycleState int

const (
	LifecycleActive LifecycleState = iota
	LifecycleSpawning
	LifecycleDisabled
	LifecycleDestroyed
)

// Lifecycle gates extraction. Entities without one count as active.
type Lifecycle struct {
	State LifecycleState
}

// Light attaches a light to an entity. Point and spot positions follow the
// entity transform; directions are rotated by it.
type Light struct {
	metadata.Light
}

// TrailSegment is one particle of a trail.
type TrailSegment struct {
	Position math.Vec3
	Velocity math.Vec3
	Age      float32
	Alive    bool
}

// TrailEmitter owns trail segments that are drawn as velocity aligned quads.
type TrailEmitter struct {
	Segments []TrailSegment
	Width    float32
	Length   float32
	Lifetime float32
	Colour   metadata.Colour
	Texture  metadata.TextureHandle
	Blend    metadata.BlendMode
}

// Billboard draws a quad at the entity position.
type Billboard struct {
	Size        math.Vec2
	Colour      metadata.Colour
	Texture     metadata.TextureHandle
	Orientation metadata.BillboardOrientation
	Axis        math.Vec3
	Blend       metadata.BlendMode
}

// Text draws a string at the entity position.
type Text struct {
	Text     string
	Height   float32
	Colour   metadata.Colour
	Font     metadata.GlyphSource
	Additive bool
}

// Camera turns an entity into a viewpoint. The view looks down the
// entity's -Z axis unless Target is set.
type Camera struct {
	FovRadians float32
	Near       float32
	Far        float32
	Aspect     float32
	Target     *math.Vec3
	ClearColor *metadata.Colour
}
