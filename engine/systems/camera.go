package systems

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/ecs"
	"github.com/spaghettifunk/anima-render/engine/math"
)

// pitchLimit is 89 degrees, to stay clear of gimbal lock.
const pitchLimit = float32(1.55334306)

/**
 * @brief A first person controller for a camera entity. It keeps position
 * and Euler angles (pitch, yaw) and writes them to the entity's Transform
 * and Camera target on Apply.
 */
type FlyCamera struct {
	Position math.Vec3
	/** @brief Rotation around the X axis in radians, clamped to +/- 89 degrees. */
	Pitch float32
	/** @brief Rotation around the Y axis in radians. Zero looks down -Z. */
	Yaw float32

	entity ecs.Entity
	target math.Vec3
}

/**
 * @brief Creates a controller for entity, which must already have a
 * Transform and a Camera component. The controller starts at the entity's
 * position.
 */
func NewFlyCamera(world *ecs.World, entity ecs.Entity) (*FlyCamera, error) {
	t, ok := ecs.Get[ecs.Transform](world, entity)
	if !ok {
		err := fmt.Errorf("func NewFlyCamera - entity %s has no transform", entity)
		core.LogError(err.Error())
		return nil, err
	}
	if _, ok := ecs.Get[ecs.Camera](world, entity); !ok {
		err := fmt.Errorf("func NewFlyCamera - entity %s has no camera", entity)
		core.LogError(err.Error())
		return nil, err
	}
	return &FlyCamera{Position: t.Position, entity: entity}, nil
}

func (c *FlyCamera) Entity() ecs.Entity {
	return c.entity
}

// Forward returns the unit view direction.
func (c *FlyCamera) Forward() math.Vec3 {
	cp := math32.Cos(c.Pitch)
	return math.NewVec3(-math32.Sin(c.Yaw)*cp, math32.Sin(c.Pitch), -math32.Cos(c.Yaw)*cp)
}

func (c *FlyCamera) Backward() math.Vec3 {
	return c.Forward().MulScalar(-1)
}

// Right stays in the horizontal plane.
func (c *FlyCamera) Right() math.Vec3 {
	return math.NewVec3(math32.Cos(c.Yaw), 0, -math32.Sin(c.Yaw))
}

func (c *FlyCamera) Left() math.Vec3 {
	return c.Right().MulScalar(-1)
}

func (c *FlyCamera) MoveForward(amount float32) {
	c.Position = c.Position.Add(c.Forward().MulScalar(amount))
}

func (c *FlyCamera) MoveBackward(amount float32) {
	c.Position = c.Position.Add(c.Backward().MulScalar(amount))
}

func (c *FlyCamera) MoveLeft(amount float32) {
	c.Position = c.Position.Add(c.Left().MulScalar(amount))
}

func (c *FlyCamera) MoveRight(amount float32) {
	c.Position = c.Position.Add(c.Right().MulScalar(amount))
}

func (c *FlyCamera) MoveUp(amount float32) {
	c.Position = c.Position.Add(math.NewVec3Up().MulScalar(amount))
}

func (c *FlyCamera) MoveDown(amount float32) {
	c.Position = c.Position.Add(math.NewVec3Up().MulScalar(-amount))
}

func (c *FlyCamera) Turn(amount float32) {
	c.Yaw += amount
}

func (c *FlyCamera) Tilt(amount float32) {
	c.Pitch = math.Clamp(c.Pitch+amount, -pitchLimit, pitchLimit)
}

// LookAt points the camera at target without moving it.
func (c *FlyCamera) LookAt(target math.Vec3) {
	dir := target.Sub(c.Position)
	if dir.LengthSquared() == 0 {
		return
	}
	dir = dir.Normalize()
	c.Yaw = math32.Atan2(-dir.X, -dir.Z)
	c.Tilt(math32.Asin(math.Clamp(dir.Y, -1, 1)) - c.Pitch)
}

/**
 * @brief Writes the controller state to the entity. Call once per frame
 * before extraction.
 */
func (c *FlyCamera) Apply(world *ecs.World) error {
	t, ok := ecs.Get[ecs.Transform](world, c.entity)
	if !ok {
		return core.NewStaleHandle(core.StageExtract, fmt.Sprintf("camera entity %s has no transform", c.entity))
	}
	cam, ok := ecs.Get[ecs.Camera](world, c.entity)
	if !ok {
		return core.NewStaleHandle(core.StageExtract, fmt.Sprintf("camera entity %s has no camera", c.entity))
	}
	t.Position = c.Position
	t.Rotation = math.NewQuatFromAxisAngle(math.NewVec3Up(), c.Yaw, false).
		Mul(math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), c.Pitch, false))
	c.target = c.Position.Add(c.Forward())
	cam.Target = &c.target
	return nil
}
