package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-render/engine/ecs"
	"github.com/spaghettifunk/anima-render/engine/math"
)

func newCameraEntity(t *testing.T, world *ecs.World, pos math.Vec3) ecs.Entity {
	t.Helper()
	e := world.Create()
	require.NoError(t, ecs.Add(world, e, ecs.NewTransform(pos)))
	require.NoError(t, ecs.Add(world, e, ecs.Camera{FovRadians: math.DegToRad(60), Near: 0.1, Far: 100}))
	return e
}

func assertVec3(t *testing.T, want, got math.Vec3) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-5)
	assert.InDelta(t, want.Y, got.Y, 1e-5)
	assert.InDelta(t, want.Z, got.Z, 1e-5)
}

func TestFlyCameraRequiresComponents(t *testing.T) {
	world := ecs.NewWorld()
	bare := world.Create()
	_, err := NewFlyCamera(world, bare)
	assert.Error(t, err)

	require.NoError(t, ecs.Add(world, bare, ecs.NewTransform(math.NewVec3Zero())))
	_, err = NewFlyCamera(world, bare)
	assert.Error(t, err)
}

func TestFlyCameraMovement(t *testing.T) {
	world := ecs.NewWorld()
	cam, err := NewFlyCamera(world, newCameraEntity(t, world, math.NewVec3(0, 1, 0)))
	require.NoError(t, err)

	assertVec3(t, math.NewVec3(0, 0, -1), cam.Forward())
	cam.MoveForward(2)
	assertVec3(t, math.NewVec3(0, 1, -2), cam.Position)
	cam.MoveRight(1)
	cam.MoveUp(1)
	assertVec3(t, math.NewVec3(1, 2, -2), cam.Position)

	cam.Turn(math.DegToRad(90))
	assertVec3(t, math.NewVec3(-1, 0, 0), cam.Forward())
	assertVec3(t, math.NewVec3(0, 0, -1), cam.Right())
}

func TestFlyCameraPitchIsClamped(t *testing.T) {
	world := ecs.NewWorld()
	cam, err := NewFlyCamera(world, newCameraEntity(t, world, math.NewVec3Zero()))
	require.NoError(t, err)

	cam.Tilt(3)
	assert.Equal(t, pitchLimit, cam.Pitch)
	cam.Tilt(-10)
	assert.Equal(t, -pitchLimit, cam.Pitch)
}

func TestFlyCameraLookAtAndApply(t *testing.T) {
	world := ecs.NewWorld()
	entity := newCameraEntity(t, world, math.NewVec3(0, 0, 10))
	cam, err := NewFlyCamera(world, entity)
	require.NoError(t, err)

	cam.LookAt(math.NewVec3(10, 0, 10))
	assertVec3(t, math.NewVec3(1, 0, 0), cam.Forward())

	require.NoError(t, cam.Apply(world))
	c, ok := ecs.Get[ecs.Camera](world, entity)
	require.True(t, ok)
	require.NotNil(t, c.Target)
	assertVec3(t, math.NewVec3(1, 0, 10), *c.Target)

	// extraction picks the entity up as the frame camera
	se, err := NewSceneExtractor(SceneExtractorConfig{FramesInFlight: 1})
	require.NoError(t, err)
	data, err := se.Extract(world, 0)
	require.NoError(t, err)
	assertVec3(t, math.NewVec3(0, 0, 10), data.Camera.Position)

	require.NoError(t, world.Destroy(entity))
	assert.Error(t, cam.Apply(world))
}
