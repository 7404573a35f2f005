package renderer

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/headless"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

func newTestSynchronizer(t *testing.T, frames int) (*FrameSynchronizer, *headless.Backend) {
	t.Helper()
	be := headless.New()
	require.NoError(t, be.Initialize(nil, metadata.BackendConfig{Width: 640, Height: 480, FramesInFlight: frames}))
	return NewFrameSynchronizer(be, nil, 0), be
}

func finish(t *testing.T, fs *FrameSynchronizer, be *headless.Backend, token FrameToken) {
	t.Helper()
	rec := be.Recorder(token.Slot)
	require.NoError(t, rec.BeginRenderPass(token.Image, metadata.Colour{}, 1))
	rec.EndRenderPass()
	require.NoError(t, rec.End())
	require.NoError(t, fs.EndFrame(token))
}

func TestSynchronizerSlotsAndCompletion(t *testing.T) {
	fs, be := newTestSynchronizer(t, 2)
	var completed []int64
	fs.OnFrameCompleted = func(c int64) { completed = append(completed, c) }

	for i := 0; i < 5; i++ {
		token, err := fs.BeginFrame()
		require.NoError(t, err)
		assert.Equal(t, uint64(i), token.Frame)
		assert.Equal(t, i%2, token.Slot)
		finish(t, fs, be, token)
	}
	assert.Equal(t, []int64{0, 1, 2}, completed)
	assert.Equal(t, int64(2), fs.Completed())
	assert.Equal(t, 2, be.MaxOutstanding)
}

func TestSynchronizerTokens(t *testing.T) {
	fs, be := newTestSynchronizer(t, 2)
	token, err := fs.BeginFrame()
	require.NoError(t, err)

	_, err = fs.BeginFrame()
	assert.ErrorIs(t, err, core.ErrFrameInProgress)
	assert.ErrorIs(t, fs.RecreateSwapchain(100, 100), core.ErrFrameInProgress)
	assert.ErrorIs(t, fs.EndFrame(FrameToken{Frame: 99}), core.ErrInvalidToken)

	require.NoError(t, fs.DropFrame(token, "test"))
	assert.ErrorIs(t, fs.DropFrame(token, "again"), core.ErrInvalidToken)
	assert.ErrorIs(t, fs.EndFrame(token), core.ErrInvalidToken)
	assert.Equal(t, 1, be.ManualSignals)
	assert.Zero(t, be.Submits)

	// the dropped slot is reusable
	for i := 0; i < 3; i++ {
		token, err = fs.BeginFrame()
		require.NoError(t, err)
		finish(t, fs, be, token)
	}
}

func TestSynchronizerSubmitFailureSignalsFence(t *testing.T) {
	fs, be := newTestSynchronizer(t, 1)
	token, err := fs.BeginFrame()
	require.NoError(t, err)
	// ending the frame without closing the recorder fails the submit
	err = fs.EndFrame(token)
	assert.ErrorIs(t, err, core.ErrFrameDropped)
	assert.Equal(t, core.StageSubmit, err.(*core.EngineError).Stage)
	assert.Equal(t, 1, be.ManualSignals)

	token, err = fs.BeginFrame()
	require.NoError(t, err)
	finish(t, fs, be, token)
}

func TestSynchronizerFenceTimeout(t *testing.T) {
	fs, be := newTestSynchronizer(t, 2)
	be.FailWait = errors.New("timeout")
	_, err := fs.BeginFrame()
	assert.ErrorIs(t, err, core.ErrAcquireTimeout)
	assert.Equal(t, uint64(0), fs.Frame())

	be.FailWait = core.NewError(core.KindDeviceLost, core.StageAcquire, nil)
	_, err = fs.BeginFrame()
	assert.True(t, core.IsFatal(err))
}

func TestSynchronizerSuboptimalAcquire(t *testing.T) {
	fs, be := newTestSynchronizer(t, 2)
	be.FailAcquire = core.NewError(core.KindSwapchainSuboptimal, core.StageAcquire, nil)
	token, err := fs.BeginFrame()
	require.NoError(t, err)
	assert.True(t, fs.RecreatePending())
	finish(t, fs, be, token)

	_, err = fs.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, 1, be.Recreations)
	assert.False(t, fs.RecreatePending())
}

func TestSynchronizerZeroExtentKeepsRecreatePending(t *testing.T) {
	fs, be := newTestSynchronizer(t, 2)
	err := fs.RecreateSwapchain(0, 480)
	assert.ErrorIs(t, err, core.ErrFrameDropped)
	assert.True(t, fs.RecreatePending())
	assert.Zero(t, be.Recreations)

	require.NoError(t, fs.RecreateSwapchain(320, 240))
	assert.False(t, fs.RecreatePending())
	assert.Equal(t, 1, fs.Recreations())
}

func TestSynchronizerShutdownDropsOpenFrame(t *testing.T) {
	fs, be := newTestSynchronizer(t, 2)
	_, err := fs.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, fs.Shutdown())
	assert.Equal(t, 1, be.ManualSignals)
	assert.Zero(t, be.Outstanding())

	_, err = fs.BeginFrame()
	assert.ErrorIs(t, err, core.ErrShuttingDown)
}

func TestGlobalUniformsPack(t *testing.T) {
	assert.Equal(t, uintptr(176+metadata.MaxLights*64), unsafe.Sizeof(GlobalUniforms{}))

	cam := metadata.NewPerspectiveCamera(math.NewVec3(1, 2, 3), math.NewVec3Zero(), 1, 1, 0.1, 10)
	lights := []metadata.Light{
		metadata.NewDirectionalLight(math.NewVec3(0, -2, 0), math.NewVec3One(), 0.5),
		metadata.NewSpotLight(math.NewVec3(0, 5, 0), math.NewVec3(0, -1, 0), math.NewVec3(1, 0, 0), 2, 20, 0, 0),
		metadata.NewPointLight(math.NewVec3Zero(), math.NewVec3One(), 1, 5),
	}
	var g GlobalUniforms
	g.Pack(&cam, lights, metadata.Colour{X: 0.1, Y: 0.1, Z: 0.1, W: 1}, 2)

	assert.Equal(t, uint32(2), g.LightCount)
	assert.Equal(t, cam.View, g.View)
	assert.Equal(t, math.NewVec4(1, 2, 3, 1), g.CameraPosition)
	assert.Equal(t, math.NewVec4(0, -1, 0, 0), g.Lights[0].DirectionRange)
	assert.Equal(t, float32(metadata.LightSpot), g.Lights[1].PositionType.W)
	assert.Equal(t, math.NewVec4(1, 0, 0, 2), g.Lights[1].ColourIntensity)
	// cos(0)
	assert.Equal(t, float32(1), g.Lights[1].Cone.X)
	assert.Equal(t, LightUniform{}, g.Lights[2])
	assert.Len(t, g.Bytes(), int(unsafe.Sizeof(g)))
}
