package testbed

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-render/engine"
	"github.com/spaghettifunk/anima-render/engine/config"
	"github.com/spaghettifunk/anima-render/engine/core"
)

func TestSceneRunsHeadless(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendHeadless
	cfg.AssetDir = t.TempDir()
	cfg.ShaderDir = filepath.Join(cfg.AssetDir, "shaders")
	cfg.MaxLights = 4

	tg := NewTestGame(cfg, 5)
	e, err := engine.New(tg.Game)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { assert.NoError(t, e.Shutdown()) }()

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(5), tg.state.frames)

	stats := e.LastStats()
	assert.Equal(t, uint64(4), stats.Frame)
	assert.Positive(t, stats.DrawCalls)
	assert.Positive(t, stats.Instances)
	assert.Equal(t, 2, stats.Lights)
}

func TestKeyboardTakesOverCamera(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendHeadless
	cfg.AssetDir = t.TempDir()
	cfg.ShaderDir = filepath.Join(cfg.AssetDir, "shaders")

	tg := NewTestGame(cfg, 0)
	e, err := engine.New(tg.Game)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { assert.NoError(t, e.Shutdown()) }()

	cam := tg.state.camera
	start := cam.Position
	forward := cam.Forward()
	e.Input().ProcessKey(core.KEY_W, true)
	assert.True(t, tg.steer(e.Input(), 0.5))
	moved := cam.Position.Sub(start)
	assert.InDelta(t, moveSpeed*0.5, moved.Length(), 1e-4)
	assert.InDelta(t, 1, moved.Normalize().Dot(forward), 1e-4)

	require.NoError(t, e.Frame())
	assert.True(t, tg.state.manual)
	assert.True(t, e.Input().WasKeyDown(core.KEY_W))

	e.Input().ProcessKey(core.KEY_W, false)
	assert.False(t, tg.steer(e.Input(), 0.5))
}
