package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.FramesInFlight)
	assert.Equal(t, metadata.PresentModeFIFO, cfg.PresentMode())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "engine.toml", `
frames_in_flight = 3
vsync = false
max_lights = 8
clear_color = [0.1, 0.2, 0.3, 1.0]
msaa_samples = 4
shader_dir = "build/shaders"
fence_timeout = "250ms"

[log]
level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.FramesInFlight)
	assert.Equal(t, uint32(8), cfg.MaxLights)
	assert.Equal(t, uint32(4), cfg.MSAASamples)
	assert.Equal(t, "build/shaders", cfg.ShaderDir)
	assert.Equal(t, 250*time.Millisecond, cfg.FenceTimeout.Duration)
	assert.Equal(t, metadata.PresentModeMailbox, cfg.PresentMode())
	assert.Equal(t, float32(0.2), cfg.ClearColour().Y)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, uint32(1280), cfg.Width)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "engine.yaml", `
frames_in_flight: 1
backend: headless
fence_timeout: 2s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.FramesInFlight)
	assert.Equal(t, BackendHeadless, cfg.Backend)
	assert.Equal(t, 2*time.Second, cfg.FenceTimeout.Duration)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"frames": "frames_in_flight = 4\n",
		"lights": "max_lights = 64\n",
		"msaa":   "msaa_samples = 3\n",
		"shader": "shader_dir = \"\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.toml", body))
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInitializationFailure)
		})
	}
}

func TestLoadUnknownExtension(t *testing.T) {
	_, err := Load(writeFile(t, "engine.ini", "x=1"))
	assert.ErrorIs(t, err, core.ErrInitializationFailure)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
