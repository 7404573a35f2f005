package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

type Backend string

const (
	BackendVulkan   Backend = "vulkan"
	BackendHeadless Backend = "headless"
)

// EngineConfig holds every option the renderer recognizes.
type EngineConfig struct {
	AppName string `toml:"app_name" yaml:"app_name"`
	Width   uint32 `toml:"width" yaml:"width"`
	Height  uint32 `toml:"height" yaml:"height"`
	Backend Backend `toml:"backend" yaml:"backend"`

	FramesInFlight int        `toml:"frames_in_flight" yaml:"frames_in_flight"`
	VSync          bool       `toml:"vsync" yaml:"vsync"`
	MaxLights      uint32     `toml:"max_lights" yaml:"max_lights"`
	ClearColor     [4]float32 `toml:"clear_color" yaml:"clear_color"`
	MSAASamples    uint32     `toml:"msaa_samples" yaml:"msaa_samples"`
	AssetDir       string     `toml:"asset_dir" yaml:"asset_dir"`
	ShaderDir      string     `toml:"shader_dir" yaml:"shader_dir"`

	Validation    bool     `toml:"validation" yaml:"validation"`
	HotReload     bool     `toml:"hot_reload" yaml:"hot_reload"`
	MaxInstances  uint32   `toml:"max_instances" yaml:"max_instances"`
	MaxUIVertices uint32   `toml:"max_ui_vertices" yaml:"max_ui_vertices"`
	MaxMaterials  uint32   `toml:"max_materials" yaml:"max_materials"`
	FenceTimeout  Duration `toml:"fence_timeout" yaml:"fence_timeout"`
	TargetFPS     uint32   `toml:"target_fps" yaml:"target_fps"`
	Workers       int      `toml:"workers" yaml:"workers"`

	Log LogConfig `toml:"log" yaml:"log"`
}

type LogConfig struct {
	Level      string `toml:"level" yaml:"level"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
}

// Duration decodes from strings such as "1s" or "250ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Default returns the configuration used when no file is given.
func Default() *EngineConfig {
	return &EngineConfig{
		AppName:        "Anima",
		Width:          1280,
		Height:         720,
		Backend:        BackendVulkan,
		FramesInFlight: 2,
		VSync:          true,
		MaxLights:      metadata.MaxLights,
		ClearColor:     [4]float32{0.05, 0.05, 0.08, 1.0},
		MSAASamples:    1,
		AssetDir:       "assets",
		ShaderDir:      filepath.Join("assets", "shaders"),
		MaxInstances:   65536,
		MaxUIVertices:  65536,
		MaxMaterials:   1024,
		FenceTimeout:   Duration{time.Second},
		TargetFPS:      0,
		Workers:        2,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load reads a TOML or YAML file on top of Default. An empty path returns defaults.
func Load(path string) (*EngineConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewInitializationFailure(core.StageConfig, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, core.NewInitializationFailure(core.StageConfig, fmt.Errorf("%s: %w", path, err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option ranges.
func (c *EngineConfig) Validate() error {
	var problems []string
	if c.FramesInFlight < 1 || c.FramesInFlight > metadata.MaxFramesInFlight {
		problems = append(problems, fmt.Sprintf("frames_in_flight must be in [1,%d], got %d", metadata.MaxFramesInFlight, c.FramesInFlight))
	}
	if c.MaxLights > metadata.MaxLights {
		problems = append(problems, fmt.Sprintf("max_lights must be <= %d, got %d", metadata.MaxLights, c.MaxLights))
	}
	switch c.MSAASamples {
	case 1, 2, 4, 8:
	default:
		problems = append(problems, fmt.Sprintf("msaa_samples must be 1, 2, 4 or 8, got %d", c.MSAASamples))
	}
	switch c.Backend {
	case BackendVulkan, BackendHeadless:
	default:
		problems = append(problems, fmt.Sprintf("unknown backend %q", c.Backend))
	}
	if c.ShaderDir == "" {
		problems = append(problems, "shader_dir must be set")
	}
	if c.MaxInstances == 0 || c.MaxUIVertices == 0 || c.MaxMaterials == 0 {
		problems = append(problems, "max_instances, max_ui_vertices and max_materials must be positive")
	}
	if c.FenceTimeout.Duration <= 0 {
		problems = append(problems, "fence_timeout must be positive")
	}
	if len(problems) > 0 {
		return core.NewInitializationFailure(core.StageConfig, fmt.Errorf("%s", strings.Join(problems, "; ")))
	}
	return nil
}

// ClearColour returns the clear colour as a vector.
func (c *EngineConfig) ClearColour() metadata.Colour {
	return metadata.Colour{X: c.ClearColor[0], Y: c.ClearColor[1], Z: c.ClearColor[2], W: c.ClearColor[3]}
}

// PresentMode maps vsync onto the present mode requested from the swapchain.
func (c *EngineConfig) PresentMode() metadata.PresentMode {
	if c.VSync {
		return metadata.PresentModeFIFO
	}
	return metadata.PresentModeMailbox
}

// BackendConfig narrows the config to what a backend needs.
func (c *EngineConfig) BackendConfig() metadata.BackendConfig {
	return metadata.BackendConfig{
		ApplicationName: c.AppName,
		Width:           c.Width,
		Height:          c.Height,
		FramesInFlight:  c.FramesInFlight,
		PresentMode:     c.PresentMode(),
		MSAASamples:     c.MSAASamples,
		Validation:      c.Validation,
		MaxInstances:    c.MaxInstances,
		MaxUIVertices:   c.MaxUIVertices,
	}
}
