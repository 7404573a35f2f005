/*
This is an example of application that will use the
engine package to render a small demo scene
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spaghettifunk/anima-render/engine"
	"github.com/spaghettifunk/anima-render/engine/config"
	"github.com/spaghettifunk/anima-render/testbed"
)

type flags struct {
	configPath string
	backend    string
	width      uint
	height     uint
	assetDir   string
	validation bool
	hotReload  bool
	vsync      bool
	logLevel   string
	logFile    string
	targetFPS  uint
	frames     uint64
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.configPath, "config", "", "Path to a TOML or YAML config file")
	flag.StringVar(&f.backend, "backend", "", "Rendering backend: vulkan or headless")
	flag.UintVar(&f.width, "width", 0, "Window width in pixels")
	flag.UintVar(&f.height, "height", 0, "Window height in pixels")
	flag.StringVar(&f.assetDir, "assets", "", "Asset directory")
	flag.BoolVar(&f.validation, "validation", false, "Enable the Vulkan validation layers")
	flag.BoolVar(&f.hotReload, "hot-reload", false, "Reload shaders and materials when they change on disk")
	flag.BoolVar(&f.vsync, "vsync", true, "Wait for vertical sync when presenting")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flag.StringVar(&f.logFile, "log-file", "", "Also write logs to this rotating file")
	flag.UintVar(&f.targetFPS, "fps", 0, "Frame rate cap, 0 for none")
	flag.Uint64Var(&f.frames, "frames", 0, "Quit after this many frames, 0 to run until closed")
	flag.Parse()
	return f
}

// apply overrides the config with the flags given on the command line only.
func (f *flags) apply(cfg *config.EngineConfig) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "backend":
			cfg.Backend = config.Backend(f.backend)
		case "width":
			cfg.Width = uint32(f.width)
		case "height":
			cfg.Height = uint32(f.height)
		case "assets":
			cfg.AssetDir = f.assetDir
			cfg.ShaderDir = filepath.Join(f.assetDir, "shaders")
		case "validation":
			cfg.Validation = f.validation
		case "hot-reload":
			cfg.HotReload = f.hotReload
		case "vsync":
			cfg.VSync = f.vsync
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-file":
			cfg.Log.File = f.logFile
		case "fps":
			cfg.TargetFPS = uint32(f.targetFPS)
		}
	})
}

func main() {
	f := parseFlags()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	f.apply(cfg)

	tb := testbed.NewTestGame(cfg, f.frames)

	e, err := engine.New(tb.Game)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Engine error: %v\n", err)
		os.Exit(1)
	}

	if err := e.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization error: %v\n", err)
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// the loop owns the GPU, so a signal only asks it to stop
	go func() {
		<-sigCh
		e.Quit()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Engine error: %v\n", runErr)
		os.Exit(1)
	}
}
