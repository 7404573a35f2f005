package engine

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-render/engine/assets"
	"github.com/spaghettifunk/anima-render/engine/config"
	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/ecs"
	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/platform"
	"github.com/spaghettifunk/anima-render/engine/renderer"
	"github.com/spaghettifunk/anima-render/engine/renderer/headless"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-render/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-render/engine/systems"
	"github.com/spaghettifunk/anima-render/engine/ui"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every resource
	EngineStageShutdown
)

const suspendedPollInterval = 100 * time.Millisecond

type assetChange struct {
	name string
	kind assets.AssetKind
}

/**
 * @brief Owns every subsystem: window, backend, resource registry, renderer,
 * asset manager, job system, the ECS world and the UI tree. There are no
 * globals; everything hangs off this value.
 */
type Engine struct {
	id           string
	currentStage Stage
	gameInstance *Game
	config       *config.EngineConfig

	events    *core.EventBus
	input     *core.Input
	platform  *platform.Platform
	window    metadata.Window
	backend   metadata.Backend
	assets    *assets.AssetManager
	registry  *systems.ResourceSystem
	jobs      *systems.JobSystem
	renderer  *renderer.Renderer
	extractor *systems.SceneExtractor

	world    *ecs.World
	uiTree   *ui.Tree
	uiLayout *ui.Layout

	clock       *core.Clock
	lastTime    time.Duration
	isRunning   atomic.Bool
	isSuspended bool
	width       uint32
	height      uint32
	lastStats   metadata.FrameStats

	reloadMu       sync.Mutex
	pendingReloads []assetChange
}

/**
 * @brief Creates an engine for g. Nothing is started until Initialize.
 * A nil ApplicationConfig or engine config falls back to defaults.
 */
func New(g *Game) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("engine: nil game")
	}
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = &ApplicationConfig{StartPosX: 100, StartPosY: 100}
	}
	cfg := g.ApplicationConfig.Engine
	if cfg == nil {
		cfg = config.Default()
		g.ApplicationConfig.Engine = cfg
	}
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	events := core.NewEventBus()
	e := &Engine{
		id:           uuid.NewString(),
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		events:       events,
		input:        core.NewInput(events),
		clock:        core.NewClock(),
		world:        ecs.NewWorld(),
		uiTree:       ui.NewTree(),
		uiLayout:     ui.NewLayout(),
		width:        cfg.Width,
		height:       cfg.Height,
	}
	return e, nil
}

/**
 * @brief Starts the platform, the backend, the resource registry, the
 * renderer, the asset manager and the job system, then runs the game's
 * initialize hook. On failure everything started so far is shut down.
 */
func (e *Engine) Initialize() (err error) {
	if e.currentStage != EngineStageUninitialized {
		return core.NewInitializationFailure(core.StageConfig, fmt.Errorf("engine already initialized"))
	}
	e.currentStage = EngineStageInitializing
	level := e.config.Log.Level
	if level == "" {
		level = "info"
	}
	if err := core.ConfigureLogging(level, core.LogFileOptions{
		Path:       e.config.Log.File,
		MaxSizeMB:  e.config.Log.MaxSizeMB,
		MaxBackups: e.config.Log.MaxBackups,
		MaxAgeDays: e.config.Log.MaxAgeDays,
	}); err != nil {
		e.currentStage = EngineStageUninitialized
		return core.NewInitializationFailure(core.StageConfig, err)
	}
	core.LogInfo("engine %s initializing (%s backend)", e.id, e.config.Backend)
	defer func() {
		if err != nil {
			core.LogError("engine initialization failed: %s", err)
			_ = e.Shutdown()
		}
	}()

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_MINIMIZED, e, e.onMinimized)
	e.events.Register(core.EVENT_CODE_ASSET_CHANGED, e, e.onAssetChanged)

	var shaders metadata.ShaderSource
	e.assets = assets.NewAssetManager(e.config.AssetDir, e.config.ShaderDir, e.events)
	switch e.config.Backend {
	case config.BackendHeadless:
		e.window = headless.NewWindow(e.config.Width, e.config.Height)
		e.backend = headless.New()
		// nothing consumes SPIR-V without a device
	default:
		e.platform = platform.New(e.events, e.input)
		if err := e.platform.Startup(e.config.AppName, e.gameInstance.ApplicationConfig.StartPosX, e.gameInstance.ApplicationConfig.StartPosY, e.config.Width, e.config.Height); err != nil {
			e.platform = nil
			return err
		}
		e.window = e.platform
		e.backend = vulkan.New()
		shaders = e.assets
	}

	if err := e.assets.Initialize(e.config.HotReload); err != nil {
		return err
	}
	if err := e.backend.Initialize(e.window, e.config.BackendConfig()); err != nil {
		return err
	}
	e.width, e.height = e.window.FramebufferSize()

	e.registry, err = systems.NewResourceSystem(systems.ResourceSystemConfig{
		FramesInFlight: e.config.FramesInFlight,
		MaxMaterials:   e.config.MaxMaterials,
	}, e.backend, shaders)
	if err != nil {
		e.backend.Shutdown()
		return err
	}
	if err := e.registry.Initialize(); err != nil {
		e.backend.Shutdown()
		e.registry = nil
		return err
	}

	e.renderer = renderer.New(renderer.RendererConfig{
		MaxLights:     int(e.config.MaxLights),
		ClearColour:   e.config.ClearColour(),
		MaxInstances:  int(e.config.MaxInstances),
		MaxUIVertices: int(e.config.MaxUIVertices),
		FenceTimeout:  e.config.FenceTimeout.Duration,
	}, e.backend, e.window, e.registry)

	e.extractor, err = systems.NewSceneExtractor(systems.SceneExtractorConfig{
		FramesInFlight: e.config.FramesInFlight,
		MaxLights:      int(e.config.MaxLights),
		DefaultCamera:  e.defaultCamera(),
	})
	if err != nil {
		return err
	}
	e.extractor.SetViewport(e.width, e.height)

	workers := e.config.Workers
	if workers <= 0 {
		workers = max(1, runtime.NumCPU()/2)
	}
	if e.jobs, err = systems.NewJobSystem(workers, 64); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized (%dx%d)", e.width, e.height)
	return nil
}

/**
 * @brief Runs frames until the window closes or Quit is called. Errors that
 * only cost a frame are logged; fatal ones end the loop and are returned.
 */
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.NewError(core.KindShuttingDown, core.StageShutdown, fmt.Errorf("engine is not initialized"))
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.lastTime = e.clock.Elapsed()

	var targetFrame time.Duration
	if e.config.TargetFPS > 0 {
		targetFrame = time.Second / time.Duration(e.config.TargetFPS)
	}

	for e.isRunning.Load() {
		frameStart := time.Now()
		if err := e.Frame(); err != nil {
			e.isRunning.Store(false)
			return err
		}

		// Give the rest of the frame budget back to the OS.
		if targetFrame > 0 {
			if remaining := targetFrame - time.Since(frameStart); remaining > time.Millisecond {
				time.Sleep(remaining - time.Millisecond)
			}
		}
	}
	return nil
}

/**
 * @brief Runs a single iteration of the main loop: events, hot reloads, the
 * game update, extraction and rendering. Only fatal errors are returned.
 */
func (e *Engine) Frame() error {
	e.window.PollEvents()
	if e.platform != nil && e.platform.ShouldClose() {
		e.Quit()
		return nil
	}
	if e.isSuspended || e.window.IsMinimized() {
		time.Sleep(suspendedPollInterval)
		return nil
	}

	e.clock.Update()
	now := e.clock.Elapsed()
	delta := (now - e.lastTime).Seconds()
	e.lastTime = now

	e.applyReloads()

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(e, delta); err != nil {
			core.LogError("game update failed: %s", err)
			return core.NewError(core.KindShuttingDown, core.StageExtract, err)
		}
	}

	data, err := e.extractor.Extract(e.world, e.renderer.NextSlot())
	if err != nil {
		return err
	}
	e.uiLayout.Build(e.uiTree, e.width, e.height, &data.UI)
	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(e, data, delta); err != nil {
			core.LogError("game render failed: %s", err)
			return core.NewError(core.KindShuttingDown, core.StageExtract, err)
		}
	}

	if _, err := e.RenderFrame(data); err != nil && core.IsFatal(err) {
		return err
	}
	e.input.Update()
	return nil
}

/**
 * @brief Renders and presents one frame built by the caller.
 * @param data The frame snapshot. Borrowed for the duration of the call.
 * @return The frame's counters, and an error when the frame was dropped or
 * the engine can no longer render.
 */
func (e *Engine) RenderFrame(data *metadata.RenderFrameData) (metadata.FrameStats, error) {
	if e.renderer == nil {
		return metadata.FrameStats{}, core.NewError(core.KindShuttingDown, core.StageShutdown, fmt.Errorf("renderer is not running"))
	}
	stats, err := e.renderer.RenderFrame(data)
	e.lastStats = stats
	if err != nil {
		if core.IsFatal(err) {
			core.LogError("frame %d: %s", stats.Frame, err)
		} else {
			core.LogDebug("frame %d dropped: %s", stats.Frame, err)
		}
	}
	return stats, err
}

// Quit stops Run after the current frame. Safe from any goroutine.
func (e *Engine) Quit() {
	e.isRunning.Store(false)
}

/**
 * @brief Stops the job system and the watcher, waits for the GPU and
 * releases everything in reverse creation order. Calling it twice is a no-op.
 */
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown || e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.jobs != nil {
		errs = append(errs, e.jobs.Shutdown())
	}
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.assets != nil {
		errs = append(errs, e.assets.Shutdown())
	}
	if e.renderer != nil {
		if err := e.renderer.Shutdown(); err != nil && !errors.Is(err, core.ErrShuttingDown) {
			errs = append(errs, err)
		}
	} else if e.registry != nil {
		e.registry.Shutdown()
		e.backend.Shutdown()
	}
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
	}
	e.events.Shutdown()
	e.currentStage = EngineStageShutdown
	core.LogInfo("engine %s shut down", e.id)
	errs = append(errs, core.CloseLogging())
	return errors.Join(errs...)
}

func (e *Engine) ID() string                        { return e.id }
func (e *Engine) Stage() Stage                      { return e.currentStage }
func (e *Engine) Config() *config.EngineConfig      { return e.config }
func (e *Engine) Events() *core.EventBus            { return e.events }
func (e *Engine) Input() *core.Input                { return e.input }
func (e *Engine) Assets() *assets.AssetManager      { return e.assets }
func (e *Engine) Registry() *systems.ResourceSystem { return e.registry }
func (e *Engine) Jobs() *systems.JobSystem          { return e.jobs }
func (e *Engine) Renderer() *renderer.Renderer      { return e.renderer }
func (e *Engine) World() *ecs.World                 { return e.world }
func (e *Engine) UI() *ui.Tree                      { return e.uiTree }
func (e *Engine) Window() metadata.Window           { return e.window }
func (e *Engine) LastStats() metadata.FrameStats    { return e.lastStats }

// GetFramebufferSize returns the width and height (in this order) of the framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) defaultCamera() metadata.Camera {
	aspect := float32(1)
	if e.height > 0 {
		aspect = float32(e.width) / float32(e.height)
	}
	return metadata.NewPerspectiveCamera(math.NewVec3(0, 2, 10), math.NewVec3Zero(), math.DegToRad(60), aspect, 0.1, 1000)
}

func (e *Engine) onEvent(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Quit()
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.renderer != nil {
		e.renderer.Resize(width, height)
	}
	if e.extractor != nil {
		e.extractor.SetViewport(width, height)
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	return false
}

func (e *Engine) onMinimized(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	e.isSuspended = data.Data.U32[0] != 0
	return false
}

// onAssetChanged runs on the watcher goroutine; the reload itself waits for the next frame.
func (e *Engine) onAssetChanged(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	change := assetChange{name: data.Data.C[0], kind: assets.ParseAssetKind(data.Data.C[1])}
	if change.kind != assets.AssetKindShader && change.kind != assets.AssetKindMaterial {
		return false
	}
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	for _, p := range e.pendingReloads {
		if p == change {
			return false
		}
	}
	e.pendingReloads = append(e.pendingReloads, change)
	return false
}

func (e *Engine) applyReloads() {
	e.reloadMu.Lock()
	pending := e.pendingReloads
	e.pendingReloads = nil
	e.reloadMu.Unlock()
	if len(pending) == 0 {
		return
	}

	idle := false
	for _, change := range pending {
		switch change.kind {
		case assets.AssetKindShader:
			n, err := e.registry.ReloadPipeline(change.name)
			if err != nil {
				core.LogError("hot reload of shader '%s' failed, keeping the old pipelines: %s", change.name, err)
				continue
			}
			core.LogInfo("shader '%s' reloaded into %d pipelines", change.name, n)
		case assets.AssetKindMaterial:
			if !idle {
				if err := e.backend.WaitIdle(); err != nil {
					core.LogError("hot reload: %s", err)
					return
				}
				idle = true
			}
			if err := e.assets.ReloadMaterial(e.registry, change.name); err != nil {
				core.LogWarn("hot reload of material '%s' skipped: %s", change.name, err)
			}
		}
	}
}
