package renderer

import (
	"errors"
	"time"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-render/engine/systems"
)

type RendererType uint8

const (
	Vulkan RendererType = iota
	Headless
)

/** @brief The configuration of the frame pipeline */
type RendererConfig struct {
	MaxLights     int
	ClearColour   metadata.Colour
	MaxInstances  int
	MaxUIVertices int
	FenceTimeout  time.Duration
}

/**
 * @brief Turns one RenderFrameData per call into one presented image. Owns
 * the frame synchronizer, the queue builder and the pass executor; the
 * resource system is shared with the rest of the engine.
 */
type Renderer struct {
	backend  metadata.Backend
	window   metadata.Window
	registry *systems.ResourceSystem
	config   RendererConfig

	sync     *FrameSynchronizer
	builder  *systems.QueueBuilder
	executor *PassExecutor
	selector systems.LightSelector

	queue   metadata.RenderQueue
	lights  []metadata.Light
	metrics *core.Metrics
}

/**
 * @brief Builds the frame pipeline on an initialized backend and resource
 * system.
 */
func New(config RendererConfig, backend metadata.Backend, window metadata.Window, registry *systems.ResourceSystem) *Renderer {
	if config.MaxLights <= 0 || config.MaxLights > metadata.MaxLights {
		config.MaxLights = metadata.MaxLights
	}
	r := &Renderer{
		backend:  backend,
		window:   window,
		registry: registry,
		config:   config,
		sync:     NewFrameSynchronizer(backend, window, config.FenceTimeout),
		builder: systems.NewQueueBuilder(systems.QueueBuilderConfig{
			MaxInstances:  config.MaxInstances,
			MaxUIVertices: config.MaxUIVertices,
		}, registry, nil),
		executor: NewPassExecutor(backend, registry, config.ClearColour, config.MaxLights),
		metrics:  core.NewMetrics(),
	}
	r.sync.OnFrameCompleted = registry.FrameCompleted
	return r
}

func (r *Renderer) Synchronizer() *FrameSynchronizer {
	return r.sync
}

// NextSlot returns the slot the next frame is recorded in, for callers that
// extract into slot owned buffers.
func (r *Renderer) NextSlot() int {
	return int(r.sync.Frame() % uint64(r.sync.FramesInFlight()))
}

// SetSpatialIndex replaces the culling index of the queue builder.
func (r *Renderer) SetSpatialIndex(index systems.SpatialIndex) {
	r.builder = systems.NewQueueBuilder(systems.QueueBuilderConfig{
		MaxInstances:  r.config.MaxInstances,
		MaxUIVertices: r.config.MaxUIVertices,
	}, r.registry, index)
}

// Resize defers a swapchain rebuild to the next frame.
func (r *Renderer) Resize(width, height uint32) {
	core.LogDebug("framebuffer resized to %dx%d", width, height)
	r.sync.MarkResized()
}

/**
 * @brief Renders and presents one frame. The data is only read during the
 * call.
 *
 * @param data The scene snapshot of the frame.
 * @return The frame's counters. FrameDropped, SwapchainOutOfDate and
 * AcquireTimeout errors only cost this frame; DeviceLost and ShuttingDown
 * are fatal.
 */
func (r *Renderer) RenderFrame(data *metadata.RenderFrameData) (metadata.FrameStats, error) {
	start := time.Now()
	recreations := r.sync.Recreations()
	stats := metadata.FrameStats{Frame: r.sync.Frame()}

	token, err := r.sync.BeginFrame()
	if err != nil {
		if errors.Is(err, core.ErrSwapchainOutOfDate) {
			w, h := r.extent()
			if rerr := r.sync.RecreateSwapchain(w, h); rerr != nil {
				core.LogWarn("swapchain recreation after out of date acquire failed: %s", rerr)
			}
			err = core.NewFrameDropped(core.StageAcquire, "swapchain out of date", err)
		}
		stats.Recreated = r.sync.Recreations() != recreations
		return stats, err
	}
	stats.Recreated = r.sync.Recreations() != recreations

	// uploads and deferred destruction happen before anything is recorded
	r.registry.BeginFrame(token.Frame, r.sync.Completed())

	r.lights = r.selector.Select(r.lights[:0], data.Lights, data.Camera.Position, r.config.MaxLights)

	r.builder.Build(data, &r.queue)
	exec, err := r.executor.Execute(token, &data.Camera, r.lights, data.Ambient, &r.queue)
	r.fill(&stats, exec)
	if err != nil {
		if derr := r.sync.DropFrame(token, err.Error()); derr != nil {
			return stats, derr
		}
		return stats, err
	}
	if err := r.sync.EndFrame(token); err != nil {
		return stats, err
	}

	stats.CPUTime = time.Since(start)
	r.metrics.Update(stats.CPUTime)
	stats.AverageMS = r.metrics.FrameTime()
	stats.FPS = r.metrics.FPS()
	return stats, nil
}

func (r *Renderer) fill(stats *metadata.FrameStats, exec ExecuteStats) {
	stats.Batches = len(r.queue.Batches)
	stats.DrawCalls = exec.DrawCalls
	stats.Instances = exec.Instances
	stats.PipelineBinds = exec.PipelineBinds
	stats.MaterialBinds = exec.MaterialBinds
	stats.MeshBinds = exec.MeshBinds
	stats.Culled = r.queue.Culled
	stats.Dropped = r.queue.Dropped + exec.Skipped
	stats.Lights = exec.Lights
}

func (r *Renderer) extent() (uint32, uint32) {
	if r.window != nil {
		return r.window.FramebufferSize()
	}
	return r.backend.SwapchainExtent()
}

// RequestShutdown can be called from any goroutine.
func (r *Renderer) RequestShutdown() {
	r.sync.RequestShutdown()
}

/**
 * @brief Waits for the GPU and releases every resource. The backend is shut
 * down last.
 */
func (r *Renderer) Shutdown() error {
	err := r.sync.Shutdown()
	r.registry.Shutdown()
	r.backend.Shutdown()
	core.LogInfo("renderer shut down")
	return err
}
