package renderer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

/**
 * @brief Proof that a frame was begun. It is consumed by exactly one of
 * EndFrame or DropFrame.
 */
type FrameToken struct {
	Frame uint64
	Slot  int
	Image uint32
}

/**
 * @brief Drives the ring of frame slots: fence waits, image acquisition,
 * submission and presentation, and swapchain recreation. At most
 * FramesInFlight frames are on the GPU at any time.
 */
type FrameSynchronizer struct {
	backend   metadata.Backend
	window    metadata.Window
	submitter *Submitter
	frames    int
	timeout   time.Duration

	next     uint64
	current  FrameToken
	inFrame  bool
	recreate bool
	shutdown atomic.Bool

	recreations int

	// OnFrameCompleted receives the number of the newest frame known to be
	// finished on the GPU.
	OnFrameCompleted func(completed int64)
}

func NewFrameSynchronizer(backend metadata.Backend, window metadata.Window, timeout time.Duration) *FrameSynchronizer {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &FrameSynchronizer{
		backend:   backend,
		window:    window,
		submitter: NewSubmitter(backend),
		frames:    backend.FramesInFlight(),
		timeout:   timeout,
	}
}

// FramesInFlight returns F, the number of frame slots.
func (fs *FrameSynchronizer) FramesInFlight() int {
	return fs.frames
}

// Frame returns the number the next begun frame will get.
func (fs *FrameSynchronizer) Frame() uint64 {
	return fs.next
}

// Completed returns the newest frame whose fence has been observed, or -1.
func (fs *FrameSynchronizer) Completed() int64 {
	return max(-1, int64(fs.next)-int64(fs.frames)-1)
}

// RecreatePending reports whether the next BeginFrame will rebuild the swapchain.
func (fs *FrameSynchronizer) RecreatePending() bool {
	return fs.recreate
}

// Recreations counts successful swapchain rebuilds.
func (fs *FrameSynchronizer) Recreations() int {
	return fs.recreations
}

// MarkResized defers a swapchain rebuild to the next BeginFrame.
func (fs *FrameSynchronizer) MarkResized() {
	fs.recreate = true
}

/**
 * @brief Starts frame N on slot N mod F. Waits for the slot's previous
 * frame, acquires a swapchain image and begins the slot's recorder.
 *
 * @return A token for the frame. On error no frame is in progress.
 */
func (fs *FrameSynchronizer) BeginFrame() (FrameToken, error) {
	if fs.shutdown.Load() {
		return FrameToken{}, core.NewError(core.KindShuttingDown, core.StageAcquire, nil)
	}
	if fs.inFrame {
		return FrameToken{}, core.ErrFrameInProgress
	}
	if fs.window != nil && fs.window.IsMinimized() {
		return FrameToken{}, core.NewFrameDropped(core.StageAcquire, "minimized", nil)
	}
	if fs.recreate {
		w, h := fs.backend.SwapchainExtent()
		if fs.window != nil {
			w, h = fs.window.FramebufferSize()
		}
		if err := fs.RecreateSwapchain(w, h); err != nil {
			return FrameToken{}, err
		}
	}

	slot := int(fs.next % uint64(fs.frames))
	if err := fs.backend.WaitForFence(slot, fs.timeout); err != nil {
		if core.KindOf(err) == core.KindUnknown {
			err = core.NewError(core.KindAcquireTimeout, core.StageAcquire, err)
		}
		core.LogError("waiting for frame slot %d failed: %s", slot, err)
		return FrameToken{}, err
	}
	// the slot's fence covers frame N-F
	if completed := int64(fs.next) - int64(fs.frames); completed >= 0 && fs.OnFrameCompleted != nil {
		fs.OnFrameCompleted(completed)
	}

	image, err := fs.backend.AcquireNextImage(slot, fs.timeout)
	switch core.KindOf(err) {
	case core.KindUnknown:
		if err != nil {
			core.LogError("acquiring swapchain image failed: %s", err)
			return FrameToken{}, core.NewFrameDropped(core.StageAcquire, "acquire failed", err)
		}
	case core.KindSwapchainSuboptimal:
		// the image is usable; rebuild once this frame is out
		fs.recreate = true
	case core.KindSwapchainOutOfDate:
		fs.recreate = true
		return FrameToken{}, err
	default:
		return FrameToken{}, err
	}

	if err := fs.backend.ResetFence(slot); err != nil {
		return FrameToken{}, core.NewError(core.KindDeviceLost, core.StageAcquire, err)
	}
	rec := fs.backend.Recorder(slot)
	if err := rec.Reset(); err != nil {
		return FrameToken{}, fs.abandon(slot, err)
	}
	if err := rec.Begin(); err != nil {
		return FrameToken{}, fs.abandon(slot, err)
	}

	fs.current = FrameToken{Frame: fs.next, Slot: slot, Image: image}
	fs.inFrame = true
	fs.next++
	return fs.current, nil
}

// abandon signals the fence of a slot whose frame could not start so the
// next wait on it does not block, and consumes the frame number.
func (fs *FrameSynchronizer) abandon(slot int, err error) error {
	core.LogError("beginning the recorder of slot %d failed: %s", slot, err)
	if serr := fs.backend.SignalFence(slot); serr != nil {
		return core.NewError(core.KindDeviceLost, core.StageRecord, serr)
	}
	fs.next++
	return core.NewFrameDropped(core.StageRecord, "recorder begin failed", err)
}

func (fs *FrameSynchronizer) check(token FrameToken) error {
	if !fs.inFrame || token != fs.current {
		return core.ErrInvalidToken
	}
	return nil
}

/**
 * @brief Submits and presents the frame of token. The recorder must have
 * been ended. Out of date or suboptimal presentation defers a swapchain
 * rebuild to the next BeginFrame.
 */
func (fs *FrameSynchronizer) EndFrame(token FrameToken) error {
	if err := fs.check(token); err != nil {
		return err
	}
	fs.inFrame = false

	if err := fs.submitter.Submit(token.Slot); err != nil {
		if core.KindOf(err) != core.KindDeviceLost {
			if serr := fs.backend.SignalFence(token.Slot); serr != nil {
				return core.NewError(core.KindDeviceLost, core.StageSubmit, serr)
			}
		}
		return err
	}
	recreate, err := fs.submitter.Present(token.Slot, token.Image)
	if recreate {
		fs.recreate = true
	}
	return err
}

/**
 * @brief Abandons the frame of token. Nothing is submitted; the slot fence
 * is signalled so the slot can be reused.
 */
func (fs *FrameSynchronizer) DropFrame(token FrameToken, reason string) error {
	if err := fs.check(token); err != nil {
		return err
	}
	fs.inFrame = false
	core.LogWarn("frame %d dropped: %s", token.Frame, reason)
	if err := fs.backend.Recorder(token.Slot).Reset(); err != nil {
		core.LogError("resetting the recorder of slot %d failed: %s", token.Slot, err)
	}
	if err := fs.backend.SignalFence(token.Slot); err != nil {
		return core.NewError(core.KindDeviceLost, core.StageRecord, err)
	}
	return nil
}

/**
 * @brief Rebuilds the swapchain and its framebuffers for a new extent once
 * every frame in flight has finished. A zero extent keeps the rebuild
 * pending.
 */
func (fs *FrameSynchronizer) RecreateSwapchain(width, height uint32) error {
	if fs.inFrame {
		return core.ErrFrameInProgress
	}
	if width == 0 || height == 0 {
		fs.recreate = true
		return core.NewFrameDropped(core.StageSwapchain, "zero sized framebuffer", nil)
	}
	if err := fs.backend.WaitIdle(); err != nil {
		return core.NewError(core.KindDeviceLost, core.StageSwapchain, err)
	}
	if err := fs.backend.RecreateSwapchain(width, height); err != nil {
		core.LogError("swapchain recreation failed: %s", err)
		if core.KindOf(err) == core.KindUnknown {
			err = core.NewInitializationFailure(core.StageSwapchain, err)
		}
		return err
	}
	fs.recreate = false
	fs.recreations++
	core.LogInfo("swapchain recreated at %dx%d", width, height)
	return nil
}

// RequestShutdown makes every following BeginFrame fail. Safe to call from
// any goroutine.
func (fs *FrameSynchronizer) RequestShutdown() {
	fs.shutdown.Store(true)
}

func (fs *FrameSynchronizer) ShuttingDown() bool {
	return fs.shutdown.Load()
}

// Shutdown drops a frame left in progress and waits for the GPU.
func (fs *FrameSynchronizer) Shutdown() error {
	fs.shutdown.Store(true)
	if fs.inFrame {
		if err := fs.DropFrame(fs.current, "shutdown"); err != nil {
			return err
		}
	}
	if err := fs.backend.WaitIdle(); err != nil {
		return fmt.Errorf("waiting for the device at shutdown: %w", err)
	}
	return nil
}
