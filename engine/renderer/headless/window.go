package headless

import "sync"

// Window is an offscreen window whose size and state are set by the caller.
type Window struct {
	mu        sync.Mutex
	width     uint32
	height    uint32
	minimized bool
	Polls     int
}

func NewWindow(width, height uint32) *Window {
	return &Window{width: width, height: height}
}

func (w *Window) CreateSurface(instance interface{}) (uintptr, error) {
	return 0, nil
}

func (w *Window) FramebufferSize() (uint32, uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.minimized {
		return 0, 0
	}
	return w.width, w.height
}

func (w *Window) PollEvents() {
	w.mu.Lock()
	w.Polls++
	w.mu.Unlock()
}

func (w *Window) IsMinimized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.minimized
}

func (w *Window) RequiredInstanceExtensions() []string {
	return nil
}

func (w *Window) Resize(width, height uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.width, w.height = width, height
}

func (w *Window) SetMinimized(minimized bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.minimized = minimized
}
