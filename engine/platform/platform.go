package platform

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

/**
 * @brief A glfw window without a client API, presented through Vulkan.
 * Resize, minimize and close are forwarded to the event bus.
 */
type Platform struct {
	Window *glfw.Window
	events *core.EventBus
	input  *core.Input

	minimized atomic.Bool
	startTime float64
}

var _ metadata.Window = (*Platform)(nil)

func New(events *core.EventBus, input *core.Input) *Platform {
	return &Platform{events: events, input: input}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		return core.NewInitializationFailure(core.StagePlatform, fmt.Errorf("failed to initialize glfw: %w", err))
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return core.NewInitializationFailure(core.StagePlatform, fmt.Errorf("glfw reports no Vulkan loader"))
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		return core.NewInitializationFailure(core.StagePlatform, fmt.Errorf("failed to create window: %w", err))
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetMouseButtonCallback(p.mouseButtonCallback)
	p.Window.SetCursorPosCallback(p.cursorPosCallback)
	p.Window.SetScrollCallback(p.scrollCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetIconifyCallback(p.iconifyCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	p.startTime = glfw.GetTime()
	core.LogInfo("window '%s' created (%dx%d)", applicationName, width, height)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// CreateSurface creates a VkSurfaceKHR for instance and returns its handle.
func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	surface, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	return surface, nil
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(max(0, w)), uint32(max(0, h))
}

func (p *Platform) PollEvents() {
	glfw.PollEvents()
}

func (p *Platform) IsMinimized() bool {
	return p.minimized.Load()
}

func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) ShouldClose() bool {
	return p.Window.ShouldClose()
}

// Elapsed returns the seconds since Startup.
func (p *Platform) Elapsed() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.SetShouldClose(true)
		p.fire(core.EVENT_CODE_APPLICATION_QUIT, core.EventContext{})
	}
	if action == glfw.Repeat || p.input == nil {
		return
	}
	if code, ok := translateKey(key); ok {
		p.input.ProcessKey(code, action == glfw.Press)
	}
}

func (p *Platform) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	if p.input == nil {
		return
	}
	var b core.Button
	switch button {
	case glfw.MouseButtonLeft:
		b = core.BUTTON_LEFT
	case glfw.MouseButtonRight:
		b = core.BUTTON_RIGHT
	case glfw.MouseButtonMiddle:
		b = core.BUTTON_MIDDLE
	default:
		return
	}
	p.input.ProcessButton(b, action == glfw.Press)
}

func (p *Platform) cursorPosCallback(w *glfw.Window, x, y float64) {
	if p.input != nil {
		p.input.ProcessMouseMove(int32(x), int32(y))
	}
}

func (p *Platform) scrollCallback(w *glfw.Window, xoff, yoff float64) {
	if p.input != nil {
		p.input.ProcessMouseWheel(float32(yoff))
	}
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.fire(core.EVENT_CODE_APPLICATION_QUIT, core.EventContext{})
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	ctx := core.EventContext{}
	ctx.Data.U32[0] = uint32(max(0, width))
	ctx.Data.U32[1] = uint32(max(0, height))
	p.fire(core.EVENT_CODE_RESIZED, ctx)
}

func (p *Platform) iconifyCallback(w *glfw.Window, iconified bool) {
	p.minimized.Store(iconified)
	ctx := core.EventContext{}
	if iconified {
		ctx.Data.U32[0] = 1
	}
	p.fire(core.EVENT_CODE_MINIMIZED, ctx)
}

func (p *Platform) fire(code core.SystemEventCode, ctx core.EventContext) {
	if p.events != nil {
		p.events.Fire(code, p, ctx)
	}
}
