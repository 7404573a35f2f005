package engine

import "github.com/spaghettifunk/anima-render/engine/renderer/metadata"

/**
 * @brief The application driven by the engine. Every hook is optional and
 * runs on the render thread.
 */
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize runs once the renderer is up; resources can be created from here on.
type Initialize func(e *Engine) error

type Update func(e *Engine, deltaTime float64) error

// Render may amend the extracted frame before it is drawn.
type Render func(e *Engine, data *metadata.RenderFrameData, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
