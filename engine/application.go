package engine

import "github.com/spaghettifunk/anima-render/engine/config"

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// Everything else: window size, backend, limits, assets and logging.
	Engine *config.EngineConfig
}
