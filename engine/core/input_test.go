package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputKeyStateAndEvents(t *testing.T) {
	bus := NewEventBus()
	in := NewInput(bus)

	var pressed, released []uint32
	bus.Register(EVENT_CODE_KEY_PRESSED, t, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		pressed = append(pressed, data.Data.U32[0])
		return false
	})
	bus.Register(EVENT_CODE_KEY_RELEASED, t, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		released = append(released, data.Data.U32[0])
		return false
	})

	in.ProcessKey(KEY_W, true)
	// repeats do not fire again
	in.ProcessKey(KEY_W, true)
	assert.True(t, in.IsKeyDown(KEY_W))
	assert.True(t, in.WasKeyUp(KEY_W))
	assert.Equal(t, []uint32{uint32(KEY_W)}, pressed)

	in.Update()
	assert.True(t, in.WasKeyDown(KEY_W))
	in.ProcessKey(KEY_W, false)
	assert.True(t, in.IsKeyUp(KEY_W))
	assert.Equal(t, []uint32{uint32(KEY_W)}, released)
}

func TestInputMouse(t *testing.T) {
	bus := NewEventBus()
	in := NewInput(bus)

	moves := 0
	bus.Register(EVENT_CODE_MOUSE_MOVED, t, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		moves++
		return false
	})

	in.ProcessMouseMove(10, 20)
	in.ProcessMouseMove(10, 20)
	assert.Equal(t, 1, moves)
	x, y := in.MousePosition()
	assert.Equal(t, int32(10), x)
	assert.Equal(t, int32(20), y)

	in.ProcessButton(BUTTON_LEFT, true)
	in.ProcessButton(BUTTON_MAX_BUTTONS, true)
	assert.True(t, in.IsButtonDown(BUTTON_LEFT))
	assert.False(t, in.IsButtonDown(BUTTON_MAX_BUTTONS))

	in.Update()
	assert.True(t, in.WasButtonDown(BUTTON_LEFT))
	px, py := in.PreviousMousePosition()
	assert.Equal(t, int32(10), px)
	assert.Equal(t, int32(20), py)
}
