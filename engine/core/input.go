package core

import "sync"

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions
type KeyCode uint16

const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_SHIFT     KeyCode = 0x10
	KEY_CONTROL   KeyCode = 0x11
	KEY_PAUSE     KeyCode = 0x13
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_END       KeyCode = 0x23
	KEY_HOME      KeyCode = 0x24
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28
	KEY_DELETE    KeyCode = 0x2E
	KEY_A         KeyCode = 0x41
	KEY_B         KeyCode = 0x42
	KEY_C         KeyCode = 0x43
	KEY_D         KeyCode = 0x44
	KEY_E         KeyCode = 0x45
	KEY_F         KeyCode = 0x46
	KEY_G         KeyCode = 0x47
	KEY_H         KeyCode = 0x48
	KEY_I         KeyCode = 0x49
	KEY_J         KeyCode = 0x4A
	KEY_K         KeyCode = 0x4B
	KEY_L         KeyCode = 0x4C
	KEY_M         KeyCode = 0x4D
	KEY_N         KeyCode = 0x4E
	KEY_O         KeyCode = 0x4F
	KEY_P         KeyCode = 0x50
	KEY_Q         KeyCode = 0x51
	KEY_R         KeyCode = 0x52
	KEY_S         KeyCode = 0x53
	KEY_T         KeyCode = 0x54
	KEY_U         KeyCode = 0x55
	KEY_V         KeyCode = 0x56
	KEY_W         KeyCode = 0x57
	KEY_X         KeyCode = 0x58
	KEY_Y         KeyCode = 0x59
	KEY_Z         KeyCode = 0x5A
	KEY_F1        KeyCode = 0x70
	KEY_F2        KeyCode = 0x71
	KEY_F3        KeyCode = 0x72
	KEY_F4        KeyCode = 0x73
	KEY_F5        KeyCode = 0x74
	KEY_F6        KeyCode = 0x75
	KEY_F7        KeyCode = 0x76
	KEY_F8        KeyCode = 0x77
	KEY_F9        KeyCode = 0x78
	KEY_F10       KeyCode = 0x79
	KEY_F11       KeyCode = 0x7A
	KEY_F12       KeyCode = 0x7B
	KEY_LSHIFT    KeyCode = 0xA0
	KEY_RSHIFT    KeyCode = 0xA1
	KEY_LCONTROL  KeyCode = 0xA2
	KEY_RCONTROL  KeyCode = 0xA3
	KEY_MINUS     KeyCode = 0xBD
	KEY_PLUS      KeyCode = 0xBB
	KEYS_MAX_KEYS KeyCode = 0xFF
)

// Mouse state structure
type MouseState struct {
	X       int32
	Y       int32
	Buttons [BUTTON_MAX_BUTTONS]bool // button states (pressed/released)
}

// Keyboard state structure
type KeyboardState struct {
	Keys [256]bool
}

/**
 * @brief Keyboard and mouse state for the current and the previous frame.
 * The platform feeds it from window callbacks; games poll it during update.
 * Changes are also fired on the event bus.
 */
type Input struct {
	mu     sync.Mutex
	events *EventBus

	keyboardCurrent  KeyboardState
	keyboardPrevious KeyboardState
	mouseCurrent     MouseState
	mousePrevious    MouseState
}

func NewInput(events *EventBus) *Input {
	return &Input{events: events}
}

// Update copies the current states to the previous ones. Call once per frame.
func (in *Input) Update() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.keyboardPrevious = in.keyboardCurrent
	in.mousePrevious = in.mouseCurrent
}

// keyboard input
func (in *Input) IsKeyDown(key KeyCode) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.keyboardCurrent.Keys[key&0xFF]
}

func (in *Input) IsKeyUp(key KeyCode) bool {
	return !in.IsKeyDown(key)
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.keyboardPrevious.Keys[key&0xFF]
}

func (in *Input) WasKeyUp(key KeyCode) bool {
	return !in.WasKeyDown(key)
}

func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	in.mu.Lock()
	// Only handle this if the state actually changed.
	if in.keyboardCurrent.Keys[key&0xFF] == pressed {
		in.mu.Unlock()
		return
	}
	in.keyboardCurrent.Keys[key&0xFF] = pressed
	in.mu.Unlock()

	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	ctx := EventContext{}
	ctx.Data.U32[0] = uint32(key)
	in.fire(code, ctx)
}

// mouse input
func (in *Input) IsButtonDown(button Button) bool {
	if button >= BUTTON_MAX_BUTTONS {
		return false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mouseCurrent.Buttons[button]
}

func (in *Input) WasButtonDown(button Button) bool {
	if button >= BUTTON_MAX_BUTTONS {
		return false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mousePrevious.Buttons[button]
}

func (in *Input) MousePosition() (int32, int32) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mouseCurrent.X, in.mouseCurrent.Y
}

func (in *Input) PreviousMousePosition() (int32, int32) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mousePrevious.X, in.mousePrevious.Y
}

func (in *Input) ProcessButton(button Button, pressed bool) {
	if button >= BUTTON_MAX_BUTTONS {
		return
	}
	in.mu.Lock()
	if in.mouseCurrent.Buttons[button] == pressed {
		in.mu.Unlock()
		return
	}
	in.mouseCurrent.Buttons[button] = pressed
	in.mu.Unlock()

	code := EVENT_CODE_BUTTON_RELEASED
	if pressed {
		code = EVENT_CODE_BUTTON_PRESSED
	}
	ctx := EventContext{}
	ctx.Data.U32[0] = uint32(button)
	in.fire(code, ctx)
}

func (in *Input) ProcessMouseMove(x, y int32) {
	in.mu.Lock()
	// Only process if actually different
	if in.mouseCurrent.X == x && in.mouseCurrent.Y == y {
		in.mu.Unlock()
		return
	}
	in.mouseCurrent.X, in.mouseCurrent.Y = x, y
	in.mu.Unlock()

	ctx := EventContext{}
	ctx.Data.I32[0] = x
	ctx.Data.I32[1] = y
	in.fire(EVENT_CODE_MOUSE_MOVED, ctx)
}

func (in *Input) ProcessMouseWheel(zDelta float32) {
	ctx := EventContext{}
	ctx.Data.F32[0] = zDelta
	in.fire(EVENT_CODE_MOUSE_WHEEL, ctx)
}

func (in *Input) fire(code SystemEventCode, ctx EventContext) {
	if in.events != nil {
		in.events.Fire(code, in, ctx)
	}
}
