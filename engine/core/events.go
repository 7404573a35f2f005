package core

import "sync"

type EventContext struct {
	Data struct {
		I64 [2]int64
		U64 [2]uint64
		F64 [2]float64

		I32 [4]int32
		U32 [4]uint32
		F32 [4]float32

		C [2]string
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Framebuffer resized.
	/* Context usage:
	 * u32 width = data.U32[0];
	 * u32 height = data.U32[1];
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x02

	// Window minimized or restored.
	/* Context usage:
	 * u32 minimized = data.U32[0];
	 */
	EVENT_CODE_MINIMIZED SystemEventCode = 0x03

	// An asset file changed on disk.
	/* Context usage:
	 * string path = data.C[0];
	 * string kind = data.C[1];
	 */
	EVENT_CODE_ASSET_CHANGED SystemEventCode = 0x04

	// Keyboard key pressed.
	/* Context usage:
	 * u16 key_code = data.U32[0];
	 */
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x05

	// Keyboard key released.
	/* Context usage:
	 * u16 key_code = data.U32[0];
	 */
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x06

	// Mouse button pressed.
	/* Context usage:
	 * u16 button = data.U32[0];
	 */
	EVENT_CODE_BUTTON_PRESSED SystemEventCode = 0x07

	// Mouse button released.
	/* Context usage:
	 * u16 button = data.U32[0];
	 */
	EVENT_CODE_BUTTON_RELEASED SystemEventCode = 0x08

	// Mouse moved.
	/* Context usage:
	 * i32 x = data.I32[0];
	 * i32 y = data.I32[1];
	 */
	EVENT_CODE_MOUSE_MOVED SystemEventCode = 0x09

	// Mouse wheel scrolled.
	/* Context usage:
	 * f32 z_delta = data.F32[0];
	 */
	EVENT_CODE_MOUSE_WHEEL SystemEventCode = 0x0A

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

const MAX_MESSAGE_CODES = 1024

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus dispatches events synchronously to registered listeners.
type EventBus struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{registered: make(map[SystemEventCode][]registeredEvent)}
}

/**
 * Register to listen for when events are sent with the provided code. A listener can only
 * be registered once per code; duplicates return false.
 */
func (b *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if code < 0 || code >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	b.registered[code] = append(b.registered[code], registeredEvent{listener: listener, callback: onEvent})
	return true
}

// Unregister removes the listener for code. Returns false if it was not registered.
func (b *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 */
func (b *EventBus) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	b.mu.RLock()
	events := append([]registeredEvent(nil), b.registered[code]...)
	b.mu.RUnlock()
	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}

// Shutdown drops every registration.
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = make(map[SystemEventCode][]registeredEvent)
}
