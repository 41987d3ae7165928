package transport

import "sync"

// Emitter is a minimal named-event emitter. Handle implementations embed it to
// provide On and call Emit from their I/O loops.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

func (e *Emitter) On(event string, handler EventHandler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[string][]EventHandler)
	}
	e.handlers[event] = append(e.handlers[event], handler)
}

// Emit calls every handler registered for event on the calling goroutine.
// It reports whether any handler was registered.
func (e *Emitter) Emit(event string, arg any) bool {
	e.mu.RLock()
	handlers := e.handlers[event]
	e.mu.RUnlock()

	for _, h := range handlers {
		h(arg)
	}
	return len(handlers) > 0
}

// ListenerCount returns the number of handlers registered for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[event])
}
