package transport

// Event names a Handle emits.
const (
	EventMessage = "message"
	EventError   = "error"
	EventClose   = "close"
)

// EventHandler receives the argument emitted with an event: the payload for
// EventMessage, the error for EventError and nil for EventClose.
type EventHandler func(arg any)

// Handle is the live connection a Transport adapts. It is owned exclusively by
// one Transport.
//
// A Handle must deliver events for one connection sequentially. Send must invoke
// done exactly once. Close must eventually emit EventClose through the handlers
// registered with On.
type Handle interface {
	On(event string, handler EventHandler)
	Send(payload []byte, done func(err error))
	Close() error
}
