package transport

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/zeusync/conduit/internal/core/events/bus"
	"github.com/zeusync/conduit/internal/core/observability/log"
)

// Transport adapts a callback-oriented Handle into message, error and close
// streams plus a Send that yields a deferred boolean.
//
// The close notification is delivered exactly once per Transport no matter how
// many times, or from how many goroutines, closure is triggered.
type Transport struct {
	id        string
	encrypted bool
	handle    Handle
	logger    log.Log

	// closed is the close gate: only the caller that flips it performs the
	// close broadcast.
	closed atomic.Bool

	messages *Stream[[]byte]
	errs     *Stream[error]
	closes   *Stream[struct{}]
}

type Option func(*Transport)

// WithLogger sets the logger; the transport adds its own id field.
func WithLogger(logger log.Log) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New wraps an already open handle. Ownership of the handle passes to the
// returned Transport. id and isEncrypted are recorded for the owner and do not
// change how the transport behaves.
func New(id string, handle Handle, isEncrypted bool, opts ...Option) *Transport {
	t := &Transport{
		id:        id,
		encrypted: isEncrypted,
		handle:    handle,
		logger:    log.Provide(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(log.String("transport_id", id), log.Bool("encrypted", isEncrypted))

	events := bus.New()
	t.messages = newStream[[]byte](events, id, EventMessage, t.open)
	t.errs = newStream[error](events, id, EventError, t.open)
	t.closes = newTerminalStream[struct{}](events, id, EventClose)

	handle.On(EventMessage, t.handleMessage)
	handle.On(EventError, t.handleError)
	handle.On(EventClose, t.handleClose)

	t.logger.Debug("transport created")
	return t
}

func (t *Transport) ID() string {
	return t.id
}

func (t *Transport) IsEncrypted() bool {
	return t.encrypted
}

// IsClosed reports whether the transport has closed. Once true it stays true.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// OnMessage returns the stream of raw inbound payloads.
func (t *Transport) OnMessage() *Stream[[]byte] {
	return t.messages
}

// OnError returns the stream of errors reported by the handle, unmodified.
func (t *Transport) OnError() *Stream[error] {
	return t.errs
}

// OnClose returns the close stream. Subscribers added after closure are
// notified immediately.
func (t *Transport) OnClose() *Stream[struct{}] {
	return t.closes
}

// Send hands payload to the handle. The result resolves to true when the handle
// reports success and to false on failure. On a closed transport it is already
// resolved to false.
func (t *Transport) Send(payload []byte) *Result {
	if t.IsClosed() {
		t.logger.Debug("send on closed transport", log.Int("size", len(payload)))
		return resolved(false)
	}

	r := newResult()
	t.handle.Send(payload, func(err error) {
		if err != nil {
			t.logger.Debug("send failed", log.Error(err))
		}
		r.resolve(err == nil)
	})
	return r
}

// Close closes the underlying handle and notifies close subscribers. Closing an
// already closed transport does nothing.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := t.handle.Close()
	t.broadcastClose("local")
	if err != nil {
		return errors.Wrapf(err, "close transport %s", t.id)
	}
	return nil
}

func (t *Transport) String() string {
	return fmt.Sprintf("transport(%s)", t.id)
}

func (t *Transport) open() bool {
	return !t.closed.Load()
}

func (t *Transport) handleMessage(arg any) {
	var payload []byte
	switch v := arg.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		t.logger.Warn("dropping message with unsupported payload type", log.String("type", fmt.Sprintf("%T", arg)))
		return
	}

	// Handles deliver messages sequentially, possibly nested on the same
	// goroutine when a subscriber's Send loops back; nothing is held here.
	if t.IsClosed() {
		t.logger.Debug("dropping message after close", log.Int("size", len(payload)))
		return
	}
	t.messages.publish(payload)
}

func (t *Transport) handleError(arg any) {
	if arg == nil {
		t.logger.Debug("dropping empty error event")
		return
	}
	err, ok := arg.(error)
	if !ok {
		t.logger.Debug("wrapping non-error value from error event", log.Any("value", arg))
		err = errors.Errorf("%v", arg)
	}
	if t.IsClosed() {
		t.logger.Debug("dropping error after close", log.Error(err))
		return
	}
	t.errs.publish(err)
}

func (t *Transport) handleClose(any) {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.broadcastClose("remote")
}

func (t *Transport) broadcastClose(initiator string) {
	t.logger.Debug("transport closed", log.String("initiator", initiator))
	t.closes.fire(struct{}{})
}
