package quic

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/conduit/internal/core/observability/log"
	"github.com/zeusync/conduit/internal/core/transport"
)

var (
	ErrHandleClosed   = errors.New("quic handle is closed")
	ErrAlreadyStarted = errors.New("quic handle already started")
)

const closeCodeNormal quic.ApplicationErrorCode = 0

var _ transport.Handle = (*Handle)(nil)

// Handle exposes a QUIC connection as a transport.Handle. Every payload travels
// as one unreliable datagram, so payloads larger than the path allows fail the
// send instead of being split.
//
// A successful send means the datagram was accepted for sending, not that the
// peer received it: datagrams may be lost or arrive out of order, and nothing
// is retransmitted. Owners needing delivery must acknowledge at their own level.
type Handle struct {
	transport.Emitter

	conn   *quic.Conn
	logger log.Log

	ctx    context.Context
	cancel context.CancelFunc

	started      atomic.Bool
	closing      atomic.Bool
	shutdownOnce sync.Once
}

// NewHandle wraps an established connection. Call Start once listeners are
// registered.
func NewHandle(conn *quic.Conn, logger log.Log) *Handle {
	if logger == nil {
		logger = log.Provide()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		conn:   conn,
		logger: logger.With(log.String("protocol", "quic"), log.String("remote_addr", conn.RemoteAddr().String())),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the datagram read loop.
func (h *Handle) Start() error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go h.readLoop()
	return nil
}

// Secure is always true: QUIC runs over TLS 1.3.
func (h *Handle) Secure() bool {
	return true
}

func (h *Handle) RemoteAddr() net.Addr {
	return h.conn.RemoteAddr()
}

func (h *Handle) Send(payload []byte, done func(error)) {
	if h.ctx.Err() != nil {
		done(ErrHandleClosed)
		return
	}
	if err := h.conn.SendDatagram(payload); err != nil {
		done(errors.Wrap(err, "failed to send datagram"))
		return
	}
	done(nil)
}

func (h *Handle) Close() error {
	if !h.closing.CompareAndSwap(false, true) {
		return nil
	}
	err := h.conn.CloseWithError(closeCodeNormal, "connection closed")
	h.shutdown()
	if err != nil {
		return errors.Wrap(err, "close quic connection")
	}
	return nil
}

func (h *Handle) shutdown() {
	h.shutdownOnce.Do(func() {
		h.cancel()
		h.Emit(transport.EventClose, nil)
	})
}

func (h *Handle) readLoop() {
	defer h.shutdown()

	for {
		data, err := h.conn.ReceiveDatagram(h.ctx)
		if err != nil {
			if !h.closing.Load() && !isClosure(err) {
				h.Emit(transport.EventError, errors.Wrap(err, "failed to receive datagram"))
			}
			return
		}
		h.Emit(transport.EventMessage, data)
	}
}

func isClosure(err error) bool {
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.ErrorCode == closeCodeNormal
	}
	return errors.Is(err, context.Canceled)
}
