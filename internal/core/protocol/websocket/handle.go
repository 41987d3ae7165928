package websocket

import (
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/conduit/internal/core/observability/log"
	"github.com/zeusync/conduit/internal/core/transport"
)

var (
	ErrHandleClosed   = errors.New("websocket handle is closed")
	ErrSendQueueFull  = errors.New("websocket send queue is full")
	ErrAlreadyStarted = errors.New("websocket handle already started")
)

var _ transport.Handle = (*Handle)(nil)

type outbound struct {
	payload []byte
	done    func(error)
}

// Handle exposes a gorilla WebSocket connection as a transport.Handle.
//
// Inbound frames are emitted from a single read goroutine, outbound payloads are
// written by a single write goroutine. Both start with Start.
type Handle struct {
	transport.Emitter

	conn   *websocket.Conn
	config Config
	logger log.Log

	// sendMu orders enqueueing against shutdown so no send is left without a
	// completion.
	sendMu    sync.RWMutex
	stopped   bool
	sendQueue chan outbound
	done      chan struct{}

	started      atomic.Bool
	closing      atomic.Bool
	shutdownOnce sync.Once
	writerDone   chan struct{}
}

// NewHandle wraps an established connection. Call Start once the handle's
// listeners are registered.
func NewHandle(conn *websocket.Conn, config Config, logger log.Log) *Handle {
	config = config.withDefaults()
	if logger == nil {
		logger = log.Provide()
	}
	return &Handle{
		conn:       conn,
		config:     config,
		logger:     logger.With(log.String("protocol", "websocket"), log.String("remote_addr", conn.RemoteAddr().String())),
		sendQueue:  make(chan outbound, config.SendQueueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// Start launches the read and write loops.
func (h *Handle) Start() error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	h.logger.Debug("websocket handle started",
		log.Duration("ping_interval", h.config.PingInterval),
		log.Duration("pong_timeout", h.config.PongTimeout),
		log.Int("send_queue", h.config.SendQueueSize))
	go h.writeLoop()
	go h.readLoop()
	return nil
}

// Secure reports whether the connection runs over TLS.
func (h *Handle) Secure() bool {
	_, ok := h.conn.NetConn().(*tls.Conn)
	return ok
}

func (h *Handle) RemoteAddr() net.Addr {
	return h.conn.RemoteAddr()
}

// Send queues payload for the write loop. done runs once the frame was written
// or the handle gave up on it.
func (h *Handle) Send(payload []byte, done func(error)) {
	h.sendMu.RLock()
	if h.stopped {
		h.sendMu.RUnlock()
		done(ErrHandleClosed)
		return
	}
	select {
	case h.sendQueue <- outbound{payload: payload, done: done}:
		h.sendMu.RUnlock()
	default:
		h.sendMu.RUnlock()
		done(ErrSendQueueFull)
	}
}

// Close sends a normal closure frame and tears the connection down. The close
// event is emitted exactly once by the handle.
func (h *Handle) Close() error {
	if !h.closing.CompareAndSwap(false, true) {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "connection closed")
	if err := h.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		h.logger.Debug("failed to write close frame", log.Error(err))
	}
	return h.shutdown()
}

func (h *Handle) shutdown() error {
	var err error
	h.shutdownOnce.Do(func() {
		h.sendMu.Lock()
		h.stopped = true
		close(h.done)
		h.sendMu.Unlock()

		if cerr := h.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.Wrap(cerr, "close websocket connection")
		}
		if h.started.Load() {
			<-h.writerDone
		} else {
			h.failPending()
		}
		h.Emit(transport.EventClose, nil)
	})
	return err
}

func (h *Handle) readLoop() {
	defer func() { _ = h.shutdown() }()

	if h.config.MaxMessageSize > 0 {
		h.conn.SetReadLimit(h.config.MaxMessageSize)
	}
	if h.config.PingInterval > 0 {
		_ = h.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
		h.conn.SetPongHandler(func(string) error {
			return h.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
		})
	}

	for {
		messageType, data, err := h.conn.ReadMessage()
		if err != nil {
			if !h.closing.Load() && !isClosure(err) {
				h.Emit(transport.EventError, errors.Wrap(err, "failed to read message"))
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		h.Emit(transport.EventMessage, data)
	}
}

func (h *Handle) writeLoop() {
	defer close(h.writerDone)

	var ping <-chan time.Time
	if h.config.PingInterval > 0 {
		ticker := time.NewTicker(h.config.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	frameType := websocket.TextMessage
	if h.config.Binary {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case ob := <-h.sendQueue:
			ob.done(h.write(frameType, ob.payload))
		case <-ping:
			deadline := time.Now().Add(h.config.PongTimeout)
			if err := h.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				h.logger.Debug("failed to send ping", log.Error(err))
			}
		case <-h.done:
			h.failPending()
			return
		}
	}
}

func (h *Handle) write(frameType int, payload []byte) error {
	if h.config.WriteTimeout > 0 {
		_ = h.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	}
	if err := h.conn.WriteMessage(frameType, payload); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

// failPending completes everything still queued. Only called after stopped is set.
func (h *Handle) failPending() {
	for {
		select {
		case ob := <-h.sendQueue:
			ob.done(ErrHandleClosed)
		default:
			return
		}
	}
}

func isClosure(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
