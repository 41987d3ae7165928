package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/conduit/internal/config"
	"github.com/zeusync/conduit/internal/core/observability/log"
	"github.com/zeusync/conduit/internal/core/protocol/quic"
	"github.com/zeusync/conduit/internal/core/protocol/websocket"
	"github.com/zeusync/conduit/internal/core/transport"
)

const (
	protocolWebSocket = "websocket"
	protocolQUIC      = "quic"
)

// startable is a transport.Handle that begins reading once Start is called.
type startable interface {
	transport.Handle
	Start() error
	Secure() bool
}

// Server accepts WebSocket and QUIC connections, wraps each one in a
// transport.Transport and hands it to a Handler. It keeps every live transport
// by id so they can be looked up and closed on shutdown.
type Server struct {
	config   config.Config
	handler  Handler
	auth     TokenAuth
	logger   log.Log
	metrics  *Metrics
	upgrader *gorilla.Upgrader

	transports *xsync.MapOf[string, *transport.Transport]

	mu           sync.Mutex
	httpListener net.Listener
	httpServer   *http.Server
	quicListener *quic.Listener

	running atomic.Bool
	closed  atomic.Bool
}

// New creates a server. A nil handler echoes every payload back.
func New(cfg config.Config, handler Handler, logger log.Log) *Server {
	if logger == nil {
		logger = log.Provide()
	}
	s := &Server{
		config:     cfg,
		auth:       TokenAuth{Token: cfg.Server.AuthToken},
		logger:     logger.With(log.String("component", "server")),
		upgrader:   websocket.Upgrader(cfg.WebSocketHandleConfig()),
		transports: xsync.NewMapOf[string, *transport.Transport](),
	}
	s.metrics = newMetrics(s.Len)
	if handler == nil {
		handler = NewEchoHandler(s.metrics, s.logger)
	}
	s.handler = handler
	return s
}

// Metrics exposes the server counters.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Len returns the number of live transports.
func (s *Server) Len() int {
	return s.transports.Size()
}

// Transport looks up a live transport by id.
func (s *Server) Transport(id string) (*transport.Transport, bool) {
	return s.transports.Load(id)
}

// Handler returns the HTTP handler serving WebSocket upgrades and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Server.Path, s.handleWebSocket)
	if s.config.Server.MetricsPath != "" {
		mux.HandleFunc(s.config.Server.MetricsPath, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4")
			s.metrics.WritePrometheus(w)
		})
	}
	return mux
}

// Listen binds the HTTP listener and, when enabled, the QUIC listener.
func (s *Server) Listen() error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.config.Server.HTTPAddr)
	}

	if s.config.QUIC.Enabled {
		tlsConfig, err := quic.ServerTLSConfig(s.config.QUIC.CertFile, s.config.QUIC.KeyFile)
		if err != nil {
			_ = ln.Close()
			return err
		}
		qln, err := quic.Listen(s.config.QUIC.Addr, tlsConfig, s.config.QUICHandleConfig(), s.logger)
		if err != nil {
			_ = ln.Close()
			return err
		}
		s.quicListener = qln
	}

	s.httpListener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// HTTPAddr returns the bound HTTP address, or nil before Listen.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// QUICAddr returns the bound QUIC address, or nil when QUIC is disabled.
func (s *Server) QUICAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quicListener == nil {
		return nil
	}
	return s.quicListener.Addr()
}

// Run listens and serves until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections on listeners bound by Listen until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	httpServer, httpListener, quicListener := s.httpServer, s.httpListener, s.quicListener
	s.mu.Unlock()
	if httpServer == nil {
		return ErrServerNotListening
	}
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("serving websocket", log.String("addr", httpListener.Addr().String()), log.String("path", s.config.Server.Path))
		var err error
		if s.config.Server.CertFile != "" {
			err = httpServer.ServeTLS(httpListener, s.config.Server.CertFile, s.config.Server.KeyFile)
		} else {
			err = httpServer.Serve(httpListener)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	})

	if quicListener != nil {
		g.Go(func() error {
			s.logger.Info("serving quic", log.String("addr", quicListener.Addr().String()))
			return s.acceptQUIC(gctx, quicListener)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops accepting connections and closes every live transport.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("shutting down",
		log.Int("transports", s.Len()),
		log.Uint64("messages_received", s.metrics.messages.Get()),
		log.Uint64("transport_errors", s.metrics.errors.Get()))

	s.mu.Lock()
	httpServer, httpListener, quicListener := s.httpServer, s.httpListener, s.quicListener
	s.mu.Unlock()

	var err error
	// http.Server only tracks listeners handed to Serve.
	if !s.running.Load() && httpListener != nil {
		if cerr := httpListener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.Wrap(cerr, "close http listener")
		}
	}
	if httpServer != nil {
		if serr := httpServer.Shutdown(ctx); serr != nil {
			err = errors.Wrap(serr, "shutdown http server")
		}
	}
	if quicListener != nil {
		_ = quicListener.Close()
	}

	s.transports.Range(func(id string, t *transport.Transport) bool {
		if cerr := t.Close(); cerr != nil {
			s.logger.Debug("close transport", log.String("transport_id", id), log.Error(cerr))
		}
		return true
	})
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	if err := s.auth.Authorize(r); err != nil {
		s.logger.Warn("rejected websocket upgrade", log.String("remote_addr", r.RemoteAddr), log.Error(err))
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	h, err := websocket.Accept(s.upgrader, w, r, s.config.WebSocketHandleConfig(), s.logger)
	if err != nil {
		// the upgrader already replied to the client
		s.logger.Debug("websocket upgrade failed", log.Error(err))
		return
	}
	s.adopt(h, protocolWebSocket)
}

func (s *Server) acceptQUIC(ctx context.Context, ln *quic.Listener) error {
	for {
		h, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || s.closed.Load() {
				return nil
			}
			return errors.Wrap(err, "accept quic connection")
		}
		s.adopt(h, protocolQUIC)
	}
}

// adopt wraps the handle, registers the transport and starts reading.
func (s *Server) adopt(h startable, proto string) {
	id := uuid.NewString()
	t := transport.New(id, h, h.Secure(), transport.WithLogger(s.logger.With(log.String("protocol", proto))))

	s.transports.Store(id, t)
	s.metrics.accepted[proto].Inc()

	t.OnMessage().Subscribe(func([]byte) { s.metrics.messages.Inc() })
	t.OnError().Subscribe(func(err error) {
		s.metrics.errors.Inc()
		s.logger.Warn("transport error", log.String("transport_id", id), log.Error(err))
	})
	t.OnClose().Subscribe(func(struct{}) {
		s.transports.Delete(id)
		s.metrics.closed.Inc()
		s.logger.Info("transport closed", log.String("transport_id", id), log.Int("live", s.Len()))
	})

	s.handler.ServeTransport(t)

	if err := h.Start(); err != nil {
		s.logger.Error("failed to start handle", log.String("transport_id", id), log.Error(err))
		_ = t.Close()
		return
	}
	s.logger.Info("transport accepted",
		log.String("transport_id", id),
		log.String("protocol", proto),
		log.Bool("encrypted", t.IsEncrypted()))

	// a connection that raced with Shutdown must not outlive it
	if s.closed.Load() {
		_ = t.Close()
	}
}
