package server

import (
	"github.com/zeusync/conduit/internal/core/observability/log"
	"github.com/zeusync/conduit/internal/core/transport"
)

// Handler takes over a freshly accepted transport. It runs before the handle
// starts reading, so subscriptions made here see every inbound payload.
type Handler interface {
	ServeTransport(t *transport.Transport)
}

type HandlerFunc func(t *transport.Transport)

func (f HandlerFunc) ServeTransport(t *transport.Transport) { f(t) }

type echoHandler struct {
	metrics *Metrics
	logger  log.Log
}

// NewEchoHandler returns a Handler that sends every payload back to its sender.
func NewEchoHandler(metrics *Metrics, logger log.Log) Handler {
	return &echoHandler{metrics: metrics, logger: logger}
}

func (h *echoHandler) ServeTransport(t *transport.Transport) {
	t.OnMessage().Subscribe(func(payload []byte) {
		r := t.Send(payload)
		if h.metrics != nil {
			h.metrics.ObserveSend(r)
		}
	})
	t.OnError().Subscribe(func(err error) {
		h.logger.Debug("echo transport error", log.String("transport_id", t.ID()), log.Error(err))
	})
}
