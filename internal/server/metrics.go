package server

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"

	"github.com/zeusync/conduit/internal/core/transport"
)

// Metrics holds the server counters in an isolated set so several servers can
// live in one process.
type Metrics struct {
	set *metrics.Set

	accepted   map[string]*metrics.Counter
	closed     *metrics.Counter
	messages   *metrics.Counter
	errors     *metrics.Counter
	sendOK     *metrics.Counter
	sendFailed *metrics.Counter
}

func newMetrics(live func() int) *Metrics {
	set := metrics.NewSet()
	m := &Metrics{
		set:        set,
		accepted:   make(map[string]*metrics.Counter),
		closed:     set.NewCounter("conduit_transports_closed_total"),
		messages:   set.NewCounter("conduit_messages_received_total"),
		errors:     set.NewCounter("conduit_transport_errors_total"),
		sendOK:     set.NewCounter(`conduit_sends_total{result="ok"}`),
		sendFailed: set.NewCounter(`conduit_sends_total{result="failed"}`),
	}
	for _, proto := range []string{protocolWebSocket, protocolQUIC} {
		m.accepted[proto] = set.NewCounter(fmt.Sprintf(`conduit_transports_accepted_total{protocol=%q}`, proto))
	}
	set.NewGauge("conduit_transports_live", func() float64 { return float64(live()) })
	return m
}

// ObserveSend records the outcome of r once it resolves.
func (m *Metrics) ObserveSend(r *transport.Result) {
	r.OnResolve(func(ok bool) {
		if ok {
			m.sendOK.Inc()
		} else {
			m.sendFailed.Inc()
		}
	})
}

func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
