package quic

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/conduit/internal/core/observability/log"
)

// Listener accepts QUIC connections and wraps them in unstarted Handles.
type Listener struct {
	listener *quic.Listener
	logger   log.Log
}

func Listen(addr string, tlsConfig *tls.Config, config Config, logger log.Log) (*Listener, error) {
	if logger == nil {
		logger = log.Provide()
	}
	ln, err := quic.ListenAddr(addr, tlsConfig, config.quicConfig())
	if err != nil {
		return nil, errors.Wrap(err, "failed to start QUIC listener")
	}
	return &Listener{listener: ln, logger: logger}, nil
}

// Accept blocks until a connection arrives, ctx is done or the listener closes.
func (l *Listener) Accept(ctx context.Context) (*Handle, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return NewHandle(conn, l.logger), nil
}

func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *Listener) Close() error {
	return l.listener.Close()
}

// Dial connects to a QUIC server and returns an unstarted Handle.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config, config Config, logger log.Log) (*Handle, error) {
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, config.quicConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return NewHandle(conn, logger), nil
}
