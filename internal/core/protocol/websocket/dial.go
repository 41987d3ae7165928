package websocket

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/conduit/internal/core/observability/log"
)

// Upgrader builds the server-side upgrader for config. Origin checks are left
// to the caller's HTTP middleware.
func Upgrader(config Config) *websocket.Upgrader {
	config = config.withDefaults()
	return &websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
}

// Accept upgrades an HTTP request and returns an unstarted Handle.
func Accept(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, config Config, logger log.Log) (*Handle, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "websocket upgrade failed")
	}
	return NewHandle(conn, config, logger), nil
}

// Dial connects to a ws:// or wss:// URL and returns an unstarted Handle.
func Dial(ctx context.Context, url string, header http.Header, config Config, logger log.Log) (*Handle, error) {
	config = config.withDefaults()
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
		ReadBufferSize:   config.ReadBufferSize,
		WriteBufferSize:  config.WriteBufferSize,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return NewHandle(conn, config, logger), nil
}
