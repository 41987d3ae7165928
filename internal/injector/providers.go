package injector

import (
	"github.com/zeusync/conduit/internal/config"
	"github.com/zeusync/conduit/internal/core/observability/log"
	"github.com/zeusync/conduit/internal/server"
)

// ProvideLogger builds the process logger at the configured level.
func ProvideLogger(cfg config.Config) log.Log {
	return log.New(cfg.LogLevel())
}

// ProvideHandler returns nil so the server falls back to echoing payloads.
func ProvideHandler() server.Handler {
	return nil
}
