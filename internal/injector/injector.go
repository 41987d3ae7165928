//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/conduit/internal/config"
	"github.com/zeusync/conduit/internal/server"
)

func InitializeServer(cfg config.Config) *server.Server {
	wire.Build(ProvideLogger, ProvideHandler, server.New)
	return nil
}
