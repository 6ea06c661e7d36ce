//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/zeusphere/internal/config"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/internal/core/scene"
	"github.com/zeusync/zeusphere/internal/engine"
)

func ProvideLogger(cfg config.Config) *log.Logger {
	wire.Build(log.New, wire.FieldsOf(new(config.Config), "Log"), wire.FieldsOf(new(config.Log), "Level"))
	return nil
}

func InitializeEngine(cfg config.Config, sc *scene.Scene, logger log.Log) (*engine.Engine, func(), error) {
	wire.Build(engine.ProviderSet)
	return nil, nil, nil
}
