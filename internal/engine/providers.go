package engine

import (
	"github.com/google/wire"

	"github.com/zeusync/zeusphere/internal/config"
	"github.com/zeusync/zeusphere/internal/core/agents"
	"github.com/zeusync/zeusphere/internal/core/checkpoint"
	"github.com/zeusync/zeusphere/internal/core/events"
	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/internal/core/optimizer"
	"github.com/zeusync/zeusphere/internal/core/projection"
	"github.com/zeusync/zeusphere/internal/core/scene"
)

// ProviderSet builds an Engine from a config, a compiled scene and a logger.
var ProviderSet = wire.NewSet(
	ProvideBus,
	ProvidePhysics,
	ProvideProjector,
	ProvideStore,
	ProvideScheduler,
	ProvideOptimizer,
	wire.Struct(new(Components), "*"),
	New,
)

func ProvideBus() *events.Bus {
	return events.NewBus()
}

// ProvidePhysics uses the scene's seed unless the configuration pins one,
// and the scene's enabled phases when it restricts them.
func ProvidePhysics(cfg config.Config, sc *scene.Scene, logger log.Log) (*matter.Engine, error) {
	mc, err := cfg.MatterConfig()
	if err != nil {
		return nil, err
	}
	if mc.Seed == 0 {
		mc.Seed = sc.Seed
	}
	if sc.Optimization.Phases != 0 {
		mc.Enabled = sc.Optimization.Phases
	}
	return matter.NewEngine(mc, logger)
}

func ProvideProjector(cfg config.Config, sc *scene.Scene, logger log.Log) *projection.Projector {
	return projection.NewProjector(cfg.Camera(), Settings(cfg, sc), logger)
}

func ProvideStore(cfg config.Config, logger log.Log) (*checkpoint.Store, func(), error) {
	store, err := checkpoint.NewStore(cfg.Checkpoint.Capacity, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func ProvideScheduler(
	cfg config.Config,
	sc *scene.Scene,
	physics *matter.Engine,
	projector *projection.Projector,
	store *checkpoint.Store,
	bus *events.Bus,
	logger log.Log,
) (*agents.Scheduler, error) {
	counts, err := cfg.AgentCounts()
	if err != nil {
		return nil, err
	}
	deps := agents.Deps{
		Physics:     physics,
		Projector:   projector,
		Environment: sc.Environment,
		FPSWindow:   cfg.Engine.FPSWindow,
		Logger:      logger,
	}
	return agents.NewScheduler(cfg.SchedulerConfig(), agents.FromScene(sc), agents.Specs(counts, deps), store, bus, logger)
}

// ProvideOptimizer applies the scene's optimization directives on top of
// the configuration.
func ProvideOptimizer(cfg config.Config, sc *scene.Scene, bus *events.Bus, logger log.Log) (*optimizer.Optimizer, error) {
	oc := cfg.OptimizerConfig()
	o := sc.Optimization
	if o.Level != 0 {
		oc.Initial = optimizer.Level(o.Level)
	}
	if o.Adaptive != nil {
		oc.Adaptive = *o.Adaptive
	}
	if o.TargetFPS > 0 {
		oc.TargetFPS = o.TargetFPS
	}
	return optimizer.New(oc, bus, logger)
}
