// Package engine runs the tick loop: it drives the agent scheduler at the
// configured rate, applies optimizer decisions between ticks and turns each
// tick into a Frame.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

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

var (
	ErrNotStarted = errors.New("engine not started")
	errMissing    = errors.New("engine component missing")
)

// Components are the collaborators an Engine drives.
type Components struct {
	Bus       *events.Bus
	Physics   *matter.Engine
	Projector *projection.Projector
	Store     *checkpoint.Store
	Scheduler *agents.Scheduler
	Optimizer *optimizer.Optimizer
}

type Engine struct {
	cfg       config.Config
	logger    log.Log
	scene     *scene.Scene
	bus       *events.Bus
	store     *checkpoint.Store
	scheduler *agents.Scheduler
	optimizer *optimizer.Optimizer
	targets   optimizer.Targets
	base      projection.Settings
	runID     string

	started atomic.Bool
	last    atomic.Pointer[Frame]
}

func New(cfg config.Config, sc *scene.Scene, c Components, logger log.Log) (*Engine, error) {
	if sc == nil || c.Scheduler == nil || c.Optimizer == nil {
		return nil, errMissing
	}
	if logger == nil {
		logger = log.NewNop()
	}
	runID := uuid.NewString()
	e := &Engine{
		cfg:       cfg,
		logger:    logger.With(log.String("component", "engine"), log.String("run_id", runID), log.String("scene", sc.Name)),
		scene:     sc,
		bus:       c.Bus,
		store:     c.Store,
		scheduler: c.Scheduler,
		optimizer: c.Optimizer,
		targets:   optimizer.Targets{Projector: c.Projector, Physics: c.Physics, Scheduler: c.Scheduler},
		base:      Settings(cfg, sc),
		runID:     runID,
	}
	if c.Store != nil {
		e.targets.Checkpoints = c.Store
	}
	return e, nil
}

func (e *Engine) RunID() string { return e.runID }

func (e *Engine) Bus() *events.Bus { return e.bus }

// Last returns the most recent frame.
func (e *Engine) Last() (Frame, bool) {
	f := e.last.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}

// Start launches the agents and applies the initial optimization level.
func (e *Engine) Start(ctx context.Context) error {
	level := e.optimizer.Level()
	level.Profile().Apply(e.targets, e.base)
	if err := e.scheduler.Start(ctx); err != nil {
		return err
	}
	e.started.Store(true)
	e.logger.Info("Engine started",
		log.Int("objects", len(e.scene.Objects)),
		log.Float64("tick_rate", e.cfg.Engine.TickRate),
		log.Stringer("level", level))
	return nil
}

func (e *Engine) Close() {
	e.scheduler.Close()
	e.started.Store(false)
}

// Step runs exactly one tick. A level change staged by the optimizer takes
// effect here, before the tick starts.
func (e *Engine) Step(ctx context.Context) (Frame, error) {
	if !e.started.Load() {
		return Frame{}, ErrNotStarted
	}
	if c, ok := e.optimizer.Apply(e.scheduler.Current()); ok {
		c.To.Profile().Apply(e.targets, e.base)
	}

	res, err := e.scheduler.Tick(ctx)
	if err != nil {
		return Frame{}, err
	}
	e.optimizer.Observe(time.Now(), res.Metrics.FPS)
	e.persist(res.Tick)

	f := newFrame(res, e.optimizer.Level())
	e.last.Store(&f)
	if every := e.cfg.Engine.SummaryEvery; every > 0 && f.Tick%every == 0 {
		e.summarize(f)
	}
	return f, nil
}

// Run ticks at the configured rate until ctx is done or the configured
// number of ticks has run. Each frame is handed to sink; a sink error
// stops the run.
func (e *Engine) Run(ctx context.Context, sink func(Frame) error) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	defer e.Close()

	mctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.scheduler.Monitor(mctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / e.cfg.Engine.TickRate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopped", log.Tick(e.scheduler.Current()))
			return nil
		case <-ticker.C:
		}

		f, err := e.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if sink != nil {
			if err := sink(f); err != nil {
				return err
			}
		}
		if n := e.cfg.Engine.Ticks; n > 0 && f.Tick >= n {
			e.logger.Info("Engine finished", log.Tick(f.Tick))
			return nil
		}
	}
}

func (e *Engine) persist(tick uint64) {
	dir, every := e.cfg.Checkpoint.Dir, e.cfg.Checkpoint.PersistEvery
	if dir == "" || every == 0 || tick%every != 0 || e.store == nil {
		return
	}
	cp, ok := e.store.Latest()
	if !ok {
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%010d.ckpt", e.scene.Name, cp.Tick))
	if err := checkpoint.WriteFile(path, e.scene.Name, cp); err != nil {
		e.logger.Error("Failed to persist checkpoint", log.Tick(cp.Tick), log.String("path", path), log.Error(err))
		return
	}
	e.logger.Debug("Checkpoint persisted", log.Tick(cp.Tick), log.String("path", path))
}

func (e *Engine) summarize(f Frame) {
	live := 0
	for _, h := range f.Health {
		if h.State.Live() {
			live++
		}
	}
	e.logger.Info("Frame",
		log.Tick(f.Tick),
		log.Int("visible", f.Visible),
		log.Int("objects", len(f.Objects)),
		log.Int("skipped", f.Skipped),
		log.Int("agents_live", live),
		log.Float64("fps", f.FPS),
		log.Stringer("level", f.Level),
		log.String("heap", humanize.Bytes(f.HeapAlloc)),
		log.String("digest", fmt.Sprintf("%016x", f.Digest)))
}

// Settings are the base projector settings: the configuration with the
// scene's cull threshold override.
func Settings(cfg config.Config, sc *scene.Scene) projection.Settings {
	s := cfg.ProjectionSettings()
	if sc != nil && sc.Optimization.CullThreshold > 0 {
		s.CullThreshold = sc.Optimization.CullThreshold
	}
	return s
}
