package engine_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zeusphere/internal/config"
	"github.com/zeusync/zeusphere/internal/core/agents"
	"github.com/zeusync/zeusphere/internal/core/checkpoint"
	"github.com/zeusync/zeusphere/internal/core/events"
	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/internal/core/optimizer"
	"github.com/zeusync/zeusphere/internal/core/projection"
	"github.com/zeusync/zeusphere/internal/core/scene"
	"github.com/zeusync/zeusphere/internal/engine"
	"github.com/zeusync/zeusphere/internal/injector"
)

const sceneYAML = `
name: surface
seed: 11
environment:
  ambient: 0.1
  lights:
    - name: sun
      direction: {theta: 1.5, phi: 0.2}
      intensity: 1
materials:
  - id: stellar
    albedo: [1, 0.9, 0.7, 1]
    emission: [1, 0.8, 0.4]
    thermo:
      thresholds: {melt: 1000, boil: 2000, ionize: 3000, hysteresis: 50, reference_pressure: 101325}
      density: {solid: 5000, liquid: 4000, gas: 1, plasma: 0.1}
objects:
  - id: star
    position: {r: 200, theta: 1.57, phi: 0}
    radius: 2
    mass: 1
    material: stellar
    phase: plasma
    temperature: 5000
    velocity: {r: 0, theta: 0, phi: 0.5}
    behavior:
      forces:
        - {kind: gravity, magnitude: 9.81}
        - {kind: stochastic, magnitude: 0.3}
      constraints:
        - {kind: spherical_surface, radius: 200}
  - id: dust
    position: {r: 300, theta: 1, phi: 1}
    radius: 0.1
    mass: 1
    material: stellar
    phase: solid
    temperature: 300
`

func loadScene(t *testing.T) *scene.Scene {
	t.Helper()
	sc, err := scene.Parse([]byte(sceneYAML), scene.FormatYAML, "surface.yaml")
	require.NoError(t, err)
	return sc
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Scheduler.DispatchTimeout = time.Second
	cfg.Engine.SummaryEvery = 0
	cfg.Optimizer.Adaptive = false
	return cfg
}

func newEngine(t *testing.T, cfg config.Config) *engine.Engine {
	t.Helper()
	e, cleanup, err := injector.InitializeEngine(cfg, loadScene(t), log.NewNop())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return e
}

func started(t *testing.T, cfg config.Config) *engine.Engine {
	t.Helper()
	e := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Close)
	return e
}

func TestPlasmaObjectStaysOnSurface(t *testing.T) {
	e := started(t, testConfig())
	ctx := context.Background()

	var f engine.Frame
	for i := 0; i < 120; i++ {
		var err error
		f, err = e.Step(ctx)
		require.NoError(t, err)

		require.Len(t, f.Objects, 2)
		star := f.Objects[1]
		require.Equal(t, "star", star.ID)
		assert.Less(t, math.Abs(star.SDT[matter.SDTPosR]-200), 1e-6, "tick %d", f.Tick)
		assert.Equal(t, matter.Plasma, star.Phase)
		assert.True(t, star.Visible)
		assert.False(t, f.Objects[0].Visible, "the dust subtends less than the threshold")
	}

	assert.Equal(t, uint64(120), f.Tick)
	assert.InDelta(t, 2.0, f.Time, 1e-12)
	assert.Equal(t, optimizer.Level(3), f.Level)
	assert.Equal(t, 1, f.Visible)
	assert.NotZero(t, f.Digest)
	assert.Equal(t, engine.Digest(f.Objects), f.Digest)
	assert.Positive(t, f.FPS)

	star := f.Objects[1]
	assert.NotEqual(t, 0.0, star.SDT[matter.SDTPosPhi], "the star moves along the surface")
	for c := 0; c < projection.CornerCount; c++ {
		assert.Positive(t, star.Corners[c].Coverage+star.Corners[c].Light, "corner %d is populated", c)
	}
	assert.Positive(t, star.Light)

	for _, h := range f.Health {
		assert.Equal(t, agents.StateActive, h.State, h.Name)
	}
	last, ok := e.Last()
	require.True(t, ok)
	assert.Equal(t, f.Digest, last.Digest)
}

func TestDigestsIgnorePartitioning(t *testing.T) {
	run := func(physicsAgents, level int) []uint64 {
		cfg := testConfig()
		cfg.Engine.Agents["physics"] = physicsAgents
		cfg.Optimizer.Level = level
		e := started(t, cfg)
		digests := make([]uint64, 0, 40)
		for i := 0; i < 40; i++ {
			f, err := e.Step(context.Background())
			require.NoError(t, err)
			digests = append(digests, f.Digest)
		}
		return digests
	}

	want := run(1, 2)
	assert.Equal(t, want, run(3, 5), "parallel dispatch over three agents")
	assert.Equal(t, want, run(2, 3))
}

func TestOptimizerStepsBetweenTicks(t *testing.T) {
	cfg := testConfig()
	cfg.Optimizer.Adaptive = true
	cfg.Optimizer.Window = 20 * time.Millisecond
	cfg.Optimizer.Cooldown = 20 * time.Millisecond
	cfg.Optimizer.TargetFPS = 60
	e := started(t, cfg)
	rec := events.Record(e.Bus(), events.TypeLevelChanged)

	ctx := context.Background()
	prev := optimizer.Level(3)
	deadline := time.Now().Add(5 * time.Second)
	for prev < optimizer.MaxLevel && time.Now().Before(deadline) {
		f, err := e.Step(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, int(f.Level-prev), 1, "at most one step per tick")
		prev = f.Level
	}
	require.Equal(t, optimizer.MaxLevel, prev, "an unthrottled loop runs far above target")

	changes := rec.OfType(events.TypeLevelChanged)
	require.Len(t, changes, 2)
	first, second := changes[0].Data.(events.LevelChanged), changes[1].Data.(events.LevelChanged)
	assert.Equal(t, [2]int{3, 4}, [2]int{first.From, first.To})
	assert.Equal(t, [2]int{4, 5}, [2]int{second.From, second.To})
	assert.Greater(t, first.FPS, 60.0)
	assert.Less(t, changes[0].Tick, changes[1].Tick)
}

func TestRunStopsAfterConfiguredTicks(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.Ticks = 5
	cfg.Engine.TickRate = 200
	e := newEngine(t, cfg)

	var seen []uint64
	err := e.Run(context.Background(), func(f engine.Frame) error {
		seen = append(seen, f.Tick)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seen)

	_, err = e.Step(context.Background())
	assert.ErrorIs(t, err, engine.ErrNotStarted)
}

func TestRunStopsOnSinkErrorOrCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.TickRate = 200
	boom := errors.New("sink full")
	e := newEngine(t, cfg)
	err := e.Run(context.Background(), func(f engine.Frame) error {
		if f.Tick == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)

	e = newEngine(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	err = e.Run(ctx, func(f engine.Frame) error {
		if f.Tick == 2 {
			cancel()
		}
		return nil
	})
	assert.NoError(t, err)
	last, ok := e.Last()
	require.True(t, ok)
	assert.GreaterOrEqual(t, last.Tick, uint64(2))
}

func TestCheckpointsArePersisted(t *testing.T) {
	cfg := testConfig()
	cfg.Checkpoint.Dir = t.TempDir()
	cfg.Checkpoint.PersistEvery = 2
	e := started(t, cfg)
	for i := 0; i < 4; i++ {
		_, err := e.Step(context.Background())
		require.NoError(t, err)
	}

	files, err := filepath.Glob(filepath.Join(cfg.Checkpoint.Dir, "*.ckpt"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	path := filepath.Join(cfg.Checkpoint.Dir, "surface-0000000004.ckpt")
	_, err = os.Stat(path)
	require.NoError(t, err)
	hdr, cp, err := checkpoint.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "surface", hdr.Scene)
	assert.Equal(t, uint64(4), cp.Tick)
	assert.Equal(t, 2, cp.Len())

	last, _ := e.Last()
	star, ok := cp.Body("star")
	require.True(t, ok)
	assert.Equal(t, last.Objects[1].SDT, star.SDT)
}

func TestSceneDirectivesOverrideConfig(t *testing.T) {
	sc := loadScene(t)
	adaptive := false
	sc.Optimization = scene.Optimization{Level: 5, Adaptive: &adaptive, CullThreshold: 1e-9}

	cfg := testConfig()
	o, err := engine.ProvideOptimizer(cfg, sc, nil, log.NewNop())
	require.NoError(t, err)
	assert.Equal(t, optimizer.Level(5), o.Level())

	s := engine.Settings(cfg, sc)
	assert.Equal(t, 1e-9, s.CullThreshold)

	e, cleanup, err := injector.InitializeEngine(cfg, sc, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Close)
	f, err := e.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, optimizer.Level(5), f.Level)
	assert.Equal(t, 2, f.Visible, "a tiny threshold keeps the dust visible")
}
