package optimizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zeusphere/internal/core/events"
	"github.com/zeusync/zeusphere/internal/core/faults"
	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/internal/core/projection"
)

const sample = 100 * time.Millisecond

var epoch = time.Unix(1_700_000_000, 0)

func at(i int) time.Time { return epoch.Add(time.Duration(i) * sample) }

func newOptimizer(t *testing.T) (*Optimizer, *events.Recorder) {
	t.Helper()
	bus := events.NewBus()
	rec := events.Record(bus, events.TypeLevelChanged)
	o, err := New(DefaultConfig(), bus, log.NewNop())
	require.NoError(t, err)
	return o, rec
}

// feed plays a constant fps trace over samples [from, to), applying staged
// changes at every boundary like the tick loop does, and returns the level
// after each sample.
func feed(o *Optimizer, from, to int, fps float64) []Level {
	levels := make([]Level, 0, to-from)
	for i := from; i < to; i++ {
		o.Observe(at(i), fps)
		o.Apply(uint64(i))
		levels = append(levels, o.Level())
	}
	return levels
}

func TestLowFPSLowersOneStepPerWindow(t *testing.T) {
	o, rec := newOptimizer(t)

	for i := 0; i < 10; i++ {
		assert.Nil(t, o.Observe(at(i), 20), "sample %d is inside the first window", i)
	}
	degradation := o.Observe(at(10), 20)
	require.NotNil(t, degradation)
	assert.ErrorIs(t, degradation, faults.ErrPerformance)
	assert.Equal(t, DefaultLevel, o.Level(), "the change waits for the tick boundary")

	change, ok := o.Pending()
	require.True(t, ok)
	assert.Equal(t, Change{From: 3, To: 2, FPS: 20, Reason: degradation.Error()}, change)

	applied, ok := o.Apply(10)
	require.True(t, ok)
	assert.Equal(t, change, applied)
	assert.Equal(t, Level(2), o.Level())

	// Inside the cooldown nothing moves even though fps stays low.
	for _, l := range feed(o, 11, 30, 20) {
		assert.Equal(t, Level(2), l)
	}
	// The cooldown ends at sample 30; a new full window is needed after it.
	levels := feed(o, 30, 41, 20)
	for _, l := range levels[:10] {
		assert.Equal(t, Level(2), l)
	}
	assert.Equal(t, Level(1), levels[10])

	changes := rec.OfType(events.TypeLevelChanged)
	require.Len(t, changes, 2)
	assert.Equal(t, 3, changes[0].Data.(events.LevelChanged).From)
	assert.Equal(t, 1, changes[1].Data.(events.LevelChanged).To)
}

func TestHighFPSRaisesAtMostOneStep(t *testing.T) {
	o, _ := newOptimizer(t)
	levels := feed(o, 0, 25, 120)
	assert.Equal(t, Level(3), levels[9])
	assert.Equal(t, Level(4), levels[10])
	assert.Equal(t, Level(4), levels[24], "one step, then the cooldown holds")
}

func TestOscillatingFPSNeverSteps(t *testing.T) {
	o, rec := newOptimizer(t)
	for i := 0; i < 100; i++ {
		fps := 20.0
		switch i % 3 {
		case 1:
			fps = 45
		case 2:
			fps = 90
		}
		assert.Nil(t, o.Observe(at(i), fps))
		o.Apply(uint64(i))
	}
	assert.Equal(t, DefaultLevel, o.Level())
	assert.Empty(t, rec.Events())
}

func TestLevelBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Initial = MinLevel
	o, err := New(cfg, nil, nil)
	require.NoError(t, err)
	for _, l := range feed(o, 0, 40, 10) {
		assert.Equal(t, MinLevel, l)
	}

	cfg.Initial = MaxLevel
	o, err = New(cfg, nil, nil)
	require.NoError(t, err)
	for _, l := range feed(o, 0, 40, 200) {
		assert.Equal(t, MaxLevel, l)
	}
}

func TestNonAdaptiveIgnoresFPS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Adaptive = false
	o, err := New(cfg, nil, nil)
	require.NoError(t, err)
	for _, l := range feed(o, 0, 40, 5) {
		assert.Equal(t, DefaultLevel, l)
	}

	require.NoError(t, o.Force(at(41), 5))
	assert.Equal(t, Level(3), o.Level())
	c, ok := o.Apply(41)
	require.True(t, ok)
	assert.Equal(t, Level(5), c.To)
	assert.Error(t, o.Force(at(42), 9))
}

func TestZeroFPSIsNoSample(t *testing.T) {
	o, _ := newOptimizer(t)
	for _, l := range feed(o, 0, 40, 0) {
		assert.Equal(t, DefaultLevel, l)
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Initial = 0
	cfg.AlertFPS = 90
	cfg.Window = 0
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "level 0")
	assert.Contains(t, err.Error(), "alert fps")
	assert.Contains(t, err.Error(), "window")
}

func TestProfiles(t *testing.T) {
	base := projection.DefaultSettings()

	low := Level(1).Profile()
	assert.True(t, low.Spherical)
	assert.False(t, low.Physics)
	s := low.Projection(base)
	assert.False(t, s.Culling)
	assert.False(t, s.Parallel)
	assert.Zero(t, s.LODBias)

	high := Level(5).Profile()
	s = high.Projection(base)
	assert.True(t, s.Culling)
	assert.True(t, s.Parallel)
	assert.Equal(t, 2, s.LODBias)
	assert.Equal(t, base.CullThreshold*4, s.CullThreshold)

	assert.Equal(t, MinLevel, Level(-3).Profile().Level)
	assert.Equal(t, MaxLevel, Level(12).Profile().Level)

	for l := MinLevel; l < MaxLevel; l++ {
		a, b := l.Profile(), (l + 1).Profile()
		assert.LessOrEqual(t, a.CullScale, b.CullScale, "higher levels never cull less")
		assert.LessOrEqual(t, a.LODBias, b.LODBias)
	}
}

type flags struct {
	parallel, compression bool
}

func (f *flags) SetParallel(on bool)    { f.parallel = on }
func (f *flags) SetCompression(on bool) { f.compression = on }

func TestProfileApply(t *testing.T) {
	projector := projection.NewProjector(projection.DefaultCamera(), projection.DefaultSettings(), log.NewNop())
	physics, err := matter.NewEngine(matter.DefaultConfig(), log.NewNop())
	require.NoError(t, err)
	f := &flags{}
	targets := Targets{Projector: projector, Physics: physics, Scheduler: f, Checkpoints: f}

	Level(4).Profile().Apply(targets, projection.DefaultSettings())
	assert.True(t, f.parallel)
	assert.True(t, f.compression)
	assert.True(t, physics.Config().Parallel)
	assert.True(t, physics.Config().EarlyExit)
	assert.Equal(t, 1, projector.Settings().LODBias)

	Level(1).Profile().Apply(targets, projection.DefaultSettings())
	assert.False(t, f.parallel)
	assert.False(t, f.compression)
	assert.False(t, physics.Config().EarlyExit)
	assert.False(t, projector.Settings().Culling)

	assert.NotPanics(t, func() { Level(3).Profile().Apply(Targets{}, projection.DefaultSettings()) })
}
