// Package optimizer adapts the optimization level to the measured frame rate.
// Decisions are made from the perf monitor's rolling fps and staged; the
// engine applies them between ticks.
package optimizer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeusync/zeusphere/internal/core/events"
	"github.com/zeusync/zeusphere/internal/core/faults"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
)

const (
	DefaultTargetFPS = 60
	DefaultAlertFPS  = 30
	DefaultWindow    = time.Second
	DefaultCooldown  = 2 * time.Second
	DefaultLevel     = Level(3)

	sourceName = "optimizer"
)

var ErrConfig = errors.New("optimizer: invalid config")

type Config struct {
	Adaptive  bool
	Initial   Level
	TargetFPS float64
	AlertFPS  float64
	// Window is how long fps must stay out of band before a step.
	Window time.Duration
	// Cooldown follows every step; no streak is counted inside it.
	Cooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		Adaptive:  true,
		Initial:   DefaultLevel,
		TargetFPS: DefaultTargetFPS,
		AlertFPS:  DefaultAlertFPS,
		Window:    DefaultWindow,
		Cooldown:  DefaultCooldown,
	}
}

func (c Config) Validate() error {
	var errs []error
	if !c.Initial.Valid() {
		errs = append(errs, fmt.Errorf("%w: level %d outside %d..%d", ErrConfig, c.Initial, MinLevel, MaxLevel))
	}
	if c.AlertFPS <= 0 || c.TargetFPS <= c.AlertFPS {
		errs = append(errs, fmt.Errorf("%w: need 0 < alert fps (%g) < target fps (%g)", ErrConfig, c.AlertFPS, c.TargetFPS))
	}
	if c.Window <= 0 {
		errs = append(errs, fmt.Errorf("%w: evaluation window must be positive", ErrConfig))
	}
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("%w: cooldown must not be negative", ErrConfig))
	}
	return errors.Join(errs...)
}

type band int

const (
	inBand band = iota
	below
	above
)

// Change is a staged or applied level step.
type Change struct {
	From, To Level
	FPS      float64
	Reason   string
}

// Optimizer is the adaptive quality controller. It is safe for concurrent
// use; Observe and Apply are normally called from the tick loop.
type Optimizer struct {
	cfg    Config
	logger log.Log
	bus    *events.Bus

	mu          sync.Mutex
	level       Level
	staged      *Change
	streak      band
	streakStart time.Time
	changedAt   time.Time
}

func New(cfg Config, bus *events.Bus, logger log.Log) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Optimizer{
		cfg:    cfg,
		logger: logger.With(log.String("component", sourceName)),
		bus:    bus,
		level:  cfg.Initial,
	}, nil
}

func (o *Optimizer) Level() Level {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.level
}

// Pending returns the staged change, if any.
func (o *Optimizer) Pending() (Change, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.staged == nil {
		return Change{}, false
	}
	return *o.staged, true
}

// Observe feeds one fps sample taken at now. A zero fps means no sample yet
// and is ignored. When fps has stayed below the alert threshold for a whole
// window, a one-level decrease is staged and a PerformanceDegradation is
// returned; a whole window above target stages a one-level increase.
func (o *Optimizer) Observe(now time.Time, fps float64) *faults.PerformanceDegradation {
	if fps <= 0 || !o.cfg.Adaptive {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.staged != nil || (!o.changedAt.IsZero() && now.Sub(o.changedAt) < o.cfg.Cooldown) {
		o.streak = inBand
		return nil
	}

	b := inBand
	switch {
	case fps < o.cfg.AlertFPS:
		b = below
	case fps > o.cfg.TargetFPS:
		b = above
	}
	if b != o.streak {
		o.streak, o.streakStart = b, now
		return nil
	}
	if b == inBand || now.Sub(o.streakStart) < o.cfg.Window {
		return nil
	}

	// A full window out of band: one step, then a fresh streak.
	o.streak = inBand
	switch b {
	case below:
		if o.level <= MinLevel {
			return nil
		}
		degradation := &faults.PerformanceDegradation{FPS: fps, Threshold: o.cfg.AlertFPS, Window: o.cfg.Window}
		o.stage(now, o.level-1, fps, degradation.Error())
		o.logger.Warn("Performance degraded, lowering optimization level", log.Error(degradation))
		return degradation
	case above:
		if o.level >= MaxLevel {
			return nil
		}
		o.stage(now, o.level+1, fps, fmt.Sprintf("fps %.1f above %.1f for %s", fps, o.cfg.TargetFPS, o.cfg.Window))
	}
	return nil
}

func (o *Optimizer) stage(now time.Time, to Level, fps float64, reason string) {
	o.staged = &Change{From: o.level, To: to, FPS: fps, Reason: reason}
	o.changedAt = now
}

// Apply commits the staged change. Call it only at a tick boundary.
func (o *Optimizer) Apply(tick uint64) (Change, bool) {
	o.mu.Lock()
	c := o.staged
	if c == nil {
		o.mu.Unlock()
		return Change{}, false
	}
	o.staged = nil
	o.level = c.To
	o.mu.Unlock()

	o.logger.Info("Optimization level changed",
		log.Tick(tick),
		log.Stringer("from", c.From),
		log.Stringer("to", c.To),
		log.Float64("fps", c.FPS))
	_ = o.bus.Publish(events.New(events.TypeLevelChanged, sourceName, tick, events.LevelChanged{
		From: int(c.From), To: int(c.To), FPS: c.FPS, Reason: c.Reason,
	}))
	return *c, true
}

// Force stages a change to level regardless of fps, for operator overrides.
func (o *Optimizer) Force(now time.Time, level Level) error {
	if !level.Valid() {
		return fmt.Errorf("%w: level %d", ErrConfig, level)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if level == o.level {
		o.staged = nil
		return nil
	}
	o.stage(now, level, 0, "forced")
	o.streak = inBand
	return nil
}
