// Package config loads the engine configuration file. Every field has a
// default; a file only needs the keys it changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/zeusphere/internal/core/agents"
	"github.com/zeusync/zeusphere/internal/core/checkpoint"
	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/internal/core/optimizer"
	"github.com/zeusync/zeusphere/internal/core/projection"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Engine     Engine     `yaml:"engine"`
	Projection Projection `yaml:"projection"`
	Physics    Physics    `yaml:"physics"`
	Scheduler  Scheduler  `yaml:"scheduler"`
	Optimizer  Optimizer  `yaml:"optimizer"`
	Checkpoint Checkpoint `yaml:"checkpoint"`
	Log        Log        `yaml:"log"`
}

type Engine struct {
	Scene    string  `yaml:"scene"`
	TickRate float64 `yaml:"tick_rate"`
	// Ticks bounds a run; 0 runs until cancelled.
	Ticks uint64 `yaml:"ticks"`
	// Agents is the number of agents per kind, keyed by kind name.
	Agents    map[string]int `yaml:"agents"`
	FPSWindow int            `yaml:"fps_window"`
	// SummaryEvery is how often, in ticks, a frame summary is logged.
	SummaryEvery uint64 `yaml:"summary_every"`
}

type Projection struct {
	CullThreshold      float64 `yaml:"cull_threshold"`
	ViewerDistance     float64 `yaml:"viewer_distance"`
	SamplesPerUnitArea float64 `yaml:"samples_per_unit_area"`
}

type Physics struct {
	Iterations int      `yaml:"iterations"`
	Tolerance  float64  `yaml:"tolerance"`
	Seed       uint64   `yaml:"seed"`
	Phases     []string `yaml:"phases"`
}

type Scheduler struct {
	DispatchTimeout     time.Duration `yaml:"dispatch_timeout"`
	QueueSize           int           `yaml:"queue_size"`
	MonitorInterval     time.Duration `yaml:"monitor_interval"`
	MaxMissedHeartbeats int           `yaml:"max_missed_heartbeats"`
	MaxRestarts         int           `yaml:"max_restarts"`
	RestartTimeout      time.Duration `yaml:"restart_timeout"`
	BreakerFailures     int           `yaml:"breaker_failures"`
}

type Optimizer struct {
	Adaptive  bool          `yaml:"adaptive"`
	Level     int           `yaml:"level"`
	TargetFPS float64       `yaml:"target_fps"`
	AlertFPS  float64       `yaml:"alert_fps"`
	Window    time.Duration `yaml:"window"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

type Checkpoint struct {
	Capacity int    `yaml:"capacity"`
	Every    uint64 `yaml:"every"`
	// Dir receives a checkpoint file every PersistEvery ticks; empty
	// disables persistence.
	Dir          string `yaml:"dir"`
	PersistEvery uint64 `yaml:"persist_every"`
}

type Log struct {
	Level log.Level `yaml:"level"`
}

func DefaultConfig() Config {
	sched := agents.DefaultConfig()
	phys := matter.DefaultConfig()
	opt := optimizer.DefaultConfig()
	return Config{
		Engine: Engine{
			TickRate: sched.TickRate,
			Agents: map[string]int{
				agents.KindRender.String():      1,
				agents.KindPhysics.String():     2,
				agents.KindMaterial.String():    1,
				agents.KindAnimation.String():   1,
				agents.KindLighting.String():    1,
				agents.KindPerfMonitor.String(): 1,
			},
			FPSWindow:    agents.DefaultFPSWindow,
			SummaryEvery: 60,
		},
		Projection: Projection{
			CullThreshold:      projection.DefaultCullThreshold,
			ViewerDistance:     projection.DefaultViewerDistance,
			SamplesPerUnitArea: projection.DefaultSamplesPerUnitArea,
		},
		Physics: Physics{
			Iterations: phys.Iterations,
			Tolerance:  phys.Tolerance,
			Phases:     phaseNames(matter.AllPhases),
		},
		Scheduler: Scheduler{
			DispatchTimeout:     sched.DispatchTimeout,
			QueueSize:           sched.QueueSize,
			MonitorInterval:     sched.MonitorInterval,
			MaxMissedHeartbeats: sched.MaxMissedHeartbeats,
			MaxRestarts:         sched.MaxRestarts,
			RestartTimeout:      sched.RestartTimeout,
			BreakerFailures:     sched.BreakerFailures,
		},
		Optimizer: Optimizer{
			Adaptive:  opt.Adaptive,
			Level:     int(opt.Initial),
			TargetFPS: opt.TargetFPS,
			AlertFPS:  opt.AlertFPS,
			Window:    opt.Window,
			Cooldown:  opt.Cooldown,
		},
		Checkpoint: Checkpoint{
			Capacity: checkpoint.DefaultCapacity,
			Every:    1,
		},
		Log: Log{Level: log.LevelInfo},
	}
}

// Load reads path and overlays it onto the defaults. An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Decode overlays a YAML document onto cfg. Unknown keys are rejected.
func Decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if _, err := c.MatterConfig(); err != nil {
		errs = append(errs, err)
	}
	if err := c.SchedulerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.OptimizerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.AgentCounts(); err != nil {
		errs = append(errs, err)
	}
	if !(c.Projection.CullThreshold >= 0) {
		errs = append(errs, fmt.Errorf("cull threshold %g must not be negative", c.Projection.CullThreshold))
	}
	if !(c.Projection.ViewerDistance > 0) || !(c.Projection.SamplesPerUnitArea > 0) {
		errs = append(errs, errors.New("viewer distance and sample density must be positive"))
	}
	if c.Checkpoint.Capacity <= 0 {
		errs = append(errs, errors.New("checkpoint capacity must be positive"))
	}
	if c.Checkpoint.Dir != "" && c.Checkpoint.PersistEvery == 0 {
		errs = append(errs, errors.New("checkpoint dir needs persist_every"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// MatterConfig builds the physics configuration. The timestep is one tick.
func (c Config) MatterConfig() (matter.Config, error) {
	phases, err := matter.ParsePhaseSet(c.Physics.Phases)
	if err != nil {
		return matter.Config{}, err
	}
	cfg := matter.DefaultConfig()
	if c.Engine.TickRate > 0 {
		cfg.Timestep = 1 / c.Engine.TickRate
	}
	cfg.Iterations = c.Physics.Iterations
	cfg.Tolerance = c.Physics.Tolerance
	cfg.Seed = c.Physics.Seed
	cfg.Enabled = phases
	return cfg, cfg.Validate()
}

func (c Config) SchedulerConfig() agents.Config {
	every := c.Checkpoint.Every
	if every == 0 {
		every = 1
	}
	return agents.Config{
		TickRate:            c.Engine.TickRate,
		DispatchTimeout:     c.Scheduler.DispatchTimeout,
		QueueSize:           c.Scheduler.QueueSize,
		MonitorInterval:     c.Scheduler.MonitorInterval,
		MaxMissedHeartbeats: c.Scheduler.MaxMissedHeartbeats,
		MaxRestarts:         c.Scheduler.MaxRestarts,
		RestartTimeout:      c.Scheduler.RestartTimeout,
		BreakerFailures:     c.Scheduler.BreakerFailures,
		CheckpointEvery:     every,
	}
}

func (c Config) OptimizerConfig() optimizer.Config {
	return optimizer.Config{
		Adaptive:  c.Optimizer.Adaptive,
		Initial:   optimizer.Level(c.Optimizer.Level),
		TargetFPS: c.Optimizer.TargetFPS,
		AlertFPS:  c.Optimizer.AlertFPS,
		Window:    c.Optimizer.Window,
		Cooldown:  c.Optimizer.Cooldown,
	}
}

func (c Config) Camera() projection.Camera {
	cam := projection.DefaultCamera()
	cam.ViewerDistance = c.Projection.ViewerDistance
	cam.SamplesPerUnitArea = c.Projection.SamplesPerUnitArea
	return cam
}

func (c Config) ProjectionSettings() projection.Settings {
	s := projection.DefaultSettings()
	s.CullThreshold = c.Projection.CullThreshold
	return s
}

// AgentCounts resolves the per-kind agent counts. Every per-object kind
// needs at least one agent.
func (c Config) AgentCounts() (map[agents.Kind]int, error) {
	counts := make(map[agents.Kind]int, len(c.Engine.Agents))
	names := make([]string, 0, len(c.Engine.Agents))
	for name := range c.Engine.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		k, err := agents.ParseKind(name)
		if err != nil {
			return nil, err
		}
		n := c.Engine.Agents[name]
		if n < 0 {
			return nil, fmt.Errorf("agent count for %s must not be negative", k)
		}
		counts[k] += n
	}
	for _, k := range agents.Kinds() {
		if k.PerObject() && counts[k] == 0 {
			return nil, fmt.Errorf("at least one %s agent is required", k)
		}
	}
	return counts, nil
}

func phaseNames(set matter.PhaseSet) []string {
	phases := set.Phases()
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = p.String()
	}
	return names
}
