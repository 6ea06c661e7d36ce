package agents

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/internal/core/projection"
	"github.com/zeusync/zeusphere/internal/core/scene"
	"github.com/zeusync/zeusphere/internal/core/spherical"
)

const (
	DefaultFPSWindow = 60
	memSampleEvery   = 30
)

var errNoEngine = errors.New("physics worker needs a matter engine")

// PhysicsWorker advances its share of the table through the matter engine.
type PhysicsWorker struct {
	engine *matter.Engine
}

func NewPhysicsWorker(engine *matter.Engine) (*PhysicsWorker, error) {
	if engine == nil {
		return nil, errNoEngine
	}
	return &PhysicsWorker{engine: engine}, nil
}

func (w *PhysicsWorker) Handle(ctx context.Context, task Task) (Reply, error) {
	inputs := make([]matter.Input, len(task.Objects))
	for i, o := range task.Objects {
		inputs[i] = matter.Input{Body: o.Body, Behavior: o.Behavior, Thermo: o.Material.Thermo}
	}
	batch, err := w.engine.Advance(ctx, task.Tick, inputs)
	if err != nil {
		return Reply{}, err
	}

	skipped := make(map[string]bool, len(batch.Skipped))
	for _, s := range batch.Skipped {
		skipped[s.ObjectID] = true
	}
	reply := Reply{Skipped: batch.Skipped, Deltas: make([]Delta, 0, len(batch.Results))}
	for _, res := range batch.Results {
		if skipped[res.Body.ID] {
			continue
		}
		body := res.Body
		reply.Deltas = append(reply.Deltas, Delta{
			ObjectID:    body.ID,
			Source:      KindPhysics,
			Body:        &body,
			Transitions: res.Transitions,
		})
	}
	return reply, nil
}

// AnimationWorker samples keyframe tracks at the tick's simulated time.
type AnimationWorker struct{}

func (AnimationWorker) Handle(ctx context.Context, task Task) (Reply, error) {
	var reply Reply
	for _, o := range task.Objects {
		if err := ctx.Err(); err != nil {
			return Reply{}, err
		}
		if o.Animation.Empty() {
			continue
		}
		reply.Deltas = append(reply.Deltas, Delta{
			ObjectID: o.ID(),
			Source:   KindAnimation,
			Channels: o.Animation.Values(task.Time),
		})
	}
	return reply, nil
}

// MaterialWorker derives each object's appearance from its material and
// current matter state.
type MaterialWorker struct{}

func (MaterialWorker) Handle(ctx context.Context, task Task) (Reply, error) {
	reply := Reply{Deltas: make([]Delta, 0, len(task.Objects))}
	for _, o := range task.Objects {
		if err := ctx.Err(); err != nil {
			return Reply{}, err
		}
		a := Respond(o.Material, o.Body)
		reply.Deltas = append(reply.Deltas, Delta{ObjectID: o.ID(), Source: KindMaterial, Appearance: &a})
	}
	return reply, nil
}

// Respond computes the appearance of a body made of m. Non-solid phases
// thin the opacity by their density relative to the solid; heat between
// melting and ionization adds incandescence, and plasma glows with its
// ionization fraction on top.
func Respond(m scene.Material, b matter.Body) Appearance {
	a := Appearance{Albedo: m.Albedo, Emission: m.Emission}
	th := m.Thermo
	if solid := th.Density[matter.Solid]; solid > 0 && b.Phase != matter.Solid {
		a.Albedo[3] *= clamp01(b.Thermal.Density / solid)
	}

	var glow float64
	melt, ionize := th.Thresholds.Melt(), th.Thresholds.Ionize()
	if ionize > melt {
		glow = th.Emission * clamp01((b.Thermal.Temperature-melt)/(ionize-melt))
	}
	if b.Phase == matter.Plasma {
		glow += b.Thermal.Ionization
	}
	for c := range a.Emission {
		a.Emission[c] += glow
	}
	return a
}

// Sky is the directional part of the environment lighting. It implements
// projection.Illuminator.
type Sky struct {
	Ambient float64
	Lights  []scene.Light
}

func NewSky(env scene.Environment) Sky {
	return Sky{Ambient: env.Ambient, Lights: env.Lights}
}

// Irradiance sums the Lambert term of every light along dir. A light's
// spread widens the cone it reaches at full strength.
func (s Sky) Irradiance(dir spherical.Direction) float64 {
	var total float64
	for _, l := range s.Lights {
		gamma := math.Max(0, spherical.Separation(dir, l.Direction)-l.Spread)
		if c := math.Cos(gamma); c > 0 {
			total += l.Intensity * c
		}
	}
	return total
}

// LightingWorker computes the light falling on each object.
type LightingWorker struct {
	sky Sky
}

func NewLightingWorker(sky Sky) *LightingWorker {
	return &LightingWorker{sky: sky}
}

func (w *LightingWorker) Handle(ctx context.Context, task Task) (Reply, error) {
	reply := Reply{Deltas: make([]Delta, 0, len(task.Objects))}
	for _, o := range task.Objects {
		if err := ctx.Err(); err != nil {
			return Reply{}, err
		}
		light := w.sky.Ambient + w.sky.Irradiance(o.Body.Position.Dir())
		reply.Deltas = append(reply.Deltas, Delta{ObjectID: o.ID(), Source: KindLighting, Light: &light})
	}
	return reply, nil
}

// RenderWorker projects its share of the table onto the viewing sphere.
type RenderWorker struct {
	projector *projection.Projector
	sky       Sky
}

func NewRenderWorker(projector *projection.Projector, sky Sky) *RenderWorker {
	return &RenderWorker{projector: projector, sky: sky}
}

func (w *RenderWorker) Handle(ctx context.Context, task Task) (Reply, error) {
	targets := make([]projection.Target, len(task.Objects))
	for i, o := range task.Objects {
		targets[i] = o.Target()
	}
	batch, err := w.projector.ProjectAll(ctx, task.Tick, targets, w.sky)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Projections: batch.Projections, Skipped: batch.Skipped}, nil
}

// PerfMonitor keeps a rolling window of frame times and samples the Go
// runtime's memory use.
type PerfMonitor struct {
	frames []time.Duration
	next   int
	count  int
	sum    time.Duration
	calls  int
	heap   uint64
	logger log.Log
}

func NewPerfMonitor(window int, logger log.Log) *PerfMonitor {
	if window <= 0 {
		window = DefaultFPSWindow
	}
	return &PerfMonitor{frames: make([]time.Duration, window), logger: logger}
}

func (m *PerfMonitor) Observe(frame time.Duration) {
	if frame <= 0 {
		return
	}
	if m.count == len(m.frames) {
		m.sum -= m.frames[m.next]
	} else {
		m.count++
	}
	m.frames[m.next] = frame
	m.sum += frame
	m.next = (m.next + 1) % len(m.frames)
}

// FPS is the frame rate over the window, 0 before the first sample.
func (m *PerfMonitor) FPS() float64 {
	if m.count == 0 || m.sum <= 0 {
		return 0
	}
	return float64(m.count) / m.sum.Seconds()
}

func (m *PerfMonitor) Handle(_ context.Context, task Task) (Reply, error) {
	m.Observe(task.Frame)
	if m.calls%memSampleEvery == 0 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		m.heap = ms.HeapAlloc
		m.logger.Debug("Runtime metrics",
			log.Tick(task.Tick),
			log.Float64("fps", m.FPS()),
			log.String("heap", humanize.Bytes(m.heap)),
			log.Int("goroutines", runtime.NumGoroutine()))
	}
	m.calls++

	metrics := Metrics{FPS: m.FPS(), Samples: m.count, HeapAlloc: m.heap, Goroutines: runtime.NumGoroutine()}
	if m.count > 0 {
		metrics.FrameTime = m.sum / time.Duration(m.count)
	}
	return Reply{Metrics: &metrics}, nil
}

// Deps are the shared collaborators the default workers are built on.
type Deps struct {
	Physics     *matter.Engine
	Projector   *projection.Projector
	Environment scene.Environment
	FPSWindow   int
	Logger      log.Log
}

// Spawner returns the default worker constructor for kind.
func (d Deps) Spawner(kind Kind) Spawner {
	logger := d.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	sky := NewSky(d.Environment)
	return func() (Worker, error) {
		switch kind {
		case KindPhysics:
			return NewPhysicsWorker(d.Physics)
		case KindAnimation:
			return AnimationWorker{}, nil
		case KindMaterial:
			return MaterialWorker{}, nil
		case KindLighting:
			return NewLightingWorker(sky), nil
		case KindRender:
			if d.Projector == nil {
				return nil, errors.New("render worker needs a projector")
			}
			return NewRenderWorker(d.Projector, sky), nil
		case KindPerfMonitor:
			return NewPerfMonitor(d.FPSWindow, logger.With(log.String("component", "perfmonitor"))), nil
		default:
			return nil, fmt.Errorf("no worker for %s", kind)
		}
	}
}

// Specs declares counts[k] agents of each kind using the default workers.
func Specs(counts map[Kind]int, deps Deps) []Spec {
	var specs []Spec
	for _, k := range Kinds() {
		for i := 0; i < counts[k]; i++ {
			specs = append(specs, Spec{Kind: k, Spawn: deps.Spawner(k)})
		}
	}
	return specs
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
