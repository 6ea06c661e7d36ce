package agents

import (
	"context"
	"sort"
	"time"

	"github.com/zeusync/zeusphere/internal/core/faults"
	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/projection"
	"github.com/zeusync/zeusphere/internal/core/scene"
	"github.com/zeusync/zeusphere/internal/core/spherical"
)

// Appearance is the material agent's per-object output.
type Appearance struct {
	Albedo   [4]float64
	Emission [3]float64
}

// Object is one row of the scheduler's object table.
type Object struct {
	Body       matter.Body
	Behavior   matter.Behavior
	Material   scene.Material
	Animation  scene.Animation
	Appearance Appearance
	Light      float64
}

func (o Object) ID() string { return o.Body.ID }

// FromScene builds the initial object table of a compiled scene.
func FromScene(sc *scene.Scene) []Object {
	out := make([]Object, 0, len(sc.Objects))
	for _, so := range sc.Objects {
		m := sc.Material(so)
		out = append(out, Object{
			Body:       so.Body,
			Behavior:   so.Behavior,
			Material:   m,
			Animation:  so.Animation,
			Appearance: Appearance{Albedo: m.Albedo, Emission: m.Emission},
			Light:      sc.Environment.Ambient,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Target is the projector's view of o.
func (o Object) Target() projection.Target {
	return projection.Target{
		ID:        o.Body.ID,
		Position:  o.Body.Position,
		Radius:    o.Body.Radius,
		Albedo:    o.Appearance.Albedo,
		Emission:  o.Appearance.Emission,
		Metallic:  o.Material.Metallic,
		Roughness: o.Material.Roughness,
		Ambient:   o.Light,
	}
}

// Task is one unit of work sent to an agent. Objects is the agent's share
// of the table; it is a copy the agent may read but must not retain.
type Task struct {
	Tick    uint64
	Time    float64
	Objects []Object
	// Frame is the wall time of the previous tick, for the perf monitor.
	Frame time.Duration
}

// Delta is a proposed change to one object. Only the fields the producing
// kind owns are set.
type Delta struct {
	ObjectID    string
	Source      Kind
	Body        *matter.Body
	Transitions []matter.Transition
	Channels    map[scene.Channel]float64
	Appearance  *Appearance
	Light       *float64
}

// Metrics is the perf monitor's rolling measurement.
type Metrics struct {
	FPS        float64
	FrameTime  time.Duration
	Samples    int
	HeapAlloc  uint64
	Goroutines int
}

type Reply struct {
	Deltas      []Delta
	Projections []projection.Projection
	Skipped     []*faults.NumericError
	Metrics     *Metrics
}

// Worker does the work of one agent incarnation. Handle runs on the agent's
// own goroutine, one task at a time.
type Worker interface {
	Handle(ctx context.Context, task Task) (Reply, error)
}

// Starter is implemented by workers that need setup before taking work.
type Starter interface {
	Start(ctx context.Context) error
}

// Resyncer is implemented by workers that keep per-object state; it receives
// the owned objects restored from the last checkpoint after a restart.
type Resyncer interface {
	Resync(ctx context.Context, objects []Object) error
}

// Spawner creates a fresh worker for a new incarnation.
type Spawner func() (Worker, error)

// Spec declares one agent of the table.
type Spec struct {
	Kind     Kind
	Priority int
	Spawn    Spawner
}

// deltaOrder is the order deltas of one object are applied in.
var deltaOrder = [kindCount]int{
	KindPhysics:     0,
	KindAnimation:   1,
	KindMaterial:    2,
	KindLighting:    3,
	KindRender:      4,
	KindPerfMonitor: 5,
}

func sortDeltas(ds []Delta) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].ObjectID != ds[j].ObjectID {
			return ds[i].ObjectID < ds[j].ObjectID
		}
		return deltaOrder[ds[i].Source] < deltaOrder[ds[j].Source]
	})
}

// apply folds d into o.
func apply(o *Object, d Delta) {
	if d.Body != nil {
		o.Body = *d.Body
	}
	if len(d.Channels) > 0 {
		applyChannels(o, d.Channels)
	}
	if d.Appearance != nil {
		o.Appearance = *d.Appearance
	}
	if d.Light != nil {
		o.Light = *d.Light
	}
}

func applyChannels(o *Object, values map[scene.Channel]float64) {
	p := o.Body.Position
	moved := false
	if v, ok := values[scene.ChannelR]; ok {
		p.R, moved = v, true
	}
	if v, ok := values[scene.ChannelTheta]; ok {
		p.Theta, moved = v, true
	}
	if v, ok := values[scene.ChannelPhi]; ok {
		p.Phi, moved = v, true
	}
	if moved {
		o.Body.Position = spherical.NewPoint(p.R, p.Theta, p.Phi)
	}
	if v, ok := values[scene.ChannelTemperature]; ok {
		o.Body.Thermal.Temperature = v
	}
	o.Body.SDT = matter.Assemble(o.Body, o.Behavior, o.Material.Thermo)
}
