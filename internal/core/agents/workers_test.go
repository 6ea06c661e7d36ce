package agents

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/internal/core/scene"
	"github.com/zeusync/zeusphere/internal/core/spherical"
)

func TestKinds(t *testing.T) {
	for _, k := range Kinds() {
		parsed, err := ParseKind(" " + k.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
		assert.NotZero(t, k.Capabilities(), k.String())
	}
	_, err := ParseKind("telepathy")
	assert.Error(t, err)

	assert.Equal(t, "sequencing+projection", KindRender.Capabilities().String())
	assert.False(t, KindPerfMonitor.PerObject())
	assert.True(t, KindLighting.PerObject())
	assert.False(t, Kind(99).Valid())
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestStateTransitions(t *testing.T) {
	legal := [][2]State{
		{StateIdle, StateActive},
		{StateActive, StateDegraded},
		{StateDegraded, StateActive},
		{StateDegraded, StateFailed},
		{StateFailed, StateRestarting},
		{StateRestarting, StateActive},
		{StateRestarting, StateFailed},
		{StateFailed, StateExcluded},
	}
	for _, tr := range legal {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	assert.False(t, CanTransition(StateIdle, StateFailed))
	assert.False(t, CanTransition(StateFailed, StateActive), "a failed agent comes back only through a restart")
	for _, to := range []State{StateIdle, StateActive, StateDegraded, StateFailed, StateRestarting} {
		assert.False(t, CanTransition(StateExcluded, to), "excluded is terminal")
	}

	assert.True(t, StateDegraded.Live())
	assert.False(t, StateRestarting.Live())
}

func TestRespond(t *testing.T) {
	m := rock()
	b := matter.Body{Phase: matter.Solid, Thermal: matter.Thermal{Temperature: 300, Density: 3000}}
	a := Respond(m, b)
	assert.Equal(t, m.Albedo, a.Albedo)
	assert.Equal(t, [3]float64{}, a.Emission)

	// Halfway between melting and ionization, as a liquid.
	b = matter.Body{Phase: matter.Liquid, Thermal: matter.Thermal{Temperature: 3000, Density: 2500}}
	a = Respond(m, b)
	assert.InDelta(t, 2500.0/3000, a.Albedo[3], 1e-12)
	for _, e := range a.Emission {
		assert.InDelta(t, 0.1, e, 1e-12)
	}

	b = matter.Body{Phase: matter.Plasma, Thermal: matter.Thermal{Temperature: 9000, Density: 0.1, Ionization: 0.5}}
	a = Respond(m, b)
	for _, e := range a.Emission {
		assert.InDelta(t, 0.7, e, 1e-12)
	}
}

func TestSkyIrradiance(t *testing.T) {
	sun := spherical.NewDirection(math.Pi/2, 0)
	sky := Sky{Ambient: 0.2, Lights: []scene.Light{{Direction: sun, Intensity: 3}}}

	assert.InDelta(t, 3, sky.Irradiance(sun), 1e-12)
	assert.InDelta(t, 3*math.Cos(0.5), sky.Irradiance(spherical.NewDirection(math.Pi/2, 0.5)), 1e-12)
	assert.Zero(t, sky.Irradiance(spherical.NewDirection(math.Pi/2, math.Pi)), "facing away gets nothing")

	sky.Lights[0].Spread = 0.6
	assert.InDelta(t, 3, sky.Irradiance(spherical.NewDirection(math.Pi/2, 0.5)), 1e-12, "inside the spread the light is full")
}

func TestAnimationWorker(t *testing.T) {
	objects := testObjects(2)
	objects[0].Animation = scene.Animation{Tracks: []scene.Track{{
		Channel:   scene.ChannelTemperature,
		Keyframes: []scene.Keyframe{{Time: 0, Value: 300}, {Time: 2, Value: 500}},
	}}}

	reply, err := AnimationWorker{}.Handle(context.Background(), Task{Tick: 60, Time: 1, Objects: objects})
	require.NoError(t, err)
	require.Len(t, reply.Deltas, 1, "objects without tracks produce no delta")
	assert.Equal(t, "o00", reply.Deltas[0].ObjectID)
	assert.InDelta(t, 400, reply.Deltas[0].Channels[scene.ChannelTemperature], 1e-12)
}

func TestPhysicsWorker(t *testing.T) {
	_, err := NewPhysicsWorker(nil)
	assert.Error(t, err)

	w, err := NewPhysicsWorker(newEngine(t, false))
	require.NoError(t, err)
	objects := testObjects(2)
	reply, err := w.Handle(context.Background(), Task{Tick: 1, Objects: objects})
	require.NoError(t, err)
	require.Len(t, reply.Deltas, 2)
	for i, d := range reply.Deltas {
		require.NotNil(t, d.Body)
		assert.Equal(t, objects[i].ID(), d.ObjectID)
		assert.InDelta(t, 50, d.Body.Position.R, 1e-9, "the surface constraint holds")
	}
}

func TestPerfMonitor(t *testing.T) {
	m := NewPerfMonitor(4, log.NewNop())
	assert.Zero(t, m.FPS())

	m.Observe(0)
	assert.Zero(t, m.FPS(), "the first tick has no frame time")

	for i := 0; i < 6; i++ {
		m.Observe(20 * time.Millisecond)
	}
	assert.InDelta(t, 50, m.FPS(), 1e-9)

	reply, err := m.Handle(context.Background(), Task{Tick: 7, Frame: 10 * time.Millisecond})
	require.NoError(t, err)
	require.NotNil(t, reply.Metrics)
	assert.Equal(t, 4, reply.Metrics.Samples)
	assert.Equal(t, 17500*time.Microsecond, reply.Metrics.FrameTime)
	assert.Positive(t, reply.Metrics.HeapAlloc)
	assert.Positive(t, reply.Metrics.Goroutines)
}

func TestDeltaOrder(t *testing.T) {
	objects := testObjects(1)
	o := objects[0]
	moved := o.Body
	moved.Position = spherical.NewPoint(50, 1.2, 1)
	temp := 700.0
	light := 0.4

	deltas := []Delta{
		{ObjectID: o.ID(), Source: KindLighting, Light: &light},
		{ObjectID: o.ID(), Source: KindAnimation, Channels: map[scene.Channel]float64{scene.ChannelTemperature: temp}},
		{ObjectID: o.ID(), Source: KindPhysics, Body: &moved},
	}
	sortDeltas(deltas)
	for _, d := range deltas {
		apply(&o, d)
	}

	assert.Equal(t, moved.Position, o.Body.Position)
	assert.Equal(t, temp, o.Body.Thermal.Temperature, "animation overrides the integrated value")
	assert.Equal(t, temp, o.Body.SDT[matter.SDTTemperature])
	assert.Equal(t, light, o.Light)
}
