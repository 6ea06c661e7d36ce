package engine

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/zeusphere/internal/core/agents"
	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/optimizer"
	"github.com/zeusync/zeusphere/internal/core/projection"
)

// ObjectFrame is the renderer-facing state of one object after a tick.
type ObjectFrame struct {
	ID      string
	Visible bool
	Phase   matter.Phase
	SDT     matter.SDTVector
	LOD     int
	Light   float64

	Corners [projection.CornerCount]projection.Sample
	Center  projection.Sample
}

// Frame is the output of one tick.
type Frame struct {
	Tick    uint64
	Time    float64
	Objects []ObjectFrame
	Health  []agents.Health

	FPS        float64
	FrameTime  time.Duration
	HeapAlloc  uint64
	Goroutines int

	Level   optimizer.Level
	Visible int
	Skipped int
	Changes int
	// Digest hashes every object's ID, phase and SDT vector; equal digests
	// mean bit-identical simulation state.
	Digest   uint64
	Duration time.Duration
}

func newFrame(res agents.TickResult, level optimizer.Level) Frame {
	f := Frame{
		Tick:       res.Tick,
		Time:       res.Time,
		Objects:    make([]ObjectFrame, len(res.Objects)),
		Health:     res.Health,
		FPS:        res.Metrics.FPS,
		FrameTime:  res.Metrics.FrameTime,
		HeapAlloc:  res.Metrics.HeapAlloc,
		Goroutines: res.Metrics.Goroutines,
		Level:      level,
		Skipped:    len(res.Skipped),
		Changes:    len(res.Changes),
		Duration:   res.Duration,
	}
	for i, o := range res.Objects {
		p := res.Projections[i]
		f.Objects[i] = ObjectFrame{
			ID:      o.ID(),
			Visible: p.Visible,
			Phase:   o.Body.Phase,
			SDT:     o.Body.SDT,
			LOD:     p.LOD,
			Light:   o.Light,
			Corners: p.Window.Corners,
			Center:  p.Window.Center,
		}
		if p.Visible {
			f.Visible++
		}
	}
	f.Digest = Digest(f.Objects)
	return f
}

// Digest hashes objects in order.
func Digest(objects []ObjectFrame) uint64 {
	h := xxhash.New()
	var buf [8]byte
	for _, o := range objects {
		_, _ = h.WriteString(o.ID)
		_, _ = h.Write([]byte{0, byte(o.Phase)})
		for _, v := range o.SDT {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = h.Write(buf[:])
		}
	}
	return h.Sum64()
}
