package optimizer

import (
	"fmt"

	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/projection"
)

// Level is a rung of the optimization table, 1 through 5.
type Level int

const (
	MinLevel Level = 1
	MaxLevel Level = 5
)

func (l Level) Valid() bool { return l >= MinLevel && l <= MaxLevel }

func (l Level) String() string { return fmt.Sprintf("L%d", int(l)) }

// Profile is what one level switches on.
type Profile struct {
	Level     Level
	Spherical bool
	Physics   bool
	Rendering bool
	Memory    bool
	Parallel  bool

	// LODBias coarsens the projector's detail levels; CullScale multiplies
	// the configured culling threshold. Both only apply with Rendering.
	LODBias   int
	CullScale float64
}

var profiles = [MaxLevel + 1]Profile{
	1: {Level: 1, Spherical: true, CullScale: 1},
	2: {Level: 2, Spherical: true, Physics: true, CullScale: 1},
	3: {Level: 3, Spherical: true, Physics: true, Rendering: true, Parallel: true, CullScale: 1},
	4: {Level: 4, Spherical: true, Physics: true, Rendering: true, Memory: true, Parallel: true, LODBias: 1, CullScale: 2},
	5: {Level: 5, Spherical: true, Physics: true, Rendering: true, Memory: true, Parallel: true, LODBias: 2, CullScale: 4},
}

// Profile returns the table row of l, clamping out-of-range levels.
func (l Level) Profile() Profile {
	switch {
	case l < MinLevel:
		l = MinLevel
	case l > MaxLevel:
		l = MaxLevel
	}
	return profiles[l]
}

// Projection derives the projector settings of p from the configured base.
func (p Profile) Projection(base projection.Settings) projection.Settings {
	s := base
	s.Parallel = p.Parallel
	s.Culling = p.Rendering
	s.LODBias = 0
	if p.Rendering {
		s.CullThreshold = base.CullThreshold * p.CullScale
		s.LODBias = p.LODBias
	}
	return s
}

// Matter returns the integration flags of p: early exit of the constraint
// solver and parallel integration.
func (p Profile) Matter() (earlyExit, parallel bool) {
	return p.Physics, p.Parallel
}

// Apply pushes p onto the components it drives. Nil targets are skipped.
func (p Profile) Apply(t Targets, base projection.Settings) {
	if t.Projector != nil {
		t.Projector.Apply(p.Projection(base))
	}
	if t.Physics != nil {
		t.Physics.SetFlags(p.Matter())
	}
	if t.Scheduler != nil {
		t.Scheduler.SetParallel(p.Parallel)
	}
	if t.Checkpoints != nil {
		t.Checkpoints.SetCompression(p.Memory)
	}
}

// Targets are the components a level change reaches.
type Targets struct {
	Projector   *projection.Projector
	Physics     *matter.Engine
	Scheduler   interface{ SetParallel(bool) }
	Checkpoints interface{ SetCompression(bool) }
}
