package matter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/zeusphere/internal/core/spherical"
)

const (
	DefaultTimestep   = 1.0 / 60
	DefaultIterations = 10
	DefaultTolerance  = 1e-6
)

var ErrConfig = errors.New("matter: invalid config")

// Config controls integration and the constraint solver.
type Config struct {
	Timestep   float64
	Iterations int
	Tolerance  float64
	Seed       uint64
	Enabled    PhaseSet

	// EarlyExit stops constraint projection as soon as the residual is within
	// Tolerance instead of always running every iteration.
	EarlyExit bool
	Parallel  bool
}

func DefaultConfig() Config {
	return Config{
		Timestep:   DefaultTimestep,
		Iterations: DefaultIterations,
		Tolerance:  DefaultTolerance,
		Enabled:    AllPhases,
		EarlyExit:  true,
	}
}

func (c Config) Validate() error {
	var errs []error
	if !finite(c.Timestep) || c.Timestep <= 0 {
		errs = append(errs, fmt.Errorf("%w: timestep %g must be positive", ErrConfig, c.Timestep))
	}
	if c.Iterations < 1 {
		errs = append(errs, fmt.Errorf("%w: solver iterations %d must be at least 1", ErrConfig, c.Iterations))
	}
	if !finite(c.Tolerance) || c.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("%w: tolerance %g must be positive", ErrConfig, c.Tolerance))
	}
	return errors.Join(errs...)
}

// Input is everything Step reads for one object.
type Input struct {
	Body     Body
	Behavior Behavior
	Thermo   Thermo
}

// Result is the advanced body plus what happened on the way.
type Result struct {
	Body        Body
	Transitions []Transition
	Residual    float64
	Iterations  int
	Converged   bool
}

// Step advances one body by one timestep. It reads nothing but its
// arguments: the same inputs give the same result on any goroutine.
func Step(cfg Config, tick uint64, in Input) (Result, error) {
	body := in.Body
	if err := body.Position.Validate(); err != nil {
		return Result{}, err
	}
	if body.Position.IsOrigin() {
		return Result{}, spherical.ErrDegenerate
	}
	dt := cfg.Timestep

	// Forces, then semi-implicit Euler: velocity first, position from the
	// updated velocity.
	accel, heat, press := accumulate(cfg.Seed, tick, body, in.Behavior, in.Thermo)
	vel := body.Velocity.Add(accel.Scale(dt))
	step, err := spherical.Displace(body.Position, vel.Scale(dt))
	if err != nil {
		return Result{}, err
	}
	body.Position = step.To
	body.Velocity = step.Carry(vel)
	body.AngularVelocity = step.Carry(body.AngularVelocity)

	res := Result{Converged: true}
	if len(in.Behavior.Constraints) > 0 {
		res.Residual, res.Iterations = solve(cfg, &body, in.Behavior.Constraints)
		res.Converged = res.Residual <= cfg.Tolerance
	}

	body.Thermal.Temperature += heat * dt
	body.Thermal.Pressure += press * dt
	if body.Thermal.Temperature < 0 {
		body.Thermal.Temperature = 0
	}
	if body.Thermal.Pressure < 0 {
		body.Thermal.Pressure = 0
	}

	body.Phase, res.Transitions = ResolvePhase(body.Phase, body.Thermal.Temperature, body.Thermal.Pressure,
		in.Thermo.Thresholds, cfg.Enabled)
	body.Thermal = updateThermal(body.Thermal, body.Phase, in.Thermo)

	if err := body.Position.Validate(); err != nil {
		return Result{}, err
	}
	if !body.Velocity.IsFinite() || !body.AngularVelocity.IsFinite() || !finite(body.Thermal.Temperature) ||
		!finite(body.Thermal.Pressure) || !finite(body.Thermal.Density) {
		return Result{}, spherical.ErrNonFinite
	}

	body.SDT = Assemble(body, in.Behavior, in.Thermo)
	res.Body = body
	return res, nil
}

// accumulate returns the net acceleration in the body's local basis and the
// heat and pressure rates.
func accumulate(seed, tick uint64, body Body, behavior Behavior, thermo Thermo) (spherical.Vector, float64, float64) {
	mass := body.Mass
	if mass <= 0 {
		mass = 1
	}
	var (
		accel       spherical.Vector
		heat, press float64
		rng         *rand.Rand
	)
	for _, f := range behavior.Forces {
		switch f.Kind {
		case ForceGravity:
			accel.R -= f.Magnitude
		case ForceCentripetal:
			scale := f.Magnitude
			if scale == 0 {
				scale = 1
			}
			vt := body.Velocity.Tangent()
			accel.R -= scale * vt.Dot(vt) / body.Position.R
		case ForceElectromagnetic:
			q := body.Charge
			if body.Phase == Plasma && thermo.Conductivity > 0 {
				q *= 1 + thermo.Conductivity*body.Thermal.Ionization
			}
			lorentz := f.Electric.Add(body.Velocity.Cross(f.Magnetic)).Scale(q / mass)
			accel = accel.Add(lorentz)
		case ForceStochastic:
			if rng == nil {
				rng = stream(seed, tick, body.ID)
			}
			accel = accel.Add(spherical.Vector{
				R:     rng.NormFloat64(),
				Theta: rng.NormFloat64(),
				Phi:   rng.NormFloat64(),
			}.Scale(f.Magnitude))
		case ForceDrag:
			accel = accel.Sub(body.Velocity.Scale(f.Magnitude))
		case ForceThermal:
			heat += f.HeatRate
			press += f.PressureRate
		}
	}
	if body.Phase == Liquid && thermo.Viscosity > 0 {
		accel = accel.Sub(body.Velocity.Scale(thermo.Viscosity))
	}
	return accel, heat, press
}

// stream derives the random source of one object for one tick. It depends
// only on (seed, tick, id), never on the order objects are processed in.
func stream(seed, tick uint64, id string) *rand.Rand {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], seed)
	binary.LittleEndian.PutUint64(buf[8:], tick)
	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(id)
	h := d.Sum64()
	return rand.New(rand.NewPCG(h, seed^tick))
}

// solve projects body onto every constraint in turn until the worst residual
// is within tolerance or the iteration budget runs out.
func solve(cfg Config, body *Body, constraints []Constraint) (float64, int) {
	residual := math.Inf(1)
	n := 0
	for n < cfg.Iterations {
		n++
		for _, c := range constraints {
			project(c, body)
		}
		residual = 0
		for _, c := range constraints {
			residual = math.Max(residual, violation(c, body.Position))
		}
		if cfg.EarlyExit && residual <= cfg.Tolerance {
			break
		}
	}
	return residual, n
}

func project(c Constraint, body *Body) {
	switch c.Kind {
	case ConstraintSphericalSurface:
		body.Position.R = c.Radius
		body.Velocity.R = 0
	case ConstraintOrbit:
		body.Position.R = c.Radius
		body.Velocity.R = 0
		dir := body.Position.Dir()
		sep := spherical.Separation(dir, c.Pole)
		if sep < 1e-12 || math.Pi-sep < 1e-12 {
			// Every great circle through a pole of the orbit is equally near.
			return
		}
		bearing := spherical.Bearing(dir, c.Pole)
		body.Position = body.Position.WithDir(spherical.Destination(dir, sep-math.Pi/2, bearing))
		// Remove the velocity component across the orbit plane.
		across := spherical.Heading(spherical.Bearing(body.Position.Dir(), c.Pole))
		body.Velocity = body.Velocity.Sub(across.Scale(body.Velocity.Dot(across)))
	case ConstraintPolarBand:
		if body.Position.Theta < c.ThetaMin {
			body.Position.Theta = c.ThetaMin
			body.Velocity.Theta = math.Max(0, body.Velocity.Theta)
		} else if body.Position.Theta > c.ThetaMax {
			body.Position.Theta = c.ThetaMax
			body.Velocity.Theta = math.Min(0, body.Velocity.Theta)
		}
	}
}

func violation(c Constraint, p spherical.Point) float64 {
	switch c.Kind {
	case ConstraintSphericalSurface:
		return math.Abs(p.R - c.Radius)
	case ConstraintOrbit:
		off := math.Abs(spherical.Separation(p.Dir(), c.Pole) - math.Pi/2)
		return math.Max(math.Abs(p.R-c.Radius), c.Radius*off)
	case ConstraintPolarBand:
		switch {
		case p.Theta < c.ThetaMin:
			return p.R * (c.ThetaMin - p.Theta)
		case p.Theta > c.ThetaMax:
			return p.R * (p.Theta - c.ThetaMax)
		}
	}
	return 0
}
