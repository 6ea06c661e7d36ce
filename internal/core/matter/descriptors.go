package matter

import (
	"errors"
	"fmt"
	"math"

	"github.com/zeusync/zeusphere/internal/core/spherical"
)

// ForceKind is the closed set of force descriptors the integrator knows.
type ForceKind uint8

const (
	ForceGravity ForceKind = iota + 1
	ForceCentripetal
	ForceElectromagnetic
	ForceStochastic
	ForceDrag
	ForceThermal
)

var forceKindNames = map[ForceKind]string{
	ForceGravity:         "gravity",
	ForceCentripetal:     "centripetal",
	ForceElectromagnetic: "electromagnetic",
	ForceStochastic:      "stochastic",
	ForceDrag:            "drag",
	ForceThermal:         "thermal",
}

func (k ForceKind) String() string {
	if name, ok := forceKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("force(%d)", uint8(k))
}

func ParseForceKind(s string) (ForceKind, error) {
	for k, name := range forceKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown force kind %q", s)
}

// Force is one compiled force descriptor. Which fields apply depends on Kind:
//
//	gravity          Magnitude (m/s², toward the origin)
//	centripetal      Magnitude (scale on v_t²/r, 1 when zero)
//	electromagnetic  Electric, Magnetic (local basis)
//	stochastic       Magnitude (standard deviation of each component, m/s²)
//	drag             Magnitude (1/s)
//	thermal          HeatRate (K/s), PressureRate (Pa/s)
type Force struct {
	Kind         ForceKind
	Magnitude    float64
	Electric     spherical.Vector
	Magnetic     spherical.Vector
	HeatRate     float64
	PressureRate float64
}

func Gravity(g float64) Force { return Force{Kind: ForceGravity, Magnitude: g} }

func Centripetal(scale float64) Force { return Force{Kind: ForceCentripetal, Magnitude: scale} }

func Electromagnetic(e, b spherical.Vector) Force {
	return Force{Kind: ForceElectromagnetic, Electric: e, Magnetic: b}
}

func Stochastic(sigma float64) Force { return Force{Kind: ForceStochastic, Magnitude: sigma} }

func Drag(k float64) Force { return Force{Kind: ForceDrag, Magnitude: k} }

func Heating(heatRate, pressureRate float64) Force {
	return Force{Kind: ForceThermal, HeatRate: heatRate, PressureRate: pressureRate}
}

func (f Force) Validate() error {
	if _, ok := forceKindNames[f.Kind]; !ok {
		return fmt.Errorf("unknown force kind %d", f.Kind)
	}
	if !finite(f.Magnitude) || !finite(f.HeatRate) || !finite(f.PressureRate) ||
		!f.Electric.IsFinite() || !f.Magnetic.IsFinite() {
		return fmt.Errorf("%s force has a non-finite parameter", f.Kind)
	}
	switch f.Kind {
	case ForceStochastic, ForceDrag:
		if f.Magnitude < 0 {
			return fmt.Errorf("%s magnitude %g must be non-negative", f.Kind, f.Magnitude)
		}
	}
	return nil
}

// ConstraintKind is the closed set of constraint descriptors.
type ConstraintKind uint8

const (
	ConstraintSphericalSurface ConstraintKind = iota + 1
	ConstraintOrbit
	ConstraintPolarBand
)

var constraintKindNames = map[ConstraintKind]string{
	ConstraintSphericalSurface: "spherical_surface",
	ConstraintOrbit:            "orbital_path",
	ConstraintPolarBand:        "polar_band",
}

func (k ConstraintKind) String() string {
	if name, ok := constraintKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("constraint(%d)", uint8(k))
}

func ParseConstraintKind(s string) (ConstraintKind, error) {
	for k, name := range constraintKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown constraint kind %q", s)
}

// Constraint is one compiled constraint descriptor:
//
//	spherical_surface  Radius
//	orbital_path       Radius, Pole (the great circle is the equator of Pole)
//	polar_band         ThetaMin, ThetaMax
type Constraint struct {
	Kind     ConstraintKind
	Radius   float64
	Pole     spherical.Direction
	ThetaMin float64
	ThetaMax float64
}

func SphericalSurface(radius float64) Constraint {
	return Constraint{Kind: ConstraintSphericalSurface, Radius: radius}
}

func Orbit(radius float64, pole spherical.Direction) Constraint {
	return Constraint{Kind: ConstraintOrbit, Radius: radius, Pole: pole}
}

func PolarBand(thetaMin, thetaMax float64) Constraint {
	return Constraint{Kind: ConstraintPolarBand, ThetaMin: thetaMin, ThetaMax: thetaMax}
}

func (c Constraint) Validate() error {
	switch c.Kind {
	case ConstraintSphericalSurface, ConstraintOrbit:
		if !finite(c.Radius) || c.Radius <= 0 {
			return fmt.Errorf("%s radius %g must be positive", c.Kind, c.Radius)
		}
		if c.Kind == ConstraintOrbit && (!finite(c.Pole.Theta) || !finite(c.Pole.Phi)) {
			return fmt.Errorf("%s pole must be finite", c.Kind)
		}
	case ConstraintPolarBand:
		if !finite(c.ThetaMin) || !finite(c.ThetaMax) ||
			c.ThetaMin < 0 || c.ThetaMax > math.Pi || c.ThetaMin > c.ThetaMax {
			return fmt.Errorf("%s range [%g, %g] must lie inside [0, π]", c.Kind, c.ThetaMin, c.ThetaMax)
		}
	default:
		return fmt.Errorf("unknown constraint kind %d", c.Kind)
	}
	return nil
}

// Behavior is the compiled force and constraint list of one object.
type Behavior struct {
	Forces      []Force
	Constraints []Constraint
}

func (b Behavior) Validate() error {
	var errs []error
	for i, f := range b.Forces {
		if err := f.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("forces[%d]: %w", i, err))
		}
	}
	for i, c := range b.Constraints {
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("constraints[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Thermo carries the thermodynamic side of a material.
type Thermo struct {
	Thresholds Thresholds

	// Density per phase, kg/m³.
	Density [PhaseCount]float64

	Viscosity        float64 // liquid, 1/s drag while liquid
	SurfaceTension   float64 // liquid
	Compressibility  float64 // gas, 1/Pa
	IonizationEnergy float64 // plasma, K equivalent
	Conductivity     float64 // plasma, scales the electromagnetic response

	// Emission is the material's own luminance, used for the emission hint.
	Emission float64
}

func (t Thermo) Validate() error {
	errs := []error{t.Thresholds.Validate()}
	for p, d := range t.Density {
		if !finite(d) || d < 0 {
			errs = append(errs, fmt.Errorf("%s density %g must be non-negative", Phase(p), d))
		}
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"viscosity", t.Viscosity},
		{"surface tension", t.SurfaceTension},
		{"compressibility", t.Compressibility},
		{"ionization energy", t.IonizationEnergy},
		{"conductivity", t.Conductivity},
		{"emission", t.Emission},
	} {
		if !finite(f.value) || f.value < 0 {
			errs = append(errs, fmt.Errorf("%s %g must be non-negative", f.name, f.value))
		}
	}
	return errors.Join(errs...)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
