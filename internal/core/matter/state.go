package matter

import (
	"math"

	"github.com/zeusync/zeusphere/internal/core/spherical"
)

// SDT vector layout.
const (
	SDTPosR = iota
	SDTPosTheta
	SDTPosPhi
	SDTVelR
	SDTVelTheta
	SDTVelPhi
	SDTAngR
	SDTAngTheta
	SDTAngPhi
	SDTTemperature
	SDTPressure
	SDTDensity
	SDTPhase
	SDTElectricR
	SDTElectricTheta
	SDTElectricPhi
	SDTMagneticR
	SDTMagneticTheta
	SDTMagneticPhi
	SDTAngularRadius
	SDTEmission

	SDTSize
)

// SDTVector is the per-object state vector of one tick. It is a value: a new
// one replaces the previous each tick.
type SDTVector [SDTSize]float64

func (v SDTVector) Position() spherical.Point {
	return spherical.Point{R: v[SDTPosR], Theta: v[SDTPosTheta], Phi: v[SDTPosPhi]}
}

func (v SDTVector) Velocity() spherical.Vector {
	return spherical.Vector{R: v[SDTVelR], Theta: v[SDTVelTheta], Phi: v[SDTVelPhi]}
}

func (v SDTVector) Phase() Phase { return Phase(v[SDTPhase]) }

// EqualWithin reports whether every component differs by at most eps.
func (v SDTVector) EqualWithin(o SDTVector, eps float64) bool {
	for i := range v {
		if math.Abs(v[i]-o[i]) > eps {
			return false
		}
	}
	return true
}

// Thermal is the thermodynamic state of one object.
type Thermal struct {
	Temperature float64
	Pressure    float64
	Density     float64
	Ionization  float64
}

// Body is the physical state of one object the engine advances.
type Body struct {
	ID              string
	Position        spherical.Point
	Velocity        spherical.Vector
	AngularVelocity spherical.Vector
	Radius          float64
	Mass            float64
	Charge          float64
	Phase           Phase
	Thermal         Thermal
	SDT             SDTVector
}

// Field sums the electromagnetic descriptors acting on a body.
func (b Behavior) Field() (e, m spherical.Vector) {
	for _, f := range b.Forces {
		if f.Kind == ForceElectromagnetic {
			e = e.Add(f.Electric)
			m = m.Add(f.Magnetic)
		}
	}
	return e, m
}

// Assemble builds the SDT vector of body from its current fields.
func Assemble(body Body, behavior Behavior, thermo Thermo) SDTVector {
	var v SDTVector
	v[SDTPosR], v[SDTPosTheta], v[SDTPosPhi] = body.Position.R, body.Position.Theta, body.Position.Phi
	v[SDTVelR], v[SDTVelTheta], v[SDTVelPhi] = body.Velocity.R, body.Velocity.Theta, body.Velocity.Phi
	v[SDTAngR], v[SDTAngTheta], v[SDTAngPhi] = body.AngularVelocity.R, body.AngularVelocity.Theta, body.AngularVelocity.Phi
	v[SDTTemperature] = body.Thermal.Temperature
	v[SDTPressure] = body.Thermal.Pressure
	v[SDTDensity] = body.Thermal.Density
	v[SDTPhase] = float64(body.Phase)

	e, m := behavior.Field()
	v[SDTElectricR], v[SDTElectricTheta], v[SDTElectricPhi] = e.R, e.Theta, e.Phi
	v[SDTMagneticR], v[SDTMagneticTheta], v[SDTMagneticPhi] = m.R, m.Theta, m.Phi

	switch {
	case body.Radius <= 0:
		v[SDTAngularRadius] = 0
	case body.Position.R <= body.Radius:
		v[SDTAngularRadius] = math.Pi
	default:
		v[SDTAngularRadius] = math.Asin(body.Radius / body.Position.R)
	}
	v[SDTEmission] = thermo.Emission
	if body.Phase == Plasma {
		v[SDTEmission] += body.Thermal.Ionization
	}
	return v
}

// updateThermal refreshes the phase-dependent fields after a phase was
// resolved.
func updateThermal(t Thermal, phase Phase, thermo Thermo) Thermal {
	base := thermo.Density[phase]
	switch phase {
	case Gas:
		ref := thermo.Thresholds.ReferencePressure
		t.Density = base * math.Max(0, 1+thermo.Compressibility*(t.Pressure-ref))
	default:
		t.Density = base
	}

	t.Ionization = 0
	if phase == Plasma {
		scale := thermo.IonizationEnergy
		if scale <= 0 {
			scale = thermo.Thresholds.Ionize()
		}
		excess := math.Max(0, thermo.Thresholds.Effective(t.Temperature, t.Pressure)-thermo.Thresholds.Ionize())
		t.Ionization = 1 - math.Exp(-excess/scale)
	}
	return t
}

// Settle fills the phase-dependent thermal fields and the SDT vector of a
// freshly loaded body.
func Settle(body Body, behavior Behavior, thermo Thermo) Body {
	body.Thermal = updateThermal(body.Thermal, body.Phase, thermo)
	body.SDT = Assemble(body, behavior, thermo)
	return body
}
