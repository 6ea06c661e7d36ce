// Package scene loads the declarative scene description and compiles it into
// the typed values the simulation core works with. A scene that fails any
// check is rejected whole with a *faults.ValidationError.
package scene

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/zeusync/zeusphere/internal/core/faults"
	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/spherical"
)

var errMissingThresholds = errors.New("phase thresholds are mandatory")

// Material is the surface and thermodynamic description shared by objects.
type Material struct {
	ID        string
	Albedo    [4]float64
	Metallic  float64
	Roughness float64
	Emission  [3]float64
	Thermo    matter.Thermo
}

// Object is one compiled scene object.
type Object struct {
	Body      matter.Body
	Material  string
	Behavior  matter.Behavior
	Animation Animation
}

type Light struct {
	Name      string
	Direction spherical.Direction
	Intensity float64
	Spread    float64
}

type Environment struct {
	Ambient float64
	Lights  []Light
}

// Optimization holds the scene's optimization directives. Zero values mean
// "use the engine configuration".
type Optimization struct {
	Level         int
	Adaptive      *bool
	TargetFPS     float64
	CullThreshold float64
	Phases        matter.PhaseSet
}

// Scene is a compiled, validated scene. Objects are sorted by ID.
type Scene struct {
	Name         string
	Seed         uint64
	Environment  Environment
	Materials    map[string]Material
	Objects      []Object
	Optimization Optimization
}

// Material returns the material of o.
func (s *Scene) Material(o Object) Material {
	return s.Materials[o.Material]
}

// Compile runs the semantic checks the schema cannot express and builds the
// typed scene. Every problem found is reported, not only the first.
func Compile(doc *Document, source string) (*Scene, error) {
	verr := &faults.ValidationError{Source: source}
	sc := &Scene{
		Name:      doc.Name,
		Seed:      doc.Seed,
		Materials: make(map[string]Material, len(doc.Materials)),
	}

	sc.Environment = compileEnvironment(doc.Environment, verr)

	for i, md := range doc.Materials {
		m, err := compileMaterial(md)
		if err != nil {
			verr.Add("materials[%d] %q: %v", i, md.ID, err)
			continue
		}
		if _, dup := sc.Materials[m.ID]; dup {
			verr.Add("materials[%d]: duplicate material id %q", i, m.ID)
			continue
		}
		sc.Materials[m.ID] = m
	}

	if doc.Optimization != nil {
		sc.Optimization = compileOptimization(*doc.Optimization, verr)
	}

	ids := make(map[string]bool, len(doc.Objects))
	for i, od := range doc.Objects {
		if ids[od.ID] {
			verr.Add("objects[%d]: duplicate object id %q", i, od.ID)
			continue
		}
		ids[od.ID] = true

		obj, err := compileObject(od)
		if err != nil {
			verr.Add("objects[%d] %q: %v", i, od.ID, err)
			continue
		}
		if _, ok := sc.Materials[obj.Material]; !ok {
			verr.Add("objects[%d] %q: unknown material %q", i, od.ID, obj.Material)
			continue
		}
		if sc.Optimization.Phases != 0 && !sc.Optimization.Phases.Has(obj.Body.Phase) {
			verr.Add("objects[%d] %q: phase %s is not enabled", i, od.ID, obj.Body.Phase)
			continue
		}
		sc.Objects = append(sc.Objects, obj)
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}
	sort.Slice(sc.Objects, func(i, j int) bool { return sc.Objects[i].Body.ID < sc.Objects[j].Body.ID })
	for i := range sc.Objects {
		o := &sc.Objects[i]
		thermo := sc.Materials[o.Material].Thermo
		if o.Body.Thermal.Pressure == 0 {
			o.Body.Thermal.Pressure = thermo.Thresholds.ReferencePressure
		}
		o.Body = matter.Settle(o.Body, o.Behavior, thermo)
	}
	return sc, nil
}

func compileEnvironment(doc EnvironmentDoc, verr *faults.ValidationError) Environment {
	env := Environment{Ambient: doc.Ambient}
	if math.IsNaN(doc.Ambient) || doc.Ambient < 0 {
		verr.Add("environment: ambient %g must be non-negative", doc.Ambient)
	}
	for i, ld := range doc.Lights {
		if ld.Intensity < 0 || math.IsNaN(ld.Intensity) {
			verr.Add("environment.lights[%d]: intensity %g must be non-negative", i, ld.Intensity)
			continue
		}
		env.Lights = append(env.Lights, Light{
			Name:      ld.Name,
			Direction: spherical.NewDirection(ld.Direction.Theta, ld.Direction.Phi),
			Intensity: ld.Intensity,
			Spread:    ld.Spread,
		})
	}
	return env
}

func compileMaterial(doc MaterialDoc) (Material, error) {
	m := Material{ID: doc.ID, Metallic: doc.Metallic, Roughness: doc.Roughness}
	if doc.ID == "" {
		return m, errors.New("missing id")
	}
	if len(doc.Albedo) != 4 {
		return m, fmt.Errorf("albedo needs 4 components, got %d", len(doc.Albedo))
	}
	copy(m.Albedo[:], doc.Albedo)
	if len(doc.Emission) != 0 && len(doc.Emission) != 3 {
		return m, fmt.Errorf("emission needs 3 components, got %d", len(doc.Emission))
	}
	copy(m.Emission[:], doc.Emission)

	if doc.Thermo == nil || doc.Thermo.Thresholds == nil {
		return m, errMissingThresholds
	}
	td := doc.Thermo
	m.Thermo = matter.Thermo{
		Thresholds: matter.Thresholds{
			Up:                [matter.PhaseCount - 1]float64{td.Thresholds.Melt, td.Thresholds.Boil, td.Thresholds.Ionize},
			Hysteresis:        td.Thresholds.Hysteresis,
			ReferencePressure: td.Thresholds.ReferencePressure,
			PressureShift:     td.Thresholds.PressureShift,
		},
		Viscosity:        td.Viscosity,
		SurfaceTension:   td.SurfaceTension,
		Compressibility:  td.Compressibility,
		IonizationEnergy: td.IonizationEnergy,
		Conductivity:     td.Conductivity,
		Emission:         math.Max(m.Emission[0], math.Max(m.Emission[1], m.Emission[2])),
	}
	for name, d := range td.Density {
		p, err := matter.ParsePhase(name)
		if err != nil {
			return m, fmt.Errorf("density: %w", err)
		}
		m.Thermo.Density[p] = d
	}
	if err := m.Thermo.Validate(); err != nil {
		return m, err
	}
	return m, nil
}

func compileObject(doc ObjectDoc) (Object, error) {
	phase, err := matter.ParsePhase(doc.Phase)
	if err != nil {
		return Object{}, err
	}
	pos := spherical.NewPoint(doc.Position.R, doc.Position.Theta, doc.Position.Phi)
	if err := pos.Validate(); err != nil {
		return Object{}, fmt.Errorf("position: %w", err)
	}
	if pos.IsOrigin() {
		return Object{}, fmt.Errorf("position: %w", spherical.ErrDegenerate)
	}
	if math.IsNaN(doc.Radius) || doc.Radius < 0 {
		return Object{}, fmt.Errorf("radius %g must be non-negative", doc.Radius)
	}

	behavior, err := compileBehavior(doc.Behavior)
	if err != nil {
		return Object{}, err
	}
	anim, err := compileAnimation(doc.Behavior.Animation)
	if err != nil {
		return Object{}, fmt.Errorf("animation: %w", err)
	}

	return Object{
		Body: matter.Body{
			ID:              doc.ID,
			Position:        pos,
			Velocity:        vector(doc.Velocity),
			AngularVelocity: vector(doc.AngularVelocity),
			Radius:          doc.Radius,
			Mass:            doc.Mass,
			Charge:          doc.Charge,
			Phase:           phase,
			Thermal: matter.Thermal{
				Temperature: doc.Temperature,
				Pressure:    doc.Pressure,
			},
		},
		Material:  doc.Material,
		Behavior:  behavior,
		Animation: anim,
	}, nil
}

func compileBehavior(doc BehaviorDoc) (matter.Behavior, error) {
	var b matter.Behavior
	for i, fd := range doc.Forces {
		kind, err := matter.ParseForceKind(fd.Kind)
		if err != nil {
			return b, fmt.Errorf("forces[%d]: %w", i, err)
		}
		f := matter.Force{
			Kind:         kind,
			Magnitude:    fd.Magnitude,
			HeatRate:     fd.HeatRate,
			PressureRate: fd.PressureRate,
		}
		if fd.Electric != nil {
			f.Electric = vector(*fd.Electric)
		}
		if fd.Magnetic != nil {
			f.Magnetic = vector(*fd.Magnetic)
		}
		b.Forces = append(b.Forces, f)
	}
	for i, cd := range doc.Constraints {
		kind, err := matter.ParseConstraintKind(cd.Kind)
		if err != nil {
			return b, fmt.Errorf("constraints[%d]: %w", i, err)
		}
		c := matter.Constraint{Kind: kind, Radius: cd.Radius, ThetaMin: cd.ThetaMin, ThetaMax: cd.ThetaMax}
		switch kind {
		case matter.ConstraintOrbit:
			c.Pole = spherical.NorthPole
			if cd.Pole != nil {
				c.Pole = spherical.NewDirection(cd.Pole.Theta, cd.Pole.Phi)
			}
		case matter.ConstraintPolarBand:
			if cd.ThetaMax == 0 {
				c.ThetaMax = math.Pi
			}
		}
		b.Constraints = append(b.Constraints, c)
	}
	return b, b.Validate()
}

func compileOptimization(doc OptimizationDoc, verr *faults.ValidationError) Optimization {
	opt := Optimization{
		Level:         doc.Level,
		Adaptive:      doc.Adaptive,
		TargetFPS:     doc.TargetFPS,
		CullThreshold: doc.CullThreshold,
	}
	if doc.Level != 0 && (doc.Level < 1 || doc.Level > 5) {
		verr.Add("optimization: level %d outside 1..5", doc.Level)
	}
	if len(doc.Phases) > 0 {
		set, err := matter.ParsePhaseSet(doc.Phases)
		if err != nil {
			verr.Add("optimization.phases: %v", err)
		}
		opt.Phases = set
	}
	return opt
}

func vector(p PointDoc) spherical.Vector {
	return spherical.Vector{R: p.R, Theta: p.Theta, Phi: p.Phi}
}
