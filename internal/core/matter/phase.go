package matter

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Phase is a matter state. The numeric order is the transition order:
// every change moves exactly one step along solid ↔ liquid ↔ gas ↔ plasma.
type Phase uint8

const (
	Solid Phase = iota
	Liquid
	Gas
	Plasma

	PhaseCount = 4
)

var phaseNames = [PhaseCount]string{"solid", "liquid", "gas", "plasma"}

func (p Phase) String() string {
	if p < PhaseCount {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

func (p Phase) Valid() bool { return p < PhaseCount }

// ParsePhase accepts the lowercase phase names.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown matter state %q", s)
}

func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid matter state %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PhaseSet is a bit set of enabled phases.
type PhaseSet uint8

const AllPhases PhaseSet = 1<<PhaseCount - 1

func NewPhaseSet(phases ...Phase) PhaseSet {
	var s PhaseSet
	for _, p := range phases {
		s |= 1 << p
	}
	return s
}

// ParsePhaseSet builds a set from phase names. An empty list means all phases.
func ParsePhaseSet(names []string) (PhaseSet, error) {
	if len(names) == 0 {
		return AllPhases, nil
	}
	var s PhaseSet
	for _, name := range names {
		p, err := ParsePhase(name)
		if err != nil {
			return 0, err
		}
		s |= 1 << p
	}
	return s, nil
}

func (s PhaseSet) Has(p Phase) bool { return p.Valid() && s&(1<<p) != 0 }

func (s PhaseSet) Phases() []Phase {
	out := make([]Phase, 0, PhaseCount)
	for p := Solid; p < PhaseCount; p++ {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

func (s PhaseSet) String() string {
	names := make([]string, 0, PhaseCount)
	for _, p := range s.Phases() {
		names = append(names, p.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

var ErrThresholds = errors.New("matter: invalid phase thresholds")

// Thresholds is the per-material transition table. Temperatures are in
// kelvin and pressures in pascal. Up[i] is the effective temperature at which
// phase i turns into phase i+1; the reverse change needs the effective
// temperature to fall below Up[i] − Hysteresis.
type Thresholds struct {
	Up                [PhaseCount - 1]float64
	Hysteresis        float64
	ReferencePressure float64
	// PressureShift is k in T_eff = T + k·(P − P_ref), in K/Pa.
	PressureShift float64
}

func (t Thresholds) Melt() float64   { return t.Up[Solid] }
func (t Thresholds) Boil() float64   { return t.Up[Liquid] }
func (t Thresholds) Ionize() float64 { return t.Up[Gas] }

func (t Thresholds) Validate() error {
	var errs []error
	for i, v := range t.Up {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s→%s threshold %g must be a positive temperature",
				ErrThresholds, Phase(i), Phase(i+1), v))
		}
		if i > 0 && v <= t.Up[i-1] {
			errs = append(errs, fmt.Errorf("%w: %s→%s threshold %g must exceed %g",
				ErrThresholds, Phase(i), Phase(i+1), v, t.Up[i-1]))
		}
	}
	if math.IsNaN(t.Hysteresis) || t.Hysteresis < 0 {
		errs = append(errs, fmt.Errorf("%w: hysteresis %g must be non-negative", ErrThresholds, t.Hysteresis))
	}
	if math.IsNaN(t.ReferencePressure) || t.ReferencePressure < 0 {
		errs = append(errs, fmt.Errorf("%w: reference pressure %g must be non-negative", ErrThresholds, t.ReferencePressure))
	}
	if math.IsNaN(t.PressureShift) || math.IsInf(t.PressureShift, 0) {
		errs = append(errs, fmt.Errorf("%w: pressure shift must be finite", ErrThresholds))
	}
	return errors.Join(errs...)
}

// Effective returns the pressure-shifted temperature compared against Up.
func (t Thresholds) Effective(temperature, pressure float64) float64 {
	return temperature + t.PressureShift*(pressure-t.ReferencePressure)
}

// Transition is one recorded phase change.
type Transition struct {
	From        Phase
	To          Phase
	Temperature float64
	Pressure    float64
}

// ResolvePhase walks from current toward the phase the effective temperature
// calls for, one step at a time, and returns the resting phase together with
// every step taken. Phases missing from enabled are never a resting phase:
// when the walk would stop on one it backs off toward where it started.
func ResolvePhase(current Phase, temperature, pressure float64, th Thresholds, enabled PhaseSet) (Phase, []Transition) {
	if enabled == 0 {
		enabled = AllPhases
	}
	eff := th.Effective(temperature, pressure)

	target := current
	for target < Plasma && eff >= th.Up[target] {
		target++
	}
	if target == current {
		for target > Solid && eff < th.Up[target-1]-th.Hysteresis {
			target--
		}
	}

	rest := target
	for rest != current && !enabled.Has(rest) {
		if rest > current {
			rest--
		} else {
			rest++
		}
	}
	if rest == current {
		return current, nil
	}

	var transitions []Transition
	for p := current; p != rest; {
		next := p + 1
		if rest < current {
			next = p - 1
		}
		transitions = append(transitions, Transition{From: p, To: next, Temperature: temperature, Pressure: pressure})
		p = next
	}
	return rest, transitions
}
