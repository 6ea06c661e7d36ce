package agents

import (
	"fmt"
	"strings"
)

// Kind is the closed set of agent variants. Each kind carries a fixed
// capability set; nothing is discovered at runtime.
type Kind uint8

const (
	KindRender Kind = iota
	KindPhysics
	KindMaterial
	KindAnimation
	KindLighting
	KindPerfMonitor

	kindCount
)

var kindNames = [kindCount]string{"render", "physics", "material", "animation", "lighting", "perfmonitor"}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) Valid() bool { return k < kindCount }

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown agent kind %q", s)
}

// Kinds lists every kind in tick order.
func Kinds() []Kind {
	return []Kind{KindPhysics, KindAnimation, KindMaterial, KindLighting, KindRender, KindPerfMonitor}
}

// Capability is one unit of work an agent can take over.
type Capability uint16

const (
	CapSequencing Capability = 1 << iota
	CapProjection
	CapIntegration
	CapPhaseResolution
	CapMaterialResponse
	CapKeyframes
	CapIllumination
	CapMetrics
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapSequencing, "sequencing"},
	{CapProjection, "projection"},
	{CapIntegration, "integration"},
	{CapPhaseResolution, "phase_resolution"},
	{CapMaterialResponse, "material_response"},
	{CapKeyframes, "keyframes"},
	{CapIllumination, "illumination"},
	{CapMetrics, "metrics"},
}

func (c Capability) String() string {
	var parts []string
	for _, n := range capabilityNames {
		if c&n.c != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}

// Capabilities returns the fixed capability set of k.
func (k Kind) Capabilities() Capability {
	switch k {
	case KindRender:
		return CapSequencing | CapProjection
	case KindPhysics:
		return CapIntegration | CapPhaseResolution
	case KindMaterial:
		return CapMaterialResponse
	case KindAnimation:
		return CapKeyframes
	case KindLighting:
		return CapIllumination
	case KindPerfMonitor:
		return CapMetrics
	default:
		return 0
	}
}

// PerObject reports whether the kind's work is partitioned by object.
func (k Kind) PerObject() bool {
	return k != KindPerfMonitor
}

// State is an agent's health state.
type State uint8

const (
	StateIdle State = iota
	StateActive
	StateDegraded
	StateFailed
	StateRestarting
	// StateExcluded is terminal: the restart budget ran out.
	StateExcluded
)

var stateNames = [...]string{"idle", "active", "degraded", "failed", "restarting", "excluded"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Live reports whether the agent takes work.
func (s State) Live() bool {
	return s == StateActive || s == StateDegraded
}

var transitions = map[State][]State{
	StateIdle:       {StateActive},
	StateActive:     {StateDegraded, StateFailed},
	StateDegraded:   {StateActive, StateFailed},
	StateFailed:     {StateRestarting, StateExcluded},
	StateRestarting: {StateActive, StateFailed},
}

// CanTransition reports whether from → to is a legal health transition.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
