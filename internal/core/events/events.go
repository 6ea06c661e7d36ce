// Package events is the engine's in-process diagnostics bus. The scheduler,
// optimizer and engine publish what happened at each tick; subscribers
// (logging, tests, the CLI) observe it without taking part in the tick.
package events

import "time"

// Event types published by the engine.
const (
	TypeTickCompleted      = "tick.completed"
	TypeAgentState         = "agent.state"
	TypeCapabilityExcluded = "agent.capability_excluded"
	TypeWorkRedistributed  = "agent.work_redistributed"
	TypeObjectSkipped      = "object.skipped"
	TypePhaseChanged       = "object.phase_changed"
	TypeLevelChanged       = "optimizer.level_changed"
	TypeCheckpoint         = "checkpoint.taken"

	// Any subscribes to every type.
	Any = "*"
)

// Event is an immutable notification. Data holds one of the payload types
// below, matching Type.
type Event struct {
	Type   string
	Source string
	Tick   uint64
	Time   time.Time
	Data   any
}

func New(typ, source string, tick uint64, data any) Event {
	return Event{Type: typ, Source: source, Tick: tick, Time: time.Now(), Data: data}
}

type TickCompleted struct {
	Duration time.Duration
	Visible  int
	Skipped  int
	Level    int
}

type AgentState struct {
	AgentID string
	Kind    string
	From    string
	To      string
	Reason  string
}

type CapabilityExcluded struct {
	AgentID    string
	Capability string
	Attempts   int
}

type WorkRedistributed struct {
	From    string
	To      string
	Objects int
}

type ObjectSkipped struct {
	ObjectID string
	Stage    string
	Err      error
}

type PhaseChanged struct {
	ObjectID string
	From     string
	To       string
}

type LevelChanged struct {
	From   int
	To     int
	FPS    float64
	Reason string
}

type Checkpoint struct {
	Objects int
	Bytes   int
}
