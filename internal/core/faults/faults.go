// Package faults defines the error kinds shared across the engine. None of
// them is allowed to stop the tick loop; each names the policy that handles it.
package faults

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNumeric         = errors.New("numeric failure")
	ErrAgentFailure    = errors.New("agent failure")
	ErrCommunication   = errors.New("communication failure")
	ErrPerformance     = errors.New("performance degradation")
	ErrAgentExcluded   = errors.New("agent capability excluded")
	ErrDispatchTimeout = errors.New("agent dispatch timed out")
)

// ValidationError rejects a whole scene at load time.
type ValidationError struct {
	Source string
	Issues []string
	Cause  error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid scene")
	if e.Source != "" {
		b.WriteString(" ")
		b.WriteString(e.Source)
	}
	if len(e.Issues) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Issues, "; "))
	} else if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrValidation, e.Cause}
	}
	return []error{ErrValidation}
}

// Add records one issue; it returns e so calls can be chained.
func (e *ValidationError) Add(format string, args ...any) *ValidationError {
	e.Issues = append(e.Issues, fmt.Sprintf(format, args...))
	return e
}

// Err returns nil when no issue was recorded.
func (e *ValidationError) Err() error {
	if len(e.Issues) == 0 && e.Cause == nil {
		return nil
	}
	return e
}

// NumericError marks one object as skipped for one tick.
type NumericError struct {
	ObjectID string
	Stage    string
	Tick     uint64
	Cause    error
}

func (e *NumericError) Error() string {
	msg := fmt.Sprintf("numeric failure in %s for object %q at tick %d", e.Stage, e.ObjectID, e.Tick)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *NumericError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrNumeric, e.Cause}
	}
	return []error{ErrNumeric}
}

// AgentFailure is handled by the scheduler's restart/exclude policy.
type AgentFailure struct {
	AgentID string
	Kind    string
	Attempt int
	Cause   error
}

func (e *AgentFailure) Error() string {
	msg := fmt.Sprintf("agent %s (%s) failed", e.AgentID, e.Kind)
	if e.Attempt > 0 {
		msg += fmt.Sprintf(" on restart attempt %d", e.Attempt)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AgentFailure) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrAgentFailure, e.Cause}
	}
	return []error{ErrAgentFailure}
}

// CommunicationFailure is raised when an agent misses its heartbeats.
type CommunicationFailure struct {
	AgentID  string
	Missed   int
	LastSeen time.Time
}

func (e *CommunicationFailure) Error() string {
	return fmt.Sprintf("agent %s missed %d consecutive heartbeats (last seen %s)",
		e.AgentID, e.Missed, e.LastSeen.Format(time.RFC3339Nano))
}

func (e *CommunicationFailure) Unwrap() error { return ErrCommunication }

// PerformanceDegradation is a soft signal for the runtime optimizer.
type PerformanceDegradation struct {
	FPS       float64
	Threshold float64
	Window    time.Duration
}

func (e *PerformanceDegradation) Error() string {
	return fmt.Sprintf("fps %.1f below %.1f for %s", e.FPS, e.Threshold, e.Window)
}

func (e *PerformanceDegradation) Unwrap() error { return ErrPerformance }
