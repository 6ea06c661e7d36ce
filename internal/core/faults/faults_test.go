package faults

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	verr := &ValidationError{Source: "scene.yaml"}
	assert.NoError(t, verr.Err())

	verr.Add("objects[%d]: bad", 0).Add("materials[%d]: worse", 1)
	err := verr.Err()
	assert.EqualError(t, err, "invalid scene scene.yaml: objects[0]: bad; materials[1]: worse")
	assert.ErrorIs(t, err, ErrValidation)

	wrapped := &ValidationError{Cause: io.ErrUnexpectedEOF}
	assert.EqualError(t, wrapped, "invalid scene: unexpected EOF")
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, wrapped, ErrValidation)
}

func TestNumericError(t *testing.T) {
	cause := errors.New("r is zero")
	err := error(&NumericError{ObjectID: "a", Stage: "integration", Tick: 7, Cause: cause})
	assert.EqualError(t, err, `numeric failure in integration for object "a" at tick 7: r is zero`)
	assert.ErrorIs(t, err, ErrNumeric)
	assert.ErrorIs(t, err, cause)

	var nerr *NumericError
	assert.True(t, errors.As(err, &nerr))
	assert.Equal(t, "a", nerr.ObjectID)
}

func TestAgentFailures(t *testing.T) {
	err := error(&AgentFailure{AgentID: "physics-1", Kind: "physics", Attempt: 2, Cause: ErrDispatchTimeout})
	assert.EqualError(t, err, "agent physics-1 (physics) failed on restart attempt 2: agent dispatch timed out")
	assert.ErrorIs(t, err, ErrAgentFailure)
	assert.ErrorIs(t, err, ErrDispatchTimeout)

	comm := error(&CommunicationFailure{AgentID: "physics-1", Missed: 3, LastSeen: time.Unix(0, 0).UTC()})
	assert.ErrorIs(t, comm, ErrCommunication)
	assert.Contains(t, comm.Error(), "missed 3 consecutive heartbeats")
}

func TestPerformanceDegradation(t *testing.T) {
	err := error(&PerformanceDegradation{FPS: 22.5, Threshold: 30, Window: 2 * time.Second})
	assert.EqualError(t, err, "fps 22.5 below 30.0 for 2s")
	assert.ErrorIs(t, err, ErrPerformance)
}
