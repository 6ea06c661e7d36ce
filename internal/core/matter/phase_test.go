package matter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waterThresholds() Thresholds {
	return Thresholds{
		Up:                [PhaseCount - 1]float64{273.15, 373.15, 3000},
		Hysteresis:        5,
		ReferencePressure: 101325,
	}
}

func TestResolvePhaseRecordsEveryStep(t *testing.T) {
	th := waterThresholds()

	phase, transitions := ResolvePhase(Solid, 4000, 101325, th, AllPhases)
	assert.Equal(t, Plasma, phase)
	require.Len(t, transitions, 3)
	assert.Equal(t, Transition{From: Solid, To: Liquid, Temperature: 4000, Pressure: 101325}, transitions[0])
	assert.Equal(t, Liquid, transitions[1].From)
	assert.Equal(t, Gas, transitions[1].To)
	assert.Equal(t, Plasma, transitions[2].To)

	phase, transitions = ResolvePhase(Plasma, 100, 101325, th, AllPhases)
	assert.Equal(t, Solid, phase)
	assert.Len(t, transitions, 3)
	assert.Equal(t, Gas, transitions[0].To)
}

func TestResolvePhaseHysteresis(t *testing.T) {
	th := waterThresholds()

	phase, transitions := ResolvePhase(Liquid, 270, 101325, th, AllPhases)
	assert.Equal(t, Liquid, phase, "inside the hysteresis band the phase holds")
	assert.Empty(t, transitions)

	phase, _ = ResolvePhase(Liquid, 260, 101325, th, AllPhases)
	assert.Equal(t, Solid, phase)

	phase, _ = ResolvePhase(Solid, 273.15, 101325, th, AllPhases)
	assert.Equal(t, Liquid, phase)
}

func TestResolvePhasePressureShift(t *testing.T) {
	th := waterThresholds()
	th.PressureShift = 1e-3

	assert.InDelta(t, 275, th.Effective(265, 101325+10000), 1e-9)
	phase, _ := ResolvePhase(Solid, 265, 101325+10000, th, AllPhases)
	assert.Equal(t, Liquid, phase)

	phase, _ = ResolvePhase(Solid, 265, 101325, th, AllPhases)
	assert.Equal(t, Solid, phase)
}

func TestResolvePhaseSkipsDisabledRestingPhase(t *testing.T) {
	th := waterThresholds()

	noPlasma := NewPhaseSet(Solid, Liquid, Gas)
	phase, transitions := ResolvePhase(Solid, 5000, 101325, th, noPlasma)
	assert.Equal(t, Gas, phase)
	assert.Len(t, transitions, 2)

	noLiquid := NewPhaseSet(Solid, Gas, Plasma)
	phase, transitions = ResolvePhase(Solid, 300, 101325, th, noLiquid)
	assert.Equal(t, Solid, phase)
	assert.Empty(t, transitions)

	// Passing through a disabled phase on the way is still recorded.
	phase, transitions = ResolvePhase(Solid, 400, 101325, th, noLiquid)
	assert.Equal(t, Gas, phase)
	require.Len(t, transitions, 2)
	assert.Equal(t, Liquid, transitions[0].To)
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, waterThresholds().Validate())

	assert.ErrorIs(t, Thresholds{}.Validate(), ErrThresholds)

	bad := waterThresholds()
	bad.Up[2] = 300
	assert.ErrorIs(t, bad.Validate(), ErrThresholds)

	bad = waterThresholds()
	bad.Hysteresis = -1
	assert.ErrorIs(t, bad.Validate(), ErrThresholds)
}

func TestPhaseText(t *testing.T) {
	var p Phase
	require.NoError(t, p.UnmarshalText([]byte("Plasma")))
	assert.Equal(t, Plasma, p)
	text, err := Gas.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "gas", string(text))
	assert.Error(t, p.UnmarshalText([]byte("goo")))

	set, err := ParsePhaseSet([]string{"solid", "gas"})
	require.NoError(t, err)
	assert.True(t, set.Has(Gas))
	assert.False(t, set.Has(Liquid))
	assert.Equal(t, "{solid,gas}", set.String())

	all, err := ParsePhaseSet(nil)
	require.NoError(t, err)
	assert.Equal(t, AllPhases, all)
}
