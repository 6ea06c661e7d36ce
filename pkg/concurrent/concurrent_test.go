package concurrent

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEachVisitsEveryIndex(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		seen := make([]int, 100)
		require.NoError(t, Each(context.Background(), len(seen), parallel, func(i int) { seen[i]++ }))
		for i, n := range seen {
			assert.Equal(t, 1, n, "index %d", i)
		}
	}
}

func TestEachStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	err := Each(ctx, 10, false, func(int) { calls.Add(1) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())

	err = Each(ctx, 10, true, func(int) { calls.Add(1) })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAllWaitsForEveryAction(t *testing.T) {
	var n atomic.Int32
	actions := make([]func(context.Context), 6)
	for i := range actions {
		actions[i] = func(context.Context) { n.Add(1) }
	}
	require.NoError(t, All(context.Background(), actions...))
	assert.Equal(t, int32(6), n.Load())
}
