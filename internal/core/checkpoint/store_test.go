package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/internal/core/spherical"
)

func bodies(tick uint64, n int) []matter.Body {
	out := make([]matter.Body, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, matter.Body{
			ID:       fmt.Sprintf("obj-%02d", i),
			Position: spherical.Point{R: 10 + float64(tick), Theta: 1, Phi: float64(i) * 0.1},
			Velocity: spherical.Vector{Phi: 0.5},
			Radius:   1,
			Mass:     2,
			Phase:    matter.Gas,
			Thermal:  matter.Thermal{Temperature: 400, Pressure: 101325},
		})
	}
	return out
}

func newStore(t *testing.T, capacity int) *Store {
	t.Helper()
	s, err := NewStore(capacity, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNewSortsBodies(t *testing.T) {
	cp := New(3, time.Unix(10, 0), bodies(3, 4))
	require.Equal(t, 4, cp.Len())
	assert.Equal(t, "obj-00", cp.Bodies[0].ID)
	b, ok := cp.Body("obj-02")
	require.True(t, ok)
	assert.Equal(t, 13.0, b.Position.R)
	_, ok = cp.Body("missing")
	assert.False(t, ok)
}

func TestStoreRingEvictsOldest(t *testing.T) {
	s := newStore(t, 3)
	_, ok := s.Latest()
	assert.False(t, ok)

	for tick := uint64(1); tick <= 5; tick++ {
		_, err := s.Save(New(tick, time.Unix(int64(tick), 0), bodies(tick, 2)))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.Len())

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(5), latest.Tick)

	cp, ok := s.At(4)
	require.True(t, ok)
	assert.Equal(t, uint64(4), cp.Tick)

	_, ok = s.At(2)
	assert.False(t, ok, "tick 2 has been evicted")

	cp, ok = s.At(100)
	require.True(t, ok)
	assert.Equal(t, uint64(5), cp.Tick)
}

func TestStoreRestore(t *testing.T) {
	s := newStore(t, 4)
	for tick := uint64(1); tick <= 3; tick++ {
		_, err := s.Save(New(tick, time.Unix(0, 0), bodies(tick, 3)))
		require.NoError(t, err)
	}

	state, at, ok := s.Restore(2, []string{"obj-01", "ghost"})
	require.True(t, ok)
	assert.Equal(t, uint64(2), at)
	require.Len(t, state, 1)
	assert.Equal(t, 12.0, state["obj-01"].Position.R)

	_, _, ok = s.Restore(0, []string{"obj-01"})
	assert.False(t, ok)
}

func TestStoreCompression(t *testing.T) {
	s := newStore(t, 8)
	plainCp := New(1, time.Unix(1, 0), bodies(1, 50))
	plain, err := s.Save(plainCp)
	require.NoError(t, err)

	s.SetCompression(true)
	assert.True(t, s.Compressed())
	want := New(2, time.Unix(2, 0), bodies(2, 50))
	packed, err := s.Save(want)
	require.NoError(t, err)
	assert.Less(t, packed, plain)
	assert.Equal(t, plain+packed, s.Bytes())

	got, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, want.Tick, got.Tick)
	assert.True(t, want.Time.Equal(got.Time))
	assert.Equal(t, want.Bodies, got.Bodies)

	old, ok := s.At(1)
	require.True(t, ok)
	assert.Equal(t, plainCp.Bodies, old.Bodies)
}

func TestNewStoreRejectsZeroCapacity(t *testing.T) {
	_, err := NewStore(0, log.NewNop())
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tick.ckpt")
	want := New(9, time.Unix(90, 0), bodies(9, 3))
	require.NoError(t, WriteFile(path, "solar", want))

	h, got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Header{Version: 1, Scene: "solar", Tick: 9, Objects: 3}, h)
	assert.Equal(t, want.Bodies, got.Bodies)
	assert.Equal(t, uint64(9), got.Tick)
}

func TestReadFileMissing(t *testing.T) {
	_, _, err := ReadFile(filepath.Join(t.TempDir(), "none"))
	assert.Error(t, err)
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestEncodeReportsWriteErrors(t *testing.T) {
	diskFull := errors.New("disk full")
	err := Encode(failingWriter{err: diskFull}, "solar", New(3, time.Unix(30, 0), bodies(3, 200)))
	assert.ErrorIs(t, err, diskFull)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, "solar", New(3, time.Unix(30, 0), bodies(3, 2))))
	assert.NotZero(t, buf.Len())
}
