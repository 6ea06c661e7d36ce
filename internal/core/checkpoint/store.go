// Package checkpoint keeps the scheduler's recent object snapshots. A
// recovering agent is resynchronized from the newest checkpoint taken
// before its failure.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unsafe"

	"github.com/klauspost/compress/zstd"

	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/pkg/generic"
)

const DefaultCapacity = 120

var ErrCapacity = errors.New("checkpoint: capacity must be positive")

// Checkpoint is the object table as it stood at the end of one tick.
type Checkpoint struct {
	Tick   uint64
	Time   time.Time
	Bodies []matter.Body
}

// New copies bodies into a checkpoint ordered by object ID.
func New(tick uint64, at time.Time, bodies []matter.Body) Checkpoint {
	cp := Checkpoint{Tick: tick, Time: at, Bodies: append([]matter.Body(nil), bodies...)}
	sort.Slice(cp.Bodies, func(i, j int) bool { return cp.Bodies[i].ID < cp.Bodies[j].ID })
	return cp
}

func (c Checkpoint) Len() int { return len(c.Bodies) }

// Body looks up one object by ID.
func (c Checkpoint) Body(id string) (matter.Body, bool) {
	i := sort.Search(len(c.Bodies), func(i int) bool { return c.Bodies[i].ID >= id })
	if i < len(c.Bodies) && c.Bodies[i].ID == id {
		return c.Bodies[i], true
	}
	return matter.Body{}, false
}

type entry struct {
	tick   uint64
	plain  *Checkpoint
	packed []byte
	size   int
}

// Store is a fixed-capacity ring of checkpoints. With compression on, new
// entries are kept gob-encoded and zstd-compressed.
type Store struct {
	mu       sync.RWMutex
	ring     []entry
	next     int
	count    int
	compress bool

	encoder *zstd.Encoder
	decoder *zstd.Decoder
	buffers *generic.Pool[*bytes.Buffer]
	logger  log.Log
}

func NewStore(capacity int, logger log.Log) (*Store, error) {
	if capacity <= 0 {
		return nil, ErrCapacity
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("checkpoint encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("checkpoint decoder: %w", err)
	}
	return &Store{
		ring:    make([]entry, capacity),
		encoder: enc,
		decoder: dec,
		buffers: generic.NewHotPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset, 2),
		logger:  logger.With(log.String("component", "checkpoint")),
	}, nil
}

// SetCompression switches the encoding of checkpoints saved from now on.
// Entries already stored keep their encoding.
func (s *Store) SetCompression(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.compress != on {
		s.logger.Debug("Checkpoint compression toggled", log.Bool("enabled", on))
	}
	s.compress = on
}

func (s *Store) Compressed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compress
}

// Save stores c, evicting the oldest entry when full, and returns the
// number of bytes the entry occupies.
func (s *Store) Save(c Checkpoint) (int, error) {
	s.mu.RLock()
	compress := s.compress
	s.mu.RUnlock()

	e := entry{tick: c.Tick}
	if compress {
		packed, err := s.pack(c)
		if err != nil {
			return 0, fmt.Errorf("checkpoint tick %d: %w", c.Tick, err)
		}
		e.packed, e.size = packed, len(packed)
	} else {
		e.plain, e.size = &c, plainSize(c)
	}

	s.mu.Lock()
	s.ring[s.next] = e
	s.next = (s.next + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
	s.mu.Unlock()
	return e.size, nil
}

// Latest returns the newest checkpoint.
func (s *Store) Latest() (Checkpoint, bool) {
	s.mu.RLock()
	if s.count == 0 {
		s.mu.RUnlock()
		return Checkpoint{}, false
	}
	e := s.ring[(s.next-1+len(s.ring))%len(s.ring)]
	s.mu.RUnlock()
	return s.load(e)
}

// At returns the newest checkpoint taken at or before tick.
func (s *Store) At(tick uint64) (Checkpoint, bool) {
	s.mu.RLock()
	var (
		found bool
		best  entry
	)
	for i := 0; i < s.count; i++ {
		e := s.ring[(s.next-1-i+2*len(s.ring))%len(s.ring)]
		if e.tick <= tick {
			best, found = e, true
			break
		}
	}
	s.mu.RUnlock()
	if !found {
		return Checkpoint{}, false
	}
	return s.load(best)
}

// Restore returns the state of each listed object in the newest checkpoint
// taken at or before tick. Objects absent from it are left out.
func (s *Store) Restore(tick uint64, ids []string) (map[string]matter.Body, uint64, bool) {
	cp, ok := s.At(tick)
	if !ok {
		return nil, 0, false
	}
	out := make(map[string]matter.Body, len(ids))
	for _, id := range ids {
		if b, ok := cp.Body(id); ok {
			out[id] = b
		}
	}
	return out, cp.Tick, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Bytes is the total size of the stored entries.
func (s *Store) Bytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for i := 0; i < s.count; i++ {
		total += s.ring[i].size
	}
	return total
}

func (s *Store) Close() {
	_ = s.encoder.Close()
	s.decoder.Close()
}

func (s *Store) pack(c Checkpoint) ([]byte, error) {
	buf := s.buffers.Get()
	defer s.buffers.Put(buf)
	if err := gob.NewEncoder(buf).Encode(&c); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return s.encoder.EncodeAll(buf.Bytes(), nil), nil
}

func (s *Store) load(e entry) (Checkpoint, bool) {
	if e.plain != nil {
		return *e.plain, true
	}
	raw, err := s.decoder.DecodeAll(e.packed, nil)
	if err != nil {
		s.logger.Error("Failed to decompress checkpoint", log.Tick(e.tick), log.Error(err))
		return Checkpoint{}, false
	}
	var c Checkpoint
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&c); err != nil {
		s.logger.Error("Failed to decode checkpoint", log.Tick(e.tick), log.Error(err))
		return Checkpoint{}, false
	}
	return c, true
}

func plainSize(c Checkpoint) int {
	n := int(unsafe.Sizeof(c)) + len(c.Bodies)*int(unsafe.Sizeof(matter.Body{}))
	for i := range c.Bodies {
		n += len(c.Bodies[i].ID)
	}
	return n
}
