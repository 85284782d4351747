package nebula

import (
	"fmt"
	"sync/atomic"
)

// Store is the fixed-capacity particle arena: three equally sized buffers that
// rotate through the current / integrated / compacted roles, plus the single
// atomic live counter shared by the Emitter and the Compactor (never both in
// the same pass).
//
// The Store has no opinion about which buffer holds current data. Buffer roles
// are tracked by the orchestrator and handed to each stage as explicit
// (read, write) slices; see Pipeline.
type Store struct {
	capacity int
	buffers  [3][]Particle
	counter  atomic.Int64
}

func NewStore(capacity int) (*Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("store capacity must be positive, got %d", capacity)
	}
	s := &Store{capacity: capacity}
	for i := range s.buffers {
		s.buffers[i] = make([]Particle, capacity)
	}
	return s, nil
}

func (s *Store) Capacity() int { return s.capacity }

// Buffer returns one of the three physical buffers. Callers must not retain
// the slice across a frame boundary; roles rotate.
func (s *Store) Buffer(i int) []Particle { return s.buffers[i] }

// Claim atomically reserves the next slot index. The second return is false
// when the arena is full: the counter still advances (consumers clamp via
// LiveCount) but the index must not be written. This is the system's overflow
// policy: excess particles are silently dropped, never written out of bounds.
func (s *Store) Claim() (int, bool) {
	idx := s.counter.Add(1) - 1
	if idx >= int64(s.capacity) {
		return 0, false
	}
	return int(idx), true
}

// LiveCount is the counter value clamped to capacity. This is the value any
// consumer (draw calls, stage extents) must use; the raw counter may
// transiently overshoot under overflow pressure.
func (s *Store) LiveCount() int {
	n := s.counter.Load()
	if n > int64(s.capacity) {
		return s.capacity
	}
	if n < 0 {
		return 0
	}
	return int(n)
}

// RawCount exposes the unclamped counter, mostly for stats and tests.
func (s *Store) RawCount() int64 { return s.counter.Load() }

// ResetCounter sets the counter. The orchestrator calls this with 0 before a
// compaction pass; failing to do so is a fatal configuration error at the
// orchestrator level (the count grows monotonically until it saturates), not
// something the stages defend against.
func (s *Store) ResetCounter(n int) { s.counter.Store(int64(n)) }

// clearParticles zeroes a buffer. A zero particle has Age == Lifetime == 0 and
// is therefore dead, which keeps full-extent compaction scans from
// resurrecting stale slots.
func clearParticles(buf []Particle) {
	for i := range buf {
		buf[i] = Particle{}
	}
}
