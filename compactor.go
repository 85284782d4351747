package nebula

// Compactor stream-compacts the integrated buffer into a survivors-only
// contiguous layout. Particles past end of life are simply never copied;
// absence from the output IS deletion. Survivor order is unspecified and may
// differ between runs; nothing downstream may depend on it.
type Compactor struct {
	cfg Config
}

func NewCompactor(cfg Config) *Compactor {
	cfg.applyDefaults()
	return &Compactor{cfg: cfg}
}

// Compact scans the full arena extent of src (not only claimed slots: dead
// and never-claimed slots must be skipped too) and copies live particles into
// destination slots claimed through the store counter. The caller must reset
// the counter to 0 beforehand; the counter value after the pass is the
// authoritative live count for rendering and for the next frame's emission.
//
// dst is cleared first so that its tail beyond the new live count holds only
// dead (zero) particles. That keeps the full-extent scan sound on the next
// frame: a stale slot can never look live.
func (c *Compactor) Compact(store *Store, src, dst []Particle) int {
	clearParticles(dst)
	forLanes(c.cfg.Workers, len(src), func(i int) {
		if !src[i].Live() {
			return
		}
		idx, ok := store.Claim()
		if !ok {
			// Overflow policy identical to the Emitter: drop.
			return
		}
		dst[idx] = src[i]
	})
	return store.LiveCount()
}
