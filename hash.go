package nebula

// Deterministic per-lane pseudo-random streams. Every emitted particle derives
// its stream purely from (write index, frame seed), so a spawn is
// bit-reproducible regardless of which physical lane claimed the slot or in
// which order the claims happened. The WGSL emit kernel implements the same
// functions; keep the two in sync.

// hashMix is a 32-bit avalanche hash (xor-shift, multiply, xor-shift).
func hashMix(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x7feb352d
	x ^= x >> 15
	x *= 0x846ca68b
	x ^= x >> 16
	return x
}

// randState is a pure sequential generator: each draw advances the state by
// re-hashing it. State is threaded explicitly, never shared between lanes.
type randState struct {
	state uint32
}

func newRandState(index, seed uint32) randState {
	return randState{state: hashMix(index*0x9e3779b9 ^ hashMix(seed))}
}

// nextFloat returns a float32 in [0, 1) and advances the state.
// Uses the top 24 bits so the value is exactly representable.
func (r *randState) nextFloat() float32 {
	r.state = hashMix(r.state)
	return float32(r.state>>8) * (1.0 / 16777216.0)
}
