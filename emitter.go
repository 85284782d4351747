package nebula

import (
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
)

// SpawnShape selects the emission surface.
type SpawnShape int

const (
	SpawnPoint SpawnShape = iota
	SpawnSphere
	SpawnCube
)

// EmitParams configures one emission dispatch. Immutable for its duration.
type EmitParams struct {
	Count    uint32
	Shape    SpawnShape
	Origin   mgl32.Vec3
	Radius   float32 // sphere radius / cube half extent
	Lifetime float32 // total lifespan assigned to each spawn
	Seed     uint32  // frame index or elapsed-time derived
}

// Emitter appends newly spawned particles into the current buffer at slots
// reserved through the store's atomic counter.
type Emitter struct {
	cfg Config
}

func NewEmitter(cfg Config) *Emitter {
	cfg.applyDefaults()
	return &Emitter{cfg: cfg}
}

// Emit spawns up to p.Count particles into dst. Each lane independently
// claims a slot; claims past capacity are dropped. Returns the number of
// particles actually written.
//
// The spawned state depends only on (write index, seed), never on lane
// scheduling, so replays with the same seed reproduce the same particles
// bit for bit.
func (e *Emitter) Emit(store *Store, dst []Particle, p EmitParams) int {
	var written atomic.Int64
	forLanes(e.cfg.Workers, int(p.Count), func(i int) {
		idx, ok := store.Claim()
		if !ok {
			return
		}
		dst[idx] = e.spawn(uint32(idx), p)
		written.Add(1)
	})
	return int(written.Load())
}

// spawn builds the initial particle state for a claimed slot.
func (e *Emitter) spawn(index uint32, p EmitParams) Particle {
	rs := newRandState(index, p.Seed)

	pos := samplePosition(&rs, p)
	vel := e.orbitalVelocity(pos, p.Origin)

	return Particle{
		Position: pos,
		Velocity: vel,
		Mass:     1,
		Age:      0,
		Lifetime: p.Lifetime,
	}
}

// samplePosition draws a spawn position on the configured shape. The draw
// order (two uniforms for sphere, three for cube) is part of the
// reproducibility contract with the WGSL kernel.
func samplePosition(rs *randState, p EmitParams) mgl32.Vec3 {
	switch p.Shape {
	case SpawnSphere:
		// Inverse-transform sampling: cos(theta) uniform in [-1, 1),
		// phi uniform in [0, 2pi). Uniform over the sphere surface.
		u := rs.nextFloat()
		v := rs.nextFloat()
		cosTheta := 1 - 2*u
		sinTheta := float32(math.Sqrt(float64(1 - cosTheta*cosTheta)))
		phi := 2 * float32(math.Pi) * v
		dir := mgl32.Vec3{
			sinTheta * float32(math.Cos(float64(phi))),
			cosTheta,
			sinTheta * float32(math.Sin(float64(phi))),
		}
		return p.Origin.Add(dir.Mul(p.Radius))

	case SpawnCube:
		// Random face, then two uniforms for the face-local coordinates.
		face := int(rs.nextFloat() * 6)
		if face > 5 {
			face = 5
		}
		a := 2*rs.nextFloat() - 1
		b := 2*rs.nextFloat() - 1
		h := p.Radius
		var local mgl32.Vec3
		switch face {
		case 0:
			local = mgl32.Vec3{h, a * h, b * h}
		case 1:
			local = mgl32.Vec3{-h, a * h, b * h}
		case 2:
			local = mgl32.Vec3{a * h, h, b * h}
		case 3:
			local = mgl32.Vec3{a * h, -h, b * h}
		case 4:
			local = mgl32.Vec3{a * h, b * h, h}
		default:
			local = mgl32.Vec3{a * h, b * h, -h}
		}
		return p.Origin.Add(local)

	default: // SpawnPoint
		return p.Origin
	}
}

// orbitalVelocity gives the spawn an initial tangential speed sqrt(G / r)
// around the origin, the circular-orbit speed for an inverse-square field of
// strength G. The tangent comes from crossing the radial direction with the
// world up axis; when the two are near parallel the cross product collapses
// and the fallback axis is used instead.
func (e *Emitter) orbitalVelocity(pos, origin mgl32.Vec3) mgl32.Vec3 {
	radial := pos.Sub(origin)
	r := radial.Len()
	if r < 1e-6 {
		// Point emission: no radius, no orbit.
		return mgl32.Vec3{}
	}
	radialDir := radial.Mul(1 / r)

	tangent := radialDir.Cross(e.cfg.WorldUp)
	if tangent.Len() < 1e-4 {
		tangent = radialDir.Cross(mgl32.Vec3{1, 0, 0})
	}
	tangent = tangent.Normalize()

	speed := float32(math.Sqrt(float64(e.cfg.G / r)))
	return tangent.Mul(speed)
}
