package nebula

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Particle is the unit entity of the simulation. Lifetime is the total
// allotted lifespan assigned at spawn and never mutated afterwards; Age counts
// up from zero. A particle is live iff Age < Lifetime, so the zero value is
// dead, which is what makes full-extent compaction scans safe over cleared
// buffers.
type Particle struct {
	Position mgl32.Vec3
	Velocity mgl32.Vec3
	Mass     float32
	Age      float32
	Lifetime float32
}

// GPU-side layout (WGSL storage buffer, std430-style vec3 alignment):
//
//	struct Particle {
//	  position: vec3<f32>,  // offset 0
//	  mass: f32,            // offset 12
//	  velocity: vec3<f32>,  // offset 16
//	  age: f32,             // offset 28
//	  lifetime: f32,        // offset 32
//	}                       // stride 48 (12 bytes tail padding)
const ParticleStride = 48

// Live reports whether the particle is still within its lifespan.
func (p *Particle) Live() bool {
	return p.Age < p.Lifetime
}

// Encode writes the particle into buf using the GPU buffer layout.
// buf must hold at least ParticleStride bytes.
func (p *Particle) Encode(buf []byte) {
	putF32 := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	putF32(0, p.Position[0])
	putF32(4, p.Position[1])
	putF32(8, p.Position[2])
	putF32(12, p.Mass)
	putF32(16, p.Velocity[0])
	putF32(20, p.Velocity[1])
	putF32(24, p.Velocity[2])
	putF32(28, p.Age)
	putF32(32, p.Lifetime)
	putF32(36, 0)
	putF32(40, 0)
	putF32(44, 0)
}

// DecodeParticle reads a particle back from the GPU buffer layout.
func DecodeParticle(buf []byte) Particle {
	getF32 := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
	}
	return Particle{
		Position: mgl32.Vec3{getF32(0), getF32(4), getF32(8)},
		Mass:     getF32(12),
		Velocity: mgl32.Vec3{getF32(16), getF32(20), getF32(24)},
		Age:      getF32(28),
		Lifetime: getF32(32),
	}
}

// EncodeParticles packs a slice into the GPU layout for upload.
func EncodeParticles(particles []Particle) []byte {
	out := make([]byte, len(particles)*ParticleStride)
	for i := range particles {
		particles[i].Encode(out[i*ParticleStride:])
	}
	return out
}
