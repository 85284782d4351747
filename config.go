package nebula

import (
	"runtime"

	"github.com/go-gl/mathgl/mgl32"
)

// Config carries the pipeline-wide constants. Per-frame values (delta time,
// spawn counts, force field) travel in the stage parameter structs instead.
type Config struct {
	// Capacity is the fixed arena size; it never changes at runtime.
	Capacity int

	// Workers sizes the CPU lane fan-out for the reference kernels.
	Workers int

	// G is the gravitational constant used for the initial orbital speed
	// sqrt(G / r) at emission.
	G float32

	// MinDistance floors the attractor distance before the inverse-square
	// divide, so a particle passing through the center never sees a
	// near-zero denominator.
	MinDistance float32

	// WorldUp is the primary reference axis for tangent and billboard basis
	// construction. When a direction is parallel to it the fallback axis
	// (+X) is used instead.
	WorldUp mgl32.Vec3

	// ParticleSize is the world-space half extent of a billboard quad.
	ParticleSize float32
}

func DefaultConfig() Config {
	return Config{
		Capacity:     65536,
		Workers:      runtime.NumCPU(),
		G:            10.0,
		MinDistance:  0.1,
		WorldUp:      mgl32.Vec3{0, 1, 0},
		ParticleSize: 0.05,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.G == 0 {
		c.G = d.G
	}
	if c.MinDistance <= 0 {
		c.MinDistance = d.MinDistance
	}
	if c.WorldUp.Len() == 0 {
		c.WorldUp = d.WorldUp
	}
	if c.ParticleSize <= 0 {
		c.ParticleSize = d.ParticleSize
	}
}
