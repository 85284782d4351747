package nebula

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// IntegrateParams configures one integration dispatch.
type IntegrateParams struct {
	Dt       float32
	Center   mgl32.Vec3 // attractor position
	Strength float32    // inverse-square field strength
	Drag     float32    // linear drag coefficient

	// Bounds enables elastic wall reflection when non-nil. Optional boundary
	// policy, not part of the core force model.
	Bounds *Bounds
}

// Bounds is an axis-aligned boundary box for the optional wall policy.
type Bounds struct {
	Min, Max mgl32.Vec3
}

// Integrator advances every particle's kinematics by one explicit Euler step.
// It always reads from one buffer and writes to the other: with unconstrained
// lane ordering an in-place update would race against neighbouring lanes.
type Integrator struct {
	cfg Config
}

func NewIntegrator(cfg Config) *Integrator {
	cfg.applyDefaults()
	return &Integrator{cfg: cfg}
}

// Integrate transforms src into dst over the full arena extent. src and dst
// must be distinct buffers of equal length. Dead slots are stepped like any
// other; a zero slot stays dead (its age moves past its zero lifetime), so
// the downstream compaction scan still sees it as dead.
func (ig *Integrator) Integrate(src, dst []Particle, p IntegrateParams) {
	forLanes(ig.cfg.Workers, len(src), func(i int) {
		dst[i] = ig.step(src[i], p)
	})
}

func (ig *Integrator) step(pt Particle, p IntegrateParams) Particle {
	toCenter := p.Center.Sub(pt.Position)
	dist := toCenter.Len()
	if dist < ig.cfg.MinDistance {
		dist = ig.cfg.MinDistance
	}

	// Inverse-square attraction plus linear drag. Explicit Euler: energy is
	// not conserved exactly and that is accepted behaviour.
	accel := toCenter.Mul(p.Strength / (dist * dist * dist))
	drag := pt.Velocity.Mul(-p.Drag)

	pt.Velocity = pt.Velocity.Add(accel.Add(drag).Mul(p.Dt))
	pt.Position = pt.Position.Add(pt.Velocity.Mul(p.Dt))
	pt.Age += p.Dt

	if p.Bounds != nil {
		pt = reflectAtBounds(pt, *p.Bounds)
	}
	return pt
}

// reflectAtBounds applies elastic wall collision per axis: positions past a
// bound are clamped onto it and that axis's velocity is negated.
func reflectAtBounds(pt Particle, b Bounds) Particle {
	for axis := 0; axis < 3; axis++ {
		if pt.Position[axis] < b.Min[axis] {
			pt.Position[axis] = b.Min[axis]
			pt.Velocity[axis] = float32(math.Abs(float64(pt.Velocity[axis])))
		} else if pt.Position[axis] > b.Max[axis] {
			pt.Position[axis] = b.Max[axis]
			pt.Velocity[axis] = -float32(math.Abs(float64(pt.Velocity[axis])))
		}
	}
	return pt
}
