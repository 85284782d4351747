package nebula

import (
	"github.com/go-gl/mathgl/mgl32"
)

// RenderMode selects how the compacted buffer is turned into geometry.
type RenderMode int

const (
	RenderPoints RenderMode = iota
	RenderQuads
)

// RenderParams are the per-frame camera inputs, owned by the orchestrator.
type RenderParams struct {
	ViewProjection mgl32.Mat4
	CameraPosition mgl32.Vec3
}

// BillboardVertex is one expanded vertex of a camera-facing quad. UV spans
// [-1, 1] across the quad; the fragment stage derives the radial falloff from
// it. Matches the WGSL vertex output in billboard.wgsl.
type BillboardVertex struct {
	Position mgl32.Vec3 `nebula:"layout" format:"float32x3" location:"0"`
	UV       mgl32.Vec2 `nebula:"layout" format:"float32x2" location:"1"`
}

// quadCorners covers a unit quad with two CCW triangles, six vertices.
var quadCorners = [6]mgl32.Vec2{
	{-1, -1}, {1, -1}, {1, 1},
	{-1, -1}, {1, 1}, {-1, 1},
}

// Renderer is pure data transformation: compacted particles in, screen-ready
// geometry out. It holds no mutable state.
type Renderer struct {
	cfg Config
}

func NewRenderer(cfg Config) *Renderer {
	cfg.applyDefaults()
	return &Renderer{cfg: cfg}
}

// billboardBasis derives an orthonormal (right, up) pair facing the camera.
// When toCamera is parallel to the world up axis the first cross product
// collapses; the fallback axis kicks in, mirroring the emitter's
// degenerate-cross guard, so a zero or NaN basis never escapes.
func (r *Renderer) billboardBasis(toCamera mgl32.Vec3) (right, up mgl32.Vec3) {
	right = r.cfg.WorldUp.Cross(toCamera)
	if right.Len() < 1e-4 {
		right = mgl32.Vec3{1, 0, 0}.Cross(toCamera)
	}
	right = right.Normalize()
	up = toCamera.Cross(right)
	return right, up
}

// BuildQuads expands each particle into a camera-facing quad of fixed world
// size. The result is in particle order, but callers must not rely on that
// order being stable across frames, since compaction does not preserve it.
func (r *Renderer) BuildQuads(particles []Particle, p RenderParams) []BillboardVertex {
	out := make([]BillboardVertex, 0, len(particles)*6)
	for i := range particles {
		pos := particles[i].Position
		toCamera := p.CameraPosition.Sub(pos)
		if toCamera.Len() < 1e-6 {
			// Camera sitting exactly on the particle: no facing direction.
			toCamera = mgl32.Vec3{0, 0, 1}
		}
		toCamera = toCamera.Normalize()
		right, up := r.billboardBasis(toCamera)

		for _, c := range quadCorners {
			offset := right.Mul(c[0] * r.cfg.ParticleSize).
				Add(up.Mul(c[1] * r.cfg.ParticleSize))
			out = append(out, BillboardVertex{
				Position: pos.Add(offset),
				UV:       c,
			})
		}
	}
	return out
}

// BuildPoints produces a single vertex per particle with centered UV.
func (r *Renderer) BuildPoints(particles []Particle) []BillboardVertex {
	out := make([]BillboardVertex, len(particles))
	for i := range particles {
		out[i] = BillboardVertex{Position: particles[i].Position}
	}
	return out
}

// FalloffAlpha is the fragment-stage radial falloff: smoothstep from fully
// opaque at the quad center to transparent at the rim, for soft circular
// sprites. uv is the interpolated quad coordinate in [-1, 1].
func FalloffAlpha(uv mgl32.Vec2) float32 {
	return smoothstep(1, 0, uv.Len())
}

func smoothstep(edge0, edge1, x float32) float32 {
	t := (x - edge0) / (edge1 - edge0)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return t * t * (3 - 2*t)
}
