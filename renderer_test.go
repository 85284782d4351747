package nebula

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestBuildQuadsExpandsSixVertices(t *testing.T) {
	r := NewRenderer(testConfig(64))
	particles := []Particle{
		{Position: mgl32.Vec3{0, 0, 0}, Lifetime: 1},
		{Position: mgl32.Vec3{3, 1, -2}, Lifetime: 1},
	}

	verts := r.BuildQuads(particles, RenderParams{CameraPosition: mgl32.Vec3{0, 0, 10}})
	if len(verts) != 12 {
		t.Fatalf("vertex count = %d, want 6 per particle", len(verts))
	}

	// UVs must cover the full [-1,1] quad per particle.
	for i := 0; i < 6; i++ {
		if verts[i].UV != quadCorners[i] {
			t.Errorf("vertex %d UV = %v, want %v", i, verts[i].UV, quadCorners[i])
		}
	}
}

func TestBillboardBasisOrthonormal(t *testing.T) {
	r := NewRenderer(testConfig(64))

	dirs := []mgl32.Vec3{
		{0, 0, 1},
		{1, 2, 3},
		{-4, 0.5, 2},
	}
	for _, d := range dirs {
		toCamera := d.Normalize()
		right, up := r.billboardBasis(toCamera)

		if math.Abs(float64(right.Len()-1)) > 1e-5 || math.Abs(float64(up.Len()-1)) > 1e-5 {
			t.Errorf("dir %v: basis not unit length (%v, %v)", d, right.Len(), up.Len())
		}
		if dot := right.Dot(up); math.Abs(float64(dot)) > 1e-5 {
			t.Errorf("dir %v: right dot up = %v", d, dot)
		}
		if dot := right.Dot(toCamera); math.Abs(float64(dot)) > 1e-5 {
			t.Errorf("dir %v: right not perpendicular to view, dot = %v", d, dot)
		}
	}
}

func TestBillboardBasisDegenerateView(t *testing.T) {
	r := NewRenderer(testConfig(64))

	// Looking straight down the world up axis collapses the primary cross
	// product; the fallback must still give a finite orthonormal basis.
	right, up := r.billboardBasis(mgl32.Vec3{0, 1, 0})

	for axis := 0; axis < 3; axis++ {
		if math.IsNaN(float64(right[axis])) || math.IsNaN(float64(up[axis])) {
			t.Fatalf("degenerate view produced NaN basis: right=%v up=%v", right, up)
		}
	}
	if math.Abs(float64(right.Len()-1)) > 1e-5 {
		t.Errorf("fallback right not unit length: %v", right.Len())
	}
}

func TestBuildQuadsCameraOnParticle(t *testing.T) {
	r := NewRenderer(testConfig(64))
	particles := []Particle{{Position: mgl32.Vec3{1, 2, 3}, Lifetime: 1}}

	verts := r.BuildQuads(particles, RenderParams{CameraPosition: mgl32.Vec3{1, 2, 3}})

	for i, v := range verts {
		for axis := 0; axis < 3; axis++ {
			if math.IsNaN(float64(v.Position[axis])) {
				t.Fatalf("vertex %d has NaN position %v", i, v.Position)
			}
		}
	}
}

func TestBuildQuadsRespectsParticleSize(t *testing.T) {
	cfg := testConfig(64)
	cfg.ParticleSize = 0.5
	r := NewRenderer(cfg)

	center := mgl32.Vec3{0, 0, 0}
	verts := r.BuildQuads([]Particle{{Position: center, Lifetime: 1}}, RenderParams{CameraPosition: mgl32.Vec3{0, 0, 5}})

	// Corner vertices sit at distance size*sqrt(2) from the center.
	want := 0.5 * float32(math.Sqrt2)
	for i, v := range verts {
		d := v.Position.Sub(center).Len()
		if math.Abs(float64(d-want)) > 1e-5 {
			t.Errorf("vertex %d at distance %v, want %v", i, d, want)
		}
	}
}

func TestBuildPoints(t *testing.T) {
	r := NewRenderer(testConfig(64))
	particles := []Particle{
		{Position: mgl32.Vec3{1, 0, 0}},
		{Position: mgl32.Vec3{0, 2, 0}},
	}

	verts := r.BuildPoints(particles)
	if len(verts) != 2 {
		t.Fatalf("point count = %d, want one per particle", len(verts))
	}
	for i := range verts {
		if verts[i].Position != particles[i].Position {
			t.Errorf("point %d at %v, want %v", i, verts[i].Position, particles[i].Position)
		}
	}
}

func TestFalloffAlpha(t *testing.T) {
	if a := FalloffAlpha(mgl32.Vec2{0, 0}); a != 1 {
		t.Errorf("center alpha = %v, want 1", a)
	}
	if a := FalloffAlpha(mgl32.Vec2{1, 0}); a != 0 {
		t.Errorf("rim alpha = %v, want 0", a)
	}
	if a := FalloffAlpha(mgl32.Vec2{1, 1}); a != 0 {
		t.Errorf("corner alpha = %v, want 0 past the rim", a)
	}
	mid := FalloffAlpha(mgl32.Vec2{0.5, 0})
	if mid <= 0 || mid >= 1 {
		t.Errorf("mid alpha = %v, want strictly between 0 and 1", mid)
	}
}
