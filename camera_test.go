package nebula

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestNewCameraLooksAtTarget(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{0, 0, 0}, 16.0/9)

	fwd := cam.Forward()
	want := mgl32.Vec3{0, 0, -1}
	if fwd.Sub(want).Len() > 1e-5 {
		t.Errorf("forward = %v, want %v", fwd, want)
	}
}

func TestCameraProjectsTargetToCenter(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{3, 4, 10}, mgl32.Vec3{0, 1, -2}, 1)

	clip := cam.ViewProjection().Mul4x1(mgl32.Vec4{0, 1, -2, 1})
	if clip.W() <= 0 {
		t.Fatalf("target behind the camera, w = %v", clip.W())
	}
	ndcX := clip.X() / clip.W()
	ndcY := clip.Y() / clip.W()
	if math.Abs(float64(ndcX)) > 1e-4 || math.Abs(float64(ndcY)) > 1e-4 {
		t.Errorf("target projects to (%v, %v), want screen center", ndcX, ndcY)
	}
}

func TestCameraPitchClamp(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 1)

	cam.Rotate(0, 500)
	if cam.Pitch > 89 {
		t.Errorf("pitch = %v, want clamped to 89", cam.Pitch)
	}
	cam.Rotate(0, -500)
	if cam.Pitch < -89 {
		t.Errorf("pitch = %v, want clamped to -89", cam.Pitch)
	}
}

func TestCameraResize(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 1)
	cam.Resize(200, 100)
	if cam.Aspect != 2 {
		t.Errorf("aspect = %v, want 2", cam.Aspect)
	}
	cam.Resize(200, 0) // degenerate height must not divide by zero
	if cam.Aspect != 2 {
		t.Errorf("aspect changed on zero height: %v", cam.Aspect)
	}
}

func TestFlyControllerMovesAlongView(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, 1)
	fc := NewFlyController()
	fc.Speed = 2

	fc.Forward = true
	fc.Update(cam, 0.5)

	want := mgl32.Vec3{0, 0, -1}
	if cam.Position.Sub(want).Len() > 1e-5 {
		t.Errorf("position = %v, want %v after forward flight", cam.Position, want)
	}
}

func TestFlyControllerMouseLook(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 1)
	fc := NewFlyController()

	fc.ProcessMouse(100, 0)
	fc.Update(cam, 0.016)
	if cam.Yaw != 10 {
		t.Errorf("yaw = %v, want 10 (100 units at 0.1 deg/unit)", cam.Yaw)
	}

	// Deltas are consumed by Update, not reapplied.
	fc.Update(cam, 0.016)
	if cam.Yaw != 10 {
		t.Errorf("yaw moved to %v without new mouse input", cam.Yaw)
	}
}

func TestFlyControllerOpposedKeysCancel(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{0, 0, 0}, 1)
	fc := NewFlyController()

	fc.Forward = true
	fc.Backward = true
	fc.Update(cam, 1)

	if cam.Position != (mgl32.Vec3{1, 2, 3}) {
		t.Errorf("position drifted to %v with cancelling inputs", cam.Position)
	}
}
