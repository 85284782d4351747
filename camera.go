package nebula

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a perspective camera with yaw/pitch orientation. It belongs to
// the orchestrator side of the pipeline boundary: the render stage only ever
// sees the resulting RenderParams.
type Camera struct {
	Position mgl32.Vec3
	Yaw      float32 // degrees, 0 looks down -Z
	Pitch    float32 // degrees, clamped to (-90, 90)

	Fov    float32 // vertical field of view, degrees
	Aspect float32
	Near   float32
	Far    float32
}

func NewCamera(position, target mgl32.Vec3, aspect float32) *Camera {
	c := &Camera{
		Position: position,
		Fov:      60,
		Aspect:   aspect,
		Near:     0.1,
		Far:      1000,
	}
	dir := target.Sub(position)
	if dir.Len() > 1e-6 {
		dir = dir.Normalize()
		c.Yaw = mgl32.RadToDeg(float32(math.Atan2(float64(dir.X()), float64(-dir.Z()))))
		c.Pitch = mgl32.RadToDeg(float32(math.Asin(float64(dir.Y()))))
	}
	return c
}

func (c *Camera) Forward() mgl32.Vec3 {
	yaw := mgl32.DegToRad(c.Yaw)
	pitch := mgl32.DegToRad(c.Pitch)
	return mgl32.Vec3{
		float32(math.Sin(float64(yaw)) * math.Cos(float64(pitch))),
		float32(math.Sin(float64(pitch))),
		float32(-math.Cos(float64(yaw)) * math.Cos(float64(pitch))),
	}.Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	return c.Forward().Cross(mgl32.Vec3{0, 1, 0}).Normalize()
}

func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Forward()), mgl32.Vec3{0, 1, 0})
}

func (c *Camera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.Fov), c.Aspect, c.Near, c.Far)
}

func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.Projection().Mul4(c.View())
}

func (c *Camera) Resize(width, height int) {
	if height > 0 {
		c.Aspect = float32(width) / float32(height)
	}
}

// Rotate applies yaw/pitch deltas in degrees, clamping pitch short of the
// poles so the view basis never degenerates.
func (c *Camera) Rotate(deltaYaw, deltaPitch float32) {
	c.Yaw += deltaYaw
	c.Pitch += deltaPitch
	if c.Pitch > 89 {
		c.Pitch = 89
	}
	if c.Pitch < -89 {
		c.Pitch = -89
	}
}

// RenderParams packages the camera state for the render stage.
func (c *Camera) RenderParams() RenderParams {
	return RenderParams{
		ViewProjection: c.ViewProjection(),
		CameraPosition: c.Position,
	}
}

// FlyController is a free-flight camera controller: WASD-style movement plus
// mouse look. Input flags are set by the windowing layer each frame.
type FlyController struct {
	Speed       float32 // units per second
	Sensitivity float32 // degrees per mouse unit

	Forward, Backward bool
	Left, Right       bool
	Up, Down          bool

	mouseDX, mouseDY float32
}

func NewFlyController() *FlyController {
	return &FlyController{Speed: 5, Sensitivity: 0.1}
}

// ProcessMouse accumulates a mouse delta for the next Update.
func (f *FlyController) ProcessMouse(dx, dy float32) {
	f.mouseDX += dx
	f.mouseDY += dy
}

// Update applies accumulated look and held movement to the camera.
func (f *FlyController) Update(cam *Camera, dt float32) {
	cam.Rotate(f.mouseDX*f.Sensitivity, -f.mouseDY*f.Sensitivity)
	f.mouseDX, f.mouseDY = 0, 0

	move := mgl32.Vec3{}
	if f.Forward {
		move = move.Add(cam.Forward())
	}
	if f.Backward {
		move = move.Sub(cam.Forward())
	}
	if f.Right {
		move = move.Add(cam.Right())
	}
	if f.Left {
		move = move.Sub(cam.Right())
	}
	if f.Up {
		move = move.Add(mgl32.Vec3{0, 1, 0})
	}
	if f.Down {
		move = move.Sub(mgl32.Vec3{0, 1, 0})
	}

	if move.Len() > 0 {
		cam.Position = cam.Position.Add(move.Normalize().Mul(f.Speed * dt))
	}
}
