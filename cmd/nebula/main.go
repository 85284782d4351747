package main

import (
	"flag"
	"fmt"
	"math"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/nebula3d/nebula"
)

var (
	capacity    = flag.Int("capacity", 65536, "particle arena size")
	spawnRate   = flag.Int("spawn", 512, "particles emitted per frame")
	lifetime    = flag.Float64("lifetime", 8.0, "particle lifespan in seconds")
	monitorAddr = flag.String("monitor", "", "websocket stats address, e.g. :8765 (disabled when empty)")
	width       = flag.Int("width", 1280, "window width")
	height      = flag.Int("height", 720, "window height")
	debug       = flag.Bool("debug", false, "enable debug logging")
)

type demo struct {
	win      *nebula.WindowState
	gpu      *nebula.GpuState
	pipeline *nebula.GpuPipeline
	overlay  *nebula.Overlay
	monitor  *nebula.Monitor
	log      nebula.Logger

	camera     *nebula.Camera
	controller *nebula.FlyController
	timer      *nebula.Timer
	cfg        nebula.Config

	frame         uint64
	elapsed       float32
	lastLive      uint32
	mouseCaptured bool
	lastMouseX    float64
	lastMouseY    float64
	prevQ         bool
	prevF11       bool

	fpsAccum  float32
	fpsFrames int
	fps       float32
}

func main() {
	flag.Parse()

	log := nebula.NewDefaultLogger("nebula", *debug)

	d := &demo{log: log}
	d.cfg = nebula.Config{Capacity: *capacity}

	d.win = nebula.NewWindowState(*width, *height, "nebula")
	d.gpu = nebula.NewGpuState(d.win)

	var err error
	d.pipeline, err = nebula.NewGpuPipeline(d.gpu, d.cfg, log)
	if err != nil {
		panic(err)
	}
	d.overlay, err = nebula.NewOverlay(d.gpu)
	if err != nil {
		panic(err)
	}

	if *monitorAddr != "" {
		d.monitor = nebula.NewMonitor(*monitorAddr, log)
		d.monitor.Start()
		defer d.monitor.Close()
	}

	aspect := float32(*width) / float32(*height)
	d.camera = nebula.NewCamera(mgl32.Vec3{0, 6, 18}, mgl32.Vec3{0, 0, 0}, aspect)
	d.controller = nebula.NewFlyController()
	d.timer = nebula.NewTimer()

	d.win.Window.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		d.win.Width, d.win.Height = w, h
		d.gpu.Resize(w, h)
		d.camera.Resize(w, h)
	})

	for !d.win.Window.ShouldClose() {
		glfw.PollEvents()
		d.handleInput()

		dt := d.timer.Tick()
		if dt > 0.1 {
			dt = 0.1 // clamp pauses and window drags
		}
		d.elapsed += dt

		d.controller.Update(d.camera, dt)
		d.renderFrame(dt)
	}

	d.pipeline.Release()
	d.overlay.Release()
	d.gpu.Release()
	d.win.Window.Destroy()
	glfw.Terminate()
}

func (d *demo) handleInput() {
	win := d.win.Window
	if win.GetKey(glfw.KeyEscape) == glfw.Press {
		win.SetShouldClose(true)
	}

	d.controller.Forward = win.GetKey(glfw.KeyW) == glfw.Press
	d.controller.Backward = win.GetKey(glfw.KeyS) == glfw.Press
	d.controller.Left = win.GetKey(glfw.KeyA) == glfw.Press
	d.controller.Right = win.GetKey(glfw.KeyD) == glfw.Press
	d.controller.Up = win.GetKey(glfw.KeySpace) == glfw.Press
	d.controller.Down = win.GetKey(glfw.KeyLeftShift) == glfw.Press

	q := win.GetKey(glfw.KeyQ) == glfw.Press
	if q && !d.prevQ {
		if d.pipeline.RenderMode() == nebula.RenderQuads {
			d.pipeline.SetRenderMode(nebula.RenderPoints)
		} else {
			d.pipeline.SetRenderMode(nebula.RenderQuads)
		}
	}
	d.prevQ = q

	f11 := win.GetKey(glfw.KeyF11) == glfw.Press
	if f11 && !d.prevF11 {
		d.toggleFullscreen()
	}
	d.prevF11 = f11

	// Right mouse button holds mouse-look.
	captured := win.GetMouseButton(glfw.MouseButtonRight) == glfw.Press
	mx, my := win.GetCursorPos()
	if captured {
		if d.mouseCaptured {
			d.controller.ProcessMouse(float32(mx-d.lastMouseX), float32(my-d.lastMouseY))
		}
		win.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
	} else {
		win.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
	}
	d.mouseCaptured = captured
	d.lastMouseX, d.lastMouseY = mx, my
}

func (d *demo) toggleFullscreen() {
	win := d.win.Window
	if win.GetMonitor() == nil {
		monitor := glfw.GetPrimaryMonitor()
		mode := monitor.GetVideoMode()
		win.SetMonitor(monitor, 0, 0, mode.Width, mode.Height, mode.RefreshRate)
	} else {
		win.SetMonitor(nil, 100, 100, *width, *height, 0)
	}
}

// attractorCenter orbits slowly so the swarm keeps deforming.
func (d *demo) attractorCenter() mgl32.Vec3 {
	t := float64(d.elapsed)
	return mgl32.Vec3{
		float32(math.Cos(t*0.5)) * 2,
		float32(math.Sin(t*0.5)) * 2,
		float32(math.Sin(t*0.25)) * 1.5,
	}
}

func (d *demo) renderFrame(dt float32) {
	d.frame++

	emit := nebula.EmitParams{
		Count:    uint32(*spawnRate),
		Shape:    nebula.SpawnSphere,
		Origin:   mgl32.Vec3{0, 0, 0},
		Radius:   6,
		Lifetime: float32(*lifetime),
		Seed:     uint32(d.frame),
	}
	integ := nebula.IntegrateParams{
		Dt:       dt,
		Center:   d.attractorCenter(),
		Strength: 40,
		Drag:     0.05,
	}

	d.pipeline.UpdateEmitUniforms(emit)
	d.pipeline.UpdateSimUniforms(integ)
	d.pipeline.UpdateRenderUniforms(d.camera.RenderParams())

	d.updateOverlay(dt)

	view, present := d.gpu.AcquireFrame()
	if view == nil {
		// Surface lost this frame; skip and let the next one retry.
		return
	}
	defer present()

	encoder, err := d.gpu.Device().CreateCommandEncoder(nil)
	if err != nil {
		d.log.Errorf("command encoder: %v", err)
		return
	}

	d.pipeline.EncodeFrame(encoder, emit.Count)

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0.01, G: 0.01, B: 0.02, A: 1},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            d.gpu.DepthView(),
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	d.pipeline.EncodeDraw(pass)
	d.overlay.EncodeDraw(pass)
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		d.log.Errorf("encoder finish: %v", err)
		return
	}
	d.gpu.Queue().Submit(cmd)
	d.pipeline.Advance()
}

func (d *demo) updateOverlay(dt float32) {
	d.fpsAccum += dt
	d.fpsFrames++
	if d.fpsAccum >= 0.5 {
		d.fps = float32(d.fpsFrames) / d.fpsAccum
		d.fpsAccum, d.fpsFrames = 0, 0
	}

	// The counter readback stalls the queue, so sample it sparsely.
	if d.frame%30 == 1 {
		if live, err := d.pipeline.ReadLiveCount(); err == nil {
			d.lastLive = live
		}
		if d.monitor != nil {
			d.monitor.Publish(nebula.FrameStats{
				Frame:   d.frame,
				Live:    int(d.lastLive),
				Emitted: *spawnRate,
				Dt:      dt,
			})
		}
	}

	mode := "quads"
	if d.pipeline.RenderMode() == nebula.RenderPoints {
		mode = "points"
	}
	d.overlay.Clear()
	d.overlay.Print(
		fmt.Sprintf("fps %.0f\nlive %d / %d\nmode %s (Q toggles)", d.fps, d.lastLive, *capacity, mode),
		10, 10, 2, [4]float32{1, 1, 1, 0.9},
	)
	if err := d.overlay.Upload(d.win.Width, d.win.Height); err != nil {
		d.log.Errorf("overlay upload: %v", err)
	}
}
