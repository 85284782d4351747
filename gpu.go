package nebula

import (
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

type WindowState struct {
	Window *glfw.Window
	Width  int
	Height int
	title  string
}

type GpuState struct {
	surface       *wgpu.Surface
	adapter       *wgpu.Adapter
	device        *wgpu.Device
	queue         *wgpu.Queue
	surfaceConfig *wgpu.SurfaceConfiguration

	depthTexture *wgpu.Texture
	depthView    *wgpu.TextureView
}

func NewWindowState(width, height int, title string) *WindowState {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		panic(err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Important: tell GLFW we don't want OpenGL
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		panic(err)
	}

	return &WindowState{
		Window: win,
		Width:  width,
		Height: height,
		title:  title,
	}
}

func NewGpuState(s *WindowState) *GpuState {
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()
	// wraps the GLFW window into a wgpu surface
	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(s.Window))
	// finds a suitable GPU (discrete GPU preferred)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		panic(err)
	}
	// allocates the device and command queue
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            "Main Device",
		RequiredFeatures: nil,
		RequiredLimits:   nil,
	})
	if err != nil {
		panic(err)
	}
	queue := device.GetQueue()

	caps := surface.GetCapabilities(adapter)
	// defines how the swapchain behaves (size, format, vsync)
	surfaceConfig := wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(s.Width),
		Height:      uint32(s.Height),
		PresentMode: wgpu.PresentModeFifo, // vsync
		AlphaMode:   caps.AlphaModes[0],
	}

	surface.Configure(adapter, device, &surfaceConfig)

	g := &GpuState{
		surface:       surface,
		adapter:       adapter,
		device:        device,
		queue:         queue,
		surfaceConfig: &surfaceConfig,
	}
	g.createDepthTexture(uint32(s.Width), uint32(s.Height))
	return g
}

func (g *GpuState) Device() *wgpu.Device   { return g.device }
func (g *GpuState) Queue() *wgpu.Queue     { return g.queue }
func (g *GpuState) SurfaceFormat() wgpu.TextureFormat {
	return g.surfaceConfig.Format
}
func (g *GpuState) DepthView() *wgpu.TextureView { return g.depthView }

// Resize reconfigures the surface and recreates the depth attachment.
func (g *GpuState) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	g.surfaceConfig.Width = uint32(width)
	g.surfaceConfig.Height = uint32(height)
	g.surface.Configure(g.adapter, g.device, g.surfaceConfig)
	g.createDepthTexture(uint32(width), uint32(height))
}

func (g *GpuState) createDepthTexture(width, height uint32) {
	if g.depthView != nil {
		g.depthView.Release()
	}
	if g.depthTexture != nil {
		g.depthTexture.Release()
	}
	tex, err := g.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Depth Texture",
		Size:          wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth32Float,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		panic(err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		panic(err)
	}
	g.depthTexture = tex
	g.depthView = view
}

// AcquireFrame returns the swapchain texture view for this frame, or nil when
// the surface is temporarily unusable (the whole frame is then abandoned and
// retried next frame; there is no partial recovery).
func (g *GpuState) AcquireFrame() (*wgpu.TextureView, func()) {
	tex, err := g.surface.GetCurrentTexture()
	if err != nil {
		return nil, nil
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		return nil, nil
	}
	return view, func() {
		view.Release()
		g.surface.Present()
	}
}

func (g *GpuState) Release() {
	if g.depthView != nil {
		g.depthView.Release()
	}
	if g.depthTexture != nil {
		g.depthTexture.Release()
	}
	if g.device != nil {
		g.device.Release()
	}
}
