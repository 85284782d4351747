package nebula

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"

	"github.com/nebula3d/nebula/shaders"
)

const workgroupSize = 64

// GpuPipeline is the device-resident mirror of the CPU reference pipeline:
// three rotating particle storage buffers, an atomic live-counter buffer, an
// indirect draw argument buffer, and the emit / integrate / compact compute
// passes plus the point/billboard render passes. The host only writes
// uniforms and sequences the passes; the particle data never leaves the GPU.
//
// Per-frame counter protocol (mirrors Pipeline.Step):
//
//	counter holds the previous compaction's live count
//	-> emit claims slots on top of it
//	-> counter cleared between integrate and compact (encoder ClearBuffer)
//	-> compact refills it; resolve clamps it into the indirect args
type GpuPipeline struct {
	cfg   Config
	id    string
	log   Logger
	dev   *wgpu.Device
	queue *wgpu.Queue

	particleBufs [3]*wgpu.Buffer
	counterBuf   *wgpu.Buffer
	indirectBuf  *wgpu.Buffer
	stagingBuf   *wgpu.Buffer

	emitUB    *wgpu.Buffer
	simUB     *wgpu.Buffer
	compactUB *wgpu.Buffer
	renderUB  *wgpu.Buffer

	emitPipe      *wgpu.ComputePipeline
	integratePipe *wgpu.ComputePipeline
	compactPipe   *wgpu.ComputePipeline
	resolvePipe   *wgpu.ComputePipeline

	quadPipe  *wgpu.RenderPipeline
	pointPipe *wgpu.RenderPipeline

	// One bind group per buffer-role rotation; see roles().
	emitBGs      [3]*wgpu.BindGroup
	integrateBGs [3]*wgpu.BindGroup
	compactBGs   [3]*wgpu.BindGroup
	resolveBG    *wgpu.BindGroup
	quadBG       *wgpu.BindGroup
	pointBG      *wgpu.BindGroup

	rotation int
	mode     RenderMode
}

func NewGpuPipeline(gpu *GpuState, cfg Config, log Logger) (*GpuPipeline, error) {
	cfg.applyDefaults()
	if log == nil {
		log = NewNopLogger()
	}
	p := &GpuPipeline{
		cfg:   cfg,
		id:    uuid.NewString(),
		log:   log,
		dev:   gpu.Device(),
		queue: gpu.Queue(),
		mode:  RenderQuads,
	}

	if err := p.createBuffers(); err != nil {
		return nil, err
	}
	if err := p.createComputePipelines(); err != nil {
		return nil, err
	}
	if err := p.createRenderPipelines(gpu.SurfaceFormat()); err != nil {
		return nil, err
	}
	if err := p.createBindGroups(); err != nil {
		return nil, err
	}

	p.SetRenderMode(RenderQuads)
	log.Infof("gpu pipeline %s: capacity=%d stride=%d", p.id, cfg.Capacity, ParticleStride)
	return p, nil
}

// roles maps the current rotation to (current, integrated, compacted) buffer
// indices. After each frame the compacted buffer becomes the new current.
func (p *GpuPipeline) roles() (cur, next, out int) {
	return p.rotation, (p.rotation + 1) % 3, (p.rotation + 2) % 3
}

func (p *GpuPipeline) createBuffers() error {
	label := func(name string) string { return fmt.Sprintf("%s %s", name, p.id) }

	for i := range p.particleBufs {
		buf, err := p.dev.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label(fmt.Sprintf("Particle Buffer %d", i)),
			Size:  uint64(p.cfg.Capacity) * ParticleStride,
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("failed to create particle buffer %d: %w", i, err)
		}
		p.particleBufs[i] = buf
	}

	var err error
	p.counterBuf, err = p.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label("Live Counter"),
		Size:  4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("failed to create counter buffer: %w", err)
	}

	p.indirectBuf, err = p.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label("Indirect Draw Args"),
		Size:  16,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageIndirect | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create indirect buffer: %w", err)
	}

	p.stagingBuf, err = p.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label("Counter Readback"),
		Size:  4,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create staging buffer: %w", err)
	}

	uniforms := []struct {
		name string
		size uint64
		dst  **wgpu.Buffer
	}{
		{"Emit Uniforms", 64, &p.emitUB},
		{"Sim Uniforms", 64, &p.simUB},
		{"Compact Uniforms", 16, &p.compactUB},
		{"Render Uniforms", 96, &p.renderUB},
	}
	for _, u := range uniforms {
		buf, err := p.dev.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label(u.name),
			Size:  u.size,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", u.name, err)
		}
		*u.dst = buf
	}
	return nil
}

func (p *GpuPipeline) createComputePipelines() error {
	compile := func(name, code string) (*wgpu.ShaderModule, error) {
		mod, err := p.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          name,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", name, err)
		}
		return mod, nil
	}

	emitMod, err := compile("EmitShader", shaders.EmitWGSL)
	if err != nil {
		return err
	}
	defer emitMod.Release()
	integrateMod, err := compile("IntegrateShader", shaders.IntegrateWGSL)
	if err != nil {
		return err
	}
	defer integrateMod.Release()
	compactMod, err := compile("CompactShader", shaders.CompactWGSL)
	if err != nil {
		return err
	}
	defer compactMod.Release()

	pipes := []struct {
		name  string
		mod   *wgpu.ShaderModule
		entry string
		dst   **wgpu.ComputePipeline
	}{
		{"EmitPipeline", emitMod, "main", &p.emitPipe},
		{"IntegratePipeline", integrateMod, "main", &p.integratePipe},
		{"CompactPipeline", compactMod, "main", &p.compactPipe},
		{"ResolvePipeline", compactMod, "resolve", &p.resolvePipe},
	}
	for _, pd := range pipes {
		pipe, err := p.dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label: pd.name,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     pd.mod,
				EntryPoint: pd.entry,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", pd.name, err)
		}
		*pd.dst = pipe
	}
	return nil
}

// particleVertexLayout binds a particle buffer at instance rate, matching the
// WGSL ParticleIn locations and the Particle byte layout.
func particleVertexLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: ParticleStride,
		StepMode:    wgpu.VertexStepModeInstance,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},  // position
			{Format: wgpu.VertexFormatFloat32, Offset: 12, ShaderLocation: 1},   // mass
			{Format: wgpu.VertexFormatFloat32x3, Offset: 16, ShaderLocation: 2}, // velocity
			{Format: wgpu.VertexFormatFloat32, Offset: 28, ShaderLocation: 3},   // age
			{Format: wgpu.VertexFormatFloat32, Offset: 32, ShaderLocation: 4},   // lifetime
		},
	}
}

func (p *GpuPipeline) createRenderPipelines(surfaceFormat wgpu.TextureFormat) error {
	mod, err := p.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "BillboardShader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.BillboardWGSL},
	})
	if err != nil {
		return fmt.Errorf("failed to compile billboard shader: %w", err)
	}
	defer mod.Release()

	// Additive color over the scene, standard over for alpha.
	blend := &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorSrcAlpha,
			DstFactor: wgpu.BlendFactorOne,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
	}
	depth := &wgpu.DepthStencilState{
		Format:            wgpu.TextureFormatDepth32Float,
		DepthWriteEnabled: true,
		DepthCompare:      wgpu.CompareFunctionLess,
		StencilFront: wgpu.StencilFaceState{
			Compare:     wgpu.CompareFunctionAlways,
			FailOp:      wgpu.StencilOperationKeep,
			DepthFailOp: wgpu.StencilOperationKeep,
			PassOp:      wgpu.StencilOperationKeep,
		},
		StencilBack: wgpu.StencilFaceState{
			Compare:     wgpu.CompareFunctionAlways,
			FailOp:      wgpu.StencilOperationKeep,
			DepthFailOp: wgpu.StencilOperationKeep,
			PassOp:      wgpu.StencilOperationKeep,
		},
		StencilReadMask:  0xFFFFFFFF,
		StencilWriteMask: 0xFFFFFFFF,
	}

	makePipe := func(name, vsEntry, fsEntry string, topology wgpu.PrimitiveTopology) (*wgpu.RenderPipeline, error) {
		pipe, err := p.dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
			Label: name,
			Vertex: wgpu.VertexState{
				Module:     mod,
				EntryPoint: vsEntry,
				Buffers:    []wgpu.VertexBufferLayout{particleVertexLayout()},
			},
			Fragment: &wgpu.FragmentState{
				Module:     mod,
				EntryPoint: fsEntry,
				Targets: []wgpu.ColorTargetState{{
					Format:    surfaceFormat,
					Blend:     blend,
					WriteMask: wgpu.ColorWriteMaskAll,
				}},
			},
			Primitive: wgpu.PrimitiveState{
				Topology:  topology,
				FrontFace: wgpu.FrontFaceCCW,
				CullMode:  wgpu.CullModeNone,
			},
			DepthStencil: depth,
			Multisample: wgpu.MultisampleState{
				Count:                  1,
				Mask:                   0xFFFFFFFF,
				AlphaToCoverageEnabled: false,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", name, err)
		}
		return pipe, nil
	}

	if p.quadPipe, err = makePipe("QuadPipeline", "vs_quad", "fs_quad", wgpu.PrimitiveTopologyTriangleList); err != nil {
		return err
	}
	if p.pointPipe, err = makePipe("PointPipeline", "vs_point", "fs_point", wgpu.PrimitiveTopologyPointList); err != nil {
		return err
	}
	return nil
}

func (p *GpuPipeline) createBindGroups() error {
	entry := func(binding uint32, buf *wgpu.Buffer) wgpu.BindGroupEntry {
		return wgpu.BindGroupEntry{Binding: binding, Buffer: buf, Size: wgpu.WholeSize}
	}

	for r := 0; r < 3; r++ {
		cur, next, out := r, (r+1)%3, (r+2)%3

		bg, err := p.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  fmt.Sprintf("Emit Bind Group %d", r),
			Layout: p.emitPipe.GetBindGroupLayout(0),
			Entries: []wgpu.BindGroupEntry{
				entry(0, p.particleBufs[cur]),
				entry(1, p.counterBuf),
				entry(2, p.emitUB),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create emit bind group %d: %w", r, err)
		}
		p.emitBGs[r] = bg

		bg, err = p.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  fmt.Sprintf("Integrate Bind Group %d", r),
			Layout: p.integratePipe.GetBindGroupLayout(0),
			Entries: []wgpu.BindGroupEntry{
				entry(0, p.particleBufs[cur]),
				entry(1, p.particleBufs[next]),
				entry(2, p.simUB),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create integrate bind group %d: %w", r, err)
		}
		p.integrateBGs[r] = bg

		bg, err = p.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  fmt.Sprintf("Compact Bind Group %d", r),
			Layout: p.compactPipe.GetBindGroupLayout(0),
			Entries: []wgpu.BindGroupEntry{
				entry(0, p.particleBufs[next]),
				entry(1, p.particleBufs[out]),
				entry(2, p.counterBuf),
				entry(3, p.compactUB),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create compact bind group %d: %w", r, err)
		}
		p.compactBGs[r] = bg
	}

	// Resolve uses only the counter, uniforms and draw args; its auto layout
	// omits the particle buffers.
	bg, err := p.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Resolve Bind Group",
		Layout: p.resolvePipe.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			entry(2, p.counterBuf),
			entry(3, p.compactUB),
			entry(4, p.indirectBuf),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create resolve bind group: %w", err)
	}
	p.resolveBG = bg

	if p.quadBG, err = p.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Quad Render Bind Group",
		Layout:  p.quadPipe.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{entry(0, p.renderUB)},
	}); err != nil {
		return fmt.Errorf("failed to create quad bind group: %w", err)
	}
	if p.pointBG, err = p.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Point Render Bind Group",
		Layout:  p.pointPipe.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{entry(0, p.renderUB)},
	}); err != nil {
		return fmt.Errorf("failed to create point bind group: %w", err)
	}
	return nil
}

func (p *GpuPipeline) RenderMode() RenderMode { return p.mode }

// SetRenderMode switches between point and quad rendering. The resolve pass
// bakes the per-instance vertex count into the indirect args, so the mode
// must be written before the frame is encoded.
func (p *GpuPipeline) SetRenderMode(mode RenderMode) {
	p.mode = mode
	verts := uint32(6)
	if mode == RenderPoints {
		verts = 1
	}
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], uint32(p.cfg.Capacity))
	binary.LittleEndian.PutUint32(buf[4:], verts)
	p.queue.WriteBuffer(p.compactUB, 0, buf)
}

func putF32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
}

func putVec3(buf []byte, off int, v [3]float32) {
	putF32(buf, off, v[0])
	putF32(buf, off+4, v[1])
	putF32(buf, off+8, v[2])
}

// UpdateEmitUniforms uploads the emission parameters for this frame.
func (p *GpuPipeline) UpdateEmitUniforms(e EmitParams) {
	buf := make([]byte, 64)
	putVec3(buf, 0, e.Origin)
	putF32(buf, 12, e.Radius)
	putVec3(buf, 16, p.cfg.WorldUp)
	putF32(buf, 28, e.Lifetime)
	binary.LittleEndian.PutUint32(buf[32:], e.Count)
	binary.LittleEndian.PutUint32(buf[36:], uint32(e.Shape))
	binary.LittleEndian.PutUint32(buf[40:], e.Seed)
	putF32(buf, 44, p.cfg.G)
	binary.LittleEndian.PutUint32(buf[48:], uint32(p.cfg.Capacity))
	p.queue.WriteBuffer(p.emitUB, 0, buf)
}

// UpdateSimUniforms uploads the integration parameters for this frame.
func (p *GpuPipeline) UpdateSimUniforms(s IntegrateParams) {
	buf := make([]byte, 64)
	putVec3(buf, 0, s.Center)
	putF32(buf, 12, s.Dt)
	putF32(buf, 28, s.Strength)
	putF32(buf, 44, s.Drag)
	putF32(buf, 48, p.cfg.MinDistance)
	if s.Bounds != nil {
		putVec3(buf, 16, s.Bounds.Min)
		putVec3(buf, 32, s.Bounds.Max)
		binary.LittleEndian.PutUint32(buf[52:], 1)
	}
	p.queue.WriteBuffer(p.simUB, 0, buf)
}

// UpdateRenderUniforms uploads the camera parameters for this frame.
func (p *GpuPipeline) UpdateRenderUniforms(r RenderParams) {
	buf := make([]byte, 96)
	for i, v := range r.ViewProjection {
		putF32(buf, i*4, v)
	}
	putVec3(buf, 64, r.CameraPosition)
	putF32(buf, 76, p.cfg.ParticleSize)
	putVec3(buf, 80, p.cfg.WorldUp)
	p.queue.WriteBuffer(p.renderUB, 0, buf)
}

func dispatchGroups(n uint32) uint32 {
	return (n + workgroupSize - 1) / workgroupSize
}

// EncodeFrame records the full compute sequence for one frame. Pass ordering
// on the queue is the completion barrier between stages: each dispatch only
// starts after the previous one finished writing its buffer.
func (p *GpuPipeline) EncodeFrame(encoder *wgpu.CommandEncoder, emitCount uint32) {
	_, _, out := p.roles()

	if emitCount > 0 {
		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(p.emitPipe)
		pass.SetBindGroup(0, p.emitBGs[p.rotation], nil)
		pass.DispatchWorkgroups(dispatchGroups(emitCount), 1, 1)
		pass.End()
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p.integratePipe)
	pass.SetBindGroup(0, p.integrateBGs[p.rotation], nil)
	pass.DispatchWorkgroups(dispatchGroups(uint32(p.cfg.Capacity)), 1, 1)
	pass.End()

	// Counter reset and destination clear before compaction: a cleared slot
	// is a dead particle, so the full-extent scan can never resurrect stale
	// data.
	encoder.ClearBuffer(p.counterBuf, 0, p.counterBuf.GetSize())
	encoder.ClearBuffer(p.particleBufs[out], 0, p.particleBufs[out].GetSize())

	pass = encoder.BeginComputePass(nil)
	pass.SetPipeline(p.compactPipe)
	pass.SetBindGroup(0, p.compactBGs[p.rotation], nil)
	pass.DispatchWorkgroups(dispatchGroups(uint32(p.cfg.Capacity)), 1, 1)
	pass.End()

	pass = encoder.BeginComputePass(nil)
	pass.SetPipeline(p.resolvePipe)
	pass.SetBindGroup(0, p.resolveBG, nil)
	pass.DispatchWorkgroups(1, 1, 1)
	pass.End()
}

// EncodeDraw records the draw for the frame just encoded; must run in the
// same submission, after EncodeFrame and before Advance. The instance count
// comes from the indirect args the resolve pass wrote, so no host round trip
// happens.
func (p *GpuPipeline) EncodeDraw(pass *wgpu.RenderPassEncoder) {
	_, _, out := p.roles()

	if p.mode == RenderPoints {
		pass.SetPipeline(p.pointPipe)
		pass.SetBindGroup(0, p.pointBG, nil)
	} else {
		pass.SetPipeline(p.quadPipe)
		pass.SetBindGroup(0, p.quadBG, nil)
	}
	pass.SetVertexBuffer(0, p.particleBufs[out], 0, p.particleBufs[out].GetSize())
	pass.DrawIndirect(p.indirectBuf, 0)
}

// Advance rotates the buffer roles after the frame's submission: the
// compacted buffer becomes the next frame's current.
func (p *GpuPipeline) Advance() {
	p.rotation = (p.rotation + 2) % 3
}

// ReadLiveCount copies the counter to a staging buffer and maps it. Blocking;
// intended for debugging and tests, not the frame loop (the indirect args
// exist so the frame never needs this).
func (p *GpuPipeline) ReadLiveCount() (uint32, error) {
	encoder, err := p.dev.CreateCommandEncoder(nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create readback encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(p.counterBuf, 0, p.stagingBuf, 0, 4)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return 0, fmt.Errorf("failed to finish readback encoder: %w", err)
	}
	p.queue.Submit(cmd)

	done := false
	var mapErr error
	p.stagingBuf.MapAsync(wgpu.MapModeRead, 0, 4, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("counter readback map failed: status %v", status)
		}
		done = true
	})
	for !done {
		p.dev.Poll(true, nil)
	}
	if mapErr != nil {
		return 0, mapErr
	}
	defer p.stagingBuf.Unmap()

	data := p.stagingBuf.GetMappedRange(0, 4)
	count := binary.LittleEndian.Uint32(data)
	if count > uint32(p.cfg.Capacity) {
		count = uint32(p.cfg.Capacity)
	}
	return count, nil
}

func (p *GpuPipeline) Release() {
	bufs := []*wgpu.Buffer{
		p.counterBuf, p.indirectBuf, p.stagingBuf,
		p.emitUB, p.simUB, p.compactUB, p.renderUB,
	}
	for _, b := range p.particleBufs {
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		if b != nil {
			b.Release()
		}
	}
}
