package nebula

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/nebula3d/nebula/shaders"
)

type TextVertex struct {
	Pos   [2]float32
	UV    [2]float32
	Color [4]float32
}

const textVertexStride = 32

type TextItem struct {
	Text     string
	Position [2]float32 // pixels, top-left origin
	Scale    float32
	Color    [4]float32
}

type glyphInfo struct {
	uvMin [2]float32
	uvMax [2]float32
	size  [2]float32
	off   [2]float32
	adv   float32
}

// Overlay draws screen-space stats text on top of the particle pass. Glyphs
// come from the builtin bitmap face packed into a small alpha atlas, so no
// font assets ship with the binary.
type Overlay struct {
	face   font.Face
	glyphs map[rune]glyphInfo
	items  []TextItem

	dev   *wgpu.Device
	queue *wgpu.Queue

	pipeline    *wgpu.RenderPipeline
	atlasView   *wgpu.TextureView
	sampler     *wgpu.Sampler
	bindGroup   *wgpu.BindGroup
	vertexBuf   *wgpu.Buffer
	vertexCount uint32
}

func NewOverlay(gpu *GpuState) (*Overlay, error) {
	o := &Overlay{
		face:   basicfont.Face7x13,
		glyphs: make(map[rune]glyphInfo),
		dev:    gpu.Device(),
		queue:  gpu.Queue(),
	}

	atlas := o.buildAtlas()
	if err := o.createGpuResources(atlas, gpu.SurfaceFormat()); err != nil {
		return nil, err
	}
	return o, nil
}

const atlasSize = 256

func (o *Overlay) buildAtlas() *image.Alpha {
	atlas := image.NewAlpha(image.Rect(0, 0, atlasSize, atlasSize))

	x, y := 2, 2
	rowHeight := 0

	for r := rune(32); r < 127; r++ {
		bounds, mask, _, adv, ok := o.face.Glyph(fixed.Point26_6{}, r)
		if !ok {
			continue
		}

		w := bounds.Dx()
		h := bounds.Dy()

		if x+w >= atlasSize {
			x = 2
			y += rowHeight + 2
			rowHeight = 0
		}
		if y+h >= atlasSize {
			break
		}

		draw.Draw(atlas, image.Rect(x, y, x+w, y+h), mask, mask.Bounds().Min, draw.Src)

		o.glyphs[r] = glyphInfo{
			uvMin: [2]float32{float32(x) / atlasSize, float32(y) / atlasSize},
			uvMax: [2]float32{float32(x+w) / atlasSize, float32(y+h) / atlasSize},
			size:  [2]float32{float32(w), float32(h)},
			off:   [2]float32{float32(bounds.Min.X), float32(bounds.Min.Y)},
			adv:   float32(adv) / 64.0,
		}

		x += w + 2
		if h > rowHeight {
			rowHeight = h
		}
	}
	return atlas
}

func (o *Overlay) createGpuResources(atlas *image.Alpha, surfaceFormat wgpu.TextureFormat) error {
	w, h := atlas.Bounds().Dx(), atlas.Bounds().Dy()
	tex, err := o.dev.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Overlay Atlas",
		Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		Format:        wgpu.TextureFormatR8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return fmt.Errorf("failed to create overlay atlas texture: %w", err)
	}
	o.queue.WriteTexture(tex.AsImageCopy(), atlas.Pix, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(w),
		RowsPerImage: uint32(h),
	}, &wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1})

	o.atlasView, err = tex.CreateView(nil)
	if err != nil {
		return fmt.Errorf("failed to create overlay atlas view: %w", err)
	}

	o.sampler, err = o.dev.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeNearest,
		MagFilter:     wgpu.FilterModeNearest,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create overlay sampler: %w", err)
	}

	mod, err := o.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Overlay Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.OverlayWGSL},
	})
	if err != nil {
		return fmt.Errorf("failed to compile overlay shader: %w", err)
	}
	defer mod.Release()

	o.pipeline, err = o.dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Overlay Pipeline",
		Vertex: wgpu.VertexState{
			Module:     mod,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: textVertexStride,
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
					{Format: wgpu.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
					{Format: wgpu.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 2},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     mod,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format: surfaceFormat,
				Blend: &wgpu.BlendState{
					Color: wgpu.BlendComponent{
						SrcFactor: wgpu.BlendFactorSrcAlpha,
						DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
						Operation: wgpu.BlendOperationAdd,
					},
					Alpha: wgpu.BlendComponent{
						SrcFactor: wgpu.BlendFactorOne,
						DstFactor: wgpu.BlendFactorOne,
						Operation: wgpu.BlendOperationAdd,
					},
				},
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		// Shares the particle pass and its depth attachment; text neither
		// tests nor writes depth.
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth32Float,
			DepthWriteEnabled: false,
			DepthCompare:      wgpu.CompareFunctionAlways,
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
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create overlay pipeline: %w", err)
	}

	o.bindGroup, err = o.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: o.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: o.atlasView},
			{Binding: 1, Sampler: o.sampler},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create overlay bind group: %w", err)
	}
	return nil
}

func (o *Overlay) Clear() {
	o.items = o.items[:0]
	o.vertexCount = 0
}

func (o *Overlay) Print(text string, x, y, scale float32, color [4]float32) {
	o.items = append(o.items, TextItem{Text: text, Position: [2]float32{x, y}, Scale: scale, Color: color})
}

// BuildVertices lays the queued items out in clip space for the given screen
// size. Exposed for tests; Upload is the frame-loop entry point.
func (o *Overlay) BuildVertices(screenW, screenH int) []TextVertex {
	vertices := make([]TextVertex, 0, len(o.items)*6*8)

	sw := float32(screenW)
	sh := float32(screenH)
	metrics := o.face.Metrics()
	ascent := float32(metrics.Ascent.Ceil())
	lineHeight := float32(metrics.Height.Ceil())

	for _, item := range o.items {
		startX := item.Position[0]
		posX := startX
		posY := item.Position[1] + ascent*item.Scale

		for _, r := range item.Text {
			if r == '\n' {
				posX = startX
				posY += lineHeight * item.Scale
				continue
			}

			g, ok := o.glyphs[r]
			if !ok {
				continue
			}

			x0 := (posX+g.off[0]*item.Scale)/sw*2.0 - 1.0
			y0 := 1.0 - (posY+g.off[1]*item.Scale)/sh*2.0
			x1 := (posX+(g.off[0]+g.size[0])*item.Scale)/sw*2.0 - 1.0
			y1 := 1.0 - (posY+(g.off[1]+g.size[1])*item.Scale)/sh*2.0

			vertices = append(vertices,
				TextVertex{Pos: [2]float32{x0, y0}, UV: [2]float32{g.uvMin[0], g.uvMin[1]}, Color: item.Color},
				TextVertex{Pos: [2]float32{x1, y0}, UV: [2]float32{g.uvMax[0], g.uvMin[1]}, Color: item.Color},
				TextVertex{Pos: [2]float32{x0, y1}, UV: [2]float32{g.uvMin[0], g.uvMax[1]}, Color: item.Color},
				TextVertex{Pos: [2]float32{x1, y0}, UV: [2]float32{g.uvMax[0], g.uvMin[1]}, Color: item.Color},
				TextVertex{Pos: [2]float32{x1, y1}, UV: [2]float32{g.uvMax[0], g.uvMax[1]}, Color: item.Color},
				TextVertex{Pos: [2]float32{x0, y1}, UV: [2]float32{g.uvMin[0], g.uvMax[1]}, Color: item.Color},
			)

			posX += g.adv * item.Scale
		}
	}
	return vertices
}

func encodeTextVertices(vertices []TextVertex) []byte {
	buf := make([]byte, len(vertices)*textVertexStride)
	for i, v := range vertices {
		off := i * textVertexStride
		floats := []float32{
			v.Pos[0], v.Pos[1],
			v.UV[0], v.UV[1],
			v.Color[0], v.Color[1], v.Color[2], v.Color[3],
		}
		for j, f := range floats {
			binary.LittleEndian.PutUint32(buf[off+j*4:], math.Float32bits(f))
		}
	}
	return buf
}

// Upload rebuilds the vertex buffer from the queued items; call once per frame
// after Print and before EncodeDraw.
func (o *Overlay) Upload(screenW, screenH int) error {
	vertices := o.BuildVertices(screenW, screenH)
	o.vertexCount = uint32(len(vertices))
	if len(vertices) == 0 {
		return nil
	}

	data := encodeTextVertices(vertices)
	size := uint64(len(data))
	if o.vertexBuf == nil || o.vertexBuf.GetSize() < size {
		if o.vertexBuf != nil {
			o.vertexBuf.Release()
		}
		buf, err := o.dev.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "Overlay Vertex Buffer",
			Size:  size,
			Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("failed to create overlay vertex buffer: %w", err)
		}
		o.vertexBuf = buf
	}
	o.queue.WriteBuffer(o.vertexBuf, 0, data)
	return nil
}

func (o *Overlay) EncodeDraw(pass *wgpu.RenderPassEncoder) {
	if o.vertexCount == 0 || o.vertexBuf == nil {
		return
	}
	pass.SetPipeline(o.pipeline)
	pass.SetBindGroup(0, o.bindGroup, nil)
	pass.SetVertexBuffer(0, o.vertexBuf, 0, o.vertexBuf.GetSize())
	pass.Draw(o.vertexCount, 1, 0, 0)
}

func (o *Overlay) Release() {
	if o.vertexBuf != nil {
		o.vertexBuf.Release()
	}
	if o.sampler != nil {
		o.sampler.Release()
	}
	if o.atlasView != nil {
		o.atlasView.Release()
	}
}
