package imgui

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/cgpu/reflection"
	"github.com/gogpu/gputypes"
)

const (
	vertexChunk = 5000
	indexChunk  = 10000
)

// FontAtlas is an RGBA8 image uploaded as the font texture.
type FontAtlas struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

// RendererDescriptor configures a Renderer.
type RendererDescriptor struct {
	Device *cgpu.Device
	Queue  *cgpu.Queue // uploads the font atlas

	// The pipeline targets RenderPass, or ColorFormat where render passes
	// are not required.
	RenderPass  *cgpu.RenderPass
	ColorFormat gputypes.TextureFormat
	SampleCount uint32

	FramesInFlight int
	Font           *FontAtlas // nil uploads a single white texel

	// CompileSPIRV turns Shader into SPIR-V for backends that cannot take
	// WGSL. Nil passes WGSL only.
	CompileSPIRV func(wgsl string) ([]uint32, error)
	Pool         *cgpu.RootSignaturePool
}

type frameBuffers struct {
	vertex *cgpu.Buffer
	index  *cgpu.Buffer
}

type fontTexture struct {
	texture *cgpu.Texture
	view    *cgpu.TextureView
}

// Renderer draws DrawData into a render pass.
type Renderer struct {
	device   *cgpu.Device
	queue    *cgpu.Queue
	log      *slog.Logger
	library  *cgpu.ShaderLibrary
	sampler  *cgpu.Sampler
	rs       *cgpu.RootSignature
	pipeline *cgpu.RenderPipeline
	font     fontTexture
	textures map[TextureID]*cgpu.DescriptorSet
	nextID   TextureID
	frames   []frameBuffers
}

// New creates the pipeline, uploads the font atlas and prepares buffers
// for desc.FramesInFlight frames.
func New(desc *RendererDescriptor) (*Renderer, error) {
	if desc.Device == nil || desc.Queue == nil {
		return nil, errors.New("imgui: renderer needs a device and a queue")
	}
	if desc.FramesInFlight <= 0 {
		return nil, fmt.Errorf("imgui: %d frames in flight", desc.FramesInFlight)
	}
	r := &Renderer{
		device:   desc.Device,
		queue:    desc.Queue,
		log:      desc.Device.Logger(),
		textures: make(map[TextureID]*cgpu.DescriptorSet),
		nextID:   FontTexture + 1,
		frames:   make([]frameBuffers, desc.FramesInFlight),
	}
	if err := r.createPipeline(desc); err != nil {
		r.Free()
		return nil, err
	}
	font := desc.Font
	if font == nil {
		font = &FontAtlas{Width: 1, Height: 1, Pixels: []byte{0xff, 0xff, 0xff, 0xff}}
	}
	if err := r.SetFont(font); err != nil {
		r.Free()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) createPipeline(desc *RendererDescriptor) error {
	ld, err := reflection.Descriptor("imgui", Shader)
	if err != nil {
		return fmt.Errorf("imgui: %w", err)
	}
	if desc.CompileSPIRV != nil {
		if ld.SPIRV, err = desc.CompileSPIRV(Shader); err != nil {
			return fmt.Errorf("imgui: compile shader: %w", err)
		}
	}
	if r.library, err = r.device.CreateShaderLibrary(ld); err != nil {
		return err
	}
	r.sampler, err = r.device.CreateSampler(&cgpu.SamplerDescriptor{
		Name:       "imgui sampler",
		MinFilter:  gputypes.FilterModeLinear,
		MagFilter:  gputypes.FilterModeLinear,
		MipmapMode: gputypes.MipmapFilterModeLinear,
		AddressU:   gputypes.AddressModeClampToEdge,
		AddressV:   gputypes.AddressModeClampToEdge,
		AddressW:   gputypes.AddressModeClampToEdge,
	})
	if err != nil {
		return err
	}
	vs := cgpu.PipelineShader{Library: r.library, Stage: cgpu.ShaderStageVertex, Entry: "vs_main"}
	fs := cgpu.PipelineShader{Library: r.library, Stage: cgpu.ShaderStageFragment, Entry: "fs_main"}
	r.rs, err = r.device.CreateRootSignature(&cgpu.RootSignatureDescriptor{
		Name:           "imgui",
		Shaders:        []cgpu.PipelineShader{vs, fs},
		StaticSamplers: []cgpu.StaticSampler{{Name: samplerName, Sampler: r.sampler}},
		Pool:           desc.Pool,
	})
	if err != nil {
		return err
	}

	var colors []gputypes.TextureFormat
	if desc.RenderPass == nil {
		colors = []gputypes.TextureFormat{desc.ColorFormat}
	}
	blend := &cgpu.BlendState{}
	blend.SrcFactors[0] = gputypes.BlendFactorSrcAlpha
	blend.DstFactors[0] = gputypes.BlendFactorOneMinusSrcAlpha
	blend.SrcAlphaFactors[0] = gputypes.BlendFactorOne
	blend.DstAlphaFactors[0] = gputypes.BlendFactorOneMinusSrcAlpha
	blend.Masks[0] = gputypes.ColorWriteMaskAll
	r.pipeline, err = r.device.CreateRenderPipeline(&cgpu.RenderPipelineDescriptor{
		Name:          "imgui",
		RootSignature: r.rs,
		Vertex:        &vs,
		Fragment:      &fs,
		VertexLayout: &cgpu.VertexLayout{
			Attributes: []cgpu.VertexAttributeDescriptor{
				{Name: "pos", Format: gputypes.VertexFormatFloat32x2, Location: 0, Offset: 0, Rate: gputypes.VertexStepModeVertex},
				{Name: "uv", Format: gputypes.VertexFormatFloat32x2, Location: 1, Offset: 8, Rate: gputypes.VertexStepModeVertex},
				{Name: "color", Format: gputypes.VertexFormatUnorm8x4, Location: 2, Offset: 16, Rate: gputypes.VertexStepModeVertex},
			},
			Strides: map[uint32]uint32{0: VertexSize},
		},
		Blend:        blend,
		Rasterizer:   &cgpu.RasterizerState{CullMode: gputypes.CullModeNone, Scissor: true},
		SampleCount:  max(desc.SampleCount, 1),
		ColorFormats: colors,
		RenderPass:   desc.RenderPass,
		Topology:     gputypes.PrimitiveTopologyTriangleList,
	})
	return err
}

// SetFont uploads atlas as the font texture, replacing the previous one.
// It waits for the upload and must not race with frames using the old font.
func (r *Renderer) SetFont(atlas *FontAtlas) error {
	size := uint64(atlas.Width) * uint64(atlas.Height) * 4
	if size == 0 || uint64(len(atlas.Pixels)) < size {
		return fmt.Errorf("imgui: font atlas %dx%d has %d bytes", atlas.Width, atlas.Height, len(atlas.Pixels))
	}
	tex, err := r.device.CreateTexture(&cgpu.TextureDescriptor{
		Name:        "imgui font",
		Width:       atlas.Width,
		Height:      atlas.Height,
		Format:      gputypes.TextureFormatRGBA8Unorm,
		Descriptors: cgpu.ResourceTypeTexture,
		StartState:  cgpu.ResourceStateCopyDest,
	})
	if err != nil {
		return err
	}
	staging, err := r.device.CreateBuffer(&cgpu.BufferDescriptor{
		Name:        "imgui font staging",
		Size:        size,
		MemoryUsage: cgpu.MemoryUsageCPUToGPU,
		Flags:       cgpu.BufferFlagPersistentMap,
		StartState:  cgpu.ResourceStateCopySource,
	})
	if err != nil {
		tex.Free()
		return err
	}
	defer staging.Free()
	copy(staging.Mapped(), atlas.Pixels[:size])

	err = r.queue.OneOff(func(cmd *cgpu.CommandBuffer) error {
		if err := cmd.CopyBufferToTexture(&cgpu.BufferToTextureCopy{
			Src:         staging,
			BytesPerRow: atlas.Width * 4,
			Dst:         tex,
			LayerCount:  1,
		}); err != nil {
			return err
		}
		return cmd.ResourceBarrier(&cgpu.ResourceBarrierDescriptor{
			Textures: []cgpu.TextureBarrierDescriptor{{
				Texture:  tex,
				SrcState: cgpu.ResourceStateCopyDest,
				DstState: cgpu.ResourceStatePixelShaderResource,
			}},
		})
	})
	if err != nil {
		tex.Free()
		return fmt.Errorf("imgui: upload font: %w", err)
	}
	view, err := r.device.CreateTextureView(&cgpu.TextureViewDescriptor{
		Name:      "imgui font",
		Texture:   tex,
		Dimension: gputypes.TextureViewDimension2D,
		Usage:     cgpu.ResourceTypeTexture,
	})
	if err != nil {
		tex.Free()
		return err
	}
	ds, err := r.bindTexture(view)
	if err != nil {
		view.Free()
		tex.Free()
		return err
	}
	r.freeFont()
	r.font = fontTexture{texture: tex, view: view}
	r.textures[FontTexture] = ds
	r.log.Debug("imgui: font uploaded", "width", atlas.Width, "height", atlas.Height)
	return nil
}

func (r *Renderer) bindTexture(view *cgpu.TextureView) (*cgpu.DescriptorSet, error) {
	ds, err := r.device.CreateDescriptorSet(r.rs, 0)
	if err != nil {
		return nil, err
	}
	if err := ds.Update([]cgpu.DescriptorData{{Name: textureName, Textures: []*cgpu.TextureView{view}}}); err != nil {
		ds.Free()
		return nil, err
	}
	return ds, nil
}

// RegisterTexture makes view drawable by the returned ID. The view must
// stay alive until it is unregistered.
func (r *Renderer) RegisterTexture(view *cgpu.TextureView) (TextureID, error) {
	ds, err := r.bindTexture(view)
	if err != nil {
		return 0, err
	}
	id := r.nextID
	r.nextID++
	r.textures[id] = ds
	return id, nil
}

// UnregisterTexture releases the binding of id. No frame in flight may
// still use it.
func (r *Renderer) UnregisterTexture(id TextureID) {
	if id == FontTexture {
		return
	}
	if ds, ok := r.textures[id]; ok {
		ds.Free()
		delete(r.textures, id)
	}
}

// ensure grows the buffers of one frame slot to hold the frame's geometry.
func (r *Renderer) ensure(fb *frameBuffers, vertices, indices int) error {
	vsize := uint64(vertices) * VertexSize
	if fb.vertex == nil || fb.vertex.Size() < vsize {
		b, err := r.device.CreateBuffer(&cgpu.BufferDescriptor{
			Name:        "imgui vertices",
			Size:        uint64(vertices+vertexChunk) * VertexSize,
			Descriptors: cgpu.ResourceTypeVertexBuffer,
			MemoryUsage: cgpu.MemoryUsageCPUToGPU,
			Flags:       cgpu.BufferFlagPersistentMap,
			StartState:  cgpu.ResourceStateVertexAndConstantBuffer,
		})
		if err != nil {
			return err
		}
		if fb.vertex != nil {
			fb.vertex.Free()
		}
		fb.vertex = b
	}
	isize := uint64(indices) * 2
	if fb.index == nil || fb.index.Size() < isize {
		b, err := r.device.CreateBuffer(&cgpu.BufferDescriptor{
			Name:        "imgui indices",
			Size:        uint64(indices+indexChunk) * 2,
			Descriptors: cgpu.ResourceTypeIndexBuffer,
			MemoryUsage: cgpu.MemoryUsageCPUToGPU,
			Flags:       cgpu.BufferFlagPersistentMap,
			StartState:  cgpu.ResourceStateIndexBuffer,
		})
		if err != nil {
			return err
		}
		if fb.index != nil {
			fb.index.Free()
		}
		fb.index = b
	}
	return nil
}

func (r *Renderer) setupState(pass *cgpu.RenderPassEncoder, fb *frameBuffers, data *DrawData) {
	w, h := data.FramebufferSize()
	pass.BindPipeline(r.pipeline)
	pass.BindVertexBuffers(0, []*cgpu.Buffer{fb.vertex}, nil)
	pass.BindIndexBuffer(fb.index, gputypes.IndexFormatUint16, 0)
	pass.SetViewport(0, 0, w, h, 0, 1)
	pass.PushConstants(r.rs, projectionName, putVec4(data.Projection()))
}

// Render records data into pass using the buffers of frame slot frame,
// whose previous submission must have completed.
func (r *Renderer) Render(pass *cgpu.RenderPassEncoder, frame uint32, data *DrawData) error {
	w, h := data.FramebufferSize()
	if w <= 0 || h <= 0 {
		return nil
	}
	vertices, indices := data.TotalVertices(), data.TotalIndices()
	if vertices == 0 || indices == 0 {
		return nil
	}
	fb := &r.frames[int(frame)%len(r.frames)]
	if err := r.ensure(fb, vertices, indices); err != nil {
		return fmt.Errorf("imgui: %w", err)
	}
	vdst, idst := fb.vertex.Mapped(), fb.index.Mapped()
	vo, io := 0, 0
	for _, l := range data.Lists {
		putVertices(vdst[vo*VertexSize:], l.Vertices)
		putIndices(idst[io*2:], l.Indices)
		vo += len(l.Vertices)
		io += len(l.Indices)
	}

	r.setupState(pass, fb, data)
	bound := TextureID(^uint64(0))
	vo, io = 0, 0
	for _, l := range data.Lists {
		for i := range l.Commands {
			cmd := &l.Commands[i]
			if cmd.Callback != nil {
				cmd.Callback(l, cmd)
				if cmd.ResetState {
					r.setupState(pass, fb, data)
					bound = TextureID(^uint64(0))
				}
				continue
			}
			x, y, sw, sh, ok := data.Scissor(cmd.ClipRect)
			if !ok || cmd.ElemCount == 0 {
				continue
			}
			if cmd.Texture != bound {
				ds, found := r.textures[cmd.Texture]
				if !found {
					return fmt.Errorf("imgui: %w: texture %d", cgpu.ErrNotFound, cmd.Texture)
				}
				pass.BindDescriptorSet(ds)
				bound = cmd.Texture
			}
			pass.SetScissor(x, y, sw, sh)
			pass.DrawIndexed(cmd.ElemCount, cmd.IdxOffset+uint32(io), int32(cmd.VtxOffset)+int32(vo))
		}
		vo += len(l.Vertices)
		io += len(l.Indices)
	}
	return nil
}

func (r *Renderer) freeFont() {
	if ds, ok := r.textures[FontTexture]; ok {
		ds.Free()
		delete(r.textures, FontTexture)
	}
	if r.font.view != nil {
		r.font.view.Free()
	}
	if r.font.texture != nil {
		r.font.texture.Free()
	}
	r.font = fontTexture{}
}

// Free releases every object of the renderer. The device must be idle.
func (r *Renderer) Free() {
	for id, ds := range r.textures {
		if id != FontTexture {
			ds.Free()
			delete(r.textures, id)
		}
	}
	r.freeFont()
	for i := range r.frames {
		if fb := &r.frames[i]; fb.vertex != nil {
			fb.vertex.Free()
			fb.vertex = nil
		}
		if fb := &r.frames[i]; fb.index != nil {
			fb.index.Free()
			fb.index = nil
		}
	}
	if r.pipeline != nil {
		r.pipeline.Free()
	}
	if r.rs != nil {
		r.rs.Free()
	}
	if r.sampler != nil {
		r.sampler.Free()
	}
	if r.library != nil {
		r.library.Free()
	}
}
