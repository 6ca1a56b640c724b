package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/cgpu/config"
	"github.com/gogpu/cgpu/imgui"
	"github.com/gogpu/cgpu/profiler"
	"github.com/gogpu/cgpu/reflection"
	"github.com/gogpu/gputypes"
)

const triangleShader = `
struct FrameUniforms {
    angle: f32,
    aspect: f32,
    pad: vec2<f32>,
}

@group(0) @binding(0) var<uniform> frame: FrameUniforms;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) color: vec3<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> VertexOutput {
    var positions = array<vec2<f32>, 3>(
        vec2<f32>(0.0, 0.6),
        vec2<f32>(-0.6, -0.5),
        vec2<f32>(0.6, -0.5),
    );
    var colors = array<vec3<f32>, 3>(
        vec3<f32>(1.0, 0.3, 0.2),
        vec3<f32>(0.2, 1.0, 0.3),
        vec3<f32>(0.3, 0.2, 1.0),
    );
    let p = positions[index];
    let c = cos(frame.angle);
    let s = sin(frame.angle);
    var o: VertexOutput;
    o.position = vec4<f32>((p.x * c - p.y * s) / frame.aspect, p.x * s + p.y * c, 0.0, 1.0);
    o.color = colors[index];
    return o;
}

@fragment
fn fs_main(v: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(v.color, 1.0);
}
`

type app struct {
	log     *slog.Logger
	cfg     *config.File
	window  *glfw.Window
	inst    *cgpu.Instance
	dev     *cgpu.Device
	queue   *cgpu.Queue
	surface *cgpu.Surface
	sc      *cgpu.Swapchain
	pass    *cgpu.RenderPass
	views   []*cgpu.TextureView
	fbs     []*cgpu.Framebuffer
	ring    *cgpu.FrameRing

	library  *cgpu.ShaderLibrary
	rs       *cgpu.RootSignature
	pipeline *cgpu.RenderPipeline
	uniforms []*cgpu.Buffer
	sets     []*cgpu.DescriptorSet

	ui      *imgui.Renderer
	prof    *profiler.Profiler
	timings *profiler.Result
	resized bool
	start   time.Time
}

func newApp(log *slog.Logger, cfg *config.File, window *glfw.Window) (*app, error) {
	a := &app{log: log, cfg: cfg, window: window, start: time.Now()}
	if err := a.init(); err != nil {
		a.free()
		return nil, err
	}
	window.SetFramebufferSizeCallback(func(*glfw.Window, int, int) { a.resized = true })
	return a, nil
}

func (a *app) init() error {
	opts := append(a.cfg.InstanceOptions(a.log),
		cgpu.WithInstanceExtensions(a.window.GetRequiredInstanceExtensions()...))
	var err error
	if a.inst, err = cgpu.CreateInstance(a.cfg.Backend, opts...); err != nil {
		return err
	}
	a.log.Info("cgpudemo: instance", "backend", a.inst.Backend(), "adapters", len(a.inst.Adapters()))

	a.surface, err = a.inst.CreateSurface(cgpu.WindowHandle{
		Create: func(instance uintptr) (uintptr, error) {
			return a.window.CreateWindowSurface(vk.Instance(unsafe.Pointer(instance)), nil)
		},
	})
	if err != nil {
		return err
	}
	adapter, err := a.cfg.Adapter(a.inst)
	if err != nil {
		return err
	}
	a.log.Info("cgpudemo: adapter", "adapter", adapter.String())
	if a.dev, err = adapter.CreateDevice(a.cfg.DeviceDescriptor()); err != nil {
		return err
	}
	if a.queue, err = a.dev.Queue(cgpu.QueueGraphics, 0); err != nil {
		return err
	}

	w, h := a.window.GetFramebufferSize()
	desc := a.cfg.SwapchainDescriptor(a.surface, a.queue)
	desc.Width, desc.Height = uint32(w), uint32(h)
	if a.sc, err = a.dev.CreateSwapchain(desc); err != nil {
		return err
	}
	a.pass, err = a.dev.CreateRenderPass(&cgpu.RenderPassDescriptor{
		Name: "main",
		ColorAttachments: []cgpu.AttachmentDescriptor{{
			Format:  a.sc.Format(),
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
		}},
	})
	if err != nil {
		return err
	}
	if err := a.createFramebuffers(); err != nil {
		return err
	}
	if a.ring, err = a.dev.CreateFrameRing(a.queue, a.cfg.Swapchain.FramesInFlight); err != nil {
		return err
	}
	if err := a.createTriangle(); err != nil {
		return err
	}

	var spirv func(string) ([]uint32, error)
	if a.inst.Backend() == cgpu.BackendVulkan {
		spirv = compileSPIRV
	}
	a.ui, err = imgui.New(&imgui.RendererDescriptor{
		Device:         a.dev,
		Queue:          a.queue,
		RenderPass:     a.pass,
		FramesInFlight: a.ring.Len(),
		CompileSPIRV:   spirv,
	})
	if err != nil {
		a.log.Warn("cgpudemo: overlay disabled", "err", err)
		a.ui = nil
	}
	if a.cfg.Profile {
		if a.prof, err = profiler.New(a.dev, a.queue, a.ring.Len()); err != nil {
			a.log.Warn("cgpudemo: profiler disabled", "err", err)
			a.prof = nil
		}
	}
	return nil
}

func (a *app) createFramebuffers() error {
	for i, img := range a.sc.Images() {
		v, err := a.dev.CreateTextureView(&cgpu.TextureViewDescriptor{
			Name:      fmt.Sprintf("back buffer %d", i),
			Texture:   img,
			Dimension: gputypes.TextureViewDimension2D,
			Usage:     cgpu.ResourceTypeRenderTarget,
		})
		if err != nil {
			return err
		}
		a.views = append(a.views, v)
		fb, err := a.dev.CreateFramebuffer(&cgpu.FramebufferDescriptor{
			RenderPass: a.pass,
			ColorViews: []*cgpu.TextureView{v},
		})
		if err != nil {
			return err
		}
		a.fbs = append(a.fbs, fb)
	}
	return nil
}

func (a *app) freeFramebuffers() {
	for _, fb := range a.fbs {
		fb.Free()
	}
	for _, v := range a.views {
		v.Free()
	}
	a.fbs, a.views = nil, nil
}

func (a *app) createTriangle() error {
	ld, err := reflection.Descriptor("triangle", triangleShader)
	if err != nil {
		return err
	}
	if a.inst.Backend() == cgpu.BackendVulkan {
		if ld.SPIRV, err = compileSPIRV(triangleShader); err != nil {
			return fmt.Errorf("compile triangle: %w", err)
		}
	}
	if a.library, err = a.dev.CreateShaderLibrary(ld); err != nil {
		return err
	}
	vs := cgpu.PipelineShader{Library: a.library, Stage: cgpu.ShaderStageVertex, Entry: "vs_main"}
	fs := cgpu.PipelineShader{Library: a.library, Stage: cgpu.ShaderStageFragment, Entry: "fs_main"}
	if a.rs, err = a.dev.CreateRootSignature(&cgpu.RootSignatureDescriptor{
		Name:    "triangle",
		Shaders: []cgpu.PipelineShader{vs, fs},
	}); err != nil {
		return err
	}
	a.pipeline, err = a.dev.CreateRenderPipeline(&cgpu.RenderPipelineDescriptor{
		Name:          "triangle",
		RootSignature: a.rs,
		Vertex:        &vs,
		Fragment:      &fs,
		Rasterizer:    &cgpu.RasterizerState{CullMode: gputypes.CullModeNone},
		RenderPass:    a.pass,
		Topology:      gputypes.PrimitiveTopologyTriangleList,
	})
	if err != nil {
		return err
	}
	for i := range a.ring.Len() {
		b, err := a.dev.CreateBuffer(&cgpu.BufferDescriptor{
			Name:        fmt.Sprintf("frame uniforms %d", i),
			Size:        16,
			Descriptors: cgpu.ResourceTypeUniformBuffer,
			MemoryUsage: cgpu.MemoryUsageCPUToGPU,
			Flags:       cgpu.BufferFlagPersistentMap,
		})
		if err != nil {
			return err
		}
		a.uniforms = append(a.uniforms, b)
		ds, err := a.dev.CreateDescriptorSet(a.rs, 0)
		if err != nil {
			return err
		}
		a.sets = append(a.sets, ds)
		if err := ds.Update([]cgpu.DescriptorData{{Name: "frame", Buffers: []*cgpu.Buffer{b}}}); err != nil {
			return err
		}
	}
	return nil
}

// recreate rebuilds the swapchain and its framebuffers for the current
// window size. A minimized window waits until it is restored.
func (a *app) recreate() error {
	w, h := a.window.GetFramebufferSize()
	for (w == 0 || h == 0) && !a.window.ShouldClose() {
		glfw.WaitEvents()
		w, h = a.window.GetFramebufferSize()
	}
	if err := a.dev.WaitIdle(); err != nil {
		return err
	}
	a.freeFramebuffers()
	if err := a.sc.Recreate(uint32(w), uint32(h)); err != nil {
		return err
	}
	a.resized = false
	a.log.Debug("cgpudemo: swapchain recreated", "width", w, "height", h)
	return a.createFramebuffers()
}

func (a *app) writeUniforms(slot uint32) {
	ext := a.sc.Extent()
	angle := float32(time.Since(a.start).Seconds())
	aspect := float32(ext.Width) / float32(max(ext.Height, 1))
	data := a.uniforms[slot].Mapped()
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(angle))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(aspect))
}

func (a *app) frame() error {
	if a.resized {
		return a.recreate()
	}
	f, err := a.ring.Next()
	if err != nil {
		return err
	}
	idx, err := a.sc.AcquireNextImage(&cgpu.AcquireNextDescriptor{Signal: f.ImageAcquired})
	if errors.Is(err, cgpu.ErrOutOfDate) {
		return a.recreate()
	}
	if err != nil {
		return err
	}

	cmd := f.Cmd
	if err := cmd.Begin(); err != nil {
		return err
	}
	if a.prof != nil {
		last, err := a.prof.Begin(cmd, f.Index)
		if err != nil {
			return err
		}
		if last != nil {
			a.timings = last
		}
	}
	a.writeUniforms(f.Index)

	img := a.sc.Image(idx)
	if err := cmd.ResourceBarrier(&cgpu.ResourceBarrierDescriptor{
		Textures: []cgpu.TextureBarrierDescriptor{{Texture: img, SrcState: cgpu.ResourceStatePresent, DstState: cgpu.ResourceStateRenderTarget}},
	}); err != nil {
		return err
	}
	cmd.BeginEvent("scene", gputypes.Color{R: 0.2, G: 0.6, B: 1, A: 1})
	pass, err := cmd.BeginRenderPass(&cgpu.BeginRenderPassDescriptor{
		Name:        "main",
		RenderPass:  a.pass,
		Framebuffer: a.fbs[idx],
		Clears:      []cgpu.ClearValue{{Color: gputypes.Color{R: 0.08, G: 0.08, B: 0.1, A: 1}}},
	})
	if err != nil {
		return err
	}
	pass.BindPipeline(a.pipeline)
	pass.BindDescriptorSet(a.sets[f.Index])
	pass.Draw(3, 0)
	if a.ui != nil {
		if err := a.ui.Render(pass, f.Index, a.overlay()); err != nil {
			return err
		}
	}
	if err := pass.End(); err != nil {
		return err
	}
	cmd.EndEvent()
	if a.prof != nil {
		if err := a.prof.Mark(cmd, f.Index, "scene"); err != nil {
			return err
		}
	}
	if err := cmd.ResourceBarrier(&cgpu.ResourceBarrierDescriptor{
		Textures: []cgpu.TextureBarrierDescriptor{{Texture: img, SrcState: cgpu.ResourceStateRenderTarget, DstState: cgpu.ResourceStatePresent}},
	}); err != nil {
		return err
	}
	if a.prof != nil {
		if err := a.prof.End(cmd, f.Index); err != nil {
			return err
		}
	}
	if err := cmd.End(); err != nil {
		return err
	}

	if err := a.queue.Submit(&cgpu.QueueSubmitDescriptor{
		CommandBuffers:   []*cgpu.CommandBuffer{cmd},
		WaitSemaphores:   []*cgpu.Semaphore{f.ImageAcquired},
		SignalSemaphores: []*cgpu.Semaphore{f.RenderFinished},
		SignalFence:      f.Fence,
	}); err != nil {
		return err
	}
	err = a.queue.Present(&cgpu.QueuePresentDescriptor{
		Swapchain:      a.sc,
		WaitSemaphores: []*cgpu.Semaphore{f.RenderFinished},
		Index:          idx,
	})
	if errors.Is(err, cgpu.ErrOutOfDate) {
		return a.recreate()
	}
	return err
}

func (a *app) free() {
	if a.dev != nil {
		if err := a.dev.WaitIdle(); err != nil {
			a.log.Warn("cgpudemo: wait idle", "err", err)
		}
	}
	if a.prof != nil {
		a.prof.Free()
	}
	if a.ui != nil {
		a.ui.Free()
	}
	for _, ds := range a.sets {
		ds.Free()
	}
	for _, b := range a.uniforms {
		b.Free()
	}
	if a.pipeline != nil {
		a.pipeline.Free()
	}
	if a.rs != nil {
		a.rs.Free()
	}
	if a.library != nil {
		a.library.Free()
	}
	if a.ring != nil {
		a.ring.Free()
	}
	a.freeFramebuffers()
	if a.pass != nil {
		a.pass.Free()
	}
	if a.sc != nil {
		a.sc.Free()
	}
	if a.dev != nil {
		a.dev.Free()
	}
	if a.surface != nil {
		a.surface.Free()
	}
	if a.inst != nil {
		a.inst.Free()
	}
}
