package cgpu_test

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/cgpu/backend/null"
)

func (e *testEnv) swapchain(t *testing.T, images uint32) *cgpu.Swapchain {
	t.Helper()
	surface, err := e.inst.CreateSurface(cgpu.WindowHandle{Kind: cgpu.WindowXlib, Display: 1, Window: 2})
	require.NoError(t, err)
	t.Cleanup(surface.Free)
	sc, err := e.dev.CreateSwapchain(&cgpu.SwapchainDescriptor{
		Surface:       surface,
		PresentQueues: []*cgpu.Queue{e.queue},
		ImageCount:    images,
		Width:         800,
		Height:        600,
		EnableVsync:   true,
	})
	require.NoError(t, err)
	t.Cleanup(sc.Free)
	return sc
}

func clearFrame(t *testing.T, e *testEnv, sc *cgpu.Swapchain, f *cgpu.Frame) error {
	t.Helper()
	idx, err := sc.AcquireNextImage(&cgpu.AcquireNextDescriptor{Signal: f.ImageAcquired})
	if err != nil {
		return err
	}
	img := sc.Image(idx)
	cmd := f.Cmd
	require.NoError(t, cmd.Begin())
	require.NoError(t, cmd.ResourceBarrier(&cgpu.ResourceBarrierDescriptor{
		Textures: []cgpu.TextureBarrierDescriptor{{Texture: img, SrcState: cgpu.ResourceStatePresent, DstState: cgpu.ResourceStateRenderTarget}},
	}))
	require.NoError(t, cmd.ResourceBarrier(&cgpu.ResourceBarrierDescriptor{
		Textures: []cgpu.TextureBarrierDescriptor{{Texture: img, SrcState: cgpu.ResourceStateRenderTarget, DstState: cgpu.ResourceStatePresent}},
	}))
	require.NoError(t, cmd.End())
	require.NoError(t, e.queue.Submit(&cgpu.QueueSubmitDescriptor{
		CommandBuffers:   []*cgpu.CommandBuffer{cmd},
		WaitSemaphores:   []*cgpu.Semaphore{f.ImageAcquired},
		SignalSemaphores: []*cgpu.Semaphore{f.RenderFinished},
		SignalFence:      f.Fence,
	}))
	return e.queue.Present(&cgpu.QueuePresentDescriptor{
		Swapchain:      sc,
		WaitSemaphores: []*cgpu.Semaphore{f.RenderFinished},
		Index:          idx,
	})
}

func TestSwapchainCreation(t *testing.T) {
	e := newEnv(t)
	sc := e.swapchain(t, 3)

	assert.Equal(t, uint32(3), sc.ImageCount())
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, sc.Format())
	assert.Equal(t, gputypes.PresentModeMailbox, sc.PresentMode())
	assert.Equal(t, cgpu.Extent2D{Width: 800, Height: 600}, sc.Extent())
	for _, img := range sc.Images() {
		assert.Equal(t, uint32(800), img.Width())
		assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, img.Format())
	}
	nd := sc.Native().(*null.Swapchain).Desc
	assert.Equal(t, []uint32{0}, nd.QueueFamilies)
	assert.Nil(t, nd.Old)
}

func TestClearAndPresentFrameLoop(t *testing.T) {
	e := newEnv(t)
	sc := e.swapchain(t, 3)
	ring, err := e.dev.CreateFrameRing(e.queue, 2)
	require.NoError(t, err)
	defer ring.Free()
	require.Equal(t, 2, ring.Len())

	for range 5 {
		f, err := ring.Next()
		require.NoError(t, err)
		require.NoError(t, clearFrame(t, e, sc, f))
	}

	var acquired []uint32
	for _, c := range e.rec.Filter("Acquire") {
		acquired = append(acquired, c.Arg(0).(uint32))
	}
	assert.Equal(t, []uint32{0, 1, 2, 0, 1}, acquired)
	assert.Equal(t, 5, e.rec.Count("Submit"))
	assert.Equal(t, 5, e.rec.Count("Present"))
	// Slots are reused from the third frame on, after their fence wait.
	assert.Equal(t, 3, e.rec.Count("WaitFences"))

	for _, s := range e.rec.Filter("Submit") {
		assert.Equal(t, []any{1, 1, 1, true}, s.Args)
	}
	for _, p := range e.rec.Filter("Present") {
		assert.Equal(t, 1, p.Arg(1), "present did not wait on render finished")
	}
	for i := range ring.Len() {
		assert.False(t, ring.Frame(i).RenderFinished.Signaled())
		assert.False(t, ring.Frame(i).ImageAcquired.Signaled())
	}
}

func TestRenderPassFrameLoop(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := newEnvWith(t, null.DefaultConfig(), cgpu.WithLogger(logger))

	surface, err := e.inst.CreateSurface(cgpu.WindowHandle{Kind: cgpu.WindowXlib, Display: 1, Window: 2})
	require.NoError(t, err)
	defer surface.Free()
	sc, err := e.dev.CreateSwapchain(&cgpu.SwapchainDescriptor{
		Surface:       surface,
		PresentQueues: []*cgpu.Queue{e.queue},
		ImageCount:    3,
		Width:         640,
		Height:        480,
		EnableVsync:   true,
		Format:        gputypes.TextureFormatRGBA8Unorm,
	})
	require.NoError(t, err)
	defer sc.Free()
	require.Equal(t, gputypes.TextureFormatRGBA8Unorm, sc.Format())

	red := gputypes.Color{R: 1, A: 1}
	rp, err := e.dev.CreateRenderPass(&cgpu.RenderPassDescriptor{
		Name: "clear",
		ColorAttachments: []cgpu.AttachmentDescriptor{{
			Format: sc.Format(), LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore,
		}},
	})
	require.NoError(t, err)
	defer rp.Free()
	fbs := make([]*cgpu.Framebuffer, sc.ImageCount())
	for i := range fbs {
		v, err := e.dev.CreateTextureView(&cgpu.TextureViewDescriptor{Name: "backbuffer", Texture: sc.Image(uint32(i))})
		require.NoError(t, err)
		defer v.Free()
		fbs[i], err = e.dev.CreateFramebuffer(&cgpu.FramebufferDescriptor{RenderPass: rp, ColorViews: []*cgpu.TextureView{v}})
		require.NoError(t, err)
		defer fbs[i].Free()
	}

	ring, err := e.dev.CreateFrameRing(e.queue, 2)
	require.NoError(t, err)
	defer ring.Free()

	for range 5 {
		f, err := ring.Next()
		require.NoError(t, err)
		idx, err := sc.AcquireNextImage(&cgpu.AcquireNextDescriptor{Signal: f.ImageAcquired})
		require.NoError(t, err)
		img := sc.Image(idx)

		cmd := f.Cmd
		require.NoError(t, cmd.Begin())
		require.NoError(t, cmd.ResourceBarrier(&cgpu.ResourceBarrierDescriptor{
			Textures: []cgpu.TextureBarrierDescriptor{{Texture: img, SrcState: cgpu.ResourceStateUndefined, DstState: cgpu.ResourceStateRenderTarget}},
		}))
		pass, err := cmd.BeginRenderPass(&cgpu.BeginRenderPassDescriptor{
			RenderPass: rp, Framebuffer: fbs[idx],
			Clears: []cgpu.ClearValue{{Color: red}},
		})
		require.NoError(t, err)
		pass.SetViewport(0, 0, 640, 480, 0, 1)
		require.NoError(t, pass.End())
		require.NoError(t, cmd.ResourceBarrier(&cgpu.ResourceBarrierDescriptor{
			Textures: []cgpu.TextureBarrierDescriptor{{Texture: img, SrcState: cgpu.ResourceStateRenderTarget, DstState: cgpu.ResourceStatePresent}},
		}))
		require.NoError(t, cmd.End())
		require.NoError(t, e.queue.Submit(&cgpu.QueueSubmitDescriptor{
			CommandBuffers:   []*cgpu.CommandBuffer{cmd},
			WaitSemaphores:   []*cgpu.Semaphore{f.ImageAcquired},
			SignalSemaphores: []*cgpu.Semaphore{f.RenderFinished},
			SignalFence:      f.Fence,
		}))
		require.NoError(t, e.queue.Present(&cgpu.QueuePresentDescriptor{
			Swapchain:      sc,
			WaitSemaphores: []*cgpu.Semaphore{f.RenderFinished},
			Index:          idx,
		}))

		assert.Equal(t, []string{
			"PipelineBarrier", "BeginRenderPass", "SetViewport", "SetScissor", "SetViewport",
			"EndRenderPass", "PipelineBarrier",
		}, nativeOps(cmd))
		begin := nativeCalls(cmd, "BeginRenderPass")[0]
		assert.Equal(t, []cgpu.ClearValue{{Color: red}}, begin.Arg(2))
		vp := nativeCalls(cmd, "SetViewport")[1]
		assert.Equal(t, []any{float32(0), float32(0), float32(640), float32(480), float32(0), float32(1)}, vp.Args)
	}

	assert.Equal(t, 5, e.rec.Count("Submit"))
	assert.Equal(t, 5, e.rec.Count("Present"))
	assert.False(t, e.dev.IsLost())
	assert.NotContains(t, logs.String(), "level=ERROR")
}

func TestTexturedQuadDraw(t *testing.T) {
	e := newEnv(t)
	vs := e.library(t, "quad.vs", cgpu.ShaderStageVertex)
	fs := e.library(t, "quad.fs", cgpu.ShaderStageFragment,
		cgpu.ShaderResource{Name: "albedo", Binding: 0, Type: cgpu.ResourceTypeTexture},
		cgpu.ShaderResource{Name: "albedoSampler", Binding: 1, Type: cgpu.ResourceTypeSampler},
	)
	rs, err := e.dev.CreateRootSignature(&cgpu.RootSignatureDescriptor{
		Name: "quad",
		Shaders: []cgpu.PipelineShader{
			shader(vs, cgpu.ShaderStageVertex),
			shader(fs, cgpu.ShaderStageFragment),
		},
	})
	require.NoError(t, err)
	defer rs.Free()
	require.Equal(t, 1, rs.SetCount())
	require.Len(t, rs.Table(0).Resources, 2)

	rp, err := e.dev.CreateRenderPass(&cgpu.RenderPassDescriptor{
		Name:             "quad",
		ColorAttachments: []cgpu.AttachmentDescriptor{{Format: gputypes.TextureFormatRGBA8Unorm}},
	})
	require.NoError(t, err)
	defer rp.Free()
	fb, err := e.dev.CreateFramebuffer(&cgpu.FramebufferDescriptor{
		RenderPass: rp,
		ColorViews: []*cgpu.TextureView{e.view(t, "target")},
	})
	require.NoError(t, err)
	defer fb.Free()

	vsh, fsh := shader(vs, cgpu.ShaderStageVertex), shader(fs, cgpu.ShaderStageFragment)
	pipe, err := e.dev.CreateRenderPipeline(&cgpu.RenderPipelineDescriptor{
		Name:          "quad",
		RootSignature: rs,
		Vertex:        &vsh,
		Fragment:      &fsh,
		VertexLayout: &cgpu.VertexLayout{Attributes: []cgpu.VertexAttributeDescriptor{
			{Name: "pos", Format: gputypes.VertexFormatFloat32x2, Location: 0},
			{Name: "uv", Format: gputypes.VertexFormatFloat32x2, Location: 1, Offset: 8},
		}},
		RenderPass: rp,
		Topology:   gputypes.PrimitiveTopologyTriangleList,
	})
	require.NoError(t, err)
	defer pipe.Free()

	view := e.view(t, "albedo")
	smp, err := e.dev.CreateSampler(&cgpu.SamplerDescriptor{Name: "linear"})
	require.NoError(t, err)
	defer smp.Free()
	ds, err := e.dev.CreateDescriptorSet(rs, 0)
	require.NoError(t, err)
	defer ds.Free()
	require.NoError(t, ds.Update([]cgpu.DescriptorData{
		{Name: "albedo", Textures: []*cgpu.TextureView{view}},
		{Name: "albedoSampler", Samplers: []*cgpu.Sampler{smp}},
	}))
	recs := ds.Native().(*null.DescriptorSet).Records
	assert.Equal(t, [3]uint64{0, view.Native().NativeHandle(), uint64(cgpu.ImageLayoutShaderReadOnly)}, record(recs, 0))
	assert.Equal(t, [3]uint64{smp.Native().NativeHandle(), 0, 0}, record(recs, 1))

	vb := e.buffer(t, "quad.vb", 4*16, cgpu.BufferFlagNone)
	ib := e.buffer(t, "quad.ib", 6*2, cgpu.BufferFlagNone)

	_, cmd := e.commandBuffer(t)
	require.NoError(t, cmd.Begin())
	pass, err := cmd.BeginRenderPass(&cgpu.BeginRenderPassDescriptor{RenderPass: rp, Framebuffer: fb, Clears: []cgpu.ClearValue{{}}})
	require.NoError(t, err)
	pass.BindPipeline(pipe)
	pass.BindDescriptorSet(ds)
	pass.BindVertexBuffers(0, []*cgpu.Buffer{vb}, nil)
	pass.BindIndexBuffer(ib, gputypes.IndexFormatUint16, 0)
	pass.DrawIndexed(6, 0, 0)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.End())

	assert.Equal(t, []string{
		"BeginRenderPass", "SetViewport", "SetScissor", "BindPipeline", "BindDescriptorSet",
		"BindVertexBuffers", "BindIndexBuffer", "DrawIndexed", "EndRenderPass",
	}, nativeOps(cmd))
	bind := nativeCalls(cmd, "BindDescriptorSet")[0]
	assert.Equal(t, rs.PipelineLayout(), bind.Arg(0))
	assert.Equal(t, uint32(0), bind.Arg(1))
	assert.Equal(t, ds.Native(), bind.Arg(2))
	draw := nativeCalls(cmd, "DrawIndexed")[0]
	assert.Equal(t, []any{uint32(6), uint32(1), uint32(0), int32(0), uint32(0)}, draw.Args)
}

func TestOutOfDateRecreate(t *testing.T) {
	e := newEnv(t)
	sc := e.swapchain(t, 3)
	old := sc.Native().(*null.Swapchain)
	ring, err := e.dev.CreateFrameRing(e.queue, 2)
	require.NoError(t, err)
	defer ring.Free()

	f, err := ring.Next()
	require.NoError(t, err)
	require.NoError(t, clearFrame(t, e, sc, f))

	fence, err := e.dev.CreateFence()
	require.NoError(t, err)
	defer fence.Free()
	sem, err := e.dev.CreateSemaphore()
	require.NoError(t, err)
	defer sem.Free()

	e.rec.Inject("Acquire", cgpu.ErrOutOfDate)
	idx, err := sc.AcquireNextImage(&cgpu.AcquireNextDescriptor{Signal: sem, Fence: fence})
	assert.ErrorIs(t, err, cgpu.ErrOutOfDate)
	assert.Equal(t, cgpu.InvalidImageIndex, idx)
	assert.False(t, fence.Submitted())
	assert.False(t, sem.Signaled())
	assert.Equal(t, 1, e.rec.Count("ResetFences"))

	require.NoError(t, sc.Recreate(1024, 768))
	assert.True(t, old.Destroyed())
	assert.Equal(t, cgpu.Extent2D{Width: 1024, Height: 768}, sc.Extent())
	nd := sc.Native().(*null.Swapchain).Desc
	assert.Same(t, old, nd.Old.(*null.Swapchain))

	f, err = ring.Next()
	require.NoError(t, err)
	require.NoError(t, clearFrame(t, e, sc, f))
	assert.Equal(t, uint32(1024), sc.Image(0).Width())
}

func TestPresentOutOfDateIsReported(t *testing.T) {
	e := newEnv(t)
	sc := e.swapchain(t, 2)
	e.rec.Inject("Present", cgpu.ErrOutOfDate)
	err := e.queue.Present(&cgpu.QueuePresentDescriptor{Swapchain: sc})
	assert.ErrorIs(t, err, cgpu.ErrOutOfDate)
	assert.False(t, e.dev.IsLost())
}

func TestComputeUploadDispatchReadback(t *testing.T) {
	e := newEnv(t)
	cs := e.library(t, "double", cgpu.ShaderStageCompute,
		cgpu.ShaderResource{Name: "data", Binding: 0, Type: cgpu.ResourceTypeRWBuffer})
	rs, err := e.dev.CreateRootSignature(&cgpu.RootSignatureDescriptor{
		Name:    "double",
		Shaders: []cgpu.PipelineShader{shader(cs, cgpu.ShaderStageCompute)},
	})
	require.NoError(t, err)
	defer rs.Free()
	pipe, err := e.dev.CreateComputePipeline(&cgpu.ComputePipelineDescriptor{
		Name: "double", RootSignature: rs, Compute: shader(cs, cgpu.ShaderStageCompute),
	})
	require.NoError(t, err)
	defer pipe.Free()

	const n = 16
	upload := e.buffer(t, "upload", n*4, cgpu.BufferFlagPersistentMap)
	data := e.buffer(t, "data", n*4, cgpu.BufferFlagNone)
	readback := e.buffer(t, "readback", n*4, cgpu.BufferFlagPersistentMap)
	for i := range n {
		binary.LittleEndian.PutUint32(upload.Mapped()[i*4:], uint32(i*i))
	}

	ds, err := e.dev.CreateDescriptorSet(rs, 0)
	require.NoError(t, err)
	defer ds.Free()
	require.NoError(t, ds.Update([]cgpu.DescriptorData{{Name: "data", Buffers: []*cgpu.Buffer{data}}}))

	var cmd *cgpu.CommandBuffer
	err = e.queue.OneOff(func(c *cgpu.CommandBuffer) error {
		cmd = c
		if err := c.CopyBufferToBuffer(&cgpu.BufferToBufferCopy{Src: upload, Dst: data, Size: cgpu.WholeSize}); err != nil {
			return err
		}
		if err := c.ResourceBarrier(&cgpu.ResourceBarrierDescriptor{
			Buffers: []cgpu.BufferBarrierDescriptor{{Buffer: data, SrcState: cgpu.ResourceStateCopyDest, DstState: cgpu.ResourceStateUnorderedAccess}},
		}); err != nil {
			return err
		}
		pass, err := c.BeginComputePass()
		if err != nil {
			return err
		}
		pass.BindPipeline(pipe)
		pass.BindDescriptorSet(ds)
		pass.Dispatch(n/4, 1, 1)
		if err := pass.End(); err != nil {
			return err
		}
		if err := c.ResourceBarrier(&cgpu.ResourceBarrierDescriptor{
			Buffers: []cgpu.BufferBarrierDescriptor{{Buffer: data, SrcState: cgpu.ResourceStateUnorderedAccess, DstState: cgpu.ResourceStateCopySource}},
		}); err != nil {
			return err
		}
		return c.CopyBufferToBuffer(&cgpu.BufferToBufferCopy{Src: data, Dst: readback, Size: cgpu.WholeSize})
	})
	require.NoError(t, err)

	for i := range n {
		assert.Equal(t, uint32(i*i), binary.LittleEndian.Uint32(readback.Mapped()[i*4:]))
	}
	assert.Equal(t, []string{
		"CopyBufferToBuffer", "PipelineBarrier", "BeginComputePass", "BindPipeline",
		"BindDescriptorSet", "Dispatch", "EndComputePass", "PipelineBarrier", "CopyBufferToBuffer",
	}, nativeOps(cmd))
	assert.Equal(t, []any{uint32(4), uint32(1), uint32(1)}, nativeCalls(cmd, "Dispatch")[0].Args)
	assert.Equal(t, cgpu.CommandBufferExecutable, cmd.State())
}

func TestTimestampQueries(t *testing.T) {
	e := newEnv(t)
	pool, err := e.dev.CreateQueryPool(&cgpu.QueryPoolDescriptor{Name: "ts", Type: cgpu.QueryTypeTimestamp, Count: 4})
	require.NoError(t, err)
	defer pool.Free()
	results := e.buffer(t, "results", 16, cgpu.BufferFlagPersistentMap)
	small := e.buffer(t, "small", 8, cgpu.BufferFlagNone)

	err = e.queue.OneOff(func(c *cgpu.CommandBuffer) error {
		if err := c.ResetQueryPool(pool, 0, 4); err != nil {
			return err
		}
		if err := c.BeginQuery(pool, 0); err != nil {
			return err
		}
		if err := c.EndQuery(pool, 1); err != nil {
			return err
		}
		assert.Error(t, c.BeginQuery(pool, 4))
		assert.Error(t, c.ResolveQuery(pool, small, 0, 2))
		return c.ResolveQuery(pool, results, 0, 2)
	})
	require.NoError(t, err)

	begin := binary.LittleEndian.Uint64(results.Mapped()[0:])
	end := binary.LittleEndian.Uint64(results.Mapped()[8:])
	assert.Greater(t, end, begin)
	assert.Equal(t, 2, e.rec.Count("WriteTimestamp"))
	assert.Zero(t, e.rec.Count("BeginQuery"))
}

func TestTimestampQueriesUnsupported(t *testing.T) {
	cfg := null.DefaultConfig()
	cfg.Adapters[0].Detail.SupportsTimestamps = false
	e := newEnvWith(t, cfg)
	_, err := e.dev.CreateQueryPool(&cgpu.QueryPoolDescriptor{Type: cgpu.QueryTypeTimestamp, Count: 2})
	assert.ErrorIs(t, err, cgpu.ErrCreationFailed)
	assert.ErrorIs(t, err, cgpu.ErrUnsupported)

	_, err = e.dev.CreateQueryPool(&cgpu.QueryPoolDescriptor{Type: cgpu.QueryTypeOcclusion})
	assert.ErrorIs(t, err, cgpu.ErrCreationFailed)
}
