package cgpu_test

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/cgpu/backend/null"
)

func (e *testEnv) commandBuffer(t *testing.T) (*cgpu.CommandPool, *cgpu.CommandBuffer) {
	t.Helper()
	pool, err := e.dev.CreateCommandPool(e.queue)
	require.NoError(t, err)
	t.Cleanup(pool.Free)
	cmd, err := pool.CreateCommandBuffer()
	require.NoError(t, err)
	return pool, cmd
}

func nativeOps(cmd *cgpu.CommandBuffer) []string {
	var ops []string
	for _, c := range cmd.Native().(*null.CommandBuffer).Commands {
		ops = append(ops, c.Op)
	}
	return ops
}

func nativeCalls(cmd *cgpu.CommandBuffer, op string) []null.Call {
	var out []null.Call
	for _, c := range cmd.Native().(*null.CommandBuffer).Commands {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func TestCommandBufferStateMachine(t *testing.T) {
	e := newEnv(t)
	pool, cmd := e.commandBuffer(t)
	a := e.buffer(t, "a", 16, cgpu.BufferFlagNone)
	b := e.buffer(t, "b", 16, cgpu.BufferFlagNone)
	assert.Equal(t, cgpu.CommandBufferInitial, cmd.State())

	var serr *cgpu.StateError
	err := cmd.End()
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "End", serr.Op)
	assert.Equal(t, cgpu.CommandBufferInitial, serr.State)
	assert.ErrorIs(t, err, cgpu.ErrInvalidState)

	require.NoError(t, cmd.Begin())
	assert.ErrorIs(t, cmd.Begin(), cgpu.ErrInvalidState)

	pass, err := cmd.BeginComputePass()
	require.NoError(t, err)
	assert.Equal(t, cgpu.CommandBufferInsidePass, cmd.State())
	err = cmd.CopyBufferToBuffer(&cgpu.BufferToBufferCopy{Src: a, Dst: b, Size: 16})
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, cgpu.CommandBufferInsidePass, serr.State)
	assert.ErrorIs(t, cmd.End(), cgpu.ErrInvalidState)
	_, err = cmd.BeginComputePass()
	assert.ErrorIs(t, err, cgpu.ErrInvalidState)

	require.NoError(t, pass.End())
	assert.ErrorIs(t, pass.End(), cgpu.ErrInvalidState)
	require.NoError(t, cmd.CopyBufferToBuffer(&cgpu.BufferToBufferCopy{Src: a, Dst: b, Size: cgpu.WholeSize}))
	require.NoError(t, cmd.End())
	assert.Equal(t, cgpu.CommandBufferExecutable, cmd.State())
	assert.ErrorIs(t, cmd.Begin(), cgpu.ErrInvalidState)

	assert.Equal(t, []string{"BeginComputePass", "EndComputePass", "CopyBufferToBuffer"}, nativeOps(cmd))

	require.NoError(t, pool.Reset())
	assert.Equal(t, cgpu.CommandBufferInitial, cmd.State())
	require.NoError(t, cmd.Begin())
}

func TestCopyBufferToBufferRange(t *testing.T) {
	e := newEnv(t)
	_, cmd := e.commandBuffer(t)
	a := e.buffer(t, "a", 16, cgpu.BufferFlagNone)
	b := e.buffer(t, "b", 8, cgpu.BufferFlagNone)
	require.NoError(t, cmd.Begin())
	assert.Error(t, cmd.CopyBufferToBuffer(&cgpu.BufferToBufferCopy{Src: a, Dst: b, Size: 16}))
	assert.Error(t, cmd.CopyBufferToBuffer(&cgpu.BufferToBufferCopy{Src: a, SrcOffset: 12, Dst: b, Size: 8}))
	require.NoError(t, cmd.CopyBufferToBuffer(&cgpu.BufferToBufferCopy{Src: a, SrcOffset: 8, Dst: b, Size: cgpu.WholeSize}))

	calls := nativeCalls(cmd, "CopyBufferToBuffer")
	require.Len(t, calls, 1)
	assert.Equal(t, []cgpu.BufferCopy{{SrcOffset: 8, Size: 8}}, calls[0].Arg(2))
}

func TestEncoderErrorsAreSticky(t *testing.T) {
	e := newEnv(t)
	pool, cmd := e.commandBuffer(t)
	require.NoError(t, cmd.Begin())
	pass, err := cmd.BeginComputePass()
	require.NoError(t, err)
	require.NoError(t, pass.End())

	pass.Dispatch(1, 1, 1)
	pass.Dispatch(2, 2, 2)
	assert.Empty(t, nativeCalls(cmd, "Dispatch"))

	err = cmd.End()
	var serr *cgpu.StateError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Dispatch", serr.Op)
	assert.Equal(t, cgpu.CommandBufferExecutable, cmd.State())

	require.NoError(t, pool.Reset())
	require.NoError(t, cmd.Begin())
	require.NoError(t, cmd.End(), "reset did not clear the encoder error")
}

func TestPushConstantsUnknownName(t *testing.T) {
	e := newEnv(t)
	cs := e.library(t, "cs", cgpu.ShaderStageCompute,
		cgpu.ShaderResource{Name: "params", Type: cgpu.ResourceTypePushConstant, Size: 16})
	rs, err := e.dev.CreateRootSignature(&cgpu.RootSignatureDescriptor{
		Shaders: []cgpu.PipelineShader{shader(cs, cgpu.ShaderStageCompute)},
	})
	require.NoError(t, err)
	defer rs.Free()

	_, cmd := e.commandBuffer(t)
	require.NoError(t, cmd.Begin())
	pass, err := cmd.BeginComputePass()
	require.NoError(t, err)
	pass.PushConstants(rs, "params", make([]byte, 16))
	pass.PushConstants(rs, "other", make([]byte, 4))
	require.NoError(t, pass.End())
	assert.ErrorIs(t, cmd.End(), cgpu.ErrNotFound)

	calls := nativeCalls(cmd, "PushConstants")
	require.Len(t, calls, 1)
	assert.Equal(t, cgpu.ShaderStageCompute, calls[0].Arg(1))
	assert.Equal(t, uint32(0), calls[0].Arg(2))
}

func TestBindDescriptorSetBindsEmptySets(t *testing.T) {
	e := newEnv(t)
	cs := e.library(t, "cs", cgpu.ShaderStageCompute,
		cgpu.ShaderResource{Name: "frame", Set: 0, Binding: 0, Type: cgpu.ResourceTypeUniformBuffer},
		cgpu.ShaderResource{Name: "out", Set: 1, Binding: 0, Type: cgpu.ResourceTypeRWBuffer})
	rs, err := e.dev.CreateRootSignature(&cgpu.RootSignatureDescriptor{
		Shaders: []cgpu.PipelineShader{shader(cs, cgpu.ShaderStageCompute)},
	})
	require.NoError(t, err)
	defer rs.Free()
	ds, err := e.dev.CreateDescriptorSet(rs, 1)
	require.NoError(t, err)
	defer ds.Free()

	_, cmd := e.commandBuffer(t)
	require.NoError(t, cmd.Begin())
	pass, err := cmd.BeginComputePass()
	require.NoError(t, err)
	pass.BindDescriptorSet(ds)
	pass.BindDescriptorSet(ds)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.End())

	calls := nativeCalls(cmd, "BindDescriptorSet")
	require.Len(t, calls, 3)
	assert.Equal(t, uint32(0), calls[0].Arg(1))
	assert.NotSame(t, ds.Native().(*null.DescriptorSet), calls[0].Arg(2).(*null.DescriptorSet))
	assert.Equal(t, uint32(1), calls[1].Arg(1))
	assert.Same(t, ds.Native().(*null.DescriptorSet), calls[1].Arg(2).(*null.DescriptorSet))
	assert.Equal(t, uint32(1), calls[2].Arg(1))
	assert.Equal(t, true, calls[2].Arg(3))
}

func TestBeginRenderPassSetsViewport(t *testing.T) {
	e := newEnv(t)
	rp, err := e.dev.CreateRenderPass(&cgpu.RenderPassDescriptor{
		Name:             "main",
		ColorAttachments: []cgpu.AttachmentDescriptor{{Format: gputypes.TextureFormatRGBA8Unorm}},
	})
	require.NoError(t, err)
	defer rp.Free()
	fb, err := e.dev.CreateFramebuffer(&cgpu.FramebufferDescriptor{
		RenderPass: rp,
		ColorViews: []*cgpu.TextureView{e.view(t, "color")},
	})
	require.NoError(t, err)
	defer fb.Free()
	assert.Equal(t, cgpu.Extent2D{Width: 4, Height: 4}, fb.Size())

	_, cmd := e.commandBuffer(t)
	require.NoError(t, cmd.Begin())
	pass, err := cmd.BeginRenderPass(&cgpu.BeginRenderPassDescriptor{
		RenderPass: rp, Framebuffer: fb,
		Clears: []cgpu.ClearValue{{}},
	})
	require.NoError(t, err)
	pass.Draw(3, 0)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.End())

	assert.Equal(t, []string{"BeginRenderPass", "SetViewport", "SetScissor", "Draw", "EndRenderPass"}, nativeOps(cmd))
	vp := nativeCalls(cmd, "SetViewport")[0]
	assert.Equal(t, []any{float32(0), float32(0), float32(4), float32(4), float32(0), float32(1)}, vp.Args)
	draw := nativeCalls(cmd, "Draw")[0]
	assert.Equal(t, []any{uint32(3), uint32(1), uint32(0), uint32(0)}, draw.Args)
}

func TestRenderPassDefaults(t *testing.T) {
	e := newEnv(t)
	rp, err := e.dev.CreateRenderPass(&cgpu.RenderPassDescriptor{
		ColorAttachments: []cgpu.AttachmentDescriptor{{Format: gputypes.TextureFormatBGRA8Unorm}},
		DepthStencil:     &cgpu.DepthAttachmentDescriptor{Format: gputypes.TextureFormatDepth32Float, DepthLoadOp: gputypes.LoadOpLoad},
	})
	require.NoError(t, err)
	defer rp.Free()

	desc := rp.Native().(*null.RenderPass).Desc
	require.Len(t, desc.Colors, 1)
	assert.Equal(t, gputypes.LoadOpClear, desc.Colors[0].LoadOp)
	assert.Equal(t, gputypes.StoreOpStore, desc.Colors[0].StoreOp)
	assert.Equal(t, uint32(1), desc.Colors[0].SampleCount)
	require.NotNil(t, desc.Depth)
	assert.Equal(t, gputypes.LoadOpLoad, desc.Depth.DepthLoadOp)
	assert.Equal(t, gputypes.LoadOpClear, desc.Depth.StencilLoadOp)

	_, err = e.dev.CreateFramebuffer(&cgpu.FramebufferDescriptor{RenderPass: rp})
	assert.ErrorIs(t, err, cgpu.ErrCreationFailed)
}

func TestEmptyResourceBarrierIsDropped(t *testing.T) {
	e := newEnv(t)
	_, cmd := e.commandBuffer(t)
	require.NoError(t, cmd.Begin())
	require.NoError(t, cmd.ResourceBarrier(&cgpu.ResourceBarrierDescriptor{}))
	assert.Empty(t, nativeOps(cmd))
}

func TestSubmitRequiresExecutable(t *testing.T) {
	e := newEnv(t)
	_, cmd := e.commandBuffer(t)
	require.NoError(t, cmd.Begin())

	err := e.queue.Submit(&cgpu.QueueSubmitDescriptor{CommandBuffers: []*cgpu.CommandBuffer{cmd}})
	var serr *cgpu.StateError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Submit", serr.Op)
	assert.Equal(t, cgpu.CommandBufferRecording, serr.State)
	assert.Zero(t, e.rec.Count("Submit"))
}

func TestDebugMarkersOnlyWhileRecording(t *testing.T) {
	e := newEnv(t)
	_, cmd := e.commandBuffer(t)
	cmd.SetMarker("before", gputypes.Color{})
	require.NoError(t, cmd.Begin())
	cmd.BeginEvent("frame", gputypes.Color{R: 1})
	cmd.SetMarker("mid", gputypes.Color{})
	cmd.EndEvent()
	require.NoError(t, cmd.End())
	cmd.SetMarker("after", gputypes.Color{})
	assert.Equal(t, []string{"BeginEvent", "SetMarker", "EndEvent"}, nativeOps(cmd))
}
