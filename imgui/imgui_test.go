package imgui

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/cgpu/backend/null"
	"github.com/gogpu/gputypes"
)

type env struct {
	dev  *cgpu.Device
	q    *cgpu.Queue
	rec  *null.Recorder
	pass *cgpu.RenderPass
	fb   *cgpu.Framebuffer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	drv := null.New(null.DefaultConfig())
	name := "null-" + strings.ReplaceAll(t.Name(), "/", "-")
	cgpu.Register(name, func() cgpu.Driver { return drv })
	t.Cleanup(func() { cgpu.Unregister(name) })

	inst, err := cgpu.CreateInstance(name)
	require.NoError(t, err)
	dev, err := inst.Adapters()[0].CreateDevice(&cgpu.DeviceDescriptor{
		Queues: []cgpu.QueueGroup{{Type: cgpu.QueueGraphics, Count: 1}},
	})
	require.NoError(t, err)
	q, err := dev.Queue(cgpu.QueueGraphics, 0)
	require.NoError(t, err)

	rp, err := dev.CreateRenderPass(&cgpu.RenderPassDescriptor{
		Name:             "ui",
		ColorAttachments: []cgpu.AttachmentDescriptor{{Format: gputypes.TextureFormatBGRA8Unorm, LoadOp: gputypes.LoadOpLoad}},
	})
	require.NoError(t, err)
	target, err := dev.CreateTexture(&cgpu.TextureDescriptor{
		Name: "target", Width: 200, Height: 100,
		Format:      gputypes.TextureFormatBGRA8Unorm,
		Descriptors: cgpu.ResourceTypeTexture,
	})
	require.NoError(t, err)
	view, err := dev.CreateTextureView(&cgpu.TextureViewDescriptor{Name: "target", Texture: target})
	require.NoError(t, err)
	fb, err := dev.CreateFramebuffer(&cgpu.FramebufferDescriptor{RenderPass: rp, ColorViews: []*cgpu.TextureView{view}})
	require.NoError(t, err)

	t.Cleanup(func() {
		fb.Free()
		view.Free()
		target.Free()
		rp.Free()
		dev.Free()
		inst.Free()
	})
	return &env{dev: dev, q: q, rec: drv.Recorder(), pass: rp, fb: fb}
}

func (e *env) renderer(t *testing.T, frames int) *Renderer {
	t.Helper()
	r, err := New(&RendererDescriptor{
		Device:         e.dev,
		Queue:          e.q,
		RenderPass:     e.pass,
		FramesInFlight: frames,
		Font:           &FontAtlas{Width: 2, Height: 2, Pixels: make([]byte, 16)},
	})
	require.NoError(t, err)
	t.Cleanup(r.Free)
	return r
}

// record runs fn inside a render pass and returns the native commands.
func (e *env) record(t *testing.T, fn func(pass *cgpu.RenderPassEncoder)) []null.Call {
	t.Helper()
	pool, err := e.dev.CreateCommandPool(e.q)
	require.NoError(t, err)
	t.Cleanup(pool.Free)
	cmd, err := pool.CreateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())
	pass, err := cmd.BeginRenderPass(&cgpu.BeginRenderPassDescriptor{RenderPass: e.pass, Framebuffer: e.fb})
	require.NoError(t, err)
	fn(pass)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.End())
	return cmd.Native().(*null.CommandBuffer).Commands
}

func filter(calls []null.Call, op string) []null.Call {
	var out []null.Call
	for _, c := range calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func quad(x, y float32) []DrawVert {
	return []DrawVert{
		{Pos: f32.Vec2{x, y}, Col: 0xff0000ff},
		{Pos: f32.Vec2{x + 10, y}, UV: f32.Vec2{1, 0}, Col: 0xff00ff00},
		{Pos: f32.Vec2{x + 10, y + 10}, UV: f32.Vec2{1, 1}, Col: 0xffff0000},
		{Pos: f32.Vec2{x, y + 10}, UV: f32.Vec2{0, 1}, Col: 0xffffffff},
	}
}

func frameData() *DrawData {
	return &DrawData{
		DisplaySize:      f32.Vec2{100, 50},
		FramebufferScale: f32.Vec2{2, 2},
		Lists: []*DrawList{
			{
				Vertices: quad(0, 0),
				Indices:  []uint16{0, 1, 2, 0, 2, 3},
				Commands: []DrawCmd{{ClipRect: f32.Vec4{0, 0, 100, 50}, ElemCount: 6}},
			},
			{
				Vertices: quad(20, 20)[:3],
				Indices:  []uint16{0, 1, 2, 2, 1, 0},
				Commands: []DrawCmd{
					{ClipRect: f32.Vec4{10, 10, 20, 20}, ElemCount: 3},
					{ClipRect: f32.Vec4{200, 200, 300, 300}, IdxOffset: 3, ElemCount: 3},
				},
			},
		},
	}
}

func TestNewUploadsFont(t *testing.T) {
	e := newEnv(t)
	e.renderer(t, 2)
	assert.Equal(t, 1, e.rec.Count("CopyBufferToTexture"))
	assert.Equal(t, 1, e.rec.Count("CreateRenderPipeline"))
	assert.Equal(t, 1, e.rec.Count("Submit"))
}

func TestNewErrors(t *testing.T) {
	e := newEnv(t)
	_, err := New(&RendererDescriptor{Device: e.dev, Queue: e.q, RenderPass: e.pass})
	require.Error(t, err, "no frames in flight")
	_, err = New(&RendererDescriptor{FramesInFlight: 1})
	require.Error(t, err, "no device")
	_, err = New(&RendererDescriptor{
		Device: e.dev, Queue: e.q, RenderPass: e.pass, FramesInFlight: 1,
		Font: &FontAtlas{Width: 4, Height: 4, Pixels: make([]byte, 8)},
	})
	require.Error(t, err, "short atlas")

	boom := errors.New("no spirv today")
	_, err = New(&RendererDescriptor{
		Device: e.dev, Queue: e.q, RenderPass: e.pass, FramesInFlight: 1,
		CompileSPIRV: func(string) ([]uint32, error) { return nil, boom },
	})
	require.ErrorIs(t, err, boom)
}

func TestRender(t *testing.T) {
	e := newEnv(t)
	r := e.renderer(t, 2)
	data := frameData()

	calls := e.record(t, func(pass *cgpu.RenderPassEncoder) {
		require.NoError(t, r.Render(pass, 0, data))
	})

	draws := filter(calls, "DrawIndexed")
	require.Len(t, draws, 2, "the command clipped away is skipped")
	assert.Equal(t, []any{uint32(6), uint32(1), uint32(0), int32(0), uint32(0)}, draws[0].Args)
	assert.Equal(t, []any{uint32(3), uint32(1), uint32(6), int32(4), uint32(0)}, draws[1].Args)

	scissors := filter(calls, "SetScissor")
	require.Len(t, scissors, 3)
	assert.Equal(t, []any{uint32(0), uint32(0), uint32(200), uint32(100)}, scissors[1].Args)
	assert.Equal(t, []any{uint32(20), uint32(20), uint32(20), uint32(20)}, scissors[2].Args)

	assert.Len(t, filter(calls, "BindDescriptorSet"), 1, "font bound once")
	pc := filter(calls, "PushConstants")
	require.Len(t, pc, 1)
	assert.Equal(t, putVec4(f32.Vec4{0.02, -0.04, -1, 1}), pc[0].Arg(3))

	vb := r.frames[0].vertex.Mapped()
	assert.Equal(t, float32(10), math.Float32frombits(binary.LittleEndian.Uint32(vb[VertexSize:])))
	assert.Equal(t, uint32(0xff00ff00), binary.LittleEndian.Uint32(vb[VertexSize+16:]))
	assert.Equal(t, float32(20), math.Float32frombits(binary.LittleEndian.Uint32(vb[4*VertexSize:])), "second list follows the first")
	ib := r.frames[0].index.Mapped()
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(ib[2*2:]))
	assert.Nil(t, r.frames[1].vertex, "other slot untouched")
}

func TestRenderGrowsBuffers(t *testing.T) {
	e := newEnv(t)
	r := e.renderer(t, 1)
	data := frameData()
	e.record(t, func(pass *cgpu.RenderPassEncoder) {
		require.NoError(t, r.Render(pass, 0, data))
	})
	first := r.frames[0].vertex

	big := make([]DrawVert, vertexChunk+100)
	data.Lists = append(data.Lists, &DrawList{Vertices: big, Indices: []uint16{0, 1, 2}})
	e.record(t, func(pass *cgpu.RenderPassEncoder) {
		require.NoError(t, r.Render(pass, 0, data))
	})
	assert.NotSame(t, first, r.frames[0].vertex)
	assert.GreaterOrEqual(t, r.frames[0].vertex.Size(), uint64(data.TotalVertices()*VertexSize))
}

func TestRenderTextures(t *testing.T) {
	e := newEnv(t)
	r := e.renderer(t, 1)
	tex, err := e.dev.CreateTexture(&cgpu.TextureDescriptor{
		Name: "image", Width: 8, Height: 8,
		Format:      gputypes.TextureFormatRGBA8Unorm,
		Descriptors: cgpu.ResourceTypeTexture,
	})
	require.NoError(t, err)
	defer tex.Free()
	view, err := e.dev.CreateTextureView(&cgpu.TextureViewDescriptor{Name: "image", Texture: tex})
	require.NoError(t, err)
	defer view.Free()

	id, err := r.RegisterTexture(view)
	require.NoError(t, err)
	assert.NotEqual(t, FontTexture, id)

	data := frameData()
	data.Lists[1].Commands[0].Texture = id
	calls := e.record(t, func(pass *cgpu.RenderPassEncoder) {
		require.NoError(t, r.Render(pass, 0, data))
	})
	assert.Len(t, filter(calls, "BindDescriptorSet"), 2)

	r.UnregisterTexture(id)
	e.record(t, func(pass *cgpu.RenderPassEncoder) {
		require.ErrorIs(t, r.Render(pass, 0, data), cgpu.ErrNotFound)
	})
}

func TestRenderCallback(t *testing.T) {
	e := newEnv(t)
	r := e.renderer(t, 1)
	data := frameData()
	var seen []*DrawList
	data.Lists[0].Commands = append(data.Lists[0].Commands, DrawCmd{
		Callback:   func(l *DrawList, _ *DrawCmd) { seen = append(seen, l) },
		ResetState: true,
	})
	calls := e.record(t, func(pass *cgpu.RenderPassEncoder) {
		require.NoError(t, r.Render(pass, 0, data))
	})
	require.Len(t, seen, 1)
	assert.Same(t, data.Lists[0], seen[0])
	assert.Len(t, filter(calls, "BindPipeline"), 2)
	assert.Len(t, filter(calls, "BindDescriptorSet"), 2, "rebound after the reset")
}

func TestRenderEmpty(t *testing.T) {
	e := newEnv(t)
	r := e.renderer(t, 1)
	calls := e.record(t, func(pass *cgpu.RenderPassEncoder) {
		require.NoError(t, r.Render(pass, 0, &DrawData{DisplaySize: f32.Vec2{100, 100}}))
		require.NoError(t, r.Render(pass, 0, &DrawData{Lists: frameData().Lists}))
	})
	assert.Empty(t, filter(calls, "DrawIndexed"))
	assert.Nil(t, r.frames[0].vertex)
}

func TestScissor(t *testing.T) {
	d := &DrawData{DisplayPos: f32.Vec2{10, 10}, DisplaySize: f32.Vec2{100, 100}}
	tests := []struct {
		clip       f32.Vec4
		x, y, w, h uint32
		ok         bool
	}{
		{f32.Vec4{10, 10, 110, 110}, 0, 0, 100, 100, true},
		{f32.Vec4{0, 0, 30, 40}, 0, 0, 20, 30, true},
		{f32.Vec4{60, 60, 500, 500}, 50, 50, 50, 50, true},
		{f32.Vec4{50, 50, 50, 80}, 0, 0, 0, 0, false},
		{f32.Vec4{200, 200, 300, 300}, 0, 0, 0, 0, false},
	}
	for _, tt := range tests {
		x, y, w, h, ok := d.Scissor(tt.clip)
		if x != tt.x || y != tt.y || w != tt.w || h != tt.h || ok != tt.ok {
			t.Errorf("Scissor(%v) = %d,%d %dx%d %v, want %d,%d %dx%d %v",
				tt.clip, x, y, w, h, ok, tt.x, tt.y, tt.w, tt.h, tt.ok)
		}
	}
}

func TestProjection(t *testing.T) {
	d := &DrawData{DisplayPos: f32.Vec2{0, 0}, DisplaySize: f32.Vec2{200, 100}}
	want := f32.Vec4{0.01, -0.02, -1, 1}
	if got := d.Projection(); got != want {
		t.Errorf("Projection() = %v, want %v", got, want)
	}
	d.DisplayPos = f32.Vec2{100, 50}
	want = f32.Vec4{0.01, -0.02, -2, 2}
	if got := d.Projection(); got != want {
		t.Errorf("Projection() with offset = %v, want %v", got, want)
	}
}
