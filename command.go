package cgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// CommandBufferState is the recording state of a CommandBuffer.
type CommandBufferState uint8

const (
	CommandBufferInitial CommandBufferState = iota
	CommandBufferRecording
	CommandBufferInsidePass
	CommandBufferExecutable
)

func (s CommandBufferState) String() string {
	switch s {
	case CommandBufferInitial:
		return "Initial"
	case CommandBufferRecording:
		return "Recording"
	case CommandBufferInsidePass:
		return "InsidePass"
	case CommandBufferExecutable:
		return "Executable"
	default:
		return "Unknown"
	}
}

// CommandPool allocates command buffers for one queue family. Resetting the
// pool returns every buffer it allocated to Initial; the caller must make
// sure none is still executing.
type CommandPool struct {
	device  *Device
	queue   *Queue
	native  NativeCommandPool
	buffers []*CommandBuffer
}

// CreateCommandPool creates a pool for q's family.
func (d *Device) CreateCommandPool(q *Queue) (*CommandPool, error) {
	np, err := d.native.CreateCommandPool(q.family)
	if err != nil {
		return nil, creationFailed("CreateCommandPool", logNative(d.log, "CreateCommandPool", err))
	}
	return &CommandPool{device: d, queue: q, native: np}, nil
}

// Queue returns the queue the pool records for.
func (p *CommandPool) Queue() *Queue { return p.queue }

// CreateCommandBuffer allocates a command buffer in the Initial state.
func (p *CommandPool) CreateCommandBuffer() (*CommandBuffer, error) {
	nc, err := p.native.Allocate()
	if err != nil {
		return nil, creationFailed("AllocateCommandBuffer", logNative(p.device.log, "AllocateCommandBuffer", err))
	}
	c := &CommandBuffer{device: p.device, pool: p, native: nc}
	p.buffers = append(p.buffers, c)
	return c, nil
}

// Reset recycles every command buffer of the pool.
func (p *CommandPool) Reset() error {
	if err := p.native.Reset(); err != nil {
		return p.device.classify("ResetCommandPool", err)
	}
	for _, c := range p.buffers {
		c.state = CommandBufferInitial
		c.err = nil
	}
	return nil
}

// Free destroys the pool and every command buffer it allocated.
func (p *CommandPool) Free() {
	for _, c := range p.buffers {
		c.native = nil
	}
	p.buffers = nil
	if p.native != nil {
		p.native.Destroy()
		p.native = nil
	}
}

// CommandBuffer records commands. Structural calls (Begin, End, passes,
// barriers, copies) return a *StateError when issued in the wrong state.
// Encoder calls made after their pass ended are recorded as a sticky error
// that End returns.
type CommandBuffer struct {
	device *Device
	pool   *CommandPool
	native NativeCommandBuffer
	state  CommandBufferState
	err    error

	boundLayout NativePipelineLayout
}

// State returns the current recording state.
func (c *CommandBuffer) State() CommandBufferState { return c.state }

// Native returns the backend command buffer.
func (c *CommandBuffer) Native() NativeCommandBuffer { return c.native }

// Pool returns the owning pool.
func (c *CommandBuffer) Pool() *CommandPool { return c.pool }

func (c *CommandBuffer) queueType() QueueType { return c.pool.queue.typ }

func (c *CommandBuffer) expect(op string, want CommandBufferState) error {
	if c.state != want {
		return &StateError{Op: op, State: c.state}
	}
	return nil
}

// expectRecording accepts Recording and InsidePass.
func (c *CommandBuffer) expectRecording(op string) error {
	if c.state != CommandBufferRecording && c.state != CommandBufferInsidePass {
		return &StateError{Op: op, State: c.state}
	}
	return nil
}

func (c *CommandBuffer) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Begin starts recording. The bound pipeline layout cache is cleared.
func (c *CommandBuffer) Begin() error {
	if err := c.expect("Begin", CommandBufferInitial); err != nil {
		return err
	}
	if err := c.native.Begin(); err != nil {
		return c.device.classify("BeginCommandBuffer", err)
	}
	c.state = CommandBufferRecording
	c.boundLayout = nil
	c.err = nil
	return nil
}

// End finishes recording and reports the first encoder error, if any.
func (c *CommandBuffer) End() error {
	if err := c.expect("End", CommandBufferRecording); err != nil {
		return err
	}
	if err := c.native.End(); err != nil {
		return c.device.classify("EndCommandBuffer", err)
	}
	c.state = CommandBufferExecutable
	return c.err
}

// Free releases the command buffer. Buffers are also released with their
// pool.
func (c *CommandBuffer) Free() {
	if c.native != nil {
		c.native.Free()
		c.native = nil
	}
}

// ResourceBarrier transitions buffers and textures with one native barrier.
func (c *CommandBuffer) ResourceBarrier(desc *ResourceBarrierDescriptor) error {
	if err := c.expect("ResourceBarrier", CommandBufferRecording); err != nil {
		return err
	}
	if len(desc.Buffers) == 0 && len(desc.Textures) == 0 {
		return nil
	}
	c.native.PipelineBarrier(translateBarriers(c.device.adapter, c.queueType(), desc))
	return nil
}

// BeginRenderPassDescriptor starts a render pass on a framebuffer. Clears
// holds one value per color attachment followed by depth/stencil.
type BeginRenderPassDescriptor struct {
	Name        string
	RenderPass  *RenderPass
	Framebuffer *Framebuffer
	Clears      []ClearValue
}

// BeginRenderPass enters a render pass. Viewport and scissor are set to the
// whole framebuffer.
func (c *CommandBuffer) BeginRenderPass(desc *BeginRenderPassDescriptor) (*RenderPassEncoder, error) {
	if err := c.expect("BeginRenderPass", CommandBufferRecording); err != nil {
		return nil, err
	}
	if desc.RenderPass == nil || desc.Framebuffer == nil {
		return nil, fmt.Errorf("cgpu: render pass %q needs a render pass and framebuffer", desc.Name)
	}
	c.native.BeginRenderPass(desc.RenderPass.native, desc.Framebuffer.native, desc.Clears)
	c.state = CommandBufferInsidePass
	size := desc.Framebuffer.Size()
	c.native.SetViewport(0, 0, float32(size.Width), float32(size.Height), 0, 1)
	c.native.SetScissor(0, 0, size.Width, size.Height)
	return &RenderPassEncoder{passEncoder{cmd: c}}, nil
}

// BeginComputePass enters a compute pass.
func (c *CommandBuffer) BeginComputePass() (*ComputePassEncoder, error) {
	if err := c.expect("BeginComputePass", CommandBufferRecording); err != nil {
		return nil, err
	}
	c.native.BeginComputePass()
	c.state = CommandBufferInsidePass
	return &ComputePassEncoder{passEncoder{cmd: c, compute: true}}, nil
}

// BufferToBufferCopy copies Size bytes between buffers.
type BufferToBufferCopy struct {
	Src       *Buffer
	SrcOffset uint64
	Dst       *Buffer
	DstOffset uint64
	Size      uint64
}

// CopyBufferToBuffer records a buffer copy outside a pass.
func (c *CommandBuffer) CopyBufferToBuffer(desc *BufferToBufferCopy) error {
	if err := c.expect("CopyBufferToBuffer", CommandBufferRecording); err != nil {
		return err
	}
	size := desc.Size
	if size == WholeSize {
		size = desc.Src.desc.Size - desc.SrcOffset
	}
	if desc.SrcOffset+size > desc.Src.desc.Size || desc.DstOffset+size > desc.Dst.desc.Size {
		return fmt.Errorf("cgpu: copy of %d bytes out of buffer range", size)
	}
	c.native.CopyBufferToBuffer(desc.Src.native, desc.Dst.native,
		[]BufferCopy{{SrcOffset: desc.SrcOffset, DstOffset: desc.DstOffset, Size: size}})
	return nil
}

// BufferToTextureCopy uploads one mip level of a texture from a buffer. A
// zero BytesPerRow is derived from the texture format.
type BufferToTextureCopy struct {
	Src            *Buffer
	SrcOffset      uint64
	BytesPerRow    uint32
	Dst            *Texture
	MipLevel       uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// CopyBufferToTexture records a buffer to texture copy outside a pass. The
// texture must be in CopyDest state.
func (c *CommandBuffer) CopyBufferToTexture(desc *BufferToTextureCopy) error {
	if err := c.expect("CopyBufferToTexture", CommandBufferRecording); err != nil {
		return err
	}
	t := desc.Dst
	w := max(t.desc.Width>>desc.MipLevel, 1)
	h := max(t.desc.Height>>desc.MipLevel, 1)
	bpr := desc.BytesPerRow
	if bpr == 0 {
		bpp := BytesPerPixel(t.desc.Format)
		if bpp == 0 {
			return fmt.Errorf("cgpu: copy to %s texture needs BytesPerRow", t.desc.Format)
		}
		bpr = w * bpp
	}
	c.native.CopyBufferToTexture(desc.Src.native, t.native, []BufferTextureCopy{{
		BufferOffset:   desc.SrcOffset,
		BytesPerRow:    bpr,
		RowsPerImage:   h,
		Aspect:         t.aspect,
		MipLevel:       desc.MipLevel,
		BaseArrayLayer: desc.BaseArrayLayer,
		LayerCount:     max(desc.LayerCount, 1),
		Width:          w,
		Height:         h,
		DepthOrLayers:  max(t.desc.Depth>>desc.MipLevel, 1),
	}})
	return nil
}

// BytesPerPixel returns the texel size of uncompressed color and depth
// formats, 0 otherwise.
func BytesPerPixel(f gputypes.TextureFormat) uint32 {
	switch {
	case f >= gputypes.TextureFormatR8Unorm && f <= gputypes.TextureFormatR8Sint:
		return 1
	case f >= gputypes.TextureFormatR16Unorm && f <= gputypes.TextureFormatRG8Sint:
		return 2
	case f >= gputypes.TextureFormatR32Float && f <= gputypes.TextureFormatRGB9E5Ufloat:
		return 4
	case f >= gputypes.TextureFormatRG32Float && f <= gputypes.TextureFormatRGBA16Float:
		return 8
	case f >= gputypes.TextureFormatRGBA32Float && f <= gputypes.TextureFormatRGBA32Sint:
		return 16
	case f == gputypes.TextureFormatStencil8:
		return 1
	case f == gputypes.TextureFormatDepth16Unorm:
		return 2
	case f == gputypes.TextureFormatDepth24Plus, f == gputypes.TextureFormatDepth24PlusStencil8,
		f == gputypes.TextureFormatDepth32Float:
		return 4
	default:
		return 0
	}
}

// BeginEvent opens a named debug region.
func (c *CommandBuffer) BeginEvent(name string, color gputypes.Color) {
	if c.native != nil && c.state != CommandBufferInitial && c.state != CommandBufferExecutable {
		c.native.BeginEvent(name, color)
	}
}

// EndEvent closes the innermost debug region.
func (c *CommandBuffer) EndEvent() {
	if c.native != nil && c.state != CommandBufferInitial && c.state != CommandBufferExecutable {
		c.native.EndEvent()
	}
}

// SetMarker inserts a named debug marker.
func (c *CommandBuffer) SetMarker(name string, color gputypes.Color) {
	if c.native != nil && c.state != CommandBufferInitial && c.state != CommandBufferExecutable {
		c.native.SetMarker(name, color)
	}
}

// bindDescriptorSet binds set, first binding the empty set of every other
// set index when the root signature's pipeline layout changes. Vulkan
// requires every set of a layout to be bound before the first draw.
func (c *CommandBuffer) bindDescriptorSet(ds *DescriptorSet, compute bool) {
	core := ds.rs.core
	if c.boundLayout != core.layout {
		c.boundLayout = core.layout
		for i, es := range core.emptySets {
			if es != nil && uint32(i) != ds.set {
				c.native.BindDescriptorSet(core.layout, uint32(i), es, compute)
			}
		}
	}
	c.native.BindDescriptorSet(core.layout, ds.set, ds.native, compute)
}

type passEncoder struct {
	cmd     *CommandBuffer
	compute bool
	ended   bool
}

func (e *passEncoder) ok(op string) bool {
	if e.ended || e.cmd.state != CommandBufferInsidePass {
		e.cmd.fail(&StateError{Op: op, State: e.cmd.state})
		return false
	}
	return true
}

// BindDescriptorSet binds a descriptor set for the following draws or
// dispatches.
func (e *passEncoder) BindDescriptorSet(ds *DescriptorSet) {
	if e.ok("BindDescriptorSet") {
		e.cmd.bindDescriptorSet(ds, e.compute)
	}
}

// PushConstants updates the named push constant range of rs.
func (e *passEncoder) PushConstants(rs *RootSignature, name string, data []byte) {
	if !e.ok("PushConstants") {
		return
	}
	pc, found := rs.pushConstant(name)
	if !found {
		e.cmd.fail(fmt.Errorf("%w: push constant %q", ErrNotFound, name))
		return
	}
	e.cmd.native.PushConstants(rs.core.layout, pc.Stages, pc.Offset, data)
}

func (e *passEncoder) end(op string) error {
	if e.ended {
		return &StateError{Op: op, State: e.cmd.state}
	}
	if err := e.cmd.expect(op, CommandBufferInsidePass); err != nil {
		return err
	}
	e.ended = true
	e.cmd.state = CommandBufferRecording
	return nil
}

// RenderPassEncoder records draws inside a render pass.
type RenderPassEncoder struct {
	passEncoder
}

// SetViewport sets the viewport in framebuffer pixels, origin top-left.
func (e *RenderPassEncoder) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	if e.ok("SetViewport") {
		e.cmd.native.SetViewport(x, y, width, height, minDepth, maxDepth)
	}
}

// SetScissor sets the scissor rectangle.
func (e *RenderPassEncoder) SetScissor(x, y, width, height uint32) {
	if e.ok("SetScissor") {
		e.cmd.native.SetScissor(x, y, width, height)
	}
}

// BindPipeline binds a render pipeline.
func (e *RenderPassEncoder) BindPipeline(p *RenderPipeline) {
	if e.ok("BindPipeline") {
		e.cmd.native.BindPipeline(p.native, false)
	}
}

// BindVertexBuffers binds vertex buffers from slot first. Missing offsets
// are 0.
func (e *RenderPassEncoder) BindVertexBuffers(first uint32, buffers []*Buffer, offsets []uint64) {
	if !e.ok("BindVertexBuffers") {
		return
	}
	nb := make([]NativeBuffer, len(buffers))
	off := make([]uint64, len(buffers))
	for i, b := range buffers {
		nb[i] = b.native
		if i < len(offsets) {
			off[i] = offsets[i]
		}
	}
	e.cmd.native.BindVertexBuffers(first, nb, off)
}

// BindIndexBuffer binds an index buffer.
func (e *RenderPassEncoder) BindIndexBuffer(b *Buffer, format gputypes.IndexFormat, offset uint64) {
	if e.ok("BindIndexBuffer") {
		e.cmd.native.BindIndexBuffer(b.native, offset, format)
	}
}

// Draw records a non-indexed draw.
func (e *RenderPassEncoder) Draw(vertexCount, firstVertex uint32) {
	e.DrawInstanced(vertexCount, 1, firstVertex, 0)
}

// DrawInstanced records an instanced non-indexed draw.
func (e *RenderPassEncoder) DrawInstanced(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if e.ok("Draw") {
		e.cmd.native.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

// DrawIndexed records an indexed draw.
func (e *RenderPassEncoder) DrawIndexed(indexCount, firstIndex uint32, baseVertex int32) {
	e.DrawIndexedInstanced(indexCount, 1, firstIndex, baseVertex, 0)
}

// DrawIndexedInstanced records an instanced indexed draw.
func (e *RenderPassEncoder) DrawIndexedInstanced(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	if e.ok("DrawIndexed") {
		e.cmd.native.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
	}
}

// End leaves the render pass.
func (e *RenderPassEncoder) End() error {
	if err := e.end("EndRenderPass"); err != nil {
		return err
	}
	e.cmd.native.EndRenderPass()
	return nil
}

// ComputePassEncoder records dispatches inside a compute pass.
type ComputePassEncoder struct {
	passEncoder
}

// BindPipeline binds a compute pipeline.
func (e *ComputePassEncoder) BindPipeline(p *ComputePipeline) {
	if e.ok("BindPipeline") {
		e.cmd.native.BindPipeline(p.native, true)
	}
}

// Dispatch records a compute dispatch of x*y*z workgroups.
func (e *ComputePassEncoder) Dispatch(x, y, z uint32) {
	if e.ok("Dispatch") {
		e.cmd.native.Dispatch(x, y, z)
	}
}

// End leaves the compute pass.
func (e *ComputePassEncoder) End() error {
	if err := e.end("EndComputePass"); err != nil {
		return err
	}
	e.cmd.native.EndComputePass()
	return nil
}
