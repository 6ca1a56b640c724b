package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
)

// CommandPool is a VkCommandPool whose buffers can be reset one by one.
type CommandPool struct {
	device *Device
	handle vk.CommandPool
	family uint32
}

// CreateCommandPool implements cgpu.NativeDevice.
func (d *Device) CreateCommandPool(family uint32) (cgpu.NativeCommandPool, error) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(d.handle, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}, nil, &pool)
	if err := check("create command pool", ret); err != nil {
		return nil, err
	}
	return &CommandPool{device: d, handle: pool, family: family}, nil
}

// Allocate implements cgpu.NativeCommandPool.
func (p *CommandPool) Allocate() (cgpu.NativeCommandBuffer, error) {
	cmds := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(p.device.handle, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmds)
	if err := check("allocate command buffer", ret); err != nil {
		return nil, err
	}
	return &CommandBuffer{pool: p, device: p.device, handle: cmds[0]}, nil
}

// Reset implements cgpu.NativeCommandPool.
func (p *CommandPool) Reset() error {
	return check("reset command pool", vk.ResetCommandPool(p.device.handle, p.handle, 0))
}

// Destroy implements cgpu.NativeObject.
func (p *CommandPool) Destroy() {
	vk.DestroyCommandPool(p.device.handle, p.handle, nil)
}

// CommandBuffer records into a VkCommandBuffer. Recording calls cannot
// fail individually; the first error is kept and returned by End.
type CommandBuffer struct {
	pool   *CommandPool
	device *Device
	handle vk.CommandBuffer
	err    error
}

func (c *CommandBuffer) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Begin implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) Begin() error {
	c.err = nil
	return check("begin command buffer", vk.BeginCommandBuffer(c.handle, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}))
}

// End implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) End() error {
	if err := check("end command buffer", vk.EndCommandBuffer(c.handle)); err != nil {
		return err
	}
	return c.err
}

// Free implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) Free() {
	vk.FreeCommandBuffers(c.device.handle, c.pool.handle, 1, []vk.CommandBuffer{c.handle})
}

// barrierStages fills in the stages a batch leaves unset.
func barrierStages(b *cgpu.BarrierBatch) (src, dst vk.PipelineStageFlags) {
	s, d := b.SrcStage, b.DstStage
	if s == 0 {
		s = cgpu.PipelineStageTopOfPipe
	}
	if d == 0 {
		d = cgpu.PipelineStageBottomOfPipe
	}
	return vk.PipelineStageFlags(s), vk.PipelineStageFlags(d)
}

// PipelineBarrier implements cgpu.NativeCommandBuffer. The first barrier of
// a texture discards its contents: a new image is in the undefined layout
// whatever state the caller assumes.
func (c *CommandBuffer) PipelineBarrier(b *cgpu.BarrierBatch) {
	if len(b.Buffers) == 0 && len(b.Textures) == 0 {
		return
	}
	bufs := make([]vk.BufferMemoryBarrier, 0, len(b.Buffers))
	for _, bb := range b.Buffers {
		buf, ok := bb.Buffer.(*Buffer)
		if !ok {
			c.fail(fmt.Errorf("vulkan: barrier on foreign buffer %T", bb.Buffer))
			return
		}
		size := vk.DeviceSize(bb.Size)
		if bb.Size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		bufs = append(bufs, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(bb.SrcAccess),
			DstAccessMask:       vk.AccessFlags(bb.DstAccess),
			SrcQueueFamilyIndex: bb.SrcQueueFamily,
			DstQueueFamilyIndex: bb.DstQueueFamily,
			Buffer:              buf.buffer,
			Offset:              vk.DeviceSize(bb.Offset),
			Size:                size,
		})
	}
	imgs := make([]vk.ImageMemoryBarrier, 0, len(b.Textures))
	for _, tb := range b.Textures {
		t, ok := tb.Texture.(*Texture)
		if !ok {
			c.fail(fmt.Errorf("vulkan: barrier on foreign texture %T", tb.Texture))
			return
		}
		old := vk.ImageLayout(tb.OldLayout)
		if t.fresh.Swap(false) {
			old = vk.ImageLayoutUndefined
		}
		imgs = append(imgs, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(tb.SrcAccess),
			DstAccessMask:       vk.AccessFlags(tb.DstAccess),
			OldLayout:           old,
			NewLayout:           vk.ImageLayout(tb.NewLayout),
			SrcQueueFamilyIndex: tb.SrcQueueFamily,
			DstQueueFamilyIndex: tb.DstQueueFamily,
			Image:               t.image,
			SubresourceRange:    subresourceRange(t, tb.Aspect, tb.BaseMipLevel, tb.MipLevelCount, tb.BaseArrayLayer, tb.ArrayLayers),
		})
	}
	src, dst := barrierStages(b)
	vk.CmdPipelineBarrier(c.handle, src, dst, 0, 0, nil,
		uint32(len(bufs)), bufs, uint32(len(imgs)), imgs)
}

// subresourceRange clamps a barrier range to the texture. Zero and
// cgpu.RemainingLevels counts select the rest of the texture.
func subresourceRange(t *Texture, aspect cgpu.ImageAspect, baseMip, mips, baseLayer, layers uint32) vk.ImageSubresourceRange {
	if aspect == 0 {
		aspect = cgpu.ImageAspectColor
	}
	if mips == 0 || mips == cgpu.RemainingLevels {
		mips = t.mips - baseMip
	}
	if layers == 0 || layers == cgpu.RemainingLevels {
		layers = t.layers - baseLayer
	}
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(aspect),
		BaseMipLevel:   baseMip,
		LevelCount:     mips,
		BaseArrayLayer: baseLayer,
		LayerCount:     layers,
	}
}

// clearValues lays out one value per color attachment, then depth.
func clearValues(colors int, depth bool, clears []cgpu.ClearValue) []vk.ClearValue {
	n := colors
	if depth {
		n++
	}
	out := make([]vk.ClearValue, n)
	for i := range colors {
		if i >= len(clears) {
			break
		}
		c := clears[i].Color
		out[i].SetColor([]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)})
	}
	if depth {
		d, s := float32(1), uint32(0)
		if colors < len(clears) {
			d, s = clears[colors].Depth, clears[colors].Stencil
		}
		out[colors].SetDepthStencil(d, s)
	}
	return out
}

// BeginRenderPass implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) BeginRenderPass(pass cgpu.NativeRenderPass, nfb cgpu.NativeFramebuffer, clears []cgpu.ClearValue) {
	rp, ok := pass.(*RenderPass)
	if !ok {
		c.fail(fmt.Errorf("vulkan: foreign render pass %T", pass))
		return
	}
	fb, ok := nfb.(*Framebuffer)
	if !ok {
		c.fail(fmt.Errorf("vulkan: foreign framebuffer %T", nfb))
		return
	}
	// The pass moves its attachments out of the undefined layout itself.
	for _, v := range fb.views {
		v.texture.fresh.Store(false)
	}
	values := clearValues(rp.colors, rp.depth, clears)
	vk.CmdBeginRenderPass(c.handle, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.handle,
		Framebuffer: fb.handle,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: fb.width, Height: fb.height},
		},
		ClearValueCount: uint32(len(values)),
		PClearValues:    values,
	}, vk.SubpassContentsInline)
}

// EndRenderPass implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) EndRenderPass() { vk.CmdEndRenderPass(c.handle) }

// BeginComputePass implements cgpu.NativeCommandBuffer. Vulkan has no
// compute pass object.
func (c *CommandBuffer) BeginComputePass() {}

// EndComputePass implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) EndComputePass() {}

// SetViewport implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	vk.CmdSetViewport(c.handle, 0, 1, []vk.Viewport{vkViewport(x, y, width, height, minDepth, maxDepth)})
}

// vkViewport flips the viewport vertically so clip space y points up, as on
// the other backends. Negative heights are core since Vulkan 1.1.
func vkViewport(x, y, width, height, minDepth, maxDepth float32) vk.Viewport {
	return vk.Viewport{
		X: x, Y: y + height, Width: width, Height: -height,
		MinDepth: minDepth, MaxDepth: maxDepth,
	}
}

// SetScissor implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) SetScissor(x, y, width, height uint32) {
	vk.CmdSetScissor(c.handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: int32(x), Y: int32(y)},
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
}

func bindPoint(compute bool) vk.PipelineBindPoint {
	if compute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

// BindPipeline implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) BindPipeline(np cgpu.NativePipeline, compute bool) {
	p, ok := np.(*Pipeline)
	if !ok {
		c.fail(fmt.Errorf("vulkan: foreign pipeline %T", np))
		return
	}
	vk.CmdBindPipeline(c.handle, bindPoint(compute), p.handle)
}

// BindDescriptorSet implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) BindDescriptorSet(nl cgpu.NativePipelineLayout, index uint32, ns cgpu.NativeDescriptorSet, compute bool) {
	l, ok := nl.(*PipelineLayout)
	if !ok {
		c.fail(fmt.Errorf("vulkan: foreign pipeline layout %T", nl))
		return
	}
	s, ok := ns.(*DescriptorSet)
	if !ok {
		c.fail(fmt.Errorf("vulkan: foreign descriptor set %T", ns))
		return
	}
	vk.CmdBindDescriptorSets(c.handle, bindPoint(compute), l.handle, index, 1,
		[]vk.DescriptorSet{s.handle}, 0, nil)
}

// PushConstants implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) PushConstants(nl cgpu.NativePipelineLayout, stages cgpu.ShaderStage, offset uint32, data []byte) {
	l, ok := nl.(*PipelineLayout)
	if !ok {
		c.fail(fmt.Errorf("vulkan: foreign pipeline layout %T", nl))
		return
	}
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(c.handle, l.handle, shaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

// BindVertexBuffers implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []cgpu.NativeBuffer, offsets []uint64) {
	bufs := make([]vk.Buffer, len(buffers))
	offs := make([]vk.DeviceSize, len(buffers))
	for i, nb := range buffers {
		b, ok := nb.(*Buffer)
		if !ok {
			c.fail(fmt.Errorf("vulkan: foreign vertex buffer %T", nb))
			return
		}
		bufs[i] = b.buffer
		if i < len(offsets) {
			offs[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(c.handle, first, uint32(len(bufs)), bufs, offs)
}

// BindIndexBuffer implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) BindIndexBuffer(nb cgpu.NativeBuffer, offset uint64, format gputypes.IndexFormat) {
	b, ok := nb.(*Buffer)
	if !ok {
		c.fail(fmt.Errorf("vulkan: foreign index buffer %T", nb))
		return
	}
	vk.CmdBindIndexBuffer(c.handle, b.buffer, vk.DeviceSize(offset), indexType(format))
}

// Draw implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(c.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

// DrawIndexed implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	vk.CmdDrawIndexed(c.handle, indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

// Dispatch implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(c.handle, x, y, z)
}

// CopyBufferToBuffer implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) CopyBufferToBuffer(src, dst cgpu.NativeBuffer, regions []cgpu.BufferCopy) {
	s, ok1 := src.(*Buffer)
	d, ok2 := dst.(*Buffer)
	if !ok1 || !ok2 {
		c.fail(fmt.Errorf("vulkan: copy between foreign buffers %T and %T", src, dst))
		return
	}
	rg := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		rg[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c.handle, s.buffer, d.buffer, uint32(len(rg)), rg)
}

// CopyBufferToTexture implements cgpu.NativeCommandBuffer. The texture must
// be in the copy destination state.
func (c *CommandBuffer) CopyBufferToTexture(src cgpu.NativeBuffer, dst cgpu.NativeTexture, regions []cgpu.BufferTextureCopy) {
	s, ok := src.(*Buffer)
	if !ok {
		c.fail(fmt.Errorf("vulkan: copy from foreign buffer %T", src))
		return
	}
	t, ok := dst.(*Texture)
	if !ok {
		c.fail(fmt.Errorf("vulkan: copy to foreign texture %T", dst))
		return
	}
	format := fromVkFormat(t.format)
	rg := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		aspect := r.Aspect
		if aspect == 0 {
			aspect = cgpu.ImageAspectColor
		}
		depth := max(r.DepthOrLayers, 1)
		layers := max(r.LayerCount, 1)
		if t.typ != vk.ImageType3d {
			depth = 1
		}
		rg[i] = vk.BufferImageCopy{
			BufferOffset:      vk.DeviceSize(r.BufferOffset),
			BufferRowLength:   rowLength(r.BytesPerRow, format),
			BufferImageHeight: r.RowsPerImage,
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(aspect),
				MipLevel:       r.MipLevel,
				BaseArrayLayer: r.BaseArrayLayer,
				LayerCount:     layers,
			},
			ImageExtent: vk.Extent3D{Width: r.Width, Height: max(r.Height, 1), Depth: depth},
		}
	}
	vk.CmdCopyBufferToImage(c.handle, s.buffer, t.image, vk.ImageLayoutTransferDstOptimal, uint32(len(rg)), rg)
}

func (c *CommandBuffer) queryPool(np cgpu.NativeQueryPool) (*QueryPool, bool) {
	p, ok := np.(*QueryPool)
	if !ok {
		c.fail(fmt.Errorf("vulkan: foreign query pool %T", np))
	}
	return p, ok
}

// ResetQueryPool implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) ResetQueryPool(np cgpu.NativeQueryPool, first, count uint32) {
	if p, ok := c.queryPool(np); ok {
		vk.CmdResetQueryPool(c.handle, p.handle, first, count)
	}
}

// WriteTimestamp implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) WriteTimestamp(np cgpu.NativeQueryPool, index uint32) {
	if p, ok := c.queryPool(np); ok {
		vk.CmdWriteTimestamp(c.handle, vk.PipelineStageBottomOfPipeBit, p.handle, index)
	}
}

// BeginQuery implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) BeginQuery(np cgpu.NativeQueryPool, index uint32) {
	if p, ok := c.queryPool(np); ok {
		vk.CmdBeginQuery(c.handle, p.handle, index, 0)
	}
}

// EndQuery implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) EndQuery(np cgpu.NativeQueryPool, index uint32) {
	if p, ok := c.queryPool(np); ok {
		vk.CmdEndQuery(c.handle, p.handle, index)
	}
}

// ResolveQuery implements cgpu.NativeCommandBuffer. Results are written as
// consecutive uint64 values.
func (c *CommandBuffer) ResolveQuery(np cgpu.NativeQueryPool, dst cgpu.NativeBuffer, first, count uint32) {
	p, ok := c.queryPool(np)
	if !ok {
		return
	}
	b, ok := dst.(*Buffer)
	if !ok {
		c.fail(fmt.Errorf("vulkan: resolve into foreign buffer %T", dst))
		return
	}
	flags := vk.QueryResultFlags(vk.QueryResult64Bit | vk.QueryResultWaitBit)
	vk.CmdCopyQueryPoolResults(c.handle, p.handle, first, count, b.buffer, 0, 8, flags)
}

// BeginEvent implements cgpu.NativeCommandBuffer. Debug labels are not
// recorded; they reach the log at debug level.
func (c *CommandBuffer) BeginEvent(name string, color gputypes.Color) {
	c.device.log.Debug("vulkan: begin event", "name", name)
}

// EndEvent implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) EndEvent() {}

// SetMarker implements cgpu.NativeCommandBuffer.
func (c *CommandBuffer) SetMarker(name string, color gputypes.Color) {
	c.device.log.Debug("vulkan: marker", "name", name)
}

var _ cgpu.NativeCommandBuffer = (*CommandBuffer)(nil)
