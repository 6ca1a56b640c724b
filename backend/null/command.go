package null

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/gputypes"
)

// CommandPool is a null command pool.
type CommandPool struct {
	object
	family  uint32
	buffers []*CommandBuffer
}

// Allocate implements cgpu.NativeCommandPool.
func (p *CommandPool) Allocate() (cgpu.NativeCommandBuffer, error) {
	if err := p.rec.record("AllocateCommandBuffer", p.family); err != nil {
		return nil, err
	}
	c := &CommandBuffer{object: newObject(p.rec, "CommandBuffer"), pool: p}
	p.buffers = append(p.buffers, c)
	return c, nil
}

// Reset implements cgpu.NativeCommandPool.
func (p *CommandPool) Reset() error {
	if err := p.rec.record("ResetCommandPool", p.family); err != nil {
		return err
	}
	for _, c := range p.buffers {
		c.Commands = nil
		c.recording = false
	}
	return nil
}

// CommandBuffer is a null command buffer. Commands holds what was recorded
// since the last Begin.
type CommandBuffer struct {
	object
	pool      *CommandPool
	recording bool
	Commands  []Call
}

func (c *CommandBuffer) cmd(op string, args ...any) {
	c.Commands = append(c.Commands, Call{Op: op, Args: args})
	_ = c.rec.record(op, args...)
}

func (c *CommandBuffer) Begin() error {
	if err := c.rec.record("BeginCommandBuffer", c.handle); err != nil {
		return err
	}
	if c.recording {
		return errors.New("null: command buffer already recording")
	}
	c.Commands = nil
	c.recording = true
	return nil
}

func (c *CommandBuffer) End() error {
	if err := c.rec.record("EndCommandBuffer", c.handle); err != nil {
		return err
	}
	if !c.recording {
		return errors.New("null: command buffer not recording")
	}
	c.recording = false
	return nil
}

func (c *CommandBuffer) Free() { c.Destroy() }

func (c *CommandBuffer) PipelineBarrier(b *cgpu.BarrierBatch) {
	cp := *b
	cp.Buffers = append([]cgpu.BufferBarrier(nil), b.Buffers...)
	cp.Textures = append([]cgpu.TextureBarrier(nil), b.Textures...)
	c.cmd("PipelineBarrier", &cp)
}

func (c *CommandBuffer) BeginRenderPass(pass cgpu.NativeRenderPass, fb cgpu.NativeFramebuffer, clears []cgpu.ClearValue) {
	c.cmd("BeginRenderPass", pass, fb, append([]cgpu.ClearValue(nil), clears...))
}

func (c *CommandBuffer) EndRenderPass()    { c.cmd("EndRenderPass") }
func (c *CommandBuffer) BeginComputePass() { c.cmd("BeginComputePass") }
func (c *CommandBuffer) EndComputePass()   { c.cmd("EndComputePass") }

func (c *CommandBuffer) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	c.cmd("SetViewport", x, y, width, height, minDepth, maxDepth)
}

func (c *CommandBuffer) SetScissor(x, y, width, height uint32) {
	c.cmd("SetScissor", x, y, width, height)
}

func (c *CommandBuffer) BindPipeline(p cgpu.NativePipeline, compute bool) {
	c.cmd("BindPipeline", p, compute)
}

func (c *CommandBuffer) BindDescriptorSet(layout cgpu.NativePipelineLayout, index uint32, set cgpu.NativeDescriptorSet, compute bool) {
	c.cmd("BindDescriptorSet", layout, index, set, compute)
}

func (c *CommandBuffer) PushConstants(layout cgpu.NativePipelineLayout, stages cgpu.ShaderStage, offset uint32, data []byte) {
	c.cmd("PushConstants", layout, stages, offset, append([]byte(nil), data...))
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []cgpu.NativeBuffer, offsets []uint64) {
	c.cmd("BindVertexBuffers", first, append([]cgpu.NativeBuffer(nil), buffers...), append([]uint64(nil), offsets...))
}

func (c *CommandBuffer) BindIndexBuffer(buffer cgpu.NativeBuffer, offset uint64, format gputypes.IndexFormat) {
	c.cmd("BindIndexBuffer", buffer, offset, format)
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.cmd("Draw", vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	c.cmd("DrawIndexed", indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (c *CommandBuffer) Dispatch(x, y, z uint32) { c.cmd("Dispatch", x, y, z) }

func (c *CommandBuffer) CopyBufferToBuffer(src, dst cgpu.NativeBuffer, regions []cgpu.BufferCopy) {
	c.cmd("CopyBufferToBuffer", src, dst, append([]cgpu.BufferCopy(nil), regions...))
}

func (c *CommandBuffer) CopyBufferToTexture(src cgpu.NativeBuffer, dst cgpu.NativeTexture, regions []cgpu.BufferTextureCopy) {
	c.cmd("CopyBufferToTexture", src, dst, append([]cgpu.BufferTextureCopy(nil), regions...))
}

func (c *CommandBuffer) ResetQueryPool(pool cgpu.NativeQueryPool, first, count uint32) {
	c.cmd("ResetQueryPool", pool, first, count)
}

func (c *CommandBuffer) WriteTimestamp(pool cgpu.NativeQueryPool, index uint32) {
	c.cmd("WriteTimestamp", pool, index)
}

func (c *CommandBuffer) BeginQuery(pool cgpu.NativeQueryPool, index uint32) {
	c.cmd("BeginQuery", pool, index)
}

func (c *CommandBuffer) EndQuery(pool cgpu.NativeQueryPool, index uint32) {
	c.cmd("EndQuery", pool, index)
}

func (c *CommandBuffer) ResolveQuery(pool cgpu.NativeQueryPool, dst cgpu.NativeBuffer, first, count uint32) {
	c.cmd("ResolveQuery", pool, dst, first, count)
}

func (c *CommandBuffer) BeginEvent(name string, color gputypes.Color) { c.cmd("BeginEvent", name) }
func (c *CommandBuffer) EndEvent()                                    { c.cmd("EndEvent") }
func (c *CommandBuffer) SetMarker(name string, color gputypes.Color)  { c.cmd("SetMarker", name) }

// Queue is a null queue. Submissions execute immediately.
type Queue struct {
	rec    *Recorder
	family uint32
	index  uint32
	clock  uint64
}

// Submit implements cgpu.NativeQueue. Copies and timestamp writes of the
// submitted command buffers take effect before it returns.
func (q *Queue) Submit(s *cgpu.NativeSubmit) error {
	if err := q.rec.record("Submit", len(s.CommandBuffers), len(s.Wait), len(s.Signal), s.Fence != nil); err != nil {
		return err
	}
	for _, w := range s.Wait {
		sem := w.(*Semaphore)
		if !sem.signaled {
			return fmt.Errorf("null: wait on unsignaled semaphore %d", sem.handle)
		}
		sem.signaled = false
	}
	for _, nc := range s.CommandBuffers {
		c := nc.(*CommandBuffer)
		if c.recording {
			return fmt.Errorf("null: command buffer %d is still recording", c.handle)
		}
		q.execute(c)
	}
	for _, sig := range s.Signal {
		sig.(*Semaphore).signaled = true
	}
	if s.Fence != nil {
		s.Fence.(*Fence).signaled = true
	}
	return nil
}

func (q *Queue) execute(c *CommandBuffer) {
	for _, cmd := range c.Commands {
		switch cmd.Op {
		case "CopyBufferToBuffer":
			src, dst := cmd.Args[0].(*Buffer), cmd.Args[1].(*Buffer)
			for _, r := range cmd.Args[2].([]cgpu.BufferCopy) {
				copy(dst.data[r.DstOffset:r.DstOffset+r.Size], src.data[r.SrcOffset:r.SrcOffset+r.Size])
			}
		case "WriteTimestamp":
			q.clock++
			cmd.Args[0].(*QueryPool).Values[cmd.Args[1].(uint32)] = q.clock
		case "ResolveQuery":
			pool, dst := cmd.Args[0].(*QueryPool), cmd.Args[1].(*Buffer)
			first, count := cmd.Args[2].(uint32), cmd.Args[3].(uint32)
			for i := range count {
				binary.LittleEndian.PutUint64(dst.data[i*8:], pool.Values[first+i])
			}
		}
	}
}

// Present implements cgpu.NativeQueue.
func (q *Queue) Present(p *cgpu.NativePresent) error {
	if err := q.rec.record("Present", p.Index, len(p.Wait)); err != nil {
		return err
	}
	for _, w := range p.Wait {
		w.(*Semaphore).signaled = false
	}
	return nil
}

// WaitIdle implements cgpu.NativeQueue.
func (q *Queue) WaitIdle() error { return q.rec.record("WaitQueueIdle", q.family, q.index) }
