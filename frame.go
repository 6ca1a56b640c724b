package cgpu

import "fmt"

// Frame is one slot of a FrameRing: everything a frame in flight owns.
type Frame struct {
	Index          uint32
	Pool           *CommandPool
	Cmd            *CommandBuffer
	Fence          *Fence
	ImageAcquired  *Semaphore
	RenderFinished *Semaphore
}

// FrameRing cycles through a fixed number of frames in flight. Next hands
// out the oldest slot once the GPU is done with it.
type FrameRing struct {
	device *Device
	frames []*Frame
	next   uint32
}

// CreateFrameRing creates count frame slots recording for queue q.
func (d *Device) CreateFrameRing(q *Queue, count uint32) (*FrameRing, error) {
	if count == 0 {
		return nil, creationFailed("CreateFrameRing", fmt.Errorf("frame ring needs at least one slot"))
	}
	r := &FrameRing{device: d}
	for i := range count {
		f, err := d.newFrame(q, i)
		if err != nil {
			r.Free()
			return nil, err
		}
		r.frames = append(r.frames, f)
	}
	return r, nil
}

func (d *Device) newFrame(q *Queue, i uint32) (*Frame, error) {
	f := &Frame{Index: i}
	var err error
	if f.Pool, err = d.CreateCommandPool(q); err != nil {
		return nil, err
	}
	if f.Cmd, err = f.Pool.CreateCommandBuffer(); err != nil {
		f.free()
		return nil, err
	}
	if f.Fence, err = d.CreateFence(); err != nil {
		f.free()
		return nil, err
	}
	if f.ImageAcquired, err = d.CreateSemaphore(); err != nil {
		f.free()
		return nil, err
	}
	if f.RenderFinished, err = d.CreateSemaphore(); err != nil {
		f.free()
		return nil, err
	}
	return f, nil
}

// Len returns the number of slots.
func (r *FrameRing) Len() int { return len(r.frames) }

// Frame returns slot i.
func (r *FrameRing) Frame(i int) *Frame { return r.frames[i] }

// Next waits until the next slot's previous submission finished, resets its
// command pool and returns it.
func (r *FrameRing) Next() (*Frame, error) {
	f := r.frames[r.next]
	r.next = (r.next + 1) % uint32(len(r.frames))
	if err := r.device.WaitFences([]*Fence{f.Fence}, 0); err != nil {
		return nil, err
	}
	if err := f.Pool.Reset(); err != nil {
		return nil, err
	}
	return f, nil
}

// Free waits for every slot and destroys them.
func (r *FrameRing) Free() {
	fences := make([]*Fence, 0, len(r.frames))
	for _, f := range r.frames {
		fences = append(fences, f.Fence)
	}
	if err := r.device.WaitFences(fences, 0); err != nil {
		r.device.log.Warn("cgpu: frame ring wait on free", "err", err)
	}
	for _, f := range r.frames {
		f.free()
	}
	r.frames = nil
}

func (f *Frame) free() {
	if f.RenderFinished != nil {
		f.RenderFinished.Free()
	}
	if f.ImageAcquired != nil {
		f.ImageAcquired.Free()
	}
	if f.Fence != nil {
		f.Fence.Free()
	}
	if f.Cmd != nil {
		f.Cmd.Free()
	}
	if f.Pool != nil {
		f.Pool.Free()
	}
}
