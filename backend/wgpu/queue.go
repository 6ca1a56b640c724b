package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/wgpu/hal"
)

// Queue is the single queue of a device. Submissions execute in order, so
// semaphores between them carry no work.
type Queue struct {
	device *Device
	hal    hal.Queue
	mu     sync.Mutex
}

// Submit implements cgpu.NativeQueue. The fence remembers the submission
// index and signals once the queue has completed it.
func (q *Queue) Submit(s *cgpu.NativeSubmit) error {
	bufs := make([]hal.CommandBuffer, 0, len(s.CommandBuffers))
	for _, nc := range s.CommandBuffers {
		c, ok := nc.(*CommandBuffer)
		if !ok || c.done == nil {
			return fmt.Errorf("wgpu: submit of unfinished command buffer %T", nc)
		}
		bufs = append(bufs, c.done)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	idx, err := q.hal.Submit(bufs)
	if err != nil {
		return mapError("submit", err)
	}
	if s.Fence != nil {
		f, ok := s.Fence.(*Fence)
		if !ok {
			return fmt.Errorf("wgpu: foreign fence %T", s.Fence)
		}
		f.set(idx, false)
	}
	return nil
}

// Present implements cgpu.NativeQueue.
func (q *Queue) Present(p *cgpu.NativePresent) error {
	sc, ok := p.Swapchain.(*Swapchain)
	if !ok {
		return fmt.Errorf("wgpu: foreign swapchain %T", p.Swapchain)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return sc.present(q.hal, p.Index)
}

// WaitIdle implements cgpu.NativeQueue.
func (q *Queue) WaitIdle() error { return q.device.WaitIdle() }

// Fence tracks one submission index. Acquire signals it directly because
// surface textures are returned ready.
type Fence struct {
	mu       sync.Mutex
	index    uint64
	signaled bool
}

func (f *Fence) set(index uint64, signaled bool) {
	f.mu.Lock()
	f.index, f.signaled = index, signaled
	f.mu.Unlock()
}

func (f *Fence) state() (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index, f.signaled
}

// Destroy implements cgpu.NativeObject.
func (f *Fence) Destroy() {}

// CreateFence implements cgpu.NativeDevice.
func (d *Device) CreateFence() (cgpu.NativeFence, error) { return &Fence{}, nil }

// Semaphore is a no-op: the single queue orders everything.
type Semaphore struct{}

// Destroy implements cgpu.NativeObject.
func (s *Semaphore) Destroy() {}

// CreateSemaphore implements cgpu.NativeDevice.
func (d *Device) CreateSemaphore() (cgpu.NativeSemaphore, error) { return &Semaphore{}, nil }

// WaitFences implements cgpu.NativeDevice. The timeout covers all fences.
func (d *Device) WaitFences(fences []cgpu.NativeFence, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for _, nf := range fences {
		f, ok := nf.(*Fence)
		if !ok {
			return fmt.Errorf("wgpu: foreign fence %T", nf)
		}
		idx, signaled := f.state()
		if signaled || idx == 0 {
			continue
		}
		left := time.Duration(0)
		if timeout > 0 {
			if left = time.Until(deadline); left <= 0 {
				return fmt.Errorf("wgpu: wait fences: %w", cgpu.ErrTimeout)
			}
		}
		if err := d.waitSubmission(idx, left); err != nil {
			return err
		}
	}
	return nil
}

// ResetFences implements cgpu.NativeDevice.
func (d *Device) ResetFences(fences []cgpu.NativeFence) error {
	for _, nf := range fences {
		f, ok := nf.(*Fence)
		if !ok {
			return fmt.Errorf("wgpu: foreign fence %T", nf)
		}
		f.set(0, false)
	}
	return nil
}

// FenceSignaled implements cgpu.NativeDevice.
func (d *Device) FenceSignaled(nf cgpu.NativeFence) (bool, error) {
	f, ok := nf.(*Fence)
	if !ok {
		return false, fmt.Errorf("wgpu: foreign fence %T", nf)
	}
	idx, signaled := f.state()
	if signaled {
		return true, nil
	}
	return idx > 0 && d.queue.hal.PollCompleted() >= idx, nil
}
