package vulkan

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/cgpu"
	vk "github.com/goki/vulkan"
)

// Queue is a VkQueue. Vulkan requires external synchronization of queue
// access, so submissions and presents are serialized.
type Queue struct {
	device *Device
	handle vk.Queue
	family uint32
	mu     sync.Mutex
}

func semaphores(list []cgpu.NativeSemaphore) ([]vk.Semaphore, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]vk.Semaphore, len(list))
	for i, ns := range list {
		s, ok := ns.(*Semaphore)
		if !ok {
			return nil, fmt.Errorf("vulkan: foreign semaphore %T", ns)
		}
		out[i] = s.handle
	}
	return out, nil
}

// Submit implements cgpu.NativeQueue. Every wait semaphore waits at
// s.WaitStage, or at all commands when none is given.
func (q *Queue) Submit(s *cgpu.NativeSubmit) error {
	cmds := make([]vk.CommandBuffer, len(s.CommandBuffers))
	for i, nc := range s.CommandBuffers {
		c, ok := nc.(*CommandBuffer)
		if !ok {
			return fmt.Errorf("vulkan: foreign command buffer %T", nc)
		}
		cmds[i] = c.handle
	}
	wait, err := semaphores(s.Wait)
	if err != nil {
		return err
	}
	signal, err := semaphores(s.Signal)
	if err != nil {
		return err
	}
	stage := s.WaitStage
	if stage == 0 {
		stage = cgpu.PipelineStageAllCommands
	}
	var stages []vk.PipelineStageFlags
	for range wait {
		stages = append(stages, vk.PipelineStageFlags(stage))
	}
	fence := vk.NullFence
	if s.Fence != nil {
		f, ok := s.Fence.(*Fence)
		if !ok {
			return fmt.Errorf("vulkan: foreign fence %T", s.Fence)
		}
		fence = f.handle
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	ret := vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(cmds)),
		PCommandBuffers:      cmds,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}}, fence)
	return check("queue submit", ret)
}

// Present implements cgpu.NativeQueue. A suboptimal swapchain still
// presents and is only logged.
func (q *Queue) Present(p *cgpu.NativePresent) error {
	sc, ok := p.Swapchain.(*Swapchain)
	if !ok {
		return fmt.Errorf("vulkan: foreign swapchain %T", p.Swapchain)
	}
	wait, err := semaphores(p.Wait)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	ret := vk.QueuePresent(q.handle, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{p.Index},
	})
	if ret == vk.Suboptimal {
		q.device.log.Warn("vulkan: present to suboptimal swapchain", "image", p.Index)
		return nil
	}
	return check("queue present", ret)
}

// WaitIdle implements cgpu.NativeQueue.
func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return check("queue wait idle", vk.QueueWaitIdle(q.handle))
}

// Fence is a VkFence.
type Fence struct {
	device *Device
	handle vk.Fence
}

// CreateFence implements cgpu.NativeDevice. Fences start unsignaled.
func (d *Device) CreateFence() (cgpu.NativeFence, error) {
	var f vk.Fence
	ret := vk.CreateFence(d.handle, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &f)
	if err := check("create fence", ret); err != nil {
		return nil, err
	}
	return &Fence{device: d, handle: f}, nil
}

// Destroy implements cgpu.NativeObject.
func (f *Fence) Destroy() {
	vk.DestroyFence(f.device.handle, f.handle, nil)
}

// Semaphore is a binary VkSemaphore.
type Semaphore struct {
	device *Device
	handle vk.Semaphore
}

// CreateSemaphore implements cgpu.NativeDevice.
func (d *Device) CreateSemaphore() (cgpu.NativeSemaphore, error) {
	var s vk.Semaphore
	ret := vk.CreateSemaphore(d.handle, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &s)
	if err := check("create semaphore", ret); err != nil {
		return nil, err
	}
	return &Semaphore{device: d, handle: s}, nil
}

// Destroy implements cgpu.NativeObject.
func (s *Semaphore) Destroy() {
	vk.DestroySemaphore(s.device.handle, s.handle, nil)
}

func fenceHandles(fences []cgpu.NativeFence) ([]vk.Fence, error) {
	out := make([]vk.Fence, 0, len(fences))
	for _, nf := range fences {
		f, ok := nf.(*Fence)
		if !ok {
			return nil, fmt.Errorf("vulkan: foreign fence %T", nf)
		}
		out = append(out, f.handle)
	}
	return out, nil
}

// timeoutNanos converts a wait timeout; zero waits forever.
func timeoutNanos(timeout time.Duration) uint64 {
	if timeout <= 0 {
		return vk.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}

// WaitFences implements cgpu.NativeDevice.
func (d *Device) WaitFences(fences []cgpu.NativeFence, timeout time.Duration) error {
	handles, err := fenceHandles(fences)
	if err != nil || len(handles) == 0 {
		return err
	}
	ret := vk.WaitForFences(d.handle, uint32(len(handles)), handles, vk.True, timeoutNanos(timeout))
	return check("wait for fences", ret)
}

// ResetFences implements cgpu.NativeDevice.
func (d *Device) ResetFences(fences []cgpu.NativeFence) error {
	handles, err := fenceHandles(fences)
	if err != nil || len(handles) == 0 {
		return err
	}
	return check("reset fences", vk.ResetFences(d.handle, uint32(len(handles)), handles))
}

// FenceSignaled implements cgpu.NativeDevice.
func (d *Device) FenceSignaled(nf cgpu.NativeFence) (bool, error) {
	f, ok := nf.(*Fence)
	if !ok {
		return false, fmt.Errorf("vulkan: foreign fence %T", nf)
	}
	switch ret := vk.GetFenceStatus(d.handle, f.handle); ret {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, check("get fence status", ret)
	}
}
