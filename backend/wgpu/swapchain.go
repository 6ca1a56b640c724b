package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/wgpu/hal"
)

// swapchainImage is one back buffer slot. It holds the surface texture of
// the acquisition that returned its index until that texture is presented.
type swapchainImage struct {
	mu      sync.Mutex
	current hal.SurfaceTexture
}

func (i *swapchainImage) texture() hal.Texture {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.current == nil {
		return nil
	}
	return i.current
}

func (i *swapchainImage) take() hal.SurfaceTexture {
	i.mu.Lock()
	defer i.mu.Unlock()
	t := i.current
	i.current = nil
	return t
}

// Swapchain is a configured surface. WebGPU surfaces hand out one texture
// per acquisition; they are assigned to ImageCount slots round robin so the
// core sees a fixed set of back buffers.
type Swapchain struct {
	device  *Device
	surface *Surface
	images  []cgpu.NativeTexture
	slots   []*swapchainImage
	next    uint32
	retired bool
}

// CreateSwapchain implements cgpu.NativeDevice. When desc.Old is set the
// surface is reconfigured and the old swapchain stops owning it.
func (d *Device) CreateSwapchain(desc *cgpu.NativeSwapchainDescriptor) (cgpu.NativeSwapchain, error) {
	s, ok := desc.Surface.(*Surface)
	if !ok {
		return nil, fmt.Errorf("wgpu: foreign surface %T", desc.Surface)
	}
	if old, ok := desc.Old.(*Swapchain); ok && old != nil {
		old.retire()
	}
	err := s.hal.Configure(d.hal, &hal.SurfaceConfiguration{
		Width:       desc.Extent.Width,
		Height:      desc.Extent.Height,
		Format:      desc.Format,
		Usage:       desc.Usage,
		PresentMode: desc.PresentMode,
		AlphaMode:   desc.CompositeAlpha,
	})
	if err != nil {
		return nil, mapError("configure surface", err)
	}
	sc := &Swapchain{device: d, surface: s}
	for range desc.ImageCount {
		slot := &swapchainImage{}
		t := &Texture{image: slot}
		t.handle = handle{device: d, id: d.register(t)}
		sc.slots = append(sc.slots, slot)
		sc.images = append(sc.images, t)
	}
	return sc, nil
}

// Images implements cgpu.NativeSwapchain.
func (s *Swapchain) Images() []cgpu.NativeTexture { return s.images }

// Acquire implements cgpu.NativeSwapchain. The HAL returns a texture that
// is ready to render to, so the fence is signaled on return.
func (s *Swapchain) Acquire(fence cgpu.NativeFence, _ cgpu.NativeSemaphore, _ time.Duration) (uint32, error) {
	acq, err := s.surface.hal.AcquireTexture(nil)
	if err != nil {
		return 0, mapError("acquire surface texture", err)
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.slots))
	slot := s.slots[idx]
	if stale := slot.take(); stale != nil {
		s.surface.hal.DiscardTexture(stale)
	}
	slot.mu.Lock()
	slot.current = acq.Texture
	slot.mu.Unlock()
	if acq.Suboptimal {
		s.device.log.Debug("wgpu: suboptimal surface texture", "index", idx)
	}
	if f, ok := fence.(*Fence); ok {
		f.set(0, true)
	}
	return idx, nil
}

func (s *Swapchain) present(q hal.Queue, index uint32) error {
	if int(index) >= len(s.slots) {
		return fmt.Errorf("wgpu: present of image %d out of %d", index, len(s.slots))
	}
	tex := s.slots[index].take()
	if tex == nil {
		return fmt.Errorf("wgpu: present of image %d that is not acquired", index)
	}
	return mapError("present", q.Present(s.surface.hal, tex, nil))
}

func (s *Swapchain) retire() { s.retired = true }

// Destroy implements cgpu.NativeObject. A retired swapchain leaves the
// surface configured for its successor.
func (s *Swapchain) Destroy() {
	for i, slot := range s.slots {
		if t := slot.take(); t != nil {
			s.surface.hal.DiscardTexture(t)
		}
		s.images[i].(*Texture).release()
	}
	if !s.retired {
		s.surface.hal.Unconfigure(s.device.hal)
	}
}
