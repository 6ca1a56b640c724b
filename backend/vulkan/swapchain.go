package vulkan

import (
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/cgpu"
	vk "github.com/goki/vulkan"
)

// Swapchain is a VkSwapchainKHR and the textures wrapping its images.
type Swapchain struct {
	device *Device
	handle vk.Swapchain
	images []cgpu.NativeTexture
}

// CreateSwapchain implements cgpu.NativeDevice. The old swapchain, if any,
// is retired by the new one but stays alive until the caller destroys it.
func (d *Device) CreateSwapchain(desc *cgpu.NativeSwapchainDescriptor) (cgpu.NativeSwapchain, error) {
	s, ok := desc.Surface.(*Surface)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign surface %T", desc.Surface)
	}
	old := vk.NullSwapchain
	if o, ok := desc.Old.(*Swapchain); ok && o != nil {
		old = o.handle
	}
	format := textureFormat(desc.Format)
	transform := desc.Transform
	if transform == 0 {
		transform = cgpu.SurfaceTransformIdentity
	}
	info := &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.handle,
		MinImageCount:    desc.ImageCount,
		ImageFormat:      format,
		ImageColorSpace:  vk.ColorSpaceSrgbNonlinear,
		ImageExtent:      vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       surfaceUsage(desc.Usage),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     vk.SurfaceTransformFlagBits(transform),
		CompositeAlpha:   compositeAlpha(desc.CompositeAlpha),
		PresentMode:      presentMode(desc.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	families := slices.Compact(slices.Sorted(slices.Values(desc.QueueFamilies)))
	if len(families) > 1 {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = uint32(len(families))
		info.PQueueFamilyIndices = families
	}
	var sc vk.Swapchain
	if err := check("create swapchain", vk.CreateSwapchain(d.handle, info, nil, &sc)); err != nil {
		return nil, err
	}

	var n uint32
	if err := check("get swapchain images", vk.GetSwapchainImages(d.handle, sc, &n, nil)); err != nil {
		vk.DestroySwapchain(d.handle, sc, nil)
		return nil, err
	}
	imgs := make([]vk.Image, n)
	if err := check("get swapchain images", vk.GetSwapchainImages(d.handle, sc, &n, imgs)); err != nil {
		vk.DestroySwapchain(d.handle, sc, nil)
		return nil, err
	}
	out := &Swapchain{device: d, handle: sc}
	for _, img := range imgs[:n] {
		t := &Texture{
			image:  img,
			typ:    vk.ImageType2d,
			format: format,
			layers: 1,
			mips:   1,
			extent: vk.Extent3D{Width: desc.Extent.Width, Height: desc.Extent.Height, Depth: 1},
		}
		t.fresh.Store(true)
		t.handle = handle{device: d, id: d.register(t)}
		out.images = append(out.images, t)
	}
	d.log.Debug("vulkan: swapchain created", "images", n, "requested", desc.ImageCount)
	return out, nil
}

// Images implements cgpu.NativeSwapchain.
func (s *Swapchain) Images() []cgpu.NativeTexture { return s.images }

// Acquire implements cgpu.NativeSwapchain. A suboptimal swapchain still
// returns its image; the next present reports it again.
func (s *Swapchain) Acquire(nf cgpu.NativeFence, ns cgpu.NativeSemaphore, timeout time.Duration) (uint32, error) {
	fence := vk.NullFence
	if nf != nil {
		f, ok := nf.(*Fence)
		if !ok {
			return 0, fmt.Errorf("vulkan: foreign fence %T", nf)
		}
		fence = f.handle
	}
	sem := vk.Semaphore(vk.NullHandle)
	if ns != nil {
		sm, ok := ns.(*Semaphore)
		if !ok {
			return 0, fmt.Errorf("vulkan: foreign semaphore %T", ns)
		}
		sem = sm.handle
	}
	var idx uint32
	ret := vk.AcquireNextImage(s.device.handle, s.handle, timeoutNanos(timeout), sem, fence, &idx)
	if ret == vk.Suboptimal {
		s.device.log.Warn("vulkan: acquired from suboptimal swapchain", "image", idx)
		return idx, nil
	}
	if err := check("acquire next image", ret); err != nil {
		return 0, err
	}
	return idx, nil
}

// Destroy implements cgpu.NativeObject.
func (s *Swapchain) Destroy() {
	for _, img := range s.images {
		img.Destroy()
	}
	s.images = nil
	vk.DestroySwapchain(s.device.handle, s.handle, nil)
}
