package cgpu

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/gputypes"
)

// InvalidImageIndex is returned by AcquireNextImage when no image was
// acquired.
const InvalidImageIndex = ^uint32(0)

// SwapchainDescriptor describes a swapchain. ImageCount is clamped to the
// surface capabilities; an unsupported Format falls back to BGRA8Unorm.
type SwapchainDescriptor struct {
	Surface       *Surface
	PresentQueues []*Queue
	ImageCount    uint32
	Width         uint32
	Height        uint32
	EnableVsync   bool
	Format        gputypes.TextureFormat
}

// presentModePreference is tried in order; vsync skips the first entry.
var presentModePreference = []gputypes.PresentMode{
	gputypes.PresentModeImmediate,
	gputypes.PresentModeMailbox,
	gputypes.PresentModeFifoRelaxed,
	gputypes.PresentModeFifo,
}

var compositeAlphaPreference = []gputypes.CompositeAlphaMode{
	gputypes.CompositeAlphaModeInherit,
	gputypes.CompositeAlphaModeOpaque,
	gputypes.CompositeAlphaModePremultiplied,
	gputypes.CompositeAlphaModeUnpremultiplied,
}

func clampImageCount(requested uint32, caps *SurfaceCapabilities) uint32 {
	n := requested
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	if n < caps.MinImageCount {
		n = caps.MinImageCount
	}
	return n
}

func chooseSurfaceFormat(requested gputypes.TextureFormat, available []gputypes.TextureFormat) gputypes.TextureFormat {
	if requested != gputypes.TextureFormatUndefined && slices.Contains(available, requested) {
		return requested
	}
	return gputypes.TextureFormatBGRA8Unorm
}

// choosePresentMode falls back to FIFO, which every surface supports.
func choosePresentMode(vsync bool, available []gputypes.PresentMode) gputypes.PresentMode {
	prefs := presentModePreference
	if vsync {
		prefs = prefs[1:]
	}
	for _, m := range prefs {
		if slices.Contains(available, m) {
			return m
		}
	}
	return gputypes.PresentModeFifo
}

func chooseCompositeAlpha(available []gputypes.CompositeAlphaMode) gputypes.CompositeAlphaMode {
	for _, m := range compositeAlphaPreference {
		if slices.Contains(available, m) {
			return m
		}
	}
	return gputypes.CompositeAlphaModeOpaque
}

func clampExtent(w, h uint32, caps *SurfaceCapabilities) Extent2D {
	clamp := func(v, lo, hi uint32) uint32 {
		if hi > 0 && v > hi {
			v = hi
		}
		return max(v, lo)
	}
	return Extent2D{
		Width:  clamp(w, caps.MinExtent.Width, caps.MaxExtent.Width),
		Height: clamp(h, caps.MinExtent.Height, caps.MaxExtent.Height),
	}
}

func chooseTransform(caps *SurfaceCapabilities) SurfaceTransform {
	if caps.SupportedTransforms&SurfaceTransformIdentity != 0 {
		return SurfaceTransformIdentity
	}
	return caps.CurrentTransform
}

// resolveSwapchain picks every swapchain parameter from the surface
// capabilities.
func resolveSwapchain(desc *SwapchainDescriptor, caps *SurfaceCapabilities) *NativeSwapchainDescriptor {
	nd := &NativeSwapchainDescriptor{
		ImageCount:     clampImageCount(desc.ImageCount, caps),
		Format:         chooseSurfaceFormat(desc.Format, caps.Formats),
		Extent:         clampExtent(desc.Width, desc.Height, caps),
		PresentMode:    choosePresentMode(desc.EnableVsync, caps.PresentModes),
		CompositeAlpha: chooseCompositeAlpha(caps.CompositeAlpha),
		Transform:      chooseTransform(caps),
		Usage:          gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst,
	}
	for _, q := range desc.PresentQueues {
		if !slices.Contains(nd.QueueFamilies, q.family) {
			nd.QueueFamilies = append(nd.QueueFamilies, q.family)
		}
	}
	return nd
}

// Swapchain is a chain of presentable back buffers on a Surface.
type Swapchain struct {
	device *Device
	native NativeSwapchain
	desc   SwapchainDescriptor
	config NativeSwapchainDescriptor
	images []*Texture
}

// CreateSwapchain creates a swapchain for a surface.
func (d *Device) CreateSwapchain(desc *SwapchainDescriptor) (*Swapchain, error) {
	s := &Swapchain{device: d, desc: *desc}
	if err := s.create(nil); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) create(old NativeSwapchain) error {
	d := s.device
	if s.desc.Surface == nil {
		return creationFailed("CreateSwapchain", fmt.Errorf("swapchain needs a surface"))
	}
	for _, q := range s.desc.PresentQueues {
		if !d.adapter.native.SupportsPresent(q.family, s.desc.Surface.native) {
			return creationFailed("CreateSwapchain", fmt.Errorf("queue family %d cannot present to the surface", q.family))
		}
	}
	caps, err := d.adapter.native.SurfaceCapabilities(s.desc.Surface.native)
	if err != nil {
		return creationFailed("CreateSwapchain", logNative(d.log, "SurfaceCapabilities", err))
	}
	nd := resolveSwapchain(&s.desc, caps)
	nd.Surface = s.desc.Surface.native
	nd.Old = old
	ns, err := d.native.CreateSwapchain(nd)
	if err != nil {
		return creationFailed("CreateSwapchain", logNative(d.log, "CreateSwapchain", err))
	}
	s.native, s.config = ns, *nd
	s.config.Old = nil

	s.images = s.images[:0]
	for _, img := range ns.Images() {
		s.images = append(s.images, &Texture{
			device: d,
			native: img,
			desc: TextureDescriptor{
				Width: nd.Extent.Width, Height: nd.Extent.Height,
				Depth: 1, ArraySize: 1, MipLevels: 1, SampleCount: 1,
				Format:      nd.Format,
				Descriptors: ResourceTypeRenderTarget,
				StartState:  ResourceStatePresent,
			},
			aspect: ImageAspectColor,
		})
	}
	d.log.Info("cgpu: swapchain created",
		"images", len(s.images), "format", nd.Format.String(),
		"extent", fmt.Sprintf("%dx%d", nd.Extent.Width, nd.Extent.Height),
		"present", nd.PresentMode.String())
	return nil
}

// Recreate rebuilds the swapchain for a new size, for example after
// ErrOutOfDate. The previous back buffers become invalid.
func (s *Swapchain) Recreate(width, height uint32) error {
	old := s.native
	s.desc.Width, s.desc.Height = width, height
	err := s.create(old)
	if old != nil {
		old.Destroy()
	}
	if err != nil {
		s.native = nil
	}
	return err
}

// Images returns the back buffers.
func (s *Swapchain) Images() []*Texture { return s.images }

// Image returns back buffer i.
func (s *Swapchain) Image(i uint32) *Texture { return s.images[i] }

// ImageCount returns the number of back buffers.
func (s *Swapchain) ImageCount() uint32 { return uint32(len(s.images)) }

// Format returns the back buffer format.
func (s *Swapchain) Format() gputypes.TextureFormat { return s.config.Format }

// Extent returns the back buffer size.
func (s *Swapchain) Extent() Extent2D { return s.config.Extent }

// PresentMode returns the chosen present mode.
func (s *Swapchain) PresentMode() gputypes.PresentMode { return s.config.PresentMode }

// Native returns the backend swapchain.
func (s *Swapchain) Native() NativeSwapchain { return s.native }

// AcquireNextDescriptor names the objects an acquire signals.
type AcquireNextDescriptor struct {
	Signal  *Semaphore
	Fence   *Fence
	Timeout time.Duration // 0 waits forever
}

// AcquireNextImage acquires the next back buffer. On success the fence is
// marked submitted and the semaphore signaled. When the swapchain is out of
// date it returns InvalidImageIndex and ErrOutOfDate, resets the fence and
// clears the semaphore flag so neither is waited on.
func (s *Swapchain) AcquireNextImage(desc *AcquireNextDescriptor) (uint32, error) {
	d := s.device
	var nf NativeFence
	var nsem NativeSemaphore
	if desc.Fence != nil {
		nf = desc.Fence.native
	}
	if desc.Signal != nil {
		nsem = desc.Signal.native
	}
	idx, err := s.native.Acquire(nf, nsem, desc.Timeout)
	switch {
	case err == nil:
		if desc.Fence != nil {
			desc.Fence.submitted = true
		}
		if desc.Signal != nil {
			desc.Signal.signaled = true
		}
		return idx, nil
	case errors.Is(err, ErrOutOfDate):
		if desc.Fence != nil {
			desc.Fence.submitted = false
			if rerr := d.native.ResetFences([]NativeFence{nf}); rerr != nil {
				logNative(d.log, "ResetFences", rerr)
			}
		}
		if desc.Signal != nil {
			desc.Signal.signaled = false
		}
		d.log.Warn("cgpu: acquire on out-of-date swapchain")
		return InvalidImageIndex, ErrOutOfDate
	case errors.Is(err, ErrTimeout):
		return InvalidImageIndex, ErrTimeout
	default:
		return InvalidImageIndex, d.classify("AcquireNextImage", err)
	}
}

// Free destroys the swapchain and forgets its back buffers.
func (s *Swapchain) Free() {
	for _, t := range s.images {
		t.native = nil
	}
	s.images = nil
	if s.native != nil {
		s.native.Destroy()
		s.native = nil
	}
}
