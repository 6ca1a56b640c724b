package cgpu

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestClampImageCount(t *testing.T) {
	bounded := &SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}
	unbounded := &SurfaceCapabilities{MinImageCount: 3}
	for req := uint32(0); req <= 100; req++ {
		got := clampImageCount(req, bounded)
		if got < 2 || got > 8 {
			t.Fatalf("clampImageCount(%d) = %d, outside [2,8]", req, got)
		}
		if req >= 2 && req <= 8 && got != req {
			t.Errorf("clampImageCount(%d) = %d, want unchanged", req, got)
		}
		if got := clampImageCount(req, unbounded); got != max(req, 3) {
			t.Errorf("unbounded clampImageCount(%d) = %d, want %d", req, got, max(req, 3))
		}
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	avail := []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb}
	if got := chooseSurfaceFormat(gputypes.TextureFormatBGRA8UnormSrgb, avail); got != gputypes.TextureFormatBGRA8UnormSrgb {
		t.Errorf("supported format replaced by %s", got)
	}
	if got := chooseSurfaceFormat(gputypes.TextureFormatRGBA16Float, avail); got != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("unsupported format fell back to %s, want BGRA8Unorm", got)
	}
	if got := chooseSurfaceFormat(gputypes.TextureFormatUndefined, avail); got != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("undefined format fell back to %s, want BGRA8Unorm", got)
	}
}

func TestChoosePresentMode(t *testing.T) {
	all := []gputypes.PresentMode{
		gputypes.PresentModeFifo, gputypes.PresentModeMailbox,
		gputypes.PresentModeImmediate, gputypes.PresentModeFifoRelaxed,
	}
	tests := []struct {
		name  string
		vsync bool
		avail []gputypes.PresentMode
		want  gputypes.PresentMode
	}{
		{"no vsync prefers immediate", false, all, gputypes.PresentModeImmediate},
		{"vsync prefers mailbox", true, all, gputypes.PresentModeMailbox},
		{"vsync skips immediate", true, []gputypes.PresentMode{gputypes.PresentModeImmediate, gputypes.PresentModeFifoRelaxed}, gputypes.PresentModeFifoRelaxed},
		{"fifo only", false, []gputypes.PresentMode{gputypes.PresentModeFifo}, gputypes.PresentModeFifo},
		{"nothing reported", true, nil, gputypes.PresentModeFifo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := choosePresentMode(tt.vsync, tt.avail); got != tt.want {
				t.Errorf("choosePresentMode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestChooseCompositeAlpha(t *testing.T) {
	got := chooseCompositeAlpha([]gputypes.CompositeAlphaMode{
		gputypes.CompositeAlphaModePremultiplied, gputypes.CompositeAlphaModeOpaque,
	})
	if got != gputypes.CompositeAlphaModeOpaque {
		t.Errorf("chooseCompositeAlpha() = %s, want Opaque", got)
	}
	if got := chooseCompositeAlpha([]gputypes.CompositeAlphaMode{gputypes.CompositeAlphaModeInherit, gputypes.CompositeAlphaModeOpaque}); got != gputypes.CompositeAlphaModeInherit {
		t.Errorf("chooseCompositeAlpha() = %s, want Inherit", got)
	}
	if got := chooseCompositeAlpha(nil); got != gputypes.CompositeAlphaModeOpaque {
		t.Errorf("chooseCompositeAlpha(nil) = %s, want Opaque", got)
	}
}

func TestClampExtentAndTransform(t *testing.T) {
	caps := &SurfaceCapabilities{
		MinExtent:        Extent2D{Width: 16, Height: 16},
		MaxExtent:        Extent2D{Width: 1024, Height: 768},
		CurrentTransform: 0x2,
	}
	if got := clampExtent(4096, 4, caps); got != (Extent2D{Width: 1024, Height: 16}) {
		t.Errorf("clampExtent() = %+v", got)
	}
	if got := chooseTransform(caps); got != 0x2 {
		t.Errorf("chooseTransform() without identity = %#x, want current", got)
	}
	caps.SupportedTransforms = SurfaceTransformIdentity | 0x2
	if got := chooseTransform(caps); got != SurfaceTransformIdentity {
		t.Errorf("chooseTransform() = %#x, want identity", got)
	}
}

func TestResolveSwapchainDedupsFamilies(t *testing.T) {
	caps := &SurfaceCapabilities{
		MinImageCount: 2,
		MaxImageCount: 3,
		MaxExtent:     Extent2D{Width: 100, Height: 100},
		Formats:       []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm},
		PresentModes:  []gputypes.PresentMode{gputypes.PresentModeFifo},
	}
	desc := &SwapchainDescriptor{
		PresentQueues: []*Queue{{family: 0}, {family: 2}, {family: 0}},
		ImageCount:    5,
		Width:         50,
		Height:        60,
		EnableVsync:   true,
	}
	nd := resolveSwapchain(desc, caps)
	if nd.ImageCount != 3 {
		t.Errorf("ImageCount = %d, want 3", nd.ImageCount)
	}
	if len(nd.QueueFamilies) != 2 || nd.QueueFamilies[0] != 0 || nd.QueueFamilies[1] != 2 {
		t.Errorf("QueueFamilies = %v, want [0 2]", nd.QueueFamilies)
	}
	if nd.Usage != gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopyDst {
		t.Errorf("Usage = %v", nd.Usage)
	}
	if nd.Extent != (Extent2D{Width: 50, Height: 60}) {
		t.Errorf("Extent = %+v", nd.Extent)
	}
}
