package cgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// RenderPassDescriptor describes the attachments of a single-subpass render
// pass. Zero load/store ops default to Clear/Store.
type RenderPassDescriptor struct {
	Name             string
	ColorAttachments []AttachmentDescriptor
	DepthStencil     *DepthAttachmentDescriptor
}

// RenderPass is the attachment formats and load/store actions a pipeline
// and framebuffer are compatible with.
type RenderPass struct {
	device *Device
	native NativeRenderPass
	desc   NativeRenderPassDescriptor
}

// CreateRenderPass creates a render pass.
func (d *Device) CreateRenderPass(desc *RenderPassDescriptor) (*RenderPass, error) {
	if len(desc.ColorAttachments) > MaxRenderTargets {
		return nil, creationFailed("CreateRenderPass", fmt.Errorf("%d color attachments exceed %d", len(desc.ColorAttachments), MaxRenderTargets))
	}
	nd := NativeRenderPassDescriptor{Name: desc.Name}
	for _, a := range desc.ColorAttachments {
		a.SampleCount = max(a.SampleCount, 1)
		a.LoadOp = loadOr(a.LoadOp)
		a.StoreOp = storeOr(a.StoreOp)
		nd.Colors = append(nd.Colors, a)
	}
	if ds := desc.DepthStencil; ds != nil {
		dd := *ds
		dd.SampleCount = max(dd.SampleCount, 1)
		dd.DepthLoadOp = loadOr(dd.DepthLoadOp)
		dd.DepthStoreOp = storeOr(dd.DepthStoreOp)
		dd.StencilLoadOp = loadOr(dd.StencilLoadOp)
		dd.StencilStoreOp = storeOr(dd.StencilStoreOp)
		nd.Depth = &dd
	}
	np, err := d.native.CreateRenderPass(&nd)
	if err != nil {
		return nil, creationFailed("CreateRenderPass", logNative(d.log, "CreateRenderPass", err))
	}
	d.SetName(np, desc.Name)
	return &RenderPass{device: d, native: np, desc: nd}, nil
}

func loadOr(op gputypes.LoadOp) gputypes.LoadOp {
	if op == gputypes.LoadOpUndefined {
		return gputypes.LoadOpClear
	}
	return op
}

func storeOr(op gputypes.StoreOp) gputypes.StoreOp {
	if op == gputypes.StoreOpUndefined {
		return gputypes.StoreOpStore
	}
	return op
}

func (p *RenderPass) colorFormats() []gputypes.TextureFormat {
	out := make([]gputypes.TextureFormat, len(p.desc.Colors))
	for i, c := range p.desc.Colors {
		out[i] = c.Format
	}
	return out
}

func (p *RenderPass) depthFormat() gputypes.TextureFormat {
	if p.desc.Depth == nil {
		return gputypes.TextureFormatUndefined
	}
	return p.desc.Depth.Format
}

// ColorCount returns the number of color attachments.
func (p *RenderPass) ColorCount() int { return len(p.desc.Colors) }

// Native returns the backend render pass.
func (p *RenderPass) Native() NativeRenderPass { return p.native }

// Free destroys the render pass.
func (p *RenderPass) Free() {
	if p.native != nil {
		p.native.Destroy()
		p.native = nil
	}
}

// FramebufferDescriptor binds concrete views to a render pass. A zero size
// is taken from the first view.
type FramebufferDescriptor struct {
	RenderPass *RenderPass
	ColorViews []*TextureView
	DepthView  *TextureView
	Width      uint32
	Height     uint32
	Layers     uint32
}

// Framebuffer is a set of views compatible with a render pass.
type Framebuffer struct {
	device        *Device
	native        NativeFramebuffer
	pass          *RenderPass
	width, height uint32
}

// CreateFramebuffer creates a framebuffer.
func (d *Device) CreateFramebuffer(desc *FramebufferDescriptor) (*Framebuffer, error) {
	if desc.RenderPass == nil {
		return nil, creationFailed("CreateFramebuffer", fmt.Errorf("framebuffer needs a render pass"))
	}
	if len(desc.ColorViews) != desc.RenderPass.ColorCount() {
		return nil, creationFailed("CreateFramebuffer", fmt.Errorf("%d color views for %d attachments",
			len(desc.ColorViews), desc.RenderPass.ColorCount()))
	}
	views := make([]NativeTextureView, 0, len(desc.ColorViews)+1)
	for _, v := range desc.ColorViews {
		views = append(views, v.native)
	}
	if desc.DepthView != nil {
		views = append(views, desc.DepthView.native)
	}
	w, h := desc.Width, desc.Height
	if w == 0 || h == 0 {
		first := desc.DepthView
		if len(desc.ColorViews) > 0 {
			first = desc.ColorViews[0]
		}
		if first == nil {
			return nil, creationFailed("CreateFramebuffer", fmt.Errorf("framebuffer without views needs a size"))
		}
		w, h = first.texture.desc.Width>>first.desc.BaseMipLevel, first.texture.desc.Height>>first.desc.BaseMipLevel
	}
	nf, err := d.native.CreateFramebuffer(&NativeFramebufferDescriptor{
		RenderPass: desc.RenderPass.native,
		Views:      views,
		Width:      max(w, 1),
		Height:     max(h, 1),
		Layers:     max(desc.Layers, 1),
	})
	if err != nil {
		return nil, creationFailed("CreateFramebuffer", logNative(d.log, "CreateFramebuffer", err))
	}
	return &Framebuffer{device: d, native: nf, pass: desc.RenderPass, width: max(w, 1), height: max(h, 1)}, nil
}

// Size returns the framebuffer extent.
func (f *Framebuffer) Size() Extent2D { return Extent2D{Width: f.width, Height: f.height} }

// Native returns the backend framebuffer.
func (f *Framebuffer) Native() NativeFramebuffer { return f.native }

// Free destroys the framebuffer.
func (f *Framebuffer) Free() {
	if f.native != nil {
		f.native.Destroy()
		f.native = nil
	}
}
