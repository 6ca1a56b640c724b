package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop" // fallback without a GPU
)

func init() {
	cgpu.Register(cgpu.BackendWGPU, func() cgpu.Driver {
		return New(Config{})
	})
}

// backendPreference is the order HAL backends are tried in when Config
// leaves the choice open. The empty backend is last so a machine without a
// GPU still gets a device.
var backendPreference = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
	gputypes.BackendEmpty,
}

// Config selects the HAL backend.
type Config struct {
	// Backend forces a HAL backend. BackendEmpty with Explicit set selects
	// the no-op backend.
	Backend  gputypes.Backend
	Explicit bool
}

// Driver creates instances on a HAL backend registered with
// hal.RegisterBackend.
type Driver struct {
	cfg Config
}

// New returns a driver for cfg.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

func (d *Driver) selectBackend() (hal.Backend, error) {
	if d.cfg.Explicit || d.cfg.Backend != gputypes.BackendEmpty {
		b, ok := hal.GetBackend(d.cfg.Backend)
		if !ok {
			return nil, fmt.Errorf("wgpu: hal backend %s: %w", d.cfg.Backend, hal.ErrBackendNotFound)
		}
		return b, nil
	}
	available := hal.AvailableBackends()
	for _, v := range backendPreference {
		if slices.Contains(available, v) {
			b, _ := hal.GetBackend(v)
			return b, nil
		}
	}
	return nil, hal.ErrBackendNotFound
}

// CreateInstance implements cgpu.Driver.
func (d *Driver) CreateInstance(desc *cgpu.InstanceDescriptor) (cgpu.NativeInstance, error) {
	b, err := d.selectBackend()
	if err != nil {
		return nil, err
	}
	hd := &hal.InstanceDescriptor{Backends: gputypes.BackendsAll}
	if desc.EnableDebugLayer {
		hd.Flags |= gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	if desc.EnableGPUBasedValidation {
		hd.Flags |= gputypes.InstanceFlagsGPUBasedValidation
	}
	hi, err := b.CreateInstance(hd)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create %s instance: %w", b.Variant(), err)
	}
	log := desc.Logger
	if log == nil {
		log = cgpu.NopLogger()
	}
	log.Debug("wgpu: instance created", "backend", b.Variant().String())
	inst := &Instance{hal: hi, variant: b.Variant(), log: log}
	if desc.EnableDebugLayer {
		inst.layers = []string{"validation"}
	}
	return inst, nil
}

// Instance is a cgpu.NativeInstance over a hal.Instance.
type Instance struct {
	hal     hal.Instance
	variant gputypes.Backend
	log     *slog.Logger
	layers  []string
}

// Variant returns the HAL backend in use.
func (i *Instance) Variant() gputypes.Backend { return i.variant }

// Adapters implements cgpu.NativeInstance.
func (i *Instance) Adapters() ([]cgpu.NativeAdapter, error) {
	exposed := i.hal.EnumerateAdapters(nil)
	out := make([]cgpu.NativeAdapter, len(exposed))
	for n := range exposed {
		out[n] = &Adapter{instance: i, exposed: exposed[n]}
	}
	return out, nil
}

// Extensions implements cgpu.NativeInstance. The HAL enables what it needs
// on its own.
func (i *Instance) Extensions() []string { return nil }

// Layers implements cgpu.NativeInstance.
func (i *Instance) Layers() []string { return i.layers }

// CreateSurface implements cgpu.NativeInstance. The HAL creates surfaces
// from raw display and window handles; a Create callback is not supported.
func (i *Instance) CreateSurface(w cgpu.WindowHandle) (cgpu.NativeSurface, error) {
	if w.Create != nil && w.Window == 0 {
		return nil, fmt.Errorf("wgpu: surface callbacks: %w", cgpu.ErrUnsupported)
	}
	hs, err := i.hal.CreateSurface(w.Display, w.Window)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create surface: %w", err)
	}
	return &Surface{hal: hs, instance: i}, nil
}

// Destroy implements cgpu.NativeObject.
func (i *Instance) Destroy() { i.hal.Destroy() }

// Surface wraps a hal.Surface.
type Surface struct {
	hal      hal.Surface
	instance *Instance
}

// Destroy implements cgpu.NativeObject.
func (s *Surface) Destroy() { s.hal.Destroy() }

// Adapter is a cgpu.NativeAdapter over one exposed HAL adapter. It has a
// single queue family able to do everything.
type Adapter struct {
	instance *Instance
	exposed  hal.ExposedAdapter
}

// Detail implements cgpu.NativeAdapter.
func (a *Adapter) Detail() cgpu.AdapterDetail {
	caps := a.exposed.Capabilities
	limits := caps.Limits
	return cgpu.AdapterDetail{
		Info:                      a.exposed.Info,
		Limits:                    limits,
		SupportsTimestamps:        a.exposed.Features.Contains(gputypes.FeatureTimestampQuery),
		SupportsIndependentBlends: true,
		DynamicStates:             cgpu.DynamicStateViewport | cgpu.DynamicStateScissor | cgpu.DynamicStateBlendConstants | cgpu.DynamicStateStencilReference,
		MaxVertexInputBindings:    limits.MaxVertexBuffers,
		MaxVertexAttributes:       limits.MaxVertexAttributes,
		UniformBufferAlignment:    limits.MinUniformBufferOffsetAlignment,
		UploadBufferAlignment:     uint32(max(caps.AlignmentsMask.BufferCopyOffset, 4)),
		UploadBufferRowAlignment:  uint32(max(caps.AlignmentsMask.BufferCopyPitch, 256)),
		TimestampPeriod:           1,
	}
}

// QueueFamilies implements cgpu.NativeAdapter.
func (a *Adapter) QueueFamilies() []cgpu.QueueFamily {
	return []cgpu.QueueFamily{{
		Flags:              cgpu.QueueFlagGraphics | cgpu.QueueFlagCompute | cgpu.QueueFlagTransfer,
		Count:              1,
		TimestampValidBits: 64,
	}}
}

// Extensions implements cgpu.NativeAdapter.
func (a *Adapter) Extensions() []string { return nil }

// SurfaceCapabilities implements cgpu.NativeAdapter. WebGPU surfaces do not
// report image counts or extents, so the usual double and triple buffering
// range and the texture size limit are reported.
func (a *Adapter) SurfaceCapabilities(s cgpu.NativeSurface) (*cgpu.SurfaceCapabilities, error) {
	hs, ok := s.(*Surface)
	if !ok {
		return nil, fmt.Errorf("wgpu: foreign surface %T", s)
	}
	hc := a.exposed.Adapter.SurfaceCapabilities(hs.hal)
	if hc == nil {
		return nil, errors.New("wgpu: surface not supported by adapter")
	}
	maxDim := a.exposed.Capabilities.Limits.MaxTextureDimension2D
	return &cgpu.SurfaceCapabilities{
		MinImageCount:       2,
		MaxImageCount:       3,
		MinExtent:           cgpu.Extent2D{Width: 1, Height: 1},
		MaxExtent:           cgpu.Extent2D{Width: maxDim, Height: maxDim},
		Formats:             hc.Formats,
		PresentModes:        hc.PresentModes,
		CompositeAlpha:      hc.AlphaModes,
		SupportedTransforms: cgpu.SurfaceTransformIdentity,
		CurrentTransform:    cgpu.SurfaceTransformIdentity,
	}, nil
}

// SupportsPresent implements cgpu.NativeAdapter.
func (a *Adapter) SupportsPresent(family uint32, s cgpu.NativeSurface) bool {
	hs, ok := s.(*Surface)
	return ok && family == 0 && a.exposed.Adapter.SurfaceCapabilities(hs.hal) != nil
}

// CreateDevice implements cgpu.NativeAdapter.
func (a *Adapter) CreateDevice(desc *cgpu.NativeDeviceDescriptor) (cgpu.NativeDevice, error) {
	for _, q := range desc.Queues {
		if q.Family != 0 || q.Count > 1 {
			return nil, fmt.Errorf("wgpu: invalid queue request %+v", q)
		}
	}
	od, err := a.exposed.Adapter.Open(a.exposed.Features, a.exposed.Capabilities.Limits)
	if err != nil {
		return nil, mapError("open device", err)
	}
	return newDevice(a, od), nil
}
