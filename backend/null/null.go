package null

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/gputypes"
)

func init() {
	cgpu.Register(cgpu.BackendNull, func() cgpu.Driver {
		return New(DefaultConfig())
	})
}

// ValidationLayer is reported as available when the debug layer is enabled.
const ValidationLayer = "VK_LAYER_KHRONOS_validation"

// AdapterConfig describes one simulated adapter.
type AdapterConfig struct {
	Detail     cgpu.AdapterDetail
	Families   []cgpu.QueueFamily
	Extensions []string
	Surface    cgpu.SurfaceCapabilities
}

// Config describes what the null backend reports.
type Config struct {
	Adapters []AdapterConfig
}

// DefaultAdapter is a capable adapter: one graphics family with two queues,
// a dedicated compute family and a dedicated transfer family, update
// templates, timestamps and independent blending.
func DefaultAdapter() AdapterConfig {
	return AdapterConfig{
		Detail: cgpu.AdapterDetail{
			Info: gputypes.AdapterInfo{
				Name:       "Null Adapter",
				Vendor:     "cgpu",
				DeviceType: gputypes.DeviceTypeCPU,
				Driver:     "null",
			},
			Limits:                    gputypes.DefaultLimits(),
			SupportsUpdateTemplates:   true,
			SupportsTimestamps:        true,
			SupportsIndependentBlends: true,
			DynamicStates:             cgpu.DynamicStateCore,
			MaxVertexInputBindings:    16,
			MaxVertexAttributes:       16,
			UniformBufferAlignment:    256,
			UploadBufferAlignment:     4,
			UploadBufferRowAlignment:  1,
			TimestampPeriod:           1,
		},
		Families: []cgpu.QueueFamily{
			{Flags: cgpu.QueueFlagGraphics | cgpu.QueueFlagCompute | cgpu.QueueFlagTransfer, Count: 2, TimestampValidBits: 64},
			{Flags: cgpu.QueueFlagCompute | cgpu.QueueFlagTransfer, Count: 1, TimestampValidBits: 64},
			{Flags: cgpu.QueueFlagTransfer, Count: 1},
		},
		Surface: cgpu.SurfaceCapabilities{
			MinImageCount:       2,
			MaxImageCount:       8,
			CurrentExtent:       cgpu.Extent2D{Width: 800, Height: 600},
			MinExtent:           cgpu.Extent2D{Width: 1, Height: 1},
			MaxExtent:           cgpu.Extent2D{Width: 16384, Height: 16384},
			Formats:             []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatRGBA8Unorm},
			PresentModes:        []gputypes.PresentMode{gputypes.PresentModeFifo, gputypes.PresentModeMailbox},
			CompositeAlpha:      []gputypes.CompositeAlphaMode{gputypes.CompositeAlphaModeOpaque},
			SupportedTransforms: cgpu.SurfaceTransformIdentity,
			CurrentTransform:    cgpu.SurfaceTransformIdentity,
		},
	}
}

// DefaultConfig reports a single DefaultAdapter.
func DefaultConfig() Config {
	return Config{Adapters: []AdapterConfig{DefaultAdapter()}}
}

// Driver creates null instances. All instances of one Driver share its
// Recorder.
type Driver struct {
	cfg Config
	rec *Recorder
}

// New returns a driver reporting cfg.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg, rec: NewRecorder()}
}

// Recorder returns the call log shared by every object of the driver.
func (d *Driver) Recorder() *Recorder { return d.rec }

// CreateInstance implements cgpu.Driver.
func (d *Driver) CreateInstance(desc *cgpu.InstanceDescriptor) (cgpu.NativeInstance, error) {
	if err := d.rec.record("CreateInstance", desc.EnableDebugLayer); err != nil {
		return nil, err
	}
	inst := &Instance{
		object:     newObject(d.rec, "Instance"),
		cfg:        d.cfg,
		log:        desc.Logger,
		extensions: append([]string(nil), desc.Extensions...),
		layers:     append([]string(nil), desc.Layers...),
	}
	if inst.log == nil {
		inst.log = cgpu.NopLogger()
	}
	if desc.EnableDebugLayer {
		inst.layers = append(inst.layers, ValidationLayer)
	}
	return inst, nil
}

// Instance is a null cgpu.NativeInstance.
type Instance struct {
	object
	cfg        Config
	log        *slog.Logger
	extensions []string
	layers     []string
}

// Recorder returns the call log.
func (i *Instance) Recorder() *Recorder { return i.rec }

// Adapters implements cgpu.NativeInstance.
func (i *Instance) Adapters() ([]cgpu.NativeAdapter, error) {
	if err := i.rec.record("EnumerateAdapters"); err != nil {
		return nil, err
	}
	out := make([]cgpu.NativeAdapter, len(i.cfg.Adapters))
	for n := range i.cfg.Adapters {
		out[n] = &Adapter{instance: i, cfg: i.cfg.Adapters[n]}
	}
	return out, nil
}

// Extensions implements cgpu.NativeInstance. Every requested extension is
// reported as enabled.
func (i *Instance) Extensions() []string { return i.extensions }

// Layers implements cgpu.NativeInstance.
func (i *Instance) Layers() []string { return i.layers }

// CreateSurface implements cgpu.NativeInstance. A WindowHandle with a
// Create callback gets the instance handle, like a windowing library would.
func (i *Instance) CreateSurface(w cgpu.WindowHandle) (cgpu.NativeSurface, error) {
	if err := i.rec.record("CreateSurface", w.Kind, w.Window); err != nil {
		return nil, err
	}
	s := &Surface{object: newObject(i.rec, "Surface"), window: w.Window}
	if w.Create != nil {
		h, err := w.Create(uintptr(i.handle))
		if err != nil {
			return nil, fmt.Errorf("null: create surface: %w", err)
		}
		s.window = h
	}
	return s, nil
}

// Surface is a null cgpu.NativeSurface.
type Surface struct {
	object
	window uintptr
}

// Window returns the native window handle the surface was created for.
func (s *Surface) Window() uintptr { return s.window }

// Adapter is a null cgpu.NativeAdapter.
type Adapter struct {
	instance *Instance
	cfg      AdapterConfig
}

// Detail implements cgpu.NativeAdapter.
func (a *Adapter) Detail() cgpu.AdapterDetail { return a.cfg.Detail }

// QueueFamilies implements cgpu.NativeAdapter.
func (a *Adapter) QueueFamilies() []cgpu.QueueFamily { return a.cfg.Families }

// Extensions implements cgpu.NativeAdapter.
func (a *Adapter) Extensions() []string { return a.cfg.Extensions }

// SurfaceCapabilities implements cgpu.NativeAdapter.
func (a *Adapter) SurfaceCapabilities(s cgpu.NativeSurface) (*cgpu.SurfaceCapabilities, error) {
	if err := a.instance.rec.record("SurfaceCapabilities"); err != nil {
		return nil, err
	}
	caps := a.cfg.Surface
	return &caps, nil
}

// SupportsPresent implements cgpu.NativeAdapter: graphics families present.
func (a *Adapter) SupportsPresent(family uint32, s cgpu.NativeSurface) bool {
	return int(family) < len(a.cfg.Families) && a.cfg.Families[family].Flags&cgpu.QueueFlagGraphics != 0
}

// CreateDevice implements cgpu.NativeAdapter.
func (a *Adapter) CreateDevice(desc *cgpu.NativeDeviceDescriptor) (cgpu.NativeDevice, error) {
	rec := a.instance.rec
	if err := rec.record("CreateDevice", desc.Queues, desc.Extensions); err != nil {
		return nil, err
	}
	for _, q := range desc.Queues {
		if int(q.Family) >= len(a.cfg.Families) || q.Count > a.cfg.Families[q.Family].Count {
			return nil, fmt.Errorf("null: invalid queue request %+v", q)
		}
	}
	return &Device{
		object:  newObject(rec, "Device"),
		adapter: a,
		queues:  append([]cgpu.QueueRequest(nil), desc.Queues...),
	}, nil
}
