package cgpu

import (
	"fmt"
	"log/slog"
	"sort"
)

// InstanceOption configures an Instance during creation.
//
// Example:
//
//	inst, err := cgpu.CreateInstance(cgpu.BackendVulkan,
//	    cgpu.WithLogger(slog.Default()),
//	    cgpu.WithDebugLayer(true),
//	)
type InstanceOption func(*InstanceDescriptor)

// WithLogger sets the logger used by the instance and everything created
// from it. By default the device layer produces no log output.
func WithLogger(l *slog.Logger) InstanceOption {
	return func(d *InstanceDescriptor) { d.Logger = l }
}

// WithAllocator sets the host allocator for the device layer's bookkeeping.
func WithAllocator(a Allocator) InstanceOption {
	return func(d *InstanceDescriptor) { d.Allocator = a }
}

// WithDebugLayer enables the backend validation layer.
func WithDebugLayer(enable bool) InstanceOption {
	return func(d *InstanceDescriptor) { d.EnableDebugLayer = enable }
}

// WithGPUBasedValidation enables GPU-assisted validation. It implies the
// debug layer.
func WithGPUBasedValidation(enable bool) InstanceOption {
	return func(d *InstanceDescriptor) {
		d.EnableGPUBasedValidation = enable
		if enable {
			d.EnableDebugLayer = true
		}
	}
}

// WithSetName enables object naming and debug markers.
func WithSetName(enable bool) InstanceOption {
	return func(d *InstanceDescriptor) { d.EnableSetName = enable }
}

// WithInstanceExtensions requests additional instance extensions.
func WithInstanceExtensions(names ...string) InstanceOption {
	return func(d *InstanceDescriptor) { d.Extensions = append(d.Extensions, names...) }
}

// WithInstanceLayers requests additional instance layers.
func WithInstanceLayers(names ...string) InstanceOption {
	return func(d *InstanceDescriptor) { d.Layers = append(d.Layers, names...) }
}

// WithDeviceExtensions requests additional extensions on every device.
func WithDeviceExtensions(names ...string) InstanceOption {
	return func(d *InstanceDescriptor) { d.DeviceExtensions = append(d.DeviceExtensions, names...) }
}

// Instance is a connection to one backend. It is created once and freed
// last: every object created from it must be freed first.
type Instance struct {
	backend    string
	native     NativeInstance
	log        *slog.Logger
	alloc      Allocator
	desc       InstanceDescriptor
	adapters   []*Adapter
	extensions map[string]bool
	layers     map[string]bool
}

// CreateInstance connects to the named backend ("" selects the best
// registered one) and enumerates its adapters.
func CreateInstance(backend string, opts ...InstanceOption) (*Instance, error) {
	var desc InstanceDescriptor
	for _, opt := range opts {
		opt(&desc)
	}
	desc.Logger = loggerOrNop(desc.Logger)
	if desc.Allocator == nil {
		desc.Allocator = HeapAllocator{}
	}

	name, drv, err := lookupDriver(backend)
	if err != nil {
		return nil, err
	}
	native, err := drv.CreateInstance(&desc)
	if err != nil {
		desc.Logger.Error("cgpu: instance creation failed", "backend", name, "err", err)
		return nil, creationFailed("CreateInstance", err)
	}

	inst := &Instance{
		backend:    name,
		native:     native,
		log:        desc.Logger,
		alloc:      desc.Allocator,
		desc:       desc,
		extensions: toSet(native.Extensions()),
		layers:     toSet(native.Layers()),
	}
	if err := inst.enumerate(); err != nil {
		native.Destroy()
		return nil, err
	}
	inst.log.Info("cgpu: instance created", "backend", name, "adapters", len(inst.adapters))
	return inst, nil
}

func (i *Instance) enumerate() error {
	natives, err := i.native.Adapters()
	if err != nil {
		return creationFailed("EnumerateAdapters", logNative(i.log, "EnumerateAdapters", err))
	}
	i.adapters = make([]*Adapter, 0, len(natives))
	for _, na := range natives {
		i.adapters = append(i.adapters, newAdapter(i, na))
	}
	sortAdapters(i.adapters)
	return nil
}

// Backend returns the name of the driver behind the instance.
func (i *Instance) Backend() string { return i.backend }

// Logger returns the instance logger.
func (i *Instance) Logger() *slog.Logger { return i.log }

// Allocator returns the instance allocator.
func (i *Instance) Allocator() Allocator { return i.alloc }

// Adapters returns the adapters, best first (discrete, integrated, virtual,
// CPU, other; ties keep enumeration order).
func (i *Instance) Adapters() []*Adapter { return i.adapters }

// HasExtension reports whether the instance supports an extension.
func (i *Instance) HasExtension(name string) bool { return i.extensions[name] }

// HasLayer reports whether the instance supports a layer.
func (i *Instance) HasLayer(name string) bool { return i.layers[name] }

// Native returns the backend instance.
func (i *Instance) Native() NativeInstance { return i.native }

// Free destroys the backend connection.
func (i *Instance) Free() {
	if i.native != nil {
		i.native.Destroy()
		i.native = nil
	}
	i.adapters = nil
}

// CreateSurface creates a presentable surface for a native window.
func (i *Instance) CreateSurface(w WindowHandle) (*Surface, error) {
	ns, err := i.native.CreateSurface(w)
	if err != nil {
		return nil, creationFailed("CreateSurface", logNative(i.log, "CreateSurface", err))
	}
	return &Surface{instance: i, native: ns}, nil
}

// Surface is a window surface swapchains present to.
type Surface struct {
	instance *Instance
	native   NativeSurface
}

// Native returns the backend surface.
func (s *Surface) Native() NativeSurface { return s.native }

// Free destroys the surface.
func (s *Surface) Free() {
	if s.native != nil {
		s.native.Destroy()
		s.native = nil
	}
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func sortAdapters(as []*Adapter) {
	sort.SliceStable(as, func(a, b int) bool {
		return adapterRank(as[a].detail.Info.DeviceType) < adapterRank(as[b].detail.Info.DeviceType)
	})
}

func (i *Instance) String() string {
	return fmt.Sprintf("cgpu.Instance(%s)", i.backend)
}
