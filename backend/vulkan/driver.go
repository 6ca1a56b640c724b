package vulkan

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/gogpu/cgpu"
	vk "github.com/goki/vulkan"
)

func init() {
	cgpu.Register(cgpu.BackendVulkan, func() cgpu.Driver {
		return New(Config{})
	})
}

// ValidationLayer is enabled when the debug layer is requested and present.
const ValidationLayer = "VK_LAYER_KHRONOS_validation"

// surfaceExtensions are enabled whenever the loader offers them, so any
// windowing library can create surfaces.
var surfaceExtensions = []string{
	"VK_KHR_surface",
	"VK_KHR_win32_surface",
	"VK_KHR_xlib_surface",
	"VK_KHR_xcb_surface",
	"VK_KHR_wayland_surface",
	"VK_KHR_android_surface",
	"VK_EXT_metal_surface",
	"VK_MVK_macos_surface",
}

const swapchainExtension = "VK_KHR_swapchain"

// Config configures the loader.
type Config struct {
	// ProcAddr is a vkGetInstanceProcAddr pointer, such as the one
	// glfw.GetVulkanGetInstanceProcAddress returns. Nil loads the system
	// Vulkan library.
	ProcAddr unsafe.Pointer
	AppName  string
}

// Driver creates Vulkan instances.
type Driver struct {
	cfg Config
}

// New returns a driver for cfg.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

var (
	loadOnce sync.Once
	loadErr  error
)

// load initializes the loader once per process.
func (d *Driver) load() error {
	loadOnce.Do(func() {
		if d.cfg.ProcAddr != nil {
			vk.SetGetInstanceProcAddr(d.cfg.ProcAddr)
		} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loadErr = fmt.Errorf("vulkan: load loader: %w", err)
			return
		}
		if err := vk.Init(); err != nil {
			loadErr = fmt.Errorf("vulkan: init: %w", err)
		}
	})
	return loadErr
}

func instanceExtensions() ([]string, error) {
	var n uint32
	if err := check("enumerate instance extensions", vk.EnumerateInstanceExtensionProperties("", &n, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, n)
	if err := check("enumerate instance extensions", vk.EnumerateInstanceExtensionProperties("", &n, props)); err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		out = append(out, vk.ToString(p.ExtensionName[:]))
	}
	return out, nil
}

func instanceLayers() ([]string, error) {
	var n uint32
	if err := check("enumerate layers", vk.EnumerateInstanceLayerProperties(&n, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, n)
	if err := check("enumerate layers", vk.EnumerateInstanceLayerProperties(&n, props)); err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		out = append(out, vk.ToString(p.LayerName[:]))
	}
	return out, nil
}

// CreateInstance implements cgpu.Driver. Requested extensions and layers
// the loader lacks are logged and skipped.
func (d *Driver) CreateInstance(desc *cgpu.InstanceDescriptor) (cgpu.NativeInstance, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	log := desc.Logger
	if log == nil {
		log = cgpu.NopLogger()
	}
	availExt, err := instanceExtensions()
	if err != nil {
		return nil, err
	}
	availLayers, err := instanceLayers()
	if err != nil {
		return nil, err
	}
	wantExt := append(append([]string(nil), surfaceExtensions...), desc.Extensions...)
	exts, _ := selectNames(availExt, wantExt)
	if _, missing := selectNames(availExt, desc.Extensions); len(missing) > 0 {
		log.Warn("vulkan: instance extensions not available", "missing", missing)
	}
	wantLayers := desc.Layers
	if desc.EnableDebugLayer {
		wantLayers = append([]string{ValidationLayer}, wantLayers...)
	}
	layers, missing := selectNames(availLayers, wantLayers)
	if len(missing) > 0 {
		log.Warn("vulkan: layers not available", "missing", missing)
	}

	app := d.cfg.AppName
	if app == "" {
		app = "cgpu"
	}
	var inst vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:            vk.StructureTypeApplicationInfo,
			ApiVersion:       uint32(vk.MakeVersion(1, 1, 0)),
			PApplicationName: safeString(app),
			PEngineName:      "cgpu\x00",
		},
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: safeStrings(exts),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}, nil, &inst)
	if err := check("create instance", ret); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(inst); err != nil {
		vk.DestroyInstance(inst, nil)
		return nil, fmt.Errorf("vulkan: init instance: %w", err)
	}
	log.Debug("vulkan: instance created", "extensions", len(exts), "layers", layers)
	return &Instance{handle: inst, log: log, desc: *desc, extensions: exts, layers: layers}, nil
}

// Instance is a cgpu.NativeInstance over a VkInstance.
type Instance struct {
	handle     vk.Instance
	log        *slog.Logger
	desc       cgpu.InstanceDescriptor
	extensions []string
	layers     []string
}

// Adapters implements cgpu.NativeInstance.
func (i *Instance) Adapters() ([]cgpu.NativeAdapter, error) {
	var n uint32
	if err := check("enumerate physical devices", vk.EnumeratePhysicalDevices(i.handle, &n, nil)); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	pds := make([]vk.PhysicalDevice, n)
	if err := check("enumerate physical devices", vk.EnumeratePhysicalDevices(i.handle, &n, pds)); err != nil {
		return nil, err
	}
	out := make([]cgpu.NativeAdapter, 0, n)
	for _, pd := range pds[:n] {
		a, err := newAdapter(i, pd)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Extensions implements cgpu.NativeInstance.
func (i *Instance) Extensions() []string { return i.extensions }

// Layers implements cgpu.NativeInstance.
func (i *Instance) Layers() []string { return i.layers }

// CreateSurface implements cgpu.NativeInstance. Surfaces are created by the
// windowing library through w.Create, which receives the VkInstance.
func (i *Instance) CreateSurface(w cgpu.WindowHandle) (cgpu.NativeSurface, error) {
	if w.Create == nil {
		return nil, fmt.Errorf("vulkan: surface without a Create callback: %w", cgpu.ErrUnsupported)
	}
	ptr, err := w.Create(uintptr(unsafe.Pointer(i.handle)))
	if err != nil {
		return nil, fmt.Errorf("vulkan: create surface: %w", err)
	}
	if ptr == 0 {
		return nil, errors.New("vulkan: create surface returned a null surface")
	}
	return &Surface{instance: i, handle: vk.SurfaceFromPointer(ptr)}, nil
}

// Destroy implements cgpu.NativeObject.
func (i *Instance) Destroy() {
	vk.DestroyInstance(i.handle, nil)
}

// Surface is a VkSurfaceKHR.
type Surface struct {
	instance *Instance
	handle   vk.Surface
}

// Destroy implements cgpu.NativeObject.
func (s *Surface) Destroy() {
	vk.DestroySurface(s.instance.handle, s.handle, nil)
}
