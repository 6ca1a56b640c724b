package vulkan

import (
	"fmt"
	"slices"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
)

// Adapter is a VkPhysicalDevice with its properties read once.
type Adapter struct {
	instance   *Instance
	handle     vk.PhysicalDevice
	props      vk.PhysicalDeviceProperties
	features   vk.PhysicalDeviceFeatures
	families   []cgpu.QueueFamily
	memory     []vk.MemoryPropertyFlagBits
	extensions []string
}

func newAdapter(i *Instance, pd vk.PhysicalDevice) (*Adapter, error) {
	a := &Adapter{instance: i, handle: pd}
	vk.GetPhysicalDeviceProperties(pd, &a.props)
	a.props.Deref()
	a.props.Limits.Deref()
	vk.GetPhysicalDeviceFeatures(pd, &a.features)
	a.features.Deref()

	var n uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &n, nil)
	qf := make([]vk.QueueFamilyProperties, n)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &n, qf)
	for _, f := range qf[:n] {
		f.Deref()
		a.families = append(a.families, cgpu.QueueFamily{
			Flags:              cgpu.QueueFlags(f.QueueFlags),
			Count:              f.QueueCount,
			TimestampValidBits: f.TimestampValidBits,
		})
	}

	var mem vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &mem)
	mem.Deref()
	for i := range mem.MemoryTypeCount {
		mem.MemoryTypes[i].Deref()
		a.memory = append(a.memory, vk.MemoryPropertyFlagBits(mem.MemoryTypes[i].PropertyFlags))
	}

	n = 0
	if err := check("enumerate device extensions", vk.EnumerateDeviceExtensionProperties(pd, "", &n, nil)); err != nil {
		return nil, err
	}
	exts := make([]vk.ExtensionProperties, n)
	if err := check("enumerate device extensions", vk.EnumerateDeviceExtensionProperties(pd, "", &n, exts)); err != nil {
		return nil, err
	}
	for _, e := range exts[:n] {
		e.Deref()
		a.extensions = append(a.extensions, vk.ToString(e.ExtensionName[:]))
	}
	return a, nil
}

// Detail implements cgpu.NativeAdapter.
func (a *Adapter) Detail() cgpu.AdapterDetail {
	return adapterDetail(&a.props, &a.features, a.families)
}

// adapterDetail summarizes already dereferenced properties.
func adapterDetail(p *vk.PhysicalDeviceProperties, f *vk.PhysicalDeviceFeatures, families []cgpu.QueueFamily) cgpu.AdapterDetail {
	l := p.Limits
	limits := gputypes.DefaultLimits()
	limits.MaxTextureDimension1D = l.MaxImageDimension1D
	limits.MaxTextureDimension2D = l.MaxImageDimension2D
	limits.MaxTextureDimension3D = l.MaxImageDimension3D
	limits.MaxTextureArrayLayers = l.MaxImageArrayLayers
	limits.MaxBindGroups = l.MaxBoundDescriptorSets
	limits.MaxUniformBufferBindingSize = uint64(l.MaxUniformBufferRange)
	limits.MaxStorageBufferBindingSize = uint64(l.MaxStorageBufferRange)
	limits.MinUniformBufferOffsetAlignment = uint32(l.MinUniformBufferOffsetAlignment)
	limits.MinStorageBufferOffsetAlignment = uint32(l.MinStorageBufferOffsetAlignment)
	limits.MaxVertexBuffers = l.MaxVertexInputBindings
	limits.MaxVertexAttributes = l.MaxVertexInputAttributes
	limits.MaxColorAttachments = l.MaxColorAttachments
	limits.MaxComputeInvocationsPerWorkgroup = l.MaxComputeWorkGroupInvocations
	limits.MaxComputeWorkgroupSizeX = l.MaxComputeWorkGroupSize[0]
	limits.MaxComputeWorkgroupSizeY = l.MaxComputeWorkGroupSize[1]
	limits.MaxComputeWorkgroupSizeZ = l.MaxComputeWorkGroupSize[2]
	limits.MaxComputeWorkgroupsPerDimension = l.MaxComputeWorkGroupCount[0]
	limits.MaxPushConstantSize = l.MaxPushConstantsSize

	timestamps := l.TimestampComputeAndGraphics == vk.True
	for _, fam := range families {
		if fam.Flags&cgpu.QueueFlagGraphics != 0 && fam.TimestampValidBits == 0 {
			timestamps = false
		}
	}
	return cgpu.AdapterDetail{
		Info: gputypes.AdapterInfo{
			Name:       vk.ToString(p.DeviceName[:]),
			Vendor:     vendorName(p.VendorID),
			VendorID:   p.VendorID,
			DeviceID:   p.DeviceID,
			DeviceType: deviceType(p.DeviceType),
			Driver:     fmt.Sprintf("%#x", p.DriverVersion),
			DriverInfo: "Vulkan " + versionString(p.ApiVersion),
			Backend:    gputypes.BackendVulkan,
		},
		Limits:                    limits,
		SupportsGeometryShader:    f.GeometryShader == vk.True,
		SupportsTessellation:      f.TessellationShader == vk.True,
		SupportsUpdateTemplates:   true,
		SupportsTimestamps:        timestamps,
		SupportsIndependentBlends: f.IndependentBlend == vk.True,
		DynamicStates:             cgpu.DynamicStateCore,
		MaxVertexInputBindings:    l.MaxVertexInputBindings,
		MaxVertexAttributes:       l.MaxVertexInputAttributes,
		UniformBufferAlignment:    uint32(l.MinUniformBufferOffsetAlignment),
		UploadBufferAlignment:     uint32(max(l.OptimalBufferCopyOffsetAlignment, 4)),
		UploadBufferRowAlignment:  uint32(max(l.OptimalBufferCopyRowPitchAlignment, 1)),
		TimestampPeriod:           l.TimestampPeriod,
	}
}

// QueueFamilies implements cgpu.NativeAdapter.
func (a *Adapter) QueueFamilies() []cgpu.QueueFamily { return a.families }

// Extensions implements cgpu.NativeAdapter.
func (a *Adapter) Extensions() []string { return a.extensions }

// SurfaceCapabilities implements cgpu.NativeAdapter.
func (a *Adapter) SurfaceCapabilities(ns cgpu.NativeSurface) (*cgpu.SurfaceCapabilities, error) {
	s, ok := ns.(*Surface)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign surface %T", ns)
	}
	var caps vk.SurfaceCapabilities
	if err := check("surface capabilities", vk.GetPhysicalDeviceSurfaceCapabilities(a.handle, s.handle, &caps)); err != nil {
		return nil, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	var n uint32
	if err := check("surface formats", vk.GetPhysicalDeviceSurfaceFormats(a.handle, s.handle, &n, nil)); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, n)
	if err := check("surface formats", vk.GetPhysicalDeviceSurfaceFormats(a.handle, s.handle, &n, formats)); err != nil {
		return nil, err
	}
	out := &cgpu.SurfaceCapabilities{
		MinImageCount:       caps.MinImageCount,
		MaxImageCount:       caps.MaxImageCount,
		CurrentExtent:       cgpu.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinExtent:           cgpu.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxExtent:           cgpu.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
		CompositeAlpha:      fromVkCompositeAlpha(caps.SupportedCompositeAlpha),
		SupportedTransforms: cgpu.SurfaceTransform(caps.SupportedTransforms),
		CurrentTransform:    cgpu.SurfaceTransform(caps.CurrentTransform),
	}
	for _, f := range formats[:n] {
		f.Deref()
		if f.ColorSpace != vk.ColorSpaceSrgbNonlinear {
			continue
		}
		// A single Undefined entry means any format is accepted.
		if f.Format == vk.FormatUndefined {
			out.Formats = append(out.Formats, gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatRGBA8Unorm)
			continue
		}
		if tf := fromVkFormat(f.Format); tf != gputypes.TextureFormatUndefined && !slices.Contains(out.Formats, tf) {
			out.Formats = append(out.Formats, tf)
		}
	}

	n = 0
	if err := check("present modes", vk.GetPhysicalDeviceSurfacePresentModes(a.handle, s.handle, &n, nil)); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, n)
	if err := check("present modes", vk.GetPhysicalDeviceSurfacePresentModes(a.handle, s.handle, &n, modes)); err != nil {
		return nil, err
	}
	for _, m := range modes[:n] {
		if pm := fromVkPresentMode(m); pm != gputypes.PresentModeUndefined {
			out.PresentModes = append(out.PresentModes, pm)
		}
	}
	return out, nil
}

// SupportsPresent implements cgpu.NativeAdapter.
func (a *Adapter) SupportsPresent(family uint32, ns cgpu.NativeSurface) bool {
	s, ok := ns.(*Surface)
	if !ok {
		return false
	}
	var supported vk.Bool32
	if vk.GetPhysicalDeviceSurfaceSupport(a.handle, family, s.handle, &supported) != vk.Success {
		return false
	}
	return supported == vk.True
}

// CreateDevice implements cgpu.NativeAdapter. The swapchain extension is
// enabled when present, along with every optional feature the device
// layer uses.
func (a *Adapter) CreateDevice(desc *cgpu.NativeDeviceDescriptor) (cgpu.NativeDevice, error) {
	log := a.instance.log
	queues := make([]vk.DeviceQueueCreateInfo, 0, len(desc.Queues))
	for _, q := range desc.Queues {
		if int(q.Family) >= len(a.families) || q.Count == 0 || q.Count > a.families[q.Family].Count {
			return nil, fmt.Errorf("vulkan: invalid queue request %+v", q)
		}
		prio := make([]float32, q.Count)
		for i := range prio {
			prio[i] = 1
		}
		queues = append(queues, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: q.Family,
			QueueCount:       q.Count,
			PQueuePriorities: prio,
		})
	}
	want := append([]string{swapchainExtension}, desc.Extensions...)
	exts, _ := selectNames(a.extensions, want)
	if _, missing := selectNames(a.extensions, desc.Extensions); len(missing) > 0 {
		log.Warn("vulkan: device extensions not available", "missing", missing)
	}
	enabled := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy:  a.features.SamplerAnisotropy,
		GeometryShader:     a.features.GeometryShader,
		TessellationShader: a.features.TessellationShader,
		IndependentBlend:   a.features.IndependentBlend,
		FillModeNonSolid:   a.features.FillModeNonSolid,
		DepthClamp:         a.features.DepthClamp,
		DepthBiasClamp:     a.features.DepthBiasClamp,
	}
	var handle vk.Device
	ret := vk.CreateDevice(a.handle, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queues)),
		PQueueCreateInfos:       queues,
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: safeStrings(exts),
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{enabled},
	}, nil, &handle)
	if err := check("create device", ret); err != nil {
		return nil, err
	}
	d, err := newDevice(a, handle, desc.Queues, enabled)
	if err != nil {
		vk.DestroyDevice(handle, nil)
		return nil, err
	}
	log.Info("vulkan: device created", "adapter", vk.ToString(a.props.DeviceName[:]), "extensions", exts)
	return d, nil
}
