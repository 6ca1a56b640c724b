// Package vulkan is a cgpu backend written directly against Vulkan 1.1
// through the goki/vulkan bindings.
//
// Importing the package registers it under cgpu.BackendVulkan, loading the
// system Vulkan library on first use. Windowing libraries that ship their
// own loader entry point re-register the driver with it:
//
//	cgpu.Register(cgpu.BackendVulkan, func() cgpu.Driver {
//		return vulkan.New(vulkan.Config{ProcAddr: glfw.GetVulkanGetInstanceProcAddress()})
//	})
//
// Surfaces are created by the windowing library: cgpu.WindowHandle.Create
// receives the VkInstance and returns a VkSurfaceKHR.
//
// # Mapping
//
// Most of the cgpu contract is one-to-one with Vulkan. The exceptions:
//
//   - descriptor update templates are decoded on the host into ordinary
//     descriptor writes
//   - texel buffer descriptors are rejected since no buffer views exist
//   - render pipelines need a render pass; dynamic rendering is not offered
//   - debug labels and object names go to the log instead of the driver
//
// Every descriptor set layout owns a chain of descriptor pools that grows
// by 64 sets whenever it runs full.
package vulkan
