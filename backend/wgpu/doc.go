// Package wgpu is a cgpu backend on the gogpu/wgpu hardware abstraction
// layer. It reaches Vulkan, Metal, DX12 and GLES through one code path and
// falls back to the HAL's no-op backend on machines without a GPU.
//
// Importing the package registers it under cgpu.BackendWGPU:
//
//	import _ "github.com/gogpu/cgpu/backend/wgpu"
//
//	inst, err := cgpu.CreateInstance(cgpu.BackendWGPU)
//
// # Mapping
//
// The HAL follows WebGPU, so several cgpu concepts are emulated:
//
//   - one queue family with one queue; semaphores are no-ops and fences
//     track queue submission indices
//   - descriptor sets collect resources and become bind groups when bound
//   - render passes and framebuffers are resolved when a pass begins
//   - swapchain images are slots filled by each surface acquisition
//   - timestamps outside a pass are written by an empty compute pass
//
// Push constants, occlusion queries, descriptor arrays and update templates
// are not available. Push constants and queries fail the command buffer
// with cgpu.ErrUnsupported at End.
//
// Build with the nogpu tag to leave out the Vulkan HAL.
package wgpu
