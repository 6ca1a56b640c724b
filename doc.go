// Package cgpu is a cross-backend GPU device layer for Go.
//
// # Overview
//
// cgpu presents one explicit API over Vulkan, the pure Go WebGPU HAL and an
// in-memory null backend: instances and adapters, devices and queues,
// buffers, textures and samplers, root signatures and descriptor sets,
// pipelines, command recording with resource barriers, and submission and
// presentation with fences and semaphores.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/cgpu"
//		_ "github.com/gogpu/cgpu/backend/vulkan"
//	)
//
//	inst, err := cgpu.CreateInstance("", cgpu.WithLogger(slog.Default()))
//	if err != nil {
//		return err
//	}
//	defer inst.Free()
//
//	dev, err := inst.Adapters()[0].CreateDevice(&cgpu.DeviceDescriptor{
//		Queues: []cgpu.QueueGroup{{Type: cgpu.QueueGraphics, Count: 1}},
//	})
//	q, _ := dev.Queue(cgpu.QueueGraphics, 0)
//
// # Backends
//
// Backends register a Driver by name from their init functions. An empty
// backend name selects the best registered one, in the order vulkan, wgpu,
// null:
//   - backend/vulkan: the reference implementation over goki/vulkan
//   - backend/wgpu: the gogpu/wgpu HAL, bind groups in place of descriptor sets
//   - backend/null: records native calls, used by tests
//
// # Binding Model
//
// A RootSignature merges the reflection of every shader stage into one
// parameter table per descriptor set, plus push constant ranges and static
// samplers. Structurally identical signatures created through a
// RootSignaturePool share their native layouts. A DescriptorSet is updated
// by resource name or binding; backends with update templates take the
// whole set in one call.
//
// Reflection comes with the ShaderLibraryDescriptor; package reflection
// produces it from WGSL.
//
// # Command Recording
//
// A CommandBuffer moves from Initial to Recording on Begin, to InsidePass
// while a render or compute pass is open, and to Executable on End. Calls
// made in the wrong state fail with a *StateError; recording calls that
// cannot return an error keep the first one and report it from End.
//
// ResourceBarrier takes resource states rather than layouts and access
// masks. The backend derives both, and the pipeline stages from the queue
// type.
//
// # Frames
//
// FrameRing hands out frame slots in order, each with a command pool, a
// command buffer, a fence and two semaphores. Next waits until the slot's
// previous submission completed:
//
//	f, _ := ring.Next()
//	idx, err := sc.AcquireNextImage(&cgpu.AcquireNextDescriptor{Signal: f.ImageAcquired})
//	if errors.Is(err, cgpu.ErrOutOfDate) {
//		// recreate the swapchain
//	}
//	// record into f.Cmd, submit with f.Fence, present waiting on f.RenderFinished
//
// # Logging
//
// Nothing is logged unless a logger is passed with WithLogger. Object
// creation logs at Debug, adapter and swapchain selection at Info, degraded
// results at Warn and native failures at Error.
//
// # Errors
//
// Creation failures match ErrCreationFailed, device loss ErrDeviceLost (and
// Device.IsLost stays true), a stale swapchain ErrOutOfDate. Contract
// violations return typed errors such as *StateError and
// *DescriptorRangeError.
//
// # Related Packages
//
//   - reflection: WGSL shader reflection
//   - imgui: renderer for immediate mode UI draw data
//   - profiler: GPU timestamp profiling per frame
//   - config: TOML and YAML settings
package cgpu
