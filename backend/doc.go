// Package backend provides the pluggable device abstraction the frame
// graph schedules against.
//
// The backend package decouples graph compilation from any concrete GPU
// layer. A Device creates and destroys resources, hands out command
// encoders, applies texture state transitions, and submits command buffers
// to its queues. The graph never talks to hardware directly.
//
// # Backend Registration
//
// Device backends are registered via init() functions and selected at
// runtime:
//
//	import _ "github.com/gogpu/framegraph/backend/null"
//	import _ "github.com/gogpu/framegraph/backend/wgpu"
//
// # Backend Selection
//
// Use Default() to get the best available device, or Get() to request a
// specific backend by name:
//
//	// Best available: wgpu when a GPU is present, null otherwise.
//	dev, err := backend.Default()
//
//	// Or request a specific backend.
//	dev, err := backend.Get(backend.BackendNull)
//
// # Queues and Fences
//
// A Device exposes a graphics queue and an async compute queue. Backends
// without a dedicated compute queue return the graphics queue for both
// kinds; cross-queue ordering is still expressed through timeline fences
// (Submit signals a value, Wait blocks on it), so schedules compiled for
// two pipes stay correct on single-queue hardware.
//
// # Available Backends
//
// - "null": recording no-op device (always available, used headless and in tests)
// - "wgpu": gogpu/wgpu hal devices (Vulkan, Metal, DX12, software)
package backend
