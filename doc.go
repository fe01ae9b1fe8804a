// Package framegraph provides a frame graph for organizing GPU work in Go.
//
// # Overview
//
// framegraph is a Pure Go render graph built on the GoGPU ecosystem. Passes
// declare up front which resources they read and write; the graph compiles
// the declarations into an execution schedule with dead pass culling,
// barrier placement, render pass merging, and cross-queue synchronization,
// then records and submits the surviving passes.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/framegraph"
//		"github.com/gogpu/gputypes"
//	)
//
//	g, err := framegraph.New(device)
//	if err != nil {
//		return err
//	}
//
//	color, _ := g.CreateTexture(framegraph.TextureDescriptor{
//		Label:  "scene.color",
//		Width:  1920,
//		Height: 1080,
//		Format: gputypes.TextureFormatRGBA8Unorm,
//	})
//	view, _ := g.View(framegraph.ViewDescriptor{Resource: color})
//
//	params := &framegraph.RasterParams{
//		Accesses: framegraph.AccessList{
//			{Resource: color, Access: framegraph.AccessAttachmentWrite},
//		},
//	}
//	params.Targets.BindColor(view)
//
//	g.AddPass("geometry", framegraph.PassRaster, params,
//		framegraph.PassBodyFunc(func(pc *framegraph.PassContext) error {
//			// Record draws with pc.RenderPass().
//			return nil
//		}))
//
//	var out framegraph.ExtractedResource
//	g.Extract(color, &out)
//
//	if err := g.Run(ctx); err != nil {
//		return err
//	}
//	// out.Texture now holds the rendered frame.
//
// # Architecture Overview
//
// A graph invocation moves through three stages:
//
//	Declare (AddPass, CreateTexture, ...) -> Compile -> Execute
//
// Compile runs four phases over the declared passes:
//
//  1. Cull: passes that contribute to no external or extracted resource are
//     dropped from the schedule.
//  2. Barriers: per-resource state tracking places transitions on pass
//     prologues and brackets transient lifetimes with aliasing ops.
//  3. Merge: adjacent raster passes sharing render targets collapse into a
//     single render pass open/close.
//  4. Fences: cross-queue edges between the graphics and async compute
//     timelines become timeline fence signals and waits.
//
// Key components:
//
//   - Graph: declaration surface and lifecycle (Compile, Execute, Reset)
//   - CompiledGraph: frozen schedule with barrier batches and merge groups
//   - Transient allocator: aliased arena backing for graph-local resources
//   - Resource pool: free-list reuse for pooled textures and buffers
//   - WorkerPool: parallel command buffer recording across runs
//
// # Resources
//
// The graph distinguishes three ownership modes. Transient resources live in
// an aliased arena for the span of their first to last use and may share
// memory with non-overlapping neighbors. Pooled resources are leased from a
// free list and survive the whole invocation; extracted resources are always
// pooled. External resources are registered with their current access state
// and returned to it before the graph hands them back.
//
// Mip levels and array layers of a texture track their access state
// independently once a pass touches a subresource range, so one pass can
// read one mip while another writes a different one without a false hazard.
//
// # Passes
//
// Every pass carries exactly one kind flag (PassRaster, PassCompute,
// PassAsyncCompute, PassCopy), optional modifiers (PassNeverCull,
// PassNeverMerge, PassSkipRenderPass), params enumerating its resource
// accesses, and a body invoked during recording. Raster passes with bound
// render targets get their render pass opened and closed by the graph;
// compute and copy bodies drive the command encoder directly. Passes
// flagged PassAsyncCompute are scheduled on the async compute pipe and
// synchronized against graphics work with fences.
//
// # Execution
//
// Execute slices the schedule into runs, records one command buffer per run
// (in parallel when enabled), and submits them in declaration order. Fence
// waits are validated on the CPU timeline before submission. After Execute
// the graph is spent; Reset clears the invocation while keeping pooled
// backing and the transient arena warm.
//
// # Thread Safety
//
// Graph methods are safe for concurrent use. Pass bodies run concurrently
// during parallel recording and must not touch shared state without their
// own synchronization.
//
// # Error Handling
//
// Lifecycle misuse surfaces as sentinel errors:
//
//   - ErrGraphCompiled, ErrGraphExecuted, ErrGraphAbandoned, ErrNotCompiled:
//     operation does not fit the graph's current state
//   - ErrInvalidHandle: handle does not name a live resource, pass, or view
//   - ErrResourceFinalized: write declared on a read-only external resource
//   - ErrFenceTimeout: a fence wait exceeded the configured timeout
//
// Backend failures are wrapped with the failing resource or pass name and
// unwrap to the backend's own error.
//
// # Related Packages
//
//   - github.com/gogpu/wgpu: Pure Go WebGPU implementation (the HAL)
//   - github.com/gogpu/gputypes: shared GPU type and format definitions
//   - github.com/gogpu/gpucontext: adapter and device acquisition
package framegraph

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
