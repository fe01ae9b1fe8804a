// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"time"

	"github.com/gogpu/gputypes"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrDestroyed is returned when operations are called on a destroyed device.
	ErrDestroyed = errors.New("backend: device has been destroyed")
)

// QueueKind selects one of the device's submission queues.
type QueueKind uint8

const (
	// QueueGraphics is the primary graphics/compute queue.
	QueueGraphics QueueKind = iota

	// QueueCompute is the asynchronous compute queue. Backends without a
	// dedicated compute queue return the graphics queue here; cross-queue
	// ordering still flows through fences.
	QueueCompute
)

// String returns the queue kind name.
func (k QueueKind) String() string {
	switch k {
	case QueueGraphics:
		return "Graphics"
	case QueueCompute:
		return "Compute"
	default:
		return "Unknown"
	}
}

// Texture is an opaque backing texture owned by a Device.
type Texture interface {
	// Raw exposes the underlying implementation object, e.g. a hal.Texture
	// for the wgpu backend. Pass bodies may assert it to record real work.
	Raw() any
}

// Buffer is an opaque backing buffer owned by a Device.
type Buffer interface {
	Raw() any
}

// TextureView is an opaque view over a Texture.
type TextureView interface {
	Raw() any
}

// Fence is an opaque timeline fence. A fence is signaled with a
// monotonically increasing value on submit and waited on by value.
type Fence interface{}

// CommandBuffer is an opaque recorded command stream.
type CommandBuffer interface{}

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	Label         string
	Width         uint32
	Height        uint32
	Depth         uint32
	MipLevelCount uint32
	SampleCount   uint32
	Dimension     gputypes.TextureDimension
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// SubresourceRange selects mip levels and array layers of a texture.
// The zero value selects the whole resource (count 0 = all remaining).
type SubresourceRange struct {
	BaseMipLevel    uint32
	MipLevelCount   uint32
	BaseArrayLayer  uint32
	ArrayLayerCount uint32
}

// Whole returns true if the range selects the entire resource.
func (r SubresourceRange) Whole() bool {
	return r.BaseMipLevel == 0 && r.MipLevelCount == 0 &&
		r.BaseArrayLayer == 0 && r.ArrayLayerCount == 0
}

// TextureViewDescriptor describes a view to create over a texture.
// Zero-valued fields inherit from the texture.
type TextureViewDescriptor struct {
	Label     string
	Format    gputypes.TextureFormat
	Dimension gputypes.TextureViewDimension
	Range     SubresourceRange
}

// TextureBarrier is a single texture state transition. Before and After
// carry the usage the texture leaves and enters. Backends that track state
// internally (WebGPU-style) may treat Before as a validation hint.
type TextureBarrier struct {
	Texture Texture
	Before  gputypes.TextureUsage
	After   gputypes.TextureUsage
	Range   SubresourceRange
}

// RenderPassColorAttachment binds one color target of a render pass.
type RenderPassColorAttachment struct {
	View          TextureView
	ResolveTarget TextureView
	LoadOp        gputypes.LoadOp
	StoreOp       gputypes.StoreOp
	ClearValue    gputypes.Color
}

// RenderPassDepthStencilAttachment binds the depth/stencil target.
type RenderPassDepthStencilAttachment struct {
	View              TextureView
	DepthLoadOp       gputypes.LoadOp
	DepthStoreOp      gputypes.StoreOp
	DepthClearValue   float32
	StencilLoadOp     gputypes.LoadOp
	StencilStoreOp    gputypes.StoreOp
	StencilClearValue uint32
}

// RenderPassDescriptor describes one hardware render-pass scope.
type RenderPassDescriptor struct {
	Label                  string
	ColorAttachments       []RenderPassColorAttachment
	DepthStencilAttachment *RenderPassDepthStencilAttachment
}

// RenderPassEncoder records inside an open render-pass scope. The graph
// only opens and closes the scope; pass bodies drive backend-specific
// encoding through Raw.
type RenderPassEncoder interface {
	End()
	Raw() any
}

// ComputePassEncoder records inside an open compute-pass scope.
type ComputePassEncoder interface {
	End()
	Raw() any
}

// CommandEncoder records one command stream. Encoders are not safe for
// concurrent use; parallel recording uses one encoder per recording task.
type CommandEncoder interface {
	// BeginEncoding starts recording under the given debug label.
	BeginEncoding(label string) error

	// TransitionTextures submits a batch of texture state transitions.
	TransitionTextures(barriers []TextureBarrier)

	// BeginRenderPass opens a hardware render-pass scope.
	BeginRenderPass(desc *RenderPassDescriptor) RenderPassEncoder

	// BeginComputePass opens a compute-pass scope.
	BeginComputePass(label string) ComputePassEncoder

	// EndEncoding finishes recording and returns the command buffer.
	EndEncoding() (CommandBuffer, error)

	// DiscardEncoding abandons recording after an error.
	DiscardEncoding()
}

// Queue submits recorded command buffers. Submit signals fence with value
// once the buffers complete; a nil fence submits without signaling.
type Queue interface {
	Submit(buffers []CommandBuffer, fence Fence, value uint64) error
}

// Device is the graph's view of a GPU device.
type Device interface {
	CreateTexture(desc *TextureDescriptor) (Texture, error)
	DestroyTexture(t Texture)

	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	DestroyBuffer(b Buffer)

	CreateTextureView(t Texture, desc *TextureViewDescriptor) (TextureView, error)
	DestroyTextureView(v TextureView)

	CreateCommandEncoder(label string) (CommandEncoder, error)
	FreeCommandBuffer(buf CommandBuffer)

	CreateFence() (Fence, error)
	DestroyFence(f Fence)

	// Wait blocks until fence reaches value or the timeout elapses.
	// It returns false with a nil error on timeout.
	Wait(f Fence, value uint64, timeout time.Duration) (bool, error)

	// Queue returns the submission queue for the given kind.
	Queue(kind QueueKind) Queue

	Destroy()
}
