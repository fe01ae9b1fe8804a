package framegraph

import (
	"context"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
)

// MaxColorAttachments is the most color targets one raster pass can bind.
const MaxColorAttachments = 8

// ResourceAccess declares that a pass touches a subresource range with the
// given access state.
type ResourceAccess struct {
	Resource ResourceHandle
	Access   Access
	Range    SubresourceRange
}

// AccessList is an ordered set of declared resource accesses. It implements
// PassParams directly, so bodies without extra parameters can pass one as-is.
type AccessList []ResourceAccess

// EnumerateResourceAccesses returns the list itself.
func (l AccessList) EnumerateResourceAccesses() AccessList { return l }

// PassParams is the type-erased parameter block of a pass. The graph only
// requires the capability to enumerate resource accesses; raster parameter
// blocks additionally implement RenderTargetProvider.
type PassParams interface {
	EnumerateResourceAccesses() AccessList
}

// RenderTargetProvider exposes the render-target bindings of a raster pass.
// Passes whose parameters implement it participate in render-pass merging.
type RenderTargetProvider interface {
	RenderTargets() RenderTargetBindings
}

// PassBody is the executable part of a pass. Execute records backend
// commands through the PassContext; it runs once, after compilation, in
// declaration order on the pass's pipe.
type PassBody interface {
	Execute(pc *PassContext) error
}

// PassBodyFunc adapts a function to PassBody.
type PassBodyFunc func(pc *PassContext) error

// Execute calls f.
func (f PassBodyFunc) Execute(pc *PassContext) error { return f(pc) }

// RenderTargetBindings is the comparable attachment set of a raster pass.
// Two raster passes merge into one hardware render pass only when their
// bindings compare equal.
type RenderTargetBindings struct {
	Colors          [MaxColorAttachments]ViewHandle
	ColorCount      uint8
	DepthStencil    ViewHandle
	HasDepthStencil bool
}

// BindColor appends a color attachment. Attachments beyond
// MaxColorAttachments are ignored.
func (b *RenderTargetBindings) BindColor(v ViewHandle) {
	if int(b.ColorCount) < MaxColorAttachments {
		b.Colors[b.ColorCount] = v
		b.ColorCount++
	}
}

// BindDepthStencil sets the depth/stencil attachment.
func (b *RenderTargetBindings) BindDepthStencil(v ViewHandle) {
	b.DepthStencil = v
	b.HasDepthStencil = true
}

// views iterates the bound view handles.
func (b *RenderTargetBindings) views(visit func(ViewHandle)) {
	for i := uint8(0); i < b.ColorCount; i++ {
		visit(b.Colors[i])
	}
	if b.HasDepthStencil {
		visit(b.DepthStencil)
	}
}

// AttachmentOps selects load/store behavior for one color attachment.
type AttachmentOps struct {
	Load  gputypes.LoadOp
	Store gputypes.StoreOp
	Clear gputypes.Color
}

// DepthStencilOps selects load/store behavior for the depth/stencil
// attachment.
type DepthStencilOps struct {
	DepthLoad    gputypes.LoadOp
	DepthStore   gputypes.StoreOp
	DepthClear   float32
	StencilLoad  gputypes.LoadOp
	StencilStore gputypes.StoreOp
	StencilClear uint32
}

// AttachmentOpsProvider optionally supplies load/store ops for a raster
// pass's attachments. When a merge group forms, the head's load ops and the
// tail's store ops apply; passes without the interface load and store
// everything.
type AttachmentOpsProvider interface {
	AttachmentOps() ([MaxColorAttachments]AttachmentOps, DepthStencilOps)
}

// RasterParams is a ready-made parameter block for raster passes: declared
// accesses plus render-target bindings and their attachment ops. When
// consecutive passes merge, the group head's load ops and the tail's store
// ops take effect.
type RasterParams struct {
	Accesses AccessList
	Targets  RenderTargetBindings
	ColorOps [MaxColorAttachments]AttachmentOps
	DepthOps DepthStencilOps
}

var (
	_ PassParams            = (*RasterParams)(nil)
	_ RenderTargetProvider  = (*RasterParams)(nil)
	_ AttachmentOpsProvider = (*RasterParams)(nil)
)

// EnumerateResourceAccesses returns the declared accesses.
func (p *RasterParams) EnumerateResourceAccesses() AccessList { return p.Accesses }

// RenderTargets returns the attachment bindings.
func (p *RasterParams) RenderTargets() RenderTargetBindings { return p.Targets }

// AttachmentOps returns the declared color and depth/stencil ops.
func (p *RasterParams) AttachmentOps() ([MaxColorAttachments]AttachmentOps, DepthStencilOps) {
	return p.ColorOps, p.DepthOps
}

// pass is a registry entry. Entries are arena slots referenced by
// PassHandle.
type pass struct {
	name   string
	handle PassHandle
	flags  PassFlags
	pipe   Pipe
	params PassParams
	body   PassBody

	// accesses is the snapshot taken from params at declaration; the
	// compiler and executor never re-enumerate.
	accesses AccessList

	// producers are the ordering edges extracted at declaration, deduped,
	// each pointing at a lower pass index.
	producers []PassHandle

	targets    RenderTargetBindings
	hasTargets bool
}

// PassContext is handed to a pass body during execution. It exposes the
// command encoder the body records into, the realized backing resources, and
// the open render-pass scope for merged raster passes.
type PassContext struct {
	ctx     context.Context
	graph   *Graph
	pass    *pass
	encoder backend.CommandEncoder
	render  backend.RenderPassEncoder
	logger  *slog.Logger
}

// Context returns the execution context.
func (pc *PassContext) Context() context.Context { return pc.ctx }

// Name returns the pass name.
func (pc *PassContext) Name() string { return pc.pass.name }

// Handle returns the pass handle.
func (pc *PassContext) Handle() PassHandle { return pc.pass.handle }

// Flags returns the pass flags.
func (pc *PassContext) Flags() PassFlags { return pc.pass.flags }

// Accesses returns the accesses the pass declared.
func (pc *PassContext) Accesses() AccessList { return pc.pass.accesses }

// Logger returns the graph logger.
func (pc *PassContext) Logger() *slog.Logger { return pc.logger }

// Device returns the device backend, for bodies that create ad-hoc objects.
func (pc *PassContext) Device() backend.Device { return pc.graph.device }

// Encoder returns the command encoder the pass records into.
func (pc *PassContext) Encoder() backend.CommandEncoder { return pc.encoder }

// RenderPass returns the open render-pass scope, or nil when the pass runs
// outside one (compute, copy, or SkipRenderPass).
func (pc *PassContext) RenderPass() backend.RenderPassEncoder { return pc.render }

// Texture returns the realized backing texture of a resource, or nil when
// the handle is invalid or the resource is a buffer.
func (pc *PassContext) Texture(h ResourceHandle) backend.Texture {
	r := pc.graph.resourceAt(h)
	if r == nil {
		return nil
	}
	return r.texture
}

// Buffer returns the realized backing buffer of a resource, or nil when the
// handle is invalid or the resource is a texture.
func (pc *PassContext) Buffer(h ResourceHandle) backend.Buffer {
	r := pc.graph.resourceAt(h)
	if r == nil {
		return nil
	}
	return r.buffer
}

// HasBackingResource returns true once the resource has realized backing.
func (pc *PassContext) HasBackingResource(h ResourceHandle) bool {
	return pc.graph.HasBackingResource(h)
}

// TextureView resolves a declared view, creating the backing view on first
// use. Resolution is memoized per view handle.
func (pc *PassContext) TextureView(h ViewHandle) (backend.TextureView, error) {
	return pc.graph.resolveView(h)
}
