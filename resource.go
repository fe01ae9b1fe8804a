package framegraph

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
)

// SubresourceRange selects mip levels and array layers of a texture. It is
// shared with the backend package; the zero value selects the whole resource.
type SubresourceRange = backend.SubresourceRange

// TextureDescriptor describes a graph-created 2D texture. Depth counts array
// layers. Usage is not part of the descriptor: the graph derives it from the
// union of accesses declared against the resource before creating the
// backing texture.
type TextureDescriptor struct {
	Label         string
	Width         uint32
	Height        uint32
	Depth         uint32
	MipLevelCount uint32
	SampleCount   uint32
	Format        gputypes.TextureFormat

	// Transient asks the aliasing allocator to back the texture for its
	// graph-local lifetime. Extracted resources are never transient.
	Transient bool
}

// BufferDescriptor describes a graph-created buffer. Usage is derived from
// declared accesses, like textures.
type BufferDescriptor struct {
	Label string
	Size  uint64

	// Transient asks the aliasing allocator to back the buffer.
	Transient bool
}

// ExternalState is the handover contract for an externally owned resource.
type ExternalState struct {
	Label string

	// Access is the state the resource is in when registered. The compiled
	// graph returns the resource to this state before handing it back.
	Access Access

	// Writable permits graph passes to write the resource. Without it,
	// declaring a write access is a contract violation.
	Writable bool
}

// ExtractedResource receives the backing object and final access state of an
// extracted resource once the graph has executed.
type ExtractedResource struct {
	Texture backend.Texture
	Buffer  backend.Buffer
	Access  Access
}

// Ownership classifies who backs a resource and for how long.
type Ownership uint8

const (
	// OwnershipPooled is graph-owned backing from the long-lived pool,
	// reused across invocations by descriptor.
	OwnershipPooled Ownership = iota

	// OwnershipTransient is graph-owned backing from the aliasing
	// allocator, alive only between the resource's first and last use.
	OwnershipTransient

	// OwnershipExternal is a one-invocation loan registered from outside.
	OwnershipExternal
)

// String returns the ownership name.
func (o Ownership) String() string {
	switch o {
	case OwnershipPooled:
		return "Pooled"
	case OwnershipTransient:
		return "Transient"
	case OwnershipExternal:
		return "External"
	default:
		return "Unknown"
	}
}

type resourceKind uint8

const (
	kindTexture resourceKind = iota
	kindBuffer
)

// slotState is the declaration-time bookkeeping for one state slot: the
// whole resource, or a single subresource once the state has been split.
type slotState struct {
	access     Access
	lastWriter PassHandle
	lastPass   [pipeCount]PassHandle
	readers    []PassHandle
}

func newSlotState(initial Access) slotState {
	s := slotState{access: initial, lastWriter: PassHandle(InvalidHandle)}
	for i := range s.lastPass {
		s.lastPass[i] = PassHandle(InvalidHandle)
	}
	return s
}

// clone deep-copies the slot so split states do not share reader slices.
func (s *slotState) clone() slotState {
	out := *s
	out.readers = append([]PassHandle(nil), s.readers...)
	return out
}

// producers emits the ordering edges a new access creates against this slot:
// write-after-write, write-after-read, read-after-write, and cross-pipe
// read-after-read. Same-pipe read-after-read is never an edge.
func (s *slotState) producers(pipe Pipe, acc Access, emit func(PassHandle)) {
	if acc.IsWrite() {
		if s.lastWriter.IsValid() {
			emit(s.lastWriter)
		}
		for _, r := range s.readers {
			emit(r)
		}
		return
	}
	if s.lastWriter.IsValid() {
		emit(s.lastWriter)
	}
	other := PipeGraphics
	if pipe == PipeGraphics {
		other = PipeAsyncCompute
	}
	if p := s.lastPass[other]; p.IsValid() && p != s.lastWriter {
		emit(p)
	}
}

// apply records the access into the slot. A write supersedes all prior
// bookkeeping; a read joins the readers of the current state.
func (s *slotState) apply(h PassHandle, pipe Pipe, acc Access) {
	other := PipeGraphics
	if pipe == PipeGraphics {
		other = PipeAsyncCompute
	}
	if acc.IsWrite() {
		s.lastWriter = h
		s.readers = s.readers[:0]
		s.lastPass[pipe] = h
		s.lastPass[other] = PassHandle(InvalidHandle)
		s.access = acc
		return
	}
	s.readers = append(s.readers, h)
	s.lastPass[pipe] = h
	if s.access.ReadOnly() && acc.ReadOnly() {
		s.access = s.access.merge(acc)
	} else {
		s.access = acc
	}
}

// resource is a registry entry. Entries are arena slots referenced by
// ResourceHandle; passes never hold pointers into the registry.
type resource struct {
	name      string
	kind      resourceKind
	ownership Ownership

	texDesc TextureDescriptor
	bufDesc BufferDescriptor

	mipLevels uint32
	layers    uint32

	// external contract, and the backing objects. For external resources
	// the backing is set at registration; for graph-owned resources it is
	// filled when the graph realizes resources before recording.
	external ExternalState
	texture  backend.Texture
	buffer   backend.Buffer

	// declaration-time access bookkeeping. perSub selects between the
	// whole-resource slot and the per-subresource array.
	perSub bool
	whole  slotState
	subs   []slotState

	extracted bool
	out       *ExtractedResource

	// execute-time results
	transientFallback bool
	finalAccess       Access
	texUsage          gputypes.TextureUsage
	bufUsage          gputypes.BufferUsage
}

// subCount returns the number of subresource slots when split.
func (r *resource) subCount() int {
	if r.kind == kindBuffer {
		return 1
	}
	return int(r.mipLevels * r.layers)
}

// initialAccess is the state the resource starts each invocation in.
func (r *resource) initialAccess() Access {
	if r.ownership == OwnershipExternal {
		return r.external.Access
	}
	return AccessNone
}

// resolveRange normalizes a subresource range against the resource's mip and
// layer counts. Zero counts select all remaining entries.
func (r *resource) resolveRange(rng SubresourceRange) (mipBase, mipCount, layerBase, layerCount uint32) {
	mipBase = rng.BaseMipLevel
	if mipBase > r.mipLevels {
		mipBase = r.mipLevels
	}
	mipCount = rng.MipLevelCount
	if mipCount == 0 || mipBase+mipCount > r.mipLevels {
		mipCount = r.mipLevels - mipBase
	}
	layerBase = rng.BaseArrayLayer
	if layerBase > r.layers {
		layerBase = r.layers
	}
	layerCount = rng.ArrayLayerCount
	if layerCount == 0 || layerBase+layerCount > r.layers {
		layerCount = r.layers - layerBase
	}
	return mipBase, mipCount, layerBase, layerCount
}

// coversWhole returns true if the range selects every subresource.
func (r *resource) coversWhole(rng SubresourceRange) bool {
	if r.kind == kindBuffer {
		return true
	}
	mipBase, mipCount, layerBase, layerCount := r.resolveRange(rng)
	return mipBase == 0 && layerBase == 0 &&
		mipCount == r.mipLevels && layerCount == r.layers
}

// slotIndices lists the per-subresource slot indices a range touches.
// Slots are laid out layer-major: index = layer*mipLevels + mip.
func (r *resource) slotIndices(rng SubresourceRange) []int {
	mipBase, mipCount, layerBase, layerCount := r.resolveRange(rng)
	idx := make([]int, 0, mipCount*layerCount)
	for l := layerBase; l < layerBase+layerCount; l++ {
		for m := mipBase; m < mipBase+mipCount; m++ {
			idx = append(idx, int(l*r.mipLevels+m))
		}
	}
	return idx
}

// slotRange maps a per-subresource slot index back to the single-entry
// range it covers. Inverse of the slotIndices layout.
func (r *resource) slotRange(i int) SubresourceRange {
	return SubresourceRange{
		BaseMipLevel:    uint32(i) % r.mipLevels,
		MipLevelCount:   1,
		BaseArrayLayer:  uint32(i) / r.mipLevels,
		ArrayLayerCount: 1,
	}
}

// split promotes the whole-resource slot into a per-subresource array.
func (r *resource) split() {
	if r.perSub {
		return
	}
	n := r.subCount()
	r.subs = make([]slotState, n)
	for i := range r.subs {
		r.subs[i] = r.whole.clone()
	}
	r.perSub = true
}

// recombine demotes the per-subresource array back to a whole-resource slot.
// Callers only invoke it after an access made all slots identical.
func (r *resource) recombine(s slotState) {
	r.whole = s
	r.subs = nil
	r.perSub = false
}

// declare applies one pass access to the resource's state slots, emitting
// producer edges along the way. Splitting happens on the first partial-range
// access; a whole-range write recombines the slots.
func (r *resource) declare(h PassHandle, pipe Pipe, acc Access, rng SubresourceRange, emit func(PassHandle)) {
	whole := r.coversWhole(rng)
	switch {
	case !r.perSub && whole:
		r.whole.producers(pipe, acc, emit)
		r.whole.apply(h, pipe, acc)
	case !r.perSub && !whole:
		r.split()
		fallthrough
	default:
		if whole && acc.IsWrite() {
			for i := range r.subs {
				r.subs[i].producers(pipe, acc, emit)
			}
			s := newSlotState(acc)
			s.apply(h, pipe, acc)
			r.recombine(s)
			return
		}
		targets := r.slotIndices(rng)
		for _, i := range targets {
			r.subs[i].producers(pipe, acc, emit)
		}
		for _, i := range targets {
			r.subs[i].apply(h, pipe, acc)
		}
	}
}

// textureKey identifies reusable texture backing in the pool and the
// transient allocator.
type textureKey struct {
	width   uint32
	height  uint32
	depth   uint32
	mips    uint32
	samples uint32
	dim     gputypes.TextureDimension
	format  gputypes.TextureFormat
	usage   gputypes.TextureUsage
}

// bufferKey identifies reusable buffer backing.
type bufferKey struct {
	size  uint64
	usage gputypes.BufferUsage
}

// backendTextureDescriptor resolves the graph descriptor plus derived usage
// into the backend's creation descriptor. Zero counts default to 1.
func (r *resource) backendTextureDescriptor(usage gputypes.TextureUsage) backend.TextureDescriptor {
	d := r.texDesc
	if d.Depth == 0 {
		d.Depth = 1
	}
	if d.MipLevelCount == 0 {
		d.MipLevelCount = 1
	}
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	return backend.TextureDescriptor{
		Label:         d.Label,
		Width:         d.Width,
		Height:        d.Height,
		Depth:         d.Depth,
		MipLevelCount: d.MipLevelCount,
		SampleCount:   d.SampleCount,
		Dimension:     gputypes.TextureDimension2D,
		Format:        d.Format,
		Usage:         usage,
	}
}

// key returns the pool key for the resolved descriptor.
func (r *resource) key(usage gputypes.TextureUsage) textureKey {
	d := r.backendTextureDescriptor(usage)
	return textureKey{
		width:   d.Width,
		height:  d.Height,
		depth:   d.Depth,
		mips:    d.MipLevelCount,
		samples: d.SampleCount,
		dim:     d.Dimension,
		format:  d.Format,
		usage:   d.Usage,
	}
}

// formatBytes returns the bytes per pixel of a texture format for budget
// accounting. Unknown formats count as 4 bytes.
func formatBytes(format gputypes.TextureFormat) uint64 {
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatDepth24PlusStencil8:
		return 4
	default:
		return 4
	}
}

// sizeBytes estimates backing size for transient budget accounting.
func (r *resource) sizeBytes() uint64 {
	if r.kind == kindBuffer {
		return r.bufDesc.Size
	}
	d := r.texDesc
	depth := d.Depth
	if depth == 0 {
		depth = 1
	}
	samples := d.SampleCount
	if samples == 0 {
		samples = 1
	}
	bytes := uint64(d.Width) * uint64(d.Height) * uint64(depth) * uint64(samples) * formatBytes(d.Format)
	if d.MipLevelCount > 1 {
		// Mip chain adds at most a third on top of the base level.
		bytes += bytes / 3
	}
	return bytes
}
