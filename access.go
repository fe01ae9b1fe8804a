package framegraph

import (
	"strings"

	"github.com/gogpu/gputypes"
)

// Access describes how a pass touches a resource. Bits combine with
// bitwise OR; read bits may be combined freely, while a set write bit
// makes the state exclusive.
type Access uint32

const (
	// AccessShaderRead is a sampled or read-only storage binding.
	AccessShaderRead Access = 1 << iota

	// AccessCopyRead is a transfer source.
	AccessCopyRead

	// AccessAttachmentRead is a read-only depth or input attachment.
	AccessAttachmentRead

	// AccessIndirectRead is an indirect-argument fetch.
	AccessIndirectRead

	// AccessShaderWrite is a writable storage binding.
	AccessShaderWrite

	// AccessCopyWrite is a transfer destination.
	AccessCopyWrite

	// AccessAttachmentWrite is a color or depth render-target write.
	AccessAttachmentWrite
)

// AccessNone is the undefined state a graph-owned resource starts in.
// The first real access always transitions out of it.
const AccessNone Access = 0

const (
	accessReadMask  = AccessShaderRead | AccessCopyRead | AccessAttachmentRead | AccessIndirectRead
	accessWriteMask = AccessShaderWrite | AccessCopyWrite | AccessAttachmentWrite
)

// IsWrite returns true if any write bit is set.
func (a Access) IsWrite() bool { return a&accessWriteMask != 0 }

// ReadOnly returns true if the access touches the resource without writing.
func (a Access) ReadOnly() bool { return a != AccessNone && !a.IsWrite() }

// compatible reports whether a new access b can be absorbed into the
// pending state a without a hardware state change. Read-only states
// combine (the union of read states is itself a valid read state);
// identical states never need a transition.
func (a Access) compatible(b Access) bool {
	if a == AccessNone {
		return false
	}
	if a.ReadOnly() && b.ReadOnly() {
		return true
	}
	return a == b
}

// merge folds a compatible access into the pending state.
func (a Access) merge(b Access) Access { return a | b }

// String returns a "|"-joined list of set access names.
func (a Access) String() string {
	if a == AccessNone {
		return "None"
	}
	names := make([]string, 0, 3)
	for _, e := range []struct {
		bit  Access
		name string
	}{
		{AccessShaderRead, "ShaderRead"},
		{AccessCopyRead, "CopyRead"},
		{AccessAttachmentRead, "AttachmentRead"},
		{AccessIndirectRead, "IndirectRead"},
		{AccessShaderWrite, "ShaderWrite"},
		{AccessCopyWrite, "CopyWrite"},
		{AccessAttachmentWrite, "AttachmentWrite"},
	} {
		if a&e.bit != 0 {
			names = append(names, e.name)
		}
	}
	return strings.Join(names, "|")
}

// TextureUsage maps an access state onto the wgpu usage a backing texture
// must hold while in that state. Only the backend boundary speaks wgpu
// usage bits; the compiler works on Access values throughout.
func (a Access) TextureUsage() gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if a&(AccessShaderRead|AccessAttachmentRead) != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if a&AccessCopyRead != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	if a&AccessCopyWrite != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	if a&AccessShaderWrite != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if a&AccessAttachmentWrite != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	return u
}

// BufferUsage maps an access state onto the wgpu usage implied by it.
func (a Access) BufferUsage() gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if a&AccessShaderRead != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if a&AccessCopyRead != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	if a&AccessCopyWrite != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	if a&AccessShaderWrite != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if a&AccessIndirectRead != 0 {
		u |= gputypes.BufferUsageIndirect
	}
	return u
}
