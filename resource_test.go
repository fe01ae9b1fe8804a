package framegraph

import (
	"testing"

	"github.com/gogpu/gputypes"
)

// collectEdges runs the slot's producer enumeration into a slice.
func collectEdges(s *slotState, pipe Pipe, acc Access) []PassHandle {
	var out []PassHandle
	s.producers(pipe, acc, func(h PassHandle) { out = append(out, h) })
	return out
}

func TestSlotState_EdgeKinds(t *testing.T) {
	// Write after write.
	s := newSlotState(AccessNone)
	s.apply(0, PipeGraphics, AccessShaderWrite)
	if got := collectEdges(&s, PipeGraphics, AccessCopyWrite); len(got) != 1 || got[0] != 0 {
		t.Errorf("WAW edges = %v, want [0]", got)
	}

	// Read after write.
	s = newSlotState(AccessNone)
	s.apply(0, PipeGraphics, AccessShaderWrite)
	if got := collectEdges(&s, PipeGraphics, AccessShaderRead); len(got) != 1 || got[0] != 0 {
		t.Errorf("RAW edges = %v, want [0]", got)
	}

	// Write after read orders behind both the writer and every reader.
	s = newSlotState(AccessNone)
	s.apply(0, PipeGraphics, AccessShaderWrite)
	s.apply(1, PipeGraphics, AccessShaderRead)
	s.apply(2, PipeGraphics, AccessShaderRead)
	got := collectEdges(&s, PipeGraphics, AccessShaderWrite)
	if len(got) != 3 {
		t.Errorf("WAR edges = %v, want writer and both readers", got)
	}

	// Read after read on the same pipe is never an edge.
	s = newSlotState(AccessShaderRead)
	s.apply(0, PipeGraphics, AccessShaderRead)
	if got := collectEdges(&s, PipeGraphics, AccessCopyRead); len(got) != 0 {
		t.Errorf("same-pipe RAR edges = %v, want none", got)
	}

	// Read after read across pipes is an edge.
	s = newSlotState(AccessShaderRead)
	s.apply(0, PipeGraphics, AccessShaderRead)
	if got := collectEdges(&s, PipeAsyncCompute, AccessShaderRead); len(got) != 1 || got[0] != 0 {
		t.Errorf("cross-pipe RAR edges = %v, want [0]", got)
	}
}

func TestSlotState_WriteSupersedesReaders(t *testing.T) {
	s := newSlotState(AccessNone)
	s.apply(0, PipeGraphics, AccessShaderWrite)
	s.apply(1, PipeGraphics, AccessShaderRead)
	s.apply(2, PipeGraphics, AccessCopyWrite)

	if s.lastWriter != 2 {
		t.Errorf("lastWriter = %v, want 2", s.lastWriter)
	}
	if len(s.readers) != 0 {
		t.Errorf("readers = %v, want cleared after write", s.readers)
	}
	if got := collectEdges(&s, PipeGraphics, AccessShaderRead); len(got) != 1 || got[0] != 2 {
		t.Errorf("edges after overwrite = %v, want [2]", got)
	}
}

func TestSlotState_ReadUnionAccumulates(t *testing.T) {
	s := newSlotState(AccessShaderRead)
	s.apply(0, PipeGraphics, AccessShaderRead)
	s.apply(1, PipeGraphics, AccessCopyRead)
	if s.access != AccessShaderRead|AccessCopyRead {
		t.Errorf("access = %s, want merged read union", s.access)
	}
}

func TestResource_ResolveRange(t *testing.T) {
	r := resource{kind: kindTexture, mipLevels: 4, layers: 2}

	// Zero counts select everything remaining.
	mb, mc, lb, lc := r.resolveRange(SubresourceRange{})
	if mb != 0 || mc != 4 || lb != 0 || lc != 2 {
		t.Errorf("whole range = %d+%d mips, %d+%d layers, want 0+4, 0+2", mb, mc, lb, lc)
	}

	// Partial selection passes through.
	mb, mc, lb, lc = r.resolveRange(SubresourceRange{BaseMipLevel: 1, MipLevelCount: 2, BaseArrayLayer: 1})
	if mb != 1 || mc != 2 || lb != 1 || lc != 1 {
		t.Errorf("partial range = %d+%d mips, %d+%d layers, want 1+2, 1+1", mb, mc, lb, lc)
	}

	// Out-of-range requests clamp instead of overflowing.
	mb, mc, _, _ = r.resolveRange(SubresourceRange{BaseMipLevel: 3, MipLevelCount: 9})
	if mb != 3 || mc != 1 {
		t.Errorf("clamped range = %d+%d mips, want 3+1", mb, mc)
	}
	mb, mc, _, _ = r.resolveRange(SubresourceRange{BaseMipLevel: 10})
	if mb != 4 || mc != 0 {
		t.Errorf("overshot base = %d+%d mips, want 4+0", mb, mc)
	}
}

func TestResource_SlotLayout(t *testing.T) {
	r := resource{kind: kindTexture, mipLevels: 3, layers: 2}

	idx := r.slotIndices(SubresourceRange{BaseMipLevel: 1, MipLevelCount: 1})
	if len(idx) != 2 || idx[0] != 1 || idx[1] != 4 {
		t.Errorf("slotIndices(mip 1) = %v, want [1 4]", idx)
	}

	// slotRange inverts the layout.
	for _, i := range []int{0, 2, 3, 5} {
		rng := r.slotRange(i)
		back := r.slotIndices(rng)
		if len(back) != 1 || back[0] != i {
			t.Errorf("slotRange(%d) = %+v round-trips to %v", i, rng, back)
		}
	}
}

func TestResource_CoversWhole(t *testing.T) {
	buf := resource{kind: kindBuffer, mipLevels: 1, layers: 1}
	if !buf.coversWhole(SubresourceRange{BaseMipLevel: 5}) {
		t.Error("buffers are always whole")
	}

	tex := resource{kind: kindTexture, mipLevels: 2, layers: 1}
	if !tex.coversWhole(SubresourceRange{}) {
		t.Error("zero range should cover the whole texture")
	}
	if tex.coversWhole(SubresourceRange{MipLevelCount: 1}) {
		t.Error("single mip of a chain should not cover the whole texture")
	}
}

func TestResource_SplitRecombine(t *testing.T) {
	r := resource{kind: kindTexture, mipLevels: 2, layers: 1, whole: newSlotState(AccessNone)}

	var edges []PassHandle
	emit := func(h PassHandle) { edges = append(edges, h) }

	r.declare(0, PipeGraphics, AccessShaderWrite, SubresourceRange{}, emit)
	if r.perSub {
		t.Fatal("whole write should not split")
	}

	r.declare(1, PipeGraphics, AccessShaderRead, SubresourceRange{MipLevelCount: 1}, emit)
	if !r.perSub || len(r.subs) != 2 {
		t.Fatalf("partial read should split into 2 slots, got perSub=%v subs=%d", r.perSub, len(r.subs))
	}

	edges = edges[:0]
	r.declare(2, PipeGraphics, AccessCopyWrite, SubresourceRange{}, emit)
	if r.perSub {
		t.Error("whole write should recombine the slots")
	}
	// The whole write orders behind the first writer and the mip 0 reader.
	want := map[PassHandle]bool{0: true, 1: true}
	for _, e := range edges {
		delete(want, e)
	}
	if len(want) != 0 {
		t.Errorf("recombining write edges = %v, want both prior passes", edges)
	}
	if r.whole.lastWriter != 2 {
		t.Errorf("lastWriter = %v, want 2", r.whole.lastWriter)
	}
}

func TestResource_SizeBytes(t *testing.T) {
	buf := resource{kind: kindBuffer, bufDesc: BufferDescriptor{Size: 4096}}
	if got := buf.sizeBytes(); got != 4096 {
		t.Errorf("buffer sizeBytes = %d, want 4096", got)
	}

	tex := resource{kind: kindTexture, texDesc: TextureDescriptor{
		Width: 256, Height: 256, Format: gputypes.TextureFormatRGBA8Unorm,
	}}
	if got := tex.sizeBytes(); got != 256*256*4 {
		t.Errorf("texture sizeBytes = %d, want %d", got, 256*256*4)
	}

	mipped := resource{kind: kindTexture, texDesc: TextureDescriptor{
		Width: 256, Height: 256, MipLevelCount: 4, Format: gputypes.TextureFormatRGBA8Unorm,
	}}
	base := uint64(256 * 256 * 4)
	if got := mipped.sizeBytes(); got != base+base/3 {
		t.Errorf("mipped sizeBytes = %d, want %d", got, base+base/3)
	}

	r8 := resource{kind: kindTexture, texDesc: TextureDescriptor{
		Width: 64, Height: 64, Format: gputypes.TextureFormatR8Unorm,
	}}
	if got := r8.sizeBytes(); got != 64*64 {
		t.Errorf("r8 sizeBytes = %d, want %d", got, 64*64)
	}
}

func TestResource_InitialAccess(t *testing.T) {
	pooled := resource{ownership: OwnershipPooled}
	if got := pooled.initialAccess(); got != AccessNone {
		t.Errorf("pooled initial access = %s, want None", got)
	}
	ext := resource{ownership: OwnershipExternal, external: ExternalState{Access: AccessAttachmentWrite}}
	if got := ext.initialAccess(); got != AccessAttachmentWrite {
		t.Errorf("external initial access = %s, want declared state", got)
	}
}
