package framegraph

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend/null"
)

// ============================================================================
// Aliasing through the graph
// ============================================================================

func TestTransient_DisjointLifetimesShareBlock(t *testing.T) {
	g, dev := newTestGraph(t)
	texA := testTexture(t, g, "blurA", true)
	texB := testTexture(t, g, "blurB", true)

	// A lives across passes 0-1, B across passes 2-3. The lifetimes do not
	// overlap, so both map onto one arena block.
	addPass(t, g, "genA", PassCompute, access(texA, AccessShaderWrite), nil)
	addPass(t, g, "useA", PassCompute|PassNeverCull, access(texA, AccessShaderRead), nil)
	addPass(t, g, "genB", PassCompute, access(texB, AccessShaderWrite), nil)
	addPass(t, g, "useB", PassCompute|PassNeverCull, access(texB, AccessShaderRead), nil)
	runGraph(t, g)

	if got := dev.TexturesCreated(); got != 1 {
		t.Errorf("TexturesCreated() = %d, want 1 shared block", got)
	}
	ts := g.TransientStats()
	if ts.Blocks != 1 {
		t.Errorf("Blocks = %d, want 1", ts.Blocks)
	}
	if ts.Acquired != 2 {
		t.Errorf("Acquired = %d, want 2", ts.Acquired)
	}
	es := g.ExecuteStats()
	if es.TransientAcquired != 2 {
		t.Errorf("TransientAcquired = %d, want 2", es.TransientAcquired)
	}
	if es.TransientFallbacks != 0 {
		t.Errorf("TransientFallbacks = %d, want 0", es.TransientFallbacks)
	}
}

func TestTransient_OverlappingLifetimesSplitBlocks(t *testing.T) {
	g, dev := newTestGraph(t)
	texA := testTexture(t, g, "shadowA", true)
	texB := testTexture(t, g, "shadowB", true)

	addPass(t, g, "genA", PassCompute, access(texA, AccessShaderWrite), nil)
	addPass(t, g, "genB", PassCompute, access(texB, AccessShaderWrite), nil)
	addPass(t, g, "combine", PassCompute|PassNeverCull, AccessList{
		{Resource: texA, Access: AccessShaderRead},
		{Resource: texB, Access: AccessShaderRead},
	}, nil)
	runGraph(t, g)

	if got := dev.TexturesCreated(); got != 2 {
		t.Errorf("TexturesCreated() = %d, want 2 for overlapping lifetimes", got)
	}
	if ts := g.TransientStats(); ts.Blocks != 2 {
		t.Errorf("Blocks = %d, want 2", ts.Blocks)
	}
}

func TestTransient_ArenaSurvivesReset(t *testing.T) {
	g, dev := newTestGraph(t)

	frame := func() {
		tex := testTexture(t, g, "scratch", true)
		addPass(t, g, "gen", PassCompute, access(tex, AccessShaderWrite), nil)
		addPass(t, g, "use", PassCompute|PassNeverCull, access(tex, AccessShaderRead), nil)
		runGraph(t, g)
	}

	frame()
	if err := g.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	frame()

	if got := dev.TexturesCreated(); got != 1 {
		t.Errorf("TexturesCreated() across two invocations = %d, want 1", got)
	}
	if ts := g.TransientStats(); ts.Acquired != 2 {
		t.Errorf("Acquired = %d, want 2", ts.Acquired)
	}
}

func TestTransient_BudgetFallsBackToPool(t *testing.T) {
	g, dev := newTestGraph(t, WithTransientBudget(MinTransientBudgetMB))

	// 4096x4096 RGBA8 is 64 MB, past the minimum 16 MB budget.
	huge, err := g.CreateTexture(TextureDescriptor{
		Label:     "huge",
		Width:     4096,
		Height:    4096,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Transient: true,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	addPass(t, g, "gen", PassCompute, access(huge, AccessShaderWrite), nil)
	addPass(t, g, "use", PassCompute|PassNeverCull, access(huge, AccessShaderRead), nil)
	runGraph(t, g)

	es := g.ExecuteStats()
	if es.TransientFallbacks != 1 {
		t.Errorf("TransientFallbacks = %d, want 1", es.TransientFallbacks)
	}
	if es.TransientAcquired != 0 {
		t.Errorf("TransientAcquired = %d, want 0", es.TransientAcquired)
	}
	if es.PooledCreated != 1 {
		t.Errorf("PooledCreated = %d, want 1", es.PooledCreated)
	}
	if got := dev.TexturesCreated(); got != 1 {
		t.Errorf("TexturesCreated() = %d, want 1 pooled backing", got)
	}
	if ts := g.TransientStats(); ts.Fallbacks != 1 {
		t.Errorf("arena Fallbacks = %d, want 1", ts.Fallbacks)
	}
}

// ============================================================================
// Allocator and pool units
// ============================================================================

func transientResource(label string, w, h uint32) *resource {
	return &resource{
		name:      label,
		kind:      kindTexture,
		ownership: OwnershipTransient,
		texDesc: TextureDescriptor{
			Label:  label,
			Width:  w,
			Height: h,
			Format: gputypes.TextureFormatRGBA8Unorm,
		},
		mipLevels: 1,
		layers:    1,
	}
}

func TestTransientAllocator_ReleaseEnablesReuse(t *testing.T) {
	dev := null.New()
	a := newTransientAllocator(dev, 64*1024*1024)
	defer a.destroy()

	r1 := transientResource("one", 64, 64)
	r2 := transientResource("two", 64, 64)
	usage := gputypes.TextureUsageTextureBinding

	t1, ok, err := a.acquireTexture(r1, usage)
	if err != nil || !ok {
		t.Fatalf("acquireTexture() = ok=%v, err=%v", ok, err)
	}
	a.release(r1)

	t2, ok, err := a.acquireTexture(r2, usage)
	if err != nil || !ok {
		t.Fatalf("second acquireTexture() = ok=%v, err=%v", ok, err)
	}
	if t1 != t2 {
		t.Error("released block was not reused for an identical key")
	}
	if got := dev.TexturesCreated(); got != 1 {
		t.Errorf("TexturesCreated() = %d, want 1", got)
	}
}

func TestTransientAllocator_KeyMismatchMakesNewBlock(t *testing.T) {
	dev := null.New()
	a := newTransientAllocator(dev, 64*1024*1024)
	defer a.destroy()

	usage := gputypes.TextureUsageTextureBinding
	r1 := transientResource("small", 64, 64)
	r2 := transientResource("large", 128, 128)

	if _, ok, err := a.acquireTexture(r1, usage); err != nil || !ok {
		t.Fatalf("acquireTexture() = ok=%v, err=%v", ok, err)
	}
	a.release(r1)
	if _, ok, err := a.acquireTexture(r2, usage); err != nil || !ok {
		t.Fatalf("acquireTexture() = ok=%v, err=%v", ok, err)
	}
	if got := dev.TexturesCreated(); got != 2 {
		t.Errorf("TexturesCreated() = %d, want 2 for mismatched keys", got)
	}
}

func TestTransientAllocator_BudgetExhaustion(t *testing.T) {
	dev := null.New()
	a := newTransientAllocator(dev, 1024)

	big := transientResource("big", 64, 64) // 16 KB, past the 1 KB budget
	tex, ok, err := a.acquireTexture(big, gputypes.TextureUsageTextureBinding)
	if err != nil {
		t.Fatalf("acquireTexture() error = %v", err)
	}
	if ok || tex != nil {
		t.Error("exhausted budget should report ok=false without backing")
	}
	if s := a.stats(); s.Fallbacks != 1 {
		t.Errorf("Fallbacks = %d, want 1", s.Fallbacks)
	}
}

func TestTransientAllocator_ReleaseUnassignedIsNoop(t *testing.T) {
	a := newTransientAllocator(null.New(), 1024)
	a.release(transientResource("stray", 64, 64))
	if s := a.stats(); s.Blocks != 0 || s.Acquired != 0 {
		t.Errorf("stats after stray release = %+v, want zero", s)
	}
}

func TestResourcePool_ReusesByKey(t *testing.T) {
	dev := null.New()
	p := newResourcePool(dev)
	defer p.destroy()

	r := transientResource("target", 64, 64)
	usage := gputypes.TextureUsageRenderAttachment

	tex, reused, err := p.acquireTexture(r, usage)
	if err != nil {
		t.Fatalf("acquireTexture() error = %v", err)
	}
	if reused {
		t.Error("first acquire reported reused")
	}
	p.releaseTexture(r.key(usage), tex)

	tex2, reused, err := p.acquireTexture(r, usage)
	if err != nil {
		t.Fatalf("second acquireTexture() error = %v", err)
	}
	if !reused || tex2 != tex {
		t.Error("second acquire should reuse the released backing")
	}
	if got := dev.TexturesCreated(); got != 1 {
		t.Errorf("TexturesCreated() = %d, want 1", got)
	}
}

func TestResourcePool_BufferRoundTrip(t *testing.T) {
	dev := null.New()
	p := newResourcePool(dev)
	defer p.destroy()

	r := &resource{
		name:    "staging",
		kind:    kindBuffer,
		bufDesc: BufferDescriptor{Label: "staging", Size: 4096},
	}
	usage := gputypes.BufferUsageStorage

	buf, reused, err := p.acquireBuffer(r, usage)
	if err != nil || reused {
		t.Fatalf("acquireBuffer() = reused=%v, err=%v", reused, err)
	}
	p.releaseBuffer(bufferKey{size: 4096, usage: usage}, buf)
	buf2, reused, err := p.acquireBuffer(r, usage)
	if err != nil || !reused || buf2 != buf {
		t.Fatalf("second acquireBuffer() = reused=%v, err=%v", reused, err)
	}

	// A different size is a different key.
	r2 := &resource{name: "other", kind: kindBuffer, bufDesc: BufferDescriptor{Size: 8192}}
	if _, reused, _ := p.acquireBuffer(r2, usage); reused {
		t.Error("mismatched key should not reuse backing")
	}
}

func TestResourcePool_DestroyedPoolDestroysReleases(t *testing.T) {
	dev := null.New()
	p := newResourcePool(dev)

	r := transientResource("target", 64, 64)
	usage := gputypes.TextureUsageRenderAttachment
	tex, _, err := p.acquireTexture(r, usage)
	if err != nil {
		t.Fatalf("acquireTexture() error = %v", err)
	}
	p.destroy()
	p.releaseTexture(r.key(usage), tex)
	if got := dev.TexturesDestroyed(); got != 1 {
		t.Errorf("TexturesDestroyed() = %d, want 1 after releasing into a closed pool", got)
	}
}
