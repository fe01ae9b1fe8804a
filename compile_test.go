package framegraph

import (
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
)

// ============================================================================
// Barrier compilation
// ============================================================================

// collectTransitions gathers every compiled transition touching res, walking
// the kept passes in schedule order and appending the final batch.
func collectTransitions(compiled *CompiledGraph, res ResourceHandle) []Transition {
	var out []Transition
	take := func(b *BarrierBatch) {
		if b == nil {
			return
		}
		for _, tr := range b.Transitions {
			if tr.Resource == res {
				out = append(out, tr)
			}
		}
	}
	for _, h := range compiled.KeptPasses() {
		take(compiled.Prologue(h))
		take(compiled.Epilogue(h))
	}
	take(compiled.FinalBatch())
	return out
}

func TestCompile_FirstAccessTransitionsFromNone(t *testing.T) {
	g, _ := newTestGraph(t)
	tex := testTexture(t, g, "t", false)
	p := addPass(t, g, "fill", PassCompute, access(tex, AccessShaderWrite), nil)
	extract(t, g, tex)

	compiled, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	pro := compiled.Prologue(p)
	if pro == nil || len(pro.Transitions) != 1 {
		t.Fatalf("prologue = %s, want one transition", pro)
	}
	tr := pro.Transitions[0]
	if tr.Before != AccessNone || tr.After != AccessShaderWrite {
		t.Errorf("transition = %s, want None->ShaderWrite", tr)
	}
}

func TestCompile_WriteThenReadPlacesTransitionOnReader(t *testing.T) {
	g, _ := newTestGraph(t)
	tex := testTexture(t, g, "t", false)
	out := testBuffer(t, g, "out", false)

	addPass(t, g, "fill", PassCompute, access(tex, AccessShaderWrite), nil)
	reader := addPass(t, g, "reduce", PassCompute, AccessList{
		{Resource: tex, Access: AccessShaderRead},
		{Resource: out, Access: AccessShaderWrite},
	}, nil)
	extract(t, g, out)

	compiled, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	pro := compiled.Prologue(reader)
	found := false
	for _, tr := range pro.Transitions {
		if tr.Resource == tex {
			found = true
			if tr.Before != AccessShaderWrite || tr.After != AccessShaderRead {
				t.Errorf("transition = %s, want ShaderWrite->ShaderRead", tr)
			}
		}
	}
	if !found {
		t.Errorf("reader prologue %s has no transition for the texture", pro)
	}
}

func TestCompile_ReadOnlyChainEmitsNoTransitions(t *testing.T) {
	g, dev := newTestGraph(t)
	backing, err := dev.CreateTexture(backendTextureDesc("shared", 64, 64))
	if err != nil {
		t.Fatalf("device CreateTexture() error = %v", err)
	}
	tex, err := g.RegisterExternal(backing, ExternalState{Label: "shared", Access: AccessShaderRead})
	if err != nil {
		t.Fatalf("RegisterExternal() error = %v", err)
	}
	sink := testBuffer(t, g, "sink", false)

	addPass(t, g, "sample.a", PassCompute, AccessList{
		{Resource: tex, Access: AccessShaderRead},
		{Resource: sink, Access: AccessShaderWrite},
	}, nil)
	addPass(t, g, "sample.b", PassCompute|PassNeverCull,
		access(tex, AccessShaderRead), nil)
	extract(t, g, sink)

	compiled, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if trs := collectTransitions(compiled, tex); len(trs) != 0 {
		t.Errorf("read-only chain compiled %d transitions, want 0: %v", len(trs), trs)
	}
}

func TestCompile_RestoresExternalState(t *testing.T) {
	g, dev := newTestGraph(t)
	backing, err := dev.CreateTexture(backendTextureDesc("target", 64, 64))
	if err != nil {
		t.Fatalf("device CreateTexture() error = %v", err)
	}
	tex, err := g.RegisterExternal(backing, ExternalState{Label: "target", Access: AccessShaderRead, Writable: true})
	if err != nil {
		t.Fatalf("RegisterExternal() error = %v", err)
	}

	addPass(t, g, "blit", PassCopy, access(tex, AccessCopyWrite), nil)

	compiled, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	final := compiled.FinalBatch()
	if final.Empty() {
		t.Fatal("FinalBatch() is empty, want a restoring transition")
	}
	last := final.Transitions[len(final.Transitions)-1]
	if last.Resource != tex || last.After != AccessShaderRead {
		t.Errorf("final transition = %s, want ...->ShaderRead for the external", last)
	}
}

// TestCompile_TransitionReplay checks that the compiled transition sequence,
// applied by a reference state machine, reproduces every declared access in
// pass order: each transition leaves the state the machine is actually in,
// and after a pass's prologue the state satisfies the pass's declaration.
func TestCompile_TransitionReplay(t *testing.T) {
	g, _ := newTestGraph(t)

	a := testTexture(t, g, "a", false)
	b := testTexture(t, g, "b", false)
	out := testBuffer(t, g, "out", false)

	addPass(t, g, "gen.a", PassCompute, access(a, AccessShaderWrite), nil)
	addPass(t, g, "gen.b", PassCopy, access(b, AccessCopyWrite), nil)
	addPass(t, g, "mix", PassCompute, AccessList{
		{Resource: a, Access: AccessShaderRead},
		{Resource: b, Access: AccessShaderRead},
		{Resource: a, Access: AccessCopyRead},
		{Resource: out, Access: AccessShaderWrite},
	}, nil)
	addPass(t, g, "pack", PassCopy, AccessList{
		{Resource: b, Access: AccessCopyRead},
		{Resource: out, Access: AccessCopyRead},
	}, nil)
	extract(t, g, out)
	addPass(t, g, "present", PassCompute|PassNeverCull, access(b, AccessShaderRead), nil)

	compiled, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	state := make(map[ResourceHandle]Access)
	apply := func(batch *BarrierBatch) {
		if batch == nil {
			return
		}
		for _, tr := range batch.Transitions {
			cur := state[tr.Resource]
			// A read-only union never changes the hardware state, so the
			// machine only requires exact equality outside that case.
			if tr.Before != cur && !(tr.Before.ReadOnly() && cur.ReadOnly()) {
				t.Errorf("transition %s observed in state %s", tr, cur)
			}
			state[tr.Resource] = tr.After
		}
	}

	for _, h := range compiled.KeptPasses() {
		apply(compiled.Prologue(h))
		p := g.passAt(h)
		for _, acc := range p.accesses {
			cur := state[acc.Resource]
			if acc.Access.IsWrite() {
				if cur != acc.Access {
					t.Errorf("pass %q declares %s but machine is in %s", p.name, acc.Access, cur)
				}
			} else if cur.IsWrite() {
				t.Errorf("pass %q reads in write state %s", p.name, cur)
			}
		}
		apply(compiled.Epilogue(h))
	}
	apply(compiled.FinalBatch())
}

func TestCompile_IdempotentSchedule(t *testing.T) {
	g, _ := newTestGraph(t)

	tex := testTexture(t, g, "t", false)
	aux := testTexture(t, g, "aux", true)
	rasterToTarget(t, g, "base", tex, PassRaster, nil, nil)
	rasterToTarget(t, g, "decal", tex, PassRaster, nil, nil)
	addPass(t, g, "post", PassAsyncCompute, AccessList{
		{Resource: tex, Access: AccessShaderRead},
		{Resource: aux, Access: AccessShaderWrite},
	}, nil)
	addPass(t, g, "resolve", PassCompute|PassNeverCull, access(aux, AccessShaderRead), nil)
	extract(t, g, tex)

	first, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	second, err := g.Compile()
	if err != nil {
		t.Fatalf("recompile error = %v", err)
	}

	if got, want := second.Stats(), first.Stats(); got != want {
		t.Errorf("recompile stats = %+v, want %+v", got, want)
	}
	fk, sk := first.KeptPasses(), second.KeptPasses()
	if len(fk) != len(sk) {
		t.Fatalf("kept %d passes, then %d", len(fk), len(sk))
	}
	for i := range fk {
		if fk[i] != sk[i] {
			t.Errorf("kept[%d] = %v, then %v", i, fk[i], sk[i])
		}
		if got, want := second.Prologue(sk[i]).String(), first.Prologue(fk[i]).String(); got != want {
			t.Errorf("pass %v prologue = %s, then %s", fk[i], want, got)
		}
		if got, want := second.Epilogue(sk[i]).String(), first.Epilogue(fk[i]).String(); got != want {
			t.Errorf("pass %v epilogue = %s, then %s", fk[i], want, got)
		}
	}
	fg, sg := first.MergeGroups(), second.MergeGroups()
	if len(fg) != len(sg) {
		t.Fatalf("merge groups %d, then %d", len(fg), len(sg))
	}
	for i := range fg {
		if fg[i].Head() != sg[i].Head() || fg[i].Tail() != sg[i].Tail() {
			t.Errorf("group %d = %v..%v, then %v..%v", i,
				fg[i].Head(), fg[i].Tail(), sg[i].Head(), sg[i].Tail())
		}
	}
}

// ============================================================================
// Subresource state
// ============================================================================

func TestCompile_SubresourceSplitAvoidsFalseHazard(t *testing.T) {
	g, _ := newTestGraph(t)
	tex, err := g.CreateTexture(TextureDescriptor{
		Label:         "chain",
		Width:         64,
		Height:        64,
		MipLevelCount: 2,
		Format:        gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}

	addPass(t, g, "fill", PassCompute, access(tex, AccessShaderWrite), nil)
	reader := addPass(t, g, "read.mip0", PassCompute|PassNeverCull, AccessList{
		{Resource: tex, Access: AccessShaderRead, Range: SubresourceRange{MipLevelCount: 1}},
	}, nil)
	writer := addPass(t, g, "write.mip1", PassCompute|PassNeverCull, AccessList{
		{Resource: tex, Access: AccessShaderWrite, Range: SubresourceRange{BaseMipLevel: 1, MipLevelCount: 1}},
	}, nil)

	compiled, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	// Mip 0 transitions to a read state; mip 1 stays in ShaderWrite, so the
	// second writer needs no transition at all.
	pro := compiled.Prologue(reader)
	if pro == nil || len(pro.Transitions) != 1 {
		t.Fatalf("reader prologue = %s, want exactly one transition", pro)
	}
	if rng := pro.Transitions[0].Range; rng.BaseMipLevel != 0 || rng.MipLevelCount != 1 {
		t.Errorf("reader transition range = %+v, want mip 0 only", rng)
	}
	if pro := compiled.Prologue(writer); !pro.Empty() {
		t.Errorf("same-state mip 1 writer got prologue %s, want none", pro)
	}
}

func TestCompile_WholeWriteRecombinesSubresources(t *testing.T) {
	g, _ := newTestGraph(t)
	tex, err := g.CreateTexture(TextureDescriptor{
		Label:         "chain",
		Width:         64,
		Height:        64,
		MipLevelCount: 2,
		Format:        gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}

	addPass(t, g, "fill", PassCompute, access(tex, AccessShaderWrite), nil)
	addPass(t, g, "read.mip0", PassCompute|PassNeverCull, AccessList{
		{Resource: tex, Access: AccessShaderRead, Range: SubresourceRange{MipLevelCount: 1}},
	}, nil)
	rewrite := addPass(t, g, "rewrite", PassCopy|PassNeverCull,
		access(tex, AccessCopyWrite), nil)
	after := addPass(t, g, "consume", PassCompute|PassNeverCull,
		access(tex, AccessShaderRead), nil)

	compiled, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	// The whole-range write touches both split slots (mip 0 in a read state,
	// mip 1 still in ShaderWrite), then recombines them: the next consumer
	// sees one whole-resource transition.
	if pro := compiled.Prologue(rewrite); len(pro.Transitions) != 2 {
		t.Errorf("rewrite prologue = %s, want one transition per split slot", pro)
	}
	pro := compiled.Prologue(after)
	if len(pro.Transitions) != 1 {
		t.Fatalf("consumer prologue = %s, want one whole-resource transition", pro)
	}
	if !pro.Transitions[0].Range.Whole() {
		t.Errorf("consumer transition range = %+v, want whole resource", pro.Transitions[0].Range)
	}
}

// ============================================================================
// Transient lifetime brackets
// ============================================================================

func TestCompile_TransientLifetimeBrackets(t *testing.T) {
	g, _ := newTestGraph(t)
	tmp := testTexture(t, g, "tmp", true)
	out := testBuffer(t, g, "out", false)

	first := addPass(t, g, "blur.h", PassCompute, access(tmp, AccessShaderWrite), nil)
	addPass(t, g, "blur.v", PassCompute, access(tmp, AccessShaderRead|AccessShaderWrite), nil)
	last := addPass(t, g, "reduce", PassCompute, AccessList{
		{Resource: tmp, Access: AccessShaderRead},
		{Resource: out, Access: AccessShaderWrite},
	}, nil)
	extract(t, g, out)

	compiled, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	pro := compiled.Prologue(first)
	if pro == nil || len(pro.Aliasing) != 1 ||
		pro.Aliasing[0].Kind != AliasAcquire || pro.Aliasing[0].Resource != tmp {
		t.Errorf("first-use prologue = %s, want Acquire(tmp)", pro)
	}
	epi := compiled.Epilogue(last)
	if epi == nil || len(epi.Aliasing) != 1 ||
		epi.Aliasing[0].Kind != AliasDiscard || epi.Aliasing[0].Resource != tmp {
		t.Errorf("last-use epilogue = %s, want Discard(tmp)", epi)
	}

	// Interior passes carry no aliasing ops.
	for _, h := range compiled.KeptPasses() {
		if h == first || h == last {
			continue
		}
		if b := compiled.Prologue(h); b != nil && len(b.Aliasing) != 0 {
			t.Errorf("interior pass %v prologue carries aliasing ops: %s", h, b)
		}
	}
}

func TestCompile_EmptyPassCompilesNoBarriers(t *testing.T) {
	g, _ := newTestGraph(t)
	var ran atomic.Int32
	p := addPass(t, g, "timestamp", PassCompute|PassNeverCull, nil, countingBody(&ran))

	compiled, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if compiled.Culled(p) {
		t.Fatal("empty NeverCull pass was culled")
	}
	if pro := compiled.Prologue(p); !pro.Empty() {
		t.Errorf("empty pass prologue = %s, want none", pro)
	}
	runGraph(t, g)
	if ran.Load() != 1 {
		t.Errorf("body ran %d times, want 1", ran.Load())
	}
}

// ============================================================================
// Cross-pipe end to end
// ============================================================================

// TestCompile_RasterAsyncRasterScenario follows a raster producer feeding an
// async compute consumer whose output a later raster pass joins back: both
// cross-pipe edges exist, exactly one fork and one join batch are emitted,
// and nothing is culled.
func TestCompile_RasterAsyncRasterScenario(t *testing.T) {
	g, _ := newTestGraph(t)
	tex := testTexture(t, g, "t", false)

	a := rasterToTarget(t, g, "draw", tex, PassRaster, nil, nil)
	b := addPass(t, g, "analyze", PassAsyncCompute, access(tex, AccessShaderRead), nil)
	c := rasterToTarget(t, g, "redraw", tex, PassRaster|PassNeverCull, nil, nil)

	compiled, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	for _, h := range []PassHandle{a, b, c} {
		if compiled.Culled(h) {
			t.Errorf("pass %v culled, want kept", h)
		}
	}
	if got := g.passAt(b).producers; len(got) != 1 || got[0] != a {
		t.Errorf("analyze producers = %v, want [%v]", got, a)
	}
	if got := g.passAt(c).producers; len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("redraw producers = %v, want [%v %v]", got, a, b)
	}

	stats := compiled.Stats()
	if stats.ForkBatches != 1 || stats.JoinBatches != 1 {
		t.Errorf("fork/join = %d/%d, want 1/1", stats.ForkBatches, stats.JoinBatches)
	}
	if epi := compiled.Epilogue(a); epi == nil || !epi.Signal {
		t.Errorf("fork pass epilogue = %s, want a fence signal", epi)
	}
	if pro := compiled.Prologue(c); pro == nil || !pro.Wait || pro.WaitPipe != PipeAsyncCompute {
		t.Errorf("join pass prologue = %s, want a wait on the async pipe", pro)
	}
}
