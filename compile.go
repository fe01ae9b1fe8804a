package framegraph

// The compiler runs four phases over the declared passes:
//
//  1. cull        – keep only passes reachable from externally visible output
//  2. barriers    – fold accesses into merge states, close them into batches
//  3. merge       – collapse compatible raster runs into one render pass
//  4. fork/join   – insert fence signals and waits across pipe boundaries
//
// All mutable scratch lives on the compiler and in the CompiledGraph it
// produces. Declaration state on the Graph is read but never written, so
// compiling again before execution rebuilds the identical schedule.

// passSchedule is the per-pass slice of the compiled schedule, indexed by
// pass handle. Culled passes keep the zero value.
type passSchedule struct {
	kept      bool
	prologue  *BarrierBatch
	epilogue  *BarrierBatch
	group     int32 // merge group index, or -1
	groupHead bool
	groupTail bool
}

// slotMerge is the pending access state of one resource slot during the
// barrier phase. Compatible accesses merge into it; an incompatible access
// closes it into a transition.
type slotMerge struct {
	access Access
}

// resourceMergeState mirrors a resource's whole/split representation while
// the barrier phase replays the kept passes. Splitting happens only when a
// partial-range access forces a transition, and the slots recombine once a
// whole-range access leaves them uniform again.
type resourceMergeState struct {
	perSub   bool
	whole    slotMerge
	subs     []slotMerge
	used     bool
	firstUse PassHandle
	lastUse  PassHandle
}

func (rs *resourceMergeState) split(r *resource) {
	if rs.perSub {
		return
	}
	rs.subs = make([]slotMerge, r.subCount())
	for i := range rs.subs {
		rs.subs[i] = rs.whole
	}
	rs.perSub = true
}

func (rs *resourceMergeState) uniform() bool {
	for i := 1; i < len(rs.subs); i++ {
		if rs.subs[i] != rs.subs[0] {
			return false
		}
	}
	return true
}

func (rs *resourceMergeState) recombine() {
	rs.whole = rs.subs[0]
	rs.subs = nil
	rs.perSub = false
}

type compiler struct {
	g     *Graph
	stats CompileStats

	kept        []bool
	order       []PassHandle
	sched       []passSchedule
	groups      []MergeGroup
	resState    []resourceMergeState
	final       *BarrierBatch
	finalAccess []Access
	fenceValues [pipeCount]uint64
}

func newCompiler(g *Graph) *compiler {
	return &compiler{g: g}
}

func (c *compiler) compile() (*CompiledGraph, error) {
	g := c.g

	c.sched = make([]passSchedule, len(g.passes))
	for i := range c.sched {
		c.sched[i].group = -1
	}

	c.cullPasses()

	// The barrier and merge phases read disjoint declaration state and
	// write disjoint schedule state, so with a pool available they run as
	// parallel sub-tasks joined before hoisting.
	if pool := g.workerPoolLocked(); pool != nil {
		pool.ExecuteAll([]func(){c.compileBarriers, c.mergePasses})
	} else {
		c.compileBarriers()
		c.mergePasses()
	}
	c.hoistGroupBarriers()

	c.insertForkJoins()
	c.finishStats()

	return &CompiledGraph{
		graph:       g,
		order:       c.order,
		sched:       c.sched,
		groups:      c.groups,
		final:       c.final,
		finalAccess: c.finalAccess,
		fenceValues: c.fenceValues,
		stats:       c.stats,
	}, nil
}

// prologue returns the barrier batch applied before the pass body, creating
// it on first use.
func (c *compiler) prologue(h PassHandle) *BarrierBatch {
	sc := &c.sched[h]
	if sc.prologue == nil {
		sc.prologue = &BarrierBatch{}
	}
	return sc.prologue
}

// epilogue returns the barrier batch applied after the pass body, creating
// it on first use.
func (c *compiler) epilogue(h PassHandle) *BarrierBatch {
	sc := &c.sched[h]
	if sc.epilogue == nil {
		sc.epilogue = &BarrierBatch{}
	}
	return sc.epilogue
}

// compileBarriers is compiler phase two. It replays the kept passes in
// declaration order, folding each access into the resource's pending merge
// state. Compatible accesses extend the state; an incompatible access closes
// it into a transition on the consuming pass's prologue. A read-only chain
// over an external resource that already starts in the matching state emits
// no transitions at all.
func (c *compiler) compileBarriers() {
	g := c.g

	c.resState = make([]resourceMergeState, len(g.resources))
	c.finalAccess = make([]Access, len(g.resources))
	for i := range c.resState {
		rs := &c.resState[i]
		rs.whole.access = g.resources[i].initialAccess()
		rs.firstUse = PassHandle(InvalidHandle)
		rs.lastUse = PassHandle(InvalidHandle)
	}

	for _, h := range c.order {
		p := g.passAt(h)
		for _, a := range p.accesses {
			c.applyAccess(h, a)
		}
	}

	// Transient lifetime brackets ride in the first and last user's batches
	// so aliased memory is acquired and discarded at the right points.
	for i := range g.resources {
		r := &g.resources[i]
		rs := &c.resState[i]
		if r.ownership != OwnershipTransient || !rs.used {
			continue
		}
		pro := c.prologue(rs.firstUse)
		pro.Aliasing = append(pro.Aliasing, AliasingOp{Kind: AliasAcquire, Resource: ResourceHandle(i)})
		epi := c.epilogue(rs.lastUse)
		epi.Aliasing = append(epi.Aliasing, AliasingOp{Kind: AliasDiscard, Resource: ResourceHandle(i)})
	}

	// Close out final states. Externals are returned to their declared
	// access in a final batch past the last pass; extracted resources
	// record the state the caller receives them in.
	for i := range g.resources {
		r := &g.resources[i]
		rs := &c.resState[i]

		final := rs.whole.access
		if rs.perSub {
			// A split resource is unified to its first slot's state so the
			// caller observes a single access.
			final = rs.subs[0].access
			for j := 1; j < len(rs.subs); j++ {
				if rs.subs[j].access == final {
					continue
				}
				c.appendFinal(Transition{
					Resource: ResourceHandle(i),
					Before:   rs.subs[j].access,
					After:    final,
					Range:    r.slotRange(j),
				})
			}
		}

		if r.ownership == OwnershipExternal && rs.used && final != r.external.Access {
			c.appendFinal(Transition{
				Resource: ResourceHandle(i),
				Before:   final,
				After:    r.external.Access,
				Range:    SubresourceRange{},
			})
			final = r.external.Access
		}
		c.finalAccess[i] = final
	}
}

func (c *compiler) appendFinal(t Transition) {
	if c.final == nil {
		c.final = &BarrierBatch{}
	}
	c.final.Transitions = append(c.final.Transitions, t)
	c.stats.Transitions++
}

// applyAccess folds one pass access into the resource's merge state,
// splitting or recombining the representation as ranges demand.
func (c *compiler) applyAccess(h PassHandle, a ResourceAccess) {
	g := c.g
	r := g.resourceAt(a.Resource)
	rs := &c.resState[a.Resource]

	if !rs.used {
		rs.used = true
		rs.firstUse = h
	}
	rs.lastUse = h

	whole := r.coversWhole(a.Range)
	switch {
	case !rs.perSub && whole:
		c.applySlot(h, a.Resource, &rs.whole, a.Access, SubresourceRange{})

	case !rs.perSub && !whole:
		// A partial access that is compatible with the whole-resource state
		// merges without splitting; only a forced transition fragments the
		// representation.
		if rs.whole.access.compatible(a.Access) {
			rs.whole.access = rs.whole.access.merge(a.Access)
			return
		}
		rs.split(r)
		fallthrough

	default:
		if whole {
			for i := range rs.subs {
				c.applySlot(h, a.Resource, &rs.subs[i], a.Access, r.slotRange(i))
			}
			if rs.uniform() {
				rs.recombine()
			}
		} else {
			for _, i := range r.slotIndices(a.Range) {
				c.applySlot(h, a.Resource, &rs.subs[i], a.Access, r.slotRange(i))
			}
		}
	}
}

// applySlot merges a compatible access into the slot or closes the pending
// state into a transition on the consuming pass's prologue.
func (c *compiler) applySlot(h PassHandle, res ResourceHandle, s *slotMerge, acc Access, rng SubresourceRange) {
	if s.access.compatible(acc) {
		s.access = s.access.merge(acc)
		return
	}
	b := c.prologue(h)
	b.Transitions = append(b.Transitions, Transition{
		Resource: res,
		Before:   s.access,
		After:    acc,
		Range:    rng,
	})
	c.stats.Transitions++
	s.access = acc
}

func (c *compiler) finishStats() {
	for i := range c.sched {
		if !c.sched[i].prologue.Empty() {
			c.stats.BarrierBatches++
		}
		if !c.sched[i].epilogue.Empty() {
			c.stats.BarrierBatches++
		}
	}
	if !c.final.Empty() {
		c.stats.BarrierBatches++
	}
}

// CompiledGraph is the frozen schedule Compile produces: the kept passes in
// declaration order, their barrier batches, merge groups, and fence plan.
// It is immutable after compilation; accessors expose it for inspection and
// callers must not mutate what they return.
type CompiledGraph struct {
	graph       *Graph
	order       []PassHandle
	sched       []passSchedule
	groups      []MergeGroup
	final       *BarrierBatch
	finalAccess []Access
	fenceValues [pipeCount]uint64
	stats       CompileStats
}

// Stats returns the compile statistics.
func (cg *CompiledGraph) Stats() CompileStats { return cg.stats }

// KeptPasses lists the surviving passes in declaration order.
func (cg *CompiledGraph) KeptPasses() []PassHandle {
	out := make([]PassHandle, len(cg.order))
	copy(out, cg.order)
	return out
}

// Culled reports whether the pass was removed by dead-pass elimination.
func (cg *CompiledGraph) Culled(h PassHandle) bool {
	if !h.IsValid() || int(h) >= len(cg.sched) {
		return false
	}
	return !cg.sched[h].kept
}

// Prologue returns the barrier batch applied before the pass body, or nil.
func (cg *CompiledGraph) Prologue(h PassHandle) *BarrierBatch {
	if !h.IsValid() || int(h) >= len(cg.sched) {
		return nil
	}
	return cg.sched[h].prologue
}

// Epilogue returns the barrier batch applied after the pass body, or nil.
func (cg *CompiledGraph) Epilogue(h PassHandle) *BarrierBatch {
	if !h.IsValid() || int(h) >= len(cg.sched) {
		return nil
	}
	return cg.sched[h].epilogue
}

// FinalBatch returns the batch that restores external resources to their
// declared state after the last pass, or nil when nothing needs restoring.
func (cg *CompiledGraph) FinalBatch() *BarrierBatch { return cg.final }

// MergeGroups lists the render-pass merge groups in schedule order.
func (cg *CompiledGraph) MergeGroups() []MergeGroup {
	out := make([]MergeGroup, len(cg.groups))
	copy(out, cg.groups)
	return out
}
