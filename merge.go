package framegraph

// MergeGroup is a run of contiguous raster passes collapsed into a single
// hardware render pass. The group's head carries the attachment load ops and
// its tail the store ops; interior boundaries cost nothing.
type MergeGroup struct {
	Passes  []PassHandle
	Targets RenderTargetBindings
}

// Head returns the first pass of the group.
func (m MergeGroup) Head() PassHandle { return m.Passes[0] }

// Tail returns the last pass of the group.
func (m MergeGroup) Tail() PassHandle { return m.Passes[len(m.Passes)-1] }

// mergePasses is compiler phase three. It scans the kept passes in order and
// collapses maximal runs of raster passes with identical render target
// bindings into merge groups. A run breaks on any intervening kept pass,
// a target change, a merge-averse flag, or the configured group limit.
//
// Joining a run additionally requires that the candidate's accesses are
// compatible with every earlier member's access to the same resource: an
// incompatible access would need a transition between the members, and
// transitions cannot execute inside an open render pass.
func (c *compiler) mergePasses() {
	g := c.g

	var run []PassHandle
	var targets RenderTargetBindings
	runAccess := make(map[ResourceHandle]Access)

	flush := func() {
		if len(run) >= 2 {
			idx := int32(len(c.groups))
			passes := make([]PassHandle, len(run))
			copy(passes, run)
			c.groups = append(c.groups, MergeGroup{Passes: passes, Targets: targets})
			for _, h := range passes {
				c.sched[h].group = idx
			}
			c.sched[passes[0]].groupHead = true
			c.sched[passes[len(passes)-1]].groupTail = true
			c.stats.MergeGroups++
			c.stats.MergedPasses += len(passes)
		}
		run = run[:0]
		clear(runAccess)
	}

	for _, h := range c.order {
		p := g.passAt(h)
		if !c.mergeable(p) {
			flush()
			continue
		}
		if len(run) > 0 {
			if p.targets != targets || len(run) >= g.cfg.MergeLimit || !compatibleWithRun(p, runAccess) {
				flush()
			}
		}
		if len(run) == 0 {
			targets = p.targets
		}
		run = append(run, h)
		for _, a := range p.accesses {
			runAccess[a.Resource] = runAccess[a.Resource].merge(a.Access)
		}
	}
	flush()
}

// mergeable reports whether the pass can participate in a merge group at
// all: a raster pass with declared targets whose writes all land in its own
// attachments. A write outside the attachments would have to execute inside
// the merged render pass where it is not representable.
func (c *compiler) mergeable(p *pass) bool {
	if !p.flags.Has(PassRaster) ||
		p.flags.Has(PassSkipRenderPass) ||
		p.flags.Has(PassNeverMerge) ||
		!p.hasTargets {
		return false
	}
	for _, a := range p.accesses {
		if !a.Access.IsWrite() {
			continue
		}
		if a.Access != AccessAttachmentWrite || !c.boundAsTarget(p, a.Resource) {
			return false
		}
	}
	return true
}

// boundAsTarget reports whether the resource backs one of the pass's
// attachment views.
func (c *compiler) boundAsTarget(p *pass, res ResourceHandle) bool {
	found := false
	p.targets.views(func(v ViewHandle) {
		if vw := c.g.viewAt(v); vw != nil && vw.desc.Resource == res {
			found = true
		}
	})
	return found
}

// compatibleWithRun reports whether every access of the candidate can be
// absorbed into the run's accumulated per-resource state without a
// transition. Conservative at whole-resource granularity.
func compatibleWithRun(p *pass, runAccess map[ResourceHandle]Access) bool {
	for _, a := range p.accesses {
		prev, ok := runAccess[a.Resource]
		if ok && !prev.compatible(a.Access) {
			return false
		}
	}
	return true
}

// hoistGroupBarriers moves interior barrier batches to the group's edges:
// prologues of every member after the head run before the render pass opens,
// and epilogues of every member before the tail run after it closes. Only
// transitions and aliasing ops exist at this point; fences are inserted
// afterwards and target the group edges directly.
func (c *compiler) hoistGroupBarriers() {
	for gi := range c.groups {
		grp := &c.groups[gi]
		head := grp.Head()
		tail := grp.Tail()

		for _, h := range grp.Passes[1:] {
			sc := &c.sched[h]
			if !sc.prologue.Empty() {
				dst := c.prologue(head)
				dst.Transitions = append(dst.Transitions, sc.prologue.Transitions...)
				dst.Aliasing = append(dst.Aliasing, sc.prologue.Aliasing...)
			}
			sc.prologue = nil
		}

		var hoisted BarrierBatch
		for _, h := range grp.Passes[:len(grp.Passes)-1] {
			sc := &c.sched[h]
			if !sc.epilogue.Empty() {
				hoisted.Transitions = append(hoisted.Transitions, sc.epilogue.Transitions...)
				hoisted.Aliasing = append(hoisted.Aliasing, sc.epilogue.Aliasing...)
			}
			sc.epilogue = nil
		}
		if !hoisted.Empty() {
			dst := c.epilogue(tail)
			dst.Transitions = append(hoisted.Transitions, dst.Transitions...)
			dst.Aliasing = append(hoisted.Aliasing, dst.Aliasing...)
		}
	}
}
