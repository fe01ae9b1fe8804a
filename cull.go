package framegraph

// cullPasses is compiler phase one. It marks every pass reachable from the
// graph's externally visible outputs by walking producer edges depth-first;
// unmarked passes are culled and excluded from all later phases.
//
// Roots are the producers of the synthetic terminal pass (the last writer of
// every external or extracted resource slot) plus NeverCull passes. The
// dependency relation is a strict partial order on pass ordinals, so the
// walk needs no cycle handling.
func (c *compiler) cullPasses() {
	g := c.g
	c.kept = make([]bool, len(g.passes))

	var stack []PassHandle
	push := func(h PassHandle) {
		if h.IsValid() && !c.kept[h] {
			c.kept[h] = true
			stack = append(stack, h)
		}
	}

	for i := range g.resources {
		r := &g.resources[i]
		if r.ownership != OwnershipExternal && !r.extracted {
			continue
		}
		if r.perSub {
			for j := range r.subs {
				push(r.subs[j].lastWriter)
			}
		} else {
			push(r.whole.lastWriter)
		}
	}
	for i := range g.passes {
		if g.passes[i].flags.Has(PassNeverCull) {
			push(g.passes[i].handle)
		}
	}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, q := range g.passes[h].producers {
			push(q)
		}
	}

	c.order = make([]PassHandle, 0, len(g.passes))
	for i := range g.passes {
		h := PassHandle(i)
		if c.kept[i] {
			c.sched[i].kept = true
			c.order = append(c.order, h)
		} else {
			g.logger.Debug("framegraph: pass culled", "pass", g.passes[i].name, "handle", uint32(h))
		}
	}

	c.stats.PassesDeclared = len(g.passes)
	c.stats.PassesKept = len(c.order)
	c.stats.PassesCulled = len(g.passes) - len(c.order)

	for i := range g.passes {
		c.stats.Edges += len(g.passes[i].producers)
	}
	for _, h := range c.order {
		p := g.passAt(h)
		for _, q := range p.producers {
			if g.passAt(q).pipe != p.pipe {
				c.stats.CrossPipeEdges++
			}
		}
	}
}
