package framegraph

import "sort"

// insertForkJoins is compiler phase four. Each pipe owns one timeline fence.
// For every cross-pipe edge the producer side signals its pipe's fence and
// the consumer side waits on it, reduced to the minimum batch count:
//
//   - The fork of a consumer is its latest producer on the other pipe; each
//     unique fork gets exactly one signal, with fence values assigned in
//     ascending fork order so the timeline stays monotone.
//   - Consumers are walked in declaration order and a wait is emitted only
//     when it raises the pipe's already-awaited value.
//
// Signals and waits land on merge-group edges: a signal moves to the group
// tail's epilogue and a wait to the group head's prologue, which is safe
// because group contiguity keeps cross-pipe partners outside the group.
func (c *compiler) insertForkJoins() {
	c.stats.ForkBatches = c.syncCross(PipeGraphics, PipeAsyncCompute)
	c.stats.JoinBatches = c.syncCross(PipeAsyncCompute, PipeGraphics)
}

// syncCross fences the edges flowing from pipe from into pipe to and returns
// the number of signal batches inserted.
func (c *compiler) syncCross(from, to Pipe) int {
	g := c.g

	// Latest from-pipe producer per to-pipe consumer.
	forkOf := make(map[PassHandle]PassHandle)
	for _, h := range c.order {
		p := g.passAt(h)
		if p.pipe != to {
			continue
		}
		fork := PassHandle(InvalidHandle)
		for _, q := range p.producers {
			if g.passAt(q).pipe == from && (!fork.IsValid() || q > fork) {
				fork = q
			}
		}
		if fork.IsValid() {
			forkOf[h] = fork
		}
	}
	if len(forkOf) == 0 {
		return 0
	}

	seen := make(map[PassHandle]bool, len(forkOf))
	forks := make([]PassHandle, 0, len(forkOf))
	for _, f := range forkOf {
		if !seen[f] {
			seen[f] = true
			forks = append(forks, f)
		}
	}
	sort.Slice(forks, func(i, j int) bool { return forks[i] < forks[j] })

	valueOf := make(map[PassHandle]uint64, len(forks))
	for _, f := range forks {
		c.fenceValues[from]++
		v := c.fenceValues[from]
		valueOf[f] = v

		b := c.epilogue(c.signalTarget(f))
		b.Signal = true
		if v > b.SignalValue {
			b.SignalValue = v
		}
	}

	var waited uint64
	for _, h := range c.order {
		fork, ok := forkOf[h]
		if !ok {
			continue
		}
		v := valueOf[fork]
		if v <= waited {
			continue
		}
		b := c.prologue(c.waitTarget(h))
		b.Wait = true
		b.WaitPipe = from
		if v > b.WaitValue {
			b.WaitValue = v
		}
		waited = v
	}
	return len(forks)
}

// signalTarget redirects a signal on a merged pass to its group tail.
func (c *compiler) signalTarget(h PassHandle) PassHandle {
	if gi := c.sched[h].group; gi >= 0 {
		return c.groups[gi].Tail()
	}
	return h
}

// waitTarget redirects a wait on a merged pass to its group head.
func (c *compiler) waitTarget(h PassHandle) PassHandle {
	if gi := c.sched[h].group; gi >= 0 {
		return c.groups[gi].Head()
	}
	return h
}
