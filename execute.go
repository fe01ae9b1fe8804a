package framegraph

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
)

// passRun is a contiguous stretch of kept passes recorded into one command
// buffer and submitted in one queue call. Runs split on pipe changes, before
// a prologue that waits, after an epilogue that signals, and at the
// configured pass cap; merge groups are never split.
type passRun struct {
	pipe   Pipe
	passes []PassHandle
}

// execute realizes backing resources, records every run, and submits the
// command buffers in declaration order, interleaving fence waits and
// signals. It blocks until the device signals completion, so extracted
// backing is safe to use when it returns.
func (g *Graph) execute(ctx context.Context, compiled *CompiledGraph) error {
	var stats ExecuteStats
	stats.PassesExecuted = len(compiled.order)

	if err := g.realizeResources(compiled, &stats); err != nil {
		return err
	}

	runs := partitionRuns(compiled, g.cfg.MaxPassesPerRun)
	stats.Runs = len(runs)
	countTransitions(compiled, &stats)

	hasAsync := false
	for _, run := range runs {
		if run.pipe == PipeAsyncCompute {
			hasAsync = true
			break
		}
	}

	// One timeline fence per pipe that submits work. The graphics fence
	// doubles as the completion fence, so it always exists.
	var fences [pipeCount]backend.Fence
	defer func() {
		for _, f := range fences {
			if f != nil {
				g.device.DestroyFence(f)
			}
		}
	}()
	for pipe := Pipe(0); pipe < pipeCount; pipe++ {
		if pipe == PipeAsyncCompute && !hasAsync && compiled.fenceValues[pipe] == 0 {
			continue
		}
		f, err := g.device.CreateFence()
		if err != nil {
			return fmt.Errorf("framegraph: create %s fence: %w", pipe, err)
		}
		fences[pipe] = f
	}

	bufs, err := g.recordRuns(ctx, compiled, runs)
	if err != nil {
		return err
	}
	finalBuf, err := g.recordBatch("final", compiled.final)
	if err != nil {
		g.freeBuffers(bufs, nil)
		return err
	}

	err = g.submitRuns(ctx, compiled, runs, bufs, finalBuf, &fences, &stats)
	g.freeBuffers(bufs, finalBuf)
	if err != nil {
		return err
	}

	for i := range g.resources {
		r := &g.resources[i]
		r.finalAccess = compiled.finalAccess[i]
		if r.out != nil {
			*r.out = ExtractedResource{
				Texture: r.texture,
				Buffer:  r.buffer,
				Access:  r.finalAccess,
			}
		}
	}

	stats.TransientBytes = g.transient.stats().PeakBytes

	g.mu.Lock()
	g.execStats = stats
	g.mu.Unlock()

	g.logger.Info("framegraph: graph executed", "stats", stats.String())
	return nil
}

// realizeResources gives every used resource backing before recording
// starts. Usage is derived as the union of the usages implied by kept
// accesses. Transients follow the compiled aliasing schedule so lifetimes
// that do not overlap share arena blocks; arena exhaustion falls back to
// pooled backing and is never an error.
func (g *Graph) realizeResources(compiled *CompiledGraph, stats *ExecuteStats) error {
	used := make([]bool, len(g.resources))
	for _, h := range compiled.order {
		p := g.passAt(h)
		for _, a := range p.accesses {
			used[a.Resource] = true
			r := g.resourceAt(a.Resource)
			if r.kind == kindTexture {
				r.texUsage |= a.Access.TextureUsage()
			} else {
				r.bufUsage |= a.Access.BufferUsage()
			}
		}
	}

	for i := range g.resources {
		r := &g.resources[i]
		if !used[i] || r.ownership != OwnershipPooled {
			continue
		}
		if err := g.acquirePooled(r, stats); err != nil {
			return err
		}
	}

	for _, h := range compiled.order {
		sc := &compiled.sched[h]
		if sc.prologue != nil {
			for _, op := range sc.prologue.Aliasing {
				if op.Kind != AliasAcquire {
					continue
				}
				if err := g.acquireTransient(g.resourceAt(op.Resource), stats); err != nil {
					return err
				}
			}
		}
		if sc.epilogue != nil {
			for _, op := range sc.epilogue.Aliasing {
				if op.Kind == AliasDiscard {
					g.transient.release(g.resourceAt(op.Resource))
				}
			}
		}
	}
	return nil
}

func (g *Graph) acquirePooled(r *resource, stats *ExecuteStats) error {
	if r.kind == kindTexture {
		tex, reused, err := g.pool.acquireTexture(r, r.texUsage)
		if err != nil {
			return err
		}
		r.texture = tex
		if reused {
			stats.PooledReused++
		} else {
			stats.PooledCreated++
		}
		return nil
	}
	buf, reused, err := g.pool.acquireBuffer(r, r.bufUsage)
	if err != nil {
		return err
	}
	r.buffer = buf
	if reused {
		stats.PooledReused++
	} else {
		stats.PooledCreated++
	}
	return nil
}

func (g *Graph) acquireTransient(r *resource, stats *ExecuteStats) error {
	if r.kind == kindTexture {
		tex, ok, err := g.transient.acquireTexture(r, r.texUsage)
		if err != nil {
			return err
		}
		if ok {
			r.texture = tex
			stats.TransientAcquired++
			return nil
		}
	} else {
		buf, ok, err := g.transient.acquireBuffer(r, r.bufUsage)
		if err != nil {
			return err
		}
		if ok {
			r.buffer = buf
			stats.TransientAcquired++
			return nil
		}
	}

	// Budget exhausted: pooled backing keeps the invocation alive at the
	// cost of aliasing.
	r.transientFallback = true
	stats.TransientFallbacks++
	g.logger.Warn("framegraph: transient budget exhausted, using pooled backing",
		"resource", r.name, "budget", g.transient.stats().String())
	return g.acquirePooled(r, stats)
}

// partitionRuns slices the kept passes into submission runs.
func partitionRuns(compiled *CompiledGraph, maxPasses int) []passRun {
	var runs []passRun
	var cur passRun

	flush := func() {
		if len(cur.passes) > 0 {
			runs = append(runs, cur)
			cur = passRun{}
		}
	}

	for _, h := range compiled.order {
		p := compiled.graph.passAt(h)
		sc := &compiled.sched[h]

		interior := sc.group >= 0 && !sc.groupHead
		switch {
		case len(cur.passes) == 0:
		case interior:
			// a merge group never splits across runs
		case p.pipe != cur.pipe:
			flush()
		case sc.prologue != nil && sc.prologue.Wait:
			flush()
		case len(cur.passes) >= maxPasses:
			flush()
		}
		if len(cur.passes) == 0 {
			cur.pipe = p.pipe
		}
		cur.passes = append(cur.passes, h)

		if sc.epilogue != nil && sc.epilogue.Signal {
			flush()
		}
	}
	flush()
	return runs
}

// recordRuns records every run into its own command buffer, fanning out on
// the worker pool when parallel recording is enabled. On any failure all
// recorded buffers are freed and the first error returned.
func (g *Graph) recordRuns(ctx context.Context, compiled *CompiledGraph, runs []passRun) ([]backend.CommandBuffer, error) {
	bufs := make([]backend.CommandBuffer, len(runs))
	errs := make([]error, len(runs))

	g.mu.Lock()
	pool := g.workerPoolLocked()
	g.mu.Unlock()

	if pool != nil && len(runs) > 1 {
		tasks := make([]func(), len(runs))
		for i := range runs {
			tasks[i] = func() {
				bufs[i], errs[i] = g.recordRun(ctx, compiled, i, runs[i])
			}
		}
		pool.ExecuteAll(tasks)
	} else {
		for i := range runs {
			bufs[i], errs[i] = g.recordRun(ctx, compiled, i, runs[i])
			if errs[i] != nil {
				break
			}
		}
	}

	for _, err := range errs {
		if err != nil {
			g.freeBuffers(bufs, nil)
			return nil, err
		}
	}
	return bufs, nil
}

// recordRun records one run: prologue barriers, render-pass scopes, pass
// bodies, and epilogue barriers, in schedule order.
func (g *Graph) recordRun(ctx context.Context, compiled *CompiledGraph, idx int, run passRun) (backend.CommandBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	label := fmt.Sprintf("run%d.%s", idx, run.pipe)
	enc, err := g.device.CreateCommandEncoder(label)
	if err != nil {
		return nil, fmt.Errorf("framegraph: run %d: %w", idx, err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("framegraph: run %d: %w", idx, err)
	}

	var open backend.RenderPassEncoder
	fail := func(err error) (backend.CommandBuffer, error) {
		if open != nil {
			open.End()
		}
		enc.DiscardEncoding()
		return nil, err
	}

	for _, h := range run.passes {
		p := g.passAt(h)
		sc := &compiled.sched[h]

		if sc.prologue != nil {
			g.encodeBarriers(enc, sc.prologue)
		}

		switch {
		case sc.group >= 0 && sc.groupHead:
			grp := compiled.groups[sc.group]
			desc, err := g.renderPassDescriptor(grp.Targets, p, g.passAt(grp.Tail()))
			if err != nil {
				return fail(fmt.Errorf("framegraph: pass %q: %w", p.name, err))
			}
			open = enc.BeginRenderPass(desc)
		case sc.group < 0 && p.flags.Has(PassRaster) && !p.flags.Has(PassSkipRenderPass) && p.hasTargets:
			desc, err := g.renderPassDescriptor(p.targets, p, p)
			if err != nil {
				return fail(fmt.Errorf("framegraph: pass %q: %w", p.name, err))
			}
			open = enc.BeginRenderPass(desc)
		}

		pc := &PassContext{
			ctx:     ctx,
			graph:   g,
			pass:    p,
			encoder: enc,
			render:  open,
			logger:  g.logger,
		}
		if err := p.body.Execute(pc); err != nil {
			return fail(fmt.Errorf("framegraph: pass %q: %w", p.name, err))
		}

		if open != nil && (sc.group < 0 || sc.groupTail) {
			open.End()
			open = nil
		}

		if sc.epilogue != nil {
			g.encodeBarriers(enc, sc.epilogue)
		}
	}

	buf, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("framegraph: run %d: %w", idx, err)
	}
	return buf, nil
}

// recordBatch records a standalone command buffer carrying only a barrier
// batch. A nil batch records an empty buffer, used to carry a fence signal.
func (g *Graph) recordBatch(label string, batch *BarrierBatch) (backend.CommandBuffer, error) {
	enc, err := g.device.CreateCommandEncoder(label)
	if err != nil {
		return nil, fmt.Errorf("framegraph: %s: %w", label, err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("framegraph: %s: %w", label, err)
	}
	if batch != nil {
		g.encodeBarriers(enc, batch)
	}
	buf, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("framegraph: %s: %w", label, err)
	}
	return buf, nil
}

// renderPassDescriptor builds the attachment set for a render-pass scope.
// Load ops and clear values come from the head pass, store ops from the
// tail; for a solo pass head and tail coincide.
func (g *Graph) renderPassDescriptor(targets RenderTargetBindings, head, tail *pass) (*backend.RenderPassDescriptor, error) {
	headColors, headDepth := attachmentOps(head)
	tailColors, tailDepth := attachmentOps(tail)

	desc := &backend.RenderPassDescriptor{Label: head.name}
	for i := uint8(0); i < targets.ColorCount; i++ {
		v, err := g.resolveView(targets.Colors[i])
		if err != nil {
			return nil, err
		}
		desc.ColorAttachments = append(desc.ColorAttachments, backend.RenderPassColorAttachment{
			View:       v,
			LoadOp:     headColors[i].Load,
			StoreOp:    tailColors[i].Store,
			ClearValue: headColors[i].Clear,
		})
	}
	if targets.HasDepthStencil {
		v, err := g.resolveView(targets.DepthStencil)
		if err != nil {
			return nil, err
		}
		desc.DepthStencilAttachment = &backend.RenderPassDepthStencilAttachment{
			View:              v,
			DepthLoadOp:       headDepth.DepthLoad,
			DepthStoreOp:      tailDepth.DepthStore,
			DepthClearValue:   headDepth.DepthClear,
			StencilLoadOp:     headDepth.StencilLoad,
			StencilStoreOp:    tailDepth.StencilStore,
			StencilClearValue: headDepth.StencilClear,
		}
	}
	return desc, nil
}

// attachmentOps returns the pass's declared ops, or load/store defaults for
// parameter blocks without the interface.
func attachmentOps(p *pass) ([MaxColorAttachments]AttachmentOps, DepthStencilOps) {
	if prov, ok := p.params.(AttachmentOpsProvider); ok {
		return prov.AttachmentOps()
	}
	var colors [MaxColorAttachments]AttachmentOps
	for i := range colors {
		colors[i] = AttachmentOps{Load: gputypes.LoadOpLoad, Store: gputypes.StoreOpStore}
	}
	return colors, DepthStencilOps{
		DepthLoad:    gputypes.LoadOpLoad,
		DepthStore:   gputypes.StoreOpStore,
		StencilLoad:  gputypes.LoadOpLoad,
		StencilStore: gputypes.StoreOpStore,
	}
}

// encodeBarriers lowers a batch's transitions onto the encoder. Buffer
// transitions order the schedule but have no encoder representation; the
// backend tracks buffer state internally.
func (g *Graph) encodeBarriers(enc backend.CommandEncoder, b *BarrierBatch) {
	if len(b.Transitions) == 0 {
		return
	}
	barriers := make([]backend.TextureBarrier, 0, len(b.Transitions))
	for _, t := range b.Transitions {
		r := g.resourceAt(t.Resource)
		if r == nil || r.kind != kindTexture || r.texture == nil {
			continue
		}
		barriers = append(barriers, backend.TextureBarrier{
			Texture: r.texture,
			Before:  t.Before.TextureUsage(),
			After:   t.After.TextureUsage(),
			Range:   t.Range,
		})
	}
	if len(barriers) > 0 {
		enc.TransitionTextures(barriers)
	}
}

// submitRuns hands the recorded runs to their queues in declaration order.
// Cross-pipe waits run on the CPU before the dependent submission; under
// validation a wait on a value no prior submission signals is a scheduler
// invariant violation and panics. The async pipe is drained before the
// final buffer restores externals and signals completion.
func (g *Graph) submitRuns(ctx context.Context, compiled *CompiledGraph, runs []passRun, bufs []backend.CommandBuffer, finalBuf backend.CommandBuffer, fences *[pipeCount]backend.Fence, stats *ExecuteStats) error {
	var signaled [pipeCount]uint64

	for i, run := range runs {
		if err := ctx.Err(); err != nil {
			return err
		}

		head := run.passes[0]
		if pro := compiled.sched[head].prologue; pro != nil && pro.Wait {
			if g.cfg.Validation && pro.WaitValue > signaled[pro.WaitPipe] {
				panic(fmt.Sprintf(
					"framegraph: run %d waits for %s fence value %d with only %d signaled",
					i, pro.WaitPipe, pro.WaitValue, signaled[pro.WaitPipe]))
			}
			ok, err := g.device.Wait(fences[pro.WaitPipe], pro.WaitValue, g.cfg.FenceTimeout)
			if err != nil {
				return fmt.Errorf("framegraph: run %d wait: %w", i, err)
			}
			if !ok {
				return fmt.Errorf("%w: run %d waiting for %s value %d",
					ErrFenceTimeout, i, pro.WaitPipe, pro.WaitValue)
			}
			stats.FenceWaits++
		}

		var fence backend.Fence
		var value uint64
		tail := run.passes[len(run.passes)-1]
		if epi := compiled.sched[tail].epilogue; epi != nil && epi.Signal {
			fence = fences[run.pipe]
			value = epi.SignalValue
		}

		if err := g.device.Queue(queueKind(run.pipe)).Submit([]backend.CommandBuffer{bufs[i]}, fence, value); err != nil {
			return fmt.Errorf("framegraph: run %d submit: %w", i, err)
		}
		stats.Submissions++
		if fence != nil {
			signaled[run.pipe] = value
			stats.FenceSignals++
		}
	}

	// The final buffer restores externals to their declared states, and an
	// external's last writer may sit on the async pipe. All async work must
	// retire before those transitions run on graphics, so the async pipe
	// signals and waits its completion first. This also covers a trailing
	// async run, which has no graphics consumer to order behind.
	if fences[PipeAsyncCompute] != nil {
		asyncDone := compiled.fenceValues[PipeAsyncCompute] + 1
		if err := g.device.Queue(backend.QueueCompute).Submit(nil, fences[PipeAsyncCompute], asyncDone); err != nil {
			return fmt.Errorf("framegraph: async completion submit: %w", err)
		}
		if ok, err := g.device.Wait(fences[PipeAsyncCompute], asyncDone, g.cfg.FenceTimeout); err != nil {
			return fmt.Errorf("framegraph: async completion wait: %w", err)
		} else if !ok {
			return fmt.Errorf("%w: async completion", ErrFenceTimeout)
		}
	}

	done := compiled.fenceValues[PipeGraphics] + 1
	if err := g.device.Queue(backend.QueueGraphics).Submit([]backend.CommandBuffer{finalBuf}, fences[PipeGraphics], done); err != nil {
		return fmt.Errorf("framegraph: final submit: %w", err)
	}
	stats.Submissions++
	if ok, err := g.device.Wait(fences[PipeGraphics], done, g.cfg.FenceTimeout); err != nil {
		return fmt.Errorf("framegraph: completion wait: %w", err)
	} else if !ok {
		return fmt.Errorf("%w: completion", ErrFenceTimeout)
	}
	return nil
}

// freeBuffers returns every recorded command buffer to the device.
func (g *Graph) freeBuffers(bufs []backend.CommandBuffer, finalBuf backend.CommandBuffer) {
	for _, b := range bufs {
		if b != nil {
			g.device.FreeCommandBuffer(b)
		}
	}
	if finalBuf != nil {
		g.device.FreeCommandBuffer(finalBuf)
	}
}

// queueKind maps a pipe to its backend queue.
func queueKind(p Pipe) backend.QueueKind {
	if p == PipeAsyncCompute {
		return backend.QueueCompute
	}
	return backend.QueueGraphics
}

func countTransitions(compiled *CompiledGraph, stats *ExecuteStats) {
	for _, h := range compiled.order {
		if b := compiled.sched[h].prologue; b != nil {
			stats.Transitions += len(b.Transitions)
		}
		if b := compiled.sched[h].epilogue; b != nil {
			stats.Transitions += len(b.Transitions)
		}
	}
	if compiled.final != nil {
		stats.Transitions += len(compiled.final.Transitions)
	}
}
