package framegraph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/framegraph/backend"
	backendwgpu "github.com/gogpu/framegraph/backend/wgpu"
	"github.com/gogpu/framegraph/internal/parallel"
)

// DeviceHandle provides GPU device access from a host application.
//
// Hosts built on the gogpu stack implement gpucontext.DeviceProvider and
// hand it to NewFromProvider, sharing one GPU device between the host and
// the graph. The graph receives the device, it never creates one.
type DeviceHandle = gpucontext.DeviceProvider

// graphState is the single-shot lifecycle of a graph invocation.
type graphState uint8

const (
	stateBuilding graphState = iota
	stateCompiled
	stateExecuted
	stateAbandoned
)

// String returns the state name.
func (s graphState) String() string {
	switch s {
	case stateBuilding:
		return "Building"
	case stateCompiled:
		return "Compiled"
	case stateExecuted:
		return "Executed"
	case stateAbandoned:
		return "Abandoned"
	default:
		return "Unknown"
	}
}

// Graph is a deferred scheduler for GPU work. Callers declare passes and the
// resources they touch; Compile analyzes producer/consumer relationships,
// culls unreachable passes, merges compatible raster passes, and computes
// minimal state transitions and cross-pipe fences; Execute records and
// submits the compiled schedule.
//
// A Graph runs single-shot: build, compile, execute, then Reset for the next
// invocation or Abandon to tear it down. Building and compiling happen on
// one goroutine; only execution fans out, onto the worker pool.
type Graph struct {
	mu     sync.Mutex
	viewMu sync.Mutex

	cfg    Config
	logger *slog.Logger
	device backend.Device

	state graphState

	passes    []pass
	resources []resource
	views     []view
	viewCache map[ViewDescriptor]ViewHandle
	externals map[any]ResourceHandle

	compiled *CompiledGraph

	pool      *resourcePool
	transient *transientAllocator
	workers   *parallel.WorkerPool

	execStats ExecuteStats
}

// New creates a graph over a device backend.
func New(device backend.Device, opts ...Option) (*Graph, error) {
	if device == nil {
		return nil, ErrNilBackend
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.normalize()

	logger := cfg.Logger
	if logger == nil {
		logger = slogger()
	}
	propagateLogger(device, logger)

	g := &Graph{
		cfg:       cfg,
		logger:    logger,
		device:    device,
		viewCache: make(map[ViewDescriptor]ViewHandle),
		externals: make(map[any]ResourceHandle),
		pool:      newResourcePool(device),
		transient: newTransientAllocator(device, uint64(cfg.TransientBudgetMB)*1024*1024),
	}
	g.logger.Debug("framegraph: graph created",
		"validation", cfg.Validation,
		"parallel", cfg.ParallelRecording,
		"transientBudgetMB", cfg.TransientBudgetMB)
	return g, nil
}

// NewFromProvider creates a graph over a host-provided device. The provider
// must be backed by wgpu/hal; hosts on other stacks implement
// backend.Device directly and use New.
func NewFromProvider(handle DeviceHandle, opts ...Option) (*Graph, error) {
	if handle == nil {
		return nil, ErrNilBackend
	}
	adapter, err := backendwgpu.FromProvider(handle)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNilBackend, err)
	}
	return New(adapter, opts...)
}

// Device returns the device backend the graph submits to.
func (g *Graph) Device() backend.Device { return g.device }

// buildable reports whether declaration calls are still allowed.
func (g *Graph) buildable() error {
	switch g.state {
	case stateBuilding:
		return nil
	case stateCompiled:
		return ErrGraphCompiled
	case stateExecuted:
		return ErrGraphExecuted
	default:
		return ErrGraphAbandoned
	}
}

// resourceAt returns the registry entry, or nil for an invalid handle.
func (g *Graph) resourceAt(h ResourceHandle) *resource {
	if !h.IsValid() || int(h) >= len(g.resources) {
		return nil
	}
	return &g.resources[h]
}

// passAt returns the registry entry, or nil for an invalid handle.
func (g *Graph) passAt(h PassHandle) *pass {
	if !h.IsValid() || int(h) >= len(g.passes) {
		return nil
	}
	return &g.passes[h]
}

// resourceName returns the resource's label for diagnostics.
func (g *Graph) resourceName(h ResourceHandle) string {
	if r := g.resourceAt(h); r != nil {
		return r.name
	}
	return "invalid"
}

// AddPass declares a unit of GPU work. flags must contain exactly one kind
// (Raster, Compute, AsyncCompute, or Copy). params enumerates the resource
// accesses the body will perform; nil declares a pass with no accesses, which
// executes but contributes no transitions. body runs during Execute.
//
// No GPU work happens here: AddPass only records bookkeeping and extracts
// ordering edges against earlier passes.
func (g *Graph) AddPass(name string, flags PassFlags, params PassParams, body PassBody) (PassHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	invalid := PassHandle(InvalidHandle)
	if err := g.buildable(); err != nil {
		return invalid, fmt.Errorf("%w: pass %q", err, name)
	}
	if body == nil {
		return invalid, fmt.Errorf("%w: pass %q", ErrNilBody, name)
	}
	if g.cfg.Validation {
		kind := flags & (PassRaster | PassCompute | PassAsyncCompute | PassCopy)
		if kind == 0 || kind&(kind-1) != 0 {
			return invalid, fmt.Errorf("%w: pass %q has %s", ErrInvalidFlags, name, flags)
		}
	}

	var accesses AccessList
	if params != nil {
		declared := params.EnumerateResourceAccesses()
		accesses = make(AccessList, len(declared))
		copy(accesses, declared)
	}

	h := PassHandle(len(g.passes))
	pipe := flags.pipe()

	// Validate every access before mutating any bookkeeping, so a failed
	// declaration leaves the graph untouched.
	for _, a := range accesses {
		r := g.resourceAt(a.Resource)
		if r == nil {
			return invalid, fmt.Errorf("%w: pass %q access", ErrInvalidHandle, name)
		}
		if g.cfg.Validation && a.Access.IsWrite() {
			if r.extracted {
				return invalid, fmt.Errorf("%w: pass %q writes extracted %q", ErrResourceFinalized, name, r.name)
			}
			if r.ownership == OwnershipExternal && !r.external.Writable {
				return invalid, fmt.Errorf("%w: pass %q writes external %q", ErrResourceFinalized, name, r.name)
			}
		}
	}

	seen := make(map[PassHandle]struct{})
	var producers []PassHandle
	emit := func(p PassHandle) {
		if p == h {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		producers = append(producers, p)
	}
	for _, a := range accesses {
		r := g.resourceAt(a.Resource)
		r.declare(h, pipe, a.Access, a.Range, emit)
	}
	sort.Slice(producers, func(i, j int) bool { return producers[i] < producers[j] })

	p := pass{
		name:     name,
		handle:   h,
		flags:    flags,
		pipe:     pipe,
		params:   params,
		body:     body,
		accesses: accesses,
		producers: producers,
	}
	if rp, ok := params.(RenderTargetProvider); ok && flags.Has(PassRaster) {
		p.targets = rp.RenderTargets()
		p.hasTargets = true
	}
	g.passes = append(g.passes, p)

	g.logger.Debug("framegraph: pass added",
		"pass", name, "handle", uint32(h), "flags", flags.String(),
		"pipe", pipe.String(), "accesses", len(accesses), "producers", len(producers))
	return h, nil
}

// CreateTexture registers a graph-owned texture. Backing is created lazily
// at execution, with usage derived from the accesses passes declare.
func (g *Graph) CreateTexture(desc TextureDescriptor) (ResourceHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	invalid := ResourceHandle(InvalidHandle)
	if err := g.buildable(); err != nil {
		return invalid, fmt.Errorf("%w: texture %q", err, desc.Label)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return invalid, fmt.Errorf("%w: texture %q", ErrZeroDescriptor, desc.Label)
	}

	h := ResourceHandle(len(g.resources))
	name := desc.Label
	if name == "" {
		name = fmt.Sprintf("texture%d", h)
	}
	ownership := OwnershipPooled
	if desc.Transient {
		ownership = OwnershipTransient
	}
	mips := desc.MipLevelCount
	if mips == 0 {
		mips = 1
	}
	layers := desc.Depth
	if layers == 0 {
		layers = 1
	}
	g.resources = append(g.resources, resource{
		name:      name,
		kind:      kindTexture,
		ownership: ownership,
		texDesc:   desc,
		mipLevels: mips,
		layers:    layers,
		whole:     newSlotState(AccessNone),
	})
	return h, nil
}

// CreateBuffer registers a graph-owned buffer. Backing is created lazily at
// execution, with usage derived from declared accesses.
func (g *Graph) CreateBuffer(desc BufferDescriptor) (ResourceHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	invalid := ResourceHandle(InvalidHandle)
	if err := g.buildable(); err != nil {
		return invalid, fmt.Errorf("%w: buffer %q", err, desc.Label)
	}
	if desc.Size == 0 {
		return invalid, fmt.Errorf("%w: buffer %q", ErrZeroDescriptor, desc.Label)
	}

	h := ResourceHandle(len(g.resources))
	name := desc.Label
	if name == "" {
		name = fmt.Sprintf("buffer%d", h)
	}
	ownership := OwnershipPooled
	if desc.Transient {
		ownership = OwnershipTransient
	}
	g.resources = append(g.resources, resource{
		name:      name,
		kind:      kindBuffer,
		ownership: ownership,
		bufDesc:   desc,
		mipLevels: 1,
		layers:    1,
		whole:     newSlotState(AccessNone),
	})
	return h, nil
}

// RegisterExternal loans an externally owned texture to the graph for one
// invocation. The graph enters it in st.Access and returns it to that state
// before handing it back; writes require st.Writable. Registering the same
// texture twice in one invocation is a contract violation.
func (g *Graph) RegisterExternal(t backend.Texture, st ExternalState) (ResourceHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	invalid := ResourceHandle(InvalidHandle)
	if err := g.buildable(); err != nil {
		return invalid, fmt.Errorf("%w: external %q", err, st.Label)
	}
	if t == nil {
		return invalid, fmt.Errorf("%w: external %q", ErrNilResource, st.Label)
	}
	if _, ok := g.externals[t]; ok {
		return invalid, fmt.Errorf("%w: external %q", ErrAlreadyRegistered, st.Label)
	}

	h := ResourceHandle(len(g.resources))
	name := st.Label
	if name == "" {
		name = fmt.Sprintf("external%d", h)
	}
	g.resources = append(g.resources, resource{
		name:      name,
		kind:      kindTexture,
		ownership: OwnershipExternal,
		external:  st,
		texture:   t,
		mipLevels: 1,
		layers:    1,
		whole:     newSlotState(st.Access),
	})
	g.externals[t] = h
	return h, nil
}

// RegisterExternalBuffer loans an externally owned buffer to the graph, with
// the same contract as RegisterExternal.
func (g *Graph) RegisterExternalBuffer(b backend.Buffer, st ExternalState) (ResourceHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	invalid := ResourceHandle(InvalidHandle)
	if err := g.buildable(); err != nil {
		return invalid, fmt.Errorf("%w: external %q", err, st.Label)
	}
	if b == nil {
		return invalid, fmt.Errorf("%w: external %q", ErrNilResource, st.Label)
	}
	if _, ok := g.externals[b]; ok {
		return invalid, fmt.Errorf("%w: external %q", ErrAlreadyRegistered, st.Label)
	}

	h := ResourceHandle(len(g.resources))
	name := st.Label
	if name == "" {
		name = fmt.Sprintf("external%d", h)
	}
	g.resources = append(g.resources, resource{
		name:      name,
		kind:      kindBuffer,
		ownership: OwnershipExternal,
		external:  st,
		buffer:    b,
		mipLevels: 1,
		layers:    1,
		whole:     newSlotState(st.Access),
	})
	g.externals[b] = h
	return h, nil
}

// Extract marks a resource to survive past the end of the invocation. The
// resource leaves transient consideration; its writers become cull roots;
// out receives the backing object and final access state once Execute
// finishes. Declaring a write on the resource after Extract is a contract
// violation.
func (g *Graph) Extract(h ResourceHandle, out *ExtractedResource) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.buildable(); err != nil {
		return fmt.Errorf("%w: extract", err)
	}
	if out == nil {
		return ErrNilOut
	}
	r := g.resourceAt(h)
	if r == nil {
		return fmt.Errorf("%w: extract", ErrInvalidHandle)
	}
	if r.extracted {
		return fmt.Errorf("%w: %q", ErrAlreadyExtracted, r.name)
	}
	r.extracted = true
	r.out = out
	if r.ownership == OwnershipTransient {
		r.ownership = OwnershipPooled
	}
	return nil
}

// Compile runs the four compiler phases over the declared passes and
// freezes the schedule. Compiling an unexecuted graph again rebuilds the
// identical schedule from declaration state.
func (g *Graph) Compile() (*CompiledGraph, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case stateBuilding, stateCompiled:
	case stateExecuted:
		return nil, fmt.Errorf("%w: compile", ErrGraphExecuted)
	default:
		return nil, fmt.Errorf("%w: compile", ErrGraphAbandoned)
	}

	c := newCompiler(g)
	compiled, err := c.compile()
	if err != nil {
		return nil, err
	}
	g.compiled = compiled
	g.state = stateCompiled

	g.logger.Info("framegraph: graph compiled", "stats", compiled.stats.String())
	return compiled, nil
}

// Execute realizes resources, records the compiled schedule, and submits it
// in declaration order. The graph must be compiled first. After Execute the
// graph is spent until Reset.
func (g *Graph) Execute(ctx context.Context) error {
	g.mu.Lock()
	switch g.state {
	case stateCompiled:
	case stateBuilding:
		g.mu.Unlock()
		return ErrNotCompiled
	case stateExecuted:
		g.mu.Unlock()
		return ErrGraphExecuted
	default:
		g.mu.Unlock()
		return ErrGraphAbandoned
	}
	compiled := g.compiled
	g.state = stateExecuted
	g.mu.Unlock()

	return g.execute(ctx, compiled)
}

// Run compiles if needed, then executes.
func (g *Graph) Run(ctx context.Context) error {
	g.mu.Lock()
	needCompile := g.state == stateBuilding
	g.mu.Unlock()
	if needCompile {
		if _, err := g.Compile(); err != nil {
			return err
		}
	}
	return g.Execute(ctx)
}

// CompileStats returns the statistics of the last compile, or the zero
// value before Compile has run.
func (g *Graph) CompileStats() CompileStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.compiled == nil {
		return CompileStats{}
	}
	return g.compiled.stats
}

// ExecuteStats returns the statistics of the last execution.
func (g *Graph) ExecuteStats() ExecuteStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.execStats
}

// TransientStats returns the transient arena's counters. The arena persists
// across Reset, so footprint and peak accumulate over invocations.
func (g *Graph) TransientStats() TransientStats {
	return g.transient.stats()
}

// Reset clears the invocation for reuse: passes, views, externals, and the
// compiled schedule are dropped; pooled backing and the transient arena stay
// warm for the next invocation.
func (g *Graph) Reset() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == stateAbandoned {
		return ErrGraphAbandoned
	}

	g.releaseViews()
	for i := range g.resources {
		r := &g.resources[i]
		if r.ownership == OwnershipExternal {
			continue
		}
		g.releaseBacking(r)
	}

	g.passes = g.passes[:0]
	g.resources = g.resources[:0]
	g.views = g.views[:0]
	g.viewCache = make(map[ViewDescriptor]ViewHandle)
	g.externals = make(map[any]ResourceHandle)
	g.compiled = nil
	g.execStats = ExecuteStats{}
	g.state = stateBuilding
	return nil
}

// Abandon tears the graph down wholesale: views, transient arena, pooled
// backing, and the worker pool are all released. The graph is unusable
// afterwards. Abandon is safe to call twice.
func (g *Graph) Abandon() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == stateAbandoned {
		return
	}
	g.releaseViews()
	for i := range g.resources {
		r := &g.resources[i]
		if r.ownership == OwnershipExternal {
			continue
		}
		g.releaseBacking(r)
	}
	g.transient.destroy()
	g.pool.destroy()
	if g.workers != nil {
		g.workers.Close()
		g.workers = nil
	}
	g.state = stateAbandoned
	g.logger.Debug("framegraph: graph abandoned")
}

// workerPoolLocked returns the shared worker pool, creating it on first use.
// It returns nil when parallel recording is off. Callers hold g.mu.
func (g *Graph) workerPoolLocked() *parallel.WorkerPool {
	if !g.cfg.ParallelRecording {
		return nil
	}
	if g.workers == nil {
		g.workers = parallel.NewWorkerPool(g.cfg.Workers)
	}
	return g.workers
}

// releaseBacking returns a graph-owned resource's backing to its allocator.
// Backing exists only after Execute realized it; usage was derived then.
func (g *Graph) releaseBacking(r *resource) {
	switch {
	case r.ownership == OwnershipTransient && !r.transientFallback:
		g.transient.release(r)
	case r.texture != nil:
		g.pool.releaseTexture(r.key(r.texUsage), r.texture)
	case r.buffer != nil:
		g.pool.releaseBuffer(bufferKey{size: r.bufDesc.Size, usage: r.bufUsage}, r.buffer)
	}
	r.texture = nil
	r.buffer = nil
	r.transientFallback = false
}
