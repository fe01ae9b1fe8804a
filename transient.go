package framegraph

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
)

// resourcePool recycles pooled backing across graph invocations. Backing is
// keyed by its full creation descriptor; release returns it to a free list
// instead of destroying it, and a later acquire with an identical key reuses
// it without touching the device.
//
// resourcePool is safe for concurrent use.
type resourcePool struct {
	mu       sync.Mutex
	device   backend.Device
	textures map[textureKey][]backend.Texture
	buffers  map[bufferKey][]backend.Buffer
	closed   bool
}

func newResourcePool(device backend.Device) *resourcePool {
	return &resourcePool{
		device:   device,
		textures: make(map[textureKey][]backend.Texture),
		buffers:  make(map[bufferKey][]backend.Buffer),
	}
}

// acquireTexture returns backing for the resource, reusing a free-listed
// texture with an identical key when one exists. The second result reports
// whether the backing was reused.
func (p *resourcePool) acquireTexture(r *resource, usage gputypes.TextureUsage) (backend.Texture, bool, error) {
	key := r.key(usage)

	p.mu.Lock()
	if free := p.textures[key]; len(free) > 0 {
		tex := free[len(free)-1]
		p.textures[key] = free[:len(free)-1]
		p.mu.Unlock()
		return tex, true, nil
	}
	p.mu.Unlock()

	desc := r.backendTextureDescriptor(usage)
	tex, err := p.device.CreateTexture(&desc)
	if err != nil {
		return nil, false, fmt.Errorf("framegraph: create texture %q: %w", r.name, err)
	}
	return tex, false, nil
}

// acquireBuffer is the buffer counterpart of acquireTexture.
func (p *resourcePool) acquireBuffer(r *resource, usage gputypes.BufferUsage) (backend.Buffer, bool, error) {
	key := bufferKey{size: r.bufDesc.Size, usage: usage}

	p.mu.Lock()
	if free := p.buffers[key]; len(free) > 0 {
		buf := free[len(free)-1]
		p.buffers[key] = free[:len(free)-1]
		p.mu.Unlock()
		return buf, true, nil
	}
	p.mu.Unlock()

	buf, err := p.device.CreateBuffer(&backend.BufferDescriptor{
		Label: r.name,
		Size:  r.bufDesc.Size,
		Usage: usage,
	})
	if err != nil {
		return nil, false, fmt.Errorf("framegraph: create buffer %q: %w", r.name, err)
	}
	return buf, false, nil
}

// releaseTexture returns backing to the free list. After destroy the
// texture is no longer managed and is destroyed directly.
func (p *resourcePool) releaseTexture(key textureKey, tex backend.Texture) {
	if tex == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.device.DestroyTexture(tex)
		return
	}
	p.textures[key] = append(p.textures[key], tex)
	p.mu.Unlock()
}

func (p *resourcePool) releaseBuffer(key bufferKey, buf backend.Buffer) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.device.DestroyBuffer(buf)
		return
	}
	p.buffers[key] = append(p.buffers[key], buf)
	p.mu.Unlock()
}

// destroy releases all free-listed backing. Checked-out backing must be
// released first; the graph does this before tearing the pool down.
func (p *resourcePool) destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	for _, free := range p.textures {
		for _, tex := range free {
			p.device.DestroyTexture(tex)
		}
	}
	for _, free := range p.buffers {
		for _, buf := range free {
			p.device.DestroyBuffer(buf)
		}
	}
	p.textures = nil
	p.buffers = nil
	p.closed = true
}

// TransientStats describes the transient arena's footprint.
type TransientStats struct {
	// BudgetBytes is the arena budget in bytes.
	BudgetBytes uint64

	// FootprintBytes is the memory held by all arena blocks, free or live.
	FootprintBytes uint64

	// PeakBytes is the largest footprint the arena ever reached.
	PeakBytes uint64

	// Blocks is the number of arena blocks.
	Blocks int

	// Acquired counts transient acquisitions served by the arena.
	Acquired int

	// Fallbacks counts acquisitions that fell back to pooled backing
	// because the budget was exhausted.
	Fallbacks int
}

// String returns a human-readable summary of the arena.
func (s TransientStats) String() string {
	return fmt.Sprintf("Transient[%d/%d MB, peak %d MB, %d blocks, %d acquired, %d fallbacks]",
		s.FootprintBytes/(1024*1024),
		s.BudgetBytes/(1024*1024),
		s.PeakBytes/(1024*1024),
		s.Blocks,
		s.Acquired,
		s.Fallbacks)
}

// transientBlock is one aliasable unit of arena memory. A block is created
// for the first transient that needs its key and reused by every later
// transient with the same key whose lifetime does not overlap.
type transientBlock struct {
	texKey  textureKey
	bufKey  bufferKey
	kind    resourceKind
	texture backend.Texture
	buffer  backend.Buffer
	size    uint64
	free    bool
}

// transientAllocator backs transient resources from a budgeted arena.
// Lifetimes come from the compiled schedule's aliasing ops: an acquire at
// the first user and a discard at the last let non-overlapping transients
// share one block. Exhaustion is not an error; the caller falls back to
// pooled backing.
//
// transientAllocator is safe for concurrent use.
type transientAllocator struct {
	mu          sync.Mutex
	device      backend.Device
	budgetBytes uint64
	usedBytes   uint64
	peakBytes   uint64
	blocks      []*transientBlock
	assigned    map[*resource]*transientBlock
	acquired    int
	fallbacks   int
	closed      bool
}

func newTransientAllocator(device backend.Device, budgetBytes uint64) *transientAllocator {
	return &transientAllocator{
		device:      device,
		budgetBytes: budgetBytes,
		assigned:    make(map[*resource]*transientBlock),
	}
}

// acquireTexture assigns arena backing to the resource. It returns ok=false
// with a nil error when the budget cannot cover a new block; creation
// failures are real errors.
func (a *transientAllocator) acquireTexture(r *resource, usage gputypes.TextureUsage) (backend.Texture, bool, error) {
	key := r.key(usage)

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, b := range a.blocks {
		if b.free && b.kind == kindTexture && b.texKey == key {
			b.free = false
			a.assigned[r] = b
			a.acquired++
			return b.texture, true, nil
		}
	}

	size := r.sizeBytes()
	if a.usedBytes+size > a.budgetBytes {
		a.fallbacks++
		return nil, false, nil
	}

	desc := r.backendTextureDescriptor(usage)
	tex, err := a.device.CreateTexture(&desc)
	if err != nil {
		return nil, false, fmt.Errorf("framegraph: create transient texture %q: %w", r.name, err)
	}
	b := &transientBlock{texKey: key, kind: kindTexture, texture: tex, size: size}
	a.blocks = append(a.blocks, b)
	a.usedBytes += size
	if a.usedBytes > a.peakBytes {
		a.peakBytes = a.usedBytes
	}
	a.assigned[r] = b
	a.acquired++
	return tex, true, nil
}

// acquireBuffer is the buffer counterpart of acquireTexture.
func (a *transientAllocator) acquireBuffer(r *resource, usage gputypes.BufferUsage) (backend.Buffer, bool, error) {
	key := bufferKey{size: r.bufDesc.Size, usage: usage}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, b := range a.blocks {
		if b.free && b.kind == kindBuffer && b.bufKey == key {
			b.free = false
			a.assigned[r] = b
			a.acquired++
			return b.buffer, true, nil
		}
	}

	size := r.bufDesc.Size
	if a.usedBytes+size > a.budgetBytes {
		a.fallbacks++
		return nil, false, nil
	}

	buf, err := a.device.CreateBuffer(&backend.BufferDescriptor{
		Label: r.name,
		Size:  r.bufDesc.Size,
		Usage: key.usage,
	})
	if err != nil {
		return nil, false, fmt.Errorf("framegraph: create transient buffer %q: %w", r.name, err)
	}
	b := &transientBlock{bufKey: key, kind: kindBuffer, buffer: buf, size: size}
	a.blocks = append(a.blocks, b)
	a.usedBytes += size
	if a.usedBytes > a.peakBytes {
		a.peakBytes = a.usedBytes
	}
	a.assigned[r] = b
	a.acquired++
	return buf, true, nil
}

// release returns the resource's block to the arena. Releasing a resource
// without an assignment is a no-op, so a discard followed by a graph Reset
// stays safe.
func (a *transientAllocator) release(r *resource) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.assigned[r]
	if b == nil {
		return
	}
	delete(a.assigned, r)
	b.free = true
}

// stats returns a snapshot of the arena counters.
func (a *transientAllocator) stats() TransientStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return TransientStats{
		BudgetBytes:    a.budgetBytes,
		FootprintBytes: a.usedBytes,
		PeakBytes:      a.peakBytes,
		Blocks:         len(a.blocks),
		Acquired:       a.acquired,
		Fallbacks:      a.fallbacks,
	}
}

// destroy releases every arena block. The allocator is unusable afterwards.
func (a *transientAllocator) destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	for _, b := range a.blocks {
		switch b.kind {
		case kindTexture:
			a.device.DestroyTexture(b.texture)
		case kindBuffer:
			a.device.DestroyBuffer(b.buffer)
		}
	}
	a.blocks = nil
	a.assigned = nil
	a.usedBytes = 0
	a.closed = true
}
