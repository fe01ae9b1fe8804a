package framegraph

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
)

// ViewDescriptor selects a subresource range of a texture resource and how
// it is interpreted. Zero-valued Format and Dimension inherit from the
// texture. Declaring the same descriptor twice yields the same handle.
type ViewDescriptor struct {
	Resource  ResourceHandle
	Range     SubresourceRange
	ReadOnly  bool
	Format    gputypes.TextureFormat
	Dimension gputypes.TextureViewDimension
}

// view is a registry entry. The backing view is created lazily on first
// resolution and memoized for the rest of the invocation.
type view struct {
	desc     ViewDescriptor
	resolved bool
	backing  backend.TextureView
	err      error
}

// View declares a view over a texture resource and returns its handle.
// Declaration is idempotent: equal descriptors share one handle. No backing
// view is created until a pass body resolves it during execution.
func (g *Graph) View(desc ViewDescriptor) (ViewHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.buildable(); err != nil {
		return ViewHandle(InvalidHandle), err
	}
	r := g.resourceAt(desc.Resource)
	if r == nil {
		return ViewHandle(InvalidHandle), fmt.Errorf("framegraph: view: %w", ErrInvalidHandle)
	}
	if r.kind != kindTexture {
		return ViewHandle(InvalidHandle), fmt.Errorf("framegraph: view over %q: %w", r.name, ErrNotTexture)
	}
	if h, ok := g.viewCache[desc]; ok {
		return h, nil
	}
	h := ViewHandle(len(g.views))
	g.views = append(g.views, view{desc: desc})
	g.viewCache[desc] = h
	return h, nil
}

// viewAt returns the view entry, or nil for an invalid handle.
func (g *Graph) viewAt(h ViewHandle) *view {
	if !h.IsValid() || int(h) >= len(g.views) {
		return nil
	}
	return &g.views[h]
}

// resolveView creates the backing view on first use. Safe for concurrent
// use by parallel recording tasks.
func (g *Graph) resolveView(h ViewHandle) (backend.TextureView, error) {
	g.viewMu.Lock()
	defer g.viewMu.Unlock()

	v := g.viewAt(h)
	if v == nil {
		return nil, fmt.Errorf("framegraph: resolve view: %w", ErrInvalidHandle)
	}
	if v.resolved {
		return v.backing, v.err
	}
	r := g.resourceAt(v.desc.Resource)
	if r == nil || r.texture == nil {
		v.resolved = true
		v.err = fmt.Errorf("framegraph: resolve view of %q: %w", g.resourceName(v.desc.Resource), ErrNoBacking)
		return nil, v.err
	}
	backing, err := g.device.CreateTextureView(r.texture, &backend.TextureViewDescriptor{
		Label:     r.name,
		Format:    v.desc.Format,
		Dimension: v.desc.Dimension,
		Range:     v.desc.Range,
	})
	v.resolved = true
	if err != nil {
		v.err = fmt.Errorf("framegraph: resolve view of %q: %w", r.name, err)
		return nil, v.err
	}
	v.backing = backing
	return backing, nil
}

// HasBackingResource returns true once a resource has realized backing, and
// always for external resources.
func (g *Graph) HasBackingResource(h ResourceHandle) bool {
	r := g.resourceAt(h)
	if r == nil {
		return false
	}
	return r.texture != nil || r.buffer != nil
}

// releaseViews destroys every backing view created this invocation and
// clears the memoized results.
func (g *Graph) releaseViews() {
	g.viewMu.Lock()
	defer g.viewMu.Unlock()
	for i := range g.views {
		v := &g.views[i]
		if v.backing != nil {
			g.device.DestroyTextureView(v.backing)
		}
		v.backing = nil
		v.err = nil
		v.resolved = false
	}
}
