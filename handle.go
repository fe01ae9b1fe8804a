package framegraph

// PassHandle is a reference to a declared pass. Handles are ordinals: they
// reflect declaration order, and the dependency relation only ever points
// from a lower handle to a higher one.
type PassHandle uint32

// ResourceHandle is a reference to a registered resource (texture or buffer).
type ResourceHandle uint32

// ViewHandle is a reference to a declared view over a resource.
type ViewHandle uint32

// InvalidHandle is the sentinel value for an invalid handle.
const InvalidHandle = ^uint32(0)

// IsValid returns true if the handle refers to a pass.
func (h PassHandle) IsValid() bool { return uint32(h) != InvalidHandle }

// IsValid returns true if the handle refers to a resource.
func (h ResourceHandle) IsValid() bool { return uint32(h) != InvalidHandle }

// IsValid returns true if the handle refers to a view.
func (h ViewHandle) IsValid() bool { return uint32(h) != InvalidHandle }
