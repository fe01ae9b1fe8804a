package framegraph

import "errors"

// Graph contract errors. These surface synchronously at the offending API
// call, never deferred to compile or execute time.
var (
	// ErrGraphCompiled is returned when passes or resources are declared
	// after Compile has run.
	ErrGraphCompiled = errors.New("framegraph: graph has already been compiled")

	// ErrGraphExecuted is returned when a graph is executed twice.
	ErrGraphExecuted = errors.New("framegraph: graph has already been executed")

	// ErrGraphAbandoned is returned when an abandoned graph is used.
	ErrGraphAbandoned = errors.New("framegraph: graph has been abandoned")

	// ErrNotCompiled is returned when Execute is called before Compile.
	ErrNotCompiled = errors.New("framegraph: graph has not been compiled")

	// ErrNilBackend is returned when a graph is created without a device backend.
	ErrNilBackend = errors.New("framegraph: device backend is nil")

	// ErrNilBody is returned when AddPass is called with a nil body.
	ErrNilBody = errors.New("framegraph: pass body is nil")

	// ErrInvalidHandle is returned when a handle does not refer to a live entry.
	ErrInvalidHandle = errors.New("framegraph: invalid handle")

	// ErrInvalidFlags is returned when the pass kind flags are missing or conflict.
	ErrInvalidFlags = errors.New("framegraph: pass flags must contain exactly one kind")

	// ErrResourceFinalized is returned when a pass declares a write on a
	// resource whose final state is already pinned (extracted, or external
	// and not marked writable).
	ErrResourceFinalized = errors.New("framegraph: resource is finalized for external use")

	// ErrAlreadyRegistered is returned when the same external resource is
	// registered twice in one graph invocation.
	ErrAlreadyRegistered = errors.New("framegraph: external resource already registered")

	// ErrNilResource is returned when RegisterExternal is called with nil.
	ErrNilResource = errors.New("framegraph: external resource is nil")

	// ErrZeroDescriptor is returned when a resource descriptor has no extent.
	ErrZeroDescriptor = errors.New("framegraph: resource descriptor has zero size")

	// ErrAlreadyExtracted is returned when Extract is called twice on a handle.
	ErrAlreadyExtracted = errors.New("framegraph: resource already extracted")

	// ErrNilOut is returned when Extract is called with a nil destination.
	ErrNilOut = errors.New("framegraph: extract destination is nil")

	// ErrNotTexture is returned when a view is declared over a buffer.
	ErrNotTexture = errors.New("framegraph: views require a texture resource")

	// ErrNoBacking is returned when a view is resolved before its resource
	// has backing.
	ErrNoBacking = errors.New("framegraph: resource has no backing")

	// ErrFenceTimeout is returned when the device does not signal a fence
	// within the configured timeout.
	ErrFenceTimeout = errors.New("framegraph: fence wait timed out")
)
