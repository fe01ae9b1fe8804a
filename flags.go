package framegraph

import "strings"

// PassFlags classify a pass and tune how the compiler treats it.
// Flags combine with bitwise OR; exactly one of the kind flags
// (Raster, Compute, AsyncCompute, Copy) should be set.
type PassFlags uint32

const (
	// PassRaster marks a pass that draws inside a hardware render pass.
	PassRaster PassFlags = 1 << iota

	// PassCompute marks a compute pass on the graphics pipe.
	PassCompute

	// PassAsyncCompute marks a compute pass scheduled on the async pipe.
	PassAsyncCompute

	// PassCopy marks a transfer-only pass.
	PassCopy

	// PassSkipRenderPass suppresses render-pass open/close around a raster
	// pass; the body manages its own attachment scope.
	PassSkipRenderPass

	// PassNeverCull pins the pass into the compiled graph even when no
	// externally visible output depends on it.
	PassNeverCull

	// PassNeverMerge excludes the pass from render-pass merging.
	PassNeverMerge
)

// Has returns true if all bits of flag are set.
func (f PassFlags) Has(flag PassFlags) bool { return f&flag == flag }

// String returns a "|"-joined list of set flag names.
func (f PassFlags) String() string {
	if f == 0 {
		return "None"
	}
	names := make([]string, 0, 4)
	for _, e := range []struct {
		bit  PassFlags
		name string
	}{
		{PassRaster, "Raster"},
		{PassCompute, "Compute"},
		{PassAsyncCompute, "AsyncCompute"},
		{PassCopy, "Copy"},
		{PassSkipRenderPass, "SkipRenderPass"},
		{PassNeverCull, "NeverCull"},
		{PassNeverMerge, "NeverMerge"},
	} {
		if f.Has(e.bit) {
			names = append(names, e.name)
		}
	}
	return strings.Join(names, "|")
}

// Pipe identifies the hardware queue a pass executes on.
type Pipe uint8

const (
	// PipeGraphics is the primary graphics/compute queue.
	PipeGraphics Pipe = iota

	// PipeAsyncCompute is the asynchronous compute queue.
	PipeAsyncCompute

	pipeCount
)

// String returns the pipe name.
func (p Pipe) String() string {
	switch p {
	case PipeGraphics:
		return "Graphics"
	case PipeAsyncCompute:
		return "AsyncCompute"
	default:
		return "Unknown"
	}
}

// pipe derives the execution pipe from the pass kind flags.
func (f PassFlags) pipe() Pipe {
	if f.Has(PassAsyncCompute) {
		return PipeAsyncCompute
	}
	return PipeGraphics
}
