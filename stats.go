package framegraph

import "fmt"

// CompileStats summarizes one compiler run.
type CompileStats struct {
	// PassesDeclared is the number of passes added to the graph.
	PassesDeclared int

	// PassesKept is the number of passes that survived culling.
	PassesKept int

	// PassesCulled is the number of passes dropped for lack of a path to
	// externally visible output.
	PassesCulled int

	// Edges is the total number of producer->consumer ordering edges.
	Edges int

	// CrossPipeEdges is the number of edges crossing pipes.
	CrossPipeEdges int

	// Transitions is the number of resource state transitions compiled.
	Transitions int

	// BarrierBatches is the number of non-empty prologue/epilogue batches.
	BarrierBatches int

	// MergeGroups is the number of multi-pass hardware render passes.
	MergeGroups int

	// MergedPasses is the number of passes absorbed into merge groups.
	MergedPasses int

	// ForkBatches is the number of graphics->async fence signal points.
	ForkBatches int

	// JoinBatches is the number of async->graphics fence wait points.
	JoinBatches int
}

// String returns a human-readable summary of the compile.
func (s CompileStats) String() string {
	return fmt.Sprintf("Compile[%d passes, %d culled, %d edges, %d transitions in %d batches, %d merge groups, %d forks, %d joins]",
		s.PassesDeclared,
		s.PassesCulled,
		s.Edges,
		s.Transitions,
		s.BarrierBatches,
		s.MergeGroups,
		s.ForkBatches,
		s.JoinBatches)
}

// ExecuteStats summarizes one execution.
type ExecuteStats struct {
	// PassesExecuted is the number of pass bodies that ran.
	PassesExecuted int

	// Runs is the number of recording runs the schedule was partitioned
	// into.
	Runs int

	// Submissions is the number of queue submissions.
	Submissions int

	// FenceSignals is the number of fence values signaled.
	FenceSignals int

	// FenceWaits is the number of fence waits performed.
	FenceWaits int

	// Transitions is the number of state transitions recorded.
	Transitions int

	// TransientAcquired is the number of resources backed by the aliasing
	// allocator.
	TransientAcquired int

	// TransientFallbacks is the number of transient requests that fell
	// back to pooled allocation because the budget was exhausted.
	TransientFallbacks int

	// TransientBytes is the peak number of aliasing-arena bytes in use.
	TransientBytes uint64

	// PooledCreated is the number of backing objects newly created by the
	// pool this execution.
	PooledCreated int

	// PooledReused is the number of backing objects served from the pool's
	// free lists.
	PooledReused int
}

// String returns a human-readable summary of the execution.
func (s ExecuteStats) String() string {
	return fmt.Sprintf("Execute[%d passes in %d runs, %d submissions, %d signals, %d waits, transient %d (%d fallbacks, %d MB peak)]",
		s.PassesExecuted,
		s.Runs,
		s.Submissions,
		s.FenceSignals,
		s.FenceWaits,
		s.TransientAcquired,
		s.TransientFallbacks,
		s.TransientBytes/(1024*1024))
}
