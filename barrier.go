package framegraph

import (
	"fmt"
	"strings"
)

// Transition is a single resource state change: the subresource range moves
// from the Before access state to the After state.
type Transition struct {
	Resource ResourceHandle
	Before   Access
	After    Access
	Range    SubresourceRange
}

// String formats the transition for logs and test failure messages.
func (t Transition) String() string {
	return fmt.Sprintf("r%d %s->%s", t.Resource, t.Before, t.After)
}

// AliasingOpKind distinguishes the two lifetime brackets of a transient
// resource.
type AliasingOpKind uint8

const (
	// AliasAcquire claims transient backing memory at first use.
	AliasAcquire AliasingOpKind = iota

	// AliasDiscard returns transient backing memory after last use.
	AliasDiscard
)

// String returns the aliasing op name.
func (k AliasingOpKind) String() string {
	switch k {
	case AliasAcquire:
		return "Acquire"
	case AliasDiscard:
		return "Discard"
	default:
		return "Unknown"
	}
}

// AliasingOp brackets a transient resource's graph-local lifetime. Ops ride
// inside ordinary barrier batches so they share the begin/end machinery of
// state transitions.
type AliasingOp struct {
	Kind     AliasingOpKind
	Resource ResourceHandle
}

// BarrierBatch is the ordered set of transitions and aliasing operations
// applied at one pass boundary. A batch may additionally carry a cross-pipe
// fence requirement: Signal signals the owning pipe's fence with SignalValue
// at the submission containing this batch, Wait blocks the pipe until the
// WaitPipe fence reaches WaitValue before that submission.
type BarrierBatch struct {
	Transitions []Transition
	Aliasing    []AliasingOp

	Signal      bool
	SignalValue uint64

	Wait      bool
	WaitPipe  Pipe
	WaitValue uint64
}

// Empty returns true if the batch carries no work and no fence requirement.
func (b *BarrierBatch) Empty() bool {
	if b == nil {
		return true
	}
	return len(b.Transitions) == 0 && len(b.Aliasing) == 0 && !b.Signal && !b.Wait
}

// String formats the batch contents for logs and test failure messages.
func (b *BarrierBatch) String() string {
	if b.Empty() {
		return "Batch[]"
	}
	var sb strings.Builder
	sb.WriteString("Batch[")
	for i, t := range b.Transitions {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t.String())
	}
	for i, a := range b.Aliasing {
		if i > 0 || len(b.Transitions) > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s(r%d)", a.Kind, a.Resource)
	}
	if b.Wait {
		if len(b.Transitions) > 0 || len(b.Aliasing) > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "wait %s=%d", b.WaitPipe, b.WaitValue)
	}
	if b.Signal {
		if len(b.Transitions) > 0 || len(b.Aliasing) > 0 || b.Wait {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "signal=%d", b.SignalValue)
	}
	sb.WriteString("]")
	return sb.String()
}
