package batch

import "context"

// State classifies the result of one attempt at one work item. Failure
// classification is an explicit value rather than error-type sniffing so the
// retry loop can switch over it exhaustively.
type State int

// Attempt states.
const (
	// StateDone means the item produced a result.
	StateDone State = iota
	// StateRetryable means the attempt hit a transient failure (rate limit,
	// timeout, 5xx-equivalent) and may be retried.
	StateRetryable
	// StatePermanent means the input itself is bad (schema violation,
	// logically rejected) and retrying cannot help.
	StatePermanent
)

// Outcome is the result of one attempt at one work item.
type Outcome struct {
	State  State
	Output string
	Reason string
}

// Done builds a successful outcome carrying the serialized result.
func Done(output string) Outcome {
	return Outcome{State: StateDone, Output: output}
}

// Retryable builds a transient-failure outcome.
func Retryable(reason string) Outcome {
	return Outcome{State: StateRetryable, Reason: reason}
}

// Permanent builds a permanent-failure outcome.
func Permanent(reason string) Outcome {
	return Outcome{State: StatePermanent, Reason: reason}
}

// WorkFn performs one attempt at one input against the external capability.
type WorkFn func(ctx context.Context, input string) Outcome
