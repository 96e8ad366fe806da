package engine

import "errors"

// Outcome classifies one invocation attempt. It is computed right after the
// attempt returns, consumed once by the orchestrator, then discarded.
type Outcome int

const (
	// OutcomeSuccess means the engine ran and reported a usable result.
	OutcomeSuccess Outcome = iota
	// OutcomeSoftFailure means the engine completed but reported failure.
	OutcomeSoftFailure
	// OutcomeTimeout means the deadline elapsed before the engine returned.
	OutcomeTimeout
	// OutcomeHardError means the engine errored before completing.
	OutcomeHardError
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSoftFailure:
		return "soft_failure"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeHardError:
		return "hard_error"
	default:
		return "unknown"
	}
}

// TriggersFallback reports whether this outcome warrants trying the next
// engine in the cascade. Success never does; everything else always does.
func (o Outcome) TriggersFallback() bool {
	return o != OutcomeSuccess
}

// Classify maps a raw invocation result to an outcome.
func Classify(res *Result, err error) Outcome {
	switch {
	case errors.Is(err, ErrDeadlineExceeded):
		return OutcomeTimeout
	case err != nil:
		return OutcomeHardError
	case res != nil && res.Success:
		return OutcomeSuccess
	default:
		return OutcomeSoftFailure
	}
}
