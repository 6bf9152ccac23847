package observer

import "strings"

// PipelineError aggregates every fatal error accumulated before the
// pipeline aborted (spec §7: "the caller receives a structured error
// list on failure").
type PipelineError struct {
	Errors []error
}

func (e *PipelineError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes the first error for errors.Is/errors.As chains.
func (e *PipelineError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[0]
}
