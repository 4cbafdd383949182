package compiler

import "fmt"

// CompileError means a pattern produced no usable variant. It is scoped to
// that one pattern.
type CompileError struct {
	PatternID string
	Reason    string
	Err       error
}

func (e *CompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compile %s: %s: %v", e.PatternID, e.Reason, e.Err)
	}
	return fmt.Sprintf("compile %s: %s", e.PatternID, e.Reason)
}

func (e *CompileError) Unwrap() error { return e.Err }
