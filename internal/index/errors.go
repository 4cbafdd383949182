package index

import "fmt"

// BuildError means a rebuild failed as a whole; the previously active index
// stays in place.
type BuildError struct {
	Stage string
	Err   error
}

func (e *BuildError) Error() string { return fmt.Sprintf("index build: %s: %v", e.Stage, e.Err) }
func (e *BuildError) Unwrap() error { return e.Err }
