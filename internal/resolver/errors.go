package resolver

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes of program management, scheduling,
// and execution. All are caught at operation boundaries and converted to a
// nil result plus a recorded last-error string; none escape to callers of
// the admin surface.
var (
	ErrInvalidProgram     = errors.New("program does not contain a resolver entry point")
	ErrStorage            = errors.New("program storage failure")
	ErrNotFound           = errors.New("resolver program not installed")
	ErrRuntimeUnavailable = errors.New("resolver runtime not available")
	ErrInvalidSchedule    = errors.New("invalid refresh interval")
	ErrProgramMissing     = errors.New("resolver program missing")
	ErrOutputMissing      = errors.New("resolver program produced no output artifact")
)

// ParseError reports an output artifact that was present but not valid
// JSON. Raw retains the artifact content for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse resolver output: %v (raw: %.200s)", e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProcessError reports a resolver invocation that failed to spawn or
// exited non-zero. Stderr carries the program's own diagnostics.
type ProcessError struct {
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("resolver process failed: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("resolver process failed: %v", e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }
