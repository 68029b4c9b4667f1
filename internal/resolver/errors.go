package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// Recoverable input errors. The resolver re-prompts on these and never
// returns them.
var (
	ErrInvalidNumber  = errors.New("not a valid number")
	ErrInvalidBoolean = errors.New("answer yes or no")
	ErrNotAnOption    = errors.New("not one of the listed options")
)

// ErrNoOptions means a dynamic enum command printed nothing usable.
var ErrNoOptions = errors.New("command produced no options")

// Recoverable reports whether err is an input error that warrants asking
// again rather than failing the session.
func Recoverable(err error) bool {
	return errors.Is(err, ErrInvalidNumber) ||
		errors.Is(err, ErrInvalidBoolean) ||
		errors.Is(err, ErrNotAnOption)
}

// EnumCommandError is a dynamic enum command that could not produce an
// option set: spawn failure, timeout, non-zero exit or empty output.
type EnumCommandError struct {
	Argument string
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *EnumCommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "options for %q: ", e.Argument)
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		fmt.Fprintf(&b, "command exited with status %d", e.ExitCode)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, ": %s", stderr)
	}
	return b.String()
}

func (e *EnumCommandError) Unwrap() error { return e.Err }

// CancelledError is a prompt the user abandoned.
type CancelledError struct {
	Argument string
	Err      error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("resolution cancelled at %q", e.Argument)
}

func (e *CancelledError) Unwrap() error { return e.Err }

// StepError locates a fatal error at a specific argument.
type StepError struct {
	Index    int
	Argument string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("argument %d (%s): %v", e.Index, e.Argument, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
