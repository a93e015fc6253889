package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is matched by every *FormatError.
	ErrFormat = errors.New("invalid template format")
	// ErrLookup is matched by every *LookupError.
	ErrLookup = errors.New("variable not found in context")
	// ErrLineTooLong reports a source line longer than Config.MaxLineBytes.
	ErrLineTooLong = errors.New("line too long")
)

// FormatError reports a directive line that could not be parsed. It is
// recoverable; the caller decides whether to skip the line or stop.
type FormatError struct {
	Line   string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %q", e.Reason, e.Line)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// LookupError reports a placeholder whose name is not bound in the Context.
// Only direct interpolation raises it, conditions inside directives never do.
type LookupError struct {
	Name string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("variable %q is not defined", e.Name)
}

func (e *LookupError) Is(target error) bool { return target == ErrLookup }
