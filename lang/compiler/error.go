package compiler

import (
	"fmt"
	"strings"
)

// SyntaxError is a single compile-time diagnostic, tied to the source line
// and, where available, the offending lexeme.
type SyntaxError struct {
	Line  int
	Where string // "" for a generic location, " at end", or " at 'lexeme'"
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("[line %d] Error%s: %s", e.Line, e.Where, e.Msg)
}

// Error aggregates every SyntaxError produced while compiling a single
// source: panic-mode recovery lets the compiler keep parsing past a bad
// statement so that a single Compile call can report more than one mistake
// in one pass, the same way the scanner's own multi-error reporting works
// one layer down.
type Error struct {
	Errs []*SyntaxError
}

func (e *Error) Error() string {
	var b strings.Builder
	for i, se := range e.Errs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(se.Error())
	}
	return b.String()
}

// Unwrap lets errors.Is/errors.As reach any individual SyntaxError.
func (e *Error) Unwrap() []error {
	errs := make([]error, len(e.Errs))
	for i, se := range e.Errs {
		errs[i] = se
	}
	return errs
}
