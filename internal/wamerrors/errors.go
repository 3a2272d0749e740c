// Package wamerrors defines the error taxonomy raised by the compilation
// core: arithmetic compilation failures, register-allocation overflow, and
// the number-tower's IEEE/division corner cases, each returned to the
// caller as a *CoreError of its own Kind. No constructor here builds a
// CoreError of Kind CompilationError.
package wamerrors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind identifies which invariant of the core was violated.
type Kind string

const (
	UninstantiatedVar  Kind = "UninstantiatedVar"
	NonEvaluableFunctor Kind = "NonEvaluableFunctor"
	ExceededMaxArity   Kind = "ExceededMaxArity"
	ZeroDivisor        Kind = "ZeroDivisor"
	FloatOverflow      Kind = "FloatOverflow"
	Undefined          Kind = "Undefined"
	CompilationError   Kind = "CompilationError"
)

// Location pins an error to the clause/goal being compiled by predicate
// name, clause index and goal index; it carries no source line or column,
// since the core works off an already-parsed heap.
type Location struct {
	Predicate string
	ClauseIdx int
	GoalIdx   int
}

func (l Location) String() string {
	if l.Predicate == "" {
		return ""
	}
	return fmt.Sprintf("%s (clause %d, goal %d)", l.Predicate, l.ClauseIdx, l.GoalIdx)
}

// CoreError is the error type every compilation-core failure is raised as.
type CoreError struct {
	Kind     Kind
	Message  string
	Location Location
	Name     string // operator/functor name, for NonEvaluableFunctor
	Arity    int    // operator/functor arity, for NonEvaluableFunctor
}

func (e *CoreError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Name != "" {
		fmt.Fprintf(&sb, " (%s/%d)", e.Name, e.Arity)
	}
	if loc := e.Location.String(); loc != "" {
		sb.WriteString(" at ")
		sb.WriteString(loc)
	}
	return sb.String()
}

func NewUninstantiatedVar(loc Location) *CoreError {
	return &CoreError{Kind: UninstantiatedVar, Message: "variable used in expression with no binding", Location: loc}
}

func NewNonEvaluableFunctor(name string, arity int, loc Location) *CoreError {
	return &CoreError{
		Kind:     NonEvaluableFunctor,
		Message:  "unknown operator or non-numeric literal",
		Name:     name,
		Arity:    arity,
		Location: loc,
	}
}

func NewExceededMaxArity(reg int, loc Location) *CoreError {
	return &CoreError{
		Kind:     ExceededMaxArity,
		Message:  fmt.Sprintf("register number %d exceeds MAX_ARITY", reg),
		Location: loc,
	}
}

func NewZeroDivisor(loc Location) *CoreError {
	return &CoreError{Kind: ZeroDivisor, Message: "division by zero", Location: loc}
}

func NewFloatOverflow(loc Location) *CoreError {
	return &CoreError{Kind: FloatOverflow, Message: "floating point result is infinite", Location: loc}
}

func NewUndefined(loc Location) *CoreError {
	return &CoreError{Kind: Undefined, Message: "floating point result is NaN", Location: loc}
}

// Wrap adds clause context to any of the above (or a third-party error)
// with errors.Wrapf. The result is a pkg/errors wrapper, not a CoreError
// of Kind CompilationError; the cause chain is preserved so errors.Cause
// (and errors.Is-style unwrapping via errors.Unwrap, which
// github.com/pkg/errors supports) still reaches the original CoreError.
func Wrap(err error, clause string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "compiling %s", clause)
}

// Cause unwraps an error returned by Wrap back to the underlying CoreError, or nil
// if err does not wrap one.
func Cause(err error) *CoreError {
	for err != nil {
		if ce, ok := err.(*CoreError); ok {
			return ce
		}
		cause := errors.Cause(err)
		if cause == err {
			return nil
		}
		err = cause
	}
	return nil
}
