// Package errs defines the engine's tagged error kinds (spec.md §7):
// results the caller can switch on, never uncatchable faults.
package errs

import "fmt"

// Kind enumerates spec.md §7's error kinds.
type Kind string

const (
	KindParseError               Kind = "ParseError"
	KindRuleMalformed             Kind = "RuleMalformed"
	KindKBFull                    Kind = "KBFull"
	KindContradictionDetected     Kind = "ContradictionDetected"
	KindCycleDetected             Kind = "CycleDetected"
	KindQueryTimeout              Kind = "QueryTimeout"
	KindQueryCancelled            Kind = "QueryCancelled"
	KindInternalInvariantViolated Kind = "InternalInvariantViolated"
)

// Error is a tagged result carrying one of the Kind values above.
type Error struct {
	K       Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.K, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.K, e.Message)
}

// Kind reports the tagged error kind, matching spec.md §7's "surface as
// tagged results" requirement.
func (e *Error) Kind() string { return string(e.K) }

func (e *Error) Unwrap() error { return e.Wrapped }

func New(k Kind, msg string) *Error { return &Error{K: k, Message: msg} }

func Wrap(k Kind, msg string, err error) *Error { return &Error{K: k, Message: msg, Wrapped: err} }

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.K == k
}
