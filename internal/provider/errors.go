package provider

import (
	"errors"
	"fmt"
)

// ErrUnknownProvider means a name-keyed lookup failed. Switching to an
// unknown provider leaves the active provider unchanged.
var ErrUnknownProvider = errors.New("provider: unknown provider")

// ErrBudgetExceeded means the daily cost ceiling would be crossed; the
// upstream call is skipped entirely and the ledger stays untouched.
var ErrBudgetExceeded = errors.New("provider: daily budget exceeded")

// Error wraps an upstream model failure (transport error, timeout,
// malformed response). It is never retried here; retry policy belongs to
// the task layer.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
