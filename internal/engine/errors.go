package engine

import "errors"

// Attempt lifecycle and grading errors. Callers match them with errors.Is;
// they are usually wrapped with the offending id.
var (
	ErrNotFound          = errors.New("not found")
	ErrAttemptTerminal   = errors.New("attempt already finished")
	ErrAttemptNotActive  = errors.New("attempt is not active")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrInconsistentState = errors.New("inconsistent attempt state")
)
