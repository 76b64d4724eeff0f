package engine

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNotAdmin = errors.New("sender is not a group admin")

// Malformed or unresolvable command input. Message is shown to the sender as-is; nothing was changed.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return "invalid command input: " + e.Message
}

func inputErrorf(format string, args ...any) *InputError {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// One or more chat platform calls failed after moderation state was already committed.
//
// State is not rolled back; the platform may disagree with stored state until an admin intervenes.
type EnforcementError struct {
	Errs []error
}

func (e *EnforcementError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return "platform enforcement incomplete: " + strings.Join(msgs, "; ")
}

func (e *EnforcementError) Unwrap() []error {
	return e.Errs
}
