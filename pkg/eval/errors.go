package eval

import (
	"errors"
	"fmt"

	"github.com/kmolski/acmebot/pkg/parse"
)

// CommandNotFoundError is returned when a command name does not resolve to
// any registered operation.
type CommandNotFoundError struct{ Name string }

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("command `%s` not found", e.Name)
}

// PermissionDeniedError is returned when the calling identity fails an
// operation's permission predicate.
type PermissionDeniedError struct{ Name string }

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("checks for `%s` failed", e.Name)
}

// FileNotFoundError is returned when no attachment within the scanned
// message window matches a file reference.
type FileNotFoundError struct{ Name string }

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file `%s` not found", e.Name)
}

// UserError is an error whose message is meant to be shown verbatim to the
// user who invoked the command. Operations use it to report expected
// failures; anything else is treated as an internal error by the transport.
type UserError struct{ Message string }

func (e *UserError) Error() string { return e.Message }

// Errorf returns a [UserError] with a formatted message.
func Errorf(format string, args ...any) error {
	return &UserError{fmt.Sprintf(format, args...)}
}

// IsUserError reports whether err belongs to the taxonomy of errors that are
// surfaced to the user verbatim. Everything else should be logged with full
// context and reported as a generic failure.
func IsUserError(err error) bool {
	var (
		userErr      *UserError
		notFoundErr  *CommandNotFoundError
		permErr      *PermissionDeniedError
		fileErr      *FileNotFoundError
	)
	return errors.As(err, &userErr) ||
		errors.As(err, &notFoundErr) ||
		errors.As(err, &permErr) ||
		errors.As(err, &fileErr) ||
		parse.UnpackErrors(err) != nil
}
