package dashboard

import (
	"fmt"

	"github.com/pkg/errors"
)

// ArgumentError is returned when a caller supplies a missing or invalid
// argument. It is the only error the dashboard returns for read operations.
type ArgumentError struct {
	Argument string
	Message  string
}

func (e *ArgumentError) Error() string {
	return e.Message
}

// RequiredArgumentError returns an ArgumentError for a missing argument.
func RequiredArgumentError(argument string) error {
	return &ArgumentError{
		Argument: argument,
		Message:  fmt.Sprintf("%s is required", argument),
	}
}

// InvalidArgumentError returns an ArgumentError for an argument that could
// not be understood.
func InvalidArgumentError(argument, reason string) error {
	return &ArgumentError{
		Argument: argument,
		Message:  fmt.Sprintf("%s %s", argument, reason),
	}
}

// IsArgumentError reports whether the cause of err is an ArgumentError.
func IsArgumentError(err error) bool {
	_, ok := errors.Cause(err).(*ArgumentError)
	return ok
}

// errNoFeed is the outcome of a kind with no configured telemetry feed.
var errNoFeed = errors.New("no telemetry feed configured")
