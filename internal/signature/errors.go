package signature

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrMissingParameter = errors.New("missing required parameter")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// MissingParameterError reports a required parameter that was neither passed nor defaulted.
type MissingParameterError struct {
	Param string
	Kind  Kind
}

// Error implements the error interface.
func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing required %s parameter %q", e.Kind, e.Param)
}

// Is makes errors.Is(err, ErrMissingParameter) match.
func (e *MissingParameterError) Is(target error) bool {
	return target == ErrMissingParameter
}

// ArgumentError reports a call that cannot be matched to the signature at all.
type ArgumentError struct {
	Param  string // empty when the problem is not tied to one parameter
	Reason string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %q", e.Reason, e.Param)
	}
	return e.Reason
}

// Is makes errors.Is(err, ErrInvalidArguments) match.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArguments
}
