package executor

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrInvalidExecutor    = errors.New("invalid executor")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrLowering           = errors.New("lowering failed")
)

// InvalidExecutorError reports an executor name outside the supported set.
type InvalidExecutorError struct {
	Name  string
	Valid []string
}

// Error implements the error interface.
func (e *InvalidExecutorError) Error() string {
	return fmt.Sprintf("received unexpected value for executor: %q; allowed values are: %s",
		e.Name, strings.Join(e.Valid, ", "))
}

// Is makes errors.Is(err, ErrInvalidExecutor) match.
func (e *InvalidExecutorError) Is(target error) bool {
	return target == ErrInvalidExecutor
}

// BackendUnavailableError reports a fusion request with no usable accelerator.
type BackendUnavailableError struct {
	Engine string
}

// Error implements the error interface.
func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("attempting to use the fusion executor but engine %q is not available", e.Engine)
}

// Is makes errors.Is(err, ErrBackendUnavailable) match.
func (e *BackendUnavailableError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

// LoweringError reports a graph that cannot be expressed as one fusion.
type LoweringError struct {
	Op     string // primitive or "output"
	Reason string
}

// Error implements the error interface.
func (e *LoweringError) Error() string {
	return fmt.Sprintf("cannot lower %s: %s", e.Op, e.Reason)
}

// Is makes errors.Is(err, ErrLowering) match.
func (e *LoweringError) Is(target error) bool {
	return target == ErrLowering
}
