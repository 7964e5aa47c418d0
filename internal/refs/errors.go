package refs

import (
	"errors"
	"fmt"
)

// ErrUnsupportedOperation is matched by *UnsupportedOperationError.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// UnsupportedOperationError reports an operation with no reference decomposition.
type UnsupportedOperationError struct {
	Op string
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %q: no reference decomposition", e.Op)
}

// Is makes errors.Is(err, ErrUnsupportedOperation) match.
func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}
