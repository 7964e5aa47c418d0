package trace

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrInvalidArgumentType = errors.New("argument is not a tensor or a number")
	ErrContextClosed       = errors.New("trace context is closed")
)

// ArgumentTypeError reports a traced input that is neither a tensor nor a number.
type ArgumentTypeError struct {
	Index int // position among the flattened inputs
	Value any
}

// Error implements the error interface.
func (e *ArgumentTypeError) Error() string {
	return fmt.Sprintf("traced argument %d has type %T: only tensors and scalar numbers can be traced", e.Index, e.Value)
}

// Is makes errors.Is(err, ErrInvalidArgumentType) match.
func (e *ArgumentTypeError) Is(target error) bool {
	return target == ErrInvalidArgumentType
}
