package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("order not found")
	ErrNoFields             = errors.New("no updatable fields supplied")
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	ErrProductNotFound      = errors.New("product not found")
)

// ValidationError reports input the caller has to fix.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func newValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

// PersistenceError wraps a storage failure. Callers may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
