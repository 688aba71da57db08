package utils

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound signals that a required external program is not on PATH.
	ErrToolNotFound = errors.New("external tool not found")
	// ErrInputNotFound signals that a capture, database or summary directory is missing.
	ErrInputNotFound = errors.New("input not found")
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// IsSetupError reports whether err is an unrecoverable setup failure (missing tool or input).
func IsSetupError(err error) bool {
	return errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrInputNotFound)
}
