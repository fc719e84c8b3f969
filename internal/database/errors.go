package database

import (
	"errors"
	"fmt"
)

// Error codes
const (
	CodeConfig    = "config"
	CodeExecution = "execution"
	CodeExplain   = "explain"
	CodeNotFound  = "not_found"
	CodeClosed    = "closed"
)

// Sentinels matched by errors.Is against any *Error carrying the same code
var (
	ErrConfig       = &Error{Code: CodeConfig, Message: "invalid configuration"}
	ErrExecution    = &Error{Code: CodeExecution, Message: "query execution failed"}
	ErrExplain      = &Error{Code: CodeExplain, Message: "failed to explain query"}
	ErrPoolNotFound = &Error{Code: CodeNotFound, Message: "pool not found"}
	ErrPoolClosed   = &Error{Code: CodeClosed, Message: "pool is disconnected"}
)

// Error represents a database error
type Error struct {
	Code    string // Error code
	Message string // Error message
	Op      string // Operation that failed
	Err     error  // Original error if any
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the driver error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new database error
func NewError(code string, message string, op string, err error) error {
	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

func configError(op string, err error) error {
	return NewError(CodeConfig, "invalid configuration", op, err)
}

func executionError(op string, err error) error {
	return NewError(CodeExecution, "query execution failed", op, err)
}

func explainError(err error) error {
	return NewError(CodeExplain, "failed to explain query", "explain", err)
}
