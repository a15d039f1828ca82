package flow

import (
	"errors"
	"fmt"
)

// Error represents a failure to resolve, initialise or run a flow.
//
// Flow errors are never retried. The caller decides whether the failure
// is fatal; the test harness treats every one as fatal to the test body.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Flow is the name of the flow involved.
	Flow string

	// Message is a human-readable description.
	Message string

	// Err is the underlying fault, if any.
	Err error
}

// ErrorCode categorizes flow errors.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates no flow of that name is registered.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeInitialization indicates a flow's definition is malformed.
	ErrCodeInitialization ErrorCode = "INITIALIZATION"

	// ErrCodeExecution indicates a flow invocation faulted.
	ErrCodeExecution ErrorCode = "FLOW_EXECUTION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Flow != "" {
		msg = fmt.Sprintf("%s (flow=%s)", msg, e.Flow)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying fault.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates an Error for an unknown or duplicate flow.
func NewConfigurationError(name, message string) *Error {
	return &Error{Code: ErrCodeConfiguration, Flow: name, Message: message}
}

// NewInitializationError creates an Error for a flow that cannot be prepared.
func NewInitializationError(name string, err error) *Error {
	return &Error{Code: ErrCodeInitialization, Flow: name, Message: "flow initialisation failed", Err: err}
}

// NewExecutionError wraps a fault raised while a flow was processing an event.
func NewExecutionError(name string, err error) *Error {
	return &Error{Code: ErrCodeExecution, Flow: name, Message: "flow execution failed", Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// IsConfigurationError returns true if err is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigurationError(err error) bool {
	return hasCode(err, ErrCodeConfiguration)
}

// IsInitializationError returns true if err is an initialisation error.
func IsInitializationError(err error) bool {
	return hasCode(err, ErrCodeInitialization)
}

// IsExecutionError returns true if err is a flow execution error.
func IsExecutionError(err error) bool {
	return hasCode(err, ErrCodeExecution)
}
