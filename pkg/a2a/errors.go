package a2a

import (
	"errors"
	"fmt"
)

// JSON-RPC and A2A error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeTaskNotFound                 = -32001
	CodeTaskNotCancelable            = -32002
	CodePushNotificationNotSupported = -32003
	CodeUnsupportedOperation         = -32004
	CodeContentTypeNotSupported      = -32005
)

// Error is the protocol error carried on the JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("a2a error %d: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("a2a error %d: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying cause that is logged but never serialized.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// NewError creates an Error with an arbitrary code.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ErrParseError indicates the request body was not valid JSON.
func ErrParseError(cause error) *Error {
	return &Error{Code: CodeParseError, Message: "parse error", cause: cause}
}

// ErrInvalidRequest indicates a structurally invalid request or payload.
func ErrInvalidRequest(detail string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: "invalid request: " + detail}
}

// ErrMethodNotFound indicates an unknown JSON-RPC method.
func ErrMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "method not found: " + method}
}

// ErrInvalidParams indicates params that failed validation or decoding.
func ErrInvalidParams(detail string) *Error {
	return &Error{Code: CodeInvalidParams, Message: "invalid params: " + detail}
}

// ErrInternal hides the cause from the wire; callers log it separately.
func ErrInternal(cause error) *Error {
	return &Error{Code: CodeInternalError, Message: "internal error", cause: cause}
}

// ErrTaskNotFound indicates the referenced task does not exist.
func ErrTaskNotFound(taskID string) *Error {
	return &Error{Code: CodeTaskNotFound, Message: "task not found: " + taskID}
}

// ErrTaskNotCancelable indicates the task is already in a terminal state.
func ErrTaskNotCancelable(taskID string) *Error {
	return &Error{Code: CodeTaskNotCancelable, Message: "task not cancelable: " + taskID}
}

// ErrPushNotificationNotSupported indicates the server has no push config store.
func ErrPushNotificationNotSupported() *Error {
	return &Error{Code: CodePushNotificationNotSupported, Message: "push notifications not supported"}
}

// ErrUnsupportedOperation indicates an operation that violates task state rules.
func ErrUnsupportedOperation(detail string) *Error {
	return &Error{Code: CodeUnsupportedOperation, Message: "unsupported operation: " + detail}
}

// ErrContentTypeNotSupported indicates an unacceptable part media type.
func ErrContentTypeNotSupported(detail string) *Error {
	return &Error{Code: CodeContentTypeNotSupported, Message: "content type not supported: " + detail}
}

// AsError extracts an *Error from an error chain, or wraps the error as internal.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return ErrInternal(err)
}

// CodeOf returns the protocol code for err, or CodeInternalError for unknown errors.
func CodeOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternalError
}
