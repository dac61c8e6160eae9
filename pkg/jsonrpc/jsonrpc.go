// Package jsonrpc holds the JSON-RPC 2.0 envelope types shared by the
// server binding and the client.
package jsonrpc

import (
	"encoding/json"
)

// Version is the only protocol version accepted.
const Version = "2.0"

// Request is a JSON-RPC request envelope. ID is kept raw so string and
// numeric identifiers round-trip unchanged.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Validate checks the envelope fields required by the 2.0 spec.
func (r *Request) Validate() error {
	if r.JSONRPC != Version {
		return ErrInvalidVersion
	}
	if r.Method == "" {
		return ErrMissingMethod
	}
	return nil
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Response is a JSON-RPC response envelope. Exactly one of Result and Err
// is populated.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Err     *Error          `json:"error,omitempty"`
}

// NewResponse builds a success response, serializing result.
func NewResponse(id json.RawMessage, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Err:     &Error{Code: code, Message: message, Data: data},
	}
}

// Envelope validation errors.
var (
	ErrInvalidVersion = &Error{Code: -32600, Message: "invalid request: jsonrpc must be \"2.0\""}
	ErrMissingMethod  = &Error{Code: -32600, Message: "invalid request: missing method"}
)
