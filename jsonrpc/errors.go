package jsonrpc

import (
	"errors"
	"fmt"
)

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeServerError is the server-defined code used for gateway policy
	// rejections such as rate limiting and missing credentials.
	CodeServerError = -32000
)

// Error is the error member of a JSON-RPC response. It implements error so
// handlers can return it directly; its code is preserved on the wire.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func withDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

func NewParseError(message string) *Error {
	return NewError(CodeParseError, withDefault(message, "Parse error"))
}

func NewInvalidRequestError(message string) *Error {
	return NewError(CodeInvalidRequest, withDefault(message, "Invalid Request"))
}

func NewMethodNotFoundError(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found", Data: method}
}

func NewInvalidParamsError(message string) *Error {
	return NewError(CodeInvalidParams, withDefault(message, "Invalid params"))
}

func NewInternalError(message string) *Error {
	return NewError(CodeInternalError, withDefault(message, "Internal error"))
}

// AsError converts any error to a JSON-RPC error. An *Error anywhere in the
// wrap chain keeps its code; other errors become CodeInternalError carrying
// the error text.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) && rpcErr != nil {
		return rpcErr
	}
	return NewInternalError(err.Error())
}

// TransportError reports that an outbound call never produced a usable
// JSON-RPC response: the connection failed, the body could not be read, or it
// was not a JSON-RPC response.
type TransportError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("jsonrpc: POST %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("jsonrpc: POST %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
