package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

const Version = "2.0"

var nullJSON = []byte("null")

// ID is a request identifier kept as raw JSON so it is echoed exactly as the
// caller sent it. The zero ID is "absent".
type ID struct {
	raw json.RawMessage
}

// NullID is an explicit JSON null id.
var NullID = ID{raw: json.RawMessage("null")}

func NumberID(n int64) ID {
	return ID{raw: strconv.AppendInt(nil, n, 10)}
}

func StringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID{raw: b}
}

// IsZero reports whether the id was absent.
func (id ID) IsZero() bool {
	return len(id.raw) == 0
}

// IsNull reports whether the id was absent or null.
func (id ID) IsNull() bool {
	return len(id.raw) == 0 || bytes.Equal(id.raw, nullJSON)
}

// Valid reports whether the id is absent, null, a string or a number.
func (id ID) Valid() bool {
	if len(id.raw) == 0 {
		return true
	}
	switch c := id.raw[0]; {
	case c == '"', c == 'n', c == '-':
		return true
	case c >= '0' && c <= '9':
		return true
	}
	return false
}

// Raw returns the id's JSON encoding; null when absent.
func (id ID) Raw() json.RawMessage {
	if len(id.raw) == 0 {
		return json.RawMessage(nullJSON)
	}
	return id.raw
}

func (id ID) Equal(other ID) bool {
	return bytes.Equal(id.Raw(), other.Raw())
}

func (id ID) String() string {
	return string(id.Raw())
}

func (id ID) MarshalJSON() ([]byte, error) {
	return id.Raw(), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	id.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

// Request is a JSON-RPC request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      ID              `json:"id,omitzero"`
}

// NewRequest builds a request, encoding params (nil for none).
func NewRequest(method string, params any, id ID) (*Request, error) {
	req := &Request{JSONRPC: Version, Method: method, ID: id}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	return req, nil
}

// IsNotification reports whether the caller expects no response.
func (r *Request) IsNotification() bool {
	return r.ID.IsNull()
}

// validate checks the envelope shape. Any failure is CodeInvalidRequest.
func (r *Request) validate() *Error {
	if r.JSONRPC != Version {
		return NewInvalidRequestError(`jsonrpc must be "2.0"`)
	}
	if r.Method == "" {
		return NewInvalidRequestError("method must be a non-empty string")
	}
	if p := bytes.TrimSpace(r.Params); len(p) > 0 && !bytes.Equal(p, nullJSON) && p[0] != '{' && p[0] != '[' {
		return NewInvalidRequestError("params must be an object or an array")
	}
	if !r.ID.Valid() {
		return NewInvalidRequestError("id must be a string, a number or null")
	}
	return nil
}

// wireRequest decodes loosely so that type mismatches are reported as invalid
// requests rather than parse errors.
type wireRequest struct {
	JSONRPC json.RawMessage `json:"jsonrpc"`
	Method  json.RawMessage `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      ID              `json:"id"`
}

// parseRequest decodes one syntactically valid JSON value into a request.
func parseRequest(raw json.RawMessage) (*Request, *Error) {
	var w wireRequest
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, NewInvalidRequestError("request must be an object")
	}
	req := &Request{Params: w.Params, ID: w.ID}
	if len(w.JSONRPC) > 0 {
		if err := json.Unmarshal(w.JSONRPC, &req.JSONRPC); err != nil {
			return nil, NewInvalidRequestError(`jsonrpc must be "2.0"`)
		}
	}
	if len(w.Method) > 0 {
		if err := json.Unmarshal(w.Method, &req.Method); err != nil {
			return nil, NewInvalidRequestError("method must be a non-empty string")
		}
	}
	if rpcErr := req.validate(); rpcErr != nil {
		return nil, rpcErr
	}
	return req, nil
}

// Response is a JSON-RPC response. Exactly one of Result and Error is
// meaningful: when Error is nil the response is a success and Result is
// emitted even when nil.
//
// Decoded responses carry Result as a json.RawMessage.
type Response struct {
	JSONRPC string
	Result  any
	Error   *Error
	ID      ID
}

// NewErrorResponse builds an error response for id.
func NewErrorResponse(id ID, err *Error) *Response {
	return &Response{JSONRPC: Version, Error: err, ID: id}
}

// NewResultResponse builds a success response for id.
func NewResultResponse(id ID, result any) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: id}
}

// DecodeResult decodes a success result into v. It returns the response's
// *Error when the call failed.
func (r *Response) DecodeResult(v any) error {
	if r.Error != nil {
		return r.Error
	}
	raw, ok := r.Result.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(r.Result); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, v)
}

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      ID              `json:"id"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	w := wireResponse{JSONRPC: r.JSONRPC, Error: r.Error, ID: r.ID}
	if w.JSONRPC == "" {
		w.JSONRPC = Version
	}
	if r.Error == nil {
		raw, err := json.Marshal(r.Result)
		if err != nil {
			return nil, err
		}
		w.Result = raw
	}
	return json.Marshal(w)
}

var errNotResponse = errors.New("jsonrpc: message has neither result nor error")

func (r *Response) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	result, hasResult := fields["result"]
	if w.Error == nil && !hasResult {
		return errNotResponse
	}
	*r = Response{JSONRPC: w.JSONRPC, Error: w.Error, ID: w.ID}
	if w.Error == nil {
		r.Result = append(json.RawMessage(nil), result...)
	}
	return nil
}

// Reply is what the dispatch core produces for one inbound message: a single
// response, a batch of responses, or nothing.
type Reply struct {
	single *Response
	batch  []*Response
}

func (r Reply) Empty() bool {
	return r.single == nil && len(r.batch) == 0
}

func (r Reply) IsBatch() bool {
	return r.batch != nil
}

func (r Reply) Single() *Response {
	return r.single
}

func (r Reply) Batch() []*Response {
	return r.batch
}

func (r Reply) MarshalJSON() ([]byte, error) {
	switch {
	case r.single != nil:
		return json.Marshal(r.single)
	case len(r.batch) > 0:
		return json.Marshal(r.batch)
	}
	return nullJSON, nil
}
