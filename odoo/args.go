package odoo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var nullJSON = []byte("null")

// ArgsError reports an args tuple that does not have the shape its operation
// expects. The adapter answers it with CodeInvalidParams.
type ArgsError struct {
	Op    string
	Index int // -1 when the tuple as a whole is wrong
	Err   error
}

func (e *ArgsError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("odoo: %s args: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("odoo: %s args: element %d: %v", e.Op, e.Index, e.Err)
}

func (e *ArgsError) Unwrap() error {
	return e.Err
}

// decodeTuple decodes a positional array element by element into dst. The
// first required elements must be present; the remaining dst are optional.
// Null elements are rejected.
func decodeTuple(op string, data []byte, required int, dst ...any) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil || elems == nil {
		return &ArgsError{Op: op, Index: -1, Err: errors.New("args must be an array")}
	}
	if len(elems) < required || len(elems) > len(dst) {
		want := strconv.Itoa(required)
		if required != len(dst) {
			want += "-" + strconv.Itoa(len(dst))
		}
		return &ArgsError{Op: op, Index: -1, Err: fmt.Errorf("want %s elements, got %d", want, len(elems))}
	}
	for i, raw := range elems {
		if bytes.Equal(bytes.TrimSpace(raw), nullJSON) {
			return &ArgsError{Op: op, Index: i, Err: errors.New("must not be null")}
		}
		if err := json.Unmarshal(raw, dst[i]); err != nil {
			return &ArgsError{Op: op, Index: i, Err: err}
		}
	}
	return nil
}

// UID is the backend user id. It accepts a JSON number or string and
// re-encodes exactly as received.
type UID struct {
	raw json.RawMessage
}

func NewUID(n int64) UID {
	return UID{raw: strconv.AppendInt(nil, n, 10)}
}

func (u UID) Int64() (int64, error) {
	s := string(u.raw)
	if len(s) > 0 && s[0] == '"' {
		if err := json.Unmarshal(u.raw, &s); err != nil {
			return 0, err
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

func (u UID) String() string {
	return string(u.raw)
}

func (u UID) MarshalJSON() ([]byte, error) {
	if len(u.raw) == 0 {
		return []byte("0"), nil
	}
	return u.raw, nil
}

func (u *UID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("uid must be a number or a string")
	}
	switch c := data[0]; {
	case c == '"', c == '-', c >= '0' && c <= '9':
		u.raw = append(json.RawMessage(nil), data...)
		return nil
	}
	return errors.New("uid must be a number or a string")
}

// Call is the authenticated prefix shared by every object-service tuple:
// [db, uid, key, model, method].
//
// Method is forwarded as given; it is not checked against the operation
// the tuple was sent to.
type Call struct {
	DB     string
	UID    UID
	Key    string
	Model  string
	Method string
}

func (c *Call) call() *Call {
	return c
}

// objectArgs is implemented by every tuple that starts with a Call.
type objectArgs interface {
	json.Unmarshaler
	call() *Call
}

func (c *Call) targets() []any {
	return []any{&c.DB, &c.UID, &c.Key, &c.Model, &c.Method}
}

func (c Call) elems() []any {
	return []any{c.DB, c.UID, c.Key, c.Model, c.Method}
}

func values(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func ids(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}

// CreateArgs is [db, uid, key, model, "create", fieldValues].
type CreateArgs struct {
	Call
	Values map[string]any
}

func (a *CreateArgs) UnmarshalJSON(data []byte) error {
	return decodeTuple("create", data, 6, append(a.Call.targets(), &a.Values)...)
}

func (a CreateArgs) MarshalJSON() ([]byte, error) {
	return json.Marshal(append(a.Call.elems(), values(a.Values)))
}

// ReadArgs is [db, uid, key, model, "read", domainFilter, options?].
type ReadArgs struct {
	Call
	Domain  Domain
	Options *SearchOptions
}

func (a *ReadArgs) UnmarshalJSON(data []byte) error {
	return decodeTuple("read", data, 6, append(a.Call.targets(), &a.Domain, &a.Options)...)
}

func (a ReadArgs) MarshalJSON() ([]byte, error) {
	elems := append(a.Call.elems(), a.Domain)
	if a.Options != nil {
		elems = append(elems, a.Options)
	}
	return json.Marshal(elems)
}

// SearchArgs is [db, uid, key, model, "search", domainFilter].
type SearchArgs struct {
	Call
	Domain Domain
}

func (a *SearchArgs) UnmarshalJSON(data []byte) error {
	return decodeTuple("search", data, 6, append(a.Call.targets(), &a.Domain)...)
}

func (a SearchArgs) MarshalJSON() ([]byte, error) {
	return json.Marshal(append(a.Call.elems(), a.Domain))
}

// SearchReadArgs is [db, uid, key, model, "search_read", domainFilter, options?].
type SearchReadArgs struct {
	Call
	Domain  Domain
	Options *SearchOptions
}

func (a *SearchReadArgs) UnmarshalJSON(data []byte) error {
	return decodeTuple("search_read", data, 6, append(a.Call.targets(), &a.Domain, &a.Options)...)
}

func (a SearchReadArgs) MarshalJSON() ([]byte, error) {
	elems := append(a.Call.elems(), a.Domain)
	if a.Options != nil {
		elems = append(elems, a.Options)
	}
	return json.Marshal(elems)
}

// UpdateArgs is [db, uid, key, model, "write", recordIds, fieldValues].
type UpdateArgs struct {
	Call
	IDs    []int64
	Values map[string]any
}

func (a *UpdateArgs) UnmarshalJSON(data []byte) error {
	return decodeTuple("update", data, 7, append(a.Call.targets(), &a.IDs, &a.Values)...)
}

func (a UpdateArgs) MarshalJSON() ([]byte, error) {
	return json.Marshal(append(a.Call.elems(), ids(a.IDs), values(a.Values)))
}

// DeleteArgs is [db, uid, key, model, "unlink", recordIds].
type DeleteArgs struct {
	Call
	IDs []int64
}

func (a *DeleteArgs) UnmarshalJSON(data []byte) error {
	return decodeTuple("delete", data, 6, append(a.Call.targets(), &a.IDs)...)
}

func (a DeleteArgs) MarshalJSON() ([]byte, error) {
	return json.Marshal(append(a.Call.elems(), ids(a.IDs)))
}

// FieldsGetArgs is [db, uid, key, model, "fields_get", domainFilter, {attributes}?].
type FieldsGetArgs struct {
	Call
	Domain  Domain
	Options *FieldsGetOptions
}

func (a *FieldsGetArgs) UnmarshalJSON(data []byte) error {
	return decodeTuple("fields_get", data, 6, append(a.Call.targets(), &a.Domain, &a.Options)...)
}

func (a FieldsGetArgs) MarshalJSON() ([]byte, error) {
	elems := append(a.Call.elems(), a.Domain)
	if a.Options != nil {
		elems = append(elems, a.Options)
	}
	return json.Marshal(elems)
}

// AuthArgs is [db, login, password, userAgentEnv?]. The fourth element takes
// the same shapes as search options: an object or a string list. A missing
// one encodes as {}.
type AuthArgs struct {
	DB           string
	Login        string
	Password     string
	UserAgentEnv *SearchOptions
}

func (a *AuthArgs) UnmarshalJSON(data []byte) error {
	return decodeTuple("authenticate", data, 3, &a.DB, &a.Login, &a.Password, &a.UserAgentEnv)
}

func (a AuthArgs) MarshalJSON() ([]byte, error) {
	var env any = map[string]any{}
	if a.UserAgentEnv != nil {
		env = a.UserAgentEnv
	}
	return json.Marshal([]any{a.DB, a.Login, a.Password, env})
}
