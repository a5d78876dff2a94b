package endpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// DefaultBodyLimit bounds how much of a request body Unmarshal reads when the
// field carries no maxLength tag.
var DefaultBodyLimit int64 = 4 << 20

// Unmarshal populates dst (a non-nil pointer to a struct, or to a pointer to a
// struct) from r.
//
// Supported struct tags:
//   - `body:""` reads the whole body into a []byte or string field, or decodes
//     it as JSON into any other field type. `body:",json"` forces JSON.
//   - `header:"Name"` reads a header (all values for a []string field).
//   - `maxLength:"n"` on a body field caps the body at n bytes (0 for no cap).
//
// An empty tag name defaults to the lowercased field name. Missing values
// leave the field unchanged. Scalar fields accept string, bool, int and uint
// kinds.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}
	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct"))
	}

	bodyRead := false
	t := root.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := root.Field(i)

		if _, flags, ok := lookupTag(sf, "body"); ok {
			if bodyRead {
				return Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: more than one body field (%s)", sf.Name))
			}
			bodyRead = true
			if err := decodeBody(r, sf, fv, flags); err != nil {
				return err
			}
			continue
		}
		if name, _, ok := lookupTag(sf, "header"); ok {
			values := r.Header.Values(name)
			if err := setValues(fv, values); err != nil {
				return Error(http.StatusBadRequest, "invalid header "+name, err)
			}
		}
	}
	return nil
}

// lookupTag returns the parameter name and flags of a source tag. ok is false
// when the tag is absent or "-".
func lookupTag(sf reflect.StructField, source string) (name string, flags []string, ok bool) {
	tag, present := sf.Tag.Lookup(source)
	if !present || tag == "-" {
		return "", nil, false
	}
	parts := strings.Split(tag, ",")
	name = strings.TrimSpace(parts[0])
	if name == "" {
		name = strings.ToLower(sf.Name)
	}
	return name, parts[1:], true
}

func decodeBody(r *http.Request, sf reflect.StructField, fv reflect.Value, flags []string) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	limit := DefaultBodyLimit
	if tag, ok := sf.Tag.Lookup("maxLength"); ok && strings.TrimSpace(tag) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(tag), 10, 64)
		if err != nil || n < 0 {
			return Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: bad maxLength on %s", sf.Name))
		}
		limit = n
	}

	var reader io.Reader = r.Body
	if limit > 0 {
		reader = io.LimitReader(r.Body, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return Error(http.StatusBadRequest, "failed to read body", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return Error(http.StatusRequestEntityTooLarge, "", nil)
	}

	asJSON := false
	for _, f := range flags {
		if strings.TrimSpace(f) == "json" {
			asJSON = true
		}
	}
	if !asJSON {
		switch {
		case fv.Kind() == reflect.String:
			fv.SetString(string(data))
			return nil
		case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.Uint8:
			fv.SetBytes(data)
			return nil
		}
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, fv.Addr().Interface()); err != nil {
		return Error(http.StatusBadRequest, "invalid JSON body", err)
	}
	return nil
}

func setValues(fv reflect.Value, values []string) error {
	if len(values) == 0 {
		return nil
	}
	if fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.String {
		fv.Set(reflect.ValueOf(append([]string(nil), values...)).Convert(fv.Type()))
		return nil
	}
	return setScalar(fv, values[0])
}

func setScalar(fv reflect.Value, s string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetUint(n)
	default:
		return fmt.Errorf("unsupported field kind %s", fv.Kind())
	}
	return nil
}
