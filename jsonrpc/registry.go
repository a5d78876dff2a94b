package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"strings"
)

// Method is a registered handler. It is either a MethodFunc or an
// AdvancedMethodFunc.
type Method interface {
	isMethod()
}

// MethodFunc receives the raw params and returns a plain result. The dispatch
// core wraps the result (or error) into a response envelope.
type MethodFunc func(ctx context.Context, params json.RawMessage) (any, error)

// AdvancedMethodFunc receives the whole request and returns the whole
// response envelope, which is passed through untouched.
type AdvancedMethodFunc func(ctx context.Context, req *Request) (*Response, error)

func (MethodFunc) isMethod()         {}
func (AdvancedMethodFunc) isMethod() {}

// Func adapts a typed function to a MethodFunc. Params are decoded into P
// directly; failing that, a one-element positional array is unwrapped. Absent
// or null params leave P at its zero value.
func Func[P, R any](fn func(ctx context.Context, params P) (R, error)) MethodFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params P
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && !bytes.Equal(raw, nullJSON) {
			if err := json.Unmarshal(raw, &params); err != nil {
				var list []json.RawMessage
				if json.Unmarshal(raw, &list) != nil || len(list) != 1 {
					return nil, NewInvalidParamsError(err.Error())
				}
				if err := json.Unmarshal(list[0], &params); err != nil {
					return nil, NewInvalidParamsError(err.Error())
				}
			}
		}
		return fn(ctx, params)
	}
}

// rpcMethod holds reflection data for a method registered with Register.
type rpcMethod struct {
	receiver    reflect.Value
	method      reflect.Method
	paramType   reflect.Type
	paramNames  []string // JSON names for named params
	paramFields []int    // field indices for positional params
	methodName  string
}

func (m *rpcMethod) call(ctx context.Context, params json.RawMessage) (any, error) {
	param := reflect.New(m.paramType)
	params = bytes.TrimSpace(params)
	if len(params) == 0 {
		params = json.RawMessage(nullJSON)
	}

	var paramList []json.RawMessage
	if err := json.Unmarshal(params, &paramList); err == nil && paramList != nil {
		// Positional params map to struct fields by declaration order.
		if len(paramList) != len(m.paramFields) {
			return nil, NewInvalidParamsError("invalid number of params")
		}
		for i, rawElem := range paramList {
			field := param.Elem().Field(m.paramFields[i])
			if err := json.Unmarshal(rawElem, field.Addr().Interface()); err != nil {
				return nil, NewInvalidParamsError("")
			}
		}
	} else {
		var paramMap map[string]json.RawMessage
		if err := json.Unmarshal(params, &paramMap); err != nil {
			return nil, NewInvalidParamsError("")
		}
		if err := json.Unmarshal(params, param.Interface()); err != nil {
			return nil, NewInvalidParamsError("")
		}
		for _, name := range m.paramNames {
			if _, ok := paramMap[name]; !ok {
				return nil, NewInvalidParamsError("missing param: " + name)
			}
		}
	}

	results := m.method.Func.Call([]reflect.Value{m.receiver, reflect.ValueOf(ctx), param.Elem()})
	var err error
	if !results[1].IsNil() {
		err = results[1].Interface().(error)
	}
	return results[0].Interface(), err
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// parseMethod extracts method signature information via reflection.
// Valid signature: func(ctx context.Context, params <struct>) (result, error).
// Returns nil for anything else.
func parseMethod(receiver reflect.Value, method reflect.Method) *rpcMethod {
	ft := method.Func.Type()
	if ft.NumIn() != 3 || ft.In(1) != contextType {
		return nil
	}
	if ft.NumOut() != 2 || ft.Out(1) != errorType {
		return nil
	}
	paramType := ft.In(2)
	if paramType.Kind() != reflect.Struct {
		return nil
	}

	rpc := &rpcMethod{
		receiver:   receiver,
		method:     method,
		paramType:  paramType,
		methodName: method.Name,
	}
	for i := 0; i < paramType.NumField(); i++ {
		field := paramType.Field(i)
		if field.Name == "_" {
			if tag := field.Tag.Get("jsonrpc"); tag != "" {
				rpc.methodName = tag
			}
			continue
		}
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if jsonTag := field.Tag.Get("json"); jsonTag != "" {
			name = strings.Split(jsonTag, ",")[0]
			if name == "-" {
				continue
			}
			if name == "" {
				name = field.Name
			}
		}
		rpc.paramNames = append(rpc.paramNames, name)
		rpc.paramFields = append(rpc.paramFields, i)
	}
	return rpc
}

// reflectMethods returns a MethodFunc for every exported method of receiver
// with a valid signature, keyed by its (namespaced) name.
func reflectMethods(namespace string, receiver any) map[string]MethodFunc {
	val := reflect.ValueOf(receiver)
	typ := val.Type()
	out := make(map[string]MethodFunc)
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if !method.IsExported() {
			continue
		}
		rpc := parseMethod(val, method)
		if rpc == nil {
			continue
		}
		name := rpc.methodName
		if namespace != "" {
			name = namespace + "." + name
		}
		out[name] = rpc.call
	}
	return out
}
