package jsonrpc

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Values is the server's shared context: a read-only, string-keyed bag fixed
// when the server is constructed. Every dispatched call carries it in its
// context.Context.
type Values struct {
	m map[string]any
}

// NewValues copies m into a new Values.
func NewValues(m map[string]any) Values {
	return Values{m: maps.Clone(m)}
}

func (v Values) Value(key string) (any, bool) {
	val, ok := v.m[key]
	return val, ok
}

// String returns the value for key formatted as a string, or "" when absent.
func (v Values) String(key string) string {
	val, ok := v.m[key]
	if !ok || val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprint(val)
}

// Keys returns the keys in sorted order.
func (v Values) Keys() []string {
	return slices.Sorted(maps.Keys(v.m))
}

func (v Values) Len() int {
	return len(v.m)
}

type valuesKey struct{}

func WithValues(ctx context.Context, v Values) context.Context {
	return context.WithValue(ctx, valuesKey{}, v)
}

// ValuesFromContext returns the Values carried by ctx, or an empty Values.
func ValuesFromContext(ctx context.Context) Values {
	v, _ := ctx.Value(valuesKey{}).(Values)
	return v
}
