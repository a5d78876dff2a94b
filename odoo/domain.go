package odoo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Prefix operators accepted as bare string elements of a domain.
const (
	And = "&"
	Or  = "|"
	Not = "!"
)

// Condition is one domain element: a [field, operator, value] triple, or a
// prefix logical operator when Logic is set.
type Condition struct {
	Field    string
	Operator string
	Value    json.RawMessage
	Logic    string
}

// Cond builds a [field, operator, value] condition. It panics if value
// cannot be encoded as JSON.
func Cond(field, operator string, value any) Condition {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("odoo: condition value for %s: %v", field, err))
	}
	return Condition{Field: field, Operator: operator, Value: raw}
}

func (c Condition) MarshalJSON() ([]byte, error) {
	if c.Logic != "" {
		return json.Marshal(c.Logic)
	}
	value := c.Value
	if len(value) == 0 {
		value = json.RawMessage(nullJSON)
	}
	return json.Marshal([]any{c.Field, c.Operator, value})
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var op string
		if err := json.Unmarshal(data, &op); err != nil {
			return err
		}
		switch op {
		case And, Or, Not:
			*c = Condition{Logic: op}
			return nil
		}
		return fmt.Errorf("unknown domain operator %q", op)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil || len(elems) != 3 {
		return errors.New("condition must be [field, operator, value]")
	}
	var cond Condition
	if err := json.Unmarshal(elems[0], &cond.Field); err != nil {
		return errors.New("condition field must be a string")
	}
	if err := json.Unmarshal(elems[1], &cond.Operator); err != nil {
		return errors.New("condition operator must be a string")
	}
	cond.Value = append(json.RawMessage(nil), bytes.TrimSpace(elems[2])...)
	*c = cond
	return nil
}

// Domain is a search filter. An empty Domain matches every record and
// encodes as [[]].
type Domain []Condition

func MatchAll() Domain {
	return Domain{}
}

func (d Domain) IsMatchAll() bool {
	return len(d) == 0
}

func (d Domain) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("[[]]"), nil
	}
	return json.Marshal([]Condition(d))
}

// UnmarshalJSON accepts [[]] or [] for match-all, or a list of conditions.
func (d *Domain) UnmarshalJSON(data []byte) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil || elems == nil {
		return errors.New("domain must be an array")
	}
	if len(elems) == 1 && bytes.Equal(bytes.Join(bytes.Fields(elems[0]), nil), []byte("[]")) {
		*d = MatchAll()
		return nil
	}
	out := make(Domain, 0, len(elems))
	for i, raw := range elems {
		var c Condition
		if err := c.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("domain element %d: %w", i, err)
		}
		out = append(out, c)
	}
	*d = out
	return nil
}

// SearchOptions is the options element of read and search_read tuples. It is
// either a bare field list (["name", "email"]) or an object with fields,
// limit, offset, order and any other keys, and encodes in the form it was
// decoded from.
type SearchOptions struct {
	Fields []string
	Limit  *int
	Offset *int
	Order  string
	Extra  map[string]json.RawMessage

	fieldList bool
}

// FieldList returns options in the bare field-list form.
func FieldList(fields ...string) *SearchOptions {
	return &SearchOptions{Fields: fields, fieldList: true}
}

// IsFieldList reports whether the options use the bare field-list form.
func (o SearchOptions) IsFieldList() bool {
	return o.fieldList
}

func (o SearchOptions) MarshalJSON() ([]byte, error) {
	if o.fieldList {
		fields := o.Fields
		if fields == nil {
			fields = []string{}
		}
		return json.Marshal(fields)
	}
	m := make(map[string]any, len(o.Extra)+4)
	for k, v := range o.Extra {
		m[k] = v
	}
	if o.Fields != nil {
		m["fields"] = o.Fields
	}
	if o.Limit != nil {
		m["limit"] = *o.Limit
	}
	if o.Offset != nil {
		m["offset"] = *o.Offset
	}
	if o.Order != "" {
		m["order"] = o.Order
	}
	return json.Marshal(m)
}

func (o *SearchOptions) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var fields []string
		if err := json.Unmarshal(data, &fields); err != nil {
			return errors.New("options field list must contain strings")
		}
		*o = SearchOptions{Fields: fields, fieldList: true}
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return errors.New("options must be a field list or an object")
	}
	var opts SearchOptions
	if raw, ok := m["fields"]; ok {
		if err := json.Unmarshal(raw, &opts.Fields); err != nil {
			return fmt.Errorf("options.fields: %w", err)
		}
		delete(m, "fields")
	}
	if raw, ok := m["limit"]; ok {
		if err := json.Unmarshal(raw, &opts.Limit); err != nil {
			return fmt.Errorf("options.limit: %w", err)
		}
		delete(m, "limit")
	}
	if raw, ok := m["offset"]; ok {
		if err := json.Unmarshal(raw, &opts.Offset); err != nil {
			return fmt.Errorf("options.offset: %w", err)
		}
		delete(m, "offset")
	}
	if raw, ok := m["order"]; ok {
		if err := json.Unmarshal(raw, &opts.Order); err != nil {
			return fmt.Errorf("options.order: %w", err)
		}
		delete(m, "order")
	}
	if len(m) > 0 {
		opts.Extra = m
	}
	*o = opts
	return nil
}

// FieldsGetOptions is the {attributes: [...]} element of a fields_get tuple.
// Other keys are kept in Extra.
type FieldsGetOptions struct {
	Attributes []string
	Extra      map[string]json.RawMessage
}

func (o FieldsGetOptions) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(o.Extra)+1)
	for k, v := range o.Extra {
		m[k] = v
	}
	if o.Attributes != nil {
		m["attributes"] = o.Attributes
	}
	return json.Marshal(m)
}

func (o *FieldsGetOptions) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return errors.New("fields_get options must be an object")
	}
	var opts FieldsGetOptions
	if raw, ok := m["attributes"]; ok {
		if err := json.Unmarshal(raw, &opts.Attributes); err != nil {
			return fmt.Errorf("options.attributes: %w", err)
		}
		delete(m, "attributes")
	}
	if len(m) > 0 {
		opts.Extra = m
	}
	*o = opts
	return nil
}
