package odoo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainMatchAll(t *testing.T) {
	out, err := json.Marshal(MatchAll())
	require.NoError(t, err)
	assert.Equal(t, `[[]]`, string(out))

	out, err = json.Marshal(Domain(nil))
	require.NoError(t, err)
	assert.Equal(t, `[[]]`, string(out))

	for _, in := range []string{`[[]]`, `[ [ ] ]`, `[]`} {
		var d Domain
		require.NoError(t, json.Unmarshal([]byte(in), &d), in)
		assert.True(t, d.IsMatchAll(), in)
	}
}

func TestDomainConditions(t *testing.T) {
	var d Domain
	require.NoError(t, json.Unmarshal([]byte(`["|",["name","ilike","ada"],["id","in",[1,2]]]`), &d))
	require.Len(t, d, 3)
	assert.Equal(t, Or, d[0].Logic)
	assert.Equal(t, "name", d[1].Field)
	assert.Equal(t, "ilike", d[1].Operator)
	assert.JSONEq(t, `"ada"`, string(d[1].Value))
	assert.JSONEq(t, `[1,2]`, string(d[2].Value))

	out, err := json.Marshal(Domain{{Logic: Not}, Cond("active", "=", false)})
	require.NoError(t, err)
	assert.JSONEq(t, `["!",["active","=",false]]`, string(out))
}

func TestDomainErrors(t *testing.T) {
	for _, in := range []string{
		`{}`,
		`null`,
		`["^"]`,
		`[["name","="]]`,
		`[[1,"=",2]]`,
		`[["name",5,2]]`,
		`[42]`,
	} {
		var d Domain
		assert.Error(t, json.Unmarshal([]byte(in), &d), in)
	}
}

func TestCondPanicsOnUnencodable(t *testing.T) {
	assert.Panics(t, func() { Cond("x", "=", make(chan int)) })
}

func TestSearchOptions(t *testing.T) {
	var o SearchOptions
	require.NoError(t, json.Unmarshal([]byte(`{"fields":["name"],"limit":10,"offset":5,"order":"name asc","context":{"lang":"en_US"}}`), &o))
	assert.False(t, o.IsFieldList())
	assert.Equal(t, []string{"name"}, o.Fields)
	require.NotNil(t, o.Limit)
	assert.Equal(t, 10, *o.Limit)
	require.NotNil(t, o.Offset)
	assert.Equal(t, 5, *o.Offset)
	assert.Equal(t, "name asc", o.Order)
	assert.Contains(t, o.Extra, "context")

	out, err := json.Marshal(o)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields":["name"],"limit":10,"offset":5,"order":"name asc","context":{"lang":"en_US"}}`, string(out))

	out, err = json.Marshal(FieldList("name", "email"))
	require.NoError(t, err)
	assert.Equal(t, `["name","email"]`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &o))
	assert.Error(t, json.Unmarshal([]byte(`"name"`), &o))
	assert.Error(t, json.Unmarshal([]byte(`{"limit":"ten"}`), &o))
}

func TestFieldsGetOptions(t *testing.T) {
	var o FieldsGetOptions
	require.NoError(t, json.Unmarshal([]byte(`{"attributes":["string","type"]}`), &o))
	assert.Equal(t, []string{"string", "type"}, o.Attributes)
	assert.Nil(t, o.Extra)

	out, err := json.Marshal(o)
	require.NoError(t, err)
	assert.JSONEq(t, `{"attributes":["string","type"]}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`["string"]`), &o))
}
