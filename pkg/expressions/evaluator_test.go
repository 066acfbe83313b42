package expressions_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/expressions"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var out any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestEvaluator_SearchResponse(t *testing.T) {
	e := expressions.NewEvaluator()
	data := decode(t, `{"results":[{"campaign":{"id":"11","name":"Brand"}},{"campaign":{"id":"12","name":"Search"}}]}`)

	campaigns, err := e.EvaluateSlice("results[].campaign", data)
	require.NoError(t, err)
	assert.Len(t, campaigns, 2)

	name, err := e.EvaluateString("results[1].campaign.name", data)
	require.NoError(t, err)
	assert.Equal(t, "Search", name)

	first, err := e.EvaluateMap("results[0].campaign", data)
	require.NoError(t, err)
	assert.Equal(t, "11", first["id"])
}

func TestEvaluator_MissingValues(t *testing.T) {
	e := expressions.NewEvaluator()
	data := decode(t, `{"resourceNames":null}`)

	names, err := e.EvaluateSlice("resourceNames", data)
	require.NoError(t, err)
	assert.Empty(t, names)

	value, err := e.EvaluateString("missing.path", data)
	require.NoError(t, err)
	assert.Equal(t, "", value)

	m, err := e.EvaluateMap("missing", data)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestEvaluator_NumbersAsStrings(t *testing.T) {
	e := expressions.NewEvaluator()
	data := decode(t, `{"customer":{"id":1234567890123}}`)

	id, err := e.EvaluateString("customer.id", data)
	require.NoError(t, err)
	assert.Equal(t, "1234567890123", id)
}

func TestEvaluator_InvalidExpression(t *testing.T) {
	e := expressions.NewEvaluator()

	_, err := e.Evaluate("results[", map[string]any{})
	assert.Error(t, err)

	_, err = e.EvaluateMap("name", map[string]any{"name": "not a map"})
	assert.Error(t, err)
}
