package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineResolve(t *testing.T) {
	e := NewEngine(NewStandardLibrary(), NewConditionLibrary())

	lib, method := e.Resolve("value")
	require.NotNil(t, lib)
	assert.Equal(t, "standard", lib.Name())
	assert.Equal(t, "value", method)

	lib, method = e.Resolve("Condition|ifEqual")
	require.NotNil(t, lib)
	assert.Equal(t, "condition", lib.Name())
	assert.Equal(t, "ifEqual", method)

	lib, _ = e.Resolve("Nowhere|noop")
	assert.Nil(t, lib)
}

func TestApplyRunsStepsInOrder(t *testing.T) {
	e := NewEngine(NewStandardLibrary())

	steps := []TransformStep{
		{Var: "city", Method: "defaultValue", Args: []interface{}{"{{city}}", "Reno"}},
		{Var: "label", Method: "value", Args: []interface{}{"city: {{city}}"}},
	}
	got := e.Apply(steps, map[string]interface{}{"city": nil})

	assert.Equal(t, "Reno", got["city"])
	// second step sees the first step's output
	assert.Equal(t, "city: Reno", got["label"])
}

func TestApplySkipsUnsupportedMethods(t *testing.T) {
	e := NewEngine(NewStandardLibrary())

	steps := []TransformStep{
		{Var: "title", Method: "notARealMethod", Args: []interface{}{"{{title}}"}},
	}
	got := e.Apply(steps, map[string]interface{}{"title": "Engineer"})

	// target var untouched, no panic
	assert.Equal(t, "Engineer", got["title"])
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	e := NewEngine(NewStandardLibrary())
	in := map[string]interface{}{"name": "acme"}

	out := e.Apply([]TransformStep{
		{Var: "name", Method: "value", Args: []interface{}{"Acme"}},
	}, in)

	assert.Equal(t, "acme", in["name"])
	assert.Equal(t, "Acme", out["name"])
}

func TestApplyRendersStructuredArgs(t *testing.T) {
	e := NewEngine(NewStandardLibrary())

	steps := []TransformStep{
		{Var: "state", Method: "crossReference", Args: []interface{}{
			"{{state}}",
			map[string]interface{}{"NV": "Nevada", "*": "Unknown"},
		}},
	}
	got := e.Apply(steps, map[string]interface{}{"state": "NV"})
	assert.Equal(t, "Nevada", got["state"])
}
