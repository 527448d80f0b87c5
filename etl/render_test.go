package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderOne(t *testing.T) {
	r := NewRenderer()
	vars := map[string]interface{}{
		"city":  "Reno",
		"count": float64(3),
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"plain variable", "in {{city}}", "in Reno"},
		{"spaced braces", "in {{ city }}", "in Reno"},
		{"numeric value", "{{count}} openings", "3 openings"},
		{"missing variable renders empty", "in {{nowhere}}", "in "},
		{"no placeholders", "static text", "static text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.RenderOne(tt.template, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderValueWholePlaceholderKeepsRawValue(t *testing.T) {
	r := NewRenderer()
	vars := map[string]interface{}{
		"table": map[string]interface{}{"NV": "Nevada"},
		"city":  "Reno",
	}

	got, err := r.RenderValue("{{table}}", vars)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"NV": "Nevada"}, got)

	// embedded in surrounding text the value is stringified instead
	text, err := r.RenderValue("city: {{city}}", vars)
	require.NoError(t, err)
	assert.Equal(t, "city: Reno", text)
}

func TestRenderValueRecursesStructures(t *testing.T) {
	r := NewRenderer()
	vars := map[string]interface{}{"state": "NV", "city": "Reno"}

	got, err := r.RenderValue(map[string]interface{}{
		"where": []interface{}{"{{state}}", "{{city}}", 42},
	}, vars)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"where": []interface{}{"NV", "Reno", 42},
	}, got)
}

func TestRenderJSONDecodeFilter(t *testing.T) {
	r := NewRenderer()
	vars := map[string]interface{}{"blob": `{"a":1}`}

	got, err := r.RenderValue("{{blob|json_decode}}", vars)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, got)
}

func TestRenderUnknownFilterFails(t *testing.T) {
	r := NewRenderer()
	_, err := r.RenderOne("{{x|rot13}}", map[string]interface{}{"x": "y"})
	require.Error(t, err)
}
