package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderMerge(t *testing.T) {
	l := NewLoader(NewValidator(nil))

	fields := []LoadField{
		{Name: "company"},
		{Name: "city", Validate: []ValidationRule{{Method: "isRequired"}}},
	}
	values := map[string]interface{}{
		"company":  "Acme",
		"internal": "dropped",
	}

	merged, violations := l.Merge(fields, values)

	// only declared fields survive; declared-but-unpopulated come through nil
	assert.Equal(t, map[string]interface{}{
		"company": "Acme",
		"city":    nil,
	}, merged)

	require.Len(t, violations, 1)
	assert.Equal(t, "city", violations[0].Name)
}

func TestTextRendererReturnsRawOutput(t *testing.T) {
	r := TextRenderer{Template: "{{company}} in {{city}}"}
	got, err := r.Render(map[string]interface{}{"company": "Acme", "city": "Reno"})
	require.NoError(t, err)
	assert.Equal(t, "Acme in Reno", got)
}

func TestJSONRendererRequiresValidJSON(t *testing.T) {
	fields := map[string]interface{}{"company": "Acme"}

	r := JSONRenderer{Template: `{"name": "{{company}}"}`}
	got, err := r.Render(fields)
	require.NoError(t, err)
	assert.Equal(t, `{"name": "Acme"}`, got)

	r = JSONRenderer{Template: `{"name": {{company}}}`}
	_, err = r.Render(fields)
	require.Error(t, err)

	re, ok := AsRenderError(err)
	require.True(t, ok)
	assert.Equal(t, `{"name": Acme}`, re.Rendered)
}

func TestStructRendererDecodes(t *testing.T) {
	fields := map[string]interface{}{"company": "Acme", "count": float64(2)}

	r := StructRenderer{Template: map[string]interface{}{
		"name":  "{{company}}",
		"stats": map[string]interface{}{"count": "{{count}}"},
	}}
	got, err := r.Render(fields)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"name":  "Acme",
		"stats": map[string]interface{}{"count": float64(2)},
	}, got)

	// string template renders then decodes
	r = StructRenderer{Template: `{"name": "{{company}}"}`}
	got, err = r.Render(fields)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "Acme"}, got)

	// no template: merged fields pass through
	r = StructRenderer{}
	got, err = r.Render(fields)
	require.NoError(t, err)
	assert.Equal(t, fields, got)
}

func TestNewLoadRenderer(t *testing.T) {
	r, err := NewLoadRenderer(" JSON ", "{}")
	require.NoError(t, err)
	assert.Equal(t, "json", r.Name())

	r, err = NewLoadRenderer("Structure", nil)
	require.NoError(t, err)
	assert.Equal(t, "struct", r.Name())

	_, err = NewLoadRenderer("xml", nil)
	require.Error(t, err)
}
