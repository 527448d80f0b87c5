package etl

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/seamline/ingest/errors"
)

// Renderer interpolates {{ name }} placeholders in profile templates.
// Unresolved placeholders render as empty strings; the json_decode filter
// turns a JSON-encoded value back into its structured form.
type Renderer struct{}

// NewRenderer creates a template renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*(?:\|\s*([A-Za-z0-9_]+)\s*)?\}\}`)

// RenderOne interpolates a string template against vars.
func (r *Renderer) RenderOne(template string, vars map[string]interface{}) (string, error) {
	var renderErr error

	out := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		name, filter := groups[1], groups[2]

		value, ok := vars[name]
		if !ok {
			return ""
		}

		if filter != "" {
			filtered, err := applyFilter(filter, value)
			if err != nil {
				renderErr = err
				return ""
			}
			value = filtered
		}

		return Stringify(value)
	})

	if renderErr != nil {
		return "", renderErr
	}
	return out, nil
}

// RenderValue recursively renders a template value. Maps and slices render
// element-wise. A string that is exactly a braced variable name is replaced
// by the raw variable value, preserving structure; all other strings are
// interpolated.
func (r *Renderer) RenderValue(template interface{}, vars map[string]interface{}) (interface{}, error) {
	switch node := template.(type) {
	case map[string]interface{}:
		rendered := make(map[string]interface{}, len(node))
		for key, value := range node {
			out, err := r.RenderValue(value, vars)
			if err != nil {
				return nil, err
			}
			rendered[key] = out
		}
		return rendered, nil
	case []interface{}:
		rendered := make([]interface{}, len(node))
		for i, value := range node {
			out, err := r.RenderValue(value, vars)
			if err != nil {
				return nil, err
			}
			rendered[i] = out
		}
		return rendered, nil
	case string:
		if raw, ok := r.wholeValue(node, vars); ok {
			return raw, nil
		}
		return r.RenderOne(node, vars)
	default:
		return template, nil
	}
}

// wholeValue resolves a string that is exactly one placeholder to the raw
// variable value, so templates can inject arrays and maps whole.
func (r *Renderer) wholeValue(template string, vars map[string]interface{}) (interface{}, bool) {
	trimmed := strings.TrimSpace(template)
	groups := placeholderPattern.FindStringSubmatch(trimmed)
	if groups == nil || groups[0] != trimmed {
		return nil, false
	}

	value, ok := vars[groups[1]]
	if !ok {
		return nil, false
	}

	if groups[2] != "" {
		filtered, err := applyFilter(groups[2], value)
		if err != nil {
			return nil, false
		}
		return filtered, true
	}

	return value, true
}

func applyFilter(name string, value interface{}) (interface{}, error) {
	switch name {
	case "json_decode":
		text, ok := value.(string)
		if !ok {
			// already structured
			return value, nil
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return nil, errors.Wrapf(err, "json_decode filter")
		}
		return decoded, nil
	default:
		return nil, errors.Newf("unknown template filter %q", name)
	}
}
