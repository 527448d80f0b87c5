package etl

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/seamline/ingest/errors"
	"github.com/seamline/ingest/logger"
)

// LoadField declares one output field by name, with optional validation
// rules run against its merged value.
type LoadField struct {
	Name     string           `json:"name"`
	Validate []ValidationRule `json:"validate"`
}

// RenderError reports output that rendered but failed to parse as JSON.
// The offending text is attached for diagnostics.
type RenderError struct {
	Rendered string
	Cause    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendered output is not valid JSON: %v", e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// AsRenderError reports whether err carries a RenderError, returning it.
func AsRenderError(err error) (*RenderError, bool) {
	var re *RenderError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// LoadRenderer turns the merged output fields into a final payload.
type LoadRenderer interface {
	Name() string
	Render(fields map[string]interface{}) (interface{}, error)
}

// NewLoadRenderer selects a renderer by the profile's declared output kind,
// case-normalized. template is a string for text and json outputs, a
// structured value for struct output.
func NewLoadRenderer(kind string, template interface{}) (LoadRenderer, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "text":
		tmpl, _ := template.(string)
		return TextRenderer{Template: tmpl}, nil
	case "json":
		tmpl, _ := template.(string)
		return JSONRenderer{Template: tmpl}, nil
	case "struct", "structure":
		return StructRenderer{Template: template}, nil
	default:
		return nil, errors.Newf("unknown load renderer %q", kind)
	}
}

// TextRenderer renders the template and returns the string verbatim,
// whether or not it is valid JSON.
type TextRenderer struct {
	Template string
}

func (TextRenderer) Name() string { return "text" }

func (r TextRenderer) Render(fields map[string]interface{}) (interface{}, error) {
	return NewRenderer().RenderOne(r.Template, fields)
}

// JSONRenderer renders the template and requires the result to parse as
// JSON, returning the rendered string.
type JSONRenderer struct {
	Template string
}

func (JSONRenderer) Name() string { return "json" }

func (r JSONRenderer) Render(fields map[string]interface{}) (interface{}, error) {
	text, err := NewRenderer().RenderOne(r.Template, fields)
	if err != nil {
		return nil, err
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, &RenderError{Rendered: text, Cause: err}
	}
	return text, nil
}

// StructRenderer renders like JSONRenderer but returns the decoded
// structure instead of the string. With no template the merged field map
// itself is the output.
type StructRenderer struct {
	Template interface{}
}

func (StructRenderer) Name() string { return "struct" }

func (r StructRenderer) Render(fields map[string]interface{}) (interface{}, error) {
	if r.Template == nil {
		return fields, nil
	}

	rendered, err := NewRenderer().RenderValue(r.Template, fields)
	if err != nil {
		return nil, err
	}
	if text, ok := rendered.(string); ok {
		var decoded interface{}
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return nil, &RenderError{Rendered: text, Cause: err}
		}
		return decoded, nil
	}
	return rendered, nil
}

// Loader merges transformed variables against the declared output field
// list and validates each field. Fields not declared here are dropped;
// declared fields never populated come through as nil.
type Loader struct {
	validator *Validator
	logger    *zap.SugaredLogger
}

// NewLoader creates a loader. validator may be nil when no field carries
// validation rules.
func NewLoader(validator *Validator) *Loader {
	return &Loader{
		validator: validator,
		logger:    logger.ComponentLogger("etl.load"),
	}
}

// Merge picks each declared field's final value out of the transformed map
// and runs its validation rules. All violations are collected; a failing
// field still lands in the output.
func (l *Loader) Merge(fields []LoadField, values map[string]interface{}) (map[string]interface{}, []Violation) {
	merged := make(map[string]interface{}, len(fields))
	var violations []Violation

	for _, field := range fields {
		value := values[field.Name]
		merged[field.Name] = value

		if len(field.Validate) > 0 && l.validator != nil {
			violations = append(violations, l.validator.Apply(field.Name, value, field.Validate)...)
		}
	}

	return merged, violations
}
