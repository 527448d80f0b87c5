package etl

import "encoding/json"

// Result is the outcome of one profile run over one source document. It is
// immutable after construction.
type Result struct {
	mapping    interface{}
	fields     map[string]interface{}
	violations []Violation
}

// NewResult builds a result. Used by Profile.Run and by tests that stub
// the mapping stage.
func NewResult(mapping interface{}, fields map[string]interface{}, violations []Violation) *Result {
	return &Result{mapping: mapping, fields: fields, violations: violations}
}

// Mapping returns the rendered output: a string for text and json
// renderers, a decoded structure for struct.
func (r *Result) Mapping() interface{} {
	if r == nil {
		return nil
	}
	return r.mapping
}

// Fields returns the merged output field map.
func (r *Result) Fields() map[string]interface{} {
	if r == nil {
		return nil
	}
	return r.fields
}

// Field returns one merged field value, nil when absent.
func (r *Result) Field(name string) interface{} {
	if r == nil {
		return nil
	}
	return r.fields[name]
}

// ValidationErrors returns the collected violations, possibly empty.
func (r *Result) ValidationErrors() []Violation {
	if r == nil {
		return nil
	}
	return r.violations
}

// HasErrors reports whether any field failed validation.
func (r *Result) HasErrors() bool {
	return r != nil && len(r.violations) > 0
}

// IncrementalOp returns the explicit CRUD override the mapping emitted, or
// an empty string when none is present.
func (r *Result) IncrementalOp() string {
	return Stringify(r.Field("incrementalOp"))
}

// ToMap returns the mapping as a decoded map: struct output directly, json
// output decoded, anything else nil.
func (r *Result) ToMap() map[string]interface{} {
	if r == nil {
		return nil
	}
	switch mapped := r.mapping.(type) {
	case map[string]interface{}:
		return mapped
	case string:
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(mapped), &decoded); err != nil {
			return nil
		}
		return decoded
	default:
		return nil
	}
}
