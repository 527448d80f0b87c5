package etl

import (
	"go.uber.org/zap"

	"github.com/seamline/ingest/logger"
)

// FieldMapping names one extracted value and the document path it comes from.
// The same name may appear multiple times with different locations; the
// redundant-lookup policy below decides which value wins.
type FieldMapping struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// Extractor pulls named values out of a feed item document according to an
// ordered field mapping list.
type Extractor struct {
	fields      []FieldMapping
	runtimeVars map[string]interface{}
	delimiter   string
	logger      *zap.SugaredLogger
}

// NewExtractor creates an extractor over an ordered field mapping list.
func NewExtractor(fields []FieldMapping) *Extractor {
	return &Extractor{
		fields: fields,
		logger: logger.ComponentLogger("etl.extract"),
	}
}

// SetRuntimeVars seeds values that are injected into the result before any
// document lookups run. Field mappings may overwrite them.
func (e *Extractor) SetRuntimeVars(vars map[string]interface{}) {
	e.runtimeVars = vars
}

// SetPathDelimiter overrides the location delimiter for documents whose
// keys contain slashes.
func (e *Extractor) SetPathDelimiter(delimiter string) {
	e.delimiter = delimiter
}

// Extract resolves every field mapping against the document, in order.
//
// When several mappings share a name, a found truthy value overwrites the
// previous one; a miss only records nil if the name has not produced a
// value yet. Profiles rely on this to express fallback locations.
func (e *Extractor) Extract(doc *Document) map[string]interface{} {
	if e.delimiter != "" {
		doc.SetDelimiter(e.delimiter)
	}

	extracted := make(map[string]interface{}, len(e.fields)+len(e.runtimeVars))
	for name, value := range e.runtimeVars {
		extracted[name] = value
	}

	for _, field := range e.fields {
		value := doc.Find(field.Location)
		if Truthy(value) {
			extracted[field.Name] = value
			continue
		}

		if _, seen := extracted[field.Name]; !seen {
			extracted[field.Name] = nil
		}
	}

	e.logger.Debugw("Extracted fields", "count", len(extracted))
	return extracted
}
