package etl

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/seamline/ingest/errors"
)

// DefaultPathDelimiter separates segments in field locations.
const DefaultPathDelimiter = "/"

// Document wraps a decoded feed item and resolves slash-delimited paths
// against it. Path segments are URL-decoded, so keys containing the
// delimiter can be addressed as %2F.
type Document struct {
	root      interface{}
	delimiter string
}

// NewDocument wraps an already-decoded value tree.
func NewDocument(root interface{}) *Document {
	return &Document{root: root, delimiter: DefaultPathDelimiter}
}

// ParseDocument decodes raw JSON into a Document.
func ParseDocument(raw []byte) (*Document, error) {
	var root interface{}
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, errors.Wrap(err, "decode document")
	}
	return NewDocument(root), nil
}

// SetDelimiter overrides the path delimiter. Empty restores the default.
func (d *Document) SetDelimiter(delimiter string) {
	if delimiter == "" {
		delimiter = DefaultPathDelimiter
	}
	d.delimiter = delimiter
}

// Root returns the wrapped value tree.
func (d *Document) Root() interface{} {
	return d.root
}

// Find walks the document along path and returns the value there, or nil
// when any segment is missing. Numeric segments index into arrays.
func (d *Document) Find(path string) interface{} {
	trimmed := strings.Trim(path, d.delimiter)
	if trimmed == "" {
		return d.root
	}

	current := d.root
	for _, segment := range strings.Split(trimmed, d.delimiter) {
		if decoded, err := url.QueryUnescape(segment); err == nil {
			segment = decoded
		}

		switch node := current.(type) {
		case map[string]interface{}:
			next, ok := node[segment]
			if !ok {
				return nil
			}
			current = next
		case []interface{}:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			current = node[idx]
		default:
			return nil
		}
	}

	return current
}
