// Package docstore holds the synced item documents, mapping profiles, and
// geo reference data, all over sqlite JSON columns.
package docstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/seamline/ingest/errors"
	"github.com/seamline/ingest/etl"
	"github.com/seamline/ingest/translate"
)

// DocumentVersion guards the envelope shape of stored item documents.
const DocumentVersion = 1

// ItemDocument is the full stored form of one synced item: where it came
// from, its durable identity, the raw payload, and the mapped projection.
type ItemDocument struct {
	Version int `json:"version"`

	Source struct {
		ID     int64  `json:"id"`
		Type   string `json:"type"`
		File   string `json:"file"`
		FileID int64  `json:"fileId"`
	} `json:"source"`

	Internal struct {
		Guid        string    `json:"guid"`
		RawDataHash string    `json:"rawDataHash"`
		ImportID    int64     `json:"importId"`
		LastChange  time.Time `json:"lastChange"`
		Received    time.Time `json:"received"`
	} `json:"internal"`

	Item struct {
		UniqueID string                 `json:"uniqueId"`
		Data     map[string]interface{} `json:"data"`
	} `json:"item"`

	SourceMap struct {
		Data             map[string]interface{} `json:"data"`
		ValidationErrors []etl.Violation        `json:"validationErrors"`
	} `json:"sourceMap"`
}

// NewItemDocument assembles the document for a logged item. Map keys are
// sanitized on the way in so no payload key can collide with store
// operator characters.
func NewItemDocument(item *translate.Item, source *translate.Source, file *translate.SourceFile, receipt *translate.Receipt) (*ItemDocument, error) {
	guid, err := item.Guid()
	if err != nil {
		return nil, err
	}

	doc := &ItemDocument{Version: DocumentVersion}

	doc.Source.ID = source.ID
	doc.Source.Type = source.TypeCode
	doc.Source.File = file.Name
	doc.Source.FileID = file.ID

	doc.Internal.Guid = guid
	doc.Internal.RawDataHash = item.Hash()
	doc.Internal.ImportID = item.LogID()
	doc.Internal.LastChange = time.Now().UTC()
	doc.Internal.Received = receipt.Received

	doc.Item.UniqueID = item.UniqueID()
	doc.Item.Data = sanitizeMap(item.RawData())

	if result := item.Result(); result != nil {
		doc.SourceMap.Data = sanitizeMap(result.ToMap())
		if doc.SourceMap.Data == nil {
			doc.SourceMap.Data = sanitizeMap(result.Fields())
		}
		doc.SourceMap.ValidationErrors = result.ValidationErrors()
	}

	return doc, nil
}

// keySanitizer rewrites characters that are operators or terminators in
// document stores.
var keySanitizer = strings.NewReplacer(".", "_", "$", "_", "\x00", "_")

// sanitizeMap rewrites unsafe key characters recursively.
func sanitizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for key, value := range m {
		out[keySanitizer.Replace(key)] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		return sanitizeMap(node)
	case []interface{}:
		out := make([]interface{}, len(node))
		for i, elem := range node {
			out[i] = sanitizeValue(elem)
		}
		return out
	default:
		return v
	}
}

// Encode serializes the document for the doc column.
func (d *ItemDocument) Encode() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", errors.Wrap(err, "encoding item document")
	}
	return string(raw), nil
}

// DecodeItemDocument reverses Encode.
func DecodeItemDocument(raw string) (*ItemDocument, error) {
	var doc ItemDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, errors.Wrap(err, "decoding item document")
	}
	return &doc, nil
}
