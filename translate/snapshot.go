package translate

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/seamline/ingest/errors"
)

// SnapshotVersion guards the snapshot wire shape. Decoding rejects any
// other version.
const SnapshotVersion = 1

// Snapshot is an item's cross-process handoff form: enough to requeue or
// inspect an item without re-reading its source file.
type Snapshot struct {
	Version  int                    `json:"version"`
	UniqueID string                 `json:"uniqueId"`
	Hash     string                 `json:"hash"`
	Crud     CrudState              `json:"crud"`
	LogID    int64                  `json:"logId"`
	ItemID   int64                  `json:"itemId"`
	Guid     string                 `json:"guid"`
	RawData  map[string]interface{} `json:"rawData,omitempty"`

	// Source identifies the originating receipt.
	Source SnapshotSource `json:"source"`
}

// SnapshotSource names the receipt an item came from.
type SnapshotSource struct {
	Type  string `json:"type"`
	File  string `json:"file"`
	Batch string `json:"batch"`
}

// Snapshot captures the item's current state for handoff.
func (i *Item) Snapshot(source SnapshotSource) *Snapshot {
	return &Snapshot{
		Version:  SnapshotVersion,
		UniqueID: i.uniqueID,
		Hash:     i.hash,
		Crud:     i.EffectiveCrudState(),
		LogID:    i.logID,
		ItemID:   i.itemID,
		Guid:     i.guid,
		RawData:  i.rawData,
		Source:   source,
	}
}

// Encode serializes the snapshot as gzipped JSON, base64-encoded for safe
// embedding in job payloads and log lines.
func (s *Snapshot) Encode() (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(s); err != nil {
		return "", errors.Wrap(err, "encoding snapshot")
	}
	if err := zw.Close(); err != nil {
		return "", errors.Wrap(err, "encoding snapshot")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeSnapshot reverses Encode and checks the version.
func DecodeSnapshot(encoded string) (*Snapshot, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "decoding snapshot")
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "decoding snapshot")
	}
	defer zr.Close()

	body, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "decoding snapshot")
	}

	var snapshot Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, errors.Wrap(err, "decoding snapshot")
	}
	if snapshot.Version != SnapshotVersion {
		return nil, errors.NewInvalidInputError("unsupported snapshot version %d", snapshot.Version)
	}
	return &snapshot, nil
}
