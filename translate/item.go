// Package translate reconciles parsed feed items against their file
// lineage: content hashing, CRUD disposition, and durable GUID identity.
package translate

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/seamline/ingest/errors"
	"github.com/seamline/ingest/etl"
)

// FormatVersion is folded into every item hash. Bumping it forces a
// full re-sync of all items on the next receipt of every file.
const FormatVersion = "2.1"

// CrudState is an item's disposition relative to the previous receipt of
// the same file.
type CrudState string

const (
	CrudNone     CrudState = "none"
	CrudCreate   CrudState = "create"
	CrudUpdate   CrudState = "update"
	CrudDelete   CrudState = "delete"
	CrudDeferred CrudState = "deferred"
)

// ParseCrudState recognizes a CRUD state name, case-insensitively.
func ParseCrudState(name string) (CrudState, bool) {
	switch CrudState(strings.ToLower(strings.TrimSpace(name))) {
	case CrudNone:
		return CrudNone, true
	case CrudCreate:
		return CrudCreate, true
	case CrudUpdate:
		return CrudUpdate, true
	case CrudDelete:
		return CrudDelete, true
	case CrudDeferred:
		return CrudDeferred, true
	default:
		return "", false
	}
}

// guidPattern matches a minted durable identifier:
// 4-char type code, source code, 19-digit sequence.
var guidPattern = regexp.MustCompile(`(?i)^[a-z0-9]{4}-[a-z0-9]{3,10}-[0-9]{19}$`)

// ValidGuid reports whether guid has the minted shape.
func ValidGuid(guid string) bool {
	return guidPattern.MatchString(guid)
}

// FormatGuid mints a durable identifier from a source code prefix
// ("TYPE-SOURCE-") and the item's log id.
func FormatGuid(codePrefix string, logID int64) string {
	return strings.ToUpper(fmt.Sprintf("%s%019d", codePrefix, logID))
}

// Item is one observation of a source record within one file receipt.
// The hash is computed at construction; identity fields are filled in by
// LogReceipt once the item row is persisted.
type Item struct {
	rawData  map[string]interface{}
	result   *etl.Result
	uniqueID string
	hash     string

	crudState   CrudState
	incremental CrudState

	logID  int64
	itemID int64
	guid   string
}

// NewItem builds an item from its raw packet data and its mapped
// projection. The unique id must resolve or the item is rejected.
func NewItem(rawData map[string]interface{}, result *etl.Result) (*Item, error) {
	uniqueID := resolveUniqueID(rawData, result)
	if uniqueID == "" {
		return nil, errors.NewInvalidInputError("item has no resolvable unique id")
	}

	hash, err := HashItem(rawData, result)
	if err != nil {
		return nil, err
	}

	item := &Item{
		rawData:   rawData,
		result:    result,
		uniqueID:  uniqueID,
		hash:      hash,
		crudState: CrudNone,
	}

	if op := result.IncrementalOp(); op != "" {
		state, ok := ParseCrudState(op)
		if !ok {
			return nil, errors.NewInvalidInputError("unknown incremental op %q", op)
		}
		item.incremental = state
	}

	return item, nil
}

// resolveUniqueID prefers the mapped uniqueId field, then the legacy raw
// locations older feeds used.
func resolveUniqueID(rawData map[string]interface{}, result *etl.Result) string {
	if id := etl.Stringify(result.Field("uniqueId")); id != "" {
		return id
	}
	if id := etl.Stringify(rawData["uniqueId"]); id != "" {
		return id
	}
	if id := etl.Stringify(rawData["name"]); id != "" {
		return id
	}
	if info, ok := rawData["item_info"].(map[string]interface{}); ok {
		return etl.Stringify(info["name"])
	}
	return ""
}

// HashItem computes the SHA-1 content hash over the canonical JSON of
// {format} ∪ rawData ∪ projection. encoding/json writes map keys sorted
// at every level, so the hash is insensitive to insertion order.
func HashItem(rawData map[string]interface{}, result *etl.Result) (string, error) {
	projection := result.ToMap()
	if projection == nil {
		projection = result.Fields()
	}

	merged := make(map[string]interface{}, len(rawData)+len(projection)+1)
	merged["format"] = FormatVersion
	for key, value := range rawData {
		merged[key] = value
	}
	for key, value := range projection {
		merged[key] = value
	}

	canonical, err := json.Marshal(merged)
	if err != nil {
		return "", errors.Wrap(err, "hashing item")
	}
	return fmt.Sprintf("%x", sha1.Sum(canonical)), nil
}

func (i *Item) UniqueID() string { return i.uniqueID }
func (i *Item) Hash() string     { return i.hash }

// RawData returns the item's source payload, nil after Reset.
func (i *Item) RawData() map[string]interface{} { return i.rawData }

// Result returns the mapped projection, nil after Reset.
func (i *Item) Result() *etl.Result { return i.result }

// Reconcile derives the CRUD state from the previous receipt's hash for
// this unique id. found is false when the id has no prior observation.
func (i *Item) Reconcile(previousHash string, found bool) CrudState {
	switch {
	case !found:
		i.crudState = CrudCreate
	case previousHash == i.hash:
		i.crudState = CrudNone
	default:
		i.crudState = CrudUpdate
	}
	return i.crudState
}

// CrudState returns the hash-derived disposition.
func (i *Item) CrudState() CrudState { return i.crudState }

// SetCrudState overrides the disposition. Used for deletes driven by the
// receipt diff rather than by hashing.
func (i *Item) SetCrudState(state CrudState) { i.crudState = state }

// EffectiveCrudState returns the disposition to act on: an explicit
// incremental op from the mapping wins over the hash-derived state.
func (i *Item) EffectiveCrudState() CrudState {
	if i.incremental != "" {
		return i.incremental
	}
	return i.crudState
}

// IncrementalOp returns the mapping's explicit override, empty when none.
func (i *Item) IncrementalOp() CrudState { return i.incremental }

// setIdentity is called by LogReceipt once the authority rows exist.
func (i *Item) setIdentity(itemID, logID int64, guid string) {
	i.itemID = itemID
	i.logID = logID
	i.guid = guid
}

// LogID returns the persisted item log row id, 0 before LogReceipt.
func (i *Item) LogID() int64 { return i.logID }

// ItemID returns the durable authority row id, 0 before LogReceipt.
func (i *Item) ItemID() int64 { return i.itemID }

// Guid returns the durable identifier. It is an error to read it before
// the item has been logged and its authority row created.
func (i *Item) Guid() (string, error) {
	if i.guid == "" {
		return "", errors.Newf("item %q has no guid: receipt not logged", i.uniqueID)
	}
	return i.guid, nil
}

// Reset drops the held payload after a successful transmit, keeping only
// identity fields so batch memory stays bounded.
func (i *Item) Reset() {
	i.rawData = nil
	i.result = nil
}
