// Package transmit pushes reconciled items into the document store and
// accumulates the batch run summary.
package transmit

import (
	"github.com/seamline/ingest/translate"
)

// Totals is the batch outcome counters. Differed is carried for wire
// compatibility with older consumers; nothing currently produces it.
type Totals struct {
	Create   int `json:"create"`
	Update   int `json:"update"`
	Delete   int `json:"delete"`
	NoAction int `json:"noAction"`
	Differed int `json:"differed"`
	Errors   int `json:"errors"`
	Total    int `json:"total"`
}

// Batch identifies the receipt a response describes.
type Batch struct {
	Name       string `json:"name"`
	SourceID   int64  `json:"sourceId"`
	SourceType string `json:"sourceType"`
	LogID      int64  `json:"logId"`
	Received   string `json:"received"`
}

// ItemEntry is one per-item detail line, recorded in verbose mode.
type ItemEntry struct {
	Guid             string      `json:"guid,omitempty"`
	UniqueID         string      `json:"uniqueId"`
	Status           string      `json:"status"`
	ValidationErrors interface{} `json:"validationErrors,omitempty"`
}

// ErrorEntry is one per-error detail line.
type ErrorEntry struct {
	Type     string `json:"type"`
	Position int    `json:"position"`
	Message  string `json:"message"`
}

// Response is the batch run summary returned by ProcessFile.
type Response struct {
	Totals          Totals       `json:"totals"`
	Batch           Batch        `json:"batch"`
	Items           []ItemEntry  `json:"items,omitempty"`
	Errors          []ErrorEntry `json:"errors,omitempty"`
	WorkersNotified []string     `json:"workersNotified,omitempty"`

	verbose bool
}

// NewResponse creates a summary for a receipt. With verbose set, per-item
// entries are recorded alongside the counters.
func NewResponse(batch Batch, verbose bool) *Response {
	return &Response{Batch: batch, verbose: verbose}
}

// LogCrudAction tallies one item outcome and, in verbose mode, records its
// detail entry.
func (r *Response) LogCrudAction(item *translate.Item, state translate.CrudState) {
	r.Totals.Total++
	switch state {
	case translate.CrudCreate:
		r.Totals.Create++
	case translate.CrudUpdate:
		r.Totals.Update++
	case translate.CrudDelete:
		r.Totals.Delete++
	case translate.CrudDeferred:
		r.Totals.Differed++
	default:
		r.Totals.NoAction++
	}

	if !r.verbose || item == nil {
		return
	}
	entry := ItemEntry{UniqueID: item.UniqueID(), Status: string(state)}
	if guid, err := item.Guid(); err == nil {
		entry.Guid = guid
	}
	if result := item.Result(); result != nil && result.HasErrors() {
		entry.ValidationErrors = result.ValidationErrors()
	}
	r.Items = append(r.Items, entry)
}

// LogDeleteGuids tallies batch-finalize deletions.
func (r *Response) LogDeleteGuids(guids []string) {
	r.Totals.Total += len(guids)
	r.Totals.Delete += len(guids)

	if !r.verbose {
		return
	}
	for _, guid := range guids {
		r.Items = append(r.Items, ItemEntry{Guid: guid, Status: string(translate.CrudDelete)})
	}
}

// LogError counts an error and records its detail entry. Errors are always
// recorded, verbose or not.
func (r *Response) LogError(kind string, position int, err error) {
	r.Totals.Errors++
	r.Errors = append(r.Errors, ErrorEntry{
		Type:     kind,
		Position: position,
		Message:  err.Error(),
	})
}

// CrudTotals converts the counters to receipt totals for persistence.
func (r *Response) CrudTotals() translate.CrudTotals {
	return translate.CrudTotals{
		Total:     r.Totals.Total,
		Added:     r.Totals.Create,
		Updated:   r.Totals.Update,
		Unchanged: r.Totals.NoAction,
		Deleted:   r.Totals.Delete,
	}
}

// HasErrors reports whether any item failed. Callers distinguish
// "completed with errors" this way, not by an error return.
func (r *Response) HasErrors() bool {
	return r.Totals.Errors > 0
}
