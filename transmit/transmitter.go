package transmit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seamline/ingest/docstore"
	"github.com/seamline/ingest/errors"
	"github.com/seamline/ingest/logger"
	"github.com/seamline/ingest/translate"
)

// Transmitter pushes one receipt's items into the document store. Items
// are sent strictly sequentially: guid allocation and duplicate detection
// rely on each item's store round trip completing before the next begins.
type Transmitter struct {
	items   *docstore.Items
	lineage *translate.Store

	source  *translate.Source
	file    *translate.SourceFile
	receipt *translate.Receipt

	response        *Response
	archiveOnDelete bool
	logger          *zap.SugaredLogger
}

// NewTransmitter binds a transmitter to one receipt.
func NewTransmitter(items *docstore.Items, lineage *translate.Store,
	source *translate.Source, file *translate.SourceFile, receipt *translate.Receipt,
	verbose, archiveOnDelete bool) *Transmitter {

	batch := Batch{
		Name:       receipt.Batch,
		SourceID:   source.ID,
		SourceType: source.TypeCode,
		LogID:      receipt.ID,
		Received:   receipt.Received.UTC().Format(time.RFC3339),
	}
	return &Transmitter{
		items:           items,
		lineage:         lineage,
		source:          source,
		file:            file,
		receipt:         receipt,
		response:        NewResponse(batch, verbose),
		archiveOnDelete: archiveOnDelete,
		logger: logger.ComponentLogger("transmit").With(
			logger.FieldBatch, receipt.Batch,
		),
	}
}

// Response returns the running batch summary.
func (t *Transmitter) Response() *Response { return t.response }

// Format builds the stored document for an item. The received timestamp is
// stamped only on create; updates keep whatever receive time the original
// document recorded.
func (t *Transmitter) Format(item *translate.Item) (*docstore.ItemDocument, error) {
	doc, err := docstore.NewItemDocument(item, t.source, t.file, t.receipt)
	if err != nil {
		return nil, err
	}
	if item.EffectiveCrudState() != translate.CrudCreate {
		doc.Internal.Received = time.Time{}
	}
	return doc, nil
}

// Send transmits one logged item. The store's verified state is
// authoritative: when it disagrees with the item's claimed CRUD state the
// mismatch is logged and the verified outcome is tallied. The item's
// payload is dropped once the store write completes.
func (t *Transmitter) Send(ctx context.Context, item *translate.Item) error {
	claimed := item.EffectiveCrudState()

	if claimed == translate.CrudDelete {
		guid, err := item.Guid()
		if err != nil {
			return err
		}
		if _, err := t.items.Delete(ctx, []string{guid}, t.archiveOnDelete); err != nil {
			return err
		}
		t.response.LogCrudAction(item, translate.CrudDelete)
		item.Reset()
		return nil
	}

	doc, err := t.Format(item)
	if err != nil {
		return err
	}

	action, err := t.items.Sync(ctx, doc)
	if err != nil {
		return err
	}

	verified := verifiedState(action)
	if verified != claimed {
		t.logger.Debugw("Store state overrode claimed CRUD state",
			logger.FieldUniqueID, item.UniqueID(),
			"claimed", string(claimed),
			"verified", string(verified),
		)
	}

	t.response.LogCrudAction(item, verified)
	item.Reset()
	return nil
}

// verifiedState maps a sync outcome back onto a CRUD state.
func verifiedState(action docstore.SyncAction) translate.CrudState {
	switch action {
	case docstore.SyncInserted:
		return translate.CrudCreate
	case docstore.SyncUpdated:
		return translate.CrudUpdate
	default:
		return translate.CrudNone
	}
}

// DeleteItems removes documents by guid, honoring the archive setting.
func (t *Transmitter) DeleteItems(ctx context.Context, guids []string) (int64, error) {
	return t.items.Delete(ctx, guids, t.archiveOnDelete)
}

// Finalize closes out the receipt: items present in the previous receipt
// but absent from this one are deleted from the store, then the receipt is
// completed with the batch totals.
func (t *Transmitter) Finalize(ctx context.Context) error {
	previous, err := t.lineage.PreviousReceipt(ctx, t.receipt.FileID, t.receipt.Batch)
	if err != nil && !errors.IsNotFoundError(err) {
		return err
	}

	if previous != nil {
		candidates, err := t.lineage.ItemsToDelete(ctx, previous.ID, t.receipt.ID)
		if err != nil {
			return err
		}
		if len(candidates) > 0 {
			guids := make([]string, len(candidates))
			for i, candidate := range candidates {
				guids[i] = candidate.Guid
			}
			if _, err := t.DeleteItems(ctx, guids); err != nil {
				return err
			}
			t.response.LogDeleteGuids(guids)
			t.logger.Infow("Deleted items missing from batch",
				"deleted", len(guids),
			)
		}
	}

	return t.lineage.CompleteReceipt(ctx, t.receipt.ID, t.response.CrudTotals())
}
