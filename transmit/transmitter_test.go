package transmit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamline/ingest/docstore"
	"github.com/seamline/ingest/etl"
	testdb "github.com/seamline/ingest/internal/testing"
	"github.com/seamline/ingest/translate"
)

type fixture struct {
	conn    *sql.DB
	items   *docstore.Items
	lineage *translate.Store
	source  *translate.Source
	file    *translate.SourceFile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testdb.CreateMigratedTestDB(t)

	_, err := conn.Exec(`INSERT INTO input_source_type (code, name) VALUES ('FTP1', 'FTP drop')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO input_source (source_type_id, code, name) VALUES (1, 'acme', 'Acme Jobs')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO input_source_file (source_id, name) VALUES (1, 'jobs.txt')`)
	require.NoError(t, err)

	lineage := translate.NewStore(conn)
	source, file, err := lineage.FindSourceFile(context.Background(), "FTP1", "jobs.txt")
	require.NoError(t, err)

	return &fixture{
		conn:    conn,
		items:   docstore.NewItems(conn, 1, time.Millisecond),
		lineage: lineage,
		source:  source,
		file:    file,
	}
}

// runBatch logs and sends one batch of raw items, finalizes, and returns
// the summary.
func (f *fixture) runBatch(t *testing.T, batch string, raws []map[string]interface{}) *Response {
	t.Helper()
	ctx := context.Background()

	receipt, err := f.lineage.OpenReceipt(ctx, f.file.ID, batch, time.Now())
	require.NoError(t, err)

	previousHashes := map[string]string{}
	if previous, err := f.lineage.PreviousReceipt(ctx, f.file.ID, batch); err == nil {
		previousHashes, err = f.lineage.ReceiptHashes(ctx, previous.ID)
		require.NoError(t, err)
	}

	tr := NewTransmitter(f.items, f.lineage, f.source, f.file, receipt, true, true)
	for _, raw := range raws {
		item, err := translate.NewItem(raw, nil)
		require.NoError(t, err)

		previousHash, found := previousHashes[item.UniqueID()]
		item.Reconcile(previousHash, found)

		require.NoError(t, f.lineage.LogItem(ctx, item, receipt, f.source.CodePrefix()))
		require.NoError(t, tr.Send(ctx, item))
	}
	require.NoError(t, tr.Finalize(ctx))
	return tr.Response()
}

func TestSendCreateThenUnchanged(t *testing.T) {
	f := newFixture(t)
	raw := map[string]interface{}{"name": "posting-1", "title": "Engineer"}

	first := f.runBatch(t, "batch-1", []map[string]interface{}{raw})
	assert.Equal(t, 1, first.Totals.Create)
	assert.Equal(t, 1, first.Totals.Total)
	assert.False(t, first.HasErrors())
	require.Len(t, first.Items, 1)
	assert.True(t, translate.ValidGuid(first.Items[0].Guid))

	// identical item in a second receipt: no store write beyond the verify
	second := f.runBatch(t, "batch-2", []map[string]interface{}{raw})
	assert.Equal(t, 0, second.Totals.Create)
	assert.Equal(t, 1, second.Totals.NoAction)
	assert.Equal(t, 0, second.Totals.Delete)

	var count int
	require.NoError(t, f.conn.QueryRow(`SELECT COUNT(*) FROM item_documents`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSendUpdateOnChangedHash(t *testing.T) {
	f := newFixture(t)

	f.runBatch(t, "batch-1", []map[string]interface{}{
		{"name": "posting-1", "title": "Engineer"},
	})
	second := f.runBatch(t, "batch-2", []map[string]interface{}{
		{"name": "posting-1", "title": "Senior Engineer"},
	})

	assert.Equal(t, 1, second.Totals.Update)
	assert.Equal(t, 0, second.Totals.Create)
}

func TestFinalizeDeletesMissingItems(t *testing.T) {
	f := newFixture(t)

	f.runBatch(t, "batch-1", []map[string]interface{}{
		{"name": "keep"},
		{"name": "gone"},
	})
	second := f.runBatch(t, "batch-2", []map[string]interface{}{
		{"name": "keep"},
	})

	assert.Equal(t, 1, second.Totals.Delete)
	assert.Equal(t, 2, second.Totals.Total)

	var remaining int
	require.NoError(t, f.conn.QueryRow(`SELECT COUNT(*) FROM item_documents`).Scan(&remaining))
	assert.Equal(t, 1, remaining)

	// archive_on_delete copies the removed document
	var archived int
	require.NoError(t, f.conn.QueryRow(`SELECT COUNT(*) FROM item_documents_archive`).Scan(&archived))
	assert.Equal(t, 1, archived)

	// receipt totals persisted on completion
	receipt, err := f.lineage.PreviousReceipt(context.Background(), f.file.ID, "batch-3")
	require.NoError(t, err)
	assert.Equal(t, "batch-2", receipt.Batch)
	assert.Equal(t, 1, receipt.Totals.Deleted)
	assert.Equal(t, 1, receipt.Totals.Unchanged)
}

func TestSendIncrementalDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.runBatch(t, "batch-1", []map[string]interface{}{{"name": "posting-1"}})

	receipt, err := f.lineage.OpenReceipt(ctx, f.file.ID, "batch-2", time.Now())
	require.NoError(t, err)

	fields := map[string]interface{}{"incrementalOp": "delete"}
	item, err := translate.NewItem(map[string]interface{}{"name": "posting-1"},
		etl.NewResult(fields, fields, nil))
	require.NoError(t, err)
	item.Reconcile("different", true)
	require.NoError(t, f.lineage.LogItem(ctx, item, receipt, f.source.CodePrefix()))

	tr := NewTransmitter(f.items, f.lineage, f.source, f.file, receipt, false, false)
	require.NoError(t, tr.Send(ctx, item))
	assert.Equal(t, 1, tr.Response().Totals.Delete)

	var remaining int
	require.NoError(t, f.conn.QueryRow(`SELECT COUNT(*) FROM item_documents`).Scan(&remaining))
	assert.Zero(t, remaining)
}

func TestFormatStampsReceivedOnlyOnCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receipt, err := f.lineage.OpenReceipt(ctx, f.file.ID, "batch-1", time.Now())
	require.NoError(t, err)
	tr := NewTransmitter(f.items, f.lineage, f.source, f.file, receipt, false, false)

	created, err := translate.NewItem(map[string]interface{}{"name": "a"}, nil)
	require.NoError(t, err)
	created.SetCrudState(translate.CrudCreate)
	require.NoError(t, f.lineage.LogItem(ctx, created, receipt, f.source.CodePrefix()))

	doc, err := tr.Format(created)
	require.NoError(t, err)
	assert.False(t, doc.Internal.Received.IsZero())

	updated, err := translate.NewItem(map[string]interface{}{"name": "b"}, nil)
	require.NoError(t, err)
	updated.SetCrudState(translate.CrudCreate)
	require.NoError(t, f.lineage.LogItem(ctx, updated, receipt, f.source.CodePrefix()))
	updated.SetCrudState(translate.CrudUpdate)

	doc, err = tr.Format(updated)
	require.NoError(t, err)
	assert.True(t, doc.Internal.Received.IsZero())
}

func TestResponseTallies(t *testing.T) {
	r := NewResponse(Batch{Name: "batch-1"}, false)

	r.LogCrudAction(nil, translate.CrudCreate)
	r.LogCrudAction(nil, translate.CrudNone)
	r.LogDeleteGuids([]string{"FTP1-ACME-0000000000000000001"})
	r.LogError("item", 3, assert.AnError)

	assert.Equal(t, 1, r.Totals.Create)
	assert.Equal(t, 1, r.Totals.NoAction)
	assert.Equal(t, 1, r.Totals.Delete)
	assert.Equal(t, 1, r.Totals.Errors)
	assert.Equal(t, 3, r.Totals.Total)
	assert.True(t, r.HasErrors())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, 3, r.Errors[0].Position)
	// non-verbose: no per-item entries
	assert.Empty(t, r.Items)
}
