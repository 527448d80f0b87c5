package intake

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamline/ingest/config"
	"github.com/seamline/ingest/docstore"
	"github.com/seamline/ingest/errors"
	testdb "github.com/seamline/ingest/internal/testing"
	"github.com/seamline/ingest/notify"
)

type testPipeline struct {
	conn      *sql.DB
	processor *Processor
	sharePath string
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	conn := testdb.CreateMigratedTestDB(t)
	sharePath := t.TempDir()

	_, err := conn.Exec(`INSERT INTO input_source_type (code, name) VALUES ('FTP1', 'FTP drop')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO input_source (source_type_id, code, name) VALUES (1, 'acme', 'Acme Jobs')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO input_source_file (source_id, name) VALUES (1, 'jobs.txt')`)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Import.SharePath = sharePath
	cfg.Import.MaxSyncRetries = 2
	cfg.Import.Verbose = true
	cfg.Notify.Enabled = true

	return &testPipeline{
		conn:      conn,
		processor: NewProcessor(conn, cfg),
		sharePath: sharePath,
	}
}

// writeFeed drops a packet file into the share directory.
func (p *testPipeline) writeFeed(t *testing.T, lines ...string) {
	t.Helper()
	content := "--==Begin==--\n"
	for _, line := range lines {
		content += line + "\n"
	}
	content += "--==End==--\n"
	require.NoError(t, os.WriteFile(filepath.Join(p.sharePath, "jobs.txt"), []byte(content), 0o644))
}

func feedLine(t *testing.T, data map[string]interface{}) string {
	t.Helper()
	encoded, err := json.Marshal(map[string]interface{}{
		"data":   data,
		"source": map[string]interface{}{"feed": "acme"},
	})
	require.NoError(t, err)
	return string(encoded)
}

func TestProcessFileCreatesItems(t *testing.T) {
	p := newTestPipeline(t)
	p.writeFeed(t,
		feedLine(t, map[string]interface{}{"name": "posting-1", "title": "Engineer"}),
		feedLine(t, map[string]interface{}{"name": "posting-2", "title": "Analyst"}),
	)

	response, err := p.processor.ProcessFile(context.Background(), "FTP1", "jobs.txt")
	require.NoError(t, err)

	assert.Equal(t, 2, response.Totals.Create)
	assert.Equal(t, 2, response.Totals.Total)
	assert.False(t, response.HasErrors())
	require.Len(t, response.Items, 2)

	var count int
	require.NoError(t, p.conn.QueryRow(`SELECT COUNT(*) FROM item_documents`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestProcessFileReprocessIsNoAction(t *testing.T) {
	p := newTestPipeline(t)
	p.writeFeed(t, feedLine(t, map[string]interface{}{"name": "posting-1"}))

	_, err := p.processor.ProcessFile(context.Background(), "FTP1", "jobs.txt")
	require.NoError(t, err)

	second, err := p.processor.ProcessFile(context.Background(), "FTP1", "jobs.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Totals.Create)
	assert.Equal(t, 1, second.Totals.NoAction)

	var count int
	require.NoError(t, p.conn.QueryRow(`SELECT COUNT(*) FROM item_documents`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestProcessFileDeletesMissing(t *testing.T) {
	p := newTestPipeline(t)
	p.writeFeed(t,
		feedLine(t, map[string]interface{}{"name": "keep"}),
		feedLine(t, map[string]interface{}{"name": "gone"}),
	)
	_, err := p.processor.ProcessFile(context.Background(), "FTP1", "jobs.txt")
	require.NoError(t, err)

	p.writeFeed(t, feedLine(t, map[string]interface{}{"name": "keep"}))
	second, err := p.processor.ProcessFile(context.Background(), "FTP1", "jobs.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Totals.Delete)

	var count int
	require.NoError(t, p.conn.QueryRow(`SELECT COUNT(*) FROM item_documents`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestProcessFileMalformedLineContinues(t *testing.T) {
	p := newTestPipeline(t)
	p.writeFeed(t,
		feedLine(t, map[string]interface{}{"name": "posting-1"}),
		`{"broken json`,
		feedLine(t, map[string]interface{}{"name": "posting-2"}),
	)

	response, err := p.processor.ProcessFile(context.Background(), "FTP1", "jobs.txt")
	require.NoError(t, err)

	assert.Equal(t, 2, response.Totals.Create)
	assert.Equal(t, 1, response.Totals.Errors)
	assert.True(t, response.HasErrors())
	require.Len(t, response.Errors, 1)
	assert.Equal(t, "parse", response.Errors[0].Type)
}

func TestProcessFileItemWithoutIdentifierContinues(t *testing.T) {
	p := newTestPipeline(t)
	p.writeFeed(t,
		feedLine(t, map[string]interface{}{"title": "no identifier"}),
		feedLine(t, map[string]interface{}{"name": "posting-1"}),
	)

	response, err := p.processor.ProcessFile(context.Background(), "FTP1", "jobs.txt")
	require.NoError(t, err)

	assert.Equal(t, 1, response.Totals.Create)
	assert.Equal(t, 1, response.Totals.Errors)
	assert.Equal(t, "item", response.Errors[0].Type)
	assert.Equal(t, 1, response.Errors[0].Position)
}

func TestProcessFileIncompletePacketAborts(t *testing.T) {
	p := newTestPipeline(t)
	content := "--==Begin==--\n" + feedLine(t, map[string]interface{}{"name": "a"}) + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(p.sharePath, "jobs.txt"), []byte(content), 0o644))

	_, err := p.processor.ProcessFile(context.Background(), "FTP1", "jobs.txt")
	assert.True(t, errors.IsIncompleteFileError(err))

	// nothing was logged or synced
	var count int
	require.NoError(t, p.conn.QueryRow(`SELECT COUNT(*) FROM item_documents`).Scan(&count))
	assert.Zero(t, count)
}

func TestProcessFileUnknownSource(t *testing.T) {
	p := newTestPipeline(t)
	_, err := p.processor.ProcessFile(context.Background(), "FTP1", "other.txt")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestProcessFileWithEtlProfile(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	profileDoc := map[string]interface{}{
		"key": "acme-jobs",
		"profileKeys": map[string]interface{}{
			"extract": map[string]interface{}{
				"fields": []interface{}{
					map[string]interface{}{"name": "uniqueId", "location": "/name"},
					map[string]interface{}{"name": "company", "location": "/company"},
					map[string]interface{}{"name": "loc_city", "location": "/city"},
					map[string]interface{}{"name": "loc_state", "location": "/state"},
				},
			},
			"transform": map[string]interface{}{
				"fields": []interface{}{
					map[string]interface{}{
						"var":    "zip",
						"method": "Geospatial|findZipByStateCity",
						"args":   []interface{}{"{{loc_state}}", "{{loc_city}}"},
					},
				},
			},
			"load": map[string]interface{}{
				"type": "struct",
				"fields": []interface{}{
					map[string]interface{}{"name": "uniqueId"},
					map[string]interface{}{"name": "company"},
					map[string]interface{}{"name": "zip"},
				},
			},
		},
	}
	_, err := docstore.NewProfiles(p.conn).Save(ctx, "acme-jobs", profileDoc)
	require.NoError(t, err)
	require.NoError(t, docstore.NewGeo(p.conn).Load(ctx, [][4]string{
		{"NV", "NEVADA", "RENO", "89501"},
	}))
	_, err = p.conn.Exec(`
		INSERT INTO input_source_file_config (file_id, key, value)
		VALUES (1, 'profile', 'acme-jobs')`)
	require.NoError(t, err)

	p.writeFeed(t, feedLine(t, map[string]interface{}{
		"name": "posting-1", "company": "Acme", "city": "Reno", "state": "NV",
	}))

	response, err := p.processor.ProcessFile(ctx, "FTP1", "jobs.txt")
	require.NoError(t, err)
	require.Equal(t, 1, response.Totals.Create)

	items := docstore.NewItems(p.conn, 1, 0)
	doc, err := items.FindByGuid(ctx, response.Items[0].Guid)
	require.NoError(t, err)
	assert.Equal(t, "posting-1", doc.Item.UniqueID)
	assert.Equal(t, "Acme", doc.SourceMap.Data["company"])
	assert.Equal(t, "89501", doc.SourceMap.Data["zip"])
}

func TestProcessFileEnqueuesNotifyJobs(t *testing.T) {
	p := newTestPipeline(t)
	_, err := p.conn.Exec(`
		INSERT INTO input_source_notify (source_id, worker, enabled)
		VALUES (1, 'search-index', 1), (1, 'disabled-worker', 0)`)
	require.NoError(t, err)

	p.writeFeed(t, feedLine(t, map[string]interface{}{"name": "posting-1"}))

	response, err := p.processor.ProcessFile(context.Background(), "FTP1", "jobs.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"search-index"}, response.WorkersNotified)

	jobs, err := notify.NewStore(p.conn).ListJobs(context.Background(), notify.JobStatusQueued, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "search-index", jobs[0].Worker)

	var payload struct {
		Totals struct {
			Create int `json:"create"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
	assert.Equal(t, 1, payload.Totals.Create)
}
