package translate

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seamline/ingest/errors"
	"github.com/seamline/ingest/logger"
)

// Source is one registered feed source under a source type.
type Source struct {
	ID       int64
	TypeCode string
	Code     string
	Name     string
}

// CodePrefix is the guid prefix minted for this source's items.
func (s *Source) CodePrefix() string {
	return strings.ToUpper(s.TypeCode + "-" + s.Code + "-")
}

// SourceFile is one named file delivered by a source.
type SourceFile struct {
	ID       int64
	SourceID int64
	Name     string
}

// CrudTotals accumulates a receipt's outcome counts.
type CrudTotals struct {
	Total     int
	Added     int
	Updated   int
	Unchanged int
	Deleted   int
}

// Receipt is one processing of one file: the unit of lineage that
// reconciliation diffs against.
type Receipt struct {
	ID        int64
	FileID    int64
	Batch     string
	Received  time.Time
	Started   time.Time
	Completed *time.Time
	Totals    CrudTotals
}

// DeleteCandidate is an item present in the previous receipt but absent
// from the current one.
type DeleteCandidate struct {
	UniqueID string
	Guid     string
}

// Store persists file lineage: sources, receipts, item logs, and the
// durable guid authority.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewStore creates a lineage store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, logger: logger.ComponentLogger("translate")}
}

// FindSourceFile resolves an enabled source and file by source type code
// and file name.
func (s *Store) FindSourceFile(ctx context.Context, typeCode, fileName string) (*Source, *SourceFile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT src.id, st.code, src.code, src.name, f.id, f.name
		FROM input_source_type st
		JOIN input_source src ON src.source_type_id = st.id
		JOIN input_source_file f ON f.source_id = src.id
		WHERE st.code = ? AND f.name = ?
		  AND st.enabled = 1 AND src.enabled = 1 AND f.enabled = 1`,
		typeCode, fileName)

	source := &Source{}
	file := &SourceFile{}
	err := row.Scan(&source.ID, &source.TypeCode, &source.Code, &source.Name, &file.ID, &file.Name)
	if err == sql.ErrNoRows {
		return nil, nil, errors.NewNotFoundError("no enabled source for type %q file %q", typeCode, fileName)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "looking up source file")
	}
	file.SourceID = source.ID
	return source, file, nil
}

// OpenReceipt finds or creates the receipt for a file/batch pair. A
// re-run of the same batch resumes its existing receipt.
func (s *Store) OpenReceipt(ctx context.Context, fileID int64, batch string, received time.Time) (*Receipt, error) {
	existing, err := s.receiptBy(ctx, `fl.file_id = ? AND fl.batch = ?`, fileID, batch)
	if err == nil {
		return existing, nil
	}
	if !errors.IsNotFoundError(err) {
		return nil, err
	}

	started := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO input_source_file_log (file_id, batch, received, started)
		VALUES (?, ?, ?, ?)`,
		fileID, batch, received.UTC(), started)
	if err != nil {
		return nil, errors.Wrap(err, "opening receipt")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "opening receipt")
	}

	s.logger.Infow("Opened receipt",
		logger.FieldBatch, batch,
		logger.FieldFileLogID, id,
	)
	return &Receipt{ID: id, FileID: fileID, Batch: batch, Received: received.UTC(), Started: started}, nil
}

// PreviousReceipt returns the latest completed receipt of the same file
// under a different batch, the baseline for reconciliation.
func (s *Store) PreviousReceipt(ctx context.Context, fileID int64, batch string) (*Receipt, error) {
	return s.receiptBy(ctx, `
		fl.file_id = ? AND fl.batch != ? AND fl.completed IS NOT NULL
		ORDER BY fl.received DESC, fl.id DESC`, fileID, batch)
}

func (s *Store) receiptBy(ctx context.Context, where string, args ...interface{}) (*Receipt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fl.id, fl.file_id, fl.batch, fl.received, fl.started, fl.completed,
		       fl.total, fl.total_added, fl.total_updated, fl.total_unchanged, fl.total_deleted
		FROM input_source_file_log fl
		WHERE `+where+` LIMIT 1`, args...)

	r := &Receipt{}
	var completed sql.NullTime
	err := row.Scan(&r.ID, &r.FileID, &r.Batch, &r.Received, &r.Started, &completed,
		&r.Totals.Total, &r.Totals.Added, &r.Totals.Updated, &r.Totals.Unchanged, &r.Totals.Deleted)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("receipt not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading receipt")
	}
	if completed.Valid {
		t := completed.Time
		r.Completed = &t
	}
	return r, nil
}

// CompleteReceipt stamps the receipt done and persists its totals.
func (s *Store) CompleteReceipt(ctx context.Context, receiptID int64, totals CrudTotals) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE input_source_file_log
		SET completed = ?, total = ?, total_added = ?, total_updated = ?,
		    total_unchanged = ?, total_deleted = ?
		WHERE id = ?`,
		time.Now().UTC(), totals.Total, totals.Added, totals.Updated,
		totals.Unchanged, totals.Deleted, receiptID)
	if err != nil {
		return errors.Wrap(err, "completing receipt")
	}
	return nil
}

// ReceiptHashes returns uniqueId -> hash for every item logged under a
// receipt.
func (s *Store) ReceiptHashes(ctx context.Context, receiptID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unique_id, hash FROM input_source_item_log WHERE file_log_id = ?`,
		receiptID)
	if err != nil {
		return nil, errors.Wrap(err, "loading receipt hashes")
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var uniqueID, hash string
		if err := rows.Scan(&uniqueID, &hash); err != nil {
			return nil, errors.Wrap(err, "loading receipt hashes")
		}
		hashes[uniqueID] = hash
	}
	return hashes, rows.Err()
}

// LogItem persists the item's receipt row and establishes its durable
// identity. A create mints a new guid from the item's log id; any other
// state repoints the existing authority row at the new log row.
func (s *Store) LogItem(ctx context.Context, item *Item, receipt *Receipt, codePrefix string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO input_source_item_log (file_log_id, unique_id, hash)
		VALUES (?, ?, ?)`,
		receipt.ID, item.UniqueID(), item.Hash())
	if err != nil {
		return errors.Wrap(err, "logging item")
	}
	logID, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "logging item")
	}

	if item.EffectiveCrudState() == CrudCreate {
		guid := FormatGuid(codePrefix, logID)
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO input_item (log_id, item_guid) VALUES (?, ?)`,
			logID, guid)
		if err != nil {
			return errors.Wrap(err, "creating item authority")
		}
		itemID, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "creating item authority")
		}
		item.setIdentity(itemID, logID, guid)
		return nil
	}

	itemID, guid, err := s.findAuthority(ctx, receipt.FileID, item.UniqueID())
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE input_item SET log_id = ? WHERE id = ?`, logID, itemID); err != nil {
		return errors.Wrap(err, "advancing item authority")
	}
	item.setIdentity(itemID, logID, guid)
	return nil
}

// findAuthority locates the durable row for a unique id within a file's
// lineage.
func (s *Store) findAuthority(ctx context.Context, fileID int64, uniqueID string) (int64, string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ii.id, ii.item_guid
		FROM input_item ii
		JOIN input_source_item_log il ON il.id = ii.log_id
		JOIN input_source_file_log fl ON fl.id = il.file_log_id
		WHERE fl.file_id = ? AND il.unique_id = ?
		ORDER BY ii.id DESC LIMIT 1`,
		fileID, uniqueID)

	var itemID int64
	var guid string
	err := row.Scan(&itemID, &guid)
	if err == sql.ErrNoRows {
		return 0, "", errors.NewNotFoundError("no authority row for item %q", uniqueID)
	}
	if err != nil {
		return 0, "", errors.Wrap(err, "looking up item authority")
	}
	return itemID, guid, nil
}

// ItemsToDelete diffs two receipts: items logged in the previous receipt
// whose unique ids never appeared in the current one, with their guids.
func (s *Store) ItemsToDelete(ctx context.Context, previousID, currentID int64) ([]DeleteCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT il.unique_id, ii.item_guid
		FROM input_source_item_log il
		JOIN input_item ii ON ii.log_id = il.id
		WHERE il.file_log_id = ?
		  AND il.unique_id NOT IN (
			SELECT unique_id FROM input_source_item_log WHERE file_log_id = ?
		  )`,
		previousID, currentID)
	if err != nil {
		return nil, errors.Wrap(err, "diffing receipts")
	}
	defer rows.Close()

	var candidates []DeleteCandidate
	for rows.Next() {
		var c DeleteCandidate
		if err := rows.Scan(&c.UniqueID, &c.Guid); err != nil {
			return nil, errors.Wrap(err, "diffing receipts")
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// FileConfig returns the file's effective settings: source config overlaid
// by per-file config.
func (s *Store) FileConfig(ctx context.Context, sourceID, fileID int64) (map[string]string, error) {
	config := make(map[string]string)

	load := func(query string, id int64) error {
		rows, err := s.db.QueryContext(ctx, query, id)
		if err != nil {
			return errors.Wrap(err, "loading file config")
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var value sql.NullString
			if err := rows.Scan(&key, &value); err != nil {
				return errors.Wrap(err, "loading file config")
			}
			config[key] = value.String
		}
		return rows.Err()
	}

	if err := load(`SELECT key, value FROM input_source_config WHERE source_id = ?`, sourceID); err != nil {
		return nil, err
	}
	if err := load(`SELECT key, value FROM input_source_file_config WHERE file_id = ?`, fileID); err != nil {
		return nil, err
	}
	return config, nil
}

// NotifyRecipients returns the enabled downstream workers for a source.
func (s *Store) NotifyRecipients(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT worker FROM input_source_notify WHERE source_id = ? AND enabled = 1`,
		sourceID)
	if err != nil {
		return nil, errors.Wrap(err, "loading notify recipients")
	}
	defer rows.Close()

	var workers []string
	for rows.Next() {
		var worker string
		if err := rows.Scan(&worker); err != nil {
			return nil, errors.Wrap(err, "loading notify recipients")
		}
		workers = append(workers, worker)
	}
	return workers, rows.Err()
}
