package docstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seamline/ingest/errors"
	"github.com/seamline/ingest/logger"
	"github.com/seamline/ingest/translate"
)

// VerifyStatus is the store's view of one guid before a mutation.
type VerifyStatus string

const (
	VerifyNotExist  VerifyStatus = "notExist"
	VerifyMatch     VerifyStatus = "match"
	VerifyDifferent VerifyStatus = "different"
	VerifyDuplicate VerifyStatus = "duplicate"
	VerifyUnknown   VerifyStatus = "unknown"
)

// SyncAction is what Sync actually did for an item.
type SyncAction string

const (
	SyncInserted SyncAction = "inserted"
	SyncUpdated  SyncAction = "updated"
	SyncNone     SyncAction = "none"
)

// Upsert dispositions.
type UpsertDisposition string

const (
	UpsertInserted UpsertDisposition = "inserted"
	UpsertUpdated  UpsertDisposition = "updated"
	UpsertError    UpsertDisposition = "error"
)

const (
	// DefaultMaxRetries bounds transient-failure retries per upsert.
	DefaultMaxRetries = 5
	// DefaultRetryBackoff is the fixed sleep between attempts. Fixed, not
	// exponential: downstream monitoring keys off the observed timing.
	DefaultRetryBackoff = 500 * time.Millisecond

	// ArchiveTTL is how long archived documents are retained (5 weeks).
	ArchiveTTL = 3024000 * time.Second
)

// NormalizeGuid uppercases and shape-checks a durable identifier.
func NormalizeGuid(guid string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(guid))
	if !translate.ValidGuid(normalized) {
		return "", errors.NewInvalidInputError("malformed guid %q", guid)
	}
	return normalized, nil
}

// Items is the synced item document store.
type Items struct {
	db         *sql.DB
	maxRetries int
	backoff    time.Duration
	sleep      func(time.Duration)
	logger     *zap.SugaredLogger
}

// NewItems creates the item store. maxRetries is floored at one attempt;
// non-positive backoff falls back to the default.
func NewItems(db *sql.DB, maxRetries int, backoff time.Duration) *Items {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &Items{
		db:         db,
		maxRetries: maxRetries,
		backoff:    backoff,
		sleep:      time.Sleep,
		logger:     logger.ComponentLogger("docstore.items"),
	}
}

// CountByGuid counts documents currently stored under a guid.
func (s *Items) CountByGuid(ctx context.Context, guid string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM item_documents WHERE guid = ?`, guid).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "counting documents")
	}
	return count, nil
}

// FindByGuid returns the stored document for a guid, or a not-found error.
func (s *Items) FindByGuid(ctx context.Context, guid string) (*ItemDocument, error) {
	normalized, err := NormalizeGuid(guid)
	if err != nil {
		return nil, err
	}

	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT doc FROM item_documents WHERE guid = ? ORDER BY last_change DESC LIMIT 1`,
		normalized).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("no document for guid %s", normalized)
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading document")
	}
	return DecodeItemDocument(raw)
}

// Verify maps the store state for a document's guid to a status. An
// envelope missing any comparison field is unknown: the protocol refuses
// to guess.
func (s *Items) Verify(ctx context.Context, doc *ItemDocument) (VerifyStatus, error) {
	if doc.Source.ID == 0 || doc.Source.File == "" ||
		doc.Internal.RawDataHash == "" || doc.Item.UniqueID == "" {
		return VerifyUnknown, nil
	}

	guid, err := NormalizeGuid(doc.Internal.Guid)
	if err != nil {
		return VerifyUnknown, err
	}

	count, err := s.CountByGuid(ctx, guid)
	if err != nil {
		return VerifyUnknown, err
	}
	switch {
	case count == 0:
		return VerifyNotExist, nil
	case count > 1:
		return VerifyDuplicate, nil
	}

	var sourceID int64
	var sourceFile, hash, uniqueID string
	err = s.db.QueryRowContext(ctx, `
		SELECT source_id, source_file, raw_data_hash, unique_id
		FROM item_documents WHERE guid = ?`, guid).
		Scan(&sourceID, &sourceFile, &hash, &uniqueID)
	if err != nil {
		return VerifyUnknown, errors.Wrap(err, "verifying document")
	}

	if sourceID == doc.Source.ID && sourceFile == doc.Source.File &&
		hash == doc.Internal.RawDataHash && uniqueID == doc.Item.UniqueID {
		return VerifyMatch, nil
	}
	return VerifyDifferent, nil
}

// Sync reconciles one document with the store: verify, then act on the
// status. A duplicate is self-healed by deleting every copy and retrying
// the whole sync exactly once; a duplicate after cleanup is a consistency
// fault, not another retry.
func (s *Items) Sync(ctx context.Context, doc *ItemDocument) (SyncAction, error) {
	cleaned := false
	for {
		status, err := s.Verify(ctx, doc)
		if err != nil {
			return "", err
		}

		switch status {
		case VerifyMatch:
			return SyncNone, nil

		case VerifyNotExist, VerifyDifferent:
			disposition, err := s.Upsert(ctx, doc)
			if err != nil {
				return "", err
			}
			switch disposition {
			case UpsertInserted:
				return SyncInserted, nil
			case UpsertUpdated:
				return SyncUpdated, nil
			default:
				return "", errors.Wrap(errors.ErrConflict,
					"upsert touched no rows")
			}

		case VerifyDuplicate:
			if cleaned {
				return "", errors.Wrapf(errors.ErrConflict,
					"guid %s still duplicated after cleanup", doc.Internal.Guid)
			}
			guid, err := NormalizeGuid(doc.Internal.Guid)
			if err != nil {
				return "", err
			}
			deleted, err := s.Delete(ctx, []string{guid}, false)
			if err != nil {
				return "", err
			}
			s.logger.Warnw("Removed duplicate documents",
				logger.FieldGuid, guid,
				"deleted", deleted,
			)
			cleaned = true

		default:
			return "", errors.NewInvalidInputError(
				"cannot sync document with incomplete envelope (guid %q)", doc.Internal.Guid)
		}
	}
}

// Upsert writes the full document, replacing whatever is stored for its
// guid. Transient failures are retried with a fixed backoff up to the
// configured attempt ceiling; the final error is re-raised unmasked.
func (s *Items) Upsert(ctx context.Context, doc *ItemDocument) (UpsertDisposition, error) {
	guid, err := NormalizeGuid(doc.Internal.Guid)
	if err != nil {
		return UpsertError, err
	}
	raw, err := doc.Encode()
	if err != nil {
		return UpsertError, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if attempt > 1 {
			s.sleep(s.backoff)
		}

		disposition, err := s.writeDocument(ctx, guid, doc, raw)
		if err == nil {
			return disposition, nil
		}
		lastErr = err
		s.logger.Warnw("Document write failed",
			logger.FieldGuid, guid,
			"attempt", attempt,
			"error", err,
		)
	}
	return UpsertError, lastErr
}

func (s *Items) writeDocument(ctx context.Context, guid string, doc *ItemDocument, raw string) (UpsertDisposition, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertError, errors.Wrap(err, "writing document")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE item_documents
		SET source_id = ?, source_type = ?, source_file = ?, source_file_id = ?,
		    unique_id = ?, raw_data_hash = ?, import_id = ?, last_change = ?,
		    received = ?, doc = ?
		WHERE guid = ?`,
		doc.Source.ID, doc.Source.Type, doc.Source.File, doc.Source.FileID,
		doc.Item.UniqueID, doc.Internal.RawDataHash, doc.Internal.ImportID,
		doc.Internal.LastChange, doc.Internal.Received, raw, guid)
	if err != nil {
		return UpsertError, errors.Wrap(err, "writing document")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return UpsertError, errors.Wrap(err, "writing document")
	}

	if affected == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO item_documents
			(guid, source_id, source_type, source_file, source_file_id,
			 unique_id, raw_data_hash, import_id, last_change, received, doc)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			guid, doc.Source.ID, doc.Source.Type, doc.Source.File, doc.Source.FileID,
			doc.Item.UniqueID, doc.Internal.RawDataHash, doc.Internal.ImportID,
			doc.Internal.LastChange, doc.Internal.Received, raw)
		if err != nil {
			return UpsertError, errors.Wrap(err, "writing document")
		}
		if affected, err = res.RowsAffected(); err != nil {
			return UpsertError, errors.Wrap(err, "writing document")
		}
		if affected != 1 {
			return UpsertError, errors.Wrap(errors.ErrConflict, "insert touched no rows")
		}
		if err := tx.Commit(); err != nil {
			return UpsertError, errors.Wrap(err, "writing document")
		}
		return UpsertInserted, nil
	}

	if err := tx.Commit(); err != nil {
		return UpsertError, errors.Wrap(err, "writing document")
	}
	return UpsertUpdated, nil
}

// Delete removes every document for the given guids. With archive set,
// copies land in the archive table first, stamped with a fresh lastChange
// and an expiry ArchiveTTL out.
func (s *Items) Delete(ctx context.Context, guids []string, archive bool) (int64, error) {
	if len(guids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(guids)), ",")
	args := make([]interface{}, len(guids))
	for i, guid := range guids {
		args[i] = guid
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "deleting documents")
	}
	defer tx.Rollback()

	if archive {
		now := time.Now().UTC()
		archiveArgs := append([]interface{}{now, now.Add(ArchiveTTL)}, args...)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO item_documents_archive
			(guid, source_file_id, unique_id, last_change, expires_at, doc)
			SELECT guid, source_file_id, unique_id, ?, ?, doc
			FROM item_documents WHERE guid IN (`+placeholders+`)`,
			archiveArgs...); err != nil {
			return 0, errors.Wrap(err, "archiving documents")
		}
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM item_documents WHERE guid IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting documents")
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting documents")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "deleting documents")
	}
	return deleted, nil
}

// PurgeExpired drops archived documents past their expiry.
func (s *Items) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM item_documents_archive WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "purging archive")
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "purging archive")
	}
	if purged > 0 {
		s.logger.Infow("Purged expired archive documents", "purged", purged)
	}
	return purged, nil
}
