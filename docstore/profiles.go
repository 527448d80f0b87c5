package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/seamline/ingest/errors"
)

// Profiles stores ETL mapping documents, looked up by id or stable key.
// Implements etl.ProfileSource.
type Profiles struct {
	db *sql.DB
}

// NewProfiles creates the profile store.
func NewProfiles(db *sql.DB) *Profiles {
	return &Profiles{db: db}
}

// GetProfile returns the mapping document with the given id.
func (s *Profiles) GetProfile(ctx context.Context, id string) (map[string]interface{}, error) {
	return s.get(ctx, `SELECT id, key, doc FROM etl_profiles WHERE id = ?`, id)
}

// GetProfileByKey returns the mapping document registered under key,
// newest first when the key was re-registered.
func (s *Profiles) GetProfileByKey(ctx context.Context, key string) (map[string]interface{}, error) {
	return s.get(ctx, `
		SELECT id, key, doc FROM etl_profiles
		WHERE key = ? ORDER BY modified DESC LIMIT 1`, key)
}

func (s *Profiles) get(ctx context.Context, query, arg string) (map[string]interface{}, error) {
	var id, raw string
	var key sql.NullString
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&id, &key, &raw)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("profile %s", arg)
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading profile")
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, errors.Wrapf(err, "decoding profile %s", id)
	}
	// columns are authoritative over whatever the document claims
	doc["id"] = id
	if key.Valid {
		doc["key"] = key.String
	}
	return doc, nil
}

// Save stores a mapping document, minting an id when it has none, and
// returns the id.
func (s *Profiles) Save(ctx context.Context, key string, doc map[string]interface{}) (string, error) {
	id, _ := doc["id"].(string)
	if id == "" {
		id = uuid.NewString()
		doc["id"] = id
	}
	doc["key"] = key

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "encoding profile")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO etl_profiles (id, key, doc) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET key = excluded.key, doc = excluded.doc,
			modified = ?`,
		id, key, string(raw), time.Now().UTC())
	if err != nil {
		return "", errors.Wrap(err, "saving profile")
	}
	return id, nil
}

// List returns the registered profile keys with their ids.
func (s *Profiles) List(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, key FROM etl_profiles ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, "listing profiles")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id string
		var key sql.NullString
		if err := rows.Scan(&id, &key); err != nil {
			return nil, errors.Wrap(err, "listing profiles")
		}
		out[key.String] = id
	}
	return out, rows.Err()
}
