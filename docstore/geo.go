package docstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/seamline/ingest/errors"
)

// Geo is the postal-code reference store behind the geospatial transform
// library. Implements etl.ZipFinder.
type Geo struct {
	db *sql.DB
}

// NewGeo creates the geo reference store.
func NewGeo(db *sql.DB) *Geo {
	return &Geo{db: db}
}

// FindZipByStateCity returns a postal code for the state/city pair, or ""
// when the pair is unknown. Two-letter states match the state code, longer
// names the state name; stored values are uppercase.
func (g *Geo) FindZipByStateCity(state, city string) (string, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	city = strings.ToUpper(strings.TrimSpace(city))
	if state == "" || city == "" {
		return "", nil
	}

	stateColumn := "state_name"
	if len(state) == 2 {
		stateColumn = "state_code"
	}

	var zip string
	err := g.db.QueryRow(`
		SELECT postal_code FROM geo_postal_codes
		WHERE `+stateColumn+` = ? AND city = ?
		ORDER BY postal_code LIMIT 1`,
		state, city).Scan(&zip)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "looking up postal code")
	}
	return zip, nil
}

// Load bulk-inserts reference rows, normalizing case on the way in.
func (g *Geo) Load(ctx context.Context, rows [][4]string) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "loading geo reference")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO geo_postal_codes (state_code, state_name, city, postal_code)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "loading geo reference")
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			strings.ToUpper(row[0]), strings.ToUpper(row[1]),
			strings.ToUpper(row[2]), row[3]); err != nil {
			return errors.Wrap(err, "loading geo reference")
		}
	}
	return errors.Wrap(tx.Commit(), "loading geo reference")
}
