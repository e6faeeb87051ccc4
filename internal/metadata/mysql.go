package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/media-luna/resonance/internal/apperr"
	"github.com/media-luna/resonance/internal/model"
)

const createMySQLMetadataSchema = `
CREATE TABLE IF NOT EXISTS reference_metadata (
    name VARCHAR(255) PRIMARY KEY,
    metadata JSON NOT NULL,
    source_file VARCHAR(1024),
    debounce_seconds DOUBLE,
    date_added DATETIME NOT NULL
)
`

// MySQL is the JSON-column-backed metadata store, using JSON_EXTRACT for
// dot-path queries (§4.4).
type MySQL struct {
	db *sql.DB
}

// NewMySQL opens a connection and creates the metadata schema.
func NewMySQL(dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, apperr.Wrap(err, "opening mysql connection")
	}
	if err := db.Ping(); err != nil {
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, err.Error())
	}
	if _, err := db.Exec(createMySQLMetadataSchema); err != nil {
		return nil, apperr.Wrap(err, "creating metadata schema")
	}
	return &MySQL{db: db}, nil
}

func (m *MySQL) Close() error { return m.db.Close() }

func (m *MySQL) Upsert(ctx context.Context, md model.Metadata) error {
	body, err := json.Marshal(md.Doc)
	if err != nil {
		return apperr.Wrap(err, "marshaling metadata document")
	}
	dateAdded := md.DateAdded
	if dateAdded.IsZero() {
		dateAdded = time.Now()
	}
	_, err = m.db.ExecContext(ctx, `
        INSERT INTO reference_metadata (name, metadata, source_file, debounce_seconds, date_added)
        VALUES (?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
            metadata = VALUES(metadata),
            source_file = VALUES(source_file),
            debounce_seconds = VALUES(debounce_seconds)
    `, md.Name, body, md.SourceFile, md.DebounceSeconds, dateAdded)
	return apperr.Wrap(err, "upserting metadata")
}

func (m *MySQL) Get(ctx context.Context, name string) (model.Metadata, bool, error) {
	row := m.db.QueryRowContext(ctx,
		"SELECT name, metadata, source_file, debounce_seconds, date_added FROM reference_metadata WHERE name = ?", name)
	md, err := scanMySQLRow(row)
	if err == sql.ErrNoRows {
		return model.Metadata{}, false, nil
	}
	if err != nil {
		return model.Metadata{}, false, apperr.Wrap(err, "getting metadata")
	}
	return md, true, nil
}

func (m *MySQL) Delete(ctx context.Context, name string) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM reference_metadata WHERE name = ?", name)
	return apperr.Wrap(err, "deleting metadata")
}

func (m *MySQL) ListAll(ctx context.Context) ([]model.Metadata, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT name, metadata, source_file, debounce_seconds, date_added FROM reference_metadata")
	if err != nil {
		return nil, apperr.Wrap(err, "listing metadata")
	}
	defer rows.Close()
	return scanMySQLRows(rows)
}

func (m *MySQL) ClearAll(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, "TRUNCATE TABLE reference_metadata")
	return apperr.Wrap(err, "clearing metadata")
}

func (m *MySQL) Count(ctx context.Context) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reference_metadata").Scan(&n)
	return n, apperr.Wrap(err, "counting metadata")
}

// QueryByField uses JSON_EXTRACT($.path) / JSON_UNQUOTE, MySQL's dialect
// for reaching an arbitrary JSON depth.
func (m *MySQL) QueryByField(ctx context.Context, path string, value any) ([]model.Metadata, error) {
	jsonPath := "$." + path
	rows, err := m.db.QueryContext(ctx, `
        SELECT name, metadata, source_file, debounce_seconds, date_added
        FROM reference_metadata
        WHERE JSON_UNQUOTE(JSON_EXTRACT(metadata, ?)) = ?
    `, jsonPath, toText(value))
	if err != nil {
		return nil, apperr.Wrap(err, "querying metadata by field")
	}
	defer rows.Close()
	return scanMySQLRows(rows)
}

func scanMySQLRows(rows *sql.Rows) ([]model.Metadata, error) {
	var out []model.Metadata
	for rows.Next() {
		md, err := scanMySQLRow(rows)
		if err != nil {
			return nil, apperr.Wrap(err, "scanning metadata row")
		}
		out = append(out, md)
	}
	return out, apperr.Wrap(rows.Err(), "iterating metadata rows")
}

func scanMySQLRow(row rowScanner) (model.Metadata, error) {
	var md model.Metadata
	var body []byte
	var sourceFile sql.NullString
	var debounce sql.NullFloat64

	if err := row.Scan(&md.Name, &body, &sourceFile, &debounce, &md.DateAdded); err != nil {
		return model.Metadata{}, err
	}
	if err := json.Unmarshal(body, &md.Doc); err != nil {
		return model.Metadata{}, fmt.Errorf("unmarshaling metadata document: %w", err)
	}
	if sourceFile.Valid {
		md.SourceFile = sourceFile.String
	}
	if debounce.Valid {
		v := debounce.Float64
		md.DebounceSeconds = &v
	}
	return md, nil
}
