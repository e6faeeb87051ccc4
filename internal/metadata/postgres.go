package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/media-luna/resonance/internal/apperr"
	"github.com/media-luna/resonance/internal/model"
)

const createPostgresMetadataSchema = `
CREATE TABLE IF NOT EXISTS reference_metadata (
    name TEXT PRIMARY KEY,
    metadata JSONB NOT NULL,
    source_file TEXT,
    debounce_seconds DOUBLE PRECISION,
    date_added TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reference_metadata_gin ON reference_metadata USING GIN (metadata);
`

// Postgres is the JSONB-backed metadata store, using the native GIN
// index and the #>> path operator for dot-path queries (§4.4).
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens its own connection and creates the metadata schema.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperr.Wrap(err, "opening postgres connection")
	}
	if err := db.Ping(); err != nil {
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, err.Error())
	}
	if _, err := db.Exec(createPostgresMetadataSchema); err != nil {
		return nil, apperr.Wrap(err, "creating metadata schema")
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Upsert(ctx context.Context, m model.Metadata) error {
	body, err := json.Marshal(m.Doc)
	if err != nil {
		return apperr.Wrap(err, "marshaling metadata document")
	}
	dateAdded := m.DateAdded
	if dateAdded.IsZero() {
		dateAdded = time.Now()
	}
	_, err = p.db.ExecContext(ctx, `
        INSERT INTO reference_metadata (name, metadata, source_file, debounce_seconds, date_added)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (name) DO UPDATE SET
            metadata = EXCLUDED.metadata,
            source_file = EXCLUDED.source_file,
            debounce_seconds = EXCLUDED.debounce_seconds
    `, m.Name, body, m.SourceFile, m.DebounceSeconds, dateAdded)
	return apperr.Wrap(err, "upserting metadata")
}

func (p *Postgres) Get(ctx context.Context, name string) (model.Metadata, bool, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT name, metadata, source_file, debounce_seconds, date_added FROM reference_metadata WHERE name = $1`, name)
	m, err := scanPostgresRow(row)
	if err == sql.ErrNoRows {
		return model.Metadata{}, false, nil
	}
	if err != nil {
		return model.Metadata{}, false, apperr.Wrap(err, "getting metadata")
	}
	return m, true, nil
}

func (p *Postgres) Delete(ctx context.Context, name string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM reference_metadata WHERE name = $1`, name)
	return apperr.Wrap(err, "deleting metadata")
}

func (p *Postgres) ListAll(ctx context.Context) ([]model.Metadata, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT name, metadata, source_file, debounce_seconds, date_added FROM reference_metadata`)
	if err != nil {
		return nil, apperr.Wrap(err, "listing metadata")
	}
	defer rows.Close()
	return scanPostgresRows(rows)
}

func (p *Postgres) ClearAll(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `TRUNCATE TABLE reference_metadata`)
	return apperr.Wrap(err, "clearing metadata")
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reference_metadata`).Scan(&n)
	return n, apperr.Wrap(err, "counting metadata")
}

// QueryByField uses the #>> path operator, the idiomatic way to reach an
// arbitrary JSON depth in Postgres (as opposed to chaining -> per
// segment), returning the leaf as text for comparison.
func (p *Postgres) QueryByField(ctx context.Context, path string, value any) ([]model.Metadata, error) {
	segments := strings.Split(path, ".")
	rows, err := p.db.QueryContext(ctx, `
        SELECT name, metadata, source_file, debounce_seconds, date_added
        FROM reference_metadata
        WHERE metadata #>> $1 = $2
    `, pq.Array(segments), toText(value))
	if err != nil {
		return nil, apperr.Wrap(err, "querying metadata by field")
	}
	defer rows.Close()
	return scanPostgresRows(rows)
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, _ := json.Marshal(t)
		return strings.Trim(string(b), `"`)
	}
}

func scanPostgresRows(rows *sql.Rows) ([]model.Metadata, error) {
	var out []model.Metadata
	for rows.Next() {
		m, err := scanPostgresRow(rows)
		if err != nil {
			return nil, apperr.Wrap(err, "scanning metadata row")
		}
		out = append(out, m)
	}
	return out, apperr.Wrap(rows.Err(), "iterating metadata rows")
}

// rowScanner abstracts over *sql.Row and *sql.Rows, both of which expose
// Scan with the same signature.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresRow(row rowScanner) (model.Metadata, error) {
	var m model.Metadata
	var body []byte
	var sourceFile sql.NullString
	var debounce sql.NullFloat64

	if err := row.Scan(&m.Name, &body, &sourceFile, &debounce, &m.DateAdded); err != nil {
		return model.Metadata{}, err
	}
	if err := json.Unmarshal(body, &m.Doc); err != nil {
		return model.Metadata{}, apperr.Wrap(err, "unmarshaling metadata document")
	}
	if sourceFile.Valid {
		m.SourceFile = sourceFile.String
	}
	if debounce.Valid {
		v := debounce.Float64
		m.DebounceSeconds = &v
	}
	return m, nil
}
