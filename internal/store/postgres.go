package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/media-luna/resonance/internal/apperr"
	"github.com/media-luna/resonance/internal/fingerprint"
	"github.com/media-luna/resonance/internal/model"
)

const createPostgresSchema = `
CREATE TABLE IF NOT EXISTS "references" (
    reference_id SERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    fingerprinted BOOLEAN NOT NULL DEFAULT FALSE,
    content_digest TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS postings (
    hash TEXT NOT NULL,
    reference_id INTEGER NOT NULL REFERENCES "references"(reference_id) ON DELETE CASCADE,
    time_offset INTEGER NOT NULL,
    UNIQUE (reference_id, time_offset, hash)
);

CREATE INDEX IF NOT EXISTS idx_postings_hash ON postings (hash);
`

// Postgres is the server-based relational backing with transactional
// integrity (§4.3, §9).
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection, pings it, and creates the schema if it
// does not already exist, following the same open/ping/migrate sequence
// as the pack's PostgresClient constructor.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperr.Wrap(err, "opening postgres connection")
	}
	if err := db.Ping(); err != nil {
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, err.Error())
	}
	if _, err := db.Exec(createPostgresSchema); err != nil {
		return nil, apperr.Wrap(err, "creating postgres schema")
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Empty(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `TRUNCATE TABLE postings, "references" RESTART IDENTITY CASCADE`)
	return apperr.Wrap(err, "emptying postgres store")
}

func (p *Postgres) InsertReference(ctx context.Context, name, contentDigest string) (uint32, error) {
	var id uint32
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO "references" (name, fingerprinted, content_digest) VALUES ($1, FALSE, $2) RETURNING reference_id`,
		name, contentDigest,
	).Scan(&id)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return 0, apperr.ErrDuplicateReference
		}
		return 0, apperr.Wrap(err, "inserting reference")
	}
	return id, nil
}

func (p *Postgres) SetFingerprinted(ctx context.Context, referenceID uint32) error {
	_, err := p.db.ExecContext(ctx, `UPDATE "references" SET fingerprinted = TRUE WHERE reference_id = $1`, referenceID)
	return apperr.Wrap(err, "marking reference fingerprinted")
}

func (p *Postgres) InsertPosting(ctx context.Context, hash string, referenceID uint32, offset uint32) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO postings (hash, reference_id, time_offset) VALUES ($1, $2, $3) ON CONFLICT (reference_id, time_offset, hash) DO NOTHING`,
		hash, referenceID, offset,
	)
	return apperr.Wrap(err, "inserting posting")
}

// InsertPostingsBatch batches postings into multi-row INSERT statements
// of at most batchInsertSize rows each, inside a single transaction, the
// same shape as the pack's batched Postgres insert (StoreFingerprints).
func (p *Postgres) InsertPostingsBatch(ctx context.Context, referenceID uint32, pairs []fingerprint.Pair) error {
	if len(pairs) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, "beginning postings batch transaction")
	}
	defer tx.Rollback()

	for start := 0; start < len(pairs); start += batchInsertSize {
		end := start + batchInsertSize
		if end > len(pairs) {
			end = len(pairs)
		}
		chunk := pairs[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO postings (hash, reference_id, time_offset) VALUES `)
		args := make([]any, 0, len(chunk)*3)
		for i, pair := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			base := i * 3
			sb.WriteString(placeholders(base+1, base+2, base+3))
			args = append(args, pair.Hash, referenceID, pair.Offset)
		}
		sb.WriteString(` ON CONFLICT (reference_id, time_offset, hash) DO NOTHING`)

		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return apperr.Wrap(err, "inserting postings batch")
		}
	}

	return apperr.Wrap(tx.Commit(), "committing postings batch")
}

func placeholders(a, b, c int) string {
	return "($" + strconv.Itoa(a) + ",$" + strconv.Itoa(b) + ",$" + strconv.Itoa(c) + ")"
}

func (p *Postgres) DeleteReference(ctx context.Context, referenceID uint32) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM "references" WHERE reference_id = $1`, referenceID)
	return apperr.Wrap(err, "deleting reference")
}

func (p *Postgres) ListReferences(ctx context.Context) ([]model.Reference, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT reference_id, name, content_digest, fingerprinted FROM "references" WHERE fingerprinted = TRUE`)
	if err != nil {
		return nil, apperr.Wrap(err, "listing references")
	}
	defer rows.Close()

	var out []model.Reference
	for rows.Next() {
		var r model.Reference
		if err := rows.Scan(&r.ID, &r.Name, &r.ContentDigest, &r.Fingerprinted); err != nil {
			return nil, apperr.Wrap(err, "scanning reference row")
		}
		out = append(out, r)
	}
	return out, apperr.Wrap(rows.Err(), "iterating reference rows")
}

func (p *Postgres) GetReferenceByName(ctx context.Context, name string) (model.Reference, bool, error) {
	var r model.Reference
	err := p.db.QueryRowContext(ctx,
		`SELECT reference_id, name, content_digest, fingerprinted FROM "references" WHERE name = $1`, name,
	).Scan(&r.ID, &r.Name, &r.ContentDigest, &r.Fingerprinted)
	if err == sql.ErrNoRows {
		return model.Reference{}, false, nil
	}
	if err != nil {
		return model.Reference{}, false, apperr.Wrap(err, "getting reference by name")
	}
	return r, true, nil
}

func (p *Postgres) CountReferences(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "references"`).Scan(&n)
	return n, apperr.Wrap(err, "counting references")
}

func (p *Postgres) CountPostings(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM postings`).Scan(&n)
	return n, apperr.Wrap(err, "counting postings")
}

func (p *Postgres) ReturnMatches(ctx context.Context, queries []QueryHash) ([]model.Match, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	hashes := make([]string, len(queries))
	offsetByHash := make(map[string][]uint32, len(queries))
	for i, q := range queries {
		hashes[i] = q.Hash
		offsetByHash[q.Hash] = append(offsetByHash[q.Hash], q.QueryOffset)
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT hash, reference_id, time_offset FROM postings WHERE hash = ANY($1)`, pq.Array(hashes),
	)
	if err != nil {
		return nil, apperr.Wrap(err, "querying postings for matches")
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var hash string
		var refID uint32
		var refOffset uint32
		if err := rows.Scan(&hash, &refID, &refOffset); err != nil {
			return nil, apperr.Wrap(err, "scanning match row")
		}
		for _, queryOffset := range offsetByHash[hash] {
			matches = append(matches, model.Match{
				ReferenceID:      refID,
				OffsetDifference: int64(refOffset) - int64(queryOffset),
			})
		}
	}
	return matches, apperr.Wrap(rows.Err(), "iterating match rows")
}

func (p *Postgres) CleanupUnfingerprinted(ctx context.Context) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM "references" WHERE fingerprinted = FALSE`)
	if err != nil {
		return 0, apperr.Wrap(err, "cleaning up unfingerprinted references")
	}
	n, err := res.RowsAffected()
	return int(n), apperr.Wrap(err, "reading rows affected")
}
