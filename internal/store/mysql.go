package store

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/media-luna/resonance/internal/apperr"
	"github.com/media-luna/resonance/internal/fingerprint"
	"github.com/media-luna/resonance/internal/model"
)

const createMySQLSchema = `
CREATE TABLE IF NOT EXISTS ` + "`references`" + ` (
    reference_id INT AUTO_INCREMENT PRIMARY KEY,
    name VARCHAR(255) NOT NULL UNIQUE,
    fingerprinted BOOLEAN NOT NULL DEFAULT FALSE,
    content_digest VARCHAR(64) NOT NULL
);

CREATE TABLE IF NOT EXISTS postings (
    hash VARCHAR(40) NOT NULL,
    reference_id INT NOT NULL,
    time_offset INT NOT NULL,
    UNIQUE KEY uniq_posting (reference_id, time_offset, hash),
    KEY idx_postings_hash (hash),
    FOREIGN KEY (reference_id) REFERENCES ` + "`references`" + `(reference_id) ON DELETE CASCADE
);
`

// MySQL is the second relational variant (§9: "historical"), matching
// the teacher's go-sql-driver/mysql dependency.
type MySQL struct {
	db *sql.DB
}

// NewMySQL opens a connection, pings it, and creates the schema.
func NewMySQL(dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, apperr.Wrap(err, "opening mysql connection")
	}
	if err := db.Ping(); err != nil {
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, err.Error())
	}
	for _, stmt := range strings.Split(createMySQLSchema, ";\n\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, apperr.Wrap(err, "creating mysql schema")
		}
	}
	return &MySQL{db: db}, nil
}

func (m *MySQL) Close() error { return m.db.Close() }

func (m *MySQL) Empty(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS=0"); err != nil {
		return apperr.Wrap(err, "disabling foreign key checks")
	}
	defer m.db.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS=1")

	if _, err := m.db.ExecContext(ctx, "TRUNCATE TABLE postings"); err != nil {
		return apperr.Wrap(err, "truncating postings")
	}
	_, err := m.db.ExecContext(ctx, "TRUNCATE TABLE `references`")
	return apperr.Wrap(err, "truncating references")
}

func (m *MySQL) InsertReference(ctx context.Context, name, contentDigest string) (uint32, error) {
	res, err := m.db.ExecContext(ctx,
		"INSERT INTO `references` (name, fingerprinted, content_digest) VALUES (?, FALSE, ?)",
		name, contentDigest,
	)
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			return 0, apperr.ErrDuplicateReference
		}
		return 0, apperr.Wrap(err, "inserting reference")
	}
	id, err := res.LastInsertId()
	return uint32(id), apperr.Wrap(err, "reading inserted reference id")
}

func (m *MySQL) SetFingerprinted(ctx context.Context, referenceID uint32) error {
	_, err := m.db.ExecContext(ctx, "UPDATE `references` SET fingerprinted = TRUE WHERE reference_id = ?", referenceID)
	return apperr.Wrap(err, "marking reference fingerprinted")
}

func (m *MySQL) InsertPosting(ctx context.Context, hash string, referenceID uint32, offset uint32) error {
	_, err := m.db.ExecContext(ctx,
		"INSERT IGNORE INTO postings (hash, reference_id, time_offset) VALUES (?, ?, ?)",
		hash, referenceID, offset,
	)
	return apperr.Wrap(err, "inserting posting")
}

// InsertPostingsBatch mirrors Postgres's batching, using INSERT IGNORE
// for MySQL's dialect of unique-violation deduplication.
func (m *MySQL) InsertPostingsBatch(ctx context.Context, referenceID uint32, pairs []fingerprint.Pair) error {
	if len(pairs) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
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
		sb.WriteString("INSERT IGNORE INTO postings (hash, reference_id, time_offset) VALUES ")
		args := make([]any, 0, len(chunk)*3)
		for i, pair := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?,?,?)")
			args = append(args, pair.Hash, referenceID, pair.Offset)
		}

		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return apperr.Wrap(err, "inserting postings batch")
		}
	}

	return apperr.Wrap(tx.Commit(), "committing postings batch")
}

func (m *MySQL) DeleteReference(ctx context.Context, referenceID uint32) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM `references` WHERE reference_id = ?", referenceID)
	return apperr.Wrap(err, "deleting reference")
}

func (m *MySQL) ListReferences(ctx context.Context) ([]model.Reference, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT reference_id, name, content_digest, fingerprinted FROM `references` WHERE fingerprinted = TRUE")
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

func (m *MySQL) GetReferenceByName(ctx context.Context, name string) (model.Reference, bool, error) {
	var r model.Reference
	err := m.db.QueryRowContext(ctx,
		"SELECT reference_id, name, content_digest, fingerprinted FROM `references` WHERE name = ?", name,
	).Scan(&r.ID, &r.Name, &r.ContentDigest, &r.Fingerprinted)
	if err == sql.ErrNoRows {
		return model.Reference{}, false, nil
	}
	if err != nil {
		return model.Reference{}, false, apperr.Wrap(err, "getting reference by name")
	}
	return r, true, nil
}

func (m *MySQL) CountReferences(ctx context.Context) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM `references`").Scan(&n)
	return n, apperr.Wrap(err, "counting references")
}

func (m *MySQL) CountPostings(ctx context.Context) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM postings").Scan(&n)
	return n, apperr.Wrap(err, "counting postings")
}

func (m *MySQL) ReturnMatches(ctx context.Context, queries []QueryHash) ([]model.Match, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	hashes := make([]string, len(queries))
	offsetByHash := make(map[string][]uint32, len(queries))
	placeholders := make([]string, len(queries))
	args := make([]any, len(queries))
	for i, q := range queries {
		hashes[i] = q.Hash
		offsetByHash[q.Hash] = append(offsetByHash[q.Hash], q.QueryOffset)
		placeholders[i] = "?"
		args[i] = q.Hash
	}

	query := "SELECT hash, reference_id, time_offset FROM postings WHERE hash IN (" + strings.Join(placeholders, ",") + ")"
	rows, err := m.db.QueryContext(ctx, query, args...)
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

func (m *MySQL) CleanupUnfingerprinted(ctx context.Context) (int, error) {
	res, err := m.db.ExecContext(ctx, "DELETE FROM `references` WHERE fingerprinted = FALSE")
	if err != nil {
		return 0, apperr.Wrap(err, "cleaning up unfingerprinted references")
	}
	n, err := res.RowsAffected()
	return int(n), apperr.Wrap(err, "reading rows affected")
}
