// Package store implements the fingerprint store (C3): the polymorphic
// index mapping hash -> postings and the reference catalog, backed by an
// in-memory map, PostgreSQL, or MySQL.
package store

import (
	"context"

	"github.com/media-luna/resonance/internal/fingerprint"
	"github.com/media-luna/resonance/internal/model"
)

// batchInsertSize bounds how many postings go into a single INSERT
// statement, carried over from the teacher's maxBatchSize query batching
// constant to keep parameter counts within driver limits.
const batchInsertSize = 1000

// QueryHash is one (hash, query_offset) pair submitted to ReturnMatches.
type QueryHash struct {
	Hash        string
	QueryOffset uint32
}

// Store is the fingerprint store contract implemented by InMemory,
// Postgres, and MySQL (§4.3, §9).
type Store interface {
	// Empty drops all references and postings.
	Empty(ctx context.Context) error

	// InsertReference reserves a row for name with fingerprinted=false
	// and returns its id. Returns apperr.ErrDuplicateReference if name
	// already exists.
	InsertReference(ctx context.Context, name, contentDigest string) (uint32, error)

	// SetFingerprinted marks a reference as done.
	SetFingerprinted(ctx context.Context, referenceID uint32) error

	// InsertPosting is idempotent on the (referenceID, offset, hash)
	// triple.
	InsertPosting(ctx context.Context, hash string, referenceID uint32, offset uint32) error

	// InsertPostingsBatch is the preferred high-throughput insert path.
	InsertPostingsBatch(ctx context.Context, referenceID uint32, pairs []fingerprint.Pair) error

	// DeleteReference cascades to all of the reference's postings.
	DeleteReference(ctx context.Context, referenceID uint32) error

	// ListReferences yields fingerprinted rows.
	ListReferences(ctx context.Context) ([]model.Reference, error)

	// GetReferenceByName looks up a single reference, fingerprinted or not.
	GetReferenceByName(ctx context.Context, name string) (model.Reference, bool, error)

	CountReferences(ctx context.Context) (int, error)
	CountPostings(ctx context.Context) (int, error)

	// ReturnMatches is the hot query path (§4.5): for every query hash
	// that hits a posting, yields (reference_id, offset_difference) where
	// offset_difference = reference_offset - query_offset.
	ReturnMatches(ctx context.Context, queries []QueryHash) ([]model.Match, error)

	// CleanupUnfingerprinted prunes references whose fingerprinted flag
	// never got set (a registration that aborted mid-way), per §4.3's
	// failure semantics.
	CleanupUnfingerprinted(ctx context.Context) (int, error)

	Close() error
}
