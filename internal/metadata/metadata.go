// Package metadata implements the per-reference JSON document store
// (C4), independent of the fingerprint store's lifecycle.
package metadata

import (
	"context"

	"github.com/media-luna/resonance/internal/model"
)

// Store is the metadata contract implemented by InMemory, Postgres, and
// MySQL (§4.4).
type Store interface {
	// Upsert inserts or replaces the metadata document for name.
	Upsert(ctx context.Context, m model.Metadata) error

	Get(ctx context.Context, name string) (model.Metadata, bool, error)
	Delete(ctx context.Context, name string) error

	// ListAll returns every stored metadata document.
	ListAll(ctx context.Context) ([]model.Metadata, error)

	// ClearAll drops every metadata document. Called in tandem with the
	// fingerprint store's Empty().
	ClearAll(ctx context.Context) error

	Count(ctx context.Context) (int, error)

	// QueryByField returns every entry whose document yields value at
	// the given dot-separated path (e.g. "artist.name").
	QueryByField(ctx context.Context, path string, value any) ([]model.Metadata, error)

	Close() error
}

// fieldLookup walks a dot-separated path through a nested map and
// returns the leaf value, mirroring metadata_db.py's manual traversal
// used by the in-memory/SQLite backing.
func fieldLookup(doc map[string]any, path string) (any, bool) {
	segments := splitPath(path)
	var cur any = doc
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	segments = append(segments, path[start:])
	return segments
}
