package store

import (
	"context"
	"testing"

	"github.com/media-luna/resonance/internal/apperr"
	"github.com/media-luna/resonance/internal/fingerprint"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRegisterAndMatch(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	id, err := s.InsertReference(ctx, "song-a", "digest-a")
	require.NoError(t, err)

	pairs := []fingerprint.Pair{
		{Hash: "aaaaaaaaaaaaaaaaaaaa", Offset: 10},
		{Hash: "bbbbbbbbbbbbbbbbbbbb", Offset: 20},
	}
	require.NoError(t, s.InsertPostingsBatch(ctx, id, pairs))
	require.NoError(t, s.SetFingerprinted(ctx, id))

	matches, err := s.ReturnMatches(ctx, []QueryHash{{Hash: "aaaaaaaaaaaaaaaaaaaa", QueryOffset: 5}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, id, matches[0].ReferenceID)
	require.EqualValues(t, 5, matches[0].OffsetDifference) // reference_offset(10) - query_offset(5)
}

func TestInMemoryDuplicateReference(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	_, err := s.InsertReference(ctx, "song-a", "digest")
	require.NoError(t, err)
	_, err = s.InsertReference(ctx, "song-a", "digest")
	require.ErrorIs(t, err, apperr.ErrDuplicateReference)
}

func TestInMemoryDeletePostingsCascade(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	id, err := s.InsertReference(ctx, "song-a", "digest")
	require.NoError(t, err)
	require.NoError(t, s.InsertPostingsBatch(ctx, id, []fingerprint.Pair{
		{Hash: "cccccccccccccccccccc", Offset: 1},
	}))

	before, err := s.CountPostings(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, before)

	require.NoError(t, s.DeleteReference(ctx, id))

	after, err := s.CountPostings(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, after)
}

func TestInMemoryEmptyResetsCounts(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	id, err := s.InsertReference(ctx, "song-a", "digest")
	require.NoError(t, err)
	require.NoError(t, s.InsertPostingsBatch(ctx, id, []fingerprint.Pair{{Hash: "dddddddddddddddddddd", Offset: 1}}))

	require.NoError(t, s.Empty(ctx))

	refs, _ := s.CountReferences(ctx)
	postings, _ := s.CountPostings(ctx)
	require.Equal(t, 0, refs)
	require.Equal(t, 0, postings)
}

func TestInMemoryPostingIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	id, err := s.InsertReference(ctx, "song-a", "digest")
	require.NoError(t, err)

	require.NoError(t, s.InsertPosting(ctx, "eeeeeeeeeeeeeeeeeeee", id, 7))
	require.NoError(t, s.InsertPosting(ctx, "eeeeeeeeeeeeeeeeeeee", id, 7))

	n, err := s.CountPostings(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestInMemoryCleanupUnfingerprinted(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	id, err := s.InsertReference(ctx, "orphan", "digest")
	require.NoError(t, err)
	require.NoError(t, s.InsertPostingsBatch(ctx, id, []fingerprint.Pair{{Hash: "ffffffffffffffffffff", Offset: 1}}))
	// never call SetFingerprinted

	removed, err := s.CleanupUnfingerprinted(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	refs, _ := s.CountReferences(ctx)
	require.Equal(t, 0, refs)
}

func TestInMemoryReturnMatchesNoDanglingReference(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	id, err := s.InsertReference(ctx, "song-a", "digest")
	require.NoError(t, err)
	require.NoError(t, s.InsertPostingsBatch(ctx, id, []fingerprint.Pair{{Hash: "1111111111111111aaaa", Offset: 3}}))
	require.NoError(t, s.SetFingerprinted(ctx, id))

	matches, err := s.ReturnMatches(ctx, []QueryHash{{Hash: "1111111111111111aaaa", QueryOffset: 0}})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	refs, err := s.ListReferences(ctx)
	require.NoError(t, err)
	found := false
	for _, r := range refs {
		if r.ID == matches[0].ReferenceID {
			found = true
		}
	}
	require.True(t, found)
}
