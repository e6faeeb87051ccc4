package matcher

import (
	"context"
	"testing"

	"github.com/media-luna/resonance/internal/fingerprint"
	"github.com/media-luna/resonance/internal/store"
	"github.com/stretchr/testify/require"
)

func register(t *testing.T, s *store.InMemory, name string, pairs []fingerprint.Pair) uint32 {
	t.Helper()
	ctx := context.Background()
	id, err := s.InsertReference(ctx, name, "digest-"+name)
	require.NoError(t, err)
	require.NoError(t, s.InsertPostingsBatch(ctx, id, pairs))
	require.NoError(t, s.SetFingerprinted(ctx, id))
	return id
}

func TestMatchPicksHighestAlignedVote(t *testing.T) {
	s := store.NewInMemory()
	id := register(t, s, "song-a", []fingerprint.Pair{
		{Hash: "1111111111111111aaaa", Offset: 100},
		{Hash: "2222222222222222bbbb", Offset: 105},
		{Hash: "3333333333333333cccc", Offset: 200}, // off-alignment noise
	})

	m := New(s)
	// query offsets chosen so the first two align at diff=90, the third
	// at a different diff, so the winning bin has count 2.
	result, err := m.Match(context.Background(), []fingerprint.Pair{
		{Hash: "1111111111111111aaaa", Offset: 10},
		{Hash: "2222222222222222bbbb", Offset: 15},
		{Hash: "3333333333333333cccc", Offset: 50},
	})
	require.NoError(t, err)
	require.True(t, result.Matched)
	require.Equal(t, id, result.ReferenceID)
	require.Equal(t, 2, result.Score)
	require.EqualValues(t, 90, result.BestOffsetFrames)
}

func TestMatchNoHitsReturnsNoMatch(t *testing.T) {
	s := store.NewInMemory()
	m := New(s)
	result, err := m.Match(context.Background(), []fingerprint.Pair{{Hash: "deadbeefdeadbeefdead", Offset: 0}})
	require.NoError(t, err)
	require.False(t, result.Matched)
}

func TestMatchEmptyQueryReturnsNoMatch(t *testing.T) {
	s := store.NewInMemory()
	m := New(s)
	result, err := m.Match(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, result.Matched)
}

func TestMatchBestReferenceAcrossMultiple(t *testing.T) {
	s := store.NewInMemory()
	idA := register(t, s, "song-a", []fingerprint.Pair{
		{Hash: "aaaa111111111111aaaa", Offset: 10},
	})
	idB := register(t, s, "song-b", []fingerprint.Pair{
		{Hash: "bbbb111111111111bbbb", Offset: 10},
		{Hash: "bbbb222222222222bbbb", Offset: 20},
	})
	_ = idA

	m := New(s)
	result, err := m.Match(context.Background(), []fingerprint.Pair{
		{Hash: "bbbb111111111111bbbb", Offset: 0},
		{Hash: "bbbb222222222222bbbb", Offset: 10},
	})
	require.NoError(t, err)
	require.True(t, result.Matched)
	require.Equal(t, idB, result.ReferenceID)
	require.Equal(t, 2, result.Score)
}

func TestConfidenceNormalization(t *testing.T) {
	require.Equal(t, 0.0, Confidence(0))
	require.Equal(t, 0.5, Confidence(25))
	require.Equal(t, 1.0, Confidence(50))
	require.Equal(t, 1.0, Confidence(100))
}
