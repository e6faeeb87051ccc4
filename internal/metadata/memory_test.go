package metadata

import (
	"context"
	"testing"

	"github.com/media-luna/resonance/internal/model"
	"github.com/stretchr/testify/require"
)

func TestInMemoryUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	err := s.Upsert(ctx, model.Metadata{
		Name: "mario-overworld",
		Doc: map[string]any{
			"game": "Super Mario World",
			"song": "Overworld",
			"artist": map[string]any{
				"name": "Koji Kondo",
			},
		},
	})
	require.NoError(t, err)

	got, ok, err := s.Get(ctx, "mario-overworld")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Super Mario World", got.Doc["game"])
}

func TestInMemoryQueryByFieldDotPath(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	require.NoError(t, s.Upsert(ctx, model.Metadata{
		Name: "a",
		Doc:  map[string]any{"artist": map[string]any{"name": "Koji Kondo"}},
	}))
	require.NoError(t, s.Upsert(ctx, model.Metadata{
		Name: "b",
		Doc:  map[string]any{"artist": map[string]any{"name": "Someone Else"}},
	}))

	results, err := s.QueryByField(ctx, "artist.name", "Koji Kondo")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].Name)
}

func TestInMemoryClearAllCount(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	require.NoError(t, s.Upsert(ctx, model.Metadata{Name: "a", Doc: map[string]any{}}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, s.ClearAll(ctx))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestInMemoryDebounceOverride(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	d := 12.5
	require.NoError(t, s.Upsert(ctx, model.Metadata{Name: "a", Doc: map[string]any{}, DebounceSeconds: &d}))

	got, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.DebounceSeconds)
	require.Equal(t, 12.5, *got.DebounceSeconds)
}
