package eventsink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/media-luna/resonance/internal/model"
)

type failingSink struct{ err error }

func (f *failingSink) Emit(ctx context.Context, event model.EventRecord) error { return f.err }
func (f *failingSink) Close() error                                            { return f.err }

func TestCallbackSinkInvokesFunction(t *testing.T) {
	var got model.EventRecord
	sink := NewCallbackSink(func(e model.EventRecord) { got = e })

	want := model.EventRecord{SongName: "song-a", Confidence: 0.9}
	require.NoError(t, sink.Emit(context.Background(), want))
	require.Equal(t, want, got)
}

func TestMultiSinkFansOutToAll(t *testing.T) {
	var calls int
	a := NewCallbackSink(func(model.EventRecord) { calls++ })
	b := NewCallbackSink(func(model.EventRecord) { calls++ })
	multi := NewMultiSink(a, b)

	require.NoError(t, multi.Emit(context.Background(), model.EventRecord{SongName: "x"}))
	require.Equal(t, 2, calls)
}

func TestMultiSinkStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	var secondCalled bool
	first := &failingSink{err: boom}
	second := NewCallbackSink(func(model.EventRecord) { secondCalled = true })
	multi := NewMultiSink(first, second)

	err := multi.Emit(context.Background(), model.EventRecord{SongName: "x"})
	require.ErrorIs(t, err, boom)
	require.False(t, secondCalled)
}

func TestMultiSinkCloseReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	multi := NewMultiSink(&failingSink{err: boom}, NewCallbackSink(func(model.EventRecord) {}))
	require.ErrorIs(t, multi.Close(), boom)
}
