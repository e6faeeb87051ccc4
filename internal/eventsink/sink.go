// Package eventsink formats and delivers recognition events to a
// collaborator (C8). The Sink interface keeps that delivery pluggable:
// a console logger, an in-process callback, or (see internal/mqttsink)
// an MQTT broker.
package eventsink

import (
	"context"

	"github.com/media-luna/resonance/internal/logging"
	"github.com/media-luna/resonance/internal/model"
	"go.uber.org/zap"
)

// Sink delivers a formatted recognition event to a collaborator.
type Sink interface {
	Emit(ctx context.Context, event model.EventRecord) error
	Close() error
}

// LogSink writes every event through internal/logging. Per §4.7, console
// logging of detections is independent of debounce; a LogSink is
// typically wired to log every raw detection, while a debounced Sink
// (e.g. mqttsink.Sink) is wired to the recognizer's debounced path.
type LogSink struct{}

// NewLogSink returns a Sink that logs events at info level.
func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Emit(ctx context.Context, event model.EventRecord) error {
	logging.Info("recognition event",
		zap.String("song_name", event.SongName),
		zap.Float64("confidence", event.Confidence),
		zap.Float64("offset", event.Offset),
		zap.Int("hashes_matched", event.HashesMatched),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }

// CallbackSink delivers events to an in-process function, for tests and
// for embedding the recognizer in another Go program without a broker.
type CallbackSink struct {
	fn func(model.EventRecord)
}

// NewCallbackSink returns a Sink that calls fn for every emitted event.
func NewCallbackSink(fn func(model.EventRecord)) *CallbackSink {
	return &CallbackSink{fn: fn}
}

func (s *CallbackSink) Emit(ctx context.Context, event model.EventRecord) error {
	s.fn(event)
	return nil
}

func (s *CallbackSink) Close() error { return nil }

// MultiSink fans an event out to every contained sink, stopping at the
// first error.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) Emit(ctx context.Context, event model.EventRecord) error {
	for _, sink := range s.sinks {
		if err := sink.Emit(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (s *MultiSink) Close() error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
