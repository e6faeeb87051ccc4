// Package recognizer drives the stream recognizer (C7): ring buffer,
// energy gate, sliding windows over C1-C2-C5, and per-reference
// debounce on emitted events. Grounded near-exhaustively on the
// original's StreamRecognizer (recognizer.py).
package recognizer

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/media-luna/resonance/internal/dsp"
	"github.com/media-luna/resonance/internal/eventsink"
	"github.com/media-luna/resonance/internal/fingerprint"
	"github.com/media-luna/resonance/internal/matcher"
	"github.com/media-luna/resonance/internal/metadata"
	"github.com/media-luna/resonance/internal/model"
)

// Config mirrors §4.7's enumerated recognizer options.
type Config struct {
	SampleRate          int
	WindowDuration      float64
	HopDuration         float64
	ConfidenceThreshold float64
	EnergyThresholdDB   float64
	DebounceDuration    float64
}

// DefaultConfig returns the §4.7 default table.
func DefaultConfig() Config {
	return Config{
		SampleRate:          dsp.FS,
		WindowDuration:      2.0,
		HopDuration:         0.5,
		ConfidenceThreshold: 0.5,
		EnergyThresholdDB:   -40.0,
		DebounceDuration:    5.0,
	}
}

// Stats holds the cumulative counters required by §4.7.
type Stats struct {
	TotalChunks        int
	ProcessedWindows   int
	SkippedSilent      int
	TotalDetections    int
	SkippedByDebounce  int
}

// Recognizer is a single streaming session. It is not safe for
// concurrent use from multiple goroutines: the cooperative loop that
// calls ProcessChunk owns it exclusively (§5).
type Recognizer struct {
	cfg      Config
	buffer   *ringBuffer
	matcher  *matcher.Matcher
	metadata metadata.Store
	logSink  eventsink.Sink // unconditional, not debounced (§4.7)
	sink     eventsink.Sink // debounced event sink

	mu              sync.Mutex
	stats           Stats
	lastEmittedAt   map[string]time.Time
	lastEmittedName string
	nameResolver    func(referenceID uint32) string
}

// New constructs a Recognizer. logSink receives every detection
// unconditionally; sink receives only debounced emissions. Either may be
// nil to disable that path.
func New(cfg Config, m *matcher.Matcher, md metadata.Store, logSink, sink eventsink.Sink) *Recognizer {
	bufferSamples := int((cfg.WindowDuration + cfg.HopDuration) * float64(cfg.SampleRate))
	return &Recognizer{
		cfg:           cfg,
		buffer:        newRingBuffer(bufferSamples),
		matcher:       m,
		metadata:      md,
		logSink:       logSink,
		sink:          sink,
		lastEmittedAt: make(map[string]time.Time),
	}
}

// ProcessChunk appends chunk to the ring buffer and, once enough samples
// have accumulated, extracts the most recent window and runs one
// recognition decision. It returns the detection produced, if any,
// honoring the energy gate and confidence threshold; debounce is applied
// only to the sink emission, never to the returned detection or the
// unconditional console log.
func (r *Recognizer) ProcessChunk(ctx context.Context, chunk []float64) (*model.Detection, error) {
	r.mu.Lock()
	r.stats.TotalChunks++
	r.buffer.Push(chunk)

	windowSamples := int(r.cfg.WindowDuration * float64(r.cfg.SampleRate))
	if r.buffer.Len() < windowSamples {
		r.mu.Unlock()
		return nil, nil
	}
	window := r.buffer.Last(windowSamples)
	r.mu.Unlock()

	energyDB := energyDecibels(window)
	if energyDB < r.cfg.EnergyThresholdDB {
		r.mu.Lock()
		r.stats.SkippedSilent++
		r.mu.Unlock()
		return nil, nil
	}

	window = normalizeIfNeeded(window)

	spec := dsp.Spectrogram(window)
	peaks := dsp.PickPeaks(spec)
	pairs := fingerprint.Generate(peaks)

	result, err := r.matcher.Match(ctx, pairs)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.stats.ProcessedWindows++
	r.mu.Unlock()

	if !result.Matched {
		return nil, nil
	}

	confidence := matcher.Confidence(result.Score)
	if confidence < r.cfg.ConfidenceThreshold {
		return nil, nil
	}

	name, doc, debounceSeconds := r.referenceInfo(ctx, result.ReferenceID)

	detection := &model.Detection{
		ReferenceName: name,
		OffsetSeconds: result.OffsetSeconds,
		Score:         result.Score,
		Confidence:    confidence,
	}

	r.mu.Lock()
	r.stats.TotalDetections++
	r.mu.Unlock()

	// console logging is unconditional and independent of sink debounce (§4.7)
	if r.logSink != nil {
		r.logSink.Emit(ctx, toEventRecord(*detection, doc))
	}

	if r.shouldEmit(name, debounceSeconds) {
		if r.sink != nil {
			if err := r.sink.Emit(ctx, toEventRecord(*detection, doc)); err != nil {
				return detection, err
			}
		}
	} else {
		r.mu.Lock()
		r.stats.SkippedByDebounce++
		r.mu.Unlock()
	}

	return detection, nil
}

// referenceInfo resolves a reference's display name and metadata
// document from the matcher result. The recognizer's store layer only
// deals in reference ids; the name lookup is resolved by the caller's
// wiring (see nameResolver in cmd/resonanced for the id->name lookup it
// installs), so here it is passed through a resolver stored on the
// Recognizer via SetNameResolver. If none is set, the name is
// "reference-<id>".
func (r *Recognizer) referenceInfo(ctx context.Context, referenceID uint32) (name string, doc map[string]any, debounceSeconds float64) {
	name = r.resolveName(referenceID)
	debounceSeconds = r.cfg.DebounceDuration

	if r.metadata == nil {
		return name, nil, debounceSeconds
	}
	m, ok, err := r.metadata.Get(ctx, name)
	if err != nil || !ok {
		return name, nil, debounceSeconds
	}
	if m.DebounceSeconds != nil {
		debounceSeconds = *m.DebounceSeconds
	}
	return name, m.Doc, debounceSeconds
}

func (r *Recognizer) resolveName(referenceID uint32) string {
	if r.nameResolver != nil {
		return r.nameResolver(referenceID)
	}
	return defaultName(referenceID)
}

// SetNameResolver installs the function used to resolve a matched
// reference id to the name under which its metadata is stored.
func (r *Recognizer) SetNameResolver(fn func(referenceID uint32) string) {
	r.nameResolver = fn
}

// shouldEmit implements the exact per-song debounce algorithm from the
// original's _should_publish_to_mqtt: a different name always emits and
// resets state; the same name only emits once debounceSeconds has
// elapsed since its last emission.
func (r *Recognizer) shouldEmit(name string, debounceSeconds float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if name != r.lastEmittedName {
		r.lastEmittedName = name
		r.lastEmittedAt[name] = now
		return true
	}

	last, ok := r.lastEmittedAt[name]
	if !ok || now.Sub(last).Seconds() >= debounceSeconds {
		r.lastEmittedAt[name] = now
		return true
	}
	return false
}

// Stats returns a snapshot of the cumulative counters.
func (r *Recognizer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Reset clears statistics, debounce state, and the ring buffer.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = Stats{}
	r.lastEmittedAt = make(map[string]time.Time)
	r.lastEmittedName = ""
	r.buffer.Reset()
}

// energyDecibels computes 20*log10(max(rms, 1e-10)), the RMS-to-dB
// conversion used by the energy gate (§4.7), with the original's 1e-10
// floor to avoid -Inf on digital silence.
func energyDecibels(window []float64) float64 {
	if len(window) == 0 {
		return -100.0
	}
	var sumSquares float64
	for _, s := range window {
		sumSquares += s * s
	}
	rms := math.Sqrt(sumSquares / float64(len(window)))
	if rms <= 1e-10 {
		rms = 1e-10
	}
	return 20 * math.Log10(rms)
}

// normalizeIfNeeded rescales window to [-1, 1] only if it exceeds that
// range, preventing double-normalization of already-normalized captures.
func normalizeIfNeeded(window []float64) []float64 {
	maxAbs := 0.0
	for _, s := range window {
		if a := math.Abs(s); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs <= 1.0 {
		return window
	}
	out := make([]float64, len(window))
	for i, s := range window {
		out[i] = s / maxAbs
	}
	return out
}

func toEventRecord(d model.Detection, doc map[string]any) model.EventRecord {
	return model.EventRecord{
		SongName:      d.ReferenceName,
		Confidence:    d.Confidence,
		Timestamp:     time.Now(),
		Metadata:      doc,
		Offset:        d.OffsetSeconds,
		HashesMatched: d.Score,
	}
}

func defaultName(referenceID uint32) string {
	return "reference-" + strconv.Itoa(int(referenceID))
}
