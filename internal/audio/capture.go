package audio

import (
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/media-luna/resonance/internal/apperr"
	"github.com/media-luna/resonance/internal/dsp"
	"github.com/media-luna/resonance/internal/logging"
)

const framesPerBuffer = 1024

// MicrophoneSource captures PCM chunks from the default input device at
// dsp.FS and hands them to the stream recognizer's cooperative loop
// through a buffered channel, adapted from the teacher's
// MicrophoneRecorder to the spec's Source boundary (§5's single blocking
// suspension point at chunk capture).
type MicrophoneSource struct {
	stream  *portaudio.Stream
	chunks  chan []float64
	mu      sync.Mutex
	running bool
}

// NewMicrophoneSource opens the default input device in mono at dsp.FS.
func NewMicrophoneSource() (*MicrophoneSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, err.Error())
	}

	src := &MicrophoneSource{chunks: make(chan []float64, 16)}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(dsp.FS), framesPerBuffer, src.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, apperr.Wrap(err, "opening microphone stream")
	}
	src.stream = stream
	return src, nil
}

func (m *MicrophoneSource) callback(in []float32) {
	chunk := make([]float64, len(in))
	for i, v := range in {
		chunk[i] = float64(v)
	}
	select {
	case m.chunks <- chunk:
	default:
		logging.Warn("microphone source dropped a chunk: consumer too slow")
	}
}

// Start begins capture. Chunks become available on Chunks().
func (m *MicrophoneSource) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	if err := m.stream.Start(); err != nil {
		return apperr.Wrap(err, "starting microphone stream")
	}
	m.running = true
	return nil
}

// Chunks returns the channel of captured PCM chunks.
func (m *MicrophoneSource) Chunks() <-chan []float64 {
	return m.chunks
}

// Stop halts capture. The device is released by Close.
func (m *MicrophoneSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	err := m.stream.Stop()
	m.running = false
	return apperr.Wrap(err, "stopping microphone stream")
}

// Close releases the stream and terminates the portaudio runtime.
func (m *MicrophoneSource) Close() error {
	if err := m.stream.Close(); err != nil {
		return apperr.Wrap(err, "closing microphone stream")
	}
	close(m.chunks)
	return apperr.Wrap(portaudio.Terminate(), "terminating portaudio")
}
