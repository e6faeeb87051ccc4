// Package audio holds the file-decode and microphone-capture
// collaborators the core DSP pipeline consumes. Neither file-format
// decoding nor OS device capture is re-specified by the recognizer
// (SPEC_FULL.md §1 Out of scope); this package is the thin adapter
// boundary the registrar and stream driver call through.
package audio

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
	flacdec "github.com/mewkiz/flac"

	"github.com/media-luna/resonance/internal/apperr"
	"github.com/media-luna/resonance/internal/dsp"
)

// DecodeFile reads an audio file and returns mono float64 PCM samples
// resampled to dsp.FS, matching the internal sample rate the DSP
// front-end enforces (§4.1). Supported containers: wav, mp3 (via
// faiface/beep, which itself wraps hajimehoshi/go-mp3) and flac (via
// mewkiz/flac directly, since beep v1.1.0 carries no flac decoder).
func DecodeFile(path string) ([]float64, error) {
	if strings.EqualFold(filepath.Ext(path), ".flac") {
		return decodeFLAC(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(err, "opening audio file")
	}
	defer f.Close()

	streamer, format, err := decodeByExtension(f, path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, err.Error())
	}
	defer streamer.Close()

	resampled := beep.Resample(4, format.SampleRate, beep.SampleRate(dsp.FS), streamer)
	return drainMono(resampled), nil
}

func decodeByExtension(r io.ReadCloser, path string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return wav.Decode(r)
	case ".mp3":
		return mp3.Decode(r)
	default:
		return nil, beep.Format{}, apperr.ErrInvalidInput
	}
}

// decodeFLAC reads every frame of a FLAC file via mewkiz/flac, down-mixes
// to mono, normalizes to [-1, 1] by the stream's bit depth, and linearly
// resamples to dsp.FS.
func decodeFLAC(path string) ([]float64, error) {
	stream, err := flacdec.ParseFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, err.Error())
	}
	defer stream.Close()

	fullScale := float64(int64(1) << (stream.Info.BitsPerSample - 1))
	numChannels := int(stream.Info.NChannels)

	var mono []float64
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, err.Error())
		}
		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			var sum float64
			for ch := 0; ch < numChannels; ch++ {
				sum += float64(frame.Subframes[ch].Samples[i]) / fullScale
			}
			mono = append(mono, sum/float64(numChannels))
		}
	}

	return linearResample(mono, int(stream.Info.SampleRate), dsp.FS), nil
}

// linearResample performs simple linear-interpolation resampling. It is
// adequate for the recognizer's purposes (recognition tolerates the same
// short-time-spectrum tolerance as pitch invariance, per §1 Non-goals);
// a production-grade polyphase resampler is not warranted here.
func linearResample(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float64, outLen)
	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		if idx+1 < len(samples) {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		} else {
			out[i] = samples[idx]
		}
	}
	return out
}

// drainMono reads every sample from s, averaging stereo channels down to
// mono, matching the "multi-channel input is averaged to mono upstream"
// contract of §4.1.
func drainMono(s beep.Streamer) []float64 {
	buf := make([][2]float64, 512)
	var out []float64
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			out = append(out, (buf[i][0]+buf[i][1])/2.0)
		}
		if !ok {
			break
		}
	}
	return out
}

// SHA1File computes the hex-encoded SHA-1 digest of a file's bytes, used
// as the reference's content_digest (§3), streamed in 64 KiB chunks to
// bound memory use on large source files.
func SHA1File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperr.Wrap(err, "opening file for digest")
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, 64*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", apperr.Wrap(err, "hashing file")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
