// Package dsp turns a mono PCM waveform into a log-magnitude spectrogram
// and extracts constellation peaks from it (C1).
package dsp

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// FS is the fixed internal sample rate the DSP front-end operates at.
	FS = 44100
	// NFFT is the STFT window size in samples.
	NFFT = 4096
	// Overlap is the fraction of consecutive windows that overlap.
	Overlap = 0.5
	// HopSize is the frame advance in samples, derived from NFFT and Overlap.
	HopSize = int(NFFT * (1 - Overlap))
	// PeakNeighborhood is the side length, in bins, of the square
	// neighborhood used for local-maximum peak picking.
	PeakNeighborhood = 20
	// AmpMinDB is the amplitude floor below which a local maximum is not
	// considered a peak.
	AmpMinDB = 10.0
)

// hannWindow returns a Hann window of length n.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// Spectrogram computes the log-magnitude short-time Fourier transform of
// samples, a mono float waveform sampled at FS. The result is time-major:
// S[t] is the magnitude spectrum (in dB) of frame t, with
// len(S[t]) == NFFT/2+1 frequency bins. Frames with insufficient trailing
// samples are dropped (no zero padding).
func Spectrogram(samples []float64) [][]float64 {
	window := hannWindow(NFFT)
	numBins := NFFT/2 + 1

	if len(samples) < NFFT {
		return nil
	}
	numFrames := (len(samples)-NFFT)/HopSize + 1
	out := make([][]float64, numFrames)

	frame := make([]float64, NFFT)
	for t := 0; t < numFrames; t++ {
		start := t * HopSize
		for i := 0; i < NFFT; i++ {
			frame[i] = samples[start+i] * window[i]
		}

		spectrum := fft.FFTReal(frame)
		magDB := make([]float64, numBins)
		for f := 0; f < numBins; f++ {
			mag := cmplx.Abs(spectrum[f])
			magDB[f] = magnitudeToDB(mag)
		}
		out[t] = magDB
	}
	return out
}

// magnitudeToDB converts a linear magnitude to decibels, silencing the
// division-by-zero case (§4.1: S==0 after the log becomes -inf, which is
// remapped to 0 — zeros are never peaks since AmpMinDB is positive).
func magnitudeToDB(mag float64) float64 {
	if mag <= 0 {
		return 0
	}
	db := 10 * math.Log10(mag)
	if math.IsInf(db, -1) || math.IsNaN(db) {
		return 0
	}
	return db
}
