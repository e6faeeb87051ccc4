package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sineWave(freq float64, seconds float64) []float64 {
	n := int(seconds * FS)
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/FS)
	}
	return out
}

func TestSpectrogramDeterministic(t *testing.T) {
	samples := sineWave(440, 1.0)
	a := Spectrogram(samples)
	b := Spectrogram(samples)
	require.Equal(t, len(a), len(b))
	for i := range a {
		require.InDeltaSlice(t, a[i], b[i], 0)
	}
}

func TestSpectrogramShortInputReturnsNil(t *testing.T) {
	require.Nil(t, Spectrogram(make([]float64, NFFT-1)))
}

func TestSpectrogramNoInfOrNaN(t *testing.T) {
	samples := make([]float64, NFFT*3)
	spec := Spectrogram(samples)
	require.NotEmpty(t, spec)
	for _, frame := range spec {
		for _, v := range frame {
			require.False(t, math.IsInf(v, 0))
			require.False(t, math.IsNaN(v))
		}
	}
}

func TestPickPeaksNoOutOfRangeFrames(t *testing.T) {
	samples := sineWave(440, 0.5)
	spec := Spectrogram(samples)
	peaks := PickPeaks(spec)
	for _, p := range peaks {
		require.GreaterOrEqual(t, p.Frame, 0)
		require.Less(t, p.Frame, len(spec))
		require.GreaterOrEqual(t, p.FreqBin, 0)
		require.Less(t, p.FreqBin, len(spec[0]))
	}
}

func TestPickPeaksXORNotSubtraction(t *testing.T) {
	// An all-background (all-zero) spectrogram has local-max true
	// everywhere and eroded-background true everywhere; XOR of two
	// identical masks is all-false, so no peaks should be produced.
	// An arithmetic-subtraction composition (local_max - background)
	// would yield zero everywhere too in this degenerate case, so this
	// flat case alone does not tell the two compositions apart.
	flat := make([][]float64, 5)
	for i := range flat {
		flat[i] = make([]float64, 5)
	}
	peaks := PickPeaks(flat)
	require.Empty(t, peaks)
}

func TestPickPeaksDetectsIsolatedPeak(t *testing.T) {
	size := PeakNeighborhood * 3
	spec := make([][]float64, size)
	for t := range spec {
		spec[t] = make([]float64, size)
	}
	center := size / 2
	spec[center][center] = 100.0

	peaks := PickPeaks(spec)
	require.Len(t, peaks, 1)
	require.Equal(t, center, peaks[0].Frame)
	require.Equal(t, center, peaks[0].FreqBin)
}
