package fingerprint

import (
	"testing"

	"github.com/media-luna/resonance/internal/dsp"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeterministic(t *testing.T) {
	peaks := []dsp.Peak{{FreqBin: 10, Frame: 0}, {FreqBin: 20, Frame: 5}, {FreqBin: 30, Frame: 12}}
	a := Generate(peaks)
	b := Generate(peaks)
	require.Equal(t, a, b)
	require.NotEmpty(t, a)
}

func TestGenerateDeltaBounds(t *testing.T) {
	peaks := []dsp.Peak{
		{FreqBin: 1, Frame: 0},
		{FreqBin: 2, Frame: MaxHashTimeDelta},     // exactly at bound: valid
		{FreqBin: 3, Frame: MaxHashTimeDelta + 1}, // beyond bound: invalid
	}
	pairs := Generate(peaks)
	// frame 0 pairs only with frame MaxHashTimeDelta; frame MaxHashTimeDelta
	// then pairs with frame MaxHashTimeDelta+1 (delta 1).
	require.Len(t, pairs, 2)

	foundAtBound := false
	for _, p := range pairs {
		hashAtBound := hashPair(1, 2, MaxHashTimeDelta)
		if p.Hash == hashAtBound {
			require.Equal(t, uint32(0), p.Offset)
			foundAtBound = true
		}
		hashBeyondBound := hashPair(1, 3, MaxHashTimeDelta+1)
		require.NotEqual(t, hashBeyondBound, p.Hash)
	}
	require.True(t, foundAtBound)
}

func TestGenerateFanValueCap(t *testing.T) {
	peaks := make([]dsp.Peak, 0, FanValue+10)
	for i := 0; i < FanValue+10; i++ {
		peaks = append(peaks, dsp.Peak{FreqBin: i, Frame: i})
	}
	pairs := Generate(peaks)
	// the first anchor (frame 0) should produce exactly FanValue pairs
	count := 0
	for _, p := range pairs {
		if p.Offset == 0 {
			count++
		}
	}
	require.Equal(t, FanValue, count)
}

func TestHashPairStableFormat(t *testing.T) {
	h1 := hashPair(100, 200, 5)
	h2 := hashPair(100, 200, 5)
	require.Equal(t, h1, h2)
	require.Len(t, h1, Reduction)
}

func TestProject32Deterministic(t *testing.T) {
	h := hashPair(1, 2, 3)
	p1, err := Project32(h)
	require.NoError(t, err)
	p2, err := Project32(h)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}
