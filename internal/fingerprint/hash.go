// Package fingerprint turns constellation peaks into the compact hashes
// used by the fingerprint store and matcher (C2).
package fingerprint

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/media-luna/resonance/internal/dsp"
)

const (
	// FanValue bounds how many subsequent peaks an anchor is paired with.
	FanValue = 15
	// MinHashTimeDelta is the minimum frame gap between anchor and target.
	MinHashTimeDelta = 0
	// MaxHashTimeDelta is the maximum frame gap between anchor and target.
	MaxHashTimeDelta = 200
	// Reduction is the number of hex characters kept from the SHA-1 digest.
	Reduction = 20
)

// Pair is a (hash, time_offset) result of hashing one anchor/target peak
// pair. Hash is the Reduction-hex-character identifier; Offset is the
// anchor's frame index.
type Pair struct {
	Hash   string
	Offset uint32
}

// Generate produces the unordered multiset of (hash, time_offset) pairs
// for a set of constellation peaks, sorted by time as required to bound
// the fan-out window. Generation is deterministic given identical peaks.
func Generate(peaks []dsp.Peak) []Pair {
	sorted := make([]dsp.Peak, len(peaks))
	copy(sorted, peaks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Frame != sorted[j].Frame {
			return sorted[i].Frame < sorted[j].Frame
		}
		return sorted[i].FreqBin < sorted[j].FreqBin
	})

	var pairs []Pair
	for i, anchor := range sorted {
		paired := 0
		for j := i + 1; j < len(sorted) && paired < FanValue; j++ {
			target := sorted[j]
			delta := target.Frame - anchor.Frame
			if delta < MinHashTimeDelta {
				continue
			}
			if delta > MaxHashTimeDelta {
				break // sorted by frame: no further j can satisfy delta <= max
			}
			pairs = append(pairs, Pair{
				Hash:   hashPair(anchor.FreqBin, target.FreqBin, delta),
				Offset: uint32(anchor.Frame),
			})
			paired++
		}
	}
	return pairs
}

// hashPair computes the first Reduction hex characters of the SHA-1
// digest of "{freqAnchor}|{freqTarget}|{delta}".
func hashPair(freqAnchor, freqTarget, delta int) string {
	s := fmt.Sprintf("%d|%d|%d", freqAnchor, freqTarget, delta)
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:Reduction]
}

// Project32 maps a full hex hash to a uint32 key for use in in-memory
// indexes, using the first four bytes of the underlying digest. The
// projection is deterministic and computed identically at registration
// and at query time, which is the only self-consistency requirement the
// specification places on the stored width.
func Project32(hash string) (uint32, error) {
	if len(hash) < 8 {
		return 0, fmt.Errorf("fingerprint: hash %q too short to project", hash)
	}
	b, err := hex.DecodeString(hash[:8])
	if err != nil {
		return 0, fmt.Errorf("fingerprint: decoding hash %q: %w", hash, err)
	}
	return binary.BigEndian.Uint32(b), nil
}
