// Package matcher implements the alignment-voting matcher (C5): turns a
// query window's hashes into a single best reference match by voting on
// a consistent offset difference.
package matcher

import (
	"context"

	"github.com/media-luna/resonance/internal/dsp"
	"github.com/media-luna/resonance/internal/fingerprint"
	"github.com/media-luna/resonance/internal/store"
)

// Result is the matcher's output for one query: the winning reference,
// the aligned offset in seconds, and the raw hash-alignment score. A
// zero-value Result with Matched=false represents the NoMatch case,
// which is a distinct successful variant, not an error (§9).
type Result struct {
	Matched          bool
	ReferenceID      uint32
	BestOffsetFrames int64
	OffsetSeconds    float64
	Score            int
}

// Matcher queries a fingerprint store and tallies offset-difference
// votes per reference.
type Matcher struct {
	store store.Store
}

// New returns a Matcher backed by s.
func New(s store.Store) *Matcher {
	return &Matcher{store: s}
}

// Match runs the alignment vote for a query window's hash/offset pairs
// (as produced by fingerprint.Generate). offset_difference is computed
// as reference_offset - query_offset (§4.5's stated convention).
func (m *Matcher) Match(ctx context.Context, pairs []fingerprint.Pair) (Result, error) {
	if len(pairs) == 0 {
		return Result{}, nil
	}

	queries := make([]store.QueryHash, len(pairs))
	for i, p := range pairs {
		queries[i] = store.QueryHash{Hash: p.Hash, QueryOffset: p.Offset}
	}

	matches, err := m.store.ReturnMatches(ctx, queries)
	if err != nil {
		return Result{}, err
	}
	if len(matches) == 0 {
		return Result{}, nil
	}

	// histogram[referenceID][offsetDifference] = count
	histogram := make(map[uint32]map[int64]int)
	for _, match := range matches {
		byOffset, ok := histogram[match.ReferenceID]
		if !ok {
			byOffset = make(map[int64]int)
			histogram[match.ReferenceID] = byOffset
		}
		byOffset[match.OffsetDifference]++
	}

	var best Result
	for refID, byOffset := range histogram {
		for offset, count := range byOffset {
			if count > best.Score {
				best = Result{
					Matched:          true,
					ReferenceID:      refID,
					BestOffsetFrames: offset,
					Score:            count,
				}
			}
		}
	}

	best.OffsetSeconds = float64(best.BestOffsetFrames) * float64(dsp.HopSize) / float64(dsp.FS)
	return best, nil
}

// Confidence normalizes a raw score to [0, 1] per §4.7:
// confidence = min(score/50, 1.0).
func Confidence(score int) float64 {
	c := float64(score) / 50.0
	if c > 1.0 {
		return 1.0
	}
	return c
}
