package dsp

// Peak is a single constellation point: a frequency bin paired with the
// time frame it occurs in.
type Peak struct {
	FreqBin int
	Frame   int
}

// PickPeaks finds local maxima of spec (time-major, as returned by
// Spectrogram) over a PeakNeighborhood x PeakNeighborhood square
// footprint.
//
// The local-maximum mask and the "is background" mask are both
// boolean-valued, so they are combined with XOR rather than arithmetic
// subtraction: a cell survives as a peak when it is a local maximum but
// is not also surrounded entirely by background (a flat run of zeros is
// technically its own local maximum everywhere, and XOR against the
// eroded-background mask removes those false positives without an
// arithmetic difference that would otherwise need clamping).
func PickPeaks(spec [][]float64) []Peak {
	numFrames := len(spec)
	if numFrames == 0 {
		return nil
	}
	numBins := len(spec[0])

	localMax := make([][]bool, numFrames)
	background := make([][]bool, numFrames)
	for t := 0; t < numFrames; t++ {
		localMax[t] = make([]bool, numBins)
		background[t] = make([]bool, numBins)
		for f := 0; f < numBins; f++ {
			background[t][f] = spec[t][f] == 0
		}
	}

	half := PeakNeighborhood / 2

	for t := 0; t < numFrames; t++ {
		for f := 0; f < numBins; f++ {
			val := spec[t][f]
			isMax := true
			for dt := -half; dt < half && isMax; dt++ {
				tt := t + dt
				if tt < 0 || tt >= numFrames {
					continue
				}
				for df := -half; df < half; df++ {
					ff := f + df
					if ff < 0 || ff >= numBins {
						continue
					}
					if spec[tt][ff] > val {
						isMax = false
						break
					}
				}
			}
			localMax[t][f] = isMax
		}
	}

	erodedBackground := erodeBackground(background, half)

	var peaks []Peak
	for t := 0; t < numFrames; t++ {
		for f := 0; f < numBins; f++ {
			detected := localMax[t][f] != erodedBackground[t][f] // boolean XOR
			if detected && spec[t][f] > AmpMinDB {
				peaks = append(peaks, Peak{FreqBin: f, Frame: t})
			}
		}
	}
	return peaks
}

// erodeBackground performs binary erosion of the background mask over
// the same square footprint used for local-maximum detection. A cell
// survives erosion only if every in-range cell in its footprint is
// background; positions beyond the edge of the array count as background
// (border_value=1 in the conventional formulation), so a cell near the
// edge is not kept from eroding merely because its footprint is truncated.
func erodeBackground(background [][]bool, half int) [][]bool {
	numFrames := len(background)
	if numFrames == 0 {
		return nil
	}
	numBins := len(background[0])

	eroded := make([][]bool, numFrames)
	for t := 0; t < numFrames; t++ {
		eroded[t] = make([]bool, numBins)
		for f := 0; f < numBins; f++ {
			all := true
			for dt := -half; dt < half && all; dt++ {
				tt := t + dt
				if tt < 0 || tt >= numFrames {
					continue // border treated as background for erosion seed
				}
				for df := -half; df < half; df++ {
					ff := f + df
					if ff < 0 || ff >= numBins {
						continue
					}
					if !background[tt][ff] {
						all = false
						break
					}
				}
			}
			eroded[t][f] = all
		}
	}
	return eroded
}
