// Package entropy implements the run-length + VLC coefficient coder
// described in spec §4.5: an alternating zero-run / nonzero-value
// stream per band, with a peak-escape mechanism for large magnitudes
// and a two-pass lossless mode for one designated band.
//
// The zero-run-then-value shape is grounded on
// jpeg/baseline.Encoder.encodeBlock's AC coefficient loop (ZRL/EOB
// over a zig-zag run), generalized from JPEG's fixed 4-bit run nibble
// to this spec's greedy multi-entry run-length book, and from JPEG's
// canonical Huffman table to codebook.Codebook's direct-indexed value
// book.
package entropy

import (
	"github.com/gopro/cfhd-encoder/internal/bitstream"
	"github.com/gopro/cfhd-encoder/internal/codebook"
)

// Peak is one recorded escape: the true coefficient value times the
// band's quantization divisor, per §4.5 "record v * quant in a side
// peaks table".
type Peak = int32

// EncodeBand walks coeffs in row-major order (width samples per row,
// height rows, zero-runs crossing row boundaries as if the band were
// one flat stream — §4.5 "zero-runs cross row boundaries via the
// pitch gap") and emits the alternating run/value sequence followed
// by the band-end code. peakEnabled selects the peak-escape path;
// quant is the divisor that was applied to these coefficients,
// needed to record true-magnitude peaks.
func EncodeBand(w *bitstream.Writer, coeffs []int32, cb *codebook.Codebook, quant int, peakEnabled bool) (peaks []Peak) {
	zeroCount := 0

	flushRun := func() {
		for zeroCount > 0 {
			e, ok := cb.Lookup(zeroCount)
			if !ok {
				// No entry covers even a single zero: codebooks are
				// assumed pre-built with a run-of-1 entry, so this
				// should not happen. Bail out to avoid an infinite loop.
				break
			}
			w.PutBits(e.Code.Size, e.Code.Bits)
			zeroCount -= e.RunLength
		}
	}

	for _, c := range coeffs {
		v := int(c)
		if v == 0 {
			zeroCount++
			continue
		}
		flushRun()

		emit := v
		if emit > codebook.ValueMax {
			emit = codebook.ValueMax
		} else if emit < codebook.ValueMin {
			emit = codebook.ValueMin
		}

		if peakEnabled && abs(v) > codebook.PeakThreshold {
			peaks = append(peaks, int32(v*quant))
			if v > 0 {
				emit = codebook.PeakThreshold + 1
			} else {
				emit = -(codebook.PeakThreshold + 1)
			}
		}

		code := cb.ValueCode(emit)
		w.PutBits(code.Size, code.Bits)
	}

	flushRun() // trailing zero-run, if any (§4.5 step 3)
	w.PutBits(cb.BandEnd.Size, cb.BandEnd.Bits)
	return peaks
}

// EncodeBandTwoPass implements the two-pass lossless mode of §4.5:
// pass 1 encodes the high-byte lane (coefficients whose magnitude
// fits in the low byte contribute zero), pass 2 encodes the
// remaining low-byte lane. writeMidpoint is called between the two
// passes to emit the BAND_MIDPOINT tag separating them.
func EncodeBandTwoPass(w *bitstream.Writer, coeffs []int32, cb *codebook.Codebook, writeMidpoint func()) {
	high := make([]int32, len(coeffs))
	low := make([]int32, len(coeffs))
	for i, c := range coeffs {
		h := c / 256 // truncates toward zero, so |c| < 256 gives h == 0
		high[i] = h
		low[i] = c - h*256
	}
	EncodeBand(w, high, cb, 1, false)
	writeMidpoint()
	EncodeBand(w, low, cb, 1, false)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
