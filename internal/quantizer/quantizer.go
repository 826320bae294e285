// Package quantizer maps a quality/bitrate configuration word onto
// per-subband integer divisors, following the same quality-curve and
// fixed-point packing shape as the teacher's
// jpeg2000.CalculateQuantizationParams, but producing the flat
// luma/chroma/luma-max/chroma-max divisor tables and codebook-flag
// table this core's entropy coder and transform pyramid consume
// instead of JPEG2000's per-subband exponent/mantissa step sizes.
package quantizer

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// QuantLimitDefault is the default ceiling on any divisor (§4.4).
const QuantLimitDefault = 512

// CustomQuantMagic identifies a custom_quant override block.
const CustomQuantMagic = 0x12345678

// ErrBadCustomQuant is returned when a custom_quant block's magic
// does not match.
var ErrBadCustomQuant = errors.New("quantizer: custom_quant block has wrong magic")

// NumSubbands is the number of subband slots the flat tables carry;
// enough for a 3-level pyramid's LL + 3*levels highpass bands plus
// slack for the field+ branch.
const NumSubbands = 16

// Tables holds the per-subband divisor and codebook-flag state
// described in §3 "Quantizer state".
type Tables struct {
	Luma          [NumSubbands]int
	Chroma        [NumSubbands]int
	LumaMax       [NumSubbands]int
	ChromaMax     [NumSubbands]int
	CodebookFlags [NumSubbands]Flags
}

// Flags is the per-band codebook-selection bitset (§4.5).
type Flags uint8

const (
	FlagDeepBook Flags = 1 << iota
	FlagPeak
	FlagDiff
)

// State is the quantizer's persistent state between EncodeSample
// calls (§3 "Quantizer state").
type State struct {
	Tables            Tables
	QualityWord       uint32
	FixedBitrate      int
	QuantLimit        int
	LastGOPBytes      int
	TargetBytesPerGOP int
	custom            bool
}

// New returns a quantizer with the default quant limit and all-1
// divisors (valid, if maximally conservative, state before the first
// SetQuality call).
func New() *State {
	s := &State{QuantLimit: QuantLimitDefault}
	for i := 0; i < NumSubbands; i++ {
		s.Tables.Luma[i] = 1
		s.Tables.Chroma[i] = 1
		s.Tables.LumaMax[i] = QuantLimitDefault
		s.Tables.ChromaMax[i] = QuantLimitDefault
	}
	return s
}

// qualityCurve maps a 0-100 preset index to a base divisor scale,
// the same exponential shape as jpeg2000.qualityScale.
func qualityCurve(preset uint32) float64 {
	q := float64(preset)
	if q > 100 {
		q = 100
	}
	scale := math.Pow(2.0, (100.0-q)/12.5)
	if scale < 0.01 {
		scale = 0.01
	}
	return scale
}

// SetQuality populates the luma/chroma divisor tables and the
// per-subband codebook-flag table from a packed quality word, per
// §4.4 and §4.5:
//   - bits 0-7: preset index (0-100 quality curve)
//   - bits 24-26: temporal-quality factor
//   - bits 25-26: RGB-quality chroma-gain selector
//   - bit 30: "optimize empty channels" flag (returned for the caller
//     to thread into the lowpass/constant-frame shortcut, §4.6)
//
// codebook_flags[i] is derived, not read from the quality word: Deep
// is set for subbands whose divisor ended up coarse enough to push
// coefficient magnitudes past the base book's range; Peak mirrors the
// caller's peakEnabled (the peak-escape mechanism is an encoder-wide
// choice, not a per-band one); Diff marks the LH/HL slots (i%4 == 1 or
// 2, matching the 4-wide per-level grouping the quality curve above
// already uses) at 12-bit precision, where horizontal-difference
// pre-coding pays for itself on the wider dynamic range.
func (s *State) SetQuality(qualityWord uint32, progressive bool, precision, gopLength int, chromaFullRes, peakEnabled bool) (optimizeEmpty bool, err error) {
	if s.custom {
		return false, nil // custom_quant overrides the preset entirely
	}
	s.QualityWord = qualityWord

	preset := qualityWord & 0xFF
	temporalFactor := float64((qualityWord>>24)&0x7) / 7.0
	rgbChromaGain := float64((qualityWord>>25)&0x3) / 3.0
	optimizeEmpty = (qualityWord>>30)&1 != 0

	base := qualityCurve(preset)
	lumaBase := make([]float64, NumSubbands)
	chromaBase := make([]float64, NumSubbands)
	for i := 0; i < NumSubbands; i++ {
		// Deeper bands (higher i) get progressively coarser base
		// quantization, matching the general shape of a wavelet
		// quality curve (higher subbands carry less energy).
		level := float64(i/4 + 1)
		lv := base * level
		if gopLength > 1 {
			lv *= 1 + temporalFactor
		}
		lumaBase[i] = lv
		chromaBase[i] = lv * (1 + rgbChromaGain*0.5)
		if chromaFullRes {
			chromaBase[i] *= 0.75
		}
	}

	for i := 0; i < NumSubbands; i++ {
		s.Tables.LumaMax[i] = s.QuantLimit
		s.Tables.ChromaMax[i] = s.QuantLimit
		s.Tables.Luma[i] = clampDivisor(int(lumaBase[i]+0.5), s.Tables.LumaMax[i])
		s.Tables.Chroma[i] = clampDivisor(int(chromaBase[i]+0.5), s.Tables.ChromaMax[i])
	}
	// Level-1 LL is never quantized (§4.3 "LL is not quantized at
	// level 1"); band index 0 of the top wavelet may use q=1.
	s.Tables.Luma[0] = 1
	s.Tables.Chroma[0] = 1

	for i := 0; i < NumSubbands; i++ {
		var f Flags
		if s.Tables.Luma[i] > 64 || s.Tables.Chroma[i] > 64 {
			f |= FlagDeepBook
		}
		if peakEnabled {
			f |= FlagPeak
		}
		if precision == 12 && (i%4 == 1 || i%4 == 2) {
			f |= FlagDiff
		}
		s.Tables.CodebookFlags[i] = f
	}

	// progressive affects field handling upstream in the transform
	// pyramid, not divisor magnitude, so no further adjustment here.

	return optimizeEmpty, nil
}

// ApplyRateControl scales every divisor by the ratio of the previous
// GOP's byte count to the target, per §4.4's fixed_bitrate mode.
// Uses gonum/floats to scale the flattened divisor vectors in one
// pass, matching how jpeg2000.CalculateQuantizationParams reduces
// per-band step sizes with a single scalar.
func (s *State) ApplyRateControl(lastGOPBytes, targetBytesPerGOP int) {
	s.LastGOPBytes = lastGOPBytes
	s.TargetBytesPerGOP = targetBytesPerGOP
	if s.FixedBitrate <= 0 || targetBytesPerGOP <= 0 {
		return
	}
	ratio := float64(lastGOPBytes) / float64(targetBytesPerGOP)
	if ratio <= 0 {
		return
	}

	luma := make([]float64, NumSubbands)
	chroma := make([]float64, NumSubbands)
	for i := range luma {
		luma[i] = float64(s.Tables.Luma[i])
		chroma[i] = float64(s.Tables.Chroma[i])
	}
	floats.Scale(ratio, luma)
	floats.Scale(ratio, chroma)
	for i := range luma {
		s.Tables.Luma[i] = clampDivisor(int(luma[i]+0.5), s.Tables.LumaMax[i])
		s.Tables.Chroma[i] = clampDivisor(int(chroma[i]+0.5), s.Tables.ChromaMax[i])
	}
}

// LoadCustomQuant overrides the preset tables entirely from an
// external block, identified by CustomQuantMagic (§4.4). Layout:
// 4-byte magic, then NumSubbands big-endian uint16 luma divisors,
// then NumSubbands chroma divisors.
func (s *State) LoadCustomQuant(block []byte) error {
	const headerLen = 4
	need := headerLen + 2*2*NumSubbands
	if len(block) < need {
		return errors.Errorf("quantizer: custom_quant block too short: got %d bytes, want >= %d", len(block), need)
	}
	magic := binary.BigEndian.Uint32(block[:4])
	if magic != CustomQuantMagic {
		return ErrBadCustomQuant
	}
	off := headerLen
	for i := 0; i < NumSubbands; i++ {
		s.Tables.Luma[i] = clampDivisor(int(binary.BigEndian.Uint16(block[off:])), s.QuantLimit)
		off += 2
	}
	for i := 0; i < NumSubbands; i++ {
		s.Tables.Chroma[i] = clampDivisor(int(binary.BigEndian.Uint16(block[off:])), s.QuantLimit)
		off += 2
	}
	s.custom = true
	return nil
}

func clampDivisor(v, limit int) int {
	if v < 1 {
		return 1
	}
	if v > limit {
		return limit
	}
	return v
}

// Quantize divides coefficient v by divisor with round-half-away-
// from-zero, as the entropy coder expects integer-magnitude-reduced
// input.
func Quantize(v int32, divisor int) int32 {
	if divisor <= 1 {
		return v
	}
	d := int32(divisor)
	if v >= 0 {
		return (v + d/2) / d
	}
	return -((-v + d/2) / d)
}
