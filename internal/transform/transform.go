// Package transform assembles the per-channel wavelet pyramid: the
// ordered sequence of wavelet lifting stages described in spec §3 and
// §4.3, built from the lower-level lifting primitives in
// internal/wavelet. It owns prescale-table lookup and the three
// supported pyramid shapes (spatial/field/field+). The builders
// allocate fresh band buffers on every call; no scratch buffer is
// kept between calls.
package transform

import (
	"github.com/gopro/cfhd-encoder/internal/wavelet"
)

// Type tags a wavelet node the way §3's data model requires.
type Type int

const (
	TypeSpatial Type = iota
	TypeHorizontalTemporal
	TypeTemporal
	TypeHorizontal
)

// Wavelet is one pyramid node: 1, 2 or 4 band buffers plus the
// per-band prescale/quant/scale metadata captured at build time.
type Wavelet struct {
	Type          Type
	Level         int
	Width, Height int // dimensions of each band (not the pre-transform plane)
	Bands         [][]wavelet.Coeff
	Prescale      []int
	Quant         []int // set to 1 by the builders; nothing writes it afterwards
	// Scale is 1<<prescale times the band's QuantMultiplier. It is
	// recorded on the node only: the assembler quantizes with the
	// quantizer's divisor tables and does not read Scale, so the
	// multiplier does not change any divisor.
	Scale []int

	// Terminal marks a spatial node whose band 0 (LL) carries no
	// further decomposition and must therefore be entropy-coded
	// alongside its other bands, rather than feeding the next level.
	// Set on the last decomposition of the temporal-highpass branch
	// (§3 "Ordering"); never set on the temporal-lowpass branch, whose
	// final LL becomes the channel's transmitted lowpass image.
	Terminal bool
}

// Transform is the ordered wavelet pyramid for one color channel.
type Transform struct {
	Wavelets []*Wavelet
	Scratch  []int32 // not allocated by BuildSpatial or BuildField; nil unless set by a caller

	// Lowpass is the wavelet whose band 0 is the channel's final,
	// directly-transmitted lowpass image (§4.6). It is always the last
	// decomposition of the temporal-lowpass branch (or the sole branch,
	// for the spatial/intra pyramid).
	Lowpass *Wavelet
}

// PrescaleTable implements §4.3's fixed-per-precision shift table.
//   - 8-bit: always 0.
//   - 10-bit: 2 on the spatial decomposition of the temporal-lowpass
//     branch (field pyramids), 0 elsewhere.
//   - 12-bit: 2 on every level beyond level-1 ("inner levels").
func PrescaleTable(precision, level int, temporalLowBranch bool) int {
	switch precision {
	case 8:
		return 0
	case 10:
		if temporalLowBranch && level > 0 {
			return 2
		}
		return 0
	case 12:
		if level > 0 {
			return 2
		}
		return 0
	default:
		return 0
	}
}

// QuantMultiplier implements the 12-bit "4x multiplier on quantization
// for bands >= 11" rule from §4.3. bandGlobalIndex is the running
// count of bands emitted so far across the whole channel pyramid.
func QuantMultiplier(precision, bandGlobalIndex int) int {
	if precision == 12 && bandGlobalIndex >= 11 {
		return 4
	}
	return 1
}

// RoundUp8 pads a dimension up to a multiple of 8, per §4.3's edge
// policy ("frame height is rounded up to a multiple of 8 before
// transform").
func RoundUp8(n int) int {
	return (n + 7) &^ 7
}

// NeutralValue returns the padding fill value for a color-space kind.
type ColorKind int

const (
	ColorLuma ColorKind = iota
	ColorChroma
	ColorRGB
)

func NeutralValue(precision int, kind ColorKind) int32 {
	switch kind {
	case ColorLuma:
		return int32(16) << uint(precision-8)
	case ColorChroma:
		return int32(1) << uint(precision-1)
	default: // RGB
		return 0
	}
}

func newWavelet(typ Type, level int, bands [][]wavelet.Coeff, width, height, prescale int) *Wavelet {
	w := &Wavelet{Type: typ, Level: level, Width: width, Height: height, Bands: bands, Prescale: make([]int, len(bands)), Quant: make([]int, len(bands)), Scale: make([]int, len(bands))}
	for i := range bands {
		w.Prescale[i] = prescale
		w.Quant[i] = 1
		w.Scale[i] = 1 << uint(prescale)
	}
	return w
}

// BuildSpatial constructs the GOP=1 "intra" pyramid (§3 "Spatial
// (intra, GOP=1)"): wavelet[0] is the level-1 2D decomposition of
// plane; wavelets[1..numSpatial] are successive LL decompositions.
func BuildSpatial(plane []int32, width, height, stride, numSpatial, precision int) *Transform {
	tr := &Transform{}
	curPlane, curW, curH, curStride := plane, width, height, stride
	bandIdx := 0

	for level := 0; level <= numSpatial; level++ {
		prescale := PrescaleTable(precision, level, false)
		bands := wavelet.Spatial2D(curPlane, curW, curH, curStride, prescale)
		w := newWavelet(TypeSpatial, level, [][]wavelet.Coeff{bands.LL, bands.LH, bands.HL, bands.HH}, bands.Width, bands.Height, prescale)
		for i := range w.Scale {
			w.Scale[i] *= QuantMultiplier(precision, bandIdx+i)
		}
		tr.Wavelets = append(tr.Wavelets, w)
		bandIdx += 4

		if level == numSpatial {
			break
		}
		// Next level decomposes the LL band as an ordinary plane.
		curW, curH = bands.Width, bands.Height
		curStride = curW
		curPlane = make([]int32, curW*curH)
		for i, v := range bands.LL {
			curPlane[i] = int32(v)
		}
	}
	tr.Lowpass = tr.Wavelets[len(tr.Wavelets)-1]
	return tr
}

// BuildField constructs the GOP=2 interlaced pyramid (§3 "Field" and
// "Field+"). fieldA, fieldB are the two frames of the group, each
// already reduced to one field's rows (fieldWidth x fieldHeight).
//
// wavelet[0], wavelet[1]: the horizontal-only level-1 lift of each
// field, each row rearranged in place to [low(hw) | high(width-hw)] —
// tagged HorizontalTemporal because they exist only as input to the
// temporal combine in wavelet[2]. Bands[0]/Bands[1] split the low/high
// halves out only for the data model; the temporal combine below
// operates on the full undivided row, which is equivalent (addition
// distributes over the concatenation).
//
// wavelet[2]: the temporal combine (§3 invariant "a temporal wavelet
// has 2 bands"). Its lowpass band is the full-width sum of the two
// fields' horizontally-lifted rows; its highpass band is their
// difference. Per §93 "Ordering", neither band is entropy-coded
// directly — the lowpass band feeds the temporal-lowpass branch, the
// highpass band feeds the temporal-highpass branch, and the encoder
// emits wavelet[2]'s highpass slot as empty.
//
// wavelets[3..]: the spatial decomposition of the temporal-highpass
// branch (one level, vertical-only since the horizontal pass already
// ran in wavelet[0]/[1]; all 4 of its bands are entropy-coded since
// nothing decomposes it further), followed by numSpatial-1 successive
// spatial decompositions of the temporal-lowpass branch (the first
// vertical-only for the same reason, the rest ordinary 2D passes on
// the previous level's LL). When plus is true, the temporal-highpass
// branch gets one additional ordinary 2D decomposition of its LL.
func BuildField(fieldA, fieldB []int32, fieldWidth, fieldHeight, numSpatial, precision int, plus bool) *Transform {
	tr := &Transform{}
	bandIdx := 0
	applyMult := func(w *Wavelet) {
		for i := range w.Scale {
			w.Scale[i] *= QuantMultiplier(precision, bandIdx+i)
		}
		bandIdx += 4
	}

	horizA := horizontalLiftFull(fieldA, fieldWidth, fieldHeight)
	horizB := horizontalLiftFull(fieldB, fieldWidth, fieldHeight)

	lowA, highA := splitHalves(horizA, fieldWidth, fieldHeight)
	lowB, highB := splitHalves(horizB, fieldWidth, fieldHeight)
	hw := (fieldWidth + 1) / 2
	wA := newWavelet(TypeHorizontalTemporal, 0, [][]wavelet.Coeff{toCoeff(lowA), toCoeff(highA)}, hw, fieldHeight, 0)
	wB := newWavelet(TypeHorizontalTemporal, 0, [][]wavelet.Coeff{toCoeff(lowB), toCoeff(highB)}, hw, fieldHeight, 0)
	tr.Wavelets = append(tr.Wavelets, wA, wB)

	temporalLow, temporalHigh := wavelet.TemporalCombine(horizA, horizB)
	prescale := PrescaleTable(precision, 1, true)
	lowC := shiftClamp(temporalLow, prescale)
	highC := shiftClamp(temporalHigh, prescale)
	wCombine := newWavelet(TypeTemporal, 1, [][]wavelet.Coeff{lowC, highC}, fieldWidth, fieldHeight, prescale)
	tr.Wavelets = append(tr.Wavelets, wCombine)

	// Temporal-highpass branch: one level unconditionally, vertical-
	// only completion of the horizontal pass already done above; when
	// plus is set, one more ordinary decomposition of its LL.
	hpPlane := coeffToInt32(highC)
	hpPs := PrescaleTable(precision, 2, false)
	hpBands := wavelet.VerticalOnly2D(hpPlane, fieldWidth, fieldHeight, hpPs)
	hpWavelet := newWavelet(TypeSpatial, 2, [][]wavelet.Coeff{hpBands.LL, hpBands.LH, hpBands.HL, hpBands.HH}, hpBands.Width, hpBands.Height, hpPs)
	hpWavelet.Terminal = !plus
	applyMult(hpWavelet)
	tr.Wavelets = append(tr.Wavelets, hpWavelet)

	if plus {
		hpPs2 := PrescaleTable(precision, 3, false)
		hpll := coeffToInt32(hpBands.LL)
		hpBands2 := wavelet.Spatial2D(hpll, hpBands.Width, hpBands.Height, hpBands.Width, hpPs2)
		hpWavelet2 := newWavelet(TypeSpatial, 3, [][]wavelet.Coeff{hpBands2.LL, hpBands2.LH, hpBands2.HL, hpBands2.HH}, hpBands2.Width, hpBands2.Height, hpPs2)
		hpWavelet2.Terminal = true
		applyMult(hpWavelet2)
		tr.Wavelets = append(tr.Wavelets, hpWavelet2)
	}

	// Temporal-lowpass branch: first level vertical-only (same reason
	// as the highpass branch), then numSpatial-2 ordinary 2D passes.
	lpPlane := coeffToInt32(lowC)
	ps := PrescaleTable(precision, 2, true)
	lpBands := wavelet.VerticalOnly2D(lpPlane, fieldWidth, fieldHeight, ps)
	lpWavelet := newWavelet(TypeSpatial, 2, [][]wavelet.Coeff{lpBands.LL, lpBands.LH, lpBands.HL, lpBands.HH}, lpBands.Width, lpBands.Height, ps)
	applyMult(lpWavelet)
	tr.Wavelets = append(tr.Wavelets, lpWavelet)
	tr.Lowpass = lpWavelet

	curPlane := coeffToInt32(lpBands.LL)
	curW, curH := lpBands.Width, lpBands.Height
	for level := 0; level < numSpatial-2; level++ {
		lvlPs := PrescaleTable(precision, level+3, true)
		bands := wavelet.Spatial2D(curPlane, curW, curH, curW, lvlPs)
		w := newWavelet(TypeSpatial, level+3, [][]wavelet.Coeff{bands.LL, bands.LH, bands.HL, bands.HH}, bands.Width, bands.Height, lvlPs)
		applyMult(w)
		tr.Wavelets = append(tr.Wavelets, w)
		tr.Lowpass = w
		curW, curH = bands.Width, bands.Height
		curPlane = coeffToInt32(bands.LL)
	}

	return tr
}

// horizontalLiftFull runs Lift1D over every row of plane in place,
// returning one array the same shape as plane where each row is
// rearranged as [low(hw) | high(width-hw)].
func horizontalLiftFull(plane []int32, width, height int) []int32 {
	out := make([]int32, width*height)
	row := make([]int32, width)
	for y := 0; y < height; y++ {
		copy(row, plane[y*width:y*width+width])
		wavelet.Lift1D(row)
		copy(out[y*width:(y+1)*width], row)
	}
	return out
}

// splitHalves pulls the low/high column halves out of a
// horizontalLiftFull plane, for wavelets whose data model carries
// them as separate band buffers.
func splitHalves(full []int32, width, height int) (low, high []int32) {
	hw := (width + 1) / 2
	dw := width - hw
	low = make([]int32, hw*height)
	high = make([]int32, dw*height)
	for y := 0; y < height; y++ {
		copy(low[y*hw:(y+1)*hw], full[y*width:y*width+hw])
		copy(high[y*dw:(y+1)*dw], full[y*width+hw:y*width+width])
	}
	return
}

func toCoeff(v []int32) []wavelet.Coeff {
	out := make([]wavelet.Coeff, len(v))
	for i, x := range v {
		out[i] = clamp16(x)
	}
	return out
}

func shiftClamp(v []int32, shift int) []wavelet.Coeff {
	out := make([]wavelet.Coeff, len(v))
	for i, x := range v {
		if shift > 0 {
			half := int32(1) << uint(shift-1)
			if x >= 0 {
				x = (x + half) >> uint(shift)
			} else {
				x = -((-x + half) >> uint(shift))
			}
		}
		out[i] = clamp16(x)
	}
	return out
}

func clamp16(v int32) wavelet.Coeff {
	if v > 1<<15-1 {
		return 1<<15 - 1
	}
	if v < -1<<15 {
		return -1 << 15
	}
	return wavelet.Coeff(v)
}

func coeffToInt32(c []wavelet.Coeff) []int32 {
	out := make([]int32, len(c))
	for i, v := range c {
		out[i] = int32(v)
	}
	return out
}
