// Package assembler implements the sample assembly state machine of
// spec §4.7: GOP lifecycle, tag-chunk sample framing, metadata
// insertion, channel-size backfill, and the uncompressed
// pass-through path.
//
// The push/pop size-backpatch framing is the teacher's own idiom
// generalized from byte-oriented JPEG segment writing
// (jpeg/standard.Writer.WriteSegment) to this format's nested,
// multi-level tag-chunk sizes (bitstream.Writer.SizeTagPush/Pop).
package assembler

import (
	"github.com/pkg/errors"

	"github.com/gopro/cfhd-encoder/internal/bitstream"
	"github.com/gopro/cfhd-encoder/internal/codebook"
	"github.com/gopro/cfhd-encoder/internal/entropy"
	"github.com/gopro/cfhd-encoder/internal/format"
	"github.com/gopro/cfhd-encoder/internal/metadata"
	"github.com/gopro/cfhd-encoder/internal/quantizer"
	"github.com/gopro/cfhd-encoder/internal/transform"
	"github.com/gopro/cfhd-encoder/internal/wavelet"
)

// State is the assembler's GOP lifecycle state (§4.7).
type State int

const (
	StateIdle State = iota
	StateGroupOpen
	StateEmitting
)

// UncompressedMode selects the pass-through behavior of §4.7 and
// resolves the §9 open question to exactly three states (see
// SPEC_FULL.md §9): Off (normal compressed path), Store (raw
// pass-through chunk), HeaderOnly (header tags only, no metadata,
// frame discarded).
type UncompressedMode int

const (
	UncompressedOff UncompressedMode = iota
	UncompressedStore
	UncompressedHeaderOnly
)

// Config is the encoder's init-time configuration (§6).
type Config struct {
	GOPLength       int // 1 or 2
	NumSpatial      int // 2 or 3
	EncodedWidth    int
	EncodedHeight   int
	DisplayHeight   int
	InputFormat     format.PixelFormat
	ColorspaceYUV   format.ColorSpaceYUV
	ColorspaceRGB   format.ColorSpaceRGB
	Progressive     bool
	ChromaFullRes   bool
	Precision       int // 8, 10, or 12
	FixedQuality    uint32
	FixedBitrate    int
	CustomQuant     []byte
	Uncompressed    UncompressedMode
	PeakEnabled     bool
	FieldPlus       bool // Field+ pyramid shape (additional highpass spatial level)
}

func (c Config) validate() error {
	if c.GOPLength != 1 && c.GOPLength != 2 {
		return errors.Wrap(ErrInvalidFormat, "gop_length must be 1 or 2")
	}
	if c.NumSpatial != 2 && c.NumSpatial != 3 {
		return errors.Wrap(ErrInvalidFormat, "num_spatial must be 2 or 3")
	}
	if c.EncodedWidth <= 0 || c.EncodedWidth > maxEncodedDimension {
		return errors.Wrap(ErrInvalidFormat, "encoded_width out of range")
	}
	if c.EncodedHeight <= 0 {
		return errors.Wrap(ErrInvalidSize, "encoded_height must be positive")
	}
	if c.Precision != 8 && c.Precision != 10 && c.Precision != 12 {
		return errors.Wrap(ErrInvalidFormat, "precision must be 8, 10, or 12")
	}
	return nil
}

type channelState struct {
	kind         transform.ColorKind
	width        int     // channel's own width (half for 4:2:2 chroma)
	height       int     // padded to RoundUp8
	pendingPlane []int32 // first frame of a GOP=2 pair, awaiting its partner
}

// Assembler is the GOP-lifecycle-aware sample builder. It owns the
// quantizer state and metadata blocks across calls; the caller owns
// input pixel buffers and the output byte slice.
type Assembler struct {
	cfg   Config
	state State

	groupCount  int
	frameNumber int

	channels []channelState
	quant    *quantizer.State

	// optimizeEmpty mirrors quality_word bit 30 (§4.4): only when set
	// does emitLowpass take the constant-frame shortcut of §4.6.
	optimizeEmpty bool

	// targetBytesPerGOP is the fixed_bitrate feedback target
	// (§4.4): the byte budget ApplyRateControl measures the
	// previous GOP's emitted size against before the next frame's
	// quality decision. Resolves the open question of what unit
	// FixedBitrate is in by treating it directly as that budget.
	targetBytesPerGOP int

	metaGlobal *metadata.Block
	metaLocal  *metadata.Block

	lastErr error
}

// New validates cfg and returns an Assembler ready to encode, or the
// validation error wrapped as one of the sentinel error kinds.
func New(cfg Config) (*Assembler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	q := quantizer.New()
	q.FixedBitrate = cfg.FixedBitrate
	optimizeEmpty := false
	if len(cfg.CustomQuant) > 0 {
		if err := q.LoadCustomQuant(cfg.CustomQuant); err != nil {
			return nil, err
		}
	} else {
		var err error
		optimizeEmpty, err = q.SetQuality(cfg.FixedQuality, cfg.Progressive, cfg.Precision, cfg.GOPLength, cfg.ChromaFullRes, cfg.PeakEnabled)
		if err != nil {
			return nil, err
		}
	}

	return &Assembler{
		cfg:               cfg,
		quant:             q,
		optimizeEmpty:     optimizeEmpty,
		targetBytesPerGOP: cfg.FixedBitrate,
		metaGlobal:        metadata.NewBlock(0),
		metaLocal:         metadata.NewBlock(0),
	}, nil
}

// LastError returns the sticky error from the most recent failed
// EncodeSample call, or nil.
func (a *Assembler) LastError() error { return a.lastErr }

// ResetGroup clears group state after a failure, per §7's policy
// ("the caller must reset group state before retrying").
func (a *Assembler) ResetGroup() {
	a.state = StateIdle
	a.groupCount = 0
	a.lastErr = nil
	a.channels = nil
}

// AddMetadata installs a tag in the global or local metadata block.
func (a *Assembler) AddMetadata(global bool, tag [4]byte, typ byte, data []byte) bool {
	if global {
		return a.metaGlobal.Add(tag, typ, data)
	}
	return a.metaLocal.Add(tag, typ, data)
}

// EncodeSample runs one frame through the GOP state machine. planes
// is one []int16 plane per channel in channel order (channel 0 is
// luma). dst is the caller-owned output buffer; a sample is only
// written when the GOP completes (every frame, when GOPLength==1).
// The returned n is the number of bytes written; n==0 with err==nil
// means the frame was accumulated into an open group with no sample
// emitted yet.
func (a *Assembler) EncodeSample(dst []byte, planes [][]int16) (n int, err error) {
	if a.lastErr != nil {
		return 0, a.lastErr
	}

	intPlanes, err := a.preparePlanes(planes)
	if err != nil {
		a.lastErr = err
		return 0, err
	}

	a.frameNumber++

	if a.cfg.GOPLength == 1 {
		a.state = StateEmitting
		n, err = a.emit(dst, [][][]int32{intPlanes})
		a.state = StateIdle
		if err != nil {
			a.lastErr = err
		}
		return n, err
	}

	// GOP == 2: accumulate the first frame, emit on the second.
	if a.groupCount == 0 {
		a.state = StateGroupOpen
		a.pendFirstFrame(intPlanes)
		a.groupCount = 1
		return 0, nil
	}

	firstFrames := a.takePendingFrames()
	a.state = StateEmitting
	n, err = a.emit(dst, [][][]int32{firstFrames, intPlanes})
	a.groupCount = 0
	a.state = StateIdle
	if err != nil {
		a.lastErr = err
	}
	return n, err
}

func (a *Assembler) pendFirstFrame(planes [][]int32) {
	a.channels = make([]channelState, len(planes))
	for i, p := range planes {
		a.channels[i].pendingPlane = p
	}
}

func (a *Assembler) takePendingFrames() [][]int32 {
	out := make([][]int32, len(a.channels))
	for i := range a.channels {
		out[i] = a.channels[i].pendingPlane
		a.channels[i].pendingPlane = nil
	}
	return out
}

// preparePlanes converts []int16 input planes to padded int32
// working planes (padding height to a multiple of 8 with the
// colorspace's neutral value, per §4.3's edge policy).
func (a *Assembler) preparePlanes(planes [][]int16) ([][]int32, error) {
	if len(planes) == 0 {
		return nil, errors.Wrap(ErrInvalidFormat, "no channel planes supplied")
	}
	out := make([][]int32, len(planes))
	for i, p := range planes {
		kind := transform.ColorChroma
		if i == 0 {
			kind = transform.ColorLuma
		}
		w := a.cfg.EncodedWidth
		if i > 0 && !a.cfg.ChromaFullRes {
			w = w / 2
		}
		h := transform.RoundUp8(a.cfg.EncodedHeight)
		neutral := transform.NeutralValue(a.cfg.Precision, kind)

		padded := make([]int32, w*h)
		srcH := a.cfg.EncodedHeight
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if y < srcH && y*w+x < len(p) {
					padded[y*w+x] = int32(p[y*w+x])
				} else {
					padded[y*w+x] = neutral
				}
			}
		}
		out[i] = padded
	}
	return out, nil
}

// emit builds the full tag-chunk sample for one GOP's worth of
// per-channel frames (length 1 for GOPLength==1, length 2 for
// GOPLength==2) and writes it to dst, implementing the §4.7 sample
// layout top to bottom.
func (a *Assembler) emit(dst []byte, framesPerChannel [][][]int32) (int, error) {
	w := bitstream.NewWriter(dst)

	if a.cfg.GOPLength == 1 {
		w.PutTagValue(TagIntraframe, 1)
	} else {
		w.PutTagValue(TagSample, uint16(a.cfg.GOPLength))
	}
	w.PutTagValue(TagFrameNumber, uint16(a.frameNumber))
	w.PutTagValue(TagPrecision, uint16(a.cfg.Precision))
	w.PutTagValue(TagEncodedFormat, uint16(a.cfg.InputFormat))
	w.PutTagValue(TagChannelsPerFrame, uint16(len(framesPerChannel[0])))
	w.PutTagValue(TagDimensions, uint16(a.cfg.EncodedWidth))

	if a.cfg.Uncompressed != UncompressedOff {
		return a.emitUncompressed(w, framesPerChannel)
	}

	w.SizeTagPushWide(TagSampleSize)

	globalBytes := a.metaGlobal.Serialize()
	w.PutTagValue(TagMetadata, uint16(len(globalBytes)/4))
	w.WriteRaw(padTo4(globalBytes))
	localBytes := a.metaLocal.Serialize()
	w.PutTagValue(TagMetadata, uint16(len(localBytes)/4))
	w.WriteRaw(padTo4(localBytes))

	w.PutTagValue(TagFreespace, freespaceReserve/4)
	w.WriteRaw(make([]byte, freespaceReserve))

	channelSizes := make([]uint16, len(framesPerChannel[0]))
	w.PutTagValue(TagChannelSizeTable, uint16(len(channelSizes)))
	sizeVectorOffset := len(w.Bytes())
	w.WriteRaw(make([]byte, 2*len(channelSizes))) // placeholder, back-patched below
	w.PadToTagBoundary()

	numChannels := len(framesPerChannel[0])
	for ch := 0; ch < numChannels; ch++ {
		if ch > 0 {
			w.PutTagValue(TagChannelHeader, uint16(ch))
		}
		before := len(w.Bytes())

		chWidth := a.cfg.EncodedWidth
		if ch > 0 && !a.cfg.ChromaFullRes {
			chWidth /= 2
		}
		chHeight := transform.RoundUp8(a.cfg.EncodedHeight)
		kind := transform.ColorLuma
		if ch > 0 {
			kind = transform.ColorChroma
		}

		var tr *treeResult
		var err error
		if a.cfg.GOPLength == 1 {
			tr, err = a.buildChannelSpatial(framesPerChannel[0][ch], chWidth, chHeight, kind)
		} else {
			tr, err = a.buildChannelField(framesPerChannel[0][ch], framesPerChannel[1][ch], chWidth, chHeight, kind)
		}
		if err != nil {
			return 0, err
		}

		a.emitLowpass(w, tr.lowpass, tr.lowW, tr.lowH)
		for i := len(tr.highpassLevels) - 1; i >= 0; i-- {
			level := tr.highpassLevels[i]
			w.PutTagValue(TagHighpassHeader, uint16(i))
			for b, band := range level.bands {
				a.emitBand(w, band, level.quant[b], level.width, uint16(level.subbandIndex[b]))
			}
			w.PutTagValue(TagHighpassTrailer, uint16(i))
		}

		after := len(w.Bytes())
		if ch < len(channelSizes) {
			channelSizes[ch] = uint16((after - before) / 4)
		}
		if w.Overflow() {
			return 0, errors.Wrap(ErrOverflow, "channel emission exceeded output capacity")
		}
	}

	if a.cfg.GOPLength == 1 {
		w.PutTagValue(TagIntraframeTrailer, 0)
	} else {
		w.PutTagValue(TagGroupTrailer, 0)
	}

	w.SizeTagPop()

	out, err := w.Flush()
	if err != nil {
		return 0, errors.Wrap(ErrOverflow, "sample exceeded output capacity")
	}
	for i, sz := range channelSizes {
		out[sizeVectorOffset+2*i] = byte(sz >> 8)
		out[sizeVectorOffset+2*i+1] = byte(sz)
	}
	if a.cfg.FixedBitrate > 0 {
		a.quant.ApplyRateControl(len(out), a.targetBytesPerGOP)
	}
	return len(out), nil
}

func (a *Assembler) emitUncompressed(w *bitstream.Writer, framesPerChannel [][][]int32) (int, error) {
	if a.cfg.Uncompressed == UncompressedHeaderOnly {
		out, err := w.Flush()
		if err != nil {
			return 0, errors.Wrap(ErrOverflow, "header-only sample exceeded output capacity")
		}
		return len(out), nil
	}

	// UncompressedStore: headers + metadata + a single UNCOMPRESS
	// chunk holding the raw frame, 24-bit size per §6.
	globalBytes := a.metaGlobal.Serialize()
	w.PutTagValue(TagMetadata, uint16(len(globalBytes)/4))
	w.WriteRaw(padTo4(globalBytes))

	raw := packRawFrame(framesPerChannel[len(framesPerChannel)-1])
	w.PutTagValue(TagUncompress, uint16(len(raw)>>8))
	w.PutBits(8, uint32(len(raw)&0xFF))
	w.WriteRaw(padTo4(raw))

	out, err := w.Flush()
	if err != nil {
		return 0, errors.Wrap(ErrOverflow, "uncompressed sample exceeded output capacity")
	}
	return len(out), nil
}

func packRawFrame(planes [][]int32) []byte {
	n := 0
	for _, p := range planes {
		n += len(p) * 2
	}
	out := make([]byte, 0, n)
	for _, p := range planes {
		for _, v := range p {
			out = append(out, byte(v>>8), byte(v))
		}
	}
	return out
}

func padTo4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

type highpassLevel struct {
	bands        [][]int32
	quant        []int
	width        int // shared by every band in the level, for emitBand's DIFF pass
	subbandIndex []int
}

type treeResult struct {
	lowpass        []int32
	lowW, lowH     int
	highpassLevels []highpassLevel
}

func (a *Assembler) buildChannelSpatial(plane []int32, width, height int, kind transform.ColorKind) (*treeResult, error) {
	tr := transform.BuildSpatial(plane, width, height, width, a.cfg.NumSpatial, a.cfg.Precision)
	return a.toTreeResult(tr, kind), nil
}

func (a *Assembler) buildChannelField(planeA, planeB []int32, width, height int, kind transform.ColorKind) (*treeResult, error) {
	tr := transform.BuildField(planeA, planeB, width, height, a.cfg.NumSpatial, a.cfg.Precision, a.cfg.FieldPlus)
	return a.toTreeResult(tr, kind), nil
}

// divisorTable picks the channel-appropriate divisor table: §4.4's
// chroma gain and chroma-full-res math in quantizer.SetQuality only
// takes effect if chroma channels actually consult Tables.Chroma
// instead of Tables.Luma.
func (a *Assembler) divisorTable(kind transform.ColorKind) *[quantizer.NumSubbands]int {
	if kind == transform.ColorChroma {
		return &a.quant.Tables.Chroma
	}
	return &a.quant.Tables.Luma
}

func (a *Assembler) toTreeResult(tr *transform.Transform, kind transform.ColorKind) *treeResult {
	lowBand := tr.Lowpass.Bands[0]
	lowW, lowH := tr.Lowpass.Width, tr.Lowpass.Height
	divisors := a.divisorTable(kind)

	var levels []highpassLevel
	bandIdx := 0
	for _, w := range tr.Wavelets {
		switch w.Type {
		case transform.TypeHorizontalTemporal:
			// Pure input to the temporal combine; never entropy-coded.
			continue
		case transform.TypeTemporal:
			// §3: "a temporal wavelet has 2 bands (lowpass, highpass);
			// the highpass may be empty". The lowpass band feeds the
			// temporal-lowpass branch and the highpass band feeds the
			// temporal-highpass branch (both further decomposed
			// below), so neither is entropy-coded here — only the
			// empty highpass placeholder is.
			levels = append(levels, highpassLevel{bands: [][]int32{nil}, quant: []int{1}, width: w.Width, subbandIndex: []int{bandIdx}})
			bandIdx++
			continue
		}

		// Band 0 is skipped unless the node is Terminal: it either feeds
		// the next level or, for tr.Lowpass, is sent by emitLowpass.
		first := 1
		if w.Terminal {
			first = 0 // the highpass branch's terminal LL is also entropy-coded
		}

		var bands [][]int32
		var quant []int
		var subIdx []int
		for b := first; b < len(w.Bands); b++ {
			coeffs := w.Bands[b]
			q := divisors[bandIdx%quantizer.NumSubbands]
			out := make([]int32, len(coeffs))
			for i, c := range coeffs {
				out[i] = quantizer.Quantize(int32(c), q)
			}
			bands = append(bands, out)
			quant = append(quant, q)
			subIdx = append(subIdx, bandIdx)
			bandIdx++
		}
		levels = append(levels, highpassLevel{bands: bands, quant: quant, width: w.Width, subbandIndex: subIdx})
	}

	return &treeResult{lowpass: coeffToI32(lowBand), lowW: lowW, lowH: lowH, highpassLevels: levels}
}

func coeffToI32(c []wavelet.Coeff) []int32 {
	out := make([]int32, len(c))
	for i, v := range c {
		out[i] = int32(v)
	}
	return out
}

// emitLowpass implements §4.6: raw big-endian pixels, or the
// constant-frame shortcut when every pixel is equal. The shortcut
// only applies when quality_word bit 30 ("optimize empty channels")
// was set — otherwise a constant band is still transmitted in full,
// matching §4.4's description of the bit as gating the optimization
// rather than it being unconditional. Either form is padded to a tag
// boundary.
func (a *Assembler) emitLowpass(w *bitstream.Writer, band []int32, width, height int) {
	w.PutTagValue(TagLowpassHeader, uint16(width))

	if a.optimizeEmpty {
		if constant, isConstant := constantValue(band); isConstant {
			w.PutBits(32, LowpassConstantSentinel)
			w.PutBits(16, uint32(uint16(constant)))
			w.PutBits(16, uint32(width))
			w.PutBits(16, uint32(height))
			w.PadToTagBoundary()
			return
		}
	}

	for _, v := range band {
		w.PutBits(16, uint32(uint16(v)))
	}
	w.PadToTagBoundary()
}

func constantValue(band []int32) (int32, bool) {
	if len(band) == 0 {
		return 0, false
	}
	first := band[0]
	for _, v := range band[1:] {
		if v != first {
			return 0, false
		}
	}
	return first, true
}

// emitBand writes one highpass band: header, entropy-coded
// coefficients (or empty-band shortcut), peak side-table, trailer.
// Codebook and peak-escape selection come from the quantizer's
// per-subband codebook_flags table (§4.5), not from re-deriving them
// here; width is only needed for the DIFF horizontal pre-coding pass.
func (a *Assembler) emitBand(w *bitstream.Writer, coeffs []int32, quant, width int, subbandIndex uint16) {
	if len(coeffs) == 0 {
		w.PutTagValue(TagBandHeader, 255) // empty band, §4.5
		w.PutTagValue(TagBandTrailer, 255)
		return
	}

	w.PutTagValue(TagBandHeader, subbandIndex)

	flags := a.quant.Tables.CodebookFlags[int(subbandIndex)%quantizer.NumSubbands]
	cb := codebook.Base()
	if flags&quantizer.FlagDeepBook != 0 {
		cb = codebook.Deep()
	}
	peakEnabled := flags&quantizer.FlagPeak != 0
	if peakEnabled {
		cb = codebook.Peak()
	}

	toEncode := coeffs
	if flags&quantizer.FlagDiff != 0 && width > 0 {
		toEncode = horizontalDiff(coeffs, width)
	}

	headerPos := len(w.Bytes())
	peaks := entropy.EncodeBand(w, toEncode, cb, quant, peakEnabled)
	w.PadToTagBoundary()

	if len(peaks) > 0 {
		offset := len(w.Bytes()) - headerPos
		w.PutTagValue(TagPeakTableOffsetL, uint16(offset))
		w.PutTagValue(TagPeakTableOffsetH, uint16(offset>>16))
		w.PutTagValue(TagPeakLevel, uint16(codebook.PeakThreshold*quant))
		w.PutTagValue(TagPeakTable, uint16(len(peaks)))
		for _, p := range peaks {
			w.PutBits(16, uint32(uint16(p)))
		}
		w.PadToTagBoundary()
	}

	w.PutTagValue(TagBandTrailer, subbandIndex)
}

// horizontalDiff replaces each row (after the first column) with its
// difference from the preceding sample in the same row, the §4.5
// DIFF pre-coding mode used for LH/HL bands at 12-bit precision: the
// wider dynamic range of deep-precision coefficients means adjacent
// samples within a row are usually closer to each other than to zero.
func horizontalDiff(coeffs []int32, width int) []int32 {
	out := make([]int32, len(coeffs))
	for row := 0; row*width < len(coeffs); row++ {
		start := row * width
		end := start + width
		if end > len(coeffs) {
			end = len(coeffs)
		}
		if start >= end {
			break
		}
		out[start] = coeffs[start]
		for i := start + 1; i < end; i++ {
			out[i] = coeffs[i] - coeffs[i-1]
		}
	}
	return out
}
