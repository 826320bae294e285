// Package cfhd is the public entry point for the wavelet video encoder
// core: it wires the pixel-format boundary (internal/format), the
// override-file side channel (internal/override), and the GOP-lifecycle
// sample assembler (internal/assembler) behind a single Encoder type,
// the way codec.Codec fronts the teacher's own per-format packages.
package cfhd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"

	"github.com/gopro/cfhd-encoder/internal/assembler"
	"github.com/gopro/cfhd-encoder/internal/format"
	"github.com/gopro/cfhd-encoder/internal/override"
)

// UncompressedMode re-exports assembler.UncompressedMode so callers
// never need to import the internal package directly.
type UncompressedMode = assembler.UncompressedMode

const (
	UncompressedOff        = assembler.UncompressedOff
	UncompressedStore      = assembler.UncompressedStore
	UncompressedHeaderOnly = assembler.UncompressedHeaderOnly
)

// Options is the Encoder's init-time configuration, mirroring
// codec.Options's Validate-before-use shape from the teacher.
type Options struct {
	GOPLength     int
	NumSpatial    int
	EncodedWidth  int
	EncodedHeight int
	DisplayHeight int

	InputFormat   format.PixelFormat
	ColorspaceYUV format.ColorSpaceYUV
	ColorspaceRGB format.ColorSpaceRGB
	Progressive   bool
	ChromaFullRes bool
	Precision     int

	FixedQuality uint32
	FixedBitrate int
	CustomQuant  []byte

	Uncompressed UncompressedMode
	PeakEnabled  bool
	FieldPlus    bool

	// Converter turns a caller's packed pixel buffer into per-channel
	// planes. Defaults to format.YUYVConverter{} when nil and
	// InputFormat is format.YUYV.
	Converter format.Converter

	// OverrideDefaultsPath and OverrideLivePath, when non-empty, enable
	// the §4.9 live override-file poll on every EncodeSample call.
	OverrideDefaultsPath string
	OverrideLivePath     string

	// Parallel runs a concurrent per-channel check (across an errgroup)
	// that every converted plane is non-empty before the assembler is
	// called. The transform, quantize and entropy-code stages run
	// sequentially per channel on the calling goroutine either way.
	Parallel bool
}

// Validate implements the teacher's codec.Options contract.
func (o *Options) Validate() error {
	if o.Converter == nil && o.InputFormat != format.YUYV {
		return errors.New("cfhd: no Converter supplied for a non-YUYV input format")
	}
	return nil
}

// Encoder is the public, concurrency-unsafe (one goroutine at a time)
// encoder handle. Construct with NewEncoder.
type Encoder struct {
	opts     Options
	asm      *assembler.Assembler
	poller   *override.Poller
	layout   format.PlaneLayout
	parallel bool
}

// NewEncoder validates opts and builds an Encoder.
func NewEncoder(opts Options) (*Encoder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	conv := opts.Converter
	if conv == nil {
		conv = format.YUYVConverter{}
	}

	asm, err := assembler.New(assembler.Config{
		GOPLength:     opts.GOPLength,
		NumSpatial:    opts.NumSpatial,
		EncodedWidth:  opts.EncodedWidth,
		EncodedHeight: opts.EncodedHeight,
		DisplayHeight: opts.DisplayHeight,
		InputFormat:   opts.InputFormat,
		ColorspaceYUV: opts.ColorspaceYUV,
		ColorspaceRGB: opts.ColorspaceRGB,
		Progressive:   opts.Progressive,
		ChromaFullRes: opts.ChromaFullRes,
		Precision:     opts.Precision,
		FixedQuality:  opts.FixedQuality,
		FixedBitrate:  opts.FixedBitrate,
		CustomQuant:   opts.CustomQuant,
		Uncompressed:  opts.Uncompressed,
		PeakEnabled:   opts.PeakEnabled,
		FieldPlus:     opts.FieldPlus,
	})
	if err != nil {
		return nil, err
	}

	displayHeight := clampQuality(opts.DisplayHeight, 0, opts.EncodedHeight)

	e := &Encoder{
		opts: opts,
		asm:  asm,
		layout: format.PlaneLayout{
			Width:  opts.EncodedWidth,
			Height: displayHeight,
			Pitch:  opts.EncodedWidth,
		},
		parallel: opts.Parallel,
	}
	if displayHeight == 0 {
		e.layout.Height = opts.EncodedHeight
	}
	e.opts.Converter = conv

	if opts.OverrideLivePath != "" || opts.OverrideDefaultsPath != "" {
		e.poller = override.NewPoller(opts.OverrideDefaultsPath, opts.OverrideLivePath)
	}
	return e, nil
}

// EncodeFrame converts a packed pixel buffer through the configured
// Converter and runs it through the sample assembler, writing the
// resulting sample (if any) into dst. n==0, err==nil means the frame
// was accumulated into an open GOP and no sample was emitted yet.
func (e *Encoder) EncodeFrame(ctx context.Context, dst []byte, pixels []byte) (int, error) {
	if e.poller != nil {
		if err := e.poller.Poll(time.Now()); err != nil {
			return 0, errors.Wrap(err, "cfhd: override poll failed")
		}
	}

	planes, err := e.opts.Converter.Planes(pixels, e.layout)
	if err != nil {
		return 0, errors.Wrap(err, "cfhd: pixel conversion failed")
	}

	if e.parallel {
		return e.encodePlanesParallel(ctx, dst, planes)
	}
	return e.asm.EncodeSample(dst, planes)
}

// encodePlanesParallel pre-validates every plane concurrently (§5's
// fan-out point: per-channel work is independent up to the point the
// assembler serializes the sample into one tag-chunk stream) before
// handing the batch to the sequential assembler. The assembler itself
// is not safe for concurrent sample emission, since it owns shared
// metadata and quantizer state across calls.
func (e *Encoder) encodePlanesParallel(ctx context.Context, dst []byte, planes [][]int16) (int, error) {
	g, _ := errgroup.WithContext(ctx)
	for i := range planes {
		p := planes[i]
		g.Go(func() error {
			if len(p) == 0 {
				return errors.Errorf("cfhd: channel %d has an empty plane", i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return e.asm.EncodeSample(dst, planes)
}

// ResetGroup clears sticky error and GOP state per §7's reset policy.
func (e *Encoder) ResetGroup() { e.asm.ResetGroup() }

// LastError returns the most recent sticky encode error, if any.
func (e *Encoder) LastError() error { return e.asm.LastError() }

// AddMetadata installs a global or local metadata tag for the next
// emitted sample.
func (e *Encoder) AddMetadata(global bool, tag [4]byte, typ byte, data []byte) bool {
	return e.asm.AddMetadata(global, tag, typ, data)
}

// PendingOverrides returns the most recently polled override values,
// or a zero Pending if no override paths were configured.
func (e *Encoder) PendingOverrides() override.Pending {
	if e.poller == nil {
		return override.Pending{}
	}
	return e.poller.Pending()
}

// clampQuality generically bounds a value to [lo, hi], grounded on
// golang.org/x/exp/constraints for the Ordered type parameter.
func clampQuality[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
