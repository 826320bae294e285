// Package format names the pixel-format boundary the encoder core
// sits behind. Pixel-format conversion itself is out of scope (spec
// §1 Non-goals): this package defines the seam (PlaneLayout,
// Converter) and ships exactly one trivial implementation, YUYVConverter,
// so the core can be exercised end to end without a production
// conversion library.
package format

import "github.com/pkg/errors"

// PixelFormat enumerates the input formats §6 names as configuration.
// Only YUYV has a Converter implementation in this module; the rest
// are named so the encoder's configuration surface is complete even
// though converting them is an external collaborator's job.
type PixelFormat int

const (
	YUYV PixelFormat = iota
	UYVY
	V210
	YU64
	RGB24
	RGB32
	RGBA
	QT32 // BGRA
	B64A
	R4FL
	V408 // R408
	BYR1
	BYR2
	BYR3
	BYR4
	BYR5
	RG30 // R210/DPX0/AR10/AB10 family
	RG48
	RG64
	NV12
	YV12
)

// ColorSpaceYUV and ColorSpaceRGB are the two colorspace axes of §6.
type ColorSpaceYUV int

const (
	YUV601 ColorSpaceYUV = iota
	YUV709
)

type ColorSpaceRGB int

const (
	RGBcgRGB ColorSpaceRGB = iota
	RGBvsRGB
)

// PlaneLayout describes one plane's geometry: its logical width and
// height plus the pitch (samples per row) the converter actually
// wrote, which may exceed Width for alignment.
type PlaneLayout struct {
	Width, Height, Pitch int
}

// Converter turns a packed pixel buffer into one []int16 plane per
// channel, in channel order, of layout.Height rows. Planes are not
// padded here; the assembler pads height to a multiple of 8 per
// §4.3's edge policy.
type Converter interface {
	Planes(pixels []byte, layout PlaneLayout) ([][]int16, error)
}

// Preprocessor is the seam the out-of-scope GeoMesh lens-warp module
// would hook into (§9 "Lens warp module coupling"): an optional
// transform run on the converted planes before the level-1 transform.
// No implementation is provided here.
type Preprocessor func(planes [][]int16) error

// YUYVConverter splits packed 4:2:2 YUYV (Y0 U Y1 V per 2 pixels)
// into three planes: full-resolution luma, half-horizontal-resolution
// chroma (U, V), matching the simplest variant spec §1 calls out as
// in-scope-to-demonstrate-only.
type YUYVConverter struct{}

// Planes implements Converter.
func (YUYVConverter) Planes(pixels []byte, layout PlaneLayout) ([][]int16, error) {
	w, h := layout.Width, layout.Height
	if w%2 != 0 {
		return nil, errors.Errorf("format: YUYV width must be even, got %d", w)
	}
	need := layout.Pitch * h * 2
	if len(pixels) < need {
		return nil, errors.Errorf("format: buffer too small: got %d bytes, want >= %d", len(pixels), need)
	}

	y := make([]int16, w*h)
	cw := w / 2
	u := make([]int16, cw*h)
	v := make([]int16, cw*h)

	stride := layout.Pitch * 2
	for row := 0; row < h; row++ {
		src := pixels[row*stride : row*stride+w*2]
		for x := 0; x < cw; x++ {
			i := x * 4
			y[row*w+2*x] = int16(src[i])
			u[row*cw+x] = int16(src[i+1])
			y[row*w+2*x+1] = int16(src[i+2])
			v[row*cw+x] = int16(src[i+3])
		}
	}
	return [][]int16{y, u, v}, nil
}
