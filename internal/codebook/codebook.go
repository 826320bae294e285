// Package codebook holds the immutable run-length / value / tag VLC
// lookup tables the entropy coder emits codes from.
//
// Construction of these tables from coefficient statistics is out of
// scope (the tables are assumed pre-built); this package only gives
// their lookup shape: a greedy-covering run-length book, a
// direct-indexed value book, and a band-end tag, mirroring the
// Bits/Values split of a classic Huffman table
// (jpeg/common.HuffmanTable) but addressed by run length or signed
// magnitude instead of a canonical bit length.
package codebook

import "sync"

// V is the size of the value-book domain. Coefficients are clamped to
// [-(V/2)+1, V/2-1] before being looked up.
const V = 512

// ValueMin and ValueMax are the inclusive bounds of the value book.
const (
	ValueMin = -(V / 2) + 1
	ValueMax = V/2 - 1
)

// PeakThreshold is the magnitude above which a peak-coded band
// substitutes an escape code and records the true value in a side
// peaks table (spec'd range: |v| > PeakThreshold).
const PeakThreshold = ValueMax - 1

// Code is one emittable VLC symbol.
type Code struct {
	Bits uint32
	Size int // in bits; Size==0 means "no code" (unused slot)
}

// RunEntry is one entry of the run-length book: it covers exactly
// RunLength consecutive zero coefficients with Code.
type RunEntry struct {
	RunLength int
	Code      Code
}

// Codebook is the immutable (run-length book, value book, band-end
// code) triple selectable per subband via Flags.
type Codebook struct {
	// Runs is sorted descending by RunLength so the greedy coverer in
	// the entropy package can scan it front-to-back.
	Runs []RunEntry
	// Values is indexed by (v - ValueMin); only slots actually
	// populated (Size>0) are legal coefficient values to emit
	// without using the escape mechanism.
	Values [V]Code
	// BandEnd terminates the coefficient stream for one band or pass.
	BandEnd Code
}

// Lookup returns the largest run-length entry whose RunLength does
// not exceed n, and ok=false if n==0 or no entry is small enough
// (the latter cannot happen for a well-formed book, whose smallest
// entry always covers a run of 1).
func (c *Codebook) Lookup(n int) (RunEntry, bool) {
	for _, e := range c.Runs {
		if e.RunLength <= n {
			return e, true
		}
	}
	return RunEntry{}, false
}

// ValueCode returns the code for v, which must already be within
// [ValueMin, ValueMax].
func (c *Codebook) ValueCode(v int) Code {
	return c.Values[v-ValueMin]
}

var (
	once       sync.Once
	baseBook   Codebook
	deepBook   Codebook
	peakBook   Codebook
)

func buildAll() {
	baseBook = newLinearBook(1)
	deepBook = newLinearBook(2) // wider codes for large-magnitude bands
	peakBook = newLinearBook(1)
}

// Base returns the default codebook used by most highpass bands.
func Base() *Codebook { once.Do(buildAll); return &baseBook }

// Deep returns the codebook used for subbands flagged DeepBook in the
// codebook-flags table. Temporal-highpass bands are not selected for
// it on their own; only the flag decides.
func Deep() *Codebook { once.Do(buildAll); return &deepBook }

// Peak returns the codebook paired with the peak-escape mechanism.
func Peak() *Codebook { once.Do(buildAll); return &peakBook }

// newLinearBook builds a simple, internally consistent code
// assignment: shorter codes for small magnitudes/runs, growing
// linearly, scaled by widen (>1 widens every code by that many
// extra bits, modeling a "deeper" book built for larger typical
// magnitudes). This does not reproduce any particular reference
// bitstream; only the lookup shape is specified.
func newLinearBook(widen int) Codebook {
	var cb Codebook

	// Run-length book: one entry per power-of-two run length plus a
	// run-of-1 fallback, largest first for greedy covering.
	runLengths := []int{64, 32, 16, 8, 4, 2, 1}
	cb.Runs = make([]RunEntry, 0, len(runLengths))
	for i, rl := range runLengths {
		size := 3 + i + widen
		cb.Runs = append(cb.Runs, RunEntry{
			RunLength: rl,
			Code:      Code{Bits: uint32(0x10 + i), Size: size},
		})
	}

	// Value book: magnitude-ordered code length, direct-indexed by
	// v+ValueMin offset so lookup is O(1).
	for v := ValueMin; v <= ValueMax; v++ {
		mag := v
		if mag < 0 {
			mag = -mag
		}
		size := 2 + bitLen(mag) + widen
		cb.Values[v-ValueMin] = Code{Bits: uint32(v) & ((1 << uint(size)) - 1), Size: size}
	}

	cb.BandEnd = Code{Bits: 0x3F, Size: 6 + widen}
	return cb
}

func bitLen(x int) int {
	n := 0
	for x > 0 {
		x >>= 1
		n++
	}
	return n
}
