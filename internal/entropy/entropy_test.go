package entropy

import (
	"testing"

	"github.com/gopro/cfhd-encoder/internal/bitstream"
	"github.com/gopro/cfhd-encoder/internal/codebook"
)

func TestEncodeBandEmitsBandEndCode(t *testing.T) {
	buf := make([]byte, 256)
	w := bitstream.NewWriter(buf)
	coeffs := []int32{0, 0, 5, 0, -3, 0, 0, 0}
	cb := codebook.Base()
	peaks := EncodeBand(w, coeffs, cb, 1, true)
	if len(peaks) != 0 {
		t.Fatalf("no coefficient exceeds PeakThreshold, got %d peaks", len(peaks))
	}
	out, err := w.Flush()
	if err != nil {
		t.Fatal(err)
	}
	// With the Base book this stream is 56 bits (runs 9+10+9+10, values
	// 6+5, band end 7), so the band-end code fills the low 7 bits of
	// byte 6.
	if len(out) < 7 || out[6]&0x7F != byte(cb.BandEnd.Bits) {
		t.Fatalf("band-end code not found at the end of the stream: % x", out)
	}
}

func TestEncodeBandAllZerosStillEndsCleanly(t *testing.T) {
	buf := make([]byte, 64)
	w := bitstream.NewWriter(buf)
	coeffs := make([]int32, 40)
	EncodeBand(w, coeffs, codebook.Base(), 1, false)
	if _, err := w.Flush(); err != nil {
		t.Fatal(err)
	}
}

func TestEncodeBandRecordsPeaks(t *testing.T) {
	buf := make([]byte, 256)
	w := bitstream.NewWriter(buf)
	quant := 8
	coeffs := []int32{0, int32(codebook.PeakThreshold + 500), 0}
	peaks := EncodeBand(w, coeffs, codebook.Peak(), quant, true)
	if len(peaks) != 1 {
		t.Fatalf("got %d peaks, want 1", len(peaks))
	}
	want := int32((codebook.PeakThreshold + 500) * quant)
	if peaks[0] != want {
		t.Fatalf("peak value = %d, want %d", peaks[0], want)
	}
}

func TestEncodeBandNegativePeak(t *testing.T) {
	buf := make([]byte, 256)
	w := bitstream.NewWriter(buf)
	quant := 2
	v := -(codebook.PeakThreshold + 800)
	peaks := EncodeBand(w, []int32{int32(v)}, codebook.Peak(), quant, true)
	if len(peaks) != 1 || peaks[0] != int32(v*quant) {
		t.Fatalf("got peaks=%v, want [%d]", peaks, v*quant)
	}
}

func TestEncodeBandTwoPassCallsMidpointOnce(t *testing.T) {
	buf := make([]byte, 512)
	w := bitstream.NewWriter(buf)
	coeffs := []int32{300, -600, 10, 0, 0, 5000}
	calls := 0
	EncodeBandTwoPass(w, coeffs, codebook.Base(), func() { calls++; w.PutTagValue(0x1001, 0) })
	if calls != 1 {
		t.Fatalf("writeMidpoint called %d times, want 1", calls)
	}
	if _, err := w.Flush(); err != nil {
		t.Fatal(err)
	}
}

func TestEncodeBandZeroRunCoversExactCount(t *testing.T) {
	// Property 5: for any run of N zeros, greedy run-book codes sum to N.
	cb := codebook.Base()
	for _, n := range []int{1, 2, 3, 7, 33, 64, 65, 100, 200} {
		remaining := n
		for remaining > 0 {
			e, ok := cb.Lookup(remaining)
			if !ok {
				t.Fatalf("no run entry covers remaining=%d (n=%d)", remaining, n)
			}
			remaining -= e.RunLength
		}
		if remaining != 0 {
			t.Fatalf("run of %d did not resolve to exactly 0, left %d", n, remaining)
		}
	}
}
