package cfhd

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gopro/cfhd-encoder/internal/format"
	"github.com/gopro/cfhd-encoder/internal/override"
)

func yuyvFrame(w, h int, y, u, v byte) []byte {
	buf := make([]byte, w*h*2)
	for row := 0; row < h; row++ {
		for x := 0; x < w/2; x++ {
			i := row*w*2 + x*4
			buf[i] = y
			buf[i+1] = u
			buf[i+2] = y
			buf[i+3] = v
		}
	}
	return buf
}

func baseOptions(gop int) Options {
	return Options{
		GOPLength:     gop,
		NumSpatial:    2,
		EncodedWidth:  16,
		EncodedHeight: 8,
		InputFormat:   format.YUYV,
		Precision:     8,
		FixedQuality:  1,
	}
}

// TestEncodeFrameIntraConstantLuma covers scenario S1: a tiny intra
// constant-luma frame round-trips through the public Encoder.
func TestEncodeFrameIntraConstantLuma(t *testing.T) {
	enc, err := NewEncoder(baseOptions(1))
	if err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, 1<<16)
	n, err := enc.EncodeFrame(context.Background(), dst, yuyvFrame(16, 8, 100, 128, 128))
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected a non-empty sample")
	}
}

// TestEncodeFrameInterlacedGroup covers scenario S2: two frames
// accumulate then emit one sample under GOPLength==2.
func TestEncodeFrameInterlacedGroup(t *testing.T) {
	enc, err := NewEncoder(baseOptions(2))
	if err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, 1<<16)

	n, err := enc.EncodeFrame(context.Background(), dst, yuyvFrame(16, 8, 40, 128, 128))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("first field should accumulate, got n=%d", n)
	}

	n, err = enc.EncodeFrame(context.Background(), dst, yuyvFrame(16, 8, 60, 128, 128))
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("second field should emit a sample")
	}
}

// TestEncodeFrameUncompressedPassThrough covers scenario S3.
func TestEncodeFrameUncompressedPassThrough(t *testing.T) {
	opts := baseOptions(1)
	opts.Uncompressed = UncompressedStore
	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, 1<<20)
	n, err := enc.EncodeFrame(context.Background(), dst, yuyvFrame(16, 8, 5, 128, 128))
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected a non-empty uncompressed sample")
	}
}

// TestEncodeFrameMetadataReplace covers scenario S4: adding the same
// unique metadata tag twice must replace it rather than append.
func TestEncodeFrameMetadataReplace(t *testing.T) {
	enc, err := NewEncoder(baseOptions(1))
	if err != nil {
		t.Fatal(err)
	}
	tag := [4]byte{'C', 'L', 'I', 'P'}
	if !enc.AddMetadata(true, tag, 'L', []byte("first")) {
		t.Fatal("expected first AddMetadata to succeed")
	}
	if !enc.AddMetadata(true, tag, 'L', []byte("replacement")) {
		t.Fatal("expected replacement AddMetadata to succeed")
	}

	dst := make([]byte, 1<<16)
	if _, err := enc.EncodeFrame(context.Background(), dst, yuyvFrame(16, 8, 1, 128, 128)); err != nil {
		t.Fatal(err)
	}
}

// TestEncodeFrameOverflowSticks covers scenario S5.
func TestEncodeFrameOverflowSticks(t *testing.T) {
	enc, err := NewEncoder(baseOptions(1))
	if err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, 4)
	if _, err := enc.EncodeFrame(context.Background(), dst, yuyvFrame(16, 8, 1, 128, 128)); err == nil {
		t.Fatal("expected an overflow error for a tiny destination buffer")
	}
	if enc.LastError() == nil {
		t.Fatal("expected the overflow to stick until ResetGroup")
	}
	enc.ResetGroup()
	if enc.LastError() != nil {
		t.Fatal("ResetGroup should clear the sticky error")
	}
}

// TestEncodeFramePeakEscape covers scenario S6: a sharp-edged frame
// with peak encoding enabled must still produce a sample without error.
func TestEncodeFramePeakEscape(t *testing.T) {
	opts := baseOptions(1)
	opts.PeakEnabled = true
	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	w, h := 16, 8
	frame := make([]byte, w*h*2)
	for i := range frame {
		if i%8 < 4 {
			frame[i] = 0
		} else {
			frame[i] = 255
		}
	}
	dst := make([]byte, 1<<16)
	n, err := enc.EncodeFrame(context.Background(), dst, frame)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected a non-empty sample for a high-contrast frame")
	}
}

// TestPendingOverridesDefaultsToZeroValue confirms an Encoder with no
// override paths configured reports a zero-value Pending rather than
// panicking on a nil poller.
func TestPendingOverridesDefaultsToZeroValue(t *testing.T) {
	enc, err := NewEncoder(baseOptions(1))
	if err != nil {
		t.Fatal(err)
	}
	got := enc.PendingOverrides()
	want := override.Pending{}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("PendingOverrides() mismatch (-want +got):\n%s", diff)
	}
}

// TestNewEncoderRejectsMissingConverter covers the Validate contract
// for a non-YUYV input format with no Converter supplied.
func TestNewEncoderRejectsMissingConverter(t *testing.T) {
	opts := baseOptions(1)
	opts.InputFormat = format.NV12
	if _, err := NewEncoder(opts); err == nil {
		t.Fatal("expected an error for a non-YUYV format with no Converter")
	}
}
