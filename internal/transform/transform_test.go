package transform

import "testing"

func TestPrescaleTable8BitAlwaysZero(t *testing.T) {
	for level := 0; level < 4; level++ {
		for _, branch := range []bool{true, false} {
			if got := PrescaleTable(8, level, branch); got != 0 {
				t.Fatalf("8-bit level %d branch %v: got %d, want 0", level, branch, got)
			}
		}
	}
}

func TestPrescaleTable10BitOnlyTemporalLowBranch(t *testing.T) {
	if got := PrescaleTable(10, 1, true); got != 2 {
		t.Fatalf("10-bit temporal-low branch: got %d, want 2", got)
	}
	if got := PrescaleTable(10, 1, false); got != 0 {
		t.Fatalf("10-bit non-temporal branch: got %d, want 0", got)
	}
}

func TestPrescaleTable12BitInnerLevels(t *testing.T) {
	if got := PrescaleTable(12, 0, false); got != 0 {
		t.Fatalf("12-bit level-1: got %d, want 0", got)
	}
	if got := PrescaleTable(12, 1, false); got != 2 {
		t.Fatalf("12-bit inner level: got %d, want 2", got)
	}
}

func TestQuantMultiplier12BitHighBands(t *testing.T) {
	if got := QuantMultiplier(12, 11); got != 4 {
		t.Fatalf("band 11 at 12-bit: got %d, want 4", got)
	}
	if got := QuantMultiplier(12, 10); got != 1 {
		t.Fatalf("band 10 at 12-bit: got %d, want 1", got)
	}
	if got := QuantMultiplier(8, 11); got != 1 {
		t.Fatalf("8-bit never multiplies: got %d, want 1", got)
	}
}

func TestRoundUp8(t *testing.T) {
	cases := map[int]int{1: 8, 7: 8, 8: 8, 9: 16, 64: 64}
	for in, want := range cases {
		if got := RoundUp8(in); got != want {
			t.Fatalf("RoundUp8(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestBuildSpatialProducesRequestedLevels(t *testing.T) {
	width, height := 32, 16
	plane := make([]int32, width*height)
	for i := range plane {
		plane[i] = int32(i % 97)
	}
	tr := BuildSpatial(plane, width, height, width, 2, 8)
	if len(tr.Wavelets) != 3 { // level-1 plus 2 successive LL decompositions
		t.Fatalf("got %d wavelets, want 3", len(tr.Wavelets))
	}
	for i, w := range tr.Wavelets {
		if len(w.Bands) != 4 {
			t.Fatalf("wavelet %d: got %d bands, want 4", i, len(w.Bands))
		}
	}
	// Each level must be half the previous one's dimensions (§3 invariant).
	for i := 1; i < len(tr.Wavelets); i++ {
		prev, cur := tr.Wavelets[i-1], tr.Wavelets[i]
		if cur.Width*2 < prev.Width-1 || cur.Height*2 < prev.Height-1 {
			t.Fatalf("level %d dims %dx%d not half of level %d dims %dx%d", i, cur.Width, cur.Height, i-1, prev.Width, prev.Height)
		}
	}
}

func TestBuildFieldProducesTemporalCombine(t *testing.T) {
	fw, fh := 16, 8
	a := make([]int32, fw*fh)
	b := make([]int32, fw*fh)
	for i := range a {
		a[i] = int32(i)
		b[i] = int32(i * 2)
	}
	tr := BuildField(a, b, fw, fh, 2, 8, false)
	if len(tr.Wavelets) < 3 {
		t.Fatalf("got %d wavelets, want at least 3 (2 field + 1 combine)", len(tr.Wavelets))
	}
	if tr.Wavelets[0].Type != TypeHorizontalTemporal || tr.Wavelets[1].Type != TypeHorizontalTemporal {
		t.Fatal("first two wavelets must be tagged HorizontalTemporal")
	}
	if tr.Wavelets[2].Type != TypeTemporal {
		t.Fatal("third wavelet must be the temporal combine")
	}
	if len(tr.Wavelets[2].Bands) != 2 {
		t.Fatalf("temporal combine wavelet: got %d bands, want 2 (lowpass, highpass)", len(tr.Wavelets[2].Bands))
	}
}

func TestBuildFieldPlusAddsHighpassSpatialLevel(t *testing.T) {
	fw, fh := 16, 8
	a := make([]int32, fw*fh)
	b := make([]int32, fw*fh)
	trPlain := BuildField(a, b, fw, fh, 2, 8, false)
	trPlus := BuildField(a, b, fw, fh, 2, 8, true)
	if len(trPlus.Wavelets) != len(trPlain.Wavelets)+1 {
		t.Fatalf("plus variant should add exactly one wavelet: got %d vs %d", len(trPlus.Wavelets), len(trPlain.Wavelets))
	}
}
