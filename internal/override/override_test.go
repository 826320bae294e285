package override

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopro/cfhd-encoder/internal/metadata"
)

func writeOverrideFile(t *testing.T, dir, name string, entries []metadata.Entry) string {
	t.Helper()
	b := metadata.NewBlock(0)
	for _, e := range entries {
		b.Add(e.Tag, e.Type, e.Data)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b.Serialize(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPollReadsRecognizedTags(t *testing.T) {
	dir := t.TempDir()
	path := writeOverrideFile(t, dir, "override.colr", []metadata.Entry{
		{Tag: TagColorSpace, Type: 'L', Data: []byte{1}},
		{Tag: TagCurvePreset, Type: 'L', Data: []byte{3}},
	})

	p := NewPoller("", path)
	if err := p.Poll(time.Now()); err != nil {
		t.Fatal(err)
	}
	pending := p.Pending()
	if len(pending.ColorSpace) != 1 || pending.ColorSpace[0] != 1 {
		t.Fatalf("got ColorSpace=%v", pending.ColorSpace)
	}
	if len(pending.CurvePreset) != 1 || pending.CurvePreset[0] != 3 {
		t.Fatalf("got CurvePreset=%v", pending.CurvePreset)
	}
}

func TestPollMissingFilesAreNotAnError(t *testing.T) {
	p := NewPoller(filepath.Join(t.TempDir(), "nope1"), filepath.Join(t.TempDir(), "nope2"))
	if err := p.Poll(time.Now()); err != nil {
		t.Fatalf("missing override files should not error: %v", err)
	}
}

func TestPollRespectsRateLimit(t *testing.T) {
	dir := t.TempDir()
	path := writeOverrideFile(t, dir, "override.colr", []metadata.Entry{
		{Tag: TagColorSpace, Type: 'L', Data: []byte{1}},
	})
	p := NewPoller("", path)
	base := time.Now()
	if err := p.Poll(base); err != nil {
		t.Fatal(err)
	}

	// Overwrite the file, then poll again well within the 5Hz window:
	// the new value must not be observed yet.
	writeOverrideFile(t, dir, "override.colr", []metadata.Entry{
		{Tag: TagColorSpace, Type: 'L', Data: []byte{9}},
	})
	if err := p.Poll(base.Add(50 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if p.Pending().ColorSpace[0] != 1 {
		t.Fatalf("poll fired before the rate-limit window elapsed")
	}

	if err := p.Poll(base.Add(250 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if p.Pending().ColorSpace[0] != 9 {
		t.Fatalf("poll should have refreshed after the rate-limit window")
	}
}
