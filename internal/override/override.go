// Package override implements the runtime override-file side channel
// of spec §6: a poller that re-reads two small TLV files at up to 5Hz
// and stages recognized tags in a Pending value. Staged values are
// only exposed through Pending(); nothing in this package changes
// encoder settings from them.
package override

import (
	"os"
	"time"

	"github.com/gopro/cfhd-encoder/internal/metadata"
)

// maxOverrideSize bounds how much of an override file the poller will
// read, guarding against a misbehaving external writer.
const maxOverrideSize = 64 * 1024

// pollInterval is the 5Hz ceiling from §6 ("polled ≤5× per second").
const pollInterval = 200 * time.Millisecond

// Recognized tags, per §6 ("color-space, bayer-format, curve preset,
// presentation dimensions, stereo-channel configuration").
var (
	TagColorSpace       = [4]byte{'C', 'S', 'P', 'C'}
	TagBayerFormat      = [4]byte{'B', 'A', 'Y', 'R'}
	TagCurvePreset      = [4]byte{'C', 'U', 'R', 'V'}
	TagPresentationDims = [4]byte{'P', 'D', 'I', 'M'}
	TagStereoChannels   = [4]byte{'S', 'T', 'R', 'O'}
)

// Pending holds the most recently observed values for every
// recognized tag; fields are left zero-valued when never overridden.
type Pending struct {
	ColorSpace       []byte
	BayerFormat      []byte
	CurvePreset      []byte
	PresentationDims []byte
	StereoChannels   []byte
}

func (p *Pending) apply(e metadata.Entry) {
	switch e.Tag {
	case TagColorSpace:
		p.ColorSpace = e.Data
	case TagBayerFormat:
		p.BayerFormat = e.Data
	case TagCurvePreset:
		p.CurvePreset = e.Data
	case TagPresentationDims:
		p.PresentationDims = e.Data
	case TagStereoChannels:
		p.StereoChannels = e.Data
	}
}

// Poller owns the two override-file paths and the last-polled state.
// It never mutates encoder fields directly: callers read Pending()
// when they want the staged values (cfhd.Encoder exposes them via
// PendingOverrides and does not apply them to its configuration).
type Poller struct {
	defaultsPath string
	overridePath string
	last         time.Time
	pending      Pending
}

// NewPoller returns a poller for the two override files named in §6:
// "{LUTs}/{UserDB}/defaults.colr" and "{Override}/override.colr".
// Callers supply the resolved absolute paths.
func NewPoller(defaultsPath, overridePath string) *Poller {
	return &Poller{defaultsPath: defaultsPath, overridePath: overridePath}
}

// Poll re-reads both files if at least pollInterval has elapsed since
// the last poll and at least one file exists, merging their TLV
// entries into Pending in path order (overridePath wins ties).
// Missing files are not an error. Poll is idempotent between
// intervals: calling it more often than 5Hz is safe but a no-op.
func (p *Poller) Poll(now time.Time) error {
	if !p.last.IsZero() && now.Sub(p.last) < pollInterval {
		return nil
	}
	p.last = now

	for _, path := range []string{p.defaultsPath, p.overridePath} {
		if path == "" {
			continue
		}
		data, err := readCapped(path, maxOverrideSize)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		entries, err := metadata.ParseTLVStream(data)
		if err != nil {
			continue // a malformed override file is ignored, not fatal
		}
		for _, e := range entries {
			p.pending.apply(e)
		}
	}
	return nil
}

// Pending returns the most recently observed override values.
func (p *Poller) Pending() Pending { return p.pending }

func readCapped(path string, limit int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, limit)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, err
	}
	return buf[:n], nil
}
