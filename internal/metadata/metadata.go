// Package metadata implements the TLV metadata block described in
// spec §3/§4.8: a variable-size byte buffer of 4-byte-FOURCC,
// 1-byte-type, 3-byte-size entries, padded to 4-byte boundaries, with
// in-place replacement, free-space reuse, and an appendable/unique
// tag distinction.
//
// The TLV shape (FOURCC type code + length-prefixed payload) is
// grounded on mrjoshuak/go-jpeg2000's internal/box.Box — the teacher
// itself has no box/TLV reader, so this enriches from elsewhere in
// the retrieval pack as the instructions allow. What differs from
// box.Box: a 1-byte type tag plus 3-byte size packed into a single
// big-endian uint32 instead of box's 4-byte length, no extended
// 64-bit length (this format's blocks are capped at 65500 words), and
// free-space-TLV-aware insertion instead of box's flat append-only
// sequence.
package metadata

import (
	"github.com/pkg/errors"
)

// MaxBlockSize is the largest a metadata block may grow to (§4.8:
// "Maximum block size 65500×4 bytes").
const MaxBlockSize = 65500 * 4

// FreespaceTag is the FOURCC reserved for the free-space placeholder.
var FreespaceTag = [4]byte{'F', 'R', 'E', 'E'}

// headerLen is the TLV header size: 4-byte tag + 1-byte type + 3-byte
// size.
const headerLen = 8 // tag(4) + type(1) + size(3), padded to a 4-byte boundary itself

// Entry is one decoded TLV record.
type Entry struct {
	Tag  [4]byte
	Type byte
	Data []byte
}

func (e Entry) paddedSize() int {
	return headerLen + pad4(len(e.Data))
}

func pad4(n int) int { return (n + 3) &^ 3 }

// isAppendable reports whether duplicates of tag are allowed (§4.8:
// "Tags whose ASCII first byte is lowercase ('a'-'z') ... are
// appendable; all other tags are unique").
func isAppendable(tag [4]byte) bool {
	if tag[0] >= 'a' && tag[0] <= 'z' {
		return true
	}
	switch tag {
	case FreespaceTag, registryTag, nameTag, valueTag:
		return true
	}
	return false
}

var (
	registryTag = [4]byte{'R', 'E', 'G', 'S'} // REGISTRY_*
	nameTag     = [4]byte{'N', 'A', 'M', 'E'}
	valueTag    = [4]byte{'V', 'A', 'L', 'U'}
)

// ErrBlockFull is returned when an Add would exceed MaxBlockSize.
var ErrBlockFull = errors.New("metadata: block would exceed MaxBlockSize")

// Block is an ordered sequence of TLV entries, optionally including
// a free-space reservation entry (created first by NewBlock).
type Block struct {
	entries []Entry
}

// NewBlock returns an empty block with a reserved free-space TLV of
// freespaceSize bytes (§4.7 reserves a 512-byte free-space TLV by
// default for the sample layout).
func NewBlock(freespaceSize int) *Block {
	b := &Block{}
	if freespaceSize > 0 {
		b.entries = append(b.entries, Entry{Tag: FreespaceTag, Type: 'X', Data: make([]byte, freespaceSize)})
	}
	return b
}

func (b *Block) size() int {
	n := 0
	for _, e := range b.entries {
		n += e.paddedSize()
	}
	return n
}

func (b *Block) find(tag [4]byte) int {
	for i, e := range b.entries {
		if e.Tag == tag {
			return i
		}
	}
	return -1
}

func (b *Block) freespaceIndex() int {
	return b.find(FreespaceTag)
}

// Add installs (tag, typ, data). Appendable tags always add a new
// entry. Unique tags replace any existing entry of the same tag: in
// place (same size), or by removing the old entry and appending the
// new one (different size) — consuming free space first when
// available, per §4.8's replace/free-space invariants. Returns false
// (never an error) when the resulting block would exceed
// MaxBlockSize, matching the source contract ("add fails (returns
// false) if growth would exceed").
func (b *Block) Add(tag [4]byte, typ byte, data []byte) bool {
	newEntry := Entry{Tag: tag, Type: typ, Data: append([]byte(nil), data...)}

	if isAppendable(tag) && tag != FreespaceTag {
		return b.appendConsumingFreespace(newEntry)
	}

	if tag == FreespaceTag {
		idx := b.freespaceIndex()
		if idx >= 0 {
			b.entries[idx] = newEntry
			return true
		}
		return b.appendConsumingFreespace(newEntry)
	}

	idx := b.find(tag)
	if idx < 0 {
		return b.appendConsumingFreespace(newEntry)
	}

	old := b.entries[idx]
	if len(old.Data) == len(data) {
		// In-place replace: block size unchanged (§8 property 7).
		b.entries[idx] = newEntry
		return true
	}

	// Size change: remove the old entry (later bytes shift down, a
	// property of working on the entry slice rather than raw bytes)
	// and append the new one.
	b.entries = append(b.entries[:idx], b.entries[idx+1:]...)
	return b.appendConsumingFreespace(newEntry)
}

// appendConsumingFreespace appends entry, first shrinking (or fully
// consuming) the free-space TLV to absorb the new entry's footprint
// when one exists and is large enough.
func (b *Block) appendConsumingFreespace(entry Entry) bool {
	need := entry.paddedSize()
	idx := b.freespaceIndex()
	if idx >= 0 {
		fs := &b.entries[idx]
		available := len(fs.Data)
		if available >= need {
			remainder := available - need
			if remainder <= 16 {
				// Remainder too small to be useful: consume it whole.
				b.entries = append(b.entries[:idx], b.entries[idx+1:]...)
			} else {
				fs.Data = make([]byte, remainder)
			}
			if b.size()+need > MaxBlockSize {
				return false
			}
			b.entries = append(b.entries, entry)
			return true
		}
	}

	if b.size()+need > MaxBlockSize {
		return false
	}
	b.entries = append(b.entries, entry)
	return true
}

// Free removes the entry for tag, returning false if none existed.
func (b *Block) Free(tag [4]byte) bool {
	idx := b.find(tag)
	if idx < 0 {
		return false
	}
	b.entries = append(b.entries[:idx], b.entries[idx+1:]...)
	return true
}

// Get returns the current entry for tag (the first match for
// appendable tags), and whether it was found.
func (b *Block) Get(tag [4]byte) (Entry, bool) {
	idx := b.find(tag)
	if idx < 0 {
		return Entry{}, false
	}
	return b.entries[idx], true
}

// Dump returns all entries in storage order, including the free-space
// placeholder if still present.
func (b *Block) Dump() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Serialize encodes the block as a flat TLV byte stream: 4-byte tag,
// 1-byte type, 3-byte big-endian size, payload padded to a 4-byte
// boundary.
func (b *Block) Serialize() []byte {
	out := make([]byte, 0, b.size())
	for _, e := range b.entries {
		var hdr [4]byte
		copy(hdr[:], e.Tag[:])
		out = append(out, hdr[:]...)
		sz := len(e.Data)
		out = append(out, e.Type, byte(sz>>16), byte(sz>>8), byte(sz))
		out = append(out, e.Data...)
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
	}
	return out
}

// ParseTLVStream decodes a flat TLV byte stream (as produced by
// Serialize, or read from an override file) into entries. Used by
// the override-file poller. The assembler writes metadata blocks as
// serialized and does not filter out hidden entries.
func ParseTLVStream(data []byte) ([]Entry, error) {
	var entries []Entry
	off := 0
	for off < len(data) {
		if off+headerLen > len(data) {
			return nil, errors.Errorf("metadata: truncated TLV header at offset %d", off)
		}
		var tag [4]byte
		copy(tag[:], data[off:off+4])
		typ := data[off+4]
		size := int(data[off+5])<<16 | int(data[off+6])<<8 | int(data[off+7])
		off += headerLen
		if off+size > len(data) {
			return nil, errors.Errorf("metadata: TLV payload overruns buffer at offset %d", off)
		}
		payload := data[off : off+size]
		entries = append(entries, Entry{Tag: tag, Type: typ, Data: append([]byte(nil), payload...)})
		off += pad4(size)
	}
	return entries, nil
}
