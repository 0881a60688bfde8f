// Package format defines the on-disk DBPF package layout: the 96-byte
// header, index records, hole records, and the directory of compressed
// entries (CLST). All multi-byte fields are little-endian.
//
// The reserved directory key never leaves this package; the index record
// decoder tags directory records explicitly so callers dispatch on the
// tag rather than on magic constants.
package format

// Layout constants.
const (
	// HeaderSize is the fixed size of the package header, including the
	// 32-byte opaque remainder.
	HeaderSize = 96

	// Magic is the little-endian encoding of the ASCII tag "DBPF".
	Magic = 0x46504244

	// Signature is the little-endian encoding of the ASCII tag "BRG5",
	// stashed in a hole to mark packages written by this tool.
	Signature = 0x35475242

	// HoleRecordSize is the size of one hole index record.
	HoleRecordSize = 8

	// SignatureHoleSize is the size of the hole payload carrying the
	// tool signature and the file size at write time.
	SignatureHoleSize = 8

	// RegionOffset and RegionSize delimit the header bytes holding the
	// index and hole counts, locations, and sizes. The writer patches
	// this region last; the validator allows only this region to differ
	// between the old and new headers.
	RegionOffset = 36
	RegionSize   = 24
)

// directoryType is the reserved entry type identifying the directory of
// compressed entries in the index.
const directoryType = 0xE86B1EEF

// DirectoryKey is the reserved key under which the serialized directory
// of compressed entries is stored in the index.
var DirectoryKey = Key{Type: directoryType, Group: 0xE86B1EEF, Instance: 0x286B1F03}

// Key identifies an entry within a package. Resource is only meaningful
// for index minor version 2 and is zero otherwise. Keys are not unique
// within a package.
type Key struct {
	Type     uint32
	Group    uint32
	Instance uint32
	Resource uint32
}

// Entry is one logical file inside a package.
type Entry struct {
	Key

	// Location and Size address the entry's bytes in the backing file.
	Location uint32
	Size     uint32

	// UncompressedSize is only meaningful when Compressed is set.
	UncompressedSize uint32

	// Compressed reports whether the entry's key appears in the
	// directory of compressed entries.
	Compressed bool

	// Repeated is set when another entry in the same package shares this
	// entry's key. Repeated entries are never recompressed: the copies
	// cannot be told apart by key, and swapping their offsets would
	// corrupt content.
	Repeated bool
}

// Hole is a byte region declared unused by the format.
type Hole struct {
	Location uint32
	Size     uint32
}

// Header is the decoded package header.
type Header struct {
	MajorVersion        uint32
	MinorVersion        uint32
	MajorUserVersion    uint32
	MinorUserVersion    uint32
	Flags               uint32
	CreatedDate         uint32
	ModifiedDate        uint32
	IndexMajorVersion   uint32
	IndexEntryCount     uint32
	IndexLocation       uint32
	IndexSize           uint32
	HoleIndexEntryCount uint32
	HoleIndexLocation   uint32
	HoleIndexSize       uint32
	IndexMinorVersion   uint32

	// Remainder preserves the trailing 32 header bytes verbatim.
	Remainder [32]byte
}

// MaxIndexMinorVersion is the highest index minor version this package
// understands. Version 2 widens index and directory records with a
// resource field.
const MaxIndexMinorVersion = 2

// ValidVersion reports whether the header's version fields match a known
// package layout (major 1, minor 0-2, index major 7). Other values mean
// the file belongs to a different game.
func (h *Header) ValidVersion() bool {
	if h.MajorVersion != 1 || h.IndexMajorVersion != 7 {
		return false
	}
	return h.MinorVersion <= 2
}

// EntryRecordSize returns the width of one index record for the header's
// index minor version.
func (h *Header) EntryRecordSize() int {
	if h.IndexMinorVersion == 2 {
		return 24
	}
	return 20
}

// DirectoryRecordSize returns the width of one directory (CLST) record
// for the header's index minor version.
func (h *Header) DirectoryRecordSize() int {
	if h.IndexMinorVersion == 2 {
		return 20
	}
	return 16
}
