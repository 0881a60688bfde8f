package dbpf

import (
	"errors"
	"io"
	"maps"
	"slices"

	"github.com/lingeringwillx/CrappySims2Compression/internal/format"
)

// Re-export types from internal/format for the public API.
type (
	// Key identifies an entry within a package (type, group,
	// instance[, resource]). Keys are not unique within a package.
	Key = format.Key

	// Entry is one logical file inside a package.
	Entry = format.Entry

	// Hole is a byte region declared unused by the format.
	Hole = format.Hole

	// Header is the decoded package header.
	Header = format.Header
)

// Sentinel errors.
var (
	// ErrFormat is returned when a file is not a recognized package:
	// bad magic, unknown versions, or structural bounds violations.
	// The file must be left untouched.
	ErrFormat = errors.New("dbpf: not a valid package")

	// ErrCodec is returned when compressed entry content cannot be
	// decoded.
	ErrCodec = errors.New("dbpf: codec failure")

	// ErrValidation is returned when a rewritten package fails the
	// equivalence checks against its original. The candidate output
	// must be discarded.
	ErrValidation = errors.New("dbpf: validation failed")
)

// Mode selects what the write pass does to each entry.
type Mode int

const (
	// ModeRecompress decompresses and recompresses each entry, keeping
	// the result only when it is strictly smaller than before.
	ModeRecompress Mode = iota

	// ModeDecompress expands every compressed entry.
	ModeDecompress
)

func (m Mode) String() string {
	switch m {
	case ModeRecompress:
		return "recompress"
	case ModeDecompress:
		return "decompress"
	default:
		return "unknown"
	}
}

// ByteSource provides random access to a package's bytes.
// [ProcessPackage] backs it with an open file; tests use in-memory
// sources.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// Package is the in-memory representation of a parsed package file.
//
// Entries preserves on-disk index order; the directory of compressed
// entries is diverted into CompressedEntries during parsing and never
// appears in Entries. Keys are immutable after parsing; only the
// compression-related entry fields are rewritten during a write pass.
type Package struct {
	// Unpacked reports a successful structural parse. A failed parse
	// returns a Package with Unpacked false and no other fields set.
	Unpacked bool

	// SignatureInPackage is set when the file carries this tool's
	// signature hole and has not changed since it was written.
	SignatureInPackage bool

	Header  Header
	Entries []Entry
	Holes   []Hole

	// CompressedEntries maps entry keys found in the directory of
	// compressed entries to their recorded uncompressed sizes.
	CompressedEntries map[Key]uint32
}

// Clone returns a deep copy of the package. The writer mutates entry
// fields in place, so callers needing the pre-write state copy first.
func (p *Package) Clone() *Package {
	c := *p
	c.Entries = slices.Clone(p.Entries)
	c.Holes = slices.Clone(p.Holes)
	if p.CompressedEntries != nil {
		c.CompressedEntries = maps.Clone(p.CompressedEntries)
	}
	return &c
}

// HasCompressedEntries reports whether any entry is flagged compressed.
func (p *Package) HasCompressedEntries() bool {
	for i := range p.Entries {
		if p.Entries[i].Compressed {
			return true
		}
	}
	return false
}
