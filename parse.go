package dbpf

import (
	"errors"
	"fmt"
	"io"

	"github.com/lingeringwillx/CrappySims2Compression/internal/format"
)

// Parse reads a package from src and validates its structure.
//
// Every field of the returned Package is populated and bounds-checked
// before it is handed to the caller; a failed parse returns a Package
// with Unpacked false, no other fields set, and an error wrapping
// [ErrFormat] that names the violated invariant. Callers must leave the
// backing file untouched on error.
//
// In [ModeRecompress], entries sharing a key are marked Repeated so the
// write pass never recompresses them.
func Parse(src ByteSource, mode Mode) (*Package, error) {
	failed := &Package{}
	fileSize := src.Size()

	if fileSize < format.HeaderSize {
		return failed, fmt.Errorf("%w: header not found", ErrFormat)
	}

	block, err := readAt(src, 0, format.HeaderSize)
	if err != nil {
		return failed, err
	}
	header, err := format.DecodeHeader(block)
	if err != nil {
		return failed, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	if !header.ValidVersion() {
		return failed, fmt.Errorf("%w: version %d.%d with index major version %d belongs to another game",
			ErrFormat, header.MajorVersion, header.MinorVersion, header.IndexMajorVersion)
	}
	if header.IndexMinorVersion > format.MaxIndexMinorVersion {
		return failed, fmt.Errorf("%w: unrecognized index minor version %d", ErrFormat, header.IndexMinorVersion)
	}

	if !regionInBounds(header.IndexLocation, header.IndexSize, fileSize) {
		return failed, fmt.Errorf("%w: entry index out of bounds", ErrFormat)
	}
	if uint64(header.IndexEntryCount)*uint64(header.EntryRecordSize()) > uint64(header.IndexSize) {
		return failed, fmt.Errorf("%w: entry count exceeds index size", ErrFormat)
	}
	if !regionInBounds(header.HoleIndexLocation, header.HoleIndexSize, fileSize) {
		return failed, fmt.Errorf("%w: hole index out of bounds", ErrFormat)
	}
	if uint64(header.HoleIndexEntryCount)*format.HoleRecordSize != uint64(header.HoleIndexSize) {
		return failed, fmt.Errorf("%w: hole count does not match hole index size", ErrFormat)
	}

	holes, err := parseHoles(src, &header, fileSize)
	if err != nil {
		return failed, err
	}

	signed, err := checkSignature(src, holes, fileSize)
	if err != nil {
		return failed, err
	}

	entries, directoryContent, err := parseIndex(src, &header, fileSize)
	if err != nil {
		return failed, err
	}

	var directory map[Key]uint32
	if len(directoryContent) > 0 {
		directory, err = format.DecodeDirectory(directoryContent, header.IndexMinorVersion)
		if err != nil {
			return failed, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		for i := range entries {
			if size, ok := directory[entries[i].Key]; ok {
				entries[i].Compressed = true
				entries[i].UncompressedSize = size
			}
		}
	}

	if mode == ModeRecompress {
		markRepeated(entries)
	}

	return &Package{
		Unpacked:           true,
		SignatureInPackage: signed,
		Header:             header,
		Entries:            entries,
		Holes:              holes,
		CompressedEntries:  directory,
	}, nil
}

// parseHoles decodes the hole index. Region bounds were checked against
// the header; each hole's own extent is checked here.
func parseHoles(src ByteSource, header *Header, fileSize int64) ([]Hole, error) {
	if header.HoleIndexEntryCount == 0 {
		return nil, nil
	}

	region, err := readAt(src, int64(header.HoleIndexLocation), int(header.HoleIndexSize))
	if err != nil {
		return nil, err
	}

	b := format.NewBuffer(region)
	holes := make([]Hole, 0, header.HoleIndexEntryCount)
	for i := uint32(0); i < header.HoleIndexEntryCount; i++ {
		hole := format.DecodeHole(b)
		if !regionInBounds(hole.Location, hole.Size, fileSize) {
			return nil, fmt.Errorf("%w: hole out of bounds", ErrFormat)
		}
		holes = append(holes, hole)
	}
	return holes, nil
}

// checkSignature looks for this tool's signature hole: a single 8-byte
// hole holding {signature, file size at write time}. A match certifies
// the file was produced by this tool and has not changed since, letting
// the caller skip it entirely.
func checkSignature(src ByteSource, holes []Hole, fileSize int64) (bool, error) {
	if len(holes) != 1 || holes[0].Size != format.SignatureHoleSize {
		return false, nil
	}

	payload, err := readAt(src, int64(holes[0].Location), format.SignatureHoleSize)
	if err != nil {
		return false, err
	}
	b := format.NewBuffer(payload)
	signature := b.Uint32()
	sizeAtWrite := b.Uint32()
	return signature == format.Signature && int64(sizeAtWrite) == fileSize, nil
}

// parseIndex decodes the entry index, diverting the directory of
// compressed entries into a raw byte buffer instead of the entry list.
func parseIndex(src ByteSource, header *Header, fileSize int64) ([]Entry, []byte, error) {
	region, err := readAt(src, int64(header.IndexLocation), int(header.IndexSize))
	if err != nil {
		return nil, nil, err
	}

	b := format.NewBuffer(region)
	entries := make([]Entry, 0, header.IndexEntryCount)
	var directoryContent []byte

	for i := uint32(0); i < header.IndexEntryCount; i++ {
		record := format.DecodeIndexRecord(b, header.IndexMinorVersion)
		if !regionInBounds(record.Entry.Location, record.Entry.Size, fileSize) {
			return nil, nil, fmt.Errorf("%w: entry location out of bounds", ErrFormat)
		}
		if record.Directory {
			directoryContent, err = readAt(src, int64(record.Entry.Location), int(record.Entry.Size))
			if err != nil {
				return nil, nil, err
			}
			continue
		}
		entries = append(entries, record.Entry)
	}
	return entries, directoryContent, nil
}

// markRepeated flags every member of a duplicate-key group.
func markRepeated(entries []Entry) {
	seen := make(map[Key]int, len(entries))
	for i := range entries {
		if j, ok := seen[entries[i].Key]; ok {
			entries[i].Repeated = true
			entries[j].Repeated = true
		}
		seen[entries[i].Key] = i
	}
}

// regionInBounds reports whether [location, location+size) lies within
// the file extent. The sum is computed in uint64 so it cannot wrap.
func regionInBounds(location, size uint32, fileSize int64) bool {
	return uint64(location)+uint64(size) <= uint64(fileSize)
}

// readAt reads exactly size bytes at off from src.
func readAt(src ByteSource, off int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := src.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dbpf: read at %d: %w", off, err)
	}
	if n != size {
		return nil, fmt.Errorf("dbpf: short read at %d (%d of %d bytes)", off, n, size)
	}
	return buf, nil
}
