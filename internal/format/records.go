package format

import (
	"errors"
	"fmt"
)

// ErrDirectory is returned when the directory of compressed entries
// cannot be decoded.
var ErrDirectory = errors.New("format: invalid directory of compressed entries")

// IndexRecord is the tagged result of decoding one index record: either
// a regular entry or the package's directory of compressed entries.
// Callers dispatch on Directory instead of comparing reserved keys.
type IndexRecord struct {
	Entry     Entry
	Directory bool
}

// DecodeIndexRecord decodes one index record at the cursor. minor is the
// header's index minor version, which determines the record width.
func DecodeIndexRecord(b *Buffer, minor uint32) IndexRecord {
	var e Entry
	e.Type = b.Uint32()
	e.Group = b.Uint32()
	e.Instance = b.Uint32()
	if minor == 2 {
		e.Resource = b.Uint32()
	}
	e.Location = b.Uint32()
	e.Size = b.Uint32()
	return IndexRecord{Entry: e, Directory: e.Type == directoryType}
}

// AppendIndexRecord appends the index record for e to dst.
func AppendIndexRecord(dst []byte, e *Entry, minor uint32) []byte {
	dst = AppendUint32(dst, e.Type)
	dst = AppendUint32(dst, e.Group)
	dst = AppendUint32(dst, e.Instance)
	if minor == 2 {
		dst = AppendUint32(dst, e.Resource)
	}
	dst = AppendUint32(dst, e.Location)
	return AppendUint32(dst, e.Size)
}

// DecodeHole decodes one hole index record at the cursor.
func DecodeHole(b *Buffer) Hole {
	return Hole{Location: b.Uint32(), Size: b.Uint32()}
}

// AppendHole appends the hole index record for h to dst.
func AppendHole(dst []byte, h Hole) []byte {
	dst = AppendUint32(dst, h.Location)
	return AppendUint32(dst, h.Size)
}

// DecodeDirectory decodes the serialized directory of compressed entries
// into a map from entry key to uncompressed size. The content length
// must be a whole number of records.
func DecodeDirectory(content []byte, minor uint32) (map[Key]uint32, error) {
	recordSize := 16
	if minor == 2 {
		recordSize = 20
	}
	if len(content)%recordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of the %d-byte record", ErrDirectory, len(content), recordSize)
	}

	dir := make(map[Key]uint32, len(content)/recordSize)
	b := NewBuffer(content)
	for b.Len() > 0 {
		var k Key
		k.Type = b.Uint32()
		k.Group = b.Uint32()
		k.Instance = b.Uint32()
		if minor == 2 {
			k.Resource = b.Uint32()
		}
		dir[k] = b.Uint32()
	}
	return dir, nil
}

// AppendDirectoryRecord appends one directory record to dst.
func AppendDirectoryRecord(dst []byte, k Key, uncompressedSize uint32, minor uint32) []byte {
	dst = AppendUint32(dst, k.Type)
	dst = AppendUint32(dst, k.Group)
	dst = AppendUint32(dst, k.Instance)
	if minor == 2 {
		dst = AppendUint32(dst, k.Resource)
	}
	return AppendUint32(dst, uncompressedSize)
}
