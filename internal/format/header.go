package format

import (
	"errors"
	"fmt"
)

// ErrHeader is returned when a header block cannot be decoded.
var ErrHeader = errors.New("format: invalid header")

// DecodeHeader decodes a 96-byte header block. It verifies only the
// block length and the magic value; version and bounds checks belong to
// the parser, which knows the file extent.
func DecodeHeader(block []byte) (Header, error) {
	if len(block) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, want %d", ErrHeader, len(block), HeaderSize)
	}

	b := NewBuffer(block)
	if magic := b.Uint32(); magic != Magic {
		return Header{}, fmt.Errorf("%w: magic %#08x", ErrHeader, magic)
	}

	h := Header{
		MajorVersion:        b.Uint32(),
		MinorVersion:        b.Uint32(),
		MajorUserVersion:    b.Uint32(),
		MinorUserVersion:    b.Uint32(),
		Flags:               b.Uint32(),
		CreatedDate:         b.Uint32(),
		ModifiedDate:        b.Uint32(),
		IndexMajorVersion:   b.Uint32(),
		IndexEntryCount:     b.Uint32(),
		IndexLocation:       b.Uint32(),
		IndexSize:           b.Uint32(),
		HoleIndexEntryCount: b.Uint32(),
		HoleIndexLocation:   b.Uint32(),
		HoleIndexSize:       b.Uint32(),
		IndexMinorVersion:   b.Uint32(),
	}
	copy(h.Remainder[:], b.Bytes(32))
	return h, nil
}

// EncodeHeader serializes h into a 96-byte block. The index and hole
// region (RegionOffset..RegionOffset+RegionSize) is emitted as stored;
// writers patch it after the final layout is known.
func EncodeHeader(h *Header) []byte {
	block := make([]byte, 0, HeaderSize)
	block = AppendUint32(block, Magic)
	block = AppendUint32(block, h.MajorVersion)
	block = AppendUint32(block, h.MinorVersion)
	block = AppendUint32(block, h.MajorUserVersion)
	block = AppendUint32(block, h.MinorUserVersion)
	block = AppendUint32(block, h.Flags)
	block = AppendUint32(block, h.CreatedDate)
	block = AppendUint32(block, h.ModifiedDate)
	block = AppendUint32(block, h.IndexMajorVersion)
	block = AppendUint32(block, h.IndexEntryCount)
	block = AppendUint32(block, h.IndexLocation)
	block = AppendUint32(block, h.IndexSize)
	block = AppendUint32(block, h.HoleIndexEntryCount)
	block = AppendUint32(block, h.HoleIndexLocation)
	block = AppendUint32(block, h.HoleIndexSize)
	block = AppendUint32(block, h.IndexMinorVersion)
	return append(block, h.Remainder[:]...)
}

// EncodeHeaderRegion serializes the index and hole fields patched into
// the header at RegionOffset once the output layout is final.
func EncodeHeaderRegion(entryCount, indexLocation, indexSize, holeCount, holeLocation, holeSize uint32) []byte {
	region := make([]byte, 0, RegionSize)
	region = AppendUint32(region, entryCount)
	region = AppendUint32(region, indexLocation)
	region = AppendUint32(region, indexSize)
	region = AppendUint32(region, holeCount)
	region = AppendUint32(region, holeLocation)
	region = AppendUint32(region, holeSize)
	return region
}
