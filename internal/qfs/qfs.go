// Package qfs implements the RefPack/QFS byte-stream codec used for
// entry content in DBPF packages.
//
// A compressed stream starts with a 9-byte header: the total compressed
// size (uint32, little-endian), the marker bytes 0x10 0xFB, and the
// uncompressed size (24-bit, big-endian). The body is a sequence of
// control codes mixing literal runs with back-references into the
// already-decoded output.
package qfs

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size of the compressed-stream header.
	HeaderSize = 9

	// MaxUncompressedSize is the largest input the 24-bit size field in
	// the header can record.
	MaxUncompressedSize = 1<<24 - 1

	// Back-reference limits imposed by the control-code encodings.
	maxMatchLength = 1028
	maxMatchOffset = 131072

	markerByte0 = 0x10
	markerByte1 = 0xFB
)

// ErrDecode is returned when a compressed stream cannot be decoded.
var ErrDecode = errors.New("qfs: invalid compressed stream")

// LooksCompressed reports whether b begins with a plausible compressed
// stream header.
func LooksCompressed(b []byte) bool {
	return len(b) >= HeaderSize && b[4] == markerByte0 && b[5] == markerByte1
}

// UncompressedSize reads the 24-bit big-endian uncompressed size from
// the stream header. The caller must ensure len(b) >= HeaderSize.
func UncompressedSize(b []byte) int {
	return int(b[6])<<16 | int(b[7])<<8 | int(b[8])
}

// CompressedSize reads the total compressed size recorded in the stream
// header. The caller must ensure len(b) >= HeaderSize.
func CompressedSize(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// match is a back-reference candidate found during compression.
type match struct {
	location int // position in src where the match starts
	length   int
	offset   int // distance back to the earlier occurrence
}

// Compress encodes src and returns the result, or ok=false when no
// encoding of at most maxOutput bytes exists. Callers pass
// len(src)-1 to reject any encoding that fails to shrink the input.
func Compress(src []byte, maxOutput int) ([]byte, bool) {
	if len(src) > MaxUncompressedSize || maxOutput <= HeaderSize {
		return nil, false
	}
	if maxOutput > MaxUncompressedSize {
		maxOutput = MaxUncompressedSize
	}

	dst := make([]byte, maxOutput)
	srcPos := 0
	dstPos := HeaderSize

	// emitLiterals copies literal runs of 4..112 bytes (multiples of 4)
	// until fewer than 4 remain; the remainder rides on the next control
	// code or the terminator. 112 is the ceiling of the 111ppppp family:
	// anything longer would collide with the terminator codes.
	emitLiterals := func(until int) bool {
		for {
			plain := until - srcPos
			if plain <= 3 {
				return true
			}
			plain -= plain % 4
			if plain > 112 {
				plain = 112
			}
			if dstPos+plain+1 > len(dst) {
				return false
			}
			// 111ppppp
			dst[dstPos] = byte(0xE0 + plain>>2 - 1)
			dstPos++
			copy(dst[dstPos:], src[srcPos:srcPos+plain])
			srcPos += plain
			dstPos += plain
		}
	}

	for _, m := range findMatches(src) {
		if !emitLiterals(m.location) {
			return nil, false
		}
		plain := m.location - srcPos
		length := m.length
		offset := m.offset - 1

		switch {
		// 0oocccpp oooooooo
		case length <= 10 && offset < 1024:
			if dstPos+plain+2 > len(dst) {
				return nil, false
			}
			dst[dstPos] = byte((offset>>3)&0x60 + (length-3)<<2 + plain)
			dst[dstPos+1] = byte(offset)
			dstPos += 2

		// 10cccccc ppoooooo oooooooo
		case length <= 67 && offset < 16384:
			if dstPos+plain+3 > len(dst) {
				return nil, false
			}
			dst[dstPos] = byte(0x80 + length - 4)
			dst[dstPos+1] = byte(plain<<6 + offset>>8)
			dst[dstPos+2] = byte(offset)
			dstPos += 3

		// 110occpp oooooooo oooooooo cccccccc
		default:
			if dstPos+plain+4 > len(dst) {
				return nil, false
			}
			dst[dstPos] = byte(0xC0 + (offset>>12)&0x10 + ((length-5)>>6)&0x0C + plain)
			dst[dstPos+1] = byte(offset >> 8)
			dst[dstPos+2] = byte(offset)
			dst[dstPos+3] = byte(length - 5)
			dstPos += 4
		}

		copy(dst[dstPos:], src[srcPos:srcPos+plain])
		srcPos += plain
		dstPos += plain
		srcPos += length
	}

	if !emitLiterals(len(src)) {
		return nil, false
	}
	if plain := len(src) - srcPos; plain > 0 {
		if dstPos+plain+1 > len(dst) {
			return nil, false
		}
		// 111111pp terminator carrying the last 1..3 bytes
		dst[dstPos] = byte(0xFC + plain)
		dstPos++
		copy(dst[dstPos:], src[srcPos:srcPos+plain])
		dstPos += plain
	}

	binary.LittleEndian.PutUint32(dst, uint32(dstPos))
	dst[4] = markerByte0
	dst[5] = markerByte1
	dst[6] = byte(len(src) >> 16)
	dst[7] = byte(len(src) >> 8)
	dst[8] = byte(len(src))

	return dst[:dstPos], true
}

// findMatches scans src for back-references worth encoding: each control
// code family pays 2-4 bytes, so short matches are only kept at short
// offsets. Returned matches are ordered by location and do not overlap.
func findMatches(src []byte) []match {
	if len(src) < 3 {
		return nil
	}

	// Positions of every 3-byte pattern, in scan order.
	positions := make(map[[3]byte][]int, len(src))
	for i := 0; i <= len(src)-3; i++ {
		p := [3]byte(src[i : i+3])
		positions[p] = append(positions[p], i)
	}

	var matches []match
	for i := 1; i <= len(src)-3; i++ {
		candidates := positions[[3]byte(src[i:i+3])]
		if len(candidates) < 2 {
			continue
		}

		// Skip candidates beyond the back-reference window.
		start := 0
		if minPos := i - maxMatchOffset; minPos > 0 && candidates[0] < minPos {
			lo, hi := 0, len(candidates)-1
			for lo < hi {
				mid := (lo + hi) / 2
				if candidates[mid] >= minPos {
					hi = mid
				} else {
					lo = mid + 1
				}
			}
			start = hi
		}

		var best match
		found := false
		for _, j := range candidates[start:] {
			if j >= i {
				break
			}
			m := match{location: i, length: 3, offset: i - j}
			for k := 3; i+k < len(src) && m.length < maxMatchLength; k++ {
				if src[i+k] != src[j+k] {
					break
				}
				m.length++
			}
			if m.length >= best.length && encodable(m) {
				best = m
				found = true
				if best.length == maxMatchLength {
					break
				}
			}
			if i+m.length == len(src) {
				break
			}
		}
		if found {
			matches = append(matches, best)
			i += best.length - 1
		}
	}
	return matches
}

// encodable reports whether a match is profitable under the control-code
// cost model.
func encodable(m match) bool {
	switch {
	case m.offset <= 1024:
		return true
	case m.offset <= 16384:
		return m.length >= 4
	default:
		return m.offset <= maxMatchOffset && m.length >= 5
	}
}

// Decompress decodes src into exactly dstSize bytes. The caller reads
// dstSize from the stream header via UncompressedSize before calling.
// Any structural violation, out-of-window reference, or size mismatch
// returns ErrDecode.
func Decompress(src []byte, dstSize int) ([]byte, error) {
	if len(src) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrDecode, len(src))
	}
	if dstSize < 0 {
		return nil, fmt.Errorf("%w: negative output size", ErrDecode)
	}

	dst := make([]byte, dstSize)
	srcPos := HeaderSize
	dstPos := 0

	for srcPos < len(src) {
		b0 := int(src[srcPos])
		srcPos++

		var plain, length, offset int
		switch {
		case b0 < 0x80:
			if srcPos+1 > len(src) {
				return nil, fmt.Errorf("%w: truncated control code", ErrDecode)
			}
			b1 := int(src[srcPos])
			srcPos++
			plain = b0 & 0x03
			length = (b0&0x1C)>>2 + 3
			offset = (b0&0x60)<<3 + b1 + 1

		case b0 < 0xC0:
			if srcPos+2 > len(src) {
				return nil, fmt.Errorf("%w: truncated control code", ErrDecode)
			}
			b1 := int(src[srcPos])
			b2 := int(src[srcPos+1])
			srcPos += 2
			plain = (b1 & 0xC0) >> 6
			length = b0&0x3F + 4
			offset = (b1&0x3F)<<8 + b2 + 1

		case b0 < 0xE0:
			if srcPos+3 > len(src) {
				return nil, fmt.Errorf("%w: truncated control code", ErrDecode)
			}
			b1 := int(src[srcPos])
			b2 := int(src[srcPos+1])
			b3 := int(src[srcPos+2])
			srcPos += 3
			plain = b0 & 0x03
			length = (b0&0x0C)<<6 + b3 + 5
			offset = (b0&0x10)<<12 + b1<<8 + b2 + 1

		case b0 < 0xFC:
			plain = (b0&0x1F)<<2 + 4

		default:
			plain = b0 - 0xFC
		}

		if srcPos+plain > len(src) || dstPos+plain+length > len(dst) {
			return nil, fmt.Errorf("%w: control code exceeds stream bounds", ErrDecode)
		}
		copy(dst[dstPos:], src[srcPos:srcPos+plain])
		srcPos += plain
		dstPos += plain

		if offset > dstPos {
			return nil, fmt.Errorf("%w: back-reference before start of output", ErrDecode)
		}
		// Byte-at-a-time on purpose: the source and destination ranges
		// overlap when offset < length.
		for i := 0; i < length; i++ {
			dst[dstPos+i] = dst[dstPos-offset+i]
		}
		dstPos += length
	}

	if dstPos != len(dst) {
		return nil, fmt.Errorf("%w: decoded %d bytes, header declares %d", ErrDecode, dstPos, len(dst))
	}
	return dst, nil
}
