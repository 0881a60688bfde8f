package format

import "encoding/binary"

// Buffer is a little-endian decode cursor over a byte slice. Callers
// bounds-check region sizes before decoding; Len reports what remains.
type Buffer struct {
	buf []byte
	pos int
}

// NewBuffer returns a decode cursor positioned at the start of b.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{buf: b}
}

// Uint32 decodes the next little-endian uint32 and advances the cursor.
func (b *Buffer) Uint32() uint32 {
	v := binary.LittleEndian.Uint32(b.buf[b.pos:])
	b.pos += 4
	return v
}

// Bytes returns the next n bytes and advances the cursor. The returned
// slice aliases the underlying buffer.
func (b *Buffer) Bytes(n int) []byte {
	v := b.buf[b.pos : b.pos+n]
	b.pos += n
	return v
}

// Len returns the number of bytes remaining after the cursor.
func (b *Buffer) Len() int {
	return len(b.buf) - b.pos
}

// AppendUint32 appends v to dst in little-endian order.
func AppendUint32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}
