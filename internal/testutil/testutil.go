// Package testutil provides helpers for building synthetic package
// images and in-memory byte sources and sinks for tests.
package testutil

import (
	"io"
	"testing"

	"github.com/lingeringwillx/CrappySims2Compression/internal/format"
	"github.com/lingeringwillx/CrappySims2Compression/internal/qfs"
)

// TestEntry describes one entry to place in a built package image.
type TestEntry struct {
	Key     format.Key
	Content []byte

	// Compressed lists the entry in the directory of compressed
	// entries; Content must then be a valid compressed stream.
	Compressed bool
}

// BuildPackage assembles a structurally valid package image: header,
// entry contents in order, an optional directory of compressed entries,
// and the index. minor selects the index minor version (record width).
func BuildPackage(t *testing.T, minor uint32, entries []TestEntry) []byte {
	t.Helper()

	header := format.Header{
		MajorVersion:      1,
		MinorVersion:      1,
		IndexMajorVersion: 7,
		IndexMinorVersion: minor,
	}

	image := format.EncodeHeader(&header)

	index := make([]format.Entry, 0, len(entries)+1)
	var directory []byte
	for _, e := range entries {
		entry := format.Entry{
			Key:      e.Key,
			Location: uint32(len(image)),
			Size:     uint32(len(e.Content)),
		}
		image = append(image, e.Content...)
		index = append(index, entry)

		if e.Compressed {
			if len(e.Content) < qfs.HeaderSize {
				t.Fatalf("compressed test entry %v has no stream header", e.Key)
			}
			directory = format.AppendDirectoryRecord(directory, e.Key, uint32(qfs.UncompressedSize(e.Content)), minor)
		}
	}

	if len(directory) > 0 {
		index = append(index, format.Entry{
			Key:      format.DirectoryKey,
			Location: uint32(len(image)),
			Size:     uint32(len(directory)),
		})
		image = append(image, directory...)
	}

	indexLocation := uint32(len(image))
	for i := range index {
		image = format.AppendIndexRecord(image, &index[i], minor)
	}
	indexSize := uint32(len(image)) - indexLocation

	region := format.EncodeHeaderRegion(uint32(len(index)), indexLocation, indexSize, 0, 0, 0)
	copy(image[format.RegionOffset:], region)
	return image
}

// CompressContent compresses content for use in a compressed TestEntry,
// failing the test when the codec cannot shrink it.
func CompressContent(t *testing.T, content []byte) []byte {
	t.Helper()
	compressed, ok := qfs.Compress(content, len(content)-1)
	if !ok {
		t.Fatalf("test content of %d bytes did not compress", len(content))
	}
	return compressed
}

// ByteSource is an in-memory random-access source for tests.
type ByteSource struct {
	data []byte
}

// NewByteSource returns a byte source backed by the provided data.
func NewByteSource(data []byte) *ByteSource {
	return &ByteSource{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (s *ByteSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if off+int64(n) >= int64(len(s.data)) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (s *ByteSource) Size() int64 {
	return int64(len(s.data))
}

// Bytes returns the backing slice.
func (s *ByteSource) Bytes() []byte {
	return s.data
}

// ByteSink is a growable in-memory io.WriterAt for tests.
type ByteSink struct {
	data []byte
}

// WriteAt writes p at off, growing the buffer as needed.
func (s *ByteSink) WriteAt(p []byte, off int64) (int, error) {
	if end := off + int64(len(p)); end > int64(len(s.data)) {
		grown := make([]byte, end)
		copy(grown, s.data)
		s.data = grown
	}
	return copy(s.data[off:], p), nil
}

// Bytes returns everything written so far.
func (s *ByteSink) Bytes() []byte {
	return s.data
}

// Source returns the sink's current content as a ByteSource.
func (s *ByteSink) Source() *ByteSource {
	return NewByteSource(s.data)
}
