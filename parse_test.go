package dbpf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingeringwillx/CrappySims2Compression/internal/format"
	"github.com/lingeringwillx/CrappySims2Compression/internal/testutil"
)

// Header field offsets used to corrupt images in place.
const (
	offIndexEntryCount = 36
	offIndexLocation   = 40
	offIndexSize       = 44
	offHoleEntryCount  = 48
	offHoleLocation    = 52
	offHoleSize        = 56
)

func putUint32(image []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(image[off:], v)
}

func TestParsePlainPackage(t *testing.T) {
	t.Parallel()

	key := Key{Type: 1, Group: 1, Instance: 1}
	image := testutil.BuildPackage(t, 0, []testutil.TestEntry{
		{Key: key, Content: []byte("AAAA")},
	})

	pkg, err := Parse(testutil.NewByteSource(image), ModeRecompress)
	require.NoError(t, err)

	assert.True(t, pkg.Unpacked)
	assert.False(t, pkg.SignatureInPackage)
	assert.False(t, pkg.HasCompressedEntries())
	assert.Empty(t, pkg.Holes)
	assert.Empty(t, pkg.CompressedEntries)

	require.Len(t, pkg.Entries, 1)
	e := pkg.Entries[0]
	assert.Equal(t, key, e.Key)
	assert.Equal(t, uint32(format.HeaderSize), e.Location)
	assert.Equal(t, uint32(4), e.Size)
	assert.False(t, e.Compressed)
	assert.False(t, e.Repeated)
}

func TestParseCompressedPackage(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("sims body shop mesh data "), 40)
	compressed := testutil.CompressContent(t, content)
	key := Key{Type: 0xFC6EB1F7, Group: 0x1C050000, Instance: 0xFF123456}

	for _, minor := range []uint32{0, 1, 2} {
		image := testutil.BuildPackage(t, minor, []testutil.TestEntry{
			{Key: key, Content: compressed, Compressed: true},
		})

		pkg, err := Parse(testutil.NewByteSource(image), ModeRecompress)
		require.NoError(t, err, "minor %d", minor)

		// The directory entry itself never shows up in the entry list.
		require.Len(t, pkg.Entries, 1)
		e := pkg.Entries[0]
		assert.True(t, e.Compressed)
		assert.Equal(t, uint32(len(content)), e.UncompressedSize)
		assert.Equal(t, uint32(len(compressed)), e.Size)

		require.Contains(t, pkg.CompressedEntries, key)
		assert.Equal(t, uint32(len(content)), pkg.CompressedEntries[key])
	}
}

func TestParseMarksRepeatedKeys(t *testing.T) {
	t.Parallel()

	key := Key{Type: 7, Group: 8, Instance: 9}
	entries := []testutil.TestEntry{
		{Key: key, Content: []byte("first copy of the content")},
		{Key: Key{Type: 1, Group: 2, Instance: 3}, Content: []byte("unrelated")},
		{Key: key, Content: []byte("second copy, different bytes")},
	}
	image := testutil.BuildPackage(t, 0, entries)

	pkg, err := Parse(testutil.NewByteSource(image), ModeRecompress)
	require.NoError(t, err)
	require.Len(t, pkg.Entries, 3)
	assert.True(t, pkg.Entries[0].Repeated)
	assert.False(t, pkg.Entries[1].Repeated)
	assert.True(t, pkg.Entries[2].Repeated)

	// Decompression ignores duplicates, so the scan is skipped.
	pkg, err = Parse(testutil.NewByteSource(image), ModeDecompress)
	require.NoError(t, err)
	for i := range pkg.Entries {
		assert.False(t, pkg.Entries[i].Repeated)
	}
}

func TestParseRejectsMalformedImages(t *testing.T) {
	t.Parallel()

	base := func() []byte {
		return testutil.BuildPackage(t, 0, []testutil.TestEntry{
			{Key: Key{Type: 1, Group: 1, Instance: 1}, Content: []byte("AAAA")},
		})
	}

	tests := []struct {
		name    string
		corrupt func(image []byte) []byte
	}{
		{"short file", func(image []byte) []byte {
			return image[:format.HeaderSize-1]
		}},
		{"bad magic", func(image []byte) []byte {
			image[0] = 'X'
			return image
		}},
		{"wrong major version", func(image []byte) []byte {
			putUint32(image, 4, 2)
			return image
		}},
		{"wrong index major version", func(image []byte) []byte {
			putUint32(image, 32, 8)
			return image
		}},
		{"unknown index minor version", func(image []byte) []byte {
			putUint32(image, 60, 3)
			return image
		}},
		{"index past end of file", func(image []byte) []byte {
			putUint32(image, offIndexLocation, uint32(len(image)))
			return image
		}},
		{"index size overflows file", func(image []byte) []byte {
			putUint32(image, offIndexSize, uint32(len(image)))
			return image
		}},
		{"entry count exceeds index size", func(image []byte) []byte {
			putUint32(image, offIndexEntryCount, 1000)
			return image
		}},
		{"hole index past end of file", func(image []byte) []byte {
			putUint32(image, offHoleEntryCount, 1)
			putUint32(image, offHoleLocation, uint32(len(image)))
			putUint32(image, offHoleSize, 8)
			return image
		}},
		{"hole count does not match hole index size", func(image []byte) []byte {
			putUint32(image, offHoleEntryCount, 2)
			return image
		}},
		{"entry location out of bounds", func(image []byte) []byte {
			// The index sits at the end; its first record's location
			// field follows the 12-byte key at index minor version 0.
			indexLocation := binary.LittleEndian.Uint32(image[offIndexLocation:])
			putUint32(image, int(indexLocation)+12, uint32(len(image)))
			return image
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			image := tt.corrupt(base())
			pkg, err := Parse(testutil.NewByteSource(image), ModeRecompress)
			require.ErrorIs(t, err, ErrFormat)
			assert.False(t, pkg.Unpacked)
			assert.Empty(t, pkg.Entries)
		})
	}
}

func TestParseRejectsHoleOutOfBounds(t *testing.T) {
	t.Parallel()

	image := testutil.BuildPackage(t, 0, []testutil.TestEntry{
		{Key: Key{Type: 1, Group: 1, Instance: 1}, Content: []byte("AAAA")},
	})

	// Append a hole index whose single record points past the file.
	holeLocation := uint32(len(image))
	image = format.AppendHole(image, Hole{Location: holeLocation + 100, Size: 8})
	putUint32(image, offHoleEntryCount, 1)
	putUint32(image, offHoleLocation, holeLocation)
	putUint32(image, offHoleSize, format.HoleRecordSize)

	_, err := Parse(testutil.NewByteSource(image), ModeRecompress)
	require.ErrorIs(t, err, ErrFormat)
}

func TestParseDetectsSignature(t *testing.T) {
	t.Parallel()

	image := testutil.BuildPackage(t, 0, []testutil.TestEntry{
		{Key: Key{Type: 1, Group: 1, Instance: 1}, Content: []byte("AAAA")},
	})

	// Append the signature hole the way a recompress pass would.
	holeIndexLocation := uint32(len(image))
	holeLocation := holeIndexLocation + format.HoleRecordSize
	fileSize := holeLocation + format.SignatureHoleSize
	image = format.AppendHole(image, Hole{Location: holeLocation, Size: format.SignatureHoleSize})
	image = format.AppendUint32(image, format.Signature)
	image = format.AppendUint32(image, fileSize)
	putUint32(image, offHoleEntryCount, 1)
	putUint32(image, offHoleLocation, holeIndexLocation)
	putUint32(image, offHoleSize, format.HoleRecordSize)

	pkg, err := Parse(testutil.NewByteSource(image), ModeRecompress)
	require.NoError(t, err)
	assert.True(t, pkg.SignatureInPackage)
	require.Len(t, pkg.Holes, 1)

	// Growing the file invalidates the recorded size, and with it the
	// signature.
	grown := append(bytes.Clone(image), 0)
	pkg, err = Parse(testutil.NewByteSource(grown), ModeRecompress)
	require.NoError(t, err)
	assert.False(t, pkg.SignatureInPackage)
}

func TestPackageClone(t *testing.T) {
	t.Parallel()

	image := testutil.BuildPackage(t, 0, []testutil.TestEntry{
		{Key: Key{Type: 1, Group: 1, Instance: 1}, Content: []byte("AAAA")},
	})
	pkg, err := Parse(testutil.NewByteSource(image), ModeRecompress)
	require.NoError(t, err)

	clone := pkg.Clone()
	clone.Entries[0].Size = 9999
	assert.Equal(t, uint32(4), pkg.Entries[0].Size)
}
