package dbpf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingeringwillx/CrappySims2Compression/internal/testutil"
)

func writePackageFile(t *testing.T, entries []testutil.TestEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.package")
	require.NoError(t, os.WriteFile(path, testutil.BuildPackage(t, 0, entries), 0o644))
	return path
}

func TestProcessPackageRecompress(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("career reward object tuning "), 60)
	path := writePackageFile(t, []testutil.TestEntry{
		{Key: Key{Type: 1, Group: 2, Instance: 3}, Content: content},
	})

	outcome, err := ProcessPackage(path, ModeRecompress)
	require.NoError(t, err)
	assert.Equal(t, StatusRewritten, outcome.Status)
	assert.Less(t, outcome.NewSize, outcome.OldSize)

	// The temporary file must be gone and the replacement re-parseable.
	_, err = os.Stat(path + ".new")
	assert.True(t, os.IsNotExist(err))

	src, err := openSource(path)
	require.NoError(t, err)
	defer src.Close()
	pkg, err := Parse(src, ModeRecompress)
	require.NoError(t, err)
	assert.True(t, pkg.SignatureInPackage)
	assert.True(t, pkg.HasCompressedEntries())
}

func TestProcessPackageSkipsSignedFiles(t *testing.T) {
	t.Parallel()

	path := writePackageFile(t, []testutil.TestEntry{
		{Key: Key{Type: 1, Group: 2, Instance: 3}, Content: bytes.Repeat([]byte("fence diagonal mesh "), 60)},
	})

	outcome, err := ProcessPackage(path, ModeRecompress)
	require.NoError(t, err)
	require.Equal(t, StatusRewritten, outcome.Status)

	after, err := os.ReadFile(path)
	require.NoError(t, err)

	// The second pass trusts the signature and leaves the file alone.
	outcome, err = ProcessPackage(path, ModeRecompress)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Equal(t, outcome.OldSize, outcome.NewSize)

	unchanged, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, after, unchanged)
}

func TestProcessPackageDecompress(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("pet coat texture description "), 50)
	path := writePackageFile(t, []testutil.TestEntry{
		{Key: Key{Type: 7, Group: 7, Instance: 7}, Content: testutil.CompressContent(t, content), Compressed: true},
	})

	outcome, err := ProcessPackage(path, ModeDecompress)
	require.NoError(t, err)
	assert.Equal(t, StatusRewritten, outcome.Status)
	assert.Greater(t, outcome.NewSize, outcome.OldSize)

	src, err := openSource(path)
	require.NoError(t, err)
	defer src.Close()
	pkg, err := Parse(src, ModeDecompress)
	require.NoError(t, err)
	assert.False(t, pkg.HasCompressedEntries())

	got, err := readAt(src, int64(pkg.Entries[0].Location), int(pkg.Entries[0].Size))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestProcessPackageSkipsFullyPlainFilesOnDecompress(t *testing.T) {
	t.Parallel()

	path := writePackageFile(t, []testutil.TestEntry{
		{Key: Key{Type: 1, Group: 1, Instance: 1}, Content: []byte("AAAA")},
	})
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	outcome, err := ProcessPackage(path, ModeDecompress)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, outcome.Status)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestProcessPackageLeavesInvalidFilesUntouched(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.package")
	garbage := []byte("this is not a package at all")
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	outcome, err := ProcessPackage(path, ModeRecompress)
	require.ErrorIs(t, err, ErrFormat)
	assert.Equal(t, StatusFailed, outcome.Status)

	// No temporary file, original bytes intact.
	_, statErr := os.Stat(path + ".new")
	assert.True(t, os.IsNotExist(statErr))
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, garbage, after)
}

func TestProcessPackageMissingFile(t *testing.T) {
	t.Parallel()

	outcome, err := ProcessPackage(filepath.Join(t.TempDir(), "missing.package"), ModeRecompress)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "skipped", StatusSkipped.String())
	assert.Equal(t, "rewritten", StatusRewritten.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "recompress", ModeRecompress.String())
	assert.Equal(t, "decompress", ModeDecompress.String())
}
