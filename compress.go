package dbpf

import (
	"fmt"

	"github.com/lingeringwillx/CrappySims2Compression/internal/qfs"
)

// compressEntry compresses the entry's content if it is not already
// compressed. The codec is offered an output budget one byte short of
// the input, so any result that fails to shrink is rejected and the
// input comes back unchanged with the flag untouched.
//
// Repeated-key entries are never compressed: the directory of
// compressed entries is keyed by identity, and two entries sharing a
// key cannot be told apart there.
func compressEntry(entry *Entry, content []byte) []byte {
	if entry.Compressed || entry.Repeated {
		return content
	}
	compressed, ok := qfs.Compress(content, len(content)-1)
	if !ok {
		return content
	}
	entry.Compressed = true
	return compressed
}

// decompressEntry expands the entry's content if it is compressed. The
// output size is taken from the stream header. On decode failure the
// input is returned unchanged with the flag still set, alongside an
// error wrapping [ErrCodec]; the caller decides whether that is fatal.
func decompressEntry(entry *Entry, content []byte) ([]byte, error) {
	if !entry.Compressed {
		return content, nil
	}
	if len(content) < qfs.HeaderSize {
		return content, fmt.Errorf("%w: compressed entry shorter than stream header", ErrCodec)
	}
	expanded, err := qfs.Decompress(content, qfs.UncompressedSize(content))
	if err != nil {
		return content, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	entry.Compressed = false
	return expanded, nil
}

// recompressEntry decompresses then compresses the entry's content. The
// result is kept only when strictly smaller than the input; otherwise
// the original bytes and flag are restored, so recompression is never a
// pessimization. A decode failure leaves the entry byte-identical and
// is reported for logging.
func recompressEntry(entry *Entry, content []byte) ([]byte, error) {
	wasCompressed := entry.Compressed

	expanded, err := decompressEntry(entry, content)
	if err != nil {
		return content, err
	}

	result := compressEntry(entry, expanded)
	if len(result) < len(content) {
		return result, nil
	}
	entry.Compressed = wasCompressed
	return content, nil
}
