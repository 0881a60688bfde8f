package dbpf

import (
	"bytes"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/lingeringwillx/CrappySims2Compression/internal/format"
	"github.com/lingeringwillx/CrappySims2Compression/internal/qfs"
)

// Validate proves that a rewritten package preserves the meaning of the
// original. oldPkg must be the pre-write parse of oldSrc and newPkg the
// parse of newSrc. Validate never mutates its arguments.
//
// Any failed check returns an error wrapping [ErrValidation] naming the
// specific mismatch; the caller must then discard the candidate output
// and leave the original file untouched.
func Validate(oldPkg, newPkg *Package, oldSrc, newSrc ByteSource, mode Mode) error {
	if !newPkg.Unpacked {
		return fmt.Errorf("%w: rewritten package did not parse", ErrValidation)
	}

	if err := validateHeaders(oldSrc, newSrc); err != nil {
		return err
	}
	if mode == ModeRecompress {
		if err := validateSignature(newPkg, newSrc); err != nil {
			return err
		}
	}

	// Both parses exclude the directory entry, so the logical counts
	// must line up exactly.
	if len(oldPkg.Entries) != len(newPkg.Entries) {
		return fmt.Errorf("%w: entry count changed from %d to %d", ErrValidation, len(oldPkg.Entries), len(newPkg.Entries))
	}

	for i := range oldPkg.Entries {
		if err := validateEntry(&oldPkg.Entries[i], &newPkg.Entries[i], oldSrc, newSrc, newPkg); err != nil {
			return err
		}
	}
	return nil
}

// validateHeaders compares the old and new header blocks. Only the
// index and hole region is allowed to differ; the version fields,
// timestamps, flags, and the opaque remainder must be byte-identical.
func validateHeaders(oldSrc, newSrc ByteSource) error {
	oldHeader, err := readAt(oldSrc, 0, format.HeaderSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	newHeader, err := readAt(newSrc, 0, format.HeaderSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	regionEnd := format.RegionOffset + format.RegionSize
	if !bytes.Equal(oldHeader[:format.RegionOffset], newHeader[:format.RegionOffset]) ||
		!bytes.Equal(oldHeader[regionEnd:], newHeader[regionEnd:]) {
		return fmt.Errorf("%w: header does not match the original", ErrValidation)
	}
	return nil
}

// validateSignature checks the skip-cache signature a recompress pass
// must leave behind: exactly one 8-byte hole whose payload carries the
// tool signature and the output file's actual size.
func validateSignature(newPkg *Package, newSrc ByteSource) error {
	if newPkg.Header.HoleIndexEntryCount != 1 || len(newPkg.Holes) != 1 {
		return fmt.Errorf("%w: expected exactly one hole, found %d", ErrValidation, newPkg.Header.HoleIndexEntryCount)
	}
	if newPkg.Header.HoleIndexSize != format.HoleRecordSize {
		return fmt.Errorf("%w: wrong hole index size %d", ErrValidation, newPkg.Header.HoleIndexSize)
	}
	hole := newPkg.Holes[0]
	if hole.Size != format.SignatureHoleSize {
		return fmt.Errorf("%w: wrong hole size %d", ErrValidation, hole.Size)
	}

	payload, err := readAt(newSrc, int64(hole.Location), format.SignatureHoleSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	b := format.NewBuffer(payload)
	if signature := b.Uint32(); signature != format.Signature {
		return fmt.Errorf("%w: compressor signature not found", ErrValidation)
	}
	if sizeAtWrite := b.Uint32(); int64(sizeAtWrite) != newSrc.Size() {
		return fmt.Errorf("%w: file size in signature is %d, actual size is %d", ErrValidation, sizeAtWrite, newSrc.Size())
	}
	return nil
}

// validateEntry compares one old/new entry pair at the same index
// position: identity, compression bookkeeping, and decompressed
// content.
func validateEntry(oldEntry, newEntry *Entry, oldSrc, newSrc ByteSource, newPkg *Package) error {
	if oldEntry.Key != newEntry.Key {
		return fmt.Errorf("%w: entry key changed from %v to %v", ErrValidation, oldEntry.Key, newEntry.Key)
	}

	oldContent, err := readAt(oldSrc, int64(oldEntry.Location), int(oldEntry.Size))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	newContent, err := readAt(newSrc, int64(newEntry.Location), int(newEntry.Size))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// The stream header and the directory of compressed entries must
	// agree on whether this entry is compressed.
	recordedSize, inDirectory := newPkg.CompressedEntries[newEntry.Key]
	if qfs.LooksCompressed(newContent) != inDirectory {
		return fmt.Errorf("%w: incorrect compression information for entry %v", ErrValidation, newEntry.Key)
	}

	if newEntry.Compressed {
		uncompressedSize := uint32(qfs.UncompressedSize(newContent))
		compressedSize := qfs.CompressedSize(newContent)
		if uncompressedSize != recordedSize {
			return fmt.Errorf("%w: uncompressed size %d in stream header does not match %d in directory", ErrValidation, uncompressedSize, recordedSize)
		}
		if compressedSize != newEntry.Size {
			return fmt.Errorf("%w: compressed size %d in stream header does not match %d in index", ErrValidation, compressedSize, newEntry.Size)
		}
		if compressedSize > uncompressedSize {
			return fmt.Errorf("%w: compressed size %d exceeds uncompressed size %d", ErrValidation, compressedSize, uncompressedSize)
		}
	}

	return validateContent(oldEntry, newEntry, oldContent, newContent)
}

// validateContent compares decompressed content byte-for-byte via
// sha256 digests. When both sides fail to decode, identical raw bytes
// still count as preserved: the write pass keeps undecodable entries
// verbatim, and rejecting them here would block rewrites of packages
// that were already damaged before this tool ever saw them.
func validateContent(oldEntry, newEntry *Entry, oldContent, newContent []byte) error {
	// Decompress copies; Validate must not mutate the packages.
	oldCopy, newCopy := *oldEntry, *newEntry
	oldExpanded, oldErr := decompressEntry(&oldCopy, oldContent)
	newExpanded, newErr := decompressEntry(&newCopy, newContent)

	if oldErr != nil || newErr != nil {
		if oldErr != nil && newErr != nil && bytes.Equal(oldContent, newContent) {
			return nil
		}
		return fmt.Errorf("%w: entry %v content cannot be decoded (old: %v, new: %v)", ErrValidation, newEntry.Key, oldErr, newErr)
	}

	oldDigest := digest.FromBytes(oldExpanded)
	newDigest := digest.FromBytes(newExpanded)
	if oldDigest != newDigest {
		return fmt.Errorf("%w: entry %v content changed (old %s, new %s)", ErrValidation, newEntry.Key, oldDigest, newDigest)
	}
	return nil
}
