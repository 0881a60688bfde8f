package dbpf

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lingeringwillx/CrappySims2Compression/internal/format"
	"github.com/lingeringwillx/CrappySims2Compression/internal/qfs"
)

// Write serializes pkg into dst, reading original entry content from
// src and applying the transform selected by mode to each entry. Entry
// sizes, locations, compression flags, and uncompressed sizes in pkg
// are rewritten in place; when any entry ends up compressed, a
// synthetic directory entry is appended to pkg.Entries.
//
// Entries are transformed by a worker pool. Reads from src and appends
// to dst are each serialized behind their own lock while the codec runs
// unsynchronized, so the physical order of entry content in the output
// is unspecified. That is not a defect: identity is carried by key and
// each entry's index record holds its own final location.
//
// In [ModeRecompress] a decode failure leaves the affected entry
// byte-identical and is logged; in [ModeDecompress] it aborts the write
// with an error wrapping [ErrCodec], since the output would silently
// retain entries the caller asked to expand.
func Write(dst io.WriterAt, src ByteSource, pkg *Package, mode Mode, opts ...WriteOption) error {
	cfg := writeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	w := &packageWriter{
		src:  src,
		out:  appendSink{w: dst},
		pkg:  pkg,
		mode: mode,
		cfg:  cfg,
	}
	return w.write()
}

// packageWriter holds state for one write pass.
type packageWriter struct {
	src   ByteSource
	srcMu sync.Mutex
	out   appendSink
	pkg   *Package
	mode  Mode
	cfg   writeConfig
}

// log returns the logger, falling back to a discard logger if nil.
func (w *packageWriter) log() *slog.Logger {
	if w.cfg.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return w.cfg.logger
}

func (w *packageWriter) write() error {
	// Header first, with the index and hole region zeroed; it is
	// patched once the final layout is known. The opaque remainder is
	// carried over verbatim.
	header := w.pkg.Header
	header.IndexEntryCount = 0
	header.IndexLocation = 0
	header.IndexSize = 0
	header.HoleIndexEntryCount = 0
	header.HoleIndexLocation = 0
	header.HoleIndexSize = 0
	if _, err := w.out.append(format.EncodeHeader(&header)); err != nil {
		return err
	}

	if err := w.transformEntries(); err != nil {
		return err
	}
	if err := w.writeDirectory(); err != nil {
		return err
	}

	indexLocation, indexSize, err := w.writeIndex()
	if err != nil {
		return err
	}

	holeCount, holeIndexLocation, holeIndexSize, err := w.writeSignatureHole()
	if err != nil {
		return err
	}

	region := format.EncodeHeaderRegion(
		uint32(len(w.pkg.Entries)), indexLocation, indexSize,
		holeCount, holeIndexLocation, holeIndexSize,
	)
	if _, err := w.out.w.WriteAt(region, format.RegionOffset); err != nil {
		return fmt.Errorf("dbpf: patch header: %w", err)
	}
	return nil
}

// transformEntries runs the per-entry pipeline across the worker pool.
// Workers address entry slots by index striding, so each slot is
// written by exactly one worker and the slice needs no lock.
func (w *packageWriter) transformEntries() error {
	entries := w.pkg.Entries
	workers := w.workerCount(len(entries))
	w.log().Debug("transforming entries", "entries", len(entries), "workers", workers, "mode", w.mode.String())

	if workers < 2 {
		for i := range entries {
			if err := w.processEntry(&entries[i]); err != nil {
				return err
			}
		}
		return nil
	}

	var eg errgroup.Group
	for wk := 0; wk < workers; wk++ {
		wk := wk
		eg.Go(func() error {
			for i := wk; i < len(entries); i += workers {
				if err := w.processEntry(&entries[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return eg.Wait()
}

// processEntry reads one entry's original content, transforms it, and
// appends the result, recording the entry's new location and size. Only
// the read and the append take locks; the codec runs outside both.
func (w *packageWriter) processEntry(entry *Entry) error {
	content, err := w.readEntry(entry.Location, entry.Size)
	if err != nil {
		return err
	}

	switch w.mode {
	case ModeRecompress:
		result, rerr := recompressEntry(entry, content)
		if rerr != nil {
			w.log().Warn("keeping entry unchanged: decompression failed",
				"type", entry.Type, "group", entry.Group, "instance", entry.Instance, "error", rerr)
		}
		content = result
	case ModeDecompress:
		content, err = decompressEntry(entry, content)
		if err != nil {
			return err
		}
	}

	entry.Size = uint32(len(content))
	if entry.Compressed && len(content) >= qfs.HeaderSize {
		entry.UncompressedSize = uint32(qfs.UncompressedSize(content))
	}

	off, err := w.out.append(content)
	if err != nil {
		return err
	}
	entry.Location, err = toUint32(off)
	return err
}

// readEntry reads the entry's original bytes under the source lock.
func (w *packageWriter) readEntry(location, size uint32) ([]byte, error) {
	w.srcMu.Lock()
	defer w.srcMu.Unlock()
	return readAt(w.src, int64(location), int(size))
}

// writeDirectory serializes the directory of compressed entries and
// appends it to the entry list under the reserved directory key. It is
// a no-op when nothing ended up compressed.
func (w *packageWriter) writeDirectory() error {
	if !w.pkg.HasCompressedEntries() {
		return nil
	}

	minor := w.pkg.Header.IndexMinorVersion
	content := make([]byte, 0, len(w.pkg.Entries)*w.pkg.Header.DirectoryRecordSize())
	for i := range w.pkg.Entries {
		if w.pkg.Entries[i].Compressed {
			content = format.AppendDirectoryRecord(content, w.pkg.Entries[i].Key, w.pkg.Entries[i].UncompressedSize, minor)
		}
	}

	off, err := w.out.append(content)
	if err != nil {
		return err
	}
	location, err := toUint32(off)
	if err != nil {
		return err
	}
	w.pkg.Entries = append(w.pkg.Entries, Entry{
		Key:      format.DirectoryKey,
		Location: location,
		Size:     uint32(len(content)),
	})
	return nil
}

// writeIndex serializes one record per entry in list order.
func (w *packageWriter) writeIndex() (location, size uint32, err error) {
	minor := w.pkg.Header.IndexMinorVersion
	buf := make([]byte, 0, len(w.pkg.Entries)*w.pkg.Header.EntryRecordSize())
	for i := range w.pkg.Entries {
		buf = format.AppendIndexRecord(buf, &w.pkg.Entries[i], minor)
	}

	off, err := w.out.append(buf)
	if err != nil {
		return 0, 0, err
	}
	location, err = toUint32(off)
	if err != nil {
		return 0, 0, err
	}
	return location, uint32(len(buf)), nil
}

// writeSignatureHole appends the skip-cache signature in recompress
// mode: one hole index record followed by the 8-byte hole payload
// {signature, total file size including this hole}. Other modes write
// no holes.
func (w *packageWriter) writeSignatureHole() (count, location, size uint32, err error) {
	if w.mode != ModeRecompress {
		return 0, 0, 0, nil
	}

	holeIndexOff := w.out.offset()
	holeLocation := holeIndexOff + format.HoleRecordSize
	fileSize := holeLocation + format.SignatureHoleSize
	if fileSize > math.MaxUint32 {
		return 0, 0, 0, fmt.Errorf("dbpf: output exceeds 4GB")
	}

	tail := format.AppendHole(nil, Hole{Location: uint32(holeLocation), Size: format.SignatureHoleSize})
	tail = format.AppendUint32(tail, format.Signature)
	tail = format.AppendUint32(tail, uint32(fileSize))
	if _, err := w.out.append(tail); err != nil {
		return 0, 0, 0, err
	}
	return 1, uint32(holeIndexOff), format.HoleRecordSize, nil
}

// workerCount determines the number of workers for the transform pass.
func (w *packageWriter) workerCount(entryCount int) int {
	if entryCount < 2 || w.cfg.workers < 0 {
		return 1
	}
	workers := w.cfg.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > entryCount {
		workers = entryCount
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// appendSink owns the output cursor. Each append assigns the next
// offset and writes under one lock, keeping the underlying stream
// consistent; callers never hold this lock while running the codec.
type appendSink struct {
	mu  sync.Mutex
	w   io.WriterAt
	off int64
}

// append writes b at the current cursor and returns the offset it was
// written at.
func (s *appendSink) append(b []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	off := s.off
	if _, err := s.w.WriteAt(b, off); err != nil {
		return 0, fmt.Errorf("dbpf: write at %d: %w", off, err)
	}
	s.off += int64(len(b))
	return off, nil
}

// offset returns the current cursor position.
func (s *appendSink) offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.off
}

// toUint32 converts a file offset, failing on overflow: the format
// addresses content with 32-bit locations.
func toUint32(off int64) (uint32, error) {
	if off < 0 || off > math.MaxUint32 {
		return 0, fmt.Errorf("dbpf: offset %d exceeds 32-bit addressing", off)
	}
	return uint32(off), nil
}
