package dbpf

import (
	"fmt"
	"os"
)

// Status reports what ProcessPackage did with a file.
type Status int

const (
	// StatusSkipped means the file needed no work: it already carries
	// this tool's signature, or nothing in it is compressed.
	StatusSkipped Status = iota

	// StatusRewritten means a validated replacement was renamed over
	// the original.
	StatusRewritten

	// StatusFailed means the file was left untouched because parsing,
	// writing, or validation failed.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusRewritten:
		return "rewritten"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of processing one package file.
type Outcome struct {
	Status  Status
	OldSize int64
	NewSize int64
}

// ProcessPackage runs the full pipeline against the package at path:
// parse, rewrite into a temporary sibling file, re-parse the result,
// validate it against the original, and rename it over the original.
//
// The original file is replaced only after validation passes; on any
// failure the temporary file is removed, the original is untouched, and
// the returned error names the file and the failed invariant. Errors
// are never fatal to a batch: callers processing many files should
// report the error and continue.
func ProcessPackage(path string, mode Mode, opts ...WriteOption) (Outcome, error) {
	failed := Outcome{Status: StatusFailed}

	src, err := openSource(path)
	if err != nil {
		return failed, fmt.Errorf("dbpf: open %s: %w", path, err)
	}
	defer src.Close()

	pkg, err := Parse(src, mode)
	if err != nil {
		return failed, fmt.Errorf("%s: %w", path, err)
	}

	// Skip checks: a still-valid signature proves a prior recompress
	// run, and a package with nothing compressed has nothing to expand.
	if mode == ModeRecompress && pkg.SignatureInPackage ||
		mode == ModeDecompress && !pkg.HasCompressedEntries() {
		return Outcome{Status: StatusSkipped, OldSize: src.size, NewSize: src.size}, nil
	}

	// The write pass mutates entry fields; keep the pre-write state for
	// validation.
	oldPkg := pkg.Clone()

	tmpPath := path + ".new"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return failed, fmt.Errorf("dbpf: create %s: %w", tmpPath, err)
	}
	committed := false
	defer func() {
		tmp.Close()
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := Write(tmp, src, pkg, mode, opts...); err != nil {
		return failed, fmt.Errorf("%s: %w", path, err)
	}

	info, err := tmp.Stat()
	if err != nil {
		return failed, fmt.Errorf("dbpf: stat %s: %w", tmpPath, err)
	}
	newSrc := &fileSource{File: tmp, size: info.Size()}

	newPkg, err := Parse(newSrc, mode)
	if err != nil {
		return failed, fmt.Errorf("%s: rewritten package: %w", path, err)
	}
	if err := Validate(oldPkg, newPkg, src, newSrc, mode); err != nil {
		return failed, fmt.Errorf("%s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		return failed, fmt.Errorf("dbpf: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return failed, fmt.Errorf("dbpf: replace %s: %w", path, err)
	}
	committed = true

	return Outcome{Status: StatusRewritten, OldSize: src.size, NewSize: newSrc.size}, nil
}

// fileSource adapts an open file to ByteSource with a fixed size.
type fileSource struct {
	*os.File
	size int64
}

func (f *fileSource) Size() int64 {
	return f.size
}

// openSource opens path for reading as a ByteSource.
func openSource(path string) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSource{File: f, size: info.Size()}, nil
}
