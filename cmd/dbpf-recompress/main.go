// Command dbpf-recompress recompresses the entries of DBPF package
// files in place, or decompresses them with -d. It accepts a single
// package file or a directory to walk recursively. Files that fail
// parsing or validation are reported and left untouched.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	dbpf "github.com/lingeringwillx/CrappySims2Compression"
)

func main() {
	decompress := flag.Bool("d", false, "decompress entries instead of recompressing them")
	verbose := flag.Bool("v", false, "log write diagnostics to stderr")
	workers := flag.Int("workers", 0, "worker count for entry transforms (0 = one per CPU)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: dbpf-recompress [-d] [-v] [-workers n] package_file_or_folder")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	mode := dbpf.ModeRecompress
	if *decompress {
		mode = dbpf.ModeDecompress
	}

	opts := []dbpf.WriteOption{dbpf.WithWorkers(*workers)}
	if *verbose {
		opts = append(opts, dbpf.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))))
	}

	root := flag.Arg(0)
	files, isDir, err := collectPackages(root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	failures := 0
	for _, path := range files {
		display := path
		if isDir {
			if rel, relErr := filepath.Rel(root, path); relErr == nil {
				display = rel
			}
		}

		outcome, err := dbpf.ProcessPackage(path, mode, opts...)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			failures++
			continue
		}
		fmt.Printf("%s %s -> %s\n", display, formatSize(outcome.OldSize), formatSize(outcome.NewSize))
	}

	if failures > 0 {
		os.Exit(1)
	}
}

// collectPackages resolves root to the list of package files to
// process: the file itself, or every .package file under a directory.
func collectPackages(root string) (files []string, isDir bool, err error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, false, fmt.Errorf("file not found: %s", root)
	}

	if !info.IsDir() {
		if filepath.Ext(root) != ".package" {
			return nil, false, fmt.Errorf("not a package file: %s", root)
		}
		return []string{root}, false, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && filepath.Ext(path) == ".package" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, true, err
	}
	return files, true, nil
}

// formatSize renders a byte count the way players read mod sizes:
// KB below a megabyte, MB above.
func formatSize(n int64) string {
	kb := float64(n) / 1024
	if kb >= 1000 {
		return fmt.Sprintf("%.2f MB", kb/1024)
	}
	return fmt.Sprintf("%.2f KB", kb)
}
