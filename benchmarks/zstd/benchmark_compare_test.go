// Package zstdbench compares the package codec against zstd on
// synthetic entry content. The game format fixes the codec, so this is
// a yardstick for ratio and speed, not a selection benchmark.
package zstdbench

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/lingeringwillx/CrappySims2Compression/internal/qfs"
)

var sinkBytes []byte

type benchPattern string

const (
	benchPatternCompressible benchPattern = "compressible"
	benchPatternMixed        benchPattern = "mixed"
)

func benchContent(pattern benchPattern, size int) []byte {
	switch pattern {
	case benchPatternCompressible:
		// Record-like content: short repeated structures with small
		// variations, the shape of object definitions and string tables.
		var buf bytes.Buffer
		for i := 0; buf.Len() < size; i++ {
			fmt.Fprintf(&buf, "record %04d: catalog object with shared field layout\n", i%64)
		}
		return buf.Bytes()[:size]
	case benchPatternMixed:
		// Half structured, half noise, the shape of texture resources
		// with plain headers.
		content := benchContent(benchPatternCompressible, size/2)
		noise := make([]byte, size-len(content))
		rand.New(rand.NewSource(42)).Read(noise)
		return append(content, noise...)
	default:
		panic("unknown pattern")
	}
}

func benchCases() []struct {
	name    string
	content []byte
} {
	return []struct {
		name    string
		content []byte
	}{
		{name: "size=16k/compressible", content: benchContent(benchPatternCompressible, 16<<10)},
		{name: "size=16k/mixed", content: benchContent(benchPatternMixed, 16<<10)},
		{name: "size=512k/compressible", content: benchContent(benchPatternCompressible, 512<<10)},
		{name: "size=512k/mixed", content: benchContent(benchPatternMixed, 512<<10)},
	}
}

func BenchmarkCompareCompress(b *testing.B) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		b.Fatal(err)
	}
	defer encoder.Close()

	for _, tc := range benchCases() {
		b.Run("codec=qfs/"+tc.name, func(b *testing.B) {
			b.SetBytes(int64(len(tc.content)))
			var out []byte
			for i := 0; i < b.N; i++ {
				compressed, ok := qfs.Compress(tc.content, len(tc.content)-1)
				if !ok {
					b.Fatal("content did not compress")
				}
				out = compressed
			}
			sinkBytes = out
			b.ReportMetric(float64(len(out))/float64(len(tc.content)), "ratio")
		})
		b.Run("codec=zstd/"+tc.name, func(b *testing.B) {
			b.SetBytes(int64(len(tc.content)))
			var out []byte
			for i := 0; i < b.N; i++ {
				out = encoder.EncodeAll(tc.content, out[:0])
			}
			sinkBytes = out
			b.ReportMetric(float64(len(out))/float64(len(tc.content)), "ratio")
		})
	}
}

func BenchmarkCompareDecompress(b *testing.B) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		b.Fatal(err)
	}
	defer encoder.Close()
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		b.Fatal(err)
	}
	defer decoder.Close()

	for _, tc := range benchCases() {
		qfsStream, ok := qfs.Compress(tc.content, len(tc.content)-1)
		if !ok {
			b.Fatal("content did not compress")
		}
		zstdStream := encoder.EncodeAll(tc.content, nil)

		b.Run("codec=qfs/"+tc.name, func(b *testing.B) {
			b.SetBytes(int64(len(tc.content)))
			for i := 0; i < b.N; i++ {
				out, err := qfs.Decompress(qfsStream, qfs.UncompressedSize(qfsStream))
				if err != nil {
					b.Fatal(err)
				}
				sinkBytes = out
			}
		})
		b.Run("codec=zstd/"+tc.name, func(b *testing.B) {
			b.SetBytes(int64(len(tc.content)))
			for i := 0; i < b.N; i++ {
				out, err := decoder.DecodeAll(zstdStream, nil)
				if err != nil {
					b.Fatal(err)
				}
				sinkBytes = out
			}
		})
	}
}
