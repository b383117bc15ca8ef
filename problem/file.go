package problem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const zstdExt = ".zst"

// Compressed reports whether the test file is stored zstd compressed
func Compressed(path string) bool {
	return filepath.Ext(path) == zstdExt
}

// OpenFile opens a test file, decompressing .zst files transparently.
// Uncompressed files are returned as *os.File.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !Compressed(path) {
		return f, nil
	}
	d, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return &zstdFile{Decoder: d, f: f}, nil
}

// Materialize returns a plain file path for path, decompressing into dir
// when needed
func Materialize(path, dir, name string) (string, error) {
	if !Compressed(path) {
		return path, nil
	}
	r, err := OpenFile(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	out := filepath.Join(dir, name)
	w, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	return out, w.Close()
}

type zstdFile struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}
