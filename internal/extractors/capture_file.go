package extractors

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/miradorstack/mirador-latency/internal/utils"
)

// CompressedSuffix marks zstd-compressed captures.
const CompressedSuffix = ".zst"

// CheckCapture fails with a setup error when the capture file is missing or is a directory.
func CheckCapture(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return utils.NewAppError("capture", "capture file not found", fmt.Errorf("%s: %w", path, utils.ErrInputNotFound))
		}
		return utils.NewAppError("capture", "stat capture file", err)
	}
	if info.IsDir() {
		return utils.NewAppError("capture", "capture path is a directory", fmt.Errorf("%s: %w", path, utils.ErrInputNotFound))
	}
	return nil
}

// CaptureStem returns the file name without directory, compression and capture extension:
// "runs/a_run1.pcapng.zst" becomes "a_run1".
func CaptureStem(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, CompressedSuffix)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type zstdFile struct {
	*zstd.Decoder
	file *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.file.Close()
}

// OpenCapture opens a capture for reading, transparently decompressing .zst files.
func OpenCapture(path string) (io.ReadCloser, error) {
	if err := CheckCapture(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, utils.NewAppError("capture", "open capture file", err)
	}
	if !strings.HasSuffix(path, CompressedSuffix) {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, utils.NewAppError("capture", "open zstd stream", err)
	}
	return &zstdFile{Decoder: dec, file: f}, nil
}

// MaterializeCapture returns a path an external tool can read. Compressed captures are
// decompressed into a temporary file removed by the returned cleanup.
func MaterializeCapture(path string) (string, func(), error) {
	noop := func() {}
	if err := CheckCapture(path); err != nil {
		return "", noop, err
	}
	if !strings.HasSuffix(path, CompressedSuffix) {
		return path, noop, nil
	}

	src, err := OpenCapture(path)
	if err != nil {
		return "", noop, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "capture-*"+filepath.Ext(strings.TrimSuffix(path, CompressedSuffix)))
	if err != nil {
		return "", noop, fmt.Errorf("create temp capture: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		cleanup()
		return "", noop, fmt.Errorf("decompress %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", noop, err
	}
	return tmp.Name(), cleanup, nil
}
