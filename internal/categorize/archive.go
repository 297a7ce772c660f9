package categorize

import (
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
)

const archiveStampLayout = "20060102T150405Z"

// archiveTable writes a zstd-compressed copy of path next to it and returns
// the archive path.
func archiveTable(path string, now time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", fmt.Errorf("zstd encoder: %w", err)
	}
	defer enc.Close()

	dst := fmt.Sprintf("%s.%s.csv.zst", path, now.UTC().Format(archiveStampLayout))
	if err := os.WriteFile(dst, enc.EncodeAll(data, nil), 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// ReadArchive decompresses an archived table.
func ReadArchive(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
