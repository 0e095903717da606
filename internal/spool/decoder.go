package spool

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/WuerthPhoenix/tornado-match/internal/value"
)

// maxDecompressionDepth bounds how many nested compression layers are
// unwrapped before giving up.
const maxDecompressionDepth = 2

// Decoder reads one spool file into events. Files may be plain JSON, or
// gzip/zstd compressed JSON; a file holds a single event object, a JSON
// array of events, or newline-delimited event objects.
type Decoder struct {
	maxFileSize          int64
	maxDecompressedSize  int64
	maxDecompressionRate int64
}

// NewDecoder creates a Decoder with default limits.
func NewDecoder() *Decoder {
	return &Decoder{
		maxFileSize:          100 * 1024 * 1024,
		maxDecompressedSize:  500 * 1024 * 1024,
		maxDecompressionRate: 100,
	}
}

// WithLimits overrides the decoder's size and decompression-rate limits.
func (d *Decoder) WithLimits(maxFileSize, maxDecompressedSize, maxDecompressionRate int64) *Decoder {
	d.maxFileSize = maxFileSize
	d.maxDecompressedSize = maxDecompressedSize
	d.maxDecompressionRate = maxDecompressionRate
	return d
}

// DecodeEvents reads and decodes all events from a spool file.
func (d *Decoder) DecodeEvents(path string) ([]value.Event, error) {
	return d.DecodeEventsContext(context.Background(), path)
}

// DecodeEventsContext is DecodeEvents with early cancellation.
func (d *Decoder) DecodeEventsContext(ctx context.Context, path string) ([]value.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("spool: empty file path")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("spool: cannot stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("spool: %s is empty", path)
	}
	if info.Size() > d.maxFileSize {
		return nil, fmt.Errorf("spool: %s is %d bytes, exceeds limit %d", path, info.Size(), d.maxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("spool: cannot read %s: %w", path, err)
	}

	data, err = d.decompress(data, 0)
	if err != nil {
		return nil, fmt.Errorf("spool: %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events, err := decodeJSONEvents(data)
	if err != nil {
		return nil, fmt.Errorf("spool: %s: %w", path, err)
	}
	return events, nil
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// decompress transparently unwraps gzip and zstd layers, enforcing the
// decompressed-size and expansion-rate limits so a decompression bomb
// cannot exhaust memory.
func (d *Decoder) decompress(data []byte, depth int) ([]byte, error) {
	isGzip := bytes.HasPrefix(data, gzipMagic)
	isZstd := bytes.HasPrefix(data, zstdMagic)
	if !isGzip && !isZstd {
		return data, nil
	}
	if depth >= maxDecompressionDepth {
		return nil, fmt.Errorf("maximum decompression depth %d exceeded", maxDecompressionDepth)
	}

	var r io.Reader
	if isGzip {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	} else {
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr.IOReadCloser()
	}

	out, err := io.ReadAll(io.LimitReader(r, d.maxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if int64(len(out)) > d.maxDecompressedSize {
		return nil, fmt.Errorf("decompressed size exceeds limit %d", d.maxDecompressedSize)
	}
	if int64(len(out)) > int64(len(data))*d.maxDecompressionRate {
		return nil, fmt.Errorf("decompression rate exceeds limit %dx", d.maxDecompressionRate)
	}
	return d.decompress(out, depth+1)
}

// decodeJSONEvents accepts a JSON array of events, a single event object,
// or newline-delimited event objects.
func decodeJSONEvents(data []byte) ([]value.Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("no event data")
	}

	if trimmed[0] == '[' {
		var events []value.Event
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("invalid event array: %w", err)
		}
		return events, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var events []value.Event
	for {
		var ev value.Event
		if err := dec.Decode(&ev); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("invalid event document: %w", err)
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no event data")
	}
	return events, nil
}
