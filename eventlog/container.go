package eventlog

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hazyhaar/repro/binview"
)

// MaxContainerSize bounds the decompressed size Decompress accepts.
const MaxContainerSize = 1 << 30

// MarshalBinary writes the container: a u32 entry count, then per entry a
// u32 little-endian byte length and the bytes.
func (l *List[T]) MarshalBinary() ([]byte, error) {
	return MarshalEntries(l.entries)
}

// MarshalEntries writes raw entries in the container format.
func MarshalEntries(entries [][]byte) ([]byte, error) {
	if int64(len(entries)) > math.MaxUint32 {
		return nil, fmt.Errorf("eventlog: %d entries exceed the container limit", len(entries))
	}
	n := 4
	for _, e := range entries {
		n += 4 + len(e)
	}
	buf := make([]byte, 0, n)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(entries)))
	for i, e := range entries {
		if int64(len(e)) > math.MaxUint32 {
			return nil, fmt.Errorf("eventlog: entry %d too large (%d bytes)", i, len(e))
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e)))
		buf = append(buf, e...)
	}
	return buf, nil
}

// UnmarshalEntries splits a container into its entries. The entries alias
// data. Truncation and trailing bytes are malformed.
func UnmarshalEntries(data []byte) ([][]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("eventlog: container header: %w", binview.ErrMalformed)
	}
	count := binary.LittleEndian.Uint32(data)
	data = data[4:]
	// Each entry needs at least its 4-byte length.
	if uint64(count)*4 > uint64(len(data)) {
		return nil, fmt.Errorf("eventlog: %d entries cannot fit in %d bytes: %w", count, len(data), binview.ErrMalformed)
	}
	entries := make([][]byte, 0, count)
	for i := range count {
		if len(data) < 4 {
			return nil, fmt.Errorf("eventlog: entry %d length: %w", i, binview.ErrMalformed)
		}
		n := binary.LittleEndian.Uint32(data)
		data = data[4:]
		if uint64(n) > uint64(len(data)) {
			return nil, fmt.Errorf("eventlog: entry %d wants %d bytes, %d left: %w", i, n, len(data), binview.ErrMalformed)
		}
		entries = append(entries, data[:n:n])
		data = data[n:]
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("eventlog: %d trailing bytes: %w", len(data), binview.ErrMalformed)
	}
	return entries, nil
}

// Unmarshal reads a container into a list decoded with codec.
func Unmarshal[T any](codec *binview.Codec[T], data []byte) (*List[T], error) {
	entries, err := UnmarshalEntries(data)
	if err != nil {
		return nil, err
	}
	return New(codec, entries...), nil
}

// Compress gzips a container for storage or transport.
func Compress(data []byte) ([]byte, error) { return CompressExtra(data, nil) }

// CompressExtra gzips a container and carries extra in the gzip header's
// extra field. extra is limited to 65535 bytes.
func CompressExtra(data, extra []byte) ([]byte, error) {
	if len(extra) > 0xffff {
		return nil, fmt.Errorf("eventlog: compress: extra field of %d bytes", len(extra))
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Extra = extra
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("eventlog: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("eventlog: compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress. Data that is not gzip is malformed.
func Decompress(data []byte) ([]byte, error) {
	out, _, err := DecompressExtra(data)
	return out, err
}

// DecompressExtra reverses CompressExtra, returning the gzip extra field.
func DecompressExtra(data []byte) (raw, extra []byte, err error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("eventlog: decompress: %v: %w", err, binview.ErrMalformed)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, MaxContainerSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("eventlog: decompress: %v: %w", err, binview.ErrMalformed)
	}
	if len(out) > MaxContainerSize {
		return nil, nil, fmt.Errorf("eventlog: decompressed container exceeds %d bytes", MaxContainerSize)
	}
	return out, zr.Extra, nil
}

// Write stores l as a gzip-compressed container.
func Write[T any](w io.Writer, l *List[T]) error {
	raw, err := l.MarshalBinary()
	if err != nil {
		return err
	}
	z, err := Compress(raw)
	if err != nil {
		return err
	}
	if _, err := w.Write(z); err != nil {
		return fmt.Errorf("eventlog: write: %w", err)
	}
	return nil
}

// Read loads a gzip-compressed container.
func Read[T any](r io.Reader, codec *binview.Codec[T]) (*List[T], error) {
	z, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("eventlog: read: %w", err)
	}
	raw, err := Decompress(z)
	if err != nil {
		return nil, err
	}
	return Unmarshal(codec, raw)
}
