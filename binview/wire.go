package binview

import (
	"encoding/binary"
	"math"
)

// reader walks a buffer and never reads past its end.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, malformed("need %d bytes at offset %d, have %d", n, r.off, r.remaining())
	}
	b := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// uint reads an unsigned little-endian integer of the given byte width.
func (r *reader) uint(width int) (uint64, error) {
	b, err := r.take(width)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := width - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// count reads a u32 element count. Every encoded value takes at least one
// byte, so a count larger than the rest of the buffer is corrupt.
func (r *reader) count() (int, error) {
	n, err := r.u32()
	if err != nil {
		return 0, err
	}
	if int64(n) > int64(r.remaining()) {
		return 0, malformed("count %d exceeds %d remaining bytes", n, r.remaining())
	}
	return int(n), nil
}

func appendUint(buf []byte, v uint64, width int) []byte {
	for i := 0; i < width; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}

// reserve appends a u32 placeholder and returns its offset for patchLen.
func reserve(buf []byte) ([]byte, int) {
	return binary.LittleEndian.AppendUint32(buf, 0), len(buf)
}

func patchLen(buf []byte, at int) ([]byte, error) {
	n := len(buf) - at - 4
	if int64(n) > math.MaxUint32 {
		return nil, errTooLarge(n)
	}
	binary.LittleEndian.PutUint32(buf[at:], uint32(n))
	return buf, nil
}
