// Package binview derives binary encoders, decoders and lazy views from
// typed descriptors.
//
// Struct fields and union variants are addressed by stable numeric tags, so
// a buffer written by a newer descriptor decodes under an older one (unknown
// tags are skipped) and the reverse (absent tags take their declared
// default). All integers are fixed-width little-endian.
package binview

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"unicode/utf8"

	"golang.org/x/exp/constraints"
)

// Descriptor describes the binary layout of T.
type Descriptor[T any] struct {
	name   string
	enc    func(buf []byte, v T) ([]byte, error)
	dec    func(r *reader) (T, error)
	fields map[uint16]StructField[T] // set for Struct descriptors only
}

// Name is a short description used in error messages.
func (d Descriptor[T]) Name() string { return d.name }

// IsStruct reports whether the descriptor is tag-addressed, which is what
// Over needs to read fields lazily.
func (d Descriptor[T]) IsStruct() bool { return d.fields != nil }

// Append encodes v at the end of buf.
func (d Descriptor[T]) Append(buf []byte, v T) ([]byte, error) {
	if d.enc == nil {
		return buf, fmt.Errorf("binview: zero descriptor")
	}
	return d.enc(buf, v)
}

// Decode reads one value from buf. Trailing bytes are malformed.
func (d Descriptor[T]) Decode(buf []byte) (T, error) {
	var zero T
	if d.dec == nil {
		return zero, fmt.Errorf("binview: zero descriptor")
	}
	r := &reader{buf: buf}
	v, err := d.dec(r)
	if err != nil {
		return zero, err
	}
	if r.remaining() != 0 {
		return zero, malformed("%s: %d trailing bytes", d.name, r.remaining())
	}
	return v, nil
}

func errTooLarge(n int) error {
	return fmt.Errorf("binview: value of %d bytes exceeds u32 length", n)
}

// Bool is one byte, 0 or 1.
func Bool() Descriptor[bool] {
	return Descriptor[bool]{
		name: "bool",
		enc: func(buf []byte, v bool) ([]byte, error) {
			if v {
				return append(buf, 1), nil
			}
			return append(buf, 0), nil
		},
		dec: func(r *reader) (bool, error) {
			b, err := r.u8()
			if err != nil {
				return false, err
			}
			if b > 1 {
				return false, malformed("bool byte %d", b)
			}
			return b == 1, nil
		},
	}
}

// Unsigned encodes T in bits (8, 16, 32 or 64) bits. Values that do not fit
// fail to encode.
func Unsigned[T constraints.Unsigned](bits int) Descriptor[T] {
	width := byteWidth(bits)
	return Descriptor[T]{
		name: fmt.Sprintf("uint%d", bits),
		enc: func(buf []byte, v T) ([]byte, error) {
			u := uint64(v)
			if bits < 64 && u>>bits != 0 {
				return buf, fmt.Errorf("binview: %d overflows uint%d", u, bits)
			}
			return appendUint(buf, u, width), nil
		},
		dec: func(r *reader) (T, error) {
			u, err := r.uint(width)
			if err != nil {
				return 0, err
			}
			v := T(u)
			if uint64(v) != u {
				return 0, malformed("%d does not fit the target type", u)
			}
			return v, nil
		},
	}
}

// Signed encodes T as a two's complement integer of bits bits.
func Signed[T constraints.Signed](bits int) Descriptor[T] {
	width := byteWidth(bits)
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if bits < 64 {
		lo, hi = -1<<(bits-1), 1<<(bits-1)-1
	}
	return Descriptor[T]{
		name: fmt.Sprintf("int%d", bits),
		enc: func(buf []byte, v T) ([]byte, error) {
			i := int64(v)
			if i < lo || i > hi {
				return buf, fmt.Errorf("binview: %d overflows int%d", i, bits)
			}
			return appendUint(buf, uint64(i), width), nil
		},
		dec: func(r *reader) (T, error) {
			u, err := r.uint(width)
			if err != nil {
				return 0, err
			}
			shift := 64 - bits
			i := int64(u<<shift) >> shift
			v := T(i)
			if int64(v) != i {
				return 0, malformed("%d does not fit the target type", i)
			}
			return v, nil
		},
	}
}

func byteWidth(bits int) int {
	switch bits {
	case 8, 16, 32, 64:
		return bits / 8
	}
	panic(fmt.Sprintf("binview: unsupported integer width %d", bits))
}

func Uint8() Descriptor[uint8]   { return Unsigned[uint8](8) }
func Uint16() Descriptor[uint16] { return Unsigned[uint16](16) }
func Uint32() Descriptor[uint32] { return Unsigned[uint32](32) }
func Uint64() Descriptor[uint64] { return Unsigned[uint64](64) }
func Int8() Descriptor[int8]     { return Signed[int8](8) }
func Int16() Descriptor[int16]   { return Signed[int16](16) }
func Int32() Descriptor[int32]   { return Signed[int32](32) }
func Int64() Descriptor[int64]   { return Signed[int64](64) }

// Float64 stores the IEEE-754 bits.
func Float64() Descriptor[float64] {
	return Descriptor[float64]{
		name: "float64",
		enc: func(buf []byte, v float64) ([]byte, error) {
			return appendUint(buf, math.Float64bits(v), 8), nil
		},
		dec: func(r *reader) (float64, error) {
			u, err := r.uint(8)
			return math.Float64frombits(u), err
		},
	}
}

// String is a u32 byte length followed by UTF-8 bytes.
func String[S ~string]() Descriptor[S] {
	return Descriptor[S]{
		name: "string",
		enc: func(buf []byte, v S) ([]byte, error) {
			if !utf8.ValidString(string(v)) {
				return buf, fmt.Errorf("binview: string is not valid UTF-8")
			}
			if int64(len(v)) > math.MaxUint32 {
				return buf, errTooLarge(len(v))
			}
			buf = appendUint(buf, uint64(len(v)), 4)
			return append(buf, v...), nil
		},
		dec: func(r *reader) (S, error) {
			n, err := r.u32()
			if err != nil {
				return "", err
			}
			b, err := r.take(int(n))
			if err != nil {
				return "", err
			}
			if !utf8.Valid(b) {
				return "", malformed("string is not valid UTF-8")
			}
			return S(b), nil
		},
	}
}

// Char is a fixed array of n bytes, e.g. a 36-byte UUID.
func Char[S ~string](n int) Descriptor[S] {
	return Descriptor[S]{
		name: fmt.Sprintf("char[%d]", n),
		enc: func(buf []byte, v S) ([]byte, error) {
			if len(v) != n {
				return buf, fmt.Errorf("binview: char[%d] given %d bytes", n, len(v))
			}
			return append(buf, v...), nil
		},
		dec: func(r *reader) (S, error) {
			b, err := r.take(n)
			if err != nil {
				return "", err
			}
			if !utf8.Valid(b) {
				return "", malformed("char[%d] is not valid UTF-8", n)
			}
			return S(b), nil
		},
	}
}

// Enum stores T in bits bits. Values outside the declared set decode to
// fallback instead of failing, so new members can be written before every
// reader knows them.
func Enum[T constraints.Integer](bits int, fallback T, values ...T) Descriptor[T] {
	inner := Unsigned[uint64](bits)
	known := make(map[T]bool, len(values))
	for _, v := range values {
		known[v] = true
	}
	return Descriptor[T]{
		name: fmt.Sprintf("enum%d", bits),
		enc: func(buf []byte, v T) ([]byte, error) {
			if v < 0 {
				return buf, fmt.Errorf("binview: negative enum value %d", v)
			}
			return inner.enc(buf, uint64(v))
		},
		dec: func(r *reader) (T, error) {
			u, err := inner.dec(r)
			if err != nil {
				return fallback, err
			}
			v := T(u)
			if uint64(v) != u || !known[v] {
				return fallback, nil
			}
			return v, nil
		},
	}
}

// Vector is a u32 element count followed by the elements.
func Vector[T any](elem Descriptor[T]) Descriptor[[]T] {
	return Descriptor[[]T]{
		name: "vector<" + elem.name + ">",
		enc: func(buf []byte, v []T) ([]byte, error) {
			buf = appendUint(buf, uint64(len(v)), 4)
			var err error
			for i, e := range v {
				if buf, err = elem.enc(buf, e); err != nil {
					return buf, fmt.Errorf("[%d]: %w", i, err)
				}
			}
			return buf, nil
		},
		dec: func(r *reader) ([]T, error) {
			n, err := r.count()
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, nil
			}
			out := make([]T, n)
			for i := range out {
				if out[i], err = elem.dec(r); err != nil {
					return nil, err
				}
			}
			return out, nil
		},
	}
}

// Map is a u32 pair count followed by key/value pairs in ascending key
// order, so equal maps encode to equal bytes.
func Map[K cmp.Ordered, V any](key Descriptor[K], val Descriptor[V]) Descriptor[map[K]V] {
	return Descriptor[map[K]V]{
		name: "map<" + key.name + "," + val.name + ">",
		enc: func(buf []byte, m map[K]V) ([]byte, error) {
			keys := make([]K, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			buf = appendUint(buf, uint64(len(keys)), 4)
			var err error
			for _, k := range keys {
				if buf, err = key.enc(buf, k); err != nil {
					return buf, err
				}
				if buf, err = val.enc(buf, m[k]); err != nil {
					return buf, fmt.Errorf("[%v]: %w", k, err)
				}
			}
			return buf, nil
		},
		dec: func(r *reader) (map[K]V, error) {
			n, err := r.count()
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, nil
			}
			out := make(map[K]V, n)
			for range n {
				k, err := key.dec(r)
				if err != nil {
					return nil, err
				}
				if _, dup := out[k]; dup {
					return nil, malformed("duplicate map key %v", k)
				}
				if out[k], err = val.dec(r); err != nil {
					return nil, err
				}
			}
			return out, nil
		},
	}
}

// Nullable prefixes the value with a presence byte.
func Nullable[T any](d Descriptor[T]) Descriptor[*T] {
	return Descriptor[*T]{
		name: d.name + "?",
		enc: func(buf []byte, v *T) ([]byte, error) {
			if v == nil {
				return append(buf, 0), nil
			}
			return d.enc(append(buf, 1), *v)
		},
		dec: func(r *reader) (*T, error) {
			flag, err := r.u8()
			if err != nil {
				return nil, err
			}
			switch flag {
			case 0:
				return nil, nil
			case 1:
				v, err := d.dec(r)
				if err != nil {
					return nil, err
				}
				return &v, nil
			}
			return nil, malformed("presence byte %d", flag)
		},
	}
}

// Convert maps a descriptor of A onto B. from may reject values that cannot
// be represented; such errors on decode are reported as malformed.
func Convert[A, B any](d Descriptor[A], to func(B) (A, error), from func(A) (B, error)) Descriptor[B] {
	return Descriptor[B]{
		name: d.name,
		enc: func(buf []byte, v B) ([]byte, error) {
			a, err := to(v)
			if err != nil {
				return buf, err
			}
			return d.enc(buf, a)
		},
		dec: func(r *reader) (B, error) {
			var zero B
			a, err := d.dec(r)
			if err != nil {
				return zero, err
			}
			b, err := from(a)
			if err != nil {
				return zero, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			return b, nil
		},
	}
}
