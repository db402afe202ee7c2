package binview

import (
	"encoding/binary"
	"fmt"
	"slices"
)

// UnionVariant is one member of a Union. Build one with Variant or
// VariantFunc.
type UnionVariant[T any] interface {
	variantTag() uint16
	variantName() string
	encodeVariant(buf []byte, v T) ([]byte, bool, error)
	decodeVariant(b []byte) (T, error)
}

type variant[T, V any] struct {
	tag    uint16
	name   string
	desc   Descriptor[V]
	wrap   func(V) T
	unwrap func(T) (V, bool)
}

// Variant declares a member of an interface union T implemented by V.
func Variant[T, V any](tag uint16, name string, d Descriptor[V]) UnionVariant[T] {
	var zero V
	if _, ok := any(zero).(T); !ok {
		panic(fmt.Sprintf("binview: variant %s: %T does not implement the union type", name, zero))
	}
	return VariantFunc(tag, name, d,
		func(v V) T { return any(v).(T) },
		func(t T) (V, bool) {
			v, ok := any(t).(V)
			return v, ok
		},
	)
}

// VariantFunc declares a union member with explicit conversions.
func VariantFunc[T, V any](tag uint16, name string, d Descriptor[V], wrap func(V) T, unwrap func(T) (V, bool)) UnionVariant[T] {
	return &variant[T, V]{tag: tag, name: name, desc: d, wrap: wrap, unwrap: unwrap}
}

func (v *variant[T, V]) variantTag() uint16  { return v.tag }
func (v *variant[T, V]) variantName() string { return v.name }

func (v *variant[T, V]) encodeVariant(buf []byte, t T) ([]byte, bool, error) {
	x, ok := v.unwrap(t)
	if !ok {
		return buf, false, nil
	}
	buf, err := v.desc.enc(buf, x)
	return buf, true, err
}

func (v *variant[T, V]) decodeVariant(b []byte) (T, error) {
	x, err := v.desc.Decode(b)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.wrap(x), nil
}

// Unknown converts between a union value and the placeholder used for
// discriminators this build does not know. Unwrap lets a placeholder be
// re-encoded verbatim.
type Unknown[T any] struct {
	Wrap   func(tag uint16, raw []byte) T
	Unwrap func(T) (tag uint16, raw []byte, ok bool)
}

// Union lays T out as a u16 discriminator, a u32 byte length and the
// variant's encoding.
func Union[T any](name string, unknown Unknown[T], variants ...UnionVariant[T]) Descriptor[T] {
	byTag := make(map[uint16]UnionVariant[T], len(variants))
	for _, v := range variants {
		if _, dup := byTag[v.variantTag()]; dup {
			panic(fmt.Sprintf("binview: %s: duplicate variant tag %d", name, v.variantTag()))
		}
		byTag[v.variantTag()] = v
	}

	return Descriptor[T]{
		name: name,
		enc: func(buf []byte, t T) ([]byte, error) {
			if unknown.Unwrap != nil {
				if tag, raw, ok := unknown.Unwrap(t); ok {
					buf = binary.LittleEndian.AppendUint16(buf, tag)
					buf = appendUint(buf, uint64(len(raw)), 4)
					return append(buf, raw...), nil
				}
			}
			for _, v := range variants {
				head := len(buf)
				out := binary.LittleEndian.AppendUint16(buf, v.variantTag())
				out, at := reserve(out)
				out, ok, err := v.encodeVariant(out, t)
				if !ok {
					buf = out[:head]
					continue
				}
				if err != nil {
					return out, fmt.Errorf("%s.%s: %w", name, v.variantName(), err)
				}
				return patchLen(out, at)
			}
			return buf, fmt.Errorf("binview: %s: no variant for %T", name, t)
		},
		dec: func(r *reader) (T, error) {
			var zero T
			tag, err := r.u16()
			if err != nil {
				return zero, err
			}
			size, err := r.u32()
			if err != nil {
				return zero, err
			}
			b, err := r.take(int(size))
			if err != nil {
				return zero, err
			}
			v, ok := byTag[tag]
			if !ok {
				if unknown.Wrap == nil {
					return zero, malformed("%s: unknown variant %d", name, tag)
				}
				return unknown.Wrap(tag, slices.Clone(b)), nil
			}
			t, err := v.decodeVariant(b)
			if err != nil {
				return zero, fmt.Errorf("%s.%s: %w", name, v.variantName(), err)
			}
			return t, nil
		},
	}
}
