package binview

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// StructField is a field binding accepted by Struct. Build one with Field.
type StructField[T any] interface {
	fieldTag() uint16
	fieldName() string
	setDefault(v *T)
	encodeField(buf []byte, v *T) ([]byte, error)
	decodeField(b []byte, v *T) error
}

// FieldDesc binds the field of T reached through an accessor to a stable
// tag. Keep the value returned by Field to read the field through a Lens.
type FieldDesc[T, F any] struct {
	Tag     uint16
	Name    string
	Default F
	desc    Descriptor[F]
	get     func(*T) *F
	compute func(*T) F
}

// Field declares a struct field. def is used when a buffer does not carry
// the tag, which is how data written before the field existed decodes.
func Field[T, F any](tag uint16, name string, d Descriptor[F], get func(*T) *F, def F) *FieldDesc[T, F] {
	return &FieldDesc[T, F]{Tag: tag, Name: name, Default: def, desc: d, get: get}
}

// Computed declares a field derived from the rest of the value. It is
// written on encode and ignored on a full decode; its purpose is to be
// readable through a Lens without decoding the fields it is derived from.
func Computed[T, F any](tag uint16, name string, d Descriptor[F], compute func(*T) F, def F) *FieldDesc[T, F] {
	return &FieldDesc[T, F]{Tag: tag, Name: name, Default: def, desc: d, compute: compute}
}

func (f *FieldDesc[T, F]) fieldTag() uint16           { return f.Tag }
func (f *FieldDesc[T, F]) fieldName() string          { return f.Name }
func (f *FieldDesc[T, F]) decode(b []byte) (F, error) { return f.desc.Decode(b) }

func (f *FieldDesc[T, F]) setDefault(v *T) {
	if f.get != nil {
		*f.get(v) = f.Default
	}
}

func (f *FieldDesc[T, F]) encodeField(buf []byte, v *T) ([]byte, error) {
	if f.compute != nil {
		return f.desc.enc(buf, f.compute(v))
	}
	return f.desc.enc(buf, *f.get(v))
}

func (f *FieldDesc[T, F]) decodeField(b []byte, v *T) error {
	x, err := f.desc.Decode(b)
	if err != nil {
		return err
	}
	if f.get != nil {
		*f.get(v) = x
	}
	return nil
}

// Struct lays T out as a u16 field count followed by, per field, a u16 tag,
// a u32 byte length and the encoded value. Fields are written in tag order.
func Struct[T any](name string, fields ...StructField[T]) Descriptor[T] {
	byTag := make(map[uint16]StructField[T], len(fields))
	for _, f := range fields {
		if _, dup := byTag[f.fieldTag()]; dup {
			panic(fmt.Sprintf("binview: %s: duplicate tag %d", name, f.fieldTag()))
		}
		byTag[f.fieldTag()] = f
	}
	ordered := slices.Clone(fields)
	slices.SortFunc(ordered, func(a, b StructField[T]) int {
		return int(a.fieldTag()) - int(b.fieldTag())
	})

	return Descriptor[T]{
		name:   name,
		fields: byTag,
		enc: func(buf []byte, v T) ([]byte, error) {
			if len(ordered) > math.MaxUint16 {
				return buf, fmt.Errorf("binview: %s: too many fields", name)
			}
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ordered)))
			for _, f := range ordered {
				buf = binary.LittleEndian.AppendUint16(buf, f.fieldTag())
				var at int
				buf, at = reserve(buf)
				var err error
				if buf, err = f.encodeField(buf, &v); err != nil {
					return buf, fmt.Errorf("%s.%s: %w", name, f.fieldName(), err)
				}
				if buf, err = patchLen(buf, at); err != nil {
					return buf, err
				}
			}
			return buf, nil
		},
		dec: func(r *reader) (T, error) {
			var v T
			for _, f := range ordered {
				f.setDefault(&v)
			}
			err := walkFields(r, func(tag uint16, b []byte) error {
				f, ok := byTag[tag]
				if !ok {
					return nil
				}
				if err := f.decodeField(b, &v); err != nil {
					return fmt.Errorf("%s.%s: %w", name, f.fieldName(), err)
				}
				return nil
			})
			return v, err
		},
	}
}

// walkFields reads a struct header and hands each field's bytes to fn.
func walkFields(r *reader, fn func(tag uint16, b []byte) error) error {
	n, err := r.u16()
	if err != nil {
		return err
	}
	seen := make(map[uint16]bool, n)
	for range n {
		tag, err := r.u16()
		if err != nil {
			return err
		}
		if seen[tag] {
			return malformed("duplicate field tag %d", tag)
		}
		seen[tag] = true
		size, err := r.u32()
		if err != nil {
			return err
		}
		b, err := r.take(int(size))
		if err != nil {
			return err
		}
		if err := fn(tag, b); err != nil {
			return err
		}
	}
	return nil
}
