package binview

import "fmt"

// Lens reads the fields of an encoded struct on demand. The field index is
// built on the first Read and each field is decoded at most once. A Lens is
// not safe for concurrent use.
type Lens[T any] struct {
	desc  Descriptor[T]
	buf   []byte
	index map[uint16][]byte
	cache map[uint16]any
	err   error
}

// Over returns a lens over buf without decoding anything.
func Over[T any](d Descriptor[T], buf []byte) *Lens[T] {
	return &Lens[T]{desc: d, buf: buf}
}

// Bytes returns the underlying buffer.
func (l *Lens[T]) Bytes() []byte { return l.buf }

// Decode materialises the whole value.
func (l *Lens[T]) Decode() (T, error) { return l.desc.Decode(l.buf) }

func (l *Lens[T]) indexFields() error {
	if l.index != nil || l.err != nil {
		return l.err
	}
	if !l.desc.IsStruct() {
		l.err = fmt.Errorf("binview: lens over %s: not a struct", l.desc.name)
		return l.err
	}
	r := &reader{buf: l.buf}
	index := make(map[uint16][]byte)
	err := walkFields(r, func(tag uint16, b []byte) error {
		index[tag] = b
		return nil
	})
	if err == nil && r.remaining() != 0 {
		err = malformed("%s: %d trailing bytes", l.desc.name, r.remaining())
	}
	if err != nil {
		l.err = err
		return err
	}
	l.index = index
	l.cache = make(map[uint16]any)
	return nil
}

// Read decodes one field through the lens. A field absent from the buffer
// yields its default.
func Read[T, F any](l *Lens[T], f *FieldDesc[T, F]) (F, error) {
	var zero F
	if err := l.indexFields(); err != nil {
		return zero, err
	}
	if sf, ok := l.desc.fields[f.Tag]; !ok || sf != StructField[T](f) {
		return zero, fmt.Errorf("binview: %s has no field %d (%s)", l.desc.name, f.Tag, f.Name)
	}
	if v, ok := l.cache[f.Tag]; ok {
		return v.(F), nil
	}
	b, ok := l.index[f.Tag]
	if !ok {
		return f.Default, nil
	}
	v, err := f.decode(b)
	if err != nil {
		return zero, fmt.Errorf("%s.%s: %w", l.desc.name, f.Name, err)
	}
	l.cache[f.Tag] = v
	return v, nil
}
