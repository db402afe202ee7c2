package binview

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Codec pairs a descriptor with the schema values must satisfy before they
// are encoded. The schema is independent of the layout: it constrains the
// JSON form of the value.
type Codec[T any] struct {
	Desc     Descriptor[T]
	Schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// NewCodec resolves schema once. A nil schema accepts every value.
func NewCodec[T any](d Descriptor[T], schema *jsonschema.Schema) (*Codec[T], error) {
	c := &Codec[T]{Desc: d, Schema: schema}
	if schema != nil {
		rs, err := schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("binview: resolve schema for %s: %w", d.name, err)
		}
		c.resolved = rs
	}
	return c, nil
}

// MustCodec is NewCodec for package-level codecs.
func MustCodec[T any](d Descriptor[T], schema *jsonschema.Schema) *Codec[T] {
	c, err := NewCodec(d, schema)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate checks v against the schema.
func (c *Codec[T]) Validate(v T) error {
	if c.resolved == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := c.resolved.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Encode validates v and returns its encoding. On failure no bytes are
// returned.
func (c *Codec[T]) Encode(v T) ([]byte, error) {
	if err := c.Validate(v); err != nil {
		return nil, err
	}
	buf, err := c.Desc.Append(nil, v)
	if err != nil {
		return nil, fmt.Errorf("binview: encode %s: %w", c.Desc.name, err)
	}
	return buf, nil
}

// Decode materialises a value from buf.
func (c *Codec[T]) Decode(buf []byte) (T, error) {
	return c.Desc.Decode(buf)
}

// Over returns a lazy view of buf.
func (c *Codec[T]) Over(buf []byte) *Lens[T] {
	return Over(c.Desc, buf)
}

// Serialize encodes v as standard base64 text.
func (c *Codec[T]) Serialize(v T) (string, error) {
	buf, err := c.Encode(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Deserialize reverses Serialize. Text that is not base64 is malformed.
func (c *Codec[T]) Deserialize(s string) (T, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c.Decode(buf)
}
