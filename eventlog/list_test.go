package eventlog

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/hazyhaar/repro/binview"
)

var codec = binview.MustCodec(binview.Uint32(), nil)

func list(t *testing.T, values ...uint32) *List[uint32] {
	t.Helper()
	l := New(codec)
	if err := l.Append(values...); err != nil {
		t.Fatal(err)
	}
	return l
}

func values(t *testing.T, l *List[uint32]) []uint32 {
	t.Helper()
	out, err := l.Values()
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestAppendPrepend(t *testing.T) {
	l := list(t, 2, 3)
	if err := l.Prepend(0, 1); err != nil {
		t.Fatal(err)
	}
	if got := values(t, l); !slices.Equal(got, []uint32{0, 1, 2, 3}) {
		t.Fatalf("got %v", got)
	}
	if l.Len() != 4 || l.Size() != 16 {
		t.Fatalf("len=%d size=%d", l.Len(), l.Size())
	}
}

func TestSlice_SharesBuffers(t *testing.T) {
	l := list(t, 10, 11, 12, 13)
	s := l.Slice(1, 3)
	if got := values(t, s); !slices.Equal(got, []uint32{11, 12}) {
		t.Fatalf("got %v", got)
	}
	if &s.At(0)[0] != &l.At(1)[0] {
		t.Fatal("slice copied the entry instead of sharing it")
	}
	if s.Size() != 8 {
		t.Fatalf("size %d", s.Size())
	}

	// Appending to the slice must not clobber the parent.
	if err := s.Append(99); err != nil {
		t.Fatal(err)
	}
	if got := values(t, l); !slices.Equal(got, []uint32{10, 11, 12, 13}) {
		t.Fatalf("parent changed: %v", got)
	}
}

func TestSlice_Clamps(t *testing.T) {
	l := list(t, 1, 2)
	if got := l.Slice(-5, 99).Len(); got != 2 {
		t.Fatalf("len %d", got)
	}
	if got := l.Slice(3, 1).Len(); got != 0 {
		t.Fatalf("len %d", got)
	}
}

func TestAll_StopsOnCorruptEntry(t *testing.T) {
	l := list(t, 1)
	l.AppendRaw([]byte{1, 2}) // truncated uint32
	if err := l.Append(3); err != nil {
		t.Fatal(err)
	}

	var seen []uint32
	for _, v := range l.All() {
		seen = append(seen, v)
	}
	if !slices.Equal(seen, []uint32{1}) {
		t.Fatalf("seen %v", seen)
	}
	if !errors.Is(l.Err(), binview.ErrMalformed) {
		t.Fatalf("Err: %v", l.Err())
	}
}

func TestDecode_OutOfRange(t *testing.T) {
	if _, err := list(t, 1).Decode(1); err == nil {
		t.Fatal("expected error")
	}
	if _, err := list(t).Over(0); err == nil {
		t.Fatal("expected error")
	}
}

func TestContainer_RoundTrip(t *testing.T) {
	l := list(t, 5, 6, 7)
	l.AppendRaw([]byte{}) // empty entries are legal in the container
	raw, err := l.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	// count, three 4-byte entries with their lengths, one empty entry
	if len(raw) != 4+3*(4+4)+4 {
		t.Fatalf("container size %d", len(raw))
	}
	got, err := Unmarshal(codec, raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 4 || !bytes.Equal(got.At(2), l.At(2)) || len(got.At(3)) != 0 {
		t.Fatalf("entries differ")
	}
}

func TestContainer_Malformed(t *testing.T) {
	raw, err := list(t, 5, 6).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < len(raw); n++ {
		if _, err := UnmarshalEntries(raw[:n]); !errors.Is(err, binview.ErrMalformed) {
			t.Fatalf("prefix %d: got %v", n, err)
		}
	}
	if _, err := UnmarshalEntries(append(raw, 0)); !errors.Is(err, binview.ErrMalformed) {
		t.Fatalf("trailing: got %v", err)
	}
	huge := []byte{0xff, 0xff, 0xff, 0xff}
	if _, err := UnmarshalEntries(huge); !errors.Is(err, binview.ErrMalformed) {
		t.Fatalf("huge count: got %v", err)
	}
}

func TestWriteRead_Gzip(t *testing.T) {
	l := list(t, 1, 2, 3)
	var buf bytes.Buffer
	if err := Write(&buf, l); err != nil {
		t.Fatal(err)
	}
	if buf.Bytes()[0] != 0x1f || buf.Bytes()[1] != 0x8b {
		t.Fatal("output is not gzip")
	}
	got, err := Read(&buf, codec)
	if err != nil {
		t.Fatal(err)
	}
	if v := values(t, got); !slices.Equal(v, []uint32{1, 2, 3}) {
		t.Fatalf("got %v", v)
	}

	if _, err := Read(bytes.NewReader([]byte("plain")), codec); !errors.Is(err, binview.ErrMalformed) {
		t.Fatalf("not gzip: got %v", err)
	}
}
