package recstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/eventlog"
	"github.com/hazyhaar/repro/recording"
	"github.com/hazyhaar/repro/vdom"
)

const (
	idA = "0190c3a4-7b2e-7c1d-9a3f-2b4c5d6e7f80"
	idB = "0190c3a4-7b2e-7c1d-9a3f-2b4c5d6e7f81"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	var tick int64
	s, err := Open(":memory:", WithClock(func() time.Time {
		tick++
		return time.UnixMilli(1700000000000 + tick)
	}))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(t *testing.T, id string, duration uint32) *recording.Recording {
	t.Helper()
	tree := vdom.NewTree(&vdom.Document{ID: "doc"})
	l := eventlog.New(event.Codec)
	if err := l.Append(event.New(0, event.Snapshot{DOM: &tree}), event.New(duration, event.CloseRecording{})); err != nil {
		t.Fatal(err)
	}
	r, err := recording.New(id, l)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestPutGet(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	if err := s.Put(ctx, rec(t, idA, 900)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, idA)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID() != idA || got.Duration() != 900 || got.Len() != 2 {
		t.Fatalf("got %s %d %d", got.ID(), got.Duration(), got.Len())
	}
	if _, err := s.Get(ctx, idB); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id: %v", err)
	}
}

func TestPut_Replaces(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	if err := s.Put(ctx, rec(t, idA, 100)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, rec(t, idA, 200)); err != nil {
		t.Fatal(err)
	}
	list, err := s.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].DurationMS != 200 {
		t.Fatalf("list = %+v", list)
	}
}

func TestList_NewestFirst(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	for _, id := range []string{idA, idB} {
		if err := s.Put(ctx, rec(t, id, 10)); err != nil {
			t.Fatal(err)
		}
	}
	list, err := s.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != idB || list[1].ID != idA {
		t.Fatalf("list = %+v", list)
	}
	if list[0].Events != 2 || list[0].CodecVersion != event.CodecVersion || list[0].SizeBytes == 0 {
		t.Fatalf("summary = %+v", list[0])
	}

	list, err = s.List(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("limit 1 returned %d", len(list))
	}
}

func TestDelete(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	if err := s.Put(ctx, rec(t, idA, 10)); err != nil {
		t.Fatal(err)
	}
	if err := s.Persist(ctx, idA, [][]byte{{1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, idA); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, idA); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	ev, err := s.Evicted(ctx, idA)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Len() != 0 {
		t.Fatalf("evicted entries survived delete: %d", ev.Len())
	}
}

func TestPersist_AppendsInOrder(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	first, err := event.Codec.Encode(event.New(1, event.CloseRecording{}))
	if err != nil {
		t.Fatal(err)
	}
	second, err := event.Codec.Encode(event.New(2, event.CloseRecording{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Persist(ctx, idA, [][]byte{first}); err != nil {
		t.Fatal(err)
	}
	if err := s.Persist(ctx, idA, [][]byte{second}); err != nil {
		t.Fatal(err)
	}

	l, err := s.Evicted(ctx, idA)
	if err != nil {
		t.Fatal(err)
	}
	evs, err := l.Values()
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].Time != 1 || evs[1].Time != 2 {
		t.Fatalf("evicted = %+v", evs)
	}
}
