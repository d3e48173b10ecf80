package mcfs

import (
	"io"
	"sync/atomic"
	"testing"
)

func TestEntry_FullPath(t *testing.T) {
	flat := Entry{Name: "clip-000001.dng"}
	if got := flat.FullPath(); got != "clip-000001.dng" {
		t.Errorf("FullPath = %q", got)
	}

	nested := Entry{PathParts: []string{"a", "b"}, Name: "file.dng"}
	if got := nested.FullPath(); got != "a/b/file.dng" {
		t.Errorf("FullPath = %q", got)
	}
}

func TestEntry_KeyIdentity(t *testing.T) {
	a := Entry{Type: EntryTypeFile, Name: "x.dng", Size: 100}
	b := Entry{Type: EntryTypeFile, Name: "x.dng", Size: 999}

	// Size stays out of the identity.
	if a.Key() != b.Key() {
		t.Error("keys differ for same entry identity")
	}

	dir := Entry{Type: EntryTypeDirectory, Name: "x.dng"}
	if a.Key() == dir.Key() {
		t.Error("type not part of the identity")
	}

	other := Entry{Type: EntryTypeFile, PathParts: []string{"sub"}, Name: "x.dng"}
	if a.Key() == other.Key() {
		t.Error("path parts not part of the identity")
	}
}

func TestEntryData_TaggedSum(t *testing.T) {
	var none EntryData
	if _, ok := none.Timestamp(); ok {
		t.Error("zero data reports a timestamp")
	}
	if _, ok := none.Chunk(); ok {
		t.Error("zero data reports a chunk")
	}

	ts := TimestampData(42)
	if v, ok := ts.Timestamp(); !ok || v != 42 {
		t.Errorf("Timestamp = %d, %v", v, ok)
	}
	if _, ok := ts.Chunk(); ok {
		t.Error("timestamp data reports a chunk")
	}

	chunk := ChunkData(3)
	if v, ok := chunk.Chunk(); !ok || v != 3 {
		t.Errorf("Chunk = %d, %v", v, ok)
	}
}

func TestWorkerPool_RunsTasks(t *testing.T) {
	p := NewWorkerPool(2)
	defer p.Close()

	done := make(chan int, 8)
	for i := 0; i < 8; i++ {
		i := i
		if !p.Submit(func(*HandleCache) { done <- i }) {
			t.Fatal("Submit refused while pool open")
		}
	}

	seen := map[int]bool{}
	for i := 0; i < 8; i++ {
		seen[<-done] = true
	}
	if len(seen) != 8 {
		t.Errorf("ran %d distinct tasks, want 8", len(seen))
	}
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	p := NewWorkerPool(1)
	p.Close()

	if p.Submit(func(*HandleCache) {}) {
		t.Error("Submit accepted after Close")
	}

	// Close is idempotent.
	p.Close()
}

type closeCounter struct{ closed *int32 }

func (c closeCounter) Close() error {
	atomic.AddInt32(c.closed, 1)
	return nil
}

func TestWorkerPool_ClosesHandlesOnExit(t *testing.T) {
	p := NewWorkerPool(1)

	var closed int32
	opened := make(chan struct{})
	p.Submit(func(h *HandleCache) {
		h.Get("src", func() (io.Closer, error) {
			return closeCounter{closed: &closed}, nil
		})
		close(opened)
	})
	<-opened

	p.Close()
	if atomic.LoadInt32(&closed) != 1 {
		t.Errorf("handle closed %d times, want 1 on worker exit", closed)
	}
}

func TestHandleCache_ReusesAndDrops(t *testing.T) {
	h := &HandleCache{handles: map[string]io.Closer{}}

	var closed int32
	opens := 0
	open := func() (io.Closer, error) {
		opens++
		return closeCounter{closed: &closed}, nil
	}

	first, err := h.Get("src", open)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, _ := h.Get("src", open)
	if opens != 1 || first != second {
		t.Errorf("handle not reused: opens=%d", opens)
	}

	h.Drop("src")
	if atomic.LoadInt32(&closed) != 1 {
		t.Errorf("Drop did not close the handle")
	}
	h.Get("src", open)
	if opens != 2 {
		t.Errorf("Get after Drop did not reopen: opens=%d", opens)
	}
}
