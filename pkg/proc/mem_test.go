package proc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"runtime"
	"testing"
)

// sliceMemory maps data at base and counts the reads that reach it.
type sliceMemory struct {
	base  uint64
	data  []byte
	reads int
}

func (m *sliceMemory) ReadMemory(buf []byte, addr uint64) (int, error) {
	m.reads++
	if addr < m.base || addr >= m.base+uint64(len(m.data)) {
		return 0, errors.New("unmapped")
	}
	return copy(buf, m.data[addr-m.base:]), nil
}

func newSliceMemory(base uint64, size int) *sliceMemory {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return &sliceMemory{base: base, data: data}
}

func TestReadWord(t *testing.T) {
	sm := newSliceMemory(0x1000, 64)
	binary.LittleEndian.PutUint64(sm.data[8:], 0xfffffffffffffffe)
	mem := NewMemory(sm, 8, 0)
	w, err := mem.ReadWord(0x1008)
	if err != nil {
		t.Fatal(err)
	}
	if w != -2 {
		t.Fatalf("ReadWord = %d, want -2", w)
	}

	mem4 := NewMemory(sm, 4, 0)
	w, err = mem4.ReadWord(0x1008)
	if err != nil {
		t.Fatal(err)
	}
	if w != -2 {
		t.Fatalf("ReadWord (4 byte words) = %d, want -2", w)
	}
}

func TestReadErrors(t *testing.T) {
	sm := newSliceMemory(0x1000, 16)
	mem := NewMemory(sm, 8, 0)

	_, err := mem.ReadWord(0x2000)
	var rerr *ReadError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *ReadError, got %v", err)
	}
	if rerr.Addr != 0x2000 || rerr.Size != 8 {
		t.Fatalf("unexpected error fields %#x %d", rerr.Addr, rerr.Size)
	}

	// straddles the end of the mapping
	_, err = mem.ReadWord(0x100c)
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("expected short read, got %v", err)
	}

	b, err := mem.ReadBytes(0x1000, 0)
	if err != nil || len(b) != 0 {
		t.Fatalf("empty read = %v, %v", b, err)
	}
	if _, err := mem.ReadBytes(0x1000, -1); err == nil {
		t.Fatal("negative size read succeeded")
	}
}

func TestPageCache(t *testing.T) {
	sm := newSliceMemory(0x10000, 3*pageSize)
	mem := NewMemory(sm, 8, 4)

	got, err := mem.ReadBytes(0x10000+pageSize-4, 8)
	if err != nil {
		t.Fatal(err)
	}
	want := sm.data[pageSize-4 : pageSize+4]
	if !bytes.Equal(got, want) {
		t.Fatalf("cross page read = %v, want %v", got, want)
	}
	if mem.cache.Len() != 2 {
		t.Fatalf("cached pages = %d, want 2", mem.cache.Len())
	}

	reads := sm.reads
	if _, err := mem.ReadWord(0x10000 + 16); err != nil {
		t.Fatal(err)
	}
	if sm.reads != reads {
		t.Fatalf("cached read reached the reader")
	}
}

func TestPageCachePartialPage(t *testing.T) {
	// the mapping ends in the middle of a page
	sm := newSliceMemory(0x10000, pageSize+100)
	mem := NewMemory(sm, 8, 4)

	got, err := mem.ReadBytes(0x10000+pageSize+8, 16)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, sm.data[pageSize+8:pageSize+24]) {
		t.Fatalf("partial page read = %v", got)
	}
	if mem.cache.Len() != 0 {
		t.Fatalf("partial page was cached")
	}
}

func TestSortThreads(t *testing.T) {
	threads := []Thread{{ID: 30}, {ID: 10, FP: 0x100}, {ID: 20}}
	SortThreads(threads)
	for i, id := range []int{10, 20, 30} {
		if threads[i].ID != id {
			t.Fatalf("threads[%d] = %d, want %d", i, threads[i].ID, id)
		}
	}
}

func TestReadBytesLarge(t *testing.T) {
	size := 3*readChunk + 5
	sm := newSliceMemory(0x10000, size)
	mem := NewMemory(sm, 8, 0)
	b, err := mem.ReadBytes(0x10000, int64(size))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, sm.data) {
		t.Fatalf("chunked read returned different bytes")
	}

	// a bogus size fails at the first unmapped chunk
	small := newSliceMemory(0x1000, 64)
	mem = NewMemory(small, 8, 0)
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err = mem.ReadBytes(0x1000, 1<<30)
	runtime.ReadMemStats(&after)
	var rerr *ReadError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *ReadError, got %v", err)
	}
	if grown := after.TotalAlloc - before.TotalAlloc; grown > 8*readChunk {
		t.Errorf("failed read allocated %d bytes", grown)
	}
}
