// Package proc provides access to the address space of the inspected
// process. Implementations of MemoryReader live in the core (core dumps)
// and native (stopped live processes) subpackages; Memory layers word
// decoding and a page cache on top of them.
package proc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/v8scope/v8scope/pkg/logflags"
)

// MemoryReader is like io.ReaderAt, but the offset is a uint64 so that it
// can address all of 64-bit memory.
type MemoryReader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// ErrShortRead is returned when fewer bytes than requested could be read.
var ErrShortRead = errors.New("short read")

// ReadError is returned by Memory when the target memory could not be read.
type ReadError struct {
	Addr uint64
	Size int
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("could not read %d bytes at %#x: %v", e.Size, e.Addr, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Memory reads bytes and pointer sized words from a MemoryReader.
// Words are little endian.
type Memory struct {
	mem     MemoryReader
	ptrSize int
	cache   *pageCache
}

// NewMemory returns a Memory reading from mem. Words are ptrSize bytes
// long. If cachePages is greater than zero up to cachePages pages of target
// memory are kept in a LRU cache.
func NewMemory(mem MemoryReader, ptrSize int, cachePages int) *Memory {
	if ptrSize != 4 {
		ptrSize = 8
	}
	m := &Memory{mem: mem, ptrSize: ptrSize}
	if cachePages > 0 {
		m.cache = newPageCache(mem, cachePages)
	}
	return m
}

// PtrSize returns the size of a word.
func (m *Memory) PtrSize() int {
	return m.ptrSize
}

// ReadMemory implements MemoryReader.
func (m *Memory) ReadMemory(buf []byte, addr uint64) (int, error) {
	if m.cache != nil {
		return m.cache.ReadMemory(buf, addr)
	}
	return m.mem.ReadMemory(buf, addr)
}

func (m *Memory) read(buf []byte, addr uint64) error {
	n, err := m.ReadMemory(buf, addr)
	if err == nil && n != len(buf) {
		err = ErrShortRead
	}
	if err != nil {
		if logflags.Memory() {
			logflags.MemoryLogger().Debugf("read of %d bytes at %#x failed: %v", len(buf), addr, err)
		}
		return &ReadError{Addr: addr, Size: len(buf), Err: err}
	}
	return nil
}

// readChunk is the largest read ReadBytes issues at once. Larger reads
// grow the result chunk by chunk so that a bogus size fails at the first
// unmapped chunk instead of allocating all of it.
const readChunk = 1 << 20

// ReadBytes reads size bytes starting at addr.
func (m *Memory) ReadBytes(addr int64, size int64) ([]byte, error) {
	if size < 0 {
		return nil, &ReadError{Addr: uint64(addr), Size: int(size), Err: errors.New("negative size")}
	}
	if size <= readChunk {
		buf := make([]byte, size)
		if size == 0 {
			return buf, nil
		}
		if err := m.read(buf, uint64(addr)); err != nil {
			return nil, err
		}
		return buf, nil
	}
	buf := make([]byte, 0, readChunk)
	chunk := make([]byte, readChunk)
	for off := int64(0); off < size; off += readChunk {
		n := size - off
		if n > readChunk {
			n = readChunk
		}
		if err := m.read(chunk[:n], uint64(addr+off)); err != nil {
			return nil, err
		}
		buf = append(buf, chunk[:n]...)
	}
	return buf, nil
}

// ReadWord reads a pointer sized word at addr.
func (m *Memory) ReadWord(addr int64) (int64, error) {
	buf := make([]byte, m.ptrSize)
	if err := m.read(buf, uint64(addr)); err != nil {
		return 0, err
	}
	if m.ptrSize == 4 {
		return int64(int32(binary.LittleEndian.Uint32(buf))), nil
	}
	return int64(binary.LittleEndian.Uint64(buf)), nil
}

// ReadUint64 reads a 64bit little endian value at addr regardless of the
// word size.
func (m *Memory) ReadUint64(addr uint64) (uint64, error) {
	var buf [8]byte
	if err := m.read(buf[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
