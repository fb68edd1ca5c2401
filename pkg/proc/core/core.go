// Package core reads the memory image and thread state of a paused process
// from an ELF core file.
package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/v8scope/v8scope/pkg/proc"
)

// A splicedMemory represents a memory space formed from multiple regions,
// each of which may override previously regions. For example, in the following
// core, the program text was loaded at 0x400000:
//
//	Start               End                 Page Offset
//	0x0000000000400000  0x000000000044f000  0x0000000000000000
//
// but then it's partially overwritten with an RW mapping whose data is stored
// in the core file:
//
//	Type           Offset             VirtAddr           PhysAddr
//	               FileSiz            MemSiz              Flags  Align
//	LOAD           0x0000000000004000 0x000000000049a000 0x0000000000000000
//	               0x0000000000002000 0x0000000000002000  RW     1000
//
// This can be represented in a splicedMemory by adding the original region,
// then putting the RW mapping on top of it.
type splicedMemory struct {
	readers []readerEntry
}

type readerEntry struct {
	offset uint64
	length uint64
	reader proc.MemoryReader
}

// Add adds a new region to the splicedMemory, which may override existing regions.
func (r *splicedMemory) Add(reader proc.MemoryReader, off, length uint64) {
	if length == 0 {
		return
	}
	end := off + length - 1
	newReaders := make([]readerEntry, 0, len(r.readers))
	add := func(e readerEntry) {
		if e.length == 0 {
			return
		}
		newReaders = append(newReaders, e)
	}
	inserted := false
	// Walk through the list of regions, fixing up any that overlap and inserting the new one.
	for _, entry := range r.readers {
		entryEnd := entry.offset + entry.length - 1
		switch {
		case entryEnd < off:
			// Entry is completely before the new region.
			add(entry)
		case end < entry.offset:
			// Entry is completely after the new region.
			if !inserted {
				add(readerEntry{off, length, reader})
				inserted = true
			}
			add(entry)
		case off <= entry.offset && entryEnd <= end:
			// Entry is completely overwritten by the new region. Drop.
		case entry.offset < off && entryEnd <= end:
			// New region overwrites the end of the entry.
			entry.length = off - entry.offset
			add(entry)
		case off <= entry.offset && end < entryEnd:
			// New reader overwrites the beginning of the entry.
			if !inserted {
				add(readerEntry{off, length, reader})
				inserted = true
			}
			overlap := end + 1 - entry.offset
			entry.offset += overlap
			entry.length -= overlap
			add(entry)
		case entry.offset < off && end < entryEnd:
			// New region punches a hole in the entry. Split it in two and put the new region in the middle.
			add(readerEntry{entry.offset, off - entry.offset, entry.reader})
			add(readerEntry{off, length, reader})
			add(readerEntry{end + 1, entryEnd - end, entry.reader})
			inserted = true
		default:
			panic(fmt.Sprintf("Unhandled case: existing entry is %v len %v, new is %v len %v", entry.offset, entry.length, off, length))
		}
	}
	if !inserted {
		newReaders = append(newReaders, readerEntry{off, length, reader})
	}
	r.readers = newReaders
}

// ReadMemory implements proc.MemoryReader.
func (r *splicedMemory) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	for _, entry := range r.readers {
		if len(buf) == 0 {
			break
		}
		if entry.offset+entry.length <= addr {
			continue
		}
		if entry.offset > addr {
			// gap between regions
			break
		}
		pb := buf
		if addr+uint64(len(buf)) > entry.offset+entry.length {
			pb = pb[:entry.offset+entry.length-addr]
		}
		pn, err := entry.reader.ReadMemory(pb, addr)
		n += pn
		if err != nil && !(err == io.EOF && pn == len(pb)) {
			return n, fmt.Errorf("error while reading spliced memory at %#x: %v", addr, err)
		}
		if pn != len(pb) {
			return n, nil
		}
		buf = buf[pn:]
		addr += uint64(pn)
	}
	if n == 0 {
		return 0, fmt.Errorf("address %#x did not match any regions", addr)
	}
	return n, nil
}

// offsetReaderAt wraps a ReaderAt into a MemoryReader, subtracting a fixed
// offset from the address. This is useful to represent a mapping in an address
// space. For example, if program text is mapped in at 0x400000, an
// offsetReaderAt with offset 0x400000 can be wrapped around file.Open(program)
// to return the results of a read in that part of the address space.
type offsetReaderAt struct {
	reader io.ReaderAt
	offset uint64
}

// ReadMemory will read the memory at addr-offset.
func (r *offsetReaderAt) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	return r.reader.ReadAt(buf, int64(addr-r.offset))
}

var (
	// ErrUnrecognizedFormat is returned when the core file is not recognized as
	// any of the supported formats.
	ErrUnrecognizedFormat = errors.New("unrecognized core format")

	// ErrNoThreads is returned for core files without NT_PRSTATUS notes.
	ErrNoThreads = errors.New("core file contains no threads")
)

// process represents a core file.
type process struct {
	mem     proc.MemoryReader
	threads []proc.Thread
	current proc.Thread
	pid     int
	closers []io.Closer
}

var _ proc.Process = &process{}

// Open reads the core file at corePath produced by the executable at
// exePath. Mappings of the executable that the kernel did not dump are
// served from exePath.
func Open(exePath, corePath string) (proc.Process, error) {
	return readLinuxCore(corePath, exePath)
}

// ReadMemory implements proc.MemoryReader.
func (p *process) ReadMemory(buf []byte, addr uint64) (int, error) {
	return p.mem.ReadMemory(buf, addr)
}

// Pid returns the process ID of this process.
func (p *process) Pid() int {
	return p.pid
}

// ThreadList returns the threads found in the core file.
func (p *process) ThreadList() []proc.Thread {
	r := make([]proc.Thread, len(p.threads))
	copy(r, p.threads)
	return r
}

// CurrentThread returns the thread that received the fatal signal, that is
// the first NT_PRSTATUS note.
func (p *process) CurrentThread() proc.Thread {
	return p.current
}

// Close closes the core file and the executable.
func (p *process) Close() error {
	var err error
	for _, c := range p.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	p.closers = nil
	return err
}
