// Package v8 decodes the heap of a paused V8 process.
//
// Every decode starts from a tagged word: either a small integer (Smi)
// stored inline or a tagged pointer to a heap object whose first field
// is its Map. The Map carries the instance type that selects how the rest
// of the object is read. All offsets, tags and type ids come from the
// postmortem constant table loaded by package layout.
//
// The views in this package (HeapObject, Map, String, JSFunction, ...)
// are plain (heap, address) pairs; every field is read from target memory
// when it is accessed and nothing is cached.
package v8

import (
	"github.com/v8scope/v8scope/pkg/layout"
	"github.com/v8scope/v8scope/pkg/logflags"
)

// Memory is the target memory the heap is decoded from. It is implemented
// by *proc.Memory.
type Memory interface {
	ReadWord(addr int64) (int64, error)
	ReadBytes(addr, size int64) ([]byte, error)
}

// Options bounds the work done while decoding untrusted memory.
type Options struct {
	// MaxStringLen is the number of characters Inspect prints before
	// truncating a string with "...".
	MaxStringLen int
	// MaxStringDepth bounds the cons and sliced string nesting.
	MaxStringDepth int
	// MaxStringBytes bounds the size of a single sequential string read.
	MaxStringBytes int64
	// MaxConstructorHops bounds the map back pointer chain.
	MaxConstructorHops int
}

// DefaultOptions returns the default decoding bounds.
func DefaultOptions() Options {
	return Options{
		MaxStringLen:       16,
		MaxStringDepth:     64,
		MaxStringBytes:     16 << 20,
		MaxConstructorHops: 32,
	}
}

// maxArguments is the largest formal parameter count printed for a frame.
const maxArguments = 65535

// Heap decodes values of one paused process. It holds no mutable state
// and can be used from multiple goroutines if mem can.
type Heap struct {
	lo   *layout.Layout
	mem  Memory
	opts Options
	log  logflags.Logger
}

// New returns a Heap reading from mem using the constants in lo. Zero
// fields of opts are replaced with their default.
func New(lo *layout.Layout, mem Memory, opts Options) *Heap {
	def := DefaultOptions()
	if opts.MaxStringLen <= 0 {
		opts.MaxStringLen = def.MaxStringLen
	}
	if opts.MaxStringDepth <= 0 {
		opts.MaxStringDepth = def.MaxStringDepth
	}
	if opts.MaxStringBytes <= 0 {
		opts.MaxStringBytes = def.MaxStringBytes
	}
	if opts.MaxConstructorHops <= 0 {
		opts.MaxConstructorHops = def.MaxConstructorHops
	}
	return &Heap{lo: lo, mem: mem, opts: opts, log: logflags.InspectLogger()}
}

// Layout returns the constant table used by h.
func (h *Heap) Layout() *layout.Layout {
	return h.lo
}

// Options returns the decoding bounds used by h.
func (h *Heap) Options() Options {
	return h.opts
}

func (h *Heap) loadWord(addr int64) (int64, error) {
	w, err := h.mem.ReadWord(addr)
	if err != nil {
		return 0, readFailure(addr, err)
	}
	return w, nil
}

func (h *Heap) loadBytes(addr, size int64) ([]byte, error) {
	b, err := h.mem.ReadBytes(addr, size)
	if err != nil {
		return nil, readFailure(addr, err)
	}
	return b, nil
}

// ReadWord reads the word at addr, read failures are reported as
// *DecodeError of kind ReadFailure.
func (h *Heap) ReadWord(addr int64) (int64, error) {
	return h.loadWord(addr)
}
