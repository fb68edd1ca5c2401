package layout

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/v8scope/v8scope/pkg/logflags"
)

// Source resolves a postmortem constant by name, without the v8dbg_
// prefix. The second return value is false if the constant is not defined.
type Source interface {
	LoadConstant(name string) (int64, bool)
}

// MapSource is a Source backed by a map.
type MapSource map[string]int64

// LoadConstant implements Source.
func (m MapSource) LoadConstant(name string) (int64, bool) {
	v, ok := m[name]
	return v, ok
}

type chainSource []Source

func (c chainSource) LoadConstant(name string) (int64, bool) {
	for _, src := range c {
		if v, ok := src.LoadConstant(name); ok {
			return v, true
		}
	}
	return 0, false
}

// Chain returns a Source that looks up constants in each of srcs in order,
// returning the first definition found.
func Chain(srcs ...Source) Source {
	r := make(chainSource, 0, len(srcs))
	for _, src := range srcs {
		if src != nil {
			r = append(r, src)
		}
	}
	return r
}

// ErrNoConstants is returned when an executable does not export any
// postmortem constant.
var ErrNoConstants = errors.New("no v8dbg_ symbols found, was the executable built with postmortem support?")

// ELFSource holds the postmortem constants read from the symbol table of an
// ELF executable.
type ELFSource struct {
	Path      string
	constants map[string]int64
}

// OpenELF reads every v8dbg_ data symbol of the executable at path.
func OpenELF(path string) (*ELFSource, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, err := readELFConstants(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	src.Path = path
	return src, nil
}

func readELFConstants(f *elf.File) (*ELFSource, error) {
	syms, err := f.Symbols()
	if err != nil {
		return nil, err
	}
	src := &ELFSource{constants: make(map[string]int64)}
	logger := logflags.LayoutLogger()
	for _, sym := range syms {
		if !strings.HasPrefix(sym.Name, ConstantPrefix) {
			continue
		}
		if elf.ST_TYPE(sym.Info) != elf.STT_OBJECT {
			continue
		}
		v, err := readSymbolValue(f, sym)
		if err != nil {
			logger.Debugf("skipping %s: %v", sym.Name, err)
			continue
		}
		src.constants[strings.TrimPrefix(sym.Name, ConstantPrefix)] = v
	}
	if len(src.constants) == 0 {
		return nil, ErrNoConstants
	}
	logger.Debugf("loaded %d constants", len(src.constants))
	return src, nil
}

func readSymbolValue(f *elf.File, sym elf.Symbol) (int64, error) {
	if sym.Section == elf.SHN_UNDEF || sym.Section >= elf.SHN_LORESERVE {
		return 0, fmt.Errorf("symbol not in a section")
	}
	if int(sym.Section) >= len(f.Sections) {
		return 0, fmt.Errorf("bad section index %d", sym.Section)
	}
	sect := f.Sections[sym.Section]
	if sect.Type == elf.SHT_NOBITS {
		// zero initialized
		return 0, nil
	}
	if sym.Value < sect.Addr || sym.Value+sym.Size > sect.Addr+sect.Size {
		return 0, fmt.Errorf("symbol outside of section %s", sect.Name)
	}
	buf := make([]byte, sym.Size)
	if _, err := sect.ReadAt(buf, int64(sym.Value-sect.Addr)); err != nil {
		return 0, err
	}
	return decodeInt(f.ByteOrder, buf)
}

func decodeInt(order binary.ByteOrder, buf []byte) (int64, error) {
	switch len(buf) {
	case 1:
		return int64(int8(buf[0])), nil
	case 2:
		return int64(int16(order.Uint16(buf))), nil
	case 4:
		return int64(int32(order.Uint32(buf))), nil
	case 8:
		return int64(order.Uint64(buf)), nil
	default:
		return 0, fmt.Errorf("unsupported symbol size %d", len(buf))
	}
}

// LoadConstant implements Source.
func (s *ELFSource) LoadConstant(name string) (int64, bool) {
	v, ok := s.constants[name]
	return v, ok
}

// Len returns the number of constants found in the executable.
func (s *ELFSource) Len() int {
	return len(s.constants)
}
