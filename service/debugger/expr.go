package debugger

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseWord parses a hexadecimal (0x prefixed) or decimal word. Values
// above the int64 range are accepted and wrap, so that tagged pointers in
// the upper half of the address space can be written as printed.
func ParseWord(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var (
		u   uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		u, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		u, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if neg {
		return -int64(u), nil
	}
	return int64(u), nil
}

// EvalValue evaluates a value expression: a tagged word written as a
// number, or "*ADDR" for the word stored at ADDR.
func (d *Debugger) EvalValue(expr string) (int64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, fmt.Errorf("empty expression")
	}
	if !strings.HasPrefix(expr, "*") {
		return ParseWord(expr)
	}
	addr, err := d.EvalValue(expr[1:])
	if err != nil {
		return 0, err
	}
	return d.ReadWord(uint64(addr))
}
