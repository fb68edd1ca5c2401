package layout

import (
	"encoding/binary"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	src := MapSource{
		"PointerSizeLog2":                   3,
		"SmiTag":                            0,
		"SmiTagMask":                        1,
		"SmiShiftSize":                      31,
		"HeapObjectTag":                     1,
		"HeapObjectTagMask":                 3,
		"class_HeapObject__map__Map":        0,
		"class_JSArray__length__Object":     24,
		"frametype_EntryFrame":              1,
		"type_JSFunction__JS_FUNCTION_TYPE": 0xbf,
		"class_String__length__SMI":         16,
		"class_Oddball__kind_offset__int":   40,
		"FirstNonstringType":                0x80,
	}
	lo := Load(src)

	if lo.PointerSize != 8 {
		t.Errorf("pointer size: got %d, want 8", lo.PointerSize)
	}
	if lo.Smi.TagSize != 1 || lo.Smi.ShiftSize != 31 || lo.Smi.TagMask != 1 {
		t.Errorf("unexpected smi layout %#v", lo.Smi)
	}
	if lo.HeapObject.Tag != 1 || lo.HeapObject.TagMask != 3 {
		t.Errorf("unexpected heap object layout %#v", lo.HeapObject)
	}
	if lo.JSArray.LengthOffset != 24 || lo.String.LengthOffset != 16 || lo.Oddball.KindOffset != 40 {
		t.Errorf("offsets not loaded")
	}
	if lo.Frame.EntryFrame != 1 || lo.Types.JSFunctionType != 0xbf || lo.Types.FirstNonstringType != 0x80 {
		t.Errorf("enum values not loaded")
	}
	if lo.SharedInfo.StartPositionShift != StartPositionShift {
		t.Errorf("start position shift: got %d", lo.SharedInfo.StartPositionShift)
	}

	if v, ok := lo.Constant("SmiShiftSize"); !ok || v != 31 {
		t.Errorf("Constant(SmiShiftSize) = %d, %v", v, ok)
	}
	if _, ok := lo.Constant("OddballTrue"); ok {
		t.Errorf("OddballTrue should not be defined")
	}

	missing := strings.Join(lo.Missing(), " ")
	if !strings.Contains(missing, "OddballTrue") || strings.Contains(missing, "SmiTag ") {
		t.Errorf("unexpected missing list %q", missing)
	}

	table := lo.Table()
	if len(table) != len(src) {
		t.Fatalf("table has %d entries, want %d", len(table), len(src))
	}
	for i := 1; i < len(table); i++ {
		if table[i-1].Name >= table[i].Name {
			t.Fatalf("table not sorted at %d: %q %q", i, table[i-1].Name, table[i].Name)
		}
	}
}

func TestLoadDefaultsPointerSize(t *testing.T) {
	lo := Load(MapSource{})
	if lo.PointerSize != DefaultPointerSize {
		t.Errorf("pointer size: got %d, want %d", lo.PointerSize, DefaultPointerSize)
	}
	if lo.Smi.TagSize != 0 {
		t.Errorf("tag size of an empty mask: got %d", lo.Smi.TagSize)
	}
}

func TestChain(t *testing.T) {
	src := Chain(MapSource{"SmiTag": 0, "SmiShiftSize": 31}, nil, MapSource{"SmiShiftSize": 0, "HeapObjectTag": 1})
	if v, ok := src.LoadConstant("SmiShiftSize"); !ok || v != 31 {
		t.Errorf("first source should win: %d %v", v, ok)
	}
	if v, ok := src.LoadConstant("HeapObjectTag"); !ok || v != 1 {
		t.Errorf("fallback source not consulted: %d %v", v, ok)
	}
	if _, ok := src.LoadConstant("Missing"); ok {
		t.Errorf("undefined constant found")
	}
}

func TestDecodeInt(t *testing.T) {
	tests := []struct {
		buf  []byte
		want int64
	}{
		{[]byte{0xff}, -1},
		{[]byte{0x10, 0x00}, 16},
		{[]byte{0xfe, 0xff, 0xff, 0xff}, -2},
		{[]byte{0x18, 0, 0, 0}, 24},
		{[]byte{0x01, 0, 0, 0, 0, 0, 0, 0x80}, -0x7fffffffffffffff},
	}
	for _, tc := range tests {
		got, err := decodeInt(binary.LittleEndian, tc.buf)
		if err != nil {
			t.Fatalf("decodeInt(%x): %v", tc.buf, err)
		}
		if got != tc.want {
			t.Errorf("decodeInt(%x) = %d, want %d", tc.buf, got, tc.want)
		}
	}
	if _, err := decodeInt(binary.LittleEndian, []byte{1, 2, 3}); err == nil {
		t.Errorf("expected error for 3 byte symbol")
	}
}
