package v8test

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/v8scope/v8scope/pkg/layout"
	"github.com/v8scope/v8scope/pkg/proc"
)

// Base is the address of the first object allocated by a Heap.
const Base = 0x100000

// Instance types of objects v8scope never renders.
const (
	scriptType     = 144
	sharedInfoType = 145
)

// Heap is an in-memory V8 heap. The object constructors return tagged
// words.
type Heap struct {
	Layout *layout.Layout

	data     []byte
	metaMap  int64
	maps     map[int64]int64
	oddballs map[int64]int64
}

// New returns an empty heap using Constants.
func New() *Heap {
	return NewWithLayout(layout.Load(Constants()))
}

// NewWithLayout returns an empty heap using lo, which must describe a
// 64bit V8.
func NewWithLayout(lo *layout.Layout) *Heap {
	h := &Heap{Layout: lo, maps: map[int64]int64{}, oddballs: map[int64]int64{}}
	addr := h.Alloc(80)
	h.metaMap = h.Tag(addr)
	h.PutWord(addr+lo.HeapObject.MapOffset, h.metaMap)
	h.PutWord(addr+lo.Map.InstanceAttrsOffset, lo.Types.MapType)
	h.PutWord(addr+lo.Map.MaybeConstructorOffset, h.Smi(0))
	return h
}

// ReadMemory implements proc.MemoryReader.
func (h *Heap) ReadMemory(buf []byte, addr uint64) (int, error) {
	if addr < Base || addr >= Base+uint64(len(h.data)) {
		return 0, fmt.Errorf("address %#x not mapped", addr)
	}
	return copy(buf, h.data[addr-Base:]), nil
}

// Memory returns a proc.Memory reading from h.
func (h *Heap) Memory() *proc.Memory {
	return proc.NewMemory(h, int(h.Layout.PointerSize), 0)
}

// End returns the first address past the last allocation.
func (h *Heap) End() int64 {
	return Base + int64(len(h.data))
}

// Alloc allocates size bytes of zeroed memory aligned to 8 bytes.
func (h *Heap) Alloc(size int64) int64 {
	addr := h.End()
	size = (size + 7) &^ 7
	h.data = append(h.data, make([]byte, size)...)
	return addr
}

// PutWord stores a word at addr.
func (h *Heap) PutWord(addr, v int64) {
	binary.LittleEndian.PutUint64(h.data[addr-Base:], uint64(v))
}

// PutBytes stores b at addr.
func (h *Heap) PutBytes(addr int64, b []byte) {
	copy(h.data[addr-Base:], b)
}

// Word returns the word stored at addr.
func (h *Heap) Word(addr int64) int64 {
	return int64(binary.LittleEndian.Uint64(h.data[addr-Base:]))
}

// Smi returns the tagged word of the small integer v.
func (h *Heap) Smi(v int64) int64 {
	lo := h.Layout
	return v<<uint(lo.Smi.TagSize+lo.Smi.ShiftSize) | lo.Smi.Tag
}

// Tag returns the tagged pointer to addr.
func (h *Heap) Tag(addr int64) int64 {
	return addr + h.Layout.HeapObject.Tag
}

// Addr returns the address of the tagged pointer obj.
func (h *Heap) Addr(obj int64) int64 {
	return obj - h.Layout.HeapObject.Tag
}

// NewMap allocates a map for objects of instance type typ whose
// constructor or back pointer field is ctor.
func (h *Heap) NewMap(typ, ctor int64) int64 {
	lo := h.Layout
	addr := h.Alloc(80)
	h.PutWord(addr+lo.HeapObject.MapOffset, h.metaMap)
	h.PutWord(addr+lo.Map.InstanceAttrsOffset, typ)
	h.PutWord(addr+lo.Map.MaybeConstructorOffset, ctor)
	return h.Tag(addr)
}

// Map returns the shared map of instance type typ.
func (h *Heap) Map(typ int64) int64 {
	if m, ok := h.maps[typ]; ok {
		return m
	}
	m := h.NewMap(typ, h.Smi(0))
	h.maps[typ] = m
	return m
}

// Object allocates size bytes for an object with the given map.
func (h *Heap) Object(m int64, size int64) int64 {
	addr := h.Alloc(size)
	h.PutWord(addr+h.Layout.HeapObject.MapOffset, m)
	return h.Tag(addr)
}

// SetField stores v at offset off of obj.
func (h *Heap) SetField(obj, off, v int64) {
	h.PutWord(h.Addr(obj)+off, v)
}

// Field returns the word at offset off of obj.
func (h *Heap) Field(obj, off int64) int64 {
	return h.Word(h.Addr(obj) + off)
}

func (h *Heap) stringType(encoding, repr int64) int64 {
	return encoding | repr
}

// OneByteString allocates a sequential one byte string.
func (h *Heap) OneByteString(s string) int64 {
	lo := h.Layout
	typ := h.stringType(lo.String.OneByteStringTag, lo.String.SeqStringTag)
	obj := h.Object(h.Map(typ), lo.OneByteString.CharsOffset+int64(len(s)))
	h.SetField(obj, lo.String.LengthOffset, h.Smi(int64(len(s))))
	h.PutBytes(h.Addr(obj)+lo.OneByteString.CharsOffset, []byte(s))
	return obj
}

// TwoByteString allocates a sequential two byte string holding the UTF-16
// encoding of s.
func (h *Heap) TwoByteString(s string) int64 {
	lo := h.Layout
	units := utf16.Encode([]rune(s))
	typ := h.stringType(lo.String.TwoByteStringTag, lo.String.SeqStringTag)
	obj := h.Object(h.Map(typ), lo.TwoByteString.CharsOffset+2*int64(len(units)))
	h.SetField(obj, lo.String.LengthOffset, h.Smi(int64(len(units))))
	buf := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[2*i:], u)
	}
	h.PutBytes(h.Addr(obj)+lo.TwoByteString.CharsOffset, buf)
	return obj
}

func (h *Heap) stringLength(s int64) int64 {
	return h.Field(s, h.Layout.String.LengthOffset) >> uint(h.Layout.Smi.TagSize+h.Layout.Smi.ShiftSize)
}

// ConsString allocates the concatenation of two strings.
func (h *Heap) ConsString(first, second int64) int64 {
	lo := h.Layout
	typ := h.stringType(lo.String.OneByteStringTag, lo.String.ConsStringTag)
	obj := h.Object(h.Map(typ), 40)
	h.SetField(obj, lo.String.LengthOffset, h.Smi(h.stringLength(first)+h.stringLength(second)))
	h.SetField(obj, lo.ConsString.FirstOffset, first)
	h.SetField(obj, lo.ConsString.SecondOffset, second)
	return obj
}

// SlicedString allocates the substring [offset, offset+length) of parent.
func (h *Heap) SlicedString(parent, offset, length int64) int64 {
	lo := h.Layout
	typ := h.stringType(lo.String.OneByteStringTag, lo.String.SlicedStringTag)
	obj := h.Object(h.Map(typ), 40)
	h.SetField(obj, lo.String.LengthOffset, h.Smi(length))
	h.SetField(obj, lo.SlicedString.ParentOffset, parent)
	h.SetField(obj, lo.SlicedString.OffsetOffset, h.Smi(offset))
	return obj
}

// Oddball returns the oddball of the given kind.
func (h *Heap) Oddball(kind int64) int64 {
	if o, ok := h.oddballs[kind]; ok {
		return o
	}
	lo := h.Layout
	obj := h.Object(h.Map(lo.Types.OddballType), lo.Oddball.KindOffset+8)
	h.SetField(obj, lo.Oddball.KindOffset, h.Smi(kind))
	h.oddballs[kind] = obj
	return obj
}

// Undefined returns the undefined oddball.
func (h *Heap) Undefined() int64 {
	return h.Oddball(h.Layout.Oddball.Undefined)
}

// FixedArray allocates a fixed array holding values.
func (h *Heap) FixedArray(values ...int64) int64 {
	lo := h.Layout
	obj := h.Object(h.Map(lo.Types.FixedArrayType), lo.FixedArray.DataOffset+int64(len(values))*8)
	h.SetField(obj, lo.FixedArray.LengthOffset, h.Smi(int64(len(values))))
	for i, v := range values {
		h.SetField(obj, lo.FixedArray.DataOffset+int64(i)*8, v)
	}
	return obj
}

// JSArray allocates an array of the given length.
func (h *Heap) JSArray(length int64) int64 {
	lo := h.Layout
	obj := h.Object(h.Map(lo.Types.JSArrayType), lo.JSArray.LengthOffset+8)
	h.SetField(obj, lo.JSArray.LengthOffset, h.Smi(length))
	return obj
}

// JSObject allocates an object whose map has ctor as constructor.
func (h *Heap) JSObject(ctor int64) int64 {
	return h.Object(h.NewMap(h.Layout.Types.JSObjectType, ctor), 24)
}

// Script allocates a script.
func (h *Heap) Script(name, source int64) int64 {
	lo := h.Layout
	obj := h.Object(h.Map(scriptType), 88)
	h.SetField(obj, lo.Script.NameOffset, name)
	h.SetField(obj, lo.Script.SourceOffset, source)
	h.SetField(obj, lo.Script.LineOffsetOffset, h.Smi(0))
	return obj
}

// SharedInfo allocates a shared function info.
func (h *Heap) SharedInfo(name, inferredName, script, startPos, paramCount int64) int64 {
	lo := h.Layout
	obj := h.Object(h.Map(sharedInfoType), 112)
	h.SetField(obj, lo.SharedInfo.NameOffset, name)
	h.SetField(obj, lo.SharedInfo.InferredNameOffset, inferredName)
	h.SetField(obj, lo.SharedInfo.ScriptOffset, script)
	h.SetField(obj, lo.SharedInfo.StartPositionOffset, h.Smi(startPos<<uint(lo.SharedInfo.StartPositionShift)))
	h.SetField(obj, lo.SharedInfo.ParameterCountOffset, h.Smi(paramCount))
	return obj
}

// Function allocates a closure of the given shared function info.
func (h *Heap) Function(info int64) int64 {
	lo := h.Layout
	obj := h.Object(h.Map(lo.Types.JSFunctionType), lo.JSFunction.SharedInfoOffset+8)
	h.SetField(obj, lo.JSFunction.SharedInfoOffset, info)
	return obj
}

// Code allocates a code object.
func (h *Heap) Code() int64 {
	return h.Object(h.Map(h.Layout.Types.CodeType), 16)
}

// Global allocates a global object.
func (h *Heap) Global() int64 {
	return h.Object(h.Map(h.Layout.Types.GlobalObjectType), 16)
}

// ArrayBuffer allocates an array buffer.
func (h *Heap) ArrayBuffer(backingStore, byteLength int64) int64 {
	lo := h.Layout
	obj := h.Object(h.Map(lo.Types.JSArrayBufferType), 48)
	h.SetField(obj, lo.JSArrayBuffer.BackingStoreOffset, backingStore)
	h.SetField(obj, lo.JSArrayBuffer.ByteLengthOffset, h.Smi(byteLength))
	return obj
}

// TypedArray allocates a view of buffer.
func (h *Heap) TypedArray(buffer, byteOffset, byteLength int64) int64 {
	lo := h.Layout
	obj := h.Object(h.Map(lo.Types.JSTypedArrayType), 48)
	h.SetField(obj, lo.JSArrayBufferView.BufferOffset, buffer)
	h.SetField(obj, lo.JSArrayBufferView.ByteOffsetOffset, h.Smi(byteOffset))
	h.SetField(obj, lo.JSArrayBufferView.ByteLengthOffset, h.Smi(byteLength))
	return obj
}

// Frame allocates a stack frame and returns its frame pointer. context is
// stored in the context slot, which also holds the frame marker, fn in the
// function slot. The receiver and args are stored above the return
// address the way they are pushed by a call: the receiver first, then
// args in order. The saved frame pointer is set to callerFP.
func (h *Heap) Frame(callerFP, context, fn, receiver int64, args ...int64) int64 {
	lo := h.Layout
	n := int64(len(args))
	low := min64(lo.Frame.ContextOffset, lo.Frame.MarkerOffset, lo.Frame.FunctionOffset, 0)
	high := max64(lo.Frame.ArgsOffset+(n+1)*8, 16)
	base := h.Alloc(high - low)
	fp := base - low
	h.PutWord(fp, callerFP)
	h.PutWord(fp+lo.Frame.ContextOffset, context)
	h.PutWord(fp+lo.Frame.FunctionOffset, fn)
	h.PutWord(fp+lo.Frame.ArgsOffset+n*8, receiver)
	for i, a := range args {
		h.PutWord(fp+lo.Frame.ArgsOffset+(n-int64(i)-1)*8, a)
	}
	return fp
}

// SetMarker stores a frame marker Smi in the marker slot of fp.
func (h *Heap) SetMarker(fp, marker int64) {
	h.PutWord(fp+h.Layout.Frame.MarkerOffset, h.Smi(marker))
}

func min64(vs ...int64) int64 {
	r := vs[0]
	for _, v := range vs[1:] {
		if v < r {
			r = v
		}
	}
	return r
}

func max64(vs ...int64) int64 {
	r := vs[0]
	for _, v := range vs[1:] {
		if v > r {
			r = v
		}
	}
	return r
}
