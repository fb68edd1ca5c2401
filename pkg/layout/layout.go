// Package layout loads the postmortem constant table published by V8.
//
// V8 exports a set of integers (object field offsets, tag bits, type ids
// and enum values) as v8dbg_* symbols so that debuggers can decode its heap
// without linking against it. Load reads every constant v8scope needs once
// and returns an immutable Layout that is passed to every decoding call.
package layout

import (
	"math/bits"
	"sort"

	"github.com/v8scope/v8scope/pkg/logflags"
)

// ConstantPrefix is the prefix of every postmortem symbol name.
const ConstantPrefix = "v8dbg_"

// DefaultPointerSize is used when the table does not define PointerSizeLog2.
const DefaultPointerSize = 8

// StartPositionShift is the number of type bits packed below the start
// position in SharedFunctionInfo::start_position_and_type.
const StartPositionShift = 2

// Smi describes the inline small integer encoding.
type Smi struct {
	Tag       int64
	TagMask   int64
	TagSize   int64
	ShiftSize int64
}

// HeapObject describes tagged heap pointers.
type HeapObject struct {
	Tag       int64
	TagMask   int64
	MapOffset int64
}

type Map struct {
	InstanceAttrsOffset    int64
	MaybeConstructorOffset int64
}

type JSArray struct {
	LengthOffset int64
}

type JSFunction struct {
	SharedInfoOffset int64
}

type SharedInfo struct {
	NameOffset           int64
	InferredNameOffset   int64
	ScriptOffset         int64
	StartPositionOffset  int64
	ParameterCountOffset int64
	StartPositionShift   int64
}

type Script struct {
	NameOffset       int64
	LineOffsetOffset int64
	SourceOffset     int64
	LineEndsOffset   int64
}

// String holds the instance type bit fields shared by every string
// representation and the length field.
type String struct {
	EncodingMask       int64
	RepresentationMask int64

	OneByteStringTag  int64
	TwoByteStringTag  int64
	SeqStringTag      int64
	ConsStringTag     int64
	SlicedStringTag   int64
	ExternalStringTag int64

	LengthOffset int64
}

type SeqString struct {
	CharsOffset int64
}

type ConsString struct {
	FirstOffset  int64
	SecondOffset int64
}

type SlicedString struct {
	ParentOffset int64
	OffsetOffset int64
}

type FixedArray struct {
	LengthOffset int64
	DataOffset   int64
}

type Oddball struct {
	KindOffset int64

	Exception     int64
	False         int64
	True          int64
	Undefined     int64
	TheHole       int64
	Uninitialized int64
}

type JSArrayBuffer struct {
	BackingStoreOffset int64
	ByteLengthOffset   int64
}

type JSArrayBufferView struct {
	BufferOffset     int64
	ByteOffsetOffset int64
	ByteLengthOffset int64
}

// Frame holds the frame pointer relative offsets of a stack frame and the
// frame type markers.
type Frame struct {
	ContextOffset  int64
	FunctionOffset int64
	ArgsOffset     int64
	MarkerOffset   int64

	AdaptorFrame        int64
	EntryFrame          int64
	EntryConstructFrame int64
	ExitFrame           int64
	InternalFrame       int64
	ConstructFrame      int64
	JSFrame             int64
	OptimizedFrame      int64
}

// Types holds the instance type ids v8scope can render.
type Types struct {
	FirstNonstringType int64

	MapType           int64
	GlobalObjectType  int64
	OddballType       int64
	JSObjectType      int64
	JSArrayType       int64
	CodeType          int64
	JSFunctionType    int64
	FixedArrayType    int64
	JSArrayBufferType int64
	JSTypedArrayType  int64
}

// Layout is the decoded constant table. It is never modified after Load
// returns and can be shared between goroutines.
type Layout struct {
	PointerSize int64

	Smi               Smi
	HeapObject        HeapObject
	Map               Map
	JSArray           JSArray
	JSFunction        JSFunction
	SharedInfo        SharedInfo
	Script            Script
	String            String
	OneByteString     SeqString
	TwoByteString     SeqString
	ConsString        ConsString
	SlicedString      SlicedString
	FixedArray        FixedArray
	Oddball           Oddball
	JSArrayBuffer     JSArrayBuffer
	JSArrayBufferView JSArrayBufferView
	Frame             Frame
	Types             Types

	table   map[string]int64
	missing []string
}

type loader struct {
	src     Source
	table   map[string]int64
	missing []string
}

func (l *loader) load(name string) int64 {
	v, ok := l.src.LoadConstant(name)
	if !ok {
		l.missing = append(l.missing, name)
		return 0
	}
	l.table[name] = v
	return v
}

// Load reads the constant table from src. Constants missing from src are
// zero; they are recorded in Missing and only surface as decode failures
// later on.
func Load(src Source) *Layout {
	l := &loader{src: src, table: make(map[string]int64)}
	lo := &Layout{}

	ptrLog2, ok := src.LoadConstant("PointerSizeLog2")
	if ok {
		l.table["PointerSizeLog2"] = ptrLog2
		lo.PointerSize = 1 << uint(ptrLog2)
	} else {
		l.missing = append(l.missing, "PointerSizeLog2")
		lo.PointerSize = DefaultPointerSize
	}

	lo.Smi.Tag = l.load("SmiTag")
	lo.Smi.TagMask = l.load("SmiTagMask")
	lo.Smi.ShiftSize = l.load("SmiShiftSize")
	lo.Smi.TagSize = int64(bits.Len64(uint64(lo.Smi.TagMask)))

	lo.HeapObject.Tag = l.load("HeapObjectTag")
	lo.HeapObject.TagMask = l.load("HeapObjectTagMask")
	lo.HeapObject.MapOffset = l.load("class_HeapObject__map__Map")

	lo.Map.InstanceAttrsOffset = l.load("class_Map__instance_attributes__int")
	lo.Map.MaybeConstructorOffset = l.load("class_Map__constructor_or_backpointer__Object")

	lo.JSArray.LengthOffset = l.load("class_JSArray__length__Object")

	lo.JSFunction.SharedInfoOffset = l.load("class_JSFunction__shared__SharedFunctionInfo")

	lo.SharedInfo.NameOffset = l.load("class_SharedFunctionInfo__name__Object")
	lo.SharedInfo.InferredNameOffset = l.load("class_SharedFunctionInfo__inferred_name__String")
	lo.SharedInfo.ScriptOffset = l.load("class_SharedFunctionInfo__script__Object")
	lo.SharedInfo.StartPositionOffset = l.load("class_SharedFunctionInfo__start_position_and_type__SMI")
	lo.SharedInfo.ParameterCountOffset = l.load("class_SharedFunctionInfo__internal_formal_parameter_count__SMI")
	lo.SharedInfo.StartPositionShift = StartPositionShift

	lo.Script.NameOffset = l.load("class_Script__name__Object")
	lo.Script.LineOffsetOffset = l.load("class_Script__line_offset__SMI")
	lo.Script.SourceOffset = l.load("class_Script__source__Object")
	lo.Script.LineEndsOffset = l.load("class_Script__line_ends__Object")

	lo.String.EncodingMask = l.load("StringEncodingMask")
	lo.String.RepresentationMask = l.load("StringRepresentationMask")
	lo.String.OneByteStringTag = l.load("OneByteStringTag")
	lo.String.TwoByteStringTag = l.load("TwoByteStringTag")
	lo.String.SeqStringTag = l.load("SeqStringTag")
	lo.String.ConsStringTag = l.load("ConsStringTag")
	lo.String.SlicedStringTag = l.load("SlicedStringTag")
	lo.String.ExternalStringTag = l.load("ExternalStringTag")
	lo.String.LengthOffset = l.load("class_String__length__SMI")

	lo.OneByteString.CharsOffset = l.load("class_SeqOneByteString__chars__char")
	lo.TwoByteString.CharsOffset = l.load("class_SeqTwoByteString__chars__char")

	lo.ConsString.FirstOffset = l.load("class_ConsString__first__String")
	lo.ConsString.SecondOffset = l.load("class_ConsString__second__String")

	lo.SlicedString.ParentOffset = l.load("class_SlicedString__parent__String")
	lo.SlicedString.OffsetOffset = l.load("class_SlicedString__offset__SMI")

	lo.FixedArray.LengthOffset = l.load("class_FixedArrayBase__length__SMI")
	lo.FixedArray.DataOffset = l.load("class_FixedArray__data__uintptr_t")

	lo.Oddball.KindOffset = l.load("class_Oddball__kind_offset__int")
	lo.Oddball.Exception = l.load("OddballException")
	lo.Oddball.False = l.load("OddballFalse")
	lo.Oddball.True = l.load("OddballTrue")
	lo.Oddball.Undefined = l.load("OddballUndefined")
	lo.Oddball.TheHole = l.load("OddballTheHole")
	lo.Oddball.Uninitialized = l.load("OddballUninitialized")

	lo.JSArrayBuffer.BackingStoreOffset = l.load("class_JSArrayBuffer__backing_store__Object")
	lo.JSArrayBuffer.ByteLengthOffset = l.load("class_JSArrayBuffer__byte_length__Object")

	lo.JSArrayBufferView.BufferOffset = l.load("class_JSArrayBufferView__buffer__Object")
	lo.JSArrayBufferView.ByteOffsetOffset = l.load("class_JSArrayBufferView__byte_offset__Object")
	lo.JSArrayBufferView.ByteLengthOffset = l.load("class_JSArrayBufferView__raw_byte_length__Object")

	lo.Frame.ContextOffset = l.load("off_fp_context")
	lo.Frame.FunctionOffset = l.load("off_fp_function")
	lo.Frame.ArgsOffset = l.load("off_fp_args")
	lo.Frame.MarkerOffset = l.load("off_fp_marker")

	lo.Frame.AdaptorFrame = l.load("frametype_ArgumentsAdaptorFrame")
	lo.Frame.EntryFrame = l.load("frametype_EntryFrame")
	lo.Frame.EntryConstructFrame = l.load("frametype_EntryConstructFrame")
	lo.Frame.ExitFrame = l.load("frametype_ExitFrame")
	lo.Frame.InternalFrame = l.load("frametype_InternalFrame")
	lo.Frame.ConstructFrame = l.load("frametype_ConstructFrame")
	lo.Frame.JSFrame = l.load("frametype_JavaScriptFrame")
	lo.Frame.OptimizedFrame = l.load("frametype_OptimizedFrame")

	lo.Types.FirstNonstringType = l.load("FirstNonstringType")
	lo.Types.MapType = l.load("type_Map__MAP_TYPE")
	lo.Types.GlobalObjectType = l.load("type_JSGlobalObject__JS_GLOBAL_OBJECT_TYPE")
	lo.Types.OddballType = l.load("type_Oddball__ODDBALL_TYPE")
	lo.Types.JSObjectType = l.load("type_JSObject__JS_OBJECT_TYPE")
	lo.Types.JSArrayType = l.load("type_JSArray__JS_ARRAY_TYPE")
	lo.Types.CodeType = l.load("type_Code__CODE_TYPE")
	lo.Types.JSFunctionType = l.load("type_JSFunction__JS_FUNCTION_TYPE")
	lo.Types.FixedArrayType = l.load("type_FixedArray__FIXED_ARRAY_TYPE")
	lo.Types.JSArrayBufferType = l.load("type_JSArrayBuffer__JS_ARRAY_BUFFER_TYPE")
	lo.Types.JSTypedArrayType = l.load("type_JSTypedArray__JS_TYPED_ARRAY_TYPE")

	lo.table = l.table
	lo.missing = l.missing

	if len(l.missing) > 0 {
		logflags.LayoutLogger().WithField("count", len(l.missing)).Debugf("constants not found: %v", l.missing)
	}
	return lo
}

// Constant returns the value of the named constant as it was loaded, the
// second return value is false if the source did not define it.
func (lo *Layout) Constant(name string) (int64, bool) {
	v, ok := lo.table[name]
	return v, ok
}

// Missing returns the names of the constants the source did not define.
func (lo *Layout) Missing() []string {
	r := make([]string, len(lo.missing))
	copy(r, lo.missing)
	return r
}

// Entry is a single constant of the table.
type Entry struct {
	Name  string
	Value int64
}

// Table returns the loaded constants sorted by name.
func (lo *Layout) Table() []Entry {
	r := make([]Entry, 0, len(lo.table))
	for name, value := range lo.table {
		r = append(r, Entry{name, value})
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Name < r[j].Name })
	return r
}
