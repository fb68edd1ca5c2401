// Package v8test builds V8 heaps in memory for tests.
package v8test

import (
	"github.com/v8scope/v8scope/pkg/layout"
)

// Instance type ids used by Constants.
const (
	FirstNonstringType = 128
	CodeType           = 129
	MapType            = 130
	OddballType        = 131
	FixedArrayType     = 173
	JSObjectType       = 182
	GlobalObjectType   = 185
	JSArrayType        = 189
	JSArrayBufferType  = 190
	JSTypedArrayType   = 191
	JSFunctionType     = 195
	HeapNumberType     = 132
)

// Oddball kinds used by Constants.
const (
	OddballFalse         = 0
	OddballTrue          = 1
	OddballTheHole       = 2
	OddballNull          = 3
	OddballUndefined     = 5
	OddballUninitialized = 6
	OddballException     = 8
)

// Frame types used by Constants.
const (
	EntryFrame          = 1
	EntryConstructFrame = 2
	ExitFrame           = 3
	JavaScriptFrame     = 4
	OptimizedFrame      = 5
	StubFrame           = 6
	InternalFrame       = 8
	ConstructFrame      = 9
	AdaptorFrame        = 10
)

// Constants returns a constant table for a 64bit V8 with 32bit Smis.
func Constants() layout.MapSource {
	return layout.MapSource{
		"PointerSizeLog2": 3,

		"SmiTag":            0,
		"SmiTagMask":        1,
		"SmiShiftSize":      31,
		"HeapObjectTag":     1,
		"HeapObjectTagMask": 3,

		"class_HeapObject__map__Map":                    0,
		"class_Map__instance_attributes__int":           12,
		"class_Map__constructor_or_backpointer__Object": 48,

		"class_JSArray__length__Object":                24,
		"class_JSFunction__shared__SharedFunctionInfo": 40,

		"class_SharedFunctionInfo__name__Object":                         8,
		"class_SharedFunctionInfo__script__Object":                       56,
		"class_SharedFunctionInfo__inferred_name__String":                72,
		"class_SharedFunctionInfo__internal_formal_parameter_count__SMI": 96,
		"class_SharedFunctionInfo__start_position_and_type__SMI":         104,

		"class_Script__source__Object":    8,
		"class_Script__name__Object":      16,
		"class_Script__line_offset__SMI":  24,
		"class_Script__line_ends__Object": 80,

		"StringEncodingMask":       0x4,
		"OneByteStringTag":         0x4,
		"TwoByteStringTag":         0x0,
		"StringRepresentationMask": 0x3,
		"SeqStringTag":             0x0,
		"ConsStringTag":            0x1,
		"ExternalStringTag":        0x2,
		"SlicedStringTag":          0x3,

		"class_String__length__SMI":           8,
		"class_SeqOneByteString__chars__char": 24,
		"class_SeqTwoByteString__chars__char": 24,
		"class_ConsString__first__String":     24,
		"class_ConsString__second__String":    32,
		"class_SlicedString__parent__String":  24,
		"class_SlicedString__offset__SMI":     32,

		"class_FixedArrayBase__length__SMI": 8,
		"class_FixedArray__data__uintptr_t": 16,

		"class_Oddball__kind_offset__int": 40,
		"OddballFalse":                    OddballFalse,
		"OddballTrue":                     OddballTrue,
		"OddballTheHole":                  OddballTheHole,
		"OddballUndefined":                OddballUndefined,
		"OddballUninitialized":            OddballUninitialized,
		"OddballException":                OddballException,

		"class_JSArrayBuffer__backing_store__Object":       32,
		"class_JSArrayBuffer__byte_length__Object":         24,
		"class_JSArrayBufferView__buffer__Object":          24,
		"class_JSArrayBufferView__byte_offset__Object":     32,
		"class_JSArrayBufferView__raw_byte_length__Object": 40,

		"off_fp_context":  -8,
		"off_fp_marker":   -8,
		"off_fp_function": -16,
		"off_fp_args":     16,

		"frametype_EntryFrame":            EntryFrame,
		"frametype_EntryConstructFrame":   EntryConstructFrame,
		"frametype_ExitFrame":             ExitFrame,
		"frametype_JavaScriptFrame":       JavaScriptFrame,
		"frametype_OptimizedFrame":        OptimizedFrame,
		"frametype_InternalFrame":         InternalFrame,
		"frametype_ConstructFrame":        ConstructFrame,
		"frametype_ArgumentsAdaptorFrame": AdaptorFrame,

		"FirstNonstringType":                         FirstNonstringType,
		"type_Code__CODE_TYPE":                       CodeType,
		"type_Map__MAP_TYPE":                         MapType,
		"type_Oddball__ODDBALL_TYPE":                 OddballType,
		"type_FixedArray__FIXED_ARRAY_TYPE":          FixedArrayType,
		"type_JSObject__JS_OBJECT_TYPE":              JSObjectType,
		"type_JSGlobalObject__JS_GLOBAL_OBJECT_TYPE": GlobalObjectType,
		"type_JSArray__JS_ARRAY_TYPE":                JSArrayType,
		"type_JSArrayBuffer__JS_ARRAY_BUFFER_TYPE":   JSArrayBufferType,
		"type_JSTypedArray__JS_TYPED_ARRAY_TYPE":     JSTypedArrayType,
		"type_JSFunction__JS_FUNCTION_TYPE":          JSFunctionType,
	}
}
