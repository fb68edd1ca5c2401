package v8

import (
	"fmt"

	"github.com/v8scope/v8scope/pkg/logflags"
)

// FixedArray is a length prefixed array of tagged slots.
type FixedArray struct {
	HeapObject
}

// Length returns the number of slots.
func (a FixedArray) Length() (int64, error) {
	return a.smiField(a.h.lo.FixedArray.LengthOffset, "fixed array length")
}

// Get returns slot i.
func (a FixedArray) Get(i int64) (Value, error) {
	return a.valueField(a.h.lo.FixedArray.DataOffset + i*a.h.lo.PointerSize)
}

// Oddball is one of the singleton values false, true, undefined, the
// hole, uninitialized or exception.
type Oddball struct {
	HeapObject
}

// Kind returns the oddball kind.
func (o Oddball) Kind() (int64, error) {
	return o.smiField(o.h.lo.Oddball.KindOffset, "oddball kind")
}

// JSObject is a plain JavaScript object.
type JSObject struct {
	HeapObject
}

// ConstructorName returns the name of the function that created o, the
// second return value is false if the constructor of o is not a function.
func (o JSObject) ConstructorName() (string, bool, error) {
	m, err := o.Map()
	if err != nil {
		return "", false, err
	}
	ctor, err := m.Constructor()
	if err != nil {
		return "", false, err
	}
	obj, ok := ctor.HeapObject()
	if !ok {
		return "", false, nil
	}
	typ, err := obj.Type()
	if err != nil {
		return "", false, err
	}
	if typ != o.h.lo.Types.JSFunctionType {
		return "", false, nil
	}
	name, err := JSFunction{obj}.Name()
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

// JSArray is a JavaScript array.
type JSArray struct {
	HeapObject
}

// Length returns the length of the array.
func (a JSArray) Length() (int64, error) {
	return a.smiField(a.h.lo.JSArray.LengthOffset, "array length")
}

// JSFunction is a closure.
type JSFunction struct {
	HeapObject
}

// Info returns the shared function info of fn.
func (fn JSFunction) Info() (SharedFunctionInfo, error) {
	info, err := fn.heapField(fn.h.lo.JSFunction.SharedInfoOffset, "shared function info")
	if err != nil {
		return SharedFunctionInfo{}, err
	}
	return SharedFunctionInfo{info}, nil
}

// Name returns the declared name of fn or, if it is empty, the name V8
// inferred for it. Anonymous functions have an empty name.
func (fn JSFunction) Name() (string, error) {
	info, err := fn.Info()
	if err != nil {
		return "", err
	}
	return info.FunctionName()
}

// DebugLine returns "name(args) at script:line:column". The parenthesized
// arguments are omitted when args is empty.
func (fn JSFunction) DebugLine(args string) (string, error) {
	info, err := fn.Info()
	if err != nil {
		return "", err
	}
	name, err := info.FunctionName()
	if err != nil {
		return "", err
	}
	if name == "" {
		name = "(anonymous)"
	}
	if args != "" {
		name += "(" + args + ")"
	}
	postfix, err := info.Postfix()
	if err != nil {
		return "", err
	}
	return name + " at " + postfix, nil
}

// SharedFunctionInfo holds the data shared by every closure of a function.
type SharedFunctionInfo struct {
	HeapObject
}

// FunctionName returns the declared name, falling back to the inferred
// name. Names that are not strings count as empty.
func (info SharedFunctionInfo) FunctionName() (string, error) {
	lo := info.h.lo
	v, err := info.valueField(lo.SharedInfo.NameOffset)
	if err != nil {
		return "", err
	}
	name, err := info.h.stringOrEmpty(v)
	if err == nil && name != "" {
		return name, nil
	}
	if err != nil && logflags.Inspect() {
		info.h.log.Debugf("function name at %#x: %v", uint64(v.raw), err)
	}
	v, err = info.valueField(lo.SharedInfo.InferredNameOffset)
	if err != nil {
		return "", err
	}
	return info.h.stringOrEmpty(v)
}

// Script returns the script the function was compiled from.
func (info SharedFunctionInfo) Script() (Script, error) {
	s, err := info.heapField(info.h.lo.SharedInfo.ScriptOffset, "script")
	if err != nil {
		return Script{}, err
	}
	return Script{s}, nil
}

// StartPosition returns the offset of the function in the script source.
func (info SharedFunctionInfo) StartPosition() (int64, error) {
	v, err := info.smiField(info.h.lo.SharedInfo.StartPositionOffset, "start position")
	if err != nil {
		return 0, err
	}
	return v >> uint(info.h.lo.SharedInfo.StartPositionShift), nil
}

// ParameterCount returns the number of formal parameters.
func (info SharedFunctionInfo) ParameterCount() (int64, error) {
	return info.smiField(info.h.lo.SharedInfo.ParameterCountOffset, "parameter count")
}

// Postfix returns "script:line:column" for the start of the function.
func (info SharedFunctionInfo) Postfix() (string, error) {
	script, err := info.Script()
	if err != nil {
		return "", err
	}
	name, err := script.Name()
	if err != nil {
		return "", err
	}
	pos, err := info.StartPosition()
	if err != nil {
		return "", err
	}
	if name == "" {
		name = "(no script)"
	}
	line, column, hasSource, err := script.LineColumn(pos)
	if err != nil {
		return "", err
	}
	if !hasSource {
		return fmt.Sprintf("%s:0:%d", name, pos), nil
	}
	return fmt.Sprintf("%s:%d:%d", name, line, column), nil
}

// Script is a compiled source file.
type Script struct {
	HeapObject
}

// Name returns the script name, or "" if it is not a readable string.
func (s Script) Name() (string, error) {
	v, err := s.valueField(s.h.lo.Script.NameOffset)
	if err != nil {
		return "", err
	}
	name, err := s.h.stringOrEmpty(v)
	if err != nil {
		if logflags.Inspect() {
			s.h.log.Debugf("script name at %#x: %v", uint64(v.raw), err)
		}
		return "", nil
	}
	return name, nil
}

// Source returns the source field of the script.
func (s Script) Source() (Value, error) {
	return s.valueField(s.h.lo.Script.SourceOffset)
}

// LineColumn converts the source offset pos to a 1 based line and column.
// Every '\n' and '\r' starts a new line. hasSource is false when the
// script has no source string.
func (s Script) LineColumn(pos int64) (line, column int64, hasSource bool, err error) {
	src, err := s.Source()
	if err != nil {
		return 0, 0, false, err
	}
	obj, ok := src.HeapObject()
	if !ok {
		return 0, 0, false, nil
	}
	isStr, err := obj.IsString()
	if err != nil {
		return 0, 0, false, err
	}
	if !isStr {
		return 0, 0, false, nil
	}
	if pos > s.h.opts.MaxStringBytes {
		return 0, 0, false, decodeErrorf(BoundExceeded, s.Addr(), "source position %d too large", pos)
	}
	text, err := String{obj}.Prefix(pos)
	if err != nil {
		return 0, 0, false, err
	}
	line, column = 1, 1
	for i := 0; i < len(text); i, column = i+1, column+1 {
		if text[i] == '\n' || text[i] == '\r' {
			column = 0
			line++
		}
	}
	return line, column, true, nil
}

// JSArrayBuffer owns a block of memory outside the heap.
type JSArrayBuffer struct {
	HeapObject
}

// BackingStore returns the untagged address of the buffer contents.
func (b JSArrayBuffer) BackingStore() (int64, error) {
	return b.field(b.h.lo.JSArrayBuffer.BackingStoreOffset)
}

// ByteLength returns the size of the buffer.
func (b JSArrayBuffer) ByteLength() (int64, error) {
	return b.smiField(b.h.lo.JSArrayBuffer.ByteLengthOffset, "array buffer length")
}

// JSArrayBufferView is a typed array over a slice of a JSArrayBuffer.
type JSArrayBufferView struct {
	HeapObject
}

// Buffer returns the viewed buffer.
func (v JSArrayBufferView) Buffer() (JSArrayBuffer, error) {
	b, err := v.heapField(v.h.lo.JSArrayBufferView.BufferOffset, "array buffer")
	if err != nil {
		return JSArrayBuffer{}, err
	}
	return JSArrayBuffer{b}, nil
}

// ByteOffset returns the offset of the view in its buffer.
func (v JSArrayBufferView) ByteOffset() (int64, error) {
	return v.smiField(v.h.lo.JSArrayBufferView.ByteOffsetOffset, "array buffer view offset")
}

// ByteLength returns the size of the view.
func (v JSArrayBufferView) ByteLength() (int64, error) {
	return v.smiField(v.h.lo.JSArrayBufferView.ByteLengthOffset, "array buffer view length")
}
