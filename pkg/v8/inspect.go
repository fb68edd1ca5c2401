package v8

import (
	"fmt"
	"strconv"

	"github.com/v8scope/v8scope/pkg/logflags"
)

// Inspect renders the tagged word as text: "<Smi: N>" for Smis and
// "0x<16 hex digits>:<...>" for heap objects.
func (h *Heap) Inspect(word int64) (string, error) {
	return h.Value(word).Inspect()
}

// Inspect renders v, see Heap.Inspect.
func (v Value) Inspect() (string, error) {
	if v.IsSmi() {
		return "<Smi: " + strconv.FormatInt(v.SmiValue(), 10) + ">", nil
	}
	obj, ok := v.HeapObject()
	if !ok {
		return "", decodeErrorf(TypeMismatch, v.raw, "not object and not smi")
	}
	kind, err := obj.Kind()
	if err != nil {
		return "", err
	}
	if logflags.Inspect() {
		v.h.log.Debugf("inspect %#x: %s", uint64(v.raw), kind)
	}
	body, err := obj.inspect(kind)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%016x:", uint64(v.raw)) + body, nil
}

func (o HeapObject) inspect(kind InstanceKind) (string, error) {
	switch kind {
	case GlobalObjectKind:
		return "<Global>", nil
	case CodeKind:
		return "<Code>", nil
	case JSObjectKind:
		return JSObject{o}.Inspect()
	case JSArrayKind:
		return JSArray{o}.Inspect()
	case OddballKind:
		return Oddball{o}.Inspect()
	case JSFunctionKind:
		return JSFunction{o}.Inspect()
	case StringKind:
		return String{o}.Inspect()
	case FixedArrayKind:
		return FixedArray{o}.Inspect()
	case JSArrayBufferKind:
		return JSArrayBuffer{o}.Inspect()
	case JSTypedArrayKind:
		return JSArrayBufferView{o}.Inspect()
	}
	return "<unknown>", nil
}

// Inspect returns `<String: "text">`, truncating the text to
// Options.MaxStringLen characters followed by "...". The whole string is
// decoded first, so a failure past the limit still fails the render.
func (s String) Inspect() (string, error) {
	max := int64(s.h.opts.MaxStringLen)
	val, err := s.Value()
	if err != nil {
		return "", err
	}
	if int64(len(val)) > max {
		val = val[:max] + "..."
	}
	return "<String: \"" + val + "\">", nil
}

func (a FixedArray) Inspect() (string, error) {
	n, err := a.Length()
	if err != nil {
		return "", err
	}
	return "<FixedArray, len=" + strconv.FormatInt(n, 10) + ">", nil
}

func (a JSArray) Inspect() (string, error) {
	n, err := a.Length()
	if err != nil {
		return "", err
	}
	return "<Array: length=" + strconv.FormatInt(n, 10) + ">", nil
}

func (o Oddball) Inspect() (string, error) {
	kind, err := o.Kind()
	if err != nil {
		return "", err
	}
	odd := &o.h.lo.Oddball
	switch kind {
	case odd.Exception:
		return "<exception>", nil
	case odd.False:
		return "<false>", nil
	case odd.True:
		return "<true>", nil
	case odd.Undefined:
		return "<undefined>", nil
	case odd.TheHole:
		return "<hole>", nil
	case odd.Uninitialized:
		return "<uninitialized>", nil
	}
	return "<Oddball>", nil
}

func (o JSObject) Inspect() (string, error) {
	name, ok, err := o.ConstructorName()
	if err != nil {
		return "", err
	}
	if !ok {
		return "<Object: no constructor>", nil
	}
	return "<Object: " + name + ">", nil
}

func (fn JSFunction) Inspect() (string, error) {
	line, err := fn.DebugLine("")
	if err != nil {
		return "", err
	}
	return "<function: " + line + ">", nil
}

func (b JSArrayBuffer) Inspect() (string, error) {
	data, err := b.BackingStore()
	if err != nil {
		return "", err
	}
	n, err := b.ByteLength()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("<ArrayBuffer 0x%016x:%d>", uint64(data), n), nil
}

func (v JSArrayBufferView) Inspect() (string, error) {
	buf, err := v.Buffer()
	if err != nil {
		return "", err
	}
	data, err := buf.BackingStore()
	if err != nil {
		return "", err
	}
	off, err := v.ByteOffset()
	if err != nil {
		return "", err
	}
	n, err := v.ByteLength()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("<ArrayBufferView 0x%016x+%d:%d>", uint64(data), off, n), nil
}
