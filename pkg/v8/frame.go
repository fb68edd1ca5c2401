package v8

import (
	"strings"
)

// FrameKind is the type of a stack frame.
type FrameKind uint8

const (
	UnrecognizedFrame FrameKind = iota
	AdaptorFrame
	EntryFrame
	EntryConstructFrame
	ExitFrame
	InternalFrame
	ConstructFrame
	JavaScriptFrame
	OptimizedFrame
)

var frameKindNames = [...]string{
	UnrecognizedFrame:   "unrecognized",
	AdaptorFrame:        "adaptor",
	EntryFrame:          "entry",
	EntryConstructFrame: "entry_construct",
	ExitFrame:           "exit",
	InternalFrame:       "internal",
	ConstructFrame:      "constructor",
	JavaScriptFrame:     "javascript",
	OptimizedFrame:      "optimized",
}

func (k FrameKind) String() string {
	if int(k) < len(frameKindNames) {
		return frameKindNames[k]
	}
	return frameKindNames[UnrecognizedFrame]
}

// IsFunction reports whether frames of kind k belong to a function.
func (k FrameKind) IsFunction() bool {
	return k == JavaScriptFrame || k == OptimizedFrame
}

// Frame is a view of the stack frame whose frame pointer is fp.
type Frame struct {
	h  *Heap
	fp int64
}

// Frame returns a view of the frame at fp.
func (h *Heap) Frame(fp int64) Frame {
	return Frame{h, fp}
}

// FP returns the frame pointer.
func (f Frame) FP() int64 { return f.fp }

// Kind classifies f. Frames without a Smi marker are JavaScript frames.
func (f Frame) Kind() (FrameKind, error) {
	lo := &f.h.lo.Frame
	context, err := f.h.loadWord(f.fp + lo.ContextOffset)
	if err != nil {
		return UnrecognizedFrame, err
	}
	if f.h.isSmi(context) && f.h.smiValue(context) == lo.AdaptorFrame {
		return AdaptorFrame, nil
	}

	marker, err := f.h.loadWord(f.fp + lo.MarkerOffset)
	if err != nil {
		return UnrecognizedFrame, err
	}
	if !f.h.isSmi(marker) {
		return JavaScriptFrame, nil
	}
	switch f.h.smiValue(marker) {
	case lo.EntryFrame:
		return EntryFrame, nil
	case lo.EntryConstructFrame:
		return EntryConstructFrame, nil
	case lo.ExitFrame:
		return ExitFrame, nil
	case lo.InternalFrame:
		return InternalFrame, nil
	case lo.ConstructFrame:
		return ConstructFrame, nil
	case lo.JSFrame:
		return JavaScriptFrame, nil
	case lo.OptimizedFrame:
		return OptimizedFrame, nil
	}
	return UnrecognizedFrame, nil
}

// Function returns the function slot of f.
func (f Frame) Function() (Value, error) {
	w, err := f.h.loadWord(f.fp + f.h.lo.Frame.FunctionOffset)
	if err != nil {
		return Value{}, err
	}
	return Value{f.h, w}, nil
}

// Receiver returns the receiver of a function frame with paramCount formal
// parameters.
func (f Frame) Receiver(paramCount int64) (Value, error) {
	return f.slot(paramCount)
}

// Param returns argument i of a function frame with paramCount formal
// parameters. Arguments are pushed left to right so the last one is
// closest to the frame pointer.
func (f Frame) Param(i, paramCount int64) (Value, error) {
	return f.slot(paramCount - i - 1)
}

func (f Frame) slot(i int64) (Value, error) {
	w, err := f.h.loadWord(f.fp + f.h.lo.Frame.ArgsOffset + i*f.h.lo.PointerSize)
	if err != nil {
		return Value{}, err
	}
	return Value{f.h, w}, nil
}

// InspectFrame renders the frame at fp, see Frame.Inspect.
func (h *Heap) InspectFrame(fp int64, withArgs bool) (string, error) {
	return h.Frame(fp).Inspect(withArgs)
}

var frameMarkers = map[FrameKind]string{
	AdaptorFrame:        "<adaptor>",
	EntryFrame:          "<entry>",
	EntryConstructFrame: "<entry_construct>",
	ExitFrame:           "<exit>",
	InternalFrame:       "<internal>",
	ConstructFrame:      "<constructor>",
}

// closure returns the function of f. If f does not belong to a
// JavaScript function the marker describing it is returned instead.
func (f Frame) closure() (JSFunction, string, error) {
	kind, err := f.Kind()
	if err != nil {
		return JSFunction{}, "", err
	}
	if kind == UnrecognizedFrame {
		return JSFunction{}, "", decodeErrorf(UnknownFrameMarker, f.fp, "unknown frame marker")
	}
	if marker, ok := frameMarkers[kind]; ok {
		return JSFunction{}, marker, nil
	}

	v, err := f.Function()
	if err != nil {
		return JSFunction{}, "", err
	}
	obj, ok := v.HeapObject()
	if !ok {
		return JSFunction{}, "<non-function>", nil
	}
	typ, err := obj.Type()
	if err != nil {
		return JSFunction{}, "", err
	}
	switch typ {
	case f.h.lo.Types.CodeType:
		return JSFunction{}, "<internal code>", nil
	case f.h.lo.Types.JSFunctionType:
		return JSFunction{obj}, "", nil
	}
	return JSFunction{}, "<non-function>", nil
}

// Inspect renders f: a marker such as "<entry>" for frames that do not
// belong to a function, "<internal code>" or "<non-function>" when the
// function slot is not a closure, otherwise the debug line of the
// function. If withArgs is set the receiver and arguments are printed.
func (f Frame) Inspect(withArgs bool) (string, error) {
	fn, marker, err := f.closure()
	if err != nil || marker != "" {
		return marker, err
	}
	var args string
	if withArgs {
		args, err = f.inspectArgs(fn)
		if err != nil {
			return "", err
		}
	}
	return fn.DebugLine(args)
}

// Arguments returns the receiver followed by the arguments of a
// JavaScript function frame. Other frames have no arguments.
func (f Frame) Arguments() ([]Value, error) {
	fn, marker, err := f.closure()
	if err != nil || marker != "" {
		return nil, err
	}
	return f.arguments(fn)
}

func (f Frame) arguments(fn JSFunction) ([]Value, error) {
	info, err := fn.Info()
	if err != nil {
		return nil, err
	}
	n, err := info.ParameterCount()
	if err != nil {
		return nil, err
	}
	// functions that do not adapt their arguments store a negative count
	if n < 0 {
		n = 0
	}
	if n > maxArguments {
		return nil, decodeErrorf(BoundExceeded, f.fp, "too many arguments (%d)", n)
	}

	receiver, err := f.Receiver(n)
	if err != nil {
		return nil, err
	}
	vals := make([]Value, 0, n+1)
	vals = append(vals, receiver)
	for i := int64(0); i < n; i++ {
		param, err := f.Param(i, n)
		if err != nil {
			return nil, err
		}
		vals = append(vals, param)
	}
	return vals, nil
}

func (f Frame) inspectArgs(fn JSFunction) (string, error) {
	vals, err := f.arguments(fn)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	for i, v := range vals {
		s, err := v.Inspect()
		if err != nil {
			return "", err
		}
		if i == 0 {
			buf.WriteString("this=")
		} else {
			buf.WriteString(", ")
		}
		buf.WriteString(s)
	}
	return buf.String(), nil
}
