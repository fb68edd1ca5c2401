package v8

// InstanceKind is the closed set of object kinds v8scope can render.
type InstanceKind uint8

const (
	UnknownKind InstanceKind = iota
	StringKind
	MapKind
	GlobalObjectKind
	OddballKind
	JSObjectKind
	JSArrayKind
	CodeKind
	JSFunctionKind
	FixedArrayKind
	JSArrayBufferKind
	JSTypedArrayKind
)

var kindNames = [...]string{
	UnknownKind:       "unknown",
	StringKind:        "String",
	MapKind:           "Map",
	GlobalObjectKind:  "JSGlobalObject",
	OddballKind:       "Oddball",
	JSObjectKind:      "JSObject",
	JSArrayKind:       "JSArray",
	CodeKind:          "Code",
	JSFunctionKind:    "JSFunction",
	FixedArrayKind:    "FixedArray",
	JSArrayBufferKind: "JSArrayBuffer",
	JSTypedArrayKind:  "JSTypedArray",
}

func (k InstanceKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[UnknownKind]
}

// KindOf maps an instance type id to its kind. When the constant table
// assigns the same id to two kinds the first match in inspection order
// wins.
func (h *Heap) KindOf(typ int64) InstanceKind {
	t := &h.lo.Types
	switch {
	case typ == t.GlobalObjectType:
		return GlobalObjectKind
	case typ == t.CodeType:
		return CodeKind
	case typ == t.JSObjectType:
		return JSObjectKind
	case typ == t.JSArrayType:
		return JSArrayKind
	case typ == t.OddballType:
		return OddballKind
	case typ == t.JSFunctionType:
		return JSFunctionKind
	case typ < t.FirstNonstringType:
		return StringKind
	case typ == t.FixedArrayType:
		return FixedArrayKind
	case typ == t.JSArrayBufferType:
		return JSArrayBufferKind
	case typ == t.JSTypedArrayType:
		return JSTypedArrayKind
	case typ == t.MapType:
		return MapKind
	}
	return UnknownKind
}
