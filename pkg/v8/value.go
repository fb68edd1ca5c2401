package v8

// ValueClass is the result of classifying a tagged word.
type ValueClass uint8

const (
	// InvalidValue is a word that is neither a Smi nor a heap reference.
	InvalidValue ValueClass = iota
	// SmiValue is an integer stored inline in the word.
	SmiValue
	// HeapReference is a tagged pointer to a heap object.
	HeapReference
)

func (c ValueClass) String() string {
	switch c {
	case SmiValue:
		return "smi"
	case HeapReference:
		return "heap reference"
	}
	return "invalid"
}

// Classify classifies word and returns the Smi value or the untagged heap
// address it encodes. The Smi check takes precedence.
func (h *Heap) Classify(word int64) (ValueClass, int64) {
	switch {
	case h.isSmi(word):
		return SmiValue, h.smiValue(word)
	case h.isHeapObject(word):
		return HeapReference, h.Untag(word)
	}
	return InvalidValue, 0
}

func (h *Heap) isSmi(word int64) bool {
	return word&h.lo.Smi.TagMask == h.lo.Smi.Tag
}

func (h *Heap) smiValue(word int64) int64 {
	return word >> uint(h.lo.Smi.TagSize+h.lo.Smi.ShiftSize)
}

func (h *Heap) isHeapObject(word int64) bool {
	return word&h.lo.HeapObject.TagMask == h.lo.HeapObject.Tag
}

// Untag returns the address a heap reference points to.
func (h *Heap) Untag(word int64) int64 {
	return word - h.lo.HeapObject.Tag
}

// Tag returns the heap reference pointing to addr.
func (h *Heap) Tag(addr int64) int64 {
	return addr + h.lo.HeapObject.Tag
}

// SmiWord returns the tagged word encoding v as a Smi.
func (h *Heap) SmiWord(v int64) int64 {
	return v<<uint(h.lo.Smi.TagSize+h.lo.Smi.ShiftSize) | h.lo.Smi.Tag
}

// Value is a tagged word.
type Value struct {
	h   *Heap
	raw int64
}

// Value returns a view of word.
func (h *Heap) Value(word int64) Value {
	return Value{h, word}
}

// Raw returns the tagged word.
func (v Value) Raw() int64 { return v.raw }

// IsSmi reports whether v is a Smi.
func (v Value) IsSmi() bool { return v.h.isSmi(v.raw) }

// SmiValue returns the integer encoded in v. The result is meaningless if
// v is not a Smi.
func (v Value) SmiValue() int64 { return v.h.smiValue(v.raw) }

// HeapObject returns v as a heap object, the second return value is false
// if v is not a heap reference. Smis are never heap objects.
func (v Value) HeapObject() (HeapObject, bool) {
	if v.IsSmi() || !v.h.isHeapObject(v.raw) {
		return HeapObject{}, false
	}
	return HeapObject{v.h, v.raw}, true
}

// HeapObject is a view of a heap allocated object.
type HeapObject struct {
	h   *Heap
	raw int64
}

// HeapObject returns a view of the heap object referenced by word.
func (h *Heap) HeapObject(word int64) (HeapObject, error) {
	obj, ok := h.Value(word).HeapObject()
	if !ok {
		return HeapObject{}, decodeErrorf(TypeMismatch, word, "%#x is not a heap object", uint64(word))
	}
	return obj, nil
}

// Raw returns the tagged pointer to o.
func (o HeapObject) Raw() int64 { return o.raw }

// Addr returns the untagged address of o.
func (o HeapObject) Addr() int64 { return o.h.Untag(o.raw) }

func (o HeapObject) field(off int64) (int64, error) {
	return o.h.loadWord(o.Addr() + off)
}

func (o HeapObject) valueField(off int64) (Value, error) {
	w, err := o.field(off)
	if err != nil {
		return Value{}, err
	}
	return Value{o.h, w}, nil
}

func (o HeapObject) heapField(off int64, what string) (HeapObject, error) {
	w, err := o.field(off)
	if err != nil {
		return HeapObject{}, err
	}
	obj, ok := o.h.Value(w).HeapObject()
	if !ok {
		return HeapObject{}, decodeErrorf(TypeMismatch, o.Addr()+off, "%s is not a heap object", what)
	}
	return obj, nil
}

func (o HeapObject) smiField(off int64, what string) (int64, error) {
	w, err := o.field(off)
	if err != nil {
		return 0, err
	}
	if !o.h.isSmi(w) {
		return 0, decodeErrorf(TypeMismatch, o.Addr()+off, "%s is not a smi", what)
	}
	return o.h.smiValue(w), nil
}

// Map returns the map of o.
func (o HeapObject) Map() (Map, error) {
	m, err := o.heapField(o.h.lo.HeapObject.MapOffset, "map")
	if err != nil {
		return Map{}, err
	}
	return Map{m}, nil
}

// Type returns the instance type id of o.
func (o HeapObject) Type() (int64, error) {
	m, err := o.Map()
	if err != nil {
		return 0, err
	}
	return m.InstanceType()
}

// Kind returns the kind of o.
func (o HeapObject) Kind() (InstanceKind, error) {
	typ, err := o.Type()
	if err != nil {
		return UnknownKind, err
	}
	return o.h.KindOf(typ), nil
}

// Map is the type descriptor of a heap object.
type Map struct {
	HeapObject
}

// InstanceType returns the instance type stored in the low byte of the
// instance attributes field.
func (m Map) InstanceType() (int64, error) {
	attrs, err := m.field(m.h.lo.Map.InstanceAttrsOffset)
	if err != nil {
		return 0, err
	}
	return attrs & 0xff, nil
}

// MaybeConstructor returns the constructor or back pointer field.
func (m Map) MaybeConstructor() (Value, error) {
	return m.valueField(m.h.lo.Map.MaybeConstructorOffset)
}

// Constructor follows the back pointer chain of m until it reaches a value
// that is not a Map and returns it. The returned value may be a Smi.
func (m Map) Constructor() (Value, error) {
	cur := m
	for hop := 0; hop < m.h.opts.MaxConstructorHops; hop++ {
		v, err := cur.MaybeConstructor()
		if err != nil {
			return Value{}, err
		}
		obj, ok := v.HeapObject()
		if !ok {
			return v, nil
		}
		typ, err := obj.Type()
		if err != nil {
			return Value{}, err
		}
		if typ != m.h.lo.Types.MapType {
			return v, nil
		}
		cur = Map{obj}
	}
	return Value{}, decodeErrorf(BoundExceeded, m.Addr(), "constructor chain too long")
}
