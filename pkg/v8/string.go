package v8

// maxStringNodes bounds the number of cons and sliced nodes visited while
// reading one string.
const maxStringNodes = 1 << 20

// String is a view of a string of any representation.
type String struct {
	HeapObject
}

// Length returns the length field of s, in characters.
func (s String) Length() (int64, error) {
	n, err := s.smiField(s.h.lo.String.LengthOffset, "string length")
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, decodeErrorf(TypeMismatch, s.Addr(), "invalid string length %d", n)
	}
	return n, nil
}

// Value returns the contents of s. Two byte strings keep the low byte of
// every code unit. Strings longer than Options.MaxStringBytes are an
// error.
func (s String) Value() (string, error) {
	max := s.h.opts.MaxStringBytes
	r := &stringReader{h: s.h}
	b, err := r.read(s, max+1, 0)
	if err != nil {
		return "", err
	}
	if int64(len(b)) > max {
		return "", decodeErrorf(BoundExceeded, s.Addr(), "string too long")
	}
	return string(b), nil
}

// Prefix returns at most the first n characters of s without reading the
// rest of it. n may not exceed Options.MaxStringBytes.
func (s String) Prefix(n int64) (string, error) {
	if n > s.h.opts.MaxStringBytes {
		return "", decodeErrorf(BoundExceeded, s.Addr(), "string prefix of %d characters too long", n)
	}
	if n < 0 {
		n = 0
	}
	r := &stringReader{h: s.h}
	b, err := r.read(s, n, 0)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type stringReader struct {
	h     *Heap
	nodes int
}

// read returns at most limit characters of s.
func (r *stringReader) read(s String, limit int64, depth int) ([]byte, error) {
	lo := r.h.lo
	if depth > r.h.opts.MaxStringDepth {
		return nil, decodeErrorf(BoundExceeded, s.Addr(), "string nesting too deep")
	}
	r.nodes++
	if r.nodes > maxStringNodes {
		return nil, decodeErrorf(BoundExceeded, s.Addr(), "string has too many parts")
	}

	typ, err := s.Type()
	if err != nil {
		return nil, err
	}
	repr := typ & lo.String.RepresentationMask
	encoding := typ & lo.String.EncodingMask

	switch repr {
	case lo.String.SeqStringTag:
		length, err := s.Length()
		if err != nil {
			return nil, err
		}
		if length > limit {
			length = limit
		}
		switch encoding {
		case lo.String.OneByteStringTag:
			return r.h.loadBytes(s.Addr()+lo.OneByteString.CharsOffset, length)
		case lo.String.TwoByteStringTag:
			b, err := r.h.loadBytes(s.Addr()+lo.TwoByteString.CharsOffset, 2*length)
			if err != nil {
				return nil, err
			}
			for i := int64(0); i < length; i++ {
				b[i] = b[2*i]
			}
			return b[:length], nil
		}
		return nil, decodeErrorf(UnsupportedRepresentation, s.Addr(), "unsupported seq string encoding")

	case lo.String.ConsStringTag:
		first, err := s.heapField(lo.ConsString.FirstOffset, "cons string first")
		if err != nil {
			return nil, err
		}
		b, err := r.read(String{first}, limit, depth+1)
		if err != nil {
			return nil, err
		}
		if int64(len(b)) >= limit {
			return b[:limit], nil
		}
		second, err := s.heapField(lo.ConsString.SecondOffset, "cons string second")
		if err != nil {
			return nil, err
		}
		b2, err := r.read(String{second}, limit-int64(len(b)), depth+1)
		if err != nil {
			return nil, err
		}
		return append(b, b2...), nil

	case lo.String.SlicedStringTag:
		parent, err := s.heapField(lo.SlicedString.ParentOffset, "sliced string parent")
		if err != nil {
			return nil, err
		}
		offset, err := s.smiField(lo.SlicedString.OffsetOffset, "sliced string offset")
		if err != nil {
			return nil, err
		}
		length, err := s.Length()
		if err != nil {
			return nil, err
		}
		if length > limit {
			length = limit
		}
		if offset < 0 {
			return nil, decodeErrorf(TypeMismatch, s.Addr(), "invalid sliced string offset %d", offset)
		}
		if max := r.h.opts.MaxStringBytes; offset > max || offset+length > max+1 {
			return nil, decodeErrorf(BoundExceeded, s.Addr(), "sliced string offset %d too large", offset)
		}
		b, err := r.read(String{parent}, offset+length, depth+1)
		if err != nil {
			return nil, err
		}
		if offset > int64(len(b)) {
			return nil, decodeErrorf(BoundExceeded, s.Addr(), "sliced string offset %d past the end of its parent", offset)
		}
		return b[offset:], nil
	}

	return nil, decodeErrorf(UnsupportedRepresentation, s.Addr(), "unsupported string representation")
}

// IsString reports whether o is a string.
func (o HeapObject) IsString() (bool, error) {
	typ, err := o.Type()
	if err != nil {
		return false, err
	}
	return typ < o.h.lo.Types.FirstNonstringType, nil
}

// stringOrEmpty returns the contents of v if it is a string and "" if it
// is any other value.
func (h *Heap) stringOrEmpty(v Value) (string, error) {
	obj, ok := v.HeapObject()
	if !ok {
		return "", nil
	}
	isStr, err := obj.IsString()
	if err != nil || !isStr {
		return "", err
	}
	return String{obj}.Value()
}
