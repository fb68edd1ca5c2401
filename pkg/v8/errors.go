package v8

import (
	"errors"
	"fmt"
)

// ErrorKind classifies decode failures.
type ErrorKind uint8

const (
	// ReadFailure means target memory could not be read.
	ReadFailure ErrorKind = iota + 1
	// UnsupportedRepresentation means a string uses an encoding or
	// representation that can not be decoded.
	UnsupportedRepresentation
	// TypeMismatch means a word does not have the tag or type a field
	// requires.
	TypeMismatch
	// UnknownFrameMarker means a frame carries a marker that matches no
	// known frame type.
	UnknownFrameMarker
	// BoundExceeded means a recursion, iteration or size ceiling was hit.
	BoundExceeded
)

func (k ErrorKind) String() string {
	switch k {
	case ReadFailure:
		return "read failure"
	case UnsupportedRepresentation:
		return "unsupported representation"
	case TypeMismatch:
		return "type mismatch"
	case UnknownFrameMarker:
		return "unknown frame marker"
	case BoundExceeded:
		return "bound exceeded"
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// DecodeError is the error returned by every failed decode.
type DecodeError struct {
	Kind ErrorKind
	Msg  string
	// Addr is the address being decoded when the failure happened, or 0.
	Addr int64
	// Err is the underlying cause, for example a *proc.ReadError.
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *DecodeError of kind k.
func IsKind(err error, k ErrorKind) bool {
	var derr *DecodeError
	return errors.As(err, &derr) && derr.Kind == k
}

func decodeErrorf(kind ErrorKind, addr int64, format string, args ...interface{}) error {
	return &DecodeError{Kind: kind, Msg: fmt.Sprintf(format, args...), Addr: addr}
}

func readFailure(addr int64, err error) error {
	return &DecodeError{Kind: ReadFailure, Msg: "failed to load V8 value", Addr: addr, Err: err}
}
