package v8_test

import (
	"errors"
	"testing"

	"github.com/v8scope/v8scope/pkg/v8"
	"github.com/v8scope/v8scope/pkg/v8/v8test"
)

// FuzzInspect checks that arbitrary words, including pointers into the
// middle of objects, never panic and only fail with a *v8.DecodeError.
func FuzzInspect(f *testing.F) {
	b := v8test.New()
	script := b.Script(b.OneByteString("fuzz.js"), b.OneByteString("a\nb\nc"))
	fn := b.Function(b.SharedInfo(b.OneByteString("f"), b.OneByteString(""), script, 3, 1))
	seeds := []int64{
		b.Smi(42), fn, b.JSObject(fn), b.ConsString(b.OneByteString("a"), b.TwoByteString("b")),
		b.JSArray(2), b.Undefined(), 0, -1, 0x100003, b.End() + 1,
	}
	for _, s := range seeds {
		f.Add(s, false)
	}
	fp := b.Frame(0, b.Smi(v8test.JavaScriptFrame), fn, b.Undefined(), b.Smi(1))
	f.Add(fp, true)
	h := newHeap(b)

	f.Fuzz(func(t *testing.T, word int64, frame bool) {
		var err error
		if frame {
			_, err = h.InspectFrame(word, true)
		} else {
			_, err = h.Inspect(word)
		}
		if err == nil {
			return
		}
		var derr *v8.DecodeError
		if !errors.As(err, &derr) {
			t.Fatalf("unexpected error type %T: %v", err, err)
		}
	})
}
