package starbind

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/v8scope/v8scope/pkg/v8/v8test"
)

// scriptedInput returns a readLineFunc reading lines and the number of
// lines consumed so far.
func scriptedInput(lines ...string) (readLineFunc, *int) {
	n := 0
	return func(prompt string) (string, error) {
		if n >= len(lines) {
			return "", io.EOF
		}
		n++
		return lines[n-1], nil
	}, &n
}

func TestREPL(t *testing.T) {
	b := v8test.New()
	str := b.OneByteString("ohai")
	env, ctx, out := newTestEnv(b)
	var errOut bytes.Buffer
	env.errOut = &errOut

	read, consumed := scriptedInput(
		fmt.Sprintf("inspect(%#x)", str),
		"x = 40",
		"x + 2",
		"def command_hi(args):",
		"\tprint('hi ' + args)",
		"",
		"inspect(0x7ff00001)",
		"exit",
		"x",
	)
	if err := env.repl(read); err != nil {
		t.Fatal(err)
	}

	want := fmt.Sprintf("0x%016x:<String: \"ohai\">\n42\n", uint64(str))
	if out.String() != want {
		t.Errorf("output %q, want %q", out.String(), want)
	}
	if *consumed != 8 {
		t.Errorf("read %d lines, want the session to stop at exit", *consumed)
	}
	if _, ok := ctx.cmds["hi"]; !ok {
		t.Errorf("command_hi not registered")
	}

	// decode failures are reported without a starlark backtrace
	e := errOut.String()
	if !strings.HasPrefix(e, "Command failed: ") || strings.Contains(e, "Traceback") {
		t.Errorf("unexpected error output %q", e)
	}
}

func TestREPLEndOfInput(t *testing.T) {
	env, _, out := newTestEnv(v8test.New())
	var errOut bytes.Buffer
	env.errOut = &errOut

	read, _ := scriptedInput("1 +", "")
	if err := env.repl(read); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
	if !strings.HasPrefix(errOut.String(), "Command failed: ") {
		t.Errorf("syntax error not reported: %q", errOut.String())
	}
}
