package starbind

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"go.starlark.net/starlark"

	"github.com/v8scope/v8scope/pkg/proc"
	"github.com/v8scope/v8scope/pkg/v8/v8test"
	"github.com/v8scope/v8scope/service/debugger"
)

type fakeProcess struct {
	*v8test.Heap
	threads []proc.Thread
}

func (p *fakeProcess) Pid() int                   { return 1 }
func (p *fakeProcess) ThreadList() []proc.Thread  { return p.threads }
func (p *fakeProcess) CurrentThread() proc.Thread { return p.threads[0] }
func (p *fakeProcess) Close() error               { return nil }

type testContext struct {
	d      *debugger.Debugger
	cmds   map[string]func(string) error
	called []string
}

func (ctx *testContext) Debugger() *debugger.Debugger { return ctx.d }
func (ctx *testContext) CurrentThread() int           { return 1 }

func (ctx *testContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	ctx.cmds[name] = fn
}

func (ctx *testContext) CallCommand(cmdstr string) error {
	ctx.called = append(ctx.called, cmdstr)
	return nil
}

type echoBuffer struct {
	bytes.Buffer
}

func (b *echoBuffer) Echo(string) {}
func (b *echoBuffer) Done()       {}

func newTestEnv(b *v8test.Heap, threads ...proc.Thread) (*Env, *testContext, *echoBuffer) {
	if len(threads) == 0 {
		threads = []proc.Thread{{ID: 1}}
	}
	p := &fakeProcess{Heap: b, threads: threads}
	ctx := &testContext{
		d:    debugger.NewWithTarget(&debugger.Config{}, p, v8test.Constants()),
		cmds: map[string]func(string) error{},
	}
	out := new(echoBuffer)
	return New(ctx, out), ctx, out
}

func execMain(t *testing.T, env *Env, src string) starlark.Value {
	t.Helper()
	v, err := env.Execute("test.star", src, "main", nil)
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
	return v
}

func TestInspectBuiltin(t *testing.T) {
	b := v8test.New()
	str := b.OneByteString("ohai")
	slot := b.Alloc(8)
	b.PutWord(slot, str)
	env, _, _ := newTestEnv(b)
	want := fmt.Sprintf("0x%016x:<String: \"ohai\">", uint64(str))

	tests := []struct {
		src  string
		want string
	}{
		{fmt.Sprintf("def main():\n\treturn inspect(%d)\n", str), want},
		{fmt.Sprintf("def main():\n\treturn inspect(\"*%#x\")\n", slot), want},
		{fmt.Sprintf("def main():\n\treturn inspect(%d)\n", b.Smi(-2)), "<Smi: -2>"},
	}
	for _, tc := range tests {
		v := execMain(t, env, tc.src)
		s, ok := v.(starlark.String)
		if !ok || string(s) != tc.want {
			t.Errorf("%q: got %v, want %q", tc.src, v, tc.want)
		}
	}

	_, err := env.Execute("test.star", "def main():\n\treturn inspect(None)\n", "main", nil)
	if err == nil || !strings.Contains(err.Error(), "can not convert") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestReadWordAndConstant(t *testing.T) {
	b := v8test.New()
	slot := b.Alloc(8)
	b.PutWord(slot, 0x1234)
	env, _, _ := newTestEnv(b)

	v := execMain(t, env, fmt.Sprintf("def main():\n\treturn read_word(%d)\n", slot))
	if n, ok := v.(starlark.Int); !ok || n.String() != "4660" {
		t.Errorf("read_word: got %v", v)
	}

	v = execMain(t, env, "def main():\n\treturn [constant(\"v8dbg_SmiShiftSize\"), constant(\"HeapObjectTag\"), constant(\"nope\")]\n")
	if got := v.String(); got != "[31, 1, None]" {
		t.Errorf("constant: got %s", got)
	}
}

func TestStacktraceBuiltin(t *testing.T) {
	b := v8test.New()
	fp := b.Frame(0, b.Smi(0), b.Smi(0), b.Smi(0))
	b.SetMarker(fp, v8test.ExitFrame)
	env, _, _ := newTestEnv(b, proc.Thread{ID: 1, FP: uint64(fp)})

	v := execMain(t, env, "def main():\n\treturn [f.Text for f in stacktrace()] + [th.ID for th in threads()]\n")
	if got := v.String(); got != `["<exit>", 1]` {
		t.Errorf("got %s", got)
	}
	v = execMain(t, env, fmt.Sprintf("def main():\n\treturn inspect_frame(%d, args=True)\n", fp))
	if got := v.String(); got != `"<exit>"` {
		t.Errorf("got %s", got)
	}
}

func TestCommandGlobals(t *testing.T) {
	env, ctx, out := newTestEnv(v8test.New())
	src := `
def command_echo(args):
	"Echoes its arguments."
	command("inspect", args)

def command_sum(a, b):
	print(a + b)
`
	if _, err := env.Execute("test.star", src, "main", nil); err != nil {
		t.Fatal(err)
	}
	echo, ok := ctx.cmds["echo"]
	if !ok {
		t.Fatal("command_echo not registered")
	}
	if err := echo("0x10"); err != nil {
		t.Fatal(err)
	}
	if len(ctx.called) != 1 || ctx.called[0] != "inspect 0x10" {
		t.Errorf("got %q", ctx.called)
	}

	if err := ctx.cmds["sum"]("1, 2"); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "3\n" {
		t.Errorf("got %q", got)
	}
}

func TestFileBuiltins(t *testing.T) {
	env, _, _ := newTestEnv(v8test.New())
	path := t.TempDir() + "/out.txt"
	src := fmt.Sprintf("def main():\n\twrite_file(%q, \"hello\")\n\treturn read_file(%q)\n", path, path)
	v := execMain(t, env, src)
	if got := v.String(); got != `"hello"` {
		t.Errorf("got %s", got)
	}
}

func TestConv(t *testing.T) {
	env, _, _ := newTestEnv(v8test.New())
	v := env.interfaceToStarlarkValue([]proc.Thread{{ID: 3, PC: 0x10}})
	seq, ok := v.(starlark.Indexable)
	if !ok || seq.Len() != 1 {
		t.Fatalf("got %v", v)
	}
	th, ok := seq.Index(0).(starlark.HasAttrs)
	if !ok {
		t.Fatalf("got %T", seq.Index(0))
	}
	pc, err := th.Attr("PC")
	if err != nil || pc.String() != "16" {
		t.Errorf("got %v %v", pc, err)
	}
	if _, err := th.Attr("Nope"); err == nil {
		t.Error("unknown attribute accepted")
	}
}
