package terminal

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/v8scope/v8scope/pkg/config"
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

type FakeTerminal struct {
	*Term
	t testing.TB
}

func newFakeTerminal(t testing.TB, b *v8test.Heap, threads ...proc.Thread) *FakeTerminal {
	if len(threads) == 0 {
		threads = []proc.Thread{{ID: 1}}
	}
	d := debugger.NewWithTarget(&debugger.Config{}, &fakeProcess{Heap: b, threads: threads}, v8test.Constants())
	return &FakeTerminal{Term: New(d, &config.Config{}), t: t}
}

func (ft *FakeTerminal) Exec(cmdstr string) (string, error) {
	var buf bytes.Buffer
	old := ft.Term.stdout
	ft.Term.stdout = newTranscriptWriter(&buf, false)
	ft.Term.starlarkEnv.Redirect(ft.Term.stdout)
	defer func() {
		ft.Term.stdout = old
		ft.Term.starlarkEnv.Redirect(old)
	}()
	err := ft.cmds.Call(cmdstr, ft.Term)
	return buf.String(), err
}

func (ft *FakeTerminal) MustExec(cmdstr string) string {
	outstr, err := ft.Exec(cmdstr)
	if err != nil {
		ft.t.Errorf("output of %q: %q", cmdstr, outstr)
		ft.t.Fatalf("Error executing <%s>: %v", cmdstr, err)
	}
	return outstr
}

func (ft *FakeTerminal) AssertExecError(cmdstr, tgterr string) {
	_, err := ft.Exec(cmdstr)
	if err == nil {
		ft.t.Fatalf("Expected error executing %q", cmdstr)
	}
	if !strings.Contains(err.Error(), tgterr) {
		ft.t.Fatalf("Expected error %q executing %q, got error %q", tgterr, cmdstr, err.Error())
	}
}

func TestCommandDefault(t *testing.T) {
	ft := newFakeTerminal(t, v8test.New())
	ft.AssertExecError("nonexistent-command", "command not available")
	if out := ft.MustExec(""); out != "" {
		t.Errorf("empty command printed %q", out)
	}
}

func TestExitCommand(t *testing.T) {
	ft := newFakeTerminal(t, v8test.New())
	for _, cmd := range []string{"exit", "quit", "q"} {
		if _, err := ft.Exec(cmd); err != (ExitRequestError{}) {
			t.Errorf("%s: got %v", cmd, err)
		}
	}
}

func TestHelp(t *testing.T) {
	ft := newFakeTerminal(t, v8test.New())
	out := ft.MustExec("help")
	for _, want := range []string{"inspect (alias: i)", "bt (alias: stack)", "Viewing the call stack:"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output does not contain %q:\n%s", want, out)
		}
	}
	if out := ft.MustExec("help f"); !strings.HasPrefix(out, "Describes a stack frame.") {
		t.Errorf("got %q", out)
	}
	ft.AssertExecError("help nope", "command not available")
}

func TestInspectCommand(t *testing.T) {
	b := v8test.New()
	str := b.OneByteString("ohai")
	slot := b.Alloc(8)
	b.PutWord(slot, str)
	ft := newFakeTerminal(t, b)

	want := fmt.Sprintf("0x%016x:<String: \"ohai\">\n", uint64(str))
	for _, cmd := range []string{
		fmt.Sprintf("inspect %#x", str),
		fmt.Sprintf("i %d", str),
		fmt.Sprintf("inspect *%#x", slot),
		fmt.Sprintf("v8 inspect %#x", str),
	} {
		if out := ft.MustExec(cmd); out != want {
			t.Errorf("%s: got %q, want %q", cmd, out, want)
		}
	}
	ft.AssertExecError("inspect", "not enough arguments")
	ft.AssertExecError("inspect nope", "invalid value")
}

func TestHighlightAddrs(t *testing.T) {
	in := "add(this=0x0000000000100051:<undefined>)\n"
	tests := []struct {
		color bool
		want  string
	}{
		{false, in},
		{true, "add(this=\033[34m0x0000000000100051:\033[0m<undefined>)\n"},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		w := newTranscriptWriter(&buf, tc.color)
		if _, err := io.WriteString(w, in); err != nil {
			t.Fatal(err)
		}
		if buf.String() != tc.want {
			t.Errorf("color=%v: got %q, want %q", tc.color, buf.String(), tc.want)
		}
	}
}

func TestTranscript(t *testing.T) {
	b := v8test.New()
	str := b.OneByteString("ohai")
	ft := newFakeTerminal(t, b)
	path := filepath.Join(t.TempDir(), "transcript.txt")

	// the transcript belongs to the terminal writer, not to the one Exec
	// installs
	var buf bytes.Buffer
	ft.stdout = newTranscriptWriter(&buf, true)
	if err := ft.cmds.Call("transcript -t "+path, ft.Term); err != nil {
		t.Fatal(err)
	}
	if err := ft.cmds.Call(fmt.Sprintf("inspect %#x", str), ft.Term); err != nil {
		t.Fatal(err)
	}
	if err := ft.cmds.Call("transcript -off", ft.Term); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("0x%016x:<String: \"ohai\">\n", uint64(str))
	if string(data) != want {
		t.Errorf("transcript %q, want %q", data, want)
	}
	if screen := fmt.Sprintf("\033[34m0x%016x:\033[0m<String: \"ohai\">\n", uint64(str)); buf.String() != screen {
		t.Errorf("output %q, want %q", buf.String(), screen)
	}
	ft.AssertExecError("transcript", "no output path")
	ft.AssertExecError("transcript -off "+path, "-off option")
}

func TestComplete(t *testing.T) {
	c := DebugCommands()
	got := c.complete("th")
	if strings.Join(got, ",") != "thread,threads" {
		t.Errorf("got %q", got)
	}
	if got := c.complete("zz"); len(got) != 0 {
		t.Errorf("got %q", got)
	}
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	DebugCommands().WriteMarkdown(&buf)
	out := buf.String()
	for _, want := range []string{"## inspect\n", "[bt](#bt) | Prints the stack trace of the current thread.", "Aliases: i\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}
