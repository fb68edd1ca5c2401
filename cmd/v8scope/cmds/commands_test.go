package cmds

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/v8scope/v8scope/pkg/config"
	"github.com/v8scope/v8scope/pkg/layout"
	"github.com/v8scope/v8scope/pkg/proc"
	"github.com/v8scope/v8scope/pkg/v8/v8test"
	"github.com/v8scope/v8scope/service/debugger"
)

type fakeProcess struct {
	*v8test.Heap
}

func (p *fakeProcess) Pid() int                   { return 1 }
func (p *fakeProcess) ThreadList() []proc.Thread  { return []proc.Thread{{ID: 1}} }
func (p *fakeProcess) CurrentThread() proc.Thread { return proc.Thread{ID: 1} }
func (p *fakeProcess) Close() error               { return nil }

func TestCommandTree(t *testing.T) {
	t.Setenv("V8SCOPE_CONFIG_DIR", t.TempDir())
	root := New(false)
	want := []string{"attach", "constants", "core", "dap", "docs", "inspect", "log", "version"}
	got := map[string]bool{}
	for _, c := range root.Commands() {
		got[c.Name()] = true
		if c.Name() == "docs" && !c.Hidden {
			t.Errorf("docs command should be hidden")
		}
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
	for _, flag := range []string{"log", "log-output", "log-dest", "init", "layout", "v8-version", "const"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	t.Setenv("V8SCOPE_CONFIG_DIR", t.TempDir())
	root := New(false)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "v8scope\nVersion: ") {
		t.Fatalf("unexpected version output %q", buf.String())
	}
}

func TestDebuggerConfig(t *testing.T) {
	pages := 4
	conf = &config.Config{V8Version: "~7.4", MemoryCachePages: &pages}
	defer func() {
		conf = nil
		constants = nil
		v8Version = ""
	}()

	constants = map[string]int64{"v8dbg_SmiShiftSize": 31, "HeapObjectTag": 1}
	cfg := debuggerConfig()
	if cfg.V8Version != "~7.4" {
		t.Errorf("V8Version = %q, want the configured constraint", cfg.V8Version)
	}
	if cfg.MemoryCachePages != 4 {
		t.Errorf("MemoryCachePages = %d, want 4", cfg.MemoryCachePages)
	}
	if cfg.Constants["SmiShiftSize"] != 31 || cfg.Constants["HeapObjectTag"] != 1 {
		t.Errorf("unexpected constants %v", cfg.Constants)
	}

	v8Version = ">=8"
	if cfg := debuggerConfig(); cfg.V8Version != ">=8" {
		t.Errorf("V8Version = %q, want the flag to override the configuration", cfg.V8Version)
	}
}

func TestInspectValues(t *testing.T) {
	b := v8test.New()
	str := b.OneByteString("ohai")
	d := debugger.NewWithTarget(&debugger.Config{}, &fakeProcess{b}, v8test.Constants())

	var out, errOut bytes.Buffer
	status := inspectValues(&out, &errOut, d, []string{fmt.Sprintf("%#x", str), "zz", fmt.Sprintf("%#x", b.Smi(3))})
	if status != 1 {
		t.Errorf("status = %d, want 1", status)
	}
	want := fmt.Sprintf("0x%016x:<String: \"ohai\">\n<Smi: 3>\n", uint64(str))
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
	if !strings.HasPrefix(errOut.String(), "zz: ") {
		t.Errorf("unexpected error output %q", errOut.String())
	}
}

func TestPrintConstants(t *testing.T) {
	lo := layout.Load(layout.MapSource{"SmiTag": 0, "SmiShiftSize": 31, "HeapObjectTag": 1})

	var buf bytes.Buffer
	if err := printConstants(&buf, lo, "v8dbg_Smi"); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "v8dbg_Smi") {
			t.Errorf("unexpected line %q", l)
		}
	}

	if err := printConstants(&buf, lo, "Nope"); err == nil {
		t.Errorf("expected an error for a prefix matching nothing")
	}
}
