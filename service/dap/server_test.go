package dap

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/v8scope/v8scope/pkg/proc"
	"github.com/v8scope/v8scope/pkg/v8/v8test"
	"github.com/v8scope/v8scope/service/dap/daptest"
	"github.com/v8scope/v8scope/service/debugger"
)

type fakeProcess struct {
	*v8test.Heap
	threads []proc.Thread
}

func (p *fakeProcess) Pid() int                   { return 42 }
func (p *fakeProcess) ThreadList() []proc.Thread  { return p.threads }
func (p *fakeProcess) CurrentThread() proc.Thread { return p.threads[0] }
func (p *fakeProcess) Close() error               { return nil }

// startServer starts a server whose launch and attach requests open p
// after checkConfig accepted the debugger configuration.
func startServer(t *testing.T, p *fakeProcess, checkConfig func(*debugger.Config) error) (*daptest.Client, <-chan struct{}) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("cannot setup listener required for testing: %v", err)
	}
	disconnectChan := make(chan struct{})
	server := NewServer(&Config{Listener: listener, DisconnectChan: disconnectChan})
	server.openTarget = func(cfg *debugger.Config) (*debugger.Debugger, error) {
		if err := checkConfig(cfg); err != nil {
			return nil, err
		}
		return debugger.NewWithTarget(cfg, p, v8test.Constants()), nil
	}
	server.Run()

	client, err := daptest.NewClient(listener.Addr().String())
	if err != nil {
		server.Stop()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client, disconnectChan
}

func expectErrorID(t *testing.T, client *daptest.Client, id int, format string) {
	t.Helper()
	er := client.ExpectErrorResponse(t)
	if er.Body.Error == nil || er.Body.Error.Id != id {
		t.Fatalf("got %#v, want error id %d", er.Body.Error, id)
	}
	if !strings.Contains(er.Body.Error.Format, format) {
		t.Errorf("got %q, want it to contain %q", er.Body.Error.Format, format)
	}
}

func addr(v int64) string {
	return fmt.Sprintf("0x%016x:", uint64(v))
}

func TestLaunchSession(t *testing.T) {
	b := v8test.New()
	str := b.OneByteString("hello")
	slot := b.Alloc(8)
	b.PutWord(slot, str)
	script := b.Script(b.OneByteString("/app/index.js"), b.OneByteString("function outer() {}\nfunction inner(a) {}"))
	inner := b.Function(b.SharedInfo(b.OneByteString("inner"), b.OneByteString(""), script, 20, 1))
	context := b.Object(b.Map(v8test.FixedArrayType), 16)
	fp2 := b.Frame(0, context, inner, b.Undefined(), b.Smi(3))
	fp1 := b.Frame(0, b.Smi(0), b.Smi(0), b.Smi(0))
	b.SetMarker(fp1, v8test.ExitFrame)
	b.PutWord(fp2, fp1)

	p := &fakeProcess{Heap: b, threads: []proc.Thread{{ID: 7, FP: uint64(fp2), PC: 0x1234}}}
	client, disconnected := startServer(t, p, func(cfg *debugger.Config) error {
		if cfg.CoreFile != "core.1" || cfg.ExecutablePath != "/usr/bin/node" {
			return fmt.Errorf("unexpected target %q %q", cfg.CoreFile, cfg.ExecutablePath)
		}
		if cfg.Options.MaxStringLen != 4 {
			return fmt.Errorf("max string len %d", cfg.Options.MaxStringLen)
		}
		if v, ok := cfg.Constants["SmiTag"]; !ok || v != 0 {
			return fmt.Errorf("constants %v", cfg.Constants)
		}
		return nil
	})

	client.InitializeRequest()
	if r := client.ExpectInitializeResponse(t); !r.Body.SupportsReadMemoryRequest {
		t.Errorf("readMemory not advertised: %#v", r.Body)
	}

	client.LaunchRequest(map[string]interface{}{
		"mode":          "core",
		"program":       "/usr/bin/node",
		"coreFilePath":  "core.1",
		"maxStringLen":  4,
		"showFrameArgs": true,
		"constants":     map[string]int64{"v8dbg_SmiTag": 0},
	})
	client.ExpectInitializedEvent(t)
	client.ExpectLaunchResponse(t)

	client.ConfigurationDoneRequest()
	client.ExpectConfigurationDoneResponse(t)
	if se := client.ExpectStoppedEvent(t); se.Body.ThreadId != 7 || !se.Body.AllThreadsStopped {
		t.Errorf("got %#v", se.Body)
	}

	client.ThreadsRequest()
	threads := client.ExpectThreadsResponse(t).Body.Threads
	if len(threads) != 1 || threads[0].Id != 7 || threads[0].Name != "Thread 7" {
		t.Errorf("got %#v", threads)
	}

	client.StackTraceRequest(7, 0, 0)
	st := client.ExpectStackTraceResponse(t)
	frames := st.Body.StackFrames
	if st.Body.TotalFrames != 2 || len(frames) != 2 {
		t.Fatalf("got %#v", st.Body)
	}
	if want := "inner(this=" + addr(b.Undefined()) + "<undefined>, <Smi: 3>) at /app/index.js:2:1"; frames[0].Name != want {
		t.Errorf("frame 0: got %q, want %q", frames[0].Name, want)
	}
	if frames[1].Name != "<exit>" || frames[1].PresentationHint != "label" {
		t.Errorf("frame 1: got %#v", frames[1])
	}

	client.StackTraceRequest(7, 1, 1)
	st = client.ExpectStackTraceResponse(t)
	if st.Body.TotalFrames != 2 || len(st.Body.StackFrames) != 1 || st.Body.StackFrames[0].Name != "<exit>" {
		t.Errorf("paged: got %#v", st.Body)
	}
	if len(st.Body.StackFrames) == 1 && st.Body.StackFrames[0].Id != frames[1].Id {
		t.Errorf("frame id changed between requests: %d, was %d", st.Body.StackFrames[0].Id, frames[1].Id)
	}

	client.ScopesRequest(frames[0].Id)
	scopes := client.ExpectScopesResponse(t).Body.Scopes
	if len(scopes) != 1 || scopes[0].Name != "Arguments" {
		t.Fatalf("got %#v", scopes)
	}
	client.ScopesRequest(frames[0].Id)
	if again := client.ExpectScopesResponse(t).Body.Scopes; len(again) != 1 || again[0].VariablesReference != scopes[0].VariablesReference {
		t.Errorf("scope reference changed between requests: %#v", again)
	}
	client.VariablesRequest(scopes[0].VariablesReference)
	vars := client.ExpectVariablesResponse(t).Body.Variables
	if len(vars) != 2 || vars[0].Name != "this" || vars[1].Name != "arg0" || vars[1].Value != "<Smi: 3>" {
		t.Errorf("got %#v", vars)
	}

	evaluate := func(expr, want string) {
		t.Helper()
		client.EvaluateRequest(expr, 0, "repl")
		got := client.ExpectEvaluateResponse(t).Body.Result
		if got != want {
			t.Errorf("%s: got %q, want %q", expr, got, want)
		}
	}
	evaluate(fmt.Sprintf("%#x", str), addr(str)+`<String: "hell...">`)
	evaluate("v8 config maxStringLen 16", "maxStringLen\t16\n\nUpdated")
	evaluate(fmt.Sprintf("*%#x", slot), addr(str)+`<String: "hello">`)
	evaluate("v8 config -list showFrameArgs", "showFrameArgs\ttrue\n")
	evaluate(fmt.Sprintf("v8 frame %#x", fp1), "<exit>")
	evaluate("v8 constants SmiTagM", "v8dbg_SmiTagMask\t1\n")

	client.EvaluateRequest("v8 help", 0, "repl")
	if got := client.ExpectEvaluateResponse(t).Body.Result; !strings.Contains(got, "frame (alias: f)") {
		t.Errorf("help: got %q", got)
	}
	client.EvaluateRequest("v8 nope", 0, "repl")
	expectErrorID(t, client, UnableToEvaluateExpression, "command not available")
	client.EvaluateRequest("nope", 0, "watch")
	expectErrorID(t, client, UnableToEvaluateExpression, "invalid value")

	client.ReadMemoryRequest(fmt.Sprintf("%#x", slot), 0, 8)
	mem := client.ExpectReadMemoryResponse(t)
	want := make([]byte, 8)
	binary.LittleEndian.PutUint64(want, uint64(str))
	if mem.Body.Data != base64.StdEncoding.EncodeToString(want) || mem.Body.Address != fmt.Sprintf("%#x", slot) {
		t.Errorf("got %#v", mem.Body)
	}
	client.ReadMemoryRequest(fmt.Sprintf("%#x", b.End()), 0x1000, 8)
	if mem := client.ExpectReadMemoryResponse(t); mem.Body.UnreadableBytes != 8 || mem.Body.Data != "" {
		t.Errorf("unreadable: got %#v", mem.Body)
	}

	client.ContinueRequest(7)
	expectErrorID(t, client, UnsupportedCommand, `cannot process "continue" request`)

	client.DisconnectRequest()
	client.ExpectDisconnectResponse(t)
	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect was not signaled")
	}
}

func TestRequestsWithoutTarget(t *testing.T) {
	p := &fakeProcess{Heap: v8test.New(), threads: []proc.Thread{{ID: 1}}}
	client, _ := startServer(t, p, func(cfg *debugger.Config) error {
		if cfg.AttachPid != 12 {
			return fmt.Errorf("could not attach to pid %d", cfg.AttachPid)
		}
		return nil
	})

	client.ThreadsRequest()
	expectErrorID(t, client, UnableToDisplayThreads, "debugger is nil")
	client.StackTraceRequest(1, 0, 0)
	expectErrorID(t, client, UnableToProduceStackTrace, "debugger is nil")
	client.EvaluateRequest("0x10", 0, "repl")
	expectErrorID(t, client, UnableToEvaluateExpression, "debugger is nil")
	client.ScopesRequest(1000)
	expectErrorID(t, client, UnableToListArgs, "unknown frame id 1000")
	client.VariablesRequest(1000)
	expectErrorID(t, client, UnableToLookupVariable, "unknown reference 1000")

	tests := []struct {
		args   map[string]interface{}
		launch bool
		id     int
		want   string
	}{
		{map[string]interface{}{"mode": "exec", "program": "node"}, true, FailedToLaunch, `unsupported 'mode' attribute "exec"`},
		{map[string]interface{}{"program": "node"}, true, FailedToLaunch, "'coreFilePath' attributes are required"},
		{map[string]interface{}{"program": 5}, true, FailedToLaunch, `cannot unmarshal number into "program" of type string`},
		{map[string]interface{}{"mode": "remote"}, false, FailedToAttach, `unsupported 'mode' attribute "remote"`},
		{map[string]interface{}{}, false, FailedToAttach, "'processId' attribute is missing"},
		{map[string]interface{}{"processId": 3}, false, FailedToAttach, "could not attach to pid 3"},
	}
	for _, tc := range tests {
		if tc.launch {
			client.LaunchRequest(tc.args)
		} else {
			client.AttachRequest(tc.args)
		}
		expectErrorID(t, client, tc.id, tc.want)
	}

	client.AttachRequest(map[string]interface{}{"mode": "local", "processId": 12})
	client.ExpectInitializedEvent(t)
	client.ExpectAttachResponse(t)
	client.AttachRequest(map[string]interface{}{"processId": 12})
	expectErrorID(t, client, FailedToAttach, "debug session already in progress")

	client.ThreadsRequest()
	if threads := client.ExpectThreadsResponse(t).Body.Threads; len(threads) != 1 || threads[0].Id != 1 {
		t.Errorf("got %#v", threads)
	}
}

func TestUnsupportedRequest(t *testing.T) {
	client, _ := startServer(t, &fakeProcess{Heap: v8test.New()}, func(*debugger.Config) error { return nil })
	client.InitializeRequest()
	client.ExpectInitializeResponse(t)

	for _, cmd := range []string{"next", "pause", "setVariable"} {
		var m dap.Message
		switch cmd {
		case "next":
			m = &dap.NextRequest{Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 10, Type: "request"}, Command: cmd}}
		case "pause":
			m = &dap.PauseRequest{Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 11, Type: "request"}, Command: cmd}}
		case "setVariable":
			m = &dap.SetVariableRequest{Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 12, Type: "request"}, Command: cmd}}
		}
		client.Send(m)
		expectErrorID(t, client, UnsupportedCommand, fmt.Sprintf("cannot process %q request", cmd))
	}
}

func TestListConfig(t *testing.T) {
	tests := []struct {
		name string
		args *launchAttachArgs
		want string
	}{
		{"empty", &launchAttachArgs{}, "stackTraceDepth\t0\nshowFrameArgs\tfalse\nmaxStringLen\t0\n"},
		{"default values", &defaultArgs, "stackTraceDepth\t50\nshowFrameArgs\tfalse\nmaxStringLen\t0\n"},
		{"custom values", &launchAttachArgs{StackTraceDepth: 35, ShowFrameArgs: true, MaxStringLen: 8}, "stackTraceDepth\t35\nshowFrameArgs\ttrue\nmaxStringLen\t8\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := listConfig(tt.args); got != tt.want {
				t.Errorf("listConfig() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigureSet(t *testing.T) {
	args := defaultArgs
	tests := []struct {
		in      string
		updated bool
		want    string
		wantErr bool
	}{
		{"stackTraceDepth", false, "stackTraceDepth\t50\n", false},
		{"stackTraceDepth 20", true, "stackTraceDepth\t20\n", false},
		{"showFrameArgs true", true, "showFrameArgs\ttrue\n", false},
		{"showFrameArgs yes", false, "", true},
		{"stackTraceDepth -1", false, "", true},
		{"substitutePath a b", false, "", true},
	}
	for _, tc := range tests {
		updated, got, err := configureSet(&args, tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: unexpected error %v", tc.in, err)
			continue
		}
		if updated != tc.updated || got != tc.want {
			t.Errorf("%q: got %v %q, want %v %q", tc.in, updated, got, tc.updated, tc.want)
		}
	}
	if args.StackTraceDepth != 20 || !args.ShowFrameArgs {
		t.Errorf("got %#v", args)
	}
}
