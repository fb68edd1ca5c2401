// Package dap implements VSCode's Debug Adaptor Protocol (DAP).
// This allows v8scope to communicate with frontends using DAP
// without a separate adaptor. The frontend will run v8scope
// (which then doubles as an adaptor) in server mode listening on
// a port and communicating over TCP. The target is always paused so
// the server only supports synchronous request-response communication,
// blocking while processing each request.
// For DAP details see https://microsoft.github.io/debug-adapter-protocol.
package dap

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/google/go-dap"
	"github.com/v8scope/v8scope/pkg/layout"
	"github.com/v8scope/v8scope/pkg/logflags"
	"github.com/v8scope/v8scope/service/debugger"
)

// Config is all the information necessary to start the server.
type Config struct {
	// Listener is used to accept the client connection.
	Listener net.Listener

	// DisconnectChan will be closed by the server when the client
	// disconnects.
	DisconnectChan chan<- struct{}

	// Debugger is the base configuration of the debugger started by
	// launch and attach requests. Request arguments override it.
	Debugger debugger.Config
}

// Server implements a DAP server that can accept a single client for
// a single debug session. It does not support restarting.
// The server operates via two goroutines:
// (1) Main goroutine where the server is created via NewServer(),
// started via Run() and stopped via Stop().
// (2) Run goroutine started from Run() that accepts a client connection,
// reads, decodes and processes each request, issuing commands to the
// underlying debugger and sending back events and responses.
type Server struct {
	// config is all the information necessary to start the debugger and server.
	config *Config
	// listener is used to accept the client connection.
	listener net.Listener
	// conn is the accepted client connection.
	conn net.Conn
	// stopChan is closed when the server is Stop()-ed.
	stopChan chan struct{}
	// reader is used to read requests from the connection.
	reader *bufio.Reader
	// debugger is the underlying debugger service.
	debugger *debugger.Debugger
	// openTarget starts the debugger for launch and attach requests.
	openTarget func(*debugger.Config) (*debugger.Debugger, error)
	// log is used for structured logging.
	log logflags.Logger
	// stackFrameHandles maps frames of each thread to unique ids across all threads.
	stackFrameHandles *handlesMap
	// variableHandles maps argument scopes to unique references.
	variableHandles *handlesMap
	// args tracks special settings for handling debug session requests.
	args launchAttachArgs
}

// launchAttachArgs captures arguments from launch/attach request that
// impact handling of subsequent requests. The fields with cfgName tag
// can be updated through an evaluation request.
type launchAttachArgs struct {
	// StackTraceDepth is the maximum length of the returned list of stack frames.
	StackTraceDepth int `cfgName:"stackTraceDepth"`
	// ShowFrameArgs renders the receiver and arguments in frame names.
	ShowFrameArgs bool `cfgName:"showFrameArgs"`
	// MaxStringLen is the number of characters printed before a string is
	// truncated.
	MaxStringLen int `cfgName:"maxStringLen"`
}

// defaultArgs borrows the defaults for the arguments from the original vscode-go adapter.
var defaultArgs = launchAttachArgs{
	StackTraceDepth: 50,
}

// maxReadMemory is the largest range a readMemory request returns.
const maxReadMemory = 1 << 16

// NewServer creates a new DAP Server. It takes an opened Listener
// via config and assumes its ownership. config.DisconnectChan has to be set;
// it will be closed by the server when the client disconnects or requests
// shutdown. Once DisconnectChan is closed, Server.Stop() must be called.
func NewServer(config *Config) *Server {
	logger := logflags.DAPLogger()
	logflags.WriteDAPListeningMessage(config.Listener.Addr().String())
	logger.Debug("DAP server pid = ", os.Getpid())
	return &Server{
		config:            config,
		listener:          config.Listener,
		stopChan:          make(chan struct{}),
		openTarget:        debugger.New,
		log:               logger,
		stackFrameHandles: newHandlesMap(),
		variableHandles:   newHandlesMap(),
		args:              defaultArgs,
	}
}

// Stop stops the DAP server, closes the listener and the client
// connection and releases the target. This method mustn't be called more
// than once.
func (s *Server) Stop() {
	s.listener.Close()
	close(s.stopChan)
	if s.conn != nil {
		// Unless Stop() was called after serveDAPCodec()
		// returned, this will result in closed connection error
		// on next read, breaking out of the read loop and
		// allowing the run goroutine to exit.
		s.conn.Close()
	}
	if s.debugger != nil {
		if err := s.debugger.Detach(); err != nil {
			s.log.Error(err)
		}
	}
}

// signalDisconnect closes config.DisconnectChan if not nil, which
// signals that the client disconnected or there was a client
// connection failure. It can be called multiple times. It is not
// thread-safe and is only called from the run goroutine.
func (s *Server) signalDisconnect() {
	if s.config.DisconnectChan != nil {
		close(s.config.DisconnectChan)
		s.config.DisconnectChan = nil
	}
}

// Run launches a new goroutine where it accepts a client connection
// and starts processing requests from it. Use Stop() to close connection.
// The server does not support multiple clients, serially or in parallel.
// The debugger won't be started until launch/attach request is received.
func (s *Server) Run() {
	go func() {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
			default:
				s.log.Errorf("Error accepting client connection: %s\n", err)
			}
			s.signalDisconnect()
			return
		}
		s.conn = conn
		s.serveDAPCodec()
	}()
}

// serveDAPCodec reads and decodes requests from the client
// until it encounters an error or EOF, when it sends
// the disconnect signal and returns.
func (s *Server) serveDAPCodec() {
	defer s.signalDisconnect()
	s.reader = bufio.NewReader(s.conn)
	for {
		request, err := dap.ReadProtocolMessage(s.reader)
		if err != nil {
			stopRequested := false
			select {
			case <-s.stopChan:
				stopRequested = true
			default:
			}
			if err != io.EOF && !stopRequested {
				s.log.Error("DAP error: ", err)
			}
			return
		}
		s.handleRequest(request)
		if _, ok := request.(*dap.DisconnectRequest); ok {
			return
		}
	}
}

func (s *Server) handleRequest(request dap.Message) {
	defer func() {
		// In case a handler panics, we catch the panic and send an error response
		// back to the client.
		if ierr := recover(); ierr != nil {
			s.sendInternalErrorResponse(request.GetSeq(), fmt.Sprintf("%v", ierr))
		}
	}()

	jsonmsg, _ := json.Marshal(request)
	s.log.Debug("[<- from client]", string(jsonmsg))

	switch request := request.(type) {
	case *dap.InitializeRequest:
		s.onInitializeRequest(request)
	case *dap.LaunchRequest:
		s.onLaunchRequest(request)
	case *dap.AttachRequest:
		s.onAttachRequest(request)
	case *dap.DisconnectRequest:
		s.onDisconnectRequest(request)
	case *dap.ConfigurationDoneRequest:
		s.onConfigurationDoneRequest(request)
	case *dap.ThreadsRequest:
		s.onThreadsRequest(request)
	case *dap.StackTraceRequest:
		s.onStackTraceRequest(request)
	case *dap.ScopesRequest:
		s.onScopesRequest(request)
	case *dap.VariablesRequest:
		s.onVariablesRequest(request)
	case *dap.EvaluateRequest:
		s.onEvaluateRequest(request)
	case *dap.ReadMemoryRequest:
		s.onReadMemoryRequest(request)
	case *dap.SetExceptionBreakpointsRequest:
		// vscode sends this unconditionally during configuration.
		s.send(&dap.SetExceptionBreakpointsResponse{Response: *newResponse(request.Request)})
	case *dap.ContinueRequest, *dap.NextRequest, *dap.StepInRequest, *dap.StepOutRequest,
		*dap.PauseRequest, *dap.RestartRequest, *dap.TerminateRequest:
		// The target is a core file or a stopped process that is never resumed.
		s.sendUnsupportedErrorResponse(requestOf(request))
	default:
		if r, ok := request.(dap.RequestMessage); ok {
			s.sendUnsupportedErrorResponse(*r.GetRequest())
			return
		}
		s.log.Errorf("Unable to process %#v\n", request)
	}
}

func requestOf(m dap.Message) dap.Request {
	return *m.(dap.RequestMessage).GetRequest()
}

func (s *Server) send(message dap.Message) {
	jsonmsg, _ := json.Marshal(message)
	s.log.Debug("[-> to client]", string(jsonmsg))
	dap.WriteProtocolMessage(s.conn, message)
}

func (s *Server) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{Response: *newResponse(request.Request)}
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsReadMemoryRequest = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsSetVariable = false
	response.Body.SupportsTerminateRequest = false
	response.Body.SupportsRestartRequest = false
	response.Body.SupportsStepBack = false
	s.send(response)
}

// onLaunchRequest opens a core file.
func (s *Server) onLaunchRequest(request *dap.LaunchRequest) {
	if s.debugger != nil {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch", "debug session already in progress")
		return
	}
	var args LaunchConfig
	if err := unmarshalLaunchAttachArgs(request.Arguments, &args); err != nil {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch", fmt.Sprintf("invalid debug configuration - %v", err))
		return
	}
	if args.Mode == "" {
		args.Mode = CoreLaunchMode
	}
	if !isValidLaunchMode(args.Mode) {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch",
			fmt.Sprintf("invalid debug configuration - unsupported 'mode' attribute %q", args.Mode))
		return
	}
	if args.Program == "" || args.CoreFilePath == "" {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch",
			"the 'program' and 'coreFilePath' attributes are required in core mode")
		return
	}

	cfg := s.debuggerConfig(&args.LaunchAttachCommonConfig)
	cfg.ExecutablePath = args.Program
	cfg.CoreFile = args.CoreFilePath
	if err := s.startDebugger(cfg, &args.LaunchAttachCommonConfig); err != nil {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch", err.Error())
		return
	}

	// Notify the client that the debugger is ready to start accepting
	// configuration requests. The client will end the configuration
	// sequence with 'configurationDone'.
	s.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
	s.send(&dap.LaunchResponse{Response: *newResponse(request.Request)})
}

// onAttachRequest inspects a stopped local process.
func (s *Server) onAttachRequest(request *dap.AttachRequest) {
	if s.debugger != nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", "debug session already in progress")
		return
	}
	var args AttachConfig
	if err := unmarshalLaunchAttachArgs(request.Arguments, &args); err != nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", fmt.Sprintf("invalid debug configuration - %v", err))
		return
	}
	if args.Mode == "" {
		args.Mode = LocalAttachMode
	}
	if !isValidAttachMode(args.Mode) {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach",
			fmt.Sprintf("invalid debug configuration - unsupported 'mode' attribute %q", args.Mode))
		return
	}
	if args.ProcessID == 0 {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach",
			"the 'processId' attribute is missing in debug configuration")
		return
	}

	cfg := s.debuggerConfig(&args.LaunchAttachCommonConfig)
	cfg.AttachPid = args.ProcessID
	cfg.ExecutablePath = args.Program
	if err := s.startDebugger(cfg, &args.LaunchAttachCommonConfig); err != nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", err.Error())
		return
	}

	s.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
	s.send(&dap.AttachResponse{Response: *newResponse(request.Request)})
}

// debuggerConfig returns a copy of the base debugger configuration with
// the attributes of args applied.
func (s *Server) debuggerConfig(args *LaunchAttachCommonConfig) *debugger.Config {
	cfg := s.config.Debugger
	if args.LayoutProfile != "" {
		cfg.LayoutProfile = args.LayoutProfile
	}
	if args.V8Version != "" {
		cfg.V8Version = args.V8Version
	}
	if len(args.Constants) > 0 {
		cfg.Constants = make(layout.MapSource, len(args.Constants))
		for k, v := range args.Constants {
			cfg.Constants[strings.TrimPrefix(k, layout.ConstantPrefix)] = v
		}
	}
	if args.MaxStringLen > 0 {
		cfg.Options.MaxStringLen = args.MaxStringLen
	}
	return &cfg
}

func (s *Server) startDebugger(cfg *debugger.Config, args *LaunchAttachCommonConfig) error {
	d, err := s.openTarget(cfg)
	if err != nil {
		return err
	}
	s.debugger = d
	if args.StackTraceDepth > 0 {
		s.args.StackTraceDepth = args.StackTraceDepth
	}
	s.args.ShowFrameArgs = args.ShowFrameArgs
	s.args.MaxStringLen = d.Heap().Options().MaxStringLen
	return nil
}

// onDisconnectRequest handles the DisconnectRequest. Per the protocol,
// it disconnects the debuggee and signals that the debug adaptor
// (in our case this TCP server) can be terminated.
func (s *Server) onDisconnectRequest(request *dap.DisconnectRequest) {
	s.send(&dap.DisconnectResponse{Response: *newResponse(request.Request)})
	if s.debugger != nil {
		if err := s.debugger.Detach(); err != nil {
			s.log.Error(err)
		}
	}
	s.signalDisconnect()
}

// onConfigurationDoneRequest reports the target as stopped: it is either
// a core file or a process that was stopped before attaching.
func (s *Server) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	s.send(&dap.ConfigurationDoneResponse{Response: *newResponse(request.Request)})
	if s.debugger == nil {
		return
	}
	e := &dap.StoppedEvent{
		Event: *newEvent("stopped"),
		Body:  dap.StoppedEventBody{Reason: "pause", ThreadId: s.debugger.CurrentThread().ID, AllThreadsStopped: true},
	}
	s.send(e)
}

func (s *Server) onThreadsRequest(request *dap.ThreadsRequest) {
	if s.debugger == nil {
		s.sendErrorResponse(request.Request, UnableToDisplayThreads, "Unable to display threads", "debugger is nil")
		return
	}
	ths := s.debugger.Threads()
	threads := make([]dap.Thread, len(ths))
	if len(threads) == 0 {
		// The protocol states that "even if a debug adapter does not
		// support multiple threads, it must implement the threads request
		// and return a single (dummy) thread".
		threads = []dap.Thread{{Id: 1, Name: "Dummy"}}
	}
	for i, th := range ths {
		threads[i] = dap.Thread{Id: th.ID, Name: fmt.Sprintf("Thread %d", th.ID)}
	}
	response := &dap.ThreadsResponse{
		Response: *newResponse(request.Request),
		Body:     dap.ThreadsResponseBody{Threads: threads},
	}
	s.send(response)
}

// stackFrame identifies a frame within the stack of a specific thread.
type stackFrame struct {
	threadID   int
	frameIndex int
	fp         uint64
}

// onStackTraceRequest handles 'stackTrace' requests.
func (s *Server) onStackTraceRequest(request *dap.StackTraceRequest) {
	if s.debugger == nil {
		s.sendErrorResponse(request.Request, UnableToProduceStackTrace, "Unable to produce stack trace", "debugger is nil")
		return
	}
	threadID := request.Arguments.ThreadId
	frames, err := s.debugger.Stacktrace(threadID, s.args.StackTraceDepth, s.args.ShowFrameArgs)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToProduceStackTrace, "Unable to produce stack trace", err.Error())
		return
	}

	stackFrames := make([]dap.StackFrame, len(frames))
	for i, f := range frames {
		id := s.stackFrameHandles.lookupOrCreate(stackFrame{threadID, f.Index, f.FP})
		stackFrames[i] = dap.StackFrame{Id: id, Name: f.Text}
		switch {
		case f.Err != nil:
			stackFrames[i].Name = "<error: " + f.Err.Error() + ">"
			stackFrames[i].PresentationHint = "subtle"
		case strings.HasPrefix(f.Text, "<"):
			stackFrames[i].PresentationHint = "label"
		}
	}
	if request.Arguments.StartFrame > 0 {
		stackFrames = stackFrames[min(request.Arguments.StartFrame, len(stackFrames)):]
	}
	if request.Arguments.Levels > 0 {
		stackFrames = stackFrames[:min(request.Arguments.Levels, len(stackFrames))]
	}
	response := &dap.StackTraceResponse{
		Response: *newResponse(request.Request),
		Body:     dap.StackTraceResponseBody{StackFrames: stackFrames, TotalFrames: len(frames)},
	}
	s.send(response)
}

// onScopesRequest handles 'scopes' requests. Every frame has a single
// scope holding its receiver and arguments.
func (s *Server) onScopesRequest(request *dap.ScopesRequest) {
	v, ok := s.stackFrameHandles.get(request.Arguments.FrameId)
	if !ok {
		s.sendErrorResponse(request.Request, UnableToListArgs, "Unable to list arguments", fmt.Sprintf("unknown frame id %d", request.Arguments.FrameId))
		return
	}
	sf := v.(stackFrame)
	scope := dap.Scope{
		Name:               "Arguments",
		PresentationHint:   "arguments",
		VariablesReference: s.variableHandles.lookupOrCreate(sf),
	}
	response := &dap.ScopesResponse{
		Response: *newResponse(request.Request),
		Body:     dap.ScopesResponseBody{Scopes: []dap.Scope{scope}},
	}
	s.send(response)
}

// onVariablesRequest handles 'variables' requests.
func (s *Server) onVariablesRequest(request *dap.VariablesRequest) {
	v, ok := s.variableHandles.get(request.Arguments.VariablesReference)
	if !ok {
		s.sendErrorResponse(request.Request, UnableToLookupVariable, "Unable to lookup variable", fmt.Sprintf("unknown reference %d", request.Arguments.VariablesReference))
		return
	}
	sf := v.(stackFrame)
	args, err := s.debugger.FrameArguments(int64(sf.fp))
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToListArgs, "Unable to list arguments", err.Error())
		return
	}
	variables := make([]dap.Variable, len(args))
	for i, arg := range args {
		name := "this"
		if i > 0 {
			name = fmt.Sprintf("arg%d", i-1)
		}
		variables[i] = dap.Variable{Name: name, Value: arg}
	}
	response := &dap.VariablesResponse{
		Response: *newResponse(request.Request),
		Body:     dap.VariablesResponseBody{Variables: variables},
	}
	s.send(response)
}

// onEvaluateRequest handles 'evaluate' requests. Expressions prefixed
// with "v8 " are commands, see debugCommands. Anything else is a value
// expression: a tagged word, optionally dereferenced with '*'.
func (s *Server) onEvaluateRequest(request *dap.EvaluateRequest) {
	showErrorToUser := request.Arguments.Context != "watch" && request.Arguments.Context != "hover"
	if s.debugger == nil {
		s.sendErrorMessage(request.Request, UnableToEvaluateExpression, "Unable to evaluate expression", "debugger is nil", showErrorToUser)
		return
	}

	expr := strings.TrimSpace(request.Arguments.Expression)
	var (
		result string
		err    error
	)
	if cmd := strings.TrimPrefix(expr, "v8 "); cmd != expr && request.Arguments.Context == "repl" {
		result, err = s.v8Cmd(cmd)
	} else {
		result, err = s.debugger.Inspect(expr)
	}
	if err != nil {
		s.sendErrorMessage(request.Request, UnableToEvaluateExpression, "Unable to evaluate expression", err.Error(), showErrorToUser)
		return
	}
	response := &dap.EvaluateResponse{
		Response: *newResponse(request.Request),
		Body:     dap.EvaluateResponseBody{Result: result},
	}
	s.send(response)
}

// onReadMemoryRequest handles 'readMemory' requests. Ranges that can not
// be read are reported as unreadable instead of failing the request.
func (s *Server) onReadMemoryRequest(request *dap.ReadMemoryRequest) {
	if s.debugger == nil {
		s.sendErrorResponse(request.Request, UnableToReadMemory, "Unable to read memory", "debugger is nil")
		return
	}
	base, err := debugger.ParseWord(request.Arguments.MemoryReference)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToReadMemory, "Unable to read memory", err.Error())
		return
	}
	count := request.Arguments.Count
	if count < 0 || count > maxReadMemory {
		s.sendErrorResponse(request.Request, UnableToReadMemory, "Unable to read memory",
			fmt.Sprintf("count must be between 0 and %d", maxReadMemory))
		return
	}
	addr := uint64(base) + uint64(int64(request.Arguments.Offset))

	response := &dap.ReadMemoryResponse{Response: *newResponse(request.Request)}
	response.Body.Address = fmt.Sprintf("%#x", addr)
	if count > 0 {
		data, err := s.debugger.ReadMemory(addr, count)
		if err != nil {
			s.log.Debugf("read %d bytes at %#x: %v", count, addr, err)
			response.Body.UnreadableBytes = count
		} else {
			response.Body.Data = base64.StdEncoding.EncodeToString(data)
		}
	}
	s.send(response)
}

func (s *Server) sendErrorResponse(request dap.Request, id int, summary, details string) {
	s.sendErrorMessage(request, id, summary, details, false)
}

func (s *Server) sendErrorMessage(request dap.Request, id int, summary, details string, showUser bool) {
	er := &dap.ErrorResponse{}
	er.Type = "response"
	er.Command = request.Command
	er.RequestSeq = request.Seq
	er.Success = false
	er.Message = summary
	er.Body.Error = &dap.ErrorMessage{
		Id:       id,
		Format:   fmt.Sprintf("%s: %s", summary, details),
		ShowUser: showUser,
	}
	s.log.Error(er.Body.Error.Format)
	s.send(er)
}

// sendInternalErrorResponse sends an "internal error" response back to the client.
// We only take a seq here because we don't want to make assumptions about the
// kind of message received by the server that this error is a reply to.
func (s *Server) sendInternalErrorResponse(seq int, details string) {
	er := &dap.ErrorResponse{}
	er.Type = "response"
	er.RequestSeq = seq
	er.Success = false
	er.Message = "Internal Error"
	er.Body.Error = &dap.ErrorMessage{
		Id:     InternalError,
		Format: fmt.Sprintf("%s: %s", er.Message, details),
	}
	s.log.Error(er.Body.Error.Format)
	s.send(er)
}

func (s *Server) sendUnsupportedErrorResponse(request dap.Request) {
	s.sendErrorResponse(request, UnsupportedCommand, "Unsupported command",
		fmt.Sprintf("cannot process %q request", request.Command))
}

func newResponse(request dap.Request) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    request.Command,
		RequestSeq: request.Seq,
		Success:    true,
	}
}

func newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}

// min returns the lowest-valued integer
// between the two passed into it.
func min(i, j int) int {
	if i < j {
		return i
	}
	return j
}
