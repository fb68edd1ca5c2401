package starbind

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"

	"github.com/v8scope/v8scope/pkg/layout"
	"github.com/v8scope/v8scope/service/debugger"
)

const (
	inspectBuiltinName      = "inspect"
	inspectFrameBuiltinName = "inspect_frame"
	readWordBuiltinName     = "read_word"
	constantBuiltinName     = "constant"
	threadsBuiltinName      = "threads"
	stacktraceBuiltinName   = "stacktrace"
	commandBuiltinName      = "command"
	readFileBuiltinName     = "read_file"
	writeFileBuiltinName    = "write_file"
	helpBuiltinName         = "help"
	commandPrefix           = "command_"
	v8scopeContextName      = "v8scope_context"

	defaultStacktraceDepth = 50
)

func init() {
	resolve.AllowNestedDef = true
	resolve.AllowLambda = true
	resolve.AllowFloat = true
	resolve.AllowSet = true
	resolve.AllowBitwise = true
	resolve.AllowRecursion = true
	resolve.AllowGlobalReassign = true
}

// Context is the context in which starlark scripts are evaluated.
// It contains methods to reach the debugger and the command line.
type Context interface {
	Debugger() *debugger.Debugger
	RegisterCommand(name, helpMsg string, cmdfn func(args string) error)
	CallCommand(cmdstr string) error
	// CurrentThread returns the id of the thread selected on the command line.
	CurrentThread() int
}

// Env is the environment used to evaluate starlark scripts.
type Env struct {
	env       starlark.StringDict
	contextMu sync.Mutex
	thread    *starlark.Thread
	cancelfn  context.CancelFunc

	ctx    Context
	out    EchoWriter
	errOut io.Writer
}

type builtinFn func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// New creates a new starlark binding environment.
func New(ctx Context, out EchoWriter) *Env {
	env := &Env{}

	env.ctx = ctx
	env.out = out
	env.errOut = os.Stderr

	// Make the "time" module available to Starlark scripts.
	starlark.Universe["time"] = startime.Module

	env.env = starlark.StringDict{}
	doc := map[string]string{}

	builtin := func(name, args, descr string, fn builtinFn) {
		env.env[name] = starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := isCancelled(thread); err != nil {
				return starlark.None, err
			}
			v, err := fn(thread, b, args, kwargs)
			return v, decorateError(thread, err)
		})
		doc[name] = name + args + "\n\n" + name + " " + descr
	}

	builtin(inspectBuiltinName, "(Value)", "returns the description of a tagged value. Value is an integer or a value expression such as \"*0x1234\".", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
			return nil, err
		}
		word, err := env.word(v)
		if err != nil {
			return nil, err
		}
		s, err := env.ctx.Debugger().InspectWord(word)
		if err != nil {
			return nil, err
		}
		return starlark.String(s), nil
	})

	builtin(inspectFrameBuiltinName, "(FP, args=False)", "returns the description of the stack frame whose frame pointer is FP.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			v        starlark.Value
			withArgs bool
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fp", &v, "args?", &withArgs); err != nil {
			return nil, err
		}
		fp, err := env.word(v)
		if err != nil {
			return nil, err
		}
		s, err := env.ctx.Debugger().InspectFrame(fp, withArgs)
		if err != nil {
			return nil, err
		}
		return starlark.String(s), nil
	})

	builtin(readWordBuiltinName, "(Addr)", "returns the pointer sized word stored at Addr.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
			return nil, err
		}
		addr, err := env.word(v)
		if err != nil {
			return nil, err
		}
		w, err := env.ctx.Debugger().ReadWord(uint64(addr))
		if err != nil {
			return nil, err
		}
		return starlark.MakeInt64(w), nil
	})

	builtin(constantBuiltinName, "(Name)", "returns the value of a postmortem constant, or None if the target does not define it.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
			return nil, err
		}
		v, ok := env.ctx.Debugger().Layout().Constant(strings.TrimPrefix(name, layout.ConstantPrefix))
		if !ok {
			return starlark.None, nil
		}
		return starlark.MakeInt64(v), nil
	})

	builtin(threadsBuiltinName, "()", "returns the list of threads of the target.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		return env.interfaceToStarlarkValue(env.ctx.Debugger().Threads()), nil
	})

	builtin(stacktraceBuiltinName, "(thread=current, depth=50, args=False)", "returns the frames of a thread.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			threadID = env.ctx.CurrentThread()
			depth    = defaultStacktraceDepth
			withArgs bool
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "thread?", &threadID, "depth?", &depth, "args?", &withArgs); err != nil {
			return nil, err
		}
		frames, err := env.ctx.Debugger().Stacktrace(threadID, depth, withArgs)
		if err != nil {
			return nil, err
		}
		return env.interfaceToStarlarkValue(frames), nil
	})

	builtin(commandBuiltinName, "(Command)", "executes a command of the command line.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		argstrs := make([]string, len(args))
		for i := range args {
			a, ok := args[i].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("argument of %s is not a string", commandBuiltinName)
			}
			argstrs[i] = string(a)
		}
		return starlark.None, env.ctx.CallCommand(strings.Join(argstrs, " "))
	})

	builtin(readFileBuiltinName, "(Path)", "reads a file.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
			return nil, err
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return starlark.String(string(buf)), nil
	})

	builtin(writeFileBuiltinName, "(Path, Text)", "writes text to the specified file.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("wrong number of arguments")
		}
		path, ok := args[0].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("first argument of %s was not a string", writeFileBuiltinName)
		}
		text := args[1].String()
		if s, ok := args[1].(starlark.String); ok {
			text = string(s)
		}
		return starlark.None, os.WriteFile(string(path), []byte(text), 0640)
	})

	env.env[helpBuiltinName] = starlark.NewBuiltin(helpBuiltinName, func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		switch len(args) {
		case 0:
			fmt.Fprintln(env.out, "Available builtins:")
			bins := make([]string, 0, len(env.env))
			for name, value := range env.env {
				switch value.(type) {
				case *starlark.Builtin:
					bins = append(bins, name)
				}
			}
			sort.Strings(bins)
			for _, bin := range bins {
				fmt.Fprintf(env.out, "\t%s\n", bin)
			}
		case 1:
			switch x := args[0].(type) {
			case *starlark.Builtin:
				if doc[x.Name()] != "" {
					fmt.Fprintf(env.out, "%s\n", doc[x.Name()])
				} else {
					fmt.Fprintf(env.out, "no help for builtin %s\n", x.Name())
				}
			case *starlark.Function:
				fmt.Fprintf(env.out, "user defined function %s\n", x.Name())
				if doc := x.Doc(); doc != "" {
					fmt.Fprintln(env.out, doc)
				}
			default:
				fmt.Fprintf(env.out, "no help for object of type %T\n", args[0])
			}
		default:
			fmt.Fprintln(env.out, "wrong number of arguments ", len(args))
		}
		return starlark.None, nil
	})
	doc[helpBuiltinName] = helpBuiltinName + "(Object)\n\n" + helpBuiltinName + " prints help for Object."

	return env
}

// word converts a script value into a word: integers are used as they
// are, strings are evaluated as value expressions.
func (env *Env) word(v starlark.Value) (int64, error) {
	switch v := v.(type) {
	case starlark.Int:
		if n, ok := v.Int64(); ok {
			return n, nil
		}
		if n, ok := v.Uint64(); ok {
			return int64(n), nil
		}
		return 0, fmt.Errorf("%s does not fit in a word", v)
	case starlark.String:
		return env.ctx.Debugger().EvalValue(string(v))
	default:
		return 0, fmt.Errorf("can not convert %s to a word", v.Type())
	}
}

// Redirect redirects starlark output to out.
func (env *Env) Redirect(out EchoWriter) {
	env.out = out
	if env.thread != nil {
		env.thread.Print = env.printFunc()
	}
}

func (env *Env) printFunc() func(_ *starlark.Thread, msg string) {
	return func(_ *starlark.Thread, msg string) { fmt.Fprintln(env.out, msg) }
}

// Execute executes a script. Path is the name of the file to execute and
// source is the source code to execute.
// Source can be either a []byte, a string or a io.Reader. If source is nil
// Execute will execute the file specified by 'path'.
// After the file is executed if a function named mainFnName exists it will be called, passing args to it.
func (env *Env) Execute(path string, source interface{}, mainFnName string, args []interface{}) (_ starlark.Value, _err error) {
	defer func() {
		err := recover()
		if err == nil {
			return
		}
		_err = fmt.Errorf("panic executing starlark script: %v", err)
		fmt.Fprintf(env.out, "panic executing starlark script: %v\n", err)
		for i := 0; ; i++ {
			pc, file, line, ok := runtime.Caller(i)
			if !ok {
				break
			}
			fname := "<unknown>"
			fn := runtime.FuncForPC(pc)
			if fn != nil {
				fname = fn.Name()
			}
			fmt.Fprintf(env.out, "%s\n\tin %s:%d\n", fname, file, line)
		}
	}()

	thread := env.newThread()
	globals, err := starlark.ExecFile(thread, path, source, env.env)
	if err != nil {
		return starlark.None, err
	}

	err = env.exportGlobals(globals)
	if err != nil {
		return starlark.None, err
	}

	return env.callMain(thread, globals, mainFnName, args)
}

// exportGlobals saves globals with a name starting with a capital letter
// into the environment and creates commands from globals with a name
// starting with "command_"
func (env *Env) exportGlobals(globals starlark.StringDict) error {
	for name, val := range globals {
		switch {
		case strings.HasPrefix(name, commandPrefix):
			err := env.createCommand(name, val)
			if err != nil {
				return err
			}
		case name[0] >= 'A' && name[0] <= 'Z':
			env.env[name] = val
		}
	}
	return nil
}

// Cancel cancels the execution of a currently running script or function.
func (env *Env) Cancel() {
	if env == nil {
		return
	}
	env.contextMu.Lock()
	if env.cancelfn != nil {
		env.cancelfn()
		env.cancelfn = nil
	}
	if env.thread != nil {
		env.thread.Cancel("user interrupt")
	}
	env.contextMu.Unlock()
}

func (env *Env) newThread() *starlark.Thread {
	thread := &starlark.Thread{
		Print: env.printFunc(),
		Load:  env.makeLoad(),
	}
	env.contextMu.Lock()
	var ctx context.Context
	ctx, env.cancelfn = context.WithCancel(context.Background())
	env.thread = thread
	env.contextMu.Unlock()
	thread.SetLocal(v8scopeContextName, ctx)
	return thread
}

func (env *Env) createCommand(name string, val starlark.Value) error {
	fnval, ok := val.(*starlark.Function)
	if !ok {
		return nil
	}

	name = name[len(commandPrefix):]

	helpMsg := fnval.Doc()
	if helpMsg == "" {
		helpMsg = "user defined"
	}

	if fnval.NumParams() == 1 {
		if p0, _ := fnval.Param(0); p0 == "args" {
			env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
				_, err := starlark.Call(env.newThread(), fnval, starlark.Tuple{starlark.String(args)}, nil)
				return err
			})
			return nil
		}
	}

	env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
		thread := env.newThread()
		argtuple := starlark.Tuple{}
		if strings.TrimSpace(args) != "" {
			argval, err := starlark.Eval(thread, "<input>", "("+args+")", env.env)
			if err != nil {
				return err
			}
			var ok bool
			argtuple, ok = argval.(starlark.Tuple)
			if !ok {
				argtuple = starlark.Tuple{argval}
			}
		}
		_, err := starlark.Call(thread, fnval, argtuple, nil)
		return err
	})
	return nil
}

// callMain calls the main function in globals, if one was defined.
func (env *Env) callMain(thread *starlark.Thread, globals starlark.StringDict, mainFnName string, args []interface{}) (starlark.Value, error) {
	if mainFnName == "" {
		return starlark.None, nil
	}
	mainval := globals[mainFnName]
	if mainval == nil {
		return starlark.None, nil
	}
	mainfn, ok := mainval.(*starlark.Function)
	if !ok {
		return starlark.None, fmt.Errorf("%s is not a function", mainFnName)
	}
	if mainfn.NumParams() != len(args) {
		return starlark.None, fmt.Errorf("wrong number of arguments for %s", mainFnName)
	}
	argtuple := make(starlark.Tuple, len(args))
	for i := range args {
		argtuple[i] = env.interfaceToStarlarkValue(args[i])
	}
	return starlark.Call(thread, mainfn, argtuple, nil)
}

func isCancelled(thread *starlark.Thread) error {
	if ctx, ok := thread.Local(v8scopeContextName).(context.Context); ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func decorateError(thread *starlark.Thread, err error) error {
	if err == nil {
		return nil
	}
	pos := thread.CallFrame(1).Pos
	if pos.Col > 0 {
		return fmt.Errorf("%s:%d:%d: %w", pos.Filename(), pos.Line, pos.Col, err)
	}
	return fmt.Errorf("%s:%d: %w", pos.Filename(), pos.Line, err)
}

// EchoWriter is the output of scripts. Echo writes only to the transcript,
// Done ends the output of one REPL item.
type EchoWriter interface {
	io.Writer
	Echo(string)
	Done()
}
