package starbind

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-delve/liner"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/v8scope/v8scope/pkg/v8"
)

const (
	replPrompt         = ">>> "
	replContinuePrompt = "... "
)

// readLineFunc reads one line of input, without its newline, showing
// prompt. It returns io.EOF at the end of the input.
type readLineFunc func(prompt string) (string, error)

// REPL runs an interactive starlark session on the terminal. The session
// ends with exit, quit or end of input. Globals defined during the session
// that are named command_* become terminal commands.
func (env *Env) REPL() error {
	rl := liner.NewLiner()
	defer rl.Close()
	rl.SetCtrlCAborts(true)
	return env.repl(func(prompt string) (string, error) {
		line, err := rl.Prompt(prompt)
		if err == nil && strings.TrimSpace(line) != "" {
			rl.AppendHistory(line)
		}
		return line, err
	})
}

func (env *Env) repl(readLine readLineFunc) error {
	thread := env.newThread()
	globals := make(starlark.StringDict, len(env.env))
	for k, v := range env.env {
		globals[k] = v
	}
	for {
		if err := isCancelled(thread); err != nil {
			return err
		}
		done, err := env.replItem(thread, globals, readLine)
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	return env.exportGlobals(globals)
}

// replItem reads, runs and prints one statement. It returns true when the
// session is over.
func (env *Env) replItem(thread *starlark.Thread, globals starlark.StringDict, readLine readLineFunc) (bool, error) {
	defer env.out.Done()

	first := true
	var ended bool
	read := func() ([]byte, error) {
		prompt := replContinuePrompt
		if first {
			prompt = replPrompt
		}
		line, err := readLine(prompt)
		env.out.Echo(prompt + line + "\n")
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				ended = true
				return nil, io.EOF
			}
			return nil, err
		}
		if first {
			first = false
			switch strings.TrimSpace(line) {
			case "exit", "quit":
				ended = true
				return nil, io.EOF
			}
		}
		return []byte(line + "\n"), nil
	}

	f, err := syntax.ParseCompoundStmt("<repl>", read)
	if ended {
		return true, nil
	}
	if err != nil {
		env.printError(err)
		return false, nil
	}

	if len(f.Stmts) == 1 {
		if stmt, ok := f.Stmts[0].(*syntax.ExprStmt); ok {
			v, err := starlark.EvalExpr(thread, stmt.X, globals)
			if err != nil {
				env.printError(err)
				return false, nil
			}
			env.printValue(v)
			return false, nil
		}
	}

	prog, err := starlark.FileProgram(f, globals.Has)
	if err != nil {
		env.printError(err)
		return false, nil
	}
	res, err := prog.Init(thread, globals)
	if err != nil {
		env.printError(err)
	}
	// globals assigned before a failure are kept
	for k, v := range res {
		globals[k] = v
	}
	return false, nil
}

// printValue prints the result of an expression. Strings, such as the
// result of inspect, are printed as they are.
func (env *Env) printValue(v starlark.Value) {
	switch v := v.(type) {
	case starlark.NoneType:
	case starlark.String:
		fmt.Fprintln(env.out, string(v))
	default:
		fmt.Fprintln(env.out, v)
	}
}

// printError reports err the way the terminal reports a failed command.
// Decode failures print their message only, other evaluation errors their
// starlark backtrace.
func (env *Env) printError(err error) {
	var derr *v8.DecodeError
	if errors.As(err, &derr) {
		fmt.Fprintf(env.errOut, "Command failed: %s\n", derr)
		return
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		fmt.Fprintf(env.errOut, "Command failed: %s\n", evalErr.Backtrace())
		return
	}
	fmt.Fprintf(env.errOut, "Command failed: %s\n", err)
}

// makeLoad returns the load function of scripts. Every module is executed
// once with the builtins of env as predeclared names; loading a module
// while it is being loaded is an error.
func (env *Env) makeLoad() func(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	type result struct {
		globals starlark.StringDict
		err     error
	}
	loaded := make(map[string]*result)
	return func(thread *starlark.Thread, module string) (starlark.StringDict, error) {
		if r, ok := loaded[module]; ok {
			if r == nil {
				return nil, fmt.Errorf("cycle in load graph at %q", module)
			}
			return r.globals, r.err
		}
		loaded[module] = nil
		child := &starlark.Thread{Name: "load " + module, Load: thread.Load, Print: thread.Print}
		globals, err := starlark.ExecFile(child, module, nil, env.env)
		loaded[module] = &result{globals, err}
		return globals, err
	}
}
