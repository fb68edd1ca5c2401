package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-delve/liner"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/v8scope/v8scope/pkg/config"
	"github.com/v8scope/v8scope/pkg/terminal/starbind"
	"github.com/v8scope/v8scope/service/debugger"
)

const historyFile string = ".v8scope_history"

// Term represents the terminal running v8scope.
type Term struct {
	debugger *debugger.Debugger
	conf     *config.Config
	prompt   string
	line     *liner.State
	cmds     *Commands
	stdout   *transcriptWriter
	InitFile string

	// thread is the id of the thread bt operates on.
	thread int

	starlarkEnv *starbind.Env
}

// New returns a new Term.
func New(d *debugger.Debugger, conf *config.Config) *Term {
	cmds := DebugCommands()
	if conf == nil {
		conf = &config.Config{}
	}
	if conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb" || !isatty.IsTerminal(os.Stdout.Fd())

	var w io.Writer
	if dumb {
		w = os.Stdout
	} else {
		w = colorable.NewColorableStdout()
	}

	t := &Term{
		debugger: d,
		conf:     conf,
		prompt:   "(v8scope) ",
		cmds:     cmds,
		stdout:   newTranscriptWriter(w, !dumb && conf.ColorAddresses),
	}
	if d != nil {
		t.thread = d.CurrentThread().ID
	}
	t.starlarkEnv = starbind.New(starlarkContext{t}, t.stdout)
	return t
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
		t.line = nil
	}
}

// Run begins running v8scope in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	t.line = liner.NewLiner()
	t.line.SetCtrlCAborts(true)
	t.line.SetCompleter(t.cmds.complete)

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}

	t.line.ReadHistory(f)
	f.Close()
	fmt.Fprintln(t.stdout, "Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(t.stdout, "exit")
				return t.handleExit()
			}
			if err == liner.ErrPromptAborted {
				continue
			}
			return 1, fmt.Errorf("prompt for input failed: %v", err)
		}

		t.stdout.Echo(t.prompt + cmdstr + "\n")
		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
		t.stdout.Done()
	}
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}

	t.stdout.CloseTranscript()
	if err := t.debugger.Detach(); err != nil {
		return 1, err
	}
	return 0, nil
}
