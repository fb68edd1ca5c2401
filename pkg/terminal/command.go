// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"
	"github.com/derekparker/trie"

	"github.com/v8scope/v8scope/pkg/layout"
	"github.com/v8scope/v8scope/pkg/proc"
	"github.com/v8scope/v8scope/service/debugger"
)

const (
	defaultStackDepth = 50
	defaultReadSize   = 64
	maxReadSize       = 1 << 16
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the v8scope terminal.
type Commands struct {
	cmds []command
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"inspect", "i"}, group: dataCmds, cmdFn: inspectCmd, helpMsg: `Describes a tagged V8 value.

	inspect <value>

The value is a tagged word written in hexadecimal (0x prefix) or decimal, or
*<addr> to use the word stored at addr. Small integers print as <Smi: n>,
heap objects are described according to their instance type.`},
		{aliases: []string{"v8"}, group: dataCmds, cmdFn: c.v8Cmd, helpMsg: `Runs a command with the v8 prefix.

	v8 <command> [args]

Allows writing "v8 inspect 0x..." and "v8 bt".`},
		{aliases: []string{"read", "x"}, group: dataCmds, cmdFn: readCmd, helpMsg: `Dumps target memory.

	read <addr> [size]

Prints size bytes (default 64) starting at addr in hexadecimal.`},
		{aliases: []string{"constants"}, group: dataCmds, cmdFn: constantsCmd, helpMsg: `Lists postmortem constants.

	constants [prefix]

Lists the v8dbg_ constants loaded for the target whose name (without the
v8dbg_ prefix) starts with prefix.`},
		{aliases: []string{"threads"}, group: threadCmds, cmdFn: threadsCmd, helpMsg: `Prints the threads of the target.`},
		{aliases: []string{"thread", "tr"}, group: threadCmds, cmdFn: threadCmd, helpMsg: `Switches to the specified thread.

	thread <id>`},
		{aliases: []string{"bt", "stack"}, group: stackCmds, cmdFn: stackCmd, helpMsg: `Prints the stack trace of the current thread.

	bt [-a] [depth]

Walks the frame pointer chain of the current thread. With -a the receiver
and the arguments of function frames are printed.`},
		{aliases: []string{"frame", "f"}, group: stackCmds, cmdFn: frameCmd, helpMsg: `Describes a stack frame.

	frame [-a] <fp>

fp is the frame pointer of the frame. With -a the receiver and the
arguments of function frames are printed.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"source"}, cmdFn: c.sourceCommand, helpMsg: `Executes a file containing a list of v8scope commands.

	source <path>

If path ends with the .star extension it will be interpreted as a starlark script.
If path is a single '-' character an interactive starlark interpreter will start instead.`},
		{aliases: []string{"transcript"}, cmdFn: transcriptCmd, helpMsg: `Appends command output to a file.

	transcript [-t] [-x] <output file>
	transcript -off

Output of v8scope's command is appended to the specified output file. If -t
is specified and the output file exists it is truncated. If -x is specified
output to stdout is suppressed instead.

Using the -off option disables the transcript.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the debugger.`},
	}

	sort.Sort(byFirstAlias(c.cmds))
	return c
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			c.cmds[i].helpMsg = helpMsg
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

// complete returns the command aliases starting with line.
func (c *Commands) complete(line string) []string {
	tr := trie.New()
	for _, cmd := range c.cmds {
		for _, alias := range cmd.aliases {
			tr.Add(alias, nil)
		}
	}
	r := tr.PrefixSearch(strings.ToLower(line))
	sort.Strings(r)
	return r
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return errNoCmd
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return errNoCmd
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

// splitArgs splits a command line into words the way a shell would.
func splitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal command line '%s'", args)
	}
	return v[0], nil
}

// parseFlagged removes the -a flag from args.
func parseFlagged(args []string) (withArgs bool, rest []string) {
	for _, arg := range args {
		if arg == "-a" {
			withArgs = true
			continue
		}
		rest = append(rest, arg)
	}
	return withArgs, rest
}

func (c *Commands) v8Cmd(t *Term, args string) error {
	if args == "" {
		return errors.New("not enough arguments")
	}
	return c.Call(args, t)
}

func inspectCmd(t *Term, args string) error {
	if args == "" {
		return errors.New("not enough arguments")
	}
	s, err := t.debugger.Inspect(args)
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, s)
	return nil
}

func frameCmd(t *Term, argstr string) error {
	v, err := splitArgs(argstr)
	if err != nil {
		return err
	}
	withArgs, v := parseFlagged(v)
	if len(v) != 1 {
		return errors.New("wrong number of arguments")
	}
	fp, err := t.debugger.EvalValue(v[0])
	if err != nil {
		return err
	}
	s, err := t.debugger.InspectFrame(fp, withArgs)
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, s)
	return nil
}

func stackCmd(t *Term, argstr string) error {
	v, err := splitArgs(argstr)
	if err != nil {
		return err
	}
	withArgs, v := parseFlagged(v)
	withArgs = withArgs || t.conf.FrameArgs
	depth := defaultStackDepth
	switch len(v) {
	case 0:
	case 1:
		depth, err = strconv.Atoi(v[0])
		if err != nil || depth <= 0 {
			return fmt.Errorf("depth must be a positive number")
		}
	default:
		return errors.New("too many arguments")
	}
	frames, err := t.debugger.Stacktrace(t.thread, depth, withArgs)
	if err != nil {
		return err
	}
	t.stdout.screen.Page()
	printStack(t, frames)
	return nil
}

func printStack(t *Term, frames []debugger.Stackframe) {
	for _, f := range frames {
		fmt.Fprintln(t.stdout, f)
	}
}

func threadsCmd(t *Term, args string) error {
	threads := t.debugger.Threads()
	proc.SortThreads(threads)
	for _, th := range threads {
		prefix := "  "
		if th.ID == t.thread {
			prefix = "* "
		}
		fmt.Fprintf(t.stdout, "%sThread %d pc=%#x sp=%#x fp=%#x\n", prefix, th.ID, th.PC, th.SP, th.FP)
	}
	return nil
}

func threadCmd(t *Term, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("you must specify a thread")
	}
	tid, err := strconv.Atoi(args)
	if err != nil {
		return err
	}
	if _, err := t.debugger.FindThread(tid); err != nil {
		return err
	}
	old := t.thread
	t.thread = tid
	fmt.Fprintf(t.stdout, "Switched from %d to %d\n", old, tid)
	return nil
}

func constantsCmd(t *Term, args string) error {
	prefix := strings.TrimPrefix(strings.TrimSpace(args), layout.ConstantPrefix)
	consts := t.debugger.Constants(prefix)
	if len(consts) == 0 {
		return fmt.Errorf("no constants matching %q", prefix)
	}
	t.stdout.screen.Page()
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	for _, c := range consts {
		fmt.Fprintf(w, "%s%s\t%d\n", layout.ConstantPrefix, c.Name, c.Value)
	}
	return w.Flush()
}

func readCmd(t *Term, argstr string) error {
	v, err := splitArgs(argstr)
	if err != nil {
		return err
	}
	if len(v) < 1 || len(v) > 2 {
		return errors.New("wrong number of arguments")
	}
	addr, err := t.debugger.EvalValue(v[0])
	if err != nil {
		return err
	}
	size := defaultReadSize
	if len(v) == 2 {
		size, err = strconv.Atoi(v[1])
		if err != nil || size <= 0 || size > maxReadSize {
			return fmt.Errorf("size must be a number between 1 and %d", maxReadSize)
		}
	}
	mem, err := t.debugger.ReadMemory(uint64(addr), size)
	if err != nil {
		return err
	}
	fmt.Fprint(t.stdout, hexDump(uint64(addr), mem))
	return nil
}

// hexDump formats mem, read at addr, sixteen bytes per line.
func hexDump(addr uint64, mem []byte) string {
	var buf strings.Builder
	for off := 0; off < len(mem); off += 16 {
		line := mem[off:]
		if len(line) > 16 {
			line = line[:16]
		}
		fmt.Fprintf(&buf, "0x%016x:", addr+uint64(off))
		for i := 0; i < 16; i++ {
			if i < len(line) {
				fmt.Fprintf(&buf, " %02x", line[i])
			} else {
				buf.WriteString("   ")
			}
		}
		buf.WriteString("  ")
		for _, b := range line {
			if b >= 0x20 && b < 0x7f {
				buf.WriteByte(b)
			} else {
				buf.WriteByte('.')
			}
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

func transcriptCmd(t *Term, argstr string) error {
	args := strings.Fields(argstr)
	truncate := false
	fileOnly := false
	disable := false
	path := ""
	for _, arg := range args {
		switch arg {
		case "-x":
			fileOnly = true
		case "-t":
			truncate = true
		case "-off":
			disable = true
		default:
			if path != "" || strings.HasPrefix(arg, "-") {
				return fmt.Errorf("unrecognized option %q", arg)
			}
			path = arg
		}
	}

	if disable {
		if path != "" {
			return errors.New("-off option specified with an output path")
		}
		return t.stdout.CloseTranscript()
	}

	if path == "" {
		return errors.New("no output path specified")
	}

	flags := os.O_APPEND | os.O_WRONLY | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}
	fh, err := os.OpenFile(path, flags, 0660)
	if err != nil {
		return err
	}

	if err := t.stdout.CloseTranscript(); err != nil {
		return err
	}

	t.stdout.TranscribeTo(fh, fileOnly)
	return nil
}

// ExitRequestError is returned when the user
// exits v8scope.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

func (c *Commands) sourceCommand(t *Term, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("wrong number of arguments: source <filename>")
	}

	if args == "-" {
		return t.starlarkEnv.REPL()
	}

	return c.executeFile(t, args)
}

func (c *Commands) executeFile(t *Term, name string) error {
	if filepath.Ext(name) == ".star" {
		_, err := t.starlarkEnv.Execute(name, nil, "main", nil)
		return err
	}

	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
