package cmds

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/v8scope/v8scope/pkg/config"
	"github.com/v8scope/v8scope/pkg/layout"
	"github.com/v8scope/v8scope/pkg/logflags"
	"github.com/v8scope/v8scope/pkg/terminal"
	"github.com/v8scope/v8scope/pkg/version"
	"github.com/v8scope/v8scope/service/dap"
	"github.com/v8scope/v8scope/service/debugger"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// addr is the DAP server listen address.
	addr string
	// initFile is the path to initialization file.
	initFile string
	// layoutProfile is the name or path of a YAML layout profile.
	layoutProfile string
	// v8Version is a semver constraint the layout profile must satisfy.
	v8Version string
	// constants override every other constant source.
	constants map[string]int64
	// frameArgs prints the receiver and arguments of frames in one-shot backtraces.
	frameArgs bool
	// verbose makes the version command print the build information.
	verbose bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const v8scopeCommandLongDesc = `v8scope is a postmortem inspector for the V8 heap of node processes.

v8scope reads the postmortem metadata (the v8dbg_ symbols) of a node
executable and uses it to decode JavaScript values, strings and stack frames
from a core dump or from a stopped process, without modifying it.

Values are given as tagged words, in hex (0x...) or decimal, or as *ADDR to
use the word stored at ADDR.`

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	// Config setup and load.
	var err error
	conf, err = config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to load configuration: %v\n", err)
		conf = &config.Config{}
	}

	// Main v8scope root command.
	rootCommand = &cobra.Command{
		Use:   "v8scope",
		Short: "v8scope is a postmortem inspector for the V8 heap.",
		Long:  v8scopeCommandLongDesc,
	}
	addPersistentFlags(rootCommand.PersistentFlags())

	// 'core' subcommand.
	coreCommand := &cobra.Command{
		Use:   "core <executable> <core>",
		Short: "Examine a core dump.",
		Long: `Examine a core dump.

The core command will open the specified core file and the associated
node executable and let you inspect the heap and the stacks of the process
when the core dump was taken.

Currently supports linux/amd64 and linux/arm64 ELF core files.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return errors.New("you must provide a core file and an executable")
			}
			return nil
		},
		Run: coreCmd,
	}
	rootCommand.AddCommand(coreCommand)

	// 'attach' subcommand.
	attachCommand := &cobra.Command{
		Use:   "attach pid [executable]",
		Short: "Inspect a stopped process.",
		Long: `Inspect the heap of a stopped process.

The process must already be stopped, for example with kill -STOP <pid>.
Its memory is read but never written and it is left stopped on exit.
The executable defaults to /proc/<pid>/exe.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a PID")
			}
			return nil
		},
		Run: attachCmd,
	}
	rootCommand.AddCommand(attachCommand)

	// 'inspect' subcommand.
	inspectCommand := &cobra.Command{
		Use:   "inspect <executable> <core> <value>...",
		Short: "Inspect values of a core dump and exit.",
		Long: `Inspect values of a core dump and exit.

Every value is rendered on its own line. A value that can not be decoded is
reported on standard error and makes the command exit with status 1.
With --bt the backtrace of the current thread is printed after the values.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return errors.New("you must provide an executable and a core file")
			}
			return nil
		},
		Run: inspectCmd,
	}
	inspectCommand.Flags().Bool("bt", false, "Print the backtrace of the current thread.")
	inspectCommand.Flags().BoolVarP(&frameArgs, "args", "a", false, "Print the receiver and arguments of function frames.")
	rootCommand.AddCommand(inspectCommand)

	// 'constants' subcommand.
	constantsCommand := &cobra.Command{
		Use:   "constants <executable> [prefix]",
		Short: "Print the postmortem constants of an executable.",
		Long: `Print the postmortem constants of an executable.

The constants are read from the v8dbg_ symbols of the executable, merged with
the --layout profile and the --const flags. Only the constants whose name
starts with prefix are printed.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args) > 2 {
				return errors.New("you must provide an executable")
			}
			return nil
		},
		Run: constantsCmd,
	}
	rootCommand.AddCommand(constantsCommand)

	// 'dap' subcommand.
	dapCommand := &cobra.Command{
		Use:   "dap",
		Short: "Starts a TCP server communicating via Debug Adaptor Protocol (DAP).",
		Long: `Starts a TCP server communicating via Debug Adaptor Protocol (DAP).

The server opens a core dump via a launch request in 'core' mode, or a stopped
process via an attach request in 'local' mode. Evaluate requests accept value
expressions; in the repl context the expressions prefixed with "v8 " are
commands, see "v8 help".
The server does not accept multiple client connections.`,
		Run: dapCmd,
	}
	dapCommand.Flags().StringVarP(&addr, "listen", "l", "127.0.0.1:0", "DAP server listen address.")
	rootCommand.AddCommand(dapCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "v8scope\n%s\n", version.V8scopeVersion)
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	// 'docs' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:    "docs",
		Short:  "Writes the documentation of the terminal commands in markdown.",
		Hidden: !docCall,
		Run: func(cmd *cobra.Command, args []string) {
			terminal.DebugCommands().WriteMarkdown(cmd.OutOrStdout())
		},
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	layout		Log the loading of postmortem constants
	memory		Log reads of target memory
	inspect		Log the decoding of heap values
	debugger	Log debugger commands
	dap		Log all DAP messages

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
This option will also redirect the "DAP server listening at" message.
`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func addPersistentFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&log, "log", "", false, "Enable logging.")
	fs.StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'v8scope help log')`)
	fs.StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'v8scope help log').")
	fs.StringVar(&initFile, "init", "", "Init file, executed by the terminal client.")
	fs.StringVar(&layoutProfile, "layout", "", "Name or path of a YAML layout profile overriding the constants of the executable.")
	fs.StringVar(&v8Version, "v8-version", "", "Semver constraint the layout profile must satisfy.")
	fs.StringToInt64Var(&constants, "const", nil, "Postmortem constants overriding every other source, e.g. --const SmiShiftSize=31.")
}

// debuggerConfig returns the debugger configuration shared by every
// command.
func debuggerConfig() debugger.Config {
	cfg := debugger.Config{
		LayoutProfile:     layoutProfile,
		LayoutProfileDirs: conf.LayoutProfiles,
		V8Version:         conf.V8Version,
		Options:           terminal.HeapOptions(conf),
		MemoryCachePages:  conf.GetMemoryCachePages(),
	}
	if v8Version != "" {
		cfg.V8Version = v8Version
	}
	if len(constants) > 0 {
		cfg.Constants = make(layout.MapSource, len(constants))
		for k, v := range constants {
			cfg.Constants[strings.TrimPrefix(k, layout.ConstantPrefix)] = v
		}
	}
	return cfg
}

func coreCmd(cmd *cobra.Command, args []string) {
	cfg := debuggerConfig()
	cfg.ExecutablePath = args[0]
	cfg.CoreFile = args[1]
	os.Exit(execute(&cfg))
}

func attachCmd(cmd *cobra.Command, args []string) {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid pid: %s\n", args[0])
		os.Exit(1)
	}
	cfg := debuggerConfig()
	cfg.AttachPid = pid
	if len(args) > 1 {
		cfg.ExecutablePath = args[1]
	}
	os.Exit(execute(&cfg))
}

func inspectCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput, logDest); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		cfg := debuggerConfig()
		cfg.ExecutablePath = args[0]
		cfg.CoreFile = args[1]
		d, err := debugger.New(&cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer d.Detach()

		status := inspectValues(os.Stdout, os.Stderr, d, args[2:])
		if bt, _ := cmd.Flags().GetBool("bt"); bt {
			if err := printBacktrace(os.Stdout, d, frameArgs || conf.FrameArgs); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				return 1
			}
		}
		return status
	}()
	os.Exit(status)
}

// inspectValues renders every value of values to out. Failures are
// written to errOut and reported with a non-zero status.
func inspectValues(out, errOut io.Writer, d *debugger.Debugger, values []string) int {
	status := 0
	for _, v := range values {
		s, err := d.Inspect(v)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", v, err)
			status = 1
			continue
		}
		fmt.Fprintln(out, s)
	}
	return status
}

func printBacktrace(out io.Writer, d *debugger.Debugger, withArgs bool) error {
	frames, err := d.Stacktrace(d.CurrentThread().ID, 50, withArgs)
	if err != nil {
		return err
	}
	for _, f := range frames {
		fmt.Fprintln(out, f)
	}
	return nil
}

func constantsCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput, logDest); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		cfg := debuggerConfig()
		cfg.ExecutablePath = args[0]
		src, err := debugger.LoadSources(&cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		var prefix string
		if len(args) > 1 {
			prefix = args[1]
		}
		if err := printConstants(os.Stdout, layout.Load(src), prefix); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		return 0
	}()
	os.Exit(status)
}

func printConstants(out io.Writer, lo *layout.Layout, prefix string) error {
	prefix = strings.TrimPrefix(prefix, layout.ConstantPrefix)
	w := tabwriter.NewWriter(out, 0, 8, 1, ' ', 0)
	n := 0
	for _, e := range lo.Table() {
		if !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		fmt.Fprintf(w, "%s%s\t%d\n", layout.ConstantPrefix, e.Name, e.Value)
		n++
	}
	if n == 0 {
		return fmt.Errorf("no constants matching %q", prefix)
	}
	return w.Flush()
}

func dapCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput, logDest); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		if initFile != "" {
			fmt.Fprint(os.Stderr, "Warning: init file ignored with dap\n")
		}
		if len(args) > 0 {
			fmt.Fprintf(os.Stderr, "Warning: arguments ignored with dap; specify via launch/attach request instead\n")
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			fmt.Printf("couldn't start listener: %s\n", err)
			return 1
		}
		disconnectChan := make(chan struct{})
		server := dap.NewServer(&dap.Config{
			Listener:       listener,
			DisconnectChan: disconnectChan,
			Debugger:       debuggerConfig(),
		})
		defer server.Stop()

		server.Run()
		waitForDisconnectSignal(disconnectChan)
		return 0
	}()
	os.Exit(status)
}

func waitForDisconnectSignal(disconnectChan chan struct{}) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	select {
	case <-ch:
	case <-disconnectChan:
	}
}

func execute(cfg *debugger.Config) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	d, err := debugger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	term := terminal.New(d, conf)
	term.InitFile = initFile
	status, err := term.Run()
	if err != nil {
		fmt.Println(err)
	}
	return status
}
