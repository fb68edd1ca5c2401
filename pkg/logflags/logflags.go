// Package logflags configures the per-layer loggers used by v8scope.
//
// Each layer (layout loading, memory access, value inspection, the
// debugger session and the DAP server) owns a logger that only emits debug
// output when the layer was named in --log-output.
package logflags

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var layout = false
var memory = false
var inspect = false
var debugger = false
var dap = false

var logOut io.WriteCloser

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if flag {
		return makeLogger(logrus.DebugLevel, fields)
	}
	return makeLogger(logrus.ErrorLevel, fields)
}

// Layout returns true if the constant table loader should log.
func Layout() bool {
	return layout
}

// LayoutLogger returns a logger for the constant table loader.
func LayoutLogger() Logger {
	return makeFlaggableLogger(layout, Fields{"layer": "layout"})
}

// Memory returns true if reads from the target address space should be
// logged.
func Memory() bool {
	return memory
}

// MemoryLogger returns a logger for target memory accesses.
func MemoryLogger() Logger {
	return makeFlaggableLogger(memory, Fields{"layer": "memory"})
}

// Inspect returns true if the heap inspector should log.
func Inspect() bool {
	return inspect
}

// InspectLogger returns a logger for the heap inspector.
func InspectLogger() Logger {
	return makeFlaggableLogger(inspect, Fields{"layer": "inspect"})
}

// Debugger returns true if the debugger session should log.
func Debugger() bool {
	return debugger
}

// DebuggerLogger returns a logger for the debugger session.
func DebuggerLogger() Logger {
	return makeFlaggableLogger(debugger, Fields{"layer": "debugger"})
}

// DAP returns true if the DAP server should log.
func DAP() bool {
	return dap
}

// DAPLogger returns a logger for dap messages.
func DAPLogger() Logger {
	return makeFlaggableLogger(dap, Fields{"layer": "dap"})
}

// WriteDAPListeningMessage writes the "DAP server listening" message,
// frontends wait for it before connecting.
func WriteDAPListeningMessage(addr string) {
	var out io.Writer = os.Stdout
	if logOut != nil {
		out = logOut
	}
	fmt.Fprintf(out, "DAP server listening at: %s\n", addr)
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the layer flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "v8scope-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "debugger"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch strings.TrimSpace(logcmd) {
		case "layout":
			layout = true
		case "memory":
			memory = true
		case "inspect":
			inspect = true
		case "debugger":
			debugger = true
		case "dap":
			dap = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q\n", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

var textFormatterInstance = &textFormatter{}

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct{}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s ", entry.Time.Format("2006-01-02T15:04:05Z07:00"), entry.Level)
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "layer" {
			keys = append(keys, k)
		}
	}
	if layer, ok := entry.Data["layer"]; ok {
		fmt.Fprintf(&b, "layer=%v ", layer)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v ", k, entry.Data[k])
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
