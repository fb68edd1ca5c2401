// Package native reads the memory of a stopped live process. The process
// is never attached to or resumed: it must already be stopped, for example
// with SIGSTOP, and its memory is read with process_vm_readv.
package native

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotStopped is returned when the target process is running.
var ErrNotStopped = errors.New("process is not stopped")

// parseStatState returns the state character of a /proc/<pid>/stat line.
// The second field is the command name in parentheses, which may itself
// contain spaces and parentheses, so the state is found after the last
// closing parenthesis.
func parseStatState(stat string) (byte, error) {
	i := strings.LastIndexByte(stat, ')')
	if i < 0 || i+2 >= len(stat) {
		return 0, fmt.Errorf("malformed stat line %q", stat)
	}
	return stat[i+2], nil
}

// isStopped reports whether state is a stopped or traced state.
func isStopped(state byte) bool {
	return state == 'T' || state == 't'
}

// parseSyscall parses /proc/<pid>/task/<tid>/syscall and returns the stack
// pointer and program counter of a blocked thread. The file contains
// either "running", "-1 sp pc" or the syscall number, six arguments, sp
// and pc.
func parseSyscall(s string) (sp, pc uint64, err error) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return 0, 0, fmt.Errorf("thread registers unavailable: %q", strings.TrimSpace(s))
	}
	sp, err = strconv.ParseUint(strings.TrimPrefix(fields[len(fields)-2], "0x"), 16, 64)
	if err != nil {
		return 0, 0, err
	}
	pc, err = strconv.ParseUint(strings.TrimPrefix(fields[len(fields)-1], "0x"), 16, 64)
	if err != nil {
		return 0, 0, err
	}
	return sp, pc, nil
}
