//go:build linux || darwin || freebsd

package terminal

import (
	"os"

	"golang.org/x/sys/unix"
)

// getWindowSize reads the size of the terminal on stdout.
func (w *pagingWriter) getWindowSize() bool {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return false
	}
	w.rows, w.cols = int(ws.Row), int(ws.Col)
	return true
}
