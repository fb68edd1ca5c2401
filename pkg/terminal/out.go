package terminal

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"

	ansiBlue = 34
)

// addrPrefixRx matches the raw address that prefixes every rendered heap
// object.
var addrPrefixRx = regexp.MustCompile(`0x[0-9a-f]{16}:`)

// transcriptWriter is the output of the terminal. Output goes to the
// screen, through a pager for long listings, and to an optional transcript
// file. Address prefixes are highlighted on the screen only.
type transcriptWriter struct {
	screen     *pagingWriter
	colorAddrs bool

	fileOnly bool
	file     *bufio.Writer
	fh       io.Closer
}

func newTranscriptWriter(w io.Writer, colorAddrs bool) *transcriptWriter {
	return &transcriptWriter{screen: &pagingWriter{w: w}, colorAddrs: colorAddrs}
}

func (w *transcriptWriter) Write(p []byte) (int, error) {
	if !w.fileOnly {
		if _, err := w.screen.Write(w.highlight(p)); err != nil {
			return 0, err
		}
	}
	if w.file != nil {
		return w.file.Write(p)
	}
	return len(p), nil
}

func (w *transcriptWriter) highlight(p []byte) []byte {
	if !w.colorAddrs {
		return p
	}
	escape := []byte(fmt.Sprintf(terminalHighlightEscapeCode, ansiBlue))
	return addrPrefixRx.ReplaceAllFunc(p, func(addr []byte) []byte {
		r := make([]byte, 0, len(escape)+len(addr)+len(terminalResetEscapeCode))
		r = append(r, escape...)
		r = append(r, addr...)
		return append(r, terminalResetEscapeCode...)
	})
}

// Echo writes str to the transcript file only.
func (w *transcriptWriter) Echo(str string) {
	if w.file != nil {
		w.file.WriteString(str)
	}
}

// Done ends the output of a command: buffered screen output is written
// out and the transcript file is flushed.
func (w *transcriptWriter) Done() {
	w.screen.Reset()
	if w.file != nil {
		w.file.Flush()
	}
}

// TranscribeTo starts copying the output to fh. With fileOnly the screen
// output is suppressed.
func (w *transcriptWriter) TranscribeTo(fh io.WriteCloser, fileOnly bool) {
	w.CloseTranscript()
	w.fh = fh
	w.file = bufio.NewWriter(fh)
	w.fileOnly = fileOnly
}

// CloseTranscript stops the transcript, if any.
func (w *transcriptWriter) CloseTranscript() error {
	if w.file == nil {
		return nil
	}
	w.file.Flush()
	err := w.fh.Close()
	w.file, w.fh, w.fileOnly = nil, nil, false
	return err
}

type pagerState uint8

const (
	pagerOff     pagerState = iota
	pagerPending            // output is held until it is known to fit the screen
	pagerRunning
)

// pagingWriter writes to w. After Page is called output is held back; if it
// grows past one screen it is sent to a pager, otherwise Reset writes it
// to w.
type pagingWriter struct {
	w     io.Writer
	state pagerState

	held       []byte
	rows, cols int

	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func (w *pagingWriter) Write(p []byte) (int, error) {
	switch w.state {
	case pagerPending:
		w.held = append(w.held, p...)
		if w.screenLines() <= w.rows {
			return len(p), nil
		}
		if err := w.startPager(); err != nil {
			w.state = pagerOff
			_, err := w.w.Write(w.held)
			w.held = nil
			return len(p), err
		}
		return len(p), nil
	case pagerRunning:
		return w.stdin.Write(p)
	default:
		return w.w.Write(p)
	}
}

// screenLines returns the number of screen lines the held output takes,
// counting wrapped lines.
func (w *pagingWriter) screenLines() int {
	n := 0
	for _, line := range bytes.Split(w.held, []byte{'\n'}) {
		n += 1 + len(line)/w.cols
	}
	return n
}

func (w *pagingWriter) startPager() error {
	pager := os.Getenv("V8SCOPE_PAGER")
	if pager == "" {
		pager = os.Getenv("PAGER")
	}
	if pager == "" {
		pager = "more"
	}
	w.cmd = exec.Command(pager)
	w.cmd.Stdout = os.Stdout
	w.cmd.Stderr = os.Stderr
	stdin, err := w.cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := w.cmd.Start(); err != nil {
		return err
	}
	w.stdin = stdin
	w.state = pagerRunning
	_, err = w.stdin.Write(w.held)
	w.held = nil
	return err
}

// Page holds back the output of the current command so that it can be
// sent to a pager. It does nothing when the output is not a terminal.
func (w *pagingWriter) Page() {
	if w.state != pagerOff {
		return
	}
	if os.Getenv("V8SCOPE_PAGER") == "" {
		f, ok := w.w.(*os.File)
		if ok && !isatty.IsTerminal(f.Fd()) {
			return
		}
		if strings.ToLower(os.Getenv("TERM")) == "dumb" {
			return
		}
	}
	if !w.getWindowSize() || w.rows <= 0 || w.cols <= 0 {
		return
	}
	w.state = pagerPending
}

// Reset writes out held output, waits for the pager and returns to
// direct output.
func (w *pagingWriter) Reset() {
	switch w.state {
	case pagerPending:
		w.w.Write(w.held)
	case pagerRunning:
		w.stdin.Close()
		w.cmd.Wait()
	}
	w.state = pagerOff
	w.held = nil
	w.cmd, w.stdin = nil, nil
}
