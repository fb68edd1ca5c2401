package debugger

import (
	"fmt"
)

// Stackframe is a frame of a backtrace.
type Stackframe struct {
	Index int
	FP    uint64
	PC    uint64
	// Text is the rendering of the frame, empty if Err is set.
	Text string
	Err  error
}

func (f Stackframe) String() string {
	text := f.Text
	if f.Err != nil {
		text = "<error: " + f.Err.Error() + ">"
	}
	return fmt.Sprintf("#%d 0x%016x %s", f.Index, f.FP, text)
}

// Stacktrace walks the frame pointer chain of thread threadID and renders
// up to depth frames. Frames that fail to decode are returned with their
// error. The walk stops at a zero frame pointer, at a frame pointer that
// does not grow towards the stack base, or when the saved frame pointer
// can not be read.
func (d *Debugger) Stacktrace(threadID, depth int, withArgs bool) ([]Stackframe, error) {
	th, err := d.FindThread(threadID)
	if err != nil {
		return nil, err
	}
	return d.StacktraceFrom(th.FP, th.PC, depth, withArgs), nil
}

// StacktraceFrom walks the frame pointer chain starting at fp.
func (d *Debugger) StacktraceFrom(fp, pc uint64, depth int, withArgs bool) []Stackframe {
	d.mu.Lock()
	defer d.mu.Unlock()

	ptrSize := uint64(d.layout.PointerSize)
	var frames []Stackframe
	for i := 0; i < depth && fp != 0; i++ {
		text, err := d.heap.InspectFrame(int64(fp), withArgs)
		frames = append(frames, Stackframe{Index: i, FP: fp, PC: pc, Text: text, Err: err})
		if err != nil {
			d.log.Debugf("frame %d at %#x: %v", i, fp, err)
		}

		next, err := d.mem.ReadWord(int64(fp))
		if err != nil {
			break
		}
		ret, err := d.mem.ReadWord(int64(fp + ptrSize))
		if err != nil {
			break
		}
		if uint64(next) <= fp {
			break
		}
		fp, pc = uint64(next), uint64(ret)
	}
	return frames
}
