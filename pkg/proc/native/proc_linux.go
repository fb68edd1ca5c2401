package native

import (
	"fmt"
	"os"
	"strconv"

	sys "golang.org/x/sys/unix"

	"github.com/v8scope/v8scope/pkg/logflags"
	"github.com/v8scope/v8scope/pkg/proc"
)

// process is a stopped live process.
type process struct {
	pid     int
	threads []proc.Thread
}

var _ proc.Process = &process{}

// Open returns a reader over the memory of the stopped process pid.
func Open(pid int) (proc.Process, error) {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return nil, fmt.Errorf("could not read proc stat: %w", err)
	}
	state, err := parseStatState(string(stat))
	if err != nil {
		return nil, err
	}
	if !isStopped(state) {
		return nil, fmt.Errorf("%w: pid %d is in state %c", ErrNotStopped, pid, state)
	}
	p := &process{pid: pid}
	if err := p.updateThreadList(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *process) updateThreadList() error {
	tids, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", p.pid))
	if err != nil {
		return fmt.Errorf("could not list threads: %w", err)
	}
	for _, ent := range tids {
		tid, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue
		}
		th := proc.Thread{ID: tid}
		buf, err := os.ReadFile(fmt.Sprintf("/proc/%d/task/%d/syscall", p.pid, tid))
		if err == nil {
			th.SP, th.PC, err = parseSyscall(string(buf))
		}
		if err != nil && logflags.Memory() {
			logflags.MemoryLogger().Debugf("thread %d: %v", tid, err)
		}
		p.threads = append(p.threads, th)
	}
	proc.SortThreads(p.threads)
	return nil
}

// ReadMemory implements proc.MemoryReader using process_vm_readv.
func (p *process) ReadMemory(buf []byte, addr uint64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	local := []sys.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []sys.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := sys.ProcessVMReadv(p.pid, local, remote, 0)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (p *process) Pid() int {
	return p.pid
}

func (p *process) ThreadList() []proc.Thread {
	r := make([]proc.Thread, len(p.threads))
	copy(r, p.threads)
	return r
}

// CurrentThread returns the main thread.
func (p *process) CurrentThread() proc.Thread {
	for _, th := range p.threads {
		if th.ID == p.pid {
			return th
		}
	}
	if len(p.threads) > 0 {
		return p.threads[0]
	}
	return proc.Thread{ID: p.pid}
}

func (p *process) Close() error {
	return nil
}
