package debugger

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/v8scope/v8scope/pkg/layout"
	"github.com/v8scope/v8scope/pkg/logflags"
	"github.com/v8scope/v8scope/pkg/proc"
	"github.com/v8scope/v8scope/pkg/proc/core"
	"github.com/v8scope/v8scope/pkg/proc/native"
	"github.com/v8scope/v8scope/pkg/v8"
)

// Debugger service.
//
// Debugger owns a paused target and the constant table describing its V8
// heap. It loads the table once when the target is opened and serves
// inspection requests for the terminal, scripts and the DAP server.
type Debugger struct {
	config *Config

	mu     sync.Mutex
	target proc.Process
	mem    *proc.Memory
	layout *layout.Layout
	heap   *v8.Heap
	log    logflags.Logger
}

// Config provides the configuration to start a Debugger.
//
// Only one of AttachPid or CoreFile should be specified.
type Config struct {
	// AttachPid is the PID of a stopped process to inspect.
	AttachPid int

	// CoreFile specifies the path to the core dump to open.
	CoreFile string

	// ExecutablePath is the node executable. The postmortem constants are
	// read from its symbol table and mappings missing from the core file
	// are read from it.
	ExecutablePath string

	// LayoutProfile is the name or path of a YAML layout profile. Its
	// constants take precedence over the ones of the executable.
	LayoutProfile string

	// LayoutProfileDirs are searched for LayoutProfile.
	LayoutProfileDirs []string

	// V8Version is a semver constraint LayoutProfile must satisfy.
	V8Version string

	// Constants take precedence over every other constant source.
	Constants layout.MapSource

	// Options bounds the work done decoding the heap.
	Options v8.Options

	// MemoryCachePages is the size of the target memory page cache.
	MemoryCachePages int
}

// ErrNoTarget is returned when the configuration names neither a core file
// nor a process.
var ErrNoTarget = errors.New("no core file or process id specified")

// New opens the target described by config and loads its constant table.
func New(config *Config) (*Debugger, error) {
	logger := logflags.DebuggerLogger()

	var (
		target proc.Process
		err    error
	)
	switch {
	case config.AttachPid > 0:
		logger.Infof("attaching to pid %d", config.AttachPid)
		target, err = native.Open(config.AttachPid)
		if err != nil {
			return nil, attachErrorMessage(config.AttachPid, err)
		}
	case config.CoreFile != "":
		logger.Infof("opening core file %s (executable %s)", config.CoreFile, config.ExecutablePath)
		target, err = core.Open(config.ExecutablePath, config.CoreFile)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoTarget
	}

	src, err := LoadSources(config)
	if err != nil {
		target.Close()
		return nil, err
	}
	return NewWithTarget(config, target, src), nil
}

// NewWithTarget returns a Debugger serving an already opened target.
func NewWithTarget(config *Config, target proc.Process, src layout.Source) *Debugger {
	d := &Debugger{
		config: config,
		target: target,
		log:    logflags.DebuggerLogger(),
	}
	d.layout = layout.Load(src)
	d.mem = proc.NewMemory(target, int(d.layout.PointerSize), config.MemoryCachePages)
	d.heap = v8.New(d.layout, d.mem, config.Options)
	if missing := d.layout.Missing(); len(missing) > 0 {
		d.log.Warnf("%d postmortem constants missing, some objects may not decode", len(missing))
	}
	return d
}

// LoadSources returns the constant sources of config in order of
// precedence: explicit constants, the layout profile, the executable.
func LoadSources(config *Config) (layout.Source, error) {
	var srcs []layout.Source
	if len(config.Constants) > 0 {
		srcs = append(srcs, config.Constants)
	}
	if config.LayoutProfile != "" {
		path, err := layout.FindProfile(config.LayoutProfile, config.LayoutProfileDirs)
		if err != nil {
			return nil, err
		}
		profile, err := layout.OpenProfile(path)
		if err != nil {
			return nil, err
		}
		if err := profile.CheckVersion(config.V8Version); err != nil {
			return nil, err
		}
		logflags.DebuggerLogger().Debugf("using layout profile %s (V8 %s)", profile.Path, profile.Version)
		srcs = append(srcs, profile)
	}
	if config.ExecutablePath != "" {
		elfSrc, err := layout.OpenELF(config.ExecutablePath)
		switch {
		case err == nil:
			logflags.DebuggerLogger().Debugf("read %d constants from %s", elfSrc.Len(), elfSrc.Path)
			srcs = append(srcs, elfSrc)
		case len(srcs) == 0:
			return nil, err
		default:
			logflags.DebuggerLogger().Warnf("ignoring executable constants: %v", err)
		}
	}
	if len(srcs) == 0 {
		return nil, layout.ErrNoConstants
	}
	return layout.Chain(srcs...), nil
}

func attachErrorMessage(pid int, err error) error {
	if errors.Is(err, native.ErrNotStopped) {
		return fmt.Errorf("could not attach to pid %d: %v (stop it first, for example with kill -STOP %d)", pid, err, pid)
	}
	return fmt.Errorf("could not attach to pid %d: %v", pid, err)
}

// Detach releases the target. The inspected process is never modified so
// there is nothing to restore.
func (d *Debugger) Detach() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.target == nil {
		return nil
	}
	err := d.target.Close()
	d.target = nil
	return err
}

// Layout returns the constant table of the target.
func (d *Debugger) Layout() *layout.Layout {
	return d.layout
}

// Heap returns the heap decoder of the target.
func (d *Debugger) Heap() *v8.Heap {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.heap
}

// SetOptions replaces the decoding limits.
func (d *Debugger) SetOptions(opts v8.Options) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.Options = opts
	d.heap = v8.New(d.layout, d.mem, opts)
}

// Pid returns the process id of the target.
func (d *Debugger) Pid() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.target == nil {
		return 0
	}
	return d.target.Pid()
}

// Inspect evaluates expr and renders the resulting value.
func (d *Debugger) Inspect(expr string) (string, error) {
	word, err := d.EvalValue(expr)
	if err != nil {
		return "", err
	}
	return d.InspectWord(word)
}

// InspectWord renders the tagged value word.
func (d *Debugger) InspectWord(word int64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.heap.Inspect(word)
}

// InspectFrame renders the frame whose frame pointer is fp.
func (d *Debugger) InspectFrame(fp int64, withArgs bool) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.heap.InspectFrame(fp, withArgs)
}

// FrameArguments renders the receiver followed by the arguments of the
// function frame at fp. Frames that do not belong to a function have
// none.
func (d *Debugger) FrameArguments(fp int64) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vals, err := d.heap.Frame(fp).Arguments()
	if err != nil {
		return nil, err
	}
	r := make([]string, len(vals))
	for i, v := range vals {
		if r[i], err = v.Inspect(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Threads returns the threads of the target.
func (d *Debugger) Threads() []proc.Thread {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.target == nil {
		return nil
	}
	return d.target.ThreadList()
}

// CurrentThread returns the selected thread of the target.
func (d *Debugger) CurrentThread() proc.Thread {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.target == nil {
		return proc.Thread{}
	}
	return d.target.CurrentThread()
}

// FindThread returns the thread with the given id.
func (d *Debugger) FindThread(id int) (proc.Thread, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.target == nil {
		return proc.Thread{}, ErrNoTarget
	}
	return proc.FindThread(d.target, id)
}

// Constants returns the loaded constants whose name starts with prefix.
func (d *Debugger) Constants(prefix string) []layout.Entry {
	var r []layout.Entry
	for _, e := range d.layout.Table() {
		if strings.HasPrefix(e.Name, prefix) {
			r = append(r, e)
		}
	}
	return r
}

// ReadMemory reads size bytes at addr.
func (d *Debugger) ReadMemory(addr uint64, size int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mem.ReadBytes(int64(addr), int64(size))
}

// ReadWord reads the pointer sized word at addr.
func (d *Debugger) ReadWord(addr uint64) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mem.ReadWord(int64(addr))
}
