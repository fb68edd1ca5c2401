package proc

import (
	"errors"
	"sort"
)

// ErrThreadNotFound is returned when a thread id does not belong to the
// target.
var ErrThreadNotFound = errors.New("thread not found")

// Thread is the saved register state of a paused thread.
type Thread struct {
	ID int
	PC uint64
	SP uint64
	FP uint64
}

// Process is a paused target: a core dump or a stopped live process.
type Process interface {
	MemoryReader
	// Pid returns the process id of the target.
	Pid() int
	// ThreadList returns the threads of the target sorted by id.
	ThreadList() []Thread
	// CurrentThread returns the thread that caused the process to stop, or
	// the first thread.
	CurrentThread() Thread
	// Close releases the files held by the target.
	Close() error
}

// FindThread returns the thread of p with the given id.
func FindThread(p Process, id int) (Thread, error) {
	for _, th := range p.ThreadList() {
		if th.ID == id {
			return th, nil
		}
	}
	return Thread{}, ErrThreadNotFound
}

// SortThreads sorts threads by id.
func SortThreads(threads []Thread) {
	sort.Slice(threads, func(i, j int) bool { return threads[i].ID < threads[j].ID })
}
