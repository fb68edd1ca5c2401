package core

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/v8scope/v8scope/pkg/logflags"
	"github.com/v8scope/v8scope/pkg/proc"
)

// NT_FILE is file mapping information, e.g. program text mappings. Desc is a linuxNTFile.
const _NT_FILE elf.NType = 0x46494c45 // "FILE".

const elfErrorBadMagicNumber = "bad magic number"

// readLinuxCore reads a core file from corePath corresponding to the executable at
// exePath. For details on the Linux ELF core format, see:
// http://www.gabriel.urdhr.fr/2015/05/29/core-file/,
// http://uhlo.blogspot.fr/2012/05/brief-look-into-core-dumps.html,
// elf_core_dump in http://lxr.free-electrons.com/source/fs/binfmt_elf.c,
// and, if absolutely desperate, readelf.c from the binutils source.
func readLinuxCore(corePath, exePath string) (*process, error) {
	coreFile, err := elf.Open(corePath)
	if err != nil {
		if _, isfmterr := err.(*elf.FormatError); isfmterr && (strings.Contains(err.Error(), elfErrorBadMagicNumber) || strings.Contains(err.Error(), " at offset 0x0: too short")) {
			return nil, ErrUnrecognizedFormat
		}
		return nil, err
	}
	exe, err := os.Open(exePath)
	if err != nil {
		coreFile.Close()
		return nil, err
	}
	exeELF, err := elf.NewFile(exe)
	if err != nil {
		coreFile.Close()
		exe.Close()
		return nil, fmt.Errorf("could not read %s: %w", exePath, err)
	}

	p, err := newLinuxProcess(coreFile, exeELF, exe)
	if err != nil {
		coreFile.Close()
		exe.Close()
		return nil, err
	}
	p.closers = append(p.closers, coreFile, exe)
	return p, nil
}

func newLinuxProcess(coreFile, exeELF *elf.File, exe io.ReaderAt) (*process, error) {
	if coreFile.Type != elf.ET_CORE {
		return nil, fmt.Errorf("%v is not a core file", coreFile.Type)
	}
	if exeELF.Type != elf.ET_EXEC && exeELF.Type != elf.ET_DYN {
		return nil, fmt.Errorf("%v is not an exe file", exeELF.Type)
	}
	machineType := coreFile.Machine
	if machineType != elf.EM_X86_64 && machineType != elf.EM_AARCH64 {
		return nil, fmt.Errorf("unsupported machine type %v", machineType)
	}

	notes, err := readNotes(coreFile, machineType)
	if err != nil {
		return nil, err
	}
	p := &process{mem: buildMemory(coreFile, exeELF, exe, notes)}
	linuxThreadsFromNotes(p, notes)
	if len(p.threads) == 0 {
		return nil, ErrNoThreads
	}
	return p, nil
}

func linuxThreadsFromNotes(p *process, notes []*note) {
	for _, note := range notes {
		switch desc := note.Desc.(type) {
		case *linuxPrStatusAMD64:
			th := proc.Thread{ID: int(desc.Pid), PC: desc.Reg.Rip, SP: desc.Reg.Rsp, FP: desc.Reg.Rbp}
			p.addThread(th)
		case *linuxPrStatusARM64:
			th := proc.Thread{ID: int(desc.Pid), PC: desc.Reg.Pc, SP: desc.Reg.Sp, FP: desc.Reg.Regs[29]}
			p.addThread(th)
		case *linuxPrPsInfo:
			p.pid = int(desc.Pid)
		}
	}
	proc.SortThreads(p.threads)
	if logflags.Memory() {
		logflags.MemoryLogger().Debugf("core file: pid %d, %d threads", p.pid, len(p.threads))
	}
}

func (p *process) addThread(th proc.Thread) {
	if len(p.threads) == 0 {
		p.current = th
	}
	p.threads = append(p.threads, th)
}

// Note is a note from the PT_NOTE prog.
// Relevant types:
// - NT_FILE: File mapping information, e.g. program text mappings. Desc is a linuxNTFile.
// - NT_PRPSINFO: Information about a process, including PID and signal. Desc is a linuxPrPsInfo.
// - NT_PRSTATUS: Information about a thread, including base registers, state, etc. Desc is a linuxPrStatus.
type note struct {
	Type elf.NType
	Name string
	Desc interface{}
}

// readNotes reads all the notes from the notes prog in core.
func readNotes(core *elf.File, machineType elf.Machine) ([]*note, error) {
	notes := []*note{}
	for _, prog := range core.Progs {
		if prog.Type != elf.PT_NOTE {
			continue
		}
		r := prog.Open()
		for {
			note, err := readNote(r, machineType)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			notes = append(notes, note)
		}
	}
	return notes, nil
}

// readNote reads a single note from r, decoding the descriptor if possible.
func readNote(r io.ReadSeeker, machineType elf.Machine) (*note, error) {
	// Notes are laid out as described in the SysV ABI:
	// http://www.sco.com/developers/gabi/latest/ch5.pheader.html#note_section
	note := &note{}
	hdr := &elfNotesHdr{}

	err := binary.Read(r, binary.LittleEndian, hdr)
	if err != nil {
		return nil, err // don't wrap so readNotes sees EOF.
	}
	note.Type = elf.NType(hdr.Type)

	name := make([]byte, hdr.Namesz)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fmt.Errorf("reading name: %v", err)
	}
	note.Name = strings.TrimRight(string(name), "\x00")
	if err := skipPadding(r, 4); err != nil {
		return nil, fmt.Errorf("aligning after name: %v", err)
	}
	desc := make([]byte, hdr.Descsz)
	if _, err := io.ReadFull(r, desc); err != nil {
		return nil, fmt.Errorf("reading desc: %v", err)
	}
	descReader := bytes.NewReader(desc)
	switch note.Type {
	case elf.NT_PRSTATUS:
		switch machineType {
		case elf.EM_X86_64:
			note.Desc = &linuxPrStatusAMD64{}
		case elf.EM_AARCH64:
			note.Desc = &linuxPrStatusARM64{}
		default:
			return nil, fmt.Errorf("unsupported machine type %v", machineType)
		}
		if err := binary.Read(descReader, binary.LittleEndian, note.Desc); err != nil {
			return nil, fmt.Errorf("reading NT_PRSTATUS: %v", err)
		}
	case elf.NT_PRPSINFO:
		note.Desc = &linuxPrPsInfo{}
		if err := binary.Read(descReader, binary.LittleEndian, note.Desc); err != nil {
			return nil, fmt.Errorf("reading NT_PRPSINFO: %v", err)
		}
	case _NT_FILE:
		// No good documentation reference, but the structure is
		// simply a header, including entry count, followed by that
		// many entries, and then the file name of each entry,
		// null-delimited.
		data := &linuxNTFile{}
		if err := binary.Read(descReader, binary.LittleEndian, &data.linuxNTFileHdr); err != nil {
			return nil, fmt.Errorf("reading NT_FILE header: %v", err)
		}
		for i := 0; i < int(data.Count); i++ {
			entry := &linuxNTFileEntry{}
			if err := binary.Read(descReader, binary.LittleEndian, entry); err != nil {
				return nil, fmt.Errorf("reading NT_FILE entry %v: %v", i, err)
			}
			data.entries = append(data.entries, entry)
		}
		rest, _ := io.ReadAll(descReader)
		data.names = strings.Split(strings.TrimRight(string(rest), "\x00"), "\x00")
		note.Desc = data
	}
	if err := skipPadding(r, 4); err != nil {
		return nil, fmt.Errorf("aligning after desc: %v", err)
	}
	return note, nil
}

// skipPadding moves r to the next multiple of pad.
func skipPadding(r io.ReadSeeker, pad int64) error {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if pos%pad == 0 {
		return nil
	}
	if _, err := r.Seek(pad-(pos%pad), io.SeekCurrent); err != nil {
		return err
	}
	return nil
}

// buildMemory splices the file mappings of the executable under the
// PT_LOAD segments of the executable and of the core file.
func buildMemory(core, exeELF *elf.File, exe io.ReaderAt, notes []*note) proc.MemoryReader {
	memory := &splicedMemory{}

	// Only mappings of the executable itself can be served, other
	// libraries are not available.
	for _, note := range notes {
		if note.Type != _NT_FILE {
			continue
		}
		fileNote := note.Desc.(*linuxNTFile)
		for i, entry := range fileNote.entries {
			if !fileNote.mapsExe(i) {
				continue
			}
			r := &offsetReaderAt{
				reader: exe,
				offset: entry.Start - (entry.FileOfs * fileNote.PageSize),
			}
			memory.Add(r, entry.Start, entry.End-entry.Start)
		}
	}

	// Load memory segments from exe and then from the core file,
	// allowing the corefile to overwrite previously loaded segments
	for _, elfFile := range []*elf.File{exeELF, core} {
		for _, prog := range elfFile.Progs {
			if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
				continue
			}
			r := &offsetReaderAt{
				reader: prog.ReaderAt,
				offset: prog.Vaddr,
			}
			memory.Add(r, prog.Vaddr, prog.Filesz)
		}
	}
	return memory
}

// mapsExe reports whether the i-th entry maps the executable. The
// executable is assumed to be the first file named in the note.
func (f *linuxNTFile) mapsExe(i int) bool {
	if len(f.names) != len(f.entries) {
		return true
	}
	return f.names[i] == f.names[0]
}

// Copied from golang.org/x/sys/unix.Timeval since it's not available on all
// systems.
type linuxCoreTimeval struct {
	Sec  int64
	Usec int64
}

// linuxPrPsInfo has various structures from the ELF format and the Linux kernel.
// See http://lxr.free-electrons.com/source/include/uapi/linux/elfcore.h
type linuxPrPsInfo struct {
	State                uint8
	Sname                int8
	Zomb                 uint8
	Nice                 int8
	_                    [4]uint8
	Flag                 uint64
	Uid, Gid             uint32
	Pid, Ppid, Pgrp, Sid int32
	Fname                [16]uint8
	Args                 [80]uint8
}

// linuxPrStatusAMD64 is a copy of the prstatus kernel struct.
type linuxPrStatusAMD64 struct {
	Siginfo                      linuxSiginfo
	Cursig                       uint16
	_                            [2]uint8
	Sigpend                      uint64
	Sighold                      uint64
	Pid, Ppid, Pgrp, Sid         int32
	Utime, Stime, CUtime, CStime linuxCoreTimeval
	Reg                          amd64PtraceRegs
	Fpvalid                      int32
}

// linuxPrStatusARM64 is a copy of the prstatus kernel struct.
type linuxPrStatusARM64 struct {
	Siginfo                      linuxSiginfo
	Cursig                       uint16
	_                            [2]uint8
	Sigpend                      uint64
	Sighold                      uint64
	Pid, Ppid, Pgrp, Sid         int32
	Utime, Stime, CUtime, CStime linuxCoreTimeval
	Reg                          arm64PtraceRegs
	Fpvalid                      int32
}

// amd64PtraceRegs is the user_regs_struct of the linux kernel on AMD64.
type amd64PtraceRegs struct {
	R15      uint64
	R14      uint64
	R13      uint64
	R12      uint64
	Rbp      uint64
	Rbx      uint64
	R11      uint64
	R10      uint64
	R9       uint64
	R8       uint64
	Rax      uint64
	Rcx      uint64
	Rdx      uint64
	Rsi      uint64
	Rdi      uint64
	Orig_rax uint64
	Rip      uint64
	Cs       uint64
	Eflags   uint64
	Rsp      uint64
	Ss       uint64
	Fs_base  uint64
	Gs_base  uint64
	Ds       uint64
	Es       uint64
	Fs       uint64
	Gs       uint64
}

// arm64PtraceRegs is the user_pt_regs struct of the linux kernel on ARM64.
// X29 is the frame pointer.
type arm64PtraceRegs struct {
	Regs   [31]uint64
	Sp     uint64
	Pc     uint64
	Pstate uint64
}

// linuxSiginfo is a copy of the
// siginfo kernel struct.
type linuxSiginfo struct {
	Signo int32
	Code  int32
	Errno int32
}

// linuxNTFile contains information on mapped files.
type linuxNTFile struct {
	linuxNTFileHdr
	entries []*linuxNTFileEntry
	names   []string
}

// linuxNTFileHdr is a header struct for NTFile.
type linuxNTFileHdr struct {
	Count    uint64
	PageSize uint64
}

// linuxNTFileEntry is an entry of an NT_FILE note.
type linuxNTFileEntry struct {
	Start   uint64
	End     uint64
	FileOfs uint64
}

// elfNotesHdr is the ELF Notes header.
// Same size on 64 and 32-bit machines.
type elfNotesHdr struct {
	Namesz uint32
	Descsz uint32
	Type   uint32
}
