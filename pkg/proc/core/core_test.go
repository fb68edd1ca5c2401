package core

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/v8scope/v8scope/pkg/proc"
)

func TestSplicedReader(t *testing.T) {
	data := []byte{}
	data2 := []byte{}
	for i := 0; i < 100; i++ {
		data = append(data, byte(i))
		data2 = append(data2, byte(i+100))
	}

	type region struct {
		data   []byte
		off    uint64
		length uint64
	}
	tests := []struct {
		name     string
		regions  []region
		readAddr uint64
		readLen  int
		want     []byte
	}{
		{
			"Insert after",
			[]region{
				{data, 0, 1},
				{data2, 1, 1},
			},
			0,
			2,
			[]byte{0, 101},
		},
		{
			"Insert before",
			[]region{
				{data, 1, 1},
				{data2, 0, 1},
			},
			0,
			2,
			[]byte{100, 1},
		},
		{
			"Completely overwrite",
			[]region{
				{data, 1, 1},
				{data2, 0, 3},
			},
			0,
			3,
			[]byte{100, 101, 102},
		},
		{
			"Overwrite end",
			[]region{
				{data, 0, 2},
				{data2, 1, 2},
			},
			0,
			3,
			[]byte{0, 101, 102},
		},
		{
			"Overwrite start",
			[]region{
				{data, 0, 3},
				{data2, 0, 2},
			},
			0,
			3,
			[]byte{100, 101, 2},
		},
		{
			"Punch hole",
			[]region{
				{data, 0, 5},
				{data2, 1, 3},
			},
			0,
			5,
			[]byte{0, 101, 102, 103, 4},
		},
		{
			"Overlap two",
			[]region{
				{data, 10, 4},
				{data, 14, 4},
				{data2, 12, 4},
			},
			10,
			8,
			[]byte{10, 11, 112, 113, 114, 115, 16, 17},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			mem := &splicedMemory{}
			for _, region := range test.regions {
				r := bytes.NewReader(region.data)
				mem.Add(&offsetReaderAt{r, 0}, region.off, region.length)
			}
			got := make([]byte, test.readLen)
			n, err := mem.ReadMemory(got, test.readAddr)
			if n != test.readLen || err != nil || !reflect.DeepEqual(got, test.want) {
				t.Errorf("ReadAt = %v, %v, %v, want %v, %v, %v", n, err, got, test.readLen, nil, test.want)
			}
		})
	}
}

func TestSplicedReaderUnmapped(t *testing.T) {
	mem := &splicedMemory{}
	mem.Add(&offsetReaderAt{bytes.NewReader(make([]byte, 16)), 0x100}, 0x100, 16)
	mem.Add(&offsetReaderAt{bytes.NewReader(make([]byte, 16)), 0x200}, 0x200, 16)

	buf := make([]byte, 8)
	if _, err := mem.ReadMemory(buf, 0x180); err == nil {
		t.Fatal("read from a gap succeeded")
	}
	n, err := mem.ReadMemory(buf, 0x10c)
	if err != nil || n != 4 {
		t.Fatalf("read across the end of a region = %d, %v, want 4, nil", n, err)
	}
}

// noteBytes encodes a single ELF note.
func noteBytes(typ elf.NType, name string, desc []byte) []byte {
	buf := new(bytes.Buffer)
	namez := append([]byte(name), 0)
	binary.Write(buf, binary.LittleEndian, elfNotesHdr{uint32(len(namez)), uint32(len(desc)), uint32(typ)})
	buf.Write(namez)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	buf.Write(desc)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func encode(t *testing.T, v interface{}) []byte {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readAllNotes(t *testing.T, data []byte, machine elf.Machine) []*note {
	r := bytes.NewReader(data)
	var notes []*note
	for r.Len() > 0 {
		n, err := readNote(r, machine)
		if err != nil {
			t.Fatalf("readNote: %v", err)
		}
		notes = append(notes, n)
	}
	return notes
}

func TestThreadsFromNotesAMD64(t *testing.T) {
	var st1, st2 linuxPrStatusAMD64
	st1.Pid = 101
	st1.Reg.Rip, st1.Reg.Rsp, st1.Reg.Rbp = 0x400000, 0x7ffe0000, 0x7ffe0040
	st2.Pid = 100
	st2.Reg.Rbp = 0x7ffd0000
	var ps linuxPrPsInfo
	ps.Pid = 100

	data := noteBytes(elf.NT_PRSTATUS, "CORE", encode(t, &st1))
	data = append(data, noteBytes(elf.NT_PRPSINFO, "CORE", encode(t, &ps))...)
	data = append(data, noteBytes(elf.NT_PRSTATUS, "CORE", encode(t, &st2))...)

	notes := readAllNotes(t, data, elf.EM_X86_64)
	if len(notes) != 3 {
		t.Fatalf("got %d notes, want 3", len(notes))
	}
	if notes[0].Name != "CORE" {
		t.Fatalf("note name %q", notes[0].Name)
	}
	p := &process{}
	linuxThreadsFromNotes(p, notes)
	if p.Pid() != 100 {
		t.Errorf("pid = %d, want 100", p.Pid())
	}
	want := []proc.Thread{{ID: 100, FP: 0x7ffd0000}, {ID: 101, PC: 0x400000, SP: 0x7ffe0000, FP: 0x7ffe0040}}
	if !reflect.DeepEqual(p.ThreadList(), want) {
		t.Errorf("threads = %#v, want %#v", p.ThreadList(), want)
	}
	if p.CurrentThread().ID != 101 {
		t.Errorf("current thread = %d, want 101", p.CurrentThread().ID)
	}
}

func TestThreadsFromNotesARM64(t *testing.T) {
	var st linuxPrStatusARM64
	st.Pid = 7
	st.Reg.Regs[29] = 0xfff0
	st.Reg.Sp = 0xff00
	st.Reg.Pc = 0x1234
	notes := readAllNotes(t, noteBytes(elf.NT_PRSTATUS, "CORE", encode(t, &st)), elf.EM_AARCH64)
	p := &process{}
	linuxThreadsFromNotes(p, notes)
	want := proc.Thread{ID: 7, PC: 0x1234, SP: 0xff00, FP: 0xfff0}
	if got := p.CurrentThread(); got != want {
		t.Errorf("thread = %#v, want %#v", got, want)
	}
}

func TestReadNTFile(t *testing.T) {
	desc := encode(t, linuxNTFileHdr{Count: 2, PageSize: 0x1000})
	desc = append(desc, encode(t, linuxNTFileEntry{Start: 0x400000, End: 0x402000, FileOfs: 0})...)
	desc = append(desc, encode(t, linuxNTFileEntry{Start: 0x7f0000, End: 0x7f1000, FileOfs: 2})...)
	desc = append(desc, []byte("/usr/bin/node\x00/lib/libc.so.6\x00")...)

	notes := readAllNotes(t, noteBytes(_NT_FILE, "CORE", desc), elf.EM_X86_64)
	f, ok := notes[0].Desc.(*linuxNTFile)
	if !ok {
		t.Fatalf("unexpected desc %T", notes[0].Desc)
	}
	if len(f.entries) != 2 || f.entries[1].FileOfs != 2 {
		t.Fatalf("unexpected entries %v", f.entries)
	}
	if !f.mapsExe(0) || f.mapsExe(1) {
		t.Errorf("mapsExe = %v %v, want true false", f.mapsExe(0), f.mapsExe(1))
	}
}
