package native

import "testing"

func TestParseStatState(t *testing.T) {
	tests := []struct {
		stat string
		want byte
	}{
		{"1234 (node) T 1 1234 1234 0 -1 4194560", 'T'},
		{"1234 (my (weird) name) t 1 1234", 't'},
		{"1234 (a b) S 1", 'S'},
	}
	for _, tc := range tests {
		got, err := parseStatState(tc.stat)
		if err != nil {
			t.Fatalf("%q: %v", tc.stat, err)
		}
		if got != tc.want {
			t.Errorf("%q: got %c, want %c", tc.stat, got, tc.want)
		}
	}
	if _, err := parseStatState("1234 (node"); err == nil {
		t.Error("malformed line accepted")
	}
	if isStopped('S') || !isStopped('T') || !isStopped('t') {
		t.Error("isStopped")
	}
}

func TestParseSyscall(t *testing.T) {
	sp, pc, err := parseSyscall("202 0x7f00 0x80 0x0 0x0 0x0 0x0 0x7ffc1000 0x7f1234\n")
	if err != nil {
		t.Fatal(err)
	}
	if sp != 0x7ffc1000 || pc != 0x7f1234 {
		t.Fatalf("got sp=%#x pc=%#x", sp, pc)
	}
	sp, pc, err = parseSyscall("-1 0x7ffc2000 0x401000")
	if err != nil || sp != 0x7ffc2000 || pc != 0x401000 {
		t.Fatalf("got %#x %#x %v", sp, pc, err)
	}
	if _, _, err := parseSyscall("running\n"); err == nil {
		t.Fatal("running thread accepted")
	}
}
