package layout

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testProfile = `version: 4.5.103
constants:
  v8dbg_SmiTag: 0
  SmiTagMask: 1
  SmiShiftSize: 31
  PointerSizeLog2: 3
`

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile(strings.NewReader(testProfile))
	if err != nil {
		t.Fatal(err)
	}
	if p.Version != "4.5.103" {
		t.Errorf("version: got %q", p.Version)
	}
	if v, ok := p.LoadConstant("SmiTag"); !ok || v != 0 {
		t.Errorf("prefixed constant not normalized: %d %v", v, ok)
	}
	lo := Load(p)
	if lo.Smi.ShiftSize != 31 || lo.PointerSize != 8 {
		t.Errorf("unexpected layout %#v", lo.Smi)
	}
}

func TestParseProfileError(t *testing.T) {
	if _, err := ParseProfile(strings.NewReader("constants: [1, 2")); err == nil {
		t.Fatal("expected error")
	}
}

func TestCheckVersion(t *testing.T) {
	p := &Profile{Version: "4.5.103"}
	tests := []struct {
		constraint string
		ok         bool
	}{
		{"", true},
		{">= 4.5, < 5", true},
		{"~4.5", true},
		{">= 5.0", false},
		{"not a constraint", false},
	}
	for _, tc := range tests {
		err := p.CheckVersion(tc.constraint)
		if (err == nil) != tc.ok {
			t.Errorf("CheckVersion(%q) = %v, want ok=%v", tc.constraint, err, tc.ok)
		}
	}

	if err := (&Profile{}).CheckVersion(">= 4"); err == nil {
		t.Errorf("profile without version should not satisfy a constraint")
	}
	if err := (&Profile{Version: "banana"}).CheckVersion(">= 4"); err == nil {
		t.Errorf("invalid profile version should be reported")
	}
}

func TestFindProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node-4.yml")
	if err := os.WriteFile(path, []byte(testProfile), 0600); err != nil {
		t.Fatal(err)
	}

	found, err := FindProfile("node-4", []string{filepath.Join(dir, "missing"), dir})
	if err != nil {
		t.Fatal(err)
	}
	if found != path {
		t.Errorf("FindProfile = %q, want %q", found, path)
	}
	if found, err := FindProfile(path, nil); err != nil || found != path {
		t.Errorf("FindProfile with a path = %q, %v", found, err)
	}
	if _, err := FindProfile("node-5", []string{dir}); err == nil {
		t.Errorf("expected error for missing profile")
	}

	p, err := OpenProfile(found)
	if err != nil {
		t.Fatal(err)
	}
	if p.Path != path || len(p.Constants) != 4 {
		t.Errorf("unexpected profile %#v", p)
	}
}
