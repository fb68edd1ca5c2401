package config

import (
	"bytes"
	"strings"
	"testing"
)

func TestSplitQuotedFields(t *testing.T) {
	in := `field'A' 'fieldB' fie'l\'d'C fieldD 'another field' fieldE`
	tgt := []string{"fieldA", "fieldB", "fiel'dC", "fieldD", "another field", "fieldE"}
	out := SplitQuotedFields(in, '\'')

	if len(tgt) != len(out) {
		t.Fatalf("expected %#v, got %#v (len mismatch)", tgt, out)
	}

	for i := range tgt {
		if tgt[i] != out[i] {
			t.Fatalf(" expected %#v, got %#v (mismatch at %d)", tgt, out, i)
		}
	}
}

func TestSplit2PartsBySpace(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"max-string-len", []string{"max-string-len"}},
		{"max-string-len  4 ", []string{"max-string-len", "4"}},
		{"alias inspect ins", []string{"alias", "inspect ins"}},
	}
	for _, tc := range tests {
		got := Split2PartsBySpace(tc.in)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Errorf("%q: got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConfigureListByName(t *testing.T) {
	type testConfig struct {
		boolArg bool     `cfgName:"bool-arg"`
		listArg []string `cfgName:"list-arg"`
	}

	type args struct {
		sargs   *testConfig
		cfgname string
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{
			name: "basic bool",
			args: args{
				sargs: &testConfig{
					boolArg: true,
					listArg: []string{},
				},
				cfgname: "bool-arg",
			},
			want: "bool-arg	true\n",
		},
		{
			name: "list arg",
			args: args{
				sargs: &testConfig{
					boolArg: true,
					listArg: []string{"item 1", "item 2"},
				},

				cfgname: "list-arg",
			},
			want: "list-arg	[item 1 item 2]\n",
		},
		{
			name: "empty",
			args: args{
				sargs:   &testConfig{},
				cfgname: "",
			},
			want: "",
		},
		{
			name: "invalid",
			args: args{
				sargs:   &testConfig{},
				cfgname: "nonexistent",
			},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConfigureListByName(tt.args.sargs, tt.args.cfgname, "cfgName"); got != tt.want {
				t.Errorf("ConfigureListByName() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigureSetSimple(t *testing.T) {
	conf := &Config{}

	for _, tc := range []struct {
		name, value string
	}{
		{"max-string-len", "32"},
		{"frame-args", "true"},
		{"v8-version", ">= 4.5"},
	} {
		field := ConfigureFindFieldByName(conf, tc.name, "yaml")
		if !field.IsValid() {
			t.Fatalf("field %q not found", tc.name)
		}
		if err := ConfigureSetSimple(tc.value, tc.name, field); err != nil {
			t.Fatalf("setting %q: %v", tc.name, err)
		}
	}

	if conf.GetMaxStringLen() != 32 {
		t.Errorf("max-string-len: got %d, want 32", conf.GetMaxStringLen())
	}
	if !conf.FrameArgs {
		t.Errorf("frame-args was not set")
	}
	if conf.V8Version != ">= 4.5" {
		t.Errorf("v8-version: got %q", conf.V8Version)
	}

	field := ConfigureFindFieldByName(conf, "max-constructor-hops", "yaml")
	if err := ConfigureSetSimple("-1", "max-constructor-hops", field); err == nil {
		t.Errorf("expected error for negative value")
	}
	field = ConfigureFindFieldByName(conf, "color-addresses", "yaml")
	if err := ConfigureSetSimple("yes", "color-addresses", field); err == nil {
		t.Errorf("expected error for non boolean value")
	}
}

func TestConfigureList(t *testing.T) {
	n := 20
	conf := &Config{MaxStringLen: &n, Aliases: map[string][]string{"inspect": {"p"}}}
	buf := new(bytes.Buffer)
	ConfigureList(buf, conf, "yaml")
	out := buf.String()
	if !strings.Contains(out, "max-string-len\t20\n") {
		t.Errorf("missing max-string-len in %q", out)
	}
	if !strings.Contains(out, "max-string-depth\t<not defined>\n") {
		t.Errorf("missing max-string-depth in %q", out)
	}
	if strings.Contains(out, "aliases") {
		t.Errorf("aliases should not be listed: %q", out)
	}
}
