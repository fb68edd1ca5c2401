package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	conf := &Config{}
	if got := conf.GetMaxStringLen(); got != DefaultMaxStringLen {
		t.Errorf("max string len: got %d, want %d", got, DefaultMaxStringLen)
	}
	if got := conf.GetMaxStringDepth(); got != DefaultMaxStringDepth {
		t.Errorf("max string depth: got %d, want %d", got, DefaultMaxStringDepth)
	}
	if got := conf.GetMaxStringBytes(); got != DefaultMaxStringBytes {
		t.Errorf("max string bytes: got %d, want %d", got, DefaultMaxStringBytes)
	}
	if got := conf.GetMaxConstructorHops(); got != DefaultMaxConstructorHops {
		t.Errorf("max constructor hops: got %d, want %d", got, DefaultMaxConstructorHops)
	}
	if got := conf.GetMemoryCachePages(); got != DefaultMemoryCachePages {
		t.Errorf("memory cache pages: got %d, want %d", got, DefaultMemoryCachePages)
	}
}

func TestDefaultConfigDecodes(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := writeDefaultConfig(buf); err != nil {
		t.Fatal(err)
	}
	conf, err := decode(buf)
	if err != nil {
		t.Fatalf("default configuration does not decode: %v", err)
	}
	if conf.MaxStringLen != nil || conf.FrameArgs {
		t.Errorf("default configuration should leave every option disabled: %#v", conf)
	}
}

func TestDecode(t *testing.T) {
	conf, err := decode(strings.NewReader(`
aliases:
  inspect: ["p"]
max-string-len: 40
max-constructor-hops: 8
layout-profiles: ["/opt/profiles"]
v8-version: ">= 4.5, < 5"
frame-args: true
`))
	if err != nil {
		t.Fatal(err)
	}
	if conf.GetMaxStringLen() != 40 || conf.GetMaxConstructorHops() != 8 {
		t.Errorf("unexpected limits %d %d", conf.GetMaxStringLen(), conf.GetMaxConstructorHops())
	}
	if len(conf.Aliases["inspect"]) != 1 || conf.Aliases["inspect"][0] != "p" {
		t.Errorf("unexpected aliases %v", conf.Aliases)
	}
	if len(conf.LayoutProfiles) != 1 || conf.V8Version != ">= 4.5, < 5" || !conf.FrameArgs {
		t.Errorf("unexpected configuration %#v", conf)
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("V8SCOPE_CONFIG_DIR", dir)

	conf, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if conf.MaxStringLen != nil {
		t.Errorf("expected empty configuration, got %#v", conf)
	}
	if _, err := os.Stat(filepath.Join(dir, configFile)); err != nil {
		t.Fatalf("default configuration file not created: %v", err)
	}

	n := 12
	conf.MaxStringLen = &n
	if err := SaveConfig(conf); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	conf, err = LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if conf.GetMaxStringLen() != 12 {
		t.Errorf("saved value not reloaded: %d", conf.GetMaxStringLen())
	}
}
