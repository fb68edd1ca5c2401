package layout

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	semver "github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v2"
)

// Profile is a constant table stored in a YAML file, used for executables
// that were stripped of their v8dbg_ symbols or to override some of them:
//
//	version: 4.5.103
//	constants:
//	  SmiTag: 0
//	  SmiTagMask: 1
//	  ...
type Profile struct {
	Version   string           `yaml:"version"`
	Constants map[string]int64 `yaml:"constants"`

	Path string `yaml:"-"`
}

// LoadConstant implements Source.
func (p *Profile) LoadConstant(name string) (int64, bool) {
	v, ok := p.Constants[name]
	return v, ok
}

// ParseProfile decodes a YAML profile.
func ParseProfile(r io.Reader) (*Profile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unable to decode layout profile: %v", err)
	}
	constants := make(map[string]int64, len(p.Constants))
	for name, v := range p.Constants {
		constants[strings.TrimPrefix(name, ConstantPrefix)] = v
	}
	p.Constants = constants
	return &p, nil
}

// OpenProfile reads the YAML profile at path.
func OpenProfile(path string) (*Profile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	p, err := ParseProfile(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	p.Path = path
	return p, nil
}

// FindProfile resolves name to a profile file. If name is not an existing
// file it is looked up, with and without a .yml extension, in each of dirs.
func FindProfile(name string, dirs []string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	for _, dir := range dirs {
		for _, candidate := range []string{name, name + ".yml", name + ".yaml"} {
			path := filepath.Join(dir, candidate)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("layout profile %q not found", name)
}

// CheckVersion returns an error if the version of the profile does not
// satisfy constraint. An empty constraint accepts every profile.
func (p *Profile) CheckVersion(constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid version constraint %q: %v", constraint, err)
	}
	if p.Version == "" {
		return fmt.Errorf("layout profile has no version, required %s", constraint)
	}
	v, err := semver.NewVersion(p.Version)
	if err != nil {
		return fmt.Errorf("invalid layout profile version %q: %v", p.Version, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("layout profile version %s does not satisfy %s", v, constraint)
	}
	return nil
}
