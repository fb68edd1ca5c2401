package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v2"
)

const (
	configDir       string = "v8scope"
	configDirHidden string = ".v8scope"
	configFile      string = "config.yml"
)

// Defaults used when the corresponding option is not set.
const (
	DefaultMaxStringLen       = 16
	DefaultMaxStringDepth     = 64
	DefaultMaxStringBytes     = 16 << 20
	DefaultMaxConstructorHops = 32
	DefaultMemoryCachePages   = 256
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// MaxStringLen is the number of characters of a string that inspect
	// prints before truncating it with "...".
	MaxStringLen *int `yaml:"max-string-len,omitempty"`
	// MaxStringDepth bounds the number of cons/sliced string levels followed
	// while reconstructing a string.
	MaxStringDepth *int `yaml:"max-string-depth,omitempty"`
	// MaxStringBytes bounds the size of a single sequential string read.
	MaxStringBytes *int `yaml:"max-string-bytes,omitempty"`
	// MaxConstructorHops bounds the map back pointer chain walked to find
	// the constructor of an object.
	MaxConstructorHops *int `yaml:"max-constructor-hops,omitempty"`

	// MemoryCachePages is the number of target memory pages kept in the
	// read cache, 0 disables the cache.
	MemoryCachePages *int `yaml:"memory-cache-pages,omitempty"`

	// LayoutProfiles is a list of directories searched for YAML layout
	// profiles passed to --layout by name.
	LayoutProfiles []string `yaml:"layout-profiles"`

	// V8Version is a semver constraint that the version of a layout
	// profile must satisfy.
	V8Version string `yaml:"v8-version,omitempty"`

	// FrameArgs makes bt print the receiver and arguments of every
	// function frame.
	FrameArgs bool `yaml:"frame-args"`

	// ColorAddresses highlights the address prefix of inspected objects.
	ColorAddresses bool `yaml:"color-addresses"`
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// GetMaxStringLen returns MaxStringLen or its default.
func (c *Config) GetMaxStringLen() int { return intOr(c.MaxStringLen, DefaultMaxStringLen) }

// GetMaxStringDepth returns MaxStringDepth or its default.
func (c *Config) GetMaxStringDepth() int { return intOr(c.MaxStringDepth, DefaultMaxStringDepth) }

// GetMaxStringBytes returns MaxStringBytes or its default.
func (c *Config) GetMaxStringBytes() int { return intOr(c.MaxStringBytes, DefaultMaxStringBytes) }

// GetMaxConstructorHops returns MaxConstructorHops or its default.
func (c *Config) GetMaxConstructorHops() int {
	return intOr(c.MaxConstructorHops, DefaultMaxConstructorHops)
}

// GetMemoryCachePages returns MemoryCachePages or its default.
func (c *Config) GetMemoryCachePages() int {
	return intOr(c.MemoryCachePages, DefaultMemoryCachePages)
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() (*Config, error) {
	err := createConfigPath()
	if err != nil {
		return &Config{}, fmt.Errorf("could not create config directory: %v", err)
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to get config file path: %v", err)
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			return &Config{}, fmt.Errorf("error creating default config file: %v", err)
		}
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Printf("Closing config file failed: %v.", err)
		}
	}()

	return decode(f)
}

func decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to decode config file: %v", err)
	}

	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f io.Writer) error {
	_, err := io.WriteString(f,
		`# Configuration file for v8scope.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Number of characters of a string printed by inspect before "...".
# max-string-len: 16

# Maximum number of cons/sliced levels followed when reading a string.
# max-string-depth: 64

# Maximum size in bytes of a single sequential string read.
# max-string-bytes: 16777216

# Maximum number of map back pointers followed to find a constructor.
# max-constructor-hops: 32

# Number of 4KiB target memory pages kept in the read cache (0 disables it).
# memory-cache-pages: 256

# Directories searched for YAML layout profiles.
layout-profiles: []

# Semver constraint the version of a layout profile must satisfy.
# v8-version: ">= 4.5, < 5"

# Print receiver and arguments of function frames in bt.
# frame-args: true

# Highlight the address prefix of inspected objects.
# color-addresses: true
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if configPath := os.Getenv("V8SCOPE_CONFIG_DIR"); configPath != "" {
		return filepath.Join(configPath, file), nil
	}

	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}

	// Use the old config path if it exists.
	if _, err := os.Stat(filepath.Join(userHomeDir, configDirHidden)); err == nil {
		return filepath.Join(userHomeDir, configDirHidden, file), nil
	}

	if runtime.GOOS == "linux" {
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			return filepath.Join(xdgConfigHome, configDir, file), nil
		}
		return filepath.Join(userHomeDir, ".config", configDir, file), nil
	}
	return filepath.Join(userHomeDir, configDirHidden, file), nil
}
