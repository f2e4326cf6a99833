// Package config handles quark.toml runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/interp"
)

// FileName is the configuration file looked for by FindAndLoad.
const FileName = "quark.toml"

// Config represents a quark.toml file.
type Config struct {
	Heap    HeapConfig    `toml:"heap" json:"heap"`
	Interp  InterpConfig  `toml:"interp" json:"interp"`
	Log     LogConfig     `toml:"log" json:"log"`
	Journal JournalConfig `toml:"journal" json:"journal"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-" json:"-"`
}

// HeapConfig sizes the managed heap. Sizes are in bytes.
type HeapConfig struct {
	InitialSpace    int64   `toml:"initial-space" json:"initialSpace"`
	MaxSpace        int64   `toml:"max-space" json:"maxSpace"`
	GrowthFactor    float64 `toml:"growth-factor" json:"growthFactor"`
	GrowthThreshold float64 `toml:"growth-threshold" json:"growthThreshold"`
}

// InterpConfig sizes the interpreter.
type InterpConfig struct {
	StackSize int `toml:"stack-size" json:"stackSize"`
	MaxFrames int `toml:"max-frames" json:"maxFrames"`
}

// LogConfig controls commonlog output.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// JournalConfig points at the collection journal. An empty path disables it.
type JournalConfig struct {
	Path string `toml:"path" json:"path"`
}

// Default returns the configuration used when no file is found.
func Default() Config {
	h := heap.DefaultConfig()
	i := interp.DefaultConfig()
	return Config{
		Heap: HeapConfig{
			InitialSpace:    int64(h.InitialSpace),
			MaxSpace:        int64(h.MaxSpace),
			GrowthFactor:    h.GrowthFactor,
			GrowthThreshold: h.GrowthThreshold,
		},
		Interp: InterpConfig{StackSize: i.StackSize, MaxFrames: i.MaxFrames},
	}
}

// Load parses a quark.toml file from the given directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the given file. Settings it leaves out keep their
// defaults. The result is validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown setting %q", path, undecoded[0].String())
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if c.Journal.Path != "" && !filepath.IsAbs(c.Journal.Path) {
		c.Journal.Path = filepath.Join(filepath.Dir(c.Path), c.Journal.Path)
	}
	if c.Log.File != "" && !filepath.IsAbs(c.Log.File) {
		c.Log.File = filepath.Join(filepath.Dir(c.Path), c.Log.File)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a quark.toml file,
// then loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// HeapConfig converts the [heap] section.
func (c *Config) HeapConfig() heap.Config {
	return heap.Config{
		InitialSpace:    uint64(c.Heap.InitialSpace),
		MaxSpace:        uint64(c.Heap.MaxSpace),
		GrowthFactor:    c.Heap.GrowthFactor,
		GrowthThreshold: c.Heap.GrowthThreshold,
	}
}

// InterpConfig converts the [interp] section.
func (c *Config) InterpConfig() interp.Config {
	return interp.Config{StackSize: c.Interp.StackSize, MaxFrames: c.Interp.MaxFrames}
}
