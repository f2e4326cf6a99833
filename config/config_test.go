package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if c.Heap.InitialSpace != 256<<10 || c.Heap.MaxSpace != 64<<20 {
		t.Errorf("heap defaults = %+v", c.Heap)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, `
[heap]
initial-space = 8192

[journal]
path = "gc.db"
`)
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Heap.InitialSpace != 8192 {
		t.Errorf("initial-space = %d", c.Heap.InitialSpace)
	}
	if c.Heap.GrowthFactor != 2 || c.Interp.MaxFrames != Default().Interp.MaxFrames {
		t.Errorf("defaults lost: %+v", c)
	}
	if want := filepath.Join(dir, "gc.db"); c.Journal.Path != want {
		t.Errorf("journal path = %q, want %q", c.Journal.Path, want)
	}
	if hc := c.HeapConfig(); hc.InitialSpace != 8192 {
		t.Errorf("heap config = %+v", hc)
	}
}

func TestLoadRejectsUnknownSetting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "[heap]\ninitial-sapce = 8192\n")
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "initial-sapce") {
		t.Fatalf("err = %v, want unknown setting", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"growth factor":    func(c *Config) { c.Heap.GrowthFactor = 0.5 },
		"growth threshold": func(c *Config) { c.Heap.GrowthThreshold = 1.5 },
		"tiny space":       func(c *Config) { c.Heap.InitialSpace = 8 },
		"max below initial": func(c *Config) {
			c.Heap.InitialSpace = 1 << 20
			c.Heap.MaxSpace = 1 << 10
		},
		"verbosity": func(c *Config) { c.Log.Verbosity = 9 },
	} {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "[interp]\nmax-frames = 64\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Interp.MaxFrames != 64 {
		t.Fatalf("config = %+v", c)
	}
	if c.Path != filepath.Join(root, FileName) {
		t.Errorf("path = %q", c.Path)
	}
}
