package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const doubleSource = `
.method SmallInteger double 0
self:   argument 0
        send self.+(self)
.entry
n:      literal 21
        send n.double()
`

func setup(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "quark.toml")
	if err := os.WriteFile(cfgPath, []byte("[heap]\ninitial-space = 16384\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, cfgPath
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("quark %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestReadColorMode(t *testing.T) {
	for in, want := range map[string]colorMode{"": colorAuto, "AUTO": colorAuto, "on": colorOn, "never": colorOff} {
		got, err := readColorMode(in)
		if err != nil || got != want {
			t.Errorf("readColorMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := readColorMode("sometimes"); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}

func TestRunAssembleAndDisassemble(t *testing.T) {
	dir, cfgPath := setup(t)
	src := filepath.Join(dir, "double.qasm")
	if err := os.WriteFile(src, []byte(doubleSource), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := execute(t, "run", "--config", cfgPath, src); got != "42\n" {
		t.Errorf("run = %q", got)
	}

	execute(t, "asm", "--config", cfgPath, src)
	bin := filepath.Join(dir, "double.qbc")
	if _, err := os.Stat(bin); err != nil {
		t.Fatal(err)
	}
	if got := execute(t, "run", "--config", cfgPath, bin); got != "42\n" {
		t.Errorf("run .qbc = %q", got)
	}

	plain := execute(t, "disasm", "--config", cfgPath, bin)
	if !strings.Contains(plain, "; SmallInteger>>double/0\n0: argument 0\n2: send @0.+(@0)\n") {
		t.Errorf("disasm:\n%s", plain)
	}
	loaded := execute(t, "disasm", "--loaded", "--config", cfgPath, bin)
	if !strings.Contains(loaded, "0: literal 0\n2: send @0.double()\n") {
		t.Errorf("disasm --loaded:\n%s", loaded)
	}
}

func TestStressWithJournalAndDump(t *testing.T) {
	dir, cfgPath := setup(t)
	db := filepath.Join(dir, "gc.db")
	dump := filepath.Join(dir, "census.msgpack")

	out := execute(t, "gc-stress", "--config", cfgPath, "-n", "2", "--iterations", "400", "--live", "8",
		"--journal", db, "--dump", dump)
	if !strings.Contains(out, "2 runtimes in") {
		t.Errorf("gc-stress:\n%s", out)
	}

	summary := execute(t, "journal", "--config", cfgPath, db)
	if lines := strings.Count(summary, "\n"); lines != 3 {
		t.Errorf("journal summary has %d lines:\n%s", lines, summary)
	}
	census := execute(t, "census", "--config", cfgPath, dump)
	if strings.Count(census, "; runtime ") != 2 {
		t.Errorf("census:\n%s", census)
	}
}
