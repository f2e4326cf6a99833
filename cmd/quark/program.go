package main

import (
	"path/filepath"
	"strings"

	"github.com/chazu/quark/bytecode"
)

const (
	asmExt      = ".qasm"
	bytecodeExt = ".qbc"
)

// readProgram loads assembly or encoded bytecode, chosen by extension.
func readProgram(path string) (*bytecode.Program, error) {
	if strings.EqualFold(filepath.Ext(path), bytecodeExt) {
		return bytecode.ReadProgram(path)
	}
	return bytecode.AssembleFile(path)
}
