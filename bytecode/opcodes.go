// Package bytecode defines quark's instruction set: opcodes and their
// operand layout, a CodeStream for emitting code with back-patched branches,
// a decoder, a disassembler, an assembler for the disassembly syntax, and
// the CBOR file format for compiled programs.
//
// Code is a flat array of 16-bit words. Each instruction is an opcode word
// followed by a fixed number of operand words; send additionally carries one
// trailing word per argument. Operands that name a value refer to the offset
// of the instruction that produced it.
package bytecode

import "fmt"

// Word is one unit of code.
type Word uint16

// Opcode identifies an instruction. Zero is never a valid opcode so zeroed
// code fails to decode.
type Opcode Word

const (
	OpLiteral     Opcode = 1 // literal index
	OpGlobal      Opcode = 2 // literal index of the global's name
	OpSend        Opcode = 3 // name literal, receiver, argc, argc argument offsets
	OpIfFalse     Opcode = 4 // target
	OpGoto        Opcode = 5 // target
	OpIfTrueFalse Opcode = 6 // condition, then value, else value
	OpArgument    Opcode = 7 // argument index, 0 is self
	OpReturn      Opcode = 8 // value
)

// OpcodeInfo describes an opcode.
type OpcodeInfo struct {
	Name string
	// Operands is the fixed operand count. Send has Argc more after these.
	Operands int
	// Value reports whether the instruction produces a result.
	Value bool
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpLiteral:     {"literal", 1, true},
	OpGlobal:      {"global", 1, true},
	OpSend:        {"send", 3, true},
	OpIfFalse:     {"if-false", 1, false},
	OpGoto:        {"goto", 1, false},
	OpIfTrueFalse: {"if-true-false", 3, true},
	OpArgument:    {"argument", 1, true},
	OpReturn:      {"return", 1, false},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("unknown-%d", Word(op))}
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the mnemonic.
func (op Opcode) Name() string { return op.Info().Name }

// String implements the Stringer interface.
func (op Opcode) String() string { return op.Name() }

// OpcodeByName maps mnemonics back to opcodes.
func OpcodeByName(name string) (Opcode, bool) {
	for op, info := range opcodeTable {
		if info.Name == name {
			return op, true
		}
	}
	return 0, false
}

// Send operand positions, relative to the opcode word.
const (
	sendName     = 1
	sendReceiver = 2
	sendArgc     = 3
	sendArgs     = 4
)
