package bytecode

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is written into every encoded program.
const FormatVersion = 1

// ErrInvalidCode is wrapped by every verification failure.
var ErrInvalidCode = errors.New("invalid code")

// Unit is one compiled body: code plus the literals it refers to.
type Unit struct {
	Name     string    `cbor:"1,keyasint"`
	Argc     int       `cbor:"2,keyasint"`
	Code     Code      `cbor:"3,keyasint"`
	Literals []Literal `cbor:"4,keyasint"`
}

// LiteralTable returns the unit's literals as a table.
func (u *Unit) LiteralTable() LiteralTable { return Literals(u.Literals) }

// Verify decodes every instruction and checks that literal indices, value
// offsets and branch targets are in range. Value operands must refer to an
// earlier value-producing instruction.
func (u *Unit) Verify() error {
	ins, err := Instructions(u.Code)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", u.Name, ErrInvalidCode, err)
	}
	produces := make(map[int]bool, len(ins))
	starts := make(map[int]bool, len(ins))
	for _, in := range ins {
		starts[in.Offset] = true
	}

	fail := func(in Instruction, format string, args ...any) error {
		return fmt.Errorf("%s: %w: offset %d (%s): %s", u.Name, ErrInvalidCode, in.Offset, in.Op, fmt.Sprintf(format, args...))
	}
	checkValue := func(in Instruction, ref int) error {
		if !produces[ref] {
			return fail(in, "operand @%d is not an earlier value", ref)
		}
		return nil
	}

	for _, in := range ins {
		switch in.Op {
		case OpLiteral, OpGlobal:
			if in.Literal() >= len(u.Literals) {
				return fail(in, "literal %d out of range", in.Literal())
			}
			if in.Op == OpGlobal && u.Literals[in.Literal()].Kind != StringLiteral {
				return fail(in, "global name is not a string")
			}
		case OpSend:
			if in.SendName() >= len(u.Literals) || u.Literals[in.SendName()].Kind != StringLiteral {
				return fail(in, "selector name literal %d invalid", in.SendName())
			}
			if err := checkValue(in, in.Receiver()); err != nil {
				return err
			}
			for i := 0; i < in.Argc(); i++ {
				if err := checkValue(in, in.Arg(i)); err != nil {
					return err
				}
			}
		case OpIfFalse, OpGoto:
			if t := in.Target(); t != len(u.Code) && !starts[t] {
				return fail(in, "target %d is not an instruction boundary", t)
			}
		case OpIfTrueFalse:
			for i := 0; i < 3; i++ {
				if err := checkValue(in, in.Operand(i)); err != nil {
					return err
				}
			}
		case OpArgument:
			if in.Operand(0) > u.Argc {
				return fail(in, "argument %d beyond argc %d", in.Operand(0), u.Argc)
			}
		case OpReturn:
			if err := checkValue(in, in.Operand(0)); err != nil {
				return err
			}
		}
		if in.Op.Info().Value {
			produces[in.Offset] = true
		}
	}
	return nil
}

// SpeciesDef declares a user species.
type SpeciesDef struct {
	Name   string `cbor:"1,keyasint"`
	Parent string `cbor:"2,keyasint,omitempty"`
	Fields int    `cbor:"3,keyasint,omitempty"`
}

// MethodDef installs Body as the method Selector on Species. Signature
// names the species each argument must belong to; an empty entry accepts
// anything.
type MethodDef struct {
	Species   string   `cbor:"1,keyasint"`
	Selector  string   `cbor:"2,keyasint"`
	Signature []string `cbor:"3,keyasint,omitempty"`
	Body      Unit     `cbor:"4,keyasint"`
}

// Program is what the assembler produces and the runtime loads.
type Program struct {
	Version int          `cbor:"1,keyasint"`
	Species []SpeciesDef `cbor:"2,keyasint,omitempty"`
	Methods []MethodDef  `cbor:"3,keyasint,omitempty"`
	Entry   Unit         `cbor:"4,keyasint"`
}

// Verify checks every unit in the program.
func (p *Program) Verify() error {
	if p.Version != FormatVersion {
		return fmt.Errorf("bytecode: program version %d, want %d", p.Version, FormatVersion)
	}
	for i := range p.Methods {
		m := &p.Methods[i]
		if len(m.Signature) != 0 && len(m.Signature) != m.Body.Argc {
			return fmt.Errorf("bytecode: method %s>>%s: signature has %d entries for %d arguments",
				m.Species, m.Selector, len(m.Signature), m.Body.Argc)
		}
		if err := m.Body.Verify(); err != nil {
			return err
		}
	}
	return p.Entry.Verify()
}

// ---------------------------------------------------------------------------
// CBOR encoding
// ---------------------------------------------------------------------------

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalProgram serializes a program to CBOR bytes.
func MarshalProgram(p *Program) ([]byte, error) {
	return cborEncMode.Marshal(p)
}

// UnmarshalProgram deserializes and verifies a program.
func UnmarshalProgram(data []byte) (*Program, error) {
	var p Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return &p, nil
}

// WriteProgram encodes p to path.
func WriteProgram(path string, p *Program) error {
	data, err := MarshalProgram(p)
	if err != nil {
		return fmt.Errorf("bytecode: marshal program: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadProgram loads and verifies a program from path.
func ReadProgram(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return UnmarshalProgram(data)
}
