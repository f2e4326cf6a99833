package bytecode

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Disassembler renders code one instruction per line as
// "<offset>: <mnemonic> <operands>". Value operands print as @offset;
// literal names used by global and send are resolved through Literals.
type Disassembler struct {
	Literals LiteralTable
	// Color highlights mnemonics, offsets and names with ANSI escapes.
	Color bool
}

var (
	offsetColor   = []color.Attribute{color.Faint}
	mnemonicColor = []color.Attribute{color.FgCyan, color.Bold}
	nameColor     = []color.Attribute{color.FgGreen}
)

func (d *Disassembler) paint(attrs []color.Attribute, s string) string {
	if !d.Color {
		return s
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(s)
}

func (d *Disassembler) name(index int) string {
	if d.Literals == nil || index >= d.Literals.Len() {
		return fmt.Sprintf("#%d", index)
	}
	return d.paint(nameColor, d.Literals.At(index).Name())
}

// Instruction renders a single decoded instruction without a newline.
func (d *Disassembler) Instruction(in Instruction) string {
	var sb strings.Builder
	sb.WriteString(d.paint(offsetColor, fmt.Sprintf("%d:", in.Offset)))
	sb.WriteByte(' ')
	sb.WriteString(d.paint(mnemonicColor, in.Op.Name()))

	switch in.Op {
	case OpLiteral, OpArgument:
		fmt.Fprintf(&sb, " %d", in.Operand(0))
	case OpGlobal:
		name := in.Literal()
		if d.Literals != nil && name < d.Literals.Len() {
			fmt.Fprintf(&sb, " %s", d.paint(nameColor, fmt.Sprintf("%q", d.Literals.At(name).Name())))
		} else {
			fmt.Fprintf(&sb, " #%d", name)
		}
	case OpSend:
		fmt.Fprintf(&sb, " @%d.%s(", in.Receiver(), d.name(in.SendName()))
		for i := 0; i < in.Argc(); i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "@%d", in.Arg(i))
		}
		sb.WriteByte(')')
	case OpIfFalse, OpGoto, OpReturn:
		fmt.Fprintf(&sb, " @%d", in.Operand(0))
	case OpIfTrueFalse:
		fmt.Fprintf(&sb, " @%d ? @%d : @%d", in.Operand(0), in.Operand(1), in.Operand(2))
	}
	return sb.String()
}

// Fprint writes the disassembly of src to w. Decoding stops at the first
// bad instruction and its error is returned after the lines already
// written.
func (d *Disassembler) Fprint(w io.Writer, src CodeSource) error {
	r := NewReader(src)
	for r.HasMore() {
		in, err := r.Next()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, d.Instruction(in)); err != nil {
			return err
		}
	}
	return nil
}

// Disassemble returns the plain disassembly of src.
func Disassemble(src CodeSource, literals LiteralTable) (string, error) {
	var sb strings.Builder
	d := &Disassembler{Literals: literals}
	err := d.Fprint(&sb, src)
	return sb.String(), err
}

// DisassembleUnit returns the plain disassembly of a unit.
func DisassembleUnit(u *Unit) (string, error) {
	return Disassemble(u.Code, u.LiteralTable())
}
