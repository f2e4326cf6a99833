package bytecode

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownOpcode is returned when decoding meets a word that is not an
	// opcode at an instruction boundary.
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrTruncated is returned when an instruction runs past the end of code.
	ErrTruncated = errors.New("truncated instruction")
)

// CodeSource is random access to code words. Code implements it over a
// slice; the runtime implements it over heap blobs.
type CodeSource interface {
	Len() int
	At(i int) Word
}

// Code is a plain slice of code words.
type Code []Word

// Len returns the number of words.
func (c Code) Len() int { return len(c) }

// At returns word i.
func (c Code) At(i int) Word { return c[i] }

// Instruction is one decoded instruction.
type Instruction struct {
	Offset   int
	Op       Opcode
	Operands []Word
}

// Size returns the number of words the instruction occupies.
func (in Instruction) Size() int { return 1 + len(in.Operands) }

// Next returns the offset of the following instruction.
func (in Instruction) Next() int { return in.Offset + in.Size() }

// Operand returns operand i as an int.
func (in Instruction) Operand(i int) int { return int(in.Operands[i]) }

// Literal returns the literal index of literal and global.
func (in Instruction) Literal() int { return in.Operand(0) }

// Target returns the branch target of if-false and goto.
func (in Instruction) Target() int { return in.Operand(0) }

// SendName returns the literal index of a send's selector name.
func (in Instruction) SendName() int { return in.Operand(sendName - 1) }

// Receiver returns the offset producing a send's receiver.
func (in Instruction) Receiver() int { return in.Operand(sendReceiver - 1) }

// Argc returns a send's argument count.
func (in Instruction) Argc() int { return in.Operand(sendArgc - 1) }

// Arg returns the offset producing a send's i-th argument.
func (in Instruction) Arg(i int) int { return in.Operand(sendArgs - 1 + i) }

// Decode reads the instruction at offset.
func Decode(src CodeSource, offset int) (Instruction, error) {
	n := src.Len()
	if offset < 0 || offset >= n {
		return Instruction{}, fmt.Errorf("offset %d: %w", offset, ErrTruncated)
	}
	op := Opcode(src.At(offset))
	info, ok := opcodeTable[op]
	if !ok {
		return Instruction{}, fmt.Errorf("offset %d: %w %d", offset, ErrUnknownOpcode, Word(op))
	}
	size := 1 + info.Operands
	if op == OpSend {
		if offset+sendArgc >= n {
			return Instruction{}, fmt.Errorf("offset %d: send: %w", offset, ErrTruncated)
		}
		size += int(src.At(offset + sendArgc))
	}
	if offset+size > n {
		return Instruction{}, fmt.Errorf("offset %d: %s: %w", offset, info.Name, ErrTruncated)
	}

	in := Instruction{Offset: offset, Op: op}
	if code, ok := src.(Code); ok {
		in.Operands = code[offset+1 : offset+size : offset+size]
		return in, nil
	}
	in.Operands = make([]Word, size-1)
	for i := range in.Operands {
		in.Operands[i] = src.At(offset + 1 + i)
	}
	return in, nil
}

// Reader walks code one instruction at a time.
type Reader struct {
	src CodeSource
	pos int
}

// NewReader creates a reader positioned at offset 0.
func NewReader(src CodeSource) *Reader {
	return &Reader{src: src}
}

// HasMore reports whether instructions remain.
func (r *Reader) HasMore() bool { return r.pos < r.src.Len() }

// Position returns the offset of the next instruction.
func (r *Reader) Position() int { return r.pos }

// Next decodes the instruction at the current position and advances past it.
func (r *Reader) Next() (Instruction, error) {
	in, err := Decode(r.src, r.pos)
	if err != nil {
		return in, err
	}
	r.pos = in.Next()
	return in, nil
}

// Instructions decodes all of src.
func Instructions(src CodeSource) ([]Instruction, error) {
	var out []Instruction
	r := NewReader(src)
	for r.HasMore() {
		in, err := r.Next()
		if err != nil {
			return out, err
		}
		out = append(out, in)
	}
	return out, nil
}
