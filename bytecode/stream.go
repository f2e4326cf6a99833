package bytecode

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
)

// ErrUnresolvedLabel is returned when code is finished with a branch whose
// label was never marked.
var ErrUnresolvedLabel = errors.New("unresolved label")

// CodeStream accumulates code and literals. Every emit method returns the
// offset of the instruction it wrote, which later instructions use to refer
// to its result.
//
// Errors are sticky: the first operand that does not fit a code word is
// recorded, later emits are ignored, and Err or Unit report it.
type CodeStream struct {
	code     []Word
	literals LiteralPool
	labels   []*Label
	err      error
}

// NewCodeStream creates an empty stream.
func NewCodeStream() *CodeStream {
	return &CodeStream{code: make([]Word, 0, 64)}
}

// Cursor returns the offset the next instruction will be written at.
func (s *CodeStream) Cursor() int { return len(s.code) }

// Err returns the first error encountered.
func (s *CodeStream) Err() error { return s.err }

// Code returns the code written so far.
func (s *CodeStream) Code() Code { return s.code }

// Literals returns the literal pool.
func (s *CodeStream) Literals() *LiteralPool { return &s.literals }

func (s *CodeStream) word(n int) Word {
	w, err := safecast.Conv[Word](n)
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("bytecode: operand %d at offset %d: %w", n, len(s.code), err)
	}
	return w
}

// Patch is a handle on an emitted instruction whose operands may be
// rewritten later.
type Patch struct {
	s      *CodeStream
	Offset int
}

// Set rewrites operand i of the instruction.
func (p Patch) Set(i, v int) {
	p.s.code[p.Offset+1+i] = p.s.word(v)
}

// Add appends op with the given operands. It does not check the operand
// count; the typed emitters below do.
func (s *CodeStream) Add(op Opcode, operands ...int) Patch {
	at := len(s.code)
	if s.err != nil {
		return Patch{s: s, Offset: at}
	}
	s.code = append(s.code, Word(op))
	for _, o := range operands {
		s.code = append(s.code, s.word(o))
	}
	return Patch{s: s, Offset: at}
}

// AddLiteral registers a constant and returns its index.
func (s *CodeStream) AddLiteral(l Literal) int {
	return s.literals.Add(l)
}

// Literal emits a load of literal index.
func (s *CodeStream) Literal(index int) int {
	return s.Add(OpLiteral, index).Offset
}

// Constant registers l and emits a load of it.
func (s *CodeStream) Constant(l Literal) int {
	return s.Literal(s.AddLiteral(l))
}

// Global emits a load of the global called name.
func (s *CodeStream) Global(name string) int {
	return s.Add(OpGlobal, s.AddLiteral(String(name))).Offset
}

// Send emits a message send of name to the value produced at recv, with
// arguments produced at args.
func (s *CodeStream) Send(name string, recv int, args ...int) int {
	operands := make([]int, 0, 3+len(args))
	operands = append(operands, s.AddLiteral(String(name)), recv, len(args))
	operands = append(operands, args...)
	return s.Add(OpSend, operands...).Offset
}

// IfFalse emits a branch to l taken when the last result is false or nil.
func (s *CodeStream) IfFalse(l *Label) int {
	return s.branch(OpIfFalse, l)
}

// Goto emits an unconditional branch to l.
func (s *CodeStream) Goto(l *Label) int {
	return s.branch(OpGoto, l)
}

// IfTrueFalse emits a select between the values produced at then and els,
// depending on the value produced at cond.
func (s *CodeStream) IfTrueFalse(cond, then, els int) int {
	return s.Add(OpIfTrueFalse, cond, then, els).Offset
}

// Argument emits a load of argument i (0 is self).
func (s *CodeStream) Argument(i int) int {
	return s.Add(OpArgument, i).Offset
}

// Return emits a return of the value produced at v.
func (s *CodeStream) Return(v int) int {
	return s.Add(OpReturn, v).Offset
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// Label is a branch target, possibly not yet known.
type Label struct {
	resolved bool
	target   int
	refs     []int // code positions of operands waiting for the target
}

// NewLabel creates an unresolved label.
func (s *CodeStream) NewLabel() *Label {
	l := &Label{refs: make([]int, 0, 2)}
	s.labels = append(s.labels, l)
	return l
}

// Resolved reports whether the label has been marked.
func (l *Label) Resolved() bool { return l.resolved }

// Target returns the marked offset.
func (l *Label) Target() int { return l.target }

// Mark resolves l to the current cursor and patches every branch to it.
func (s *CodeStream) Mark(l *Label) {
	if l.resolved {
		panic("bytecode: label already resolved")
	}
	l.resolved = true
	l.target = len(s.code)
	for _, ref := range l.refs {
		s.code[ref] = s.word(l.target)
	}
	l.refs = nil
}

func (s *CodeStream) branch(op Opcode, l *Label) int {
	if l.resolved {
		return s.Add(op, l.target).Offset
	}
	p := s.Add(op, 0)
	if s.err == nil {
		l.refs = append(l.refs, p.Offset+1)
	}
	return p.Offset
}

// If emits a conditional expression. cond emits the condition; then and els
// each emit one branch and return the offset of its value. The result is an
// if-true-false selecting the branch value, and its offset is returned.
//
//	cond
//	if-false @else
//	then...
//	goto @join
//	else: els...
//	join: if-true-false @cond ? @then : @else
func (s *CodeStream) If(cond int, then, els func() int) int {
	elseLabel, join := s.NewLabel(), s.NewLabel()
	s.IfFalse(elseLabel)
	thenValue := then()
	s.Goto(join)
	s.Mark(elseLabel)
	elseValue := els()
	s.Mark(join)
	return s.IfTrueFalse(cond, thenValue, elseValue)
}

// Unit finishes the stream as a compiled unit.
func (s *CodeStream) Unit(name string, argc int) (*Unit, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, l := range s.labels {
		if !l.resolved && len(l.refs) > 0 {
			return nil, fmt.Errorf("bytecode: %s: %w", name, ErrUnresolvedLabel)
		}
	}
	u := &Unit{
		Name:     name,
		Argc:     argc,
		Code:     append(Code(nil), s.code...),
		Literals: s.literals.Literals(),
	}
	if err := u.Verify(); err != nil {
		return nil, err
	}
	return u, nil
}
