package bytecode

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// AsmError reports a problem at a source line.
type AsmError struct {
	Line int
	Msg  string
}

// Error implements the error interface.
func (e *AsmError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Assemble reads quark assembly and produces a verified program.
//
// The instruction syntax matches the disassembler, except that value
// operands and branch targets may name a label instead of an @offset, and
// literal takes the constant itself:
//
//	; comments run to the end of the line
//	.species Point Object 2          ; name, parent, field count
//	.method SmallInteger double 0    ; species, selector, argc, [param species | _]...
//	self:   argument 0
//	        send self.+(self)
//	.entry
//	n:      literal 21
//	        send n.double()
//
// Instructions before any directive belong to the entry unit.
func Assemble(src string) (*Program, error) {
	a := &assembler{prog: &Program{Version: FormatVersion}}
	a.startEntry()

	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		a.line++
		toks, err := lex(sc.Text())
		if err != nil {
			return nil, a.errorf("%v", err)
		}
		if len(toks) == 0 {
			continue
		}
		if err := a.statement(toks); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := a.finish(); err != nil {
		return nil, err
	}
	if err := a.prog.Verify(); err != nil {
		return nil, err
	}
	return a.prog, nil
}

// AssembleFile assembles the file at path.
func AssembleFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	p, err := Assemble(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

type unitBuilder struct {
	s        *CodeStream
	name     string
	argc     int
	labels   map[string]*Label
	values   map[string]int
	method   int // index into Program.Methods, -1 for the entry
	finished bool
}

type assembler struct {
	prog  *Program
	units []*unitBuilder
	cur   *unitBuilder
	entry *unitBuilder
	line  int
}

func (a *assembler) errorf(format string, args ...any) error {
	return &AsmError{Line: a.line, Msg: fmt.Sprintf(format, args...)}
}

func (a *assembler) begin(name string, argc, method int) *unitBuilder {
	u := &unitBuilder{
		s:      NewCodeStream(),
		name:   name,
		argc:   argc,
		labels: map[string]*Label{},
		values: map[string]int{},
		method: method,
	}
	a.units = append(a.units, u)
	a.cur = u
	return u
}

func (a *assembler) startEntry() {
	a.entry = a.begin("main", 0, -1)
}

func (a *assembler) finish() error {
	for _, u := range a.units {
		unit, err := u.s.Unit(u.name, u.argc)
		if err != nil {
			return fmt.Errorf("unit %s: %w", u.name, err)
		}
		if u.method < 0 {
			a.prog.Entry = *unit
		} else {
			a.prog.Methods[u.method].Body = *unit
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (a *assembler) statement(toks []token) error {
	if toks[0].is(".") {
		return a.directive(toks[1:])
	}
	if len(toks) >= 2 && toks[0].kind == tokIdent && toks[1].is(":") {
		if err := a.label(toks[0].text); err != nil {
			return err
		}
		toks = toks[2:]
		if len(toks) == 0 {
			return nil
		}
	}
	return a.instruction(toks)
}

func (a *assembler) label(name string) error {
	u := a.cur
	if _, dup := u.values[name]; dup {
		return a.errorf("label %q defined twice", name)
	}
	u.values[name] = u.s.Cursor()
	l, ok := u.labels[name]
	if !ok {
		l = u.s.NewLabel()
		u.labels[name] = l
	}
	u.s.Mark(l)
	return nil
}

func (a *assembler) directive(toks []token) error {
	if len(toks) == 0 || toks[0].kind != tokIdent {
		return a.errorf("expected directive name")
	}
	args := toks[1:]
	switch toks[0].text {
	case "entry":
		a.cur = a.entry
		return nil

	case "species":
		if len(args) < 1 || len(args) > 3 {
			return a.errorf(".species takes a name, a parent and a field count")
		}
		def := SpeciesDef{Name: args[0].text, Parent: "Object"}
		if len(args) >= 2 {
			def.Parent = args[1].text
		}
		if len(args) == 3 {
			n, err := strconv.Atoi(args[2].text)
			if err != nil || n < 0 {
				return a.errorf("bad field count %q", args[2].text)
			}
			def.Fields = n
		}
		a.prog.Species = append(a.prog.Species, def)
		return nil

	case "method":
		if len(args) < 3 {
			return a.errorf(".method takes a species, a selector and an argument count")
		}
		argc, err := strconv.Atoi(args[2].text)
		if err != nil || argc < 0 {
			return a.errorf("bad argument count %q", args[2].text)
		}
		def := MethodDef{Species: args[0].text, Selector: args[1].text}
		if sig := args[3:]; len(sig) > 0 {
			if len(sig) != argc {
				return a.errorf("signature has %d entries for %d arguments", len(sig), argc)
			}
			for _, t := range sig {
				name := t.text
				if name == "_" {
					name = ""
				}
				def.Signature = append(def.Signature, name)
			}
		}
		a.prog.Methods = append(a.prog.Methods, def)
		a.begin(def.Species+">>"+def.Selector, argc, len(a.prog.Methods)-1)
		return nil
	}
	return a.errorf("unknown directive .%s", toks[0].text)
}

func (a *assembler) instruction(toks []token) error {
	if toks[0].kind != tokIdent {
		return a.errorf("expected mnemonic, got %q", toks[0].text)
	}
	op, ok := OpcodeByName(toks[0].text)
	if !ok {
		return a.errorf("unknown mnemonic %q", toks[0].text)
	}
	p := &parser{a: a, toks: toks[1:]}
	s := a.cur.s

	switch op {
	case OpLiteral:
		lit, err := p.literal()
		if err != nil {
			return err
		}
		s.Constant(lit)
	case OpGlobal:
		name, err := p.name()
		if err != nil {
			return err
		}
		s.Global(name)
	case OpSend:
		recv, err := p.value()
		if err != nil {
			return err
		}
		if err := p.expect("."); err != nil {
			return err
		}
		sel, err := p.name()
		if err != nil {
			return err
		}
		if err := p.expect("("); err != nil {
			return err
		}
		var args []int
		for !p.peek(")") {
			if len(args) > 0 {
				if err := p.expect(","); err != nil {
					return err
				}
			}
			v, err := p.value()
			if err != nil {
				return err
			}
			args = append(args, v)
		}
		if err := p.expect(")"); err != nil {
			return err
		}
		s.Send(sel, recv, args...)
	case OpIfFalse, OpGoto:
		if err := p.branch(op); err != nil {
			return err
		}
	case OpIfTrueFalse:
		vals := make([]int, 3)
		for i, sep := range []string{"?", ":", ""} {
			v, err := p.value()
			if err != nil {
				return err
			}
			vals[i] = v
			if sep != "" {
				if err := p.expect(sep); err != nil {
					return err
				}
			}
		}
		s.IfTrueFalse(vals[0], vals[1], vals[2])
	case OpArgument:
		n, err := p.int()
		if err != nil {
			return err
		}
		s.Argument(n)
	case OpReturn:
		v, err := p.value()
		if err != nil {
			return err
		}
		s.Return(v)
	}
	if len(p.toks) > 0 {
		return a.errorf("unexpected %q after %s", p.toks[0].text, op)
	}
	return s.Err()
}

// ---------------------------------------------------------------------------
// Operand parsing
// ---------------------------------------------------------------------------

type parser struct {
	a    *assembler
	toks []token
}

func (p *parser) next() (token, error) {
	if len(p.toks) == 0 {
		return token{}, p.a.errorf("unexpected end of line")
	}
	t := p.toks[0]
	p.toks = p.toks[1:]
	return t, nil
}

func (p *parser) peek(punct string) bool {
	return len(p.toks) > 0 && p.toks[0].is(punct)
}

func (p *parser) expect(punct string) error {
	t, err := p.next()
	if err != nil {
		return err
	}
	if !t.is(punct) {
		return p.a.errorf("expected %q, got %q", punct, t.text)
	}
	return nil
}

func (p *parser) int() (int, error) {
	t, err := p.next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(t.text)
	if err != nil || t.kind != tokIdent {
		return 0, p.a.errorf("expected integer, got %q", t.text)
	}
	return n, nil
}

// name reads a selector or global name, bare or quoted.
func (p *parser) name() (string, error) {
	t, err := p.next()
	if err != nil {
		return "", err
	}
	if t.kind != tokIdent && t.kind != tokString {
		return "", p.a.errorf("expected name, got %q", t.text)
	}
	return t.text, nil
}

// value reads a reference to an earlier result: @offset or a label.
func (p *parser) value() (int, error) {
	t, err := p.next()
	if err != nil {
		return 0, err
	}
	switch t.kind {
	case tokRef:
		return t.ref, nil
	case tokIdent:
		if off, ok := p.a.cur.values[t.text]; ok {
			return off, nil
		}
		return 0, p.a.errorf("undefined value label %q", t.text)
	}
	return 0, p.a.errorf("expected value reference, got %q", t.text)
}

func (p *parser) branch(op Opcode) error {
	t, err := p.next()
	if err != nil {
		return err
	}
	u := p.a.cur
	switch t.kind {
	case tokRef:
		u.s.Add(op, t.ref)
	case tokIdent:
		l, ok := u.labels[t.text]
		if !ok {
			l = u.s.NewLabel()
			u.labels[t.text] = l
		}
		u.s.branch(op, l)
	default:
		return p.a.errorf("expected branch target, got %q", t.text)
	}
	return nil
}

func (p *parser) literal() (Literal, error) {
	t, err := p.next()
	if err != nil {
		return Literal{}, err
	}
	if t.kind == tokString {
		return String(t.text), nil
	}
	switch t.text {
	case "nil":
		return Nil(), nil
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	n, err := strconv.ParseInt(t.text, 10, 64)
	if err != nil {
		return Literal{}, p.a.errorf("bad literal %q", t.text)
	}
	return Int(n), nil
}

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

type tokKind int

const (
	tokIdent tokKind = iota
	tokString
	tokRef
	tokPunct
)

type token struct {
	kind tokKind
	text string
	ref  int
}

func (t token) is(punct string) bool { return t.kind == tokPunct && t.text == punct }

const operatorChars = "+-*/<>=~!%&|"

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || strings.ContainsRune(operatorChars, r)
}

func lex(line string) ([]token, error) {
	var toks []token
	rs := []rune(line)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case r == ';':
			return toks, nil
		case unicode.IsSpace(r):
			i++
		case r == '"':
			j := i + 1
			for ; j < len(rs) && rs[j] != '"'; j++ {
				if rs[j] == '\\' {
					j++
				}
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("unterminated string")
			}
			s, err := strconv.Unquote(string(rs[i : j+1]))
			if err != nil {
				return nil, fmt.Errorf("bad string %s: %v", string(rs[i:j+1]), err)
			}
			toks = append(toks, token{kind: tokString, text: s})
			i = j + 1
		case r == '@':
			j := i + 1
			for j < len(rs) && unicode.IsDigit(rs[j]) {
				j++
			}
			n, err := strconv.Atoi(string(rs[i+1 : j]))
			if err != nil {
				return nil, fmt.Errorf("bad reference %q", string(rs[i:j]))
			}
			toks = append(toks, token{kind: tokRef, text: string(rs[i:j]), ref: n})
			i = j
		case strings.ContainsRune(".(),?:", r):
			toks = append(toks, token{kind: tokPunct, text: string(r)})
			i++
		case isIdentRune(r):
			j := i
			for j < len(rs) && isIdentRune(rs[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[i:j])})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", r)
		}
	}
	return toks, nil
}
