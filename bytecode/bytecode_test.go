package bytecode

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Encoding and decoding
// ---------------------------------------------------------------------------

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op       Opcode
		name     string
		operands int
	}{
		{OpLiteral, "literal", 1},
		{OpGlobal, "global", 1},
		{OpSend, "send", 3},
		{OpIfFalse, "if-false", 1},
		{OpGoto, "goto", 1},
		{OpIfTrueFalse, "if-true-false", 3},
	}
	for _, tt := range tests {
		info := tt.op.Info()
		if info.Name != tt.name || info.Operands != tt.operands {
			t.Errorf("%d: got %+v", tt.op, info)
		}
		if op, ok := OpcodeByName(tt.name); !ok || op != tt.op {
			t.Errorf("OpcodeByName(%q) = %v, %v", tt.name, op, ok)
		}
	}
	if Opcode(0).Valid() {
		t.Error("zero must not be a valid opcode")
	}
}

func TestDisassembleSend(t *testing.T) {
	s := NewCodeStream()
	s.Add(OpLiteral, 0)
	s.Add(OpSend, 0, 0, 1, 1)
	s.Add(OpIfFalse, 10)

	got, err := Disassemble(s.Code(), Literals{String("foo")})
	if err != nil {
		t.Fatal(err)
	}
	// send occupies 1+3+argc words, so with one argument if-false lands at 7.
	want := "0: literal 0\n" +
		"2: send @0.foo(@1)\n" +
		"7: if-false @10\n"
	if got != want {
		t.Errorf("disassembly:\n%s\nwant:\n%s", got, want)
	}
}

func TestDecodeSizes(t *testing.T) {
	code := Code{
		Word(OpLiteral), 0,
		Word(OpSend), 0, 0, 2, 0, 0,
		Word(OpIfTrueFalse), 0, 2, 2,
		Word(OpGoto), 0,
	}
	ins, err := Instructions(code)
	if err != nil {
		t.Fatal(err)
	}
	wantOffsets := []int{0, 2, 8, 12}
	if len(ins) != len(wantOffsets) {
		t.Fatalf("decoded %d instructions", len(ins))
	}
	for i, in := range ins {
		if in.Offset != wantOffsets[i] {
			t.Errorf("instruction %d at %d, want %d", i, in.Offset, wantOffsets[i])
		}
	}
	if ins[1].Argc() != 2 || ins[1].Arg(1) != 0 {
		t.Errorf("send operands = %v", ins[1].Operands)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(Code{99}, 0); !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("unknown opcode: err = %v", err)
	}
	if _, err := Decode(Code{0}, 0); !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("zero word: err = %v", err)
	}
	if _, err := Decode(Code{Word(OpSend), 0, 0, 3, 0}, 0); !errors.Is(err, ErrTruncated) {
		t.Errorf("short send: err = %v", err)
	}
	if _, err := Decode(Code{Word(OpLiteral)}, 0); !errors.Is(err, ErrTruncated) {
		t.Errorf("short literal: err = %v", err)
	}

	// Disassembly keeps the lines it managed to decode.
	out, err := Disassemble(Code{Word(OpLiteral), 0, 42}, Literals{Int(1)})
	if !errors.Is(err, ErrUnknownOpcode) || out != "0: literal 0\n" {
		t.Errorf("partial disassembly = %q, %v", out, err)
	}
}

// ---------------------------------------------------------------------------
// CodeStream
// ---------------------------------------------------------------------------

func TestCodeStreamLabels(t *testing.T) {
	s := NewCodeStream()
	top := s.NewLabel()
	s.Mark(top)
	cond := s.Constant(Bool(true))
	exit := s.NewLabel()
	s.IfFalse(exit)
	s.Goto(top)
	s.Mark(exit)

	code := s.Code()
	if code[cond+3] != Word(exit.Target()) {
		t.Errorf("forward branch target = %d, want %d", code[cond+3], exit.Target())
	}
	if code[cond+5] != 0 {
		t.Errorf("backward branch target = %d, want 0", code[cond+5])
	}
	if _, err := s.Unit("loop", 0); err != nil {
		t.Fatal(err)
	}
}

func TestCodeStreamUnresolvedLabel(t *testing.T) {
	s := NewCodeStream()
	s.Constant(Nil())
	s.IfFalse(s.NewLabel())
	if _, err := s.Unit("dangling", 0); !errors.Is(err, ErrUnresolvedLabel) {
		t.Errorf("err = %v, want ErrUnresolvedLabel", err)
	}
}

func TestCodeStreamOperandOverflow(t *testing.T) {
	s := NewCodeStream()
	s.Literal(70000)
	if s.Err() == nil {
		t.Fatal("operand beyond a code word should be an error")
	}
	s.Constant(Int(1))
	if s.Cursor() != 2 {
		t.Errorf("emits after an error should be ignored, cursor = %d", s.Cursor())
	}
}

func TestCodeStreamInternsNames(t *testing.T) {
	s := NewCodeStream()
	g := s.Global("print")
	s.Send("print", g, g)
	if s.Literals().Len() != 1 {
		t.Errorf("literal count = %d, want the name shared", s.Literals().Len())
	}
}

func TestCodeStreamIf(t *testing.T) {
	s := NewCodeStream()
	cond := s.Constant(Bool(false))
	result := s.If(cond,
		func() int { return s.Constant(Int(1)) },
		func() int { return s.Constant(Int(2)) },
	)
	u, err := s.Unit("if", 0)
	if err != nil {
		t.Fatal(err)
	}
	text, _ := DisassembleUnit(u)
	want := "0: literal 0\n" +
		"2: if-false @8\n" +
		"4: literal 1\n" +
		"6: goto @10\n" +
		"8: literal 2\n" +
		"10: if-true-false @0 ? @4 : @8\n"
	if text != want {
		t.Errorf("got:\n%s\nwant:\n%s", text, want)
	}
	if result != 10 {
		t.Errorf("result offset = %d", result)
	}
}

func TestUnitVerify(t *testing.T) {
	tests := []struct {
		name string
		unit Unit
	}{
		{"literal out of range", Unit{Code: Code{Word(OpLiteral), 3}}},
		{"forward value", Unit{Code: Code{Word(OpReturn), 2, Word(OpLiteral), 0}, Literals: []Literal{Int(1)}}},
		{"mid-instruction target", Unit{Code: Code{Word(OpGoto), 1}}},
		{"argument beyond argc", Unit{Code: Code{Word(OpArgument), 2}, Argc: 1}},
		{"global not a string", Unit{Code: Code{Word(OpGlobal), 0}, Literals: []Literal{Int(1)}}},
	}
	for _, tt := range tests {
		if err := tt.unit.Verify(); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("%s: err = %v, want ErrInvalidCode", tt.name, err)
		}
	}
}

func TestProgramEncoding(t *testing.T) {
	p, err := Assemble(`
		n: literal 20
		   send n.+(n)
	`)
	if err != nil {
		t.Fatal(err)
	}
	data, err := MarshalProgram(p)
	if err != nil {
		t.Fatal(err)
	}
	back, err := UnmarshalProgram(data)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := DisassembleUnit(&p.Entry)
	b, _ := DisassembleUnit(&back.Entry)
	if a != b {
		t.Errorf("decoded program differs:\n%s\nvs\n%s", a, b)
	}
	if _, err := UnmarshalProgram([]byte{0xff}); err == nil {
		t.Error("garbage should not decode")
	}
}

func TestColorDisassembly(t *testing.T) {
	d := &Disassembler{Literals: Literals{String("foo")}, Color: true}
	var sb strings.Builder
	if err := d.Fprint(&sb, Code{Word(OpGlobal), 0}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), "\x1b[") || !strings.Contains(sb.String(), "foo") {
		t.Errorf("colored output = %q", sb.String())
	}
}
