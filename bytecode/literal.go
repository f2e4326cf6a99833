package bytecode

import (
	"fmt"
	"strconv"
)

// LiteralKind is the type of a constant in the literal pool.
type LiteralKind uint8

const (
	IntLiteral LiteralKind = iota + 1
	StringLiteral
	NilLiteral
	TrueLiteral
	FalseLiteral
	// OpaqueLiteral stands for a heap value with no source form. Only
	// disassembly of loaded code produces it.
	OpaqueLiteral
)

// Literal is a constant referenced by index from code.
type Literal struct {
	Kind LiteralKind `cbor:"1,keyasint"`
	Int  int64       `cbor:"2,keyasint,omitempty"`
	Str  string      `cbor:"3,keyasint,omitempty"`
}

// Int returns an integer literal.
func Int(n int64) Literal { return Literal{Kind: IntLiteral, Int: n} }

// String returns a string literal.
func String(s string) Literal { return Literal{Kind: StringLiteral, Str: s} }

// Nil returns the nil literal.
func Nil() Literal { return Literal{Kind: NilLiteral} }

// Bool returns true or false.
func Bool(b bool) Literal {
	if b {
		return Literal{Kind: TrueLiteral}
	}
	return Literal{Kind: FalseLiteral}
}

// Source renders l the way the assembler reads it.
func (l Literal) Source() string {
	switch l.Kind {
	case IntLiteral:
		return strconv.FormatInt(l.Int, 10)
	case StringLiteral:
		return strconv.Quote(l.Str)
	case NilLiteral:
		return "nil"
	case TrueLiteral:
		return "true"
	case FalseLiteral:
		return "false"
	case OpaqueLiteral:
		return l.Str
	}
	return fmt.Sprintf("<literal kind %d>", l.Kind)
}

// Name returns the text of a string literal, as used by global and send.
func (l Literal) Name() string {
	if l.Kind == StringLiteral {
		return l.Str
	}
	return l.Source()
}

// LiteralTable resolves literal indices.
type LiteralTable interface {
	Len() int
	At(i int) Literal
}

// LiteralPool is an append-only literal table. Indices are never reused;
// string literals are interned so repeated names share one entry.
type LiteralPool struct {
	entries []Literal
	strings map[string]int
}

// Add appends l and returns its index.
func (p *LiteralPool) Add(l Literal) int {
	if l.Kind == StringLiteral {
		if i, ok := p.strings[l.Str]; ok {
			return i
		}
		if p.strings == nil {
			p.strings = make(map[string]int)
		}
		p.strings[l.Str] = len(p.entries)
	}
	p.entries = append(p.entries, l)
	return len(p.entries) - 1
}

// Len returns the number of literals.
func (p *LiteralPool) Len() int { return len(p.entries) }

// At returns literal i.
func (p *LiteralPool) At(i int) Literal { return p.entries[i] }

// Literals returns a copy of the pool contents.
func (p *LiteralPool) Literals() []Literal {
	return append([]Literal(nil), p.entries...)
}

// Literals is a plain slice used as a LiteralTable.
type Literals []Literal

// Len returns the number of literals.
func (ls Literals) Len() int { return len(ls) }

// At returns literal i.
func (ls Literals) At(i int) Literal { return ls[i] }
