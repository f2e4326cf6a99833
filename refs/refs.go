// Package refs gives native code handles to heap values that stay valid
// across collections. A handle is a cell the collector knows about: the
// collector rewrites the cell when the object moves, and the holder always
// reads the current location through it.
//
// Scoped handles belong to the innermost open Scope and die with it.
// Persistent handles live until they are disposed.
package refs

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/quark/value"
)

var log = commonlog.GetLogger("quark.refs")

// BlockSize is the number of cells in one scoped block.
const BlockSize = 256

type block [BlockSize]value.Value

// Manager owns the scoped block stack and the persistent slab of one
// runtime. It is a heap root source.
type Manager struct {
	blocks []*block // blocks in use, innermost last
	spare  *block
	next   int // next free cell in the last block
	depth  int // open scopes

	persistent []*persistentCell
}

// NewManager returns a manager with no open scope.
func NewManager() *Manager {
	return &Manager{next: BlockSize}
}

// Ref is a scoped handle.
type Ref struct {
	cell *value.Value
}

// Value returns the current value behind the handle.
func (r Ref) Value() value.Value { return *r.cell }

// Set replaces the value behind the handle.
func (r Ref) Set(v value.Value) { *r.cell = v }

// IsZero reports whether r was never initialised.
func (r Ref) IsZero() bool { return r.cell == nil }

// NewRef places v in a fresh cell of the innermost scope.
func (m *Manager) NewRef(v value.Value) Ref {
	if m.depth == 0 {
		panic("refs: NewRef outside of any scope")
	}
	if m.next == BlockSize {
		m.pushBlock()
	}
	b := m.blocks[len(m.blocks)-1]
	cell := &b[m.next]
	m.next++
	*cell = v
	return Ref{cell: cell}
}

func (m *Manager) pushBlock() {
	b := m.spare
	m.spare = nil
	if b == nil {
		b = new(block)
	}
	m.blocks = append(m.blocks, b)
	m.next = 0
}

// Scope delimits the lifetime of scoped handles. Scopes nest and must be
// closed in reverse order of creation.
type Scope struct {
	m          *Manager
	depth      int
	savedCount int
	savedNext  int
	closed     bool
}

// NewScope opens a scope. Handles created until it closes belong to it.
//
//	s := m.NewScope()
//	defer s.Close()
func (m *Manager) NewScope() *Scope {
	m.depth++
	return &Scope{
		m:          m,
		depth:      m.depth,
		savedCount: len(m.blocks),
		savedNext:  m.next,
	}
}

// Close releases every handle created in the scope. The newest block freed
// is kept as a spare for the next scope.
func (s *Scope) Close() {
	if s.closed {
		return
	}
	m := s.m
	if m.depth != s.depth {
		panic(fmt.Sprintf("refs: closing scope %d while scope %d is innermost", s.depth, m.depth))
	}
	s.closed = true
	m.depth--

	for len(m.blocks) > s.savedCount {
		last := len(m.blocks) - 1
		b := m.blocks[last]
		m.blocks[last] = nil
		m.blocks = m.blocks[:last]
		clearBlock(b, 0)
		if m.spare == nil {
			m.spare = b
		}
	}
	if len(m.blocks) > 0 {
		clearBlock(m.blocks[len(m.blocks)-1], s.savedNext)
	}
	m.next = s.savedNext
}

// Escape closes the scope and returns a handle to r's value in the
// enclosing scope. It is how a function hands its result back after
// releasing its temporaries.
//
//	s := m.NewScope()
//	defer s.Close()
//	...
//	return s.Escape(result)
func (s *Scope) Escape(r Ref) Ref {
	v := r.Value()
	s.Close()
	return s.m.NewRef(v)
}

func clearBlock(b *block, from int) {
	for i := from; i < BlockSize; i++ {
		b[i] = 0
	}
}

// Depth returns the number of open scopes.
func (m *Manager) Depth() int { return m.depth }

// BlockCount returns the number of blocks in use.
func (m *Manager) BlockCount() int { return len(m.blocks) }

// ScopedCount returns the number of live scoped handles.
func (m *Manager) ScopedCount() int {
	if len(m.blocks) == 0 {
		return 0
	}
	return (len(m.blocks)-1)*BlockSize + m.next
}

// ---------------------------------------------------------------------------
// Persistent handles
// ---------------------------------------------------------------------------

type persistentCell struct {
	value    value.Value
	index    int
	disposed bool
}

// Persistent is a handle that outlives scopes. Dispose it when done.
type Persistent struct {
	m    *Manager
	cell *persistentCell
}

// NewPersistent creates a persistent handle holding v.
func (m *Manager) NewPersistent(v value.Value) *Persistent {
	c := &persistentCell{value: v, index: len(m.persistent)}
	m.persistent = append(m.persistent, c)
	return &Persistent{m: m, cell: c}
}

// Value returns the current value behind the handle.
func (p *Persistent) Value() value.Value {
	if value.DebugChecks && p.cell.disposed {
		panic("refs: use of disposed persistent handle")
	}
	return p.cell.value
}

// Set replaces the value behind the handle.
func (p *Persistent) Set(v value.Value) {
	if value.DebugChecks && p.cell.disposed {
		panic("refs: use of disposed persistent handle")
	}
	p.cell.value = v
}

// Disposed reports whether Dispose has been called.
func (p *Persistent) Disposed() bool { return p.cell.disposed }

// Dispose removes the handle. The last cell moves into its slot so the slab
// stays dense.
func (p *Persistent) Dispose() {
	c := p.cell
	if c.disposed {
		return
	}
	m := p.m
	last := len(m.persistent) - 1
	moved := m.persistent[last]
	m.persistent[c.index] = moved
	moved.index = c.index
	m.persistent[last] = nil
	m.persistent = m.persistent[:last]
	c.disposed = true
	c.value = 0
}

// PersistentCount returns the number of live persistent handles.
func (m *Manager) PersistentCount() int { return len(m.persistent) }

// DisposeAll disposes every persistent handle.
func (m *Manager) DisposeAll() {
	if n := len(m.persistent); n > 0 {
		log.Debugf("disposing %d persistent handles", n)
	}
	for _, c := range m.persistent {
		c.disposed = true
		c.value = 0
	}
	m.persistent = nil
}

// ---------------------------------------------------------------------------
// Root enumeration
// ---------------------------------------------------------------------------

// VisitRoots visits every live scoped cell and every persistent cell.
func (m *Manager) VisitRoots(visit func(*value.Value)) {
	for i, b := range m.blocks {
		n := BlockSize
		if i == len(m.blocks)-1 {
			n = m.next
		}
		for j := 0; j < n; j++ {
			visit(&b[j])
		}
	}
	for _, c := range m.persistent {
		visit(&c.value)
	}
}
