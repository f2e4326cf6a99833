// Package interp runs quark bytecode. Frames live on an explicit value stack
// that the collector scans as a root, so any value the interpreter holds
// survives and follows objects that move.
package interp

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/quark/bytecode"
	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/value"
)

var log = commonlog.GetLogger("quark.interp")

// Globals resolves global names.
type Globals interface {
	Global(name string) (value.Value, bool)
}

// Config sizes the interpreter.
type Config struct {
	// StackSize is the initial value stack length in words. The stack grows
	// on demand.
	StackSize int
	// MaxFrames bounds call depth.
	MaxFrames int
}

// DefaultConfig returns the sizing used when no configuration is given.
func DefaultConfig() Config {
	return Config{StackSize: 1024, MaxFrames: 10000}
}

// NativeCall is what a native method receives. Self and Args are raw
// values: a native that allocates must protect them in handles first.
type NativeCall struct {
	Interp   *Interpreter
	Selector string
	Self     value.Value
	Args     []value.Value
}

// NativeFunc implements a method in Go.
type NativeFunc func(c *NativeCall) (value.Value, error)

type native struct {
	name string
	fn   NativeFunc
}

// Frame layout, relative to the frame pointer. Result slots, one per code
// word, follow the arguments.
const (
	frameSavedPC = iota
	frameSavedFP
	frameClosure
	frameLast
	frameSelf
	frameHeader
)

// Interpreter executes lambdas against one heap. It is not safe for
// concurrent use.
type Interpreter struct {
	heap    *heap.Heap
	globals Globals
	config  Config
	natives []native

	stack []value.Value
	sp    int
	fp    int
	depth int

	// Decoded code keyed by blob address. Entries go stale when a
	// collection moves the blobs; see run.code.
	codeCache map[value.Value]bytecode.Code

	removeRoots func()
	sends       uint64
}

// New creates an interpreter and registers its stack as a heap root.
func New(h *heap.Heap, globals Globals, config Config) *Interpreter {
	if config.StackSize <= 0 {
		config.StackSize = DefaultConfig().StackSize
	}
	if config.MaxFrames <= 0 {
		config.MaxFrames = DefaultConfig().MaxFrames
	}
	it := &Interpreter{
		heap:      h,
		globals:   globals,
		config:    config,
		stack:     make([]value.Value, config.StackSize),
		fp:        -1,
		codeCache: make(map[value.Value]bytecode.Code),
	}
	it.removeRoots = h.Memory().AddRootSource(it)
	return it
}

// Close unregisters the interpreter's roots.
func (it *Interpreter) Close() {
	if it.removeRoots != nil {
		it.removeRoots()
		it.removeRoots = nil
	}
}

// Heap returns the heap the interpreter runs against.
func (it *Interpreter) Heap() *heap.Heap { return it.heap }

// Sends returns the number of sends dispatched so far.
func (it *Interpreter) Sends() uint64 { return it.sends }

// Depth returns the number of active frames.
func (it *Interpreter) Depth() int { return it.depth }

// VisitRoots visits every live stack slot.
func (it *Interpreter) VisitRoots(visit func(*value.Value)) {
	for i := 0; i < it.sp; i++ {
		visit(&it.stack[i])
	}
}

// RegisterNative adds a native and returns the id a method body uses to
// name it.
func (it *Interpreter) RegisterNative(name string, fn NativeFunc) int {
	it.natives = append(it.natives, native{name: name, fn: fn})
	return len(it.natives) - 1
}

// NativeName returns the registered name of native id.
func (it *Interpreter) NativeName(id int) string {
	if id < 0 || id >= len(it.natives) {
		return fmt.Sprintf("native#%d", id)
	}
	return it.natives[id].name
}

// ---------------------------------------------------------------------------
// Stack and frames
// ---------------------------------------------------------------------------

func (it *Interpreter) ensure(n int) {
	if it.sp+n <= len(it.stack) {
		return
	}
	size := 2 * len(it.stack)
	for size < it.sp+n {
		size *= 2
	}
	stack := make([]value.Value, size)
	copy(stack, it.stack[:it.sp])
	it.stack = stack
}

func (it *Interpreter) pushFrame(r *run, closure, self value.Value, args []value.Value, savedPC int) error {
	if it.depth >= it.config.MaxFrames {
		return ErrStackOverflow
	}
	codeLen := len(r.code(closure))
	size := frameHeader + len(args) + codeLen
	it.ensure(size)

	fp := it.sp
	nilv := it.heap.Nil()
	st := it.stack[fp : fp+size]
	st[frameSavedPC] = value.FromInt(int64(savedPC))
	st[frameSavedFP] = value.FromInt(int64(it.fp))
	st[frameClosure] = closure
	st[frameLast] = nilv
	st[frameSelf] = self
	copy(st[frameHeader:], args)
	for i := frameHeader + len(args); i < size; i++ {
		st[i] = nilv
	}

	it.fp = fp
	it.sp = fp + size
	it.depth++
	return nil
}

// popFrame discards the current frame and returns the caller's pc.
func (it *Interpreter) popFrame() int {
	fp := it.fp
	savedPC := int(it.stack[fp+frameSavedPC].Int())
	it.fp = int(it.stack[fp+frameSavedFP].Int())
	it.sp = fp
	it.depth--
	return savedPC
}

func (it *Interpreter) closure() value.Value { return it.stack[it.fp+frameClosure] }

func (it *Interpreter) slotBase() int {
	return it.fp + frameHeader + it.heap.LambdaArgc(it.closure())
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// run is the state of one Call. Calls nest when a native calls back into
// the interpreter.
type run struct {
	it      *Interpreter
	monitor *heap.Monitor
}

// code returns the decoded code of a lambda. The cache is keyed by raw blob
// addresses, so it is dropped whenever a collection has run since the last
// look.
func (r *run) code(closure value.Value) bytecode.Code {
	it := r.it
	if r.monitor.HasCollectedGarbage() {
		clear(it.codeCache)
		r.monitor.Close()
		r.monitor = it.heap.Memory().Monitor()
	}
	blob := it.heap.LambdaCode(closure)
	if c, ok := it.codeCache[blob]; ok {
		return c
	}
	c := make(bytecode.Code, it.heap.ByteLength(blob)/2)
	for i := range c {
		c[i] = bytecode.Word(it.heap.Uint16At(blob, i))
	}
	it.codeCache[blob] = c
	return c
}

// Call runs closure with the given receiver and arguments and returns its
// result. On error every frame pushed by this call is discarded.
func (it *Interpreter) Call(closure, self value.Value, args ...value.Value) (result value.Value, err error) {
	h := it.heap
	if !h.Is(closure, heap.LambdaType) {
		return 0, fmt.Errorf("interp: cannot call %s", h.Describe(closure))
	}
	if n := h.LambdaArgc(closure); n != len(args) {
		return 0, fmt.Errorf("interp: %s: %w: got %d, want %d", h.LambdaName(closure), ErrArity, len(args), n)
	}

	r := &run{it: it, monitor: h.Memory().Monitor()}
	defer func() { r.monitor.Close() }()

	entrySP, entryFP, entryDepth := it.sp, it.fp, it.depth
	defer func() {
		if err != nil {
			it.sp, it.fp, it.depth = entrySP, entryFP, entryDepth
		}
	}()

	if err := it.pushFrame(r, closure, self, args, -1); err != nil {
		return 0, err
	}
	return it.loop(r, entryDepth)
}

func (it *Interpreter) loop(r *run, entryDepth int) (value.Value, error) {
	h := it.heap
	pc := 0
	code := r.code(it.closure())
	base := it.slotBase()

	fail := func(in bytecode.Instruction, err error) (value.Value, error) {
		return 0, &RuntimeError{Lambda: h.LambdaName(it.closure()), Offset: in.Offset, Op: in.Op, Err: err}
	}

	for {
		var result value.Value
		returning := false

		if pc >= len(code) {
			result, returning = it.stack[it.fp+frameLast], true
		} else {
			in, err := bytecode.Decode(code, pc)
			if err != nil {
				return 0, &RuntimeError{Lambda: h.LambdaName(it.closure()), Offset: pc, Err: err}
			}

			switch in.Op {
			case bytecode.OpLiteral:
				lits := h.LambdaLiterals(it.closure())
				it.produce(base, pc, h.TupleAt(lits, in.Literal()))
				pc = in.Next()

			case bytecode.OpGlobal:
				lits := h.LambdaLiterals(it.closure())
				name := h.StringOf(h.TupleAt(lits, in.Literal()))
				v, ok := it.globals.Global(name)
				if !ok {
					return fail(in, fmt.Errorf("%w %q", ErrUndefinedGlobal, name))
				}
				it.produce(base, pc, v)
				pc = in.Next()

			case bytecode.OpArgument:
				it.produce(base, pc, it.stack[it.fp+frameSelf+in.Operand(0)])
				pc = in.Next()

			case bytecode.OpIfFalse:
				if h.Truthy(it.stack[it.fp+frameLast]) {
					pc = in.Next()
				} else {
					pc = in.Target()
				}

			case bytecode.OpGoto:
				pc = in.Target()

			case bytecode.OpIfTrueFalse:
				v := it.stack[base+in.Operand(2)]
				if h.Truthy(it.stack[base+in.Operand(0)]) {
					v = it.stack[base+in.Operand(1)]
				}
				it.produce(base, pc, v)
				pc = in.Next()

			case bytecode.OpReturn:
				result, returning = it.stack[base+in.Operand(0)], true

			case bytecode.OpSend:
				pushed, v, err := it.send(r, in, base)
				if err != nil {
					return fail(in, err)
				}
				if pushed {
					pc, code, base = 0, r.code(it.closure()), it.slotBase()
					continue
				}
				it.produce(base, pc, v)
				pc = in.Next()
			}
		}

		if !returning {
			continue
		}
		savedPC := it.popFrame()
		if it.depth == entryDepth {
			return result, nil
		}
		code, base = r.code(it.closure()), it.slotBase()
		in, err := bytecode.Decode(code, savedPC)
		if err != nil {
			return 0, err
		}
		it.produce(base, savedPC, result)
		pc = in.Next()
	}
}

// produce records the result of the instruction at pc.
func (it *Interpreter) produce(base, pc int, v value.Value) {
	it.stack[base+pc] = v
	it.stack[it.fp+frameLast] = v
}

// send dispatches a send instruction. It either pushes a frame for a lambda
// method (pushed is true) or returns the result of a native.
func (it *Interpreter) send(r *run, in bytecode.Instruction, base int) (pushed bool, result value.Value, err error) {
	h := it.heap
	lits := h.LambdaLiterals(it.closure())
	name := h.StringOf(h.TupleAt(lits, in.SendName()))
	recv := it.stack[base+in.Receiver()]
	args := make([]value.Value, in.Argc())
	for i := range args {
		args[i] = it.stack[base+in.Arg(i)]
	}
	it.sends++
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("send %s/%d to %s", name, len(args), h.Describe(recv))
	}

	method, err := Lookup(h, recv, name, args)
	if err != nil {
		return false, 0, err
	}
	body := h.MethodBody(method)

	if body.IsSmallInteger() {
		id := int(body.Int())
		if id < 0 || id >= len(it.natives) {
			return false, 0, fmt.Errorf("interp: %s: no native %d", name, id)
		}
		v, err := it.natives[id].fn(&NativeCall{Interp: it, Selector: name, Self: recv, Args: args})
		return false, v, err
	}

	if n := h.LambdaArgc(body); n != len(args) {
		return false, 0, fmt.Errorf("%s: %w: got %d, want %d", name, ErrArity, len(args), n)
	}
	if err := it.pushFrame(r, body, recv, args, in.Offset); err != nil {
		return false, 0, err
	}
	return true, 0, nil
}
