// Package runtime ties a heap, its handles and an interpreter into one
// runtime context. Every piece of runtime state hangs off a Runtime, so
// several runtimes can live in one process, one per goroutine.
package runtime

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/quark/config"
	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/interp"
	"github.com/chazu/quark/journal"
	"github.com/chazu/quark/refs"
	"github.com/chazu/quark/value"
)

var log = commonlog.GetLogger("quark.runtime")

// Runtime is one isolated heap with the machinery that runs code on it. It
// is not safe for concurrent use.
type Runtime struct {
	// ID identifies the runtime in logs and in the journal.
	ID string

	config  config.Config
	heap    *heap.Heap
	refs    *refs.Manager
	factory *Factory
	interp  *interp.Interpreter
	globals map[string]*refs.Persistent

	journal     *journal.Journal
	ownsJournal bool
	out         io.Writer

	removeRefs func()
	closed     bool
}

// Option customises a Runtime.
type Option func(*Runtime)

// WithOutput sends the output of the print native to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(rt *Runtime) { rt.out = w }
}

// WithJournal records collections in j. The runtime does not close a
// journal it was given.
func WithJournal(j *journal.Journal) Option {
	return func(rt *Runtime) { rt.journal = j }
}

// New creates a runtime. When the configuration names a journal and none
// was passed with WithJournal, the runtime opens and owns it.
func New(cfg config.Config, opts ...Option) (*Runtime, error) {
	h, err := heap.New(cfg.HeapConfig())
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}

	rt := &Runtime{
		ID:      uuid.NewString(),
		config:  cfg,
		heap:    h,
		refs:    refs.NewManager(),
		globals: make(map[string]*refs.Persistent),
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(rt)
	}

	if rt.journal == nil && cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			h.Release()
			return nil, fmt.Errorf("runtime: %w", err)
		}
		rt.journal, rt.ownsJournal = j, true
	}

	rt.removeRefs = h.Memory().AddRootSource(rt.refs)
	rt.factory = newFactory(h, rt.refs)
	rt.interp = interp.New(h, rt, cfg.InterpConfig())
	h.Memory().OnCollect(rt.collected)

	rt.bindBuiltins()
	if err := rt.registerNatives(); err != nil {
		rt.Close()
		return nil, err
	}

	log.Infof("runtime %s started with %d byte space", rt.ID, h.Memory().Space().Capacity())
	return rt, nil
}

// Close releases the heap and everything attached to it. The runtime must
// not be used afterwards.
func (rt *Runtime) Close() error {
	if rt.closed {
		return nil
	}
	rt.closed = true

	stats := rt.heap.Memory().Stats()
	rt.interp.Close()
	rt.factory.close()
	rt.refs.DisposeAll()
	rt.removeRefs()
	rt.heap.Release()
	log.Infof("runtime %s closed after %d collections", rt.ID, stats.Collections)

	if rt.ownsJournal {
		return rt.journal.Close()
	}
	return nil
}

// Config returns the configuration the runtime was created with.
func (rt *Runtime) Config() config.Config { return rt.config }

// Heap returns the runtime's heap.
func (rt *Runtime) Heap() *heap.Heap { return rt.heap }

// Refs returns the runtime's handle manager.
func (rt *Runtime) Refs() *refs.Manager { return rt.refs }

// Factory returns the runtime's GC-safe allocator.
func (rt *Runtime) Factory() *Factory { return rt.factory }

// Interp returns the runtime's interpreter.
func (rt *Runtime) Interp() *interp.Interpreter { return rt.interp }

// Journal returns the journal collections are recorded in, or nil.
func (rt *Runtime) Journal() *journal.Journal { return rt.journal }

// Global implements interp.Globals.
func (rt *Runtime) Global(name string) (value.Value, bool) {
	p, ok := rt.globals[name]
	if !ok {
		return 0, false
	}
	return p.Value(), true
}

// SetGlobal binds name to v.
func (rt *Runtime) SetGlobal(name string, v value.Value) {
	if p, ok := rt.globals[name]; ok {
		p.Set(v)
		return
	}
	rt.globals[name] = rt.refs.NewPersistent(v)
}

// RemoveGlobal unbinds name.
func (rt *Runtime) RemoveGlobal(name string) {
	if p, ok := rt.globals[name]; ok {
		p.Dispose()
		delete(rt.globals, name)
	}
}

// CollectGarbage runs a collection now.
func (rt *Runtime) CollectGarbage() heap.GCStats {
	return rt.heap.Memory().CollectGarbage()
}

func (rt *Runtime) collected(s heap.GCStats) {
	if rt.journal == nil {
		return
	}
	if err := rt.journal.Record(context.Background(), journal.Event{RuntimeID: rt.ID, GCStats: s}); err != nil {
		log.Errorf("runtime %s: %s", rt.ID, err.Error())
	}
}

// builtinSpecies names the species every runtime starts with.
var builtinSpecies = []struct {
	name string
	root heap.Root
}{
	{"Species", heap.SpeciesSpeciesRoot},
	{"Object", heap.ObjectSpeciesRoot},
	{"Tuple", heap.TupleSpeciesRoot},
	{"String", heap.StringSpeciesRoot},
	{"Blob", heap.BlobSpeciesRoot},
	{"Lambda", heap.LambdaSpeciesRoot},
	{"Method", heap.MethodSpeciesRoot},
	{"Selector", heap.SelectorSpeciesRoot},
	{"SmallInteger", heap.SmallIntegerSpeciesRoot},
	{"Nil", heap.NilSpeciesRoot},
	{"True", heap.TrueSpeciesRoot},
	{"False", heap.FalseSpeciesRoot},
}

func (rt *Runtime) bindBuiltins() {
	for _, s := range builtinSpecies {
		rt.SetGlobal(s.name, rt.heap.Root(s.root))
	}
	rt.SetGlobal("nil", rt.heap.Nil())
	rt.SetGlobal("true", rt.heap.Bool(true))
	rt.SetGlobal("false", rt.heap.Bool(false))
}
