package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chazu/quark/bytecode"
	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/runtime"
	"github.com/chazu/quark/value"
)

var disasmLoaded bool

func init() {
	disasmCmd.Flags().BoolVar(&disasmLoaded, "loaded", false, "load the program into a runtime and disassemble the heap copies")
}

var disasmCmd = &cobra.Command{
	Use:   "disasm <file.qasm|file.qbc>",
	Short: "Print the instructions of every unit in a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer heap.CatchFatal(&err)

		p, err := readProgram(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		colored := out == os.Stdout && useColor(os.Stdout)
		if disasmLoaded {
			return disassembleLoaded(out, p, colored)
		}

		for i := range p.Methods {
			m := &p.Methods[i]
			header(out, colored, fmt.Sprintf("%s>>%s/%d", m.Species, m.Selector, m.Body.Argc))
			d := &bytecode.Disassembler{Literals: m.Body.LiteralTable(), Color: colored}
			if err := d.Fprint(out, m.Body.Code); err != nil {
				return err
			}
		}
		header(out, colored, "entry")
		d := &bytecode.Disassembler{Literals: p.Entry.LiteralTable(), Color: colored}
		return d.Fprint(out, p.Entry.Code)
	},
}

func header(w io.Writer, colored bool, title string) {
	line := "; " + title
	if colored {
		line = color.New(color.FgYellow).Sprint(line)
	}
	fmt.Fprintln(w, line)
}

// disassembleLoaded reads code back out of the heap, so the output shows
// what the interpreter actually runs.
func disassembleLoaded(w io.Writer, p *bytecode.Program, colored bool) error {
	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	s := rt.Refs().NewScope()
	defer s.Close()
	entry, err := rt.LoadProgram(p)
	if err != nil {
		return err
	}

	h := rt.Heap()
	seen := make(map[value.Value]bool)
	for _, def := range p.Methods {
		species, err := rt.Species(def.Species)
		if err != nil {
			return err
		}
		methods := h.SpeciesMethods(species)
		for i, n := 0, h.TupleLength(methods); i < n; i++ {
			m := h.TupleAt(methods, i)
			sel := h.MethodSelector(m)
			body := h.MethodBody(m)
			if seen[m] || h.SelectorName(sel) != def.Selector || h.SelectorArgc(sel) != def.Body.Argc || !h.Is(body, heap.LambdaType) {
				continue
			}
			seen[m] = true
			header(w, colored, h.LambdaName(body))
			if err := rt.FprintLambda(w, body, colored); err != nil {
				return err
			}
		}
	}
	header(w, colored, "entry")
	return rt.FprintLambda(w, entry.Value(), colored)
}
