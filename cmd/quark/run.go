package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/runtime"
)

var (
	runCensus bool
	runQuiet  bool
)

func init() {
	runCmd.Flags().BoolVar(&runCensus, "census", false, "print a heap census after the run")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "do not print the result")
}

var runCmd = &cobra.Command{
	Use:   "run <file.qasm|file.qbc>",
	Short: "Load a program and run its entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer heap.CatchFatal(&err)

		p, err := readProgram(args[0])
		if err != nil {
			return err
		}
		rt, err := runtime.New(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		result, err := rt.Eval(p)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !runQuiet {
			fmt.Fprintln(out, result)
		}
		if runCensus {
			stats := rt.Heap().Memory().Stats()
			fmt.Fprintf(out, "\n%d collections, %d bytes allocated in %d objects\n",
				stats.Collections, stats.BytesAllocated, stats.ObjectsAllocated)
			fmt.Fprint(out, runtime.FormatCensus(rt.Census()))
		}
		return nil
	},
}
