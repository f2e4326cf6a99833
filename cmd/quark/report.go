package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/quark/journal"
	"github.com/chazu/quark/runtime"
)

var censusCmd = &cobra.Command{
	Use:   "census <dump.msgpack>",
	Short: "Print census dumps written by gc-stress --dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		dumps, err := runtime.ReadDumps(f)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i, d := range dumps {
			if i > 0 {
				fmt.Fprintln(out)
			}
			header(out, useColor(os.Stdout), fmt.Sprintf("runtime %s, %d collections", d.RuntimeID, d.Stats.Collections))
			fmt.Fprint(out, runtime.FormatCensus(d.Census))
		}
		return nil
	},
}

var journalCmd = &cobra.Command{
	Use:   "journal [file.db]",
	Short: "Summarise the collections recorded in a journal",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Journal.Path
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no journal given and none configured")
		}
		j, err := journal.Open(path)
		if err != nil {
			return err
		}
		defer j.Close()

		sums, err := j.Summaries(cmd.Context())
		if err != nil {
			return err
		}
		rows := [][]string{{"runtime", "collections", "reclaimed", "max capacity", "gc time"}}
		for _, s := range sums {
			rows = append(rows, []string{
				s.RuntimeID,
				fmt.Sprint(s.Collections),
				fmt.Sprint(s.Reclaimed),
				fmt.Sprint(s.MaxCapacity),
				s.Total.String(),
			})
		}
		fmt.Fprint(cmd.OutOrStdout(), runtime.FormatTable(rows))
		return nil
	},
}
