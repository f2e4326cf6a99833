package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chazu/quark/journal"
	"github.com/chazu/quark/runtime"
)

var (
	stressRuntimes   int
	stressIterations int
	stressLive       int
	stressJobs       int
	stressJournal    string
	stressDump       string
)

func init() {
	stressCmd.Flags().IntVarP(&stressRuntimes, "runtimes", "n", 4, "number of independent runtimes")
	stressCmd.Flags().IntVar(&stressIterations, "iterations", 10000, "allocation rounds per runtime")
	stressCmd.Flags().IntVar(&stressLive, "live", 64, "tuples each runtime keeps reachable")
	stressCmd.Flags().IntVarP(&stressJobs, "jobs", "j", 0, "runtimes running at once (0 = GOMAXPROCS)")
	stressCmd.Flags().StringVar(&stressJournal, "journal", "", "record collections in this SQLite file (default: [journal] path)")
	stressCmd.Flags().StringVar(&stressDump, "dump", "", "write msgpack census dumps to this file")
}

var stressCmd = &cobra.Command{
	Use:   "gc-stress",
	Short: "Churn the collector on several runtimes in parallel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runtime.StressOptions{
			Runtimes:   stressRuntimes,
			Iterations: stressIterations,
			Live:       stressLive,
			Jobs:       stressJobs,
		}

		path := stressJournal
		if path == "" {
			path = cfg.Journal.Path
		}
		if path != "" {
			j, err := journal.Open(path)
			if err != nil {
				return err
			}
			defer j.Close()
			opts.Journal = j
		}

		start := time.Now()
		results, err := runtime.Stress(cmd.Context(), cfg, opts)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		rows := [][]string{{"runtime", "collections", "allocated", "retries", "capacity", "checksum"}}
		for _, r := range results {
			rows = append(rows, []string{
				r.RuntimeID[:8],
				fmt.Sprint(r.Stats.Collections),
				fmt.Sprint(r.Stats.BytesAllocated),
				fmt.Sprint(r.Retries),
				fmt.Sprint(r.Capacity),
				fmt.Sprint(r.Checksum),
			})
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, runtime.FormatTable(rows))
		fmt.Fprintf(out, "%d runtimes in %s\n", len(results), elapsed.Round(time.Millisecond))

		if stressDump != "" {
			dumps := make([]runtime.CensusDump, len(results))
			for i, r := range results {
				dumps[i] = r.Census
			}
			if err := writeDumps(stressDump, dumps); err != nil {
				return err
			}
			fmt.Fprintf(out, "census written to %s\n", stressDump)
		}
		return nil
	},
}

func writeDumps(path string, dumps []runtime.CensusDump) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return runtime.WriteDumps(f, dumps)
}
