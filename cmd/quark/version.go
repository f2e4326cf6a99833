package main

import (
	"encoding/json"
	"fmt"
	goruntime "runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/quark/bytecode"
)

type versionPayload struct {
	Tool          string `json:"tool"`
	Version       string `json:"version"`
	BytecodeLevel int    `json:"bytecode_format"`
	Go            string `json:"go"`
}

var versionFormat string

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show quark build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := versionPayload{
			Tool:          "quark",
			Version:       Version,
			BytecodeLevel: bytecode.FormatVersion,
			Go:            goruntime.Version(),
		}
		out := cmd.OutOrStdout()
		switch strings.ToLower(versionFormat) {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		case "pretty", "":
			fmt.Fprintf(out, "%s %s (bytecode format %d, %s)\n", payload.Tool, payload.Version, payload.BytecodeLevel, payload.Go)
			return nil
		}
		return fmt.Errorf("unknown format %q (expected pretty|json)", versionFormat)
	},
}
