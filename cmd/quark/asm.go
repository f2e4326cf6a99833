package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/quark/bytecode"
)

var asmOutput string

func init() {
	asmCmd.Flags().StringVarP(&asmOutput, "output", "o", "", "output file (default: input with .qbc extension)")
}

var asmCmd = &cobra.Command{
	Use:   "asm <file.qasm>",
	Short: "Assemble a program into encoded bytecode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := bytecode.AssembleFile(args[0])
		if err != nil {
			return err
		}
		out := asmOutput
		if out == "" {
			out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + bytecodeExt
		}
		if err := bytecode.WriteProgram(out, p); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d species, %d methods)\n", out, len(p.Species), len(p.Methods))
		return nil
	},
}
