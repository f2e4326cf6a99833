package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/quark/config"
	"github.com/chazu/quark/heap"
)

// Version is set at build time with -ldflags.
var Version = "0.1.0-dev"

var rootCmd = &cobra.Command{
	Use:           "quark",
	Short:         "Quark runtime core: tagged heap, copying collector and bytecode interpreter",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := readColorMode(colorFlag); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging(cfg)
		return nil
	},
}

var (
	configPath string
	verbosity  int
	logFile    string
	colorFlag  string
)

func init() {
	rootCmd.Version = Version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(asmCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(stressCmd)
	rootCmd.AddCommand(censusCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration file (default: nearest quark.toml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log", "", "write logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&colorFlag, "color", "auto", "colorize output (auto|on|off)")
}

// main runs the root command. Errors exit with status 1, fatal heap
// conditions with status 2.
func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		var fe *heap.FatalError
		if errors.As(err, &fe) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// cfg is the configuration loaded before any subcommand runs.
var cfg config.Config

func loadConfig() (config.Config, error) {
	var loaded *config.Config
	var err error
	if configPath != "" {
		loaded, err = config.LoadFile(configPath)
	} else {
		loaded, err = config.FindAndLoad(".")
	}
	if err != nil {
		return cfg, err
	}
	if loaded != nil {
		cfg = *loaded
	} else {
		cfg = config.Default()
	}
	return cfg, nil
}

func setupLogging(c config.Config) {
	v := c.Log.Verbosity + verbosity
	path := c.Log.File
	if logFile != "" {
		path = logFile
	}
	if path != "" {
		commonlog.Configure(v, &path)
	} else {
		commonlog.Configure(v, nil)
	}
}

func reportError(err error) {
	label := "error:"
	if useColor(os.Stderr) {
		label = color.New(color.FgRed, color.Bold).Sprint(label)
	}
	fmt.Fprintln(os.Stderr, label, err)
}
