// Package cmd wires the corefuzz CLI surface: a master command that runs
// the hour/slot campaign loop, and a worker command that runs one fuzzing
// process against a worker ID. Grounded on the teacher's
// go_src/internal/cmd/root.go (persistent-flag/env precedence,
// SilenceUsage/SilenceErrors, PersistentPreRunE) and
// src/internal/cmd/serve.go (signal-driven subprocess lifecycle).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corefuzz/corefuzz/internal/config"
	"github.com/corefuzz/corefuzz/internal/corelog"
)

// Version is set at build time via -ldflags, matching the teacher's
// Version var convention.
var Version = "dev"

var (
	jsonFlag    bool
	verboseFlag bool
	quietFlag   bool
	configFlag  string
	resolvedLog *corelog.Options
)

// NewRootCmd builds the root command and registers the master/worker
// subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "corefuzzer",
		Short:         "Feedback-guided NAS protocol fuzzer for a 5G mobile-core control plane",
		Version:       fmt.Sprintf("corefuzzer v%s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verboseFlag && quietFlag {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			if configFlag != "" {
				config.SetConfigFile(configFlag)
			}
			resolvedLog = &corelog.Options{JSON: jsonFlag, Verbose: verboseFlag, Quiet: quietFlag}
			return nil
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	pflags := root.PersistentFlags()
	pflags.BoolVarP(&jsonFlag, "json", "j", false, "Log as JSON")
	pflags.BoolVarP(&verboseFlag, "verbose", "v", false, "Debug-level logging")
	pflags.BoolVarP(&quietFlag, "quiet", "q", false, "Warn-level logging only")
	pflags.StringVar(&configFlag, "config", "", "Path to corefuzz.toml (default: ./corefuzz.toml)")

	addMasterCommand(root)
	addWorkerCommand(root)

	return root
}

// Execute runs the root command, the CLI's single entry point.
func Execute() error {
	return NewRootCmd().Execute()
}

func logOptions() corelog.Options {
	if resolvedLog != nil {
		return *resolvedLog
	}
	return corelog.Options{}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
