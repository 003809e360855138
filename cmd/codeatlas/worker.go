package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/codeatlas-dev/codeatlas/internal/config"
	"github.com/codeatlas-dev/codeatlas/internal/procpool"
)

// workerSubcommand is the verb the indexer self-execs to start a parse
// worker process.
const workerSubcommand = "parse-worker"

var (
	workerGrammarDir    string
	workerVendorDir     string
	workerAllowUnstable bool
	workerDisabled      []string
)

var workerCmd = &cobra.Command{
	Use:    workerSubcommand,
	Short:  "Run as a parse worker process (internal)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return procpool.WorkerLoop(os.Stdin, os.Stdout, loaderConfig(config.GrammarConfig{
			Dir:           workerGrammarDir,
			VendorDir:     workerVendorDir,
			AllowUnstable: workerAllowUnstable,
			Disabled:      workerDisabled,
		}))
	},
}

// workerArgs forwards grammar settings so parse workers resolve the same
// language set as the parent process.
func workerArgs(g config.GrammarConfig) []string {
	var args []string
	if g.Dir != "" {
		args = append(args, "--grammar-dir", g.Dir)
	}
	if g.VendorDir != "" {
		args = append(args, "--vendor-dir", g.VendorDir)
	}
	if g.AllowUnstable {
		args = append(args, "--allow-unstable")
	}
	for _, name := range g.Disabled {
		args = append(args, "--disable", name)
	}
	return args
}

func init() {
	workerCmd.Flags().StringVar(&workerGrammarDir, "grammar-dir", "", "dynamic grammar directory")
	workerCmd.Flags().StringVar(&workerVendorDir, "vendor-dir", "", "vendored grammar source directory")
	workerCmd.Flags().BoolVar(&workerAllowUnstable, "allow-unstable", false, "load platform-unstable grammars")
	workerCmd.Flags().StringArrayVar(&workerDisabled, "disable", nil, "language to skip (repeatable)")
	rootCmd.AddCommand(workerCmd)
}
