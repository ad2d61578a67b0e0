package main

import (
	"fmt"
	"os"

	"github.com/gh-nvat/pipecheck/src/internal/runner"
	"github.com/gh-nvat/pipecheck/src/pkg/models"
	"github.com/gh-nvat/pipecheck/src/pkg/pipeline"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command, parse args from CLI
func newRootCmd() *cobra.Command {
	opts := &runner.Options{}

	cmd := &cobra.Command{
		Use:   "pipecheck",
		Short: "Regression harness for containerized pipelines",
		Long: `pipecheck runs every (image, workflow, data sample) combination of a harness
configuration as a container, compares the produced output with a reference
corpus and records the outcome in a CSV ledger. The gate command turns a folder
of ledgers into the list of images eligible for promotion.`,
		Version:       fmt.Sprintf("%s (built: %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Common flags
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Debug mode")
	cmd.PersistentFlags().StringVar(&opts.TemplatesPath, "templates-path", "",
		"Path to a directory overriding the embedded markdown templates")
	cmd.PersistentFlags().StringVar(&opts.OutputDir, "output-dir", runner.DEFAULT_OUTPUT_DIR,
		"Output directory for exported reports")
	cmd.PersistentFlags().BoolVar(&opts.EnableExportReport, "enable-export-report", false,
		"Enable export report (json and markdown files to output dir)")
	cmd.PersistentFlags().BoolVar(&opts.EnableExportPerformanceReport, "enable-export-performance-report", false,
		"Enable export performance report (json file to output dir)")

	cmd.AddCommand(newTestCmd(opts), newGateCmd(opts))
	return cmd
}

func newTestCmd(opts *runner.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run the test matrix and record outcomes in the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = runner.COMMAND_TEST
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "Path to the harness configuration (required)")
	cmd.Flags().StringVar(&opts.Outpath, "outpath", runner.DEFAULT_LEDGER_DIR,
		"Folder receiving the ledger <config name>.csv")
	cmd.Flags().StringVar(&opts.RunnerMode, "runner-mode", pipeline.RUNNER_MODE_EXEC,
		"How containers are started: exec (docker CLI) or api (Docker Engine API)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", runner.DEFAULT_CONCURRENCY,
		"Number of test cases run in parallel, 1 runs them sequentially in order")
	cmd.Flags().BoolVar(&opts.GPU, "gpu", false, "Request GPU access for every container")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Print the commands and directories without running anything")
	cmd.Flags().BoolVar(&opts.Verbose, "verbose", false, "Stream container output")
	cmd.Flags().BoolVar(&opts.Fresh, "fresh", true, "Remove an existing ledger for the same configuration before the run")
	cmd.Flags().BoolVar(&opts.RecordFailures, "record-failures", false,
		"Record aborted test cases as False,False rows instead of leaving them out")
	cmd.Flags().BoolVar(&opts.NoProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().BoolVar(&opts.FailOnFailure, "fail-on-failure", false,
		"Exit nonzero when any test case failed or aborted")

	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newGateCmd(opts *runner.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Aggregate ledgers into the list of images eligible for promotion",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = runner.COMMAND_GATE
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.LedgerDir, "ledger-dir", runner.DEFAULT_LEDGER_DIR, "Folder with the *.csv ledgers")
	cmd.Flags().StringVar(&opts.PolicyPath, "policy", "",
		"Optional rego policy defining data.pipecheck.gate.allow, default requires every row to pass")
	cmd.Flags().StringVar(&opts.Registry, "registry", models.DEFAULT_REGISTRY, "Registry prefix of the base images")
	cmd.Flags().StringVar(&opts.PlanFile, "plan-file", "", "Write the promotion plan as JSON to this file")
	cmd.Flags().StringVar(&opts.ReportFile, "report-file", "", "Write the markdown gate summary to this file")
	return cmd
}
