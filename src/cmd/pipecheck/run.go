package main

import (
	"context"
	"fmt"

	"github.com/gh-nvat/pipecheck/src/internal/runner"
	"github.com/gh-nvat/pipecheck/src/pkg/pipeline"
	"github.com/gh-nvat/pipecheck/src/pkg/template"
	"github.com/gh-nvat/pipecheck/src/pkg/trace"
	log "github.com/sirupsen/logrus"
)

var logger *log.Entry = log.New().WithFields(log.Fields{
	"package": "run",
})

// createRunner creates the runner for the selected command
func createRunner(ctx context.Context, opts *runner.Options) (runner.RunnerInterface, error) {
	logger.WithField("opts", opts).Debug("Creating runner..")

	renderer := template.NewRenderer()

	switch {
	case opts.Command == runner.COMMAND_GATE:
		r, err := runner.NewRunnerGate(ctx, opts, renderer)
		if err != nil {
			return nil, fmt.Errorf("failed to create gate runner: %w", err)
		}
		return r, nil
	case opts.DryRun:
		r, err := runner.NewRunnerDryRun(ctx, opts, renderer)
		if err != nil {
			return nil, fmt.Errorf("failed to create dry-run runner: %w", err)
		}
		return r, nil
	case opts.Command == runner.COMMAND_TEST:
		pipelineRunner, err := pipeline.NewRunner(opts.RunnerMode, opts.Verbose)
		if err != nil {
			return nil, fmt.Errorf("failed to create pipeline runner: %w", err)
		}
		r, err := runner.NewRunnerTest(ctx, opts, renderer, pipelineRunner)
		if err != nil {
			return nil, fmt.Errorf("failed to create test runner: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("invalid command: %s", opts.Command)
	}
}

func initialize(ctx context.Context, opts *runner.Options) (runner.RunnerInterface, error) {
	runner, err := createRunner(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	if err := runner.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize runner: %w", err)
	}
	return runner, nil
}

func run(ctx context.Context, opts *runner.Options) error {
	logger.WithField("opts", opts).Info("Running..")
	if opts.Debug {
		log.SetLevel(log.DebugLevel)
	}

	// Validate options
	if err := validateOptions(opts); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	// Initialize tracer
	shutdown, err := trace.InitTracer("pipecheck", opts.EnableExportPerformanceReport, opts.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer shutdown()

	// Initialize runner
	appRunner, err := initialize(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	err = appRunner.Process()
	if err != nil {
		return fmt.Errorf("failed to process: %w", err)
	}

	return nil
}

func validateOptions(opts *runner.Options) error {
	switch opts.Command {
	case runner.COMMAND_TEST:
		if opts.ConfigPath == "" {
			return fmt.Errorf("--config is required")
		}
		if opts.Concurrency < 1 {
			return fmt.Errorf("--concurrency must be at least 1, got: %d", opts.Concurrency)
		}
		if opts.RunnerMode != pipeline.RUNNER_MODE_EXEC && opts.RunnerMode != pipeline.RUNNER_MODE_API {
			return fmt.Errorf("runner-mode must be '%s' or '%s', got: %s",
				pipeline.RUNNER_MODE_EXEC, pipeline.RUNNER_MODE_API, opts.RunnerMode)
		}
		if !opts.DryRun && opts.Outpath == "" {
			return fmt.Errorf("--outpath is required")
		}
		// the progress bar would interleave with streamed container output
		if opts.Verbose {
			opts.NoProgress = true
		}
	case runner.COMMAND_GATE:
		if opts.LedgerDir == "" {
			return fmt.Errorf("--ledger-dir is required")
		}
	default:
		return fmt.Errorf("command must be '%s' or '%s', got: %s", runner.COMMAND_TEST, runner.COMMAND_GATE, opts.Command)
	}

	if (opts.EnableExportReport || opts.EnableExportPerformanceReport) && opts.OutputDir == "" {
		return fmt.Errorf("--output-dir is required when exporting reports")
	}
	return nil
}
