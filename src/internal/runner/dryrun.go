package runner

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gh-nvat/pipecheck/src/pkg/template"
	"github.com/gh-nvat/pipecheck/src/pkg/trace"
)

// RunnerDryRun prints what a test run would execute. Nothing is run and
// no ledger is written.
type RunnerDryRun struct {
	RunnerBase

	Out io.Writer
}

// make RunnerDryRun implement RunnerInterface
var _ RunnerInterface = (*RunnerDryRun)(nil)

func NewRunnerDryRun(
	ctx context.Context,
	options *Options,
	renderer *template.Renderer,
) (*RunnerDryRun, error) {
	baseRunner, err := NewRunnerBase(ctx, options, renderer)
	if err != nil {
		return nil, err
	}
	return &RunnerDryRun{RunnerBase: *baseRunner, Out: os.Stdout}, nil
}

func (r *RunnerDryRun) Initialize() error {
	return r.RunnerBase.Initialize()
}

func (r *RunnerDryRun) Process() error {
	_, span := trace.StartSpan(r.Context, "Process")
	defer span.End()
	logger.Info("Process: starting...")

	if _, err := fmt.Fprintf(r.Out, "Found %d test case(s) in %s\n", len(r.Cases), r.Config.Name); err != nil {
		return err
	}
	for i, tc := range r.Cases {
		_, err := fmt.Fprintf(r.Out,
			"\n[%d/%d] %s\n- Docker command to be executed:\n%s\n- Output directory to be generated:\n%s\n- Reference directory to compare against:\n%s\n",
			i+1, len(r.Cases), tc.Key(), tc.RunCommand.String(), tc.OutputPath, tc.ReferencePath)
		if err != nil {
			return err
		}
	}

	logger.Info("Process: done.")
	return r.Output()
}

func (r *RunnerDryRun) Output() error {
	logger.Info("Output: dry run, nothing to export")
	return nil
}
