package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gh-nvat/pipecheck/src/pkg/gate"
	"github.com/gh-nvat/pipecheck/src/pkg/ledger"
	"github.com/gh-nvat/pipecheck/src/pkg/models"
	"github.com/gh-nvat/pipecheck/src/pkg/template"
	"github.com/gh-nvat/pipecheck/src/pkg/trace"
)

// RunnerGate aggregates a folder of ledgers into a promotion plan.
// Pushing the listed images is left to the caller.
type RunnerGate struct {
	RunnerBase

	Policy gate.Policy
	Out    io.Writer

	plan   *gate.Plan
	report *models.ReportTemplateData
}

// make RunnerGate implement RunnerInterface
var _ RunnerInterface = (*RunnerGate)(nil)

func NewRunnerGate(
	ctx context.Context,
	options *Options,
	renderer *template.Renderer,
) (*RunnerGate, error) {
	baseRunner, err := NewRunnerBase(ctx, options, renderer)
	if err != nil {
		return nil, err
	}
	return &RunnerGate{RunnerBase: *baseRunner, Out: os.Stdout}, nil
}

// Initialize compiles the optional policy. The gate works from ledgers only,
// no harness configuration is loaded.
func (r *RunnerGate) Initialize() error {
	logger.Info("Initializing gate runner: starting...")
	if r.Renderer == nil {
		return fmt.Errorf("renderer is required")
	}

	r.Policy = gate.ConjunctionPolicy{}
	if r.Options.PolicyPath != "" {
		p, err := gate.LoadRegoPolicy(r.Context, r.Options.PolicyPath)
		if err != nil {
			return err
		}
		r.Policy = p
	}
	logger.Info("Initialize gate runner: done.")
	return nil
}

func (r *RunnerGate) Process() error {
	ctx, span := trace.StartSpan(r.Context, "Process")
	defer span.End()
	logger.Info("Process: starting...")

	_, loadSpan := trace.StartSpan(ctx, "LoadLedgers")
	loaded, err := ledger.LoadAll(r.Options.LedgerDir)
	loadSpan.End()
	if err != nil {
		return err
	}

	_, planSpan := trace.StartSpan(ctx, "BuildPlan")
	plan, err := gate.BuildPlan(ctx, ledger.Aggregate(loaded.Rows), r.Policy, r.Options.Registry)
	planSpan.End()
	if err != nil {
		return err
	}
	r.plan = plan

	r.report = &models.ReportTemplateData{
		GateReport: models.GateReport{
			Timestamp:   time.Now(),
			LedgerDir:   r.Options.LedgerDir,
			LedgerFiles: loaded.Files,
			Skipped:     loaded.Skipped,
			PolicyPath:  r.Options.PolicyPath,
			Verdicts:    plan.Verdicts,
			Promote:     plan.Promote(),
		},
	}

	if err := r.printPlan(); err != nil {
		return err
	}
	logger.Info("Process: done.")
	return r.Output()
}

func (r *RunnerGate) printPlan() error {
	if len(r.plan.Images) == 0 {
		_, err := fmt.Fprintln(r.Out, "No image passed all checks, nothing to promote.")
		return err
	}
	if _, err := fmt.Fprintf(r.Out, "Images to promote (%d):\n", len(r.report.Promote)); err != nil {
		return err
	}
	for _, img := range r.report.Promote {
		if _, err := fmt.Fprintf(r.Out, "- %s\n", img); err != nil {
			return err
		}
	}
	return nil
}

// Plan returns the plan built by Process
func (r *RunnerGate) Plan() *gate.Plan {
	return r.plan
}

func (r *RunnerGate) Output() error {
	_, span := trace.StartSpan(r.Context, "Output")
	defer span.End()
	logger.Info("Output: starting...")

	if r.Options.PlanFile != "" {
		if err := writeJson(r.Options.PlanFile, r.plan); err != nil {
			return fmt.Errorf("failed to write plan: %w", err)
		}
	}
	if r.Options.ReportFile != "" {
		rendered, err := r.outputMarkdown(template.FileNameGateTemplate, r.Options.ReportFile, r.report.GateReport)
		if err != nil {
			return err
		}
		r.report.RenderedMarkdown = rendered
	}
	if err := r.outputJson(FILE_NAME_GATE_JSON, r.report); err != nil {
		return err
	}

	logger.Info("Output: done.")
	return nil
}
