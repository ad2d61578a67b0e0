package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gh-nvat/pipecheck/src/pkg/dispatch"
	"github.com/gh-nvat/pipecheck/src/pkg/ledger"
	"github.com/gh-nvat/pipecheck/src/pkg/models"
	"github.com/gh-nvat/pipecheck/src/pkg/pipeline"
	"github.com/gh-nvat/pipecheck/src/pkg/template"
	"github.com/gh-nvat/pipecheck/src/pkg/trace"
	"github.com/google/uuid"
)

// ErrRegression is returned by Process when FailOnFailure is set and a case did not pass
var ErrRegression = errors.New("regression detected")

// RunnerTest executes every test case and records the outcomes in the ledger
type RunnerTest struct {
	RunnerBase

	Pipeline  pipeline.Runner
	Evaluator dispatch.CaseEvaluator
	Ledger    *ledger.Ledger
	Progress  io.Writer

	report *models.ReportData
}

// make RunnerTest implement RunnerInterface
var _ RunnerInterface = (*RunnerTest)(nil)

func NewRunnerTest(
	ctx context.Context,
	options *Options,
	renderer *template.Renderer,
	pipelineRunner pipeline.Runner,
) (*RunnerTest, error) {
	baseRunner, err := NewRunnerBase(ctx, options, renderer)
	if err != nil {
		return nil, err
	}
	runner := &RunnerTest{
		RunnerBase: *baseRunner,
		Pipeline:   pipelineRunner,
	}
	if !options.NoProgress {
		runner.Progress = os.Stderr
	}
	return runner, nil
}

func (r *RunnerTest) Initialize() error {
	if err := r.RunnerBase.Initialize(); err != nil {
		return err
	}
	if r.Evaluator == nil {
		if r.Pipeline == nil {
			return fmt.Errorf("pipeline runner is required")
		}
		r.Evaluator = dispatch.NewPipelineEvaluator(r.Pipeline, r.Config.Comparison)
	}

	l, err := ledger.Open(ledger.PathFor(r.Options.Outpath, r.Config.Name), r.Options.Fresh)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	r.Ledger = l
	return nil
}

func (r *RunnerTest) Process() error {
	ctx, span := trace.StartSpan(r.Context, "Process")
	defer span.End()
	logger.Info("Process: starting...")
	defer func() {
		_ = r.Ledger.Close()
	}()

	d := dispatch.New(r.Evaluator, r.Options.Concurrency)
	d.Progress = r.Progress

	r.report = r.newReportData()
	for res := range d.Run(ctx, r.Cases) {
		if err := r.record(res); err != nil {
			return err
		}
	}

	s := r.report.Summary
	logger.WithField("ledger", r.Ledger.Path()).
		Infof("Process: done, %d passed, %d failed, %d aborted of %d.", s.PassedCount, s.FailedCount, s.AbortedCount, s.TotalCount)

	if err := r.Output(); err != nil {
		return err
	}
	if r.Options.FailOnFailure && s.PassedCount != s.TotalCount {
		return fmt.Errorf("%w: %d of %d test cases did not pass", ErrRegression, s.TotalCount-s.PassedCount, s.TotalCount)
	}
	return nil
}

// record is the single owner of ledger writes
func (r *RunnerTest) record(res models.CaseResult) error {
	o := res.Outcome
	entry := models.CaseReport{
		Image:          res.Case.ImageRef,
		Workflow:       res.Case.WorkflowName,
		DataSample:     res.Case.DataSampleID,
		StructureMatch: o.StructureMatch,
		ContentMatch:   o.ContentMatch,
		ErrorKind:      string(o.ErrorKind),
		DurationMs:     res.Duration.Milliseconds(),
	}
	if o.Err != nil {
		entry.ErrorMessage = o.Err.Error()
	}
	r.report.Cases = append(r.report.Cases, entry)
	r.report.Summary.TotalCount++

	switch {
	case o.Aborted():
		r.report.Summary.AbortedCount++
		if !r.Options.RecordFailures {
			return nil
		}
	case o.Passed():
		r.report.Summary.PassedCount++
	default:
		r.report.Summary.FailedCount++
	}

	if err := r.Ledger.Append(res.Row()); err != nil {
		return fmt.Errorf("failed to record %s: %w", res.Case.Key(), err)
	}
	return nil
}

func (r *RunnerTest) newReportData() *models.ReportData {
	data := &models.ReportData{
		RunID:         uuid.NewString(),
		Config:        r.Config.Name,
		Timestamp:     time.Now(),
		Concurrency:   r.Options.Concurrency,
		GPU:           r.Options.GPU,
		WorkflowNames: r.Config.WorkflowNames,
		Cases:         []models.CaseReport{},
	}
	seen := make(map[string]bool)
	for _, tc := range r.Cases {
		if !seen[tc.ImageRef] {
			seen[tc.ImageRef] = true
			data.ImageRefs = append(data.ImageRefs, tc.ImageRef)
		}
	}
	return data
}

// Report returns the data collected by Process
func (r *RunnerTest) Report() *models.ReportData {
	return r.report
}

func (r *RunnerTest) Output() error {
	_, span := trace.StartSpan(r.Context, "Output")
	defer span.End()

	logger.Info("Output: starting...")
	if err := r.outputJson(FILE_NAME_REPORT_JSON, r.report); err != nil {
		return err
	}
	if r.Options.EnableExportReport {
		path := filepath.Join(r.Options.OutputDir, FILE_NAME_REPORT_MD)
		if _, err := r.outputMarkdown(template.FileNameRunTemplate, path, r.report); err != nil {
			return err
		}
	}
	logger.Info("Output: done.")
	return nil
}
