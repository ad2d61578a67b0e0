package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gh-nvat/pipecheck/src/pkg/content"
	"github.com/gh-nvat/pipecheck/src/pkg/dirtree"
	"github.com/gh-nvat/pipecheck/src/pkg/models"
	"github.com/gh-nvat/pipecheck/src/pkg/pipeline"
	"github.com/gh-nvat/pipecheck/src/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CaseEvaluator turns one test case into its outcome. Implementations must
// not panic on case failures; errors are reported through the outcome.
type CaseEvaluator interface {
	Evaluate(ctx context.Context, tc models.TestCase) models.ComparisonOutcome
}

// PipelineEvaluator runs the pipeline, then checks structure, then content
type PipelineEvaluator struct {
	Runner            pipeline.Runner
	Structure         *dirtree.Comparator
	Content           *content.Comparator
	StrictBinaryCheck bool
}

// Ensure PipelineEvaluator implements CaseEvaluator
var _ CaseEvaluator = (*PipelineEvaluator)(nil)

// NewPipelineEvaluator wires the comparators from the comparison settings
func NewPipelineEvaluator(runner pipeline.Runner, cfg models.ComparisonConfig) *PipelineEvaluator {
	return &PipelineEvaluator{
		Runner:            runner,
		Structure:         dirtree.NewComparator(cfg.Ignore...),
		Content:           content.NewComparator(cfg),
		StrictBinaryCheck: cfg.StrictBinaryCheck,
	}
}

func (e *PipelineEvaluator) Evaluate(ctx context.Context, tc models.TestCase) models.ComparisonOutcome {
	ctx, span := trace.StartSpan(ctx, "EvaluateCase",
		attribute.String("image", tc.ImageRef),
		attribute.String("workflow", tc.WorkflowName),
		attribute.String("sample", tc.DataSampleID),
	)
	defer span.End()

	outcome := e.evaluate(ctx, tc)
	if outcome.Aborted() {
		span.SetStatus(codes.Error, outcome.Err.Error())
	}
	span.SetAttributes(
		attribute.Bool("structure_match", outcome.StructureMatch),
		attribute.Bool("content_match", outcome.ContentMatch),
	)
	return outcome
}

func (e *PipelineEvaluator) evaluate(ctx context.Context, tc models.TestCase) models.ComparisonOutcome {
	l := caseLogger(tc)

	if err := requireDir(tc.InputPath, "input"); err != nil {
		return models.NewFailedOutcome(err)
	}
	if err := requireDir(tc.ReferencePath, "reference"); err != nil {
		return models.NewFailedOutcome(err)
	}
	if err := prepareOutputDir(tc.OutputPath); err != nil {
		return models.NewFailedOutcome(err)
	}

	_, runSpan := trace.StartSpan(ctx, "EvaluateCase.Run")
	err := e.Runner.Run(ctx, tc.RunCommand)
	runSpan.End()
	if err != nil {
		return models.NewFailedOutcome(err)
	}

	_, structSpan := trace.StartSpan(ctx, "EvaluateCase.Structure")
	match, err := e.Structure.Compare(tc.OutputPath, tc.ReferencePath, e.StrictBinaryCheck)
	structSpan.End()
	if err != nil {
		return models.NewFailedOutcome(err)
	}
	if !match {
		l.Info("Output tree differs from reference")
		return models.ComparisonOutcome{}
	}

	_, contentSpan := trace.StartSpan(ctx, "EvaluateCase.Content")
	defer contentSpan.End()
	files, err := e.Structure.CommonFiles(tc.OutputPath, tc.ReferencePath)
	if err != nil {
		return models.NewFailedOutcome(err)
	}

	contentMatch := true
	for _, rel := range files {
		out := filepath.Join(tc.OutputPath, filepath.FromSlash(rel))
		ref := filepath.Join(tc.ReferencePath, filepath.FromSlash(rel))
		res := e.Content.Compare(out, ref)
		if !res.Equivalent {
			l.WithField("file", rel).WithField("scores", res.Scores).Info("Output file not equivalent to reference")
			contentMatch = false
		}
	}
	contentSpan.SetAttributes(attribute.Int("files", len(files)))

	return models.ComparisonOutcome{StructureMatch: true, ContentMatch: contentMatch}
}

func requireDir(path, what string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s directory %s: %v", models.ErrEnvironment, what, path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s path %s is not a directory", models.ErrEnvironment, what, path)
	}
	return nil
}

// prepareOutputDir recreates the output directory empty so stale artifacts
// from a previous run cannot satisfy the comparison
func prepareOutputDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: failed to clear output directory %s: %v", models.ErrEnvironment, path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create output directory %s: %v", models.ErrEnvironment, path, err)
	}
	return nil
}
