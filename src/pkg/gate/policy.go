package gate

import (
	"context"
	"fmt"
	"os"

	"github.com/gh-nvat/pipecheck/src/pkg/models"
	"github.com/open-policy-agent/opa/rego"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "gate")

const (
	GATE_QUERY = "data.pipecheck.gate.allow"
)

// Policy decides whether an aggregated image may be promoted
type Policy interface {
	Allow(ctx context.Context, verdict models.ImageVerdict) (bool, error)
}

// ConjunctionPolicy promotes an image only when every row passed both checks
type ConjunctionPolicy struct{}

// Ensure policies implement Policy
var (
	_ Policy = ConjunctionPolicy{}
	_ Policy = (*RegoPolicy)(nil)
)

func (ConjunctionPolicy) Allow(_ context.Context, verdict models.ImageVerdict) (bool, error) {
	for _, row := range verdict.Rows {
		if !row.Passed() {
			return false, nil
		}
	}
	return len(verdict.Rows) > 0, nil
}

// RegoPolicy evaluates data.pipecheck.gate.allow with input {image, rows}
type RegoPolicy struct {
	Path  string
	query rego.PreparedEvalQuery
}

// LoadRegoPolicy compiles a rego module from disk
func LoadRegoPolicy(ctx context.Context, path string) (*RegoPolicy, error) {
	src, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return NewRegoPolicy(ctx, path, string(src))
}

func NewRegoPolicy(ctx context.Context, name, module string) (*RegoPolicy, error) {
	query, err := rego.New(
		rego.Query(GATE_QUERY),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to compile policy %s: %v", models.ErrConfigurationMismatch, name, err)
	}
	return &RegoPolicy{Path: name, query: query}, nil
}

func (p *RegoPolicy) Allow(ctx context.Context, verdict models.ImageVerdict) (bool, error) {
	rows := make([]any, 0, len(verdict.Rows))
	for _, r := range verdict.Rows {
		rows = append(rows, map[string]any{
			"image":         r.ImageRef,
			"workflow":      r.WorkflowName,
			"data_sample":   r.DataSampleID,
			"dirtree_match": r.StructureMatch,
			"output_match":  r.ContentMatch,
		})
	}
	input := map[string]any{
		"image": verdict.ImageRef,
		"rows":  rows,
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy %s for %s: %w", p.Path, verdict.ImageRef, err)
	}
	allowed := rs.Allowed()
	logger.WithField("image", verdict.ImageRef).WithField("allowed", allowed).Debug("Policy evaluated")
	return allowed, nil
}
