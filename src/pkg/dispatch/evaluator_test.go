package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gh-nvat/pipecheck/src/pkg/models"
	"github.com/gh-nvat/pipecheck/src/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner writes files into the mounted output directory instead of running a container
type fakeRunner struct {
	outputs map[string]map[string]string // image -> relative path -> content
	err     error
	calls   int
}

func (f *fakeRunner) Run(_ context.Context, inv pipeline.Invocation) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	out := inv.Mounts[1].Source
	for rel, content := range f.outputs[inv.Image] {
		p := filepath.Join(out, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func newCase(base, image string) models.TestCase {
	in := filepath.Join(base, "in", "s1")
	out := filepath.Join(base, "out", image, "s1", "wf1")
	ref := filepath.Join(base, "ref", image, "s1", "wf1")
	return models.TestCase{
		ImageRef:      image,
		ImageName:     image,
		WorkflowName:  "wf1",
		DataSampleID:  "s1",
		RunCommand:    pipeline.NewInvocation(image, in, out, false),
		InputPath:     in,
		OutputPath:    out,
		ReferencePath: ref,
	}
}

func TestPipelineEvaluator(t *testing.T) {
	reference := map[string]string{
		"report.json":  `{"a":1,"b":2}`,
		"meta/run.yml": "steps: [convert, segment]\n",
	}

	tests := []struct {
		name   string
		output map[string]string
		want   models.ComparisonOutcome
	}{
		{
			name:   "matches reference",
			output: map[string]string{"report.json": `{"b":2,"a":1}`, "meta/run.yml": "steps: [convert, segment]\n"},
			want:   models.ComparisonOutcome{StructureMatch: true, ContentMatch: true},
		},
		{
			name:   "extra file",
			output: map[string]string{"report.json": `{"a":1,"b":2}`, "meta/run.yml": "steps: [convert, segment]\n", "extra.txt": "x"},
			want:   models.ComparisonOutcome{},
		},
		{
			name:   "content differs",
			output: map[string]string{"report.json": `{"a":1,"b":3}`, "meta/run.yml": "steps: [convert, segment]\n"},
			want:   models.ComparisonOutcome{StructureMatch: true},
		},
		{
			name:   "unparseable output",
			output: map[string]string{"report.json": `{"a":`, "meta/run.yml": "steps: [convert, segment]\n"},
			want:   models.ComparisonOutcome{StructureMatch: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			tc := newCase(base, "img")
			require.NoError(t, os.MkdirAll(tc.InputPath, 0o755))
			writeTree(t, tc.ReferencePath, reference)

			runner := &fakeRunner{outputs: map[string]map[string]string{"img": tt.output}}
			e := NewPipelineEvaluator(runner, models.ComparisonConfig{})
			got := e.Evaluate(context.Background(), tc)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, runner.calls)
		})
	}
}

func TestPipelineEvaluator_Aborts(t *testing.T) {
	t.Run("missing reference", func(t *testing.T) {
		base := t.TempDir()
		tc := newCase(base, "img")
		require.NoError(t, os.MkdirAll(tc.InputPath, 0o755))

		runner := &fakeRunner{}
		got := NewPipelineEvaluator(runner, models.ComparisonConfig{}).Evaluate(context.Background(), tc)
		assert.Equal(t, models.ERROR_KIND_ENVIRONMENT, got.ErrorKind)
		assert.True(t, errors.Is(got.Err, models.ErrEnvironment))
		assert.Zero(t, runner.calls, "pipeline must not run without a reference")
	})

	t.Run("missing input", func(t *testing.T) {
		base := t.TempDir()
		tc := newCase(base, "img")
		require.NoError(t, os.MkdirAll(tc.ReferencePath, 0o755))

		got := NewPipelineEvaluator(&fakeRunner{}, models.ComparisonConfig{}).Evaluate(context.Background(), tc)
		assert.Equal(t, models.ERROR_KIND_ENVIRONMENT, got.ErrorKind)
	})

	t.Run("runner failure", func(t *testing.T) {
		base := t.TempDir()
		tc := newCase(base, "img")
		require.NoError(t, os.MkdirAll(tc.InputPath, 0o755))
		require.NoError(t, os.MkdirAll(tc.ReferencePath, 0o755))

		runner := &fakeRunner{err: fmt.Errorf("%w: img exited with code 2", pipeline.ErrRunnerFailure)}
		got := NewPipelineEvaluator(runner, models.ComparisonConfig{}).Evaluate(context.Background(), tc)
		assert.Equal(t, models.ERROR_KIND_RUNNER, got.ErrorKind)
		assert.False(t, got.StructureMatch)
		assert.False(t, got.ContentMatch)
	})
}

func TestPipelineEvaluator_ClearsStaleOutput(t *testing.T) {
	base := t.TempDir()
	tc := newCase(base, "img")
	require.NoError(t, os.MkdirAll(tc.InputPath, 0o755))
	writeTree(t, tc.ReferencePath, map[string]string{"report.json": `{}`})
	// left over from an earlier run, would satisfy the comparison
	writeTree(t, tc.OutputPath, map[string]string{"report.json": `{}`})

	runner := &fakeRunner{}
	got := NewPipelineEvaluator(runner, models.ComparisonConfig{}).Evaluate(context.Background(), tc)
	assert.False(t, got.Aborted())
	assert.False(t, got.StructureMatch)
}
