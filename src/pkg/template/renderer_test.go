package template

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gh-nvat/pipecheck/src/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gateReport() models.GateReport {
	return models.GateReport{
		Timestamp:   time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		LedgerDir:   "/logs",
		LedgerFiles: []string{"/logs/nightly.csv"},
		Skipped:     []string{"/logs/old.csv"},
		Verdicts: []models.ImageVerdict{
			{ImageRef: "mhubai/imga:1.0", Eligible: true, Rows: []models.LedgerRow{
				{ImageRef: "mhubai/imga:1.0", StructureMatch: true, ContentMatch: true},
			}},
			{ImageRef: "mhubai/imgb:1.0", Rows: []models.LedgerRow{
				{ImageRef: "mhubai/imgb:1.0"},
				{ImageRef: "mhubai/imgb:1.0", StructureMatch: true, ContentMatch: true},
			}},
		},
		Promote: []string{"mhubai/imga:1.0", "mhubai/base:1.0"},
	}
}

func TestRenderGate(t *testing.T) {
	out, err := NewRenderer().RenderWithTemplates("", FileNameGateTemplate, gateReport())
	require.NoError(t, err)

	assert.Contains(t, out, ToolSignature)
	assert.Contains(t, out, "Generated 2026-03-01 12:30 UTC from 1 ledger file(s), 1 skipped (`old.csv`).")
	assert.Contains(t, out, "Policy: every row must pass both checks")
	assert.Contains(t, out, "| `mhubai/imga:1.0` | 1 | 0 | yes |")
	assert.Contains(t, out, "| `mhubai/imgb:1.0` | 2 | 1 | no |")
	assert.Contains(t, out, "- `mhubai/base:1.0`")
}

func TestRenderGate_NothingToPromote(t *testing.T) {
	report := gateReport()
	report.Promote = nil
	report.PolicyPath = "gate.rego"

	out, err := NewRenderer().RenderWithTemplates("", FileNameGateTemplate, report)
	require.NoError(t, err)
	assert.Contains(t, out, "Policy: gate.rego")
	assert.Contains(t, out, "No image is eligible for promotion.")
	assert.NotContains(t, out, "Images to promote")
}

func TestRenderRun(t *testing.T) {
	data := models.ReportData{
		RunID:  "0123456789abcdef",
		Config: "nightly",
		Cases: []models.CaseReport{
			{Image: "mhubai/imga:1.0", Workflow: "wf1", DataSample: "s1", StructureMatch: true, ContentMatch: true},
			{Image: "mhubai/imgb:1.0", Workflow: "wf1", DataSample: "s1", ErrorKind: "runner"},
		},
		Summary: models.RunSummary{TotalCount: 2, PassedCount: 1, AbortedCount: 1},
	}
	out, err := NewRenderer().RenderWithTemplates("", FileNameRunTemplate, data)
	require.NoError(t, err)
	assert.Contains(t, out, "## Test run `01234567` (nightly)")
	assert.Contains(t, out, "1/2 passed, 0 failed, 1 aborted.")
	assert.Contains(t, out, "| `mhubai/imgb:1.0` | wf1 | s1 | false | false | runner |")
}

func TestRenderWithTemplates_Custom(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileNameGateTemplate),
		[]byte(`{{ range .Promote }}{{ . | upper }};{{ end }}`), 0o644))

	out, err := NewRenderer().RenderWithTemplates(dir, FileNameGateTemplate, gateReport())
	require.NoError(t, err)
	assert.Equal(t, "MHUBAI/IMGA:1.0;MHUBAI/BASE:1.0;", out)

	_, err = NewRenderer().RenderWithTemplates(dir, "missing.md.tmpl", nil)
	assert.Error(t, err)
}
