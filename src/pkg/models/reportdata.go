package models

import "time"

// ReportData represents the complete report of one harness run
type ReportData struct {
	RunID     string    `json:"runId"`
	Config    string    `json:"config"`
	Timestamp time.Time `json:"timestamp"`

	// Concurrency used by the dispatcher, 1 means sequential
	Concurrency int  `json:"concurrency"`
	GPU         bool `json:"gpu"`

	// ImageRefs and WorkflowNames keep configuration order
	ImageRefs     []string `json:"imageRefs"`
	WorkflowNames []string `json:"workflowNames"`

	// Cases in completion order
	Cases []CaseReport `json:"cases"`

	Summary RunSummary `json:"summary"`
}

// CaseReport is the report entry of a single test case
type CaseReport struct {
	Image          string `json:"image"`
	Workflow       string `json:"workflow"`
	DataSample     string `json:"dataSample"`
	StructureMatch bool   `json:"dirtreeMatch"`
	ContentMatch   bool   `json:"outputMatch"`
	ErrorKind      string `json:"errorKind,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"` // transient detail, not written to the ledger
	DurationMs     int64  `json:"durationMs"`
}

// RunSummary counts outcomes of a run
type RunSummary struct {
	TotalCount   int `json:"totalCount"`
	PassedCount  int `json:"passedCount"`
	FailedCount  int `json:"failedCount"`  // completed, at least one check false
	AbortedCount int `json:"abortedCount"` // dropped from the ledger
}

// GateReport represents the aggregated promotion decision over a ledger folder
type GateReport struct {
	Timestamp   time.Time      `json:"timestamp"`
	LedgerDir   string         `json:"ledgerDir"`
	LedgerFiles []string       `json:"ledgerFiles"`
	Skipped     []string       `json:"skippedFiles,omitempty"`
	PolicyPath  string         `json:"policyPath,omitempty"`
	Verdicts    []ImageVerdict `json:"verdicts"`
	Promote     []string       `json:"promote"` // images eligible for push, base images included
}

// ReportTemplateData represents the data structure for template rendering
type ReportTemplateData struct {
	GateReport
	RenderedMarkdown string `json:"renderedMarkdown"`
}
