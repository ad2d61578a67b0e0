package models

import (
	"fmt"
	"time"

	"github.com/gh-nvat/pipecheck/src/pkg/pipeline"
)

// TestCase is one (image, workflow, data sample) combination.
// Built once by the matrix builder and never mutated afterwards.
type TestCase struct {
	ImageRef     string // e.g. "mhubai/totalsegmentator:cuda12.0"
	ImageName    string // e.g. "totalsegmentator"
	WorkflowName string
	DataSampleID string
	ConfigRef    string

	RunCommand pipeline.Invocation

	InputPath     string
	OutputPath    string
	ReferencePath string
}

// Key identifies the case in logs
func (tc TestCase) Key() string {
	return fmt.Sprintf("%s/%s/%s", tc.ImageRef, tc.WorkflowName, tc.DataSampleID)
}

// ComparisonOutcome is the immutable result of evaluating one TestCase
type ComparisonOutcome struct {
	StructureMatch bool
	ContentMatch   bool
	ErrorKind      ErrorKind
	Err            error // transient detail, never persisted
}

// Aborted reports whether evaluation stopped on an unrecoverable error
func (o ComparisonOutcome) Aborted() bool {
	return o.ErrorKind != ERROR_KIND_NONE
}

// Passed reports whether both checks succeeded
func (o ComparisonOutcome) Passed() bool {
	return !o.Aborted() && o.StructureMatch && o.ContentMatch
}

// NewFailedOutcome builds an aborted outcome, both flags conservatively false
func NewFailedOutcome(err error) ComparisonOutcome {
	return ComparisonOutcome{
		ErrorKind: ClassifyError(err),
		Err:       err,
	}
}

// CaseResult pairs a TestCase with its outcome
type CaseResult struct {
	Case     TestCase
	Outcome  ComparisonOutcome
	Duration time.Duration
}

// Row converts the result into the persisted ledger tuple
func (r CaseResult) Row() LedgerRow {
	return LedgerRow{
		ImageRef:       r.Case.ImageRef,
		WorkflowName:   r.Case.WorkflowName,
		DataSampleID:   r.Case.DataSampleID,
		StructureMatch: r.Outcome.StructureMatch && !r.Outcome.Aborted(),
		ContentMatch:   r.Outcome.ContentMatch && !r.Outcome.Aborted(),
	}
}
