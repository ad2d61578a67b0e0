package models

import (
	"errors"

	"github.com/gh-nvat/pipecheck/src/pkg/pipeline"
)

var (
	// ErrEnvironment indicates a missing file or directory required as a precondition
	ErrEnvironment = errors.New("environment error")
	// ErrRunnerFailure indicates the pipeline process could not start or exited nonzero
	ErrRunnerFailure = pipeline.ErrRunnerFailure
	// ErrComparison indicates a file could not be read or parsed during comparison
	ErrComparison = errors.New("comparison error")
	// ErrConfigurationMismatch indicates configuration or ledger data with an unexpected schema
	ErrConfigurationMismatch = errors.New("configuration mismatch")
)

// ErrorKind classifies the failure that aborted the evaluation of a test case
type ErrorKind string

const (
	ERROR_KIND_NONE          ErrorKind = ""
	ERROR_KIND_ENVIRONMENT   ErrorKind = "environment"
	ERROR_KIND_RUNNER        ErrorKind = "runner"
	ERROR_KIND_COMPARISON    ErrorKind = "comparison"
	ERROR_KIND_CONFIGURATION ErrorKind = "configuration"
)

// ClassifyError maps an error onto the taxonomy, defaulting to environment
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ERROR_KIND_NONE
	case errors.Is(err, ErrRunnerFailure):
		return ERROR_KIND_RUNNER
	case errors.Is(err, ErrComparison):
		return ERROR_KIND_COMPARISON
	case errors.Is(err, ErrConfigurationMismatch):
		return ERROR_KIND_CONFIGURATION
	default:
		return ERROR_KIND_ENVIRONMENT
	}
}
