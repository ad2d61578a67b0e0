package pipeline

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "pipeline")

var (
	// ErrRunnerFailure indicates the pipeline process could not start or exited nonzero
	ErrRunnerFailure = errors.New("runner failure")
)

const (
	RUNNER_MODE_EXEC = "exec"
	RUNNER_MODE_API  = "api"

	DOCKER_BINARY = "docker"
)

// Runner executes one containerized pipeline run synchronously.
// A nonzero exit status must be reported as an error wrapping ErrRunnerFailure.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// NewRunner creates the runner for the given mode
func NewRunner(mode string, verbose bool) (Runner, error) {
	switch mode {
	case RUNNER_MODE_EXEC, "":
		return NewExecRunner(verbose), nil
	case RUNNER_MODE_API:
		return NewAPIRunner(verbose)
	default:
		return nil, fmt.Errorf("invalid runner mode: %s", mode)
	}
}
