package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// ExecRunner runs pipelines through the docker CLI
type ExecRunner struct {
	Binary  string // defaults to "docker"
	Verbose bool   // stream container output instead of discarding it

	Stdout io.Writer
	Stderr io.Writer
}

// Ensure ExecRunner implements Runner
var _ Runner = (*ExecRunner)(nil)

func NewExecRunner(verbose bool) *ExecRunner {
	return &ExecRunner{
		Binary:  DOCKER_BINARY,
		Verbose: verbose,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func (r *ExecRunner) Run(ctx context.Context, inv Invocation) error {
	binary := r.Binary
	if binary == "" {
		binary = DOCKER_BINARY
	}
	argv := inv.Argv()
	logger.WithField("image", inv.Image).WithField("command", binary+" "+strings.Join(argv, " ")).Info("Running pipeline...")

	cmd := exec.CommandContext(ctx, binary, argv...)

	// Keep the tail of stderr for the error message even when not streaming
	var stderr bytes.Buffer
	if r.Verbose {
		cmd.Stdout = r.Stdout
		cmd.Stderr = io.MultiWriter(r.Stderr, &stderr)
	} else {
		cmd.Stdout = io.Discard
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: %s exited with code %d\nStderr: %s",
				ErrRunnerFailure, inv.Image, exitErr.ExitCode(), tail(stderr.String(), 2048))
		}
		return fmt.Errorf("%w: failed to start %s: %v", ErrRunnerFailure, binary, err)
	}

	logger.WithField("image", inv.Image).Info("Pipeline finished.")
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
