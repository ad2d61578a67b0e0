package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// dockerAPI is the subset of the Engine API client used to run a pipeline
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// APIRunner runs pipelines through the Docker Engine API, no CLI required
type APIRunner struct {
	Verbose bool

	Stdout io.Writer
	Stderr io.Writer

	client dockerAPI
}

// Ensure APIRunner implements Runner
var _ Runner = (*APIRunner)(nil)

func NewAPIRunner(verbose bool) (*APIRunner, error) {
	cli, err := docker.NewClientWithOpts(docker.FromEnv, docker.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &APIRunner{
		Verbose: verbose,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		client:  cli,
	}, nil
}

func (r *APIRunner) Run(ctx context.Context, inv Invocation) error {
	l := logger.WithField("image", inv.Image)
	l.Info("Creating pipeline container...")

	hostConfig := &container.HostConfig{}
	for _, m := range inv.Mounts {
		hostConfig.Binds = append(hostConfig.Binds, m.Bind())
	}
	if inv.GPU {
		// equivalent of "--gpus all"
		hostConfig.Resources.DeviceRequests = []container.DeviceRequest{{
			Count:        -1,
			Capabilities: [][]string{{"gpu"}},
		}}
	}

	created, err := r.client.ContainerCreate(ctx, &container.Config{
		Image: inv.Image,
		Cmd:   inv.Args,
	}, hostConfig, nil, nil, "")
	if err != nil {
		return fmt.Errorf("%w: failed to create container for %s: %v", ErrRunnerFailure, inv.Image, err)
	}
	id := created.ID
	defer func() {
		if err := r.client.ContainerRemove(context.WithoutCancel(ctx), id, container.RemoveOptions{Force: true}); err != nil {
			l.WithField("container", id).WithField("error", err).Warn("Failed to remove container")
		}
	}()

	if err := r.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("%w: failed to start container for %s: %v", ErrRunnerFailure, inv.Image, err)
	}
	l.WithField("container", id).Info("Running pipeline...")

	if r.Verbose {
		go r.streamLogs(ctx, id)
	}

	statusCh, errCh := r.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%w: failed to wait for container %s: %v", ErrRunnerFailure, id, err)
		}
	case status := <-statusCh:
		if status.Error != nil {
			return fmt.Errorf("%w: %s: %s", ErrRunnerFailure, inv.Image, status.Error.Message)
		}
		if status.StatusCode != 0 {
			return fmt.Errorf("%w: %s exited with code %d", ErrRunnerFailure, inv.Image, status.StatusCode)
		}
	}

	l.Info("Pipeline finished.")
	return nil
}

func (r *APIRunner) streamLogs(ctx context.Context, id string) {
	rc, err := r.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		logger.WithField("container", id).WithField("error", err).Warn("Failed to attach to container logs")
		return
	}
	defer func() {
		_ = rc.Close()
	}()
	if _, err := stdcopy.StdCopy(r.Stdout, r.Stderr, rc); err != nil {
		logger.WithField("container", id).WithField("error", err).Debug("Log stream ended")
	}
}
