package acp

import (
	"context"
	"fmt"
	"io"

	"github.com/baton-gateway/baton/internal/acp/container"
	"github.com/baton-gateway/baton/internal/logging"
)

// ContainerConfig switches an ACP agent's launch from a host subprocess
// to a Docker container, per SPEC_FULL.md §4.1's domain-stack addition.
type ContainerConfig struct {
	Image  string
	Host   string // Docker daemon address; empty uses the environment default.
	Labels map[string]string
	Logger *logging.Logger
}

// containerProcess is the running container standing in for an
// os/exec.Cmd in Client.Start.
type containerProcess struct {
	client      *container.Client
	containerID string
	stdin       io.Writer
	stdout      io.Reader
}

func startContainer(ctx context.Context, cfg *ContainerConfig, resolved ResolvedLaunch) (*containerProcess, error) {
	cli, err := container.NewClient(cfg.Host, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("dial docker: %w", err)
	}

	id, err := cli.CreateAndStart(ctx, container.Config{
		Image:      cfg.Image,
		Command:    []string{resolved.Command},
		Args:       resolved.Args,
		Env:        resolved.Env,
		WorkingDir: resolved.Cwd,
		Labels:     cfg.Labels,
	})
	if err != nil {
		return nil, err
	}

	attached, err := cli.Attach(ctx, id)
	if err != nil {
		_ = cli.Kill(ctx, id)
		return nil, err
	}

	return &containerProcess{client: cli, containerID: id, stdin: attached.Stdin, stdout: attached.Stdout}, nil
}

func (p *containerProcess) kill() error {
	return p.client.Kill(context.Background(), p.containerID)
}

// pid has no meaning for a container; callers fall back to running().
func (p *containerProcess) pid() int {
	return 0
}

func (p *containerProcess) running() bool {
	running, err := p.client.Inspect(context.Background(), p.containerID)
	return err == nil && running
}
