// Package container wraps github.com/docker/docker so the ACP Client can
// optionally launch an agent subprocess inside a container instead of a
// raw host process, attaching to its stdio for the ACP wire protocol.
package container

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/baton-gateway/baton/internal/logging"
)

// Config describes the container an agent should be launched in.
type Config struct {
	Image      string
	Command    []string
	Args       []string
	Env        map[string]string
	WorkingDir string
	Labels     map[string]string
	Host       string // Docker daemon address; empty uses the environment default.
}

// Client wraps the Docker SDK client for the narrow set of operations the
// ACP container launch path needs: create-interactive, start, attach,
// kill, inspect.
type Client struct {
	cli    *client.Client
	logger *logging.Logger
}

// NewClient dials the Docker daemon (local socket, or cfg host override).
func NewClient(host string, logger *logging.Logger) (*Client, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Client{cli: cli, logger: logger}, nil
}

// AttachResult carries the stdio streams an ACP connection needs.
type AttachResult struct {
	Stdin  io.WriteCloser
	Stdout io.Reader
	Conn   net.Conn
}

// Close releases the attach's underlying resources.
func (a *AttachResult) Close() error {
	if a.Stdin != nil {
		_ = a.Stdin.Close()
	}
	if a.Conn != nil {
		_ = a.Conn.Close()
	}
	return nil
}

// CreateAndStart creates a container with stdin attached for ACP's
// NDJSON framing and starts it, returning the container ID.
func (c *Client) CreateAndStart(ctx context.Context, cfg Config) (string, error) {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	cmd := append(append([]string(nil), cfg.Command...), cfg.Args...)

	containerCfg := &container.Config{
		Image:        cfg.Image,
		Cmd:          cmd,
		Env:          env,
		WorkingDir:   cfg.WorkingDir,
		Labels:       cfg.Labels,
		OpenStdin:    true,
		StdinOnce:    false,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false, // no TTY: ACP needs clean NDJSON framing
	}

	resp, err := c.cli.ContainerCreate(ctx, containerCfg, &container.HostConfig{}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = c.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container: %w", err)
	}

	return resp.ID, nil
}

// Attach connects to a running container's stdin/stdout for ACP framing.
func (c *Client) Attach(ctx context.Context, containerID string) (*AttachResult, error) {
	resp, err := c.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("attach container %s: %w", containerID, err)
	}

	stdinReader, stdinWriter := io.Pipe()
	go func() { _, _ = io.Copy(resp.Conn, stdinReader) }()

	return &AttachResult{Stdin: stdinWriter, Stdout: resp.Reader, Conn: resp.Conn}, nil
}

// Kill sends SIGKILL and removes the container.
func (c *Client) Kill(ctx context.Context, containerID string) error {
	if err := c.cli.ContainerKill(ctx, containerID, "SIGKILL"); err != nil {
		c.logger.WithError(err).Warn("container kill failed")
	}
	return c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// Inspect reports whether the container is still running.
func (c *Client) Inspect(ctx context.Context, containerID string) (running bool, err error) {
	info, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return false, err
	}
	return info.State != nil && info.State.Running, nil
}
