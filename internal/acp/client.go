// Package acp implements the ACP Client: it owns exactly one child agent
// process speaking the Agent Client Protocol over stdin/stdout, using
// github.com/coder/acp-go-sdk for the wire protocol, and implements the
// callbacks the agent invokes (permission requests, file read/write,
// terminal create/read/exit/kill).
package acp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	acpsdk "github.com/coder/acp-go-sdk"

	"github.com/baton-gateway/baton/internal/gateway"
	"github.com/baton-gateway/baton/internal/logging"
	"github.com/baton-gateway/baton/internal/planfmt"
)

var _ acpsdk.Client = (*Client)(nil)
var _ gateway.ACPClient = (*Client)(nil)

// Client is one session's ACP peer: the launched agent subprocess, the SDK
// connection, and the callback state the agent drives.
type Client struct {
	projectPath string
	launch      LaunchConfig
	permission  gateway.PermissionHandler
	logger      *logging.Logger

	terminals *terminalManager

	mu            sync.Mutex
	conn          *acpsdk.ClientSideConnection
	cmd           *exec.Cmd
	container     *containerProcess
	sessionID     acpsdk.SessionId
	responseText  strings.Builder
	plan          *planfmt.Snapshot
	modes         []gateway.Option
	models        []gateway.Option
	currentModeID string
	currentModel  string
	toolCallTitle map[string]string
}

// New builds a Client bound to one session's project path, launch
// configuration, and permission-request handler. Call Start to spawn the
// agent and perform the ACP handshake.
func New(projectPath string, launch LaunchConfig, permission gateway.PermissionHandler, logger *logging.Logger) *Client {
	return &Client{
		projectPath:   projectPath,
		launch:        launch,
		permission:    permission,
		logger:        logger,
		terminals:     newTerminalManager(),
		toolCallTitle: make(map[string]string),
	}
}

// Start spawns the child agent process, performs the ACP handshake
// advertising filesystem and terminal capabilities, and creates one ACP
// session rooted at projectPath.
func (c *Client) Start(ctx context.Context) error {
	resolved, err := ResolveLaunch(c.launch, c.projectPath)
	if err != nil {
		return fmt.Errorf("resolve launch: %w", err)
	}

	var stdin io.Writer
	var stdout io.Reader

	if c.launch.Container != nil {
		proc, err := startContainer(ctx, c.launch.Container, resolved)
		if err != nil {
			return fmt.Errorf("start container agent: %w", err)
		}
		c.mu.Lock()
		c.container = proc
		c.mu.Unlock()
		stdin, stdout = proc.stdin, proc.stdout
	} else {
		cmd := exec.Command(resolved.Command, resolved.Args...)
		cmd.Dir = resolved.Cwd
		cmd.Env = os.Environ()
		for k, v := range resolved.Env {
			cmd.Env = append(cmd.Env, k+"="+os.ExpandEnv(v))
		}
		cmd.Stderr = os.Stderr

		stdinPipe, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
		stdoutPipe, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("stdout pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("spawn agent %q: %w", resolved.Command, err)
		}

		c.mu.Lock()
		c.cmd = cmd
		c.mu.Unlock()
		stdin, stdout = stdinPipe, stdoutPipe
	}

	conn := acpsdk.NewClientSideConnection(c, stdin, stdout)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	initResp, err := conn.Initialize(ctx, acpsdk.InitializeRequest{
		ProtocolVersion: acpsdk.ProtocolVersionNumber,
		ClientCapabilities: acpsdk.ClientCapabilities{
			Fs: acpsdk.FileSystemCapability{
				ReadTextFile:  true,
				WriteTextFile: true,
			},
			Terminal: true,
		},
		ClientInfo: &acpsdk.Implementation{Name: "baton", Version: "0.1.0"},
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	c.logger.Info(fmt.Sprintf("acp agent initialized, protocol version %v", initResp.ProtocolVersion))

	resp, err := conn.NewSession(ctx, acpsdk.NewSessionRequest{
		Cwd:        resolved.Cwd,
		McpServers: []acpsdk.McpServer{},
	})
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}

	c.mu.Lock()
	c.sessionID = resp.SessionId
	if resp.Modes != nil {
		c.currentModeID = string(resp.Modes.CurrentModeId)
		c.modes = make([]gateway.Option, len(resp.Modes.AvailableModes))
		for i, m := range resp.Modes.AvailableModes {
			c.modes[i] = gateway.Option{ID: string(m.Id), Name: m.Name}
		}
	}
	if resp.Models != nil {
		c.currentModel = string(resp.Models.CurrentModelId)
		c.models = make([]gateway.Option, len(resp.Models.AvailableModels))
		for i, m := range resp.Models.AvailableModels {
			c.models[i] = gateway.Option{ID: string(m.ModelId), Name: m.Name}
		}
	}
	c.mu.Unlock()

	c.logger.WithSession(string(resp.SessionId)).Info("acp agent session started")
	return nil
}

// SendPrompt sends text to the agent and blocks until the prompt turn
// completes (or ctx expires), returning the concatenation of all
// agent_message_chunk text observed in between.
func (c *Client) SendPrompt(ctx context.Context, text string) (gateway.PromptResponse, error) {
	return c.doPrompt(ctx, text)
}

// SendCommand is semantically identical to SendPrompt; ACP has no
// separate wire-level "command" request, so a dispatched command reaches
// the agent as a normal prompt turn.
func (c *Client) SendCommand(ctx context.Context, text string) (gateway.PromptResponse, error) {
	return c.doPrompt(ctx, text)
}

func (c *Client) doPrompt(ctx context.Context, text string) (gateway.PromptResponse, error) {
	c.mu.Lock()
	conn := c.conn
	sessionID := c.sessionID
	c.responseText.Reset()
	c.mu.Unlock()

	if conn == nil {
		return gateway.PromptResponse{Success: false, Message: "agent not started"}, fmt.Errorf("acp client not started")
	}

	resp, err := conn.Prompt(ctx, acpsdk.PromptRequest{
		SessionId: sessionID,
		Prompt:    []acpsdk.ContentBlock{acpsdk.TextBlock(text)},
	})

	c.mu.Lock()
	message := c.responseText.String()
	c.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return gateway.PromptResponse{Success: false, Message: message}, nil
		}
		return gateway.PromptResponse{Success: false, Message: fmt.Sprintf("agent error: %v", err)}, err
	}

	if resp.StopReason == acpsdk.StopReasonCancelled {
		return gateway.PromptResponse{Success: true, Message: "[Completed: cancelled]"}, nil
	}
	return gateway.PromptResponse{Success: true, Message: message}, nil
}

// Cancel sends a cancel notification for the in-flight prompt turn, a
// no-op if the agent was never started.
func (c *Client) Cancel(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	sessionID := c.sessionID
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Cancel(ctx, acpsdk.CancelNotification{SessionId: sessionID}); err != nil {
		c.logger.WithError(err).Warn("cancel notification failed")
	}
}

// SetMode asks the agent to switch its session mode.
func (c *Client) SetMode(ctx context.Context, modeID string) (bool, string) {
	c.mu.Lock()
	conn := c.conn
	sessionID := c.sessionID
	c.mu.Unlock()
	if conn == nil {
		return false, "agent not started"
	}
	if _, err := conn.SetSessionMode(ctx, acpsdk.SetSessionModeRequest{
		SessionId: sessionID,
		ModeId:    acpsdk.SessionModeId(modeID),
	}); err != nil {
		return false, "not supported"
	}
	c.mu.Lock()
	c.currentModeID = modeID
	c.mu.Unlock()
	return true, ""
}

// SetModel asks the agent to switch its active model.
func (c *Client) SetModel(ctx context.Context, modelID string) (bool, string) {
	c.mu.Lock()
	conn := c.conn
	sessionID := c.sessionID
	c.mu.Unlock()
	if conn == nil {
		return false, "agent not started"
	}
	if _, err := conn.SetSessionModel(ctx, acpsdk.SetSessionModelRequest{
		SessionId: sessionID,
		ModelId:   acpsdk.ModelId(modelID),
	}); err != nil {
		return false, "not supported"
	}
	c.mu.Lock()
	c.currentModel = modelID
	c.mu.Unlock()
	return true, ""
}

// AgentStatus reports the child process's liveness.
func (c *Client) AgentStatus() gateway.AgentStatus {
	c.mu.Lock()
	cmd := c.cmd
	container := c.container
	c.mu.Unlock()

	if container != nil {
		return gateway.AgentStatus{PID: container.pid(), Running: container.running()}
	}
	if cmd == nil || cmd.Process == nil {
		return gateway.AgentStatus{}
	}
	running := cmd.ProcessState == nil
	return gateway.AgentStatus{PID: cmd.Process.Pid, Running: running}
}

// PlanStatus returns a copy-on-read snapshot of the last plan the agent
// reported, or nil if it never sent one.
func (c *Client) PlanStatus() *planfmt.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.plan == nil {
		return nil
	}
	cp := *c.plan
	cp.Entries = append([]planfmt.Entry(nil), c.plan.Entries...)
	return &cp
}

func (c *Client) AvailableModes() []gateway.Option {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]gateway.Option(nil), c.modes...)
}

func (c *Client) AvailableModels() []gateway.Option {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]gateway.Option(nil), c.models...)
}

func (c *Client) CurrentModeID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentModeID
}

func (c *Client) CurrentModelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentModel
}

// Stop kills the child agent process and drops the connection.
func (c *Client) Stop() {
	c.mu.Lock()
	cmd := c.cmd
	container := c.container
	c.cmd = nil
	c.container = nil
	c.conn = nil
	c.mu.Unlock()

	if container != nil {
		_ = container.kill()
		return
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}
}

// --- acpsdk.Client callbacks (agent -> client) ---

func (c *Client) SessionUpdate(ctx context.Context, params acpsdk.SessionNotification) error {
	u := params.Update

	switch {
	case u.AgentMessageChunk != nil:
		if u.AgentMessageChunk.Content.Text != nil {
			c.mu.Lock()
			c.responseText.WriteString(u.AgentMessageChunk.Content.Text.Text)
			c.mu.Unlock()
		}

	case u.ToolCall != nil:
		c.mu.Lock()
		c.toolCallTitle[string(u.ToolCall.ToolCallId)] = u.ToolCall.Title
		c.mu.Unlock()

	case u.ToolCallUpdate != nil:
		if u.ToolCallUpdate.Status != nil && *u.ToolCallUpdate.Status == acpsdk.ToolCallStatusCompleted {
			c.mu.Lock()
			delete(c.toolCallTitle, string(u.ToolCallUpdate.ToolCallId))
			c.mu.Unlock()
		}

	case u.Plan != nil:
		entries := make([]planfmt.Entry, len(u.Plan.Entries))
		for i, e := range u.Plan.Entries {
			entries[i] = planfmt.Entry{
				Content:  e.Content,
				Status:   planfmt.Normalize(string(e.Status)),
				Priority: string(e.Priority),
			}
		}
		counts, current := planfmt.Summarize(entries)
		snapshot := &planfmt.Snapshot{
			Entries:   entries,
			UpdatedAt: time.Now().UnixNano(),
			Counts:    counts,
			Current:   current,
			Summary:   planfmt.SummaryLine(counts),
		}
		c.mu.Lock()
		c.plan = snapshot
		c.mu.Unlock()

	case u.AvailableCommandsUpdate != nil:
		// Slash-command discovery; the dispatcher owns the gateway's own
		// fixed command set and does not need the agent's.

	case u.AgentThoughtChunk != nil:
		// Thoughts are not surfaced to chat.
	}

	return nil
}

func (c *Client) RequestPermission(ctx context.Context, params acpsdk.RequestPermissionRequest) (acpsdk.RequestPermissionResponse, error) {
	options := make([]gateway.Option, len(params.Options))
	for i, o := range params.Options {
		options[i] = gateway.Option{ID: string(o.OptionId), Name: o.Name}
	}

	optionID, err := c.permission(ctx, string(params.ToolCall.ToolCallId), options, params)
	if err != nil {
		return acpsdk.RequestPermissionResponse{}, err
	}

	return acpsdk.RequestPermissionResponse{
		Outcome: acpsdk.RequestPermissionOutcome{
			Selected: &acpsdk.RequestPermissionOutcomeSelected{
				OptionId: acpsdk.PermissionOptionId(optionID),
				Outcome:  "selected",
			},
		},
	}, nil
}

func (c *Client) ReadTextFile(ctx context.Context, params acpsdk.ReadTextFileRequest) (acpsdk.ReadTextFileResponse, error) {
	path, err := c.sandboxPath(params.Path)
	if err != nil {
		return acpsdk.ReadTextFileResponse{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return acpsdk.ReadTextFileResponse{}, fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)

	if params.Line != nil || params.Limit != nil {
		lines := strings.Split(content, "\n")
		start := 0
		if params.Line != nil && *params.Line > 0 {
			start = *params.Line - 1
			if start > len(lines) {
				start = len(lines)
			}
		}
		end := len(lines)
		if params.Limit != nil && *params.Limit > 0 && start+*params.Limit < end {
			end = start + *params.Limit
		}
		content = strings.Join(lines[start:end], "\n")
	}

	return acpsdk.ReadTextFileResponse{Content: content}, nil
}

func (c *Client) WriteTextFile(ctx context.Context, params acpsdk.WriteTextFileRequest) (acpsdk.WriteTextFileResponse, error) {
	path, err := c.sandboxPath(params.Path)
	if err != nil {
		return acpsdk.WriteTextFileResponse{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return acpsdk.WriteTextFileResponse{}, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(params.Content), 0o644); err != nil {
		return acpsdk.WriteTextFileResponse{}, fmt.Errorf("write %s: %w", path, err)
	}
	return acpsdk.WriteTextFileResponse{}, nil
}

// sandboxPath resolves path against the session's project directory and
// rejects anything that would escape it.
func (c *Client) sandboxPath(path string) (string, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(c.projectPath, full)
	}
	resolved, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	root, err := filepath.Abs(c.projectPath)
	if err != nil {
		return "", fmt.Errorf("resolve project path: %w", err)
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes project directory", path)
	}
	return resolved, nil
}

func (c *Client) CreateTerminal(ctx context.Context, params acpsdk.CreateTerminalRequest) (acpsdk.CreateTerminalResponse, error) {
	id, err := c.terminals.create(params.Command, params.Args, params.Cwd)
	if err != nil {
		return acpsdk.CreateTerminalResponse{}, err
	}
	return acpsdk.CreateTerminalResponse{TerminalId: acpsdk.TerminalId(id)}, nil
}

func (c *Client) TerminalOutput(ctx context.Context, params acpsdk.TerminalOutputRequest) (acpsdk.TerminalOutputResponse, error) {
	output, truncated, exitCode, signal, err := c.terminals.output(string(params.TerminalId))
	if err != nil {
		return acpsdk.TerminalOutputResponse{}, err
	}
	var exitStatus *acpsdk.TerminalExitStatus
	if exitCode != nil || signal != nil {
		exitStatus = &acpsdk.TerminalExitStatus{ExitCode: exitCode, Signal: signal}
	}
	return acpsdk.TerminalOutputResponse{Output: output, Truncated: truncated, ExitStatus: exitStatus}, nil
}

func (c *Client) WaitForTerminalExit(ctx context.Context, params acpsdk.WaitForTerminalExitRequest) (acpsdk.WaitForTerminalExitResponse, error) {
	code, signal, err := c.terminals.waitForExit(string(params.TerminalId))
	if err != nil {
		return acpsdk.WaitForTerminalExitResponse{}, err
	}
	return acpsdk.WaitForTerminalExitResponse{ExitCode: &code, Signal: signal}, nil
}

func (c *Client) KillTerminalCommand(ctx context.Context, params acpsdk.KillTerminalCommandRequest) (acpsdk.KillTerminalCommandResponse, error) {
	_ = c.terminals.kill(string(params.TerminalId))
	return acpsdk.KillTerminalCommandResponse{}, nil
}

func (c *Client) ReleaseTerminal(ctx context.Context, params acpsdk.ReleaseTerminalRequest) (acpsdk.ReleaseTerminalResponse, error) {
	c.terminals.release(string(params.TerminalId))
	return acpsdk.ReleaseTerminalResponse{}, nil
}
