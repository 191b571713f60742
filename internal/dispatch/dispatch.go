// Package dispatch implements the Command Dispatcher: stateless parsing
// of inbound chat text into either a control-plane slash-command or a
// data-plane prompt, routed to the Session Manager and Task Queue Engine.
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/baton-gateway/baton/internal/gateway"
	"github.com/baton-gateway/baton/internal/queue"
)

// Dispatcher routes one inbound chat message to the Session Manager and
// Task Queue Engine.
type Dispatcher struct {
	manager *gateway.Manager
	engine  *queue.Engine
}

// New builds a Dispatcher bound to a Session Manager and Task Queue
// Engine.
func New(manager *gateway.Manager, engine *queue.Engine) *Dispatcher {
	return &Dispatcher{manager: manager, engine: engine}
}

// Result is what the adapter renders back to the chat thread.
type Result struct {
	Success bool
	Message string
}

// Dispatch parses text and executes it, applying preemption rule 1:
// a prompt first tries to resolve any pending interaction before it is
// enqueued.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, contextID, text string) (Result, error) {
	cmd, args, isCommand := parseSlashCommand(text)
	if isCommand {
		return d.dispatchCommand(ctx, userID, contextID, cmd, args)
	}
	return d.dispatchPrompt(ctx, userID, contextID, text)
}

func (d *Dispatcher) dispatchPrompt(ctx context.Context, userID, contextID, text string) (Result, error) {
	session, err := d.manager.GetOrCreateSession(ctx, userID, contextID)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("could not start session: %v", err)}, nil
	}

	session.Mu.Lock()
	hasPending := len(session.PendingInteractions) > 0
	session.Mu.Unlock()

	if hasPending {
		if resp, ok := d.manager.TryResolveInteraction(ctx, session.ID, text); ok {
			return Result{Success: resp.Success, Message: resp.Message}, nil
		}
	}

	res := d.engine.Enqueue(ctx, session, text, gateway.TaskTypePrompt)
	return Result{Success: res.Success, Message: res.Message}, nil
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, userID, contextID, cmd string, args []string) (Result, error) {
	switch cmd {
	case "repo":
		return d.cmdRepo(ctx, userID, contextID, args)
	case "current":
		return d.cmdCurrent(ctx, userID, contextID)
	case "stop":
		return d.cmdStop(ctx, userID, contextID, args)
	case "reset", "new":
		msg := d.manager.ResetSession(ctx, userID, contextID)
		return Result{Success: true, Message: msg}, nil
	case "mode":
		return d.cmdModeOrModel(ctx, userID, contextID, args, true)
	case "model":
		return d.cmdModeOrModel(ctx, userID, contextID, args, false)
	case "help":
		return Result{Success: true, Message: helpText()}, nil
	default:
		// parseSlashCommand only classifies recognized words as commands,
		// so this is unreachable; kept as a safe fallback.
		return Result{Success: false, Message: "unknown command /" + cmd}, nil
	}
}

func (d *Dispatcher) cmdRepo(ctx context.Context, userID, contextID string, args []string) (Result, error) {
	if len(args) == 0 {
		resp, err := d.manager.CreateRepoSelection(ctx, userID, contextID)
		if err != nil {
			return Result{}, err
		}
		return Result{Success: resp.Success, Message: resp.Message}, nil
	}

	arg := args[0]
	inv := d.manager.Repos()
	if idx, err := strconv.Atoi(arg); err == nil {
		if r, ok := inv.ByIndex(idx); ok {
			d.manager.SetCursor(userID, contextID, r.Path, r.Name)
			return Result{Success: true, Message: fmt.Sprintf("switched to repo %q", r.Name)}, nil
		}
		return Result{Success: false, Message: fmt.Sprintf("no repo at index %d", idx)}, nil
	}
	if r, ok := inv.ByName(arg); ok {
		d.manager.SetCursor(userID, contextID, r.Path, r.Name)
		return Result{Success: true, Message: fmt.Sprintf("switched to repo %q", r.Name)}, nil
	}
	return Result{Success: false, Message: fmt.Sprintf("unknown repo %q", arg)}, nil
}

func (d *Dispatcher) cmdCurrent(ctx context.Context, userID, contextID string) (Result, error) {
	status, err := d.manager.GetQueueStatus(ctx, userID, contextID)
	if err != nil {
		return Result{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "state: %s\nrepo: %s (%s)\n", status.State, status.RepoName, status.ProjectPath)
	if status.Current != nil {
		fmt.Fprintf(&b, "current: %q\n", status.Current.Content)
	}
	fmt.Fprintf(&b, "pending: %d\n", len(status.Pending))
	if status.Plan != nil {
		fmt.Fprintf(&b, "plan: %s\n", status.Plan.Summary)
	}
	return Result{Success: true, Message: b.String()}, nil
}

func (d *Dispatcher) cmdStop(ctx context.Context, userID, contextID string, args []string) (Result, error) {
	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	msg := d.manager.StopTask(ctx, userID, contextID, target)
	return Result{Success: true, Message: msg}, nil
}

func (d *Dispatcher) cmdModeOrModel(ctx context.Context, userID, contextID string, args []string, isMode bool) (Result, error) {
	session, err := d.manager.GetOrCreateSession(ctx, userID, contextID)
	if err != nil {
		return Result{}, err
	}

	if len(args) > 0 {
		session.Mu.Lock()
		client := session.ACPClient
		session.Mu.Unlock()
		if client == nil {
			return Result{Success: false, Message: "agent not initialized"}, nil
		}
		var ok bool
		var msg string
		if isMode {
			ok, msg = client.SetMode(ctx, args[0])
		} else {
			ok, msg = client.SetModel(ctx, args[0])
		}
		if !ok && msg == "" {
			msg = "not supported"
		}
		return Result{Success: ok, Message: msg}, nil
	}

	var resp gateway.PromptResponse
	if isMode {
		resp, err = d.manager.TriggerModeSelection(ctx, userID, contextID)
	} else {
		resp, err = d.manager.TriggerModelSelection(ctx, userID, contextID)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Success: resp.Success, Message: resp.Message}, nil
}

func helpText() string {
	return strings.Join([]string{
		"/repo [id|index] - list repos or switch",
		"/current - status",
		"/stop [id|all] - cancel current, remove a task, or stop everything",
		"/reset or /new - destroy the session",
		"/mode [name] - switch or select mode",
		"/model [name] - switch or select model",
		"/help - this message",
		"numeric selections accept both 0-based and 1-based indexes",
		"anything else is sent to the agent as a prompt",
	}, "\n")
}

// slashCommands is the fixed set the leading token is checked against.
var slashCommands = map[string]bool{
	"repo": true, "current": true, "stop": true, "reset": true, "new": true,
	"mode": true, "model": true, "help": true,
}

// parseSlashCommand splits a leading "/word ..." into (word, rest); the
// caller still falls back to treating unrecognized slash words as
// prompts.
func parseSlashCommand(text string) (cmd string, args []string, isCommand bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil, false
	}
	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	word := strings.ToLower(fields[0])
	if !slashCommands[word] {
		return "", nil, false
	}
	return word, fields[1:], true
}
