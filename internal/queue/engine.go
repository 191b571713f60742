// Package queue implements the Task Queue Engine: per-session FIFO,
// atomic enqueue under the session's lock, and the single-in-flight
// invariant. It holds no state of its own beyond the completion
// callback — it mutates the queue/state fields of the *gateway.Session
// values it is given.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/baton-gateway/baton/internal/gateway"
	"github.com/baton-gateway/baton/internal/logging"
	"github.com/baton-gateway/baton/internal/planfmt"
)

// CompletionCallback is invoked once per task, after processTask
// produces a response, from outside the session lock.
type CompletionCallback func(ctx context.Context, s *gateway.Session, t *gateway.Task, resp gateway.PromptResponse)

// Engine is the single, gateway-wide Task Queue Engine instance.
type Engine struct {
	callback CompletionCallback
	logger   *logging.Logger
}

// New builds an Engine bound to a single completion callback, per
// spec: "One instance per gateway; takes a completion callback."
func New(callback CompletionCallback, logger *logging.Logger) *Engine {
	return &Engine{callback: callback, logger: logger}
}

// Result is what Enqueue reports back to the caller (mirrors the
// dispatcher-facing {success, message, data} shape of spec §4.2).
type Result struct {
	Success  bool
	Message  string
	TaskID   string
	Position int // 0 on the fast path: nothing ahead of the new task
}

// Enqueue implements the spec's enqueue(session, content, type) contract.
func (e *Engine) Enqueue(ctx context.Context, s *gateway.Session, content string, typ gateway.TaskType) Result {
	task := gateway.NewTask(typ, content)

	s.Mu.Lock()
	fastPath := s.State == gateway.StateIdle && !s.IsProcessing && s.Current == nil && len(s.PendingInteractions) == 0
	if fastPath {
		s.Current = task
		s.IsProcessing = true
		s.State = gateway.StateRunning
	} else {
		s.Pending = append(s.Pending, task)
	}
	position := len(s.Pending)
	currentSnapshot := s.Current
	pendingPreview := previewTasks(s.Pending, 5)
	state := s.State
	s.Mu.Unlock()

	if fastPath {
		go e.processTask(ctx, s, task)
		return Result{Success: true, Message: "", TaskID: task.ID}
	}

	msg := buildQueuedMessage(state, position, currentSnapshot, pendingPreview)
	return Result{Success: true, Message: msg, TaskID: task.ID, Position: position}
}

func previewTasks(pending []*gateway.Task, n int) []*gateway.Task {
	if len(pending) <= n {
		return append([]*gateway.Task(nil), pending...)
	}
	return append([]*gateway.Task(nil), pending[:n]...)
}

func buildQueuedMessage(state gateway.State, position int, current *gateway.Task, preview []*gateway.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "queued at position %d", position)
	switch state {
	case gateway.StateWaitingConfirm:
		b.WriteString(" (waiting for confirmation, will auto-resume)")
	case gateway.StateStopped:
		b.WriteString(" (stopped; /reset required)")
	}
	if current != nil {
		fmt.Fprintf(&b, "; current: %q", truncate(current.Content, 60))
	}
	for i, t := range preview {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, truncate(t.Content, 60))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// processTask runs one task to completion, always invoking the
// completion callback and processNext on every exit path.
func (e *Engine) processTask(ctx context.Context, s *gateway.Session, t *gateway.Task) {
	e.logger.WithSession(s.ID).WithTask(t.ID).Debug("processing task")

	s.Mu.Lock()
	client := s.ACPClient
	s.Mu.Unlock()

	var resp gateway.PromptResponse
	var err error
	if client == nil {
		resp = gateway.PromptResponse{Success: false, Message: "agent not initialized"}
	} else {
		resp, err = e.invoke(ctx, client, t)
		if err != nil {
			resp = gateway.PromptResponse{Success: false, Message: fmt.Sprintf("agent error: %v", err)}
		}
	}

	resp.Message = e.attachPlanProgressPrefix(client, resp.Message)

	e.callback(ctx, s, t, resp)
	e.processNext(ctx, s)
}

func (e *Engine) invoke(ctx context.Context, client gateway.ACPClient, t *gateway.Task) (gateway.PromptResponse, error) {
	promptCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()
	if t.Type == gateway.TaskTypeCommand {
		return client.SendCommand(promptCtx, t.Content)
	}
	return client.SendPrompt(promptCtx, t.Content)
}

// attachPlanProgressPrefix prepends the compact plan summary ahead of the
// task's response text, idempotently.
func (e *Engine) attachPlanProgressPrefix(client gateway.ACPClient, message string) string {
	if client == nil {
		return message
	}
	plan := client.PlanStatus()
	if plan == nil || len(plan.Entries) == 0 {
		return message
	}
	prefix := planfmt.Prefix("Plan progress", plan.Entries)
	if prefix == "" || strings.HasPrefix(message, prefix) {
		return message
	}
	return prefix + "\n" + message
}

// processNext re-acquires the session lock and either starts the next
// pending task or returns the session to IDLE.
func (e *Engine) processNext(ctx context.Context, s *gateway.Session) {
	s.Mu.Lock()
	if s.State == gateway.StateWaitingConfirm || s.State == gateway.StateStopped {
		s.Mu.Unlock()
		return
	}
	if len(s.Pending) > 0 {
		next := s.Pending[0]
		s.Pending = s.Pending[1:]
		s.Current = next
		s.State = gateway.StateRunning
		s.Mu.Unlock()
		go e.processTask(ctx, s, next)
		return
	}
	s.Current = nil
	s.State = gateway.StateIdle
	s.IsProcessing = false
	s.Mu.Unlock()
}
