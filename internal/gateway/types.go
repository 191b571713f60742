// Package gateway implements the Session Manager: the session table, the
// per-conversation repo cursor, per-session locks, and the pending
// interaction map.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baton-gateway/baton/internal/planfmt"
)

// TaskType distinguishes a free-form prompt from a parsed slash-command.
type TaskType string

const (
	TaskTypePrompt  TaskType = "prompt"
	TaskTypeCommand TaskType = "command"
)

// Task is an immutable unit of work queued against a session.
type Task struct {
	ID        string
	Type      TaskType
	Content   string
	Timestamp time.Time
}

// NewTask builds a Task with a fresh id and timestamp.
func NewTask(typ TaskType, content string) *Task {
	return &Task{ID: uuid.NewString(), Type: typ, Content: content, Timestamp: time.Now()}
}

// State is a session's position in the state machine of spec invariant 4.
type State string

const (
	StateIdle            State = "IDLE"
	StateRunning         State = "RUNNING"
	StateWaitingConfirm  State = "WAITING_CONFIRM"
	StateStopped         State = "STOPPED"
)

// InteractionKind distinguishes the four flavors of suspended question a
// session can be waiting on.
type InteractionKind string

const (
	InteractionPermission     InteractionKind = "permission"
	InteractionRepoSelection  InteractionKind = "repo_selection"
	InteractionModeSelection  InteractionKind = "mode_selection"
	InteractionModelSelection InteractionKind = "model_selection"
)

// Option is one selectable choice offered by an Interaction.
type Option struct {
	ID   string
	Name string
}

// Interaction is a one-shot, externally-resolved question raised either by
// the agent (permission) or by the gateway itself (selection prompts).
type Interaction struct {
	ID               string
	Kind             InteractionKind
	Title            string
	Options          []Option
	CreatedAt        time.Time
	OriginalRequest  any

	mu       sync.Mutex
	done     bool
	resolve  func(optionID string)
	reject   func(reason string)
}

// NewInteraction builds an Interaction; resolve/reject are invoked exactly
// once, whichever happens first.
func NewInteraction(kind InteractionKind, title string, options []Option, resolve func(string), reject func(string)) *Interaction {
	return &Interaction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     title,
		Options:   options,
		CreatedAt: time.Now(),
		resolve:   resolve,
		reject:    reject,
	}
}

// Resolve fulfills the interaction with the chosen option, a no-op if
// already resolved or rejected.
func (in *Interaction) Resolve(optionID string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.done {
		return
	}
	in.done = true
	if in.resolve != nil {
		in.resolve(optionID)
	}
}

// Reject fails the interaction with reason, a no-op if already settled.
func (in *Interaction) Reject(reason string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.done {
		return
	}
	in.done = true
	if in.reject != nil {
		in.reject(reason)
	}
}

// PromptResponse is the outcome of sending a prompt or command to the ACP
// client.
type PromptResponse struct {
	Success bool
	Message string
}

// AgentStatus is the ACP client's process-level status snapshot.
type AgentStatus struct {
	PID     int
	Running bool
}

// ACPClient is the subset of the ACP Client's contract the Session Manager
// and Task Queue Engine depend on. internal/acp.Client implements it.
type ACPClient interface {
	Start(ctx context.Context) error
	SendPrompt(ctx context.Context, text string) (PromptResponse, error)
	SendCommand(ctx context.Context, text string) (PromptResponse, error)
	Cancel(ctx context.Context)
	SetMode(ctx context.Context, modeID string) (bool, string)
	SetModel(ctx context.Context, modelID string) (bool, string)
	AgentStatus() AgentStatus
	PlanStatus() *planfmt.Snapshot
	AvailableModes() []Option
	AvailableModels() []Option
	CurrentModeID() string
	CurrentModelID() string
	Stop()
}

// PermissionHandler is invoked by the ACP client when the agent asks the
// user to approve a tool call. It returns the chosen option id.
type PermissionHandler func(ctx context.Context, title string, options []Option, originalRequest any) (optionID string, err error)
