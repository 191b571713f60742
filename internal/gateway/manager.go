package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baton-gateway/baton/internal/eventbus"
	"github.com/baton-gateway/baton/internal/logging"
	"github.com/baton-gateway/baton/internal/repos"
)

const defaultConversation = "__default__"

// LaunchFactory constructs a fresh ACPClient for a session. It is supplied
// by main() so that this package never imports internal/acp (which in
// turn depends on gateway's PermissionHandler and Option types).
type LaunchFactory func(projectPath string, handler PermissionHandler) (ACPClient, error)

// Manager is the Session Manager: session table, conversation cursor,
// pending-interaction bookkeeping, and the permissionRequest/
// selectionPrompt event emitter.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // sessionKey -> Session
	cursors  map[string]string   // conversationKey -> projectPath
	names    map[string]string   // conversationKey -> repoName

	launch            LaunchFactory
	bus               eventbus.Bus
	inventory         *repos.Inventory
	permissionTimeout time.Duration
	logger            *logging.Logger
	defaultProject    string
}

// Config controls timeouts and collaborators the Manager needs.
type Config struct {
	PermissionTimeout time.Duration
	DefaultProjectPath string
}

// NewManager builds a Session Manager. launch is called lazily the first
// time a session needs its agent spawned.
func NewManager(cfg Config, launch LaunchFactory, bus eventbus.Bus, inventory *repos.Inventory, logger *logging.Logger) *Manager {
	timeout := cfg.PermissionTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		cursors:           make(map[string]string),
		names:             make(map[string]string),
		launch:            launch,
		bus:               bus,
		inventory:         inventory,
		permissionTimeout: timeout,
		logger:            logger,
		defaultProject:    cfg.DefaultProjectPath,
	}
}

func conversationKey(userID, contextID string) string {
	if contextID == "" {
		contextID = defaultConversation
	}
	return userID + ":" + contextID
}

func sessionKey(userID, contextID, projectPath string) string {
	if contextID == "" {
		return userID + ":" + projectPath
	}
	return userID + ":" + contextID + ":" + projectPath
}

// CurrentProjectPath resolves a conversation's cursor, falling back to the
// configured default project when the conversation has never switched
// repos.
func (m *Manager) CurrentProjectPath(userID, contextID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.cursors[conversationKey(userID, contextID)]; ok {
		return p
	}
	return m.defaultProject
}

func (m *Manager) currentRepoName(userID, contextID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.names[conversationKey(userID, contextID)]
}

// SetCursor moves a conversation's repo cursor. It never touches
// already-created sessions (invariant: conversation cursor is independent
// of the session table).
func (m *Manager) SetCursor(userID, contextID, projectPath, repoName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := conversationKey(userID, contextID)
	m.cursors[key] = projectPath
	m.names[key] = repoName
}

// Repos exposes the read-only repo inventory for the dispatcher's /repo
// command.
func (m *Manager) Repos() *repos.Inventory { return m.inventory }

// SessionSummary is the read-only view of a session the debug API exposes.
type SessionSummary struct {
	ID          string
	UserID      string
	ContextID   string
	ProjectPath string
	RepoName    string
	State       State
	CreatedAt   time.Time
}

// ListSessions snapshots every live session for the debug API's /sessions
// endpoint.
func (m *Manager) ListSessions() []SessionSummary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]SessionSummary, len(sessions))
	for i, s := range sessions {
		s.Mu.Lock()
		out[i] = SessionSummary{
			ID: s.ID, UserID: s.UserID, ContextID: s.ContextID,
			ProjectPath: s.ProjectPath, RepoName: s.RepoName,
			State: s.State, CreatedAt: s.CreatedAt,
		}
		s.Mu.Unlock()
	}
	return out
}

// SessionByID exposes a single session's queue status by its session id,
// used by the debug API's /sessions/:id/queue endpoint.
func (m *Manager) SessionByID(sessionID string) (QueueStatus, bool) {
	s := m.findSession(sessionID)
	if s == nil {
		return QueueStatus{}, false
	}
	s.Mu.Lock()
	status := QueueStatus{
		State: s.State, Current: s.Current,
		Pending: append([]*Task(nil), s.Pending...),
		RepoName: s.RepoName, ProjectPath: s.ProjectPath,
	}
	client := s.ACPClient
	s.Mu.Unlock()
	if client != nil {
		status.AgentStatus = client.AgentStatus()
		if plan := client.PlanStatus(); plan != nil {
			status.Plan = &planSnapshotView{Summary: plan.Summary, Total: plan.Counts.Total}
		}
	}
	return status, true
}

// getOrCreateSession looks up (or lazily creates) the session for this
// conversation's current project, spawning its ACP client on first use.
func (m *Manager) GetOrCreateSession(ctx context.Context, userID, contextID string) (*Session, error) {
	projectPath := m.CurrentProjectPath(userID, contextID)
	repoName := m.currentRepoName(userID, contextID)
	key := sessionKey(userID, contextID, projectPath)

	m.mu.Lock()
	s, exists := m.sessions[key]
	if !exists {
		s = newSession(userID, contextID, projectPath, repoName)
		m.sessions[key] = s
	}
	m.mu.Unlock()

	s.Mu.Lock()
	needsSpawn := s.ACPClient == nil
	s.Mu.Unlock()
	if !needsSpawn {
		return s, nil
	}

	handler := m.permissionHandler(s)
	client, err := m.launch(projectPath, handler)
	if err != nil {
		return nil, fmt.Errorf("spawn agent for session %s: %w", s.ID, err)
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("start agent for session %s: %w", s.ID, err)
	}

	s.Mu.Lock()
	s.ACPClient = client
	s.Mu.Unlock()
	return s, nil
}

// permissionHandler synthesizes the closure the ACP client invokes when
// the agent raises a requestPermission call.
func (m *Manager) permissionHandler(s *Session) PermissionHandler {
	return func(ctx context.Context, title string, options []Option, originalRequest any) (string, error) {
		resultCh := make(chan string, 1)

		requestID := uuid.NewString()
		interaction := NewInteraction(InteractionPermission, title, options,
			func(optionID string) { resultCh <- optionID },
			func(string) { resultCh <- fallbackOption(options) },
		)
		interaction.OriginalRequest = originalRequest
		interaction.ID = requestID

		s.Mu.Lock()
		if _, existing := s.soleInteraction(); existing != nil {
			existing.Reject("replaced by new interaction")
			s.PendingInteractions = make(map[string]*Interaction)
		}
		s.PendingInteractions[requestID] = interaction
		s.State = StateWaitingConfirm
		s.Mu.Unlock()

		m.bus.Publish(eventbus.Event{
			Kind:      eventbus.EventPermissionRequest,
			SessionID: s.ID,
			RequestID: requestID,
			UserID:    s.UserID,
			Title:     title,
			Options:   toEventOptions(options),
		})

		timer := time.AfterFunc(m.permissionTimeout, func() {
			s.Mu.Lock()
			if _, ok := s.PendingInteractions[requestID]; ok {
				delete(s.PendingInteractions, requestID)
			}
			s.Mu.Unlock()
			interaction.Resolve(fallbackOption(options))
		})
		defer timer.Stop()

		select {
		case optionID := <-resultCh:
			return optionID, nil
		case <-ctx.Done():
			return fallbackOption(options), ctx.Err()
		}
	}
}

// fallbackOption implements the permission-handler-error / timeout
// fallback policy: prefer an option named "deny" or "cancel", else the
// first option, else the literal "deny".
func fallbackOption(options []Option) string {
	for _, o := range options {
		n := strings.ToLower(o.Name)
		if strings.Contains(n, "deny") || strings.Contains(n, "cancel") {
			return o.ID
		}
	}
	if len(options) > 0 {
		return options[0].ID
	}
	return "deny"
}

func toEventOptions(options []Option) []eventbus.EventOption {
	out := make([]eventbus.EventOption, len(options))
	for i, o := range options {
		out[i] = eventbus.EventOption{ID: o.ID, Name: o.Name}
	}
	return out
}

// findSession scans the session table for the given session id.
func (m *Manager) findSession(sessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.ID == sessionID {
			return s
		}
	}
	return nil
}

// ResolveInteraction converts a numeric-or-named selection into a
// concrete optionId and resolves the matching pending interaction.
func (m *Manager) ResolveInteraction(ctx context.Context, sessionID, requestID, input string) (PromptResponse, error) {
	s := m.findSession(sessionID)
	if s == nil {
		return PromptResponse{}, fmt.Errorf("session %s not found", sessionID)
	}

	s.Mu.Lock()
	interaction, ok := s.PendingInteractions[requestID]
	if !ok {
		s.Mu.Unlock()
		return PromptResponse{Success: false, Message: "no pending interaction with that id"}, nil
	}
	options := interaction.Options
	s.Mu.Unlock()

	optionID, ok := matchOption(options, input)
	if !ok {
		names := make([]string, len(options))
		for i, o := range options {
			names[i] = fmt.Sprintf("%s (%s)", o.Name, o.ID)
		}
		msg := fmt.Sprintf("invalid selection %q; valid options: %s (indexes 0-%d, or 1-%d counting from one)", input, strings.Join(names, ", "), len(options)-1, len(options))
		return PromptResponse{Success: false, Message: msg}, nil
	}

	var response PromptResponse
	if interaction.Kind == InteractionRepoSelection {
		id := strings.TrimPrefix(optionID, "repo:")
		if idx, err := strconv.Atoi(id); err == nil {
			if r, found := m.inventory.ByIndex(idx); found {
				m.SetCursor(s.UserID, s.ContextID, r.Path, r.Name)
				response = PromptResponse{Success: true, Message: fmt.Sprintf("switched to repo %q", r.Name)}
			}
		}
		if response.Message == "" {
			if r, found := m.inventory.ByName(id); found {
				m.SetCursor(s.UserID, s.ContextID, r.Path, r.Name)
				response = PromptResponse{Success: true, Message: fmt.Sprintf("switched to repo %q", r.Name)}
			} else {
				response = PromptResponse{Success: false, Message: fmt.Sprintf("unknown repo %q", id)}
			}
		}
	} else {
		response = PromptResponse{Success: true, Message: fmt.Sprintf("selected %q", optionID)}
	}

	interaction.Resolve(optionID)

	s.Mu.Lock()
	delete(s.PendingInteractions, requestID)
	if s.Current != nil {
		s.State = StateRunning
	} else {
		s.State = StateIdle
	}
	s.Mu.Unlock()

	return response, nil
}

// matchOption implements the spec's numeric (0-based-first, then
// 1-based) and case-insensitive name/id matching scheme.
func matchOption(options []Option, input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if k, err := strconv.Atoi(trimmed); err == nil {
		if k >= 0 && k < len(options) {
			return options[k].ID, true
		}
		if k-1 >= 0 && k-1 < len(options) {
			return options[k-1].ID, true
		}
		return "", false
	}
	lower := strings.ToLower(trimmed)
	for _, o := range options {
		if strings.ToLower(o.ID) == lower {
			return o.ID, true
		}
	}
	for _, o := range options {
		if strings.ToLower(o.Name) == lower {
			return o.ID, true
		}
	}
	return "", false
}

// TryResolveInteraction is the dispatcher's preemption-rule-1 hook: if the
// session has a pending interaction and text plausibly selects one of its
// options, resolve it; otherwise return ok=false so the caller enqueues
// text as a prompt instead.
func (m *Manager) TryResolveInteraction(ctx context.Context, sessionID, text string) (PromptResponse, bool) {
	s := m.findSession(sessionID)
	if s == nil {
		return PromptResponse{}, false
	}
	s.Mu.Lock()
	requestID, interaction := s.soleInteraction()
	s.Mu.Unlock()
	if interaction == nil {
		return PromptResponse{}, false
	}
	if _, ok := matchOption(interaction.Options, text); !ok {
		return PromptResponse{}, false
	}
	resp, err := m.ResolveInteraction(ctx, sessionID, requestID, text)
	if err != nil {
		return PromptResponse{}, false
	}
	return resp, true
}

// ResetSession tears a conversation's session down entirely: cancels the
// current task, stops the agent, rejects pending interactions, and
// deletes the session so the next message creates a fresh one.
func (m *Manager) ResetSession(ctx context.Context, userID, contextID string) string {
	projectPath := m.CurrentProjectPath(userID, contextID)
	key := sessionKey(userID, contextID, projectPath)

	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if !ok {
		return "no active session to reset"
	}

	s.Mu.Lock()
	hadCurrent := s.Current != nil
	pendingCount := len(s.Pending)
	client := s.ACPClient
	s.rejectAllInteractions("Session reset")
	s.Current = nil
	s.Pending = nil
	s.State = StateIdle
	s.Mu.Unlock()

	if client != nil {
		client.Cancel(ctx)
		client.Stop()
	}

	return fmt.Sprintf("session reset: cancelled running task=%v, cleared %d pending task(s)", hadCurrent, pendingCount)
}

// StopTask implements /stop: "all" stops everything, a specific task id
// is removed from the pending list only, and nil/"" cancels the current
// task and returns the session to IDLE.
func (m *Manager) StopTask(ctx context.Context, userID, contextID, target string) string {
	s, err := m.GetOrCreateSession(ctx, userID, contextID)
	if err != nil {
		return fmt.Sprintf("could not resolve session: %v", err)
	}

	switch target {
	case "all":
		s.Mu.Lock()
		hadCurrent := s.Current != nil
		client := s.ACPClient
		s.Pending = nil
		s.Current = nil
		s.State = StateStopped
		s.Mu.Unlock()
		if hadCurrent && client != nil {
			client.Cancel(ctx)
		}
		return "stopped: current task cancelled, pending queue cleared"
	case "", "current":
		s.Mu.Lock()
		hadCurrent := s.Current != nil
		client := s.ACPClient
		s.Current = nil
		s.State = StateIdle
		s.Mu.Unlock()
		if hadCurrent && client != nil {
			client.Cancel(ctx)
		}
		return fmt.Sprintf("stopped current task (was running: %v)", hadCurrent)
	default:
		s.Mu.Lock()
		removed := false
		kept := s.Pending[:0]
		for _, t := range s.Pending {
			if t.ID == target {
				removed = true
				continue
			}
			kept = append(kept, t)
		}
		s.Pending = kept
		s.Mu.Unlock()
		if removed {
			return fmt.Sprintf("removed task %s from the queue", target)
		}
		return fmt.Sprintf("no pending task with id %s", target)
	}
}

// QueueStatus is the diagnostic snapshot /current renders.
type QueueStatus struct {
	State       State
	Current     *Task
	Pending     []*Task
	AgentStatus AgentStatus
	Plan        *planSnapshotView
	RepoName    string
	ProjectPath string
}

type planSnapshotView struct {
	Summary string
	Total   int
}

// GetQueueStatus builds the /current diagnostic snapshot.
func (m *Manager) GetQueueStatus(ctx context.Context, userID, contextID string) (QueueStatus, error) {
	s, err := m.GetOrCreateSession(ctx, userID, contextID)
	if err != nil {
		return QueueStatus{}, err
	}

	s.Mu.Lock()
	status := QueueStatus{
		State:       s.State,
		Current:     s.Current,
		Pending:     append([]*Task(nil), s.Pending...),
		RepoName:    s.RepoName,
		ProjectPath: s.ProjectPath,
	}
	client := s.ACPClient
	s.Mu.Unlock()

	if client != nil {
		status.AgentStatus = client.AgentStatus()
		if plan := client.PlanStatus(); plan != nil {
			status.Plan = &planSnapshotView{Summary: plan.Summary, Total: plan.Counts.Total}
		}
	}
	return status, nil
}

// triggerSelection is the shared body of triggerModeSelection and
// triggerModelSelection: it builds a synthetic permission-style
// interaction from the agent's currently cached capability list.
func (m *Manager) triggerSelection(s *Session, kind InteractionKind, title string, options []Option, onResolve func(optionID string)) PromptResponse {
	if len(options) == 0 {
		return PromptResponse{Success: false, Message: "agent does not expose any options to select from"}
	}

	requestID := uuid.NewString()
	interaction := NewInteraction(kind, title, options, onResolve, func(string) {})

	s.Mu.Lock()
	if _, existing := s.soleInteraction(); existing != nil {
		existing.Reject("replaced by new interaction")
		s.PendingInteractions = make(map[string]*Interaction)
	}
	s.PendingInteractions[requestID] = interaction
	s.State = StateWaitingConfirm
	s.Mu.Unlock()

	m.bus.Publish(eventbus.Event{
		Kind:      eventbus.EventSelectionPrompt,
		SessionID: s.ID,
		RequestID: requestID,
		UserID:    s.UserID,
		Title:     title,
		Options:   toEventOptions(options),
	})
	return PromptResponse{Success: true, Message: "", }
}

// TriggerModeSelection presents the agent's available modes as a
// selection card; resolving it calls ACPClient.SetMode.
func (m *Manager) TriggerModeSelection(ctx context.Context, userID, contextID string) (PromptResponse, error) {
	s, err := m.GetOrCreateSession(ctx, userID, contextID)
	if err != nil {
		return PromptResponse{}, err
	}
	client := s.ACPClient
	if client == nil {
		return PromptResponse{Success: false, Message: "agent not initialized"}, nil
	}
	return m.triggerSelection(s, InteractionModeSelection, "Select mode", client.AvailableModes(), func(optionID string) {
		client.SetMode(context.Background(), optionID)
	}), nil
}

// TriggerModelSelection is TriggerModeSelection's model-capability twin.
func (m *Manager) TriggerModelSelection(ctx context.Context, userID, contextID string) (PromptResponse, error) {
	s, err := m.GetOrCreateSession(ctx, userID, contextID)
	if err != nil {
		return PromptResponse{}, err
	}
	client := s.ACPClient
	if client == nil {
		return PromptResponse{Success: false, Message: "agent not initialized"}, nil
	}
	return m.triggerSelection(s, InteractionModelSelection, "Select model", client.AvailableModels(), func(optionID string) {
		client.SetModel(context.Background(), optionID)
	}), nil
}

// CreateRepoSelection registers a repo_selection interaction listing the
// full inventory, used by bare "/repo" with no argument.
func (m *Manager) CreateRepoSelection(ctx context.Context, userID, contextID string) (PromptResponse, error) {
	s, err := m.GetOrCreateSession(ctx, userID, contextID)
	if err != nil {
		return PromptResponse{}, err
	}
	all := m.inventory.All()
	options := make([]Option, len(all))
	for i, r := range all {
		options[i] = Option{ID: fmt.Sprintf("repo:%d", r.Index), Name: r.Name}
	}
	return m.triggerSelection(s, InteractionRepoSelection, "Select repo", options, func(string) {}), nil
}
