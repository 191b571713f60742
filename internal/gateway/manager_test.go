package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/baton-gateway/baton/internal/eventbus"
	"github.com/baton-gateway/baton/internal/logging"
	"github.com/baton-gateway/baton/internal/planfmt"
	"github.com/baton-gateway/baton/internal/repos"
)

type noopClient struct {
	modes []Option
}

func (c *noopClient) Start(context.Context) error                          { return nil }
func (c *noopClient) SendPrompt(context.Context, string) (PromptResponse, error) { return PromptResponse{Success: true}, nil }
func (c *noopClient) SendCommand(context.Context, string) (PromptResponse, error) { return PromptResponse{Success: true}, nil }
func (c *noopClient) Cancel(context.Context)                               {}
func (c *noopClient) SetMode(context.Context, string) (bool, string)       { return true, "" }
func (c *noopClient) SetModel(context.Context, string) (bool, string)      { return true, "" }
func (c *noopClient) AgentStatus() AgentStatus                             { return AgentStatus{Running: true} }
func (c *noopClient) PlanStatus() *planfmt.Snapshot                        { return nil }
func (c *noopClient) AvailableModes() []Option                             { return c.modes }
func (c *noopClient) AvailableModels() []Option                            { return nil }
func (c *noopClient) CurrentModeID() string                                { return "" }
func (c *noopClient) CurrentModelID() string                               { return "" }
func (c *noopClient) Stop()                                                {}

func newTestManager(t *testing.T, permissionTimeout time.Duration) *Manager {
	t.Helper()
	bus := eventbus.NewLocalBus()
	return NewManager(Config{PermissionTimeout: permissionTimeout, DefaultProjectPath: "/tmp/proj"},
		func(projectPath string, handler PermissionHandler) (ACPClient, error) {
			return &noopClient{}, nil
		}, bus, &repos.Inventory{}, logging.Default())
}

func TestGetOrCreateSessionIsIdempotentPerKey(t *testing.T) {
	m := newTestManager(t, time.Second)
	s1, err := m.GetOrCreateSession(context.Background(), "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	s2, err := m.GetOrCreateSession(context.Background(), "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	if s1.ID != s2.ID {
		t.Fatalf("expected same session for repeated calls, got %s and %s", s1.ID, s2.ID)
	}
}

func TestSwitchingRepoCreatesDifferentSession(t *testing.T) {
	m := newTestManager(t, time.Second)
	s1, _ := m.GetOrCreateSession(context.Background(), "u1", "")
	m.SetCursor("u1", "", "/tmp/other", "other-repo")
	s2, _ := m.GetOrCreateSession(context.Background(), "u1", "")
	if s1.ID == s2.ID {
		t.Fatal("expected a distinct session after switching the conversation's repo cursor")
	}
}

func TestMatchOptionZeroBasedWinsWhenInRange(t *testing.T) {
	options := []Option{{ID: "allow", Name: "Allow"}, {ID: "deny", Name: "Deny"}}
	if id, ok := matchOption(options, "0"); !ok || id != "allow" {
		t.Fatalf("expected 0 -> allow, got %q ok=%v", id, ok)
	}
	if id, ok := matchOption(options, "1"); !ok || id != "deny" {
		t.Fatalf("expected 1 -> deny (0-based wins), got %q ok=%v", id, ok)
	}
	if id, ok := matchOption(options, "deny"); !ok || id != "deny" {
		t.Fatalf("expected name match -> deny, got %q ok=%v", id, ok)
	}
}

func TestAtMostOnePendingInteraction(t *testing.T) {
	m := newTestManager(t, time.Second)
	s, _ := m.GetOrCreateSession(context.Background(), "u1", "")

	handler := m.permissionHandler(s)
	go handler(context.Background(), "first", []Option{{ID: "a", Name: "Allow"}}, nil)
	time.Sleep(20 * time.Millisecond)

	s.Mu.Lock()
	if len(s.PendingInteractions) != 1 {
		t.Fatalf("expected exactly one pending interaction, got %d", len(s.PendingInteractions))
	}
	s.Mu.Unlock()

	go handler(context.Background(), "second", []Option{{ID: "a", Name: "Allow"}}, nil)
	time.Sleep(20 * time.Millisecond)

	s.Mu.Lock()
	defer s.Mu.Unlock()
	if len(s.PendingInteractions) != 1 {
		t.Fatalf("expected at-most-one invariant to hold after replacement, got %d", len(s.PendingInteractions))
	}
}

func TestPermissionTimeoutFallsBackToDeny(t *testing.T) {
	m := newTestManager(t, 100*time.Millisecond)
	s, _ := m.GetOrCreateSession(context.Background(), "u1", "")

	handler := m.permissionHandler(s)
	optionID, err := handler(context.Background(), "delete files?",
		[]Option{{ID: "allow-id", Name: "Allow"}, {ID: "deny-id", Name: "Deny"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if optionID != "deny-id" {
		t.Fatalf("expected timeout fallback to the deny option, got %q", optionID)
	}
}
