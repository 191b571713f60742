package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/baton-gateway/baton/internal/dispatch"
	"github.com/baton-gateway/baton/internal/eventbus"
	"github.com/baton-gateway/baton/internal/gateway"
	"github.com/baton-gateway/baton/internal/logging"
	"github.com/baton-gateway/baton/internal/planfmt"
	"github.com/baton-gateway/baton/internal/queue"
	"github.com/baton-gateway/baton/internal/repos"
)

type noopClient struct{}

func (c *noopClient) Start(context.Context) error { return nil }
func (c *noopClient) SendPrompt(context.Context, string) (gateway.PromptResponse, error) {
	return gateway.PromptResponse{Success: true}, nil
}
func (c *noopClient) SendCommand(context.Context, string) (gateway.PromptResponse, error) {
	return gateway.PromptResponse{Success: true}, nil
}
func (c *noopClient) Cancel(context.Context)                        {}
func (c *noopClient) SetMode(context.Context, string) (bool, string)  { return true, "" }
func (c *noopClient) SetModel(context.Context, string) (bool, string) { return true, "" }
func (c *noopClient) AgentStatus() gateway.AgentStatus                { return gateway.AgentStatus{Running: true} }
func (c *noopClient) PlanStatus() *planfmt.Snapshot                   { return nil }
func (c *noopClient) AvailableModes() []gateway.Option                { return nil }
func (c *noopClient) AvailableModels() []gateway.Option               { return nil }
func (c *noopClient) CurrentModeID() string                           { return "" }
func (c *noopClient) CurrentModelID() string                          { return "" }
func (c *noopClient) Stop()                                           {}

func newTestAdapter(t *testing.T) (*Adapter, *bytes.Buffer) {
	t.Helper()
	logger := logging.Default()
	bus := eventbus.NewLocalBus()
	manager := gateway.NewManager(gateway.Config{DefaultProjectPath: "/tmp/proj"},
		func(string, gateway.PermissionHandler) (gateway.ACPClient, error) {
			return &noopClient{}, nil
		}, bus, &repos.Inventory{}, logger)
	engine := queue.New(func(context.Context, *gateway.Session, *gateway.Task, gateway.PromptResponse) {}, logger)
	d := dispatch.New(manager, engine)

	var out bytes.Buffer
	return New(d, bus, &out, logger), &out
}

func TestDeliverInboundMessageHelpCommand(t *testing.T) {
	a, out := newTestAdapter(t)
	if err := a.DeliverInboundMessage(context.Background(), "local", "", "/help"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "/repo") {
		t.Fatalf("expected help text in output, got %q", out.String())
	}
}

func TestAdapterRendersPermissionRequestEvent(t *testing.T) {
	logger := logging.Default()
	bus := eventbus.NewLocalBus()
	manager := gateway.NewManager(gateway.Config{DefaultProjectPath: "/tmp/proj"},
		func(string, gateway.PermissionHandler) (gateway.ACPClient, error) {
			return &noopClient{}, nil
		}, bus, &repos.Inventory{}, logger)
	engine := queue.New(func(context.Context, *gateway.Session, *gateway.Task, gateway.PromptResponse) {}, logger)
	d := dispatch.New(manager, engine)

	var out bytes.Buffer
	New(d, bus, &out, logger)

	bus.Publish(eventbus.Event{
		Kind:    eventbus.EventPermissionRequest,
		UserID:  "local",
		Title:   "Allow write to file.txt?",
		Options: []eventbus.EventOption{{ID: "allow", Name: "Allow"}, {ID: "deny", Name: "Deny"}},
	})

	if !strings.Contains(out.String(), "Allow write to file.txt?") {
		t.Fatalf("expected permission prompt title in output, got %q", out.String())
	}
	if !strings.Contains(out.String(), "Deny") {
		t.Fatalf("expected option names in output, got %q", out.String())
	}
}

func TestAdapterIgnoresEventsForOtherUsers(t *testing.T) {
	logger := logging.Default()
	bus := eventbus.NewLocalBus()
	manager := gateway.NewManager(gateway.Config{DefaultProjectPath: "/tmp/proj"},
		func(string, gateway.PermissionHandler) (gateway.ACPClient, error) {
			return &noopClient{}, nil
		}, bus, &repos.Inventory{}, logger)
	engine := queue.New(func(context.Context, *gateway.Session, *gateway.Task, gateway.PromptResponse) {}, logger)
	d := dispatch.New(manager, engine)

	var out bytes.Buffer
	New(d, bus, &out, logger)

	bus.Publish(eventbus.Event{Kind: eventbus.EventPermissionRequest, UserID: "someone-else", Title: "should not appear"})

	if out.Len() != 0 {
		t.Fatalf("expected no output for a different user's event, got %q", out.String())
	}
}

func TestRunReadsMultipleLines(t *testing.T) {
	a, out := newTestAdapter(t)
	in := strings.NewReader("/help\n/current\n")
	if err := a.Run(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if strings.Count(out.String(), "\n") < 2 {
		t.Fatalf("expected output for both lines, got %q", out.String())
	}
}
