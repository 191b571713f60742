package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/baton-gateway/baton/internal/gateway"
	"github.com/baton-gateway/baton/internal/logging"
	"github.com/baton-gateway/baton/internal/planfmt"
)

type fakeClient struct {
	mu       sync.Mutex
	delay    time.Duration
	response gateway.PromptResponse
	plan     *planfmt.Snapshot
	calls    []string
}

func (f *fakeClient) Start(context.Context) error { return nil }
func (f *fakeClient) SendPrompt(ctx context.Context, text string) (gateway.PromptResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.response, nil
}
func (f *fakeClient) SendCommand(ctx context.Context, text string) (gateway.PromptResponse, error) {
	return f.SendPrompt(ctx, text)
}
func (f *fakeClient) Cancel(context.Context)                        {}
func (f *fakeClient) SetMode(context.Context, string) (bool, string)  { return true, "" }
func (f *fakeClient) SetModel(context.Context, string) (bool, string) { return true, "" }
func (f *fakeClient) AgentStatus() gateway.AgentStatus                { return gateway.AgentStatus{Running: true} }
func (f *fakeClient) PlanStatus() *planfmt.Snapshot                   { return f.plan }
func (f *fakeClient) AvailableModes() []gateway.Option                { return nil }
func (f *fakeClient) AvailableModels() []gateway.Option               { return nil }
func (f *fakeClient) CurrentModeID() string                           { return "" }
func (f *fakeClient) CurrentModelID() string                          { return "" }
func (f *fakeClient) Stop()                                           {}

func newTestSession(client gateway.ACPClient) *gateway.Session {
	s := &gateway.Session{
		ID:                  "s1",
		UserID:              "u1",
		ProjectPath:         "/tmp/proj",
		State:               gateway.StateIdle,
		ACPClient:           client,
		PendingInteractions: make(map[string]*gateway.Interaction),
	}
	return s
}

func TestEnqueueFastPath(t *testing.T) {
	client := &fakeClient{response: gateway.PromptResponse{Success: true, Message: "Hi there"}}
	s := newTestSession(client)

	var done sync.WaitGroup
	done.Add(1)
	var gotResp gateway.PromptResponse
	e := New(func(ctx context.Context, sess *gateway.Session, task *gateway.Task, resp gateway.PromptResponse) {
		gotResp = resp
		done.Done()
	}, logging.Default())

	res := e.Enqueue(context.Background(), s, "hello", gateway.TaskTypePrompt)
	if !res.Success || res.Message != "" {
		t.Fatalf("expected empty-message fast path, got %+v", res)
	}
	done.Wait()
	if gotResp.Message != "Hi there" {
		t.Fatalf("expected callback message 'Hi there', got %q", gotResp.Message)
	}

	// processNext runs after the callback returns, so give it a moment.
	var state gateway.State
	for deadline := time.Now().Add(time.Second); ; time.Sleep(time.Millisecond) {
		s.Mu.Lock()
		state = s.State
		s.Mu.Unlock()
		if state == gateway.StateIdle || time.Now().After(deadline) {
			break
		}
	}
	if state != gateway.StateIdle {
		t.Fatalf("expected session back to IDLE, got %s", state)
	}
}

func TestEnqueueQueuePositions(t *testing.T) {
	client := &fakeClient{delay: 30 * time.Millisecond, response: gateway.PromptResponse{Success: true}}
	s := newTestSession(client)

	var completions int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)
	e := New(func(ctx context.Context, sess *gateway.Session, task *gateway.Task, resp gateway.PromptResponse) {
		mu.Lock()
		completions++
		mu.Unlock()
		wg.Done()
	}, logging.Default())

	first := e.Enqueue(context.Background(), s, "A", gateway.TaskTypePrompt)
	second := e.Enqueue(context.Background(), s, "B", gateway.TaskTypePrompt)

	if first.Message != "" {
		t.Fatalf("expected first enqueue to take the fast path, got %+v", first)
	}
	if second.Position != 1 {
		t.Fatalf("expected second enqueue at position 1, got %d", second.Position)
	}

	wg.Wait()
	if completions != 2 {
		t.Fatalf("expected 2 completions, got %d", completions)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.calls) != 2 || client.calls[0] != "A" || client.calls[1] != "B" {
		t.Fatalf("expected FIFO call order [A B], got %v", client.calls)
	}
}

func TestAttachPlanProgressPrefixIdempotent(t *testing.T) {
	plan := &planfmt.Snapshot{Entries: []planfmt.Entry{{Content: "step", Status: planfmt.BucketPending}}}
	client := &fakeClient{plan: plan}
	e := New(nil, logging.Default())

	once := e.attachPlanProgressPrefix(client, "done")
	twice := e.attachPlanProgressPrefix(client, once)
	if once != twice {
		t.Fatalf("expected idempotent prefixing, got once=%q twice=%q", once, twice)
	}
}

func TestEnqueueWhileWaitingConfirmMentionsAutoResume(t *testing.T) {
	client := &fakeClient{}
	s := newTestSession(client)
	s.State = gateway.StateWaitingConfirm
	s.Current = gateway.NewTask(gateway.TaskTypePrompt, "in flight")

	e := New(func(context.Context, *gateway.Session, *gateway.Task, gateway.PromptResponse) {}, logging.Default())
	res := e.Enqueue(context.Background(), s, "another", gateway.TaskTypePrompt)
	if res.Message == "" {
		t.Fatal("expected a non-empty message while WAITING_CONFIRM")
	}
	if !contains(res.Message, "auto-resume") {
		t.Fatalf("expected auto-resume hint, got %q", res.Message)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}
