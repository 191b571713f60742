// Package cli is the reference Adapter: a stdin/stdout REPL that exercises
// the full dispatch → session → ACP path without any chat platform
// involved, used both as a real "cli" CLI mode and as the adapter
// exercised by this repo's integration-style tests.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/baton-gateway/baton/internal/dispatch"
	"github.com/baton-gateway/baton/internal/eventbus"
	"github.com/baton-gateway/baton/internal/logging"
)

const localUserID = "local"

// Adapter is the stdin/stdout reference transport. A single chat
// "contextID" is implicit — there is only one conversation, the terminal
// itself.
type Adapter struct {
	dispatcher *dispatch.Dispatcher
	out        io.Writer
	logger     *logging.Logger
}

// New builds the cli adapter, writing rendered responses to out and
// subscribing to bus for permission/selection prompts raised outside the
// request/response cycle of DeliverInboundMessage.
func New(dispatcher *dispatch.Dispatcher, bus eventbus.Bus, out io.Writer, logger *logging.Logger) *Adapter {
	a := &Adapter{dispatcher: dispatcher, out: out, logger: logger}
	bus.Subscribe(a.onEvent)
	return a
}

// onEvent renders a permission request or selection prompt raised for the
// local user so the terminal user knows what input is expected next.
func (a *Adapter) onEvent(ev eventbus.Event) {
	if ev.UserID != localUserID {
		return
	}
	var b strings.Builder
	fmt.Fprintln(&b, ev.Title)
	for i, opt := range ev.Options {
		fmt.Fprintf(&b, "  %d) %s\n", i, opt.Name)
	}
	if _, err := fmt.Fprint(a.out, b.String()); err != nil {
		a.logger.WithError(err).Warn("failed to render event prompt")
	}
}

// DeliverInboundMessage routes one line of terminal input to the
// dispatcher and prints its result.
func (a *Adapter) DeliverInboundMessage(ctx context.Context, userID, contextID, text string) error {
	res, err := a.dispatcher.Dispatch(ctx, userID, contextID, text)
	if err != nil {
		return err
	}
	return a.RenderResponse(ctx, userID, contextID, res.Message)
}

// ResolveInboundSelection is identical to DeliverInboundMessage here: a
// REPL has no separate reply channel, so a selection answer is just the
// next line of input, and Dispatch's preemption rule tries it against the
// session's pending interaction first.
func (a *Adapter) ResolveInboundSelection(ctx context.Context, userID, contextID, _, input string) error {
	return a.DeliverInboundMessage(ctx, userID, contextID, input)
}

// RenderResponse writes text to the terminal.
func (a *Adapter) RenderResponse(_ context.Context, _, _, text string) error {
	_, err := fmt.Fprintln(a.out, text)
	return err
}

// Run reads lines from in until EOF or ctx is cancelled, dispatching each
// as an inbound message for the local user's single conversation.
func (a *Adapter) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := a.DeliverInboundMessage(ctx, localUserID, "", line); err != nil {
			a.logger.WithError(err).Error("failed to dispatch terminal input")
		}
	}
	return scanner.Err()
}
