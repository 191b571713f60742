// Package transport defines the Adapter contract every chat-platform
// front end implements, plus the security and dedup helpers that guard a
// webhook-based adapter's inbound boundary.
package transport

import "context"

// Adapter is the seam between a chat platform and the Command Dispatcher.
// Every transport (cli, feishu, telegram, whatsapp, slack, discord)
// implements this the same way: decode the platform's inbound event into
// (userID, contextID, text), route it through the Dispatcher, and render
// the Dispatcher's Result back onto the platform.
type Adapter interface {
	// DeliverInboundMessage routes one inbound chat message to the
	// dispatcher and renders the result back to the originating thread.
	DeliverInboundMessage(ctx context.Context, userID, contextID, text string) error

	// ResolveInboundSelection routes a reply to a pending interaction
	// (permission, repo/mode/model selection) back through the dispatcher.
	ResolveInboundSelection(ctx context.Context, userID, contextID, sessionID, input string) error

	// RenderResponse delivers an out-of-band message to a chat thread —
	// used for async completion callbacks and event-bus pushes
	// (permissionRequest, selectionPrompt) that do not originate from an
	// inbound message.
	RenderResponse(ctx context.Context, userID, contextID, text string) error
}
