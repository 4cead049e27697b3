// Package model implements the LLM Client Abstraction (C2, spec.md
// §4.5): a single streaming interface behind which a Responses-style and
// a Chat-style client can both sit, selected deterministically by
// configuration rather than at request time.
package model

import (
	"context"
	"iter"

	"github.com/kadirpekel/analystd/pkg/domain"
)

// EventKind enumerates the unified event surface both client shapes
// stream through, per spec.md §4.5.
type EventKind string

const (
	EventTextDelta         EventKind = "text_delta"
	EventReasoningDelta    EventKind = "reasoning_delta"
	EventToolCallRequest   EventKind = "tool_call_request"
	EventToolCallResultAck EventKind = "tool_call_result_ack"
	EventCitation          EventKind = "citation"
	EventDone              EventKind = "done"
	EventError             EventKind = "error"
)

// ToolCallRequest is what the model asks the orchestrator to run. Calls
// sharing the same StepID were requested together in one model step and
// may be executed concurrently (spec.md §5).
type ToolCallRequest struct {
	StepID    string
	CallID    string
	ToolName  string
	Arguments map[string]any
}

// Event is one unit of the unified LLM streaming surface.
type Event struct {
	Kind EventKind

	// TextDelta: incremental text to append. Unlike the wire protocol,
	// this is a genuine delta — accumulation happens once, in the
	// orchestrator, before frames reach pkg/wire.
	TextDelta string

	// ReasoningDelta: the FULL cumulative reasoning string, per spec.md
	// §4.5 ("because the upstream emits cumulative text, the event
	// carries the full cumulative string").
	ReasoningDelta string

	ToolCall *ToolCallRequest

	// AckCallID is set on EventToolCallResultAck: the model/client
	// acknowledging it has incorporated a tool result the orchestrator
	// fed back in.
	AckCallID string

	Citation *domain.Citation

	FinishReason FinishReason

	Err error
}

// FinishReason indicates why a stream ended.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishError     FinishReason = "error"
)

// Message is one turn of conversation history fed to the model. Unlike
// the teacher's Request.Messages, this carries no wire-protocol envelope
// (no a2a.Message) since this service is not a federation of agents.
type Message struct {
	Role    domain.MessageRole
	Content string

	// ToolCallID and ToolName are set when Role identifies a tool result
	// being fed back to the model.
	ToolCallID string
	ToolName   string
}

// GenerateConfig mirrors the provider-facing generation knobs this
// service actually exposes: reasoning controls and temperature. The
// teacher's broader GenerateConfig (response schema, thinking budget,
// top-p/top-k) has no consumer in this spec's scope, so it is trimmed
// rather than carried as dead surface.
type GenerateConfig struct {
	Temperature      *float64
	ReasoningEffort  domain.ReasoningEffort
	ReasoningSummary domain.ReasoningSummary
}

// Clone deep-copies c so a per-turn mutation never leaks into a shared
// default config.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Temperature != nil {
		t := *c.Temperature
		clone.Temperature = &t
	}
	return &clone
}

// Request is the input to one model stream call.
type Request struct {
	Messages          []Message
	Tools             []domain.ToolSpec
	Config            *GenerateConfig
	SystemInstruction string

	// ThreadID, when non-empty, asks the client to continue an existing
	// provider-side thread rather than replaying full history (used by
	// the Responses-style client via the Conversation Cache's
	// AgentThreadHandle).
	ThreadID string
}

// Client is the unified streaming interface both client shapes
// implement.
type Client interface {
	// Name returns the deployment/model name this client targets.
	Name() string

	// Stream issues req and returns an iterator of Events. The iterator
	// stops after the first EventDone or EventError. Stream must honor
	// ctx cancellation by closing the underlying HTTP stream promptly.
	Stream(ctx context.Context, req *Request) iter.Seq[Event]

	// Close releases any resources (idle connections, background
	// goroutines) held by the client.
	Close() error
}
