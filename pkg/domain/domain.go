// Package domain defines the data model shared across the orchestration
// core: conversations, messages, citations, tool events, tool specs,
// thread handles and turn requests.
package domain

import "time"

// Mode selects the agent topology used to serve a turn.
type Mode string

const (
	ModeSQLOnly   Mode = "sql_only"
	ModeMultiTool Mode = "multi_tool"
	ModeHandoff   Mode = "handoff"
	ModeMagentic  Mode = "magentic"
)

// ModelChoice selects which deployment answers the turn.
type ModelChoice string

const (
	ModelPrimary   ModelChoice = "primary"
	ModelSecondary ModelChoice = "secondary"
)

// ReasoningEffort applies to document retrieval and, separately, to the
// primary model's reasoning controls.
type ReasoningEffort string

const (
	EffortMinimal ReasoningEffort = "minimal"
	EffortLow     ReasoningEffort = "low"
	EffortMedium  ReasoningEffort = "medium"
	EffortHigh    ReasoningEffort = "high"
)

// ReasoningSummary controls how much of the model's reasoning is surfaced.
type ReasoningSummary string

const (
	SummaryOff      ReasoningSummary = "off"
	SummaryAuto     ReasoningSummary = "auto"
	SummaryConcise  ReasoningSummary = "concise"
	SummaryDetailed ReasoningSummary = "detailed"
)

// TurnID correlates logs, trace spans, and tool events for a single turn.
type TurnID string

// TurnRequest is the input to one orchestrated turn (spec.md §3, §6.2).
type TurnRequest struct {
	ConversationID          string
	UserID                  string
	UserText                string
	Mode                    Mode
	Model                   ModelChoice
	Temperature             *float64
	ModelReasoningEffort    ReasoningEffort
	ReasoningSummary        ReasoningSummary
	DocReasoningEffort      ReasoningEffort
	NewConversation         bool
}

// MessageRole identifies the author of a persisted message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleError     MessageRole = "error"
)

// Conversation is the append-only conversation header owned by the
// History Store (spec.md §3, §4.7).
type Conversation struct {
	ConversationID string
	UserID         string
	Title          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Citation references a tool-produced source attached to an assistant
// message (spec.md §3).
type Citation struct {
	Index     int
	Title     string
	URL       string
	Snippet   string
	Relevance float64
}

// ToolEventPhase is the lifecycle phase of a single tool occurrence.
type ToolEventPhase string

const (
	ToolPhaseStart   ToolEventPhase = "start"
	ToolPhaseSuccess ToolEventPhase = "success"
	ToolPhaseError   ToolEventPhase = "error"
)

// Occurrence scopes invariant 3 (spec.md §3): a tool called more than once
// in a turn gets one occurrence index per call, and start/success|error
// frames must share both tool name and occurrence.
type Occurrence int

// ToolEvent records one phase of one tool invocation within a turn
// (spec.md §3, §4.1 step 4).
type ToolEvent struct {
	Tool          string
	Phase         ToolEventPhase
	Occurrence    Occurrence
	ArgsDigest    string
	LatencyMS     int64
	ResultSummary string
	Error         string
	// Code carries an upstream RPC error's numeric code (e.g. a JSON-RPC
	// error code) separately from its client-facing Error message, when
	// the failing tool call surfaced one.
	Code int
}

// Message is one append-only entry in a conversation (spec.md §3).
type Message struct {
	MessageID      string
	ConversationID string
	Role           MessageRole
	Content        string
	Citations      []Citation
	ToolEvents     []ToolEvent
	Chart          *ChartPayload
	CreatedAt      time.Time
}

// ChartPayload is the shape the model must emit for a chart turn
// (spec.md §3, §4.3).
type ChartPayload struct {
	ChartType string         `json:"chartType"`
	Data      ChartData      `json:"data"`
}

// ChartData holds the labels and datasets of a ChartPayload.
type ChartData struct {
	Labels   []string      `json:"labels"`
	Datasets []ChartSeries `json:"datasets"`
}

// ChartSeries is one named series of numeric values.
type ChartSeries struct {
	Label  string    `json:"label"`
	Values []float64 `json:"values"`
}

// ToolParameter describes one named argument of a ToolSpec.
type ToolParameter struct {
	Name        string
	Type        string
	Required    bool
	Description string
}

// ApprovalMode controls whether a tool call needs human approval before
// running. This spec has no human-in-the-loop tools, so every ToolSpec
// uses ApprovalNone; the field still exists because it is part of the
// contract in spec.md §3.
type ApprovalMode string

const ApprovalNone ApprovalMode = "none"

// ToolSpec is a static catalog entry describing one callable tool
// (spec.md §3, §4.4).
type ToolSpec struct {
	Name         string
	Description  string
	Parameters   []ToolParameter
	Approval     ApprovalMode
}

// ToolResult is what an adapter returns for one invocation (spec.md §4.4).
type ToolResult struct {
	TextSummary string
	Structured  any
	Citations   []Citation
	Truncated   bool
}

// AgentThreadHandle is held by the Conversation Cache (spec.md §3, §4.8).
type AgentThreadHandle struct {
	ConversationID     string
	ProviderThreadID   string
	CreatedAt          time.Time
	LastUsedAt         time.Time
	Mode               Mode
}
