// Package demo implements Demo Mode (C8, spec.md §4.9): a deterministic
// stand-in for the LLM Client Abstraction and the Tool Adapters, selected
// by keyword match over the user's text rather than an actual model
// call, so the rest of the orchestrator — including history persistence
// — runs its real code path end to end. No teacher package has a demo-
// mode analog; this is written fresh, implementing `pkg/model.Client`
// and `pkg/tool.Adapter` directly so nothing downstream can distinguish
// a demo turn from a real one.
package demo

import (
	"context"
	"iter"
	"strings"

	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/model"
	"github.com/kadirpekel/analystd/pkg/tool"
)

// ToolCallPlan is the scripted tool call a scenario asks the orchestrator
// to dispatch before answering.
type ToolCallPlan struct {
	ToolName  string
	Arguments map[string]any
}

// Scenario is one canned conversational turn, selected when any of
// Keywords is found (case-insensitively) in the user's text.
type Scenario struct {
	Keywords []string
	ToolCall *ToolCallPlan // nil when the scenario answers directly, no tool round
	Answer   string
}

func (s Scenario) matches(userText string) bool {
	lower := strings.ToLower(userText)
	for _, kw := range s.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// defaultScenarios ships with two characteristic flows: a SQL lookup and
// a document search. Text matching neither gets fallbackScenario, a plain
// answer with no tool round. Callers override the list by passing
// scenarios to New.
var defaultScenarios = []Scenario{
	{
		Keywords: []string{"top product", "revenue", "sales"},
		ToolCall: &ToolCallPlan{ToolName: "sql_query", Arguments: map[string]any{"query": "SELECT product, revenue FROM sales ORDER BY revenue DESC LIMIT 3"}},
		Answer:   "The top 3 products by revenue this period are Widget A, Widget B, and Widget C.",
	},
	{
		Keywords: []string{"policy", "documentation", "how do i"},
		ToolCall: &ToolCallPlan{ToolName: "doc_search", Arguments: map[string]any{"query": "policy documentation"}},
		Answer:   "According to the internal documentation, the relevant policy is described in section 2.",
	},
}

var fallbackScenario = Scenario{
	Answer: "This is a demo response: connect a real model and data source to get a live answer.",
}

// Client is the deterministic model.Client demo mode substitutes for the
// real LLM Client Abstraction.
type Client struct {
	Scenarios []Scenario
}

// New builds a demo Client, defaulting to defaultScenarios when none are
// supplied.
func New(scenarios ...Scenario) *Client {
	if len(scenarios) == 0 {
		scenarios = defaultScenarios
	}
	return &Client{Scenarios: scenarios}
}

func (c *Client) Name() string { return "demo" }
func (c *Client) Close() error { return nil }

// Stream picks a scenario by keyword match on the turn's user text, then
// plays it out over (at most) two model steps: a tool_call_request step
// followed by a text-answer step once the orchestrator feeds the tool
// result back in, mirroring the real round-trip shape the orchestrator
// already drives.
func (c *Client) Stream(ctx context.Context, req *model.Request) iter.Seq[model.Event] {
	return func(yield func(model.Event) bool) {
		if toolResultJustArrived(req.Messages) {
			scenario := c.selectScenario(userText(req.Messages))
			emitAnswer(scenario, yield)
			return
		}

		scenario := c.selectScenario(userText(req.Messages))
		if scenario.ToolCall != nil {
			if !yield(model.Event{
				Kind: model.EventToolCallRequest,
				ToolCall: &model.ToolCallRequest{
					StepID:    "demo-step-1",
					CallID:    "demo-call-1",
					ToolName:  scenario.ToolCall.ToolName,
					Arguments: scenario.ToolCall.Arguments,
				},
			}) {
				return
			}
			yield(model.Event{Kind: model.EventDone, FinishReason: model.FinishToolCalls})
			return
		}
		emitAnswer(scenario, yield)
	}
}

func emitAnswer(scenario Scenario, yield func(model.Event) bool) {
	if !yield(model.Event{Kind: model.EventTextDelta, TextDelta: scenario.Answer}) {
		return
	}
	yield(model.Event{Kind: model.EventDone, FinishReason: model.FinishStop})
}

func (c *Client) selectScenario(text string) Scenario {
	for _, s := range c.Scenarios {
		if s.matches(text) {
			return s
		}
	}
	return fallbackScenario
}

func userText(messages []model.Message) string {
	for _, m := range messages {
		if m.Role == domain.RoleUser {
			return m.Content
		}
	}
	return ""
}

func toolResultJustArrived(messages []model.Message) bool {
	if len(messages) == 0 {
		return false
	}
	return messages[len(messages)-1].ToolCallID != ""
}

// Adapter is a canned Tool Adapter: it returns the same ToolResult for
// every call, regardless of arguments, keyed only by name for catalog
// registration.
type Adapter struct {
	spec   domain.ToolSpec
	result domain.ToolResult
}

// NewAdapter wraps a canned result under the given tool spec.
func NewAdapter(spec domain.ToolSpec, result domain.ToolResult) Adapter {
	return Adapter{spec: spec, result: result}
}

func (a Adapter) Spec() domain.ToolSpec { return a.spec }

func (a Adapter) Call(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
	result := a.result
	return &result, nil
}

// BuildCatalog returns a tool.Catalog populated with canned adapters for
// the demo deployment's advertised tools, so the orchestrator's tool-
// dispatch path runs unmodified against fixtures instead of live
// upstreams.
func BuildCatalog() *tool.Catalog {
	catalog := tool.NewCatalog()
	catalog.Register(NewAdapter(
		domain.ToolSpec{
			Name:        "sql_query",
			Description: "Run a read-only SQL query against the business data warehouse and return the result rows.",
			Parameters: []domain.ToolParameter{
				{Name: "query", Type: "string", Required: true, Description: "A complete SQL SELECT statement."},
			},
		},
		domain.ToolResult{
			TextSummary: "3 rows returned.",
			Structured: []map[string]any{
				{"product": "Widget A", "revenue": 42000},
				{"product": "Widget B", "revenue": 31000},
				{"product": "Widget C", "revenue": 27500},
			},
		},
	))
	catalog.Register(NewAdapter(
		domain.ToolSpec{
			Name:        "doc_search",
			Description: "Search internal documentation for an answer.",
			Parameters: []domain.ToolParameter{
				{Name: "query", Type: "string", Required: true, Description: "A natural-language question."},
			},
		},
		domain.ToolResult{
			TextSummary: "Found 1 relevant document.",
			Citations: []domain.Citation{
				{Index: 1, Title: "Internal Policy Handbook", Snippet: "Section 2 covers the relevant policy."},
			},
		},
	))
	catalog.Register(NewAdapter(
		domain.ToolSpec{
			Name:        "web_search",
			Description: "Search the public web for grounded, current information.",
			Parameters: []domain.ToolParameter{
				{Name: "query", Type: "string", Required: true, Description: "A search query."},
			},
		},
		domain.ToolResult{TextSummary: "Demo mode: web search is simulated, no live lookup performed."},
	))
	return catalog
}
