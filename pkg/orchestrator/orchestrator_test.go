package orchestrator

import (
	"bytes"
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/model"
	"github.com/kadirpekel/analystd/pkg/tool"
	"github.com/kadirpekel/analystd/pkg/topology"
	"github.com/kadirpekel/analystd/pkg/topology/prompts"
	"github.com/kadirpekel/analystd/pkg/wire"
)

type stubSQLAdapter struct{}

func (stubSQLAdapter) Spec() domain.ToolSpec {
	return domain.ToolSpec{Name: "sql_query", Description: "run sql"}
}
func (stubSQLAdapter) Call(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
	return &domain.ToolResult{TextSummary: "3 rows"}, nil
}

type failingSQLAdapter struct{}

func (failingSQLAdapter) Spec() domain.ToolSpec {
	return domain.ToolSpec{Name: "sql_query", Description: "run sql"}
}
func (failingSQLAdapter) Call(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
	err := apperr.ToolTransient("upstream degraded", nil)
	err.Code = -32000
	return nil, err
}

type scriptedClient struct {
	events []model.Event
}

func (c *scriptedClient) Name() string { return "stub" }
func (c *scriptedClient) Close() error { return nil }
func (c *scriptedClient) Stream(ctx context.Context, req *model.Request) iter.Seq[model.Event] {
	return func(yield func(model.Event) bool) {
		for _, ev := range c.events {
			if !yield(ev) {
				return
			}
		}
	}
}

type noopThreads struct{}

func (noopThreads) Acquire(ctx context.Context, conversationID string, mode domain.Mode) (*domain.AgentThreadHandle, error) {
	return &domain.AgentThreadHandle{ConversationID: conversationID, Mode: mode}, nil
}

type recordingHistory struct {
	ensured  bool
	appended []domain.Message
}

func (h *recordingHistory) EnsureConversation(ctx context.Context, conversationID, userID, firstUserText string) (*domain.Conversation, error) {
	h.ensured = true
	return &domain.Conversation{ConversationID: conversationID}, nil
}
func (h *recordingHistory) AppendMessages(ctx context.Context, conversationID string, msgs []domain.Message) error {
	h.appended = append(h.appended, msgs...)
	return nil
}

func newTestOrchestrator(client model.Client, history HistoryRecorder) *Orchestrator {
	catalog := tool.NewCatalog()
	catalog.Register(stubSQLAdapter{})
	return New(Config{
		Catalog: catalog,
		Prompts: prompts.Default(),
		Threads: noopThreads{},
		History: history,
		Resolve: func(shape topology.ClientShape, choice domain.ModelChoice) (model.Client, error) {
			return client, nil
		},
	})
}

func TestHandleTurnPlainTextCompletesAndPersists(t *testing.T) {
	client := &scriptedClient{events: []model.Event{
		{Kind: model.EventTextDelta, TextDelta: "Top 3 products are A, B, C."},
		{Kind: model.EventDone, FinishReason: model.FinishStop},
	}}
	history := &recordingHistory{}
	o := newTestOrchestrator(client, history)

	var buf bytes.Buffer
	w := wire.NewWriter(&buf)

	err := o.HandleTurn(context.Background(), domain.TurnRequest{
		ConversationID: "conv-1",
		UserText:       "Top 3 products this month",
		Mode:           domain.ModeSQLOnly,
	}, w)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Top 3 products are A, B, C.")
	assert.Contains(t, buf.String(), `{"done":true}`)
	assert.True(t, history.ensured)
	require.Len(t, history.appended, 2)
	assert.Equal(t, domain.RoleUser, history.appended[0].Role)
	assert.Equal(t, domain.RoleAssistant, history.appended[1].Role)
}

func TestHandleTurnCancelledWritesDoneNotError(t *testing.T) {
	client := &scriptedClient{events: []model.Event{
		{Kind: model.EventTextDelta, TextDelta: "should never be reached"},
		{Kind: model.EventDone, FinishReason: model.FinishStop},
	}}
	history := &recordingHistory{}
	o := newTestOrchestrator(client, history)

	var buf bytes.Buffer
	w := wire.NewWriter(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.HandleTurn(ctx, domain.TurnRequest{
		ConversationID: "conv-cancel",
		UserText:       "Top 3 products this month",
		Mode:           domain.ModeSQLOnly,
	}, w)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `{"done":true}`)
	assert.NotContains(t, buf.String(), `"error"`)
}

func TestHandleTurnChartParseFailureWritesOnlyOneTerminalFrame(t *testing.T) {
	client := &scriptedClient{events: []model.Event{
		{Kind: model.EventTextDelta, TextDelta: "not a valid chart payload"},
		{Kind: model.EventDone, FinishReason: model.FinishStop},
	}}
	history := &recordingHistory{}
	o := newTestOrchestrator(client, history)

	var buf bytes.Buffer
	w := wire.NewWriter(&buf)

	err := o.HandleTurn(context.Background(), domain.TurnRequest{
		ConversationID: "conv-chart",
		UserText:       "Chart the top 3 products this month",
		Mode:           domain.ModeSQLOnly,
	}, w)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"error"`)
	assert.NotContains(t, buf.String(), `{"done":true}`)
}

// multiRoundClient returns one scripted event sequence per call to
// Stream, advancing a round counter — standing in for a model that asks
// for a tool call on round one and answers on round two.
type multiRoundClient struct {
	rounds [][]model.Event
	round  int
}

func (c *multiRoundClient) Name() string { return "stub" }
func (c *multiRoundClient) Close() error { return nil }
func (c *multiRoundClient) Stream(ctx context.Context, req *model.Request) iter.Seq[model.Event] {
	events := c.rounds[c.round]
	if c.round < len(c.rounds)-1 {
		c.round++
	}
	return func(yield func(model.Event) bool) {
		for _, ev := range events {
			if !yield(ev) {
				return
			}
		}
	}
}

func TestHandleTurnWithToolCallEmitsToolEventsThenAnswer(t *testing.T) {
	toolCallEvent := model.Event{
		Kind: model.EventToolCallRequest,
		ToolCall: &model.ToolCallRequest{CallID: "call-1", ToolName: "sql_query", Arguments: map[string]any{"query": "SELECT 1"}},
	}
	client := &multiRoundClient{rounds: [][]model.Event{
		{toolCallEvent, {Kind: model.EventDone, FinishReason: model.FinishToolCalls}},
		{{Kind: model.EventTextDelta, TextDelta: "Answer using SQL result."}, {Kind: model.EventDone, FinishReason: model.FinishStop}},
	}}

	history := &recordingHistory{}
	catalog := tool.NewCatalog()
	catalog.Register(stubSQLAdapter{})
	o := New(Config{
		Catalog: catalog,
		Prompts: prompts.Default(),
		Threads: noopThreads{},
		History: history,
		Resolve: func(shape topology.ClientShape, choice domain.ModelChoice) (model.Client, error) {
			return client, nil
		},
	})

	var buf bytes.Buffer
	w := wire.NewWriter(&buf)
	err := o.HandleTurn(context.Background(), domain.TurnRequest{
		ConversationID: "conv-2",
		UserText:       "Top 3 products this month",
		Mode:           domain.ModeSQLOnly,
	}, w)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "__TOOL_EVENT__")
	assert.Contains(t, buf.String(), "Answer using SQL result.")
}

func TestHandleTurnToolFailureSurfacesCodeInToolEvent(t *testing.T) {
	toolCallEvent := model.Event{
		Kind:     model.EventToolCallRequest,
		ToolCall: &model.ToolCallRequest{CallID: "call-1", ToolName: "sql_query", Arguments: map[string]any{"query": "SELECT 1"}},
	}
	client := &multiRoundClient{rounds: [][]model.Event{
		{toolCallEvent, {Kind: model.EventDone, FinishReason: model.FinishToolCalls}},
		{{Kind: model.EventTextDelta, TextDelta: "the analytics server is unavailable."}, {Kind: model.EventDone, FinishReason: model.FinishStop}},
	}}

	history := &recordingHistory{}
	catalog := tool.NewCatalog()
	catalog.Register(failingSQLAdapter{})
	o := New(Config{
		Catalog: catalog,
		Prompts: prompts.Default(),
		Threads: noopThreads{},
		History: history,
		Resolve: func(shape topology.ClientShape, choice domain.ModelChoice) (model.Client, error) {
			return client, nil
		},
	})

	var buf bytes.Buffer
	w := wire.NewWriter(&buf)
	err := o.HandleTurn(context.Background(), domain.TurnRequest{
		ConversationID: "conv-3",
		UserText:       "Top 3 products this month",
		Mode:           domain.ModeSQLOnly,
	}, w)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "upstream degraded")
	assert.Contains(t, buf.String(), `"Code":-32000`)
}
