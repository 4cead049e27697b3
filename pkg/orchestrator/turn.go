package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/chart"
	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/model"
	"github.com/kadirpekel/analystd/pkg/observability"
	"github.com/kadirpekel/analystd/pkg/tool"
	"github.com/kadirpekel/analystd/pkg/topology"
	"github.com/kadirpekel/analystd/pkg/wire"
)

// turnState carries the mutable state of one in-flight turn through its
// model<->tool rounds.
type turnState struct {
	topo     *topology.Topology
	client   model.Client
	catalog  *tool.Catalog
	writer   *wire.Writer
	onFrame  func()
	threadID string
	logger   *slog.Logger

	occurrence map[string]int

	accumulatedText   string
	cumulativeReason  string
	citations         []domain.Citation
	activeSpecialist  *topology.Specialist

	// terminalWritten is set once this turn has already written its own
	// terminal frame (e.g. the chart-parse-failure error frame below),
	// so the orchestrator knows not to also write a `done` frame on top
	// of it.
	terminalWritten bool
}

// run drives the model<->tool loop to completion and returns the
// finalized assistant message (for persistence) plus a non-nil error
// when the turn did not reach a clean `done`.
func (t *turnState) run(ctx context.Context, req domain.TurnRequest) (*domain.Message, error) {
	messages := []model.Message{{Role: domain.RoleUser, Content: req.UserText}}
	systemInstruction := t.topo.EntrySystemInstruction
	allowedTools := t.topo.EntryAllowedTools

	intentIsChart := chart.DetectIntent(req.UserText)

	for round := 0; round < maxToolRounds; round++ {
		if err := ctx.Err(); err != nil {
			return t.finalize(req, apperr.Cancelled("turn cancelled"))
		}

		tools := topology.Filter(t.catalog, allowedTools)
		if t.topo.Mode == domain.ModeHandoff && round == 0 {
			tools = append(tools, transferToolSpec(t.topo))
		}

		genReq := &model.Request{
			Messages:          messages,
			Tools:             tools,
			SystemInstruction: systemInstruction,
			ThreadID:          t.threadID,
			Config: &model.GenerateConfig{
				ReasoningEffort:  req.ModelReasoningEffort,
				ReasoningSummary: req.ReasoningSummary,
			},
		}
		if req.Temperature != nil {
			genReq.Config.Temperature = req.Temperature
		}

		toolCalls, transfer, streamErr := t.streamOneModelStep(ctx, genReq)
		if streamErr != nil {
			return t.finalize(req, streamErr)
		}

		if transfer != "" {
			specialist, ok := t.topo.SpecialistByName(transfer)
			if !ok {
				return t.finalize(req, apperr.ToolPermanent(fmt.Sprintf("unknown specialist %q", transfer), nil))
			}
			t.activeSpecialist = &specialist
			systemInstruction = specialist.SystemInstruction
			allowedTools = specialist.AllowedTools
			messages = append(messages, model.Message{Role: domain.RoleAssistant, Content: ""})
			continue
		}

		if len(toolCalls) == 0 {
			return t.completeTurn(req, intentIsChart)
		}

		results := t.dispatchToolCalls(ctx, toolCalls)
		messages = append(messages, model.Message{Role: domain.RoleAssistant, Content: t.accumulatedText})
		for _, r := range results {
			messages = append(messages, model.Message{
				Role:       "tool",
				Content:    r.summary,
				ToolCallID: r.callID,
				ToolName:   r.toolName,
			})
		}
	}

	return t.finalize(req, apperr.ToolPermanent("tool round limit exceeded", nil))
}

// streamOneModelStep drains one model.Client.Stream call, writing text
// and reasoning frames as they arrive, and collects any tool calls the
// model requested in this step. It returns the transfer target name
// when the model invoked the synthetic transfer tool (handoff mode).
func (t *turnState) streamOneModelStep(ctx context.Context, req *model.Request) ([]model.ToolCallRequest, string, error) {
	var calls []model.ToolCallRequest
	var transferTo string
	var streamErr error

	for ev := range t.client.Stream(ctx, req) {
		switch ev.Kind {
		case model.EventTextDelta:
			t.accumulatedText += ev.TextDelta
			t.onFrame()
			if err := t.writer.WriteTextDelta(t.accumulatedText, nil); err != nil {
				return nil, "", apperr.Internal("failed to write text delta", err, "")
			}
		case model.EventReasoningDelta:
			t.cumulativeReason = ev.ReasoningDelta
			t.onFrame()
			if err := t.writer.WriteReasoning(t.cumulativeReason); err != nil {
				return nil, "", apperr.Internal("failed to write reasoning delta", err, "")
			}
		case model.EventCitation:
			if ev.Citation != nil {
				t.citations = append(t.citations, *ev.Citation)
			}
		case model.EventToolCallRequest:
			if ev.ToolCall != nil {
				if ev.ToolCall.ToolName == topology.TransferToolName {
					transferTo, _ = ev.ToolCall.Arguments["specialist"].(string)
					continue
				}
				calls = append(calls, *ev.ToolCall)
			}
		case model.EventDone:
			// handled by loop exit below
		case model.EventError:
			streamErr = ev.Err
		}
	}
	if streamErr != nil {
		if aerr, ok := apperr.As(streamErr); ok {
			return nil, "", aerr
		}
		return nil, "", apperr.UpstreamUnavailable("model stream failed", streamErr)
	}
	return calls, transferTo, nil
}

type toolCallOutcome struct {
	callID, toolName, summary string
}

// dispatchToolCalls executes calls concurrently when the model issued
// more than one in the same step, preserving model-requested order in
// the returned slice (spec.md §5).
func (t *turnState) dispatchToolCalls(ctx context.Context, calls []model.ToolCallRequest) []toolCallOutcome {
	results := make([]toolCallOutcome, len(calls))
	group, groupCtx := errgroup.WithContext(ctx)

	for i, call := range calls {
		i, call := i, call
		group.Go(func() error {
			results[i] = t.dispatchOne(groupCtx, call)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (t *turnState) dispatchOne(ctx context.Context, call model.ToolCallRequest) toolCallOutcome {
	t.occurrence[call.ToolName]++
	occurrence := domain.Occurrence(t.occurrence[call.ToolName])

	ctx, span := observability.StartToolSpan(ctx, call.ToolName, int(occurrence))
	defer span.End()

	t.onFrame()
	_ = t.writer.WriteToolEvent(domain.ToolEvent{
		Tool:       call.ToolName,
		Phase:      domain.ToolPhaseStart,
		Occurrence: occurrence,
		ArgsDigest: digestArgs(call.Arguments),
	})

	adapter, ok := t.catalog.Get(call.ToolName)
	if !ok {
		err := apperr.ToolPermanent(fmt.Sprintf("unknown tool %q", call.ToolName), nil)
		observability.EndWithError(span, err)
		_ = t.writer.WriteToolEvent(domain.ToolEvent{
			Tool: call.ToolName, Phase: domain.ToolPhaseError, Occurrence: occurrence, Error: err.Message,
		})
		return toolCallOutcome{callID: call.CallID, toolName: call.ToolName, summary: err.Message}
	}

	for _, p := range adapter.Spec().Parameters {
		if _, present := call.Arguments[p.Name]; p.Required && !present {
			err := apperr.ToolPermanent(fmt.Sprintf("missing required argument %q", p.Name), nil)
			observability.EndWithError(span, err)
			_ = t.writer.WriteToolEvent(domain.ToolEvent{
				Tool: call.ToolName, Phase: domain.ToolPhaseError, Occurrence: occurrence, Error: err.Message,
			})
			return toolCallOutcome{callID: call.CallID, toolName: call.ToolName, summary: err.Message}
		}
	}

	start := time.Now()
	result, err := adapter.Call(ctx, call.Arguments)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		observability.EndWithError(span, err)
		msg := "tool failed"
		var code int
		if aerr, ok := apperr.As(err); ok {
			msg = aerr.Message
			code = aerr.Code
		}
		_ = t.writer.WriteToolEvent(domain.ToolEvent{
			Tool: call.ToolName, Phase: domain.ToolPhaseError, Occurrence: occurrence, LatencyMS: latency, Error: msg, Code: code,
		})
		return toolCallOutcome{callID: call.CallID, toolName: call.ToolName, summary: msg}
	}

	summary := truncate(result.TextSummary, 4000)
	t.citations = append(t.citations, result.Citations...)
	_ = t.writer.WriteToolEvent(domain.ToolEvent{
		Tool: call.ToolName, Phase: domain.ToolPhaseSuccess, Occurrence: occurrence, LatencyMS: latency, ResultSummary: truncate(result.TextSummary, 200),
	})
	return toolCallOutcome{callID: call.CallID, toolName: call.ToolName, summary: summary}
}

// completeTurn shapes the final frame (chart or text+citations) per
// spec.md §4.3 and returns the persisted-message representation.
func (t *turnState) completeTurn(req domain.TurnRequest, intentIsChart bool) (*domain.Message, error) {
	msg := &domain.Message{
		ConversationID: req.ConversationID,
		Role:           domain.RoleAssistant,
		Content:        t.accumulatedText,
		Citations:      t.citations,
		CreatedAt:      time.Now(),
	}

	if intentIsChart {
		charts, err := chart.Parse(strings.TrimSpace(t.accumulatedText))
		if err != nil {
			_ = t.writer.WriteError(chart.UserFacingError())
			t.terminalWritten = true
			msg.Role = domain.RoleError
			msg.Content = chart.UserFacingError()
			return msg, nil
		}
		if err := t.writer.WriteChart(charts...); err != nil {
			return nil, apperr.Internal("failed to write chart frame", err, "")
		}
		msg.Chart = &charts[0]
		msg.Content = ""
		return msg, nil
	}

	if len(t.citations) > 0 {
		if err := t.writer.WriteTextDelta(t.accumulatedText, t.citations); err != nil {
			return nil, apperr.Internal("failed to write citations frame", err, "")
		}
	}
	return msg, nil
}

func (t *turnState) finalize(req domain.TurnRequest, err error) (*domain.Message, error) {
	if t.accumulatedText == "" {
		return nil, err
	}
	return &domain.Message{
		ConversationID: req.ConversationID,
		Role:           domain.RoleAssistant,
		Content:        t.accumulatedText,
		Citations:      t.citations,
		CreatedAt:      time.Now(),
	}, err
}

func transferToolSpec(topo *topology.Topology) domain.ToolSpec {
	names := make([]string, 0, len(topo.Specialists))
	for _, s := range topo.Specialists {
		names = append(names, s.Name)
	}
	return domain.ToolSpec{
		Name:        topology.TransferToolName,
		Description: fmt.Sprintf("Transfer the conversation to one specialist: %s.", strings.Join(names, ", ")),
		Parameters: []domain.ToolParameter{
			{Name: "specialist", Type: "string", Required: true, Description: "The specialist name to transfer to."},
		},
		Approval: domain.ApprovalNone,
	}
}
