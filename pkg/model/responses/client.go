// Package responses implements the Responses-style half of the LLM
// Client Abstraction (C2), over the OpenAI Responses API via
// github.com/openai/openai-go. It is selected when LLM_BASE_URL_RESPONSES
// is configured (spec.md §4.5).
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/kadirpekel/analystd/internal/httpclient"
	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/model"
)

// Client streams against the OpenAI Responses API.
type Client struct {
	sdk        openai.Client
	deployment string
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIVersion string
	APIKey     string
	Deployment string
}

// New builds a Responses-style client.
func New(opts Options) (*Client, error) {
	if opts.Deployment == "" {
		return nil, fmt.Errorf("responses client: deployment is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.APIVersion != "" {
		reqOpts = append(reqOpts, option.WithQuery("api-version", opts.APIVersion))
	}
	return &Client{sdk: openai.NewClient(reqOpts...), deployment: opts.Deployment}, nil
}

// Name returns the configured deployment name.
func (c *Client) Name() string { return c.deployment }

// Close releases no resources; the SDK client owns a stdlib http.Client
// with no explicit teardown hook.
func (c *Client) Close() error { return nil }

func toResponsesInput(msgs []model.Message) responses.ResponseNewParamsInputUnion {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleUser))
		case domain.RoleAssistant:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleAssistant))
		default:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(m.ToolCallID, m.Content))
		}
	}
	return responses.ResponseNewParamsInputUnion{OfInputItemList: items}
}

func toResponsesTools(specs []domain.ToolSpec) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		schema := toolParamsSchema(s)
		out = append(out, responses.ToolParamOfFunction(s.Name, schema, true).OfFunction.ToParam())
	}
	return out
}

// toolParamsSchema builds the JSON schema object for a ToolSpec's
// declared parameters. Building it inline from ToolSpec.Parameters keeps
// ToolSpec the single source of truth; no adapter models its arguments as
// a Go struct, and no reflection-based schema library is used.
func toolParamsSchema(s domain.ToolSpec) map[string]any {
	props := make(map[string]any, len(s.Parameters))
	var required []string
	for _, p := range s.Parameters {
		props[p.Name] = map[string]any{"type": p.Type, "description": p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// Stream implements model.Client.
func (c *Client) Stream(ctx context.Context, req *model.Request) iter.Seq[model.Event] {
	return func(yield func(model.Event) bool) {
		params := responses.ResponseNewParams{
			Model: shared.ResponsesModel(c.deployment),
			Input: toResponsesInput(req.Messages),
		}
		if req.SystemInstruction != "" {
			params.Instructions = openai.String(req.SystemInstruction)
		}
		if len(req.Tools) > 0 {
			params.Tools = toResponsesTools(req.Tools)
		}
		if req.ThreadID != "" {
			params.PreviousResponseID = openai.String(req.ThreadID)
		}
		if req.Config != nil {
			if req.Config.Temperature != nil {
				params.Temperature = openai.Float(*req.Config.Temperature)
			}
			if req.Config.ReasoningEffort != "" {
				params.Reasoning.Effort = shared.ReasoningEffort(req.Config.ReasoningEffort)
			}
			if req.Config.ReasoningSummary != "" && req.Config.ReasoningSummary != domain.SummaryOff {
				params.Reasoning.Summary = shared.ReasoningSummary(req.Config.ReasoningSummary)
			}
		}

		stream := c.sdk.Responses.NewStreaming(ctx, params)
		defer stream.Close()

		var cumulativeReasoning string
		pendingCalls := map[string]*model.ToolCallRequest{}

		for stream.Next() {
			evt := stream.Current()
			switch variant := evt.AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				if !yield(model.Event{Kind: model.EventTextDelta, TextDelta: variant.Delta}) {
					return
				}
			case responses.ResponseReasoningSummaryTextDeltaEvent:
				cumulativeReasoning += variant.Delta
				if !yield(model.Event{Kind: model.EventReasoningDelta, ReasoningDelta: cumulativeReasoning}) {
					return
				}
			case responses.ResponseOutputItemAddedEvent:
				if fc := variant.Item.AsFunctionCall(); fc.CallID != "" {
					pendingCalls[fc.CallID] = &model.ToolCallRequest{CallID: fc.CallID, ToolName: fc.Name, StepID: req.ThreadID}
				}
			case responses.ResponseFunctionCallArgumentsDoneEvent:
				call, ok := pendingCalls[variant.ItemID]
				if !ok {
					call = &model.ToolCallRequest{CallID: variant.ItemID}
				}
				var args map[string]any
				if err := json.Unmarshal([]byte(variant.Arguments), &args); err != nil {
					args = map[string]any{}
				}
				call.Arguments = args
				if !yield(model.Event{Kind: model.EventToolCallRequest, ToolCall: call}) {
					return
				}
			case responses.ResponseCompletedEvent:
				if !yield(model.Event{Kind: model.EventDone, FinishReason: model.FinishStop}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(model.Event{Kind: model.EventError, Err: classifyStreamError(err, "responses stream failed")})
		}
	}
}

// classifyStreamError distinguishes a rate-limited upstream from a
// generic unavailable one so the orchestrator can tell the client apart
// (spec.md §7's upstream_rate_limited vs upstream_unavailable kinds),
// using the Retry-After/x-ratelimit-* headers the OpenAI SDK attaches to
// its *openai.Error on a 429 response.
func classifyStreamError(err error, message string) *apperr.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests && apiErr.Response != nil {
		info := httpclient.ParseOpenAIRateLimitHeaders(apiErr.Response.Header)
		return apperr.UpstreamRateLimited(fmt.Sprintf("%s: rate limited, retry after %s", message, info.RetryAfter), err)
	}
	return apperr.UpstreamUnavailable(message, err)
}
