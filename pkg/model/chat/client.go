// Package chat implements the Chat-style half of the LLM Client
// Abstraction (C2, spec.md §4.5): a Chat-Completions client, selected for
// handoff and magentic topologies, which need the full conversation
// history replayed on every call rather than a server-retained thread.
// The handoff/magentic scheduling itself — switching system instruction
// and tool catalog between specialists — lives in pkg/orchestrator, which
// drives this same Client across the specialist boundary without any
// extra scheduling type on this side.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kadirpekel/analystd/internal/httpclient"
	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/model"
)

// Client streams against an OpenAI-compatible Chat Completions endpoint,
// against Anthropic's Messages API when Deployment names a Claude model,
// or against Gemini's GenerateContent API when Deployment names a Gemini
// model — selected once at construction, never per-request, matching the
// deterministic selection rule in spec.md §4.5.
type Client struct {
	openaiSDK  openai.Client
	anthropic  *anthropicBackend
	gemini     *geminiBackend
	deployment string
	isClaude   bool
	isGemini   bool
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Deployment string

	// AnthropicAPIKey, when Deployment names a Claude model, routes the
	// client through the Anthropic backend instead of OpenAI-compatible
	// chat completions.
	AnthropicAPIKey string

	// GeminiAPIKey, when Deployment names a Gemini model, routes the
	// client through the Gemini backend instead of OpenAI-compatible
	// chat completions.
	GeminiAPIKey string
}

// New builds a Chat-style client for the given deployment.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Deployment == "" {
		return nil, fmt.Errorf("chat client: deployment is required")
	}
	c := &Client{deployment: opts.Deployment}
	switch {
	case isClaudeDeployment(opts.Deployment):
		backend, err := newAnthropicBackend(opts.AnthropicAPIKey, opts.Deployment)
		if err != nil {
			return nil, err
		}
		c.anthropic = backend
		c.isClaude = true
		return c, nil
	case isGeminiDeployment(opts.Deployment):
		backend, err := newGeminiBackend(ctx, opts.GeminiAPIKey, opts.Deployment)
		if err != nil {
			return nil, err
		}
		c.gemini = backend
		c.isGemini = true
		return c, nil
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	c.openaiSDK = openai.NewClient(reqOpts...)
	return c, nil
}

func isClaudeDeployment(deployment string) bool {
	return len(deployment) >= 6 && deployment[:6] == "claude"
}

// Name returns the configured deployment name.
func (c *Client) Name() string { return c.deployment }

// Close releases no resources beyond what the SDK clients themselves own.
func (c *Client) Close() error { return nil }

func toChatMessages(req *model.Request) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemInstruction != "" {
		out = append(out, openai.SystemMessage(req.SystemInstruction))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func toChatTools(specs []domain.ToolSpec) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, s := range specs {
		props := make(map[string]any, len(s.Parameters))
		var required []string
		for _, p := range s.Parameters {
			props[p.Name] = map[string]any{"type": p.Type, "description": p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		schema := map[string]any{"type": "object", "properties": props, "required": required}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        s.Name,
			Description: openai.String(s.Description),
			Parameters:  schema,
		}))
	}
	return out
}

// Stream implements model.Client over Chat Completions (or, when the
// deployment names a Claude or Gemini model, over that vendor's backend).
func (c *Client) Stream(ctx context.Context, req *model.Request) iter.Seq[model.Event] {
	if c.isClaude {
		return c.anthropic.Stream(ctx, req)
	}
	if c.isGemini {
		return c.gemini.Stream(ctx, req)
	}

	return func(yield func(model.Event) bool) {
		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(c.deployment),
			Messages: toChatMessages(req),
		}
		if len(req.Tools) > 0 {
			params.Tools = toChatTools(req.Tools)
		}
		if req.Config != nil && req.Config.Temperature != nil {
			params.Temperature = openai.Float(*req.Config.Temperature)
		}

		stream := c.openaiSDK.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		type accumulatingCall struct {
			id, name, args string
		}
		calls := map[int64]*accumulatingCall{}

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				if !yield(model.Event{Kind: model.EventTextDelta, TextDelta: choice.Delta.Content}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				acc, ok := calls[tc.Index]
				if !ok {
					acc = &accumulatingCall{}
					calls[tc.Index] = acc
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.args += tc.Function.Arguments
			}
			if choice.FinishReason == "tool_calls" {
				for _, acc := range calls {
					var args map[string]any
					if err := json.Unmarshal([]byte(acc.args), &args); err != nil {
						args = map[string]any{}
					}
					if !yield(model.Event{Kind: model.EventToolCallRequest, ToolCall: &model.ToolCallRequest{
						CallID:    acc.id,
						ToolName:  acc.name,
						Arguments: args,
					}}) {
						return
					}
				}
				calls = map[int64]*accumulatingCall{}
			}
			if choice.FinishReason == "stop" {
				if !yield(model.Event{Kind: model.EventDone, FinishReason: model.FinishStop}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(model.Event{Kind: model.EventError, Err: classifyOpenAIStreamError(err, "chat completion stream failed")})
		}
	}
}

// classifyOpenAIStreamError distinguishes a rate-limited upstream from a
// generic unavailable one, using the Retry-After/x-ratelimit-* headers
// the OpenAI SDK attaches to its *openai.Error on a 429 response (spec.md
// §7's upstream_rate_limited vs upstream_unavailable kinds).
func classifyOpenAIStreamError(err error, message string) *apperr.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests && apiErr.Response != nil {
		info := httpclient.ParseOpenAIRateLimitHeaders(apiErr.Response.Header)
		return apperr.UpstreamRateLimited(fmt.Sprintf("%s: rate limited, retry after %s", message, info.RetryAfter), err)
	}
	return apperr.UpstreamUnavailable(message, err)
}
