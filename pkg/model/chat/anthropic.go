package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kadirpekel/analystd/internal/httpclient"
	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/model"
)

// anthropicBackend implements the MODEL_SECONDARY path when the
// configured deployment names a Claude model.
type anthropicBackend struct {
	sdk   anthropic.Client
	model string
}

func newAnthropicBackend(apiKey, deployment string) (*anthropicBackend, error) {
	return &anthropicBackend{
		sdk:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		model: deployment,
	}, nil
}

func toAnthropicMessages(msgs []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case domain.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out
}

func toAnthropicTools(specs []domain.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		props := make(map[string]any, len(s.Parameters))
		var required []string
		for _, p := range s.Parameters {
			props[p.Name] = map[string]any{"type": p.Type, "description": p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: props,
			Required:   required,
		}, s.Name))
	}
	return out
}

func (b *anthropicBackend) Stream(ctx context.Context, req *model.Request) iter.Seq[model.Event] {
	return func(yield func(model.Event) bool) {
		params := anthropic.MessageNewParams{
			Model:    anthropic.Model(b.model),
			Messages: toAnthropicMessages(req.Messages),
			MaxTokens: 4096,
		}
		if req.SystemInstruction != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
		}
		if len(req.Tools) > 0 {
			params.Tools = toAnthropicTools(req.Tools)
		}
		if req.Config != nil && req.Config.Temperature != nil {
			params.Temperature = anthropic.Float(*req.Config.Temperature)
		}

		stream := b.sdk.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		type accumulatingCall struct {
			id, name, args string
		}
		var current *accumulatingCall

		for stream.Next() {
			evt := stream.Current()
			switch variant := evt.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if tu := variant.ContentBlock.AsToolUse(); tu.ID != "" {
					current = &accumulatingCall{id: tu.ID, name: tu.Name}
				}
			case anthropic.ContentBlockDeltaEvent:
				if textDelta := variant.Delta.AsTextDelta(); textDelta.Text != "" {
					if !yield(model.Event{Kind: model.EventTextDelta, TextDelta: textDelta.Text}) {
						return
					}
				}
				if inputDelta := variant.Delta.AsInputJSONDelta(); inputDelta.PartialJSON != "" && current != nil {
					current.args += inputDelta.PartialJSON
				}
			case anthropic.ContentBlockStopEvent:
				if current != nil {
					var args map[string]any
					if err := json.Unmarshal([]byte(current.args), &args); err != nil {
						args = map[string]any{}
					}
					if !yield(model.Event{Kind: model.EventToolCallRequest, ToolCall: &model.ToolCallRequest{
						CallID:    current.id,
						ToolName:  current.name,
						Arguments: args,
					}}) {
						return
					}
					current = nil
				}
			case anthropic.MessageStopEvent:
				if !yield(model.Event{Kind: model.EventDone, FinishReason: model.FinishStop}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(model.Event{Kind: model.EventError, Err: classifyAnthropicStreamError(err, "anthropic stream failed")})
		}
	}
}

// classifyAnthropicStreamError mirrors the OpenAI-facing client's
// rate-limit classification, reading the Anthropic-specific rate limit
// headers off the *anthropic.Error a 429 response produces.
func classifyAnthropicStreamError(err error, message string) *apperr.Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests && apiErr.Response != nil {
		info := httpclient.ParseAnthropicRateLimitHeaders(apiErr.Response.Header)
		return apperr.UpstreamRateLimited(fmt.Sprintf("%s: rate limited, retry after %s", message, info.RetryAfter), err)
	}
	return apperr.UpstreamUnavailable(message, err)
}
