package chat

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/model"
)

// geminiBackend implements the MODEL_SECONDARY path when the configured
// deployment names a Gemini model, mirroring anthropicBackend's shape so
// Client.Stream can dispatch to whichever vendor backend the deployment
// name selects.
type geminiBackend struct {
	sdk   *genai.Client
	model string
}

func newGeminiBackend(ctx context.Context, apiKey, deployment string) (*geminiBackend, error) {
	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini backend: %w", err)
	}
	return &geminiBackend{sdk: sdk, model: deployment}, nil
}

func isGeminiDeployment(deployment string) bool {
	return len(deployment) >= 6 && deployment[:6] == "gemini"
}

func toGeminiContents(msgs []model.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		case domain.RoleAssistant:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			out = append(out, genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromFunctionResponse(m.ToolName, map[string]any{"result": m.Content}),
			}, genai.RoleUser))
		}
	}
	return out
}

func toGeminiTools(specs []domain.ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		props := make(map[string]*genai.Schema, len(s.Parameters))
		var required []string
		for _, p := range s.Parameters {
			props[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (b *geminiBackend) Stream(ctx context.Context, req *model.Request) iter.Seq[model.Event] {
	return func(yield func(model.Event) bool) {
		config := &genai.GenerateContentConfig{}
		if req.SystemInstruction != "" {
			config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
		}
		if len(req.Tools) > 0 {
			config.Tools = toGeminiTools(req.Tools)
		}
		if req.Config != nil && req.Config.Temperature != nil {
			temp := float32(*req.Config.Temperature)
			config.Temperature = &temp
		}

		var streamErr error
		for resp, err := range b.sdk.Models.GenerateContentStream(ctx, b.model, toGeminiContents(req.Messages), config) {
			if err != nil {
				streamErr = err
				break
			}
			if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text != "" {
					if !yield(model.Event{Kind: model.EventTextDelta, TextDelta: part.Text}) {
						return
					}
				}
				if part.FunctionCall != nil {
					if !yield(model.Event{Kind: model.EventToolCallRequest, ToolCall: &model.ToolCallRequest{
						CallID:    part.FunctionCall.Name,
						ToolName:  part.FunctionCall.Name,
						Arguments: part.FunctionCall.Args,
					}}) {
						return
					}
				}
			}
		}
		if streamErr != nil {
			yield(model.Event{Kind: model.EventError, Err: apperr.UpstreamUnavailable("gemini stream failed", streamErr)})
			return
		}
		yield(model.Event{Kind: model.EventDone, FinishReason: model.FinishStop})
	}
}
