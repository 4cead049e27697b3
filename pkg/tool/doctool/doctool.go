// Package doctool implements the doc-retrieval adapter of C1 (spec.md
// §4.4): an agentic retrieval call against an external knowledge-base
// endpoint, reasoning_effort-aware. Grounded on the teacher's
// pkg/tool/webtool HTTP-client wiring pattern (httpclient.Client +
// functiontool-style JSON decode), adapted for the doc-retrieval
// contract's query/effort/citations shape instead of raw HTTP passthrough.
package doctool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kadirpekel/analystd/internal/httpclient"
	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
)

// effortTimeouts gives each reasoning_effort tier its own budget: minimal
// retrieval never invokes an LLM on the retrieval side and should return
// quickly, medium permits multi-pass iteration and gets the longest
// budget.
var effortTimeouts = map[domain.ReasoningEffort]time.Duration{
	domain.EffortMinimal: 10 * time.Second,
	domain.EffortLow:     20 * time.Second,
	domain.EffortMedium:  45 * time.Second,
}

const defaultTimeout = 20 * time.Second

// Adapter queries an agentic document retrieval endpoint.
type Adapter struct {
	endpoint      string
	knowledgeBase string
	defaultEffort domain.ReasoningEffort
	httpClient    *http.Client
}

// Config configures a doctool Adapter.
type Config struct {
	Endpoint      string
	KnowledgeBase string
	DefaultEffort domain.ReasoningEffort
}

// New builds a doc-retrieval adapter.
func New(cfg Config) *Adapter {
	effort := cfg.DefaultEffort
	if effort == "" {
		effort = domain.EffortLow
	}
	return &Adapter{
		endpoint:      cfg.Endpoint,
		knowledgeBase: cfg.KnowledgeBase,
		defaultEffort: effort,
		httpClient:    &http.Client{},
	}
}

// Spec describes the doc_search tool.
func (a *Adapter) Spec() domain.ToolSpec {
	return domain.ToolSpec{
		Name:        "doc_search",
		Description: "Search internal documents and knowledge base articles for an answer, returning a summary and citations.",
		Parameters: []domain.ToolParameter{
			{Name: "query", Type: "string", Required: true, Description: "The natural-language question to retrieve documents for."},
			{Name: "reasoning_effort", Type: "string", Required: false, Description: "One of minimal, low, medium. minimal never invokes an LLM on the retrieval side; medium permits multi-pass iteration."},
		},
		Approval: domain.ApprovalNone,
	}
}

type retrievalRequest struct {
	Query         string `json:"query"`
	KnowledgeBase string `json:"knowledge_base,omitempty"`
	Effort        string `json:"reasoning_effort"`
}

type retrievalCitation struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

type retrievalResponse struct {
	Summary   string              `json:"summary"`
	Citations []retrievalCitation `json:"citations"`
}

// Call issues the retrieval request and maps the response into a
// ToolResult with populated Citations.
func (a *Adapter) Call(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, apperr.Validation("doc_search requires a non-empty query argument")
	}
	effort := a.defaultEffort
	if raw, ok := args["reasoning_effort"].(string); ok && raw != "" {
		effort = domain.ReasoningEffort(raw)
	}

	timeout, ok := effortTimeouts[effort]
	if !ok {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(retrievalRequest{Query: query, KnowledgeBase: a.knowledgeBase, Effort: string(effort)})
	if err != nil {
		return nil, apperr.Internal("failed to encode doc_search request", err, "")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Internal("failed to build doc_search request", err, "")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, apperr.ToolTransient("doc_search request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apperr.ToolTransient(fmt.Sprintf("doc_search upstream returned %d", resp.StatusCode), &httpclient.RetryableError{StatusCode: resp.StatusCode, Message: "doc_search upstream error"})
	}
	if resp.StatusCode >= 400 {
		return nil, apperr.ToolPermanent(fmt.Sprintf("doc_search upstream returned %d", resp.StatusCode), nil)
	}

	var decoded retrievalResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperr.ToolPermanent("doc_search response was not valid JSON", err)
	}

	citations := make([]domain.Citation, 0, len(decoded.Citations))
	for i, c := range decoded.Citations {
		citations = append(citations, domain.Citation{
			Index:     i + 1,
			Title:     c.Title,
			URL:       c.URL,
			Snippet:   c.Snippet,
			Relevance: c.Relevance,
		})
	}

	return &domain.ToolResult{
		TextSummary: decoded.Summary,
		Citations:   citations,
	}, nil
}
