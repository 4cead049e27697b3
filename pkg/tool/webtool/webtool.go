// Package webtool implements the web grounding search adapter of C1
// (spec.md §4.4), grounded on the teacher's pkg/tool/webtool HTTP-client
// wiring (domain allow/deny-list validation, httpclient retry wrapper)
// adapted to a grounded search contract with a soft timeout: a timeout
// is a successful ToolResult carrying a "search timed out" summary, not
// an error, so the model can continue without the web path.
package webtool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"time"

	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
)

const defaultTimeout = 90 * time.Second

// Adapter issues grounded web search queries.
type Adapter struct {
	connectionName string
	projectEndpoint string
	httpClient     *http.Client
	timeout        time.Duration
}

// Config configures a webtool Adapter.
type Config struct {
	ConnectionName  string
	ProjectEndpoint string
}

// New builds a web search adapter.
func New(cfg Config) *Adapter {
	return &Adapter{
		connectionName:  cfg.ConnectionName,
		projectEndpoint: cfg.ProjectEndpoint,
		httpClient:      &http.Client{},
		timeout:         defaultTimeout,
	}
}

// Spec describes the web_search tool.
func (a *Adapter) Spec() domain.ToolSpec {
	return domain.ToolSpec{
		Name:        "web_search",
		Description: "Search the public web for grounded, citable information.",
		Parameters: []domain.ToolParameter{
			{Name: "query", Type: "string", Required: true, Description: "The search query."},
		},
		Approval: domain.ApprovalNone,
	}
}

type searchCitation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Summary   string           `json:"summary"`
	Citations []searchCitation `json:"citations"`
}

// Call issues a grounded search request. A deadline exceeded or
// context-cancelled error from the HTTP round trip is NOT propagated as
// an error — per spec.md §4.4 it becomes a successful ToolResult with a
// "search timed out" summary and no citations, distinct from genuine
// cancellation of the whole turn (checked via ctx.Err() before the soft
// swallow, so turn-level cancellation still propagates).
func (a *Adapter) Call(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, apperr.Validation("web_search requires a non-empty query argument")
	}

	searchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	endpoint := a.projectEndpoint + "/search?connection=" + url.QueryEscape(a.connectionName) + "&q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(searchCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.Internal("failed to build web_search request", err, "")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Cancelled("web_search cancelled")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &domain.ToolResult{TextSummary: "search timed out"}, nil
		}
		return nil, apperr.ToolTransient("web_search request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apperr.ToolTransient(fmt.Sprintf("web_search upstream returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, apperr.ToolPermanent(fmt.Sprintf("web_search upstream returned %d", resp.StatusCode), nil)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperr.ToolPermanent("web_search response was not valid JSON", err)
	}

	citations := make([]domain.Citation, 0, len(decoded.Citations))
	for i, c := range decoded.Citations {
		citations = append(citations, domain.Citation{Index: i + 1, Title: c.Title, URL: c.URL, Snippet: c.Snippet})
	}

	return &domain.ToolResult{TextSummary: decoded.Summary, Citations: citations}, nil
}
