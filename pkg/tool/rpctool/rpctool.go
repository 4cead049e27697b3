// Package rpctool implements the RPC analytics adapter of C1 (spec.md
// §4.4, §6.5): a JSON-RPC 2.0 client against a configurable "business
// analytics" tool server, using the wire envelope types from
// github.com/sourcegraph/jsonrpc2 over plain HTTP POST rather than that
// library's duplex-connection transport, since the server here is a
// stateless request/response endpoint, not a long-lived peer connection.
package rpctool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
)

// ToolsListEntry is one entry of the "tools/list" response.
type ToolsListEntry struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Parameters  []domain.ToolParameter  `json:"parameters"`
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Registry exposes the RPC server's tool catalog as individual
// ToolSpecs, fetched once per process per spec.md §4.4.
type Registry struct {
	endpoint   string
	httpClient *http.Client

	mu      sync.Mutex
	fetched bool
	tools   []ToolsListEntry
}

// NewRegistry builds an RPC analytics registry.
func NewRegistry(endpoint string) *Registry {
	return &Registry{endpoint: endpoint, httpClient: &http.Client{}}
}

// Adapters fetches the tool list (once) and returns one Adapter per
// advertised tool.
func (r *Registry) Adapters(ctx context.Context) ([]*Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fetched {
		tools, err := r.listTools(ctx)
		if err != nil {
			return nil, err
		}
		r.tools = tools
		r.fetched = true
	}

	adapters := make([]*Adapter, 0, len(r.tools))
	for _, t := range r.tools {
		adapters = append(adapters, &Adapter{registry: r, entry: t})
	}
	return adapters, nil
}

func (r *Registry) listTools(ctx context.Context) ([]ToolsListEntry, error) {
	var result struct {
		Tools []ToolsListEntry `json:"tools"`
	}
	if err := r.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// call issues one JSON-RPC 2.0 request over HTTP POST and decodes
// result into out (if non-nil). Errors returned here carry only the
// upstream's Message, never its internal Data payload, per spec.md §6.5.
func (r *Registry) call(ctx context.Context, method string, params any, out any) error {
	req := &jsonrpc2.Request{Method: method, ID: jsonrpc2.ID{Num: 1}}
	if params != nil {
		if err := req.SetParams(params); err != nil {
			return apperr.Internal("failed to encode rpc params", err, "")
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return apperr.Internal("failed to encode rpc request", err, "")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return apperr.Internal("failed to build rpc request", err, "")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return apperr.ToolTransient("rpc analytics connection failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return apperr.ToolTransient(fmt.Sprintf("rpc analytics server returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return apperr.ToolPermanent(fmt.Sprintf("rpc analytics server returned %d", resp.StatusCode), nil)
	}

	var rpcResp jsonrpc2.Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return apperr.ToolPermanent("rpc analytics response was not valid JSON-RPC", err)
	}
	if rpcResp.Error != nil {
		err := apperr.ToolTransient(rpcResp.Error.Message, nil)
		err.Code = int(rpcResp.Error.Code)
		return err
	}
	if out != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(*rpcResp.Result, out); err != nil {
			return apperr.ToolPermanent("rpc analytics result did not match expected shape", err)
		}
	}
	return nil
}

// Adapter wraps one RPC-advertised tool as a tool.Adapter.
type Adapter struct {
	registry *Registry
	entry    ToolsListEntry
}

// Spec describes this RPC tool using the schema the server advertised.
func (a *Adapter) Spec() domain.ToolSpec {
	return domain.ToolSpec{
		Name:        a.entry.Name,
		Description: a.entry.Description,
		Parameters:  a.entry.Parameters,
		Approval:    domain.ApprovalNone,
	}
}

// Call invokes "tools/call" with this tool's name and the supplied
// arguments. Per spec.md §4.4 the orchestrator does not retry an RPC
// call within a turn on failure.
func (a *Adapter) Call(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
	var result struct {
		Summary    string           `json:"summary"`
		Structured any              `json:"structured"`
		Citations  []domain.Citation `json:"citations"`
	}
	if err := a.registry.call(ctx, "tools/call", toolsCallParams{Name: a.entry.Name, Arguments: args}, &result); err != nil {
		return nil, err
	}
	return &domain.ToolResult{
		TextSummary: result.Summary,
		Structured:  result.Structured,
		Citations:   result.Citations,
	}, nil
}
