// Package tool defines the uniform contract (C1, spec.md §4.4) over the
// four external capabilities this service orchestrates: SQL, agentic
// document retrieval, web grounding search, and remote JSON-RPC
// analytics. The interface is a deliberately narrower cousin of the
// teacher's tool.CallableTool: every adapter here is synchronous,
// blocking, and has no streaming, HITL, or long-running variant, since
// none of C1's four capabilities need them.
package tool

import (
	"context"

	"github.com/kadirpekel/analystd/pkg/domain"
)

// Adapter is the uniform contract every tool implementation satisfies.
type Adapter interface {
	// Spec describes this adapter as an LLM-facing tool.
	Spec() domain.ToolSpec

	// Call executes the tool synchronously. Implementations own their
	// own per-call timeout and must return before ctx's deadline where
	// one is set tighter than their internal budget; they must also
	// honor ctx cancellation promptly.
	//
	// Call never returns an (nil, err) pair for conditions spec.md
	// documents as tool-level outcomes (e.g. web search timeout, zero
	// SQL rows) — those are *domain.ToolResult values with no error.
	// The returned error is reserved for conditions the orchestrator
	// must record as a ToolEvent with Phase=error.
	Call(ctx context.Context, args map[string]any) (*domain.ToolResult, error)
}

// Catalog groups adapters by the tool name the model will invoke.
type Catalog struct {
	adapters map[string]Adapter
	order    []string
}

// NewCatalog builds an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own Spec().Name. Registering the
// same name twice replaces the earlier adapter but keeps its original
// position, so catalog ordering stays stable across reconfiguration.
func (c *Catalog) Register(a Adapter) {
	name := a.Spec().Name
	if _, exists := c.adapters[name]; !exists {
		c.order = append(c.order, name)
	}
	c.adapters[name] = a
}

// Get returns the adapter registered under name, if any.
func (c *Catalog) Get(name string) (Adapter, bool) {
	a, ok := c.adapters[name]
	return a, ok
}

// Specs returns every registered adapter's ToolSpec in registration order,
// the slice handed to the LLM Client Abstraction as the turn's tool
// catalog.
func (c *Catalog) Specs() []domain.ToolSpec {
	specs := make([]domain.ToolSpec, 0, len(c.order))
	for _, name := range c.order {
		specs = append(specs, c.adapters[name].Spec())
	}
	return specs
}
