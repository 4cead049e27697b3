// Package topology implements the Agent Topologies component (C5,
// spec.md §4.2): four builders, each producing a tuple of entry system
// instruction, tool-catalog view, and client shape. The orchestrator
// never inspects topology internals beyond this tuple — grounded on the
// teacher's workflowagent package's pattern of small config structs
// feeding a constructor, adapted since this service's "sub-agents" are
// system-instruction + tool-catalog views rather than full agent.Agent
// values.
package topology

import (
	"fmt"

	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/tool"
	"github.com/kadirpekel/analystd/pkg/topology/prompts"
)

// ClientShape selects which half of the LLM Client Abstraction a
// topology requires, per spec.md §4.2's rationale: the Responses-style
// client supports server-driven tool-invocation events natively, while
// handoff and magentic use the Chat-style client, which replays the full
// conversation history on every call. Specialist switching itself is done
// by pkg/orchestrator, not by either client.
type ClientShape string

const (
	ResponsesStyle ClientShape = "responses"
	ChatStyle      ClientShape = "chat"
)

// TransferToolName is the synthetic control tool the triage agent in
// handoff mode calls to move control to a specialist. It is never
// registered in a tool.Catalog and never reaches an external adapter —
// the orchestrator intercepts it directly.
const TransferToolName = "transfer_to_specialist"

// Specialist is one handoff-mode destination: its own system instruction
// and its own narrowed tool-catalog view. Specialists do not re-merge
// control to the triage agent once selected (spec.md §4.2).
type Specialist struct {
	Name              string
	SystemInstruction string
	AllowedTools      []string
}

// Topology is the (entry_agent, tool_catalog_view, client_shape) tuple
// spec.md §4.2 describes, flattened into a struct the orchestrator reads
// but never branches deeply into.
type Topology struct {
	Mode ClientShapeMode

	ClientShape ClientShape

	// EntrySystemInstruction is the system prompt for sql_only,
	// multi_tool, and magentic's manager. For handoff it is the triage
	// agent's instruction.
	EntrySystemInstruction string

	// EntryAllowedTools restricts the tool catalog view presented to the
	// entry agent. A nil slice means "all registered tools"; a non-nil
	// empty slice (handoff's triage agent) means none. See Filter.
	EntryAllowedTools []string

	// Specialists is populated for handoff mode only.
	Specialists []Specialist
}

// ClientShapeMode is the domain.Mode this topology was built for, kept
// alongside so callers need not thread the original mode separately.
type ClientShapeMode = domain.Mode

// Build constructs the topology tuple for mode, consulting the prompt
// registry by name and narrowing catalog's view per spec.md §4.2's
// allowed-tools table.
func Build(mode domain.Mode, registry *prompts.Registry, catalog *tool.Catalog) (*Topology, error) {
	switch mode {
	case domain.ModeSQLOnly:
		return &Topology{
			Mode:                   mode,
			ClientShape:            ResponsesStyle,
			EntrySystemInstruction: registry.MustGet("sql_only.agent"),
			EntryAllowedTools:      []string{"sql_query"},
		}, nil

	case domain.ModeMultiTool:
		return &Topology{
			Mode:                   mode,
			ClientShape:            ResponsesStyle,
			EntrySystemInstruction: registry.MustGet("multi_tool.agent"),
			EntryAllowedTools:      allToolNames(catalog),
		}, nil

	case domain.ModeHandoff:
		return &Topology{
			Mode:                   mode,
			ClientShape:            ChatStyle,
			EntrySystemInstruction: registry.MustGet("handoff.triage"),
			EntryAllowedTools:      []string{},
			Specialists: []Specialist{
				{Name: "sql", SystemInstruction: registry.MustGet("handoff.sql_specialist"), AllowedTools: []string{"sql_query"}},
				{Name: "web", SystemInstruction: registry.MustGet("handoff.web_specialist"), AllowedTools: []string{"web_search"}},
				{Name: "doc", SystemInstruction: registry.MustGet("handoff.doc_specialist"), AllowedTools: []string{"doc_search"}},
			},
		}, nil

	case domain.ModeMagentic:
		return &Topology{
			Mode:                   mode,
			ClientShape:            ChatStyle,
			EntrySystemInstruction: registry.MustGet("magentic.manager"),
			EntryAllowedTools:      allToolNames(catalog),
		}, nil

	default:
		return nil, fmt.Errorf("topology: unknown mode %q", mode)
	}
}

func allToolNames(catalog *tool.Catalog) []string {
	specs := catalog.Specs()
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}

// Filter narrows catalog's specs to only those named in allowed. A nil
// allowed slice means "no restriction" — all of catalog's specs are
// returned. A non-nil, empty slice (handoff's triage view) means
// "none" — triage sees no real adapter, only the synthetic transfer
// tool the orchestrator adds separately.
func Filter(catalog *tool.Catalog, allowed []string) []domain.ToolSpec {
	all := catalog.Specs()
	if allowed == nil {
		return all
	}
	if len(allowed) == 0 {
		return nil
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = true
	}
	out := make([]domain.ToolSpec, 0, len(allowed))
	for _, s := range all {
		if allowedSet[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

// SpecialistByName finds a handoff specialist by name.
func (t *Topology) SpecialistByName(name string) (Specialist, bool) {
	for _, s := range t.Specialists {
		if s.Name == name {
			return s, true
		}
	}
	return Specialist{}, false
}
