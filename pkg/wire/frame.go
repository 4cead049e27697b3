// Package wire implements the Event Stream Encoder (C4, spec.md §4.6,
// §6.1): it turns orchestrator-internal events into the newline-framed
// wire protocol the front-end consumes, and the literal marker tokens
// that carry tool events and reasoning deltas inline in an otherwise
// plain text/JSON stream.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/kadirpekel/analystd/pkg/domain"
)

const (
	tokenKeepalive = "__KEEPALIVE__"

	toolEventOpen  = "__TOOL_EVENT__"
	toolEventClose = "__END_TOOL_EVENT__"

	reasoningOpen  = "__REASONING_REPLACE__"
	reasoningClose = "__END_REASONING_REPLACE__"
)

// deltaMessage is one entry of the `choices[].messages[]` envelope
// spec.md §6.1 requires for text/citation deltas.
type deltaMessage struct {
	Role      domain.MessageRole `json:"role"`
	Content   string             `json:"content"`
	Citations []domain.Citation  `json:"citations,omitempty"`
}

type deltaFrame struct {
	Choices []struct {
		Messages []deltaMessage `json:"messages"`
	} `json:"choices"`
}

// chartObjectFrame wraps a single chart; chartMultiFrame wraps several.
// The orchestrator always emits exactly one of the two per chart turn.
type chartObjectFrame struct {
	Object domain.ChartPayload `json:"object"`
}

type chartMultiFrame struct {
	Object struct {
		Charts []domain.ChartPayload `json:"charts"`
	} `json:"object"`
}

type errorFrame struct {
	Error string `json:"error"`
}

type doneFrame struct {
	Done bool `json:"done"`
}

// Keepalive returns the bare anti-proxy-timeout token.
func Keepalive() []byte {
	return []byte(tokenKeepalive)
}

// TextDelta encodes the accumulated assistant text (and, on the final
// delta of a turn, its citations) as the `{choices:[...]}` envelope.
// content is the full accumulated text, not an incremental chunk — per
// spec.md §6.1 consumers replace their local buffer with it.
func TextDelta(content string, citations []domain.Citation) ([]byte, error) {
	frame := deltaFrame{}
	frame.Choices = make([]struct {
		Messages []deltaMessage `json:"messages"`
	}, 1)
	frame.Choices[0].Messages = []deltaMessage{{
		Role:      domain.RoleAssistant,
		Content:   content,
		Citations: citations,
	}}
	return json.Marshal(frame)
}

// ReasoningReplace wraps the cumulative reasoning string in its literal
// markers. The caller must not also emit it via TextDelta.
func ReasoningReplace(cumulative string) []byte {
	return []byte(reasoningOpen + cumulative + reasoningClose)
}

// ToolEvent wraps a ToolEvent's JSON encoding in its literal markers.
func ToolEvent(ev domain.ToolEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode tool event: %w", err)
	}
	return []byte(toolEventOpen + string(payload) + toolEventClose), nil
}

// Chart encodes one or more ChartPayloads for a chart-intent turn.
func Chart(charts ...domain.ChartPayload) ([]byte, error) {
	switch len(charts) {
	case 0:
		return nil, fmt.Errorf("chart frame requires at least one payload")
	case 1:
		return json.Marshal(chartObjectFrame{Object: charts[0]})
	default:
		frame := chartMultiFrame{}
		frame.Object.Charts = charts
		return json.Marshal(frame)
	}
}

// Error encodes a terminal error frame.
func Error(message string) ([]byte, error) {
	return json.Marshal(errorFrame{Error: message})
}

// Done encodes the terminal success marker (spec.md §4.6's `done` kind):
// a turn that finished without error, as distinct from one that finished
// via the `error` frame.
func Done() ([]byte, error) {
	return json.Marshal(doneFrame{Done: true})
}
