package wire

import (
	"encoding/json"
	"strings"

	"github.com/kadirpekel/analystd/pkg/domain"
)

// Decoded is the result of stripping one line of wire protocol down to
// its semantic content, used by tests and by any future non-browser
// consumer that wants a structured view instead of raw bytes.
type Decoded struct {
	Keepalive  bool
	ToolEvents []domain.ToolEvent
	Reasoning  *string // nil unless this line carried a reasoning marker
	Text       *string // accumulated text, if this line was a delta frame
	Citations  []domain.Citation
	Chart      *domain.ChartPayload
	Charts     []domain.ChartPayload
	Err        *string
	Done       bool
}

// StripAndDecode extracts tool_event and reasoning markers from line
// (which may appear anywhere in the line per spec.md §6.1) and decodes
// whatever plain-JSON remains. Order of extraction: tool events, then
// reasoning, since the two marker families never nest.
func StripAndDecode(line string) Decoded {
	var out Decoded

	if line == tokenKeepalive {
		out.Keepalive = true
		return out
	}

	remaining := line
	for {
		start := strings.Index(remaining, toolEventOpen)
		if start == -1 {
			break
		}
		end := strings.Index(remaining[start:], toolEventClose)
		if end == -1 {
			break
		}
		payload := remaining[start+len(toolEventOpen) : start+end]
		var ev domain.ToolEvent
		if err := json.Unmarshal([]byte(payload), &ev); err == nil {
			out.ToolEvents = append(out.ToolEvents, ev)
		}
		remaining = remaining[:start] + remaining[start+end+len(toolEventClose):]
	}

	if start := strings.Index(remaining, reasoningOpen); start != -1 {
		if end := strings.Index(remaining[start:], reasoningClose); end != -1 {
			cumulative := remaining[start+len(reasoningOpen) : start+end]
			out.Reasoning = &cumulative
			remaining = remaining[:start] + remaining[start+end+len(reasoningClose):]
		}
	}

	remaining = strings.TrimSpace(remaining)
	if remaining == "" {
		return out
	}

	var df deltaFrame
	if err := json.Unmarshal([]byte(remaining), &df); err == nil && len(df.Choices) > 0 && len(df.Choices[0].Messages) > 0 {
		msg := df.Choices[0].Messages[0]
		out.Text = &msg.Content
		out.Citations = msg.Citations
		return out
	}

	var ef errorFrame
	if err := json.Unmarshal([]byte(remaining), &ef); err == nil && ef.Error != "" {
		out.Err = &ef.Error
		return out
	}

	var df2 doneFrame
	if err := json.Unmarshal([]byte(remaining), &df2); err == nil && df2.Done {
		out.Done = true
		return out
	}

	var cmf chartMultiFrame
	if err := json.Unmarshal([]byte(remaining), &cmf); err == nil && len(cmf.Object.Charts) > 0 {
		out.Charts = cmf.Object.Charts
		return out
	}

	var cof chartObjectFrame
	if err := json.Unmarshal([]byte(remaining), &cof); err == nil && cof.Object.ChartType != "" {
		out.Chart = &cof.Object
		return out
	}

	return out
}
