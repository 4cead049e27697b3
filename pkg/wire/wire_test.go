package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextDeltaRoundTrip(t *testing.T) {
	b, err := TextDelta("hello there", []domain.Citation{{Index: 1, Title: "doc"}})
	require.NoError(t, err)

	decoded := StripAndDecode(string(b))
	require.NotNil(t, decoded.Text)
	assert.Equal(t, "hello there", *decoded.Text)
	require.Len(t, decoded.Citations, 1)
	assert.Equal(t, "doc", decoded.Citations[0].Title)
}

func TestToolEventMarkerExtraction(t *testing.T) {
	ev := domain.ToolEvent{Tool: "sql_query", Phase: domain.ToolPhaseStart, Occurrence: 1}
	frame, err := ToolEvent(ev)
	require.NoError(t, err)

	line := "some text" + string(frame) + "more text"
	decoded := StripAndDecode(line)
	require.Len(t, decoded.ToolEvents, 1)
	assert.Equal(t, "sql_query", decoded.ToolEvents[0].Tool)
	assert.Equal(t, domain.ToolPhaseStart, decoded.ToolEvents[0].Phase)
}

func TestReasoningReplaceIsCumulativeNotAppend(t *testing.T) {
	first := ReasoningReplace("thinking about sales")
	second := ReasoningReplace("thinking about sales trends in Q3")

	d1 := StripAndDecode(string(first))
	d2 := StripAndDecode(string(second))
	require.NotNil(t, d1.Reasoning)
	require.NotNil(t, d2.Reasoning)
	assert.Equal(t, "thinking about sales", *d1.Reasoning)
	assert.Equal(t, "thinking about sales trends in Q3", *d2.Reasoning)
	assert.False(t, strings.HasPrefix(*d2.Reasoning, *d1.Reasoning+*d1.Reasoning))
}

func TestKeepaliveIsBareToken(t *testing.T) {
	assert.Equal(t, "__KEEPALIVE__", string(Keepalive()))
	decoded := StripAndDecode(string(Keepalive()))
	assert.True(t, decoded.Keepalive)
}

func TestChartSingleAndMulti(t *testing.T) {
	c1 := domain.ChartPayload{ChartType: "bar", Data: domain.ChartData{Labels: []string{"a"}}}
	c2 := domain.ChartPayload{ChartType: "line", Data: domain.ChartData{Labels: []string{"b"}}}

	single, err := Chart(c1)
	require.NoError(t, err)
	d := StripAndDecode(string(single))
	require.NotNil(t, d.Chart)
	assert.Equal(t, "bar", d.Chart.ChartType)

	multi, err := Chart(c1, c2)
	require.NoError(t, err)
	d2 := StripAndDecode(string(multi))
	require.Len(t, d2.Charts, 2)
}

func TestErrorFrameIsTerminal(t *testing.T) {
	b, err := Error("sql tool unavailable")
	require.NoError(t, err)
	d := StripAndDecode(string(b))
	require.NotNil(t, d.Err)
	assert.Equal(t, "sql tool unavailable", *d.Err)
}

func TestDoneFrameIsTerminal(t *testing.T) {
	b, err := Done()
	require.NoError(t, err)
	d := StripAndDecode(string(b))
	assert.True(t, d.Done)
	assert.Nil(t, d.Err)
}

func TestWriterEmitsNewlineDelimitedFrames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteKeepalive())
	require.NoError(t, w.WriteTextDelta("partial", nil))
	require.NoError(t, w.WriteToolEvent(domain.ToolEvent{Tool: "web_search", Phase: domain.ToolPhaseSuccess}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "__KEEPALIVE__", lines[0])
	assert.True(t, strings.Contains(lines[2], "__TOOL_EVENT__"))
}
