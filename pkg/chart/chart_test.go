package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectIntentEnglishRequiresWordBoundary(t *testing.T) {
	assert.True(t, DetectIntent("can you chart the revenue by month"))
	assert.True(t, DetectIntent("Show me a GRAPH of signups"))
	assert.False(t, DetectIntent("chartreuse is a color"), "substring inside another word must not match")
	assert.False(t, DetectIntent("what is our revenue this quarter"))
}

func TestDetectIntentNonLatinIsSubstring(t *testing.T) {
	assert.True(t, DetectIntent("売上のグラフを見せて"))
	assert.True(t, DetectIntent("円グラフでお願いします"))
	assert.False(t, DetectIntent("今月の売上はどうですか"))
}

func TestParseSingleChartPayload(t *testing.T) {
	charts, err := Parse(`{"chartType":"bar","data":{"labels":["Jan","Feb"],"datasets":[{"label":"revenue","values":[10,20]}]}}`)
	require.NoError(t, err)
	require.Len(t, charts, 1)
	assert.Equal(t, "bar", charts[0].ChartType)
	assert.Equal(t, []string{"Jan", "Feb"}, charts[0].Data.Labels)
}

func TestParseAcceptsTypeAlias(t *testing.T) {
	charts, err := Parse(`{"type":"line","data":{"labels":["a"],"datasets":[]}}`)
	require.NoError(t, err)
	require.Len(t, charts, 1)
	assert.Equal(t, "line", charts[0].ChartType)
}

func TestParseChartsList(t *testing.T) {
	charts, err := Parse(`{"charts":[{"chartType":"bar","data":{"labels":["a"],"datasets":[]}},{"chartType":"pie","data":{"labels":["b"],"datasets":[]}}]}`)
	require.NoError(t, err)
	require.Len(t, charts, 2)
	assert.Equal(t, "pie", charts[1].ChartType)
}

func TestParseUnwrapsAnswerEnvelope(t *testing.T) {
	charts, err := Parse(`{"answer":"{\"chartType\":\"bar\",\"data\":{\"labels\":[\"x\"],\"datasets\":[]}}"}`)
	require.NoError(t, err)
	require.Len(t, charts, 1)
	assert.Equal(t, "bar", charts[0].ChartType)
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := Parse("not json at all {")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseMissingChartFields(t *testing.T) {
	_, err := Parse(`{"hello":"world"}`)
	assert.ErrorIs(t, err, ErrMissingChart)
}

func TestUserFacingErrorIsStableAndNonLeaking(t *testing.T) {
	assert.Equal(t, "chart cannot be generated, please try again", UserFacingError())
}
