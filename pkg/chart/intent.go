// Package chart implements the Chart Intent & Parser (C3, spec.md §4.3):
// closed-set multilingual keyword detection over user text, and parsing
// of a model's trailing JSON content into one or more ChartPayloads.
package chart

import (
	"regexp"
	"strings"
)

// englishKeywords require a word-boundary match; substringKeywords (the
// non-Latin entries) require only Contains, since CJK text has no
// whitespace word boundaries for \b to anchor on.
var (
	englishKeywords  = []string{"chart", "graph", "visualize", "plot"}
	substringKeywords = []string{"グラフ", "チャート", "可視化", "図", "棒グラフ", "円グラフ", "折れ線", "折れ線グラフ"}

	englishPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(englishKeywords, "|") + `)\b`)
)

// DetectIntent reports whether userText carries chart intent, per the
// closed multilingual keyword set in spec.md §4.3. Only the turn's raw
// user_text is ever passed here (see DESIGN.md's Open Question 2
// resolution) — assistant follow-up text is never scanned.
func DetectIntent(userText string) bool {
	if englishPattern.MatchString(userText) {
		return true
	}
	for _, kw := range substringKeywords {
		if strings.Contains(userText, kw) {
			return true
		}
	}
	return false
}
