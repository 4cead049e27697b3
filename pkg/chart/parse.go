package chart

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kadirpekel/analystd/pkg/domain"
)

// ErrMalformed is returned when the trailing content could not be parsed
// as JSON at all, or parsed but used a shape this parser doesn't
// recognize — as opposed to ErrMissingChart, where the JSON parsed fine
// but named neither chart field. Kept as distinct sentinels per spec.md
// §4.3's requirement that "malformed chart JSON" be separately
// addressable from "missing chart payload" in the error path.
var (
	ErrMalformed    = errors.New("chart response was not valid JSON")
	ErrMissingChart = errors.New("chart response did not contain a chart payload")
)

// rawPayload accepts both "type" and "chartType" spellings for the chart
// kind, since models are not perfectly consistent about the field name.
type rawPayload struct {
	Type      string           `json:"type"`
	ChartType string           `json:"chartType"`
	Data      *domain.ChartData `json:"data"`
}

func (r rawPayload) kind() string {
	if r.ChartType != "" {
		return r.ChartType
	}
	return r.Type
}

func (r rawPayload) toDomain() (domain.ChartPayload, bool) {
	kind := r.kind()
	if kind == "" || r.Data == nil {
		return domain.ChartPayload{}, false
	}
	return domain.ChartPayload{ChartType: kind, Data: *r.Data}, true
}

type rawEnvelope struct {
	Answer json.RawMessage `json:"answer"`
	Charts []rawPayload    `json:"charts"`
	rawPayload
}

// Parse interprets the trailing model content as chart JSON per spec.md
// §4.3's four-step rule: unwrap an {answer:...} envelope if present,
// accept a single payload or a {charts:[...]} list, and distinguish
// malformed JSON from JSON that parsed but named no chart.
func Parse(content string) ([]domain.ChartPayload, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrMalformed
	}

	var env rawEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil, ErrMalformed
	}

	// {answer: ...} wrapper: recurse into its content, which is itself
	// either a JSON chart payload or occasionally a JSON-encoded string
	// containing chart JSON.
	if len(env.Answer) > 0 {
		var nested string
		if err := json.Unmarshal(env.Answer, &nested); err == nil {
			return Parse(nested)
		}
		return Parse(string(env.Answer))
	}

	if len(env.Charts) > 0 {
		out := make([]domain.ChartPayload, 0, len(env.Charts))
		for _, raw := range env.Charts {
			payload, ok := raw.toDomain()
			if !ok {
				return nil, ErrMissingChart
			}
			out = append(out, payload)
		}
		return out, nil
	}

	payload, ok := env.rawPayload.toDomain()
	if !ok {
		return nil, ErrMissingChart
	}
	return []domain.ChartPayload{payload}, nil
}

// UserFacingError returns the single user-facing message spec.md §4.3
// mandates for both failure modes — never a raw stack trace.
func UserFacingError() string {
	return "chart cannot be generated, please try again"
}
