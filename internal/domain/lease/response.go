package lease

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawClause is a clause exactly as the analyzer produced it.
type RawClause map[string]any

// PagePayload is the useful part of one page's response.
// RiskScore is nil when the page did not report one.
type PagePayload struct {
	Clauses   []RawClause
	Summary   any
	RiskScore *float64
}

// PageResponse is one page's analyzer answer with a 2xx status.
type PageResponse struct {
	Success bool
	Error   string
	Payload PagePayload
}

// DecodePageResponse reads {success, data?, error?}. When data is missing the
// top-level object is the payload.
func DecodePageResponse(body []byte) (PageResponse, error) {
	var top map[string]any
	if err := json.Unmarshal(body, &top); err != nil {
		return PageResponse{}, err
	}
	resp := PageResponse{
		Success: truthy(top["success"]),
		Error:   scalarString(top["error"]),
	}
	src := top
	if data, ok := top["data"].(map[string]any); ok {
		src = data
	}
	resp.Payload = payloadFrom(src)
	return resp, nil
}

func payloadFrom(src map[string]any) PagePayload {
	var p PagePayload
	if arr, ok := src["clauses"].([]any); ok {
		p.Clauses = make([]RawClause, 0, len(arr))
		for _, it := range arr {
			m, _ := it.(map[string]any)
			if m == nil {
				m = map[string]any{}
			}
			p.Clauses = append(p.Clauses, RawClause(m))
		}
	}
	if s, ok := src["summary"]; ok && truthy(s) {
		p.Summary = s
	}
	if v, ok := src["risk_score"]; ok && v != nil {
		n := number(v)
		p.RiskScore = &n
	}
	return p
}

// SummaryText flattens a page summary. Objects contribute their first non-empty
// known field.
func SummaryText(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case map[string]any:
		for _, k := range summaryObjectFields {
			if str := scalarString(s[k]); str != "" {
				return str
			}
		}
	}
	return ""
}

var summaryObjectFields = []string{"late_fee_summary_zh", "early_termination_risk_zh"}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		return true
	}
}

// number converts the way a loose JSON consumer would; unusable input is NaN.
func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// scalarString renders strings, numbers and booleans; falsy values and
// composites come back empty.
func scalarString(v any) string {
	if !truthy(v) {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return "true"
	}
	return ""
}
