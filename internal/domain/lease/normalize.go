package lease

import (
	"fmt"
	"math"
	"strings"
)

// Accepted source fields per canonical field, in priority order; the first
// populated field wins.
var (
	idFields       = []string{"id", "clause_id"}
	titleFields    = []string{"title_en", "id", "clause_id"}
	riskFields     = []string{"risk_level"}
	summaryFields  = []string{"summary_zh"}
	originalFields = []string{"original_text", "clause_text_en"}
)

// riskWeights is the numeric proxy used when no page reported a score.
var riskWeights = map[string]float64{
	"low": 25, "safe": 25,
	"medium": 50, "caution": 50,
	"high": 75, "danger": 75,
}

const defaultRiskWeight = 50

func firstField(c RawClause, fields []string) string {
	for _, f := range fields {
		if s := scalarString(c[f]); s != "" {
			return s
		}
	}
	return ""
}

// RiskLevel is the lowercased raw level, "medium" when absent.
func (c RawClause) RiskLevel() string {
	lvl := strings.ToLower(strings.TrimSpace(firstField(c, riskFields)))
	if lvl == "" {
		return string(RiskMedium)
	}
	return lvl
}

// Category folds a raw level into exactly one of high, medium, low.
func (c RawClause) Category() Risk {
	switch c.RiskLevel() {
	case "high":
		return RiskHigh
	case "medium":
		return RiskMedium
	default:
		return RiskLow
	}
}

// Weight maps the raw level onto the 0..100 scale.
func (c RawClause) Weight() float64 {
	if w, ok := riskWeights[c.RiskLevel()]; ok {
		return w
	}
	return defaultRiskWeight
}

// NormalizeClauses converts raw clauses into canonical ones, keeping at most
// MaxClauses. IDs combine position and source id so they are unique per run.
func NormalizeClauses(raw []RawClause) []Clause {
	n := len(raw)
	if n > MaxClauses {
		n = MaxClauses
	}
	out := make([]Clause, 0, n)
	for idx, c := range raw[:n] {
		out = append(out, Clause{
			ID:       fmt.Sprintf("%d-%s", idx, firstField(c, idFields)),
			Title:    firstField(c, titleFields),
			Risk:     c.Category(),
			Summary:  firstField(c, summaryFields),
			Original: firstField(c, originalFields),
		})
	}
	return out
}

// OverallRiskScore uses the last explicit page score when it is positive,
// otherwise the mean clause weight. The result is rounded and kept in 0..100.
func OverallRiskScore(explicit float64, clauses []RawClause) int {
	score := explicit
	if !(explicit > 0) {
		if len(clauses) == 0 {
			return 0
		}
		var sum float64
		for _, c := range clauses {
			sum += c.Weight()
		}
		score = sum / float64(len(clauses))
	}
	s := math.Round(score)
	switch {
	case s > 100:
		return 100
	case s < 0 || math.IsNaN(s):
		return 0
	}
	return int(s)
}
