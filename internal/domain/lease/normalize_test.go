package lease

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clauses(levels ...string) []RawClause {
	out := make([]RawClause, 0, len(levels))
	for i, l := range levels {
		out = append(out, RawClause{"clause_id": fmt.Sprintf("c%d", i), "risk_level": l})
	}
	return out
}

func TestOverallRiskScore(t *testing.T) {
	tests := []struct {
		name     string
		explicit float64
		clauses  []RawClause
		want     int
	}{
		{name: "mean of clause weights", clauses: clauses("high", "high", "medium", "low"), want: 56},
		{name: "explicit score wins", explicit: 80, clauses: clauses("low", "low"), want: 80},
		{name: "unknown level weighs 50", clauses: clauses("weird", "high"), want: 63},
		{name: "missing level weighs 50", clauses: []RawClause{{}}, want: 50},
		{name: "aliases", clauses: clauses("danger", "safe", "caution"), want: 50},
		{name: "level is case insensitive", clauses: clauses("HIGH"), want: 75},
		{name: "explicit rounded", explicit: 72.5, want: 73},
		{name: "explicit clamped high", explicit: 180, want: 100},
		{name: "negative explicit falls back to mean", explicit: -5, clauses: clauses("low"), want: 25},
		{name: "nan explicit falls back to mean", explicit: math.NaN(), clauses: clauses("medium"), want: 50},
		{name: "nothing at all", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverallRiskScore(tt.explicit, tt.clauses))
		})
	}
}

func TestNormalizeClauses(t *testing.T) {
	raw := []RawClause{
		{"clause_id": "late_fee", "title_en": "Late fee", "risk_level": "high", "summary_zh": "zh", "summary_en": "en", "clause_text_en": "Tenant pays..."},
		{"id": "deposit", "title": "Deposit", "risk_level": "Medium", "summary": "plain", "original_text": "orig"},
		{"id": 7.0, "risk_level": "danger"},
		{"risk_level": "safe"},
	}

	got := NormalizeClauses(raw)
	require.Len(t, got, 4)

	assert.Equal(t, Clause{ID: "0-late_fee", Title: "Late fee", Risk: RiskHigh, Summary: "zh", Original: "Tenant pays..."}, got[0])
	assert.Equal(t, Clause{ID: "1-deposit", Title: "deposit", Risk: RiskMedium, Original: "orig"}, got[1])
	assert.Equal(t, "2-7", got[2].ID)
	assert.Equal(t, "7", got[2].Title, "falls back to the source id")
	assert.Equal(t, RiskLow, got[2].Risk, "only high and medium survive folding")
	assert.Equal(t, "3-", got[3].ID)
	assert.Equal(t, RiskLow, got[3].Risk)
}

func TestNormalizeClausesFieldPrecedence(t *testing.T) {
	tests := []struct {
		name        string
		raw         RawClause
		wantTitle   string
		wantSummary string
	}{
		{
			name:      "title_en wins",
			raw:       RawClause{"title_en": "Late fee", "title": "Fee", "id": "c1"},
			wantTitle: "Late fee",
		},
		{
			name:      "plain title is ignored",
			raw:       RawClause{"title": "Late fee", "id": "c1", "summary_en": "en only"},
			wantTitle: "c1",
		},
		{
			name:      "clause_id after id",
			raw:       RawClause{"clause_id": "c2"},
			wantTitle: "c2",
		},
		{
			name:        "only summary_zh is read",
			raw:         RawClause{"id": "c3", "summary_zh": "zh", "summary": "plain"},
			wantTitle:   "c3",
			wantSummary: "zh",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeClauses([]RawClause{tt.raw})
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantTitle, got[0].Title)
			assert.Equal(t, tt.wantSummary, got[0].Summary)
		})
	}
}

func TestNormalizeClausesCapsAtTwenty(t *testing.T) {
	raw := make([]RawClause, 25)
	for i := range raw {
		raw[i] = RawClause{"id": fmt.Sprint(i)}
	}
	got := NormalizeClauses(raw)
	require.Len(t, got, MaxClauses)
	assert.Equal(t, "19-19", got[19].ID)
	assert.Equal(t, RiskMedium, got[0].Risk, "missing level defaults to medium")
}

func TestValidateSelection(t *testing.T) {
	page := func(size int64) Page { return Page{Name: "p.jpg", Size: size} }

	many := make([]Page, 11)
	for i := range many {
		many[i] = page(1)
	}

	tests := []struct {
		name  string
		pages []Page
		want  error
	}{
		{name: "empty", pages: nil, want: ErrEmptySelection},
		{name: "eleven files", pages: many, want: ErrTooManyPages},
		{name: "twelve megabytes", pages: []Page{page(1), page(12 * 1024 * 1024)}, want: ErrPageTooLarge},
		{name: "ten files at the limit", pages: many[:10], want: nil},
		{name: "exactly ten megabytes", pages: []Page{page(MaxPageBytes)}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSelection(tt.pages)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestReportGroupedAndBand(t *testing.T) {
	r := SampleReport()
	groups := r.Grouped()
	require.NotEmpty(t, groups)
	assert.Equal(t, RiskHigh, groups[0].Risk)
	for i := 1; i < len(groups); i++ {
		assert.NotEqual(t, groups[i-1].Risk, groups[i].Risk)
	}
	assert.Equal(t, RiskMedium, r.Band())

	assert.Equal(t, RiskHigh, (&Report{RiskScore: 70}).Band())
	assert.Equal(t, RiskLow, (&Report{RiskScore: 39}).Band())
	assert.Empty(t, (&Report{}).Grouped())
}
