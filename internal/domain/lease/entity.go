package lease

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Risk category of a clause
type Risk string

const (
	RiskHigh   Risk = "high"
	RiskMedium Risk = "medium"
	RiskLow    Risk = "low"
)

// Clause is one extracted provision in canonical shape.
type Clause struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Risk     Risk   `json:"risk"`
	Summary  string `json:"summary"`
	Original string `json:"original,omitempty"`
}

// Report is the consolidated result of one analysis run.
type Report struct {
	ID            string    `json:"id"`
	Summary       string    `json:"summary"`
	RiskScore     int       `json:"riskScore"`
	Clauses       []Clause  `json:"clauses"`
	PagesAnalyzed int       `json:"pagesAnalyzed"`
	PagesFailed   int       `json:"pagesFailed"`
	GeneratedAt   time.Time `json:"generatedAt"`
	Sample        bool      `json:"sample,omitempty"`
}

// ClauseGroup holds the clauses of one risk category.
type ClauseGroup struct {
	Risk    Risk     `json:"risk"`
	Clauses []Clause `json:"clauses"`
}

// Grouped returns high, medium and low groups in that order, skipping empty ones.
func (r *Report) Grouped() []ClauseGroup {
	var out []ClauseGroup
	for _, risk := range []Risk{RiskHigh, RiskMedium, RiskLow} {
		g := ClauseGroup{Risk: risk}
		for _, c := range r.Clauses {
			if c.Risk == risk {
				g.Clauses = append(g.Clauses, c)
			}
		}
		if len(g.Clauses) > 0 {
			out = append(out, g)
		}
	}
	return out
}

// Band buckets the overall score: >=70 high, >=40 medium, otherwise low.
func (r *Report) Band() Risk {
	switch {
	case r.RiskScore >= 70:
		return RiskHigh
	case r.RiskScore >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Page is one selected lease image.
type Page struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)

	// Number (1-based) and Total are filled in while a batch runs.
	Number int
	Total  int
}

// FilePage describes a file on disk without reading it.
func FilePage(path string) (Page, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Name: filepath.Base(path),
		Size: st.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// BytesPage wraps an in-memory upload.
func BytesPage(name, contentType string, data []byte) Page {
	return Page{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
