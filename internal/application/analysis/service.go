package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/bryanwahyu/leasecheck/internal/application"
	"github.com/bryanwahyu/leasecheck/internal/domain/lease"
	"github.com/bryanwahyu/leasecheck/internal/pkg/logger"
)

const module = "analysis"

// IdentitySource yields the resolved identity, empty until resolution.
type IdentitySource interface {
	CurrentIdentity() string
}

// Progress of a running batch. Current is 1-based.
type Progress struct {
	InProgress bool `json:"in_progress"`
	Current    int  `json:"current"`
	Total      int  `json:"total"`
}

// Orchestrator runs one page at a time against the analyzer and folds the
// answers into a single report. One instance belongs to one page session.
type Orchestrator struct {
	Analyzer lease.Analyzer
	Identity IdentitySource
	Notifier lease.Notifier
	Archive  lease.ReportArchive // optional
	Clock    application.Clock
	Logger   logger.ILogger

	mu        sync.Mutex
	selection []lease.Page
	result    *lease.Report
	progress  Progress
}

// Select replaces the selection. A rejected batch leaves every piece of
// state untouched; an accepted one clears the previous report.
func (o *Orchestrator) Select(ctx context.Context, pages []lease.Page) error {
	if err := lease.ValidateSelection(pages); err != nil {
		o.notify(ctx, lease.Notification{Kind: lease.NotifyError, Message: selectionMessage(err)})
		return err
	}

	o.mu.Lock()
	if o.progress.InProgress {
		o.mu.Unlock()
		return lease.ErrAnalysisInProgress
	}
	o.selection = append([]lease.Page(nil), pages...)
	o.result = nil
	o.mu.Unlock()

	o.notify(ctx, lease.Notification{
		Kind:    lease.NotifySuccess,
		Message: fmt.Sprintf("%d image(s) selected", len(pages)),
	})
	return nil
}

func selectionMessage(err error) string {
	switch {
	case errors.Is(err, lease.ErrTooManyPages):
		return fmt.Sprintf("Maximum %d images allowed", lease.MaxPages)
	case errors.Is(err, lease.ErrPageTooLarge):
		return "File too large. Please upload a file under 10MB."
	default:
		return "Please upload lease page photos first"
	}
}

// Analyze submits every selected page in order. Refused pages are skipped
// with a notification; transport failures and panics abort the batch. There
// are no retries.
func (o *Orchestrator) Analyze(ctx context.Context) (*lease.Report, error) {
	return o.run(ctx, nil)
}

// SelectAndAnalyze replaces the selection and analyzes it under a single
// reservation, so a concurrent caller cannot swap the pages in between. A
// busy orchestrator refuses the batch without touching its selection.
func (o *Orchestrator) SelectAndAnalyze(ctx context.Context, pages []lease.Page) (*lease.Report, error) {
	if err := lease.ValidateSelection(pages); err != nil {
		o.notify(ctx, lease.Notification{Kind: lease.NotifyError, Message: selectionMessage(err)})
		return nil, err
	}
	return o.run(ctx, append([]lease.Page(nil), pages...))
}

// run analyzes replace, or the stored selection when replace is nil.
func (o *Orchestrator) run(ctx context.Context, replace []lease.Page) (report *lease.Report, err error) {
	o.mu.Lock()
	if o.progress.InProgress {
		o.mu.Unlock()
		return nil, lease.ErrAnalysisInProgress
	}
	if replace == nil {
		o.result = nil
		if len(o.selection) == 0 {
			o.mu.Unlock()
			o.notify(ctx, lease.Notification{Kind: lease.NotifyError, Message: "Please upload lease page photos first"})
			return nil, lease.ErrNoSelection
		}
	}
	identity := ""
	if o.Identity != nil {
		identity = o.Identity.CurrentIdentity()
	}
	if identity == "" {
		o.mu.Unlock()
		o.notify(ctx, lease.Notification{Kind: lease.NotifyError, Message: "Please refresh the page and try again"})
		return nil, lease.ErrNoIdentity
	}
	if replace != nil {
		o.selection = replace
		o.result = nil
	}
	pages := o.selection
	o.progress = Progress{InProgress: true, Total: len(pages)}
	o.mu.Unlock()

	if replace != nil {
		o.notify(ctx, lease.Notification{
			Kind:    lease.NotifySuccess,
			Message: fmt.Sprintf("%d image(s) selected", len(pages)),
		})
	}

	defer func() {
		o.mu.Lock()
		o.progress = Progress{}
		o.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = o.fail(ctx, fmt.Errorf("unexpected failure: %v", r))
		}
	}()

	total := len(pages)
	var (
		clauses  []lease.RawClause
		summary  string
		explicit float64
		failed   int
	)
	for i, page := range pages {
		n := i + 1
		o.mu.Lock()
		o.progress.Current = n
		o.mu.Unlock()
		o.notify(ctx, lease.Notification{
			Kind:    lease.NotifyInfo,
			Message: fmt.Sprintf("Analyzing page %d of %d...", n, total),
			Page:    n,
			Total:   total,
		})

		page.Number, page.Total = n, total
		resp, err := o.Analyzer.AnalyzePage(ctx, identity, page)
		if err != nil {
			var rejected *lease.RejectedError
			if errors.As(err, &rejected) {
				failed++
				o.pageFailed(ctx, n, total, rejected.Message)
				continue
			}
			return nil, o.fail(ctx, fmt.Errorf("page %d: %w", n, err))
		}
		if !resp.Success {
			failed++
			o.pageFailed(ctx, n, total, resp.Error)
			continue
		}

		clauses = append(clauses, resp.Payload.Clauses...)
		// last page wins for summary and explicit score
		if resp.Payload.Summary != nil {
			summary = lease.SummaryText(resp.Payload.Summary)
		}
		if rs := resp.Payload.RiskScore; rs != nil && *rs != 0 && !math.IsNaN(*rs) {
			explicit = *rs
		}
	}

	if len(clauses) == 0 {
		o.notify(ctx, lease.Notification{Kind: lease.NotifyError, Message: "No clauses extracted from any page"})
		o.Logger.Warn(module, "Analysis produced no clauses", map[string]interface{}{
			"user_id": identity,
			"pages":   total,
			"failed":  failed,
		})
		return nil, lease.ErrNoClauses
	}

	if summary == "" {
		summary = "Lease analysis completed"
	}
	report = &lease.Report{
		ID:            uuid.NewString(),
		Summary:       summary,
		RiskScore:     lease.OverallRiskScore(explicit, clauses),
		Clauses:       lease.NormalizeClauses(clauses),
		PagesAnalyzed: total - failed,
		PagesFailed:   failed,
		GeneratedAt:   o.Clock.Now(),
	}

	o.mu.Lock()
	o.result = report
	o.mu.Unlock()

	o.archive(ctx, identity, report)
	o.Logger.Info(module, "Analysis complete", map[string]interface{}{
		"user_id":    identity,
		"report_id":  report.ID,
		"risk_score": report.RiskScore,
		"clauses":    len(report.Clauses),
		"failed":     failed,
	})
	o.notify(ctx, lease.Notification{Kind: lease.NotifySuccess, Message: "Analysis complete"})
	return report, nil
}

// ShowSample publishes the canned report in place of a real one.
func (o *Orchestrator) ShowSample(ctx context.Context) *lease.Report {
	r := lease.SampleReport()
	o.mu.Lock()
	o.result = r
	o.mu.Unlock()
	o.notify(ctx, lease.Notification{Kind: lease.NotifyInfo, Message: "Sample report loaded"})
	return r
}

// Result is the last published report, nil when none.
func (o *Orchestrator) Result() *lease.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Selection returns a copy of the current selection.
func (o *Orchestrator) Selection() []lease.Page {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]lease.Page(nil), o.selection...)
}

func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

func (o *Orchestrator) pageFailed(ctx context.Context, n, total int, msg string) {
	if msg == "" {
		msg = fmt.Sprintf("Page %d failed", n)
	}
	o.Logger.Warn(module, "Page analysis failed", map[string]interface{}{
		"page":    n,
		"total":   total,
		"message": msg,
	})
	o.notify(ctx, lease.Notification{Kind: lease.NotifyError, Message: msg, Page: n, Total: total})
}

func (o *Orchestrator) fail(ctx context.Context, err error) error {
	o.Logger.Error(module, "Analysis failed", map[string]interface{}{"error": err})
	o.notify(ctx, lease.Notification{Kind: lease.NotifyError, Message: "Analysis failed: " + err.Error()})
	return err
}

func (o *Orchestrator) archive(ctx context.Context, identity string, r *lease.Report) {
	if o.Archive == nil {
		return
	}
	loc, err := o.Archive.Put(ctx, identity, r)
	if err != nil {
		o.Logger.Warn(module, "Failed to archive report", map[string]interface{}{
			"report_id": r.ID,
			"error":     err.Error(),
		})
		return
	}
	o.Logger.Info(module, "Report archived", map[string]interface{}{"report_id": r.ID, "location": loc})
}

func (o *Orchestrator) notify(ctx context.Context, n lease.Notification) {
	if o.Notifier != nil {
		o.Notifier.Notify(ctx, n)
	}
}
