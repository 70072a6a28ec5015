package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/bryanwahyu/leasecheck/internal/domain/billing"
	"github.com/bryanwahyu/leasecheck/internal/domain/lease"
	"github.com/bryanwahyu/leasecheck/internal/domain/session"
)

// renderer prints reports to out and notifications to errOut.
type renderer struct {
	out    io.Writer
	errOut io.Writer

	bold  *color.Color
	faint *color.Color
	risk  map[lease.Risk]*color.Color
	kind  map[lease.NotificationKind]*color.Color
}

func newRenderer(out, errOut io.Writer) *renderer {
	return &renderer{
		out:    out,
		errOut: errOut,
		bold:   color.New(color.Bold),
		faint:  color.New(color.Faint),
		risk: map[lease.Risk]*color.Color{
			lease.RiskHigh:   color.New(color.FgRed, color.Bold),
			lease.RiskMedium: color.New(color.FgYellow, color.Bold),
			lease.RiskLow:    color.New(color.FgGreen, color.Bold),
		},
		kind: map[lease.NotificationKind]*color.Color{
			lease.NotifyInfo:    color.New(color.FgCyan),
			lease.NotifySuccess: color.New(color.FgGreen),
			lease.NotifyError:   color.New(color.FgRed),
		},
	}
}

// Notify makes the renderer a lease.Notifier.
func (r *renderer) Notify(_ context.Context, n lease.Notification) {
	c, ok := r.kind[n.Kind]
	if !ok {
		c = r.faint
	}
	c.Fprintf(r.errOut, "• %s\n", n.Message)
}

func (r *renderer) fail(err error) {
	r.kind[lease.NotifyError].Fprintf(r.errOut, "error: %v\n", err)
}

func (r *renderer) status(st session.Status) {
	state := r.kind[lease.NotifyError].Sprint("no access")
	if st.HasAccess {
		state = r.kind[lease.NotifySuccess].Sprint("access granted")
	}
	fmt.Fprintf(r.out, "%s %s  %s\n", r.bold.Sprint("user"), st.Identity, state)
}

func (r *renderer) report(rep *lease.Report) {
	band := rep.Band()
	title := "Lease analysis"
	if rep.Sample {
		title += " (sample)"
	}
	fmt.Fprintln(r.out, r.bold.Sprint(title))
	fmt.Fprintf(r.out, "Risk score: %s  %s\n",
		r.risk[band].Sprintf("%d/100", rep.RiskScore),
		r.risk[band].Sprint(strings.ToUpper(string(band))))
	if rep.PagesFailed > 0 {
		r.faint.Fprintf(r.out, "%d page(s) analyzed, %d failed\n", rep.PagesAnalyzed, rep.PagesFailed)
	}
	fmt.Fprintf(r.out, "\n%s\n", rep.Summary)

	for _, g := range rep.Grouped() {
		fmt.Fprintf(r.out, "\n%s (%d)\n", r.risk[g.Risk].Sprintf("%s risk", strings.ToUpper(string(g.Risk))), len(g.Clauses))
		for _, c := range g.Clauses {
			fmt.Fprintf(r.out, "  %s %s\n", r.risk[g.Risk].Sprint("■"), r.bold.Sprint(c.Title))
			if c.Summary != "" {
				fmt.Fprintf(r.out, "    %s\n", c.Summary)
			}
			if c.Original != "" {
				r.faint.Fprintf(r.out, "    “%s”\n", c.Original)
			}
		}
	}
}

func (r *renderer) checkout(s *billing.Session) {
	fmt.Fprintf(r.out, "%s %s\n", r.bold.Sprint("transaction"), s.TransactionID)
	if s.URL != "" {
		fmt.Fprintf(r.out, "Complete payment at: %s\n", color.New(color.Underline).Sprint(s.URL))
	}
	r.faint.Fprintf(r.out, "then run: leasecheck checkout --confirm %s\n", s.TransactionID)
}

func (r *renderer) transaction(tx billing.TransactionStatus) {
	c := r.kind[lease.NotifyInfo]
	if tx.Completed {
		c = r.kind[lease.NotifySuccess]
	}
	fmt.Fprintf(r.out, "%s %s  %s\n", r.bold.Sprint("transaction"), tx.ID, c.Sprint(tx.Status))
}
