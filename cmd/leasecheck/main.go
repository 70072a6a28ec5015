package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bryanwahyu/leasecheck/internal/bootstrap"
	"github.com/bryanwahyu/leasecheck/internal/config"
	"github.com/bryanwahyu/leasecheck/internal/domain/billing"
	"github.com/bryanwahyu/leasecheck/internal/domain/lease"
	"github.com/bryanwahyu/leasecheck/internal/domain/session"
	"github.com/bryanwahyu/leasecheck/internal/pkg/logger"
)

const usage = `usage: leasecheck <command> [flags]

commands:
  access     resolve identity and paid access
  refresh    re-verify access for the stored identity
  analyze    analyze lease page photos: leasecheck analyze [flags] page1.jpg page2.jpg ...
  sample     show the sample report
  checkout   open a checkout: leasecheck checkout [--plan yearly] [--confirm <transaction-id>]
  serve      run the local companion HTTP API

common flags:
  --config <path>      config file (default $CONFIG_PATH or config.yaml)
  --launch-url <url>   launch URL carrying user_id and payment=success
  --user-id <id>       identity override
  --payment success    the payment just completed
  --json               print JSON instead of text`

// exit codes
const (
	exitOK     = 0
	exitFail   = 1
	exitUsage  = 2
	exitDenied = 3
)

type common struct {
	configPath string
	launchURL  string
	userID     string
	payment    string
	asJSON     bool
}

func (c *common) register(fs *flag.FlagSet) {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	fs.StringVar(&c.configPath, "config", path, "config file")
	fs.StringVar(&c.launchURL, "launch-url", "", "launch URL with user_id and payment params")
	fs.StringVar(&c.userID, "user-id", "", "identity override")
	fs.StringVar(&c.payment, "payment", "", `"success" after a completed payment`)
	fs.BoolVar(&c.asJSON, "json", false, "print JSON")
}

func (c *common) launch() (session.Launch, error) {
	var l session.Launch
	if c.launchURL != "" {
		parsed, err := session.ParseLaunch(c.launchURL)
		if err != nil {
			return l, err
		}
		l = parsed
	}
	if c.userID != "" {
		l.UserID = c.userID
	}
	if c.payment == "success" {
		l.PaymentSuccess = true
	}
	return l, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch os.Args[1] {
	case "access":
		code = runAccess(ctx, os.Args[2:], false)
	case "refresh":
		code = runAccess(ctx, os.Args[2:], true)
	case "analyze":
		code = runAnalyze(ctx, os.Args[2:])
	case "sample":
		code = runSample(ctx, os.Args[2:])
	case "checkout":
		code = runCheckout(ctx, os.Args[2:])
	case "serve":
		code = runServe(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usage)
		code = exitUsage
	}
	stop()
	os.Exit(code)
}

// setup loads config, wires the container and resolves the session.
func setup(ctx context.Context, c *common, out *renderer) (*bootstrap.Container, session.Status, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, session.Status{}, fmt.Errorf("config load error: %w", err)
	}
	log := logger.NewZapLogger(cfg.Log.FilePath, cfg.Log.Production)

	var notifier lease.Notifier
	if out != nil && !c.asJSON {
		notifier = out
	}
	ctr, err := bootstrap.New(ctx, cfg, log, notifier)
	if err != nil {
		_ = log.Sync()
		return nil, session.Status{}, err
	}

	launch, err := c.launch()
	if err != nil {
		_ = ctr.Close()
		return nil, session.Status{}, fmt.Errorf("launch url: %w", err)
	}
	st, err := ctr.Session.Initialize(ctx, launch)
	if err != nil {
		_ = ctr.Close()
		return nil, session.Status{}, err
	}
	return ctr, st, nil
}

func parse(fs *flag.FlagSet, args []string) bool {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return false
	}
	return true
}

func runAccess(ctx context.Context, args []string, refresh bool) int {
	var c common
	fs := flag.NewFlagSet("access", flag.ContinueOnError)
	c.register(fs)
	if !parse(fs, args) {
		return exitUsage
	}
	out := newRenderer(os.Stdout, os.Stderr)

	ctr, st, err := setup(ctx, &c, out)
	if err != nil {
		out.fail(err)
		return exitFail
	}
	defer ctr.Close()

	if refresh {
		if st, err = ctr.Session.RefreshAccess(ctx); err != nil {
			out.fail(err)
			return exitFail
		}
	}
	if c.asJSON {
		printJSON(st)
	} else {
		out.status(st)
	}
	if !st.HasAccess {
		return exitDenied
	}
	return exitOK
}

func runAnalyze(ctx context.Context, args []string) int {
	var c common
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	c.register(fs)
	if !parse(fs, args) {
		return exitUsage
	}
	out := newRenderer(os.Stdout, os.Stderr)

	pages := make([]lease.Page, 0, fs.NArg())
	for _, path := range fs.Args() {
		p, err := lease.FilePage(path)
		if err != nil {
			out.fail(err)
			return exitUsage
		}
		pages = append(pages, p)
	}

	ctr, st, err := setup(ctx, &c, out)
	if err != nil {
		out.fail(err)
		return exitFail
	}
	defer ctr.Close()

	if !st.HasAccess {
		err := errors.New("paid access required, run `leasecheck checkout` first")
		if c.asJSON {
			encodeJSON(os.Stdout, map[string]any{"error": err.Error(), "session": st})
		} else {
			out.status(st)
			out.fail(err)
		}
		return exitDenied
	}
	// text mode already printed the notifications on failure
	if err := ctr.Analysis.Select(ctx, pages); err != nil {
		return analyzeFailed(os.Stdout, c.asJSON, err)
	}
	report, err := ctr.Analysis.Analyze(ctx)
	if err != nil {
		return analyzeFailed(os.Stdout, c.asJSON, err)
	}
	if c.asJSON {
		printJSON(report)
	} else {
		out.report(report)
	}
	return exitOK
}

func runSample(ctx context.Context, args []string) int {
	var asJSON bool
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	fs.BoolVar(&asJSON, "json", false, "print JSON")
	if !parse(fs, args) {
		return exitUsage
	}
	r := lease.SampleReport()
	if asJSON {
		printJSON(r)
		return exitOK
	}
	newRenderer(os.Stdout, os.Stderr).report(r)
	return exitOK
}

func runCheckout(ctx context.Context, args []string) int {
	var (
		c       common
		plan    string
		confirm string
	)
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	c.register(fs)
	fs.StringVar(&plan, "plan", "yearly", "monthly or yearly")
	fs.StringVar(&confirm, "confirm", "", "confirm a finished transaction instead of opening one")
	if !parse(fs, args) {
		return exitUsage
	}
	plan = strings.ToLower(plan)
	if plan != string(billing.PlanMonthly) && plan != string(billing.PlanYearly) {
		fmt.Fprintf(os.Stderr, "invalid plan %q\n", plan)
		return exitUsage
	}
	out := newRenderer(os.Stdout, os.Stderr)

	ctr, st, err := setup(ctx, &c, out)
	if err != nil {
		out.fail(err)
		return exitFail
	}
	defer ctr.Close()
	if ctr.Checkout == nil {
		out.fail(errors.New("checkout is disabled in config"))
		return exitFail
	}

	if confirm != "" {
		tx, err := ctr.Checkout.Confirm(ctx, confirm)
		if err != nil {
			out.fail(err)
			return exitFail
		}
		st = ctr.Session.Status()
		if c.asJSON {
			printJSON(map[string]any{"transaction": tx, "session": st})
		} else {
			out.transaction(tx)
			out.status(st)
		}
		return exitOK
	}

	sess, err := ctr.Checkout.Open(ctx, billing.Plan(plan), map[string]any{"user_id": string(st.Identity)})
	if err != nil {
		out.fail(err)
		return exitFail
	}
	if c.asJSON {
		printJSON(sess)
	} else {
		out.checkout(sess)
	}
	return exitOK
}

// analyzeFailed maps an analysis error to an exit code, printing it when
// the output is JSON and no notifier is attached.
func analyzeFailed(w io.Writer, asJSON bool, err error) int {
	if asJSON {
		encodeJSON(w, map[string]string{"error": err.Error()})
	}
	switch {
	case errors.Is(err, lease.ErrEmptySelection), errors.Is(err, lease.ErrTooManyPages), errors.Is(err, lease.ErrPageTooLarge):
		return exitUsage
	default:
		return exitFail
	}
}

func printJSON(v any) { encodeJSON(os.Stdout, v) }

func encodeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
