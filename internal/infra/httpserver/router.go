package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/leasecheck/internal/application/analysis"
	"github.com/bryanwahyu/leasecheck/internal/domain/billing"
	"github.com/bryanwahyu/leasecheck/internal/domain/lease"
	"github.com/bryanwahyu/leasecheck/internal/domain/session"
	"github.com/bryanwahyu/leasecheck/internal/middleware"
	"github.com/bryanwahyu/leasecheck/internal/pkg/logger"
)

// SessionService is the access manager as the router sees it.
type SessionService interface {
	Initialize(ctx context.Context, launch session.Launch) (session.Status, error)
	RefreshAccess(ctx context.Context) (session.Status, error)
	Status() session.Status
	HasAccess() bool
}

type AnalysisService interface {
	SelectAndAnalyze(ctx context.Context, pages []lease.Page) (*lease.Report, error)
	Result() *lease.Report
	Progress() analysis.Progress
}

type CheckoutService interface {
	Ready(ctx context.Context) error
	Open(ctx context.Context, plan billing.Plan, customData map[string]any) (*billing.Session, error)
	Confirm(ctx context.Context, transactionID string) (billing.TransactionStatus, error)
}

// ReportStore reads archived reports back, scoped to their owner.
type ReportStore interface {
	ListByIdentity(ctx context.Context, identity string, limit int) ([]lease.Report, error)
	Get(ctx context.Context, identity, id string) (*lease.Report, error)
}

// ReportLinker hands out temporary download links for archived reports.
type ReportLinker interface {
	PresignedURL(ctx context.Context, identity, id string, ttl time.Duration) (string, error)
}

// reportLinkTTL bounds how long a download link stays valid.
const reportLinkTTL = 15 * time.Minute

type Deps struct {
	Session  SessionService
	Analysis AnalysisService
	Checkout CheckoutService // optional
	Reports  ReportStore     // optional
	Links    ReportLinker    // optional
	Feed     *analysis.Feed
	Logger   logger.ILogger
	Health   map[string]middleware.HealthChecker

	Token          string
	RatePerMinute  int
	AllowedOrigins []string

	// Limiter is built from RatePerMinute when nil.
	Limiter *middleware.RateLimiter
}

type Router struct {
	Deps
}

// maxUploadBytes covers a full selection plus multipart overhead.
const maxUploadBytes = lease.MaxPages*lease.MaxPageBytes + 1<<20

func NewRouter(d Deps) http.Handler {
	r := &Router{Deps: d}
	mux := chi.NewRouter()

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(d.Logger))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(middleware.BearerAuth(d.Token))
	limiter := d.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(d.RatePerMinute)
	}
	mux.Use(limiter.Middleware)

	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Get("/ready", middleware.ReadinessHandler(r.ready))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/session", r.wrap(r.handleSession))
		rt.Post("/session/launch", r.wrap(r.handleLaunch))
		rt.Post("/session/refresh", r.wrap(r.handleRefresh))

		rt.Post("/analyze", r.wrap(r.handleAnalyze))
		rt.Get("/progress", r.wrap(r.handleProgress))
		rt.Get("/notifications", r.wrap(r.handleNotifications))
		rt.Get("/report", r.wrap(r.handleReport))
		rt.Get("/report/sample", r.wrap(r.handleSample))
		rt.Get("/reports", r.wrap(r.handleReports))
		rt.Get("/reports/{id}", r.wrap(r.handleArchivedReport))

		rt.Post("/checkout", r.wrap(r.handleCheckout))
		rt.Post("/checkout/{id}/confirm", r.wrap(r.handleConfirm))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// httpError carries an explicit status for errors raised by handlers.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) error { return &httpError{status: http.StatusBadRequest, msg: msg} }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := statusFor(err)
			if status >= 500 {
				r.Logger.Error("http", "Handler failed", map[string]interface{}{
					"path":  req.URL.Path,
					"error": err,
				})
			}
			writeJSON(w, status, map[string]any{"error": err.Error()})
		}
	}
}

func statusFor(err error) int {
	var he *httpError
	if errors.As(err, &he) {
		return he.status
	}
	var ce *billing.CheckoutError
	if errors.As(err, &ce) {
		switch ce.Type {
		case billing.ErrorValidation:
			return http.StatusBadRequest
		case billing.ErrorNotReady:
			return http.StatusServiceUnavailable
		default:
			return http.StatusBadGateway
		}
	}
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig), errors.Is(err, lease.ErrPageTooLarge), errors.Is(err, lease.ErrTooManyPages):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, lease.ErrEmptySelection), errors.Is(err, lease.ErrNoSelection):
		return http.StatusBadRequest
	case errors.Is(err, lease.ErrAnalysisInProgress), errors.Is(err, lease.ErrNoIdentity), errors.Is(err, session.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, lease.ErrNoClauses):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lease.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func (r *Router) ready(ctx context.Context) error {
	if r.Checkout == nil {
		return nil
	}
	return r.Checkout.Ready(ctx)
}

// GET /v1/session
func (r *Router) handleSession(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, r.Session.Status())
}

// POST /v1/session/launch
// Body: {"launch_url": "..."} or {"user_id": "...", "payment": "success"}
func (r *Router) handleLaunch(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		LaunchURL string `json:"launch_url"`
		UserID    string `json:"user_id"`
		Payment   string `json:"payment"`
	}
	if err := json.NewDecoder(io.LimitReader(req.Body, 1<<16)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid JSON body")
	}

	var launch session.Launch
	if body.LaunchURL != "" {
		if err := middleware.ValidateLaunchURL(body.LaunchURL); err != nil {
			return badRequest(err.Error())
		}
		l, err := session.ParseLaunch(body.LaunchURL)
		if err != nil {
			return badRequest(err.Error())
		}
		launch = l
	}
	if body.UserID != "" {
		launch.UserID = body.UserID
	}
	if body.Payment == "success" {
		launch.PaymentSuccess = true
	}
	if launch.UserID != "" {
		if err := middleware.ValidateUserID(launch.UserID); err != nil {
			return badRequest(err.Error())
		}
	}

	st, err := r.Session.Initialize(req.Context(), launch)
	if err != nil {
		return err
	}
	middleware.RecordAccessCheck(st.HasAccess)
	return writeJSON(w, http.StatusOK, st)
}

// POST /v1/session/refresh
func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) error {
	st, err := r.Session.RefreshAccess(req.Context())
	if err != nil {
		return err
	}
	middleware.RecordAccessCheck(st.HasAccess)
	return writeJSON(w, http.StatusOK, st)
}

// POST /v1/analyze (multipart, one or more "files" parts)
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	if !r.Session.HasAccess() {
		return &httpError{status: http.StatusForbidden, msg: "paid access required"}
	}

	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return badRequest("invalid multipart body: " + err.Error())
	}
	defer req.MultipartForm.RemoveAll()

	files := req.MultipartForm.File["files"]
	pages := make([]lease.Page, 0, len(files))
	for _, fh := range files {
		fh := fh
		pages = append(pages, lease.Page{
			Name:        middleware.SanitizeFilename(fh.Filename),
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				f, err := fh.Open()
				if err != nil {
					return nil, err
				}
				return f, nil
			},
		})
	}

	var since uint64
	if r.Feed != nil {
		since = r.Feed.Seq()
	}
	middleware.IncrementAnalyses()
	middleware.IncrementAnalysesRun()
	report, err := r.Analysis.SelectAndAnalyze(req.Context(), pages)
	middleware.DecrementAnalysesRun()
	if err != nil {
		middleware.IncrementAnalysesFail()
		if errors.Is(err, lease.ErrNoClauses) {
			middleware.AddPages(0, len(pages))
		}
		return err
	}
	middleware.AddPages(report.PagesAnalyzed, report.PagesFailed)

	resp := map[string]any{
		"report": report,
		"band":   report.Band(),
		"groups": report.Grouped(),
	}
	if r.Feed != nil {
		resp["notifications"] = r.Feed.Since(since)
	}
	return writeJSON(w, http.StatusOK, resp)
}

// GET /v1/progress
func (r *Router) handleProgress(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, r.Analysis.Progress())
}

// GET /v1/notifications?since=<seq>
func (r *Router) handleNotifications(w http.ResponseWriter, req *http.Request) error {
	if r.Feed == nil {
		return writeJSON(w, http.StatusOK, []analysis.Entry{})
	}
	since, _ := strconv.ParseUint(req.URL.Query().Get("since"), 10, 64)
	return writeJSON(w, http.StatusOK, r.Feed.Since(since))
}

// GET /v1/report
func (r *Router) handleReport(w http.ResponseWriter, req *http.Request) error {
	rep := r.Analysis.Result()
	if rep == nil {
		return &httpError{status: http.StatusNotFound, msg: "no report available"}
	}
	return writeJSON(w, http.StatusOK, rep)
}

// GET /v1/report/sample
func (r *Router) handleSample(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, lease.SampleReport())
}

// GET /v1/reports?limit=20
func (r *Router) handleReports(w http.ResponseWriter, req *http.Request) error {
	if r.Reports == nil {
		return &httpError{status: http.StatusNotFound, msg: "report archive is not enabled"}
	}
	id := r.Session.Status().Identity
	if id == "" {
		return session.ErrNotInitialized
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	list, err := r.Reports.ListByIdentity(req.Context(), string(id), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if list == nil {
		list = []lease.Report{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/reports/{id}
func (r *Router) handleArchivedReport(w http.ResponseWriter, req *http.Request) error {
	if r.Reports == nil {
		return &httpError{status: http.StatusNotFound, msg: "report archive is not enabled"}
	}
	owner := string(r.Session.Status().Identity)
	if owner == "" {
		return session.ErrNotInitialized
	}
	id := chi.URLParam(req, "id")
	rep, err := r.Reports.Get(req.Context(), owner, id)
	if err != nil {
		return err
	}
	if rep == nil {
		return &httpError{status: http.StatusNotFound, msg: "report not found"}
	}

	resp := map[string]any{"report": rep}
	if r.Links != nil {
		link, err := r.Links.PresignedURL(req.Context(), owner, id, reportLinkTTL)
		if err != nil {
			r.Logger.Warn("http", "Failed to presign report link", map[string]interface{}{
				"report_id": id,
				"error":     err.Error(),
			})
		} else {
			resp["url"] = link
		}
	}
	return writeJSON(w, http.StatusOK, resp)
}

// POST /v1/checkout
// Body: {"plan": "monthly|yearly"}
func (r *Router) handleCheckout(w http.ResponseWriter, req *http.Request) error {
	if r.Checkout == nil {
		return &httpError{status: http.StatusNotFound, msg: "checkout is not enabled"}
	}
	var body struct {
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(io.LimitReader(req.Body, 1<<16)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid JSON body")
	}
	plan, err := middleware.ValidatePlan(body.Plan)
	if err != nil {
		return badRequest(err.Error())
	}
	id := r.Session.Status().Identity
	if id == "" {
		return session.ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(req.Context(), 30*time.Second)
	defer cancel()
	sess, err := r.Checkout.Open(ctx, billing.Plan(plan), map[string]any{"user_id": string(id)})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, sess)
}

// POST /v1/checkout/{id}/confirm
func (r *Router) handleConfirm(w http.ResponseWriter, req *http.Request) error {
	if r.Checkout == nil {
		return &httpError{status: http.StatusNotFound, msg: "checkout is not enabled"}
	}
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateTransactionID(id); err != nil {
		return badRequest(err.Error())
	}
	st, err := r.Checkout.Confirm(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"transaction": st,
		"session":     r.Session.Status(),
	})
}
