package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanwahyu/leasecheck/internal/application"
	"github.com/bryanwahyu/leasecheck/internal/application/analysis"
	appcheckout "github.com/bryanwahyu/leasecheck/internal/application/checkout"
	appsession "github.com/bryanwahyu/leasecheck/internal/application/session"
	"github.com/bryanwahyu/leasecheck/internal/config"
	"github.com/bryanwahyu/leasecheck/internal/domain/billing"
	"github.com/bryanwahyu/leasecheck/internal/domain/lease"
	"github.com/bryanwahyu/leasecheck/internal/domain/session"
	aiopenai "github.com/bryanwahyu/leasecheck/internal/infra/ai/openai"
	infracheckout "github.com/bryanwahyu/leasecheck/internal/infra/checkout"
	mysqlp "github.com/bryanwahyu/leasecheck/internal/infra/db/mysql"
	"github.com/bryanwahyu/leasecheck/internal/infra/db/postgres"
	"github.com/bryanwahyu/leasecheck/internal/infra/db/sqlite"
	"github.com/bryanwahyu/leasecheck/internal/infra/httpserver"
	"github.com/bryanwahyu/leasecheck/internal/infra/kv"
	"github.com/bryanwahyu/leasecheck/internal/infra/leaseapi"
	minioStore "github.com/bryanwahyu/leasecheck/internal/infra/storage"
	"github.com/bryanwahyu/leasecheck/internal/middleware"
	"github.com/bryanwahyu/leasecheck/internal/pkg/logger"
)

const module = "bootstrap"

// Container holds one wired instance of every component for one process.
type Container struct {
	Config   *config.Config
	Logger   logger.ILogger
	Store    session.Store
	API      *leaseapi.Client
	Session  *appsession.Manager
	Analysis *analysis.Orchestrator
	Feed     *analysis.Feed
	Checkout *appcheckout.Service // nil when checkout is disabled
	Reports  httpserver.ReportStore
	Links    httpserver.ReportLinker // set for the minio archive
	Health   map[string]middleware.HealthChecker

	closers []func() error
}

// New wires everything from cfg. notifier receives every orchestrator
// notification after the feed; it may be nil.
func New(ctx context.Context, cfg *config.Config, log logger.ILogger, notifier lease.Notifier) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: log,
		Health: map[string]middleware.HealthChecker{},
	}
	fail := func(err error) (*Container, error) {
		_ = c.Close()
		return nil, err
	}

	db, err := c.initStore(ctx)
	if err != nil {
		return fail(fmt.Errorf("storage: %w", err))
	}

	c.API = leaseapi.NewClient(cfg.API.BaseURL, cfg.API.Timeout, log)

	var analyzer lease.Analyzer = c.API
	if cfg.Analyzer.Driver == "openai" {
		analyzer = aiopenai.NewClientWithBaseURL(cfg.Analyzer.APIKey, cfg.Analyzer.BaseURL, cfg.Analyzer.Model, log)
	}

	archive, err := c.initArchive(ctx, db)
	if err != nil {
		return fail(fmt.Errorf("archive: %w", err))
	}

	clock := application.SystemClock{}
	c.Session = &appsession.Manager{
		Store:       c.Store,
		Authority:   c.API,
		Clock:       clock,
		Logger:      log,
		GracePeriod: cfg.Session.GracePeriod,
		SettleDelay: cfg.Session.SettleDelay,
	}

	c.Feed = analysis.NewFeed(200)
	c.Feed.Next = notifier
	c.Analysis = &analysis.Orchestrator{
		Analyzer: analyzer,
		Identity: c.Session,
		Notifier: c.Feed,
		Archive:  archive,
		Clock:    clock,
		Logger:   log,
	}

	if err := c.initCheckout(ctx); err != nil {
		return fail(fmt.Errorf("checkout: %w", err))
	}
	return c, nil
}

func (c *Container) initStore(ctx context.Context) (*sql.DB, error) {
	cfg := c.Config
	ns := cfg.Session.Profile
	switch cfg.Storage.Driver {
	case "memory":
		c.Store = kv.NewMemoryStore()
		return nil, nil
	case "redis":
		rdb, err := kv.DialRedis(ctx, cfg.Storage.RedisURL)
		if err != nil {
			return nil, err
		}
		rs := kv.NewRedisStore(rdb, "leasecheck:"+ns+":")
		c.Store = rs
		c.Health["redis"] = middleware.CheckFunc(rs.Ping)
		c.closers = append(c.closers, rs.Close)
		return nil, nil
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, db.Close)
		if err := mysqlp.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		c.Store = mysqlp.NewKVStore(db, ns)
		c.Health["database"] = &middleware.DatabaseHealthChecker{DB: db}
		return db, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, db.Close)
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		c.Store = postgres.NewKVStore(db, ns)
		c.Health["database"] = &middleware.DatabaseHealthChecker{DB: db}
		return db, nil
	default:
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, db.Close)
		c.Store = sqlite.NewKVStore(db, ns)
		c.Health["database"] = &middleware.DatabaseHealthChecker{DB: db}
		return db, nil
	}
}

func (c *Container) initArchive(ctx context.Context, db *sql.DB) (lease.ReportArchive, error) {
	cfg := c.Config
	switch cfg.Archive.Driver {
	case "minio":
		st, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return nil, err
		}
		st.WithPrefix(cfg.Archive.Prefix)
		c.Health["minio"] = middleware.CheckFunc(st.Ping)
		c.Reports = st
		c.Links = st
		return st, nil
	case "sql":
		if db == nil {
			return nil, errors.New("sql archive needs a sql storage driver")
		}
		switch cfg.Storage.Driver {
		case "mysql":
			repo := mysqlp.NewReportRepository(db)
			c.Reports = repo
			return repo, nil
		case "postgres":
			repo := postgres.NewReportRepository(db)
			c.Reports = repo
			return repo, nil
		default:
			repo := sqlite.NewReportRepository(db)
			c.Reports = repo
			return repo, nil
		}
	}
	return nil, nil
}

func (c *Container) initCheckout(ctx context.Context) error {
	cfg := c.Config
	var provider billing.Provider
	switch cfg.Checkout.Provider {
	case "none":
		return nil
	case "midtrans":
		m := cfg.Checkout.Midtrans
		provider = infracheckout.NewMidtransProvider(infracheckout.MidtransConfig{
			ServerKey:  m.ServerKey,
			Production: m.Production,
			FinishURL:  m.FinishURL,
			Prices: map[billing.Plan]int64{
				billing.PlanMonthly: m.MonthlyPrice,
				billing.PlanYearly:  m.YearlyPrice,
			},
		}, c.Logger)
	default:
		p := cfg.Checkout.Paddle
		provider = infracheckout.NewPaddleProvider(infracheckout.PaddleConfig{
			Env:            p.Env,
			APIBaseURL:     cfg.API.BaseURL,
			SandboxToken:   p.SandboxToken,
			LiveToken:      p.LiveToken,
			SandboxPriceID: p.SandboxPriceID,
			LivePriceID:    p.LivePriceID,
		}, c.API, c.Logger)
	}

	svc := appcheckout.NewService(provider, c.Logger, cfg.Checkout.ReadyTimeout)
	svc.Subscribe(func(ctx context.Context, e billing.Event) {
		if e.Name != billing.EventCheckoutCompleted {
			return
		}
		if _, err := c.Session.HandlePaymentCompleted(ctx); err != nil {
			c.Logger.Warn(module, "Access refresh after payment failed", map[string]interface{}{
				"transaction_id": e.TransactionID,
				"error":          err.Error(),
			})
		}
	})
	svc.Init(ctx)
	c.Checkout = svc
	c.closers = append(c.closers, func() error { svc.Teardown(); return nil })
	return nil
}

// Idle client buckets are swept while the router lives; Close stops the sweep.
const (
	limiterSweepEvery = time.Minute
	limiterIdle       = 10 * time.Minute
)

// Router builds the companion HTTP API over this container.
func (c *Container) Router() http.Handler {
	limiter := middleware.NewRateLimiter(c.Config.Server.RatePerMinute)
	stopSweep := limiter.StartSweeper(limiterSweepEvery, limiterIdle)
	c.closers = append(c.closers, func() error { stopSweep(); return nil })
	deps := httpserver.Deps{
		Session:        c.Session,
		Analysis:       c.Analysis,
		Reports:        c.Reports,
		Links:          c.Links,
		Feed:           c.Feed,
		Logger:         c.Logger,
		Health:         c.Health,
		Token:          c.Config.Server.Token,
		RatePerMinute:  c.Config.Server.RatePerMinute,
		AllowedOrigins: c.Config.Server.AllowedOrigins,
		Limiter:        limiter,
	}
	// a typed nil would defeat the router's nil check
	if c.Checkout != nil {
		deps.Checkout = c.Checkout
	}
	return httpserver.NewRouter(deps)
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return errors.Join(errs...)
}
