package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	API struct {
		BaseURL string        `yaml:"baseURL"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`

	Session struct {
		// Profile namespaces the stored identity, like one browser profile.
		Profile     string        `yaml:"profile"`
		GracePeriod time.Duration `yaml:"gracePeriod"`
		SettleDelay time.Duration `yaml:"settleDelay"`
	} `yaml:"session"`

	Analyzer struct {
		Driver  string `yaml:"driver"` // backend | openai
		APIKey  string `yaml:"apiKey"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"baseURL"`
	} `yaml:"analyzer"`

	Storage struct {
		Driver      string `yaml:"driver"` // memory | sqlite | redis | mysql | postgres
		SQLitePath  string `yaml:"sqlitePath"`
		RedisURL    string `yaml:"redisURL"`
		PostgresDSN string `yaml:"postgresDSN"`
	} `yaml:"storage"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Archive struct {
		Driver string `yaml:"driver"` // none | minio | sql
		Prefix string `yaml:"prefix"`
	} `yaml:"archive"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Checkout struct {
		Provider     string        `yaml:"provider"` // paddle | midtrans | none
		ReadyTimeout time.Duration `yaml:"readyTimeout"`
		Paddle       struct {
			Env            string `yaml:"env"`
			SandboxToken   string `yaml:"sandboxToken"`
			LiveToken      string `yaml:"liveToken"`
			SandboxPriceID string `yaml:"sandboxPriceID"`
			LivePriceID    string `yaml:"livePriceID"`
		} `yaml:"paddle"`
		Midtrans struct {
			ServerKey    string `yaml:"serverKey"`
			Production   bool   `yaml:"production"`
			FinishURL    string `yaml:"finishURL"`
			MonthlyPrice int64  `yaml:"monthlyPrice"`
			YearlyPrice  int64  `yaml:"yearlyPrice"`
		} `yaml:"midtrans"`
	} `yaml:"checkout"`

	Server struct {
		Port           int      `yaml:"port"`
		Token          string   `yaml:"token"`
		RatePerMinute  int      `yaml:"ratePerMinute"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`

	Log struct {
		FilePath   string `yaml:"filePath"`
		Production bool   `yaml:"production"`
	} `yaml:"log"`
}

// Default is the configuration used when no file exists.
func Default() *Config {
	var c Config
	c.API.BaseURL = "http://localhost:8000"
	c.API.Timeout = 2 * time.Minute
	c.Session.Profile = "default"
	c.Session.GracePeriod = 5 * time.Minute
	c.Session.SettleDelay = 2 * time.Second
	c.Analyzer.Driver = "backend"
	c.Analyzer.Model = "gpt-4o"
	c.Storage.Driver = "sqlite"
	c.Storage.SQLitePath = defaultSQLitePath()
	c.Database.Port = 3306
	c.Archive.Driver = "none"
	c.Minio.BucketName = "lease-reports"
	c.Minio.Region = "us-east-1"
	c.Checkout.Provider = "paddle"
	c.Checkout.ReadyTimeout = 10 * time.Second
	c.Checkout.Paddle.SandboxToken = "test_79d40c5949ab08e0777f0736248"
	c.Server.Port = 8080
	c.Server.RatePerMinute = 60
	c.Server.AllowedOrigins = []string{"*"}
	c.Log.FilePath = "logs/leasecheck.log"
	return &c
}

func defaultSQLitePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/leasecheck/storage.db"
	}
	return "leasecheck.db"
}

// Load reads .env (if any), then the YAML file at path over the defaults,
// then environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("LEASECHECK_API_BASE_URL", c.API.BaseURL)
	c.Storage.Driver = getEnv("LEASECHECK_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.SQLitePath = getEnv("LEASECHECK_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.RedisURL = getEnv("REDIS_URL", c.Storage.RedisURL)
	c.Storage.PostgresDSN = getEnv("DATABASE_URL", c.Storage.PostgresDSN)
	c.Analyzer.APIKey = getEnv("OPENAI_API_KEY", c.Analyzer.APIKey)
	c.Checkout.Paddle.Env = getEnv("PADDLE_ENV", c.Checkout.Paddle.Env)
	c.Checkout.Paddle.SandboxToken = getEnv("PADDLE_SANDBOX_TOKEN", c.Checkout.Paddle.SandboxToken)
	c.Checkout.Paddle.LiveToken = getEnv("PADDLE_LIVE_TOKEN", c.Checkout.Paddle.LiveToken)
	c.Checkout.Paddle.SandboxPriceID = getEnv("PADDLE_SANDBOX_PRICE_ID", c.Checkout.Paddle.SandboxPriceID)
	c.Checkout.Paddle.LivePriceID = getEnv("PADDLE_LIVE_PRICE_ID", c.Checkout.Paddle.LivePriceID)
	c.Checkout.Midtrans.ServerKey = getEnv("MIDTRANS_SERVER_KEY", c.Checkout.Midtrans.ServerKey)
	c.Checkout.Midtrans.Production = getEnvAsBool("MIDTRANS_IS_PRODUCTION", c.Checkout.Midtrans.Production)
	c.Server.Token = getEnv("LEASECHECK_SERVER_TOKEN", c.Server.Token)
	c.Server.Port = getEnvAsInt("LEASECHECK_PORT", c.Server.Port)
	c.Log.FilePath = getEnv("LOG_FILE_PATH", c.Log.FilePath)
	if env, ok := os.LookupEnv("GO_ENV"); ok {
		c.Log.Production = env == "production"
	}
}

// Validate rejects unknown drivers and missing required settings.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.baseURL is required"))
	}
	if !oneOf(c.Storage.Driver, "memory", "sqlite", "redis", "mysql", "postgres") {
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == "redis" && c.Storage.RedisURL == "" {
		errs = append(errs, errors.New("storage.redisURL is required for the redis driver"))
	}
	if !oneOf(c.Analyzer.Driver, "backend", "openai") {
		errs = append(errs, fmt.Errorf("unknown analyzer driver %q", c.Analyzer.Driver))
	}
	if c.Analyzer.Driver == "openai" && c.Analyzer.APIKey == "" {
		errs = append(errs, errors.New("analyzer.apiKey is required for the openai driver"))
	}
	if !oneOf(c.Archive.Driver, "none", "minio", "sql") {
		errs = append(errs, fmt.Errorf("unknown archive driver %q", c.Archive.Driver))
	}
	if c.Archive.Driver == "sql" && !oneOf(c.Storage.Driver, "sqlite", "mysql", "postgres") {
		errs = append(errs, errors.New("archive driver sql needs a sql storage driver"))
	}
	if !oneOf(c.Checkout.Provider, "paddle", "midtrans", "none") {
		errs = append(errs, fmt.Errorf("unknown checkout provider %q", c.Checkout.Provider))
	}
	if c.Checkout.Paddle.Env != "" && !oneOf(c.Checkout.Paddle.Env, "sandbox", "production") {
		errs = append(errs, fmt.Errorf("unknown paddle env %q", c.Checkout.Paddle.Env))
	}
	return errors.Join(errs...)
}

// MySQLDSN builds the go-sql-driver DSN from the database section.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

func oneOf(v string, opts ...string) bool {
	for _, o := range opts {
		if v == o {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
