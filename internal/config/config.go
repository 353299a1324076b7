// Package config resolves the settings of the server once at startup.
//
// Values come from, in increasing priority: an optional json5 file (with
// its .local override), a .env file and the process environment. Defaults
// fill whatever is still unset.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"eclass-mcp/internal/telemetry"
	"eclass-mcp/lib/configutil"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DefaultPath      = "eclass.json5"
	DefaultRateLimit = 2.0
)

var (
	ErrInvalidBaseUrl = errors.New("invalid base url")
	ErrInvalidValue   = errors.New("invalid config value")
)

type Config struct {
	BaseUrl  string `json:"base_url" env:"ECLASS_URL"`
	Username string `json:"username" env:"ECLASS_USERNAME"`
	Password string `json:"password" env:"ECLASS_PASSWORD"`
	// CasHost pins the identity provider host, empty trusts wherever the
	// platform redirects.
	CasHost           string  `json:"cas_host" env:"ECLASS_CAS_HOST"`
	HopTimeoutSeconds int `json:"hop_timeout_seconds" env:"ECLASS_HOP_TIMEOUT_SECONDS"`
	// RateLimit is in requests per second, 0 disables pacing. Unset means
	// the default.
	RateLimit *float64 `json:"rate_limit" env:"ECLASS_RATE_LIMIT"`
	LogLevel  string   `json:"log_level" env:"ECLASS_LOG_LEVEL"`
	// HttpDumpDir receives a file per http exchange when set.
	HttpDumpDir            string   `json:"http_dump_dir" env:"ECLASS_HTTP_DUMP_DIR"`
	AuthenticatedSelectors []string `json:"authenticated_selectors" env:"ECLASS_AUTHENTICATED_SELECTORS" envSeparator:","`
	// DisableBrowserEmulation sends plain go http requests instead of
	// browser-like ones.
	DisableBrowserEmulation *bool `json:"disable_browser_emulation" env:"ECLASS_DISABLE_BROWSER_EMULATION"`
	// Otlp exports traces and metrics when an endpoint is set, for example
	// ECLASS_OTLP_TRACES_HTTP_ENDPOINT.
	Otlp telemetry.OtlpConfig `json:"otlp" envPrefix:"ECLASS_OTLP_"`
}

func defaults() Config {
	return Config{
		BaseUrl:           "https://eclass.uoa.gr",
		HopTimeoutSeconds: 30,
		RateLimit:         ptr(DefaultRateLimit),
		LogLevel:          "info",
	}
}

func ptr[T any](v T) *T {
	return &v
}

// Load resolves the configuration. path may be empty or point to a file
// that does not exist, the file layer is optional.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		fromFile, err := configutil.ReadConfig[Config](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		if err == nil {
			cfg = fromFile
		}
	}

	// a missing .env file is fine, existing variables are never overridden
	_ = godotenv.Load()

	var fromEnv Config
	if err := env.Parse(&fromEnv); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	// pointer fields are compared by presence, so an explicit 0 or false
	// still overrides
	if err := mergo.Merge(&cfg, fromEnv, mergo.WithOverride, mergo.WithoutDereference); err != nil {
		return Config{}, err
	}
	if err := mergo.Merge(&cfg, defaults(), mergo.WithoutDereference); err != nil {
		return Config{}, err
	}

	cfg.BaseUrl = strings.TrimRight(strings.TrimSpace(cfg.BaseUrl), "/")
	cfg.AuthenticatedSelectors = trimAll(cfg.AuthenticatedSelectors)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (c Config) Validate() error {
	if _, err := c.ParsedBaseUrl(); err != nil {
		return err
	}
	if c.HopTimeoutSeconds < 0 {
		return fmt.Errorf("%w: hop_timeout_seconds must not be negative", ErrInvalidValue)
	}
	if c.RequestsPerSecond() < 0 {
		return fmt.Errorf("%w: rate_limit must not be negative", ErrInvalidValue)
	}
	return nil
}

func (c Config) ParsedBaseUrl() (*url.URL, error) {
	parsed, err := url.Parse(c.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidBaseUrl, c.BaseUrl, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidBaseUrl, c.BaseUrl)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w %q: missing host", ErrInvalidBaseUrl, c.BaseUrl)
	}
	return parsed, nil
}

func (c Config) HopTimeout() time.Duration {
	return time.Duration(c.HopTimeoutSeconds) * time.Second
}

func (c Config) RequestsPerSecond() float64 {
	if c.RateLimit == nil {
		return DefaultRateLimit
	}
	return *c.RateLimit
}

func (c Config) BrowserEmulation() bool {
	return c.DisableBrowserEmulation == nil || !*c.DisableBrowserEmulation
}

// LogValue keeps the password out of every log line.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_url", c.BaseUrl),
		slog.Bool("username_set", c.Username != ""),
		slog.Bool("password_set", c.Password != ""),
		slog.String("cas_host", c.CasHost),
		slog.Int("hop_timeout_seconds", c.HopTimeoutSeconds),
		slog.Float64("rate_limit", c.RequestsPerSecond()),
		slog.String("log_level", c.LogLevel),
		slog.String("http_dump_dir", c.HttpDumpDir),
		slog.Any("authenticated_selectors", c.AuthenticatedSelectors),
		slog.Bool("browser_emulation", c.BrowserEmulation()),
		slog.Bool("otlp_traces", c.Otlp.Traces.Enabled()),
		slog.Bool("otlp_metrics", c.Otlp.Metrics.Enabled()),
	)
}
