package commands

import (
	"context"
	"log/slog"
	"os"
	"time"

	"eclass-mcp/internal/config"
	"eclass-mcp/internal/scrapers/eclass"
	"eclass-mcp/internal/session"
	"eclass-mcp/internal/telemetry"
	"eclass-mcp/internal/transport"
	"eclass-mcp/lib/util/serviceutil"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

// loadConfig also installs the logger, logs always go to stderr since
// stdout may carry the stdio transport.
func loadConfig() config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		telemetry.InitSlog(*logLevel, os.Stderr)
		serviceutil.Fatal("failed to load config", err)
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	telemetry.InitSlog(level, os.Stderr)
	slog.Debug("loaded config", "config", cfg)
	return cfg
}

// setupTelemetry returns the api every component reports to and a function
// that flushes the otlp exporters.
func setupTelemetry(cmd *cobra.Command, cfg config.Config) (telemetry.API, func()) {
	shutdown, err := telemetry.SetupOtlp(cmd.Context(), "eclass-mcp", cfg.Otlp)
	if err != nil {
		serviceutil.Fatal("failed to setup otlp", err)
	}
	tel, err := telemetry.NewMeteredAPI(telemetry.SlogAPI{}, otel.Meter("eclass-mcp"))
	if err != nil {
		serviceutil.Fatal("failed to create meter", err)
	}
	return tel, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	}
}

func newState(cfg config.Config, tel telemetry.API) *session.State {
	var dump telemetry.DumpOutput
	if cfg.HttpDumpDir != "" {
		out, err := telemetry.NewFilesystemOutput(cfg.HttpDumpDir)
		if err != nil {
			serviceutil.Fatal("failed to create http dump dir", err, "dir", cfg.HttpDumpDir)
		}
		dump = out
	}

	client, err := transport.NewClient(transport.Options{
		Timeout:           cfg.HopTimeout(),
		RequestsPerSecond: cfg.RequestsPerSecond(),
		BrowserEmulation:  cfg.BrowserEmulation(),
		Dump:              dump,
	}, tel)
	if err != nil {
		serviceutil.Fatal("failed to initialize http client", err)
	}

	base, err := cfg.ParsedBaseUrl()
	if err != nil {
		serviceutil.Fatal("invalid base url", err)
	}

	return session.New(session.Options{
		BaseUrl: base,
		Credentials: session.Credentials{
			Username: cfg.Username,
			Password: cfg.Password,
		},
		CasHost:    cfg.CasHost,
		HopTimeout: cfg.HopTimeout(),
		Extractor: eclass.Extractor{
			AuthenticatedSelectors: cfg.AuthenticatedSelectors,
		},
	}, client, tel)
}
