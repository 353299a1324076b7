package commands

import (
	"log/slog"

	"eclass-mcp/internal/mcpserver"
	"eclass-mcp/internal/telemetry"
	"eclass-mcp/lib/util/serviceutil"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

var (
	serveTransport *string
	serveListen    *string
)

func init() {
	serveTransport = serveCmd.Flags().String("transport", mcpserver.TransportStdio, "The MCP transport, stdio or streamable-http.")
	serveListen = serveCmd.Flags().String("listen", ":8080", "The address streamable-http listens on.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--transport stdio|streamable-http] [--listen <addr>]",
	Short: "Serves the login, get_courses, logout and authstatus tools over MCP.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		tel, flush := setupTelemetry(cmd, cfg)
		defer flush()
		server := mcpserver.New(newState(cfg, tel), version, tel)

		if cfg.Otlp.Metrics.Enabled() {
			err := telemetry.InstrumentPerfStats(cmd.Context(), otel.Meter("eclass-mcp/perf"), telemetry.PerfStatsInterval)
			if err != nil {
				slog.Warn("failed to start perf stats", "err", err)
			}
		}

		slog.Info("serving mcp", "transport", *serveTransport, "base_url", cfg.BaseUrl)
		if *serveTransport == mcpserver.TransportStreamableHttp {
			slog.Info("listening", "addr", *serveListen, "path", "/mcp")
		}
		err := server.Serve(cmd.Context(), *serveTransport, *serveListen)
		if err != nil {
			flush()
			serviceutil.Fatal("mcp server stopped", err, "transport", *serveTransport)
		}
	},
}
