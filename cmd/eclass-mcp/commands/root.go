package commands

import (
	"context"
	"fmt"
	"os"

	"eclass-mcp/internal/config"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	configPath *string
	logLevel   *string
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", config.DefaultPath, "The json5 config file, it is optional.")
	logLevel = rootCmd.PersistentFlags().String("log-level", "", "Overrides ECLASS_LOG_LEVEL (debug, info, warn, error).")
}

var rootCmd = &cobra.Command{
	Use:     "eclass-mcp",
	Short:   "eclass-mcp exposes an Open eClass account to MCP clients.",
	Version: version,
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
