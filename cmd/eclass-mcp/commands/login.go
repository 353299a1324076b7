package commands

import (
	"fmt"
	"os"

	"eclass-mcp/internal/mcpserver"
	"eclass-mcp/internal/session"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

// login runs the sso chain once and exits on failure. The returned
// function logs out and flushes telemetry.
func login(cmd *cobra.Command) (*session.State, func()) {
	cfg := loadConfig()
	tel, flush := setupTelemetry(cmd, cfg)
	state := newState(cfg, tel)

	text, failed := mcpserver.FormatLogin(state.Authenticate(cmd.Context()))
	fmt.Fprintln(os.Stderr, text)
	if failed {
		flush()
		os.Exit(1)
	}
	return state, func() {
		state.Logout(cmd.Context())
		flush()
	}
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in through the SSO chain and reports the outcome.",
	Run: func(cmd *cobra.Command, args []string) {
		_, done := login(cmd)
		done()
	},
}
