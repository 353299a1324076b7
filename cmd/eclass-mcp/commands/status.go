package commands

import (
	"fmt"

	"eclass-mcp/internal/mcpserver"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Logs in and prints what the authstatus tool would report.",
	Run: func(cmd *cobra.Command, args []string) {
		state, done := login(cmd)
		defer done()

		fmt.Println(mcpserver.FormatStatus(state.Status(cmd.Context())))
	},
}
