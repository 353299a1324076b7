package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(coursesCmd)
}

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "Logs in and prints the enrolled courses.",
	Run: func(cmd *cobra.Command, args []string) {
		state, done := login(cmd)
		defer done()

		courses, err := state.Courses(cmd.Context())
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err.Error())
			done()
			os.Exit(1)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"#", "Course", "Url"})
		for i, c := range courses {
			t.AppendRow(table.Row{i + 1, c.Name, c.Url.String()})
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d courses", len(courses)), ""})
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
