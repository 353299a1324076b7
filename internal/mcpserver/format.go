package mcpserver

import (
	"fmt"
	"strings"

	"eclass-mcp/internal/scrapers/eclass"
	"eclass-mcp/internal/session"
)

func errorText(message string) string {
	return "Error: " + message
}

// FormatLogin renders a login outcome, the bool reports a failure.
func FormatLogin(outcome session.AuthOutcome) (string, bool) {
	switch {
	case outcome.Err != nil:
		return errorText(outcome.Err.Message), true
	case outcome.AlreadyAuthenticated:
		return "Already logged in as " + outcome.Username, false
	default:
		return fmt.Sprintf("Login successful! You are now logged in as %s.", outcome.Username), false
	}
}

func FormatCourses(courses []eclass.Course) string {
	if len(courses) == 0 {
		return "No courses found. You may not be enrolled in any courses."
	}
	lines := make([]string, len(courses))
	for i, c := range courses {
		lines[i] = fmt.Sprintf("%d. %s", i+1, c.Name)
	}
	return fmt.Sprintf("Found %d courses:\n\n%s", len(courses), strings.Join(lines, "\n"))
}

func FormatLogout(outcome session.LogoutOutcome) string {
	if outcome.NothingToDo {
		return "Not logged in, nothing to do."
	}
	return fmt.Sprintf("Successfully logged out user %s.", outcome.Username)
}

func FormatStatus(report session.StatusReport) string {
	switch report.Status {
	case session.StatusLoggedIn:
		text := "Status: Logged in as " + report.Username
		if report.CourseCountKnown {
			text += fmt.Sprintf("\nCourses: %d enrolled", report.CourseCount)
		}
		return text
	case session.StatusExpired:
		return "Status: Session expired. Please log in again."
	case session.StatusUnverified:
		msg := "unknown error"
		if report.Err != nil {
			msg = report.Err.Message
		}
		return fmt.Sprintf("Status: Logged in as %s (session could not be verified: %s)", report.Username, msg)
	default:
		return "Status: Not logged in"
	}
}
