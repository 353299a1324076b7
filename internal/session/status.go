package session

import (
	"context"

	"eclass-mcp/internal/scrapers/eclass"
)

type SessionStatus int

const (
	StatusNotLoggedIn SessionStatus = iota
	StatusLoggedIn
	StatusExpired
	// StatusUnverified means the state is authenticated but the platform
	// could not be reached to confirm it.
	StatusUnverified
)

func (s SessionStatus) String() string {
	switch s {
	case StatusLoggedIn:
		return "logged in"
	case StatusExpired:
		return "expired"
	case StatusUnverified:
		return "unverified"
	default:
		return "not logged in"
	}
}

type StatusReport struct {
	Status   SessionStatus
	Username string
	// CourseCount is only meaningful when CourseCountKnown is set.
	CourseCount      int
	CourseCountKnown bool
	Err              *Error
}

// Status reports whether the session is usable. The course count comes
// from the validity probe, so a valid session costs one request.
func (s *State) Status(ctx context.Context) StatusReport {
	ctx, span := tracer.Start(ctx, "session:Status")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	username := s.username
	probe := s.probeLocked(ctx)
	switch probe.validity {
	case validityUnauthenticated:
		return StatusReport{Status: StatusNotLoggedIn}
	case validityExpired:
		return StatusReport{Status: StatusExpired}
	case validityUnknown:
		return StatusReport{Status: StatusUnverified, Username: username, Err: probe.err}
	}

	report := StatusReport{Status: StatusLoggedIn, Username: username}
	courses, err := eclass.ExtractCourses(probe.doc, s.baseUrl)
	if err != nil {
		s.tel.ReportWarning(report_courses_extract, err)
		return report
	}
	report.CourseCount = len(courses)
	report.CourseCountKnown = true
	return report
}
