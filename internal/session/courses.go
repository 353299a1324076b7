package session

import (
	"context"

	"eclass-mcp/internal/scrapers/eclass"
)

// Courses lists the courses the logged in user is enrolled in, in page
// order. An empty list is a valid answer.
func (s *State) Courses(ctx context.Context) ([]eclass.Course, error) {
	ctx, span := tracer.Start(ctx, "session:Courses")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	probe := s.probeLocked(ctx)
	switch probe.validity {
	case validityUnauthenticated:
		return nil, &Error{
			Kind:    KindNotAuthenticated,
			Message: "Not logged in. Please log in first using the login tool.",
		}
	case validityExpired:
		return nil, &Error{
			Kind:    KindSessionExpired,
			Message: "Session expired. Please log in again.",
		}
	case validityUnknown:
		return nil, probe.err
	}

	courses, err := eclass.ExtractCourses(probe.doc, s.baseUrl)
	if err != nil {
		s.tel.ReportBroken(report_courses_extract, err)
		return nil, &Error{
			Kind:    KindExtraction,
			Message: "could not read the course list from the portfolio page",
			Cause:   err,
		}
	}
	s.tel.ReportCount(report_courses_count, int64(len(courses)))
	return courses, nil
}

func CourseNames(courses []eclass.Course) []string {
	names := make([]string, len(courses))
	for i, c := range courses {
		names[i] = c.Name
	}
	return names
}
