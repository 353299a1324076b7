package session

import (
	"context"
	"net/http"

	"eclass-mcp/internal/scrapers/eclass"

	"github.com/PuerkitoBio/goquery"
)

type validity int

const (
	validityUnauthenticated validity = iota
	validityValid
	// validityExpired means the platform answered without the
	// authenticated marker, the local state has been cleared.
	validityExpired
	// validityUnknown means the probe could not tell either way, the local
	// state is untouched.
	validityUnknown
)

type probeResult struct {
	validity validity
	doc      *goquery.Document
	err      *Error
}

// IsValid asks the platform whether the session is still accepted. A
// session the platform no longer accepts is forgotten, a probe that cannot
// tell leaves the state as it was.
func (s *State) IsValid(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "session:IsValid")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeLocked(ctx).validity == validityValid
}

// probeLocked fetches the portfolio page once. The parsed page is returned
// so callers can read it without a second request.
//
// Only a page that shows the user was logged out clears the state: a login
// page, the CAS form, a page off the platform, or a 401/403. Anything else
// the probe cannot classify is validityUnknown.
func (s *State) probeLocked(ctx context.Context) probeResult {
	if !s.authenticated {
		return probeResult{validity: validityUnauthenticated}
	}

	hopCtx, cancel := s.hopContext(ctx)
	defer cancel()

	page, err := s.transport.Get(hopCtx, s.portfolioUrl())
	if err != nil {
		return s.unknown(s.networkError("checking the session", err))
	}
	if transientStatus(page.Status) {
		return s.unknown(s.statusError("checking the session", page))
	}

	doc, err := eclass.Parse(page.Body)
	if err != nil {
		return s.unknown(s.networkError("reading the portfolio page", err))
	}
	if page.OK() && s.extractor.IsAuthenticatedPage(doc) {
		return probeResult{validity: validityValid, doc: doc}
	}

	_, casForm := eclass.ParseCasForm(doc, page.Url)
	loginPage := eclass.IsLoginPage(doc, page.Url)
	denied := page.Status == http.StatusUnauthorized || page.Status == http.StatusForbidden
	if !loginPage && !casForm && !denied && s.onPlatform(page) {
		if !page.OK() {
			return s.unknown(s.statusError("checking the session", page))
		}
		sessionErr := &Error{
			Kind:    KindExtraction,
			Message: "could not confirm the session: the portfolio page was not recognized",
		}
		s.tel.ReportBroken(report_validator_probe, sessionErr.Message, "status", page.Status)
		return probeResult{validity: validityUnknown, err: sessionErr}
	}

	s.clearLocked()
	s.tel.ReportWarning(
		report_validator_expiry,
		"status", page.Status,
		"login_page", loginPage,
		"cas_form", casForm,
		"on_platform", s.onPlatform(page),
	)
	return probeResult{validity: validityExpired, doc: doc}
}

func (s *State) unknown(sessionErr *Error) probeResult {
	s.tel.ReportWarning(report_validator_probe, sessionErr.Message)
	return probeResult{validity: validityUnknown, err: sessionErr}
}

// transientStatus is a status that says nothing about the session.
func transientStatus(status int) bool {
	return status >= 500 ||
		status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests
}
