package session

import (
	"context"
	"fmt"
	"strings"

	"eclass-mcp/internal/scrapers/eclass"
	"eclass-mcp/internal/transport"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type AuthOutcome struct {
	Username string
	// AlreadyAuthenticated is set when no login was attempted because the
	// state was already authenticated.
	AlreadyAuthenticated bool
	Err                  *Error
}

func (o AuthOutcome) Success() bool {
	return o.Err == nil
}

type hop int

const (
	hopLoginPage hop = iota
	hopSsoRedirect
	hopCasForm
	hopCasSubmit
	hopVerify
	hopDone
)

func (h hop) String() string {
	switch h {
	case hopLoginPage:
		return "LoginPage"
	case hopSsoRedirect:
		return "SsoRedirect"
	case hopCasForm:
		return "CasForm"
	case hopCasSubmit:
		return "CasSubmit"
	case hopVerify:
		return "Verify"
	case hopDone:
		return "Done"
	default:
		return fmt.Sprintf("hop(%d)", int(h))
	}
}

// loginAttempt carries what one hop hands to the next.
type loginAttempt struct {
	page    transport.Page
	doc     *goquery.Document
	ssoLink string
	casForm eclass.CasForm
}

type hopFunc func(s *State, ctx context.Context, a *loginAttempt) (hop, *Error)

var hops = map[hop]hopFunc{
	hopLoginPage:   (*State).fetchLoginPage,
	hopSsoRedirect: (*State).findSsoLink,
	hopCasForm:     (*State).fetchCasForm,
	hopCasSubmit:   (*State).submitCasForm,
	hopVerify:      (*State).verifyLanding,
}

// Authenticate logs in through the sso chain. It is a no-op when the state
// is already authenticated.
func (s *State) Authenticate(ctx context.Context) AuthOutcome {
	ctx, span := tracer.Start(ctx, "session:Authenticate")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.authenticated {
		span.SetAttributes(attribute.Bool("already_authenticated", true))
		return AuthOutcome{Username: s.username, AlreadyAuthenticated: true}
	}
	if s.creds.Username == "" || s.creds.Password == "" {
		err := &Error{
			Kind:    KindMissingCredentials,
			Message: "username and password must be configured (ECLASS_USERNAME, ECLASS_PASSWORD)",
		}
		span.SetStatus(codes.Error, err.Kind.String())
		return AuthOutcome{Err: err}
	}

	if err := s.transport.ResetCookies(); err != nil {
		s.tel.ReportBroken(report_state_reset, err)
		return AuthOutcome{Err: &Error{
			Kind:    KindNetwork,
			Message: "could not start a fresh http session",
			Cause:   err,
		}}
	}

	if err := s.runLogin(ctx); err != nil {
		s.clearLocked()
		s.tel.ReportWarning(report_auth_failed, err.Kind.String(), err.Reason.String(), err.Message)
		span.SetStatus(codes.Error, err.Kind.String())
		return AuthOutcome{Err: err}
	}

	s.authenticated = true
	s.username = s.creds.Username
	s.tel.ReportDebug(report_auth_succeeded)
	return AuthOutcome{Username: s.username}
}

func (s *State) runLogin(ctx context.Context) *Error {
	attempt := &loginAttempt{}
	current := hopLoginPage
	for current != hopDone {
		next, err := s.runHop(ctx, current, attempt)
		if err != nil {
			return err
		}
		current = next
	}
	return nil
}

func (s *State) runHop(ctx context.Context, current hop, attempt *loginAttempt) (hop, *Error) {
	ctx, span := tracer.Start(ctx, "session:hop:"+current.String())
	defer span.End()
	span.SetAttributes(attribute.String("hop", current.String()))

	hopCtx, cancel := s.hopContext(ctx)
	defer cancel()

	next, err := hops[current](s, hopCtx, attempt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Kind.String())
		return hopDone, err
	}
	return next, nil
}

func (s *State) fetchLoginPage(ctx context.Context, a *loginAttempt) (hop, *Error) {
	page, err := s.transport.Get(ctx, s.loginFormUrl())
	if err != nil {
		return hopDone, s.networkError("fetching the login page", err)
	}
	if !page.OK() {
		return hopDone, s.statusError("fetching the login page", page)
	}
	doc, err := eclass.Parse(page.Body)
	if err != nil {
		return hopDone, s.networkError("reading the login page", err)
	}
	a.page = page
	a.doc = doc
	return hopSsoRedirect, nil
}

func (s *State) findSsoLink(_ context.Context, a *loginAttempt) (hop, *Error) {
	base := s.baseUrl
	if a.page.Url != nil {
		base = a.page.Url
	}
	link, ok := s.extractor.FindSsoLink(a.doc, base)
	if !ok {
		return hopDone, &Error{
			Kind:    KindSsoLinkNotFound,
			Message: "could not find the SSO login link on the login page",
		}
	}
	a.ssoLink = link.String()
	return hopCasForm, nil
}

func (s *State) fetchCasForm(ctx context.Context, a *loginAttempt) (hop, *Error) {
	page, err := s.transport.Get(ctx, a.ssoLink)
	if err != nil {
		return hopDone, s.networkError("following the SSO redirect", err)
	}
	if !page.OK() {
		return hopDone, s.statusError("following the SSO redirect", page)
	}
	doc, err := eclass.Parse(page.Body)
	if err != nil {
		return hopDone, s.networkError("reading the SSO login page", err)
	}
	a.page = page
	a.doc = doc

	if s.casHost != "" && (page.Url == nil || !strings.EqualFold(page.Url.Hostname(), s.casHost)) {
		host := "<unknown>"
		if page.Url != nil {
			host = page.Url.Hostname()
		}
		return hopDone, s.authError(ReasonUnrecognized, fmt.Sprintf("unexpected redirect to %s while looking for the SSO login form", host))
	}

	form, ok := eclass.ParseCasForm(doc, page.Url)
	if !ok {
		return hopDone, s.authError(ReasonUnrecognized, "could not find the login form on the SSO page")
	}
	a.casForm = form
	return hopCasSubmit, nil
}

func (s *State) submitCasForm(ctx context.Context, a *loginAttempt) (hop, *Error) {
	fields := make(map[string]string, len(a.casForm.Hidden)+4)
	for name, value := range a.casForm.Hidden {
		fields[name] = value
	}
	fields["username"] = s.creds.Username
	fields["password"] = s.creds.Password
	if fields["_eventId"] == "" {
		fields["_eventId"] = "submit"
	}
	if _, ok := fields["geolocation"]; !ok {
		fields["geolocation"] = ""
	}

	page, err := s.transport.PostForm(ctx, a.casForm.Action.String(), fields)
	if err != nil {
		return hopDone, s.networkError("submitting the SSO login form", err)
	}
	// the identity provider answers a refused login with 401 and its form,
	// only server errors mean the exchange itself failed
	if page.Status >= 500 || page.Status == 0 {
		return hopDone, s.statusError("submitting the SSO login form", page)
	}
	doc, err := eclass.Parse(page.Body)
	if err != nil {
		return hopDone, s.networkError("reading the SSO response", err)
	}
	a.page = page
	a.doc = doc
	return hopVerify, nil
}

func (s *State) onPlatform(page transport.Page) bool {
	return page.Url != nil && strings.EqualFold(page.Url.Hostname(), s.baseUrl.Hostname())
}

func (s *State) verifyLanding(ctx context.Context, a *loginAttempt) (hop, *Error) {
	if form, ok := eclass.ParseCasForm(a.doc, a.page.Url); ok {
		msg := "the identity provider rejected the credentials"
		if form.Message != "" {
			msg += ": " + form.Message
		}
		return hopDone, s.authError(ReasonRejected, msg)
	}
	if !s.onPlatform(a.page) {
		if eclass.IsLoginPage(a.doc, a.page.Url) {
			msg := "the identity provider rejected the credentials"
			if notice := eclass.CasMessage(a.doc); notice != "" {
				msg += ": " + notice
			}
			return hopDone, s.authError(ReasonRejected, msg)
		}
		where := "<unknown>"
		if a.page.Url != nil {
			where = a.page.Url.Hostname() + a.page.Url.Path
		}
		return hopDone, s.authError(
			ReasonChallenge,
			fmt.Sprintf("the identity provider asked for an additional step at %s, complete it in a browser first", where),
		)
	}

	// back on the platform, the portfolio is the only page that proves the
	// ticket was accepted
	page, err := s.transport.Get(ctx, s.portfolioUrl())
	if err != nil {
		return hopDone, s.networkError("confirming the login", err)
	}
	if page.Status >= 500 {
		return hopDone, s.statusError("confirming the login", page)
	}
	doc, err := eclass.Parse(page.Body)
	if err != nil {
		return hopDone, s.networkError("reading the portfolio page", err)
	}
	if !s.extractor.IsAuthenticatedPage(doc) {
		return hopDone, s.authError(
			ReasonUnrecognized,
			"login did not reach an authenticated page, the platform may have changed its layout",
		)
	}
	return hopDone, nil
}
