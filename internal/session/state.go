// Package session owns the authenticated connection to an eClass platform.
// It logs in through the institution's CAS single sign-on, decides whether
// an existing session is still accepted and reads the enrolled courses.
//
// A State is safe for concurrent use. Every operation holds the state lock
// for its whole duration, so a login never interleaves with a validity
// probe or a cookie reset.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"eclass-mcp/internal/assert"
	"eclass-mcp/internal/scrapers/eclass"
	"eclass-mcp/internal/telemetry"
	"eclass-mcp/internal/transport"

	"go.opentelemetry.io/otel"
)

const (
	report_state_reset      = "state.reset"
	report_auth_failed      = "authenticator.failed"
	report_auth_succeeded   = "authenticator.succeeded"
	report_validator_probe  = "validator.probe"
	report_validator_expiry = "validator.expired"
	report_courses_extract  = "courses.extract"
	report_courses_count    = "courses.count"
	report_logout_remote    = "logout.remote"
)

const defaultHopTimeout = 30 * time.Second

var tracer = otel.Tracer("eclass-mcp/internal/session")

// Transport is the http session the state drives. transport.Client is the
// production implementation.
type Transport interface {
	Get(ctx context.Context, endpoint string) (transport.Page, error)
	PostForm(ctx context.Context, endpoint string, form map[string]string) (transport.Page, error)
	ResetCookies() error
}

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("username_set", c.Username != ""),
		slog.Bool("password_set", c.Password != ""),
	)
}

type Options struct {
	// BaseUrl is the platform root, for example https://eclass.uoa.gr.
	BaseUrl     *url.URL
	Credentials Credentials
	// CasHost pins the host allowed to serve the login form, empty allows
	// any host.
	CasHost string
	// HopTimeout bounds each round trip of the login chain and the
	// validity probe.
	HopTimeout time.Duration
	Extractor  eclass.Extractor
}

type State struct {
	transport  Transport
	extractor  eclass.Extractor
	tel        telemetry.API
	baseUrl    *url.URL
	creds      Credentials
	casHost    string
	hopTimeout time.Duration

	mu            sync.Mutex
	authenticated bool
	username      string
}

func New(opts Options, t Transport, tel telemetry.API) *State {
	assert.NotNil(t)
	assert.NotNil(tel)
	assert.AbsoluteUrl(opts.BaseUrl)

	base := *opts.BaseUrl
	base.Path = strings.TrimSuffix(base.Path, "/")
	base.RawPath = ""
	base.RawQuery = ""
	base.Fragment = ""

	hopTimeout := opts.HopTimeout
	if hopTimeout <= 0 {
		hopTimeout = defaultHopTimeout
	}

	return &State{
		transport:  t,
		extractor:  opts.Extractor,
		tel:        telemetry.NewScopedAPI("session", tel),
		baseUrl:    &base,
		creds:      opts.Credentials,
		casHost:    strings.ToLower(strings.TrimSpace(opts.CasHost)),
		hopTimeout: hopTimeout,
	}
}

func (s *State) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Username is empty unless the state is authenticated.
func (s *State) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *State) BaseUrl() *url.URL {
	base := *s.baseUrl
	return &base
}

// Reset forgets the session locally. It never talks to the platform.
func (s *State) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked()
}

func (s *State) resetLocked() error {
	s.clearLocked()
	err := s.transport.ResetCookies()
	if err != nil {
		s.tel.ReportBroken(report_state_reset, err)
		return fmt.Errorf("reset cookies: %w", err)
	}
	return nil
}

func (s *State) clearLocked() {
	s.authenticated = false
	s.username = ""
}

func (s *State) endpoint(elem ...string) *url.URL {
	return s.baseUrl.JoinPath(elem...)
}

func (s *State) loginFormUrl() string {
	return s.endpoint("main", "login_form.php").String()
}

func (s *State) portfolioUrl() string {
	return s.endpoint("main", "portfolio.php").String()
}

func (s *State) logoutUrl() string {
	link := s.endpoint("index.php")
	link.RawQuery = "logout=yes"
	return link.String()
}

func (s *State) hopContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.hopTimeout)
}

// redact removes the password from text that may echo request data, like
// a transport error or a message shown by the identity provider.
func (s *State) redact(text string) string {
	if s.creds.Password == "" {
		return text
	}
	return strings.ReplaceAll(text, s.creds.Password, "[REDACTED]")
}

func (s *State) networkError(during string, err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: s.redact(fmt.Sprintf("network error during %s: %v", during, err)),
		Cause:   err,
	}
}

func (s *State) statusError(during string, page transport.Page) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: fmt.Sprintf("network error during %s: unexpected status %d", during, page.Status),
	}
}

func (s *State) authError(reason Reason, message string) *Error {
	return &Error{
		Kind:    KindAuthentication,
		Reason:  reason,
		Message: s.redact(message),
	}
}
