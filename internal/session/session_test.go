package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"eclass-mcp/internal/transport"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateSuccess(t *testing.T) {
	fx := newFixture(t, platform())

	outcome := fx.state.Authenticate(context.Background())
	require.True(t, outcome.Success(), "%v", outcome.Err)
	require.Equal(t, testUsername, outcome.Username)
	require.False(t, outcome.AlreadyAuthenticated)
	require.True(t, fx.state.Authenticated())
	require.Equal(t, testUsername, fx.state.Username())
	require.Equal(t, 1, fx.transport.resets)

	var methods []string
	for _, c := range fx.transport.Calls() {
		methods = append(methods, c.method+" "+c.endpoint)
	}
	expected := []string{
		"GET " + baseUrl + "/main/login_form.php",
		"GET " + baseUrl + "/modules/auth/cas.php",
		"POST " + casLogin,
		"GET " + baseUrl + "/main/portfolio.php",
	}
	if diff := cmp.Diff(expected, methods); diff != "" {
		t.Fatalf("unexpected request sequence (-want +got):\n%s", diff)
	}
}

func TestAuthenticateSubmitsCasForm(t *testing.T) {
	fx := newFixture(t, platform())
	fx.login(t)

	var submitted map[string]string
	for _, c := range fx.transport.Calls() {
		if c.method == "POST" {
			submitted = c.form
		}
	}
	expected := map[string]string{
		"username":    testUsername,
		"password":    testPassword,
		"execution":   "e1s1",
		"_eventId":    "submit",
		"lt":          "LT-1",
		"geolocation": "",
	}
	if diff := cmp.Diff(expected, submitted); diff != "" {
		t.Fatalf("unexpected form (-want +got):\n%s", diff)
	}
}

func TestAuthenticateIdempotent(t *testing.T) {
	fx := newFixture(t, platform())
	fx.login(t)
	calls := fx.transport.CallCount()
	resets := fx.transport.resets

	outcome := fx.state.Authenticate(context.Background())
	require.True(t, outcome.Success())
	require.True(t, outcome.AlreadyAuthenticated)
	require.Equal(t, testUsername, outcome.Username)
	require.Equal(t, calls, fx.transport.CallCount())
	require.Equal(t, resets, fx.transport.resets)
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	cases := []Credentials{
		{},
		{Username: testUsername},
		{Password: testPassword},
	}
	for _, creds := range cases {
		fx := newFixture(t, platform(), func(o *Options) {
			o.Credentials = creds
		})
		outcome := fx.state.Authenticate(context.Background())
		require.False(t, outcome.Success())
		require.Equal(t, KindMissingCredentials, outcome.Err.Kind)
		require.Zero(t, fx.transport.CallCount())
		require.Zero(t, fx.transport.resets)
		require.False(t, fx.state.Authenticated())
	}
}

func TestAuthenticateFailsClosed(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(f *fakeTransport)
		kind   ErrorKind
		reason Reason
	}{
		{
			name: "login page unreachable",
			mutate: func(f *fakeTransport) {
				f.on("GET", baseUrl+"/main/login_form.php", fail(errors.New("dial tcp: connection refused")))
			},
			kind: KindNetwork,
		},
		{
			name: "login page server error",
			mutate: func(f *fakeTransport) {
				f.on("GET", baseUrl+"/main/login_form.php", page(503, baseUrl+"/main/login_form.php", ""))
			},
			kind: KindNetwork,
		},
		{
			name: "sso link missing",
			mutate: func(f *fakeTransport) {
				f.on("GET", baseUrl+"/main/login_form.php", page(200, baseUrl+"/main/login_form.php", noSsoHtml))
			},
			kind: KindSsoLinkNotFound,
		},
		{
			name: "sso redirect fails",
			mutate: func(f *fakeTransport) {
				f.on("GET", baseUrl+"/modules/auth/cas.php", fail(errors.New("tls: handshake failure")))
			},
			kind: KindNetwork,
		},
		{
			name: "sso page without form",
			mutate: func(f *fakeTransport) {
				f.on("GET", baseUrl+"/modules/auth/cas.php", page(200, casLogin, noSsoHtml))
			},
			kind:   KindAuthentication,
			reason: ReasonUnrecognized,
		},
		{
			name: "cas submit connection reset",
			mutate: func(f *fakeTransport) {
				f.on("POST", casLogin, fail(errors.New("connection reset by peer")))
			},
			kind: KindNetwork,
		},
		{
			name: "cas submit server error",
			mutate: func(f *fakeTransport) {
				f.on("POST", casLogin, page(500, casLogin, "oops"))
			},
			kind: KindNetwork,
		},
		{
			name: "credentials rejected",
			mutate: func(f *fakeTransport) {
				f.on("POST", casLogin, page(401, casLogin, casRejectedHtml))
			},
			kind:   KindAuthentication,
			reason: ReasonRejected,
		},
		{
			name: "second factor challenge",
			mutate: func(f *fakeTransport) {
				f.on("POST", casLogin, page(200, "https://mfa.example.edu/verify", challengeHtml))
			},
			kind:   KindAuthentication,
			reason: ReasonChallenge,
		},
		{
			name: "landing not authenticated",
			mutate: func(f *fakeTransport) {
				f.on("GET", baseUrl+"/main/portfolio.php", page(200, baseUrl+"/main/login_form.php", loginFormHtml))
			},
			kind:   KindAuthentication,
			reason: ReasonUnrecognized,
		},
		{
			name: "verification unreachable",
			mutate: func(f *fakeTransport) {
				f.on("GET", baseUrl+"/main/portfolio.php", fail(context.DeadlineExceeded))
			},
			kind: KindNetwork,
		},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			f := platform()
			testCase.mutate(f)
			fx := newFixture(t, f)

			outcome := fx.state.Authenticate(context.Background())
			require.False(t, outcome.Success())
			require.Equal(t, testCase.kind, outcome.Err.Kind, outcome.Err.Message)
			require.Equal(t, testCase.reason, outcome.Err.Reason)
			require.NotEmpty(t, outcome.Err.Message)
			require.False(t, fx.state.Authenticated())
			require.Empty(t, fx.state.Username())
			require.NotContains(t, outcome.Err.Error(), testPassword)
			require.False(t, fx.tel.Contains(testPassword))
		})
	}
}

func TestAuthenticateRejectedMessage(t *testing.T) {
	f := platform()
	fx := newFixture(t, f, func(o *Options) {
		o.Credentials.Password = "wrong"
	})

	outcome := fx.state.Authenticate(context.Background())
	require.False(t, outcome.Success())
	require.ErrorIs(t, outcome.Err, ErrAuthentication)
	require.Equal(t, ReasonRejected, outcome.Err.Reason)
	require.Contains(t, outcome.Err.Message, "Invalid credentials.")

	report := fx.state.Status(context.Background())
	require.Equal(t, StatusNotLoggedIn, report.Status)
}

func TestAuthenticateRedactsEchoedPassword(t *testing.T) {
	f := platform()
	f.on("POST", casLogin, fail(fmt.Errorf("proxy refused body password=%s", testPassword)))
	fx := newFixture(t, f)

	outcome := fx.state.Authenticate(context.Background())
	require.Equal(t, KindNetwork, outcome.Err.Kind)
	require.NotContains(t, outcome.Err.Error(), testPassword)
	require.Contains(t, outcome.Err.Error(), "[REDACTED]")
	require.False(t, fx.tel.Contains(testPassword))
}

func TestAuthenticateCasHostPinning(t *testing.T) {
	fx := newFixture(t, platform(), func(o *Options) {
		o.CasHost = "idp.example.edu"
	})
	outcome := fx.state.Authenticate(context.Background())
	require.False(t, outcome.Success())
	require.Equal(t, KindAuthentication, outcome.Err.Kind)
	require.Equal(t, ReasonUnrecognized, outcome.Err.Reason)
	require.Contains(t, outcome.Err.Message, "unexpected redirect")
	// the form was never submitted
	for _, c := range fx.transport.Calls() {
		require.NotEqual(t, "POST", c.method)
	}

	pinned := newFixture(t, platform(), func(o *Options) {
		o.CasHost = "SSO.example.edu"
	})
	pinned.login(t)
}

func TestAuthenticateHopTimeout(t *testing.T) {
	f := platform()
	f.on("GET", baseUrl+"/modules/auth/cas.php", func(map[string]string) (transport.Page, error) {
		time.Sleep(50 * time.Millisecond)
		return transport.Page{}, context.DeadlineExceeded
	})
	fx := newFixture(t, f, func(o *Options) {
		o.HopTimeout = 10 * time.Millisecond
	})

	outcome := fx.state.Authenticate(context.Background())
	require.Equal(t, KindNetwork, outcome.Err.Kind)
	require.ErrorIs(t, outcome.Err, context.DeadlineExceeded)
	require.False(t, fx.state.Authenticated())
}

func TestAuthenticateAfterFailureStartsClean(t *testing.T) {
	f := platform()
	f.on("POST", casLogin, page(401, casLogin, casRejectedHtml))
	fx := newFixture(t, f)

	require.False(t, fx.state.Authenticate(context.Background()).Success())
	platformRoutes := platform()
	f.on("POST", casLogin, platformRoutes.routes["POST "+casLogin])
	fx.login(t)
	require.Equal(t, 2, f.resets)
}

func TestValidatorSelfHeals(t *testing.T) {
	f := platform()
	fx := newFixture(t, f)
	fx.login(t)

	f.on("GET", baseUrl+"/main/portfolio.php", page(200, baseUrl+"/main/login_form.php", loginFormHtml))
	require.False(t, fx.state.IsValid(context.Background()))
	require.False(t, fx.state.Authenticated())
	require.Empty(t, fx.state.Username())

	report := fx.state.Status(context.Background())
	require.Equal(t, StatusNotLoggedIn, report.Status)
}

func TestValidatorCasRedirectIsExpiry(t *testing.T) {
	f := platform()
	fx := newFixture(t, f)
	fx.login(t)

	f.on("GET", baseUrl+"/main/portfolio.php", page(200, casLogin, casFormHtml))
	require.False(t, fx.state.IsValid(context.Background()))
	require.False(t, fx.state.Authenticated())
}

func TestValidatorResilience(t *testing.T) {
	f := platform()
	fx := newFixture(t, f)
	fx.login(t)

	f.on("GET", baseUrl+"/main/portfolio.php", fail(errors.New("i/o timeout")))
	require.False(t, fx.state.IsValid(context.Background()))
	require.True(t, fx.state.Authenticated())
	require.Equal(t, testUsername, fx.state.Username())

	f.on("GET", baseUrl+"/main/portfolio.php", page(502, baseUrl+"/main/portfolio.php", "bad gateway"))
	require.False(t, fx.state.IsValid(context.Background()))
	require.True(t, fx.state.Authenticated())

	f.on("GET", baseUrl+"/main/portfolio.php", page(200, baseUrl+"/main/portfolio.php", portfolioHtml))
	require.True(t, fx.state.IsValid(context.Background()))
	require.True(t, fx.state.Authenticated())
}

func TestValidatorKeepsSessionOnInconclusivePages(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{name: "rate limited", status: 429, body: "Too many requests", kind: KindNetwork},
		{name: "request timeout", status: 408, body: "timeout", kind: KindNetwork},
		{name: "not found", status: 404, body: "<html><body>missing</body></html>", kind: KindNetwork},
		{name: "unrecognized page", status: 200, body: "<html><body>maintenance</body></html>", kind: KindExtraction},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := platform()
			fx := newFixture(t, f)
			fx.login(t)

			f.on("GET", baseUrl+"/main/portfolio.php", page(c.status, baseUrl+"/main/portfolio.php", c.body))
			require.False(t, fx.state.IsValid(context.Background()))
			require.True(t, fx.state.Authenticated())
			require.Equal(t, testUsername, fx.state.Username())

			_, err := fx.state.Courses(context.Background())
			require.Equal(t, c.kind, KindOf(err))
			require.Equal(t, StatusUnverified, fx.state.Status(context.Background()).Status)

			f.on("GET", baseUrl+"/main/portfolio.php", page(200, baseUrl+"/main/portfolio.php", portfolioHtml))
			require.True(t, fx.state.IsValid(context.Background()))
		})
	}
}

func TestValidatorExpiryEvidence(t *testing.T) {
	cases := []struct {
		name string
		res  route
	}{
		{name: "forbidden", res: page(403, baseUrl+"/main/portfolio.php", "<html><body>denied</body></html>")},
		{name: "off platform", res: page(200, "https://sso.example.edu/logout", "<html><body>bye</body></html>")},
		{name: "login page", res: page(200, baseUrl+"/main/login_form.php", loginFormHtml)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := platform()
			fx := newFixture(t, f)
			fx.login(t)

			f.on("GET", baseUrl+"/main/portfolio.php", c.res)
			require.False(t, fx.state.IsValid(context.Background()))
			require.False(t, fx.state.Authenticated())
			require.Empty(t, fx.state.Username())
		})
	}
}

func TestValidatorUnauthenticatedNoIO(t *testing.T) {
	fx := newFixture(t, platform())
	require.False(t, fx.state.IsValid(context.Background()))
	require.Zero(t, fx.transport.CallCount())
}

func TestLogoutNothingToDo(t *testing.T) {
	fx := newFixture(t, platform())
	outcome := fx.state.Logout(context.Background())
	require.True(t, outcome.NothingToDo)
	require.Nil(t, outcome.RemoteErr)
	require.Zero(t, fx.transport.CallCount())
}

func TestLogout(t *testing.T) {
	fx := newFixture(t, platform())
	fx.login(t)

	outcome := fx.state.Logout(context.Background())
	require.False(t, outcome.NothingToDo)
	require.Equal(t, testUsername, outcome.Username)
	require.Nil(t, outcome.RemoteErr)
	require.False(t, fx.state.Authenticated())
	require.Empty(t, fx.state.Username())

	calls := fx.transport.Calls()
	require.Equal(t, baseUrl+"/index.php?logout=yes", calls[len(calls)-1].endpoint)

	require.True(t, fx.state.Logout(context.Background()).NothingToDo)
}

func TestLogoutRemoteFailureStillResets(t *testing.T) {
	f := platform()
	fx := newFixture(t, f)
	fx.login(t)
	resets := f.resets

	f.on("GET", baseUrl+"/index.php?logout=yes", fail(errors.New("connection refused")))
	outcome := fx.state.Logout(context.Background())
	require.NotNil(t, outcome.RemoteErr)
	require.Equal(t, KindNetwork, outcome.RemoteErr.Kind)
	require.False(t, fx.state.Authenticated())
	require.Equal(t, resets+1, f.resets)
	require.Equal(t, 1, fx.tel.Count("warning"))
}

func TestReset(t *testing.T) {
	fx := newFixture(t, platform())
	require.NoError(t, fx.state.Reset())
	fx.login(t)
	require.NoError(t, fx.state.Reset())
	require.False(t, fx.state.Authenticated())
	require.Empty(t, fx.state.Username())
}

func TestCourses(t *testing.T) {
	fx := newFixture(t, platform())
	fx.login(t)
	calls := fx.transport.CallCount()

	courses, err := fx.state.Courses(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"Algorithms", "Databases"}, CourseNames(courses)); diff != "" {
		t.Fatalf("unexpected courses (-want +got):\n%s", diff)
	}
	require.Equal(t, baseUrl+"/courses/DI205/", courses[1].Url.String())
	// one probe, the page is reused for extraction
	require.Equal(t, calls+1, fx.transport.CallCount())
}

func TestCoursesEmpty(t *testing.T) {
	f := platform()
	fx := newFixture(t, f)
	fx.login(t)

	f.on("GET", baseUrl+"/main/portfolio.php", page(200, baseUrl+"/main/portfolio.php", portfolioEmptyHtml))
	courses, err := fx.state.Courses(context.Background())
	require.NoError(t, err)
	require.NotNil(t, courses)
	require.Empty(t, courses)
}

func TestCoursesErrors(t *testing.T) {
	t.Run("not authenticated", func(t *testing.T) {
		fx := newFixture(t, platform())
		_, err := fx.state.Courses(context.Background())
		require.ErrorIs(t, err, ErrNotAuthenticated)
		require.Zero(t, fx.transport.CallCount())
	})

	t.Run("expired", func(t *testing.T) {
		f := platform()
		fx := newFixture(t, f)
		fx.login(t)
		f.on("GET", baseUrl+"/main/portfolio.php", page(200, baseUrl+"/main/login_form.php", loginFormHtml))

		_, err := fx.state.Courses(context.Background())
		require.Equal(t, KindSessionExpired, KindOf(err))
		require.False(t, fx.state.Authenticated())
	})

	t.Run("network", func(t *testing.T) {
		f := platform()
		fx := newFixture(t, f)
		fx.login(t)
		f.on("GET", baseUrl+"/main/portfolio.php", fail(errors.New("no route to host")))

		_, err := fx.state.Courses(context.Background())
		require.Equal(t, KindNetwork, KindOf(err))
		require.True(t, fx.state.Authenticated())
	})

	t.Run("unrecognized markup", func(t *testing.T) {
		f := platform()
		fx := newFixture(t, f, func(o *Options) {
			o.Extractor.AuthenticatedSelectors = []string{".new-dashboard"}
		})
		f.on("GET", baseUrl+"/main/portfolio.php", page(200, baseUrl+"/main/portfolio.php", portfolioUnrecognizedHtml))
		f.on("POST", casLogin, page(200, baseUrl+"/main/portfolio.php", portfolioUnrecognizedHtml))
		fx.login(t)

		_, err := fx.state.Courses(context.Background())
		require.ErrorIs(t, err, ErrExtraction)
		require.True(t, fx.state.Authenticated())
		require.Equal(t, 1, fx.tel.Count("broken"))
	})
}

func TestStatus(t *testing.T) {
	f := platform()
	fx := newFixture(t, f)

	require.Equal(t, StatusReport{Status: StatusNotLoggedIn}, fx.state.Status(context.Background()))

	fx.login(t)
	report := fx.state.Status(context.Background())
	require.Equal(t, StatusLoggedIn, report.Status)
	require.Equal(t, testUsername, report.Username)
	require.True(t, report.CourseCountKnown)
	require.Equal(t, 2, report.CourseCount)

	f.on("GET", baseUrl+"/main/portfolio.php", fail(errors.New("i/o timeout")))
	report = fx.state.Status(context.Background())
	require.Equal(t, StatusUnverified, report.Status)
	require.Equal(t, testUsername, report.Username)
	require.Equal(t, KindNetwork, report.Err.Kind)

	f.on("GET", baseUrl+"/main/portfolio.php", page(200, baseUrl+"/main/login_form.php", loginFormHtml))
	report = fx.state.Status(context.Background())
	require.Equal(t, StatusExpired, report.Status)
	require.Equal(t, StatusNotLoggedIn, fx.state.Status(context.Background()).Status)
}

func TestBaseUrlWithPrefix(t *testing.T) {
	f := newFakeTransport()
	fx := newFixture(t, f)
	require.Equal(t, baseUrl+"/main/login_form.php", fx.state.loginFormUrl())

	prefixed := newFixture(t, f, func(o *Options) {
		o.BaseUrl.Path = "/eclass/"
	})
	require.Equal(t, baseUrl+"/eclass/main/portfolio.php", prefixed.state.portfolioUrl())
	require.Equal(t, baseUrl+"/eclass/index.php?logout=yes", prefixed.state.logoutUrl())
}

func TestConcurrentOperations(t *testing.T) {
	fx := newFixture(t, platform())

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			switch i % 4 {
			case 0:
				fx.state.Authenticate(context.Background())
			case 1:
				fx.state.IsValid(context.Background())
			case 2:
				_, _ = fx.state.Courses(context.Background())
			case 3:
				fx.state.Status(context.Background())
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	// username is set exactly when authenticated
	require.Equal(t, fx.state.Authenticated(), fx.state.Username() != "")
}

func TestErrorKinds(t *testing.T) {
	err := error(&Error{Kind: KindSessionExpired, Message: "session expired"})
	wrapped := fmt.Errorf("courses: %w", err)
	require.Equal(t, KindSessionExpired, KindOf(wrapped))
	require.ErrorIs(t, wrapped, ErrSessionExpired)
	require.NotErrorIs(t, wrapped, ErrNetwork)
	require.Equal(t, KindNone, KindOf(errors.New("plain")))
	require.Equal(t, "SessionExpired", KindSessionExpired.String())
	require.True(t, strings.HasPrefix(wrapped.Error(), "courses: "))
}
