package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"eclass-mcp/internal/telemetry"
	"eclass-mcp/internal/transport"
)

const (
	baseUrl  = "https://eclass.example.edu"
	casLogin = "https://sso.example.edu/login?service=platform"

	testUsername = "alice"
	testPassword = "s3cret-Pa55"
)

const loginFormHtml = `<html><body>
<a href="/modules/auth/cas.php">Είσοδος με λογαριασμό ΕΚΠΑ</a>
<form action="/index.php" method="post"><input type="password" name="pass"></form>
</body></html>`

const noSsoHtml = `<html><body><h1>Maintenance</h1></body></html>`

const casFormHtml = `<html><body>
<form id="fm1" method="post" action="/login?service=platform">
<input name="username" type="text"><input name="password" type="password">
<input type="hidden" name="execution" value="e1s1">
<input type="hidden" name="_eventId" value="submit">
<input type="hidden" name="lt" value="LT-1">
</form></body></html>`

const casRejectedHtml = `<html><body>
<form id="fm1" method="post" action="/login?service=platform">
<div id="msg" class="errors">Invalid credentials.</div>
<input name="username" type="text" value="alice"><input name="password" type="password">
<input type="hidden" name="execution" value="e1s2">
</form></body></html>`

const challengeHtml = `<html><body><h1>Two-step verification</h1>
<form method="post" action="/mfa"><input type="text" name="token"></form>
</body></html>`

const portfolioHtml = `<html><body>
<a href="/index.php?logout=yes">Αποσύνδεση</a>
<table id="portfolio_lessons"><tbody>
<tr><td><a href="https://eclass.example.edu/courses/DI101/">Algorithms</a></td></tr>
<tr><td><a href="/courses/DI205/">Databases</a></td></tr>
</tbody></table>
</body></html>`

const portfolioEmptyHtml = `<html><body>
<a href="/index.php?logout=yes">Αποσύνδεση</a>
<table id="portfolio_lessons"><tbody><tr><td>Δεν υπάρχουν μαθήματα</td></tr></tbody></table>
</body></html>`

const portfolioUnrecognizedHtml = `<html><body>
<a href="/index.php?logout=yes">Αποσύνδεση</a>
<div class="new-dashboard"></div>
</body></html>`

type route func(form map[string]string) (transport.Page, error)

type call struct {
	method   string
	endpoint string
	form     map[string]string
}

// fakeTransport answers requests from a table of routes keyed by method and
// url and records every call.
type fakeTransport struct {
	mu     sync.Mutex
	routes map[string]route
	calls  []call
	resets int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{routes: map[string]route{}}
}

func (f *fakeTransport) on(method, endpoint string, r route) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+endpoint] = r
}

func (f *fakeTransport) serve(method, endpoint string, form map[string]string) (transport.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{method: method, endpoint: endpoint, form: form})
	r, ok := f.routes[method+" "+endpoint]
	f.mu.Unlock()

	if !ok {
		return transport.Page{}, fmt.Errorf("no route for %s %s", method, endpoint)
	}
	return r(form)
}

func (f *fakeTransport) Get(ctx context.Context, endpoint string) (transport.Page, error) {
	if err := ctx.Err(); err != nil {
		return transport.Page{}, err
	}
	return f.serve("GET", endpoint, nil)
}

func (f *fakeTransport) PostForm(ctx context.Context, endpoint string, form map[string]string) (transport.Page, error) {
	if err := ctx.Err(); err != nil {
		return transport.Page{}, err
	}
	return f.serve("POST", endpoint, form)
}

func (f *fakeTransport) ResetCookies() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeTransport) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeTransport) CallCount() int {
	return len(f.Calls())
}

func page(status int, link, body string) route {
	return func(map[string]string) (transport.Page, error) {
		parsed, err := url.Parse(link)
		if err != nil {
			return transport.Page{}, err
		}
		return transport.Page{Status: status, Body: []byte(body), Url: parsed}, nil
	}
}

func fail(err error) route {
	return func(map[string]string) (transport.Page, error) {
		return transport.Page{}, err
	}
}

// platform scripts the happy path of the sso chain, tests override single
// routes to inject failures.
func platform() *fakeTransport {
	f := newFakeTransport()
	f.on("GET", baseUrl+"/main/login_form.php", page(200, baseUrl+"/main/login_form.php", loginFormHtml))
	f.on("GET", baseUrl+"/modules/auth/cas.php", page(200, casLogin, casFormHtml))
	f.on("POST", casLogin, func(form map[string]string) (transport.Page, error) {
		if form["username"] == testUsername && form["password"] == testPassword {
			return page(200, baseUrl+"/main/portfolio.php", portfolioHtml)(form)
		}
		return page(401, casLogin, casRejectedHtml)(form)
	})
	f.on("GET", baseUrl+"/main/portfolio.php", page(200, baseUrl+"/main/portfolio.php", portfolioHtml))
	f.on("GET", baseUrl+"/index.php?logout=yes", page(200, baseUrl+"/", "<html></html>"))
	return f
}

type fixture struct {
	state     *State
	transport *fakeTransport
	tel       *telemetry.RecordingAPI
}

func newFixture(t testing.TB, f *fakeTransport, mutate ...func(*Options)) fixture {
	t.Helper()
	base, err := url.Parse(baseUrl)
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{
		BaseUrl:     base,
		Credentials: Credentials{Username: testUsername, Password: testPassword},
		HopTimeout:  5 * time.Second,
	}
	for _, m := range mutate {
		m(&opts)
	}
	tel := &telemetry.RecordingAPI{}
	return fixture{
		state:     New(opts, f, tel),
		transport: f,
		tel:       tel,
	}
}

func (fx fixture) login(t testing.TB) {
	t.Helper()
	outcome := fx.state.Authenticate(context.Background())
	if !outcome.Success() {
		t.Fatalf("login failed: %v", outcome.Err)
	}
}
