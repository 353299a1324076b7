// Package transport is the cookie-persisting http session shared by every
// operation against the platform.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"eclass-mcp/internal/assert"
	"eclass-mcp/internal/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	report_client_reset_cookies = "client.reset-cookies"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Page is a fetched document after all redirects were followed.
type Page struct {
	Status int
	Body   []byte
	// Url is the url of the last request in the redirect chain.
	Url *url.URL
}

// OK reports a 2xx status.
func (p Page) OK() bool {
	return p.Status >= 200 && p.Status < 300
}

type Options struct {
	// Timeout bounds a single request including its redirects.
	Timeout time.Duration
	// RequestsPerSecond paces outgoing requests, 0 disables pacing.
	RequestsPerSecond float64
	// MaxRedirects defaults to 10.
	MaxRedirects int
	// BrowserEmulation wraps the transport so requests carry browser-like
	// headers and tls settings.
	BrowserEmulation bool
	// Dump receives full exchanges, it may be nil.
	Dump telemetry.DumpOutput
}

type Client struct {
	http *resty.Client
	tel  telemetry.API

	jarLock sync.Mutex
}

func newJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("transport", tel)

	httpClient := resty.New()
	jar, err := newJar()
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if opts.BrowserEmulation {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	// the sso chain crosses hosts, so the domain check policy used for
	// single-host scrapers would stop it at the first hop
	httpClient.SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects))
	httpClient.SetHeader("user-agent", userAgent)
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}

	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel, opts.Dump)

	return &Client{
		http: httpClient,
		tel:  tel,
	}, nil
}

func toPage(res *resty.Response) Page {
	page := Page{
		Status: res.StatusCode(),
		Body:   res.Body(),
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		page.Url = res.RawResponse.Request.URL
	}
	return page
}

func (c *Client) Get(ctx context.Context, endpoint string) (Page, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		return Page{}, fmt.Errorf("GET %s: %w", stripQuery(endpoint), err)
	}
	return toPage(res), nil
}

func (c *Client) PostForm(ctx context.Context, endpoint string, form map[string]string) (Page, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(endpoint)
	if err != nil {
		return Page{}, fmt.Errorf("POST %s: %w", stripQuery(endpoint), err)
	}
	return toPage(res), nil
}

// ResetCookies swaps the jar for an empty one, dropping every session
// cookie the platform or the identity provider has set.
func (c *Client) ResetCookies() error {
	c.jarLock.Lock()
	defer c.jarLock.Unlock()

	jar, err := newJar()
	if err != nil {
		c.tel.ReportBroken(report_client_reset_cookies, err)
		return err
	}
	c.http.SetCookieJar(jar)
	return nil
}

// Cookies returns the cookies the jar would send to link.
func (c *Client) Cookies(link *url.URL) []*http.Cookie {
	c.jarLock.Lock()
	defer c.jarLock.Unlock()

	jar := c.http.GetClient().Jar
	if jar == nil {
		return nil
	}
	return jar.Cookies(link)
}

// sso urls carry tickets and service parameters in their query, keep them
// out of error messages.
func stripQuery(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid url>"
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}
