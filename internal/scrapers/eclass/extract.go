// Package eclass reads the pages of an Open eClass platform and of the CAS
// identity provider in front of it. Every function here is pure: html in,
// located targets or course data out.
package eclass

import (
	"bytes"
	"errors"
	"net/url"
	"strings"

	"eclass-mcp/lib/htmlutil"
	"eclass-mcp/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnrecognizedMarkup means a page that should list courses has none of
// the structures a course list is known to use.
var ErrUnrecognizedMarkup = errors.New("course list markup not recognized")

// the marker for a logged in page, any match counts
var DefaultAuthenticatedSelectors = []string{
	`a[href*="logout=yes"]`,
	`#portfolio_lessons`,
}

// the text of the "login with institutional account" button
var DefaultSsoLinkTexts = []string{
	"ΕΚΠΑ",
}

type Course struct {
	Name string
	Url  *url.URL
}

// CasForm is the login form served by the identity provider.
type CasForm struct {
	Action *url.URL
	// Hidden holds every named hidden input, execution included.
	Hidden  map[string]string
	Message string
}

func (f CasForm) Execution() string {
	return f.Hidden["execution"]
}

// Extractor carries the platform-specific markers. The zero value uses the
// defaults.
type Extractor struct {
	AuthenticatedSelectors []string
	SsoLinkTexts           []string
}

func (e Extractor) authenticatedSelectors() []string {
	if len(e.AuthenticatedSelectors) == 0 {
		return DefaultAuthenticatedSelectors
	}
	return e.AuthenticatedSelectors
}

func (e Extractor) ssoLinkTexts() []string {
	if len(e.SsoLinkTexts) == 0 {
		return DefaultSsoLinkTexts
	}
	return e.SsoLinkTexts
}

func Parse(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// FindSsoLink locates the entry point of the sso flow on the platform's
// login page: first an anchor by its text or a cas.php href, then a form
// posting to cas.php.
func (e Extractor) FindSsoLink(doc *goquery.Document, base *url.URL) (*url.URL, bool) {
	var found *url.URL
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "")
		if !strings.Contains(href, "cas.php") && !textutil.ContainsAny(a.Text(), e.ssoLinkTexts()) {
			return true
		}
		found = htmlutil.Resolve(base, href)
		return found == nil
	})
	if found != nil {
		return found, true
	}

	doc.Find("form[action]").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		action := form.AttrOr("action", "")
		if !strings.Contains(action, "cas.php") {
			return true
		}
		found = htmlutil.Resolve(base, action)
		return found == nil
	})
	return found, found != nil
}

func hasPasswordInput(sel *goquery.Selection) bool {
	return sel.Find(`input[type=password], input[name=password]`).Length() > 0
}

// CasMessage returns the notice the identity provider shows above its login
// form, usually the reason the last attempt was refused.
func CasMessage(doc *goquery.Document) string {
	for _, selector := range []string{"#msg", ".alert-danger", ".errors", "#loginErrorsPanel"} {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		text := htmlutil.CleanText(sel.Nodes[0])
		if text != "" {
			return text
		}
	}
	return ""
}

// ParseCasForm reads the identity provider's login form. It reports false
// when the page has no password form carrying an execution token.
func ParseCasForm(doc *goquery.Document, pageUrl *url.URL) (CasForm, bool) {
	form := doc.Find("form#fm1").First()
	if form.Length() == 0 {
		doc.Find("form").EachWithBreak(func(_ int, f *goquery.Selection) bool {
			if hasPasswordInput(f) {
				form = f
				return false
			}
			return true
		})
	}
	if form.Length() == 0 || !hasPasswordInput(form) {
		return CasForm{}, false
	}

	hidden := map[string]string{}
	form.Find(`input[type=hidden][name]`).Each(func(_ int, input *goquery.Selection) {
		hidden[input.AttrOr("name", "")] = input.AttrOr("value", "")
	})
	if hidden["execution"] == "" {
		return CasForm{}, false
	}

	action := pageUrl
	if href, ok := form.Attr("action"); ok {
		if resolved := htmlutil.Resolve(pageUrl, href); resolved != nil {
			action = resolved
		}
	}

	return CasForm{
		Action:  action,
		Hidden:  hidden,
		Message: CasMessage(doc),
	}, true
}

// IsLoginPage reports a page that asks for credentials, either the
// platform's own login form or the identity provider's.
func IsLoginPage(doc *goquery.Document, pageUrl *url.URL) bool {
	if hasPasswordInput(doc.Selection) {
		return true
	}
	if pageUrl == nil {
		return false
	}
	path := strings.ToLower(pageUrl.Path)
	return strings.Contains(path, "login_form.php") || strings.HasSuffix(path, "/login")
}

// IsAuthenticatedPage reports a page only a logged in user sees. A page that
// also asks for a password is never authenticated.
func (e Extractor) IsAuthenticatedPage(doc *goquery.Document) bool {
	if hasPasswordInput(doc.Selection) {
		return false
	}
	for _, selector := range e.authenticatedSelectors() {
		if doc.Find(selector).Length() > 0 {
			return true
		}
	}
	return false
}
