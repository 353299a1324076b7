package htmlutil

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// GetText concatenates the text nodes under node in document order,
// skipping script and style contents.
func GetText(node *html.Node) string {
	if node == nil {
		return ""
	}
	var out strings.Builder
	stack := []*html.Node{node}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch {
		case n.Type == html.TextNode:
			out.WriteString(n.Data)
			continue
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			continue
		}
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	return out.String()
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func printable(r rune) rune {
	if unicode.IsPrint(r) || unicode.IsSpace(r) {
		return r
	}
	return -1
}

// CleanText collapses whitespace and strips non-printable characters from
// the text content of a node.
func CleanText(node *html.Node) string {
	text := strings.Map(printable, GetText(node))
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// Resolve parses href relative to base. Empty hrefs, fragments and
// javascript: links resolve to nil.
func Resolve(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return nil
	}
	link, err := url.Parse(href)
	if err != nil {
		return nil
	}
	if base == nil {
		return link
	}
	return base.ResolveReference(link)
}

type Anchor struct {
	Name string
	Url  *url.URL
}

// GetAnchors returns the cleaned text and resolved href of every node in sel
// that carries a usable href. Nodes without one are skipped.
func GetAnchors(base *url.URL, sel *goquery.Selection) []Anchor {
	anchors := []Anchor{}
	sel.Each(func(_ int, a *goquery.Selection) {
		link := Resolve(base, a.AttrOr("href", ""))
		if link == nil {
			return
		}
		anchors = append(anchors, Anchor{Name: CleanText(a.Nodes[0]), Url: link})
	})
	return anchors
}
