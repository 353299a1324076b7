package eclass

import (
	"net/url"
	"strings"

	"eclass-mcp/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// course title blocks across the themes eClass ships, in order of preference
var courseTitleSelectors = []string{
	".course-title",
	".lesson-title",
	".course-box .title",
	".course-info h4",
}

// the portfolio's course table, present even when it is empty
const courseTableSelector = "#portfolio_lessons"

func isCourseLink(link *url.URL) bool {
	path := link.Path
	return strings.Contains(path, "/courses/") || strings.HasSuffix(path, "course.php")
}

type courseList struct {
	seen    map[string]struct{}
	courses []Course
}

func (l *courseList) add(name string, link *url.URL) {
	if name == "" || link == nil {
		return
	}
	key := link.String()
	if _, ok := l.seen[key]; ok {
		return
	}
	l.seen[key] = struct{}{}
	l.courses = append(l.courses, Course{Name: name, Url: link})
}

func coursesFromTitles(sel *goquery.Selection, base *url.URL, out *courseList) {
	sel.Each(func(_ int, title *goquery.Selection) {
		link := title
		if !title.Is("a") {
			link = title.Find("a[href]").First()
		}
		if link.Length() == 0 {
			return
		}
		out.add(
			htmlutil.CleanText(link.Nodes[0]),
			htmlutil.Resolve(base, link.AttrOr("href", "")),
		)
	})
}

func coursesFromAnchors(sel *goquery.Selection, base *url.URL, out *courseList) {
	for _, a := range htmlutil.GetAnchors(base, sel) {
		if !isCourseLink(a.Url) {
			continue
		}
		out.add(a.Name, a.Url)
	}
}

// ExtractCourses lists the courses on a portfolio page in page order. A
// recognized page without courses yields an empty, non-nil slice, a page
// with none of the known structures yields ErrUnrecognizedMarkup.
func ExtractCourses(doc *goquery.Document, base *url.URL) ([]Course, error) {
	out := &courseList{seen: map[string]struct{}{}, courses: []Course{}}

	for _, selector := range courseTitleSelectors {
		titles := doc.Find(selector)
		if titles.Length() == 0 {
			continue
		}
		coursesFromTitles(titles, base, out)
		return out.courses, nil
	}

	table := doc.Find(courseTableSelector)
	if table.Length() > 0 {
		coursesFromAnchors(table.Find("a[href]"), base, out)
		return out.courses, nil
	}

	coursesFromAnchors(doc.Find("a[href]"), base, out)
	if len(out.courses) == 0 {
		return nil, ErrUnrecognizedMarkup
	}
	return out.courses, nil
}
