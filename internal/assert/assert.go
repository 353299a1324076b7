// Package assert holds precondition checks for constructors. A failed check is a
// programming error, so it panics.
package assert

import "net/url"

func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
}

func NotEmptyStr(str string) {
	if str == "" {
		panic("expected string to be non-empty")
	}
}

// AbsoluteUrl panics unless link is an absolute http(s) url with a host.
func AbsoluteUrl(link *url.URL) {
	if link == nil {
		panic("expected url to be not nil")
	}
	if link.Scheme != "http" && link.Scheme != "https" {
		panic("expected url scheme to be http or https, got " + link.Scheme)
	}
	if link.Host == "" {
		panic("expected url to have a host")
	}
}
