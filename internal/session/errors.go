package session

import (
	"errors"
)

type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindMissingCredentials
	KindSsoLinkNotFound
	// KindAuthentication covers rejected credentials and identity provider
	// responses that could not be recognized, see Reason.
	KindAuthentication
	// KindNetwork covers every transport failure, timeouts and non-success
	// statuses included.
	KindNetwork
	KindNotAuthenticated
	KindExtraction
	// KindSessionExpired means the session was valid once and the platform
	// no longer accepts it.
	KindSessionExpired
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingCredentials:
		return "MissingCredentials"
	case KindSsoLinkNotFound:
		return "SsoLinkNotFound"
	case KindAuthentication:
		return "AuthenticationError"
	case KindNetwork:
		return "NetworkError"
	case KindNotAuthenticated:
		return "NotAuthenticated"
	case KindExtraction:
		return "ExtractionError"
	case KindSessionExpired:
		return "SessionExpired"
	default:
		return "None"
	}
}

// Reason refines KindAuthentication.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonRejected: the identity provider showed its login form again.
	ReasonRejected
	// ReasonChallenge: the flow stopped at a page off the platform that is
	// not the login form, like a second factor or a terms page.
	ReasonChallenge
	// ReasonUnrecognized: the response matched none of the known pages.
	ReasonUnrecognized
)

func (r Reason) String() string {
	switch r {
	case ReasonRejected:
		return "rejected"
	case ReasonChallenge:
		return "challenge"
	case ReasonUnrecognized:
		return "unrecognized"
	default:
		return "none"
	}
}

// Error is the only error type that crosses the session boundary. Message
// is safe to show to users, it never contains credentials.
type Error struct {
	Kind    ErrorKind
	Reason  Reason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrMissingCredentials = &Error{Kind: KindMissingCredentials}
	ErrSsoLinkNotFound    = &Error{Kind: KindSsoLinkNotFound}
	ErrAuthentication     = &Error{Kind: KindAuthentication}
	ErrNetwork            = &Error{Kind: KindNetwork}
	ErrNotAuthenticated   = &Error{Kind: KindNotAuthenticated}
	ErrExtraction         = &Error{Kind: KindExtraction}
	ErrSessionExpired     = &Error{Kind: KindSessionExpired}
)

// KindOf returns the kind of err, or KindNone if err did not come from
// this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}
