// Package telemetry is the reporting surface every component logs through.
package telemetry

// API is what components report to. Tests substitute a RecordingAPI and
// assert on the reports.
//
// Report ids name the component, not the call site: lowercase, dots between
// a component and its step, dashes inside a step name
// (`authenticator.cas-submit`). Detail goes in params.
type API interface {
	// ReportBroken reports a failure that needs fixing, such as markup the
	// extractor no longer understands.
	ReportBroken(id string, params ...any)
	// ReportWarning reports something worth a look that is not necessarily
	// broken, such as a rejected login or an unreachable platform.
	ReportWarning(id string, params ...any)
	ReportDebug(msg string, params ...any)
	// ReportCount reports a gauge reading. Readings are points in time and
	// are not meant to be summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a component namespace.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI scopes inner to namespace. Scoping an already scoped api
// nests the namespaces, `transport` inside `session` yields
// `session/transport: <id>`.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	if parent, ok := inner.(ScopedAPI); ok {
		return ScopedAPI{namespace: parent.namespace + "/" + namespace, inner: parent.inner}
	}
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) id(id string) string {
	return s.namespace + ": " + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.id(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.id(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.id(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.id(id), count)
}
