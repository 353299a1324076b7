package telemetry

import (
	"fmt"
	"strings"
	"sync"
)

type Report struct {
	Kind   string
	Id     string
	Params []any
}

func (r Report) String() string {
	var out strings.Builder
	out.WriteString(r.Kind)
	out.WriteString(" ")
	out.WriteString(r.Id)
	for _, p := range r.Params {
		out.WriteString(" ")
		out.WriteString(fmt.Sprint(p))
	}
	return out.String()
}

// RecordingAPI keeps every report in memory, it is meant for tests.
type RecordingAPI struct {
	mu      sync.Mutex
	reports []Report
}

func (r *RecordingAPI) record(kind, id string, params []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Kind: kind, Id: id, Params: params})
}

func (r *RecordingAPI) ReportBroken(id string, params ...any) {
	r.record("broken", id, params)
}

func (r *RecordingAPI) ReportWarning(id string, params ...any) {
	r.record("warning", id, params)
}

func (r *RecordingAPI) ReportDebug(msg string, params ...any) {
	r.record("debug", msg, params)
}

func (r *RecordingAPI) ReportCount(id string, count int64) {
	r.record("count", id, []any{count})
}

func (r *RecordingAPI) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Contains reports whether any recorded report mentions substr.
func (r *RecordingAPI) Contains(substr string) bool {
	for _, report := range r.Reports() {
		if strings.Contains(report.String(), substr) {
			return true
		}
	}
	return false
}

// Count returns the number of reports of the given kind.
func (r *RecordingAPI) Count(kind string) int {
	n := 0
	for _, report := range r.Reports() {
		if report.Kind == kind {
			n++
		}
	}
	return n
}
