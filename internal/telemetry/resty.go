package telemetry

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

// exchange is attached to each request context so the response hooks can
// pair up with the request that caused them.
type exchange struct {
	id      uint64
	started time.Time
}

type exchangeKey struct{}

func exchangeOf(ctx context.Context) (exchange, bool) {
	ex, ok := ctx.Value(exchangeKey{}).(exchange)
	return ex, ok
}

type restyHooks struct {
	tel    API
	output DumpOutput
	tracer trace.Tracer
	nextId atomic.Uint64
}

// InstrumentResty reports every request made by client to tel and traces
// each one as a client span under the span already on the request context.
// When output is not nil, each full exchange is also written to it with
// secret form fields redacted.
func InstrumentResty(client *resty.Client, tel API, output DumpOutput) {
	h := &restyHooks{tel: tel, output: output, tracer: otel.Tracer("eclass-mcp/internal/telemetry/resty")}
	client.OnBeforeRequest(h.before)
	client.OnAfterResponse(h.after)
	client.OnError(h.failed)
}

func (h *restyHooks) before(_ *resty.Client, req *resty.Request) error {
	ex := exchange{id: h.nextId.Add(1), started: time.Now()}
	ctx, _ := h.tracer.Start(req.Context(), "http "+req.Method, trace.WithSpanKind(trace.SpanKindClient))
	req.SetContext(context.WithValue(ctx, exchangeKey{}, ex))
	h.tel.ReportDebug(report_resty_request, ex.id, req.Method, req.URL)
	return nil
}

func (h *restyHooks) after(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	ex, ok := exchangeOf(ctx)
	if !ok {
		return nil
	}

	span := trace.SpanFromContext(ctx)
	if raw := res.Request.RawRequest; raw != nil {
		span.SetAttributes(httpconv.ClientRequest(raw)...)
	}
	if res.RawResponse != nil {
		span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)
	}
	span.SetStatus(httpconv.ClientStatus(res.StatusCode()))
	span.End()

	h.tel.ReportDebug(report_resty_response, ex.id, time.Since(ex.started).String(), res.Status())
	if h.output != nil {
		h.output.Write(strconv.FormatUint(ex.id, 10), dumpExchange(res))
	}
	return nil
}

func (h *restyHooks) failed(req *resty.Request, err error) {
	var elapsed time.Duration
	if ex, ok := exchangeOf(req.Context()); ok {
		elapsed = time.Since(ex.started)

		span := trace.SpanFromContext(req.Context())
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		span.End()
	}
	h.tel.ReportWarning(report_resty_response, err, req.Method, req.URL, elapsed.String())
}

// form fields that never leave the process, in logs or in dumps
var redactedFields = []string{"password"}

const redacted = "[REDACTED]"

// RedactForm replaces the values of secret fields in a url-encoded body.
// Bodies that do not parse as forms are returned untouched.
func RedactForm(body string) string {
	values, err := url.ParseQuery(body)
	if err != nil {
		return body
	}
	changed := false
	for _, field := range redactedFields {
		if values.Has(field) {
			values.Set(field, redacted)
			changed = true
		}
	}
	if !changed {
		return body
	}
	return values.Encode()
}

func writeHeaders(out *strings.Builder, headers http.Header) {
	for _, k := range slices.Sorted(maps.Keys(headers)) {
		secret := strings.EqualFold(k, "Cookie") || strings.EqualFold(k, "Set-Cookie")
		for _, v := range headers[k] {
			if secret {
				v = redacted
			}
			fmt.Fprintf(out, "%s: %s\n", k, v)
		}
	}
}

func requestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return "<no body>"
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("<body unavailable: %v>", err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("<body unreadable: %v>", err)
	}
	return RedactForm(string(raw))
}

// dumpExchange renders the request and the final response as plain text.
// Cookies and password fields are redacted.
func dumpExchange(res *resty.Response) string {
	var out strings.Builder

	out.WriteString("---- REQUEST ----\n\n")
	fmt.Fprintf(&out, "%s %s\n\n", res.Request.Method, res.Request.URL)
	if raw := res.Request.RawRequest; raw != nil {
		writeHeaders(&out, raw.Header)
	}
	fmt.Fprintf(&out, "\n%s\n\n", requestBody(res.Request.RawRequest))

	finalUrl := res.Request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
	}
	out.WriteString("---- RESPONSE ----\n\n")
	fmt.Fprintf(&out, "%d %s\n\n", res.StatusCode(), finalUrl)
	writeHeaders(&out, res.Header())
	out.WriteString("\n")
	out.WriteString(res.String())
	return out.String()
}
