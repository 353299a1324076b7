package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeteredAPI forwards every report to the wrapped API and additionally
// records counts on an otel gauge, labelled by report id.
type MeteredAPI struct {
	API
	gauge metric.Int64Gauge
}

func NewMeteredAPI(inner API, meter metric.Meter) (MeteredAPI, error) {
	gauge, err := meter.Int64Gauge(
		"eclass.report.count",
		metric.WithDescription("Latest value reported for a count id."),
	)
	if err != nil {
		return MeteredAPI{}, err
	}
	return MeteredAPI{API: inner, gauge: gauge}, nil
}

func (m MeteredAPI) ReportCount(id string, count int64) {
	m.API.ReportCount(id, count)
	m.gauge.Record(context.Background(), count, metric.WithAttributes(attribute.String("id", id)))
}
